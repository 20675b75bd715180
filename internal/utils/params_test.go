package utils

import "testing"

func TestAtoiDefault(t *testing.T) {
	cases := []struct {
		s    string
		def  int
		want int
	}{
		{"", 10, 10},
		{"42", 0, 42},
		{"-13", 1, -13},
		{"0012", 99, 12},
		// no trimming
		{"x", 5, 5},
		{" 42", 7, 7},
		// overflow -> default
		{"999999999999999999999999", -1, -1},
	}
	for _, tc := range cases {
		if got := AtoiDefault(tc.s, tc.def); got != tc.want {
			t.Fatalf("AtoiDefault(%q, %d) = %d; want %d", tc.s, tc.def, got, tc.want)
		}
	}
}

func TestParseID(t *testing.T) {
	good := map[string]int64{"1": 1, "42": 42, "9223372036854775807": 1<<63 - 1}
	for in, want := range good {
		if got, ok := ParseID(in); !ok || got != want {
			t.Fatalf("ParseID(%q) = %d,%v; want %d,true", in, got, ok, want)
		}
	}
	for _, in := range []string{"", "0", "-3", "abc", "1.5", " 7", "9223372036854775808"} {
		if _, ok := ParseID(in); ok {
			t.Fatalf("ParseID(%q) should fail", in)
		}
	}
}

func TestClampInt(t *testing.T) {
	if ClampInt(-5, 1, 10) != 1 || ClampInt(50, 1, 10) != 10 || ClampInt(7, 1, 10) != 7 {
		t.Fatalf("ClampInt out of bounds")
	}
}
