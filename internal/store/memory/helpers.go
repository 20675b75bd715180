package memory

import (
	"slices"
	"strconv"
)

func cloneStr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func sortInt64(ids []int64) { slices.Sort(ids) }

func itoa(i int64) string { return strconv.FormatInt(i, 10) }
