package services

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/tbourn/go-dm-backend/internal/store"
	"github.com/tbourn/go-dm-backend/internal/store/storetest"
)

func TestMessageService_Send_Validation(t *testing.T) {
	st := newFaulty(nil)
	u1, u2 := seedUser(t, st, "one"), seedUser(t, st, "two")
	svc := NewMessageService(st, st, 5)
	ctx := context.Background()

	cases := []struct {
		name     string
		from, to int64
		content  string
		want     error
	}{
		{"self", u1.ID, u1.ID, "hi", ErrSelfMessage},
		{"empty", u1.ID, u2.ID, "", ErrEmptyContent},
		{"blank", u1.ID, u2.ID, " \n\t ", ErrEmptyContent},
		{"too long", u1.ID, u2.ID, "123456", ErrContentTooLong},
		{"unknown receiver", u1.ID, 999, "hi", ErrInvalidRecipient},
	}
	for _, tc := range cases {
		if _, err := svc.Send(ctx, tc.from, tc.to, tc.content); !errors.Is(err, tc.want) {
			t.Fatalf("%s: want %v, got %v", tc.name, tc.want, err)
		}
	}

	// Nothing was written by the rejected sends.
	if n, _, _ := st.ConversationStats(ctx, u1.ID, u2.ID); n != 0 {
		t.Fatalf("rejected sends persisted %d messages", n)
	}
}

func TestMessageService_Send_RuneLimitAndTrim(t *testing.T) {
	st := newFaulty(nil)
	u1, u2 := seedUser(t, st, "one"), seedUser(t, st, "two")
	svc := NewMessageService(st, st, 5)

	m, err := svc.Send(context.Background(), u1.ID, u2.ID, "  héllo  ")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if m.Content != "héllo" || m.SenderID != u1.ID || m.ReceiverID != u2.ID || m.ID <= 0 {
		t.Fatalf("unexpected message %+v", m)
	}
}

func TestMessageService_DefaultLimit(t *testing.T) {
	svc := &MessageService{}
	if svc.maxRunes() != DefaultMaxContentRunes {
		t.Fatalf("maxRunes = %d", svc.maxRunes())
	}
}

func TestMessageService_Send_StorageFailures(t *testing.T) {
	st := newFaulty(nil)
	u1, u2 := seedUser(t, st, "one"), seedUser(t, st, "two")
	svc := NewMessageService(st, st, 0)
	ctx := context.Background()

	st.createErr = fmt.Errorf("disk: %w", store.ErrStorageUnavailable)
	if _, err := svc.Send(ctx, u1.ID, u2.ID, "hi"); !errors.Is(err, store.ErrStorageUnavailable) {
		t.Fatalf("want StorageUnavailable on create, got %v", err)
	}

	st.createErr = nil
	st.getUserErr[u2.ID] = fmt.Errorf("net: %w", store.ErrStorageUnavailable)
	_, err := svc.Send(ctx, u1.ID, u2.ID, "hi")
	if !errors.Is(err, store.ErrStorageUnavailable) || errors.Is(err, ErrInvalidRecipient) {
		t.Fatalf("lookup outage must not look like a bad recipient: %v", err)
	}
}

func TestMessageService_History_Symmetric(t *testing.T) {
	st := newFaulty(storetest.Script(at(3), at(1), at(2)))
	u1, u2 := seedUser(t, st, "one"), seedUser(t, st, "two")
	svc := NewMessageService(st, st, 0)
	ctx := context.Background()
	for _, c := range []string{"x", "y", "z"} {
		if _, err := svc.Send(ctx, u1.ID, u2.ID, c); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}

	ab, err := svc.History(ctx, u1.ID, u2.ID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	ba, err := svc.History(ctx, u2.ID, u1.ID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if !reflect.DeepEqual(ab, ba) {
		t.Fatalf("history not symmetric")
	}
	var got []string
	for _, m := range ab {
		got = append(got, m.Content)
	}
	if strings.Join(got, "") != "yzx" {
		t.Fatalf("want timestamp order yzx, got %v", got)
	}

	empty, err := svc.History(ctx, u1.ID, 42)
	if err != nil || empty == nil || len(empty) != 0 {
		t.Fatalf("unknown peer: want empty slice, got %v, %v", empty, err)
	}
}

func TestMessageService_ConcurrentSendsGetDistinctIDs(t *testing.T) {
	st := newFaulty(nil)
	u1, u2 := seedUser(t, st, "one"), seedUser(t, st, "two")
	svc := NewMessageService(st, st, 0)

	const n = 64
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = map[int64]bool{}
	)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m, err := svc.Send(context.Background(), u1.ID, u2.ID, fmt.Sprintf("m%d", i))
			if err != nil {
				t.Errorf("Send: %v", err)
				return
			}
			mu.Lock()
			ids[m.ID] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	if len(ids) != n {
		t.Fatalf("want %d distinct ids, got %d", n, len(ids))
	}
}

func TestMessageService_StatsAndGet(t *testing.T) {
	st := newFaulty(nil)
	u1, u2, u3 := seedUser(t, st, "one"), seedUser(t, st, "two"), seedUser(t, st, "three")
	svc := NewMessageService(st, st, 0)
	ctx := context.Background()

	m, err := svc.Send(ctx, u1.ID, u2.ID, "hi")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	n, last, err := svc.Stats(ctx, u2.ID, u1.ID)
	if err != nil || n != 1 || last != m.ID {
		t.Fatalf("Stats = %d,%d,%v", n, last, err)
	}

	if got, err := svc.Get(ctx, u2.ID, m.ID); err != nil || got.ID != m.ID {
		t.Fatalf("Get by participant: %v, %v", got, err)
	}
	if _, err := svc.Get(ctx, u3.ID, m.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("outsider must not see message, got %v", err)
	}
	if _, err := svc.Get(ctx, u1.ID, 999); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("missing message: %v", err)
	}
}
