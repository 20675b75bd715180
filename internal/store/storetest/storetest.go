// Package storetest is a conformance suite every store.Store backend runs
// from its own tests, so memory, SQL and badger behave identically.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-dm-backend/internal/domain"
	"github.com/tbourn/go-dm-backend/internal/store"
)

// Factory returns a fresh, empty store using clock for message timestamps.
// It should register its own cleanup with t.
type Factory func(t *testing.T, clock store.Clock) store.Store

// Base is the instant the scripted clocks start from.
var Base = time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)

// Script returns a clock that yields the given instants in order and then
// keeps returning the last one.
func Script(times ...time.Time) store.Clock {
	var (
		mu sync.Mutex
		i  int
	)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := times[min(i, len(times)-1)]
		i++
		return t
	}
}

// Fixed returns a clock stuck at t.
func Fixed(t time.Time) store.Clock { return func() time.Time { return t } }

// Run executes the whole suite against newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("Users", func(t *testing.T) { testUsers(t, newStore) })
	t.Run("Profile", func(t *testing.T) { testProfile(t, newStore) })
	t.Run("EmptyHistory", func(t *testing.T) { testEmptyHistory(t, newStore) })
	t.Run("HistorySymmetricAndOrdered", func(t *testing.T) { testHistory(t, newStore) })
	t.Run("TimestampTiesBreakByID", func(t *testing.T) { testTies(t, newStore) })
	t.Run("Correspondents", func(t *testing.T) { testCorrespondents(t, newStore) })
	t.Run("ConversationStats", func(t *testing.T) { testStats(t, newStore) })
	t.Run("ConcurrentCreateMessage", func(t *testing.T) { testConcurrentIDs(t, newStore) })
	t.Run("CreatedMessageMatchesReadBack", func(t *testing.T) { testReadBack(t, newStore) })
	t.Run("Idempotency", func(t *testing.T) { testIdempotency(t, newStore) })
	t.Run("ExpiredIdempotencyCanBeResaved", func(t *testing.T) { testIdempotencyResave(t, newStore) })
	t.Run("CanceledContext", func(t *testing.T) { testCanceled(t, newStore) })
}

func mkUser(t *testing.T, s store.Store, name string) *domain.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), store.NewUser{Username: name, PasswordHash: "hash-" + name})
	require.NoError(t, err)
	return u
}

func send(t *testing.T, s store.Store, from, to int64, content string) *domain.Message {
	t.Helper()
	m, err := s.CreateMessage(context.Background(), from, to, content)
	require.NoError(t, err)
	return m
}

func testUsers(t *testing.T, newStore Factory) {
	req := require.New(t)
	ctx := context.Background()
	s := newStore(t, nil)

	alice := mkUser(t, s, "alice")
	bob := mkUser(t, s, "bob")
	req.Positive(alice.ID)
	req.Greater(bob.ID, alice.ID)
	req.True(alice.IsOnline, "new users start online")
	req.Equal("hash-alice", alice.PasswordHash)

	_, err := s.CreateUser(ctx, store.NewUser{Username: "alice", PasswordHash: "x"})
	req.ErrorIs(err, store.ErrUsernameTaken)

	got, err := s.GetUser(ctx, bob.ID)
	req.NoError(err)
	req.Equal("bob", got.Username)

	got, err = s.GetUserByUsername(ctx, "alice")
	req.NoError(err)
	req.Equal(alice.ID, got.ID)
	req.Equal("hash-alice", got.PasswordHash)

	_, err = s.GetUser(ctx, 9999)
	req.ErrorIs(err, store.ErrUserNotFound)
	req.ErrorIs(err, store.ErrNotFound)

	_, err = s.GetUserByUsername(ctx, "nobody")
	req.ErrorIs(err, store.ErrUserNotFound)

	off, err := s.UpdateUserOnlineStatus(ctx, alice.ID, false)
	req.NoError(err)
	req.False(off.IsOnline)
	got, err = s.GetUser(ctx, alice.ID)
	req.NoError(err)
	req.False(got.IsOnline)

	_, err = s.UpdateUserOnlineStatus(ctx, 9999, true)
	req.ErrorIs(err, store.ErrUserNotFound)

	mkUser(t, s, "carol")
	all, err := s.ListUsers(ctx)
	req.NoError(err)
	req.Equal([]string{"alice", "bob", "carol"}, lo.Map(all, func(u domain.User, _ int) string { return u.Username }))
}

func testProfile(t *testing.T, newStore Factory) {
	req := require.New(t)
	ctx := context.Background()
	s := newStore(t, nil)
	u := mkUser(t, s, "dana")
	req.Nil(u.Name)
	req.Nil(u.ProfilePicture)

	out, err := s.UpdateUserProfile(ctx, u.ID, store.ProfileUpdate{Name: lo.ToPtr("Dana")})
	req.NoError(err)
	req.Equal("Dana", lo.FromPtr(out.Name))
	req.Nil(out.ProfilePicture)

	out, err = s.UpdateUserProfile(ctx, u.ID, store.ProfileUpdate{ProfilePicture: lo.ToPtr("https://img/d.png")})
	req.NoError(err)
	req.Equal("Dana", lo.FromPtr(out.Name), "unset fields are left untouched")
	req.Equal("https://img/d.png", lo.FromPtr(out.ProfilePicture))

	got, err := s.GetUser(ctx, u.ID)
	req.NoError(err)
	req.Equal("Dana", lo.FromPtr(got.Name))

	_, err = s.UpdateUserProfile(ctx, 9999, store.ProfileUpdate{Name: lo.ToPtr("x")})
	req.ErrorIs(err, store.ErrUserNotFound)
}

func testEmptyHistory(t *testing.T, newStore Factory) {
	req := require.New(t)
	s := newStore(t, nil)
	a := mkUser(t, s, "alice")
	b := mkUser(t, s, "bob")

	msgs, err := s.MessagesBetween(context.Background(), a.ID, b.ID)
	req.NoError(err)
	req.NotNil(msgs)
	req.Empty(msgs)

	peers, err := s.Correspondents(context.Background(), a.ID)
	req.NoError(err)
	req.Empty(peers)

	_, err = s.GetMessage(context.Background(), 12345)
	req.ErrorIs(err, store.ErrNotFound)
}

func testHistory(t *testing.T, newStore Factory) {
	req := require.New(t)
	ctx := context.Background()
	// The clock runs backwards for the second message, so timestamp order and
	// id order disagree.
	s := newStore(t, Script(Base.Add(2*time.Minute), Base.Add(time.Minute), Base.Add(3*time.Minute)))
	a := mkUser(t, s, "alice")
	b := mkUser(t, s, "bob")
	c := mkUser(t, s, "carol")

	m1 := send(t, s, a.ID, b.ID, "first id")
	m2 := send(t, s, b.ID, a.ID, "earlier timestamp")
	m3 := send(t, s, a.ID, b.ID, "last")
	send(t, s, a.ID, c.ID, "other pair")

	req.Greater(m2.ID, m1.ID)
	req.Greater(m3.ID, m2.ID)
	req.True(m1.Timestamp.Equal(Base.Add(2*time.Minute)), "store assigns the timestamp")

	ab, err := s.MessagesBetween(ctx, a.ID, b.ID)
	req.NoError(err)
	ba, err := s.MessagesBetween(ctx, b.ID, a.ID)
	req.NoError(err)

	ids := func(ms []domain.Message) []int64 {
		return lo.Map(ms, func(m domain.Message, _ int) int64 { return m.ID })
	}
	req.Equal([]int64{m2.ID, m1.ID, m3.ID}, ids(ab))
	req.Equal(ids(ab), ids(ba), "history is symmetric")

	for _, m := range ab {
		req.True(m.Involves(a.ID) && m.Involves(b.ID))
	}

	got, err := s.GetMessage(ctx, m3.ID)
	req.NoError(err)
	req.Equal("last", got.Content)
	req.Equal(a.ID, got.SenderID)
	req.Equal(b.ID, got.ReceiverID)
	req.True(got.Timestamp.Equal(m3.Timestamp))
}

func testTies(t *testing.T, newStore Factory) {
	req := require.New(t)
	s := newStore(t, Fixed(Base))
	a := mkUser(t, s, "alice")
	b := mkUser(t, s, "bob")

	var want []int64
	for i := range 5 {
		from, to := a.ID, b.ID
		if i%2 == 1 {
			from, to = to, from
		}
		want = append(want, send(t, s, from, to, "tie").ID)
	}
	msgs, err := s.MessagesBetween(context.Background(), b.ID, a.ID)
	req.NoError(err)
	req.Equal(want, lo.Map(msgs, func(m domain.Message, _ int) int64 { return m.ID }))
}

func testCorrespondents(t *testing.T, newStore Factory) {
	req := require.New(t)
	ctx := context.Background()
	s := newStore(t, nil)
	a := mkUser(t, s, "alice")
	b := mkUser(t, s, "bob")
	c := mkUser(t, s, "carol")
	d := mkUser(t, s, "dave")

	send(t, s, a.ID, c.ID, "1")
	send(t, s, b.ID, a.ID, "2")
	send(t, s, a.ID, b.ID, "3")
	send(t, s, c.ID, d.ID, "4")

	peers, err := s.Correspondents(ctx, a.ID)
	req.NoError(err)
	req.Equal([]int64{b.ID, c.ID}, peers, "distinct and ascending")

	peers, err = s.Correspondents(ctx, d.ID)
	req.NoError(err)
	req.Equal([]int64{c.ID}, peers, "receivers see their senders")
}

func testStats(t *testing.T, newStore Factory) {
	req := require.New(t)
	ctx := context.Background()
	s := newStore(t, nil)
	a := mkUser(t, s, "alice")
	b := mkUser(t, s, "bob")

	n, last, err := s.ConversationStats(ctx, a.ID, b.ID)
	req.NoError(err)
	req.Zero(n)
	req.Zero(last)

	send(t, s, a.ID, b.ID, "x")
	m := send(t, s, b.ID, a.ID, "y")

	n, last, err = s.ConversationStats(ctx, b.ID, a.ID)
	req.NoError(err)
	req.EqualValues(2, n)
	req.Equal(m.ID, last)
}

func testConcurrentIDs(t *testing.T, newStore Factory) {
	req := require.New(t)
	s := newStore(t, nil)
	a := mkUser(t, s, "alice")
	b := mkUser(t, s, "bob")

	const n = 40
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		ids  []int64
		errs []error
	)
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			from, to := a.ID, b.ID
			if i%2 == 0 {
				from, to = to, from
			}
			m, err := s.CreateMessage(context.Background(), from, to, "concurrent")
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			ids = append(ids, m.ID)
		}(i)
	}
	wg.Wait()
	req.Empty(errs)
	req.Len(lo.Uniq(ids), n, "ids must be unique")
	for _, id := range ids {
		req.Positive(id)
	}

	msgs, err := s.MessagesBetween(context.Background(), a.ID, b.ID)
	req.NoError(err)
	req.Len(msgs, n)
}

func testIdempotency(t *testing.T, newStore Factory) {
	req := require.New(t)
	ctx := context.Background()
	s := newStore(t, nil)
	now := time.Now().UTC()

	rec := domain.Idempotency{
		ID:        "rec-1",
		UserID:    7,
		Scope:     "/api/messages",
		Key:       "k1",
		MessageID: 42,
		Status:    201,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}
	req.NoError(s.SaveIdempotency(ctx, rec))
	req.ErrorIs(s.SaveIdempotency(ctx, rec), store.ErrDuplicate)

	other := rec
	other.ID = "rec-2"
	other.Scope = "/api/other"
	req.NoError(s.SaveIdempotency(ctx, other), "same key in another scope is distinct")

	got, err := s.GetIdempotency(ctx, 7, "/api/messages", "k1", now)
	req.NoError(err)
	req.EqualValues(42, got.MessageID)
	req.Equal(201, got.Status)

	_, err = s.GetIdempotency(ctx, 8, "/api/messages", "k1", now)
	req.ErrorIs(err, store.ErrNotFound)

	_, err = s.GetIdempotency(ctx, 7, "/api/messages", "k1", now.Add(2*time.Hour))
	req.ErrorIs(err, store.ErrNotFound, "expired records are invisible")

	purged, err := s.PurgeExpiredIdempotency(ctx, now)
	req.NoError(err)
	req.Zero(purged)

	purged, err = s.PurgeExpiredIdempotency(ctx, now.Add(2*time.Hour))
	req.NoError(err)
	req.EqualValues(2, purged)
}

func testReadBack(t *testing.T, newStore Factory) {
	req := require.New(t)
	ctx := context.Background()
	// Sub-microsecond components must not make the returned stamp disagree
	// with the stored one.
	s := newStore(t, Script(Base.Add(123456789*time.Nanosecond), Base.Add(123457001*time.Nanosecond)))
	a := mkUser(t, s, "alice")
	b := mkUser(t, s, "bob")

	sent := []*domain.Message{send(t, s, a.ID, b.ID, "ping"), send(t, s, b.ID, a.ID, "pong")}

	msgs, err := s.MessagesBetween(ctx, a.ID, b.ID)
	req.NoError(err)
	req.Len(msgs, 2)
	for i, m := range msgs {
		req.Equal(sent[i].ID, m.ID)
		req.True(sent[i].Timestamp.Equal(m.Timestamp), "created %v, read back %v", sent[i].Timestamp, m.Timestamp)
	}
	req.True(msgs[1].Timestamp.After(msgs[0].Timestamp), "distinct stamps stay ordered")

	got, err := s.GetMessage(ctx, sent[1].ID)
	req.NoError(err)
	req.True(sent[1].Timestamp.Equal(got.Timestamp))
}

func testIdempotencyResave(t *testing.T, newStore Factory) {
	req := require.New(t)
	ctx := context.Background()
	s := newStore(t, nil)
	now := time.Now().UTC().Truncate(time.Second)

	stale := domain.Idempotency{
		ID:        "rec-old",
		UserID:    7,
		Scope:     "/api/messages",
		Key:       "k1",
		MessageID: 1,
		Status:    201,
		CreatedAt: now.Add(-2 * time.Hour),
		ExpiresAt: now.Add(-time.Hour),
	}
	req.NoError(s.SaveIdempotency(ctx, stale))

	fresh := stale
	fresh.ID = "rec-new"
	fresh.MessageID = 2
	fresh.CreatedAt = now
	fresh.ExpiresAt = now.Add(time.Hour)
	req.NoError(s.SaveIdempotency(ctx, fresh), "an expired record must not block its key")

	got, err := s.GetIdempotency(ctx, 7, "/api/messages", "k1", now)
	req.NoError(err)
	req.EqualValues(2, got.MessageID)

	again := fresh
	again.ID = "rec-again"
	again.MessageID = 3
	again.CreatedAt = now.Add(time.Minute)
	req.ErrorIs(s.SaveIdempotency(ctx, again), store.ErrDuplicate, "a live record still wins")
}

func testCanceled(t *testing.T, newStore Factory) {
	req := require.New(t)
	s := newStore(t, nil)
	a := mkUser(t, s, "alice")
	b := mkUser(t, s, "bob")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.MessagesBetween(ctx, a.ID, b.ID)
	req.Error(err)
	req.True(errors.Is(err, context.Canceled), "got %v", err)
	req.False(errors.Is(err, store.ErrStorageUnavailable))
}
