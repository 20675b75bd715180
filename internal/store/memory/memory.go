// Package memory implements store.Store on process memory. It is the
// zero-dependency backend used in tests and as the fallback when a persistent
// backend cannot be opened. Nothing survives a restart.
//
// A single RWMutex guards all state, so id allocation (read-increment-write
// of the per-instance counters) is linearizable.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/tbourn/go-dm-backend/internal/domain"
	"github.com/tbourn/go-dm-backend/internal/store"
)

// Store is the in-memory backend.
type Store struct {
	mu sync.RWMutex

	users      map[int64]domain.User
	byUsername map[string]int64
	messages   map[int64]domain.Message
	idem       map[string]domain.Idempotency

	// pairs maps store.PairKey to message ids; peers maps a user to the set
	// of users they exchanged messages with.
	pairs map[string][]int64
	peers map[int64]map[int64]struct{}

	nextUserID    int64
	nextMessageID int64

	clock store.Clock
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the timestamp source for new messages.
func WithClock(c store.Clock) Option {
	return func(s *Store) {
		if c != nil {
			s.clock = c
		}
	}
}

// New returns an empty Store whose counters start at 1.
func New(opts ...Option) *Store {
	s := &Store{
		users:         make(map[int64]domain.User),
		byUsername:    make(map[string]int64),
		messages:      make(map[int64]domain.Message),
		pairs:         make(map[string][]int64),
		peers:         make(map[int64]map[int64]struct{}),
		idem:          make(map[string]domain.Idempotency),
		nextUserID:    1,
		nextMessageID: 1,
		clock:         store.SystemClock,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

var _ store.Store = (*Store)(nil)

func (s *Store) Backend() string { return "memory" }

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

func (s *Store) Close() error { return nil }

// ---- users ----

func (s *Store) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	return &u, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byUsername[username]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	u := s.users[id]
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, nu store.NewUser) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byUsername[nu.Username]; taken {
		return nil, store.ErrUsernameTaken
	}
	id := s.nextUserID
	s.nextUserID++
	u := domain.User{
		ID:             id,
		Username:       nu.Username,
		Name:           cloneStr(nu.Name),
		ProfilePicture: cloneStr(nu.ProfilePicture),
		PasswordHash:   nu.PasswordHash,
		IsOnline:       true,
	}
	s.users[id] = u
	s.byUsername[u.Username] = id
	return &u, nil
}

func (s *Store) UpdateUserOnlineStatus(ctx context.Context, id int64, online bool) (*domain.User, error) {
	return s.mutateUser(ctx, id, func(u *domain.User) { u.IsOnline = online })
}

func (s *Store) UpdateUserProfile(ctx context.Context, id int64, upd store.ProfileUpdate) (*domain.User, error) {
	return s.mutateUser(ctx, id, func(u *domain.User) {
		if upd.Name != nil {
			u.Name = cloneStr(upd.Name)
		}
		if upd.ProfilePicture != nil {
			u.ProfilePicture = cloneStr(upd.ProfilePicture)
		}
	})
}

func (s *Store) mutateUser(ctx context.Context, id int64, fn func(*domain.User)) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	fn(&u)
	s.users[id] = u
	return &u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := lo.Keys(s.users)
	sortInt64(ids)
	out := make([]domain.User, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.users[id])
	}
	return out, nil
}

// ---- messages ----

func (s *Store) CreateMessage(ctx context.Context, senderID, receiverID int64, content string) (*domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextMessageID
	s.nextMessageID++
	m := domain.Message{
		ID:         id,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		Timestamp:  s.clock(),
	}
	s.messages[id] = m
	k := store.PairKey(senderID, receiverID)
	s.pairs[k] = append(s.pairs[k], id)
	s.link(senderID, receiverID)
	s.link(receiverID, senderID)
	return &m, nil
}

func (s *Store) link(a, b int64) {
	set, ok := s.peers[a]
	if !ok {
		set = make(map[int64]struct{})
		s.peers[a] = set
	}
	set[b] = struct{}{}
}

func (s *Store) GetMessage(ctx context.Context, id int64) (*domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &m, nil
}

func (s *Store) MessagesBetween(ctx context.Context, a, b int64) ([]domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	ids := s.pairs[store.PairKey(a, b)]
	out := make([]domain.Message, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.messages[id])
	}
	s.mu.RUnlock()
	store.SortMessages(out)
	return out, nil
}

func (s *Store) Correspondents(ctx context.Context, userID int64) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	ids := lo.Keys(s.peers[userID])
	s.mu.RUnlock()
	ids = lo.Without(ids, userID)
	sortInt64(ids)
	return ids, nil
}

func (s *Store) ConversationStats(ctx context.Context, a, b int64) (int64, int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.pairs[store.PairKey(a, b)]
	if len(ids) == 0 {
		return 0, 0, nil
	}
	return int64(len(ids)), lo.Max(ids), nil
}

// ---- idempotency ----

func idemKey(userID int64, scope, key string) string {
	return strings.Join([]string{itoa(userID), scope, key}, "\x00")
}

func (s *Store) GetIdempotency(ctx context.Context, userID int64, scope, key string, now time.Time) (*domain.Idempotency, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.idem[idemKey(userID, scope, key)]
	if !ok || rec.Expired(now) {
		return nil, store.ErrNotFound
	}
	return &rec, nil
}

func (s *Store) SaveIdempotency(ctx context.Context, rec domain.Idempotency) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := idemKey(rec.UserID, rec.Scope, rec.Key)
	if prev, exists := s.idem[k]; exists && !prev.Expired(rec.CreatedAt) {
		return store.ErrDuplicate
	}
	s.idem[k] = rec
	return nil
}

func (s *Store) PurgeExpiredIdempotency(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, rec := range s.idem {
		if rec.Expired(now) {
			delete(s.idem, k)
			n++
		}
	}
	return n, nil
}
