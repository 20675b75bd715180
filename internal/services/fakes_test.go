package services

import (
	"context"
	"testing"
	"time"

	"github.com/tbourn/go-dm-backend/internal/domain"
	"github.com/tbourn/go-dm-backend/internal/store"
	"github.com/tbourn/go-dm-backend/internal/store/memory"
	"github.com/tbourn/go-dm-backend/internal/store/storetest"
)

// faultyStore wraps the in-memory store and injects failures per method.
type faultyStore struct {
	*memory.Store

	correspondentsErr error
	createErr         error
	getUserErr        map[int64]error
	historyErr        map[int64]error // keyed by the non-viewer side
	beforeHistory     func()
}

func newFaulty(clock store.Clock) *faultyStore {
	return &faultyStore{
		Store:      memory.New(memory.WithClock(clock)),
		getUserErr: map[int64]error{},
		historyErr: map[int64]error{},
	}
}

func (f *faultyStore) Correspondents(ctx context.Context, userID int64) ([]int64, error) {
	if f.correspondentsErr != nil {
		return nil, f.correspondentsErr
	}
	return f.Store.Correspondents(ctx, userID)
}

func (f *faultyStore) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	if err := f.getUserErr[id]; err != nil {
		return nil, err
	}
	return f.Store.GetUser(ctx, id)
}

func (f *faultyStore) MessagesBetween(ctx context.Context, a, b int64) ([]domain.Message, error) {
	if f.beforeHistory != nil {
		f.beforeHistory()
	}
	if err := f.historyErr[b]; err != nil {
		return nil, err
	}
	if err := f.historyErr[a]; err != nil {
		return nil, err
	}
	return f.Store.MessagesBetween(ctx, a, b)
}

func (f *faultyStore) CreateMessage(ctx context.Context, senderID, receiverID int64, content string) (*domain.Message, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.Store.CreateMessage(ctx, senderID, receiverID, content)
}

// at returns storetest.Base plus n minutes.
func at(n int) time.Time { return storetest.Base.Add(time.Duration(n) * time.Minute) }

func seedUser(t *testing.T, s store.UserStore, name string) *domain.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), store.NewUser{Username: name, PasswordHash: "x"})
	if err != nil {
		t.Fatalf("seed user %s: %v", name, err)
	}
	return u
}

func seedMsg(t *testing.T, s store.MessageStore, from, to int64, content string) *domain.Message {
	t.Helper()
	m, err := s.CreateMessage(context.Background(), from, to, content)
	if err != nil {
		t.Fatalf("seed message: %v", err)
	}
	return m
}
