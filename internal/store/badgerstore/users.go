package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/dgraph-io/badger/v4"

	"github.com/tbourn/go-dm-backend/internal/domain"
	"github.com/tbourn/go-dm-backend/internal/store"
)

func (s *Store) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	var rec userRecord
	err := s.view(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, userKey(id), &rec)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, store.ErrUserNotFound
	}
	if err != nil {
		return nil, store.Unavailable("get user", err)
	}
	u := rec.toUser()
	return &u, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	var rec userRecord
	err := s.view(ctx, func(txn *badger.Txn) error {
		id, err := lookupUsername(txn, username)
		if err != nil {
			return err
		}
		return getJSON(txn, userKey(id), &rec)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, store.ErrUserNotFound
	}
	if err != nil {
		return nil, store.Unavailable("get user by username", err)
	}
	u := rec.toUser()
	return &u, nil
}

func lookupUsername(txn *badger.Txn, username string) (int64, error) {
	item, err := txn.Get(usernameKey(username))
	if err != nil {
		return 0, err
	}
	var id int64
	err = item.Value(func(val []byte) error {
		var perr error
		id, perr = strconv.ParseInt(string(val), 10, 64)
		return perr
	})
	return id, err
}

// CreateUser claims the username and writes the user in one transaction.
// Concurrent registrations of the same name conflict in badger and the loser
// observes the winner's claim on retry.
func (s *Store) CreateUser(ctx context.Context, nu store.NewUser) (*domain.User, error) {
	var u domain.User
	err := s.update(ctx, func(txn *badger.Txn) error {
		if _, err := txn.Get(usernameKey(nu.Username)); err == nil {
			return store.ErrUsernameTaken
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		id, err := nextID(s.userSeq)
		if err != nil {
			return err
		}
		u = domain.User{
			ID:             id,
			Username:       nu.Username,
			Name:           nu.Name,
			ProfilePicture: nu.ProfilePicture,
			PasswordHash:   nu.PasswordHash,
			IsOnline:       true,
		}
		if err := txn.Set(usernameKey(u.Username), []byte(strconv.FormatInt(id, 10))); err != nil {
			return err
		}
		return setJSON(txn, userKey(id), fromUser(u))
	})
	if errors.Is(err, store.ErrUsernameTaken) {
		return nil, store.ErrUsernameTaken
	}
	if err != nil {
		return nil, store.Unavailable("create user", err)
	}
	return &u, nil
}

func (s *Store) UpdateUserOnlineStatus(ctx context.Context, id int64, online bool) (*domain.User, error) {
	return s.mutateUser(ctx, id, func(r *userRecord) { r.IsOnline = online })
}

func (s *Store) UpdateUserProfile(ctx context.Context, id int64, upd store.ProfileUpdate) (*domain.User, error) {
	return s.mutateUser(ctx, id, func(r *userRecord) {
		if upd.Name != nil {
			v := *upd.Name
			r.Name = &v
		}
		if upd.ProfilePicture != nil {
			v := *upd.ProfilePicture
			r.ProfilePicture = &v
		}
	})
}

func (s *Store) mutateUser(ctx context.Context, id int64, fn func(*userRecord)) (*domain.User, error) {
	var rec userRecord
	err := s.update(ctx, func(txn *badger.Txn) error {
		if err := getJSON(txn, userKey(id), &rec); err != nil {
			return err
		}
		fn(&rec)
		return setJSON(txn, userKey(id), rec)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, store.ErrUserNotFound
	}
	if err != nil {
		return nil, store.Unavailable("update user", err)
	}
	u := rec.toUser()
	return &u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	users := make([]domain.User, 0)
	err := s.view(ctx, func(txn *badger.Txn) error {
		prefix := []byte("user:")
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true, PrefetchSize: 100})
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec userRecord
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return err
			}
			users = append(users, rec.toUser())
		}
		return nil
	})
	if err != nil {
		return nil, store.Unavailable("list users", err)
	}
	return users, nil
}
