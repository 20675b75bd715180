package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tbourn/go-dm-backend/internal/domain"
	"github.com/tbourn/go-dm-backend/internal/store"
)

func (s *Store) GetIdempotency(ctx context.Context, userID int64, scope, key string, now time.Time) (*domain.Idempotency, error) {
	var rec idempotencyRecord
	err := s.view(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, idemKey(userID, scope, key), &rec)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, store.Unavailable("get idempotency", err)
	}
	out := rec.toIdempotency()
	if out.Expired(now) {
		return nil, store.ErrNotFound
	}
	return &out, nil
}

// SaveIdempotency stores rec with a badger TTL matching ExpiresAt, so expired
// records disappear even if the purge job never runs. A record that expired
// at or before rec.CreatedAt is replaced.
func (s *Store) SaveIdempotency(ctx context.Context, rec domain.Idempotency) error {
	k := idemKey(rec.UserID, rec.Scope, rec.Key)
	err := s.update(ctx, func(txn *badger.Txn) error {
		var prev idempotencyRecord
		switch err := getJSON(txn, k, &prev); {
		case err == nil:
			if !prev.toIdempotency().Expired(rec.CreatedAt) {
				return store.ErrDuplicate
			}
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		b, err := json.Marshal(fromIdempotency(rec))
		if err != nil {
			return err
		}
		e := badger.NewEntry(k, b)
		if ttl := time.Until(rec.ExpiresAt); ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
	if errors.Is(err, store.ErrDuplicate) {
		return store.ErrDuplicate
	}
	if err != nil {
		return store.Unavailable("save idempotency", err)
	}
	return nil
}

// PurgeExpiredIdempotency deletes records whose ExpiresAt is at or before now.
func (s *Store) PurgeExpiredIdempotency(ctx context.Context, now time.Time) (int64, error) {
	var expired [][]byte
	err := s.view(ctx, func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: idemPrefix, PrefetchValues: true, PrefetchSize: 100})
		defer it.Close()
		for it.Seek(idemPrefix); it.ValidForPrefix(idemPrefix); it.Next() {
			item := it.Item()
			var rec idempotencyRecord
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			if rec.toIdempotency().Expired(now) {
				expired = append(expired, item.KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil {
		return 0, store.Unavailable("purge idempotency", err)
	}
	if len(expired) == 0 {
		return 0, nil
	}

	wb := s.db.NewWriteBatch()
	for _, k := range expired {
		if err := wb.Delete(k); err != nil {
			wb.Cancel()
			return 0, store.Unavailable("purge idempotency", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, store.Unavailable("purge idempotency", err)
	}
	return int64(len(expired)), nil
}
