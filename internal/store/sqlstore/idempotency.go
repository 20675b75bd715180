package sqlstore

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-dm-backend/internal/domain"
	"github.com/tbourn/go-dm-backend/internal/store"
)

// GetIdempotency returns a non-expired record or store.ErrNotFound. Struct
// conditions are used so GORM quotes the "key" column, which is reserved in
// MySQL.
func (s *Store) GetIdempotency(ctx context.Context, userID int64, scope, key string, now time.Time) (*domain.Idempotency, error) {
	var rec domain.Idempotency
	err := s.db.WithContext(ctx).
		Where(&domain.Idempotency{UserID: userID, Scope: scope, Key: key}).
		Where("expires_at > ?", now).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, store.Unavailable("get idempotency", err)
	}
	return &rec, nil
}

// SaveIdempotency inserts rec and returns store.ErrDuplicate on unique
// violation. A record for the same key that expired at or before
// rec.CreatedAt is removed first, in the same transaction, so a key can be
// reused once its TTL has passed even if the purge job has not run yet.
func (s *Store) SaveIdempotency(ctx context.Context, rec domain.Idempotency) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where(&domain.Idempotency{UserID: rec.UserID, Scope: rec.Scope, Key: rec.Key}).
			Where("expires_at <= ?", rec.CreatedAt).
			Delete(&domain.Idempotency{}).Error; err != nil {
			return err
		}
		return tx.Create(&rec).Error
	})
	if err != nil {
		if isUnique(err) {
			return store.ErrDuplicate
		}
		return store.Unavailable("save idempotency", err)
	}
	return nil
}

func (s *Store) PurgeExpiredIdempotency(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&domain.Idempotency{})
	if res.Error != nil {
		return 0, store.Unavailable("purge idempotency", res.Error)
	}
	return res.RowsAffected, nil
}
