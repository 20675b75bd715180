package sqlstore

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-dm-backend/internal/domain"
	"github.com/tbourn/go-dm-backend/internal/store"
)

// Store is the GORM-backed store.Store.
type Store struct {
	db     *gorm.DB
	driver string
	clock  store.Clock
}

var _ store.Store = (*Store)(nil)

// New wraps an already opened and migrated *gorm.DB.
func New(db *gorm.DB, driver string, clock store.Clock) *Store {
	if clock == nil {
		clock = store.SystemClock
	}
	// Stamps are cut to the column precision so the message returned by
	// CreateMessage equals what a later read sees.
	stamp := func() time.Time { return clock().UTC().Truncate(store.TimestampPrecision) }
	return &Store{db: db, driver: driver, clock: stamp}
}

// DB exposes the underlying handle for tests and health probes.
func (s *Store) DB() *gorm.DB { return s.db }

func (s *Store) Backend() string { return s.driver }

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return store.Unavailable("ping", err)
	}
	return store.Unavailable("ping", sqlDB.PingContext(ctx))
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func isUnique(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) || store.IsUniqueViolation(err)
}

// ---- users ----

func (s *Store) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	var u domain.User
	err := s.db.WithContext(ctx).First(&u, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, store.ErrUserNotFound
	}
	if err != nil {
		return nil, store.Unavailable("get user", err)
	}
	return &u, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	var u domain.User
	err := s.db.WithContext(ctx).Where(&domain.User{Username: username}).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, store.ErrUserNotFound
	}
	if err != nil {
		return nil, store.Unavailable("get user by username", err)
	}
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, nu store.NewUser) (*domain.User, error) {
	u := &domain.User{
		Username:       nu.Username,
		Name:           nu.Name,
		ProfilePicture: nu.ProfilePicture,
		PasswordHash:   nu.PasswordHash,
		IsOnline:       true,
	}
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		if isUnique(err) {
			return nil, store.ErrUsernameTaken
		}
		return nil, store.Unavailable("create user", err)
	}
	return u, nil
}

func (s *Store) UpdateUserOnlineStatus(ctx context.Context, id int64, online bool) (*domain.User, error) {
	return s.updateUser(ctx, id, map[string]any{"is_online": online})
}

func (s *Store) UpdateUserProfile(ctx context.Context, id int64, upd store.ProfileUpdate) (*domain.User, error) {
	cols := map[string]any{}
	if upd.Name != nil {
		cols["name"] = *upd.Name
	}
	if upd.ProfilePicture != nil {
		cols["profile_picture"] = *upd.ProfilePicture
	}
	if len(cols) == 0 {
		return s.GetUser(ctx, id)
	}
	return s.updateUser(ctx, id, cols)
}

func (s *Store) updateUser(ctx context.Context, id int64, cols map[string]any) (*domain.User, error) {
	var out domain.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.User{}).Where("id = ?", id).Updates(cols)
		if res.Error != nil {
			return res.Error
		}
		return tx.First(&out, "id = ?", id).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, store.ErrUserNotFound
	}
	if err != nil {
		return nil, store.Unavailable("update user", err)
	}
	return &out, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	var users []domain.User
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&users).Error; err != nil {
		return nil, store.Unavailable("list users", err)
	}
	return users, nil
}

// ---- messages ----

func (s *Store) CreateMessage(ctx context.Context, senderID, receiverID int64, content string) (*domain.Message, error) {
	m := &domain.Message{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		Timestamp:  s.clock(),
	}
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(m).Error; err != nil {
		return nil, store.Unavailable("create message", err)
	}
	return m, nil
}

func (s *Store) GetMessage(ctx context.Context, id int64) (*domain.Message, error) {
	var m domain.Message
	err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, store.Unavailable("get message", err)
	}
	return &m, nil
}

// between scopes a query to the messages exchanged by a and b in either
// direction.
func between(a, b int64) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(
			"(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)",
			a, b, b, a,
		)
	}
}

func (s *Store) MessagesBetween(ctx context.Context, a, b int64) ([]domain.Message, error) {
	msgs := make([]domain.Message, 0)
	err := s.db.WithContext(ctx).
		Scopes(between(a, b)).
		Order("timestamp ASC").Order("id ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, store.Unavailable("messages between", err)
	}
	return msgs, nil
}

func (s *Store) Correspondents(ctx context.Context, userID int64) ([]int64, error) {
	ids := make([]int64, 0)
	err := s.db.WithContext(ctx).Raw(`
SELECT peer FROM (
	SELECT receiver_id AS peer FROM messages WHERE sender_id = ?
	UNION
	SELECT sender_id AS peer FROM messages WHERE receiver_id = ?
) p
WHERE peer <> ?
ORDER BY peer ASC`, userID, userID, userID).Scan(&ids).Error
	if err != nil {
		return nil, store.Unavailable("correspondents", err)
	}
	return ids, nil
}

func (s *Store) ConversationStats(ctx context.Context, a, b int64) (int64, int64, error) {
	var row struct {
		Count  int64
		LastID int64
	}
	err := s.db.WithContext(ctx).
		Model(&domain.Message{}).
		Select("COUNT(*) AS count, COALESCE(MAX(id), 0) AS last_id").
		Scopes(between(a, b)).
		Scan(&row).Error
	if err != nil {
		return 0, 0, store.Unavailable("conversation stats", err)
	}
	return row.Count, row.LastID, nil
}
