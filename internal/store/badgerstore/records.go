package badgerstore

import (
	"encoding/json"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tbourn/go-dm-backend/internal/domain"
)

// userRecord is the on-disk form of domain.User. domain.User hides the
// password hash from JSON, so it cannot be stored directly.
type userRecord struct {
	ID             int64   `json:"id"`
	Username       string  `json:"username"`
	Name           *string `json:"name,omitempty"`
	ProfilePicture *string `json:"profilePicture,omitempty"`
	PasswordHash   string  `json:"passwordHash"`
	IsOnline       bool    `json:"isOnline"`
}

func fromUser(u domain.User) userRecord {
	return userRecord{
		ID:             u.ID,
		Username:       u.Username,
		Name:           u.Name,
		ProfilePicture: u.ProfilePicture,
		PasswordHash:   u.PasswordHash,
		IsOnline:       u.IsOnline,
	}
}

func (r userRecord) toUser() domain.User {
	return domain.User{
		ID:             r.ID,
		Username:       r.Username,
		Name:           r.Name,
		ProfilePicture: r.ProfilePicture,
		PasswordHash:   r.PasswordHash,
		IsOnline:       r.IsOnline,
	}
}

type messageRecord struct {
	ID         int64  `json:"id"`
	SenderID   int64  `json:"senderId"`
	ReceiverID int64  `json:"receiverId"`
	Content    string `json:"content"`
	At         int64  `json:"at"` // unix nanoseconds, UTC
}

func fromMessage(m domain.Message) messageRecord {
	return messageRecord{
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Content:    m.Content,
		At:         m.Timestamp.UnixNano(),
	}
}

func (r messageRecord) toMessage() domain.Message {
	return domain.Message{
		ID:         r.ID,
		SenderID:   r.SenderID,
		ReceiverID: r.ReceiverID,
		Content:    r.Content,
		Timestamp:  time.Unix(0, r.At).UTC(),
	}
}

type idempotencyRecord struct {
	ID        string `json:"id"`
	UserID    int64  `json:"userId"`
	Scope     string `json:"scope"`
	Key       string `json:"key"`
	MessageID int64  `json:"messageId"`
	Status    int    `json:"status"`
	CreatedAt int64  `json:"createdAt"`
	ExpiresAt int64  `json:"expiresAt"`
}

func fromIdempotency(r domain.Idempotency) idempotencyRecord {
	return idempotencyRecord{
		ID:        r.ID,
		UserID:    r.UserID,
		Scope:     r.Scope,
		Key:       r.Key,
		MessageID: r.MessageID,
		Status:    r.Status,
		CreatedAt: r.CreatedAt.UnixNano(),
		ExpiresAt: r.ExpiresAt.UnixNano(),
	}
}

func (r idempotencyRecord) toIdempotency() domain.Idempotency {
	return domain.Idempotency{
		ID:        r.ID,
		UserID:    r.UserID,
		Scope:     r.Scope,
		Key:       r.Key,
		MessageID: r.MessageID,
		Status:    r.Status,
		CreatedAt: time.Unix(0, r.CreatedAt).UTC(),
		ExpiresAt: time.Unix(0, r.ExpiresAt).UTC(),
	}
}

// getJSON loads key into v. It returns badger.ErrKeyNotFound unchanged.
func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, b)
}
