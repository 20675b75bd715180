// Package domain defines the persistence models for users and direct
// messages, plus the derived Chat projection. The structs are mapped with GORM
// by the SQL backend and encoded as JSON by the key-value backend and the HTTP
// layer, so the JSON names follow the public wire format.
package domain

import "time"

// User is a registered account.
//
// Fields:
//   - ID: positive, store-allocated, immutable.
//   - Username: unique, lowercase, 3–30 chars of [a-z0-9_].
//   - Name / ProfilePicture: optional display attributes (nil when unset).
//   - PasswordHash: bcrypt hash; never serialized.
//   - IsOnline: presence flag maintained by login/logout.
type User struct {
	ID             int64   `json:"id"             gorm:"primaryKey;autoIncrement"`
	Username       string  `json:"username"       gorm:"type:varchar(30);not null;uniqueIndex:ux_users_username"`
	Name           *string `json:"name"           gorm:"type:varchar(255)"`
	ProfilePicture *string `json:"profilePicture" gorm:"type:text"`
	PasswordHash   string  `json:"-"              gorm:"type:varchar(255);not null"`
	IsOnline       bool    `json:"isOnline"       gorm:"not null;default:false"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Message is a single directed message between two users. Messages are
// immutable once created.
//
// The composite indexes serve the two access patterns of the store: history
// by participant pair and correspondent discovery by either side.
type Message struct {
	ID         int64     `json:"id"         gorm:"primaryKey;autoIncrement"`
	SenderID   int64     `json:"senderId"   gorm:"not null;index:idx_messages_sender,priority:1"`
	ReceiverID int64     `json:"receiverId" gorm:"not null;index:idx_messages_receiver,priority:1"`
	Content    string    `json:"content"    gorm:"type:text;not null"`
	Timestamp  time.Time `json:"timestamp"  gorm:"not null;precision:6;index:idx_messages_sender,priority:2;index:idx_messages_receiver,priority:2"`

	Sender   User `json:"-" gorm:"foreignKey:SenderID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
	Receiver User `json:"-" gorm:"foreignKey:ReceiverID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// Involves reports whether userID is the sender or the receiver of m.
func (m Message) Involves(userID int64) bool {
	return m.SenderID == userID || m.ReceiverID == userID
}

// Chat is the per-correspondent summary shown in a chat list. It is computed
// on every read and never stored.
type Chat struct {
	ID             int64     `json:"id"`
	Username       string    `json:"username"`
	Name           *string   `json:"name"`
	ProfilePicture *string   `json:"profilePicture"`
	IsOnline       bool      `json:"isOnline"`
	LastMessage    string    `json:"lastMessage"`
	Timestamp      time.Time `json:"timestamp"`
	Unread         int       `json:"unread"`

	// LastMessageID orders chats whose last messages share a timestamp.
	LastMessageID int64 `json:"-"`
}
