// Package services – MessageService
//
// This file implements sending and reading direct messages. Send validates
// the request fully (self-send, blank or oversized content, unknown receiver)
// before anything is written, so a rejected message leaves no trace.
//
// Observability: public methods are OpenTelemetry-instrumented with the
// participant ids as span attributes.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-dm-backend/internal/domain"
	"github.com/tbourn/go-dm-backend/internal/store"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultMaxContentRunes caps message content when no limit is configured.
const DefaultMaxContentRunes = 4000

// MessageService coordinates message persistence and history reads.
type MessageService struct {
	Users    store.UserStore
	Messages store.MessageStore

	// MaxContentRunes caps content length; <= 0 uses DefaultMaxContentRunes.
	MaxContentRunes int
}

// NewMessageService constructs a MessageService.
func NewMessageService(users store.UserStore, msgs store.MessageStore, maxRunes int) *MessageService {
	return &MessageService{Users: users, Messages: msgs, MaxContentRunes: maxRunes}
}

func (s *MessageService) maxRunes() int {
	if s.MaxContentRunes <= 0 {
		return DefaultMaxContentRunes
	}
	return s.MaxContentRunes
}

// Send stores a message from senderID to receiverID. Content is trimmed of
// surrounding whitespace before validation and storage.
func (s *MessageService) Send(ctx context.Context, senderID, receiverID int64, content string) (*domain.Message, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "Send",
		trace.WithAttributes(
			attribute.Int64("sender.id", senderID),
			attribute.Int64("receiver.id", receiverID),
		),
	)
	defer span.End()

	if senderID == receiverID {
		return nil, ErrSelfMessage
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > s.maxRunes() {
		return nil, ErrContentTooLong
	}

	if _, err := s.Users.GetUser(ctx, receiverID); err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, ErrInvalidRecipient
		}
		return nil, fmt.Errorf("resolve receiver: %w", err)
	}

	m, err := s.Messages.CreateMessage(ctx, senderID, receiverID, content)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("send message: %w", err)
	}
	messagesSent.Inc()
	span.SetAttributes(attribute.Int64("message.id", m.ID))
	zerolog.Ctx(ctx).Debug().
		Int64("message_id", m.ID).
		Int64("sender_id", senderID).
		Int64("receiver_id", receiverID).
		Msg("message stored")
	return m, nil
}

// History returns every message between viewerID and peerID, oldest first.
// An unknown peer simply has no history.
func (s *MessageService) History(ctx context.Context, viewerID, peerID int64) ([]domain.Message, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "History",
		trace.WithAttributes(
			attribute.Int64("user.id", viewerID),
			attribute.Int64("peer.id", peerID),
		),
	)
	defer span.End()

	msgs, err := s.Messages.MessagesBetween(ctx, viewerID, peerID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("message history: %w", err)
	}
	span.SetAttributes(attribute.Int("message.count", len(msgs)))
	return msgs, nil
}

// Stats returns the message count and highest message id of a conversation,
// for conditional responses.
func (s *MessageService) Stats(ctx context.Context, a, b int64) (count, lastID int64, err error) {
	count, lastID, err = s.Messages.ConversationStats(ctx, a, b)
	if err != nil {
		return 0, 0, fmt.Errorf("conversation stats: %w", err)
	}
	return count, lastID, nil
}

// Get returns a message visible to viewerID. Messages the viewer did not
// send or receive are reported as store.ErrNotFound.
func (s *MessageService) Get(ctx context.Context, viewerID, id int64) (*domain.Message, error) {
	m, err := s.Messages.GetMessage(ctx, id)
	if err != nil {
		return nil, err
	}
	if !m.Involves(viewerID) {
		return nil, store.ErrNotFound
	}
	return m, nil
}
