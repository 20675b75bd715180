// Package services – ChatService
//
// This file implements the chat aggregator: for a requesting user it derives
// one summary row per correspondent (last message, unread count, current
// profile of the other side) and sorts the rows by recency. Nothing is
// stored; every call recomputes from the message log.
//
// Failure model:
//   - Listing correspondents failing is fatal and returned wrapped.
//   - A correspondent whose user record is gone, or whose history cannot be
//     read, is left out of the result and counted in
//     dm_chat_list_omitted_total.
//   - Cancelling ctx aborts the fan-out and returns the context error.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/tbourn/go-dm-backend/internal/domain"
	"github.com/tbourn/go-dm-backend/internal/store"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultAggregateConcurrency bounds per-correspondent lookups in flight.
const DefaultAggregateConcurrency = 8

// ChatService computes chat lists.
type ChatService struct {
	Users    store.UserStore
	Messages store.MessageStore

	// Concurrency caps parallel correspondent lookups; <= 0 uses
	// DefaultAggregateConcurrency.
	Concurrency int
}

// NewChatService constructs a ChatService.
func NewChatService(users store.UserStore, msgs store.MessageStore, concurrency int) *ChatService {
	return &ChatService{Users: users, Messages: msgs, Concurrency: concurrency}
}

// List returns viewerID's chats, most recent first.
func (s *ChatService) List(ctx context.Context, viewerID int64) ([]domain.Chat, error) {
	tr := otel.Tracer("services/ChatService")
	ctx, span := tr.Start(ctx, "List",
		trace.WithAttributes(attribute.Int64("user.id", viewerID)),
	)
	defer span.End()

	start := time.Now()
	defer func() { chatListDuration.Observe(time.Since(start).Seconds()) }()

	peers, err := s.Messages.Correspondents(ctx, viewerID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "correspondents")
		return nil, fmt.Errorf("list chats: %w", err)
	}
	span.SetAttributes(attribute.Int("chat.correspondents", len(peers)))
	if len(peers) == 0 {
		return []domain.Chat{}, nil
	}

	limit := s.Concurrency
	if limit <= 0 {
		limit = DefaultAggregateConcurrency
	}

	// Each slot is written by exactly one goroutine.
	rows := make([]*domain.Chat, len(peers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, peerID := range peers {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			chat, err := s.summarize(gctx, viewerID, peerID)
			if err != nil {
				return err
			}
			rows[i] = chat
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	chats := lo.FilterMap(rows, func(c *domain.Chat, _ int) (domain.Chat, bool) {
		if c == nil {
			return domain.Chat{}, false
		}
		return *c, true
	})
	SortChats(chats)
	span.SetAttributes(attribute.Int("chat.count", len(chats)))
	return chats, nil
}

// summarize resolves one correspondent. It returns (nil, nil) when the
// correspondent must be omitted and an error only for context cancellation.
func (s *ChatService) summarize(ctx context.Context, viewerID, peerID int64) (*domain.Chat, error) {
	lg := zerolog.Ctx(ctx).With().
		Int64("user_id", viewerID).
		Int64("peer_id", peerID).
		Logger()

	peer, err := s.Users.GetUser(ctx, peerID)
	switch {
	case isContextErr(err):
		return nil, err
	case errors.Is(err, store.ErrUserNotFound):
		chatListOmitted.WithLabelValues(omitMissingUser).Inc()
		lg.Debug().Msg("correspondent has no user record; omitted")
		return nil, nil
	case err != nil:
		chatListOmitted.WithLabelValues(omitUserLookup).Inc()
		lg.Warn().Err(err).Msg("correspondent lookup failed; omitted")
		return nil, nil
	}

	history, err := s.Messages.MessagesBetween(ctx, viewerID, peerID)
	if isContextErr(err) {
		return nil, err
	}
	if err != nil {
		chatListOmitted.WithLabelValues(omitHistoryLookup).Inc()
		lg.Warn().Err(err).Msg("history lookup failed; omitted")
		return nil, nil
	}

	chat, ok := Summarize(viewerID, *peer, history)
	if !ok {
		return nil, nil
	}
	return &chat, nil
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
