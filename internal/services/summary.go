package services

import (
	"sort"
	"strings"

	"github.com/samber/lo"
	"golang.org/x/text/cases"

	"github.com/tbourn/go-dm-backend/internal/domain"
)

// Summarize builds the chat row viewerID sees for peer, given the pair's full
// history ordered by (timestamp, id). It returns false for an empty history.
//
// Unread rule: let L be the viewer's most recent sent message. With L, unread
// counts received messages strictly newer than L; without L, it counts every
// received message.
func Summarize(viewerID int64, peer domain.User, history []domain.Message) (domain.Chat, bool) {
	if len(history) == 0 {
		return domain.Chat{}, false
	}
	last := history[len(history)-1]

	lastSent, _, sent := lo.FindLastIndexOf(history, func(m domain.Message) bool {
		return m.SenderID == viewerID
	})
	unread := lo.CountBy(history, func(m domain.Message) bool {
		if m.ReceiverID != viewerID {
			return false
		}
		return !sent || m.Timestamp.After(lastSent.Timestamp)
	})

	return domain.Chat{
		ID:             peer.ID,
		Username:       peer.Username,
		Name:           peer.Name,
		ProfilePicture: peer.ProfilePicture,
		IsOnline:       peer.IsOnline,
		LastMessage:    last.Content,
		Timestamp:      last.Timestamp,
		Unread:         unread,
		LastMessageID:  last.ID,
	}, true
}

// SortChats orders chats most recent first. Equal timestamps fall back to the
// newer last message, then to the lower correspondent id.
func SortChats(chats []domain.Chat) {
	sort.SliceStable(chats, func(i, j int) bool {
		a, b := chats[i], chats[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.After(b.Timestamp)
		}
		if a.LastMessageID != b.LastMessageID {
			return a.LastMessageID > b.LastMessageID
		}
		return a.ID < b.ID
	})
}

// FilterChats keeps chats whose username contains q, ignoring case. A blank q
// keeps everything.
func FilterChats(chats []domain.Chat, q string) []domain.Chat {
	q = strings.TrimSpace(q)
	if q == "" {
		return chats
	}
	fold := cases.Fold()
	needle := fold.String(q)
	return lo.Filter(chats, func(c domain.Chat, _ int) bool {
		return strings.Contains(fold.String(c.Username), needle)
	})
}
