package badgerstore

import (
	"context"
	"errors"
	"strconv"

	"github.com/dgraph-io/badger/v4"

	"github.com/tbourn/go-dm-backend/internal/domain"
	"github.com/tbourn/go-dm-backend/internal/store"
)

// CreateMessage writes the message and both indexes atomically.
func (s *Store) CreateMessage(ctx context.Context, senderID, receiverID int64, content string) (*domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id, err := nextID(s.msgSeq)
	if err != nil {
		return nil, store.Unavailable("create message", err)
	}
	m := domain.Message{
		ID:         id,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		Timestamp:  s.clock(),
	}
	err = s.update(ctx, func(txn *badger.Txn) error {
		if err := setJSON(txn, msgKey(id), fromMessage(m)); err != nil {
			return err
		}
		if err := txn.Set(pairKey(senderID, receiverID, id), nil); err != nil {
			return err
		}
		if err := txn.Set(peerKey(senderID, receiverID), nil); err != nil {
			return err
		}
		return txn.Set(peerKey(receiverID, senderID), nil)
	})
	if err != nil {
		return nil, store.Unavailable("create message", err)
	}
	// Round-trip through the record so the returned timestamp has the same
	// precision as what later reads observe.
	out := fromMessage(m).toMessage()
	return &out, nil
}

func (s *Store) GetMessage(ctx context.Context, id int64) (*domain.Message, error) {
	var rec messageRecord
	err := s.view(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, msgKey(id), &rec)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, store.Unavailable("get message", err)
	}
	m := rec.toMessage()
	return &m, nil
}

// pairIDs returns the message ids indexed under the (a, b) pair in id order.
func pairIDs(txn *badger.Txn, a, b int64) ([]int64, error) {
	prefix := pairPrefix(a, b)
	it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
	defer it.Close()
	var ids []int64
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		id, err := strconv.ParseInt(string(it.Item().Key()[len(prefix):]), 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Store) MessagesBetween(ctx context.Context, a, b int64) ([]domain.Message, error) {
	msgs := make([]domain.Message, 0)
	err := s.view(ctx, func(txn *badger.Txn) error {
		ids, err := pairIDs(txn, a, b)
		if err != nil {
			return err
		}
		for _, id := range ids {
			var rec messageRecord
			if err := getJSON(txn, msgKey(id), &rec); err != nil {
				return err
			}
			msgs = append(msgs, rec.toMessage())
		}
		return nil
	})
	if err != nil {
		return nil, store.Unavailable("messages between", err)
	}
	store.SortMessages(msgs)
	return msgs, nil
}

func (s *Store) Correspondents(ctx context.Context, userID int64) ([]int64, error) {
	ids := make([]int64, 0)
	err := s.view(ctx, func(txn *badger.Txn) error {
		prefix := peerPrefix(userID)
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			id, err := strconv.ParseInt(string(it.Item().Key()[len(prefix):]), 10, 64)
			if err != nil {
				return err
			}
			if id != userID {
				ids = append(ids, id)
			}
		}
		return nil
	})
	if err != nil {
		return nil, store.Unavailable("correspondents", err)
	}
	return ids, nil
}

func (s *Store) ConversationStats(ctx context.Context, a, b int64) (int64, int64, error) {
	var ids []int64
	err := s.view(ctx, func(txn *badger.Txn) error {
		var err error
		ids, err = pairIDs(txn, a, b)
		return err
	})
	if err != nil {
		return 0, 0, store.Unavailable("conversation stats", err)
	}
	if len(ids) == 0 {
		return 0, 0, nil
	}
	return int64(len(ids)), ids[len(ids)-1], nil
}
