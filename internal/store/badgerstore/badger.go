// Package badgerstore implements store.Store on an embedded BadgerDB.
//
// Key layout (all integers zero-padded to 20 digits so lexicographic order is
// numeric order):
//
//	user:{id}                   -> userRecord (JSON)
//	username:{username}         -> {id}
//	msg:{id}                    -> messageRecord (JSON)
//	pair:{lo}_{hi}:{msgID}      -> empty, history index per participant pair
//	peer:{user}:{correspondent} -> empty, correspondent index
//	idem:{user}\x00{scope}\x00{key} -> idempotencyRecord (JSON, TTL)
//
// Ids are leased from badger Sequences, which hand out strictly increasing
// values to concurrent callers.
package badgerstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-dm-backend/internal/store"
)

const (
	seqBandwidth = 100
	// maxTxnRetries bounds optimistic retries on badger.ErrConflict.
	maxTxnRetries = 8
)

// Store is the badger-backed store.Store.
type Store struct {
	db       *badger.DB
	userSeq  *badger.Sequence
	msgSeq   *badger.Sequence
	clock    store.Clock
	inMemory bool
}

var _ store.Store = (*Store)(nil)

// Options tune how the database is opened.
type Options struct {
	// InMemory keeps everything in RAM; Path is ignored.
	InMemory bool
	// Clock stamps new messages. Defaults to store.SystemClock.
	Clock store.Clock
}

// Open opens (or creates) the database under path.
func Open(path string, opts Options) (*Store, error) {
	if opts.InMemory {
		path = ""
	}
	bo := badger.DefaultOptions(path).
		WithInMemory(opts.InMemory).
		WithLogger(badgerLogger{}).
		WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(bo)
	if err != nil {
		return nil, store.Unavailable("badger open", err)
	}

	userSeq, err := db.GetSequence([]byte("seq:user"), seqBandwidth)
	if err != nil {
		_ = db.Close()
		return nil, store.Unavailable("badger user sequence", err)
	}
	msgSeq, err := db.GetSequence([]byte("seq:msg"), seqBandwidth)
	if err != nil {
		_ = userSeq.Release()
		_ = db.Close()
		return nil, store.Unavailable("badger message sequence", err)
	}

	clock := opts.Clock
	if clock == nil {
		clock = store.SystemClock
	}
	return &Store{
		db:       db,
		userSeq:  userSeq,
		msgSeq:   msgSeq,
		clock:    clock,
		inMemory: opts.InMemory,
	}, nil
}

func (s *Store) Backend() string { return "badger" }

func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.db.IsClosed() {
		return store.Unavailable("ping", errors.New("badger closed"))
	}
	return nil
}

// Close releases unused sequence leases and closes the database.
func (s *Store) Close() error {
	return errors.Join(s.userSeq.Release(), s.msgSeq.Release(), s.db.Close())
}

// RunGC triggers one value-log garbage collection round. It is a no-op for
// in-memory databases.
func (s *Store) RunGC() error {
	if s.inMemory {
		return nil
	}
	err := s.db.RunValueLogGC(0.5)
	if errors.Is(err, badger.ErrNoRewrite) {
		return nil
	}
	return err
}

// nextID turns a zero-based sequence value into a positive id.
func nextID(seq *badger.Sequence) (int64, error) {
	n, err := seq.Next()
	if err != nil {
		return 0, err
	}
	return int64(n) + 1, nil
}

// update runs fn in a read-write transaction, retrying on write conflicts.
func (s *Store) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var err error
	for range maxTxnRetries {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

func (s *Store) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(fn)
}

func userKey(id int64) []byte { return fmt.Appendf(nil, "user:%020d", id) }

func usernameKey(name string) []byte { return []byte("username:" + name) }

func msgKey(id int64) []byte { return fmt.Appendf(nil, "msg:%020d", id) }

func pairPrefix(a, b int64) []byte { return []byte("pair:" + store.PairKey(a, b) + ":") }

func pairKey(a, b, msgID int64) []byte {
	return fmt.Appendf(pairPrefix(a, b), "%020d", msgID)
}

func peerPrefix(user int64) []byte { return fmt.Appendf(nil, "peer:%020d:", user) }

func peerKey(user, other int64) []byte {
	return fmt.Appendf(peerPrefix(user), "%020d", other)
}

var idemPrefix = []byte("idem:")

func idemKey(userID int64, scope, key string) []byte {
	return fmt.Appendf(nil, "idem:%020d\x00%s\x00%s", userID, scope, key)
}

// badgerLogger routes badger's internal logging through zerolog.
type badgerLogger struct{}

func (badgerLogger) Errorf(f string, a ...any) {
	log.Error().Str("component", "badger").Msgf(f, a...)
}

func (badgerLogger) Warningf(f string, a ...any) {
	log.Warn().Str("component", "badger").Msgf(f, a...)
}

func (badgerLogger) Infof(f string, a ...any) {
	log.Info().Str("component", "badger").Msgf(f, a...)
}

func (badgerLogger) Debugf(f string, a ...any) {
	log.Debug().Str("component", "badger").Msgf(f, a...)
}
