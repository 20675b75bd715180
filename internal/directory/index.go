// Package directory provides a small, deterministic in-memory index over user
// records, used to rank results of the user search endpoint.
//
//   - No logging in the library (callers decide how/what to log)
//   - Functional options for tuning
//   - Unicode-aware tokenization with full case folding (golang.org/x/text/cases)
//   - Immutable after construction, so safe for concurrent use
//   - Deterministic ordering for ties
//
// Each user is tokenized from its username (split on '_' and letter/digit
// boundaries) and display name. A query token scores 1 for an exact token hit
// and 0.5 for a prefix hit; the sum is normalized Jaccard-style by the size of
// the union of query and user tokens. A query that is a substring of the
// username gets a flat bonus so partial handles ("ali" for "alice") still rank.
package directory

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"

	"github.com/tbourn/go-dm-backend/internal/domain"
)

// Result is a ranked user with its similarity score.
type Result struct {
	User  domain.User
	Score float64
}

// ----------------------------------------------------------------------------
// Options

type Option func(*config)

type config struct {
	minScore       float64
	substringBonus float64
	exclude        map[int64]struct{}
}

func defaultConfig() config {
	return config{
		minScore:       0,
		substringBonus: 0.25,
	}
}

// WithMinScore drops results scoring at or below s.
func WithMinScore(s float64) Option {
	return func(c *config) {
		if s >= 0 {
			c.minScore = s
		}
	}
}

// WithSubstringBonus sets the bonus added when the query occurs inside the
// username.
func WithSubstringBonus(b float64) Option {
	return func(c *config) {
		if b >= 0 {
			c.substringBonus = b
		}
	}
}

// WithExclude leaves the given user ids out of the index.
func WithExclude(ids ...int64) Option {
	return func(c *config) {
		if len(ids) == 0 {
			return
		}
		if c.exclude == nil {
			c.exclude = make(map[int64]struct{}, len(ids))
		}
		for _, id := range ids {
			c.exclude[id] = struct{}{}
		}
	}
}

// ----------------------------------------------------------------------------
// Implementation

type entry struct {
	user     domain.User
	username string // folded
	tokens   map[string]struct{}
}

// Index ranks users against free-text queries.
type Index struct {
	cfg     config
	entries []entry
}

// New builds an Index over users.
func New(users []domain.User, opts ...Option) *Index {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	fold := cases.Fold()
	entries := make([]entry, 0, len(users))
	for _, u := range users {
		if _, skip := cfg.exclude[u.ID]; skip {
			continue
		}
		text := u.Username
		if u.Name != nil {
			text += " " + *u.Name
		}
		toks := tokenize(fold.String(text))
		if len(toks) == 0 {
			continue
		}
		entries = append(entries, entry{
			user:     u,
			username: fold.String(u.Username),
			tokens:   toks,
		})
	}
	return &Index{cfg: cfg, entries: entries}
}

// Len reports how many users are indexed.
func (i *Index) Len() int { return len(i.entries) }

// Search returns up to k users ranked by relevance to q. k <= 0 means no cap.
func (i *Index) Search(q string, k int) []Result {
	if len(i.entries) == 0 || strings.TrimSpace(q) == "" {
		return nil
	}
	folded := cases.Fold().String(strings.TrimSpace(q))
	qTokens := tokenize(folded)
	if len(qTokens) == 0 {
		return nil
	}
	compact := strings.Join(strings.Fields(folded), "")

	buf := make([]Result, 0, len(i.entries))
	for _, e := range i.entries {
		hit := weightedOverlap(qTokens, e.tokens)
		score := 0.0
		if hit > 0 {
			union := float64(len(qTokens)+len(e.tokens)) - hit
			if union > 0 {
				score = hit / union
			}
		}
		if compact != "" && strings.Contains(e.username, compact) {
			score += i.cfg.substringBonus
		}
		if score <= i.cfg.minScore {
			continue
		}
		buf = append(buf, Result{User: e.user, Score: score})
	}
	if len(buf) == 0 {
		return nil
	}

	sort.SliceStable(buf, func(a, b int) bool {
		if buf[a].Score != buf[b].Score {
			return buf[a].Score > buf[b].Score
		}
		la, lb := utf8.RuneCountInString(buf[a].User.Username), utf8.RuneCountInString(buf[b].User.Username)
		if la != lb {
			return la < lb
		}
		return buf[a].User.Username < buf[b].User.Username
	})

	if k > 0 && k < len(buf) {
		buf = buf[:k]
	}
	return buf
}

// ----------------------------------------------------------------------------
// Helpers

// wordRE splits runs of letters from runs of digits, so "bob_99" yields
// "bob" and "99".
var wordRE = regexp.MustCompile(`\p{L}+|\p{N}+`)

func tokenize(s string) map[string]struct{} {
	words := wordRE.FindAllString(s, -1)
	if len(words) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		out[w] = struct{}{}
	}
	return out
}

// weightedOverlap counts exact token matches as 1 and prefix matches as 0.5.
func weightedOverlap(q, d map[string]struct{}) float64 {
	n := 0.0
	for qt := range q {
		if _, ok := d[qt]; ok {
			n++
			continue
		}
		for dt := range d {
			if strings.HasPrefix(dt, qt) {
				n += 0.5
				break
			}
		}
	}
	return n
}
