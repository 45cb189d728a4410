// Package cvdconfig provides the CVDConfigProvider boundary (§6) the
// Fetch Coordinator consumes for CVD studies, plus a mock implementation
// suitable for tests and for `useMockCVD` deployments where the real
// encrypted Pine-script fetch (explicitly out of scope, §1) isn't wired
// up.
package cvdconfig

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jpillora/backoff"
	"github.com/tidwall/buntdb"
)

// Config is what a provider resolves with: the encrypted Pine-script
// text plus its id/version, per §6.
type Config struct {
	Text        string
	PineID      string
	PineVersion string
}

// Provider resolves the CVD study configuration for an anchor period
// (e.g. "3M"). Implementations may cache.
type Provider interface {
	GetCVDConfig(anchorPeriod string) (Config, error)
}

// Mock is a Provider backed by an in-process buntdb TTL cache, grounded
// on the teacher repo's storage/buntdb.go (Bunt wraps *buntdb.DB with a
// JSON-indexed in-memory store). A jpillora/backoff schedule governs the
// simulated upstream-fetch retries the same way
// exchange.Binance.CandlesSubscription backs off between reconnects.
type Mock struct {
	db      *buntdb.DB
	ttl     time.Duration
	backoff *backoff.Backoff

	// FlakyAttempts simulates an upstream that fails this many times
	// before succeeding, for tests exercising the retry/backoff path.
	FlakyAttempts int

	attempts map[string]int
}

// NewMock returns a Mock provider caching resolved configs for ttl.
func NewMock(ttl time.Duration) (*Mock, error) {
	db, err := buntdb.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("cvdconfig: open cache: %w", err)
	}
	return &Mock{
		db:       db,
		ttl:      ttl,
		backoff:  &backoff.Backoff{Min: 20 * time.Millisecond, Max: 200 * time.Millisecond, Factor: 2},
		attempts: make(map[string]int),
	}, nil
}

// GetCVDConfig returns the cached config for anchorPeriod, simulating an
// upstream fetch (with backoff between attempts, for FlakyAttempts
// simulated failures) on a cache miss.
func (m *Mock) GetCVDConfig(anchorPeriod string) (Config, error) {
	key := cacheKey(anchorPeriod)

	if cfg, ok := m.lookup(key); ok {
		return cfg, nil
	}

	m.backoff.Reset()
	for m.attempts[key] < m.FlakyAttempts {
		m.attempts[key]++
		time.Sleep(m.backoff.Duration())
	}
	cfg := simulateFetch(anchorPeriod)
	m.store(key, cfg)
	return cfg, nil
}

func (m *Mock) lookup(key string) (Config, bool) {
	var cfg Config
	var found bool
	_ = m.db.View(func(tx *buntdb.Tx) error {
		raw, err := tx.Get(key)
		if err != nil {
			return nil // buntdb.ErrNotFound or expired
		}
		if json.Unmarshal([]byte(raw), &cfg) == nil {
			found = true
		}
		return nil
	})
	return cfg, found
}

func (m *Mock) store(key string, cfg Config) {
	body, _ := json.Marshal(cfg)
	_ = m.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(key, string(body), &buntdb.SetOptions{Expires: true, TTL: m.ttl})
		return err
	})
}

func cacheKey(anchorPeriod string) string { return "cvd:" + anchorPeriod }

func simulateFetch(anchorPeriod string) Config {
	return Config{
		Text:        fmt.Sprintf("mock-pine-text-%s", anchorPeriod),
		PineID:      "PUB;mock-cvd",
		PineVersion: "1.0",
	}
}
