// Package config holds the proxy's mutable operational parameters and
// serves them to concurrent handlers under reader-preferring semantics.
package config

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// ProxyConfig is the set of operational parameters shared by every handler.
// AccessToken is generated once at construction and is never mutated
// afterwards, even by an Update call that happens to carry the field.
type ProxyConfig struct {
	ClientTimeout   time.Duration
	UpstreamTimeout time.Duration
	MaxHistorySize  int
	MaxBodySize     int
	TruncateBodyAt  int
	AccessToken     string
}

// Default timeouts and sizes, mirroring the original debug-proxy's defaults.
const (
	DefaultClientTimeout   = 30 * time.Second
	DefaultUpstreamTimeout = 500 * time.Millisecond
	DefaultMaxHistorySize  = 100
	DefaultMaxBodySize     = 1024 * 1024
	DefaultTruncateBodyAt  = 1024
)

// NewDefault returns a ProxyConfig populated with the package defaults and a
// freshly generated access token.
func NewDefault() ProxyConfig {
	return ProxyConfig{
		ClientTimeout:   DefaultClientTimeout,
		UpstreamTimeout: DefaultUpstreamTimeout,
		MaxHistorySize:  DefaultMaxHistorySize,
		MaxBodySize:     DefaultMaxBodySize,
		TruncateBodyAt:  DefaultTruncateBodyAt,
		AccessToken:     uuid.New().String(),
	}
}

// Update is a partial ProxyConfig patch accepted from the admin API. Missing
// fields leave the current value untouched; AccessToken is intentionally
// absent since it is immutable for the process lifetime.
type Update struct {
	ClientTimeoutMs   *int64 `json:"client_timeout_ms,omitempty"`
	UpstreamTimeoutMs *int64 `json:"upstream_timeout_ms,omitempty"`
	MaxHistorySize    *int   `json:"max_history_size,omitempty"`
	MaxBodySize       *int   `json:"max_body_size,omitempty"`
	TruncateBodyAt    *int   `json:"truncate_body_at,omitempty"`
}

// ApplyTo mutates cfg in place for every field present in the update.
func (u Update) ApplyTo(cfg *ProxyConfig) {
	if u.ClientTimeoutMs != nil {
		cfg.ClientTimeout = time.Duration(*u.ClientTimeoutMs) * time.Millisecond
	}
	if u.UpstreamTimeoutMs != nil {
		cfg.UpstreamTimeout = time.Duration(*u.UpstreamTimeoutMs) * time.Millisecond
	}
	if u.MaxHistorySize != nil {
		cfg.MaxHistorySize = *u.MaxHistorySize
	}
	if u.MaxBodySize != nil {
		cfg.MaxBodySize = *u.MaxBodySize
	}
	if u.TruncateBodyAt != nil {
		cfg.TruncateBodyAt = *u.TruncateBodyAt
	}
}

// Store holds one ProxyConfig behind a reader-preferring lock: many
// concurrent Snapshot calls, one Update writer at a time. AccessToken is
// never touched by Update, regardless of what the caller's mutator does.
type Store struct {
	mu     sync.RWMutex
	config ProxyConfig
}

// NewStore wraps cfg in a Store.
func NewStore(cfg ProxyConfig) *Store {
	return &Store{config: cfg}
}

// Snapshot returns a consistent copy of the current configuration.
func (s *Store) Snapshot() ProxyConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

// AccessToken returns the immutable access token.
func (s *Store) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config.AccessToken
}

// Update applies mutator to the stored config under the write lock. The
// caller's mutator must not itself touch AccessToken; Update restores the
// original token afterward regardless, so the field can never drift.
func (s *Store) Update(mutator func(*ProxyConfig)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token := s.config.AccessToken
	mutator(&s.config)
	s.config.AccessToken = token
}
