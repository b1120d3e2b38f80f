package config

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefault(t *testing.T) {
	cfg := NewDefault()
	assert.Equal(t, DefaultClientTimeout, cfg.ClientTimeout)
	assert.Equal(t, DefaultUpstreamTimeout, cfg.UpstreamTimeout)
	assert.Equal(t, DefaultMaxHistorySize, cfg.MaxHistorySize)
	assert.Equal(t, DefaultMaxBodySize, cfg.MaxBodySize)
	assert.Equal(t, DefaultTruncateBodyAt, cfg.TruncateBodyAt)
	assert.NotEmpty(t, cfg.AccessToken)
}

func TestNewDefault_UniqueTokens(t *testing.T) {
	a := NewDefault()
	b := NewDefault()
	assert.NotEqual(t, a.AccessToken, b.AccessToken)
}

func TestStore_SnapshotAndUpdate(t *testing.T) {
	store := NewStore(NewDefault())
	token := store.AccessToken()

	snap := store.Snapshot()
	require.Equal(t, token, snap.AccessToken)

	store.Update(func(cfg *ProxyConfig) {
		cfg.MaxHistorySize = 42
		cfg.UpstreamTimeout = time.Second
	})

	snap = store.Snapshot()
	assert.Equal(t, 42, snap.MaxHistorySize)
	assert.Equal(t, time.Second, snap.UpstreamTimeout)
	assert.Equal(t, token, snap.AccessToken, "access token must survive an update")
}

func TestStore_UpdateCannotChangeAccessToken(t *testing.T) {
	store := NewStore(NewDefault())
	original := store.AccessToken()

	store.Update(func(cfg *ProxyConfig) {
		cfg.AccessToken = "attacker-supplied-token"
	})

	assert.Equal(t, original, store.AccessToken())
}

func TestUpdate_ApplyTo_PartialFields(t *testing.T) {
	cfg := NewDefault()
	original := cfg

	ms := int64(1000)
	historySize := 50
	update := Update{
		UpstreamTimeoutMs: &ms,
		MaxHistorySize:    &historySize,
	}
	update.ApplyTo(&cfg)

	assert.Equal(t, time.Second, cfg.UpstreamTimeout)
	assert.Equal(t, 50, cfg.MaxHistorySize)
	// Untouched fields are preserved.
	assert.Equal(t, original.ClientTimeout, cfg.ClientTimeout)
	assert.Equal(t, original.MaxBodySize, cfg.MaxBodySize)
	assert.Equal(t, original.TruncateBodyAt, cfg.TruncateBodyAt)
	assert.Equal(t, original.AccessToken, cfg.AccessToken)
}

func TestStore_ConcurrentSnapshotsAndUpdates(t *testing.T) {
	store := NewStore(NewDefault())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			store.Update(func(cfg *ProxyConfig) {
				cfg.MaxHistorySize = n
			})
		}(i)
		go func() {
			defer wg.Done()
			_ = store.Snapshot()
		}()
	}
	wg.Wait()
}
