package permissions

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/kandev/agentperms/internal/agents/models"
)

const (
	defaultMemoEntries = 10_000
	defaultMemoTTL     = time.Minute
)

// Memo caches resolution results. Keys embed the agents map and fetch cache
// versions, so a change to either makes older entries unreachable.
type Memo struct {
	cache *ristretto.Cache[string, ToolPermissionResult]
	ttl   time.Duration
}

// NewMemo creates a memo holding up to maxEntries results for ttl each.
func NewMemo(maxEntries int64, ttl time.Duration) (*Memo, error) {
	if maxEntries <= 0 {
		maxEntries = defaultMemoEntries
	}
	if ttl <= 0 {
		ttl = defaultMemoTTL
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, ToolPermissionResult]{
		NumCounters:        maxEntries * 10,
		MaxCost:            maxEntries,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create memo cache: %w", err)
	}
	return &Memo{cache: c, ttl: ttl}, nil
}

// MemoKey builds the cache key for one resolution input.
func MemoKey(agentID string, ephemeral models.EphemeralAgent, mapVersion, fetchVersion uint64) string {
	var b strings.Builder
	b.WriteString(strconv.Quote(agentID))
	b.WriteByte('|')
	b.WriteString(ephemeralFingerprint(ephemeral))
	b.WriteByte('|')
	b.WriteString(strconv.FormatUint(mapVersion, 10))
	b.WriteByte('|')
	b.WriteString(strconv.FormatUint(fetchVersion, 10))
	return b.String()
}

// Disabled resources are dropped so that nil, empty and all-false settings
// share a fingerprint.
func ephemeralFingerprint(e models.EphemeralAgent) string {
	enabled := make([]string, 0, len(e))
	for resource, on := range e {
		if on {
			enabled = append(enabled, strconv.Quote(string(resource)))
		}
	}
	slices.Sort(enabled)
	return strings.Join(enabled, ",")
}

// Get returns a copy of the memoized result for key.
func (m *Memo) Get(key string) (ToolPermissionResult, bool) {
	result, ok := m.cache.Get(key)
	if !ok {
		return ToolPermissionResult{}, false
	}
	return result.clone(), true
}

// Put stores a copy of result under key. Writes are applied asynchronously.
func (m *Memo) Put(key string, result ToolPermissionResult) {
	m.cache.SetWithTTL(key, result.clone(), 1, m.ttl)
}

// Wait blocks until pending writes are visible to Get.
func (m *Memo) Wait() {
	m.cache.Wait()
}

// Clear drops every memoized result.
func (m *Memo) Clear() {
	m.cache.Clear()
}

func (m *Memo) Close() {
	m.cache.Close()
}
