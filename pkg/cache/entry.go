package cache

import (
	"time"

	"github.com/Sternrassler/poi-sweep/pkg/poi"
)

// PageEntry is one cached result page.
type PageEntry struct {
	Records       []poi.Record `json:"records"`
	DeclaredTotal *int         `json:"declared_total,omitempty"`
	EndOfResults  bool         `json:"end_of_results,omitempty"`

	// Expires is when the entry becomes stale.
	Expires time.Time `json:"expires"`

	// CachedAt is when we cached this page.
	CachedAt time.Time `json:"cached_at"`
}

// IsExpired returns true if the cache entry has expired.
func (e *PageEntry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e *PageEntry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}
