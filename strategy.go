package apiclient

import (
	"net/http"
	"time"
)

// CacheStrategy selects the cache/network precedence for a request.
type CacheStrategy string

const (
	// CacheFirst serves a fresh cached value when present, otherwise hits
	// the network and writes the result back.
	CacheFirst CacheStrategy = "cache-first"
	// NetworkFirst hits the network and falls back to the cache on failure.
	NetworkFirst CacheStrategy = "network-first"
	// CacheOnly serves only from cache; a miss is an error, the network is
	// never touched.
	CacheOnly CacheStrategy = "cache-only"
	// NetworkOnly always hits the network and never reads the cache, though
	// successful responses are still written unless caching is disabled.
	NetworkOnly CacheStrategy = "network-only"
)

func (s CacheStrategy) valid() bool {
	switch s {
	case CacheFirst, NetworkFirst, CacheOnly, NetworkOnly, "":
		return true
	}
	return false
}

// cachePlan is the per-request decision procedure resolved from a strategy.
type cachePlan struct {
	readBefore    bool // consult the cache before going to the network
	requireCached bool // a miss is terminal (cache-only)
	writeAfter    bool // store a successful network response
	fallbackAfter bool // on network failure, try the cache (network-first)
}

func planForStrategy(s CacheStrategy) cachePlan {
	switch s {
	case CacheOnly:
		return cachePlan{readBefore: true, requireCached: true}
	case CacheFirst:
		return cachePlan{readBefore: true, writeAfter: true}
	case NetworkFirst:
		return cachePlan{writeAfter: true, fallbackAfter: true}
	default: // NetworkOnly and unset
		return cachePlan{writeAfter: true}
	}
}

// cacheableMethod limits cache participation to reads.
func cacheableMethod(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}

// entryFresh applies the per-request MaxAge restriction on top of the
// store's own TTL expiry.
func entryFresh(entry *CacheEntry, maxAge time.Duration, now time.Time) bool {
	if entry == nil {
		return false
	}
	if now.After(entry.ExpiresAt) {
		return false
	}
	if maxAge > 0 && now.Sub(entry.StoredAt) > maxAge {
		return false
	}
	return true
}
