package redisx

import "time"

const (
	// Cache store entries: {prefix}{collection}:{params} -> {"data":...,"timestamp":...,"ttl":...}
	DefaultCachePrefix = "mkt:cache:"

	// Offline snapshot blob: single key holding users/products/orders/inventory + last_sync
	KeyOfflineSnapshot = "mkt:offline:snapshot"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLCache   = 5 * time.Minute
	TTLOffline = 24 * time.Hour
	TTLDedup   = 48 * time.Hour
)
