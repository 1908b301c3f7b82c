package types

import (
	"time"
)

// CacheStore never surfaces internal faults: a failing Get is a miss and a
// failing Put is logged and dropped.
type CacheStore interface {
	Get(key string) (interface{}, bool)
	Put(key string, value interface{}, ttl time.Duration)
	Clear()
	Stats() CacheStats
}

type CacheStats struct {
	Size           int     `json:"size"`
	Hits           uint64  `json:"hits"`
	Misses         uint64  `json:"misses"`
	HitRate        float64 `json:"hit_rate"`
	MaxSize        int     `json:"max_size"`
	ExpiredEntries int     `json:"expired_entries"`
}

// CacheCodec turns cached payloads into bytes for stores living outside the process.
type CacheCodec interface {
	Encode(value interface{}) ([]byte, error)
	Decode(data []byte) (interface{}, error)
}

type CacheEntry struct {
	Key        string        `json:"key"`
	Value      interface{}   `json:"value"`
	TTL        time.Duration `json:"ttl"`
	StoredAt   time.Time     `json:"stored_at"`
	LastAccess time.Time     `json:"last_access"`
}

func (e *CacheEntry) Expired(now time.Time) bool {
	return now.Sub(e.StoredAt) > e.TTL
}
