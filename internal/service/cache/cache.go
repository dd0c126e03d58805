package cache

import "time"

// BytesCache is a minimal cache API storing raw bytes with TTL. Inference
// uses it to reuse a fresh prediction instead of re-hitting the runtime.
type BytesCache interface {
	GetBytes(key string) (b []byte, ok bool, err error)
	SetBytes(key string, value []byte, ttl time.Duration) error
}
