// Package ratelimiter implements a token bucket limiter with pluggable
// storage.
//
// A Bucket holds the configuration; state lives in a Store keyed by an
// arbitrary string such as a tenant id. MemoryStore serves single-process
// deployments and tests, RedisStore shares buckets across replicas using a
// server-side script so refill and consume happen atomically.
//
//	b, _ := ratelimiter.NewBucket(ratelimiter.NewMemoryStore(), ratelimiter.Config{
//		Capacity:       10,
//		RefillRate:     10,
//		RefillInterval: time.Minute,
//	})
//	r.With(ratelimiter.Middleware(b, keyFunc)).Post("/test", h)
package ratelimiter
