// Package feature answers per-tenant feature flag questions.
//
// Flags are booleans keyed by tenant. A tenant without an explicit value
// inherits the global default (stored under GlobalTenant); a flag unknown at
// both levels yields ErrFlagNotFound so callers can pick their own default.
//
// Two providers are available. MemoryProvider keeps flags in process and is
// used in tests and single-node development. RedisProvider stores one hash per
// tenant so every service instance sees the same values. Either can be seeded
// from a YAML document with LoadSeed:
//
//	defaults:
//	  webhooks: true
//	tenants:
//	  8d6f...-tenant-uuid:
//	    webhooks: false
package feature
