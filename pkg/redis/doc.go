// Package redis connects to Redis with startup retries and exposes a health
// check for readiness probes.
package redis
