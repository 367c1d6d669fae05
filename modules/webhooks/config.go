package webhooks

import (
	"time"

	"github.com/oficinapro/backend/pkg/ratelimiter"
	"github.com/oficinapro/backend/pkg/secrets"
)

// Config holds the engine settings read from the environment.
type Config struct {
	Workers           int           `env:"WEBHOOK_WORKERS" envDefault:"8"`
	QueueSize         int           `env:"WEBHOOK_QUEUE_SIZE" envDefault:"1024"`
	RetryInterval     time.Duration `env:"WEBHOOK_RETRY_INTERVAL" envDefault:"60s"`
	RetryBatch        int           `env:"WEBHOOK_RETRY_BATCH" envDefault:"100"`
	ClaimLease        time.Duration `env:"WEBHOOK_CLAIM_LEASE" envDefault:"5m"`
	AllowInsecureURLs bool          `env:"WEBHOOK_ALLOW_INSECURE_URLS" envDefault:"false"`
	Retention         time.Duration `env:"WEBHOOK_RETENTION" envDefault:"2160h"`
	PurgeInterval     time.Duration `env:"WEBHOOK_PURGE_INTERVAL" envDefault:"1h"`
	AlertEmail        string        `env:"WEBHOOK_ALERT_EMAIL"`
	TestRateLimit     int           `env:"WEBHOOK_TEST_RATE_LIMIT" envDefault:"10"`
	TestRateInterval  time.Duration `env:"WEBHOOK_TEST_RATE_INTERVAL" envDefault:"1m"`
	SecretKey         string        `env:"WEBHOOK_SECRET_KEY"`
}

// Options translates the config into engine options.
func (c Config) Options() []Option {
	return []Option{
		WithClaimLease(c.ClaimLease),
		WithRetryBatchSize(c.RetryBatch),
		WithAllowInsecureURLs(c.AllowInsecureURLs),
		WithRetention(c.Retention),
	}
}

// TestRateLimiter returns the bucket config for test deliveries: TestRateLimit
// sends per TestRateInterval per tenant.
func (c Config) TestRateLimiter() ratelimiter.Config {
	return ratelimiter.Config{
		Capacity:       c.TestRateLimit,
		RefillRate:     c.TestRateLimit,
		RefillInterval: c.TestRateInterval,
	}
}

// SecretCipher returns the cipher for endpoint secrets at rest, or nil when
// WEBHOOK_SECRET_KEY is unset.
func (c Config) SecretCipher() (*secrets.Cipher, error) {
	if c.SecretKey == "" {
		return nil, nil
	}
	key, err := secrets.ParseKey(c.SecretKey)
	if err != nil {
		return nil, err
	}
	return secrets.NewCipher(key)
}
