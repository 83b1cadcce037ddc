// Package config loads service configuration from the environment.
package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// App holds all tunables. The store client, cache, and notifier are
// constructed once in main from these values and injected into every
// component — no ambient globals.
type App struct {
	Port        string `envconfig:"PORT" default:"8080"`
	DatabaseURL string `envconfig:"DATABASE_URL"`
	RedisURL    string `envconfig:"REDIS_URL"`
	NATSURL     string `envconfig:"NATS_URL"`

	CacheTTL time.Duration `envconfig:"CACHE_TTL" default:"30s"`

	// Auction sweep timing. The sweep settles ended auctions and expires
	// overdue payments on a fixed interval after an initial startup delay.
	SweepInterval     time.Duration `envconfig:"SWEEP_INTERVAL" default:"60s"`
	SweepInitialDelay time.Duration `envconfig:"SWEEP_INITIAL_DELAY" default:"30s"`

	// PaymentWindow is how long an auction winner has to complete payment
	// before the sale is reverted.
	PaymentWindow time.Duration `envconfig:"PAYMENT_WINDOW" default:"24h"`
}

// Load reads configuration from the environment.
func Load() (App, error) {
	var c App
	err := envconfig.Process("", &c)
	return c, err
}
