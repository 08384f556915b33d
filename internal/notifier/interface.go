package notifier

import (
	"context"
	"time"

	"github.com/newthinker/pushrelay/internal/core"
)

// Config holds delivery client configuration
type Config struct {
	Endpoint      string        `mapstructure:"endpoint"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RatePerSec    float64       `mapstructure:"rate_per_sec"`
	Burst         int           `mapstructure:"burst"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
	RetryBase     time.Duration `mapstructure:"retry_base"`
	RetryMaxDelay time.Duration `mapstructure:"retry_max_delay"`
}

// Sender defines the interface for delivering a resolved notification
type Sender interface {
	// Name returns the unique identifier for this sender
	Name() string

	// Deliver sends one payload with the given credentials. Failures are
	// returned as *core.Error with TRANSPORT_FAILURE or PROVIDER_REJECTED.
	Deliver(ctx context.Context, payload core.Payload, creds core.Credentials) (core.Receipt, error)
}
