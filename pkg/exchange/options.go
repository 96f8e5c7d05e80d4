package exchange

import (
	"github.com/rs/zerolog"

	"nakula/internal/ratelimit"
	"nakula/pkg/core"
)

type Option func(*Options)

type Options struct {
	Config      *core.WSConfig
	Credentials *core.Credentials
	Logger      zerolog.Logger
	RateLimiter *ratelimit.RateLimiter
}

// WithConfig overrides the default connection configuration.
func WithConfig(config *core.WSConfig) Option {
	return func(o *Options) {
		o.Config = config
	}
}

// WithCredentials makes the client private: the venue's auth step is
// attached and private endpoints are dialed.
func WithCredentials(creds *core.Credentials) Option {
	return func(o *Options) {
		o.Credentials = creds
	}
}

// WithLogger attaches a logger to the client and its auth step.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithRateLimiter replaces the venue-shared rate limiter.
func WithRateLimiter(limiter *ratelimit.RateLimiter) Option {
	return func(o *Options) {
		o.RateLimiter = limiter
	}
}

func ApplyOptions(opts ...Option) *Options {
	o := &Options{Logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
