package exchange

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"nakula/internal/ratelimit"
	"nakula/pkg/core"
	"nakula/pkg/exchange/binance"
	"nakula/pkg/exchange/bitget"
	"nakula/pkg/exchange/bybit"
	"nakula/pkg/exchange/coinex"
	"nakula/pkg/exchange/deribit"
	"nakula/pkg/exchange/gate"
	"nakula/pkg/exchange/kucoin"
	"nakula/pkg/exchange/okx"
	"nakula/pkg/wsclient"
)

// New constructs a websocket client for the venue named in meta. With
// credentials the client is private: the venue's auth step is attached
// and private endpoints are dialed. The returned client is idle until
// Run is called.
func New(meta core.Meta, opts ...Option) (*wsclient.Client, error) {
	o := ApplyOptions(opts...)

	adapter, auth, err := buildAdapter(meta, o)
	if err != nil {
		return nil, err
	}

	client, err := wsclient.New(meta, adapter, o.Config)
	if err != nil {
		return nil, err
	}

	if auth != nil {
		client.SetAuth(auth)
		if la, ok := auth.(interface{ SetLogger(zerolog.Logger) }); ok {
			la.SetLogger(o.Logger)
		}
	}

	limiter := o.RateLimiter
	if limiter == nil {
		limiter = venueLimiter(meta.Exchange)
	}
	client.SetRateLimiter(limiter)
	client.SetLogger(o.Logger)

	return client, nil
}

// buildAdapter is the closed venue registry.
func buildAdapter(meta core.Meta, o *Options) (core.Adapter, wsclient.AuthStep, error) {
	private := o.Credentials.HasKeys()

	switch meta.Exchange {
	case core.ExchangeBinance:
		adapter := binance.New(meta.Account)
		if !private {
			return adapter, nil, nil
		}
		step, err := binance.NewListenKey(meta.Market, meta.Account, o.Credentials)
		return adapter, step, err

	case core.ExchangeBybit:
		if !private {
			return bybit.New(), nil, nil
		}
		step, err := bybit.NewAuth(o.Credentials)
		return bybit.New(), step, err

	case core.ExchangeOKX:
		if !private {
			return okx.New(), nil, nil
		}
		step, err := okx.NewAuth(o.Credentials)
		return okx.New(), step, err

	case core.ExchangeGate:
		if !private {
			return gate.New(meta.Market, nil), nil, nil
		}
		step, err := gate.NewAuth(o.Credentials)
		return gate.New(meta.Market, o.Credentials), step, err

	case core.ExchangeKucoin:
		// Public KuCoin streams need the bullet handshake too, so the
		// step is attached regardless of credentials.
		adapter := kucoin.New(private)
		var creds *core.Credentials
		if private {
			creds = o.Credentials
		}
		step, err := kucoin.NewBullet(meta.Market, creds)
		return adapter, step, err

	case core.ExchangeDeribit:
		adapter := deribit.New()
		config := o.Config
		if config == nil {
			config = core.DefaultWSConfig()
		}
		adapter.SetHeartbeatInterval(config.HeartbeatInterval)
		if !private {
			return adapter, nil, nil
		}
		step, err := deribit.NewAuth(adapter, o.Credentials)
		return adapter, step, err

	case core.ExchangeCoinex:
		if !private {
			return coinex.New(), nil, nil
		}
		step, err := coinex.NewAuth(o.Credentials)
		return coinex.New(), step, err

	case core.ExchangeBitget:
		adapter := bitget.New(meta.Market)
		if !private {
			return adapter, nil, nil
		}
		step, err := bitget.NewAuth(o.Credentials)
		return adapter, step, err

	default:
		return nil, nil, fmt.Errorf("exchange: %w: %s", core.ErrUnsupported, meta.Exchange)
	}
}

var (
	limiterMu sync.Mutex
	limiters  = make(map[core.Exchange]*ratelimit.RateLimiter)
)

// venueLimiter returns the limiter shared by every client of one venue.
// Venues throttle connection attempts per account or IP, so concurrent
// clients of a venue queue on a single bucket chain.
func venueLimiter(exchange core.Exchange) *ratelimit.RateLimiter {
	limiterMu.Lock()
	defer limiterMu.Unlock()

	limiter, ok := limiters[exchange]
	if !ok {
		limiter = ratelimit.New(1, time.Second)
		limiters[exchange] = limiter
	}
	return limiter
}
