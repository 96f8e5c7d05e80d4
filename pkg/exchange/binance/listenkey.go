package binance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/rs/zerolog"

	"nakula/internal/rest"
	"nakula/pkg/core"
	"nakula/pkg/taskset"
	"nakula/pkg/wsclient"
)

// REST hosts used to manage listen keys.
const (
	SpotAPIURL    = "https://api.binance.com"
	LinearAPIURL  = "https://fapi.binance.com"
	InverseAPIURL = "https://dapi.binance.com"
	UnifiedAPIURL = "https://papi.binance.com"
)

// Binance expires idle listen keys after 60 minutes.
const keepAliveInterval = 30 * time.Minute

// ListenKey is the auth step for private Binance streams. Prepare fetches
// a listen key over REST and appends it to the dial URL; a background
// task extends the key for the life of the client. Listen key requests
// are authenticated by API key header alone, so no login message is sent
// on the socket.
type ListenKey struct {
	market  core.MarketType
	account core.AccountType
	client  *rest.Client
	logger  zerolog.Logger

	mu  sync.Mutex
	key string
}

// NewListenKey creates the listen key step for one market and account.
func NewListenKey(market core.MarketType, account core.AccountType, creds *core.Credentials) (*ListenKey, error) {
	if !creds.HasKeys() {
		return nil, fmt.Errorf("binance: %w", core.ErrNoCredentials)
	}

	var base string
	switch {
	case account == core.AccountUnified:
		base = UnifiedAPIURL
	case market == core.MarketSpot || market == core.MarketMargin:
		base = SpotAPIURL
	case market == core.MarketUPerp || market == core.MarketUDelivery:
		base = LinearAPIURL
	default:
		base = InverseAPIURL
	}

	config := rest.DefaultConfig(base)
	config.Headers = map[string]string{"X-MBX-APIKEY": creds.APIKey}
	client, err := rest.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("binance: listen key client: %w", err)
	}

	return &ListenKey{
		market:  market,
		account: account,
		client:  client,
		logger:  zerolog.Nop(),
	}, nil
}

// SetLogger replaces the logger used by the keepalive task.
func (l *ListenKey) SetLogger(logger zerolog.Logger) {
	l.logger = logger.With().Str("component", "binance-listenkey").Logger()
	l.client.SetLogger(l.logger)
}

// Prepare fetches a fresh listen key and returns the dial URL with the
// key appended.
func (l *ListenKey) Prepare(ctx context.Context, dialURL string) (string, error) {
	key, err := l.fetch(ctx)
	if err != nil {
		return "", err
	}

	l.mu.Lock()
	l.key = key
	l.mu.Unlock()

	if l.account == core.AccountUnified {
		return dialURL + "/ws/" + key, nil
	}
	return dialURL + "/" + key, nil
}

// Login is a no-op: the listen key in the URL already scopes the stream.
func (l *ListenKey) Login(ctx context.Context, rt wsclient.Requester) error {
	return nil
}

// BackgroundTasks returns the keepalive loop that extends the key before
// its 60 minute idle expiry.
func (l *ListenKey) BackgroundTasks() []taskset.Task {
	return []taskset.Task{{
		Name: "binance-listenkey-keepalive",
		Run:  l.keepAlive,
	}}
}

func (l *ListenKey) fetch(ctx context.Context) (string, error) {
	var out struct {
		ListenKey string `json:"listenKey"`
	}

	err := retry.Do(
		func() error {
			resp, err := l.client.Post(ctx, l.path(), nil, rest.WithResult(&out))
			if err != nil {
				return err
			}
			if resp.IsError() {
				return core.NewExchangeError("binance", core.ErrorTypeAuthentication,
					resp.StatusCode(), resp.String())
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(500*time.Millisecond),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			l.logger.Warn().Err(err).Uint("attempt", n).Msg("listen key fetch retrying")
		}),
	)
	if err != nil {
		return "", fmt.Errorf("binance: fetch listen key: %w", err)
	}
	if out.ListenKey == "" {
		return "", core.NewExchangeError("binance", core.ErrorTypeAuthentication, 0,
			"listen key response missing key")
	}
	return out.ListenKey, nil
}

func (l *ListenKey) keepAlive(ctx context.Context) error {
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		l.mu.Lock()
		key := l.key
		l.mu.Unlock()
		if key == "" {
			continue
		}

		if err := l.extend(ctx, key); err != nil {
			l.logger.Warn().Err(err).Msg("listen key keepalive failed")
			continue
		}
		l.logger.Debug().Msg("listen key extended")
	}
}

func (l *ListenKey) extend(ctx context.Context, key string) error {
	var opts []rest.RequestOption
	// The portfolio margin endpoint extends the account's single key and
	// takes no parameter.
	if l.account != core.AccountUnified {
		opts = append(opts, rest.WithQueryParam("listenKey", key))
	}

	resp, err := l.client.Put(ctx, l.path(), nil, opts...)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return core.NewExchangeError("binance", core.ErrorTypeAuthentication,
			resp.StatusCode(), resp.String())
	}
	return nil
}

func (l *ListenKey) path() string {
	if l.account == core.AccountUnified {
		return "/papi/v1/listenKey"
	}
	switch l.market {
	case core.MarketSpot:
		return "/api/v3/userDataStream"
	case core.MarketMargin:
		return "/sapi/v1/userDataStream"
	case core.MarketUPerp, core.MarketUDelivery:
		return "/fapi/v1/listenKey"
	default:
		return "/dapi/v1/listenKey"
	}
}
