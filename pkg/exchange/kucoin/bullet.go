package kucoin

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/avast/retry-go"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"nakula/internal/rest"
	"nakula/pkg/core"
	"nakula/pkg/wsclient"
)

// REST hosts serving the bullet endpoints.
const (
	SpotAPIURL    = "https://api.kucoin.com"
	FuturesAPIURL = "https://api-futures.kucoin.com"
)

const (
	bulletPublicPath  = "/api/v1/bullet-public"
	bulletPrivatePath = "/api/v1/bullet-private"
)

// Bullet is the connection handshake for KuCoin streams, public and
// private alike. Prepare requests a bullet token over REST and builds
// the dial URL from the endpoint and token the venue returns.
type Bullet struct {
	creds  *core.Credentials
	client *rest.Client
	logger zerolog.Logger
}

// NewBullet creates the bullet step for one market. Credentials are
// optional; when present the private bullet endpoint is used.
func NewBullet(market core.MarketType, creds *core.Credentials) (*Bullet, error) {
	base := FuturesAPIURL
	if market == core.MarketSpot || market == core.MarketMargin {
		base = SpotAPIURL
	}

	client, err := rest.NewClient(rest.DefaultConfig(base))
	if err != nil {
		return nil, fmt.Errorf("kucoin: bullet client: %w", err)
	}

	return &Bullet{
		creds:  creds,
		client: client,
		logger: zerolog.Nop(),
	}, nil
}

// SetLogger replaces the logger used for bullet requests.
func (b *Bullet) SetLogger(logger zerolog.Logger) {
	b.logger = logger.With().Str("component", "kucoin-bullet").Logger()
	b.client.SetLogger(b.logger)
}

// Prepare fetches a bullet token and returns the dial URL the venue
// assigned, with the token and a fresh connect id attached.
func (b *Bullet) Prepare(ctx context.Context, dialURL string) (string, error) {
	endpoint, token, err := b.fetch(ctx)
	if err != nil {
		return "", err
	}

	id := uuid.New()
	return endpoint + "?token=" + token + "&connectId=" + hex.EncodeToString(id[:]), nil
}

// Login is a no-op: the bullet token in the URL already authenticates
// the stream.
func (b *Bullet) Login(ctx context.Context, rt wsclient.Requester) error {
	return nil
}

func (b *Bullet) fetch(ctx context.Context) (string, string, error) {
	path := bulletPublicPath
	if b.creds.HasKeys() {
		path = bulletPrivatePath
	}

	var out struct {
		Code string `json:"code"`
		Data struct {
			Token           string `json:"token"`
			InstanceServers []struct {
				Endpoint string `json:"endpoint"`
			} `json:"instanceServers"`
		} `json:"data"`
	}

	err := retry.Do(
		func() error {
			opts := []rest.RequestOption{rest.WithResult(&out)}
			if b.creds.HasKeys() {
				opts = append(opts, rest.WithHeaders(b.signHeaders(path)))
			}
			resp, err := b.client.Post(ctx, path, nil, opts...)
			if err != nil {
				return err
			}
			if resp.IsError() {
				return core.NewExchangeError("kucoin", core.ErrorTypeAuthentication,
					resp.StatusCode(), resp.String())
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(500*time.Millisecond),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			b.logger.Warn().Err(err).Uint("attempt", n).Msg("bullet fetch retrying")
		}),
	)
	if err != nil {
		return "", "", fmt.Errorf("kucoin: fetch bullet: %w", err)
	}

	if out.Data.Token == "" || len(out.Data.InstanceServers) == 0 {
		return "", "", core.NewExchangeError("kucoin", core.ErrorTypeAuthentication, 0,
			"bullet response missing token or endpoint")
	}
	return out.Data.InstanceServers[0].Endpoint, out.Data.Token, nil
}

// signHeaders builds the KC-API request signature headers for the
// private bullet: base64(HMAC-SHA256(secret, timestamp+method+path))
// with a v2-encrypted passphrase.
func (b *Bullet) signHeaders(path string) map[string]string {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)

	mac := hmac.New(sha256.New, []byte(b.creds.SecretKey))
	mac.Write([]byte(ts + "POST" + path))
	sign := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	pmac := hmac.New(sha256.New, []byte(b.creds.SecretKey))
	pmac.Write([]byte(b.creds.Passphrase))

	return map[string]string{
		"KC-API-KEY":         b.creds.APIKey,
		"KC-API-SIGN":        sign,
		"KC-API-TIMESTAMP":   ts,
		"KC-API-PASSPHRASE":  base64.StdEncoding.EncodeToString(pmac.Sum(nil)),
		"KC-API-KEY-VERSION": "2",
		"Content-Type":       "application/json",
	}
}
