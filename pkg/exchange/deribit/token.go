package deribit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/avast/retry-go"
	"github.com/rs/zerolog"

	"nakula/internal/rest"
	"nakula/internal/tokencache"
	"nakula/pkg/core"
	"nakula/pkg/taskset"
	"nakula/pkg/wsclient"
)

// APIBaseURL serves the OAuth endpoints.
const APIBaseURL = "https://www.deribit.com/api/v2"

const tokenPollInterval = time.Minute

// Auth obtains the OAuth access token private method calls embed. Login
// seeds the token cache shared with the adapter; a background task
// refreshes the token before it goes stale.
type Auth struct {
	creds  *core.Credentials
	cache  *tokencache.Cache
	client *rest.Client
	logger zerolog.Logger
}

// NewAuth creates the Deribit auth step and wires its token cache into
// the adapter.
func NewAuth(a *Adapter, creds *core.Credentials) (*Auth, error) {
	if !creds.HasKeys() {
		return nil, fmt.Errorf("deribit: %w", core.ErrNoCredentials)
	}

	client, err := rest.NewClient(rest.DefaultConfig(APIBaseURL))
	if err != nil {
		return nil, fmt.Errorf("deribit: auth client: %w", err)
	}

	cache := tokencache.New()
	a.tokens = cache

	return &Auth{
		creds:  creds,
		cache:  cache,
		client: client,
		logger: zerolog.Nop(),
	}, nil
}

// SetLogger replaces the logger used by token requests.
func (s *Auth) SetLogger(logger zerolog.Logger) {
	s.logger = logger.With().Str("component", "deribit-auth").Logger()
	s.client.SetLogger(s.logger)
}

// Prepare returns the dial URL unchanged.
func (s *Auth) Prepare(ctx context.Context, dialURL string) (string, error) {
	return dialURL, nil
}

// Login ensures a usable access token is cached. A fresh token survives
// reconnects, so one is only fetched when missing or stale.
func (s *Auth) Login(ctx context.Context, rt wsclient.Requester) error {
	if tok, ok := s.cache.Load(); ok && !tok.Stale() {
		return nil
	}
	if err := s.fetchToken(ctx, s.credentialParams()); err != nil {
		return fmt.Errorf("deribit: login: %w", err)
	}
	return nil
}

// BackgroundTasks returns the refresh loop that keeps the cached token
// fresh.
func (s *Auth) BackgroundTasks() []taskset.Task {
	return []taskset.Task{{
		Name: "deribit-token-refresh",
		Run:  s.maintain,
	}}
}

func (s *Auth) maintain(ctx context.Context) error {
	ticker := time.NewTicker(tokenPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		tok, ok := s.cache.Load()
		if !ok || !tok.Stale() {
			continue
		}

		params := s.credentialParams()
		if tok.Refresh != "" {
			params = map[string]string{
				"grant_type":    "refresh_token",
				"refresh_token": tok.Refresh,
			}
		}
		if err := s.fetchToken(ctx, params); err == nil {
			s.logger.Debug().Msg("access token refreshed")
			continue
		} else {
			s.logger.Warn().Err(err).Msg("token refresh failed, re-authenticating")
		}

		if err := s.fetchToken(ctx, s.credentialParams()); err != nil {
			s.logger.Error().Err(err).Msg("token re-authentication failed")
		}
	}
}

func (s *Auth) fetchToken(ctx context.Context, params map[string]string) error {
	var out struct {
		Result struct {
			AccessToken  string `json:"access_token"`
			RefreshToken string `json:"refresh_token"`
			ExpiresIn    int64  `json:"expires_in"`
		} `json:"result"`
		Error *deribitError `json:"error"`
	}

	err := retry.Do(
		func() error {
			resp, err := s.client.Get(ctx, "/public/auth",
				rest.WithQueryParams(params), rest.WithResult(&out))
			if err != nil {
				return err
			}
			if resp.IsError() {
				return core.NewExchangeError("deribit", core.ErrorTypeAuthentication,
					resp.StatusCode(), resp.String())
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(500*time.Millisecond),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Warn().Err(err).Uint("attempt", n).Msg("token fetch retrying")
		}),
	)
	if err != nil {
		return err
	}

	if out.Error != nil {
		return core.NewExchangeErrorWithCode("deribit", core.ErrorTypeAuthentication, 0,
			strconv.FormatInt(out.Error.Code, 10), out.Error.Message)
	}
	if out.Result.AccessToken == "" {
		return core.NewExchangeError("deribit", core.ErrorTypeAuthentication, 0,
			"auth response missing access token")
	}

	lifetime := time.Duration(out.Result.ExpiresIn) * time.Second
	s.cache.Store(tokencache.Token{
		Value:     out.Result.AccessToken,
		Refresh:   out.Result.RefreshToken,
		Lifetime:  lifetime,
		ExpiresAt: time.Now().Add(lifetime),
	})
	return nil
}

func (s *Auth) credentialParams() map[string]string {
	return map[string]string{
		"grant_type":    "client_credentials",
		"client_id":     s.creds.APIKey,
		"client_secret": s.creds.SecretKey,
		"scope":         "expires:86400",
	}
}
