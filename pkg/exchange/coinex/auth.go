package coinex

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"nakula/pkg/core"
	"nakula/pkg/wsclient"
)

// Auth signs in on the live socket with server.sign, an HMAC-SHA256
// signature over the millisecond timestamp.
type Auth struct {
	creds *core.Credentials
}

// NewAuth creates the CoinEx auth step.
func NewAuth(creds *core.Credentials) (*Auth, error) {
	if !creds.HasKeys() {
		return nil, fmt.Errorf("coinex: %w", core.ErrNoCredentials)
	}
	return &Auth{creds: creds}, nil
}

// Prepare returns the dial URL unchanged.
func (s *Auth) Prepare(ctx context.Context, dialURL string) (string, error) {
	return dialURL, nil
}

// Login sends server.sign and waits for its acknowledgement.
func (s *Auth) Login(ctx context.Context, rt wsclient.Requester) error {
	ts := time.Now().UnixMilli()
	req := &core.Request{
		Payload: map[string]any{
			"method": "server.sign",
			"params": map[string]any{
				"access_id":  s.creds.APIKey,
				"signed_str": signTimestamp(s.creds.SecretKey, ts),
				"timestamp":  ts,
			},
		},
	}

	if _, err := rt.Request(ctx, req, 0); err != nil {
		return fmt.Errorf("coinex: login: %w", err)
	}
	return nil
}

// signTimestamp signs the millisecond timestamp the way server.sign
// expects: lowercase hex(HMAC-SHA256(secret, timestamp)).
func signTimestamp(secret string, ts int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}
