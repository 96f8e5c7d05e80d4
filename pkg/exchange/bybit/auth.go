package bybit

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

// Auth logs in on the private stream with an HMAC-SHA256 signature over
// a short-lived expiry timestamp.
type Auth struct {
	creds *core.Credentials
}

// NewAuth creates the Bybit auth step.
func NewAuth(creds *core.Credentials) (*Auth, error) {
	if !creds.HasKeys() {
		return nil, fmt.Errorf("bybit: %w", core.ErrNoCredentials)
	}
	return &Auth{creds: creds}, nil
}

// Prepare returns the dial URL unchanged.
func (s *Auth) Prepare(ctx context.Context, dialURL string) (string, error) {
	return dialURL, nil
}

// Login sends the auth op and waits for its acknowledgement.
func (s *Auth) Login(ctx context.Context, rt wsclient.Requester) error {
	expires := time.Now().Add(time.Second).UnixMilli()
	req := &core.Request{
		Payload: map[string]any{
			"op":   "auth",
			"args": []any{s.creds.APIKey, expires, signExpiry(s.creds.SecretKey, expires)},
		},
	}

	if _, err := rt.Request(ctx, req, 0); err != nil {
		return fmt.Errorf("bybit: login: %w", err)
	}
	return nil
}

// signExpiry signs the fixed channel path and expiry the way the v5 auth
// op expects: hex(HMAC-SHA256(secret, "GET/realtime"+expires)).
func signExpiry(secret string, expires int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("GET/realtime" + strconv.FormatInt(expires, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}
