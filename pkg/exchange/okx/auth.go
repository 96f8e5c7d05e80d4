package okx

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"

	"nakula/pkg/core"
	"nakula/pkg/wsclient"
)

// Auth logs in on the private endpoint with the key, passphrase and an
// HMAC-SHA256 signature over the request timestamp.
type Auth struct {
	creds *core.Credentials
}

// NewAuth creates the OKX auth step. OKX requires a passphrase alongside
// the key pair.
func NewAuth(creds *core.Credentials) (*Auth, error) {
	if !creds.HasKeys() || creds.Passphrase == "" {
		return nil, fmt.Errorf("okx: %w", core.ErrNoCredentials)
	}
	return &Auth{creds: creds}, nil
}

// Prepare returns the dial URL unchanged.
func (s *Auth) Prepare(ctx context.Context, dialURL string) (string, error) {
	return dialURL, nil
}

// Login sends the login op and waits for its event acknowledgement. A
// rejected login arrives as an uncorrelated error event, so it surfaces
// as a request timeout.
func (s *Auth) Login(ctx context.Context, rt wsclient.Requester) error {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	req := &core.Request{
		ID: loginID,
		Payload: map[string]any{
			"op": "login",
			"args": []map[string]string{{
				"apiKey":     s.creds.APIKey,
				"passphrase": s.creds.Passphrase,
				"timestamp":  ts,
				"sign":       signTimestamp(s.creds.SecretKey, ts),
			}},
		},
	}

	if _, err := rt.Request(ctx, req, 0); err != nil {
		return fmt.Errorf("okx: login: %w", err)
	}
	return nil
}

// signTimestamp signs the verification path the way the login op
// expects: base64(HMAC-SHA256(secret, timestamp+"GET"+"/users/self/verify")).
func signTimestamp(secret, ts string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts + "GET" + "/users/self/verify"))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
