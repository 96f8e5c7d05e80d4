package gate

import (
	"context"
	"fmt"

	"nakula/pkg/core"
	"nakula/pkg/wsclient"
)

// Auth marks the stream private. Gate has no login op: the adapter signs
// each private channel message itself, so this step only steers the
// client onto the private endpoint selection.
type Auth struct{}

// NewAuth creates the Gate auth step.
func NewAuth(creds *core.Credentials) (*Auth, error) {
	if !creds.HasKeys() {
		return nil, fmt.Errorf("gate: %w", core.ErrNoCredentials)
	}
	return &Auth{}, nil
}

// Prepare returns the dial URL unchanged.
func (s *Auth) Prepare(ctx context.Context, dialURL string) (string, error) {
	return dialURL, nil
}

// Login is a no-op.
func (s *Auth) Login(ctx context.Context, rt wsclient.Requester) error {
	return nil
}
