package tokencache

import (
	"sync"
	"time"
)

// Token is one cached auth artifact: a listen key, a bullet token, or an
// OAuth access token with its refresh companion.
type Token struct {
	Value     string
	Refresh   string
	Lifetime  time.Duration
	ExpiresAt time.Time
}

// Remaining returns the time left until expiry. Negative once expired,
// zero when the token carries no expiry.
func (t Token) Remaining() time.Duration {
	if t.ExpiresAt.IsZero() {
		return 0
	}
	return time.Until(t.ExpiresAt)
}

// Stale reports whether less than a third of the token lifetime remains.
// Tokens without a lifetime are never stale.
func (t Token) Stale() bool {
	if t.Lifetime <= 0 || t.ExpiresAt.IsZero() {
		return false
	}
	return t.Remaining() < t.Lifetime/3
}

// Cache holds the current token for one connection's auth flow.
type Cache struct {
	mu  sync.RWMutex
	tok Token
	set bool
}

func New() *Cache {
	return &Cache{}
}

func (c *Cache) Store(tok Token) {
	c.mu.Lock()
	c.tok = tok
	c.set = true
	c.mu.Unlock()
}

func (c *Cache) Load() (Token, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tok, c.set
}

// Value returns the current token value, or "" when nothing is cached.
func (c *Cache) Value() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.set {
		return ""
	}
	return c.tok.Value
}

func (c *Cache) Clear() {
	c.mu.Lock()
	c.tok = Token{}
	c.set = false
	c.mu.Unlock()
}
