package exchange

import (
	"errors"
	"fmt"
	"sync"

	"nakula/pkg/wsclient"
)

// Container is a thread-safe registry of websocket clients, keyed by
// their connection identity (meta string).
type Container struct {
	mu      sync.RWMutex
	clients map[string]*wsclient.Client
}

// NewContainer creates and returns a new empty client container.
func NewContainer() *Container {
	return &Container{
		clients: make(map[string]*wsclient.Client),
	}
}

// Register adds a client to the container under its own identity. A
// client with the same identity is overwritten, not closed.
func (c *Container) Register(client *wsclient.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clients[client.Meta().String()] = client
}

// Get retrieves a client by identity.
// Returns an error if no client is registered under the given key.
func (c *Container) Get(key string) (*wsclient.Client, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	client, exists := c.clients[key]
	if !exists {
		return nil, fmt.Errorf("client %q not found", key)
	}
	return client, nil
}

// Keys returns the identities of all registered clients.
func (c *Container) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.clients))
	for key := range c.clients {
		keys = append(keys, key)
	}
	return keys
}

// Unregister removes a client from the container by identity without
// closing it.
func (c *Container) Unregister(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.clients, key)
}

// Exists checks whether a client with the given identity is registered.
func (c *Container) Exists(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, exists := c.clients[key]
	return exists
}

// CloseAll closes every registered client and empties the container.
func (c *Container) CloseAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for key, client := range c.clients {
		if err := client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", key, err))
		}
	}
	c.clients = make(map[string]*wsclient.Client)
	return errors.Join(errs...)
}
