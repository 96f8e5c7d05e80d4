package exchange

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nakula/pkg/core"
	"nakula/pkg/wsclient"
)

func newContainerClient(t *testing.T, exchange core.Exchange, name string) *wsclient.Client {
	t.Helper()

	client, err := New(core.Meta{
		Exchange: exchange,
		Market:   core.MarketSpot,
		Account:  core.AccountNormal,
		Name:     name,
	})
	require.NoError(t, err)
	return client
}

func TestContainerRegisterAndGet(t *testing.T) {
	c := NewContainer()
	client := newContainerClient(t, core.ExchangeBinance, "md")

	c.Register(client)

	key := client.Meta().String()
	got, err := c.Get(key)
	require.NoError(t, err)
	assert.Same(t, client, got)
	assert.True(t, c.Exists(key))
}

func TestContainerGetMissing(t *testing.T) {
	c := NewContainer()

	_, err := c.Get("binance-normal-spot")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.False(t, c.Exists("binance-normal-spot"))
}

func TestContainerRegisterOverwrites(t *testing.T) {
	c := NewContainer()
	first := newContainerClient(t, core.ExchangeBybit, "md")
	second := newContainerClient(t, core.ExchangeBybit, "md")

	c.Register(first)
	c.Register(second)

	got, err := c.Get(second.Meta().String())
	require.NoError(t, err)
	assert.Same(t, second, got)
	assert.Len(t, c.Keys(), 1)
}

func TestContainerKeys(t *testing.T) {
	c := NewContainer()
	c.Register(newContainerClient(t, core.ExchangeBinance, "a"))
	c.Register(newContainerClient(t, core.ExchangeOKX, "b"))

	keys := c.Keys()
	assert.Len(t, keys, 2)
	assert.ElementsMatch(t, []string{"binance-normal-spot-a", "okx-normal-spot-b"}, keys)
}

func TestContainerUnregister(t *testing.T) {
	c := NewContainer()
	client := newContainerClient(t, core.ExchangeGate, "md")
	c.Register(client)

	key := client.Meta().String()
	c.Unregister(key)
	assert.False(t, c.Exists(key))

	// Unregister leaves the client itself untouched.
	assert.Equal(t, wsclient.StateIdle, client.State())
}

func TestContainerCloseAll(t *testing.T) {
	c := NewContainer()
	first := newContainerClient(t, core.ExchangeCoinex, "a")
	second := newContainerClient(t, core.ExchangeCoinex, "b")
	c.Register(first)
	c.Register(second)

	require.NoError(t, c.CloseAll())
	assert.Empty(t, c.Keys())
	assert.Equal(t, wsclient.StateClosed, first.State())
	assert.Equal(t, wsclient.StateClosed, second.State())

	// Closing an empty container is a no-op.
	require.NoError(t, c.CloseAll())
}
