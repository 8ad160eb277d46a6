package webhook

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDispatcherIsSingletonPerStore(t *testing.T) {
	t.Cleanup(ShutdownAll)

	storeA := &memStore{}
	storeB := &memStore{}
	opts := testDispatcherOptions()

	first := GetDispatcher(storeA, opts)
	second := GetDispatcher(storeA, opts)
	assert.Same(t, first, second, "one dispatcher per store")

	other := GetDispatcher(storeB, opts)
	assert.NotSame(t, first, other, "distinct stores get distinct dispatchers")
}

func TestGetDispatcherStartsOnFirstUse(t *testing.T) {
	t.Cleanup(ShutdownAll)

	store := &memStore{}
	d := GetDispatcher(store, testDispatcherOptions())
	require.NotNil(t, d)
	assert.True(t, d.isRunning())
}

func TestShutdownDispatcherAllowsRestart(t *testing.T) {
	t.Cleanup(ShutdownAll)

	store := &memStore{}
	opts := testDispatcherOptions()

	first := GetDispatcher(store, opts)
	ShutdownDispatcher(store)
	assert.False(t, first.isRunning())

	second := GetDispatcher(store, opts)
	assert.NotSame(t, first, second, "a fresh dispatcher is created after shutdown")
	assert.True(t, second.isRunning())
}

func TestShutdownDispatcherUnknownStore(t *testing.T) {
	assert.NotPanics(t, func() { ShutdownDispatcher(&memStore{}) })
}

func TestShutdownAll(t *testing.T) {
	storeA := &memStore{}
	storeB := &memStore{}
	opts := testDispatcherOptions()

	a := GetDispatcher(storeA, opts)
	b := GetDispatcher(storeB, opts)
	ShutdownAll()

	assert.Eventually(t, func() bool {
		return !a.isRunning() && !b.isRunning()
	}, 2*time.Second, 5*time.Millisecond)

	assert.NotSame(t, a, GetDispatcher(storeA, opts))
	ShutdownAll()
}
