package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCreateIsLazy(t *testing.T) {
	store := NewStore()
	require.Empty(t, store.IDs())

	first := store.GetOrCreate("abc", "gemini-2.0-flash-exp")
	second := store.GetOrCreate("abc", "gemini-2.0-flash-exp")
	assert.Same(t, first, second)
	assert.Equal(t, []string{"abc"}, store.IDs())
}

func TestReset(t *testing.T) {
	store := NewStore()
	store.GetOrCreate("abc", "default")

	assert.True(t, store.Reset("abc"))
	assert.False(t, store.Reset("abc"))
	assert.Empty(t, store.IDs())

	// A reset session starts from zero on next access.
	snap := store.GetOrCreate("abc", "default").Snapshot()
	assert.Zero(t, snap.TotalTokens)
}

func TestConcurrentAccessSameSession(t *testing.T) {
	store := NewStore()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ts := store.GetOrCreate("shared", "default")
			ts.Add(10, 5, time.Millisecond)
		}()
	}
	wg.Wait()

	snap := store.GetOrCreate("shared", "default").Snapshot()
	assert.Equal(t, uint64(32*15), snap.TotalTokens)
}
