package lock

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireRelease(t *testing.T) {
	m := NewManager(0)

	token, err := m.TryAcquire(1)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	_, err = m.TryAcquire(1)
	assert.True(t, eris.Is(err, ErrRefused))

	require.NoError(t, m.Release(1, token))

	// Released lock can be re-acquired.
	token2, err := m.TryAcquire(1)
	require.NoError(t, err)
	assert.NotEqual(t, token, token2)
}

func TestDistinctSourcesIndependent(t *testing.T) {
	m := NewManager(0)

	t1, err := m.TryAcquire(1)
	require.NoError(t, err)
	t2, err := m.TryAcquire(2)
	require.NoError(t, err)

	assert.NotEqual(t, t1, t2)
	require.NoError(t, m.Release(1, t1))
	require.NoError(t, m.Release(2, t2))
}

func TestReleaseWrongToken(t *testing.T) {
	m := NewManager(0)

	token, err := m.TryAcquire(1)
	require.NoError(t, err)

	assert.True(t, eris.Is(m.Release(1, "bogus"), ErrNotHeld))
	assert.True(t, eris.Is(m.Release(2, token), ErrNotHeld))

	// Real holder is undisturbed.
	_, err = m.TryAcquire(1)
	assert.True(t, eris.Is(err, ErrRefused))
}

func TestMutualExclusionConcurrent(t *testing.T) {
	m := NewManager(0)

	for i := 0; i < 100; i++ {
		var wins atomic.Int32
		var wg sync.WaitGroup
		tokens := make([]string, 8)

		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func(g int) {
				defer wg.Done()
				if token, err := m.TryAcquire(42); err == nil {
					wins.Add(1)
					tokens[g] = token
				}
			}(g)
		}
		wg.Wait()

		assert.Equal(t, int32(1), wins.Load())
		for _, token := range tokens {
			if token != "" {
				require.NoError(t, m.Release(42, token))
			}
		}
	}
}

func TestExpiredLockIsReclaimed(t *testing.T) {
	m := NewManager(10 * time.Minute)

	base := time.Now()
	m.now = func() time.Time { return base }

	stale, err := m.TryAcquire(1)
	require.NoError(t, err)

	// Not yet expired: still refused.
	m.now = func() time.Time { return base.Add(9 * time.Minute) }
	_, err = m.TryAcquire(1)
	assert.True(t, eris.Is(err, ErrRefused))

	// Past max age: a new acquisition is permitted.
	m.now = func() time.Time { return base.Add(11 * time.Minute) }
	fresh, err := m.TryAcquire(1)
	require.NoError(t, err)

	// Stale token can no longer release the reclaimed lock.
	assert.True(t, eris.Is(m.Release(1, stale), ErrNotHeld))
	require.NoError(t, m.Release(1, fresh))
}
