// Package backendtest holds the behavioural contract every engine.Backend
// must satisfy. Adapter packages run it from their own tests.
package backendtest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cachecompare/engine"
)

// Options tailors the contract to what a backend supports.
type Options struct {
	// PerEntryTTL enables the expiry checks.
	PerEntryTTL bool
	// Advance moves the backend's clock forward by d. Defaults to time.Sleep.
	Advance func(d time.Duration)
	// Scan enables the Scan checks; otherwise ErrScanUnsupported is expected.
	Scan bool
}

// Run executes the contract. newBackend must return a fresh, empty backend.
func Run(t *testing.T, newBackend func(t *testing.T) engine.Backend, opts Options) {
	t.Helper()
	if opts.Advance == nil {
		opts.Advance = time.Sleep
	}

	t.Run("MissingKey", func(t *testing.T) {
		b := newBackend(t)
		_, err := b.Get(context.Background(), "absent")
		require.ErrorIs(t, err, engine.ErrMiss)
	})

	t.Run("PutGetOverwrite", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()
		require.NoError(t, b.Put(ctx, "k", []byte("v1"), 0))
		got, err := b.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("v1"), got)

		require.NoError(t, b.Put(ctx, "k", []byte("v2"), time.Minute))
		got, err = b.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("v2"), got)
	})

	t.Run("PutCopiesValue", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()
		v := []byte("abc")
		require.NoError(t, b.Put(ctx, "k", v, 0))
		v[0] = 'z'
		got, err := b.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("abc"), got)
	})

	t.Run("DeleteIdempotent", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()
		require.NoError(t, b.Put(ctx, "k", []byte("v"), 0))
		require.NoError(t, b.Delete(ctx, "k"))
		_, err := b.Get(ctx, "k")
		require.ErrorIs(t, err, engine.ErrMiss)
		require.NoError(t, b.Delete(ctx, "k"))
		require.NoError(t, b.Delete(ctx, "never-existed"))
	})

	if opts.PerEntryTTL {
		t.Run("Expiry", func(t *testing.T) {
			b := newBackend(t)
			ctx := context.Background()
			require.NoError(t, b.Put(ctx, "short", []byte("v"), time.Second))
			require.NoError(t, b.Put(ctx, "long", []byte("v"), time.Hour))
			opts.Advance(1500 * time.Millisecond)
			_, err := b.Get(ctx, "short")
			require.ErrorIs(t, err, engine.ErrMiss)
			_, err = b.Get(ctx, "long")
			require.NoError(t, err)
		})
	}

	t.Run("Scan", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()
		for _, k := range []string{"a:1", "a:2", "a:3", "b:1"} {
			require.NoError(t, b.Put(ctx, k, []byte(k), 0))
		}
		var keys []string
		err := b.Scan(ctx, "a:", func(k string, v []byte) bool {
			assert.Equal(t, k, string(v))
			keys = append(keys, k)
			return true
		})
		if !opts.Scan {
			require.ErrorIs(t, err, engine.ErrScanUnsupported)
			return
		}
		require.NoError(t, err)
		sort.Strings(keys)
		assert.Equal(t, []string{"a:1", "a:2", "a:3"}, keys)

		visited := 0
		require.NoError(t, b.Scan(ctx, "a:", func(string, []byte) bool {
			visited++
			return false
		}))
		assert.Equal(t, 1, visited)
	})

	t.Run("Concurrent", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()
		const workers, perWorker = 8, 50
		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := 0; i < perWorker; i++ {
					k := fmt.Sprintf("c:%d:%d", w, i)
					if err := b.Put(ctx, k, []byte(k), 0); err != nil {
						t.Errorf("put %s: %v", k, err)
						return
					}
					if _, err := b.Get(ctx, k); err != nil {
						t.Errorf("get %s: %v", k, err)
						return
					}
				}
			}(w)
		}
		wg.Wait()
	})

	t.Run("Name", func(t *testing.T) {
		assert.NotEmpty(t, newBackend(t).Name())
	})
}
