package pool

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryReturnsSamePoolForEqualKeys(t *testing.T) {
	backend := &fakeBackend{}
	r := NewRegistry(backend.factory, nil)

	cfg := Config{Endpoint: "db:5432", User: "app", Database: "orders", MaxSize: 5}

	p1, err := r.GetOrCreate(cfg)
	require.NoError(t, err)
	p2, err := r.GetOrCreate(cfg)
	require.NoError(t, err)
	assert.Same(t, p1, p2)

	other := cfg
	other.Database = "billing"
	p3, err := r.GetOrCreate(other)
	require.NoError(t, err)
	assert.NotSame(t, p1, p3)
}

func TestRegistryConcurrentGetOrCreate(t *testing.T) {
	backend := &fakeBackend{}
	r := NewRegistry(backend.factory, nil)

	cfg := Config{Endpoint: "db:5432", User: "app", Database: "orders", MaxSize: 5}

	const goroutines = 32
	pools := make([]*Pool, goroutines)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := r.GetOrCreate(cfg)
			if err != nil {
				t.Errorf("GetOrCreate: %v", err)
				return
			}
			pools[i] = p
		}(i)
	}
	wg.Wait()

	for i := 1; i < goroutines; i++ {
		assert.Same(t, pools[0], pools[i])
	}
	assert.Len(t, r.Pools(), 1)
}

func TestRegistryRejectsInvalidConfig(t *testing.T) {
	backend := &fakeBackend{}
	r := NewRegistry(backend.factory, nil)

	cfg := Config{Endpoint: "db:5432", MinSize: 9, MaxSize: 3}
	_, err := r.GetOrCreate(cfg)
	require.Error(t, err)
	assert.True(t, IsConfigError(err))

	// Nothing was retained for the bad key.
	assert.Empty(t, r.Pools())
	assert.Equal(t, 0, backend.openCalls())
}

func TestRegistryAcquire(t *testing.T) {
	backend := &fakeBackend{}
	r := NewRegistry(backend.factory, func(cfg Config) Credentials {
		return Credentials{User: cfg.User, Password: "hunter2", Database: cfg.Database}
	})

	cfg := Config{Endpoint: "db:5432", User: "app", Database: "orders", MaxSize: 2, AcquireTimeout: time.Second}

	pc, err := r.Acquire(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, pc)
	pc.Release()

	snap := r.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "db:5432", snap[0].Endpoint)
	assert.Equal(t, 0, snap[0].Busy)
	assert.Equal(t, 1, snap[0].Idle)
}

func TestRegistryClose(t *testing.T) {
	backend := &fakeBackend{}
	r := NewRegistry(backend.factory, nil)

	cfg := Config{Endpoint: "db:5432", User: "app", Database: "orders", MaxSize: 2}
	pc, err := r.Acquire(context.Background(), cfg)
	require.NoError(t, err)
	pc.Release()

	r.Close()

	_, err = r.Acquire(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrPoolClosed)
}
