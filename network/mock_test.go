package network

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ncoder/npgsql/pool"
)

func TestMockFactoryScriptedFailures(t *testing.T) {
	factory := NewMockConnectorFactory(true, 2)

	cfg := pool.Config{Endpoint: "mock:0", User: "app", Database: "orders", MaxSize: 3, AcquireTimeout: time.Second}
	p, err := pool.NewPool(cfg, pool.Credentials{}, factory.Factory())
	require.NoError(t, err)
	defer p.Close()

	// The first two opens fail per the script, then opens succeed.
	_, err = p.Acquire(context.Background())
	require.Error(t, err)
	assert.True(t, pool.IsCreateError(err))

	_, err = p.Acquire(context.Background())
	require.Error(t, err)

	pc, err := p.Acquire(context.Background())
	require.NoError(t, err)
	pc.Release()

	require.Len(t, factory.Opened(), 1)
}

func TestMockConnectorLifecycleThroughPool(t *testing.T) {
	factory := NewMockConnectorFactory(false, 0)

	cfg := pool.Config{Endpoint: "mock:0", User: "app", Database: "orders", MaxSize: 2, AcquireTimeout: time.Second}
	p, err := pool.NewPool(cfg, pool.Credentials{}, factory.Factory())
	require.NoError(t, err)
	defer p.Close()

	pc, err := p.Acquire(context.Background())
	require.NoError(t, err)
	mc := pc.Conn().(*MockConnector)
	pc.Release()

	// A clean release resets the session and re-idles it.
	assert.Equal(t, 1, mc.Resets())
	assert.False(t, mc.Closed())
	assert.Equal(t, 1, p.Status().Idle)

	// A broken connector is discarded, not re-idled.
	pc, err = p.Acquire(context.Background())
	require.NoError(t, err)
	require.Same(t, mc, pc.Conn())
	mc.SetBroken()
	pc.Release()

	assert.True(t, mc.Closed())
	assert.Equal(t, 0, p.Status().Idle)
}
