package app

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"routeopt/internal/config"
	"routeopt/internal/events"
	"routeopt/internal/geo"
	"routeopt/internal/store"
)

func baseConfig() *config.AppConfig {
	return &config.AppConfig{
		ServiceName: "routeopt-test",
		Queue:       config.QueueConfig{Name: "test:requests", Wait: 10 * time.Millisecond},
		Routing: config.RoutingConfig{
			Profile: "driving-car", RPS: 5, Burst: 5, Timeout: time.Second,
			BlockSize: 10, Concurrency: 2, CacheTTL: time.Hour,
		},
	}
}

func TestBuildInMemory(t *testing.T) {
	d, err := Build(context.Background(), baseConfig(), nil)
	require.NoError(t, err)
	defer d.Close()

	assert.IsType(t, &store.Memory{}, d.Store)
	assert.Nil(t, d.Queue)
	assert.Nil(t, d.Redis)
	assert.Nil(t, d.Worker())
	assert.Same(t, d.Broker, d.Follow)
	assert.Len(t, d.Events, 1)
	assert.NotNil(t, d.Runner)
}

func TestBuildWithRedisAndWebhook(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := baseConfig()
	cfg.RedisURL = "redis://" + mr.Addr()
	cfg.Webhook = config.WebhookConfig{URL: "http://127.0.0.1:1/hook", Secret: "s", MaxAttempts: 1}
	cfg.Queue.LeaseTimeout = 90 * time.Millisecond
	cfg.Queue.MaxDeliveries = 2

	d, err := Build(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer d.Close()

	require.NotNil(t, d.Queue)
	assert.Equal(t, 2, d.Queue.MaxDeliveries)
	assert.IsType(t, &events.RedisPublisher{}, d.Follow)
	multi, ok := d.Events.(events.Multi)
	require.True(t, ok)
	assert.Len(t, multi, 3)

	w := d.Worker()
	require.NotNil(t, w)
	assert.Equal(t, "routeopt-test", w.Source)
	assert.Equal(t, 10*time.Millisecond, w.Wait)
	assert.Equal(t, 30*time.Millisecond, w.Heartbeat)

	_, err = d.Queue.Send(context.Background(), []byte(`{}`))
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:requests:pending"))
}

func TestBuildRedisUnreachable(t *testing.T) {
	cfg := baseConfig()
	cfg.RedisURL = "redis://127.0.0.1:1"
	_, err := Build(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis ping")
}

func TestBuildBadRedisURL(t *testing.T) {
	cfg := baseConfig()
	cfg.RedisURL = "://nope"
	_, err := Build(context.Background(), cfg, nil)
	require.Error(t, err)
}

func TestProviders(t *testing.T) {
	cfg := baseConfig().Routing

	f := Providers(cfg, nil, nil)
	_, err := f.Provider(geo.RoadDistance, false)
	assert.ErrorIs(t, err, geo.ErrNoRoutingService)
	p, err := f.Provider(geo.AirDistance, false)
	require.NoError(t, err)
	assert.Equal(t, geo.AirDistance, p.Kind())

	cfg.BaseURL = "https://ors.example.com"
	f = Providers(cfg, nil, nil)
	p, err = f.Provider(geo.RoadDistance, true)
	require.NoError(t, err)
	assert.Equal(t, geo.RoadDistance, p.Kind())
}
