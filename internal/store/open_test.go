package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/lalith-99/echoforum/internal/config"
	"github.com/lalith-99/echoforum/internal/repository"
	"github.com/lalith-99/echoforum/internal/repository/pebbledb"
	"github.com/lalith-99/echoforum/internal/repository/redisdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestOpenPebble(t *testing.T) {
	cfg := &config.Config{StoreBackend: config.BackendPebble, PebblePath: t.TempDir(), StartupRetries: 1}
	table, err := Open(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer table.Close()
	assert.IsType(t, &pebbledb.ItemStore{}, table)
}

func TestOpenRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &config.Config{StoreBackend: config.BackendRedis, RedisURL: "redis://" + mr.Addr(), StartupRetries: 1}
	table, err := Open(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer table.Close()
	assert.IsType(t, &redisdb.ItemStore{}, table)

	require.NoError(t, table.Put(context.Background(), &repository.Item{PK: "p", SK: "s", EntityType: repository.EntityThread}))
}

func TestOpenGivesUp(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := &config.Config{StoreBackend: config.BackendRedis, RedisURL: "redis://" + addr, StartupRetries: 2}
	_, err := Open(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open redis store")
}

func TestOpenUnknownBackend(t *testing.T) {
	cfg := &config.Config{StoreBackend: "etcd", StartupRetries: 1}
	_, err := Open(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
}
