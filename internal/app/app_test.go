package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/hospital-registration-agent/internal/config"
	"github.com/hackgods/hospital-registration-agent/pkg/logging"
)

func TestBuildInMemory(t *testing.T) {
	cfg := config.Config{
		StoreDriver:   config.StoreDriverMemory,
		SessionDriver: config.SessionDriverMemory,
	}

	a, err := Build(context.Background(), cfg, logging.Discard(), prometheus.NewRegistry())
	require.NoError(t, err)
	t.Cleanup(a.Close)

	assert.Nil(t, a.Postgres)
	assert.Nil(t, a.Redis)

	reply := a.Machine.HandleTurn(context.Background(), "alice", "register")
	assert.Contains(t, reply, "first name")
}

func TestBuildSQLiteWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.Config{
		StoreDriver:   config.StoreDriverSQLite,
		SQLitePath:    filepath.Join(t.TempDir(), "agent.db"),
		SessionDriver: config.SessionDriverRedis,
		RedisAddr:     mr.Addr(),
		SlotLocking:   true,
	}

	a, err := Build(context.Background(), cfg, logging.Discard(), prometheus.NewRegistry())
	require.NoError(t, err)
	t.Cleanup(a.Close)
	require.NotNil(t, a.Redis)

	a.Machine.HandleTurn(context.Background(), "bob", "register")
	assert.True(t, mr.Exists("session:bob"))
}

func TestBuildFailsOnUnreachableRedis(t *testing.T) {
	cfg := config.Config{
		StoreDriver:   config.StoreDriverMemory,
		SessionDriver: config.SessionDriverRedis,
		RedisAddr:     "127.0.0.1:1",
	}

	_, err := Build(context.Background(), cfg, logging.Discard(), prometheus.NewRegistry())
	require.Error(t, err)
}
