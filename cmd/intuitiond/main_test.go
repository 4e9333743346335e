package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testEnv isolates HOME so no operator config leaks in, and switches the
// store to the in-memory driver.
func testEnv(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("STORE_DRIVER", "memory")
}

func TestNewApp_WiresServices(t *testing.T) {
	testEnv(t)

	a, err := newApp(context.Background())
	require.NoError(t, err)
	defer a.Close(context.Background())

	assert.NotNil(t, a.store)
	assert.NotNil(t, a.events)
	assert.NotNil(t, a.heuristics)
	assert.NotNil(t, a.patterns)
	assert.NotNil(t, a.memories)
	assert.NotNil(t, a.outcomes)
	assert.NotNil(t, a.bus)
	assert.NotNil(t, a.starter)
	assert.NotNil(t, a.tenants)
	assert.NotNil(t, a.dream)
	assert.Nil(t, a.nats, "no NATS URL configured")
}

func TestNewApp_InvalidConfig(t *testing.T) {
	testEnv(t)
	t.Setenv("LOGGING_LEVEL", "loud")

	_, err := newApp(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading configuration")
}

func TestStarterCommand(t *testing.T) {
	testEnv(t)

	rootCmd.SetArgs([]string{"starter", "--tenant", "store-042", "--archetype", "urban_dispensary"})
	require.NoError(t, rootCmd.Execute())
}

func TestStarterCommand_Reapply(t *testing.T) {
	// Each invocation builds a fresh app, so the runs must share a
	// database to see each other's receipt.
	testEnv(t)
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("STORE_PATH", filepath.Join(t.TempDir(), "intuition.db"))

	rootCmd.SetArgs([]string{"starter", "--tenant", "store-042", "--archetype", "urban_dispensary"})
	require.NoError(t, rootCmd.Execute())

	rootCmd.SetArgs([]string{"starter", "--tenant", "store-042", "--archetype", "urban_dispensary"})
	require.NoError(t, rootCmd.Execute(), "second apply returns the stored receipt")
}

func TestStarterCommand_UnknownArchetype(t *testing.T) {
	testEnv(t)

	rootCmd.SetArgs([]string{"starter", "--tenant", "store-042", "--archetype", "mall-kiosk"})
	require.Error(t, rootCmd.Execute())
}

func TestDreamCommand_NoTenants(t *testing.T) {
	testEnv(t)

	rootCmd.SetArgs([]string{"dream"})
	require.NoError(t, rootCmd.Execute())
}

func TestReadinessCommand_NoTenants(t *testing.T) {
	testEnv(t)

	rootCmd.SetArgs([]string{"readiness"})
	require.NoError(t, rootCmd.Execute())
}
