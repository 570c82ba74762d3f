package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsFullyPopulated(t *testing.T) {
	c := Default()
	assert.Equal(t, "localhost:6379", c.Store.Addr)
	assert.Equal(t, "nats://localhost:4222", c.Bus.URL)
	assert.Equal(t, 5, c.Sweep.IntervalSeconds)
	assert.Equal(t, 15, c.Sweep.SampleSize)
	assert.Equal(t, 8, c.Dispatch.WorkerCount)
	assert.Equal(t, ":9090", c.HTTP.Addr)
}

func TestLoadOverridesOnlyGivenFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store:
  addr: redis.internal:6379
sweep:
  sample_size: 50
`), 0o644))

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "redis.internal:6379", c.Store.Addr)
	assert.Equal(t, 50, c.Sweep.SampleSize)
	// untouched fields keep their defaults
	assert.Equal(t, "nats://localhost:4222", c.Bus.URL)
	assert.Equal(t, 5, c.Sweep.IntervalSeconds)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestSweepIntervalConversion(t *testing.T) {
	c := Default()
	c.Sweep.IntervalSeconds = 7
	assert.Equal(t, "7s", c.SweepInterval().String())
}
