package processor

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/ChuLiYu/action-engine/internal/store"
)

// newMiniredisAdapter gives each test its own in-process Redis server, the
// same tool internal/store's own tests use, so Record behaves exactly as it
// does in production rather than against a hand-rolled fake.
func newMiniredisAdapter(t *testing.T) *store.Adapter {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return store.NewAdapter(rdb)
}
