package redis_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/decomp/pkg/adapters/comm"
	"github.com/aretw0/decomp/pkg/adapters/redis"
	"github.com/aretw0/decomp/pkg/domain"
	"github.com/aretw0/decomp/pkg/ports"
)

func newWorld(t *testing.T, mr *miniredis.Miniredis, runID string, size int) []ports.Communicator {
	t.Helper()
	ctx := context.Background()
	world := make([]ports.Communicator, size)
	for r := 0; r < size; r++ {
		client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
		tr, err := redis.NewFromClient(ctx, client, runID, r, size)
		require.NoError(t, err)
		t.Cleanup(func() {
			_ = tr.Close()
			_ = client.Close()
		})
		world[r] = comm.NewCollectives(tr)
	}
	return world
}

func TestRedisTransport_Contract(t *testing.T) {
	// Setup miniredis
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	defer mr.Close()

	ports.RunCommunicatorContract(t, newWorld(t, mr, "contract", 3))
}

func TestRedisTransport_RankClaim(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	ctx := context.Background()
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	defer client.Close()

	first, err := redis.NewFromClient(ctx, client, "run-1", 0, 2)
	require.NoError(t, err)
	assert.True(t, mr.Exists("decomp:run-1:rank:0"), "claim key should be set in Redis")

	_, err = redis.NewFromClient(ctx, client, "run-1", 0, 2)
	assert.ErrorIs(t, err, redis.ErrRankClaimed)

	// Another run may reuse the rank.
	other, err := redis.NewFromClient(ctx, client, "run-2", 0, 2)
	require.NoError(t, err)
	require.NoError(t, other.Close())

	require.NoError(t, first.Close())
	assert.False(t, mr.Exists("decomp:run-1:rank:0"), "claim key should be removed after Close")
}

func TestRedisTransport_InvalidRank(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	defer client.Close()

	_, err = redis.NewFromClient(context.Background(), client, "run", 3, 2)
	assert.ErrorIs(t, err, domain.ErrRankAssignment)

	_, err = redis.NewFromClient(context.Background(), client, "", 0, 2)
	assert.Error(t, err)
}

func TestRedisTransport_Prefix(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	ctx := context.Background()
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	defer client.Close()

	tr, err := redis.NewFromClient(ctx, client, "p", 0, 2, redis.WithPrefix("test:"))
	require.NoError(t, err)
	defer tr.Close()

	require.NoError(t, tr.Send(ctx, 1, "tag", []byte("hello")))
	items, err := mr.List("test:p:msg:0:1:tag")
	require.NoError(t, err)
	assert.Equal(t, []string{"hello"}, items)
}
