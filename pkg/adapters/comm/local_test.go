package comm_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/aretw0/decomp/pkg/adapters/comm"
	"github.com/aretw0/decomp/pkg/ports"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestLocalWorld_Contract(t *testing.T) {
	locals := comm.NewLocalWorld(3)
	world := make([]ports.Communicator, len(locals))
	for i, c := range locals {
		world[i] = c
	}
	ports.RunCommunicatorContract(t, world)
	for _, c := range locals {
		require.NoError(t, c.Close())
	}
}

func TestLocal_InvalidRank(t *testing.T) {
	world := comm.NewLocalWorld(2)
	ctx := context.Background()

	err := world[0].Send(ctx, 2, "x", nil)
	assert.ErrorIs(t, err, comm.ErrInvalidRank)

	_, err = world[0].Broadcast(ctx, -1, nil)
	assert.ErrorIs(t, err, comm.ErrInvalidRank)
}

func TestLocal_CloseUnblocksRecv(t *testing.T) {
	world := comm.NewLocalWorld(2)
	done := make(chan error, 1)
	go func() {
		_, err := world[1].Recv(context.Background(), 0, "pending")
		done <- err
	}()

	require.NoError(t, world[1].Close())
	select {
	case err := <-done:
		assert.ErrorIs(t, err, comm.ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("Recv did not return after Close")
	}

	err := world[1].Send(context.Background(), 0, "late", []byte("x"))
	assert.ErrorIs(t, err, comm.ErrClosed)
}

func TestLocal_SendDoesNotAliasBuffer(t *testing.T) {
	world := comm.NewLocalWorld(2)
	ctx := context.Background()
	buf := []byte("abc")
	require.NoError(t, world[0].Send(ctx, 1, "t", buf))
	buf[0] = 'z'

	got, err := world[1].Recv(ctx, 0, "t")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}
