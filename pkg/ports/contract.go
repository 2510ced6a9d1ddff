package ports

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// RunCommunicatorContract runs a suite of tests to verify that a group of
// Communicators, indexed by rank, adheres to the defined interface contract.
// The group must have at least two ranks.
func RunCommunicatorContract(t *testing.T, world []Communicator) {
	require.GreaterOrEqual(t, len(world), 2, "contract needs at least two ranks")
	size := len(world)

	// each runs fn on every rank concurrently.
	each := func(t *testing.T, fn func(ctx context.Context, c Communicator) error) {
		t.Helper()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		g, ctx := errgroup.WithContext(ctx)
		for _, c := range world {
			g.Go(func() error { return fn(ctx, c) })
		}
		require.NoError(t, g.Wait())
	}

	t.Run("Rank and Size", func(t *testing.T) {
		for r, c := range world {
			assert.Equal(t, r, c.Rank())
			assert.Equal(t, size, c.Size())
		}
	})

	t.Run("Send and Recv preserve order", func(t *testing.T) {
		each(t, func(ctx context.Context, c Communicator) error {
			switch c.Rank() {
			case 0:
				for i := 0; i < 3; i++ {
					if err := c.Send(ctx, 1, "order", []byte(fmt.Sprint(i))); err != nil {
						return err
					}
				}
			case 1:
				for i := 0; i < 3; i++ {
					msg, err := c.Recv(ctx, 0, "order")
					if err != nil {
						return err
					}
					if string(msg) != fmt.Sprint(i) {
						return fmt.Errorf("message %d arrived as %q", i, msg)
					}
				}
			}
			return nil
		})
	})

	t.Run("Tags are independent", func(t *testing.T) {
		each(t, func(ctx context.Context, c Communicator) error {
			switch c.Rank() {
			case 0:
				if err := c.Send(ctx, 1, "a", []byte("first")); err != nil {
					return err
				}
				return c.Send(ctx, 1, "b", []byte("second"))
			case 1:
				b, err := c.Recv(ctx, 0, "b")
				if err != nil {
					return err
				}
				a, err := c.Recv(ctx, 0, "a")
				if err != nil {
					return err
				}
				if string(a) != "first" || string(b) != "second" {
					return fmt.Errorf("got a=%q b=%q", a, b)
				}
			}
			return nil
		})
	})

	t.Run("Broadcast", func(t *testing.T) {
		each(t, func(ctx context.Context, c Communicator) error {
			var data []byte
			if c.Rank() == 0 {
				data = []byte("trial")
			}
			got, err := c.Broadcast(ctx, 0, data)
			if err != nil {
				return err
			}
			if string(got) != "trial" {
				return fmt.Errorf("rank %d got %q", c.Rank(), got)
			}
			return nil
		})
	})

	t.Run("Gather", func(t *testing.T) {
		each(t, func(ctx context.Context, c Communicator) error {
			parts, err := c.Gather(ctx, 0, []byte(fmt.Sprint(c.Rank())))
			if err != nil {
				return err
			}
			if c.Rank() != 0 {
				if parts != nil {
					return fmt.Errorf("rank %d received gather result", c.Rank())
				}
				return nil
			}
			if len(parts) != size {
				return fmt.Errorf("gathered %d parts", len(parts))
			}
			for r, p := range parts {
				if string(p) != fmt.Sprint(r) {
					return fmt.Errorf("part %d is %q", r, p)
				}
			}
			return nil
		})
	})

	t.Run("AllGather", func(t *testing.T) {
		each(t, func(ctx context.Context, c Communicator) error {
			parts, err := c.AllGather(ctx, []byte(fmt.Sprint(c.Rank()*10)))
			if err != nil {
				return err
			}
			if len(parts) != size {
				return fmt.Errorf("rank %d gathered %d parts", c.Rank(), len(parts))
			}
			for r, p := range parts {
				if string(p) != fmt.Sprint(r*10) {
					return fmt.Errorf("rank %d part %d is %q", c.Rank(), r, p)
				}
			}
			return nil
		})
	})

	t.Run("Recv honours context", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err := world[0].Recv(ctx, 1, "never")
		assert.Error(t, err)
	})
}
