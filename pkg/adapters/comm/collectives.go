package comm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aretw0/decomp/pkg/ports"
)

const (
	tagBroadcast = "coll.bcast"
	tagGather    = "coll.gather"
)

// Collectives layers blocking broadcast and gather on any point-to-point transport.
// Each collective uses its own tag; per-pair FIFO delivery keeps consecutive calls apart.
type Collectives struct {
	ports.Transport
}

var _ ports.Communicator = (*Collectives)(nil)

// NewCollectives wraps a transport.
func NewCollectives(t ports.Transport) *Collectives {
	return &Collectives{Transport: t}
}

func (c *Collectives) Broadcast(ctx context.Context, root int, data []byte) ([]byte, error) {
	if err := c.checkRank(root); err != nil {
		return nil, err
	}
	if c.Rank() != root {
		return c.Recv(ctx, root, tagBroadcast)
	}
	for r := 0; r < c.Size(); r++ {
		if r == root {
			continue
		}
		if err := c.Send(ctx, r, tagBroadcast, data); err != nil {
			return nil, fmt.Errorf("broadcast to rank %d: %w", r, err)
		}
	}
	return data, nil
}

func (c *Collectives) Gather(ctx context.Context, root int, data []byte) ([][]byte, error) {
	if err := c.checkRank(root); err != nil {
		return nil, err
	}
	if c.Rank() != root {
		if err := c.Send(ctx, root, tagGather, data); err != nil {
			return nil, fmt.Errorf("gather to rank %d: %w", root, err)
		}
		return nil, nil
	}
	out := make([][]byte, c.Size())
	out[root] = data
	for r := 0; r < c.Size(); r++ {
		if r == root {
			continue
		}
		msg, err := c.Recv(ctx, r, tagGather)
		if err != nil {
			return nil, fmt.Errorf("gather from rank %d: %w", r, err)
		}
		out[r] = msg
	}
	return out, nil
}

// AllGather gathers on rank 0 and broadcasts the result.
func (c *Collectives) AllGather(ctx context.Context, data []byte) ([][]byte, error) {
	parts, err := c.Gather(ctx, 0, data)
	if err != nil {
		return nil, err
	}
	var packed []byte
	if c.Rank() == 0 {
		if packed, err = json.Marshal(parts); err != nil {
			return nil, fmt.Errorf("allgather: %w", err)
		}
	}
	packed, err = c.Broadcast(ctx, 0, packed)
	if err != nil {
		return nil, err
	}
	var out [][]byte
	if err := json.Unmarshal(packed, &out); err != nil {
		return nil, fmt.Errorf("allgather: %w", err)
	}
	return out, nil
}

func (c *Collectives) checkRank(r int) error {
	if r < 0 || r >= c.Size() {
		return fmt.Errorf("%w: %d of %d", ErrInvalidRank, r, c.Size())
	}
	return nil
}
