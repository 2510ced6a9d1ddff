package comm

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrInvalidRank is returned when a rank is outside [0, size).
	ErrInvalidRank = errors.New("invalid rank")
	// ErrClosed is returned by operations on a closed transport.
	ErrClosed = errors.New("transport closed")
)

type route struct {
	from, to int
	tag      string
}

// queue is an unbounded FIFO with a single consumer.
type queue struct {
	mu    sync.Mutex
	items [][]byte
	ready chan struct{}
}

func (q *queue) push(b []byte) {
	q.mu.Lock()
	q.items = append(q.items, b)
	q.mu.Unlock()
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func (q *queue) pop() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	b := q.items[0]
	q.items = q.items[1:]
	return b, true
}

// world is the shared mailbox set of an in-process group of ranks.
type world struct {
	size   int
	mu     sync.Mutex
	queues map[route]*queue
}

func (w *world) queue(r route) *queue {
	w.mu.Lock()
	defer w.mu.Unlock()
	q, ok := w.queues[r]
	if !ok {
		q = &queue{ready: make(chan struct{}, 1)}
		w.queues[r] = q
	}
	return q
}

// Local is the point-to-point transport of one rank in an in-process world.
// Send never blocks.
type Local struct {
	world *world
	rank  int
	done  chan struct{}
	once  sync.Once
}

// NewLocalWorld returns size communicators sharing in-memory mailboxes, indexed by rank.
// Closing a rank unblocks its pending Recv calls.
func NewLocalWorld(size int) []*Collectives {
	w := &world{size: size, queues: make(map[route]*queue)}
	out := make([]*Collectives, size)
	for r := range out {
		out[r] = NewCollectives(&Local{world: w, rank: r, done: make(chan struct{})})
	}
	return out
}

func (l *Local) Rank() int { return l.rank }

func (l *Local) Size() int { return l.world.size }

func (l *Local) Send(ctx context.Context, to int, tag string, data []byte) error {
	if to < 0 || to >= l.world.size {
		return fmt.Errorf("%w: %d", ErrInvalidRank, to)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-l.done:
		return ErrClosed
	default:
	}
	l.world.queue(route{from: l.rank, to: to, tag: tag}).push(append([]byte(nil), data...))
	return nil
}

func (l *Local) Recv(ctx context.Context, from int, tag string) ([]byte, error) {
	if from < 0 || from >= l.world.size {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRank, from)
	}
	q := l.world.queue(route{from: from, to: l.rank, tag: tag})
	for {
		if b, ok := q.pop(); ok {
			return b, nil
		}
		select {
		case <-q.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-l.done:
			return nil, ErrClosed
		}
	}
}

func (l *Local) Close() error {
	l.once.Do(func() { close(l.done) })
	return nil
}
