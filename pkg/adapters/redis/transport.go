package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"

	"github.com/aretw0/decomp/pkg/domain"
	"github.com/aretw0/decomp/pkg/ports"
)

// ErrRankClaimed is returned when another process already holds the rank in this run.
var ErrRankClaimed = errors.New("rank already claimed")

const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// Transport implements ports.Transport over Redis lists: one list per
// (run, from, to, tag), RPUSH to send and BLPOP to receive.
type Transport struct {
	client *backend.Client
	owned  bool
	prefix string
	runID  string
	rank   int
	size   int
	ttl    time.Duration
	poll   time.Duration
	token  string
}

var _ ports.Transport = (*Transport)(nil)

type Option func(*Transport)

// WithTTL sets the expiration of message lists and the rank claim.
func WithTTL(ttl time.Duration) Option {
	return func(t *Transport) {
		t.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(t *Transport) {
		t.prefix = prefix
	}
}

// WithPollInterval sets how long a single BLPOP waits before re-checking the context.
func WithPollInterval(d time.Duration) Option {
	return func(t *Transport) {
		t.poll = d
	}
}

// New connects to Redis and claims the rank.
func New(ctx context.Context, address, password string, db int, runID string, rank, size int, opts ...Option) (*Transport, error) {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	t, err := NewFromClient(ctx, rdb, runID, rank, size, opts...)
	if err != nil {
		_ = rdb.Close()
		return nil, err
	}
	t.owned = true
	return t, nil
}

// NewFromClient claims the rank on an existing client. The client is not closed by Close.
func NewFromClient(ctx context.Context, client *backend.Client, runID string, rank, size int, opts ...Option) (*Transport, error) {
	if rank < 0 || rank >= size {
		return nil, fmt.Errorf("%w: rank %d of %d", domain.ErrRankAssignment, rank, size)
	}
	if runID == "" {
		return nil, errors.New("redis transport: empty run id")
	}
	t := &Transport{
		client: client,
		prefix: "decomp:",
		runID:  runID,
		rank:   rank,
		size:   size,
		ttl:    24 * time.Hour,
		poll:   time.Second,
		token:  uuid.NewString(),
	}
	for _, opt := range opts {
		opt(t)
	}

	ok, err := client.SetNX(ctx, t.claimKey(), t.token, t.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis error claiming rank: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: rank %d in run %s", ErrRankClaimed, rank, runID)
	}
	return t, nil
}

func (t *Transport) claimKey() string {
	return fmt.Sprintf("%s%s:rank:%d", t.prefix, t.runID, t.rank)
}

func (t *Transport) key(from, to int, tag string) string {
	return fmt.Sprintf("%s%s:msg:%d:%d:%s", t.prefix, t.runID, from, to, tag)
}

func (t *Transport) Rank() int { return t.rank }

func (t *Transport) Size() int { return t.size }

// Send appends data to the destination list and refreshes its expiration.
func (t *Transport) Send(ctx context.Context, to int, tag string, data []byte) error {
	if to < 0 || to >= t.size {
		return fmt.Errorf("%w: rank %d of %d", domain.ErrRankAssignment, to, t.size)
	}
	key := t.key(t.rank, to, tag)
	pipe := t.client.Pipeline()
	pipe.RPush(ctx, key, data)
	if t.ttl > 0 {
		pipe.Expire(ctx, key, t.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to send to rank %d: %w", to, err)
	}
	return nil
}

// Recv blocks until a message from the given rank and tag arrives or ctx is done.
func (t *Transport) Recv(ctx context.Context, from int, tag string) ([]byte, error) {
	if from < 0 || from >= t.size {
		return nil, fmt.Errorf("%w: rank %d of %d", domain.ErrRankAssignment, from, t.size)
	}
	key := t.key(from, t.rank, tag)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := t.client.BLPop(ctx, t.poll, key).Result()
		if err == backend.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to receive from rank %d: %w", from, err)
		}
		// res is [key, value]
		return []byte(res[1]), nil
	}
}

// Close releases the rank claim and closes the client when it was created by New.
func (t *Transport) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := t.client.Eval(ctx, releaseScript, []string{t.claimKey()}, t.token).Err()
	if t.owned {
		err = errors.Join(err, t.client.Close())
	}
	return err
}
