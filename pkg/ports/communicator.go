package ports

import "context"

// Transport moves opaque messages between ranks point-to-point.
// Messages between a given (from, to, tag) triple are delivered in order.
type Transport interface {
	Rank() int
	Size() int
	Send(ctx context.Context, to int, tag string, data []byte) error
	Recv(ctx context.Context, from int, tag string) ([]byte, error)
	Close() error
}

// Communicator adds blocking collectives on top of a Transport.
// Every rank must call the same collectives in the same order.
type Communicator interface {
	Transport

	// Broadcast returns root's data on every rank.
	Broadcast(ctx context.Context, root int, data []byte) ([]byte, error)
	// Gather returns every rank's data, indexed by rank, on root; nil elsewhere.
	Gather(ctx context.Context, root int, data []byte) ([][]byte, error)
	// AllGather returns every rank's data, indexed by rank, on every rank.
	AllGather(ctx context.Context, data []byte) ([][]byte, error)
}
