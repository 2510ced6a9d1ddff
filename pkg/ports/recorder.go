package ports

import "github.com/aretw0/decomp/pkg/domain"

// Recorder persists a node's iteration history at the end of a run.
type Recorder interface {
	WriteHistory(nodeID int, records []domain.IterationRecord) error
}
