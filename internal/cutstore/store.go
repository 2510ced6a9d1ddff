package cutstore

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/aretw0/decomp/internal/logging"
	"github.com/aretw0/decomp/pkg/domain"
)

// RowModel is the part of the master model the store needs to manage cut rows.
type RowModel interface {
	SetRowActive(row int, active bool)
	RowActivity(row int) float64
	RowBounds(row int) (lower, upper float64)
}

// CutInfo is an active cut together with its master bookkeeping.
type CutInfo struct {
	Name      string
	Cut       domain.Cut
	Row       int
	Iteration int
	Trial     []float64
	Age       int
}

type slot struct {
	cuts        []*CutInfo
	optimality  int
	feasibility int
}

// Store keeps the active cuts of every master slot.
type Store struct {
	model  RowModel
	slots  []slot
	logger *slog.Logger

	similarity float64
	slack      float64
	maxAge     int
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New initializes bookkeeping for numSlots slots.
func New(numSlots int, model RowModel, similarity, slack float64, maxAge int, opts ...Option) *Store {
	s := &Store{
		model:      model,
		slots:      make([]slot, numSlots),
		logger:     logging.NewNop(),
		similarity: similarity,
		slack:      slack,
		maxAge:     maxAge,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NumSlots returns the number of slots.
func (s *Store) NumSlots() int { return len(s.slots) }

// Append records a cut whose master row was just added. A cut within the similarity
// tolerance of an active cut of the same slot and kind is discarded and its row
// deactivated.
// Counters advance in both cases so generated names stay stable.
func (s *Store) Append(slotIdx int, cut domain.Cut, row int, iteration int, trial []float64) bool {
	sl := &s.slots[slotIdx]
	var name string
	if cut.IsFeasibility() {
		name = fmt.Sprintf("feas_%d_%d", slotIdx, sl.feasibility)
		sl.feasibility++
	} else {
		name = fmt.Sprintf("opt_%d_%d", slotIdx, sl.optimality)
		sl.optimality++
	}

	for _, info := range sl.cuts {
		if info.Cut.Kind == cut.Kind && info.Cut.Distance(cut) < s.similarity {
			s.model.SetRowActive(row, false)
			s.logger.Debug("duplicate cut discarded", "slot", slotIdx, "cut", name, "existing", info.Name)
			return false
		}
	}

	sl.cuts = append(sl.cuts, &CutInfo{
		Name:      name,
		Cut:       cut,
		Row:       row,
		Iteration: iteration,
		Trial:     append([]float64(nil), trial...),
	})
	return true
}

// IncrementAge resets the age of binding cuts and ages the others by one.
func (s *Store) IncrementAge() {
	for i := range s.slots {
		for _, info := range s.slots[i].cuts {
			if s.binding(info.Row) {
				info.Age = 0
			} else {
				info.Age++
			}
		}
	}
}

// Purge deactivates and drops cuts whose age reached maxAge. It returns the number removed.
func (s *Store) Purge() int {
	removed := 0
	for i := range s.slots {
		kept := s.slots[i].cuts[:0]
		for _, info := range s.slots[i].cuts {
			if info.Age >= s.maxAge {
				s.model.SetRowActive(info.Row, false)
				removed++
				continue
			}
			kept = append(kept, info)
		}
		for j := len(kept); j < len(s.slots[i].cuts); j++ {
			s.slots[i].cuts[j] = nil
		}
		s.slots[i].cuts = kept
	}
	if removed > 0 {
		s.logger.Debug("purged aged cuts", "removed", removed)
	}
	return removed
}

// Active returns the active cuts of a slot in insertion order.
func (s *Store) Active(slotIdx int) []*CutInfo {
	return s.slots[slotIdx].cuts
}

// Len returns the number of active cuts of a slot.
func (s *Store) Len(slotIdx int) int {
	return len(s.slots[slotIdx].cuts)
}

// Total returns the number of active cuts across slots.
func (s *Store) Total() int {
	n := 0
	for i := range s.slots {
		n += len(s.slots[i].cuts)
	}
	return n
}

// Counts returns how many optimality and feasibility cuts were ever offered to a slot.
func (s *Store) Counts(slotIdx int) (optimality, feasibility int) {
	return s.slots[slotIdx].optimality, s.slots[slotIdx].feasibility
}

func (s *Store) binding(row int) bool {
	act := s.model.RowActivity(row)
	lo, up := s.model.RowBounds(row)
	if !math.IsInf(lo, -1) && math.Abs(act-lo) <= s.slack {
		return true
	}
	if !math.IsInf(up, 1) && math.Abs(act-up) <= s.slack {
		return true
	}
	return false
}
