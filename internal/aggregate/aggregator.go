package aggregate

import (
	"fmt"
	"sort"

	"github.com/aretw0/decomp/pkg/domain"
)

// Member is one child of a group together with its weight.
type Member struct {
	Child  int
	Weight float64
}

// Aggregator turns the cuts returned by a parent's children into one cut list per
// master slot, one slot per group.
type Aggregator struct {
	groups [][]Member
	slotOf map[int]int
}

// New validates that groups exactly partition children and builds the aggregator.
// Empty groups means one group per child. Missing weights default to 1.
func New(children []int, weights map[int]float64, groups [][]int) (*Aggregator, error) {
	if len(groups) == 0 {
		groups = make([][]int, len(children))
		for i, c := range children {
			groups[i] = []int{c}
		}
	}

	isChild := make(map[int]bool, len(children))
	for _, c := range children {
		if isChild[c] {
			return nil, fmt.Errorf("%w: child %d listed twice", domain.ErrInvalidGroups, c)
		}
		isChild[c] = true
	}

	a := &Aggregator{slotOf: make(map[int]int, len(children))}
	for slot, group := range groups {
		if len(group) == 0 {
			return nil, fmt.Errorf("%w: group %d is empty", domain.ErrInvalidGroups, slot)
		}
		members := make([]Member, 0, len(group))
		for _, c := range group {
			if !isChild[c] {
				return nil, fmt.Errorf("%w: %d is not a child", domain.ErrInvalidGroups, c)
			}
			if prev, dup := a.slotOf[c]; dup {
				return nil, fmt.Errorf("%w: child %d in groups %d and %d", domain.ErrInvalidGroups, c, prev, slot)
			}
			a.slotOf[c] = slot
			w, ok := weights[c]
			if !ok {
				w = 1
			}
			members = append(members, Member{Child: c, Weight: w})
		}
		a.groups = append(a.groups, members)
	}
	if len(a.slotOf) != len(children) {
		missing := []int{}
		for _, c := range children {
			if _, ok := a.slotOf[c]; !ok {
				missing = append(missing, c)
			}
		}
		sort.Ints(missing)
		return nil, fmt.Errorf("%w: children %v in no group", domain.ErrInvalidGroups, missing)
	}
	return a, nil
}

// NumSlots returns the number of groups.
func (a *Aggregator) NumSlots() int { return len(a.groups) }

// Group returns the members of a slot.
func (a *Aggregator) Group(slot int) []Member { return a.groups[slot] }

// SlotOf returns the slot a child belongs to.
func (a *Aggregator) SlotOf(child int) (int, bool) {
	s, ok := a.slotOf[child]
	return s, ok
}

// Aggregate combines the children's cuts per group. If any member returned a
// feasibility cut, the group's list is every member's feasibility cuts and the
// optimality information of that round is dropped. Otherwise the group yields one
// optimality cut whose coefficients, rhs and objective are weighted sums over members.
// The payload is taken from the last member in group order.
func (a *Aggregator) Aggregate(childCuts map[int]domain.CutList) ([]domain.CutList, error) {
	out := make([]domain.CutList, len(a.groups))
	for slot, members := range a.groups {
		feasible := true
		for _, m := range members {
			list, ok := childCuts[m.Child]
			if !ok {
				return nil, fmt.Errorf("aggregate: no cuts from child %d", m.Child)
			}
			if list.HasFeasibility() {
				feasible = false
			}
		}

		if !feasible {
			var fc domain.CutList
			for _, m := range members {
				fc = append(fc, childCuts[m.Child].Feasibility()...)
			}
			out[slot] = fc
			continue
		}

		coeffs := map[int]float64{}
		rhs, objective := 0.0, 0.0
		var payload *domain.CutPayload
		for _, m := range members {
			for _, c := range childCuts[m.Child] {
				if !c.IsOptimality() {
					continue
				}
				for j, v := range c.Coeffs {
					coeffs[j] += m.Weight * v
				}
				rhs += m.Weight * c.Rhs
				objective += m.Weight * c.ObjectiveValue
				if c.Payload != nil {
					payload = c.Payload
				}
			}
		}
		cut := domain.NewOptimalityCut(coeffs, rhs, objective)
		cut.Payload = payload
		out[slot] = domain.CutList{cut}
	}
	return out, nil
}
