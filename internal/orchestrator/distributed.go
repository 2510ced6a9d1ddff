package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/aretw0/decomp/internal/tree"
	"github.com/aretw0/decomp/pkg/domain"
	"github.com/aretw0/decomp/pkg/ports"
)

const (
	tagInitDn  = "init.dn."
	tagInitUp  = "init.up."
	tagFinalDn = "final.dn."
	tagFinalUp = "final.up."
)

// Distributed runs the root on rank 0 and the root's children on the ranks they are
// pinned to. Every iteration the trial point is broadcast, each rank solves its local
// children, and the cuts are gathered on rank 0, which steps the same Parent loop as
// Tree. The handshake and the final hand-off travel point-to-point.
type Distributed struct {
	options
	comm  ports.Communicator
	root  *tree.Parent
	local map[int]tree.ChildRole
	ids   []int
	inner []*tree.Inner

	owner map[int]int
}

// NewDistributed builds the driver for one rank. root must be set on rank 0 only;
// local holds the children pinned to this rank.
func NewDistributed(comm ports.Communicator, root *tree.Parent, local []tree.ChildRole, opts ...Option) (*Distributed, error) {
	if (comm.Rank() == 0) != (root != nil) {
		return nil, fmt.Errorf("%w: the root must live on rank 0 only (rank %d)", domain.ErrRankAssignment, comm.Rank())
	}
	d := &Distributed{
		options: newOptions(opts),
		comm:    comm,
		root:    root,
		local:   make(map[int]tree.ChildRole, len(local)),
	}
	for _, c := range local {
		if _, dup := d.local[c.ID()]; dup {
			return nil, fmt.Errorf("%w: child %d listed twice on rank %d", domain.ErrRankAssignment, c.ID(), comm.Rank())
		}
		d.local[c.ID()] = c
		d.ids = append(d.ids, c.ID())
	}
	sort.Ints(d.ids)
	ordered := make([]tree.ChildRole, 0, len(d.ids))
	for _, id := range d.ids {
		ordered = append(ordered, d.local[id])
	}
	d.inner = tree.InnerNodes(ordered)
	return d, nil
}

// Run performs the three phases on this rank. Every rank returns the same Result.
func (d *Distributed) Run(ctx context.Context) (domain.Result, error) {
	start := time.Now()
	if err := d.assign(ctx); err != nil {
		return domain.Result{}, err
	}
	if err := d.initialize(ctx); err != nil {
		return domain.Result{}, err
	}

	status, runErr := d.main(ctx)
	if err := d.agree(ctx, status, runErr); err != nil {
		if d.root != nil {
			return d.result(d.root, d.inner, 0, start), err
		}
		d.recordInner(d.inner)
		return domain.Result{Status: status}, err
	}

	var res domain.Result
	var finalErr error
	if d.root != nil {
		objective, err := d.finalize(ctx, d.root, d.exchange)
		res, finalErr = d.result(d.root, d.inner, objective, start), err
	} else {
		finalErr = d.serveFinal(ctx)
		d.recordInner(d.inner)
	}
	return d.share(ctx, res, finalErr)
}

// assign builds the child-to-rank map by all-gather and has rank 0 check that it is a
// bijection onto the root's children. The verdict is broadcast so every rank stops
// together on a bad assignment.
func (d *Distributed) assign(ctx context.Context) error {
	data, err := json.Marshal(d.ids)
	if err != nil {
		return err
	}
	parts, err := d.comm.AllGather(ctx, data)
	if err != nil {
		return fmt.Errorf("rank map: %w", err)
	}

	var verdict string
	d.owner = make(map[int]int)
	for r, p := range parts {
		var ids []int
		if err := json.Unmarshal(p, &ids); err != nil {
			return fmt.Errorf("rank map: %w", err)
		}
		for _, id := range ids {
			if prev, dup := d.owner[id]; dup && verdict == "" {
				verdict = fmt.Sprintf("child %d pinned to ranks %d and %d", id, prev, r)
			}
			d.owner[id] = r
		}
	}
	if d.root != nil && verdict == "" {
		verdict = d.checkCover()
	}

	msg, err := d.comm.Broadcast(ctx, 0, []byte(verdict))
	if err != nil {
		return err
	}
	if len(msg) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrRankAssignment, msg)
	}
	d.logger.Debug("rank map built", "rank", d.comm.Rank(), "local", d.ids)
	return nil
}

func (d *Distributed) checkCover() string {
	children := d.root.Node().Children
	if len(d.owner) != len(children) {
		return fmt.Sprintf("%d pinned nodes for %d children", len(d.owner), len(children))
	}
	for _, c := range children {
		if _, ok := d.owner[c]; !ok {
			return fmt.Sprintf("child %d pinned to no rank", c)
		}
	}
	return ""
}

// initialize runs the handshake: rank 0 sends every InitDn, each owner answers with
// InitUp, and rank 0 builds the master.
func (d *Distributed) initialize(ctx context.Context) error {
	var ups map[int]domain.InitUp
	if d.root != nil {
		for _, c := range d.root.Node().Children {
			if err := d.send(ctx, d.owner[c], tagInitDn, c, d.root.InitMessage(c)); err != nil {
				return err
			}
		}
	}

	for _, id := range d.ids {
		var msg domain.InitDn
		if err := d.recv(ctx, 0, tagInitDn, id, &msg); err != nil {
			return err
		}
		up, err := d.local[id].Init(ctx, msg)
		if err != nil {
			up = domain.InitUp{NodeID: id, Error: err.Error()}
		}
		if err := d.send(ctx, 0, tagInitUp, id, up); err != nil {
			return err
		}
	}

	var failed []error
	if d.root != nil {
		ups = make(map[int]domain.InitUp)
		for _, c := range d.root.Node().Children {
			var up domain.InitUp
			if err := d.recv(ctx, d.owner[c], tagInitUp, c, &up); err != nil {
				return err
			}
			if up.Error != "" {
				failed = append(failed, fmt.Errorf("child %d: %s", c, up.Error))
			}
			ups[c] = up
		}
		if len(failed) == 0 {
			if err := d.root.Build(ups); err != nil {
				failed = append(failed, err)
			}
		}
	}

	verdict := ""
	if err := errors.Join(failed...); err != nil {
		verdict = err.Error()
	}
	msg, err := d.comm.Broadcast(ctx, 0, []byte(verdict))
	if err != nil {
		return err
	}
	if len(msg) > 0 {
		return fmt.Errorf("initialization failed: %s", msg)
	}
	return nil
}

// main runs the iteration loop. Rank 0 drives the Parent; the other ranks serve
// broadcasts until the terminate sentinel.
func (d *Distributed) main(ctx context.Context) (domain.Status, error) {
	if d.root == nil {
		return d.serve(ctx)
	}
	status, err := d.root.Run(ctx, d.iterate)
	if status == "" {
		status = domain.StatusNotFinished
	}
	stop, merr := json.Marshal(domain.Dn{Iteration: domain.TerminateSentinel, Status: status})
	if merr != nil {
		return status, errors.Join(err, merr)
	}
	if _, berr := d.comm.Broadcast(ctx, 0, stop); berr != nil {
		return status, errors.Join(err, berr)
	}
	return status, err
}

// iterate is rank 0's SolveFunc: broadcast, solve locally, gather, merge.
func (d *Distributed) iterate(ctx context.Context, iteration int, trial []float64) (map[int]domain.CutList, error) {
	data, err := json.Marshal(domain.Dn{Iteration: iteration, Trial: trial})
	if err != nil {
		return nil, err
	}
	if _, err := d.comm.Broadcast(ctx, 0, data); err != nil {
		return nil, err
	}
	up := d.solveLocal(ctx, trial)
	payload, err := json.Marshal(up)
	if err != nil {
		return nil, err
	}
	parts, err := d.comm.Gather(ctx, 0, payload)
	if err != nil {
		return nil, err
	}
	return d.merge(iteration, parts)
}

// merge unions the per-rank cut maps; the union must cover the root's children exactly once.
func (d *Distributed) merge(iteration int, parts [][]byte) (map[int]domain.CutList, error) {
	out := make(map[int]domain.CutList)
	var failed []error
	for r, p := range parts {
		var up domain.Up
		if err := json.Unmarshal(p, &up); err != nil {
			return nil, fmt.Errorf("rank %d: %w", r, err)
		}
		if up.Error != "" {
			failed = append(failed, fmt.Errorf("rank %d: %w: %s", r, domain.ErrSubproblemFailed, up.Error))
			continue
		}
		for id, cuts := range up.Cuts {
			if d.owner[id] != r {
				return nil, fmt.Errorf("%w: rank %d returned cuts for child %d", domain.ErrRankAssignment, r, id)
			}
			if _, dup := out[id]; dup {
				return nil, fmt.Errorf("%w: child %d returned twice", domain.ErrRankAssignment, id)
			}
			out[id] = cuts
		}
	}
	if err := errors.Join(failed...); err != nil {
		return nil, fmt.Errorf("iteration %d: %w", iteration, err)
	}
	if len(out) != len(d.root.Node().Children) {
		return nil, fmt.Errorf("%w: cuts for %d of %d children", domain.ErrRankAssignment, len(out), len(d.root.Node().Children))
	}
	return out, nil
}

func (d *Distributed) solveLocal(ctx context.Context, trial []float64) domain.Up {
	up := domain.Up{Rank: d.comm.Rank(), Cuts: make(map[int]domain.CutList, len(d.ids))}
	for _, id := range d.ids {
		cuts, err := d.local[id].Solve(ctx, trial)
		if err != nil {
			d.logger.Error("local solve failed", "rank", d.comm.Rank(), "node", id, "err", err)
			return domain.Up{Rank: d.comm.Rank(), Error: err.Error()}
		}
		up.Cuts[id] = cuts
	}
	return up
}

func (d *Distributed) serve(ctx context.Context) (domain.Status, error) {
	for {
		data, err := d.comm.Broadcast(ctx, 0, nil)
		if err != nil {
			return domain.StatusNotFinished, err
		}
		var dn domain.Dn
		if err := json.Unmarshal(data, &dn); err != nil {
			return domain.StatusNotFinished, err
		}
		if dn.Terminate() {
			return dn.Status, nil
		}
		payload, err := json.Marshal(d.solveLocal(ctx, dn.Trial))
		if err != nil {
			return domain.StatusNotFinished, err
		}
		if _, err := d.comm.Gather(ctx, 0, payload); err != nil {
			return domain.StatusNotFinished, err
		}
	}
}

type outcome struct {
	Status domain.Status `json:"status"`
	Error  string        `json:"error,omitempty"`
}

// agree all-gathers every rank's terminal status and main-phase error. Any error stops
// every rank before finalization. Disagreeing statuses are reported, not repaired.
func (d *Distributed) agree(ctx context.Context, status domain.Status, runErr error) error {
	mine := outcome{Status: status}
	if runErr != nil {
		mine.Error = runErr.Error()
	}
	data, err := json.Marshal(mine)
	if err != nil {
		return errors.Join(runErr, err)
	}
	parts, err := d.comm.AllGather(ctx, data)
	if err != nil {
		return errors.Join(runErr, err)
	}

	outcomes := make([]outcome, len(parts))
	var failed []error
	for r, p := range parts {
		if err := json.Unmarshal(p, &outcomes[r]); err != nil {
			return errors.Join(runErr, err)
		}
		if outcomes[r].Error != "" && r != d.comm.Rank() {
			failed = append(failed, fmt.Errorf("rank %d: %s", r, outcomes[r].Error))
		}
	}
	if runErr != nil || len(failed) > 0 {
		return errors.Join(append([]error{runErr}, failed...)...)
	}
	for r, o := range outcomes {
		if o.Status != outcomes[0].Status {
			return fmt.Errorf("%w: rank 0 %q, rank %d %q", domain.ErrStatusDisagreement, outcomes[0].Status, r, o.Status)
		}
	}
	return nil
}

// exchange is rank 0's final hand-off: FinalDn to every owner, FinalUp back.
func (d *Distributed) exchange(ctx context.Context, msgs map[int]domain.FinalDn) (map[int]domain.FinalUp, error) {
	children := d.root.Node().Children
	for _, c := range children {
		if err := d.send(ctx, d.owner[c], tagFinalDn, c, msgs[c]); err != nil {
			return nil, err
		}
	}
	if err := d.serveFinal(ctx); err != nil {
		return nil, err
	}
	out := make(map[int]domain.FinalUp, len(children))
	var failed []error
	for _, c := range children {
		var up domain.FinalUp
		if err := d.recv(ctx, d.owner[c], tagFinalUp, c, &up); err != nil {
			return nil, err
		}
		if up.Error != "" {
			failed = append(failed, fmt.Errorf("child %d: %s", c, up.Error))
		}
		out[c] = up
	}
	return out, errors.Join(failed...)
}

// serveFinal finalizes the local children.
func (d *Distributed) serveFinal(ctx context.Context) error {
	for _, id := range d.ids {
		var msg domain.FinalDn
		if err := d.recv(ctx, 0, tagFinalDn, id, &msg); err != nil {
			return err
		}
		up, err := d.local[id].Finalize(ctx, msg)
		if err != nil {
			up = domain.FinalUp{NodeID: id, Error: err.Error()}
		}
		if err := d.send(ctx, 0, tagFinalUp, id, up); err != nil {
			return err
		}
	}
	return nil
}

type shared struct {
	Result domain.Result `json:"result"`
	Error  string        `json:"error,omitempty"`
}

// share broadcasts rank 0's result so every rank returns it.
func (d *Distributed) share(ctx context.Context, res domain.Result, finalErr error) (domain.Result, error) {
	var data []byte
	if d.root != nil {
		s := shared{Result: res}
		if finalErr != nil {
			s.Error = finalErr.Error()
		}
		var err error
		if data, err = json.Marshal(s); err != nil {
			return res, err
		}
	}
	data, err := d.comm.Broadcast(ctx, 0, data)
	if err != nil {
		return res, err
	}
	if d.root != nil {
		return res, finalErr
	}
	var s shared
	if err := json.Unmarshal(data, &s); err != nil {
		return domain.Result{}, err
	}
	if s.Error != "" {
		return s.Result, fmt.Errorf("finalization failed: %s", s.Error)
	}
	return s.Result, finalErr
}

func (d *Distributed) send(ctx context.Context, to int, tag string, id int, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return d.comm.Send(ctx, to, tag+strconv.Itoa(id), data)
}

func (d *Distributed) recv(ctx context.Context, from int, tag string, id int, v any) error {
	data, err := d.comm.Recv(ctx, from, tag+strconv.Itoa(id))
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
