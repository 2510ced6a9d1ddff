package problem

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/aretw0/decomp/internal/bundle"
	"github.com/aretw0/decomp/internal/heuristic"
	"github.com/aretw0/decomp/internal/logging"
	"github.com/aretw0/decomp/internal/tree"
	"github.com/aretw0/decomp/pkg/adapters/gonumlp"
	"github.com/aretw0/decomp/pkg/config"
	"github.com/aretw0/decomp/pkg/domain"
	"github.com/aretw0/decomp/pkg/ports"
)

// RootID is the node ID of the master. Children keep the IDs of the problem file.
const RootID = 0

const defaultMultiplierBound = 1e3

// Instance is a problem wired into a decomposition tree, ready for an orchestrator.
type Instance struct {
	Problem  *Problem
	Topology *tree.Topology
	Root     *tree.Parent
	Children []tree.ChildRole
	// Heuristic is nil when the decomposition has no primal coupling values to recover.
	Heuristic heuristic.ModelFactory
}

// BuildOption configures Build.
type BuildOption func(*buildOptions)

type buildOptions struct {
	logger  *slog.Logger
	hooks   domain.LifecycleHooks
	dumpDir string
}

// WithLogger sets the logger of every node and engine.
func WithLogger(logger *slog.Logger) BuildOption {
	return func(o *buildOptions) {
		o.logger = logger
	}
}

// WithHooks attaches lifecycle callbacks to the root engine.
func WithHooks(hooks domain.LifecycleHooks) BuildOption {
	return func(o *buildOptions) {
		o.hooks = hooks
	}
}

// WithDumpDir makes leaves save their model when a solve fails.
func WithDumpDir(dir string) BuildOption {
	return func(o *buildOptions) {
		o.dumpDir = dir
	}
}

// Build turns the problem into a decomposition tree: the master at RootID, one leaf
// per block or final-stage scenario, and one inner node per intermediate stage.
func (p *Problem) Build(params config.Params, opts ...BuildOption) (*Instance, error) {
	o := buildOptions{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	ids := p.ChildIDs()
	var (
		model    ports.MasterModel
		coupling []int
		links    map[int]domain.CouplingMatrix
		subs     map[int]ports.Subproblem
		gen      tree.CutGenerator
		nodes    []domain.Node
		factory  heuristic.ModelFactory
		err      error
	)
	switch p.Decomposition {
	case Lagrangian:
		model, coupling = p.dualMaster()
		links, subs, err = p.blocks()
		gen = tree.LagrangianGenerator{}
		nodes = append(nodes, domain.Node{ID: RootID, Children: ids, Groups: p.Groups})
		for _, id := range ids {
			nodes = append(nodes, domain.Node{ID: id, Parents: []int{RootID}})
		}
	default:
		model, coupling, err = p.master()
		if err != nil {
			return nil, err
		}
		links, subs, err = p.scenarios()
		gen = tree.BendersGenerator{}
		factory = func() (ports.MasterModel, []int, error) { return p.master() }
		nodes = append(nodes, domain.Node{ID: RootID, Children: ids, Multipliers: probabilities(p.Scenarios), Groups: p.Groups})
		nodes = stageNodes(nodes, p.Scenarios, RootID)
	}
	if err != nil {
		return nil, err
	}

	topo, err := tree.NewTopology(nodes, links)
	if err != nil {
		return nil, err
	}
	rootNode, err := topo.Node(RootID)
	if err != nil {
		return nil, err
	}

	engine, err := newEngine(model, coupling, params, RootID, o.logger, bundle.WithHooks(o.hooks))
	if err != nil {
		return nil, err
	}
	root, err := tree.NewParent(rootNode, engine, topo.Links(ids), tree.WithLogger(o.logger))
	if err != nil {
		return nil, err
	}

	b := stageBuilder{
		params:    params,
		opts:      o,
		topo:      topo,
		subs:      subs,
		gen:       gen,
		scenarios: p.scenarioIndex(),
	}
	children := make([]tree.ChildRole, 0, len(ids))
	for _, id := range ids {
		role, err := b.role(id)
		if err != nil {
			return nil, err
		}
		children = append(children, role)
	}

	return &Instance{
		Problem:   p,
		Topology:  topo,
		Root:      root,
		Children:  children,
		Heuristic: factory,
	}, nil
}

func newEngine(model ports.MasterModel, coupling []int, params config.Params, id int, logger *slog.Logger, opts ...bundle.Option) (bundle.Engine, error) {
	opts = append([]bundle.Option{bundle.WithLogger(logger), bundle.WithNodeID(id)}, opts...)
	method, err := bundle.NewMethod(model, coupling, params, opts...)
	if err != nil {
		return nil, err
	}
	if params.Proximal.Enabled {
		return bundle.NewProximal(method), nil
	}
	return method, nil
}

// stageBuilder turns each child of the master into its role, recursing through
// intermediate stages.
type stageBuilder struct {
	params    config.Params
	opts      buildOptions
	topo      *tree.Topology
	subs      map[int]ports.Subproblem
	gen       tree.CutGenerator
	scenarios map[int]Scenario
}

func (b *stageBuilder) role(id int) (tree.ChildRole, error) {
	node, err := b.topo.Node(id)
	if err != nil {
		return nil, err
	}
	logger := b.opts.logger.With("node", id)
	if len(node.Children) == 0 {
		leafOpts := []tree.Option{tree.WithLogger(logger)}
		if b.opts.dumpDir != "" {
			leafOpts = append(leafOpts, tree.WithDumpDir(b.opts.dumpDir))
		}
		return tree.NewLeaf(id, b.subs[id], b.gen, leafOpts...), nil
	}

	model, inputs, coupling := stageModel(b.scenarios[id], b.topo.Link(id).Cols)
	engine, err := newEngine(model, coupling, b.params, id, logger)
	if err != nil {
		return nil, fmt.Errorf("scenario %d: %w", id, err)
	}
	parent, err := tree.NewParent(node, engine, b.topo.Links(node.Children), tree.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	children := make([]tree.ChildRole, 0, len(node.Children))
	for _, c := range node.Children {
		role, err := b.role(c)
		if err != nil {
			return nil, err
		}
		children = append(children, role)
	}
	return tree.NewInner(parent, model, inputs, children)
}

// stageModel is the master of an intermediate stage: free inputs standing for the
// parent's coupling positions, the recourse y >= 0 priced at q, and W y + T x >= h.
// It returns the input and y handles.
func stageModel(s Scenario, cols int) (ports.MasterModel, []int, []int) {
	model := gonumlp.NewModel(domain.Minimize)
	inputs := make([]int, cols)
	for j := range inputs {
		inputs[j] = model.AddVariable(math.Inf(-1), math.Inf(1))
	}
	ys := make([]int, len(s.Q))
	for k, q := range s.Q {
		ys[k] = model.AddVariable(0, math.Inf(1))
		model.SetObjectiveCoeff(ys[k], q)
	}
	for r, h := range s.H {
		coeffs := make(map[int]float64, len(ys)+len(inputs))
		for k, a := range s.W[r] {
			if a != 0 {
				coeffs[ys[k]] = a
			}
		}
		for j, a := range s.T[r] {
			if a != 0 {
				coeffs[inputs[j]] = a
			}
		}
		model.AddRow(coeffs, h, math.Inf(1))
	}
	return model, inputs, ys
}

// stageNodes appends a topology node for every scenario below parent, depth first.
func stageNodes(nodes []domain.Node, list []Scenario, parent int) []domain.Node {
	for _, s := range list {
		n := domain.Node{ID: s.ID, Parents: []int{parent}}
		if len(s.Children) > 0 {
			n.Children = make([]int, len(s.Children))
			for i, c := range s.Children {
				n.Children[i] = c.ID
			}
			n.Multipliers = probabilities(s.Children)
		}
		nodes = append(nodes, n)
		nodes = stageNodes(nodes, s.Children, s.ID)
	}
	return nodes
}

func (p *Problem) scenarioIndex() map[int]Scenario {
	out := make(map[int]Scenario)
	var walk func([]Scenario)
	walk = func(list []Scenario) {
		for _, s := range list {
			out[s.ID] = s
			walk(s.Children)
		}
	}
	walk(p.Scenarios)
	return out
}

// master builds a fresh Benders master and returns the coupling handles in position order.
func (p *Problem) master() (ports.MasterModel, []int, error) {
	m := p.Master
	sense := m.Sense
	if sense == "" {
		sense = domain.Minimize
	}
	model := gonumlp.NewModel(sense)

	handles := make(map[string]int, len(m.Variables))
	for _, v := range m.Variables {
		lower, upper := 0.0, math.Inf(1)
		if v.Lower != nil {
			lower = *v.Lower
		}
		if v.Upper != nil {
			upper = *v.Upper
		}
		h := model.AddVariable(lower, upper)
		model.SetInteger(h, v.Integer)
		handles[v.Name] = h
	}
	if len(m.Objectives) > 0 {
		for name, c := range m.Objectives[0] {
			model.SetObjectiveCoeff(handles[name], c)
		}
	}
	for _, c := range m.Constraints {
		coeffs := make(map[int]float64, len(c.Coeffs))
		for name, a := range c.Coeffs {
			coeffs[handles[name]] = a
		}
		lower, upper := math.Inf(-1), math.Inf(1)
		if c.Lower != nil {
			lower = *c.Lower
		}
		if c.Upper != nil {
			upper = *c.Upper
		}
		model.AddRow(coeffs, lower, upper)
	}

	coupling := make([]int, len(m.Coupling))
	for i, name := range m.Coupling {
		h, ok := handles[name]
		if !ok {
			return nil, nil, fmt.Errorf("%w: %q", domain.ErrUnknownCouplingVariable, name)
		}
		coupling[i] = h
	}
	return model, coupling, nil
}

// scenarios returns the technology matrix of every scenario at any depth and the
// recourse program of every final-stage scenario.
func (p *Problem) scenarios() (map[int]domain.CouplingMatrix, map[int]ports.Subproblem, error) {
	links := make(map[int]domain.CouplingMatrix)
	subs := make(map[int]ports.Subproblem)

	var walk func(list []Scenario, cols int) error
	walk = func(list []Scenario, cols int) error {
		for _, s := range list {
			links[s.ID] = dense(s.T, cols)
			if len(s.Children) > 0 {
				if err := walk(s.Children, len(s.Q)); err != nil {
					return err
				}
				continue
			}
			var opts []gonumlp.RecourseOption
			if s.Bound != nil {
				opts = append(opts, gonumlp.WithBound(*s.Bound))
			}
			rec, err := gonumlp.NewRecourse(s.Q, s.W, s.H, opts...)
			if err != nil {
				return fmt.Errorf("scenario %d: %w", s.ID, err)
			}
			subs[s.ID] = rec
		}
		return nil
	}
	if err := walk(p.Scenarios, len(p.Master.Coupling)); err != nil {
		return nil, nil, err
	}
	return links, subs, nil
}

// probabilities weights siblings by their declared probabilities. Missing ones share
// what the declared ones leave, evenly.
func probabilities(list []Scenario) map[int]float64 {
	declared, missing := 0.0, 0
	for _, s := range list {
		if s.Probability != nil {
			declared += *s.Probability
		} else {
			missing++
		}
	}
	share := 0.0
	if missing > 0 {
		share = math.Max(0, 1-declared) / float64(missing)
	}

	weights := make(map[int]float64, len(list))
	for _, s := range list {
		if s.Probability != nil {
			weights[s.ID] = *s.Probability
		} else {
			weights[s.ID] = share
		}
	}
	return weights
}

// dualMaster builds the multiplier master: maximize sum(theta) - b'lambda over a box
// whose sign follows each relaxed row's type.
func (p *Problem) dualMaster() (ports.MasterModel, []int) {
	bound := p.MultiplierBound
	if bound <= 0 {
		bound = defaultMultiplierBound
	}
	model := gonumlp.NewModel(domain.Maximize)
	coupling := make([]int, len(p.Relaxed))
	for i, r := range p.Relaxed {
		lower, upper := -bound, bound
		switch r.Type {
		case "<=":
			lower = 0
		case ">=":
			upper = 0
		}
		h := model.AddVariable(lower, upper)
		model.SetObjectiveCoeff(h, -r.Rhs)
		coupling[i] = h
	}
	return model, coupling
}

func (p *Problem) blocks() (map[int]domain.CouplingMatrix, map[int]ports.Subproblem, error) {
	links := make(map[int]domain.CouplingMatrix, len(p.Blocks))
	subs := make(map[int]ports.Subproblem, len(p.Blocks))
	for _, b := range p.Blocks {
		blk, err := gonumlp.NewBlock(b.C, b.W, b.H, b.Lower, b.Upper)
		if err != nil {
			return nil, nil, fmt.Errorf("block %d: %w", b.ID, err)
		}
		subs[b.ID] = blk
		links[b.ID] = dense(b.A, len(b.C))
	}
	return links, subs, nil
}

// dense converts a row-major matrix into its sparse coupling form.
func dense(rows [][]float64, cols int) domain.CouplingMatrix {
	m := domain.CouplingMatrix{Rows: len(rows), Cols: cols}
	for i, row := range rows {
		for j, v := range row {
			if v != 0 {
				m.Entries = append(m.Entries, domain.Entry{Row: i, Col: j, Value: v})
			}
		}
	}
	return m
}

// Assign maps every child of the master to a rank of a world of the given size.
// Children pinned in the problem file keep their rank; the rest are dealt round-robin
// over the workers 1..size-1, or all kept on rank 0 when there are no workers. An
// intermediate stage takes its whole subtree to its rank.
func (in *Instance) Assign(size int) (map[int]int, error) {
	if size < 1 {
		return nil, fmt.Errorf("%w: world size %d", domain.ErrRankAssignment, size)
	}
	pins := in.Problem.pins()
	out := make(map[int]int)
	next := 0
	for _, id := range in.Problem.ChildIDs() {
		if r, ok := pins[id]; ok {
			if r < 0 || r >= size {
				return nil, fmt.Errorf("%w: child %d pinned to rank %d of %d", domain.ErrRankAssignment, id, r, size)
			}
			out[id] = r
			continue
		}
		if size == 1 {
			out[id] = 0
			continue
		}
		out[id] = 1 + next%(size-1)
		next++
	}
	return out, nil
}

// Local returns the child roles assigned to rank, in ID order.
func (in *Instance) Local(assign map[int]int, rank int) []tree.ChildRole {
	var out []tree.ChildRole
	for _, c := range in.Children {
		if r, ok := assign[c.ID()]; ok && r == rank {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func (p *Problem) pins() map[int]int {
	out := map[int]int{}
	for _, s := range p.Scenarios {
		if s.Rank != nil {
			out[s.ID] = *s.Rank
		}
	}
	for _, b := range p.Blocks {
		if b.Rank != nil {
			out[b.ID] = *b.Rank
		}
	}
	return out
}
