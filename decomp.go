package decomp

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/aretw0/decomp/internal/heuristic"
	"github.com/aretw0/decomp/internal/logging"
	"github.com/aretw0/decomp/internal/orchestrator"
	"github.com/aretw0/decomp/pkg/adapters/comm"
	"github.com/aretw0/decomp/pkg/config"
	"github.com/aretw0/decomp/pkg/domain"
	"github.com/aretw0/decomp/pkg/ports"
	"github.com/aretw0/decomp/pkg/problem"
)

// Version is the release of the engine. Overridden at link time.
var Version = "0.1.0-dev"

// Mode selects how the decomposition tree is driven.
type Mode string

const (
	// ModeTree runs every node in one process, recursing into inner nodes.
	ModeTree Mode = "tree"
	// ModeHub runs a single-level tree: one master and leaf children only.
	ModeHub Mode = "hub"
	// ModeDistributed spreads the children over the ranks of a communicator.
	ModeDistributed Mode = "distributed"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(s)); m {
	case ModeTree, ModeHub, ModeDistributed:
		return m, nil
	}
	return "", fmt.Errorf("unknown mode %q (want tree, hub or distributed)", s)
}

// Engine is the high-level entry point of the library. It binds a problem to its
// parameters and ambient services and builds a fresh tree for every run.
type Engine struct {
	problem  *problem.Problem
	params   config.Params
	hooks    domain.LifecycleHooks
	recorder ports.Recorder
	dumpDir  string
	logger   *slog.Logger
	Name     string
}

// Option configures the Engine.
type Option func(*Engine)

// WithParams replaces the default parameters.
func WithParams(p config.Params) Option {
	return func(e *Engine) {
		e.params = p
	}
}

// WithLifecycleHooks registers observability hooks on the root master.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithRecorder persists the iteration history of the root and of every inner node
// after each run.
func WithRecorder(r ports.Recorder) Option {
	return func(e *Engine) {
		e.recorder = r
	}
}

// WithDumpDir makes leaves save their model when a solve fails.
func WithDumpDir(dir string) Option {
	return func(e *Engine) {
		e.dumpDir = dir
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New loads the problem file at path.
func New(path string, opts ...Option) (*Engine, error) {
	p, err := problem.Load(path)
	if err != nil {
		return nil, err
	}
	eng, err := NewFromProblem(p, opts...)
	if err != nil {
		return nil, err
	}
	if eng.Name == "" {
		eng.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		eng.logger = eng.logger.With("problem", eng.Name)
	}
	return eng, nil
}

// NewFromProblem wraps an already decoded problem.
func NewFromProblem(p *problem.Problem, opts ...Option) (*Engine, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	eng := &Engine{problem: p, params: config.Defaults(), Name: p.Name}
	for _, opt := range opts {
		opt(eng)
	}
	if eng.logger == nil {
		eng.logger = logging.NewNop()
	}
	if eng.Name != "" {
		eng.logger = eng.logger.With("problem", eng.Name)
	}
	if err := eng.params.Validate(); err != nil {
		return nil, err
	}
	return eng, nil
}

// Problem returns the bound problem.
func (e *Engine) Problem() *problem.Problem { return e.problem }

// Params returns the run parameters.
func (e *Engine) Params() config.Params { return e.params }

// Run solves the problem in one process. ModeDistributed runs the ranks of an
// in-process world of size 1; use RunLocal or RunDistributed for more ranks.
func (e *Engine) Run(ctx context.Context, mode Mode) (domain.Result, error) {
	switch mode {
	case ModeDistributed:
		return e.RunLocal(ctx, 1)
	case ModeTree, ModeHub:
	default:
		return domain.Result{}, fmt.Errorf("unknown mode %q", mode)
	}

	inst, err := e.build()
	if err != nil {
		return domain.Result{}, err
	}
	opts := e.driverOptions(inst)
	if mode == ModeHub {
		hub, err := orchestrator.NewHubAndSpoke(inst.Root, inst.Children, opts...)
		if err != nil {
			return domain.Result{}, err
		}
		return hub.Run(ctx)
	}
	t, err := orchestrator.NewTree(inst.Root, inst.Children, opts...)
	if err != nil {
		return domain.Result{}, err
	}
	return t.Run(ctx)
}

// RunDistributed runs this process's share of the tree on the given rank. The master
// lives on rank 0; children are dealt to ranks by Instance.Assign.
func (e *Engine) RunDistributed(ctx context.Context, c ports.Communicator) (domain.Result, error) {
	inst, err := e.build()
	if err != nil {
		return domain.Result{}, err
	}
	assign, err := inst.Assign(c.Size())
	if err != nil {
		return domain.Result{}, err
	}
	local := inst.Local(assign, c.Rank())
	root := inst.Root
	if c.Rank() != 0 {
		root = nil
	}
	d, err := orchestrator.NewDistributed(c, root, local, e.driverOptions(inst)...)
	if err != nil {
		return domain.Result{}, err
	}
	return d.Run(ctx)
}

// RunLocal runs size ranks as goroutines over an in-process communicator and returns
// rank 0's result.
func (e *Engine) RunLocal(ctx context.Context, size int) (domain.Result, error) {
	if size < 1 {
		return domain.Result{}, fmt.Errorf("%w: world size %d", domain.ErrRankAssignment, size)
	}
	world := comm.NewLocalWorld(size)
	defer func() {
		for _, c := range world {
			_ = c.Close()
		}
	}()

	results := make([]domain.Result, size)
	g, gctx := errgroup.WithContext(ctx)
	for rank, c := range world {
		g.Go(func() error {
			res, err := e.RunDistributed(gctx, c)
			results[rank] = res
			return err
		})
	}
	err := g.Wait()
	return results[0], err
}

func (e *Engine) build() (*problem.Instance, error) {
	opts := []problem.BuildOption{
		problem.WithLogger(e.logger),
		problem.WithHooks(e.hooks),
	}
	if e.dumpDir != "" {
		opts = append(opts, problem.WithDumpDir(e.dumpDir))
	}
	return e.problem.Build(e.params, opts...)
}

func (e *Engine) driverOptions(inst *problem.Instance) []orchestrator.Option {
	opts := []orchestrator.Option{orchestrator.WithLogger(e.logger)}
	if e.recorder != nil {
		opts = append(opts, orchestrator.WithRecorder(e.recorder))
	}
	if e.params.Heuristic.Enabled && inst.Heuristic != nil {
		opts = append(opts, orchestrator.WithHeuristic(heuristic.New(inst.Heuristic,
			heuristic.WithScale(e.params.Heuristic.Scale),
			heuristic.WithLogger(e.logger))))
	}
	return opts
}
