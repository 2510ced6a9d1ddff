package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/aretw0/decomp"
	"github.com/aretw0/decomp/internal/metrics"
	"github.com/aretw0/decomp/pkg/adapters/comm"
	"github.com/aretw0/decomp/pkg/adapters/file"
	httpAdapter "github.com/aretw0/decomp/pkg/adapters/http"
	"github.com/aretw0/decomp/pkg/adapters/redis"
	"github.com/aretw0/decomp/pkg/config"
	"github.com/aretw0/decomp/pkg/domain"
)

// RunOptions contains all the configuration for the run command.
type RunOptions struct {
	ProblemPath string
	ConfigPath  string
	Mode        string
	// Ranks is the number of in-process ranks in distributed mode.
	Ranks int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	// Rank >= 0 runs a single rank of a multi-process world of Size ranks.
	Rank  int
	Size  int
	RunID string

	// Watch re-solves whenever the problem or config file changes.
	Watch bool

	OutputDir   string
	MetricsAddr string
	LogLevel    string
	Overrides   map[string]string

	Stdout io.Writer
}

// Execute handles the run command: load parameters, build the engine, dispatch on
// mode and print the result.
func Execute(opts RunOptions) error {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Watch {
		return RunWatch(opts)
	}
	ctx := NewSignalContext(context.Background())
	defer ctx.Cancel()

	err := runOnce(ctx, opts)
	if sig := ctx.Signal(); sig != nil {
		printSystemMessage(opts.Stdout, "Interrupted by %s.", sig)
	}
	return handleExecutionError(err)
}

// runOnce loads everything from disk, solves and prints the result.
func runOnce(ctx context.Context, opts RunOptions) error {
	params, err := loadParams(opts.ConfigPath, opts.Overrides)
	if err != nil {
		return err
	}
	level := params.LogLevel
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	logger, err := createLogger(level)
	if err != nil {
		return err
	}
	mode, err := decomp.ParseMode(opts.Mode)
	if err != nil {
		return err
	}

	out := opts.OutputDir
	if out == "" {
		out = params.OutputDir
	}
	if out == "" {
		out = file.DefaultBasePath
	}

	collector := metrics.NewCollector()
	hooks := metrics.Chain(collector.Hooks(), createDebugHooks(logger))
	eng, err := decomp.New(opts.ProblemPath,
		decomp.WithParams(params),
		decomp.WithLogger(logger),
		decomp.WithLifecycleHooks(hooks),
		decomp.WithRecorder(file.New(out)),
		decomp.WithDumpDir(filepath.Join(out, "dumps")),
	)
	if err != nil {
		return err
	}

	stop := serveMetrics(logger, opts.MetricsAddr, collector)
	defer stop()

	res, err := dispatch(ctx, eng, mode, opts, logger)
	if err == nil || res.Status != "" {
		printResult(opts.Stdout, eng.Name, res)
	}
	return err
}

func dispatch(ctx context.Context, eng *decomp.Engine, mode decomp.Mode, opts RunOptions, logger *slog.Logger) (domain.Result, error) {
	if mode != decomp.ModeDistributed {
		return eng.Run(ctx, mode)
	}
	if opts.RedisAddr == "" {
		ranks := max(opts.Ranks, 1)
		logger.Info("running in-process world", "ranks", ranks)
		return eng.RunLocal(ctx, ranks)
	}
	if opts.Rank >= 0 {
		return runRedisRank(ctx, eng, opts, logger)
	}
	return runRedisWorld(ctx, eng, opts, logger)
}

// runRedisRank runs this process as one rank of a world spread over processes.
func runRedisRank(ctx context.Context, eng *decomp.Engine, opts RunOptions, logger *slog.Logger) (domain.Result, error) {
	if opts.RunID == "" {
		return domain.Result{}, errors.New("--run-id is required when --rank is set")
	}
	if opts.Size < 1 {
		return domain.Result{}, errors.New("--size is required when --rank is set")
	}
	t, err := redis.New(ctx, opts.RedisAddr, opts.RedisPassword, opts.RedisDB, opts.RunID, opts.Rank, opts.Size)
	if err != nil {
		return domain.Result{}, err
	}
	defer t.Close()
	logger.Info("joined redis world", "run_id", opts.RunID, "rank", opts.Rank, "size", opts.Size)
	return eng.RunDistributed(ctx, comm.NewCollectives(t))
}

// runRedisWorld runs every rank as a goroutine, each with its own Redis connection.
func runRedisWorld(ctx context.Context, eng *decomp.Engine, opts RunOptions, logger *slog.Logger) (domain.Result, error) {
	size := max(opts.Ranks, 1)
	runID := opts.RunID
	if runID == "" {
		runID = uuid.New().String()
	}
	logger.Info("running redis world", "run_id", runID, "ranks", size)

	results := make([]domain.Result, size)
	g, gctx := errgroup.WithContext(ctx)
	for rank := 0; rank < size; rank++ {
		g.Go(func() error {
			t, err := redis.New(gctx, opts.RedisAddr, opts.RedisPassword, opts.RedisDB, runID, rank, size)
			if err != nil {
				return err
			}
			defer t.Close()
			res, err := eng.RunDistributed(gctx, comm.NewCollectives(t))
			results[rank] = res
			return err
		})
	}
	err := g.Wait()
	return results[0], err
}

// loadParams layers the config file, DECOMP_* variables and explicit overrides on
// top of the defaults.
func loadParams(path string, overrides map[string]string) (config.Params, error) {
	params := config.Defaults()
	if path != "" {
		p, err := config.Load(path)
		if err != nil {
			return params, err
		}
		params = p
	}
	params, err := params.Apply(config.FromEnv(os.Environ()))
	if err != nil {
		return params, err
	}
	params, err = params.Apply(overrides)
	if err != nil {
		return params, err
	}
	return params, params.Validate()
}

// serveMetrics starts the status server when addr is set. The returned stop function
// shuts it down.
func serveMetrics(logger *slog.Logger, addr string, collector *metrics.Collector) func() {
	if addr == "" {
		return func() {}
	}
	srv := &http.Server{
		Addr: addr,
		Handler: httpAdapter.NewHandler(&httpAdapter.Server{
			Status:   collector,
			Gatherer: collector.Gatherer(),
			Version:  decomp.Version,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "err", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("graceful shutdown did not complete", "err", err)
			_ = srv.Close()
		}
	}
}

// Validate loads the problem and builds its tree without solving.
func Validate(w io.Writer, problemPath, configPath string) error {
	params, err := loadParams(configPath, nil)
	if err != nil {
		return err
	}
	eng, err := decomp.New(problemPath, decomp.WithParams(params))
	if err != nil {
		return err
	}
	p := eng.Problem()
	if _, err := p.Build(params); err != nil {
		return err
	}
	printSystemMessage(w, "Problem %q is valid: %s decomposition with %d children.",
		eng.Name, p.Decomposition, len(p.ChildIDs()))
	return nil
}
