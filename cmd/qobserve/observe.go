package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"os/signal"
	"sync"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/fumin/qobserve"
	"github.com/fumin/qobserve/cluster"
	"github.com/fumin/qobserve/config"
	"github.com/fumin/qobserve/store"
)

type observeOptions struct {
	configPath  string
	target      string
	kernel      string
	hamiltonian string
	params      []float64
	shots       int
	seed        uint64
	mode        string
	workers     int
	db          string
	noVerify    bool
}

func newObserveCommand() *cobra.Command {
	opts := &observeOptions{}
	cmd := &cobra.Command{
		Use:   "observe",
		Short: "Evaluate the expectation value of a Hamiltonian",
		Long: `Evaluate the expectation value of a Hamiltonian in the state prepared by a kernel.

Without flags the deuteron demo is evaluated and verified against its known value.
The QOBSERVE_RANK, QOBSERVE_SIZE, QOBSERVE_COORDINATOR and QOBSERVE_TIMEOUT
environment variables join a multi-process worker set, as set up by launch.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return errors.Wrap(err, "")
			}
			return observe(cmd.Context(), cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	def := config.Default()
	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "", "YAML configuration file")
	f.StringVar(&opts.target, "target", def.Target, "simulation target")
	f.StringVar(&opts.kernel, "kernel", def.Kernel, "kernel source")
	f.StringVar(&opts.hamiltonian, "hamiltonian", def.Hamiltonian, "Hamiltonian as a sum of Pauli words")
	f.Float64SliceVar(&opts.params, "params", def.Params, "kernel parameters")
	f.IntVar(&opts.shots, "shots", 0, "measurements per term, exact evaluation if unset")
	f.Uint64Var(&opts.seed, "seed", def.Seed, "sampler seed")
	f.StringVar(&opts.mode, "mode", def.Mode, "ranks receiving the result, all or root")
	f.IntVarP(&opts.workers, "workers", "w", def.Workers, "ranks to run in this process")
	f.StringVar(&opts.db, "db", "", "SQLite run log")
	f.BoolVar(&opts.noVerify, "no-verify", false, "skip verification against the expected value")
	return cmd
}

// load reads the configuration file, then applies the flags that were set and the environment.
func (opts *observeOptions) load(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		var err error
		if cfg, err = config.Load(opts.configPath); err != nil {
			return config.Config{}, errors.Wrap(err, "")
		}
	}

	f := cmd.Flags()
	if f.Changed("target") {
		cfg.Target = opts.target
	}
	if f.Changed("kernel") {
		cfg.Kernel = opts.kernel
		// A different kernel invalidates the demo's expected value.
		if !f.Changed("params") {
			cfg.Params = nil
		}
		cfg.Verify = nil
	}
	if f.Changed("hamiltonian") {
		cfg.Hamiltonian = opts.hamiltonian
		cfg.Verify = nil
	}
	if f.Changed("params") {
		cfg.Params = opts.params
	}
	if f.Changed("shots") {
		shots := opts.shots
		cfg.Shots = &shots
	}
	if f.Changed("seed") {
		cfg.Seed = opts.seed
	}
	if f.Changed("mode") {
		cfg.Mode = opts.mode
	}
	if f.Changed("workers") {
		cfg.Workers = opts.workers
	}
	if f.Changed("db") {
		cfg.DB = opts.db
	}
	if opts.noVerify {
		cfg.Verify = nil
	}

	var err error
	if cfg.Cluster, err = cluster.ConfigFromEnv(cfg.Cluster); err != nil {
		return config.Config{}, errors.Wrap(err, "")
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, errors.Wrap(err, "")
	}
	return cfg, nil
}

func observe(ctx context.Context, cfg config.Config, stdout, stderr io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var mu sync.Mutex
	run := func(ctx context.Context, ws *cluster.WorkerSet) error {
		logger := log.New(stderr, fmt.Sprintf("rank %d ", ws.Rank()), logFlags)
		res, err := evaluate(ctx, cfg, ws, logger)
		if err != nil {
			return errors.Wrap(err, "")
		}
		mu.Lock()
		defer mu.Unlock()
		return errors.Wrap(report(ctx, cfg, ws, res, stdout, logger), "")
	}

	if cfg.Workers > 1 {
		return errors.Wrap(cluster.Spawn(ctx, cfg.Workers, cfg.Cluster.Timeout, run), "")
	}
	ws, err := cluster.Initialize(ctx, cfg.Cluster)
	if err != nil {
		return errors.Wrap(err, "")
	}
	runErr := run(ctx, ws)
	if err := ws.Finalize(); err != nil && runErr == nil {
		runErr = err
	}
	return errors.Wrap(runErr, "")
}

func evaluate(ctx context.Context, cfg config.Config, ws *cluster.WorkerSet, logger *log.Logger) (qobserve.Result, error) {
	k, err := cfg.ParseKernel()
	if err != nil {
		return qobserve.Result{}, errors.Wrap(err, "")
	}
	h, err := cfg.ParseHamiltonian()
	if err != nil {
		return qobserve.Result{}, errors.Wrap(err, "")
	}
	opt, err := cfg.Options()
	if err != nil {
		return qobserve.Result{}, errors.Wrap(err, "")
	}

	owned := cluster.Owned(h.NumTerms(), ws.Size(), ws.Rank())
	logger.Printf("size %d target %s terms %v of %d", ws.Size(), cfg.Target, owned, h.NumTerms())
	res, err := qobserve.Observe(ctx, ws, k, h, cfg.Params, opt)
	if err != nil {
		return qobserve.Result{}, errors.Wrap(err, "")
	}
	return res, nil
}

func report(ctx context.Context, cfg config.Config, ws *cluster.WorkerSet, res qobserve.Result, stdout io.Writer, logger *log.Logger) error {
	if !res.Final {
		logger.Printf("result delivered to rank 0")
		return nil
	}
	logger.Printf("expectation %v variance %v shots %d", res.Expectation, res.Variance, res.Shots)

	if cfg.Verify != nil {
		if diff := math.Abs(res.Expectation - cfg.Verify.Want); !(diff <= cfg.Verify.Tol) {
			return errors.Wrapf(ErrVerification, "rank %d expectation %v, expected %v within %v", ws.Rank(), res.Expectation, cfg.Verify.Want, cfg.Verify.Tol)
		}
		logger.Printf("verified against %v within %v", cfg.Verify.Want, cfg.Verify.Tol)
	}
	if ws.Rank() != 0 {
		return nil
	}

	if _, err := fmt.Fprintf(stdout, "expectation %v\n", res.Expectation); err != nil {
		return errors.Wrap(err, "")
	}
	for _, t := range res.Terms {
		if _, err := fmt.Fprintf(stdout, "  %v %s: %v\n", t.Coefficient, t.Word, t.Expectation); err != nil {
			return errors.Wrap(err, "")
		}
	}

	if cfg.DB == "" {
		return nil
	}
	db, err := store.Open(cfg.DB)
	if err != nil {
		return errors.Wrap(err, "")
	}
	defer db.Close()
	shots := 0
	if cfg.Shots != nil {
		shots = *cfg.Shots
	}
	run, err := db.Record(ctx, store.Run{
		Target:      cfg.Target,
		Kernel:      cfg.Kernel,
		Hamiltonian: cfg.Hamiltonian,
		Params:      cfg.Params,
		Shots:       shots,
		Seed:        cfg.Seed,
		Size:        ws.Size(),
		Mode:        cfg.Mode,
		Expectation: res.Expectation,
		Variance:    res.Variance,
	})
	if err != nil {
		return errors.Wrap(err, "")
	}
	logger.Printf("recorded run %s in %s", run.ID, cfg.DB)
	return nil
}
