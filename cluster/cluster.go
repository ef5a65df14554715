// Package cluster implements a fixed-size set of cooperating ranks with deterministic collectives.
package cluster

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

var (
	ErrLifecycle = errors.New("worker set lifecycle")
	ErrTimeout   = errors.New("collective timeout")
)

const (
	KindLifecycle = "lifecycle"
	KindTimeout   = "timeout"
	KindCanceled  = "canceled"
)

// Fault is a failure reported by one rank to every rank of a collective.
type Fault struct {
	Rank int    `json:"rank"`
	Kind string `json:"kind"`
	Msg  string `json:"msg"`
}

func (f *Fault) Error() string {
	return fmt.Sprintf("rank %d %s: %s", f.Rank, f.Kind, f.Msg)
}

func (f *Fault) Is(target error) bool {
	switch f.Kind {
	case KindLifecycle:
		return target == ErrLifecycle
	case KindTimeout:
		return target == ErrTimeout
	case KindCanceled:
		return target == context.Canceled
	}
	return false
}

func lifecycleFault(rank int, format string, args ...any) *Fault {
	return &Fault{Rank: rank, Kind: KindLifecycle, Msg: fmt.Sprintf(format, args...)}
}

// Contribution is what one rank brings to a collective: either values or a fault.
type Contribution struct {
	Values []float64
	Fault  *Fault
}

// Config describes the place of this process in a worker set.
type Config struct {
	Size int `yaml:"size"`
	Rank int `yaml:"rank"`
	// Coordinator is the address rank 0 listens on and the other ranks dial.
	Coordinator string `yaml:"coordinator"`
	// Timeout bounds every collective, zero means no bound.
	Timeout time.Duration `yaml:"timeout"`
}

func (cfg Config) Validate() error {
	if cfg.Size < 1 {
		return errors.Errorf("size %d", cfg.Size)
	}
	if cfg.Rank < 0 || cfg.Rank >= cfg.Size {
		return errors.Errorf("rank %d, size %d", cfg.Rank, cfg.Size)
	}
	if cfg.Size > 1 && cfg.Coordinator == "" {
		return errors.Errorf("size %d without coordinator", cfg.Size)
	}
	if cfg.Timeout < 0 {
		return errors.Errorf("timeout %v", cfg.Timeout)
	}
	return nil
}

const (
	EnvRank        = "QOBSERVE_RANK"
	EnvSize        = "QOBSERVE_SIZE"
	EnvCoordinator = "QOBSERVE_COORDINATOR"
	EnvTimeout     = "QOBSERVE_TIMEOUT"
)

// ConfigFromEnv overlays the environment variables that are set onto cfg.
func ConfigFromEnv(cfg Config) (Config, error) {
	if v, ok := os.LookupEnv(EnvSize); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, errors.Wrap(err, EnvSize)
		}
		cfg.Size = n
	}
	if v, ok := os.LookupEnv(EnvRank); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, errors.Wrap(err, EnvRank)
		}
		cfg.Rank = n
	}
	if v, ok := os.LookupEnv(EnvCoordinator); ok {
		cfg.Coordinator = v
	}
	if v, ok := os.LookupEnv(EnvTimeout); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, errors.Wrap(err, EnvTimeout)
		}
		cfg.Timeout = d
	}
	return cfg, nil
}

// Owned returns the items of [0, n) owned by rank, assigned round-robin.
func Owned(n, size, rank int) []int {
	var owned []int
	for i := rank; i < n; i += size {
		owned = append(owned, i)
	}
	return owned
}

// A transport delivers messages to the coordinator of a worker set.
type transport interface {
	exchange(ctx context.Context, m *message) (*reply, error)
	close() error
}

// hub is the in-process transport.
type hub struct {
	c *coordinator
}

func (h hub) exchange(ctx context.Context, m *message) (*reply, error) { return h.c.submit(ctx, m), nil }
func (h hub) close() error                                            { return nil }

// WorkerSet is the handle of one rank.
// Every rank must call the same sequence of collectives.
type WorkerSet struct {
	rank    int
	size    int
	timeout time.Duration
	t       transport

	mu        sync.Mutex
	round     uint64
	finalized bool
	release   func()
}

func newWorkerSet(rank, size int, timeout time.Duration, t transport) *WorkerSet {
	return &WorkerSet{rank: rank, size: size, timeout: timeout, t: t}
}

func (ws *WorkerSet) Rank() int { return ws.rank }
func (ws *WorkerSet) Size() int { return ws.size }

// Finalized reports whether Finalize has been called on ws.
func (ws *WorkerSet) Finalized() bool {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.finalized
}

const defaultDrain = 10 * time.Second

func (ws *WorkerSet) drain() time.Duration {
	if ws.timeout > 0 {
		return ws.timeout
	}
	return defaultDrain
}

func (ws *WorkerSet) collective(ctx context.Context, op string, c Contribution) ([]float64, error) {
	if ws == nil {
		return nil, errors.Wrap(ErrLifecycle, "nil worker set")
	}
	ws.mu.Lock()
	if ws.finalized {
		ws.mu.Unlock()
		return nil, errors.Wrapf(ErrLifecycle, "%s on finalized rank %d", op, ws.rank)
	}
	ws.round++
	round := ws.round
	ws.mu.Unlock()

	if ws.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ws.timeout)
		defer cancel()
	}
	rep, err := ws.t.exchange(ctx, &message{Round: round, Op: op, Rank: ws.rank, Values: c.Values, Fault: c.Fault})
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("round %d %s", round, op))
	}
	if rep.Fault != nil {
		return nil, errors.Wrap(rep.Fault, fmt.Sprintf("round %d %s", round, op))
	}
	return rep.Values, nil
}

// AllReduce returns the element-wise sum of every rank's values to every rank.
// The sum is taken in ascending rank order, so every rank receives identical bits.
// If any rank contributes a fault, every rank fails with the fault of the lowest such rank.
func (ws *WorkerSet) AllReduce(ctx context.Context, c Contribution) ([]float64, error) {
	return ws.collective(ctx, opAllReduce, c)
}

// Reduce is AllReduce where only rank 0 receives the sum.
// Other ranks receive nil values, but still receive faults.
func (ws *WorkerSet) Reduce(ctx context.Context, c Contribution) ([]float64, error) {
	return ws.collective(ctx, opReduce, c)
}

// AllReduceSum returns the sum of x over all ranks.
func (ws *WorkerSet) AllReduceSum(ctx context.Context, x float64) (float64, error) {
	sum, err := ws.AllReduce(ctx, Contribution{Values: []float64{x}})
	if err != nil {
		return 0, errors.Wrap(err, "")
	}
	return sum[0], nil
}

// Barrier returns once every rank has entered it.
func (ws *WorkerSet) Barrier(ctx context.Context) error {
	_, err := ws.collective(ctx, opBarrier, Contribution{})
	return errors.Wrap(err, "")
}

// Finalize releases the rank. Collectives after Finalize fail with ErrLifecycle.
func (ws *WorkerSet) Finalize() error {
	if ws == nil {
		return errors.Wrap(ErrLifecycle, "nil worker set")
	}
	ws.mu.Lock()
	if ws.finalized {
		ws.mu.Unlock()
		return errors.Wrapf(ErrLifecycle, "rank %d finalized twice", ws.rank)
	}
	ws.finalized = true
	release := ws.release
	ws.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), ws.drain())
	defer cancel()
	_, err := ws.t.exchange(ctx, &message{Op: opFinalize, Rank: ws.rank})
	if cerr := ws.t.close(); err == nil {
		err = cerr
	}
	if release != nil {
		release()
	}
	return errors.Wrap(err, "")
}

var process struct {
	sync.Mutex
	ws *WorkerSet
}

// Initialize establishes the worker set of this process.
// A size 1 config runs locally. Larger sets connect over gRPC to the coordinator hosted by rank 0,
// and Initialize returns after every rank has joined.
// Initialize fails with ErrLifecycle until the previous handle is finalized.
func Initialize(ctx context.Context, cfg Config) (*WorkerSet, error) {
	process.Lock()
	defer process.Unlock()
	if process.ws != nil {
		return nil, errors.Wrapf(ErrLifecycle, "already initialized as rank %d of %d", process.ws.rank, process.ws.size)
	}

	ws, err := connect(ctx, cfg, listenTCP, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	ws.release = func() {
		process.Lock()
		defer process.Unlock()
		if process.ws == ws {
			process.ws = nil
		}
	}
	process.ws = ws
	return ws, nil
}

// Finalize finalizes the handle returned by Initialize.
func Finalize() error {
	process.Lock()
	ws := process.ws
	process.Unlock()
	if ws == nil {
		return errors.Wrap(ErrLifecycle, "not initialized")
	}
	return ws.Finalize()
}

// Spawn runs fn on n ranks in this process and waits for them.
// The first error cancels the context of the other ranks and is returned.
// Each rank is finalized when fn returns.
func Spawn(ctx context.Context, n int, timeout time.Duration, fn func(context.Context, *WorkerSet) error) error {
	if n < 1 {
		return errors.Errorf("%d ranks", n)
	}
	c := newCoordinator(n)
	g, ctx := errgroup.WithContext(ctx)
	for rank := range n {
		ws := newWorkerSet(rank, n, timeout, hub{c: c})
		g.Go(func() error {
			defer ws.Finalize()
			return errors.Wrap(fn(ctx, ws), fmt.Sprintf("rank %d", rank))
		})
	}
	return g.Wait()
}
