// Package qobserve evaluates expectation values of observables on parametrized quantum kernels,
// optionally partitioning the observable's terms across a worker set.
package qobserve

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/pkg/errors"

	"github.com/fumin/qobserve/circuit"
	"github.com/fumin/qobserve/cluster"
	"github.com/fumin/qobserve/sim"
	"github.com/fumin/qobserve/spin"
)

var (
	ErrArityMismatch      = circuit.ErrArityMismatch
	ErrIndexOutOfRange    = errors.New("qubit index out of range")
	ErrInvalidShotCount   = errors.New("invalid shot count")
	ErrWorkerSetLifecycle = cluster.ErrLifecycle
	ErrSimulation         = errors.New("simulation failure")
	ErrNotHermitian       = errors.New("observable not hermitian")
)

const faultSimulation = "simulation"

// SimulationError is a backend failure on one rank, reported to every rank.
type SimulationError struct {
	Rank int
	Msg  string
	// err is the local cause, set only on the rank that failed.
	err error
}

func (e *SimulationError) Error() string {
	return fmt.Sprintf("simulation failure on rank %d: %s", e.Rank, e.Msg)
}

func (e *SimulationError) Is(target error) bool { return target == ErrSimulation }
func (e *SimulationError) Unwrap() error        { return e.err }

// TermResult is the contribution of one term.
type TermResult struct {
	Word        spin.Word
	Coefficient float64
	Expectation float64
	// Variance is the per-shot variance, zero in exact mode.
	Variance float64
}

// Result is an evaluated expectation value.
type Result struct {
	Expectation float64
	// Variance is the per-shot variance of the combined estimator, zero in exact mode.
	Variance float64
	// Shots is the number of measurements per term, zero in exact mode.
	Shots int
	Terms []TermResult
	// Final reports whether this rank received the combined value.
	// In ModeRoot the other ranks get a NaN Expectation.
	Final bool
}

// TermExpectation returns the expectation value of the term with word w.
func (r Result) TermExpectation(w spin.Word) (float64, bool) {
	for _, t := range r.Terms {
		if t.Word.Equal(w) {
			return t.Expectation, true
		}
	}
	return math.NaN(), false
}

// Observe returns the expectation value of h in the state prepared by k with params.
//
// With a nil ws the value is computed locally.
// Otherwise every rank of ws must call Observe with the same arguments.
// Terms are assigned round-robin to the ranks, each rank simulates only its own terms,
// and the per-term values are combined by a collective.
// The result is bitwise identical for every size of ws.
func Observe(ctx context.Context, ws *cluster.WorkerSet, k *circuit.Kernel, h spin.Op, params []float64, options ...Options) (Result, error) {
	opt := NewOptions()
	if len(options) > 0 {
		opt = options[0]
	}
	if err := validate(ws, k, h, params, opt); err != nil {
		return Result{}, errors.Wrap(err, "")
	}
	backend, err := opt.lookup()
	if err != nil {
		return Result{}, errors.Wrap(err, "")
	}

	terms := h.Terms()
	size, rank := 1, 0
	if ws != nil {
		size, rank = ws.Size(), ws.Rank()
	}
	local, localErr := evaluate(backend, k, params, terms, cluster.Owned(len(terms), size, rank), opt)

	var values []float64
	if ws == nil {
		if localErr != nil {
			return Result{}, &SimulationError{Rank: rank, Msg: localErr.Error(), err: localErr}
		}
		values = local
	} else {
		c := cluster.Contribution{Values: local}
		if localErr != nil {
			c = cluster.Contribution{Fault: &cluster.Fault{Rank: rank, Kind: faultSimulation, Msg: localErr.Error()}}
		}
		var err error
		if opt.mode == ModeRoot {
			values, err = ws.Reduce(ctx, c)
		} else {
			values, err = ws.AllReduce(ctx, c)
		}
		if err != nil {
			var f *cluster.Fault
			if errors.As(err, &f) && f.Kind == faultSimulation {
				simErr := &SimulationError{Rank: f.Rank, Msg: f.Msg}
				if f.Rank == rank {
					simErr.err = localErr
				}
				return Result{}, simErr
			}
			return Result{}, errors.Wrap(err, "")
		}
	}

	res := Result{Shots: opt.shots}
	if opt.mode == ModeRoot && rank != 0 {
		res.Expectation, res.Variance = math.NaN(), math.NaN()
		return res, nil
	}
	res.Final = true
	res.Terms = make([]TermResult, 0, len(terms))
	for i, t := range terms {
		c := real(t.Coefficient)
		tr := TermResult{Word: t.Word, Coefficient: c, Expectation: values[i], Variance: values[len(terms)+i]}
		res.Terms = append(res.Terms, tr)
		res.Expectation += c * tr.Expectation
		res.Variance += c * c * tr.Variance
	}
	return res, nil
}

func validate(ws *cluster.WorkerSet, k *circuit.Kernel, h spin.Op, params []float64, opt Options) error {
	if ws != nil && ws.Finalized() {
		return errors.Wrapf(ErrWorkerSetLifecycle, "rank %d finalized", ws.Rank())
	}
	if len(params) != k.NumParams() {
		return errors.Wrapf(ErrArityMismatch, "%d parameters, kernel takes %d", len(params), k.NumParams())
	}
	for i, t := range h.Terms() {
		for _, f := range t.Word {
			if f.Qubit < 0 || f.Qubit >= k.NumQubits() {
				return errors.Wrapf(ErrIndexOutOfRange, "term %d %s qubit %d, kernel has %d qubits", i, t.Word, f.Qubit, k.NumQubits())
			}
			if !f.Pauli.Valid() {
				return errors.Errorf("term %d %s unknown Pauli on qubit %d", i, t.Word, f.Qubit)
			}
		}
		if imag(t.Coefficient) != 0 {
			return errors.Wrapf(ErrNotHermitian, "term %d coefficient %v", i, t.Coefficient)
		}
	}
	if opt.hasShots && opt.shots <= 0 {
		return errors.Wrapf(ErrInvalidShotCount, "%d", opt.shots)
	}
	switch opt.mode {
	case ModeAll, ModeRoot:
	default:
		return errors.Errorf("unknown mode %q", opt.mode)
	}
	return nil
}

// evaluate returns the expectations of the owned terms followed by their variances.
// Slots of terms owned by other ranks are zero.
func evaluate(b sim.Backend, k *circuit.Kernel, params []float64, terms []spin.Term, owned []int, opt Options) ([]float64, error) {
	values := make([]float64, 2*len(terms))
	var state sim.State
	for _, i := range owned {
		w := terms[i].Word
		if w.IsIdentity() {
			values[i] = 1
			continue
		}
		if state == nil {
			var err error
			if state, err = b.Prepare(k, params); err != nil {
				return nil, errors.Wrap(err, fmt.Sprintf("%s prepare", b.Name()))
			}
		}

		if !opt.hasShots {
			e, err := state.Expectation(w)
			if err != nil {
				return nil, errors.Wrap(err, fmt.Sprintf("term %d %s", i, w))
			}
			values[i] = e
			continue
		}
		// Each term has its own stream, so its samples do not depend on the partition.
		rng := rand.New(rand.NewPCG(opt.seed, uint64(i)))
		smp, err := state.Sample(w, opt.shots, rng)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("term %d %s", i, w))
		}
		values[i] = smp.Mean
		values[len(terms)+i] = smp.Variance
	}
	return values, nil
}
