// Package sim implements reference simulators for circuit kernels.
package sim

import (
	"math/rand/v2"
	"sort"

	"github.com/pkg/errors"

	"github.com/fumin/qobserve/circuit"
	"github.com/fumin/qobserve/spin"
)

var (
	ErrUnknownTarget     = errors.New("unknown target")
	ErrResourceExhausted = errors.New("resource exhausted")
)

// MaxQubits is the largest register the reference backends prepare.
var MaxQubits = 24

// Backend prepares the state of a kernel.
type Backend interface {
	Name() string
	Prepare(k *circuit.Kernel, params []float64) (State, error)
}

// State is a prepared quantum state.
type State interface {
	NumQubits() int
	// Expectation returns the exact expectation value of w.
	Expectation(w spin.Word) (float64, error)
	// Sample estimates the expectation value of w from shots measurements.
	Sample(w spin.Word, shots int, rng *rand.Rand) (Sample, error)
}

// Sample holds the measurement statistics of a Pauli word.
type Sample struct {
	Shots    int
	Mean     float64
	Variance float64
	// Counts is keyed by the measured bits of the word's qubits, in word order.
	Counts map[string]int
}

var backends = map[string]Backend{
	"statevector": stateVectorBackend{},
	"dense":       denseBackend{},
}

// Lookup returns the backend named target.
func Lookup(target string) (Backend, error) {
	b, ok := backends[target]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownTarget, "%q, available %v", target, Targets())
	}
	return b, nil
}

// Targets returns the available backend names, sorted.
func Targets() []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func prepare(k *circuit.Kernel, params []float64) (*StateVector, error) {
	if k.NumQubits() > MaxQubits {
		return nil, errors.Wrapf(ErrResourceExhausted, "%d qubits, max %d", k.NumQubits(), MaxQubits)
	}
	ops, err := k.Bind(params)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	s := NewStateVector(k.NumQubits())
	if err := s.Run(ops); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return s, nil
}

type stateVectorBackend struct{}

func (stateVectorBackend) Name() string { return "statevector" }

func (stateVectorBackend) Prepare(k *circuit.Kernel, params []float64) (State, error) {
	s, err := prepare(k, params)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return s, nil
}

type denseBackend struct{}

func (denseBackend) Name() string { return "dense" }

func (denseBackend) Prepare(k *circuit.Kernel, params []float64) (State, error) {
	s, err := prepare(k, params)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return &denseState{StateVector: s}, nil
}

// denseState computes expectations through the explicit matrix of a word.
type denseState struct {
	*StateVector
}

func (s *denseState) Expectation(w spin.Word) (float64, error) {
	if err := s.checkWord(w); err != nil {
		return 0, errors.Wrap(err, "")
	}
	psi := s.amp
	mpsi := w.Matrix(s.n).MulVec(psi)
	var e complex128
	for i, v := range mpsi {
		e += complex(real(psi[i]), -imag(psi[i])) * v
	}
	return real(e), nil
}

var _ State = (*denseState)(nil)
var _ State = (*StateVector)(nil)

// Probabilities returns the computational basis distribution of s.
func (s *StateVector) Probabilities() []float64 {
	p := make([]float64, len(s.amp))
	for i, a := range s.amp {
		p[i] = real(a)*real(a) + imag(a)*imag(a)
	}
	return p
}
