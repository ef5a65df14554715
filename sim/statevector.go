package sim

import (
	"fmt"
	"math"
	"math/bits"
	"math/cmplx"
	"math/rand/v2"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"github.com/fumin/qobserve/circuit"
	"github.com/fumin/qobserve/spin"
)

// StateVector is the full amplitude vector of an n qubit register.
// Bit q of a basis index is the state of qubit q.
type StateVector struct {
	n   int
	amp []complex128
}

// NewStateVector returns |0...0> on n qubits.
func NewStateVector(n int) *StateVector {
	amp := make([]complex128, 1<<n)
	amp[0] = 1
	return &StateVector{n: n, amp: amp}
}

func (s *StateVector) NumQubits() int { return s.n }

// Amplitudes returns a copy of the amplitudes.
func (s *StateVector) Amplitudes() []complex128 {
	return append([]complex128(nil), s.amp...)
}

func (s *StateVector) clone() *StateVector {
	return &StateVector{n: s.n, amp: s.Amplitudes()}
}

// Run applies ops to s.
func (s *StateVector) Run(ops []circuit.BoundOp) error {
	for i, op := range ops {
		if err := s.Apply(op); err != nil {
			return errors.Wrap(err, fmt.Sprintf("op %d", i))
		}
	}
	return nil
}

// Apply applies one gate to s.
func (s *StateVector) Apply(op circuit.BoundOp) error {
	var ctrl int
	for _, q := range op.Controls {
		ctrl |= 1 << q
	}

	if op.Gate == circuit.GateSwap {
		s.swap(ctrl, op.Targets[0], op.Targets[1])
		return nil
	}
	u, err := unitary(op.Gate, op.Angle)
	if err != nil {
		return errors.Wrap(err, "")
	}
	s.apply1(u, ctrl, op.Targets[0])
	return nil
}

func (s *StateVector) apply1(u [2][2]complex128, ctrl, target int) {
	tbit := 1 << target
	for i := range s.amp {
		if i&tbit != 0 || i&ctrl != ctrl {
			continue
		}
		j := i | tbit
		a, b := s.amp[i], s.amp[j]
		s.amp[i] = u[0][0]*a + u[0][1]*b
		s.amp[j] = u[1][0]*a + u[1][1]*b
	}
}

func (s *StateVector) swap(ctrl, a, b int) {
	abit, bbit := 1<<a, 1<<b
	for i := range s.amp {
		// Visit each pair once, from the index where a is set and b is not.
		if i&abit == 0 || i&bbit != 0 || i&ctrl != ctrl {
			continue
		}
		j := i ^ abit ^ bbit
		s.amp[i], s.amp[j] = s.amp[j], s.amp[i]
	}
}

func unitary(g circuit.Gate, theta float64) ([2][2]complex128, error) {
	c, sn := math.Cos(theta/2), math.Sin(theta/2)
	switch g {
	case circuit.GateX:
		return [2][2]complex128{{0, 1}, {1, 0}}, nil
	case circuit.GateY:
		return [2][2]complex128{{0, -1i}, {1i, 0}}, nil
	case circuit.GateZ:
		return [2][2]complex128{{1, 0}, {0, -1}}, nil
	case circuit.GateH:
		h := complex(1/math.Sqrt2, 0)
		return [2][2]complex128{{h, h}, {h, -h}}, nil
	case circuit.GateS:
		return [2][2]complex128{{1, 0}, {0, 1i}}, nil
	case circuit.GateSdg:
		return [2][2]complex128{{1, 0}, {0, -1i}}, nil
	case circuit.GateT:
		return [2][2]complex128{{1, 0}, {0, cmplx.Rect(1, math.Pi/4)}}, nil
	case circuit.GateTdg:
		return [2][2]complex128{{1, 0}, {0, cmplx.Rect(1, -math.Pi/4)}}, nil
	case circuit.GateRX:
		return [2][2]complex128{{complex(c, 0), complex(0, -sn)}, {complex(0, -sn), complex(c, 0)}}, nil
	case circuit.GateRY:
		return [2][2]complex128{{complex(c, 0), complex(-sn, 0)}, {complex(sn, 0), complex(c, 0)}}, nil
	case circuit.GateRZ:
		return [2][2]complex128{{cmplx.Rect(1, -theta/2), 0}, {0, cmplx.Rect(1, theta/2)}}, nil
	case circuit.GateR1:
		return [2][2]complex128{{1, 0}, {0, cmplx.Rect(1, theta)}}, nil
	default:
		return [2][2]complex128{}, errors.Errorf("unknown gate %q", g)
	}
}

// checkWord requires w to be canonical and within the register.
func (s *StateVector) checkWord(w spin.Word) error {
	prev := -1
	for _, f := range w {
		if f.Qubit <= prev || f.Qubit >= s.n {
			return errors.Errorf("%s on %d qubits", w, s.n)
		}
		if f.Pauli == spin.PauliI || !f.Pauli.Valid() {
			return errors.Errorf("%s factor %v", w, f)
		}
		prev = f.Qubit
	}
	return nil
}

// Expectation returns <s|w|s>.
func (s *StateVector) Expectation(w spin.Word) (float64, error) {
	if err := s.checkWord(w); err != nil {
		return math.NaN(), errors.Wrap(err, "")
	}
	if w.IsIdentity() {
		return 1, nil
	}

	// w|i> = i^numY * (-1)^popcount(i & (ymask|zmask)) |i ^ xmask>,
	// where xmask covers X and Y factors.
	var xmask, signMask, numY int
	for _, f := range w {
		switch f.Pauli {
		case spin.PauliX:
			xmask |= 1 << f.Qubit
		case spin.PauliY:
			xmask |= 1 << f.Qubit
			signMask |= 1 << f.Qubit
			numY++
		case spin.PauliZ:
			signMask |= 1 << f.Qubit
		}
	}
	var phase complex128 = 1
	for range numY % 4 {
		phase *= 1i
	}

	var e complex128
	for i, a := range s.amp {
		if a == 0 {
			continue
		}
		v := phase * a
		if bits.OnesCount(uint(i&signMask))%2 == 1 {
			v = -v
		}
		e += cmplx.Conj(s.amp[i^xmask]) * v
	}
	return real(e), nil
}

// Sample measures w shots times, each shot yielding the ±1 eigenvalue of w.
func (s *StateVector) Sample(w spin.Word, shots int, rng *rand.Rand) (Sample, error) {
	if err := s.checkWord(w); err != nil {
		return Sample{}, errors.Wrap(err, "")
	}
	if shots <= 0 {
		return Sample{}, errors.Errorf("%d shots", shots)
	}
	if w.IsIdentity() {
		return Sample{Shots: shots, Mean: 1, Counts: map[string]int{"": shots}}, nil
	}

	// Rotate each measured qubit into the eigenbasis of its Pauli.
	rotated := s.clone()
	for _, f := range w {
		var ops []circuit.Gate
		switch f.Pauli {
		case spin.PauliX:
			ops = []circuit.Gate{circuit.GateH}
		case spin.PauliY:
			ops = []circuit.Gate{circuit.GateSdg, circuit.GateH}
		}
		for _, g := range ops {
			if err := rotated.Apply(circuit.BoundOp{Gate: g, Targets: []int{f.Qubit}}); err != nil {
				return Sample{}, errors.Wrap(err, "")
			}
		}
	}

	cdf := rotated.Probabilities()
	floats.CumSum(cdf, cdf)
	total := cdf[len(cdf)-1]

	sample := Sample{Shots: shots, Counts: make(map[string]int)}
	var sum int
	var bitstring strings.Builder
	for range shots {
		// Draw from (0, total] so that zero probability outcomes are never selected.
		i := sort.SearchFloat64s(cdf, (1-rng.Float64())*total)
		i = min(i, len(cdf)-1)

		bitstring.Reset()
		parity := 0
		for _, f := range w {
			b := (i >> f.Qubit) & 1
			parity ^= b
			bitstring.WriteByte(byte('0' + b))
		}
		sample.Counts[bitstring.String()]++
		if parity == 0 {
			sum++
		} else {
			sum--
		}
	}
	sample.Mean = float64(sum) / float64(shots)
	sample.Variance = 1 - sample.Mean*sample.Mean
	return sample, nil
}
