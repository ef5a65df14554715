// Package circuit implements parametrized quantum kernels.
package circuit

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrArityMismatch = errors.New("arity mismatch")
)

// Gate is a single qubit gate, optionally controlled.
type Gate string

const (
	GateX   Gate = "x"
	GateY   Gate = "y"
	GateZ   Gate = "z"
	GateH   Gate = "h"
	GateS   Gate = "s"
	GateSdg Gate = "sdg"
	GateT   Gate = "t"
	GateTdg Gate = "tdg"
	GateRX  Gate = "rx"
	GateRY  Gate = "ry"
	GateRZ  Gate = "rz"
	GateR1  Gate = "r1"
	// GateSwap exchanges its two targets.
	GateSwap Gate = "swap"
)

var gates = map[Gate]struct {
	rotation bool
	targets  int
}{
	GateX: {targets: 1}, GateY: {targets: 1}, GateZ: {targets: 1}, GateH: {targets: 1},
	GateS: {targets: 1}, GateSdg: {targets: 1}, GateT: {targets: 1}, GateTdg: {targets: 1},
	GateRX: {rotation: true, targets: 1}, GateRY: {rotation: true, targets: 1},
	GateRZ: {rotation: true, targets: 1}, GateR1: {rotation: true, targets: 1},
	GateSwap: {targets: 2},
}

// IsRotation reports whether g takes an angle.
func (g Gate) IsRotation() bool { return gates[g].rotation }

// Angle is a literal angle or a scaled reference to a kernel parameter.
type Angle struct {
	// Param is the parameter index, or -1 for a literal.
	Param int
	Value float64
}

// Param refers to the i-th kernel parameter.
func Param(i int) Angle { return Angle{Param: i, Value: 1} }

// Const is a literal angle.
func Const(v float64) Angle { return Angle{Param: -1, Value: v} }

// Neg returns the negated angle.
func (a Angle) Neg() Angle {
	a.Value = -a.Value
	return a
}

func (a Angle) bind(params []float64) float64 {
	if a.Param < 0 {
		return a.Value
	}
	return a.Value * params[a.Param]
}

func (a Angle) String() string {
	switch {
	case a.Param < 0:
		return strconv.FormatFloat(a.Value, 'g', -1, 64)
	case a.Value == 1:
		return "$" + strconv.Itoa(a.Param)
	case a.Value == -1:
		return "-$" + strconv.Itoa(a.Param)
	default:
		return strconv.FormatFloat(a.Value, 'g', -1, 64) + "*$" + strconv.Itoa(a.Param)
	}
}

// Op is one gate application.
type Op struct {
	Gate     Gate
	Angle    Angle
	Controls []int
	Targets  []int
}

func (op Op) String() string {
	parts := []string{strings.Repeat("c", len(op.Controls)) + string(op.Gate)}
	if op.Gate.IsRotation() {
		parts = append(parts, op.Angle.String())
	}
	for _, q := range op.Controls {
		parts = append(parts, strconv.Itoa(q))
	}
	for _, q := range op.Targets {
		parts = append(parts, strconv.Itoa(q))
	}
	return strings.Join(parts, " ")
}

// BoundOp is an Op whose angle has been resolved.
type BoundOp struct {
	Gate     Gate
	Angle    float64
	Controls []int
	Targets  []int
}

// Kernel is a gate sequence over a fixed register with free parameters.
type Kernel struct {
	numQubits int
	numParams int
	ops       []Op
}

// NewKernel returns an empty kernel on numQubits qubits taking numParams parameters.
func NewKernel(numQubits, numParams int) *Kernel {
	if numQubits < 0 || numParams < 0 {
		panic(fmt.Sprintf("%d %d", numQubits, numParams))
	}
	return &Kernel{numQubits: numQubits, numParams: numParams}
}

func (k *Kernel) NumQubits() int { return k.numQubits }
func (k *Kernel) NumParams() int { return k.numParams }

// Ops returns a copy of the gate sequence.
func (k *Kernel) Ops() []Op {
	ops := make([]Op, 0, len(k.ops))
	for _, op := range k.ops {
		op.Controls = slices.Clone(op.Controls)
		op.Targets = slices.Clone(op.Targets)
		ops = append(ops, op)
	}
	return ops
}

// Apply appends a gate. It panics if op references a qubit or parameter outside the kernel.
func (k *Kernel) Apply(op Op) *Kernel {
	if err := k.check(op); err != nil {
		panic(fmt.Sprintf("%+v", err))
	}
	op.Controls = slices.Clone(op.Controls)
	op.Targets = slices.Clone(op.Targets)
	k.ops = append(k.ops, op)
	return k
}

func (k *Kernel) check(op Op) error {
	info, ok := gates[op.Gate]
	if !ok {
		return errors.Errorf("unknown gate %q", op.Gate)
	}
	if len(op.Targets) != info.targets {
		return errors.Errorf("%s takes %d targets, got %d", op.Gate, info.targets, len(op.Targets))
	}
	if info.rotation && op.Angle.Param >= k.numParams {
		return errors.Errorf("%s parameter %d, kernel has %d", op.Gate, op.Angle.Param, k.numParams)
	}
	seen := make(map[int]bool)
	for _, q := range slices.Concat(op.Controls, op.Targets) {
		if q < 0 || q >= k.numQubits {
			return errors.Errorf("%s qubit %d, kernel has %d", op.Gate, q, k.numQubits)
		}
		if seen[q] {
			return errors.Errorf("%s repeats qubit %d", op.Gate, q)
		}
		seen[q] = true
	}
	return nil
}

func (k *Kernel) gate(g Gate, q int) *Kernel {
	return k.Apply(Op{Gate: g, Targets: []int{q}})
}

func (k *Kernel) rotation(g Gate, a Angle, q int) *Kernel {
	return k.Apply(Op{Gate: g, Angle: a, Targets: []int{q}})
}

func (k *Kernel) X(q int) *Kernel   { return k.gate(GateX, q) }
func (k *Kernel) Y(q int) *Kernel   { return k.gate(GateY, q) }
func (k *Kernel) Z(q int) *Kernel   { return k.gate(GateZ, q) }
func (k *Kernel) H(q int) *Kernel   { return k.gate(GateH, q) }
func (k *Kernel) S(q int) *Kernel   { return k.gate(GateS, q) }
func (k *Kernel) Sdg(q int) *Kernel { return k.gate(GateSdg, q) }
func (k *Kernel) T(q int) *Kernel   { return k.gate(GateT, q) }
func (k *Kernel) Tdg(q int) *Kernel { return k.gate(GateTdg, q) }

func (k *Kernel) RX(a Angle, q int) *Kernel { return k.rotation(GateRX, a, q) }
func (k *Kernel) RY(a Angle, q int) *Kernel { return k.rotation(GateRY, a, q) }
func (k *Kernel) RZ(a Angle, q int) *Kernel { return k.rotation(GateRZ, a, q) }
func (k *Kernel) R1(a Angle, q int) *Kernel { return k.rotation(GateR1, a, q) }

// CX applies X to target when control is set.
func (k *Kernel) CX(control, target int) *Kernel {
	return k.Apply(Op{Gate: GateX, Controls: []int{control}, Targets: []int{target}})
}

// CZ applies Z to target when control is set.
func (k *Kernel) CZ(control, target int) *Kernel {
	return k.Apply(Op{Gate: GateZ, Controls: []int{control}, Targets: []int{target}})
}

func (k *Kernel) Swap(a, b int) *Kernel {
	return k.Apply(Op{Gate: GateSwap, Targets: []int{a, b}})
}

// Bind resolves every parameter reference of k.
func (k *Kernel) Bind(params []float64) ([]BoundOp, error) {
	if len(params) != k.numParams {
		return nil, errors.Wrapf(ErrArityMismatch, "%d parameters, kernel takes %d", len(params), k.numParams)
	}
	bound := make([]BoundOp, 0, len(k.ops))
	for _, op := range k.ops {
		b := BoundOp{Gate: op.Gate, Controls: op.Controls, Targets: op.Targets}
		if op.Gate.IsRotation() {
			b.Angle = op.Angle.bind(params)
		}
		bound = append(bound, b)
	}
	return bound, nil
}

// String formats k in the syntax accepted by Parse.
func (k *Kernel) String() string {
	lines := []string{fmt.Sprintf("qalloc %d", k.numQubits)}
	if k.numParams > 0 {
		lines = append(lines, fmt.Sprintf("params %d", k.numParams))
	}
	for _, op := range k.ops {
		lines = append(lines, op.String())
	}
	return strings.Join(lines, "\n")
}
