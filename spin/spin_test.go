package spin

import (
	"fmt"
	"math"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/fumin/qobserve/mat"
)

func deuteron() Op {
	return Const(5.907).
		Sub(X(0).Mul(X(1)).Scale(2.1433)).
		Sub(Y(0).Mul(Y(1)).Scale(2.1433)).
		Add(Z(0).Scale(.21829)).
		Sub(Z(1).Scale(6.125))
}

func TestMul(t *testing.T) {
	t.Parallel()
	tests := []struct {
		a Op
		b Op
		c Op
	}{
		{a: X(0), b: Y(0), c: Z(0).Scale(1i)},
		{a: Y(0), b: X(0), c: Z(0).Scale(-1i)},
		{a: Y(3), b: Z(3), c: X(3).Scale(1i)},
		{a: Z(1), b: X(1), c: Y(1).Scale(1i)},
		{a: X(2), b: X(2), c: I()},
		{a: X(0), b: Z(1), c: FromTerms(Term{Coefficient: 1, Word: Word{{Qubit: 0, Pauli: PauliX}, {Qubit: 1, Pauli: PauliZ}}})},
		{a: X(0).Add(Z(0)), b: X(0).Add(Z(0)), c: Const(2)},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%s*%s", test.a, test.b), func(t *testing.T) {
			t.Parallel()
			c := test.a.Mul(test.b)
			if !equal(c, test.c) {
				t.Fatalf("%s, expected %s", c, test.c)
			}
		})
	}
}

func TestParse(t *testing.T) {
	t.Parallel()
	tests := []struct {
		s  string
		op Op
	}{
		{s: "5.907 - 2.1433 X0 X1 - 2.1433 Y0 Y1 + .21829 Z0 - 6.125 Z1", op: deuteron()},
		{s: "5.907 - 2.1433*X0*X1 - 2.1433*Y0*Y1 + 0.21829*Z0 - 6.125*Z1", op: deuteron()},
		{s: "-X0X1", op: X(0).Mul(X(1)).Scale(-1)},
		{s: "1e-3 Z2 + 2E+1", op: Z(2).Scale(1e-3).Add(Const(20))},
		{s: "X0 Y0", op: Z(0).Scale(1i)},
		{s: "I", op: I()},
		{s: "Z0 + Z0", op: Z(0).Scale(2)},
		{s: "0 X0 + Z1", op: Z(1)},
		{s: "Z1 - Z1", op: Op{}},
		{s: "0", op: Op{}},
	}
	for _, test := range tests {
		t.Run(test.s, func(t *testing.T) {
			t.Parallel()
			op, err := Parse(test.s)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			if !equal(op, test.op) {
				t.Fatalf("%s, expected %s", op, test.op)
			}
		})
	}
}

func TestFromTerms(t *testing.T) {
	t.Parallel()
	tests := []struct {
		terms []Term
		op    Op
	}{
		// Unsorted factors are sorted, and factors on the same qubit multiplied.
		{
			terms: []Term{{Coefficient: 1, Word: Word{{Qubit: 1, Pauli: PauliX}, {Qubit: 0, Pauli: PauliZ}, {Qubit: 1, Pauli: PauliY}}}},
			op:    Z(0).Mul(Z(1)).Scale(1i),
		},
		{
			terms: []Term{{Coefficient: 2, Word: Word{{Qubit: 5, Pauli: PauliZ}, {Qubit: 0, Pauli: PauliZ}}}},
			op:    Z(0).Mul(Z(5)).Scale(2),
		},
		{
			terms: []Term{{Coefficient: 3, Word: Word{{Qubit: 0, Pauli: PauliX}, {Qubit: 0, Pauli: PauliI}, {Qubit: 0, Pauli: PauliX}}}},
			op:    Const(3),
		},
		{
			terms: []Term{{Coefficient: 0, Word: Word{{Qubit: 0, Pauli: PauliX}}}, {Coefficient: 1, Word: Word{{Qubit: 1, Pauli: PauliY}}}},
			op:    Y(1),
		},
		{
			terms: []Term{{Coefficient: 1, Word: Word{{Qubit: 0, Pauli: PauliX}, {Qubit: 1, Pauli: PauliZ}}}, {Coefficient: -1, Word: Word{{Qubit: 1, Pauli: PauliZ}, {Qubit: 0, Pauli: PauliX}}}},
			op:    Op{},
		},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%v", test.terms), func(t *testing.T) {
			t.Parallel()
			op := FromTerms(test.terms...)
			if !equal(op, test.op) {
				t.Fatalf("%s, expected %s", op, test.op)
			}
		})
	}

	// Negative qubits are kept for the evaluator to reject.
	w := FromTerms(Term{Coefficient: 1, Word: Word{{Qubit: 0, Pauli: PauliZ}, {Qubit: -1, Pauli: PauliZ}}}).Terms()[0].Word
	if w[0].Qubit != -1 || w.NumQubits() != 1 {
		t.Fatalf("%v", w)
	}
	if n := Const(0).NumTerms(); n != 0 {
		t.Fatalf("%d", n)
	}
}

func TestParseError(t *testing.T) {
	t.Parallel()
	for _, s := range []string{"", "1 +", "1 + + 2", "X", "2 X0 3", "Q0", "--X0"} {
		t.Run(s, func(t *testing.T) {
			t.Parallel()
			if _, err := Parse(s); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestString(t *testing.T) {
	t.Parallel()
	h := deuteron()
	g := goldie.New(t)
	g.Assert(t, "deuteron", []byte(h.String()))

	parsed, err := Parse(h.String())
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if !equal(parsed, h) {
		t.Fatalf("%s, expected %s", parsed, h)
	}
}

func TestNumQubits(t *testing.T) {
	t.Parallel()
	if n := deuteron().NumQubits(); n != 2 {
		t.Fatalf("%d", n)
	}
	if n := I().NumQubits(); n != 0 {
		t.Fatalf("%d", n)
	}
	if n := Z(7).NumQubits(); n != 8 {
		t.Fatalf("%d", n)
	}
}

func TestWordMatrix(t *testing.T) {
	t.Parallel()
	// Z on qubit 0 flips the sign of odd basis states.
	m := Z(0).Terms()[0].Word.Matrix(2)
	expected := mat.M([][]complex128{
		{1, 0, 0, 0},
		{0, -1, 0, 0},
		{0, 0, 1, 0},
		{0, 0, 0, -1},
	})
	if !m.Equal(expected) {
		t.Fatalf("%s, expected %s", m, expected)
	}

	// X on qubit 1 flips the most significant bit.
	m = X(1).Terms()[0].Word.Matrix(2)
	expected = mat.M([][]complex128{
		{0, 0, 1, 0},
		{0, 0, 0, 1},
		{1, 0, 0, 0},
		{0, 1, 0, 0},
	})
	if !m.Equal(expected) {
		t.Fatalf("%s, expected %s", m, expected)
	}
}

func TestTransverseFieldIsing(t *testing.T) {
	t.Parallel()
	h := TransverseFieldIsing([2]int{4, 1}, 1)
	expected := mat.M([][]complex128{
		{-3, -1, -1, 0, -1, 0, 0, 0, -1, 0, 0, 0, 0, 0, 0, 0},
		{-1, -1, 0, -1, 0, -1, 0, 0, 0, -1, 0, 0, 0, 0, 0, 0},
		{-1, 0, 1, -1, 0, 0, -1, 0, 0, 0, -1, 0, 0, 0, 0, 0},
		{0, -1, -1, -1, 0, 0, 0, -1, 0, 0, 0, -1, 0, 0, 0, 0},
		{-1, 0, 0, 0, 1, -1, -1, 0, 0, 0, 0, 0, -1, 0, 0, 0},
		{0, -1, 0, 0, -1, 3, 0, -1, 0, 0, 0, 0, 0, -1, 0, 0},
		{0, 0, -1, 0, -1, 0, 1, -1, 0, 0, 0, 0, 0, 0, -1, 0},
		{0, 0, 0, -1, 0, -1, -1, -1, 0, 0, 0, 0, 0, 0, 0, -1},
		{-1, 0, 0, 0, 0, 0, 0, 0, -1, -1, -1, 0, -1, 0, 0, 0},
		{0, -1, 0, 0, 0, 0, 0, 0, -1, 1, 0, -1, 0, -1, 0, 0},
		{0, 0, -1, 0, 0, 0, 0, 0, -1, 0, 3, -1, 0, 0, -1, 0},
		{0, 0, 0, -1, 0, 0, 0, 0, 0, -1, -1, 1, 0, 0, 0, -1},
		{0, 0, 0, 0, -1, 0, 0, 0, -1, 0, 0, 0, -1, -1, -1, 0},
		{0, 0, 0, 0, 0, -1, 0, 0, 0, -1, 0, 0, -1, 1, 0, -1},
		{0, 0, 0, 0, 0, 0, -1, 0, 0, 0, -1, 0, -1, 0, -1, -1},
		{0, 0, 0, 0, 0, 0, 0, -1, 0, 0, 0, -1, 0, -1, -1, -3},
	})
	m := h.Matrix(4)
	if !m.Equal(expected) {
		t.Fatalf("%s, expected %s", m, expected)
	}
}

func TestEigen(t *testing.T) {
	t.Parallel()
	tests := []struct {
		h      Op
		n      int
		ground float64
	}{
		// Value is from https://juliaphysics.github.io/PhysicsTutorials.jl/tutorials/general/quantum_ising/quantum_ising.html
		{h: TransverseFieldIsing([2]int{8, 1}, 1), n: 8, ground: -9.837951447459426},
		{h: deuteron(), n: 2, ground: -1.7488649141752752},
	}
	for _, test := range tests {
		t.Run(test.h.String(), func(t *testing.T) {
			t.Parallel()
			vvs, err := test.h.Matrix(test.n).EigenSym()
			if err != nil {
				t.Fatalf("%+v", err)
			}
			if math.Abs(vvs[0].Val-test.ground) > 1e-6 {
				t.Fatalf("%f, expected %f", vvs[0].Val, test.ground)
			}
		})
	}
}

func TestGroundStatistics(t *testing.T) {
	t.Parallel()
	tests := []struct {
		h             float64
		magnetization float64
		binder        float64
		tol           float64
	}{
		// Deep in the ordered phase the ground state is a cat state.
		{h: 0.01, magnetization: 1, binder: 2. / 3, tol: 1e-3},
		// Deep in the disordered phase the spins are independent.
		{h: 100, magnetization: 0.375, binder: 1. / 6, tol: 0.05},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%v", test.h), func(t *testing.T) {
			t.Parallel()
			vvs, err := TransverseFieldIsing([2]int{4, 1}, test.h).Matrix(4).EigenSym()
			if err != nil {
				t.Fatalf("%+v", err)
			}
			stats, err := GroundStatistics(4, vvs)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			if len(stats.EigenValue) != 16 {
				t.Fatalf("%d", len(stats.EigenValue))
			}
			if math.Abs(stats.Magnetization-test.magnetization) > test.tol {
				t.Fatalf("%f, expected %f", stats.Magnetization, test.magnetization)
			}
			if math.Abs(stats.BinderCumulant-test.binder) > test.tol {
				t.Fatalf("%f, expected %f", stats.BinderCumulant, test.binder)
			}
		})
	}

	if _, err := GroundStatistics(3, []mat.ValVec{{Val: 0, Vec: []float64{1, 0}}}); err == nil {
		t.Fatalf("expected error")
	}
}

func equal(a, b Op) bool {
	if a.NumTerms() != b.NumTerms() {
		return false
	}
	at, bt := a.Terms(), b.Terms()
	for i := range at {
		if at[i].Coefficient != bt[i].Coefficient || !at[i].Word.Equal(bt[i].Word) {
			return false
		}
	}
	return true
}
