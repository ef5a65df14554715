// Package spin implements observables written as weighted sums of Pauli words.
package spin

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/fumin/qobserve/mat"
)

// Pauli is a single qubit Pauli operator.
type Pauli byte

const (
	PauliI Pauli = iota
	PauliX
	PauliY
	PauliZ
)

func (p Pauli) String() string {
	switch p {
	case PauliI:
		return "I"
	case PauliX:
		return "X"
	case PauliY:
		return "Y"
	case PauliZ:
		return "Z"
	default:
		return fmt.Sprintf("Pauli(%d)", byte(p))
	}
}

// Valid reports whether p is one of I, X, Y and Z.
func (p Pauli) Valid() bool { return p <= PauliZ }

// mul returns the phase and Pauli of the product a*b.
func mul(a, b Pauli) (complex128, Pauli) {
	switch {
	case a == PauliI:
		return 1, b
	case b == PauliI:
		return 1, a
	case a == b:
		return 1, PauliI
	}
	// X, Y, Z are cyclic: XY = iZ, YZ = iX, ZX = iY.
	c := 6 - a - b
	if (a%3)+1 == b {
		return 1i, c
	}
	return -1i, c
}

// Factor is a Pauli operator acting on one qubit.
type Factor struct {
	Qubit int
	Pauli Pauli
}

// Word is a tensor product of Pauli operators.
// The words of an Op are canonical: sorted by qubit, one factor per qubit, no identities.
// The empty word is the identity.
type Word []Factor

func (w Word) IsIdentity() bool { return len(w) == 0 }

// NumQubits returns one plus the largest qubit index in w.
func (w Word) NumQubits() int {
	var n int
	for _, f := range w {
		n = max(n, f.Qubit+1)
	}
	return n
}

// normalize sorts w by qubit and multiplies the factors acting on the same qubit.
// It returns the phase of the product and the resulting word.
func (w Word) normalize() (complex128, Word) {
	sorted := slices.Clone(w)
	slices.SortStableFunc(sorted, func(a, b Factor) int { return cmp.Compare(a.Qubit, b.Qubit) })

	var phase complex128 = 1
	n := make(Word, 0, len(sorted))
	for _, f := range sorted {
		last := len(n) - 1
		if last >= 0 && n[last].Qubit == f.Qubit && n[last].Pauli.Valid() && f.Pauli.Valid() {
			c, p := mul(n[last].Pauli, f.Pauli)
			phase *= c
			n[last].Pauli = p
			continue
		}
		n = append(n, f)
	}
	n = slices.DeleteFunc(n, func(f Factor) bool { return f.Pauli == PauliI })
	return phase, n
}

// At returns the Pauli acting on qubit q.
func (w Word) At(q int) Pauli {
	i, ok := slices.BinarySearchFunc(w, q, func(f Factor, q int) int { return cmp.Compare(f.Qubit, q) })
	if !ok {
		return PauliI
	}
	return w[i].Pauli
}

func (w Word) Equal(v Word) bool {
	return slices.Equal(w, v)
}

func (w Word) String() string {
	if len(w) == 0 {
		return "I"
	}
	ss := make([]string, 0, len(w))
	for _, f := range w {
		ss = append(ss, f.Pauli.String()+strconv.Itoa(f.Qubit))
	}
	return strings.Join(ss, " ")
}

func (w Word) key() string {
	var sb strings.Builder
	for _, f := range w {
		sb.WriteString(f.Pauli.String())
		sb.WriteString(strconv.Itoa(f.Qubit))
	}
	return sb.String()
}

// Mul returns the phase and word of the product w*v of canonical words.
func (w Word) Mul(v Word) (complex128, Word) {
	var phase complex128 = 1
	p := make(Word, 0, len(w)+len(v))
	i, j := 0, 0
	for i < len(w) || j < len(v) {
		switch {
		case j >= len(v) || (i < len(w) && w[i].Qubit < v[j].Qubit):
			p = append(p, w[i])
			i++
		case i >= len(w) || v[j].Qubit < w[i].Qubit:
			p = append(p, v[j])
			j++
		default:
			c, pauli := mul(w[i].Pauli, v[j].Pauli)
			phase *= c
			if pauli != PauliI {
				p = append(p, Factor{Qubit: w[i].Qubit, Pauli: pauli})
			}
			i++
			j++
		}
	}
	return phase, p
}

// Matrix returns the 2^n x 2^n matrix of w, where bit q of a basis index is the state of qubit q.
func (w Word) Matrix(n int) *mat.COO {
	if w.NumQubits() > n {
		panic(fmt.Sprintf("%s %d", w, n))
	}
	m := mat.COOZeros(1, 1)
	m.Scalar(1)
	for q := n - 1; q >= 0; q-- {
		m.Kron(pauliMatrix(w.At(q)))
	}
	return m
}

func pauliMatrix(p Pauli) *mat.COO {
	switch p {
	case PauliX:
		return mat.M(mat.PauliX)
	case PauliY:
		return mat.M(mat.PauliY)
	case PauliZ:
		return mat.M(mat.PauliZ)
	default:
		return mat.COOIdentity(2)
	}
}

// Term is a weighted Pauli word.
type Term struct {
	Coefficient complex128
	Word        Word
}

// Op is an ordered sum of terms.
// The zero value is the empty sum.
type Op struct {
	terms []Term
}

// I returns the identity operator.
func I() Op { return Const(1) }

// Const returns c times the identity.
func Const(c complex128) Op {
	return Op{}.addTerm(Term{Coefficient: c, Word: Word{}})
}

// X returns the Pauli X operator on qubit q.
func X(q int) Op { return single(q, PauliX) }

// Y returns the Pauli Y operator on qubit q.
func Y(q int) Op { return single(q, PauliY) }

// Z returns the Pauli Z operator on qubit q.
func Z(q int) Op { return single(q, PauliZ) }

func single(q int, p Pauli) Op {
	if q < 0 {
		panic(fmt.Sprintf("qubit %d", q))
	}
	return Op{terms: []Term{{Coefficient: 1, Word: Word{{Qubit: q, Pauli: p}}}}}
}

// FromTerms returns the sum of terms.
// Words are brought to canonical form, equal words are merged, and zero terms are dropped.
func FromTerms(terms ...Term) Op {
	var o Op
	for _, t := range terms {
		o = o.addTerm(t)
	}
	return o
}

// Terms returns the terms of o in order.
func (o Op) Terms() []Term {
	return slices.Clone(o.terms)
}

func (o Op) NumTerms() int { return len(o.terms) }

// NumQubits returns one plus the largest qubit index referenced by o.
func (o Op) NumQubits() int {
	var n int
	for _, t := range o.terms {
		n = max(n, t.Word.NumQubits())
	}
	return n
}

func (o Op) addTerm(t Term) Op {
	phase, w := t.Word.normalize()
	c := phase * t.Coefficient
	if c == 0 {
		return o
	}
	terms := slices.Clone(o.terms)
	k := w.key()
	for i, ot := range terms {
		if ot.Word.key() == k {
			terms[i].Coefficient += c
			// Cancelled terms are dropped.
			if terms[i].Coefficient == 0 {
				terms = slices.Delete(terms, i, i+1)
			}
			return Op{terms: terms}
		}
	}
	terms = append(terms, Term{Coefficient: c, Word: w})
	return Op{terms: terms}
}

// Add returns o + p.
func (o Op) Add(p Op) Op {
	s := o
	for _, t := range p.terms {
		s = s.addTerm(t)
	}
	return s
}

// Sub returns o - p.
func (o Op) Sub(p Op) Op {
	return o.Add(p.Scale(-1))
}

// Scale returns c * o.
func (o Op) Scale(c complex128) Op {
	terms := make([]Term, 0, len(o.terms))
	for _, t := range o.terms {
		if c*t.Coefficient == 0 {
			continue
		}
		terms = append(terms, Term{Coefficient: c * t.Coefficient, Word: t.Word})
	}
	return Op{terms: terms}
}

// Mul returns the operator product o * p.
func (o Op) Mul(p Op) Op {
	var prod Op
	for _, a := range o.terms {
		for _, b := range p.terms {
			phase, w := a.Word.Mul(b.Word)
			prod = prod.addTerm(Term{Coefficient: phase * a.Coefficient * b.Coefficient, Word: w})
		}
	}
	return prod
}

// IsHermitian reports whether every coefficient of o is real.
func (o Op) IsHermitian() bool {
	for _, t := range o.terms {
		if imag(t.Coefficient) != 0 {
			return false
		}
	}
	return true
}

// Matrix returns the 2^n x 2^n matrix of o.
func (o Op) Matrix(n int) *mat.COO {
	m := mat.COOZeros(1<<n, 1<<n)
	for _, t := range o.terms {
		m.Add(t.Coefficient, t.Word.Matrix(n))
	}
	return m
}

// String formats o such that Parse(o.String()) equals o for real coefficients.
func (o Op) String() string {
	if len(o.terms) == 0 {
		return "0"
	}
	var sb strings.Builder
	for i, t := range o.terms {
		c := t.Coefficient
		if imag(c) != 0 {
			if i > 0 {
				sb.WriteString(" + ")
			}
			sb.WriteString(strconv.FormatComplex(c, 'g', -1, 128))
		} else {
			v := real(c)
			switch {
			case i == 0 && math.Signbit(v):
				sb.WriteString("-")
			case i > 0 && math.Signbit(v):
				sb.WriteString(" - ")
			case i > 0:
				sb.WriteString(" + ")
			}
			sb.WriteString(strconv.FormatFloat(math.Abs(v), 'g', -1, 64))
		}
		if !t.Word.IsIdentity() {
			sb.WriteString(" ")
			sb.WriteString(t.Word.String())
		}
	}
	return sb.String()
}
