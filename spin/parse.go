package spin

import (
	"strconv"

	"github.com/pkg/errors"
)

// Parse parses a sum of real weighted Pauli words, such as
//
//	5.907 - 2.1433 X0 X1 - 2.1433 Y0 Y1 + .21829 Z0 - 6.125 Z1
//
// Factors may be separated by spaces or '*', and a missing coefficient is 1.
// Factors on the same qubit are multiplied together, and terms with a zero coefficient are dropped.
func Parse(s string) (Op, error) {
	var o Op
	var (
		sign    float64 = 1
		signed  bool
		coef    float64 = 1
		hasCoef bool
		phase   complex128 = 1
		word    = Word{}
		inTerm  bool
		parsed  int
	)
	flush := func() {
		parsed++
		o = o.addTerm(Term{Coefficient: phase * complex(sign*coef, 0), Word: word})
		sign, signed = 1, false
		coef, hasCoef = 1, false
		phase, word = 1, Word{}
		inTerm = false
	}

	i := 0
	for i < len(s) {
		ch := s[i]
		switch {
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '*':
			i++
		case ch == '+' || ch == '-':
			switch {
			case inTerm:
				flush()
			case signed:
				return Op{}, errors.Errorf("unexpected %q at %d in %q", ch, i, s)
			}
			if ch == '-' {
				sign = -1
			}
			signed = true
			i++
		case isDigit(ch) || ch == '.':
			if hasCoef || len(word) > 0 {
				return Op{}, errors.Errorf("unexpected number at %d in %q", i, s)
			}
			j := scanNumber(s, i)
			v, err := strconv.ParseFloat(s[i:j], 64)
			if err != nil {
				return Op{}, errors.Wrap(err, s)
			}
			coef, hasCoef, inTerm = v, true, true
			i = j
		case ch == 'I' || ch == 'X' || ch == 'Y' || ch == 'Z':
			j := i + 1
			for j < len(s) && isDigit(s[j]) {
				j++
			}
			inTerm = true
			if ch == 'I' {
				i = j
				continue
			}
			if j == i+1 {
				return Op{}, errors.Errorf("missing qubit index at %d in %q", i, s)
			}
			q, err := strconv.Atoi(s[i+1 : j])
			if err != nil {
				return Op{}, errors.Wrap(err, s)
			}
			ph, w := word.Mul(Word{{Qubit: q, Pauli: pauliOf(ch)}})
			phase *= ph
			word = w
			i = j
		default:
			return Op{}, errors.Errorf("unexpected %q at %d in %q", ch, i, s)
		}
	}
	switch {
	case inTerm:
		flush()
	case signed:
		return Op{}, errors.Errorf("dangling sign in %q", s)
	}
	if parsed == 0 {
		return Op{}, errors.Errorf("empty operator %q", s)
	}
	return o, nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) Op {
	o, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return o
}

func pauliOf(ch byte) Pauli {
	switch ch {
	case 'X':
		return PauliX
	case 'Y':
		return PauliY
	case 'Z':
		return PauliZ
	default:
		return PauliI
	}
}

func isDigit(ch byte) bool { return '0' <= ch && ch <= '9' }

func scanNumber(s string, i int) int {
	j := i
	for j < len(s) && (isDigit(s[j]) || s[j] == '.') {
		j++
	}
	if j < len(s) && (s[j] == 'e' || s[j] == 'E') {
		k := j + 1
		if k < len(s) && (s[k] == '+' || s[k] == '-') {
			k++
		}
		if k < len(s) && isDigit(s[k]) {
			for k < len(s) && isDigit(s[k]) {
				k++
			}
			j = k
		}
	}
	return j
}
