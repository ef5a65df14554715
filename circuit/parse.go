package circuit

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Parse parses a kernel written one statement per line or separated by ';', such as
//
//	x 0; ry $0 1; cx 1 0
//
// Each leading 'c' of a gate name adds a control, so "ccx a b t" is a Toffoli gate.
// Rotation angles are literals, $i, -$i or v*$i.
// The register size and parameter count are taken from "qalloc n" and "params n" statements,
// or inferred from the largest qubit and parameter referenced.
func Parse(src string) (*Kernel, error) {
	qalloc, params := -1, -1
	var ops []Op
	maxQubit, maxParam := -1, -1

	stmts := strings.FieldsFunc(src, func(r rune) bool { return r == '\n' || r == ';' })
	for i, stmt := range stmts {
		if j := strings.Index(stmt, "#"); j >= 0 {
			stmt = stmt[:j]
		}
		fields := strings.Fields(stmt)
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "qalloc", "params":
			if len(fields) != 2 {
				return nil, errors.Errorf("statement %d %q", i, stmt)
			}
			n, err := strconv.Atoi(fields[1])
			if err != nil || n < 0 {
				return nil, errors.Errorf("statement %d %q", i, stmt)
			}
			if fields[0] == "qalloc" {
				qalloc = n
			} else {
				params = n
			}
			continue
		}

		op, err := parseOp(fields)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("statement %d %q", i, stmt))
		}
		for _, q := range op.Controls {
			maxQubit = max(maxQubit, q)
		}
		for _, q := range op.Targets {
			maxQubit = max(maxQubit, q)
		}
		if op.Gate.IsRotation() {
			maxParam = max(maxParam, op.Angle.Param)
		}
		ops = append(ops, op)
	}

	if qalloc < 0 {
		qalloc = maxQubit + 1
	}
	if params < 0 {
		params = maxParam + 1
	}
	k := NewKernel(qalloc, params)
	for i, op := range ops {
		if err := k.check(op); err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("op %d", i))
		}
		k.ops = append(k.ops, op)
	}
	return k, nil
}

func parseOp(fields []string) (Op, error) {
	name := fields[0]
	var numControls int
	for {
		if _, ok := gates[Gate(name)]; ok {
			break
		}
		if !strings.HasPrefix(name, "c") {
			return Op{}, errors.Errorf("unknown gate %q", fields[0])
		}
		name = name[1:]
		numControls++
	}
	op := Op{Gate: Gate(name)}

	args := fields[1:]
	if op.Gate.IsRotation() {
		if len(args) == 0 {
			return Op{}, errors.Errorf("%s missing angle", fields[0])
		}
		a, err := parseAngle(args[0])
		if err != nil {
			return Op{}, errors.Wrap(err, "")
		}
		op.Angle = a
		args = args[1:]
	}

	numTargets := gates[op.Gate].targets
	if len(args) != numControls+numTargets {
		return Op{}, errors.Errorf("%s takes %d qubits, got %d", fields[0], numControls+numTargets, len(args))
	}
	qubits := make([]int, 0, len(args))
	for _, s := range args {
		q, err := strconv.Atoi(s)
		if err != nil {
			return Op{}, errors.Wrap(err, "")
		}
		if q < 0 {
			return Op{}, errors.Errorf("negative qubit %d", q)
		}
		qubits = append(qubits, q)
	}
	op.Controls = qubits[:numControls]
	op.Targets = qubits[numControls:]
	return op, nil
}

func parseAngle(s string) (Angle, error) {
	scale := 1.0
	switch {
	case strings.Contains(s, "*"):
		coef, ref, _ := strings.Cut(s, "*")
		v, err := strconv.ParseFloat(coef, 64)
		if err != nil {
			return Angle{}, errors.Wrap(err, "")
		}
		scale, s = v, ref
	case strings.HasPrefix(s, "-$"):
		scale, s = -1, s[1:]
	}

	if !strings.HasPrefix(s, "$") {
		if scale != 1 {
			return Angle{}, errors.Errorf("bad angle %q", s)
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Angle{}, errors.Wrap(err, "")
		}
		return Const(v), nil
	}
	i, err := strconv.Atoi(s[1:])
	if err != nil || i < 0 {
		return Angle{}, errors.Errorf("bad parameter %q", s)
	}
	return Angle{Param: i, Value: scale}, nil
}
