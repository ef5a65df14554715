// Package mat implements sparse complex matrices in coordinate format.
package mat

import (
	"cmp"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

const (
	FnameShape = "shape.csv"
	FnameCOO   = "coo.csv"
)

var (
	PauliX = [][]complex128{
		{0, 1},
		{1, 0},
	}
	PauliY = [][]complex128{
		{0, -1i},
		{1i, 0},
	}
	PauliZ = [][]complex128{
		{1, 0},
		{0, -1},
	}
)

type vRowCol struct {
	v   complex128
	row int
	col int
}

// COO is a sparse matrix whose non-zero entries are kept in row major order.
type COO struct {
	rows int
	cols int
	Data []vRowCol

	m map[[2]int]complex128
}

func M(dense [][]complex128) *COO {
	m := &COO{rows: len(dense), cols: len(dense[0]), Data: make([]vRowCol, 0), m: make(map[[2]int]complex128)}
	for i, row := range dense {
		for j, v := range row {
			if v == 0 {
				continue
			}
			m.Data = append(m.Data, vRowCol{v: v, row: i, col: j})
		}
	}
	return m
}

func COOZeros(rows, cols int) *COO {
	m := M([][]complex128{{0}})
	m.Zeros(rows, cols)
	return m
}

func COOIdentity(rows int) *COO {
	m := M([][]complex128{{0}})
	m.Zeros(rows, rows)
	for i := 0; i < rows; i++ {
		m.Data = append(m.Data, vRowCol{v: 1, row: i, col: i})
	}
	return m
}

func (m *COO) Rows() int { return m.rows }
func (m *COO) Cols() int { return m.cols }

// NumNonZero returns the number of stored entries.
func (m *COO) NumNonZero() int { return len(m.Data) }

func (m *COO) Zeros(rows, cols int) {
	m.rows, m.cols = rows, cols
	m.Data = m.Data[:0]
}

func (m *COO) Scalar(v complex128) {
	m.rows, m.cols = 1, 1
	m.Data = m.Data[:0]
	m.Data = append(m.Data, vRowCol{v: v, row: 0, col: 0})
}

func (m *COO) At(i, j int) complex128 {
	k, ok := slices.BinarySearchFunc(m.Data, vRowCol{row: i, col: j}, rowMajor)
	if !ok {
		return 0
	}
	return m.Data[k].v
}

func (a *COO) Equal(b *COO) bool {
	if a.rows != b.rows {
		return false
	}
	if a.cols != b.cols {
		return false
	}
	if len(a.Data) != len(b.Data) {
		return false
	}
	for i, av := range a.Data {
		bv := b.Data[i]
		if av != bv {
			return false
		}
	}
	return true
}

// Add performs a += c*b.
// b may be a scalar, a column vector or a matrix of the same shape as a.
func (a *COO) Add(c complex128, b *COO) {
	b.index()

	for i, av := range a.Data {
		byx := broadcast(a, b, av)
		bv := b.m[byx]
		delete(b.m, byx)

		a.Data[i].v = av.v + c*bv
	}

	a.Data = slices.DeleteFunc(a.Data, func(v vRowCol) bool {
		return v.v == 0
	})
	sameShape := a.rows == b.rows && a.cols == b.cols
	for yx, bv := range b.m {
		if !sameShape || c*bv == 0 {
			continue
		}
		a.Data = append(a.Data, vRowCol{v: c * bv, row: yx[0], col: yx[1]})
	}
	slices.SortFunc(a.Data, rowMajor)
	clear(b.m)
}

// Kron replaces a with the Kronecker product a ⊗ b.
func (a *COO) Kron(b *COO) {
	rows := a.rows * b.rows
	cols := a.cols * b.cols
	a.rows, a.cols = rows, cols

	prevElemNum := len(a.Data)
	for i := prevElemNum - 1; i >= 0; i-- {
		av := a.Data[i]
		a.Data[i].v = 0
		for _, bv := range b.Data {
			ky := av.row*b.rows + bv.row
			kx := av.col*b.cols + bv.col
			a.Data = append(a.Data, vRowCol{v: av.v * bv.v, row: ky, col: kx})
		}
	}

	a.Data = slices.DeleteFunc(a.Data, func(v vRowCol) bool {
		return v.v == 0
	})
	slices.SortFunc(a.Data, rowMajor)
}

// MulVec returns the matrix vector product m @ x.
func (m *COO) MulVec(x []complex128) []complex128 {
	if len(x) != m.cols {
		panic(fmt.Sprintf("%d %d", len(x), m.cols))
	}
	y := make([]complex128, m.rows)
	for _, v := range m.Data {
		y[v.row] += v.v * x[v.col]
	}
	return y
}

func (m *COO) index() {
	if m.m == nil {
		m.m = make(map[[2]int]complex128)
	}
	clear(m.m)
	for _, v := range m.Data {
		m.m[[2]int{v.row, v.col}] = v.v
	}
}

func broadcast(a, b *COO, av vRowCol) [2]int {
	var byx [2]int
	switch {
	case b.rows == 1 && b.cols == 1:
	case b.rows == a.rows && b.cols == 1:
		byx[0] = av.row
	case b.rows == a.rows && b.cols == a.cols:
		byx[0], byx[1] = av.row, av.col
	default:
		panic(fmt.Sprintf("wrong dimensions %dx%d %dx%d", a.rows, a.cols, b.rows, b.cols))
	}
	return byx
}

func (m *COO) WriteCOO(dir string) error {
	shapePath := filepath.Join(dir, FnameShape)
	if err := os.WriteFile(shapePath, []byte(fmt.Sprintf("%d,%d", m.rows, m.cols)), 0644); err != nil {
		return errors.Wrap(err, "")
	}

	cooPath := filepath.Join(dir, FnameCOO)
	cooF, err := os.Create(cooPath)
	if err != nil {
		return errors.Wrap(err, "")
	}

	w := csv.NewWriter(cooF)
	for _, v := range m.Data {
		if err1 := w.Write([]string{FormatNumpy(v.v), strconv.Itoa(v.row), strconv.Itoa(v.col)}); err1 != nil && err == nil {
			err = errors.Wrap(err1, "")
			break
		}
	}
	w.Flush()
	if err1 := w.Error(); err1 != nil && err == nil {
		err = errors.Wrap(err1, "")
	}

	if err1 := cooF.Close(); err1 != nil && err == nil {
		err = errors.Wrap(err1, "")
	}
	return err
}

// COOReader streams the entries of a matrix written by WriteCOO.
type COOReader struct {
	f *os.File
	r *csv.Reader
	i int
}

func NewCOOReader(dir string) (*COOReader, error) {
	r := &COOReader{i: -1}

	var err error
	r.f, err = os.Open(filepath.Join(dir, FnameCOO))
	if err != nil {
		return nil, errors.Wrap(err, "")
	}

	r.r = csv.NewReader(r.f)
	return r, nil
}

func (r *COOReader) Close() error {
	return r.f.Close()
}

func (r *COOReader) Read() (vRowCol, error) {
	r.i++
	record, err := r.r.Read()
	if err == io.EOF {
		return vRowCol{}, io.EOF
	}
	if err != nil {
		return vRowCol{}, errors.Wrap(err, fmt.Sprintf("%d", r.i))
	}
	if len(record) != 3 {
		return vRowCol{}, errors.Errorf("%d %#v", r.i, record)
	}

	var vrc vRowCol
	s := strings.ReplaceAll(record[0], "j", "i")
	vrc.v, err = strconv.ParseComplex(s, 128)
	if err != nil {
		return vRowCol{}, errors.Wrap(err, fmt.Sprintf("%d %#v", r.i, record))
	}
	vrc.row, err = strconv.Atoi(record[1])
	if err != nil {
		return vRowCol{}, errors.Wrap(err, fmt.Sprintf("%d %#v", r.i, record))
	}
	vrc.col, err = strconv.Atoi(record[2])
	if err != nil {
		return vRowCol{}, errors.Wrap(err, fmt.Sprintf("%d %#v", r.i, record))
	}
	return vrc, nil
}

func ReadCOO(dir string) (*COO, error) {
	m := COOZeros(0, 0)
	var err error
	m.rows, m.cols, err = readShape(dir)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}

	r, err := NewCOOReader(dir)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	defer r.Close()
	for {
		v, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "")
		}

		m.Data = append(m.Data, v)
	}
	slices.SortFunc(m.Data, rowMajor)

	return m, nil
}

func readShape(dir string) (int, int, error) {
	f, err := os.Open(filepath.Join(dir, FnameShape))
	if err != nil {
		return -1, -1, errors.Wrap(err, "")
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return -1, -1, errors.Wrap(err, "")
	}
	if len(records) == 0 {
		return -1, -1, errors.Errorf("empty")
	}
	row := records[0]

	if len(row) != 2 {
		return -1, -1, errors.Errorf("%#v", row)
	}
	i, err := strconv.Atoi(row[0])
	if err != nil {
		return -1, -1, errors.Wrap(err, fmt.Sprintf("%#v", row))
	}
	j, err := strconv.Atoi(row[1])
	if err != nil {
		return -1, -1, errors.Wrap(err, fmt.Sprintf("%#v", row))
	}

	return i, j, nil
}

// String formats m as tab separated rows.
func (m *COO) String() string {
	m.index()

	lines := []string{}
	for i := 0; i < m.rows; i++ {
		cs := []string{}
		for j := 0; j < m.cols; j++ {
			v := m.m[[2]int{i, j}]
			switch {
			case imag(v) == 0:
				cs = append(cs, format(real(v)))
			case real(v) == 0:
				cs = append(cs, format(imag(v))+"i")
			default:
				cs = append(cs, format(real(v))+"+"+format(imag(v))+"i")
			}
		}
		l := strings.Join(cs, "\t")
		lines = append(lines, l)
	}

	clear(m.m)
	return strings.Join(lines, "\n")
}

// ValVec is an eigenvalue and its normalized eigenvector.
type ValVec struct {
	Val float64
	Vec []float64
}

// EigenSym returns the eigen decomposition of a real symmetric matrix, sorted by ascending eigenvalue.
func (m *COO) EigenSym() ([]ValVec, error) {
	if m.rows != m.cols {
		return nil, errors.Errorf("not square %dx%d", m.rows, m.cols)
	}
	sym := mat.NewSymDense(m.rows, nil)
	for _, v := range m.Data {
		if imag(v.v) != 0 {
			return nil, errors.Errorf("not real %v at %d %d", v.v, v.row, v.col)
		}
		if t := m.At(v.col, v.row); t != v.v {
			return nil, errors.Errorf("not symmetric %v %v at %d %d", v.v, t, v.row, v.col)
		}
		sym.SetSym(v.row, v.col, real(v.v))
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(sym, true); !ok {
		return nil, errors.Errorf("eigen factorization failed")
	}
	vals := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	vvs := make([]ValVec, 0, len(vals))
	for i, v := range vals {
		vec := make([]float64, 0, m.rows)
		for j := 0; j < m.rows; j++ {
			vec = append(vec, vecs.At(j, i))
		}
		vvs = append(vvs, ValVec{Val: v, Vec: vec})
	}
	slices.SortFunc(vvs, func(a, b ValVec) int { return cmp.Compare(a.Val, b.Val) })

	return vvs, nil
}

func rowMajor(a, b vRowCol) int {
	if c := cmp.Compare(a.row, b.row); c != 0 {
		return c
	}
	return cmp.Compare(a.col, b.col)
}

func format(v float64) string {
	// If v is 0 or -0, return "0" immediately to avoid returning "-0".
	if v == 0 {
		return " 0"
	}

	s := strconv.FormatFloat(v, 'g', -1, 64)

	// Add a space before non-negative numbers to align with other negative numbers in the same column.
	if v >= 0 {
		s = " " + s
	}

	return s
}

func FormatNumpy(v complex128) string {
	switch {
	case imag(v) == 0:
		return strconv.FormatFloat(real(v), 'g', -1, 64)
	default:
		s := strconv.FormatComplex(v, 'g', -1, 128)
		s = strings.Trim(s, "()")
		s = strings.ReplaceAll(s, "i", "j")
		return s
	}
}
