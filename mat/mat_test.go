package mat

import (
	"fmt"
	"math"
	"os"
	"testing"
)

func TestAdd(t *testing.T) {
	t.Parallel()
	tests := []struct {
		a          *COO
		c          complex128
		b          *COO
		z          *COO
		numNonZero int
	}{
		{
			a: M([][]complex128{
				{1, 0},
				{0, 2i},
			}),
			c: 1i,
			b: M([][]complex128{
				{1i, 0},
				{2, -5},
			}),
			z: M([][]complex128{
				{0, 0},
				{2i, -3i},
			}),
			numNonZero: 2,
		},
		// Adding into an empty matrix.
		{
			a: COOZeros(2, 2),
			c: -2,
			b: M([][]complex128{
				{0, 1},
				{1, 0},
			}),
			z: M([][]complex128{
				{0, -2},
				{-2, 0},
			}),
			numNonZero: 2,
		},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%s", test.a), func(t *testing.T) {
			t.Parallel()
			test.a.Add(test.c, test.b)
			if !test.a.Equal(test.z) {
				t.Fatalf("%s, expected %s", test.a, test.z)
			}
			if test.a.NumNonZero() != test.numNonZero {
				t.Fatalf("%d, expected %d", test.a.NumNonZero(), test.numNonZero)
			}
		})
	}
}

func TestKron(t *testing.T) {
	t.Parallel()
	tests := []struct {
		a *COO
		b *COO
		c *COO
	}{
		{
			a: M([][]complex128{
				{1, -4, 7},
				{-2, 0, 3},
			}),
			b: M([][]complex128{
				{8, -9, -6, 5},
				{1, -3, 0, 7},
				{2, 8, -8, -3},
				{1, 2, -5, -1},
			}),
			c: M([][]complex128{
				{8, -9, -6, 5, -32, 36, 24, -20, 56, -63, -42, 35},
				{1, -3, 0, 7, -4, 12, 0, -28, 7, -21, 0, 49},
				{2, 8, -8, -3, -8, -32, 32, 12, 14, 56, -56, -21},
				{1, 2, -5, -1, -4, -8, 20, 4, 7, 14, -35, -7},
				{-16, 18, 12, -10, 0, 0, 0, 0, 24, -27, -18, 15},
				{-2, 6, 0, -14, 0, 0, 0, 0, 3, -9, 0, 21},
				{-4, -16, 16, 6, 0, 0, 0, 0, 6, 24, -24, -9},
				{-2, -4, 10, 2, 0, 0, 0, 0, 3, 6, -15, -3},
			}),
		},
		// Scalar kronecker.
		{
			a: M([][]complex128{{1}}),
			b: M([][]complex128{
				{1, 2},
				{3, 4},
			}),
			c: M([][]complex128{
				{1, 2},
				{3, 4},
			}),
		},
		// Y ⊗ Y is real.
		{
			a: M(PauliY),
			b: M(PauliY),
			c: M([][]complex128{
				{0, 0, 0, -1},
				{0, 0, 1, 0},
				{0, 1, 0, 0},
				{-1, 0, 0, 0},
			}),
		},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%s", test.a), func(t *testing.T) {
			t.Parallel()
			test.a.Kron(test.b)
			if !test.a.Equal(test.c) {
				t.Fatalf("%s, expected %s", test.a, test.c)
			}
		})
	}
}

func TestMulVec(t *testing.T) {
	t.Parallel()
	m := M([][]complex128{
		{0, 1i},
		{2, 3},
	})
	y := m.MulVec([]complex128{1, -1})
	expected := []complex128{-1i, -1}
	for i := range y {
		if y[i] != expected[i] {
			t.Fatalf("%v, expected %v", y, expected)
		}
	}
}

func TestEigenSym(t *testing.T) {
	t.Parallel()
	m := M([][]complex128{
		{2, 1},
		{1, 2},
	})
	vvs, err := m.EigenSym()
	if err != nil {
		t.Fatalf("%+v", err)
	}
	vals := []float64{1, 3}
	for i, vv := range vvs {
		if math.Abs(vv.Val-vals[i]) > 1e-12 {
			t.Fatalf("%d %f, expected %f", i, vv.Val, vals[i])
		}
		var norm float64
		for _, v := range vv.Vec {
			norm += v * v
		}
		if math.Abs(norm-1) > 1e-12 {
			t.Fatalf("%d %f", i, norm)
		}
	}

	if _, err := M(PauliY).EigenSym(); err == nil {
		t.Fatalf("expected error for complex matrix")
	}
	if _, err := M([][]complex128{{0, 1}, {2, 0}}).EigenSym(); err == nil {
		t.Fatalf("expected error for asymmetric matrix")
	}
}

func TestReadCOO(t *testing.T) {
	t.Parallel()
	dir, err := os.MkdirTemp("", "")
	if err != nil {
		t.Fatalf("%+v", err)
	}
	defer os.RemoveAll(dir)

	m := M([][]complex128{
		{0.5, 0, -2i},
		{0, 0, 0},
		{1 + 1i, 0, 7},
	})
	if err := m.WriteCOO(dir); err != nil {
		t.Fatalf("%+v", err)
	}
	read, err := ReadCOO(dir)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if !read.Equal(m) {
		t.Fatalf("%s, expected %s", read, m)
	}
}
