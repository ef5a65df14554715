package spin

// TransverseFieldIsing returns the Hamiltonian -Σ Z_i Z_j - h Σ X_i on an n[0] x n[1] lattice with open boundaries.
// Site (y, x) is qubit y*n[1] + x.
func TransverseFieldIsing(n [2]int, h float64) Op {
	var hamiltonian Op
	site := func(y, x int) int { return y*n[1] + x }
	for y := 0; y < n[0]; y++ {
		for x := 0; x < n[1]; x++ {
			up := y - 1
			if up >= 0 {
				hamiltonian = hamiltonian.Sub(Z(site(up, x)).Mul(Z(site(y, x))))
			}

			left := x - 1
			if left >= 0 {
				hamiltonian = hamiltonian.Sub(Z(site(y, left)).Mul(Z(site(y, x))))
			}

			hamiltonian = hamiltonian.Sub(X(site(y, x)).Scale(complex(h, 0)))
		}
	}
	return hamiltonian
}
