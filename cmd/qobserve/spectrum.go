package main

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/fumin/qobserve/config"
	"github.com/fumin/qobserve/mat"
	"github.com/fumin/qobserve/sim"
	"github.com/fumin/qobserve/spin"
)

func newSpectrumCommand() *cobra.Command {
	var (
		hamiltonian string
		ising       []int
		field       float64
		levels      int
		cooDir      string
		printMatrix bool
	)
	cmd := &cobra.Command{
		Use:   "spectrum",
		Short: "Print the lowest eigenvalues of a Hamiltonian by exact diagonalization",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := spin.Parse(hamiltonian)
			if err != nil {
				return errors.Wrap(err, "")
			}
			if cmd.Flags().Changed("ising") {
				if len(ising) != 2 {
					return errors.Errorf("ising lattice %v", ising)
				}
				h = spin.TransverseFieldIsing([2]int{ising[0], ising[1]}, field)
			}
			m, err := matrix(h)
			if err != nil {
				return errors.Wrap(err, "")
			}
			if cooDir != "" {
				if err := m.WriteCOO(cooDir); err != nil {
					return errors.Wrap(err, "")
				}
			}
			if printMatrix {
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s\n", m); err != nil {
					return errors.Wrap(err, "")
				}
			}
			return spectrum(cmd.OutOrStdout(), m, h.NumQubits(), levels, cmd.Flags().Changed("ising"))
		},
	}
	f := cmd.Flags()
	f.StringVar(&hamiltonian, "hamiltonian", config.Default().Hamiltonian, "Hamiltonian as a sum of Pauli words")
	f.IntSliceVar(&ising, "ising", nil, "transverse field Ising lattice rows,cols instead of --hamiltonian")
	f.Float64Var(&field, "field", 1, "transverse field of the Ising model")
	f.IntVar(&levels, "levels", 1, "number of eigenvalues to print")
	f.StringVar(&cooDir, "coo", "", "directory to write the Hamiltonian matrix to in COO CSV form")
	f.BoolVar(&printMatrix, "matrix", false, "print the Hamiltonian matrix before its eigenvalues")
	return cmd
}

// matrix returns the matrix of h if it is small enough to diagonalize.
func matrix(h spin.Op) (*mat.COO, error) {
	n := h.NumQubits()
	if n > sim.MaxQubits/2 {
		return nil, errors.Wrapf(sim.ErrResourceExhausted, "%d qubits", n)
	}
	return h.Matrix(n), nil
}

// spectrum prints the lowest levels eigenvalues of the matrix m on n spins,
// followed by the order parameters of its ground state if stats is set.
func spectrum(w io.Writer, m *mat.COO, n, levels int, stats bool) error {
	vvs, err := m.EigenSym()
	if err != nil {
		return errors.Wrap(err, "")
	}
	for i := range min(levels, len(vvs)) {
		if _, err := fmt.Fprintf(w, "%d %v\n", i, vvs[i].Val); err != nil {
			return errors.Wrap(err, "")
		}
	}
	if !stats {
		return nil
	}

	s, err := spin.GroundStatistics(n, vvs)
	if err != nil {
		return errors.Wrap(err, "")
	}
	if _, err := fmt.Fprintf(w, "magnetization %v\nbinder %v\n", s.Magnetization, s.BinderCumulant); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}
