package spin

import (
	"math"
	"math/bits"

	"github.com/pkg/errors"

	"github.com/fumin/qobserve/mat"
)

// Statistics are order parameters of the ground state of a spin system.
type Statistics struct {
	EigenValue     []float64
	Magnetization  float64
	BinderCumulant float64
}

// GroundStatistics computes the statistics of numSpins spins from their eigen decomposition, sorted ascending.
// Each basis state is counted in the orientation where the majority of spins are up,
// so the magnetization of a symmetric ground state is not zero.
func GroundStatistics(numSpins int, vvs []mat.ValVec) (Statistics, error) {
	var stats Statistics
	if len(vvs) == 0 {
		return Statistics{}, errors.Errorf("no eigenvectors")
	}
	for _, vv := range vvs {
		stats.EigenValue = append(stats.EigenValue, vv.Val)
	}
	ground := vvs[0]
	if len(ground.Vec) != 1<<numSpins {
		return Statistics{}, errors.Errorf("%d %d", len(ground.Vec), 1<<numSpins)
	}

	var totalProb, m2 float64
	for i, amplitude := range ground.Vec {
		probability := amplitude * amplitude
		ups := bits.OnesCount(uint(i))
		basisM := math.Abs(float64(2*ups - numSpins))

		totalProb += probability
		stats.Magnetization += probability * basisM
		stats.BinderCumulant += probability * math.Pow(basisM, 4)
		m2 += probability * math.Pow(basisM, 2)
	}
	if math.Abs(totalProb-1) > 1e-3 {
		return Statistics{}, errors.Errorf("%f", totalProb)
	}

	stats.Magnetization /= float64(numSpins)
	stats.BinderCumulant /= (m2 * m2)
	stats.BinderCumulant = 1 - stats.BinderCumulant/3
	return stats, nil
}
