package network

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	qkderr "github.com/qtessera/qkd/internal/errors"
	"github.com/qtessera/qkd/qrand"
	"github.com/qtessera/qkd/quantum"
)

// CHSH analyzer angles: Alice measures at 0 and π/2, Bob at π/4 and 3π/4.
// For the Φ+ pair these maximize the statistic at 2√2.
var (
	chshAliceAngles = [2]float64{0, math.Pi / 2}
	chshBobAngles   = [2]float64{math.Pi / 4, 3 * math.Pi / 4}
)

// EstimateCHSH measures the CHSH statistic of a two-qubit pair by sampling
// trials measurement rounds per analyzer combination. Values above 2 witness
// entanglement; an ideal Φ+ pair approaches 2√2. The pair itself is never
// mutated, so one prepared state serves all rounds.
func EstimateCHSH(pair *quantum.State, trials int, src qrand.Source) (float64, error) {
	if pair.UnitDim() != 2 || pair.Units() != 2 {
		return 0, fmt.Errorf("%w: %d units of dimension %d",
			qkderr.ErrNotEntangledPair, pair.Units(), pair.UnitDim())
	}
	if trials < 1 {
		return 0, fmt.Errorf("%w: %d trials", qkderr.ErrNotEntangledPair, trials)
	}

	correlation := func(alpha, beta float64) (float64, error) {
		products := make([]float64, trials)
		for t := 0; t < trials; t++ {
			aOut, err := quantum.SampleUnit(pair, 0, quantum.AngleBasis(alpha), src)
			if err != nil {
				return 0, err
			}
			collapsed, err := quantum.Collapse(pair, aOut)
			if err != nil {
				return 0, err
			}
			bOut, err := quantum.SampleUnit(collapsed, 1, quantum.AngleBasis(beta), src)
			if err != nil {
				return 0, err
			}
			products[t] = float64(1-2*aOut.Value) * float64(1-2*bOut.Value)
		}
		return stat.Mean(products, nil), nil
	}

	e00, err := correlation(chshAliceAngles[0], chshBobAngles[0])
	if err != nil {
		return 0, err
	}
	e01, err := correlation(chshAliceAngles[0], chshBobAngles[1])
	if err != nil {
		return 0, err
	}
	e10, err := correlation(chshAliceAngles[1], chshBobAngles[0])
	if err != nil {
		return 0, err
	}
	e11, err := correlation(chshAliceAngles[1], chshBobAngles[1])
	if err != nil {
		return 0, err
	}
	return e00 - e01 + e10 + e11, nil
}
