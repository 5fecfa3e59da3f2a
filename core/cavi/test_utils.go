package cavi

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

const (
	testingN = 5
	testingP = 4
	testingK = 2
)

// createTestingCounts returns a fixed 5x4 count matrix with several
// exact zeros.
func createTestingCounts() *mat.Dense {
	return mat.NewDense(testingN, testingP, []float64{
		3, 0, 1, 2,
		0, 4, 0, 1,
		2, 1, 5, 0,
		0, 0, 2, 3,
		1, 2, 0, 0,
	})
}

// createTestingPriors builds ones-plus-noise alpha and beta priors from
// the given source of randomness.
func createTestingPriors(rng *rand.Rand) (alphaShape, alphaRate []float64, beta GammaParams) {
	alphaShape = make([]float64, testingK)
	alphaRate = make([]float64, testingK)
	for k := 0; k < testingK; k++ {
		alphaShape[k] = 1 + rng.Float64()
		alphaRate[k] = 1 + rng.Float64()
	}
	beta = NewRandomGammaParams(testingP, testingK, rng)
	return alphaShape, alphaRate, beta
}

// createTestingModel builds a zero-inflated model over the fixed count
// matrix with uniform 0.5 prior dropout probabilities.
func createTestingModel(rng *rand.Rand) *Model {
	alphaShape, alphaRate, beta := createTestingPriors(rng)
	pi := make([]float64, testingP)
	for j := range pi {
		pi[j] = 0.5
	}
	return NewModel(createTestingCounts(), alphaShape, alphaRate, beta, pi, rng)
}

// createTestingGaPModel builds a plain Gamma-Poisson model without the
// zero-inflation layer.
func createTestingGaPModel(rng *rand.Rand) *Model {
	alphaShape, alphaRate, beta := createTestingPriors(rng)
	return NewModel(createTestingCounts(), alphaShape, alphaRate, beta, nil, rng)
}
