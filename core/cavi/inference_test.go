package cavi

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"gonum.org/v1/gonum/mat"
)

func TestRunReturnsTraces(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	inf := NewInference(createTestingModel(rng), rng)
	llIter, llTime, err := inf.Run(RunConfig{
		Iterations:    5,
		ComputeLL:     true,
		SamplingRate:  time.Nanosecond,
		SubsampleSize: 3,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(llIter) != 5 {
		t.Errorf("per-iteration trace has %d entries, want 5", len(llIter))
	}
	// With a nanosecond spacing every iteration qualifies for the
	// time-sampled trace as well.
	if len(llTime) != 5 {
		t.Errorf("time-sampled trace has %d entries, want 5", len(llTime))
	}
	for i, v := range llIter {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Errorf("llIter[%d] = %v, want finite", i, v)
		}
	}
}

func TestRunWithoutLLReturnsEmptyTraces(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	inf := NewInference(createTestingModel(rng), rng)
	llIter, llTime, err := inf.Run(RunConfig{Iterations: 3})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(llIter) != 0 || len(llTime) != 0 {
		t.Errorf("expected empty traces, got %d and %d entries",
			len(llIter), len(llTime))
	}
}

func TestRunSamplingRateThrottlesTrace(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	inf := NewInference(createTestingModel(rng), rng)
	llIter, llTime, err := inf.Run(RunConfig{
		Iterations:    10,
		ComputeLL:     true,
		SamplingRate:  time.Hour,
		SubsampleSize: 3,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(llIter) != 10 {
		t.Errorf("per-iteration trace has %d entries, want 10", len(llIter))
	}
	if len(llTime) != 0 {
		t.Errorf("hour-spaced trace has %d entries, want 0", len(llTime))
	}
}

func TestRunHonorsTimeBudget(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	inf := NewInference(createTestingModel(rng), rng)
	llIter, _, err := inf.Run(RunConfig{
		Iterations:    1000000,
		MaxTime:       time.Millisecond,
		ComputeLL:     true,
		SubsampleSize: 3,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(llIter) == 0 || len(llIter) == 1000000 {
		t.Errorf("time budget did not stop the loop sensibly: %d iterations", len(llIter))
	}
}

func TestRunStopsOnClosedChannel(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	inf := NewInference(createTestingModel(rng), rng)
	stop := make(chan struct{})
	close(stop)
	llIter, _, err := inf.Run(RunConfig{
		Iterations:    100,
		ComputeLL:     true,
		SubsampleSize: 3,
		Stop:          stop,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(llIter) != 0 {
		t.Errorf("stopped run produced %d iterations, want 0", len(llIter))
	}
}

func TestRunInvokesProgress(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	inf := NewInference(createTestingModel(rng), rng)
	var iters []int
	_, _, err := inf.Run(RunConfig{
		Iterations: 4,
		Progress:   func(it int, _ float64) { iters = append(iters, it) },
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(iters) != 4 || iters[0] != 0 || iters[3] != 3 {
		t.Errorf("progress callback saw iterations %v", iters)
	}
}

func TestRunFiveIterationScenario(t *testing.T) {
	// The documented smoke scenario: N=5, P=4, K=2, ones-plus-noise
	// priors, fixed counts with zeros, 5 iterations, empirical Bayes
	// off.
	rng := rand.New(rand.NewSource(6))
	m := createTestingModel(rng)
	inf := NewInference(m, rng)
	llIter, _, err := inf.Run(RunConfig{
		Iterations:    5,
		ComputeLL:     true,
		SubsampleSize: 5,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(llIter) != 5 {
		t.Fatalf("trace has %d entries, want 5", len(llIter))
	}
	checkInvariants(t, m)
	if r, c := m.A.Dims(); r != 5 || c != 2 {
		t.Errorf("a is %dx%d, want 5x2", r, c)
	}
	if r, c := m.B.Dims(); r != 4 || c != 2 {
		t.Errorf("b is %dx%d, want 4x2", r, c)
	}
}

func TestRunWithEmpiricalBayes(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	m := createTestingModel(rng)
	inf := NewInference(m, rng)
	if _, _, err := inf.Run(RunConfig{
		Iterations:     5,
		EmpiricalBayes: true,
		ComputeLL:      true,
		SubsampleSize:  5,
	}); err != nil {
		t.Fatalf("Run with empirical Bayes: %v", err)
	}
	checkInvariants(t, m)
}

// synthesizeCounts draws a low-noise Gamma-Poisson count matrix so the
// likelihood trend of a training run can be checked statistically.
func synthesizeCounts(n, p, k int, rng *rand.Rand) *mat.Dense {
	u := make([]float64, n*k)
	v := make([]float64, p*k)
	for i := range u {
		u[i] = 0.5 + 2*rng.Float64()
	}
	for i := range v {
		v[i] = 0.5 + 2*rng.Float64()
	}
	X := mat.NewDense(n, p, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			lam := 0.0
			for l := 0; l < k; l++ {
				lam += u[i*k+l] * v[j*k+l]
			}
			// A deterministic rounded mean keeps the test stable; the
			// trend check does not need sampling noise.
			X.Set(i, j, math.Round(lam))
		}
	}
	return X
}

func TestTrainingTrendImproves(t *testing.T) {
	const (
		n = 20
		p = 50
		k = 3
	)
	rng := rand.New(rand.NewSource(8))
	X := synthesizeCounts(n, p, k, rng)

	alphaShape := make([]float64, k)
	alphaRate := make([]float64, k)
	for i := 0; i < k; i++ {
		alphaShape[i] = 1 + rng.Float64()
		alphaRate[i] = 1 + rng.Float64()
	}
	beta := NewRandomGammaParams(p, k, rng)
	m := NewModel(X, alphaShape, alphaRate, beta, nil, rng)
	inf := NewInference(m, rng)

	llIter, _, err := inf.Run(RunConfig{
		Iterations:    100,
		MaxTime:       5 * time.Minute,
		ComputeLL:     true,
		SubsampleSize: n,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(llIter) < 100 {
		t.Fatalf("trace has %d entries, want 100", len(llIter))
	}

	// Statistical, not strict, monotonicity: the final quartile of the
	// trace should beat the first quartile on average.
	q := len(llIter) / 4
	first, last := 0.0, 0.0
	for i := 0; i < q; i++ {
		first += llIter[i]
		last += llIter[len(llIter)-1-i]
	}
	if last <= first {
		t.Errorf("final-quartile mean %f does not exceed first-quartile mean %f",
			last/float64(q), first/float64(q))
	}
}
