package cavi

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// minRate floors the Poisson rate before taking logs, so that
// zero-valued factor estimates do not produce log(0).
const minRate = 1e-10

// rowLogLikelihood returns the zero-inflated Poisson log-likelihood of
// one data row x under point estimates: uRow is the row's factor
// estimate, v the P x K column-factor estimate, pRow the per-feature
// probability that the entry was observed.  For a nonzero count the
// entry must have been observed, contributing log p + Poisson log-pmf;
// a zero either was dropped out or genuinely drawn as zero.
func rowLogLikelihood(x, uRow, pRow []float64, v *mat.Dense) float64 {
	ll := 0.0
	_, k := v.Dims()
	for j := range x {
		lam := 0.0
		for l := 0; l < k; l++ {
			lam += uRow[l] * v.At(j, l)
		}
		if lam < minRate {
			lam = minRate
		}
		p := pRow[j]
		if x[j] != 0 {
			ll += math.Log(p) + distuv.Poisson{Lambda: lam}.LogProb(x[j])
			continue
		}
		if p == 1 {
			ll += -lam
			continue
		}
		ll += math.Log((1 - p) + p*math.Exp(-lam))
	}
	return ll
}

// RowLogLikelihoods evaluates the data log-likelihood of every row of X
// under the point estimates U (rows x K), V (P x K) and the dropout
// probabilities p (rows x P).
func RowLogLikelihoods(X, U, V, p *mat.Dense) []float64 {
	n, _ := X.Dims()
	ll := make([]float64, n)
	for i := 0; i < n; i++ {
		ll[i] = rowLogLikelihood(X.RawRowView(i), U.RawRowView(i), p.RawRowView(i), V)
	}
	return ll
}

// LogLikelihood returns the mean per-row data log-likelihood.
func LogLikelihood(X, U, V, p *mat.Dense) float64 {
	lls := RowLogLikelihoods(X, U, V, p)
	sum := 0.0
	for _, v := range lls {
		sum += v
	}
	return sum / float64(len(lls))
}

// defaultPredictIterations is the number of local coordinate sweeps run
// per held-out evaluation.
const defaultPredictIterations = 10

// PredictiveLL approximates the posterior predictive log-likelihood of
// held-out rows.  The trained column-factor posterior q(V) is held
// fixed while fresh local parameters (a, r, p) are initialized for the
// new rows and refined by iters local-only sweeps in the order r, a, p.
// The returned scalar is the mean over rows of the data log-likelihood
// at the resulting point estimates.
//
// This is a point-estimate approximation of the predictive integral; a
// Monte Carlo variant would instead draw S samples from the Gamma and
// Bernoulli posteriors and average the likelihoods.
func (inf *Inference) PredictiveLL(Xtest *mat.Dense, iters int) float64 {
	if iters <= 0 {
		iters = defaultPredictIterations
	}
	m := inf.model
	n, p := Xtest.Dims()
	if p != m.P {
		panic(fmt.Sprintf("cavi: held-out data has %d features, model has %d", p, m.P))
	}

	a, r, d := inf.newLocalParams(n, inf.rng)
	for it := 0; it < iters; it++ {
		inf.updater.UpdateR(r, Xtest, a)
		inf.updater.UpdateA(a, Xtest, d, r)
		inf.updater.UpdateP(d, Xtest, a)
	}

	return LogLikelihood(Xtest, a.Mean(), m.EstimateV(), d)
}

// newLocalParams builds fresh local variational state for n rows, using
// the same initialization scheme as training.
func (inf *Inference) newLocalParams(n int, rng *rand.Rand) (a GammaParams, r, d *mat.Dense) {
	m := inf.model
	a = NewRandomGammaParams(n, m.K, rng)
	r = constantDense(n*m.P, m.K, 0.5)
	if m.Dropout() {
		d = constantDense(n, m.P, 0.5)
	} else {
		d = constantDense(n, m.P, 1)
	}
	return a, r, d
}
