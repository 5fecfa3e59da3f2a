package cavi

import (
	"fmt"
	"math"

	"github.com/pedrofale/pCMF/core/num"
)

// psiInverseStart is the starting point of the Newton solve inside the
// moment-matching prior updates.
const psiInverseStart = 2.0

// Optimizer re-estimates the prior hyperparameters from the current
// variational posterior statistics (empirical Bayes).  It is run after
// a full coordinate sweep when enabled.
type Optimizer struct {
	m *Model
}

func NewOptimizer(m *Model) *Optimizer {
	return &Optimizer{m: m}
}

// Optimize updates pi, alpha and beta in that order.  A failed
// inverse-digamma solve aborts the step: continuing with a partially
// updated prior would leave the hyperparameters inconsistent.
func (o *Optimizer) Optimize() error {
	o.UpdatePi()
	if err := o.UpdateAlpha(); err != nil {
		return err
	}
	return o.UpdateBeta()
}

// UpdatePi sets the prior dropout probability of each feature to the
// mean of the dropout posterior over observations.
func (o *Optimizer) UpdatePi() {
	m := o.m
	if !m.Dropout() {
		return
	}
	for j := 0; j < m.P; j++ {
		sum := 0.0
		for i := 0; i < m.N; i++ {
			sum += m.D.At(i, j)
		}
		m.Pi[j] = sum / float64(m.N)
		m.LogitPi[j] = num.Logit(m.Pi[j])
	}
}

// UpdateAlpha moment-matches the Gamma prior over U to the posterior:
// the new shape solves digamma(shape) = log(rate) + mean_i E[log U_ik]
// via the inverse-digamma root-find, and the rate is then closed so
// that the prior mean equals the posterior mean average.
func (o *Optimizer) UpdateAlpha() error {
	m := o.m
	for k := 0; k < m.K; k++ {
		meanLog, mean := 0.0, 0.0
		for i := 0; i < m.N; i++ {
			meanLog += m.A.MeanLogAt(i, k)
			mean += m.A.MeanAt(i, k)
		}
		meanLog /= float64(m.N)
		mean /= float64(m.N)

		shape, err := num.PsiInverse(psiInverseStart, math.Log(m.AlphaRate[k])+meanLog)
		if err != nil {
			return fmt.Errorf("cavi: alpha prior update for component %d: %w", k, err)
		}
		m.AlphaShape[k] = shape
		m.AlphaRate[k] = shape / mean
	}
	return nil
}

// UpdateBeta is the counterpart of UpdateAlpha for the prior over V.
// The moment match collapses the prior across features, so after an
// update every row of Beta carries the same K shape/rate pairs.
func (o *Optimizer) UpdateBeta() error {
	m := o.m
	for k := 0; k < m.K; k++ {
		meanLog, mean := 0.0, 0.0
		for j := 0; j < m.P; j++ {
			meanLog += m.B.MeanLogAt(j, k)
			mean += m.B.MeanAt(j, k)
		}
		meanLog /= float64(m.P)
		mean /= float64(m.P)

		shape, err := num.PsiInverse(psiInverseStart, math.Log(m.Beta.Rate.At(0, k))+meanLog)
		if err != nil {
			return fmt.Errorf("cavi: beta prior update for component %d: %w", k, err)
		}
		rate := shape / mean
		for j := 0; j < m.P; j++ {
			m.Beta.Shape.Set(j, k, shape)
			m.Beta.Rate.Set(j, k, rate)
		}
	}
	return nil
}
