package cavi

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/pedrofale/pCMF/core/num"
)

// Updater computes the closed-form coordinate updates of the
// variational parameters.  The local updates (a, p, r) take their
// parameter blocks as arguments so that the predictive engine can run
// them against fresh local state for held-out rows; they read the
// priors and the global factor posterior q(V) from the model.
type Updater struct {
	m *Model
}

func NewUpdater(m *Model) *Updater {
	return &Updater{m: m}
}

// Sweep applies one full coordinate-ascent pass over the training
// data: the row-factor posterior a, the dropout posterior p, the
// allocation posterior r, and finally the global column-factor
// posterior b.  Later updates within the sweep consume the freshly
// updated earlier blocks.
func (u *Updater) Sweep() {
	u.UpdateA(u.m.A, u.m.X, u.m.D, u.m.R)
	u.UpdateP(u.m.D, u.m.X, u.m.A)
	u.UpdateR(u.m.R, u.m.X, u.m.A)
	u.UpdateB()
}

// UpdateA sets, for every observation i and component k,
//
//	a.Shape[i,k] = alphaShape[k] + sum_j p[i,j]*X[i,j]*r[i,j,k]
//	a.Rate[i,k]  = alphaRate[k]  + sum_j p[i,j]*E[V[j,k]]
//
// Both stay strictly positive for positive priors.
func (u *Updater) UpdateA(a GammaParams, X, p, r *mat.Dense) {
	n, _ := X.Dims()
	P, K := u.m.P, u.m.K

	for i := 0; i < n; i++ {
		shapeRow := a.Shape.RawRowView(i)
		for k := 0; k < K; k++ {
			shapeRow[k] = u.m.AlphaShape[k]
		}
		for j := 0; j < P; j++ {
			w := p.At(i, j) * X.At(i, j)
			if w == 0 {
				continue
			}
			floats.AddScaled(shapeRow, w, r.RawRowView(i*P+j))
		}
	}

	// The rate term sum_j p[i,j]*E[V[j,k]] is the matrix product
	// p * E[V].
	var rate mat.Dense
	rate.Mul(p, u.m.B.Mean())
	for i := 0; i < n; i++ {
		row := a.Rate.RawRowView(i)
		for k := 0; k < K; k++ {
			row[k] = u.m.AlphaRate[k] + rate.At(i, k)
		}
	}
}

// UpdateB is the column-potentials counterpart of UpdateA, summing over
// observations instead of features and using the freshly updated q(U).
func (u *Updater) UpdateB() {
	m := u.m
	for j := 0; j < m.P; j++ {
		shapeRow := m.B.Shape.RawRowView(j)
		for k := 0; k < m.K; k++ {
			shapeRow[k] = m.Beta.Shape.At(j, k)
		}
		for i := 0; i < m.N; i++ {
			w := m.D.At(i, j) * m.X.At(i, j)
			if w == 0 {
				continue
			}
			floats.AddScaled(shapeRow, w, m.R.RawRowView(i*m.P+j))
		}
	}

	var rate mat.Dense
	rate.Mul(m.D.T(), m.A.Mean())
	for j := 0; j < m.P; j++ {
		row := m.B.Rate.RawRowView(j)
		for k := 0; k < m.K; k++ {
			row[k] = m.Beta.Rate.At(j, k) + rate.At(j, k)
		}
	}
}

// UpdateP recomputes the dropout posterior from
//
//	logit(p[i,j]) = logit(pi[j]) - sum_k E[U[i,k]]*E[V[j,k]]
//
// through the stable logistic transform, then pins p[i,j] to one
// wherever X[i,j] is nonzero: an observed count cannot come from a
// dropped-out entry.  It is a no-op for models without zero inflation,
// whose p is identically one.
func (u *Updater) UpdateP(p, X *mat.Dense, a GammaParams) {
	if !u.m.Dropout() {
		return
	}
	n, _ := X.Dims()

	var dot mat.Dense
	dot.Mul(a.Mean(), u.m.B.Mean().T())
	for i := 0; i < n; i++ {
		for j := 0; j < u.m.P; j++ {
			if X.At(i, j) != 0 {
				p.Set(i, j, 1)
				continue
			}
			p.Set(i, j, num.Logistic(u.m.LogitPi[j]-dot.At(i, j)))
		}
	}
}

// UpdateR recomputes the allocation posterior.  The unnormalized
// weight of component k for entry (i, j) is
//
//	exp(E[log U[i,k]] + E[log V[j,k]])
//
// with E[log X] = digamma(shape) - log(rate); each K-vector is
// normalized in log space (max-subtracted softmax) to avoid overflow.
func (u *Updater) UpdateR(r, X *mat.Dense, a GammaParams) {
	n, _ := X.Dims()
	P, K := u.m.P, u.m.K

	logU := mat.NewDense(n, K, nil)
	for i := 0; i < n; i++ {
		for k := 0; k < K; k++ {
			logU.Set(i, k, a.MeanLogAt(i, k))
		}
	}
	logV := mat.NewDense(P, K, nil)
	for j := 0; j < P; j++ {
		for k := 0; k < K; k++ {
			logV.Set(j, k, u.m.B.MeanLogAt(j, k))
		}
	}

	for i := 0; i < n; i++ {
		uRow := logU.RawRowView(i)
		for j := 0; j < P; j++ {
			vRow := logV.RawRowView(j)
			row := r.RawRowView(i*P + j)
			floats.AddTo(row, uRow, vRow)
			max := floats.Max(row)
			sum := 0.0
			for k := 0; k < K; k++ {
				row[k] = math.Exp(row[k] - max)
				sum += row[k]
			}
			floats.Scale(1/sum, row)
		}
	}
}
