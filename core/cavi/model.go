// Package cavi implements coordinate ascent variational inference for
// probabilistic count matrix factorization: an observed non-negative
// count matrix X (observations x features) is modeled as a Poisson draw
// from U*V^T, where U and V are latent Gamma-distributed factor
// matrices, optionally gated by a Bernoulli dropout indicator that
// accounts for zero inflation.  Each variational parameter update is
// the closed form obtained by setting the parameter to the expected
// natural parameter of the latent variable's complete conditional.
package cavi

import (
	"encoding/gob"
	"fmt"
	"io"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/pedrofale/pCMF/core/num"
)

// GammaParams holds elementwise shape and rate parameters of a matrix
// of independent Gamma distributions, as used for both the priors and
// the variational posteriors over the factor matrices.
type GammaParams struct {
	Shape *mat.Dense
	Rate  *mat.Dense
}

// NewGammaParams allocates zero-valued shape and rate matrices of the
// given dimensions.
func NewGammaParams(r, c int) GammaParams {
	return GammaParams{
		Shape: mat.NewDense(r, c, nil),
		Rate:  mat.NewDense(r, c, nil),
	}
}

// NewRandomGammaParams draws every shape and rate entry from
// 1 + Uniform(0,1), the initialization scheme used for the variational
// factors.
func NewRandomGammaParams(r, c int, rng *rand.Rand) GammaParams {
	g := NewGammaParams(r, c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			g.Shape.Set(i, j, 1+rng.Float64())
			g.Rate.Set(i, j, 1+rng.Float64())
		}
	}
	return g
}

// Dims returns the row and column counts.
func (g GammaParams) Dims() (r, c int) {
	return g.Shape.Dims()
}

// MeanAt returns shape/rate at (i, j), the posterior point estimate of
// the underlying factor entry.
func (g GammaParams) MeanAt(i, j int) float64 {
	return g.Shape.At(i, j) / g.Rate.At(i, j)
}

// Mean returns the elementwise shape/rate matrix.
func (g GammaParams) Mean() *mat.Dense {
	var m mat.Dense
	m.DivElem(g.Shape, g.Rate)
	return &m
}

// MeanLogAt returns E[log X] = digamma(shape) - log(rate) at (i, j).
func (g GammaParams) MeanLogAt(i, j int) float64 {
	return num.Digamma(g.Shape.At(i, j)) - math.Log(g.Rate.At(i, j))
}

// Model owns the data, the hyperparameters and the variational
// parameters of one inference run.  All fields are mutated in place by
// Updater and Optimizer; a Model must not be shared between goroutines.
type Model struct {
	// X is the N x P observed count matrix.
	X *mat.Dense

	N, P, K int

	// AlphaShape and AlphaRate are the K-dimensional Gamma prior over
	// the rows of U, shared across observations.
	AlphaShape []float64
	AlphaRate  []float64

	// Beta is the P x K Gamma prior over V.
	Beta GammaParams

	// Pi and LogitPi hold the per-feature prior dropout probability
	// and its logit.  Both are nil when the model is a plain
	// Gamma-Poisson factorization without zero inflation.
	Pi      []float64
	LogitPi []float64

	// A and B are the variational Gamma posteriors q(U) (N x K) and
	// q(V) (P x K).
	A GammaParams
	B GammaParams

	// R is the variational categorical posterior q(Z) over the latent
	// allocation of each count across the K components.  Row i*P+j
	// holds the K weights for entry (i, j) and sums to one.
	R *mat.Dense

	// D is the N x P variational Bernoulli posterior q(D): the
	// probability that an entry was not dropped out.  Entries with a
	// nonzero count are pinned to one.
	D *mat.Dense
}

// NewModel validates the inputs and builds a model with randomly
// initialized variational parameters.  alphaShape and alphaRate are
// K-vectors, beta is a P x K prior, and pi is the per-feature prior
// dropout probability; pass a nil pi to disable the zero-inflation
// layer.  Malformed shapes or non-positive priors are programming
// errors and panic.
func NewModel(X *mat.Dense, alphaShape, alphaRate []float64, beta GammaParams, pi []float64, rng *rand.Rand) *Model {
	n, p := X.Dims()
	if n < 1 || p < 1 {
		panic(fmt.Sprintf("cavi: count matrix is %dx%d, need at least one row and column", n, p))
	}
	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			v := X.At(i, j)
			if v < 0 || v != math.Floor(v) {
				panic(fmt.Sprintf("cavi: X[%d,%d] = %v is not a non-negative integer", i, j, v))
			}
		}
	}

	k := len(alphaShape)
	if k < 1 {
		panic("cavi: alpha prior is empty")
	}
	if len(alphaRate) != k {
		panic(fmt.Sprintf("cavi: alpha shape has K=%d but alpha rate has K=%d", k, len(alphaRate)))
	}
	for i := 0; i < k; i++ {
		if alphaShape[i] <= 0 || alphaRate[i] <= 0 {
			panic(fmt.Sprintf("cavi: alpha prior component %d = (%v, %v) is not strictly positive",
				i, alphaShape[i], alphaRate[i]))
		}
	}

	br, bc := beta.Dims()
	if r2, c2 := beta.Rate.Dims(); r2 != br || c2 != bc {
		panic(fmt.Sprintf("cavi: beta shape is %dx%d but beta rate is %dx%d", br, bc, r2, c2))
	}
	if br != p || bc != k {
		panic(fmt.Sprintf("cavi: beta prior is %dx%d, want %dx%d", br, bc, p, k))
	}
	for j := 0; j < p; j++ {
		for l := 0; l < k; l++ {
			if beta.Shape.At(j, l) <= 0 || beta.Rate.At(j, l) <= 0 {
				panic(fmt.Sprintf("cavi: beta prior entry (%d,%d) = (%v, %v) is not strictly positive",
					j, l, beta.Shape.At(j, l), beta.Rate.At(j, l)))
			}
		}
	}

	m := &Model{
		X:          X,
		N:          n,
		P:          p,
		K:          k,
		AlphaShape: append([]float64(nil), alphaShape...),
		AlphaRate:  append([]float64(nil), alphaRate...),
		Beta:       beta,
		A:          NewRandomGammaParams(n, k, rng),
		B:          NewRandomGammaParams(p, k, rng),
		R:          constantDense(n*p, k, 0.5),
		D:          constantDense(n, p, 1),
	}

	if pi != nil {
		if len(pi) != p {
			panic(fmt.Sprintf("cavi: pi prior has %d entries, want P=%d", len(pi), p))
		}
		m.Pi = append([]float64(nil), pi...)
		m.LogitPi = make([]float64, p)
		for j, v := range pi {
			if v <= 0 || v >= 1 {
				panic(fmt.Sprintf("cavi: pi[%d] = %v is outside (0,1)", j, v))
			}
			m.LogitPi[j] = num.Logit(v)
		}
		m.D = constantDense(n, p, 0.5)
	}
	return m
}

// Dropout reports whether the model carries the zero-inflation layer.
func (m *Model) Dropout() bool {
	return m.Pi != nil
}

// EstimateU returns the N x K posterior point estimate of the row
// factors, the mean of q(U).
func (m *Model) EstimateU() *mat.Dense {
	return m.A.Mean()
}

// EstimateV returns the P x K posterior point estimate of the column
// factors, the mean of q(V).
func (m *Model) EstimateV() *mat.Dense {
	return m.B.Mean()
}

// DropoutProbs returns the N x P posterior probability that each entry
// was observed (not dropped out).
func (m *Model) DropoutProbs() *mat.Dense {
	return mat.DenseCopyOf(m.D)
}

// EstimateD thresholds the dropout posterior at one half, giving a 0/1
// indicator of which entries the model considers observed.
func (m *Model) EstimateD() *mat.Dense {
	d := mat.NewDense(m.N, m.P, nil)
	for i := 0; i < m.N; i++ {
		for j := 0; j < m.P; j++ {
			if m.D.At(i, j) >= 0.5 {
				d.Set(i, j, 1)
			}
		}
	}
	return d
}

func constantDense(r, c int, v float64) *mat.Dense {
	d := mat.NewDense(r, c, nil)
	if v != 0 {
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				d.Set(i, j, v)
			}
		}
	}
	return d
}

// modelGob is the exported snapshot encoded by Save and decoded by
// LoadModel.  mat.Dense has unexported fields, so persistence goes
// through raw backing slices.
type modelGob struct {
	N, P, K                int
	X                      []float64
	AlphaShape, AlphaRate  []float64
	BetaShape, BetaRate    []float64
	Pi                     []float64
	AShape, ARate          []float64
	BShape, BRate          []float64
	R, D                   []float64
	Dropout                bool
}

// Save gob-encodes the full model state, hyperparameters included, so a
// training run can be resumed or evaluated later.
func (m *Model) Save(w io.Writer) error {
	s := &modelGob{
		N:          m.N,
		P:          m.P,
		K:          m.K,
		X:          rawData(m.X),
		AlphaShape: m.AlphaShape,
		AlphaRate:  m.AlphaRate,
		BetaShape:  rawData(m.Beta.Shape),
		BetaRate:   rawData(m.Beta.Rate),
		Pi:         m.Pi,
		AShape:     rawData(m.A.Shape),
		ARate:      rawData(m.A.Rate),
		BShape:     rawData(m.B.Shape),
		BRate:      rawData(m.B.Rate),
		R:          rawData(m.R),
		D:          rawData(m.D),
		Dropout:    m.Dropout(),
	}
	return gob.NewEncoder(w).Encode(s)
}

// LoadModel decodes a model previously written by Save.
func LoadModel(r io.Reader) (*Model, error) {
	s := new(modelGob)
	if err := gob.NewDecoder(r).Decode(s); err != nil {
		return nil, fmt.Errorf("cavi: decoding model: %w", err)
	}
	m := &Model{
		X:          mat.NewDense(s.N, s.P, s.X),
		N:          s.N,
		P:          s.P,
		K:          s.K,
		AlphaShape: s.AlphaShape,
		AlphaRate:  s.AlphaRate,
		Beta: GammaParams{
			Shape: mat.NewDense(s.P, s.K, s.BetaShape),
			Rate:  mat.NewDense(s.P, s.K, s.BetaRate),
		},
		A: GammaParams{
			Shape: mat.NewDense(s.N, s.K, s.AShape),
			Rate:  mat.NewDense(s.N, s.K, s.ARate),
		},
		B: GammaParams{
			Shape: mat.NewDense(s.P, s.K, s.BShape),
			Rate:  mat.NewDense(s.P, s.K, s.BRate),
		},
		R: mat.NewDense(s.N*s.P, s.K, s.R),
		D: mat.NewDense(s.N, s.P, s.D),
	}
	if s.Dropout {
		m.Pi = s.Pi
		m.LogitPi = make([]float64, s.P)
		for j, v := range s.Pi {
			m.LogitPi[j] = num.Logit(v)
		}
	}
	return m, nil
}

func rawData(d *mat.Dense) []float64 {
	return d.RawMatrix().Data
}
