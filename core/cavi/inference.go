package cavi

import (
	"fmt"
	"log"
	"math"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/mat"
)

// RunConfig bounds and configures one call to Run.  The zero value of
// a numeric field means its documented default.
type RunConfig struct {
	// Iterations caps the number of coordinate-ascent sweeps.
	// Default 10.
	Iterations int

	// MaxTime caps the wall-clock budget; the loop stops at the end
	// of the first iteration that exceeds it.  Default one minute.
	MaxTime time.Duration

	// SamplingRate is the minimum wall-clock spacing between entries
	// of the time-sampled log-likelihood trace.  Default ten seconds.
	SamplingRate time.Duration

	// EmpiricalBayes enables the hyperparameter re-estimation step
	// after each sweep.
	EmpiricalBayes bool

	// ComputeLL enables log-likelihood evaluation each iteration.
	// Without it Run returns empty traces.
	ComputeLL bool

	// HeldOut, when non-nil, switches the evaluation from a training
	// subsample to the predictive log-likelihood of these rows.
	HeldOut *mat.Dense

	// SubsampleSize is the number of training rows (drawn with
	// replacement) used per evaluation when HeldOut is nil.
	// Default 100.
	SubsampleSize int

	// Stop, when non-nil, ends the run at the next iteration boundary
	// once it is closed or receives a value.
	Stop <-chan struct{}

	// Verbose logs per-iteration progress.
	Verbose bool

	// Progress, when non-nil, is invoked after each iteration with
	// the iteration index and its log-likelihood estimate (NaN when
	// ComputeLL is off).
	Progress func(iter int, ll float64)
}

// DefaultRunConfig returns the configuration used by the command-line
// trainer: likelihood tracking on, empirical Bayes off.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		Iterations:    10,
		MaxTime:       time.Minute,
		SamplingRate:  10 * time.Second,
		ComputeLL:     true,
		SubsampleSize: 100,
	}
}

func (cfg RunConfig) withDefaults() RunConfig {
	if cfg.Iterations <= 0 {
		cfg.Iterations = 10
	}
	if cfg.MaxTime <= 0 {
		cfg.MaxTime = time.Minute
	}
	if cfg.SamplingRate <= 0 {
		cfg.SamplingRate = 10 * time.Second
	}
	if cfg.SubsampleSize <= 0 {
		cfg.SubsampleSize = 100
	}
	return cfg
}

// Inference couples a model with its update, empirical-Bayes and
// evaluation engines and drives the coordinate-ascent loop.  It is not
// safe for concurrent use: all parameter arrays are mutated in place,
// and overlapping calls to Run on one instance are undefined.
type Inference struct {
	model     *Model
	updater   *Updater
	optimizer *Optimizer
	rng       *rand.Rand
}

func NewInference(m *Model, rng *rand.Rand) *Inference {
	return &Inference{
		model:     m,
		updater:   NewUpdater(m),
		optimizer: NewOptimizer(m),
		rng:       rng,
	}
}

// Model returns the underlying model state.
func (inf *Inference) Model() *Model {
	return inf.model
}

// Run performs coordinate-ascent sweeps until the iteration cap or the
// wall-clock budget is reached, whichever comes first.  The time check
// is a per-iteration poll, so cancellation granularity is one sweep.
// It returns the per-iteration log-likelihood trace and a second trace
// sampled at no less than the configured wall-clock spacing.
func (inf *Inference) Run(cfg RunConfig) (llIter, llTime []float64, err error) {
	cfg = cfg.withDefaults()

	start := time.Now()
	lastSample := start
	for it := 0; it < cfg.Iterations; it++ {
		select {
		case <-cfg.Stop:
			return llIter, llTime, nil
		default:
		}

		inf.updater.Sweep()

		if cfg.EmpiricalBayes {
			if err := inf.optimizer.Optimize(); err != nil {
				return llIter, llTime, fmt.Errorf("iteration %d: %w", it, err)
			}
		}

		ll := math.NaN()
		if cfg.ComputeLL {
			if cfg.HeldOut != nil {
				ll = inf.PredictiveLL(cfg.HeldOut, 0)
			} else {
				ll = inf.subsampleLL(cfg.SubsampleSize)
			}
			llIter = append(llIter, ll)
			// Admit a point into the sparse trace a little before the
			// nominal spacing elapses, so slightly-short iterations
			// do not starve it.
			if time.Since(lastSample) >= cfg.SamplingRate*9/10 {
				llTime = append(llTime, ll)
				lastSample = time.Now()
			}
			if cfg.Verbose {
				if cfg.HeldOut != nil {
					log.Printf("Iteration %04d/%04d held-out log-likelihood %f elapsed %s",
						it+1, cfg.Iterations, ll, time.Since(start).Round(time.Second))
				} else {
					log.Printf("Iteration %04d/%04d log-likelihood %f elapsed %s",
						it+1, cfg.Iterations, ll, time.Since(start).Round(time.Second))
				}
			}
		} else if cfg.Verbose {
			log.Printf("Iteration %04d/%04d", it+1, cfg.Iterations)
		}

		if cfg.Progress != nil {
			cfg.Progress(it, ll)
		}
		if time.Since(start) >= cfg.MaxTime {
			break
		}
	}
	return llIter, llTime, nil
}

// subsampleLL estimates the training data log-likelihood on a random
// subset of rows (with replacement) under current point estimates.
func (inf *Inference) subsampleLL(size int) float64 {
	m := inf.model
	v := m.EstimateV()
	sum := 0.0
	for s := 0; s < size; s++ {
		i := inf.rng.Intn(m.N)
		uRow := make([]float64, m.K)
		for k := 0; k < m.K; k++ {
			uRow[k] = m.A.MeanAt(i, k)
		}
		sum += rowLogLikelihood(m.X.RawRowView(i), uRow, m.D.RawRowView(i), v)
	}
	return sum / float64(size)
}
