// train is a command line trainer for the variational count matrix
// factorization model.
// Usage:
/*
  $GOPATH/bin/train \
    -counts=./testdata/counts -k=10 -iter=100 -model=./model.gz
*/

package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/pedrofale/pCMF/core/cavi"
	"github.com/pedrofale/pCMF/core/utils"
)

func main() {
	flagAddr := flag.String("addr", ":6060", "HTTP status page address")
	flagCounts := flag.String("counts", "./testdata/counts", "Count matrix file")
	flagHeldOut := flag.String("heldout", "", "Held-out count matrix file")
	flagK := flag.Int("k", 10, "Number of latent components to be learned")
	flagIter := flag.Int("iter", 100, "Coordinate ascent iterations")
	flagMaxTime := flag.Duration("max_time", time.Hour, "Wall-clock budget")
	flagSamplingRate := flag.Duration("sampling_rate", 10*time.Second,
		"Spacing of the time-sampled log-likelihood trace")
	flagDropout := flag.Float64("dropout", -1,
		"Initial dropout probability; negative disables zero inflation")
	flagEmpiricalBayes := flag.Bool("empirical_bayes", false,
		"Re-estimate hyperparameters each iteration")
	flagSubsample := flag.Int("subsample", 100,
		"Rows per training log-likelihood estimate")
	flagSeed := flag.Int64("seed", 1, "Random seed")
	flagModel := flag.String("model", "", "The model output")
	flagTrace := flag.String("trace", "",
		"Prefix for the log-likelihood trace output files")
	flag.Parse()

	is := utils.EnableExpvar(*flagAddr)
	log.Printf("Initialization start at %s", is.Start().StartTime)

	X := utils.LoadCountsOrDie(*flagCounts)
	var heldOut *mat.Dense
	if len(*flagHeldOut) > 0 {
		heldOut = utils.LoadCountsOrDie(*flagHeldOut)
	}

	rng := rand.New(rand.NewSource(*flagSeed))
	_, p := X.Dims()
	alphaShape := make([]float64, *flagK)
	alphaRate := make([]float64, *flagK)
	for k := range alphaShape {
		alphaShape[k] = 1 + rng.Float64()
		alphaRate[k] = 1 + rng.Float64()
	}
	beta := cavi.NewRandomGammaParams(p, *flagK, rng)
	var pi []float64
	if *flagDropout >= 0 {
		pi = make([]float64, p)
		for j := range pi {
			pi[j] = *flagDropout
		}
	}
	model := cavi.NewModel(X, alphaShape, alphaRate, beta, pi, rng)
	inf := cavi.NewInference(model, rng)

	log.Printf("Initialization done in %s", is.End(0.0).Duration)

	sigs := make(chan os.Signal, 1)
	stop := make(chan struct{})
	signal.Notify(sigs, os.Interrupt)
	go func() {
		<-sigs
		log.Printf("Caught signal, will checkpoint and exit ...")
		close(stop)
	}()

	is.Start()
	llIter, llTime, err := inf.Run(cavi.RunConfig{
		Iterations:     *flagIter,
		MaxTime:        *flagMaxTime,
		SamplingRate:   *flagSamplingRate,
		EmpiricalBayes: *flagEmpiricalBayes,
		ComputeLL:      true,
		HeldOut:        heldOut,
		SubsampleSize:  *flagSubsample,
		Stop:           stop,
		Verbose:        true,
		Progress: func(iter int, ll float64) {
			is.End(ll)
			is.Start()
		},
	})
	if err != nil {
		log.Fatalf("Training failed: %v", err)
	}

	if len(*flagTrace) > 0 {
		saveTrace(llIter, *flagTrace+"_iter.txt")
		saveTrace(llTime, *flagTrace+"_time.txt")
	}

	utils.SaveModel(model, *flagModel)
}

func saveTrace(trace []float64, filename string) {
	f, e := os.Create(filename)
	if e != nil {
		log.Printf("Cannot create file %s: %v", filename, e)
		return
	}
	defer f.Close()
	for _, ll := range trace {
		fmt.Fprintf(f, "%f\n", ll)
	}
	log.Printf("Saved %d trace entries to %s.", len(trace), filename)
}
