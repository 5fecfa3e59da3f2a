// predict scores held-out rows under a trained model.  The model's
// feature loadings stay fixed; only row-local variational parameters
// are fit to the new rows.
// Usage:
/*
  $GOPATH/bin/predict -model=./model.gz -counts=./testdata/heldout
*/

package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"

	"github.com/pedrofale/pCMF/core/cavi"
	"github.com/pedrofale/pCMF/core/utils"
)

func main() {
	flagModel := flag.String("model", "", "The trained model file")
	flagCounts := flag.String("counts", "", "Held-out count matrix file")
	flagIter := flag.Int("iter", 10, "Local coordinate ascent iterations")
	flagSeed := flag.Int64("seed", 1, "Random seed")
	flag.Parse()

	if len(*flagModel) == 0 || len(*flagCounts) == 0 {
		log.Fatal("Both -model and -counts are required")
	}

	m := utils.LoadModelOrDie(*flagModel)
	X := utils.LoadCountsOrDie(*flagCounts)

	rng := rand.New(rand.NewSource(*flagSeed))
	inf := cavi.NewInference(m, rng)
	ll := inf.PredictiveLL(X, *flagIter)

	n, _ := X.Dims()
	log.Printf("Predictive log-likelihood over %d rows: %f", n, ll)
	fmt.Println(ll)
}
