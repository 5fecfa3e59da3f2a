// simulate draws a synthetic zero-inflated count matrix with planted
// cluster structure, for benchmarking the trainer.
// Usage:
/*
  $GOPATH/bin/simulate -n=100 -p=1000 -k=10 -out=./testdata/counts
*/

package main

import (
	"flag"
	"log"

	"github.com/cheggaaa/pb/v3"
	xrand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/pedrofale/pCMF/core/utils"
)

func main() {
	flagN := flag.Int("n", 100, "Number of samples")
	flagP := flag.Int("p", 1000, "Number of features")
	flagK := flag.Int("k", 10, "Number of latent components")
	flagClusters := flag.Int("clusters", 3, "Number of planted clusters")
	flagEps := flag.Float64("eps", 2.0,
		"Cluster separability; the Gamma shape of a sample's own components")
	flagZeroProb := flag.Float64("zero_prob", 0.5,
		"Per-entry dropout probability")
	flagSeed := flag.Uint64("seed", 1, "Random seed")
	flagOut := flag.String("out", "./counts", "Count matrix output file")
	flagTruth := flag.String("truth", "",
		"Optional output file for the uncorrupted counts")
	flag.Parse()

	if *flagClusters > *flagK {
		log.Fatalf("Cannot plant %d clusters with only %d components",
			*flagClusters, *flagK)
	}

	src := xrand.NewSource(*flagSeed)
	gammaOn := distuv.Gamma{Alpha: *flagEps, Beta: 1, Src: src}
	gammaOff := distuv.Gamma{Alpha: 1, Beta: 1, Src: src}
	keep := distuv.Bernoulli{P: 1 - *flagZeroProb, Src: src}

	// Components are dealt to clusters round-robin; a sample draws its
	// cluster's components with shape eps and the rest with shape one,
	// so larger eps pulls the clusters apart in the latent space.
	n, p, k := *flagN, *flagP, *flagK
	U := mat.NewDense(n, k, nil)
	for i := 0; i < n; i++ {
		cluster := i * *flagClusters / n
		for l := 0; l < k; l++ {
			if l%*flagClusters == cluster {
				U.Set(i, l, gammaOn.Rand())
			} else {
				U.Set(i, l, gammaOff.Rand())
			}
		}
	}
	V := mat.NewDense(p, k, nil)
	for j := 0; j < p; j++ {
		for l := 0; l < k; l++ {
			V.Set(j, l, gammaOff.Rand())
		}
	}

	log.Printf("Sampling %d x %d counts ...", n, p)
	bar := pb.StartNew(n)
	X := mat.NewDense(n, p, nil)
	Y := mat.NewDense(n, p, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			lam := mat.Dot(U.RowView(i), V.RowView(j))
			x := distuv.Poisson{Lambda: lam, Src: src}.Rand()
			X.Set(i, j, x)
			if keep.Rand() > 0 {
				Y.Set(i, j, x)
			}
		}
		bar.Increment()
	}
	bar.Finish()

	utils.SaveCountsOrDie(Y, *flagOut)
	if len(*flagTruth) > 0 {
		utils.SaveCountsOrDie(X, *flagTruth)
	}
}
