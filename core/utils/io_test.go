package utils

import (
	"compress/gzip"
	"log"
	"math/rand"
	"os"
	"path"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/pedrofale/pCMF/core/cavi"
)

func TestLoadCountsOrDie(t *testing.T) {
	dir := t.TempDir()

	content := "3 0 1 2\n0 4 0 1\n2 1 5 0\n"
	want := mat.NewDense(3, 4, []float64{
		3, 0, 1, 2,
		0, 4, 0, 1,
		2, 1, 5, 0,
	})

	plainFile := createTempCounts(dir, "", content)
	if len(plainFile) == 0 {
		t.Fatalf("createTempCounts failed")
	}
	if X := LoadCountsOrDie(plainFile); !mat.Equal(X, want) {
		t.Errorf("Expecting\n%v\ngot\n%v\n", mat.Formatted(want), mat.Formatted(X))
	}

	gzFile := createTempCounts(dir, ".gz", content)
	if len(gzFile) == 0 {
		t.Fatalf("createTempCounts failed")
	}
	if X := LoadCountsOrDie(gzFile); !mat.Equal(X, want) {
		t.Errorf("Expecting\n%v\ngot\n%v\n", mat.Formatted(want), mat.Formatted(X))
	}
}

func TestLoadCountsOrDieSkipsBlankLines(t *testing.T) {
	dir := t.TempDir()

	file := createTempCounts(dir, "", "1 2\n\n3 4\n\n")
	if len(file) == 0 {
		t.Fatalf("createTempCounts failed")
	}
	X := LoadCountsOrDie(file)
	if r, c := X.Dims(); r != 2 || c != 2 {
		t.Errorf("Expecting 2x2, got %dx%d", r, c)
	}
}

func TestSaveAndLoadCountsOrDie(t *testing.T) {
	dir := t.TempDir()

	X := mat.NewDense(2, 3, []float64{5, 0, 7, 1, 2, 0})
	for _, name := range []string{"counts.txt", "counts.txt.gz"} {
		filename := path.Join(dir, name)
		SaveCountsOrDie(X, filename)
		if X1 := LoadCountsOrDie(filename); !mat.Equal(X, X1) {
			t.Errorf("%s: expecting\n%v\ngot\n%v\n",
				name, mat.Formatted(X), mat.Formatted(X1))
		}
	}
}

func TestSaveAndLoadModelOrDie(t *testing.T) {
	dir := t.TempDir()

	rng := rand.New(rand.NewSource(1))
	X := mat.NewDense(3, 2, []float64{1, 0, 2, 3, 0, 1})
	alphaShape := []float64{1.5, 2.5}
	alphaRate := []float64{1.0, 0.5}
	beta := cavi.NewRandomGammaParams(2, 2, rng)
	pi := []float64{0.6, 0.4}
	m := cavi.NewModel(X, alphaShape, alphaRate, beta, pi, rng)

	for _, name := range []string{"model.gz", "model"} {
		filename := path.Join(dir, name)
		SaveModel(m, filename)
		m1 := LoadModelOrDie(filename)
		if m1.N != m.N || m1.P != m.P || m1.K != m.K {
			t.Errorf("%s: expecting dims %d/%d/%d, got %d/%d/%d",
				name, m.N, m.P, m.K, m1.N, m1.P, m1.K)
		}
		if !mat.Equal(m.A.Shape, m1.A.Shape) || !mat.Equal(m.A.Rate, m1.A.Rate) {
			t.Errorf("%s: sample factor parameters differ after reload", name)
		}
		if !mat.Equal(m.R, m1.R) {
			t.Errorf("%s: allocation parameters differ after reload", name)
		}
	}
}

func createTempCounts(dir, ext, content string) string {
	filename := path.Join(dir, "counts"+ext)
	f, e := os.Create(filename)
	if e != nil {
		log.Printf("Cannot create temp file %s: %v", filename, e)
		return ""
	}
	defer f.Close()

	if ext == ".gz" {
		w := gzip.NewWriter(f)
		defer w.Close()
		if _, e := w.Write([]byte(content)); e != nil {
			log.Printf("Failed writing to temp file %s: %v", filename, e)
			return ""
		}
		return filename
	}
	if _, e := f.Write([]byte(content)); e != nil {
		log.Printf("Failed writing to temp file %s: %v", filename, e)
		return ""
	}
	return filename
}
