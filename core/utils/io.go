package utils

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"log"
	"os"
	"path"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/pedrofale/pCMF/core/cavi"
)

// LoadCountsOrDie reads a whitespace-separated matrix of non-negative
// counts, one row per line.  Files ending in .gz are decompressed on
// the fly.
func LoadCountsOrDie(filename string) *mat.Dense {
	log.Printf("Loading counts %s ... ", filename)

	f, e := os.Open(filename)
	if e != nil {
		log.Fatalf("Cannot open counts file %s: %v", filename, e)
	}
	defer f.Close()

	var r io.Reader = f
	if path.Ext(filename) == ".gz" {
		gz, e := gzip.NewReader(f)
		if e != nil {
			log.Fatalf("Cannot decompress counts file %s: %v", filename, e)
		}
		defer gz.Close()
		r = gz
	}

	rows := make([][]float64, 0)
	cols := 0
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	for s.Scan() {
		fields := strings.Fields(s.Text())
		if len(fields) == 0 {
			continue
		}
		if cols == 0 {
			cols = len(fields)
		} else if len(fields) != cols {
			log.Fatalf("Row %d of %s has %d fields, want %d",
				len(rows)+1, filename, len(fields), cols)
		}
		row := make([]float64, len(fields))
		for j, field := range fields {
			v, e := strconv.ParseFloat(field, 64)
			if e != nil {
				log.Fatalf("Row %d of %s: %v", len(rows)+1, filename, e)
			}
			if v < 0 {
				log.Fatalf("Row %d of %s: negative count %f", len(rows)+1, filename, v)
			}
			row[j] = v
		}
		rows = append(rows, row)
	}
	if e := s.Err(); e != nil {
		log.Fatalf("Error reading %s: %v", filename, e)
	}
	if len(rows) == 0 {
		log.Fatalf("Counts file %s contains no rows", filename)
	}

	X := mat.NewDense(len(rows), cols, nil)
	for i, row := range rows {
		X.SetRow(i, row)
	}
	log.Printf("Done loading counts: %d x %d.", len(rows), cols)
	return X
}

// SaveCountsOrDie writes a matrix in the format LoadCountsOrDie reads.
func SaveCountsOrDie(X *mat.Dense, filename string) {
	f, e := os.Create(filename)
	if e != nil {
		log.Fatalf("Cannot create file %s: %v", filename, e)
	}
	defer f.Close()

	var w io.Writer = f
	if path.Ext(filename) == ".gz" {
		gz := gzip.NewWriter(f)
		defer gz.Close()
		w = gz
	}

	b := bufio.NewWriter(w)
	defer b.Flush()
	n, p := X.Dims()
	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			if j > 0 {
				fmt.Fprint(b, " ")
			}
			fmt.Fprintf(b, "%g", X.At(i, j))
		}
		fmt.Fprintln(b)
	}
	log.Printf("Saved counts to %s.", filename)
}

func LoadModelOrDie(filename string) *cavi.Model {
	log.Printf("Loading model %s ...", filename)

	f, e := os.Open(filename)
	if e != nil {
		log.Fatalf("Cannot open model file %s: %v", filename, e)
	}
	defer f.Close()

	var r io.Reader = f
	if path.Ext(filename) == ".gz" {
		gz, e := gzip.NewReader(f)
		if e != nil {
			log.Fatalf("Cannot decompress model file %s: %v", filename, e)
		}
		defer gz.Close()
		r = gz
	}

	m, e := cavi.LoadModel(r)
	if e != nil {
		log.Fatalf("Cannot decode model: %v", e)
	}
	log.Printf("Done. %d samples %d features %d components.", m.N, m.P, m.K)
	return m
}

func SaveModel(m *cavi.Model, filename string) {
	if len(filename) > 0 {
		f, e := os.Create(filename)
		if e != nil {
			log.Printf("Cannot create file %s: %v", filename, e)
			return
		}
		defer func() {
			f.Close()
			log.Printf("Saved model to %s.", filename)
		}()

		var w io.Writer = f
		if path.Ext(filename) == ".gz" {
			gz := gzip.NewWriter(f)
			defer gz.Close()
			w = gz
		}
		if e := m.Save(w); e != nil {
			log.Printf("Failed encoding model: %v", e)
		}
	}
}
