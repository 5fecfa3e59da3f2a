package utils

import (
	"bytes"
	"expvar"
	"fmt"
	"io"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
	"strings"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

type Iteration struct {
	StartTime     time.Time
	Duration      time.Duration
	LogLikelihood float64
}
type Iterations []*Iteration

func (is *Iterations) String() string { // Implements expvar.Var
	var buf bytes.Buffer
	for i, iter := range *is {
		fmt.Fprintf(&buf, "%05d: %s\t%s\t%f\n", i, iter.StartTime, iter.Duration,
			iter.LogLikelihood)
	}
	return buf.String()
}

func (is *Iterations) Start() *Iteration {
	i := &Iteration{StartTime: time.Now()}
	*is = append(*is, i)
	return i
}

func (is *Iterations) End(logLikelihood float64) *Iteration {
	i := (*is)[len(*is)-1]
	i.Duration = time.Since(i.StartTime)
	i.LogLikelihood = logLikelihood
	return i
}

func EnableExpvar(addr string) *Iterations {
	is := new(Iterations)
	*is = make(Iterations, 0)

	expvar.Publish("Iterations", is)
	http.Handle("/progress/loglikelihood", newLogLikelihoodFigureHandler(is))
	http.Handle("/progress/duration", newDurationFigureHandler(is))

	go func() {
		if e := http.ListenAndServe(addr, nil); e != nil {
			log.Fatalf("ListenAndServe on %s failed: %v", addr, e)
		}
	}()

	return is
}

func newLogLikelihoodFigureHandler(is *Iterations) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ps := make(plotter.XYs, 0, len(*is))
		for i := range *is {
			if (*is)[i].Duration > 0 {
				ps = append(ps,
					plotter.XY{X: float64(i), Y: (*is)[i].LogLikelihood})
			}
		}
		if e := plotFigure(w, ps, "Iteration", "Log-likelihood"); e != nil {
			http.Error(w, e.Error(), http.StatusInternalServerError)
		}
	}
}

func newDurationFigureHandler(is *Iterations) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ps := make(plotter.XYs, 0, len(*is))
		for i := range *is {
			if i > 0 && (*is)[i].Duration > 0 {
				// Skip the initialization and yet-complete iterations.
				ps = append(ps, plotter.XY{
					X: float64(i), Y: (*is)[i].Duration.Seconds()})
			}
		}
		if e := plotFigure(w, ps, "Iteration", "Duration"); e != nil {
			http.Error(w, e.Error(), http.StatusInternalServerError)
		}
	}
}

func plotFigure(w io.Writer, ps plotter.XYs, xLabel, yLabel string) error {
	p := plot.New()

	p.Title.Text = strings.Join(os.Args, " ")
	p.X.Label.Text = xLabel
	p.Y.Label.Text = yLabel

	p.Add(plotter.NewGrid())
	if e := plotutil.AddLinePoints(p, "", ps); e != nil {
		return fmt.Errorf("plotutil.AddLinePoints failed: %v", e)
	}

	c := vgimg.PngCanvas{Canvas: vgimg.New(vg.Length(640), vg.Length(480))}
	p.Draw(draw.New(c))
	c.WriteTo(w)
	return nil
}
