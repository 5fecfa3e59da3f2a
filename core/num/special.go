// Package num provides the special-function helpers needed by the
// variational updates: the digamma function and its functional inverse,
// the trigamma function, and numerically stable logit/logistic
// transforms.
package num

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mathext"
)

// Digamma returns the logarithmic derivative of the Gamma function at x.
// For a Gamma(shape, rate) variable X, E[log X] = Digamma(shape) - log(rate).
func Digamma(x float64) float64 {
	return mathext.Digamma(x)
}

// Trigamma returns the second logarithmic derivative of the Gamma
// function at x > 0.  It uses the recurrence trigamma(x) =
// trigamma(x+1) + 1/x^2 to push the argument above 6, then the
// asymptotic expansion in Abramowitz & Stegun 6.4.12.
func Trigamma(x float64) float64 {
	if math.IsNaN(x) || x <= 0 {
		return math.NaN()
	}
	v := 0.0
	for x < 6 {
		v += 1 / (x * x)
		x++
	}
	r := 1 / (x * x)
	v += 1/x + r/2
	v += r / x * (1.0/6 - r*(1.0/30-r*(1.0/42-r/30)))
	return v
}

// psiInverseIter bounds the Newton iterations in PsiInverse.  The
// digamma function is monotone on the positive reals, so Newton from a
// positive starting point converges in a handful of steps for any
// argument arising from posterior statistics.
const psiInverseIter = 100

// PsiInverse solves digamma(x) = y for x > 0 by Newton iteration
// started from x0.  It returns an error if no positive root is reached
// within the iteration budget.
func PsiInverse(x0, y float64) (float64, error) {
	if x0 <= 0 || math.IsNaN(x0) {
		return 0, fmt.Errorf("PsiInverse: starting point %v is not positive", x0)
	}
	if math.IsNaN(y) {
		return 0, fmt.Errorf("PsiInverse: target %v is not a number", y)
	}

	x := x0
	for i := 0; i < psiInverseIter; i++ {
		f := Digamma(x) - y
		if math.Abs(f) < 1e-12 {
			return x, nil
		}
		step := f / Trigamma(x)
		next := x - step
		for next <= 0 {
			// Newton overshot below the pole at zero; damp the step.
			step /= 2
			next = x - step
		}
		if math.Abs(next-x) < 1e-14*math.Abs(x) {
			return next, nil
		}
		x = next
	}
	if f := Digamma(x) - y; math.Abs(f) < 1e-8 {
		return x, nil
	}
	return 0, fmt.Errorf("PsiInverse: no positive root for y=%v from x0=%v after %d iterations",
		y, x0, psiInverseIter)
}

// Logistic returns 1/(1+exp(-x)) without overflowing for large |x|.
func Logistic(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

// Logit returns log(p/(1-p)) for p in (0,1).  The endpoints map to
// -Inf and +Inf.
func Logit(p float64) float64 {
	return math.Log(p / (1 - p))
}
