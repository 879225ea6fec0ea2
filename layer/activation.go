// SPDX-License-Identifier: MIT
// Copyright (c) 2026 The peakvae Authors

package layer

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// leakySlope is the negative-region slope of LeakyReLU.
const leakySlope = 0.01

// LeakyReLU returns max(x, 0.01*x) applied elementwise.
func LeakyReLU(x *mat.Dense) *mat.Dense {
	return apply(x, func(v float64) float64 {
		if v < 0 {
			return v * leakySlope
		}
		return v
	})
}

// Sigmoid returns 1/(1+exp(-x)) applied elementwise. Output is in (0, 1).
func Sigmoid(x *mat.Dense) *mat.Dense {
	return apply(x, sigmoid)
}

// Exp returns exp(x) applied elementwise.
func Exp(x *mat.Dense) *mat.Dense {
	return apply(x, math.Exp)
}

// Log1p returns log(1+x) applied elementwise. Used as the variance-stabilizing
// transform for raw count input.
func Log1p(x *mat.Dense) *mat.Dense {
	return apply(x, math.Log1p)
}

func sigmoid(v float64) float64 { return 1 / (1 + math.Exp(-v)) }
