// SPDX-License-Identifier: MIT
// Copyright (c) 2026 The peakvae Authors

// Package layer provides the forward-only neural network building blocks
// used by the PeakVAE model: dense projections, layer/batch normalization,
// dropout, and elementwise activations.
//
// All data is stored in gonum matrices ([cells, features], row per cell).
// Layers hold their learnable parameters as exported gonum values so that an
// external optimizer can mutate them in place; the forward passes themselves
// never modify parameters, with the single documented exception of the
// running statistics kept by BatchNorm in training mode.
//
// Stochastic behavior (weight initialization, dropout masking) always
// consumes an explicitly passed random stream. There is no package-level
// RNG state.
package layer

import "gonum.org/v1/gonum/mat"

// apply returns f mapped over every element of x as a fresh matrix.
func apply(x *mat.Dense, f func(float64) float64) *mat.Dense {
	var out mat.Dense
	out.Apply(func(_, _ int, v float64) float64 { return f(v) }, x)
	return &out
}
