// SPDX-License-Identifier: MIT
// Copyright (c) 2026 The peakvae Authors

package layer

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// Dropout zeroes each element with probability rate during training and
// scales the survivors by 1/(1-rate), so the expected activation is unchanged
// (inverted dropout). In evaluation mode, or with rate 0, it is the identity.
type Dropout struct {
	rate float64
}

// NewDropout creates a dropout layer. Panics unless 0 <= rate < 1.
func NewDropout(rate float64) *Dropout {
	if rate < 0 || rate >= 1 {
		panic(fmt.Sprintf("dropout: rate %v outside [0, 1)", rate))
	}
	return &Dropout{rate: rate}
}

// Rate returns the configured drop probability.
func (d *Dropout) Rate() float64 { return d.rate }

// Forward applies the dropout mask, drawing from the dropout stream.
// When the layer is a no-op the input is returned unchanged (no copy).
func (d *Dropout) Forward(x *mat.Dense, training bool, dropout *rand.Rand) *mat.Dense {
	if !training || d.rate == 0 {
		return x
	}
	scale := 1 / (1 - d.rate)
	var out mat.Dense
	out.Apply(func(_, _ int, v float64) float64 {
		if dropout.Float64() < d.rate {
			return 0
		}
		return v * scale
	}, x)
	return &out
}
