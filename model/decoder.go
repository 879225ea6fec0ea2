// SPDX-License-Identifier: MIT
// Copyright (c) 2026 The peakvae Authors

package model

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/szhorvat/peakvae/layer"
)

// Decoder maps an input vector plus a batch-covariate one-hot vector to a
// per-feature probability in [0, 1].
//
// Architecture:
//
//	h  = Dense(in) + Dense(batch)          -- additive covariate injection
//	h  = Dropout(LeakyReLU(BatchNorm(h)))
//	h2 = Dense(h) + Dense(batch)           -- skip re-injection of the covariate
//	h2 = Dropout(LeakyReLU(BatchNorm(h2)))
//	out = Sigmoid(Dense(h2))
//
// The batch one-hot enters through its own linear projections summed into the
// hidden state at two points, so batch effects are learned as a purely
// additive correction path rather than through input concatenation.
//
// The same type serves two roles in PeakVAE: as the main decoder
// (latent -> per-region probabilities) and as the depth encoder
// (raw counts -> a single per-cell scalar).
type Decoder struct {
	input      *layer.Dense
	batchInput *layer.Dense
	hidden     *layer.Dense
	batchSkip  *layer.Dense
	output     *layer.Dense
	norm1      *layer.BatchNorm
	norm2      *layer.BatchNorm
	drop1      *layer.Dropout
	drop2      *layer.Dropout
}

// NewDecoder constructs a decoder with weights drawn from the params stream.
// nIn is the width of the first positional input, nOutput the width of the
// sigmoid-bounded output.
func NewDecoder(nIn, nBatch, nHidden, nOutput int, dropoutRate float64, params *rand.Rand) *Decoder {
	return &Decoder{
		input:      layer.NewDense(nIn, nHidden, params),
		batchInput: layer.NewDense(nBatch, nHidden, params),
		hidden:     layer.NewDense(nHidden, nHidden, params),
		batchSkip:  layer.NewDense(nBatch, nHidden, params),
		output:     layer.NewDense(nHidden, nOutput, params),
		norm1:      layer.NewBatchNorm(nHidden),
		norm2:      layer.NewBatchNorm(nHidden),
		drop1:      layer.NewDropout(dropoutRate),
		drop2:      layer.NewDropout(dropoutRate),
	}
}

// Forward maps [cells, nIn] plus the [cells, nBatch] one-hot to a
// [cells, nOutput] matrix with every entry in [0, 1]. In training mode
// BatchNorm uses (and updates the running copy of) batch statistics;
// in evaluation mode the pass is pure.
func (d *Decoder) Forward(in, batch *mat.Dense, training bool, dropout *rand.Rand) *mat.Dense {
	h := d.input.Forward(in)
	h.Add(h, d.batchInput.Forward(batch))
	h = d.drop1.Forward(layer.LeakyReLU(d.norm1.Forward(h, training)), training, dropout)

	h2 := d.hidden.Forward(h)
	h2.Add(h2, d.batchSkip.Forward(batch))
	h2 = d.drop2.Forward(layer.LeakyReLU(d.norm2.Forward(h2, training)), training, dropout)

	return layer.Sigmoid(d.output.Forward(h2))
}
