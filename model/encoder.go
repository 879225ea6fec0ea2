// SPDX-License-Identifier: MIT
// Copyright (c) 2026 The peakvae Authors

package model

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/szhorvat/peakvae/layer"
)

// Encoder maps a raw per-cell count vector to the parameters of the
// approximate posterior over the latent space.
//
// Architecture:
//
//	log1p(x) -> Dense -> LayerNorm -> LeakyReLU -> Dropout
//	         -> Dense -> LayerNorm -> LeakyReLU -> Dropout
//	         -> {Dense mean head, Dense log-variance head}
//
// The variance head output is exponentiated, so the returned variance is
// strictly positive for any finite input.
type Encoder struct {
	hidden1    *layer.Dense
	hidden2    *layer.Dense
	meanHead   *layer.Dense
	logVarHead *layer.Dense
	norm1      *layer.LayerNorm
	norm2      *layer.LayerNorm
	drop1      *layer.Dropout
	drop2      *layer.Dropout
}

// NewEncoder constructs an encoder with weights drawn from the params stream.
func NewEncoder(cfg Config, params *rand.Rand) *Encoder {
	return &Encoder{
		hidden1:    layer.NewDense(cfg.NInput, cfg.NHidden, params),
		hidden2:    layer.NewDense(cfg.NHidden, cfg.NHidden, params),
		meanHead:   layer.NewDense(cfg.NHidden, cfg.NLatent, params),
		logVarHead: layer.NewDense(cfg.NHidden, cfg.NLatent, params),
		norm1:      layer.NewLayerNorm(cfg.NHidden),
		norm2:      layer.NewLayerNorm(cfg.NHidden),
		drop1:      layer.NewDropout(cfg.DropoutRate),
		drop2:      layer.NewDropout(cfg.DropoutRate),
	}
}

// Forward returns the posterior mean and variance, each [cells, latent].
// Dropout draws from the dropout stream in training mode and is a no-op in
// evaluation mode.
func (e *Encoder) Forward(x *mat.Dense, training bool, dropout *rand.Rand) (mean, variance *mat.Dense) {
	h := layer.Log1p(x)

	h = e.drop1.Forward(layer.LeakyReLU(e.norm1.Forward(e.hidden1.Forward(h))), training, dropout)
	h = e.drop2.Forward(layer.LeakyReLU(e.norm2.Forward(e.hidden2.Forward(h))), training, dropout)

	mean = e.meanHead.Forward(h)
	variance = layer.Exp(e.logVarHead.Forward(h))
	return mean, variance
}
