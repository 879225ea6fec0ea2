// SPDX-License-Identifier: MIT
// Copyright (c) 2026 The peakvae Authors

package model

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// Normal is a diagonal Gaussian over a [cells, latent] array: each element
// has its own mean and (strictly positive) standard deviation.
type Normal struct {
	Mean *mat.Dense
	Std  *mat.Dense
}

// NewNormal builds a diagonal Gaussian from mean and stddev of equal shape.
func NewNormal(mean, std *mat.Dense) *Normal {
	mr, mc := mean.Dims()
	sr, sc := std.Dims()
	if mr != sr || mc != sc {
		panic("normal: mean and std shapes differ")
	}
	return &Normal{Mean: mean, Std: std}
}

// Rsample draws one reparameterized sample: mean + std*eps with
// eps ~ N(0, 1) from the z stream. The draw is a deterministic function of
// the parameters and the noise, so gradients can flow through it.
func (n *Normal) Rsample(z *rand.Rand) *mat.Dense {
	rows, cols := n.Mean.Dims()
	out := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		m := n.Mean.RawRowView(i)
		s := n.Std.RawRowView(i)
		o := out.RawRowView(i)
		for j := range o {
			o[j] = m[j] + s[j]*z.NormFloat64()
		}
	}
	return out
}

// KL returns the per-cell KL divergence to the standard normal prior,
// summed over latent dimensions. Closed form for Gaussians:
//
//	KL(N(mu, sigma) || N(0, 1)) = -log(sigma) + (sigma^2 + mu^2 - 1) / 2
//
// The result is zero exactly when mean is 0 and stddev is 1 everywhere.
func (n *Normal) KL() *mat.VecDense {
	rows, _ := n.Mean.Dims()
	out := mat.NewVecDense(rows, nil)
	for i := 0; i < rows; i++ {
		m := n.Mean.RawRowView(i)
		s := n.Std.RawRowView(i)
		sum := 0.0
		for j := range m {
			sum += -math.Log(s[j]) + (s[j]*s[j]+m[j]*m[j]-1)/2
		}
		out.SetVec(i, sum)
	}
	return out
}
