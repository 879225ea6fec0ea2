// SPDX-License-Identifier: MIT
// Copyright (c) 2026 The peakvae Authors

package layer

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// Dense computes y = x @ W^T + b.
//
// Weight shape: [out_features, in_features] (transposed layout, so the
// forward pass multiplies by W^T without materializing a transpose copy).
type Dense struct {
	Weight *mat.Dense    // [outFeat, inFeat]
	Bias   *mat.VecDense // [outFeat]

	inFeat  int
	outFeat int
}

// NewDense creates a dense layer with Kaiming initialization, N(0, sqrt(2/in)),
// drawn from the params stream. Bias starts at zero.
func NewDense(inFeatures, outFeatures int, params *rand.Rand) *Dense {
	std := math.Sqrt(2.0 / float64(inFeatures))
	w := mat.NewDense(outFeatures, inFeatures, nil)
	for i := 0; i < outFeatures; i++ {
		for j := 0; j < inFeatures; j++ {
			w.Set(i, j, params.NormFloat64()*std)
		}
	}
	return &Dense{
		Weight:  w,
		Bias:    mat.NewVecDense(outFeatures, nil),
		inFeat:  inFeatures,
		outFeat: outFeatures,
	}
}

// Forward computes y = x @ W^T + b for a [cells, in_features] input.
// Panics if the input width does not match the layer's input dimension.
func (d *Dense) Forward(x *mat.Dense) *mat.Dense {
	rows, cols := x.Dims()
	if cols != d.inFeat {
		panic(fmt.Sprintf("dense: input width %d, want %d", cols, d.inFeat))
	}
	var out mat.Dense
	out.Mul(x, d.Weight.T())
	for i := 0; i < rows; i++ {
		row := out.RawRowView(i)
		for j := range row {
			row[j] += d.Bias.AtVec(j)
		}
	}
	return &out
}

// InFeatures returns the input dimension.
func (d *Dense) InFeatures() int { return d.inFeat }

// OutFeatures returns the output dimension.
func (d *Dense) OutFeatures() int { return d.outFeat }
