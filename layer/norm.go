// SPDX-License-Identifier: MIT
// Copyright (c) 2026 The peakvae Authors

package layer

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// LayerNorm normalizes each row (one cell's feature vector) to zero mean and
// unit variance, then applies a learned elementwise affine transform:
//
//	y_i = (x_i - mean(x)) / sqrt(var(x) + eps) * gamma_i + beta_i
//
// The statistics are computed per row, so LayerNorm has no train/eval split.
type LayerNorm struct {
	Gamma *mat.VecDense // learned scale, init 1
	Beta  *mat.VecDense // learned shift, init 0

	dim int
	eps float64
}

// NewLayerNorm creates a LayerNorm over feature vectors of length dim.
func NewLayerNorm(dim int) *LayerNorm {
	gamma := mat.NewVecDense(dim, nil)
	for i := 0; i < dim; i++ {
		gamma.SetVec(i, 1)
	}
	return &LayerNorm{
		Gamma: gamma,
		Beta:  mat.NewVecDense(dim, nil),
		dim:   dim,
		eps:   1e-6,
	}
}

// Forward normalizes every row of x independently.
func (l *LayerNorm) Forward(x *mat.Dense) *mat.Dense {
	rows, cols := x.Dims()
	if cols != l.dim {
		panic(fmt.Sprintf("layernorm: input width %d, want %d", cols, l.dim))
	}
	out := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		row := x.RawRowView(i)
		mean, variance := momentsOf(row)
		invStd := 1 / math.Sqrt(variance+l.eps)
		oRow := out.RawRowView(i)
		for j, v := range row {
			oRow[j] = (v-mean)*invStd*l.Gamma.AtVec(j) + l.Beta.AtVec(j)
		}
	}
	return out
}

// BatchNorm normalizes each column (feature) across the cells of a minibatch.
//
// In training mode the batch's own statistics are used and the running
// statistics are updated as
//
//	running = (1-momentum)*running + momentum*batch_stat
//
// In evaluation mode the running statistics are used and the forward pass is
// pure. Gamma/beta are the learned affine parameters.
type BatchNorm struct {
	Gamma       *mat.VecDense // learned scale, init 1
	Beta        *mat.VecDense // learned shift, init 0
	RunningMean *mat.VecDense // init 0, updated in training mode only
	RunningVar  *mat.VecDense // init 1, updated in training mode only

	dim      int
	eps      float64
	momentum float64
}

// NewBatchNorm creates a BatchNorm over feature vectors of length dim with
// momentum 0.1 for the running-statistics update.
func NewBatchNorm(dim int) *BatchNorm {
	gamma := mat.NewVecDense(dim, nil)
	runningVar := mat.NewVecDense(dim, nil)
	for i := 0; i < dim; i++ {
		gamma.SetVec(i, 1)
		runningVar.SetVec(i, 1)
	}
	return &BatchNorm{
		Gamma:       gamma,
		Beta:        mat.NewVecDense(dim, nil),
		RunningMean: mat.NewVecDense(dim, nil),
		RunningVar:  runningVar,
		dim:         dim,
		eps:         1e-5,
		momentum:    0.1,
	}
}

// Forward normalizes every column of x. The training flag selects between
// batch statistics (and a running-statistics update) and running statistics.
func (b *BatchNorm) Forward(x *mat.Dense, training bool) *mat.Dense {
	rows, cols := x.Dims()
	if cols != b.dim {
		panic(fmt.Sprintf("batchnorm: input width %d, want %d", cols, b.dim))
	}
	mean := make([]float64, cols)
	variance := make([]float64, cols)
	if training {
		for j := 0; j < cols; j++ {
			col := mat.Col(nil, j, x)
			mean[j], variance[j] = momentsOf(col)
			b.RunningMean.SetVec(j, (1-b.momentum)*b.RunningMean.AtVec(j)+b.momentum*mean[j])
			b.RunningVar.SetVec(j, (1-b.momentum)*b.RunningVar.AtVec(j)+b.momentum*variance[j])
		}
	} else {
		for j := 0; j < cols; j++ {
			mean[j] = b.RunningMean.AtVec(j)
			variance[j] = b.RunningVar.AtVec(j)
		}
	}

	out := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		row := x.RawRowView(i)
		oRow := out.RawRowView(i)
		for j, v := range row {
			invStd := 1 / math.Sqrt(variance[j]+b.eps)
			oRow[j] = (v-mean[j])*invStd*b.Gamma.AtVec(j) + b.Beta.AtVec(j)
		}
	}
	return out
}

// momentsOf returns the mean and population variance of xs.
func momentsOf(xs []float64) (mean, variance float64) {
	for _, v := range xs {
		mean += v
	}
	mean /= float64(len(xs))
	for _, v := range xs {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(xs))
	return mean, variance
}
