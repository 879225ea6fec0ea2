// SPDX-License-Identifier: MIT
// Copyright (c) 2026 The peakvae Authors

package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/szhorvat/peakvae/layer"
)

// The fixed scenario: 4 regions, one covariate level, a single cell with
// counts [0, 3, 0, 5], freshly initialized weights and zero region factors.
func TestSingleCellScenario(t *testing.T) {
	m, err := New(DefaultConfig(4, 1), layer.NewStreams(123))
	require.NoError(t, err)

	x := mat.NewDense(1, 4, []float64{0, 3, 0, 5})
	inference, generative, loss, err := m.Forward(x, []int{0}, false, layer.NewStreams(123), 1)
	require.NoError(t, err)

	// Depth factor is a single non-negative scalar.
	d := inference.D.At(0, 0)
	require.GreaterOrEqual(t, d, 0.0)
	require.LessOrEqual(t, d, 1.0)

	// Reconstruction probabilities all land in [0, 1].
	_, cols := generative.Px.Dims()
	require.Equal(t, 4, cols)
	for _, v := range generative.Px.RawMatrix().Data {
		require.GreaterOrEqual(t, v, 0.0)
		require.LessOrEqual(t, v, 1.0)
	}

	// The loss binarizes the counts to [0, 1, 0, 1]: recomputing the BCE by
	// hand with those labels (and f = sigmoid(0) = 0.5) must match exactly.
	labels := []float64{0, 1, 0, 1}
	want := 0.0
	for j := 0; j < 4; j++ {
		pred := generative.Px.At(0, j) * d * 0.5
		want -= labels[j]*math.Log(pred+1e-8) + (1-labels[j])*math.Log(1-pred+1e-8)
	}
	require.InDelta(t, want, loss.ReconstructionLoss.AtVec(0), 1e-12)

	require.False(t, math.IsNaN(loss.Loss))
	require.False(t, math.IsInf(loss.Loss, 0))
	require.GreaterOrEqual(t, loss.ReconstructionLoss.AtVec(0), 0.0)
}

// Two evaluation-mode passes with identically seeded streams are
// bit-identical.
func TestForwardDeterministicEval(t *testing.T) {
	m, err := New(testConfig(), layer.NewStreams(7))
	require.NoError(t, err)

	x := mat.NewDense(3, 6, []float64{
		0, 1, 0, 4, 2, 0,
		5, 0, 0, 1, 1, 1,
		0, 0, 0, 0, 0, 7,
	})
	batchIndex := []int{0, 1, 0}

	infA, genA, lossA, err := m.Forward(x, batchIndex, false, layer.NewStreams(55), 1)
	require.NoError(t, err)
	infB, genB, lossB, err := m.Forward(x, batchIndex, false, layer.NewStreams(55), 1)
	require.NoError(t, err)

	require.True(t, mat.Equal(infA.Z[0], infB.Z[0]))
	require.True(t, mat.Equal(genA.Px, genB.Px))
	require.Equal(t, lossA.Loss, lossB.Loss)
}

// Requesting nSamples draws produces a sample axis of that length, with
// independent draws.
func TestInferenceSampleAxis(t *testing.T) {
	m, err := New(testConfig(), layer.NewStreams(13))
	require.NoError(t, err)

	x := mat.NewDense(2, 6, []float64{
		1, 0, 2, 0, 0, 3,
		0, 0, 1, 1, 0, 0,
	})
	inference, err := m.Inference(x, []int{0, 1}, 5, false, layer.NewStreams(13))
	require.NoError(t, err)

	require.Len(t, inference.Z, 5)
	for _, z := range inference.Z {
		rows, cols := z.Dims()
		require.Equal(t, 2, rows)
		require.Equal(t, m.Config().NLatent, cols)
	}
	require.False(t, mat.Equal(inference.Z[0], inference.Z[1]))
}

// The per-sample average converges to the posterior mean.
func TestInferenceSampleMean(t *testing.T) {
	m, err := New(testConfig(), layer.NewStreams(29))
	require.NoError(t, err)

	x := mat.NewDense(2, 6, []float64{
		2, 0, 1, 0, 4, 0,
		0, 3, 0, 0, 0, 1,
	})
	const samples = 3000
	inference, err := m.Inference(x, []int{0, 0}, samples, false, layer.NewStreams(29))
	require.NoError(t, err)

	avg := mat.NewDense(2, m.Config().NLatent, nil)
	for _, z := range inference.Z {
		avg.Add(avg, z)
	}
	avg.Scale(1.0/samples, avg)

	for i := 0; i < 2; i++ {
		for j := 0; j < m.Config().NLatent; j++ {
			tol := 8 * inference.Qz.Std.At(i, j) / math.Sqrt(samples)
			require.InDelta(t, inference.Qz.Mean.At(i, j), avg.At(i, j), tol)
		}
	}
}

// Disabling region factors behaves as the constant f = 1.
func TestRegionFactorsDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.RegionFactors = false
	m, err := New(cfg, layer.NewStreams(17))
	require.NoError(t, err)
	require.Nil(t, m.RegionFactors())

	x := mat.NewDense(1, 6, []float64{0, 2, 0, 0, 1, 4})
	inference, generative, loss, err := m.Forward(x, []int{0}, false, layer.NewStreams(17), 1)
	require.NoError(t, err)

	d := inference.D.At(0, 0)
	want := 0.0
	for j := 0; j < 6; j++ {
		pred := generative.Px.At(0, j) * d // f = 1
		if x.At(0, j) > 0 {
			want -= math.Log(pred + 1e-8)
		} else {
			want -= math.Log(1 - pred + 1e-8)
		}
	}
	require.InDelta(t, want, loss.ReconstructionLoss.AtVec(0), 1e-12)
}

func TestRegionFactorsEnabled(t *testing.T) {
	m, err := New(testConfig(), layer.NewStreams(17))
	require.NoError(t, err)
	require.NotNil(t, m.RegionFactors())
	require.Equal(t, m.Config().NInput, m.RegionFactors().Len())
	// Zero-initialized, so f = sigmoid(0) = 0.5 at loss time.
	for i := 0; i < m.RegionFactors().Len(); i++ {
		require.Zero(t, m.RegionFactors().AtVec(i))
	}
}

// Total loss combines the two terms with the KL weight.
func TestLossKLWeight(t *testing.T) {
	m, err := New(testConfig(), layer.NewStreams(3))
	require.NoError(t, err)

	x := mat.NewDense(2, 6, []float64{
		1, 1, 0, 0, 2, 0,
		0, 0, 0, 3, 0, 1,
	})
	batchIndex := []int{0, 1}

	inference, err := m.Inference(x, batchIndex, 1, false, layer.NewStreams(3))
	require.NoError(t, err)
	generative, err := m.Generative(inference.Z[0], batchIndex, false, layer.NewStreams(3))
	require.NoError(t, err)

	unweighted, err := m.Loss(x, inference, generative, 0)
	require.NoError(t, err)
	weighted, err := m.Loss(x, inference, generative, 2)
	require.NoError(t, err)

	reconSum := unweighted.ReconstructionLoss.AtVec(0) + unweighted.ReconstructionLoss.AtVec(1)
	klSum := weighted.KLDivergence.AtVec(0) + weighted.KLDivergence.AtVec(1)
	require.InDelta(t, reconSum, unweighted.Loss, 1e-12)
	require.InDelta(t, reconSum+2*klSum, weighted.Loss, 1e-12)

	for i := 0; i < 2; i++ {
		require.GreaterOrEqual(t, weighted.ReconstructionLoss.AtVec(i), 0.0)
		require.GreaterOrEqual(t, weighted.KLDivergence.AtVec(i), 0.0)
	}
}

// Loss never mutates its inputs.
func TestLossIsPure(t *testing.T) {
	m, err := New(testConfig(), layer.NewStreams(41))
	require.NoError(t, err)

	x := mat.NewDense(1, 6, []float64{0, 1, 2, 0, 0, 5})
	inference, err := m.Inference(x, []int{1}, 1, false, layer.NewStreams(41))
	require.NoError(t, err)
	generative, err := m.Generative(inference.Z[0], []int{1}, false, layer.NewStreams(41))
	require.NoError(t, err)

	xBefore := mat.DenseCopyOf(x)
	pxBefore := mat.DenseCopyOf(generative.Px)
	dBefore := mat.DenseCopyOf(inference.D)

	_, err = m.Loss(x, inference, generative, 1)
	require.NoError(t, err)

	require.True(t, mat.Equal(xBefore, x))
	require.True(t, mat.Equal(pxBefore, generative.Px))
	require.True(t, mat.Equal(dBefore, inference.D))
}

// Boundary validation: malformed input fails fast with an error before any
// computation runs.
func TestValidationFailures(t *testing.T) {
	m, err := New(testConfig(), layer.NewStreams(1))
	require.NoError(t, err)
	streams := layer.NewStreams(1)

	tests := []struct {
		name string
		call func() error
	}{
		{"negative count", func() error {
			x := mat.NewDense(1, 6, []float64{0, -1, 0, 0, 0, 0})
			_, err := m.Inference(x, []int{0}, 1, false, streams)
			return err
		}},
		{"batch index out of range", func() error {
			x := mat.NewDense(1, 6, nil)
			_, err := m.Inference(x, []int{2}, 1, false, streams)
			return err
		}},
		{"negative batch index", func() error {
			x := mat.NewDense(1, 6, nil)
			_, err := m.Inference(x, []int{-1}, 1, false, streams)
			return err
		}},
		{"wrong count width", func() error {
			x := mat.NewDense(1, 5, nil)
			_, err := m.Inference(x, []int{0}, 1, false, streams)
			return err
		}},
		{"cells vs batch indices mismatch", func() error {
			x := mat.NewDense(2, 6, nil)
			_, err := m.Inference(x, []int{0}, 1, false, streams)
			return err
		}},
		{"zero samples", func() error {
			x := mat.NewDense(1, 6, nil)
			_, err := m.Inference(x, []int{0}, 0, false, streams)
			return err
		}},
		{"wrong latent width", func() error {
			_, err := m.Generative(mat.NewDense(1, 4, nil), []int{0}, false, streams)
			return err
		}},
		{"latent rows vs batch indices mismatch", func() error {
			_, err := m.Generative(mat.NewDense(2, 3, nil), []int{0}, false, streams)
			return err
		}},
		{"loss with counts wider than configured", func() error {
			x := mat.NewDense(1, 6, nil)
			inference, err := m.Inference(x, []int{0}, 1, false, streams)
			require.NoError(t, err)
			wide := &GenerativeOutput{Px: mat.NewDense(1, 8, nil)}
			_, err = m.Loss(mat.NewDense(1, 8, nil), inference, wide, 1)
			return err
		}},
		{"loss with counts narrower than configured", func() error {
			x := mat.NewDense(1, 6, nil)
			inference, err := m.Inference(x, []int{0}, 1, false, streams)
			require.NoError(t, err)
			narrow := &GenerativeOutput{Px: mat.NewDense(1, 4, nil)}
			_, err = m.Loss(mat.NewDense(1, 4, nil), inference, narrow, 1)
			return err
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Error(t, tc.call())
		})
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	bad := []Config{
		{NInput: 0, NBatch: 1, NHidden: 8, NLatent: 2, Eps: 1e-8},
		{NInput: 4, NBatch: 0, NHidden: 8, NLatent: 2, Eps: 1e-8},
		{NInput: 4, NBatch: 1, NHidden: 8, NLatent: 2, Eps: 1e-8, DropoutRate: 1},
		{NInput: 4, NBatch: 1, NHidden: 8, NLatent: 2, Eps: 0},
	}
	for _, cfg := range bad {
		_, err := New(cfg, layer.NewStreams(1))
		require.Error(t, err)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig(100, 3)
	require.NoError(t, cfg.Validate())
	require.Equal(t, 100, cfg.NInput)
	require.Equal(t, 3, cfg.NBatch)
	require.Equal(t, 128, cfg.NHidden)
	require.Equal(t, 30, cfg.NLatent)
	require.Zero(t, cfg.DropoutRate)
	require.Equal(t, 1e-8, cfg.Eps)
	require.True(t, cfg.RegionFactors)
}
