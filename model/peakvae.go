// SPDX-License-Identifier: MIT
// Copyright (c) 2026 The peakvae Authors

// Package model implements a variational autoencoder for single-cell
// chromatin-accessibility (peak) count data.
//
// PeakVAE infers a low-dimensional latent representation of per-cell
// accessibility profiles while jointly modeling a per-cell depth factor and a
// per-region baseline accessibility factor. Training maximizes an evidence
// lower bound: a Bernoulli reconstruction likelihood on binarized counts,
// regularized by the KL divergence to a standard normal prior.
//
// The model is a pure computation over gonum matrices: parameters are created
// once at construction, forward passes never mutate them (BatchNorm running
// statistics in training mode excepted), and every stochastic step consumes
// an explicitly passed random stream. Training-loop orchestration, data
// loading, and gradient updates live outside this package.
package model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/szhorvat/peakvae/layer"
)

// PeakVAE owns the encoder, decoder, depth encoder, and the optional
// per-region factor vector, and wires them into the two-phase
// inference -> generative computation plus the ELBO loss.
type PeakVAE struct {
	cfg           Config
	encoder       *Encoder
	decoder       *Decoder
	depthEncoder  *Decoder
	regionFactors *mat.VecDense // nil when disabled; constant f=1 semantics
}

// New constructs a PeakVAE with all weights drawn from the params stream.
// Region factors, when enabled, start at zero (sigmoid(0) = 0.5).
func New(cfg Config, streams layer.Streams) (*PeakVAE, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &PeakVAE{
		cfg:     cfg,
		encoder: NewEncoder(cfg, streams.Params),
		// Decoders run without dropout regardless of the encoder rate.
		decoder:      NewDecoder(cfg.NLatent, cfg.NBatch, cfg.NHidden, cfg.NInput, 0, streams.Params),
		depthEncoder: NewDecoder(cfg.NInput, cfg.NBatch, cfg.NHidden, 1, 0, streams.Params),
	}
	if cfg.RegionFactors {
		m.regionFactors = mat.NewVecDense(cfg.NInput, nil)
	}
	return m, nil
}

// Config returns the model's configuration.
func (m *PeakVAE) Config() Config { return m.cfg }

// Encoder returns the variational posterior network.
func (m *PeakVAE) Encoder() *Encoder { return m.encoder }

// Decoder returns the generative reconstruction network.
func (m *PeakVAE) Decoder() *Decoder { return m.decoder }

// DepthEncoder returns the per-cell depth-factor network.
func (m *PeakVAE) DepthEncoder() *Decoder { return m.depthEncoder }

// RegionFactors returns the raw (pre-sigmoid) per-region factor vector, or
// nil when region factors are disabled.
func (m *PeakVAE) RegionFactors() *mat.VecDense { return m.regionFactors }

// InferenceOutput carries the results of the inference phase.
type InferenceOutput struct {
	Qz *Normal      // approximate posterior over the latent space
	Z  []*mat.Dense // reparameterized samples; the slice is the sample axis
	D  *mat.Dense   // per-cell depth factor, [cells, 1], entries in [0, 1]
}

// GenerativeOutput carries the results of the generative phase.
type GenerativeOutput struct {
	Px *mat.Dense // per-cell per-region reconstruction probability, in [0, 1]
}

// LossOutput carries the ELBO terms.
type LossOutput struct {
	Loss               float64       // sum(recon) + klWeight * sum(kl)
	ReconstructionLoss *mat.VecDense // per-cell BCE summed over regions
	KLDivergence       *mat.VecDense // per-cell KL summed over latent dims
}

// Inference runs the inference phase: encode x into the posterior qz, draw
// nSamples reparameterized latent samples, and estimate the per-cell depth
// factor from the raw counts and batch covariate.
func (m *PeakVAE) Inference(x *mat.Dense, batchIndex []int, nSamples int, training bool, streams layer.Streams) (*InferenceOutput, error) {
	if err := m.validateCounts(x, batchIndex); err != nil {
		return nil, err
	}
	if nSamples < 1 {
		return nil, fmt.Errorf("peakvae: nSamples must be >= 1, got %d", nSamples)
	}
	batch, err := oneHot(batchIndex, m.cfg.NBatch)
	if err != nil {
		return nil, err
	}

	mean, variance := m.encoder.Forward(x, training, streams.Dropout)
	// stddev keeps an eps floor on top of the strictly positive sqrt(var).
	std := mat.DenseCopyOf(variance)
	std.Apply(func(_, _ int, v float64) float64 { return math.Sqrt(v) + m.cfg.Eps }, std)

	d := m.depthEncoder.Forward(x, batch, training, streams.Dropout)

	qz := NewNormal(mean, std)
	z := make([]*mat.Dense, nSamples)
	for i := range z {
		z[i] = qz.Rsample(streams.Z)
	}
	return &InferenceOutput{Qz: qz, Z: z, D: d}, nil
}

// Generative runs the generative phase: decode a latent sample plus the batch
// covariate into per-region reconstruction probabilities.
func (m *PeakVAE) Generative(z *mat.Dense, batchIndex []int, training bool, streams layer.Streams) (*GenerativeOutput, error) {
	rows, cols := z.Dims()
	if cols != m.cfg.NLatent {
		return nil, fmt.Errorf("peakvae: latent width %d, want %d", cols, m.cfg.NLatent)
	}
	if rows != len(batchIndex) {
		return nil, fmt.Errorf("peakvae: %d latent rows but %d batch indices", rows, len(batchIndex))
	}
	batch, err := oneHot(batchIndex, m.cfg.NBatch)
	if err != nil {
		return nil, err
	}
	return &GenerativeOutput{Px: m.decoder.Forward(z, batch, training, streams.Dropout)}, nil
}

// Loss computes the ELBO terms from the original counts and the phase
// outputs. Pure function of its inputs: nothing is mutated.
//
// Per cell:
//
//	preds  = px * d * f            (f broadcast across cells; f = 1 when disabled)
//	labels = 1 if count > 0 else 0
//	recon  = -sum_regions [labels*log(preds+eps) + (1-labels)*log(1-preds+eps)]
//	kl     = sum_latent KL(qz || N(0, 1))
//
// Total loss = sum_cells recon + klWeight * sum_cells kl.
func (m *PeakVAE) Loss(x *mat.Dense, inference *InferenceOutput, generative *GenerativeOutput, klWeight float64) (*LossOutput, error) {
	cells, regions := x.Dims()
	if regions != m.cfg.NInput {
		return nil, fmt.Errorf("peakvae: count matrix width %d, want %d", regions, m.cfg.NInput)
	}
	pr, pc := generative.Px.Dims()
	if pr != cells || pc != regions {
		return nil, fmt.Errorf("peakvae: px shape [%d, %d] does not match counts [%d, %d]", pr, pc, cells, regions)
	}
	dr, dc := inference.D.Dims()
	if dr != cells || dc != 1 {
		return nil, fmt.Errorf("peakvae: depth factor shape [%d, %d], want [%d, 1]", dr, dc, cells)
	}

	f := make([]float64, regions)
	if m.regionFactors != nil {
		for j := range f {
			f[j] = 1 / (1 + math.Exp(-m.regionFactors.AtVec(j)))
		}
	} else {
		for j := range f {
			f[j] = 1
		}
	}

	eps := m.cfg.Eps
	recon := mat.NewVecDense(cells, nil)
	for i := 0; i < cells; i++ {
		px := generative.Px.RawRowView(i)
		counts := x.RawRowView(i)
		d := inference.D.At(i, 0)
		sum := 0.0
		for j := 0; j < regions; j++ {
			pred := px[j] * d * f[j]
			if counts[j] > 0 {
				sum -= math.Log(pred + eps)
			} else {
				sum -= math.Log(1 - pred + eps)
			}
		}
		recon.SetVec(i, sum)
	}

	kl := inference.Qz.KL()
	loss := floats.Sum(recon.RawVector().Data) + klWeight*floats.Sum(kl.RawVector().Data)
	return &LossOutput{Loss: loss, ReconstructionLoss: recon, KLDivergence: kl}, nil
}

// Forward runs the three phases in order with a single latent sample, the
// standard training-step entry point.
func (m *PeakVAE) Forward(x *mat.Dense, batchIndex []int, training bool, streams layer.Streams, klWeight float64) (*InferenceOutput, *GenerativeOutput, *LossOutput, error) {
	inference, err := m.Inference(x, batchIndex, 1, training, streams)
	if err != nil {
		return nil, nil, nil, err
	}
	generative, err := m.Generative(inference.Z[0], batchIndex, training, streams)
	if err != nil {
		return nil, nil, nil, err
	}
	loss, err := m.Loss(x, inference, generative, klWeight)
	if err != nil {
		return nil, nil, nil, err
	}
	return inference, generative, loss, nil
}

// validateCounts fails fast on malformed input: wrong width, leading-dim
// mismatch with the batch indices, or negative counts.
func (m *PeakVAE) validateCounts(x *mat.Dense, batchIndex []int) error {
	rows, cols := x.Dims()
	if cols != m.cfg.NInput {
		return fmt.Errorf("peakvae: count matrix width %d, want %d", cols, m.cfg.NInput)
	}
	if rows != len(batchIndex) {
		return fmt.Errorf("peakvae: %d cells but %d batch indices", rows, len(batchIndex))
	}
	for i := 0; i < rows; i++ {
		for _, v := range x.RawRowView(i) {
			if v < 0 {
				return fmt.Errorf("peakvae: negative count %v in cell %d", v, i)
			}
		}
	}
	return nil
}

// oneHot expands categorical batch indices into a [cells, nBatch] one-hot
// matrix, rejecting out-of-range indices.
func oneHot(batchIndex []int, nBatch int) (*mat.Dense, error) {
	out := mat.NewDense(len(batchIndex), nBatch, nil)
	for i, b := range batchIndex {
		if b < 0 || b >= nBatch {
			return nil, fmt.Errorf("peakvae: batch index %d outside [0, %d)", b, nBatch)
		}
		out.Set(i, b, 1)
	}
	return out, nil
}
