// SPDX-License-Identifier: MIT
// Copyright (c) 2026 The peakvae Authors

package model

import (
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"io"

	"gonum.org/v1/gonum/mat"

	"github.com/szhorvat/peakvae/layer"
)

// Checkpoint format: gzip-compressed gob of modelState. The state carries the
// configuration and every learned quantity, including the BatchNorm running
// statistics, so a restored model reproduces evaluation-mode outputs exactly.

const checkpointVersion = 1

type denseState struct {
	Rows, Cols int
	Weight     []float64
	Bias       []float64
}

type layerNormState struct {
	Gamma, Beta []float64
}

type batchNormState struct {
	Gamma, Beta             []float64
	RunningMean, RunningVar []float64
}

type encoderState struct {
	Hidden1, Hidden2, MeanHead, LogVarHead denseState
	Norm1, Norm2                           layerNormState
}

type decoderState struct {
	Input, BatchInput, Hidden, BatchSkip, Output denseState
	Norm1, Norm2                                 batchNormState
}

type modelState struct {
	Version       int
	Config        Config
	Encoder       encoderState
	Decoder       decoderState
	DepthEncoder  decoderState
	RegionFactors []float64 // nil when disabled
}

// Save writes the full parameter set to w.
func (m *PeakVAE) Save(w io.Writer) error {
	state := modelState{
		Version:      checkpointVersion,
		Config:       m.cfg,
		Encoder:      stateOfEncoder(m.encoder),
		Decoder:      stateOfDecoder(m.decoder),
		DepthEncoder: stateOfDecoder(m.depthEncoder),
	}
	if m.regionFactors != nil {
		state.RegionFactors = append([]float64(nil), m.regionFactors.RawVector().Data...)
	}

	zw := gzip.NewWriter(w)
	if err := gob.NewEncoder(zw).Encode(state); err != nil {
		return fmt.Errorf("peakvae: encode checkpoint: %w", err)
	}
	return zw.Close()
}

// Load reads a checkpoint written by Save and reconstructs the model.
func Load(r io.Reader) (*PeakVAE, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("peakvae: open checkpoint: %w", err)
	}
	defer zr.Close()

	var state modelState
	if err := gob.NewDecoder(zr).Decode(&state); err != nil {
		return nil, fmt.Errorf("peakvae: decode checkpoint: %w", err)
	}
	if state.Version != checkpointVersion {
		return nil, fmt.Errorf("peakvae: checkpoint version %d, want %d", state.Version, checkpointVersion)
	}

	// Build with throwaway init weights, then overwrite everything from state.
	m, err := New(state.Config, layer.NewStreams(0))
	if err != nil {
		return nil, err
	}
	if err := restoreEncoder(m.encoder, state.Encoder); err != nil {
		return nil, err
	}
	if err := restoreDecoder(m.decoder, state.Decoder); err != nil {
		return nil, err
	}
	if err := restoreDecoder(m.depthEncoder, state.DepthEncoder); err != nil {
		return nil, err
	}
	if m.regionFactors != nil {
		if len(state.RegionFactors) != state.Config.NInput {
			return nil, fmt.Errorf("peakvae: region factors length %d, want %d", len(state.RegionFactors), state.Config.NInput)
		}
		m.regionFactors = mat.NewVecDense(state.Config.NInput, append([]float64(nil), state.RegionFactors...))
	}
	return m, nil
}

func stateOfDense(d *layer.Dense) denseState {
	rows, cols := d.Weight.Dims()
	return denseState{
		Rows:   rows,
		Cols:   cols,
		Weight: append([]float64(nil), d.Weight.RawMatrix().Data...),
		Bias:   append([]float64(nil), d.Bias.RawVector().Data...),
	}
}

func restoreDense(d *layer.Dense, s denseState) error {
	rows, cols := d.Weight.Dims()
	if s.Rows != rows || s.Cols != cols {
		return fmt.Errorf("peakvae: dense weight shape [%d, %d], want [%d, %d]", s.Rows, s.Cols, rows, cols)
	}
	if len(s.Weight) != rows*cols || len(s.Bias) != rows {
		return fmt.Errorf("peakvae: dense state length mismatch")
	}
	d.Weight = mat.NewDense(rows, cols, append([]float64(nil), s.Weight...))
	d.Bias = mat.NewVecDense(rows, append([]float64(nil), s.Bias...))
	return nil
}

func stateOfEncoder(e *Encoder) encoderState {
	return encoderState{
		Hidden1:    stateOfDense(e.hidden1),
		Hidden2:    stateOfDense(e.hidden2),
		MeanHead:   stateOfDense(e.meanHead),
		LogVarHead: stateOfDense(e.logVarHead),
		Norm1:      layerNormState{Gamma: vecData(e.norm1.Gamma), Beta: vecData(e.norm1.Beta)},
		Norm2:      layerNormState{Gamma: vecData(e.norm2.Gamma), Beta: vecData(e.norm2.Beta)},
	}
}

func restoreEncoder(e *Encoder, s encoderState) error {
	denses := []struct {
		dst *layer.Dense
		src denseState
	}{
		{e.hidden1, s.Hidden1},
		{e.hidden2, s.Hidden2},
		{e.meanHead, s.MeanHead},
		{e.logVarHead, s.LogVarHead},
	}
	for _, d := range denses {
		if err := restoreDense(d.dst, d.src); err != nil {
			return err
		}
	}
	if err := restoreVec(e.norm1.Gamma, s.Norm1.Gamma); err != nil {
		return err
	}
	if err := restoreVec(e.norm1.Beta, s.Norm1.Beta); err != nil {
		return err
	}
	if err := restoreVec(e.norm2.Gamma, s.Norm2.Gamma); err != nil {
		return err
	}
	return restoreVec(e.norm2.Beta, s.Norm2.Beta)
}

func stateOfDecoder(d *Decoder) decoderState {
	return decoderState{
		Input:      stateOfDense(d.input),
		BatchInput: stateOfDense(d.batchInput),
		Hidden:     stateOfDense(d.hidden),
		BatchSkip:  stateOfDense(d.batchSkip),
		Output:     stateOfDense(d.output),
		Norm1:      stateOfBatchNorm(d.norm1),
		Norm2:      stateOfBatchNorm(d.norm2),
	}
}

func restoreDecoder(d *Decoder, s decoderState) error {
	denses := []struct {
		dst *layer.Dense
		src denseState
	}{
		{d.input, s.Input},
		{d.batchInput, s.BatchInput},
		{d.hidden, s.Hidden},
		{d.batchSkip, s.BatchSkip},
		{d.output, s.Output},
	}
	for _, dd := range denses {
		if err := restoreDense(dd.dst, dd.src); err != nil {
			return err
		}
	}
	if err := restoreBatchNorm(d.norm1, s.Norm1); err != nil {
		return err
	}
	return restoreBatchNorm(d.norm2, s.Norm2)
}

func stateOfBatchNorm(b *layer.BatchNorm) batchNormState {
	return batchNormState{
		Gamma:       vecData(b.Gamma),
		Beta:        vecData(b.Beta),
		RunningMean: vecData(b.RunningMean),
		RunningVar:  vecData(b.RunningVar),
	}
}

func restoreBatchNorm(b *layer.BatchNorm, s batchNormState) error {
	if err := restoreVec(b.Gamma, s.Gamma); err != nil {
		return err
	}
	if err := restoreVec(b.Beta, s.Beta); err != nil {
		return err
	}
	if err := restoreVec(b.RunningMean, s.RunningMean); err != nil {
		return err
	}
	return restoreVec(b.RunningVar, s.RunningVar)
}

func vecData(v *mat.VecDense) []float64 {
	return append([]float64(nil), v.RawVector().Data...)
}

func restoreVec(dst *mat.VecDense, src []float64) error {
	if len(src) != dst.Len() {
		return fmt.Errorf("peakvae: vector state length %d, want %d", len(src), dst.Len())
	}
	copy(dst.RawVector().Data, src)
	return nil
}
