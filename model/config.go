// SPDX-License-Identifier: MIT
// Copyright (c) 2026 The peakvae Authors

package model

import "fmt"

// Config holds the hyperparameters fixed at model construction.
type Config struct {
	NInput        int     // number of regions (peaks)
	NBatch        int     // cardinality of the batch covariate
	NHidden       int     // hidden width of encoder and decoders
	NLatent       int     // latent dimensionality
	DropoutRate   float64 // encoder dropout rate; decoders always run with 0
	Eps           float64 // numeric stabilizer for stddev and log arguments
	RegionFactors bool    // learn a per-region baseline accessibility factor
}

// DefaultConfig returns the standard hyperparameters for a dataset with
// nInput regions and nBatch covariate levels: 128 hidden units, 30 latent
// dimensions, no dropout, eps 1e-8, region factors enabled.
func DefaultConfig(nInput, nBatch int) Config {
	return Config{
		NInput:        nInput,
		NBatch:        nBatch,
		NHidden:       128,
		NLatent:       30,
		DropoutRate:   0,
		Eps:           1e-8,
		RegionFactors: true,
	}
}

// Validate reports the first invalid field, if any.
func (c Config) Validate() error {
	switch {
	case c.NInput <= 0:
		return fmt.Errorf("config: NInput must be positive, got %d", c.NInput)
	case c.NBatch <= 0:
		return fmt.Errorf("config: NBatch must be positive, got %d", c.NBatch)
	case c.NHidden <= 0:
		return fmt.Errorf("config: NHidden must be positive, got %d", c.NHidden)
	case c.NLatent <= 0:
		return fmt.Errorf("config: NLatent must be positive, got %d", c.NLatent)
	case c.DropoutRate < 0 || c.DropoutRate >= 1:
		return fmt.Errorf("config: DropoutRate %v outside [0, 1)", c.DropoutRate)
	case c.Eps <= 0:
		return fmt.Errorf("config: Eps must be positive, got %v", c.Eps)
	}
	return nil
}
