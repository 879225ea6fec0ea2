// SPDX-License-Identifier: MIT
// Copyright (c) 2026 The peakvae Authors

package layer

import "math/rand/v2"

// Stream sequence constants. Each named stream runs on its own PCG sequence
// so that consuming one stream never perturbs the others.
const (
	seqParams  = 0x706172616d73 // "params"
	seqDropout = 0x64726f70     // "drop"
	seqZ       = 0x7a           // "z"
)

// Streams bundles the three independent random streams the model consumes:
// Params for weight initialization, Dropout for dropout masking, and Z for
// reparameterized latent sampling. Keeping the streams separate means that
// e.g. changing the dropout rate never shifts the latent noise sequence.
type Streams struct {
	Params  *rand.Rand
	Dropout *rand.Rand
	Z       *rand.Rand
}

// NewStreams derives the three named streams from a single seed. The streams
// are statistically independent (distinct PCG sequence constants) and fully
// reproducible from the seed.
func NewStreams(seed uint64) Streams {
	return Streams{
		Params:  rand.New(rand.NewPCG(seed, seqParams)),
		Dropout: rand.New(rand.NewPCG(seed, seqDropout)),
		Z:       rand.New(rand.NewPCG(seed, seqZ)),
	}
}
