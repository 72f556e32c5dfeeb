// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package codec implements the telephony codec kernel: mu-law/A-law
// decode (via zaf/g711) and an integer-ratio linear resampler. Pure
// functions over byte buffers, no I/O (spec §4.1).
package codec

import "github.com/zaf/g711"

// DecodeULaw decodes a mu-law byte buffer into little-endian PCM16
// samples, one 16-bit sample per input byte (spec §4.1). Delegates the
// ITU-T G.711 mu-law expansion to zaf/g711 rather than a hand-rolled
// table. Empty input yields empty output, no error.
func DecodeULaw(buf []byte) []byte {
	if len(buf) == 0 {
		return []byte{}
	}
	return g711.DecodeUlaw(buf)
}

// DecodeALaw decodes an A-law byte buffer into little-endian PCM16 samples.
func DecodeALaw(buf []byte) []byte {
	if len(buf) == 0 {
		return []byte{}
	}
	return g711.DecodeAlaw(buf)
}
