// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package codec

import "github.com/zaf/g711"

// EncodeULaw compresses little-endian PCM16 samples into mu-law bytes via
// zaf/g711, the same library DecodeULaw uses. Exists primarily so the
// decode path can be verified round-trip (spec §8 property 3:
// mu-law-encode(decodeULaw(x)) == x on the 256 reference bytes) and so a
// bridge session could play locally synthesized PCM back out over a
// mu-law leg without provider help.
func EncodeULaw(pcm []byte) []byte {
	if len(pcm) == 0 {
		return []byte{}
	}
	return g711.EncodeUlaw(pcm)
}

// EncodeALaw compresses little-endian PCM16 samples into A-law bytes.
func EncodeALaw(pcm []byte) []byte {
	if len(pcm) == 0 {
		return []byte{}
	}
	return g711.EncodeAlaw(pcm)
}
