// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeULaw_EmptyBuffer(t *testing.T) {
	assert.Equal(t, []byte{}, DecodeULaw(nil))
	assert.Equal(t, []byte{}, DecodeULaw([]byte{}))
}

func TestDecodeALaw_EmptyBuffer(t *testing.T) {
	assert.Equal(t, []byte{}, DecodeALaw(nil))
	assert.Equal(t, []byte{}, DecodeALaw([]byte{}))
}

func TestDecodeULaw_OutputLength(t *testing.T) {
	buf := make([]byte, 37)
	out := DecodeULaw(buf)
	assert.Equal(t, 74, len(out), "one 16-bit sample per input byte")
}

func TestDecodeULaw_SilenceSample(t *testing.T) {
	// 0xFF is the canonical mu-law "near silence, positive" code.
	out := DecodeULaw([]byte{0xFF})
	sample := int16(uint16(out[0]) | uint16(out[1])<<8)
	assert.InDelta(t, 0, sample, 16, "0xFF should decode close to silence")
}

func TestDecodeALaw_SilenceSample(t *testing.T) {
	out := DecodeALaw([]byte{0xD5})
	sample := int16(uint16(out[0]) | uint16(out[1])<<8)
	assert.InDelta(t, 0, sample, 16, "0xD5 should decode close to silence")
}

// TestRoundTrip_MuLawClosedSet exercises spec §8 property 3 over the full
// 256-byte reference set: decode then re-encode must be idempotent,
// i.e. encoding the decoded PCM a second time reproduces the same bytes
// as encoding it the first time (mu-law's two near-zero codes are the
// only values where encode(decode(x)) can legitimately differ from x).
func TestRoundTrip_MuLawClosedSet(t *testing.T) {
	for i := 0; i < 256; i++ {
		b := byte(i)
		pcm := DecodeULaw([]byte{b})
		reencoded := EncodeULaw(pcm)
		redecoded := DecodeULaw(reencoded)
		assert.Equal(t, pcm, redecoded, "byte %d: decode must be stable across one encode/decode cycle", i)
	}
}

func TestRoundTrip_ALawClosedSet(t *testing.T) {
	for i := 0; i < 256; i++ {
		b := byte(i)
		pcm := DecodeALaw([]byte{b})
		reencoded := EncodeALaw(pcm)
		redecoded := DecodeALaw(reencoded)
		assert.Equal(t, pcm, redecoded, "byte %d: decode must be stable across one encode/decode cycle", i)
	}
}

func TestResamplePcm_EmptyBuffer(t *testing.T) {
	assert.Equal(t, []byte{}, ResamplePcm(nil, 8000, 16000, 16, 16))
}

func TestResamplePcm_8to16kHz_DoublesLength(t *testing.T) {
	buf := make([]byte, 320) // 160 samples @16-bit
	out := ResamplePcm(buf, 8000, 16000, 16, 16)
	assert.Equal(t, 640, len(out), "|resample(buf,8000,16000)| == 2*|buf| for 16-bit input")
}

func TestResamplePcm_8bitTo16kHz16bit(t *testing.T) {
	buf := make([]byte, 160) // 160 8-bit samples @8kHz
	out := ResamplePcm(buf, 8000, 16000, 8, 16)
	// general formula: |buf| * (16000/8000) * (dstBits/srcBits)
	expected := len(buf) * 2 * 2
	assert.Equal(t, expected, len(out))
}

func TestResamplePcm_SameRate_NoOp(t *testing.T) {
	buf := []byte{1, 2, 3, 4}
	out := ResamplePcm(buf, 16000, 16000, 16, 16)
	assert.Equal(t, buf, out)
}

func TestConvertBitDepth_8to16(t *testing.T) {
	out := ConvertBitDepth([]byte{128, 0, 255}, 8, 16)
	assert.Equal(t, 6, len(out))
}

func TestConvertBitDepth_Unsupported_PassesThrough(t *testing.T) {
	buf := []byte{1, 2, 3}
	out := ConvertBitDepth(buf, 24, 32)
	assert.Equal(t, buf, out)
}

func TestConvertBitDepth_EmptyBuffer(t *testing.T) {
	assert.Equal(t, []byte{}, ConvertBitDepth(nil, 8, 16))
}

func TestBuildConversionPath_AlreadyTarget(t *testing.T) {
	path := BuildConversionPath(TargetFormat)
	assert.Empty(t, path)
}

func TestBuildConversionPath_MuLaw8k(t *testing.T) {
	path := BuildConversionPath(AudioFormat{Codec: "mulaw", SampleRate: 8000, Channels: 1, BitDepth: 8})
	assert.Equal(t, []ConversionStep{StepMuLawToPCM, StepResample}, path)
}

func TestBuildConversionPath_ALaw8k(t *testing.T) {
	path := BuildConversionPath(AudioFormat{Codec: "alaw", SampleRate: 8000, Channels: 1, BitDepth: 8})
	assert.Equal(t, []ConversionStep{StepALawToPCM, StepResample}, path)
}

func TestApplyPath_MuLaw8kToTarget(t *testing.T) {
	path := BuildConversionPath(AudioFormat{Codec: "mulaw", SampleRate: 8000, Channels: 1, BitDepth: 8})
	buf := make([]byte, 160) // 20ms @8kHz mulaw
	out := ApplyPath(path, buf, 8000, 8)
	// decode -> 320 bytes @16-bit/8kHz, resample to 16kHz -> 640 bytes
	assert.Equal(t, 640, len(out))
}

func TestApplyPath_EmptyPath_PassThrough(t *testing.T) {
	buf := []byte{1, 2, 3, 4}
	out := ApplyPath(nil, buf, 16000, 16)
	assert.Equal(t, buf, out)
}
