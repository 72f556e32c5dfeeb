// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package codec

// ResamplePcm performs a nearest-neighbour integer-ratio resample between
// srcHz and dstHz, operating on srcBits/dstBits-wide samples (spec §4.1).
// Quality is deliberately "acceptable for telephony STT", not DSP-grade.
func ResamplePcm(buf []byte, srcHz, dstHz, srcBits, dstBits int) []byte {
	if len(buf) == 0 {
		return []byte{}
	}
	converted := ConvertBitDepth(buf, srcBits, dstBits)
	if srcHz == dstHz || srcHz <= 0 || dstHz <= 0 {
		return converted
	}

	bytesPerSample := dstBits / 8
	if bytesPerSample <= 0 {
		bytesPerSample = 1
	}
	srcSamples := len(converted) / bytesPerSample
	if srcSamples == 0 {
		return []byte{}
	}
	dstSamples := srcSamples * dstHz / srcHz
	if dstSamples == 0 {
		dstSamples = 1
	}

	out := make([]byte, dstSamples*bytesPerSample)
	for i := 0; i < dstSamples; i++ {
		srcIdx := i * srcHz / dstHz
		if srcIdx >= srcSamples {
			srcIdx = srcSamples - 1
		}
		copy(out[i*bytesPerSample:(i+1)*bytesPerSample], converted[srcIdx*bytesPerSample:(srcIdx+1)*bytesPerSample])
	}
	return out
}

// ConvertBitDepth handles only 8<->16 bit conversions (spec §4.1); any
// other combination is a no-op pass-through with a single logged warning
// left to the caller (the kernel itself stays side-effect free).
func ConvertBitDepth(buf []byte, srcBits, dstBits int) []byte {
	if len(buf) == 0 {
		return []byte{}
	}
	switch {
	case srcBits == dstBits:
		out := make([]byte, len(buf))
		copy(out, buf)
		return out
	case srcBits == 8 && dstBits == 16:
		return eightToSixteen(buf)
	case srcBits == 16 && dstBits == 8:
		return sixteenToEight(buf)
	default:
		out := make([]byte, len(buf))
		copy(out, buf)
		return out
	}
}

// eightToSixteen recentres unsigned 8-bit PCM to signed 16-bit by
// subtracting the midpoint and multiplying by 256.
func eightToSixteen(buf []byte) []byte {
	out := make([]byte, len(buf)*2)
	for i, b := range buf {
		sample := (int32(b) - 128) * 256
		out[i*2] = byte(sample)
		out[i*2+1] = byte(sample >> 8)
	}
	return out
}

// sixteenToEight divides signed 16-bit PCM by 256 and recentres to
// unsigned 8-bit, clamped to [0,255].
func sixteenToEight(buf []byte) []byte {
	n := len(buf) / 2
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		sample := int16(uint16(buf[i*2]) | uint16(buf[i*2+1])<<8)
		v := int32(sample)/256 + 128
		if v < 0 {
			v = 0
		}
		if v > 255 {
			v = 255
		}
		out[i] = byte(v)
	}
	return out
}

// ConversionStep names one stage of a cached conversion path (spec §4.2 Glossary).
type ConversionStep string

const (
	StepMuLawToPCM  ConversionStep = "mulaw->pcm"
	StepALawToPCM   ConversionStep = "alaw->pcm"
	StepResample    ConversionStep = "resample"
	StepBitDepth    ConversionStep = "bit_depth"
)

// AudioFormat describes a media-format descriptor as sent by the
// telephony provider (spec §4.2).
type AudioFormat struct {
	Codec      string // "mulaw", "alaw", "pcm"
	SampleRate int
	Channels   int
	BitDepth   int
}

// TargetFormat is the internal format every session converts inbound
// audio to: linear PCM, 16kHz, mono, 16-bit (spec §4.2).
var TargetFormat = AudioFormat{Codec: "pcm", SampleRate: 16000, Channels: 1, BitDepth: 16}

// BuildConversionPath computes the ordered subset of conversion steps
// needed to take src to TargetFormat, cached once per session (spec §4.2).
func BuildConversionPath(src AudioFormat) []ConversionStep {
	if src == TargetFormat {
		return nil
	}
	var path []ConversionStep
	decoded := false // G.711 decode already yields 16-bit samples
	switch src.Codec {
	case "mulaw":
		path = append(path, StepMuLawToPCM)
		decoded = true
	case "alaw":
		path = append(path, StepALawToPCM)
		decoded = true
	}
	if src.SampleRate != TargetFormat.SampleRate {
		path = append(path, StepResample)
	}
	if !decoded && src.BitDepth != 0 && src.BitDepth != TargetFormat.BitDepth {
		path = append(path, StepBitDepth)
	}
	return path
}

// ApplyPath runs buf through the given conversion path, producing PCM at
// TargetFormat. srcRate/srcBits describe the pre-conversion audio.
func ApplyPath(path []ConversionStep, buf []byte, srcRate, srcBits int) []byte {
	out := buf
	currentBits := srcBits
	if currentBits == 0 {
		currentBits = 8
	}
	for _, step := range path {
		switch step {
		case StepMuLawToPCM:
			out = DecodeULaw(out)
			currentBits = 16
		case StepALawToPCM:
			out = DecodeALaw(out)
			currentBits = 16
		case StepResample:
			out = ResamplePcm(out, srcRate, TargetFormat.SampleRate, currentBits, TargetFormat.BitDepth)
			currentBits = TargetFormat.BitDepth
		case StepBitDepth:
			out = ConvertBitDepth(out, currentBits, TargetFormat.BitDepth)
			currentBits = TargetFormat.BitDepth
		}
	}
	return out
}
