// ABOUTME: Audio type definitions
// ABOUTME: Defines fixed-point samples, gains, frame math and source formats
package audio

import (
	"encoding/binary"
	"math"
)

const (
	// 24-bit audio range constants
	Max24Bit = 8388607  // 2^23 - 1
	Min24Bit = -8388608 // -2^23

	// Channels is the engine's fixed output layout (left, right)
	Channels = 2

	// SampleBytes is the size of one channel sample on the wire
	SampleBytes = 4

	// FrameBytes is the size of one interleaved stereo frame
	FrameBytes = Channels * SampleBytes
)

// Sample is a signed full-scale 32-bit PCM value
type Sample int32

// Fixed is a signed 16.16 fixed-point scalar used for gains
type Fixed int32

const (
	fixedShift = 16

	// FixedOne is unity gain
	FixedOne Fixed = 1 << fixedShift

	// FixedZero mutes a channel
	FixedZero Fixed = 0
)

// FixedFromFloat converts a float gain to 16.16, saturating at the int32 range
func FixedFromFloat(f float64) Fixed {
	v := math.Round(f * float64(FixedOne))
	if v > math.MaxInt32 {
		return Fixed(math.MaxInt32)
	}
	if v < math.MinInt32 {
		return Fixed(math.MinInt32)
	}
	return Fixed(v)
}

// Float returns the gain as a float
func (f Fixed) Float() float64 {
	return float64(f) / float64(FixedOne)
}

// FixedMul scales a sample by a 16.16 gain.
// The product is shifted arithmetically (rounds toward negative infinity)
// and saturates to the Sample range.
func FixedMul(gain Fixed, s Sample) Sample {
	v := (int64(gain) * int64(s)) >> fixedShift
	if v > math.MaxInt32 {
		return Sample(math.MaxInt32)
	}
	if v < math.MinInt32 {
		return Sample(math.MinInt32)
	}
	return Sample(v)
}

// FramesToBytes converts a stereo frame count to bytes
func FramesToBytes(frames int) int {
	return frames * FrameBytes
}

// BytesToFrames converts bytes to whole stereo frames
func BytesToFrames(n int) int {
	return n / FrameBytes
}

// AlignFrames rounds a byte count down to a whole number of frames
func AlignFrames(n int) int {
	return n - n%FrameBytes
}

// ReadSample decodes a little-endian sample from b
func ReadSample(b []byte) Sample {
	return Sample(int32(binary.LittleEndian.Uint32(b)))
}

// PutSample encodes s little-endian into b
func PutSample(b []byte, s Sample) {
	binary.LittleEndian.PutUint32(b, uint32(s))
}

// PutFrame encodes one stereo frame into b
func PutFrame(b []byte, left, right Sample) {
	PutSample(b, left)
	PutSample(b[SampleBytes:], right)
}

// Format describes audio stream format
type Format struct {
	Codec      string
	SampleRate int
	Channels   int
	BitDepth   int
}

// SampleToInt16 converts a 24-bit-range int32 sample to int16 (for 16-bit playback)
func SampleToInt16(sample int32) int16 {
	// Right-shift to convert 24-bit (or 16-bit) to 16-bit range
	return int16(sample >> 8)
}

// SampleFromInt16 converts int16 sample to int32 (left-justified in 24-bit)
func SampleFromInt16(sample int16) int32 {
	// Left-shift to position 16-bit value in upper bits
	return int32(sample) << 8
}

// SampleFrom24 lifts a 24-bit-range value to a full-scale Sample
func SampleFrom24(sample int32) Sample {
	if sample > Max24Bit {
		sample = Max24Bit
	} else if sample < Min24Bit {
		sample = Min24Bit
	}
	return Sample(sample << 8)
}

// SampleTo24 drops a full-scale Sample to the 24-bit range
func SampleTo24(s Sample) int32 {
	return int32(s) >> 8
}

// SampleToFloat32 maps a full-scale Sample to [-1, 1)
func SampleToFloat32(s Sample) float32 {
	return float32(float64(s) / (1 << 31))
}

// SampleTo24Bit converts int32 to 24-bit packed bytes (little-endian)
func SampleTo24Bit(sample int32) [3]byte {
	// Take lower 24 bits, pack little-endian
	return [3]byte{
		byte(sample),
		byte(sample >> 8),
		byte(sample >> 16),
	}
}

// SampleFrom24Bit converts 24-bit packed bytes to int32 (little-endian)
func SampleFrom24Bit(b [3]byte) int32 {
	// Reconstruct 24-bit value and sign-extend to 32-bit
	val := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
	// Sign extend from 24-bit to 32-bit
	if val&0x800000 != 0 {
		val |= ^0xFFFFFF // Set upper 8 bits to 1 for negative values
	}
	return val
}

// MixSaturating adds two samples, clamping at the Sample range
func MixSaturating(a, b Sample) Sample {
	v := int64(a) + int64(b)
	if v > math.MaxInt32 {
		return Sample(math.MaxInt32)
	}
	if v < math.MinInt32 {
		return Sample(math.MinInt32)
	}
	return Sample(v)
}
