// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines fixed-point samples, gains, frame math and Format
// Package audio provides fundamental audio types shared by the playout engine.
//
// The engine moves interleaved stereo frames of full-scale signed 32-bit
// samples (little-endian, left then right). Gains are 16.16 fixed point:
//
//	gain := audio.FixedFromFloat(0.5)
//	out := audio.FixedMul(gain, in) // arithmetic shift, saturating
//
// Decoders keep the 24-bit-in-int32 convention; SampleFrom24 lifts such a
// value to a full-scale Sample.
package audio
