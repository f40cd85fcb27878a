// ABOUTME: Tests for audio types
// ABOUTME: Tests fixed-point gain math and sample conversion functions
package audio

import (
	"math"
	"testing"
)

func TestFixedMul(t *testing.T) {
	tests := []struct {
		name     string
		gain     Fixed
		input    Sample
		expected Sample
	}{
		{"unity", FixedOne, 123456, 123456},
		{"unity negative", FixedOne, -123456, -123456},
		{"mute", FixedZero, 987654, 0},
		{"half", FixedOne / 2, 1000, 500},
		{"half odd floors", FixedOne / 2, 1001, 500},
		{"half negative odd floors", FixedOne / 2, -1001, -501},
		{"double", 2 * FixedOne, 1 << 20, 1 << 21},
		{"saturate high", 4 * FixedOne, math.MaxInt32 / 2, math.MaxInt32},
		{"saturate low", 4 * FixedOne, math.MinInt32 / 2, math.MinInt32},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := FixedMul(tt.gain, tt.input)
			if result != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, result)
			}
		})
	}
}

func TestFixedMulLinear(t *testing.T) {
	// Doubling the gain doubles every sample that stays in range
	gain := FixedFromFloat(0.3)
	for _, s := range []Sample{0, 1 << 10, -(1 << 10), 123456789, -123456789} {
		single := FixedMul(gain, s)
		double := FixedMul(2*gain, s)
		diff := int64(double) - 2*int64(single)
		if diff < 0 || diff > 1 {
			t.Errorf("sample %d: single=%d double=%d (rounding diff %d)", s, single, double, diff)
		}
	}
}

func TestFixedFromFloat(t *testing.T) {
	if FixedFromFloat(1.0) != FixedOne {
		t.Errorf("expected unity, got %d", FixedFromFloat(1.0))
	}
	if got := FixedFromFloat(0.5).Float(); got != 0.5 {
		t.Errorf("expected 0.5, got %f", got)
	}
	if FixedFromFloat(1e12) != Fixed(math.MaxInt32) {
		t.Error("expected saturation for huge gain")
	}
}

func TestFrameMath(t *testing.T) {
	if FramesToBytes(256) != 2048 {
		t.Errorf("expected 2048 bytes, got %d", FramesToBytes(256))
	}
	if BytesToFrames(3072) != 384 {
		t.Errorf("expected 384 frames, got %d", BytesToFrames(3072))
	}
	if AlignFrames(1027) != 1024 {
		t.Errorf("expected 1024, got %d", AlignFrames(1027))
	}
}

func TestFrameEncoding(t *testing.T) {
	b := make([]byte, FrameBytes)
	PutFrame(b, -2, 0x01020304)

	if ReadSample(b) != -2 {
		t.Errorf("left: expected -2, got %d", ReadSample(b))
	}
	if ReadSample(b[SampleBytes:]) != 0x01020304 {
		t.Errorf("right: expected 0x01020304, got %#x", ReadSample(b[SampleBytes:]))
	}
	if b[4] != 0x04 || b[7] != 0x01 {
		t.Errorf("expected little-endian layout, got %v", b)
	}
}

func TestSampleFrom24(t *testing.T) {
	tests := []struct {
		name     string
		input    int32
		expected Sample
	}{
		{"zero", 0, 0},
		{"positive", 100, 100 << 8},
		{"max", Max24Bit, Max24Bit << 8},
		{"min", Min24Bit, Min24Bit << 8},
		{"clamped", Max24Bit + 10, Max24Bit << 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SampleFrom24(tt.input)
			if result != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, result)
			}
			if tt.input >= Min24Bit && tt.input <= Max24Bit && SampleTo24(result) != tt.input {
				t.Errorf("round-trip failed: %d -> %d", tt.input, SampleTo24(result))
			}
		})
	}
}

func TestSampleInt16Conversions(t *testing.T) {
	for _, original := range []int16{0, 100, -100, 32767, -32768} {
		if got := SampleToInt16(SampleFromInt16(original)); got != original {
			t.Errorf("round-trip failed: %d -> %d", original, got)
		}
	}
}

func TestSample24BitPacking(t *testing.T) {
	tests := []struct {
		name  string
		value int32
		bytes [3]byte
	}{
		{"zero", 0, [3]byte{0, 0, 0}},
		{"positive", 0x123456, [3]byte{0x56, 0x34, 0x12}},
		{"negative", -256, [3]byte{0x00, 0xFF, 0xFF}},
		{"min", Min24Bit, [3]byte{0x00, 0x00, 0x80}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SampleTo24Bit(tt.value); got != tt.bytes {
				t.Errorf("pack: expected %v, got %v", tt.bytes, got)
			}
			if got := SampleFrom24Bit(tt.bytes); got != tt.value {
				t.Errorf("unpack: expected %d, got %d", tt.value, got)
			}
		})
	}
}

func TestMixSaturating(t *testing.T) {
	if MixSaturating(math.MaxInt32, 10) != math.MaxInt32 {
		t.Error("expected positive saturation")
	}
	if MixSaturating(math.MinInt32, -10) != math.MinInt32 {
		t.Error("expected negative saturation")
	}
	if MixSaturating(5, -7) != -2 {
		t.Error("expected plain sum")
	}
}

func TestSampleToFloat32(t *testing.T) {
	if SampleToFloat32(0) != 0 {
		t.Error("expected 0")
	}
	if SampleToFloat32(math.MinInt32) != -1 {
		t.Errorf("expected -1, got %f", SampleToFloat32(math.MinInt32))
	}
}
