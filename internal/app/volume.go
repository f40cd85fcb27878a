// ABOUTME: Volume and mute mapping onto engine gain
// ABOUTME: Volume is a 0-100 percentage applied equally to both channels
package app

import "github.com/Resonate-Protocol/resonate-playout/pkg/audio"

// clampVolume keeps v within 0-100
func clampVolume(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// volumeGain converts a volume percentage to a fixed-point gain
func volumeGain(volume int, muted bool) audio.Fixed {
	if muted {
		return 0
	}
	return audio.FixedFromFloat(float64(clampVolume(volume)) / 100.0)
}
