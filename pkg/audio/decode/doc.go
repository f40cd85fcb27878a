// ABOUTME: Streaming decoders that feed the playout engine
// ABOUTME: MP3, FLAC, WAV, Ogg Opus, raw PCM and a test tone behind one Source interface
// Package decode turns encoded audio into interleaved int32 samples.
//
// Every source reports its native sample rate and channel count; the
// engine reopens its sink when a track's rate differs from the current
// session. Samples use the 24-bit-in-int32 convention: 16-bit input is
// shifted left by 8, 24-bit input is used as is.
//
// Example:
//
//	src, err := decode.Open("track.flac")
//	if err != nil {
//		return err
//	}
//	defer src.Close()
//	n, err := src.Read(samples)
package decode
