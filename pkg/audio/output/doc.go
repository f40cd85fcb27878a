// ABOUTME: Audio output package for pull-based playback sinks
// ABOUTME: Provides the Sink/Stream boundary plus malgo, oto and WAV file backends
// Package output provides pull-based audio sinks.
//
// A sink opens a Stream at a fixed sample rate and calls the installed
// render callback once per period from its own goroutine, never
// concurrently. When the backend ends a session by itself it calls
// Finished; sessions ended through Close do not.
//
// Example:
//
//	sink := output.NewMalgo()
//	stream, err := sink.Open(output.StreamConfig{SampleRate: 48000}, output.Callbacks{
//		Render:   render,
//		Finished: onFinished,
//	})
//	err = stream.Start()
//
// The malgo backend needs cgo. The oto backend is built with -tags oto.
package output
