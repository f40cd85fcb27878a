// ABOUTME: io.Reader adapter that drives a render callback for reader-pulled backends
// ABOUTME: Renders S32 frames in place and converts them to float32 little-endian
package output

import (
	"encoding/binary"
	"io"
	"math"
	"sync/atomic"

	"github.com/Resonate-Protocol/resonate-playout/pkg/audio"
)

// renderReader turns pull reads into render periods.
// A float32 stereo frame has the same size as an S32 one, so each read is
// rendered directly into p and converted in place.
type renderReader struct {
	render     RenderFunc
	onComplete func()
	completed  atomic.Bool
}

func newRenderReader(render RenderFunc, onComplete func()) *renderReader {
	return &renderReader{render: render, onComplete: onComplete}
}

func (r *renderReader) Read(p []byte) (int, error) {
	if r.completed.Load() {
		return 0, io.EOF
	}

	frames := audio.BytesToFrames(len(p))
	if frames == 0 {
		clear(p)
		return len(p), nil
	}
	n := audio.FramesToBytes(frames)
	out := p[:n]

	res := r.render(out, frames)
	toFloat32LE(out)

	if res == Complete && !r.completed.Swap(true) && r.onComplete != nil {
		go r.onComplete()
	}
	return n, nil
}

// toFloat32LE rewrites S32LE samples in b as float32LE
func toFloat32LE(b []byte) {
	for i := 0; i+audio.SampleBytes <= len(b); i += audio.SampleBytes {
		f := audio.SampleToFloat32(audio.ReadSample(b[i:]))
		binary.LittleEndian.PutUint32(b[i:], math.Float32bits(f))
	}
}
