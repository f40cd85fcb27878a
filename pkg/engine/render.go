// ABOUTME: Real-time render callback invoked by the sink once per period
// ABOUTME: Applies silence, trim and gain, tracks underruns and requests rate changes
package engine

import (
	"sync/atomic"

	"github.com/Resonate-Protocol/resonate-playout/pkg/audio"
	"github.com/Resonate-Protocol/resonate-playout/pkg/audio/mqueue"
	"github.com/Resonate-Protocol/resonate-playout/pkg/audio/output"
)

// silenceDustMs is the pending silence below which the remainder is dropped
const silenceDustMs = 2

// Mixer overlays supplementary audio onto a rendered period in place.
// It runs on the render goroutine after the state lock is released.
type Mixer interface {
	Mix(out []byte, n int)
}

// counters are updated by render and the lifecycle manager without locks
type counters struct {
	callbacks     atomic.Uint64
	underruns     atomic.Uint64
	reopens       atomic.Uint64
	openFailures  atomic.Uint64
	droppedPosts  atomic.Uint64
	tracksStarted atomic.Uint64
	trimmedFrames atomic.Uint64
}

// Renderer drains PlaybackState into sink periods.
// Render must not be called concurrently with itself.
type Renderer struct {
	state    *PlaybackState
	requests *mqueue.Channel
	mixer    Mixer
	stats    *counters
}

// NewRenderer creates a renderer over state. requests and mixer may be nil.
func NewRenderer(state *PlaybackState, requests *mqueue.Channel, mixer Mixer) *Renderer {
	return &Renderer{
		state:    state,
		requests: requests,
		mixer:    mixer,
		stats:    &counters{},
	}
}

// Render fills out with one period of frames. It never blocks on anything
// but the state lock, never allocates and always returns output.Continue.
func (r *Renderer) Render(out []byte, frames int) output.Result {
	n := audio.FramesToBytes(frames)
	if n > len(out) {
		n = audio.AlignFrames(len(out))
	}
	out = out[:n]
	r.stats.callbacks.Add(1)

	if r.fill(out) {
		r.postReopen()
	}

	if r.mixer != nil {
		r.mixer.Mix(out, len(out))
	}
	return output.Continue
}

// fill runs the locked part of a period and reports whether a reopen
// request still needs posting
func (r *Renderer) fill(out []byte) bool {
	s := r.state
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.status.Has(StatusRunning) {
		clear(out)
		return false
	}

	rest := out

	if s.silenceMs > 0 && s.streamRate > 0 {
		s.silenceLeft = s.silenceMs * s.streamRate / 1000
		s.silenceMs = 0
	}
	if s.silenceLeft > 0 {
		add := audio.FramesToBytes(s.silenceLeft)
		if add > len(rest) {
			add = len(rest)
		}
		clear(rest[:add])
		rest = rest[add:]
		s.silenceLeft -= audio.BytesToFrames(add)
		if s.silenceLeft < silenceDustMs*s.streamRate/1000 {
			s.silenceLeft = 0
		}
		if len(rest) == 0 {
			return s.reopenWanted
		}
	}

	used := s.buf.Used()

	// trim only when what is left still covers this period
	if s.trimBytes > 0 && used >= len(rest) {
		skip := used - len(rest)
		if skip > s.trimBytes {
			skip = s.trimBytes
		}
		for skip > 0 {
			step := s.buf.BytesUntilReadWrap()
			if step > skip {
				step = skip
			}
			s.buf.AdvanceRead(step)
			s.trimBytes -= step
			s.elapsed += uint64(audio.BytesToFrames(step))
			r.stats.trimmedFrames.Add(uint64(audio.BytesToFrames(step)))
			used -= step
			skip -= step
		}
	}

	avail := used
	if avail > len(rest) {
		avail = len(rest)
	}

	if avail == 0 {
		s.status |= StatusUnderrun
		r.stats.underruns.Add(1)
		clear(rest)
		return s.reopenWanted
	}
	if avail < len(rest) {
		s.status |= StatusUnderrun
		r.stats.underruns.Add(1)
		clear(rest[avail:])
	} else {
		s.status &^= StatusUnderrun
	}

	dst := rest[:avail]
	for len(dst) > 0 {
		src := s.buf.Readable()
		m := len(src)
		if m > len(dst) {
			m = len(dst)
		}
		for i := 0; i < m; i += audio.FrameBytes {
			audio.PutSample(dst[i:], audio.FixedMul(s.leftGain, audio.ReadSample(src[i:])))
			audio.PutSample(dst[i+audio.SampleBytes:], audio.FixedMul(s.rightGain, audio.ReadSample(src[i+audio.SampleBytes:])))
		}
		s.buf.AdvanceRead(m)
		s.elapsed += uint64(audio.BytesToFrames(m))
		dst = dst[m:]
	}

	// a period can cross several short tracks; the last one started wins
	if mark, n := s.marks.popReached(s.buf.ReadTotal()); n > 0 {
		s.trackRate = mark.rate
		r.stats.tracksStarted.Add(uint64(n))
		if s.trackRate > 0 && s.trackRate != s.streamRate {
			s.desiredRate = s.trackRate
			s.reopenWanted = true
		}
	}
	return s.reopenWanted
}

// postReopen asks the control goroutine to reopen the sink. Nothing is
// posted while a request is in flight; the next period retries.
func (r *Renderer) postReopen() {
	if r.requests == nil || r.requests.Pending() > 0 {
		return
	}
	if !r.requests.TryPost(mqueue.Reopen) {
		r.stats.droppedPosts.Add(1)
	}
}
