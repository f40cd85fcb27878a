// ABOUTME: Shared playback state guarded by a single mutex
// ABOUTME: Written by the control goroutine, read and partly consumed by the render callback
package engine

import (
	"sync"

	"github.com/Resonate-Protocol/resonate-playout/pkg/audio"
	"github.com/Resonate-Protocol/resonate-playout/pkg/audio/ring"
)

// Status holds playback status bits
type Status uint32

const (
	// StatusRunning means render drains the buffer; otherwise it emits silence
	StatusRunning Status = 1 << iota
	// StatusUnderrun is set when a period was short of buffered audio
	StatusUnderrun
)

// Has reports whether all bits in flag are set
func (s Status) Has(flag Status) bool {
	return s&flag == flag
}

func (s Status) String() string {
	switch {
	case s.Has(StatusRunning | StatusUnderrun):
		return "running,underrun"
	case s.Has(StatusRunning):
		return "running"
	case s.Has(StatusUnderrun):
		return "stopped,underrun"
	default:
		return "stopped"
	}
}

// startPoint marks where the next track's first frame entered the buffer
type startPoint struct {
	pos  uint64 // absolute write offset
	rate int
}

// maxStartPoints bounds how many unreached track starts can be queued
const maxStartPoints = 16

// startPoints is a fixed-size FIFO of unreached start points
type startPoints struct {
	items [maxStartPoints]startPoint
	head  int
	count int
}

// push appends p. When full, p replaces the newest entry.
func (q *startPoints) push(p startPoint) {
	if q.count == maxStartPoints {
		q.items[(q.head+q.count-1)%maxStartPoints] = p
		return
	}
	q.items[(q.head+q.count)%maxStartPoints] = p
	q.count++
}

// popReached removes every start point at or before readPos, returning
// the newest removed and how many there were
func (q *startPoints) popReached(readPos uint64) (startPoint, int) {
	var last startPoint
	n := 0
	for q.count > 0 && readPos >= q.items[q.head].pos {
		last = q.items[q.head]
		q.head = (q.head + 1) % maxStartPoints
		q.count--
		n++
	}
	return last, n
}

func (q *startPoints) reset() {
	*q = startPoints{}
}

// PlaybackState is the mutable state shared by the control side and the
// render callback. Every field, the ring buffer included, is guarded by mu.
type PlaybackState struct {
	mu sync.Mutex

	status      Status
	leftGain    audio.Fixed
	rightGain   audio.Fixed
	trackRate   int
	streamRate  int
	desiredRate int // non-zero: a reopen at this rate is pending
	silenceMs   int // requested, not yet converted to frames
	silenceLeft int // frames still to emit at streamRate
	trimBytes   int
	elapsed     uint64
	buf         *ring.Buffer
	marks       startPoints

	// set by render when it changes desiredRate, cleared by the next open
	// or by cancelling the rate; render keeps posting a reopen while set
	reopenWanted bool
}

// NewPlaybackState creates state around a ring buffer of bufferBytes
func NewPlaybackState(bufferBytes int) *PlaybackState {
	return &PlaybackState{
		leftGain:  audio.FixedOne,
		rightGain: audio.FixedOne,
		buf:       ring.New(bufferBytes),
	}
}

// Enqueue copies whole frames from p into the buffer and returns the bytes taken
func (s *PlaybackState) Enqueue(p []byte) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := audio.AlignFrames(len(p))
	if free := audio.AlignFrames(s.buf.Free()); n > free {
		n = free
	}
	return s.buf.Write(p[:n])
}

// SetGain sets per-channel 16.16 gains
func (s *PlaybackState) SetGain(left, right audio.Fixed) {
	s.mu.Lock()
	s.leftGain, s.rightGain = left, right
	s.mu.Unlock()
}

// Gain returns the current per-channel gains
func (s *PlaybackState) Gain() (left, right audio.Fixed) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leftGain, s.rightGain
}

// SetDesiredRate records a pending sink rate; zero cancels a pending change
func (s *PlaybackState) SetDesiredRate(rate int) {
	s.mu.Lock()
	s.desiredRate = rate
	if rate == 0 {
		s.reopenWanted = false
	}
	s.mu.Unlock()
}

// DesiredRate returns the pending sink rate, zero when none
func (s *PlaybackState) DesiredRate() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.desiredRate
}

// takeDesiredRate reads and clears the pending rate. With nothing pending
// it returns the current stream rate, or fallback before any stream opened.
func (s *PlaybackState) takeDesiredRate(fallback int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	rate := s.desiredRate
	s.desiredRate = 0
	s.reopenWanted = false
	if rate == 0 {
		rate = s.streamRate
	}
	if rate == 0 {
		rate = fallback
	}
	return rate
}

// restoreDesiredRate puts back a rate whose open failed, unless a newer
// rate was requested meanwhile
func (s *PlaybackState) restoreDesiredRate(rate int) {
	s.mu.Lock()
	if s.desiredRate == 0 {
		s.desiredRate = rate
	}
	s.mu.Unlock()
}

// setStreamRate records the open session's rate. Silence already counted
// in frames is rescaled to the new rate.
func (s *PlaybackState) setStreamRate(rate int) {
	s.mu.Lock()
	if s.silenceLeft > 0 {
		if rate > 0 && s.streamRate > 0 {
			s.silenceLeft = int(int64(s.silenceLeft) * int64(rate) / int64(s.streamRate))
		} else {
			s.silenceMs += s.pendingSilenceLocked()
			s.silenceLeft = 0
		}
	}
	s.streamRate = rate
	s.mu.Unlock()
}

// StreamRate returns the rate of the open sink session
func (s *PlaybackState) StreamRate() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamRate
}

// TrackRate returns the native rate of the track being played
func (s *PlaybackState) TrackRate() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trackRate
}

// RequestSilence schedules ms of silence ahead of buffered audio
func (s *PlaybackState) RequestSilence(ms int) {
	if ms < 0 {
		ms = 0
	}
	s.mu.Lock()
	s.silenceMs = ms
	s.silenceLeft = 0
	s.mu.Unlock()
}

// RequestTrim schedules n bytes of buffered audio to be skipped, rounded
// down to whole frames
func (s *PlaybackState) RequestTrim(n int) {
	if n < 0 {
		n = 0
	}
	s.mu.Lock()
	s.trimBytes = audio.AlignFrames(n)
	s.mu.Unlock()
}

// PendingTrim returns the trim bytes not yet applied
func (s *PlaybackState) PendingTrim() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trimBytes
}

// PendingSilence returns the silence not yet emitted, in ms
func (s *PlaybackState) PendingSilence() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.silenceMs + s.pendingSilenceLocked()
}

// pendingSilenceLocked converts silenceLeft to ms, rounding up
func (s *PlaybackState) pendingSilenceLocked() int {
	if s.silenceLeft == 0 || s.streamRate == 0 {
		return 0
	}
	return (s.silenceLeft*1000 + s.streamRate - 1) / s.streamRate
}

// MarkStartPoint records that the next frame written starts a track at rate.
// Unreached marks are kept in order, so several short tracks can be queued.
func (s *PlaybackState) MarkStartPoint(rate int) {
	s.mu.Lock()
	s.marks.push(startPoint{pos: s.buf.WriteTotal(), rate: rate})
	s.mu.Unlock()
}

// PendingStartPoints returns how many marks render has not reached yet
func (s *PlaybackState) PendingStartPoints() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.marks.count
}

// ElapsedSamples returns frames delivered or skipped since creation
func (s *PlaybackState) ElapsedSamples() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsed
}

// Status returns the status bits
func (s *PlaybackState) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *PlaybackState) setRunning(running bool) {
	s.mu.Lock()
	if running {
		s.status |= StatusRunning
	} else {
		s.status &^= StatusRunning
	}
	s.mu.Unlock()
}

// Flush drops buffered audio, pending trim and silence, and all unreached
// start points. The elapsed counter is kept.
func (s *PlaybackState) Flush() {
	s.mu.Lock()
	s.buf.Reset()
	s.trimBytes = 0
	s.silenceMs = 0
	s.silenceLeft = 0
	s.marks.reset()
	s.status &^= StatusUnderrun
	s.mu.Unlock()
}

// BufferedBytes returns unread bytes in the ring
func (s *PlaybackState) BufferedBytes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Used()
}

// FreeBytes returns writable bytes in the ring
func (s *PlaybackState) FreeBytes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Free()
}

// Capacity returns the ring size in bytes
func (s *PlaybackState) Capacity() int {
	return s.buf.Cap()
}

// Snapshot is a consistent copy of the state for reporting
type Snapshot struct {
	Status         Status
	LeftGain       audio.Fixed
	RightGain      audio.Fixed
	TrackRate      int
	StreamRate     int
	DesiredRate    int
	PendingSilence int
	PendingTrim    int
	Elapsed        uint64
	Buffered       int
	Capacity       int
}

// Snapshot copies the state under the lock
func (s *PlaybackState) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Status:         s.status,
		LeftGain:       s.leftGain,
		RightGain:      s.rightGain,
		TrackRate:      s.trackRate,
		StreamRate:     s.streamRate,
		DesiredRate:    s.desiredRate,
		PendingSilence: s.silenceMs + s.pendingSilenceLocked(),
		PendingTrim:    s.trimBytes,
		Elapsed:        s.elapsed,
		Buffered:       s.buf.Used(),
		Capacity:       s.buf.Cap(),
	}
}
