// ABOUTME: File sink that records each session to a WAV file on a software clock
// ABOUTME: Sessions can end themselves after a maximum duration, like a device going away
package output

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/Resonate-Protocol/resonate-playout/internal/errors"
	"github.com/Resonate-Protocol/resonate-playout/pkg/audio"
)

// WAVFileConfig configures the file sink
type WAVFileConfig struct {
	Dir      string
	Prefix   string // file name prefix, "playout" when empty
	BitDepth int    // 16, 24 or 32; 24 when zero

	// Realtime paces periods against the wall clock. Otherwise periods are
	// rendered back to back.
	Realtime bool

	// MaxDuration ends a session on its own once this much audio is written
	MaxDuration time.Duration
}

// WAVFile writes every opened session to its own file named
// <prefix>-<session>-<rate>hz.wav
type WAVFile struct {
	cfg WAVFileConfig

	mu      sync.Mutex
	session int
	files   []string
}

// NewWAVFile creates a file sink
func NewWAVFile(cfg WAVFileConfig) *WAVFile {
	if cfg.Prefix == "" {
		cfg.Prefix = "playout"
	}
	if cfg.BitDepth == 0 {
		cfg.BitDepth = 24
	}
	if cfg.Dir == "" {
		cfg.Dir = "."
	}
	return &WAVFile{cfg: cfg}
}

// Name identifies the backend
func (w *WAVFile) Name() string {
	return "wav"
}

// Files returns the paths written so far, oldest first
func (w *WAVFile) Files() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.files...)
}

// Open creates the session's file and encoder
func (w *WAVFile) Open(cfg StreamConfig, cb Callbacks) (Stream, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cb.validate(); err != nil {
		return nil, err
	}
	switch w.cfg.BitDepth {
	case 16, 24, 32:
	default:
		return nil, errors.New(ErrInvalidConfig).
			Component("output").
			Category(errors.CategoryValidation).
			Context("bit_depth", w.cfg.BitDepth).
			Build()
	}

	w.mu.Lock()
	w.session++
	name := fmt.Sprintf("%s-%03d-%dhz.wav", w.cfg.Prefix, w.session, cfg.SampleRate)
	w.mu.Unlock()

	path := filepath.Join(w.cfg.Dir, name)
	if err := os.MkdirAll(w.cfg.Dir, 0o755); err != nil {
		return nil, errors.New(err).
			Component("output").
			Category(errors.CategoryFileIO).
			Context("dir", w.cfg.Dir).
			Build()
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.New(err).
			Component("output").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}

	w.mu.Lock()
	w.files = append(w.files, path)
	w.mu.Unlock()

	period := cfg.PeriodFrames
	if period == 0 {
		period = cfg.SampleRate / 100
	}
	var maxFrames int64
	if w.cfg.MaxDuration > 0 {
		maxFrames = int64(w.cfg.MaxDuration) * int64(cfg.SampleRate) / int64(time.Second)
	}

	s := &wavStream{
		file:      f,
		enc:       wav.NewEncoder(f, cfg.SampleRate, w.cfg.BitDepth, audio.Channels, 1),
		cb:        cb,
		rate:      cfg.SampleRate,
		bitDepth:  w.cfg.BitDepth,
		period:    period,
		maxFrames: maxFrames,
		realtime:  w.cfg.Realtime,
		out:       make([]byte, audio.FramesToBytes(period)),
		pcm: &goaudio.IntBuffer{
			Data:           make([]int, period*audio.Channels),
			Format:         &goaudio.Format{SampleRate: cfg.SampleRate, NumChannels: audio.Channels},
			SourceBitDepth: w.cfg.BitDepth,
		},
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	return s, nil
}

type wavStream struct {
	file      *os.File
	enc       *wav.Encoder
	cb        Callbacks
	rate      int
	bitDepth  int
	period    int
	maxFrames int64
	realtime  bool

	out []byte
	pcm *goaudio.IntBuffer

	startOnce sync.Once
	closeOnce sync.Once
	started   bool
	stop      chan struct{}
	done      chan struct{}
	err       error
}

func (s *wavStream) SampleRate() int {
	return s.rate
}

func (s *wavStream) Start() error {
	select {
	case <-s.stop:
		return ErrSinkClosed
	default:
	}
	s.startOnce.Do(func() {
		s.started = true
		go s.run()
	})
	return nil
}

func (s *wavStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.stop)
		if s.started {
			<-s.done
		} else {
			s.err = s.finalize()
		}
	})
	return s.err
}

// run is the session's render goroutine
func (s *wavStream) run() {
	defer close(s.done)

	var ticker *time.Ticker
	if s.realtime {
		ticker = time.NewTicker(time.Duration(s.period) * time.Second / time.Duration(s.rate))
		defer ticker.Stop()
	}

	var written int64
	for {
		if ticker != nil {
			select {
			case <-s.stop:
				s.err = s.finalize()
				return
			case <-ticker.C:
			}
		} else {
			select {
			case <-s.stop:
				s.err = s.finalize()
				return
			default:
			}
		}

		frames := s.period
		if s.maxFrames > 0 && s.maxFrames-written < int64(frames) {
			frames = int(s.maxFrames - written)
		}
		out := s.out[:audio.FramesToBytes(frames)]
		res := s.cb.Render(out, frames)

		if err := s.write(out, frames); err != nil {
			s.err = err
			s.endOnItsOwn()
			return
		}
		written += int64(frames)

		if res == Complete || (s.maxFrames > 0 && written >= s.maxFrames) {
			s.endOnItsOwn()
			return
		}
	}
}

// endOnItsOwn closes the file and reports the session end unless Close
// is already underway
func (s *wavStream) endOnItsOwn() {
	if err := s.finalize(); err != nil && s.err == nil {
		s.err = err
	}
	select {
	case <-s.stop:
		return
	default:
	}
	if s.cb.Finished != nil {
		s.cb.Finished()
	}
}

func (s *wavStream) write(out []byte, frames int) error {
	shift := 32 - s.bitDepth
	n := frames * audio.Channels
	for i := 0; i < n; i++ {
		s.pcm.Data[i] = int(int32(audio.ReadSample(out[i*audio.SampleBytes:])) >> shift)
	}
	buf := s.pcm
	if n < len(buf.Data) {
		buf = &goaudio.IntBuffer{Data: buf.Data[:n], Format: buf.Format, SourceBitDepth: buf.SourceBitDepth}
	}
	if err := s.enc.Write(buf); err != nil {
		return errors.New(err).
			Component("output").
			Category(errors.CategoryFileIO).
			Context("path", s.file.Name()).
			Build()
	}
	return nil
}

func (s *wavStream) finalize() error {
	var errs []error
	if s.enc != nil {
		if err := s.enc.Close(); err != nil {
			errs = append(errs, err)
		}
		s.enc = nil
	}
	if s.file != nil {
		if err := s.file.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.New(errors.Join(errs...)).
			Component("output").
			Category(errors.CategoryFileIO).
			Build()
	}
	return nil
}
