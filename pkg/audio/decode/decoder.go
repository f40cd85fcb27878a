// ABOUTME: Streaming source interface shared by every decoder
// ABOUTME: Opens local files by extension or HTTP MP3 streams by URL
package decode

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/Resonate-Protocol/resonate-playout/internal/errors"
	"github.com/Resonate-Protocol/resonate-playout/pkg/audio"
)

// ErrUnsupportedFormat is returned by Open for unknown extensions
var ErrUnsupportedFormat = errors.NewStd("unsupported audio format")

// Source yields interleaved PCM in the 24-bit-in-int32 convention.
// Read fills whole frames only and returns io.EOF once exhausted.
type Source interface {
	Read(samples []int32) (int, error)
	SampleRate() int
	Channels() int
	Metadata() Metadata
	Close() error
}

// Metadata describes what a source is playing
type Metadata struct {
	Title  string
	Artist string
	Album  string
}

// CDFormat is assumed for headerless .pcm and .raw files
var CDFormat = audio.Format{Codec: "pcm", SampleRate: 44100, Channels: 2, BitDepth: 16}

// Open opens a local file or an http(s) MP3 stream
func Open(path string) (Source, error) {
	return OpenContext(context.Background(), path)
}

// OpenContext is Open with a context bounding the HTTP request
func OpenContext(ctx context.Context, path string) (Source, error) {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return openURL(ctx, path)
	}

	f, err := os.Open(path)
	if err != nil {
		category := errors.CategoryFileIO
		if os.IsNotExist(err) {
			category = errors.CategoryNotFound
		}
		return nil, errors.New(err).
			Component("decode").
			Category(category).
			Context("path", path).
			Build()
	}

	meta := Metadata{Title: titleFromPath(path)}
	ext := strings.ToLower(filepath.Ext(path))

	var src Source
	switch ext {
	case ".mp3":
		src, err = NewMP3(f, meta)
	case ".flac":
		src, err = NewFLAC(f, meta)
	case ".wav", ".wave":
		src, err = NewWAV(f, meta)
	case ".opus":
		src, err = NewOpus(f, meta)
	case ".pcm", ".raw":
		src, err = NewPCM(f, CDFormat, meta)
	default:
		err = errors.New(ErrUnsupportedFormat).
			Component("decode").
			Category(errors.CategoryValidation).
			Context("extension", ext).
			Build()
	}
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return src, nil
}

func openURL(ctx context.Context, url string) (Source, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.New(err).
			Component("decode").
			Category(errors.CategoryValidation).
			Context("url", url).
			Build()
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, errors.New(err).
			Component("decode").
			Category(errors.CategoryNetwork).
			Context("url", url).
			Build()
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, errors.Newf("http status %s", resp.Status).
			Component("decode").
			Category(errors.CategoryNetwork).
			Context("url", url).
			Build()
	}

	src, err := NewMP3(resp.Body, Metadata{Title: "HTTP Stream", Artist: url})
	if err != nil {
		_ = resp.Body.Close()
		return nil, err
	}
	return src, nil
}

func titleFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// wholeFrames trims a sample count to complete frames
func wholeFrames(n, channels int) int {
	return n - n%channels
}

// decodeError wraps a codec failure during Read, passing io.EOF through
func decodeError(err error, codec string) error {
	if err == io.EOF {
		return err
	}
	return openError(err, codec)
}

// openError wraps a failure to set up a codec; an early EOF means the
// input was empty or truncated
func openError(err error, codec string) error {
	return errors.New(err).
		Component("decode").
		Category(errors.CategoryDecode).
		Context("codec", codec).
		Build()
}
