//go:build !oto

// ABOUTME: Oto stub when the oto build tag is not set
// ABOUTME: Provides compile-time placeholder when ALSA development headers are not installed
package output

// Oto sink (stub)
type Oto struct{}

// NewOto creates a new Oto sink
func NewOto() *Oto {
	return &Oto{}
}

// Name identifies the backend
func (o *Oto) Name() string {
	return "oto"
}

// Open reports that oto support is not compiled in (build with -tags oto)
func (o *Oto) Open(StreamConfig, Callbacks) (Stream, error) {
	return nil, ErrBackendUnavailable
}
