//go:build !cgo

// ABOUTME: Malgo stub when cgo is disabled
// ABOUTME: Keeps the sink registry compiling; every call reports the backend as unavailable
package output

// Malgo sink (stub)
type Malgo struct{}

// NewMalgo creates a new Malgo sink
func NewMalgo() *Malgo {
	return &Malgo{}
}

// Name identifies the backend
func (m *Malgo) Name() string {
	return "malgo"
}

// Open reports that malgo needs cgo
func (m *Malgo) Open(StreamConfig, Callbacks) (Stream, error) {
	return nil, ErrBackendUnavailable
}

// ListDevices reports that malgo needs cgo
func (m *Malgo) ListDevices() ([]DeviceInfo, error) {
	return nil, ErrBackendUnavailable
}

// Close releases resources
func (m *Malgo) Close() error {
	return nil
}
