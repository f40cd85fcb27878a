// ABOUTME: Remote control message definitions for the playout websocket
// ABOUTME: JSON envelopes carrying hello, status, command and error payloads
package protocol

import (
	"encoding/json"

	"github.com/Resonate-Protocol/resonate-playout/internal/errors"
)

// Version is bumped on incompatible message changes
const Version = 1

// Message types
const (
	TypeClientHello = "client/hello"
	TypeServerHello = "server/hello"
	TypeStatus      = "player/status"
	TypeCommand     = "player/command"
	TypeResult      = "player/result"
	TypeError       = "server/error"
)

// Commands understood by the player
const (
	CommandVolume  = "volume" // Value 0-100
	CommandMute    = "mute"
	CommandUnmute  = "unmute"
	CommandPause   = "pause"
	CommandResume  = "resume"
	CommandSkip    = "skip"    // Value in ms
	CommandSilence = "silence" // Value in ms
	CommandNext    = "next"
	CommandStop    = "stop"
	CommandStatus  = "status" // asks for an immediate status message
)

// Commands lists every command in the order advertised by server/hello
var Commands = []string{
	CommandVolume, CommandMute, CommandUnmute, CommandPause, CommandResume,
	CommandSkip, CommandSilence, CommandNext, CommandStop, CommandStatus,
}

// ErrMalformed is returned for frames that are not a valid envelope
var ErrMalformed = errors.NewStd("malformed message")

// Message is the top-level wrapper for all protocol messages
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Envelope is a received message with its payload left undecoded
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ClientHello is sent by clients to initiate the handshake
type ClientHello struct {
	ClientID string `json:"client_id"`
	Name     string `json:"name"`
	Version  int    `json:"version"`
}

// DeviceInfo contains device identification
type DeviceInfo struct {
	ProductName     string `json:"product_name"`
	Manufacturer    string `json:"manufacturer"`
	SoftwareVersion string `json:"software_version"`
}

// ServerHello is the player's response to client/hello
type ServerHello struct {
	ServerID   string     `json:"server_id"`
	Name       string     `json:"name"`
	Version    int        `json:"version"`
	DeviceInfo DeviceInfo `json:"device_info"`
	Backend    string     `json:"backend"`
	Commands   []string   `json:"commands"`
}

// Track describes the track being fed to the engine
type Track struct {
	Path   string `json:"path"`
	Title  string `json:"title,omitempty"`
	Artist string `json:"artist,omitempty"`
	Album  string `json:"album,omitempty"`
	Index  int    `json:"index"`
	Count  int    `json:"count"`
}

// EngineStats mirrors the engine counters
type EngineStats struct {
	Callbacks       uint64 `json:"callbacks"`
	Underruns       uint64 `json:"underruns"`
	Reopens         uint64 `json:"reopens"`
	OpenFailures    uint64 `json:"open_failures"`
	DroppedRequests uint64 `json:"dropped_requests"`
	TracksStarted   uint64 `json:"tracks_started"`
	TrimmedFrames   uint64 `json:"trimmed_frames"`
}

// Status reports the player state. Sent periodically and after commands.
type Status struct {
	State      string      `json:"state"` // "playing", "paused" or "idle"
	Volume     int         `json:"volume"`
	Muted      bool        `json:"muted"`
	Track      *Track      `json:"track,omitempty"`
	StreamRate int         `json:"stream_rate"`
	TrackRate  int         `json:"track_rate"`
	ElapsedMs  int64       `json:"elapsed_ms"`
	Buffered   int         `json:"buffered_bytes"`
	Capacity   int         `json:"capacity_bytes"`
	Underrun   bool        `json:"underrun"`
	Stats      EngineStats `json:"stats"`
}

// BufferPercent is the ring fill level, 0-100
func (s Status) BufferPercent() int {
	if s.Capacity <= 0 {
		return 0
	}
	return s.Buffered * 100 / s.Capacity
}

// Command is a control request from a remote client
type Command struct {
	ID      string `json:"id,omitempty"` // echoed in the Result
	Command string `json:"command"`
	Value   int    `json:"value,omitempty"`
}

// Result answers one Command with the status after applying it
type Result struct {
	ID     string `json:"id,omitempty"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
	Status Status `json:"status"`
}

// Error reports a message the server could not act on
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	CodeMalformed   = "malformed"
	CodeUnexpected  = "unexpected_message"
	CodeDuplicateID = "duplicate_client_id"
)

// Encode wraps payload in an envelope of type msgType
func Encode(msgType string, payload any) ([]byte, error) {
	data, err := json.Marshal(Message{Type: msgType, Payload: payload})
	if err != nil {
		return nil, errors.New(err).
			Component("protocol").
			Category(errors.CategoryValidation).
			Context("type", msgType).
			Build()
	}
	return data, nil
}

// Decode parses an envelope, leaving the payload for DecodePayload
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return env, errors.New(errors.Join(ErrMalformed, err)).
			Component("protocol").
			Category(errors.CategoryValidation).
			Build()
	}
	if env.Type == "" {
		return env, errors.Newf("missing type: %w", ErrMalformed).
			Component("protocol").
			Category(errors.CategoryValidation).
			Build()
	}
	return env, nil
}

// DecodePayload unmarshals the envelope payload into v
func (e Envelope) DecodePayload(v any) error {
	if len(e.Payload) == 0 {
		return errors.Newf("%s has no payload: %w", e.Type, ErrMalformed).
			Component("protocol").
			Category(errors.CategoryValidation).
			Build()
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return errors.New(errors.Join(ErrMalformed, err)).
			Component("protocol").
			Category(errors.CategoryValidation).
			Context("type", e.Type).
			Build()
	}
	return nil
}
