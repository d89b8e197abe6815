package protocol

import (
	"encoding/json"

	"ptzctl/internal/ptz"
)

// Message types
const (
	TypePing         = "ping"
	TypePong         = "pong"
	TypeStatus       = "status"
	TypePose         = "pose"
	TypeResult       = "result"
	TypeMoveRelative = "ptz_move_relative"
	TypeMoveAbsolute = "ptz_move_absolute"
	TypePTZStop      = "ptz_stop"
	TypePTZOrigin    = "ptz_origin"
	TypePTZHome      = "ptz_home"
	TypePTZPreset    = "ptz_preset"
	TypeError        = "error"
)

// Error codes
const (
	ErrDeviceUnavailable   = "DEVICE_UNAVAILABLE"
	ErrAxisBusy            = "AXIS_BUSY"
	ErrOutOfRange          = "OUT_OF_RANGE"
	ErrCalibrationRequired = "CALIBRATION_REQUIRED"
	ErrCancelled           = "CANCELLED"
	ErrPresetNotFound      = "PRESET_NOT_FOUND"
	ErrInvalidMessage      = "INVALID_MESSAGE"
	ErrInternal            = "INTERNAL"
)

// Message is the base envelope for all WebSocket messages. ID is chosen by the
// client and echoed on the result or error that answers it.
type Message struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// PingPayload for ping messages
type PingPayload struct {
	Timestamp int64 `json:"timestamp"`
}

// PongPayload for pong messages
type PongPayload struct {
	ClientTimestamp int64 `json:"client_timestamp"`
	ServerTimestamp int64 `json:"server_timestamp"`
}

// StatusPayload for status messages
type StatusPayload struct {
	ptz.Status
	ControlProtocol string `json:"control_protocol"`
}

// PosePayload is pushed after every committed move
type PosePayload struct {
	Pose ptz.Pose `json:"pose"`
}

// MoveRelativePayload moves one axis by Delta
type MoveRelativePayload struct {
	Axis     string  `json:"axis"`
	Delta    float64 `json:"delta"`
	Blocking bool    `json:"blocking"`
}

// MoveAbsolutePayload moves to a partial pose
type MoveAbsolutePayload struct {
	ptz.Target
	Blocking bool `json:"blocking"`
}

// StopPayload stops the named axes, or everything when empty
type StopPayload struct {
	Axes []string `json:"axes,omitempty"`
}

// OriginPayload for hard origin requests
type OriginPayload struct {
	Blocking bool `json:"blocking"`
}

// PTZPresetPayload for preset save/recall/delete
type PTZPresetPayload struct {
	Action string `json:"action"` // "save", "recall" or "delete"
	Name   string `json:"name"`
}

// ErrorPayload for error messages
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewMessage creates a new message with the given type and payload
func NewMessage(msgType string, payload any) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		Type:    msgType,
		Payload: data,
	}, nil
}

// ParsePayload unmarshals the payload into the given struct. An absent payload
// leaves v untouched.
func (m *Message) ParsePayload(v any) error {
	if len(m.Payload) == 0 || string(m.Payload) == "null" {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}
