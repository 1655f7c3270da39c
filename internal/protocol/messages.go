package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/avitale/postura/internal/pose"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientFrame  MessageType = "client_frame"
	TypeFrameAck     MessageType = "frame_ack"
	TypePostureEvent MessageType = "posture_event"
	TypeErrorEvent   MessageType = "error_event"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// ClientFrame carries one pose-model observation from the producer.
// The optional client timestamp is informational; the recorder assigns
// the canonical monotonic timestamp on ingestion.
type ClientFrame struct {
	Type  MessageType `json:"type"`
	Seq   int64       `json:"seq"`
	TSMs  int64       `json:"ts_ms,omitempty"`
	Poses []pose.Body `json:"poses"`
}

// FrameAck reports whether a frame entered the recording pipeline and,
// when it did, the global frame index it was assigned.
type FrameAck struct {
	Type       MessageType `json:"type"`
	SessionID  string      `json:"session_id"`
	Seq        int64       `json:"seq"`
	Accepted   bool        `json:"accepted"`
	FrameIndex int64       `json:"frame_index"`
}

// PostureEvent carries the classification verdict for one frame's
// primary body, for live display on the producer side.
type PostureEvent struct {
	Type      MessageType  `json:"type"`
	SessionID string       `json:"session_id"`
	Seq       int64        `json:"seq"`
	Verdict   pose.Verdict `json:"verdict"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Detail    string      `json:"detail"`
}

// ParseClientMessage decodes and validates one inbound websocket
// payload.
func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientFrame:
		var msg ClientFrame
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.Poses == nil {
			return nil, errors.New("invalid client_frame: poses missing")
		}
		for _, body := range msg.Poses {
			if len(body.Landmarks) == 0 {
				return nil, errors.New("invalid client_frame: body without landmarks")
			}
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
