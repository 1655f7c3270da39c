package protocol

import (
	"errors"
	"testing"
)

func TestParseClientFrame(t *testing.T) {
	raw := []byte(`{
		"type": "client_frame",
		"seq": 7,
		"ts_ms": 1700000000000,
		"poses": [{"landmarks": [{"x": 0.5, "y": 0.25, "z": 0.1, "visibility": 0.9}]}]
	}`)

	parsed, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	msg, ok := parsed.(ClientFrame)
	if !ok {
		t.Fatalf("parsed type = %T, want ClientFrame", parsed)
	}
	if msg.Seq != 7 || len(msg.Poses) != 1 || len(msg.Poses[0].Landmarks) != 1 {
		t.Fatalf("unexpected frame: %+v", msg)
	}
	kp := msg.Poses[0].Landmarks[0]
	if kp.X != 0.5 || kp.Visibility == nil || *kp.Visibility != 0.9 {
		t.Fatalf("unexpected keypoint: %+v", kp)
	}
	if kp.Presence != nil {
		t.Fatalf("Presence = %v, want nil when omitted", *kp.Presence)
	}
}

func TestParseClientFrameEmptyPoses(t *testing.T) {
	parsed, err := ParseClientMessage([]byte(`{"type": "client_frame", "poses": []}`))
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	msg := parsed.(ClientFrame)
	if len(msg.Poses) != 0 {
		t.Fatalf("poses = %v, want empty", msg.Poses)
	}
}

func TestParseClientMessageRejects(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"garbage", `not json`},
		{"unknown type", `{"type": "client_audio_chunk"}`},
		{"missing poses", `{"type": "client_frame"}`},
		{"empty body", `{"type": "client_frame", "poses": [{"landmarks": []}]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseClientMessage([]byte(tc.raw)); err == nil {
				t.Fatalf("ParseClientMessage(%q) error = nil, want error", tc.raw)
			}
		})
	}

	_, err := ParseClientMessage([]byte(`{"type": "frame_ack"}`))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("server-only type error = %v, want ErrUnsupportedType", err)
	}
}
