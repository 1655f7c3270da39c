package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/avitale/postura/internal/pose"
	"github.com/avitale/postura/internal/protocol"
)

// handleFramesWS is the producer-facing ingest endpoint. The producer
// streams client_frame messages at camera rate; for each one the server
// classifies the primary body, hands the frame to the recorder, and
// answers with a frame_ack plus a posture_event when a verdict exists.
// The connection is independent of the session lifecycle: frames that
// arrive while no session is recording are acked as not accepted.
func (s *Server) handleFramesWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.SessionEvents.WithLabelValues("ws_connected").Inc()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	outbound := make(chan any, 256)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-outbound:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(msg); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	conn.SetReadLimit(2 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			s.sendWS(outbound, protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: s.recorder.SessionID(),
				Code:      "invalid_client_message",
				Detail:    err.Error(),
			}, protocol.TypeErrorEvent)
			continue
		}

		frame, ok := parsed.(protocol.ClientFrame)
		if !ok {
			continue
		}
		s.metrics.WSMessages.WithLabelValues("inbound", string(protocol.TypeClientFrame)).Inc()
		s.handleClientFrame(frame, outbound)

		if ctx.Err() != nil {
			break
		}
	}

	cancel()
	<-writerDone
	s.metrics.SessionEvents.WithLabelValues("ws_disconnected").Inc()
}

func (s *Server) handleClientFrame(msg protocol.ClientFrame, outbound chan<- any) {
	width, height := s.recorder.ImageSize()
	frame := pose.Frame{Bodies: msg.Poses}

	var verdict *pose.Verdict
	if body, ok := frame.Primary(); ok {
		if v, ok := pose.Classify(body, float64(width), float64(height)); ok {
			verdict = &v
			s.metrics.Verdicts.WithLabelValues(string(v.Posture)).Inc()
		}
	}

	frameIndex, accepted := s.recorder.Ingest(frame, verdict)
	sessionID := s.recorder.SessionID()

	s.sendWS(outbound, protocol.FrameAck{
		Type:       protocol.TypeFrameAck,
		SessionID:  sessionID,
		Seq:        msg.Seq,
		Accepted:   accepted,
		FrameIndex: frameIndex,
	}, protocol.TypeFrameAck)

	if accepted && verdict != nil {
		s.sendWS(outbound, protocol.PostureEvent{
			Type:      protocol.TypePostureEvent,
			SessionID: sessionID,
			Seq:       msg.Seq,
			Verdict:   *verdict,
		}, protocol.TypePostureEvent)
	}
}

// sendWS enqueues an outbound message without blocking the read loop.
// Writes stay single-threaded through the writer goroutine; when the
// queue is saturated the message is dropped and counted.
func (s *Server) sendWS(outbound chan<- any, msg any, t protocol.MessageType) {
	select {
	case outbound <- msg:
		s.metrics.WSMessages.WithLabelValues("outbound", string(t)).Inc()
	default:
		s.metrics.WSMessages.WithLabelValues("dropped", string(t)).Inc()
	}
}
