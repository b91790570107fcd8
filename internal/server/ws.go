package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/carevoice/carevoice/internal/dispatch"
	"github.com/carevoice/carevoice/internal/voice"
)

const (
	// outboundQueueSize bounds frames waiting for the socket. Audio replies
	// dominate the queue; events are tiny.
	outboundQueueSize = 64

	writeTimeout = 10 * time.Second
)

// clientMessage is a control frame sent by the app over the session socket.
// Audio arrives as binary frames, not as control messages.
//
// Types:
//
//	start  — begin capturing; binary frames that follow are audio
//	finish — capture ended; transcribe and process what was recorded
//	text   — a final utterance recognised on the device; skips transcription
//	stop   — abort listening or processing and return to idle
//	error  — a client-side failure (microphone permission, recognizer start)
type clientMessage struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Message string `json:"message,omitempty"`
}

// serverMessage is a frame sent to the app: session state changes and
// error notices. Synthesized speech is sent as binary frames.
type serverMessage struct {
	Type    string         `json:"type"`
	State   string         `json:"state,omitempty"`
	Text    string         `json:"text,omitempty"`
	Spoken  string         `json:"spoken,omitempty"`
	Result  *resultPayload `json:"result,omitempty"`
	Message string         `json:"message,omitempty"`
}

// resultPayload is the wire shape of a dispatch result.
type resultPayload struct {
	Kind         string                     `json:"kind"`
	Navigation   *dispatch.NavigationTarget `json:"navigation,omitempty"`
	Search       *dispatch.SearchQuery      `json:"search,omitempty"`
	ResponseText string                     `json:"response_text,omitempty"`
}

// outboundFrame is one queued WebSocket write.
type outboundFrame struct {
	typ  websocket.MessageType
	data []byte
}

// handleSession runs one voice session over a WebSocket connection. The
// connection is the session's lifetime: closing it stops the session.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("server: websocket accept failed", "err", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "session terminated")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	out := make(chan outboundFrame, outboundQueueSize)

	observer := func(e voice.Event) {
		data, err := json.Marshal(eventMessage(e))
		if err != nil {
			return
		}
		enqueue(out, outboundFrame{typ: websocket.MessageText, data: data})
	}
	sink := func(audio []byte) {
		enqueue(out, outboundFrame{typ: websocket.MessageBinary, data: audio})
	}

	sess := s.newSession(observer, sink)
	defer sess.Stop()

	if s.metrics != nil {
		s.metrics.SessionOpened()
		defer s.metrics.SessionClosed()
	}
	slog.Info("server: session opened", "session", sess.ID(), "remote", r.RemoteAddr)
	defer slog.Info("server: session closed", "session", sess.ID())

	go writeLoop(ctx, conn, out)

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				conn.Close(websocket.StatusNormalClosure, "")
			}
			return
		}
		switch typ {
		case websocket.MessageBinary:
			sess.PushAudio(data)
		case websocket.MessageText:
			s.handleControl(sess, data, out)
		}
	}
}

// handleControl applies one client control frame to the session.
func (s *Server) handleControl(sess *voice.Session, data []byte, out chan<- outboundFrame) {
	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		sendError(out, "malformed control frame")
		return
	}

	switch msg.Type {
	case "start":
		if err := sess.StartListening(); err != nil {
			sendError(out, err.Error())
		}
	case "finish":
		sess.FinishListening()
	case "text":
		if err := sess.HandleFinalText(msg.Text); err != nil {
			sendError(out, err.Error())
		}
	case "stop":
		sess.Stop()
	case "error":
		sess.Fail(clientError(msg.Message))
	default:
		sendError(out, "unknown control type "+msg.Type)
	}
}

// clientError maps the well-known client failure codes onto the session's
// typed errors; anything else passes through verbatim.
func clientError(message string) error {
	switch message {
	case "permission-denied":
		return voice.ErrPermissionDenied
	case "recognition-start":
		return voice.ErrRecognitionStart
	}
	return errors.New(message)
}

// writeLoop is the single writer for the connection. It drains the outbound
// queue until ctx is cancelled.
func writeLoop(ctx context.Context, conn *websocket.Conn, out <-chan outboundFrame) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-out:
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(writeCtx, frame.typ, frame.data)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

// enqueue adds a frame without blocking the session pipeline. A full queue
// means the client has stopped reading, so the frame is dropped.
func enqueue(out chan<- outboundFrame, frame outboundFrame) {
	select {
	case out <- frame:
	default:
		slog.Warn("server: outbound queue full, dropping frame")
	}
}

func sendError(out chan<- outboundFrame, message string) {
	data, err := json.Marshal(serverMessage{Type: "error", Message: message})
	if err != nil {
		return
	}
	enqueue(out, outboundFrame{typ: websocket.MessageText, data: data})
}

// eventMessage converts a session event to its wire shape.
func eventMessage(e voice.Event) serverMessage {
	msg := serverMessage{
		Type:   "state",
		State:  string(e.State),
		Text:   e.Text,
		Spoken: e.Spoken,
	}
	if e.Result != nil {
		msg.Result = &resultPayload{
			Kind:         string(e.Result.Kind),
			Navigation:   e.Result.Navigation,
			Search:       e.Result.Search,
			ResponseText: e.Result.ResponseText,
		}
	}
	return msg
}
