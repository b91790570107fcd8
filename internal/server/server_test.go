package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/carevoice/carevoice/internal/health"
	"github.com/carevoice/carevoice/internal/voice"
	"github.com/carevoice/carevoice/pkg/provider/stt"
	"github.com/carevoice/carevoice/pkg/provider/tts"
)

// stubTranscriber answers every request with a fixed transcript after
// consuming the audio.
type stubTranscriber struct {
	text  string
	bytes int
}

func (s *stubTranscriber) Transcribe(_ context.Context, r io.Reader) (stt.Transcript, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return stt.Transcript{}, err
	}
	s.bytes = len(data)
	return stt.Transcript{Text: s.text, Confidence: 0.95}, nil
}

// stubSynth renders every utterance to the same bytes.
type stubSynth struct{}

func (stubSynth) Synthesize(context.Context, string, tts.SpeakOptions) ([]byte, error) {
	return []byte("rendered-audio"), nil
}

func newTestServer(t *testing.T, transcriber stt.Transcriber) *httptest.Server {
	t.Helper()

	srv, err := New(Config{
		NewSession: func(observer voice.Observer, sink tts.Sink) *voice.Session {
			return voice.NewSession(voice.Config{
				Transcriber: transcriber,
				Speaker:     tts.NewSpeaker(stubSynth{}, sink, tts.SpeakOptions{Locale: "vi"}),
				Observer:    observer,
			})
		},
		Health: health.New(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func dialSession(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/session"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func sendControl(t *testing.T, conn *websocket.Conn, msg clientMessage) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal control: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("write control: %v", err)
	}
}

// readUntil reads frames until pred accepts a server message, failing the
// test after a few seconds. Binary frames are counted, not matched.
func readUntil(t *testing.T, conn *websocket.Conn, pred func(serverMessage) bool) (serverMessage, int) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	binary := 0
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if typ == websocket.MessageBinary {
			binary++
			continue
		}
		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal %q: %v", data, err)
		}
		if pred(msg) {
			return msg, binary
		}
	}
}

func completed(msg serverMessage) bool {
	return msg.Type == "state" && msg.State == string(voice.StateCompleted)
}

func TestSessionFinalTextCommand(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, nil)
	conn := dialSession(t, ts)

	sendControl(t, conn, clientMessage{Type: "text", Text: "trang chủ"})

	msg, _ := readUntil(t, conn, completed)
	if msg.Result == nil {
		t.Fatal("completed event has no result")
	}
	if msg.Result.Kind != "command" {
		t.Errorf("result kind = %q, want command", msg.Result.Kind)
	}
	if msg.Result.Navigation == nil || msg.Result.Navigation.Screen != "Home" {
		t.Errorf("navigation = %+v, want screen Home", msg.Result.Navigation)
	}
	if msg.Spoken == "" {
		t.Error("completed event has no spoken reply")
	}
}

func TestSessionAudioCapture(t *testing.T) {
	t.Parallel()

	transcriber := &stubTranscriber{text: "mở radio"}
	ts := newTestServer(t, transcriber)
	conn := dialSession(t, ts)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	sendControl(t, conn, clientMessage{Type: "start"})
	for range 3 {
		if err := conn.Write(ctx, websocket.MessageBinary, []byte("chunk")); err != nil {
			t.Fatalf("write audio: %v", err)
		}
	}
	sendControl(t, conn, clientMessage{Type: "finish"})

	msg, _ := readUntil(t, conn, completed)
	if msg.Result == nil || msg.Result.Navigation == nil || msg.Result.Navigation.Screen != "Radio" {
		t.Fatalf("result = %+v, want navigation to Radio", msg.Result)
	}
	if transcriber.bytes != 3*len("chunk") {
		t.Errorf("transcriber received %d bytes, want %d", transcriber.bytes, 3*len("chunk"))
	}
}

func TestSessionSpeechStreamedBack(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, nil)
	conn := dialSession(t, ts)

	sendControl(t, conn, clientMessage{Type: "text", Text: "trang chủ"})

	// Speech renders asynchronously, so the binary frame may arrive before
	// or after the completed event.
	_, binary := readUntil(t, conn, completed)
	if binary == 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		typ, _, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("waiting for audio frame: %v", err)
		}
		if typ != websocket.MessageBinary {
			t.Fatalf("frame type = %v, want binary", typ)
		}
	}
}

func TestSessionBusyRejectsSecondUtterance(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, nil)
	conn := dialSession(t, ts)

	sendControl(t, conn, clientMessage{Type: "text", Text: "trang chủ"})
	readUntil(t, conn, completed)

	// The session rests for its settle delay after completing, so a second
	// utterance right away is rejected.
	sendControl(t, conn, clientMessage{Type: "text", Text: "mở radio"})
	msg, _ := readUntil(t, conn, func(m serverMessage) bool { return m.Type == "error" })
	if msg.Message == "" {
		t.Error("error frame has no message")
	}
}

func TestSessionClientErrorSpeaksInstruction(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, nil)
	conn := dialSession(t, ts)

	sendControl(t, conn, clientMessage{Type: "error", Message: "permission-denied"})

	msg, _ := readUntil(t, conn, func(m serverMessage) bool {
		return m.Type == "state" && m.State == string(voice.StateError)
	})
	if msg.Spoken == "" {
		t.Error("error state event has no spoken instruction")
	}
}

func TestSessionUnknownControlType(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, nil)
	conn := dialSession(t, ts)

	sendControl(t, conn, clientMessage{Type: "bogus"})
	msg, _ := readUntil(t, conn, func(m serverMessage) bool { return m.Type == "error" })
	if !strings.Contains(msg.Message, "bogus") {
		t.Errorf("error message = %q, want it to name the control type", msg.Message)
	}
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, nil)

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s status = %d, want 200", path, resp.StatusCode)
		}
	}
}

func TestNewRequiresSessionFactory(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{}); err == nil {
		t.Fatal("New with no session factory should fail")
	}
}
