package voice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/carevoice/carevoice/internal/config"
	"github.com/carevoice/carevoice/internal/dispatch"
	"github.com/carevoice/carevoice/internal/fallback"
	"github.com/carevoice/carevoice/pkg/provider/llm"
	"github.com/carevoice/carevoice/pkg/provider/stt"
)

// fakeClock hands out a shared channel for After; tests fire it by calling
// advance.
type fakeClock struct {
	ch chan time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{ch: make(chan time.Time)}
}

func (f *fakeClock) Now() time.Time { return time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC) }

func (f *fakeClock) After(time.Duration) <-chan time.Time { return f.ch }

func (f *fakeClock) advance() { f.ch <- time.Time{} }

// scriptTranscriber blocks until released, then returns its scripted
// transcript or error.
type scriptTranscriber struct {
	text    string
	err     error
	release chan struct{}
}

func (s *scriptTranscriber) Transcribe(ctx context.Context, r io.Reader) (stt.Transcript, error) {
	if _, err := io.ReadAll(r); err != nil {
		return stt.Transcript{}, err
	}
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return stt.Transcript{}, ctx.Err()
		}
	}
	if s.err != nil {
		return stt.Transcript{}, s.err
	}
	return stt.Transcript{Text: s.text}, nil
}

// collectEvents wires an Observer into a buffered channel.
func collectEvents() (Observer, chan Event) {
	ch := make(chan Event, 64)
	return func(e Event) { ch <- e }, ch
}

// waitState reads events until the wanted state shows up, returning that
// event.
func waitState(t *testing.T, events chan Event, want State) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case e := <-events:
			if e.State == want {
				return e
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %v", want)
		}
	}
}

func TestTextPipelineCompletes(t *testing.T) {
	t.Parallel()

	observer, events := collectEvents()
	clk := newFakeClock()
	s := NewSession(Config{Observer: observer, Clock: clk})

	if err := s.HandleFinalText("trang chủ"); err != nil {
		t.Fatalf("HandleFinalText: %v", err)
	}

	e := waitState(t, events, StateCompleted)
	if e.Result == nil || e.Result.Kind != dispatch.ResultCommand {
		t.Fatalf("Result = %+v, want a command", e.Result)
	}
	if e.Result.Navigation == nil || e.Result.Navigation.Screen != "Home" {
		t.Errorf("Navigation = %+v, want Home", e.Result.Navigation)
	}

	clk.advance()
	waitState(t, events, StateIdle)
	if got := s.State(); got != StateIdle {
		t.Errorf("State = %v, want idle after settle", got)
	}
}

func TestSingleFlightDropsSecondUtterance(t *testing.T) {
	t.Parallel()

	observer, events := collectEvents()
	clk := newFakeClock()
	tr := &scriptTranscriber{text: "mở radio", release: make(chan struct{})}
	s := NewSession(Config{Transcriber: tr, Observer: observer, Clock: clk})

	if err := s.StartListening(); err != nil {
		t.Fatalf("StartListening: %v", err)
	}
	s.PushAudio([]byte("chunk"))
	s.FinishListening()
	waitState(t, events, StateAnalyzing)

	// A second final utterance while processing must be dropped.
	if err := s.HandleFinalText("mở video"); !errors.Is(err, ErrBusy) {
		t.Fatalf("HandleFinalText = %v, want ErrBusy", err)
	}

	close(tr.release)
	e := waitState(t, events, StateCompleted)
	if e.Result.Navigation == nil || e.Result.Navigation.Screen != "Radio" {
		t.Errorf("Navigation = %+v, want Radio (the first utterance)", e.Result.Navigation)
	}

	// Exactly one result is produced per processing window.
	clk.advance()
	waitState(t, events, StateIdle)
	select {
	case e := <-events:
		if e.Result != nil {
			t.Errorf("unexpected second result: %+v", e.Result)
		}
	default:
	}
}

func TestStopAbandonsInFlightTranscription(t *testing.T) {
	t.Parallel()

	observer, events := collectEvents()
	tr := &scriptTranscriber{text: "mở video", release: make(chan struct{})}
	s := NewSession(Config{Transcriber: tr, Observer: observer, Clock: newFakeClock()})

	if err := s.StartListening(); err != nil {
		t.Fatalf("StartListening: %v", err)
	}
	s.PushAudio([]byte("chunk"))
	s.FinishListening()
	waitState(t, events, StateAnalyzing)

	s.Stop()
	if got := s.State(); got != StateIdle {
		t.Fatalf("State = %v, want idle immediately after Stop", got)
	}
	waitState(t, events, StateIdle)

	// Releasing the abandoned transcription must not produce a result.
	close(tr.release)
	time.Sleep(50 * time.Millisecond)
	select {
	case e := <-events:
		t.Errorf("unexpected event after Stop: %+v", e)
	default:
	}
}

// recordingMetrics captures Recorder calls for assertions.
type recordingMetrics struct {
	mu           sync.Mutex
	providerErrs []string
}

func (r *recordingMetrics) Stage(string, time.Duration) {}

func (r *recordingMetrics) Intent(string) {}

func (r *recordingMetrics) ProviderError(provider, kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providerErrs = append(r.providerErrs, provider+"/"+kind)
}

func (r *recordingMetrics) errs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.providerErrs...)
}

func TestQueueTimeoutSpeaksSystemBusy(t *testing.T) {
	t.Parallel()

	observer, events := collectEvents()
	clk := newFakeClock()
	rec := &recordingMetrics{}
	tr := &scriptTranscriber{err: fmt.Errorf("%w: stuck in queue", stt.ErrQueueTimeout)}
	s := NewSession(Config{Transcriber: tr, Observer: observer, Clock: clk, Metrics: rec})

	if err := s.StartListening(); err != nil {
		t.Fatalf("StartListening: %v", err)
	}
	s.PushAudio([]byte("chunk"))
	s.FinishListening()

	e := waitState(t, events, StateError)
	if e.Result == nil || e.Result.Kind != dispatch.ResultError {
		t.Fatalf("Result = %+v, want an error result", e.Result)
	}
	if e.Spoken == "" {
		t.Error("a system-busy message should be spoken")
	}
	if got := rec.errs(); len(got) != 1 || got[0] != "stt/transcribe" {
		t.Errorf("provider errors = %v, want [stt/transcribe]", got)
	}

	clk.advance()
	waitState(t, events, StateIdle)
}

func TestAudioWithoutTranscriberSpeaksSystemBusy(t *testing.T) {
	t.Parallel()

	observer, events := collectEvents()
	clk := newFakeClock()
	s := NewSession(Config{Observer: observer, Clock: clk})

	if err := s.StartListening(); err != nil {
		t.Fatalf("StartListening: %v", err)
	}
	s.PushAudio([]byte("chunk"))
	s.FinishListening()

	e := waitState(t, events, StateError)
	if e.Result == nil || e.Result.Kind != dispatch.ResultError {
		t.Fatalf("Result = %+v, want an error result", e.Result)
	}
	if e.Spoken == "" {
		t.Error("a system-busy message should be spoken")
	}

	// The session must recover: after the settle delay a text utterance
	// still works.
	clk.advance()
	waitState(t, events, StateIdle)
	if err := s.HandleFinalText("trang chủ"); err != nil {
		t.Fatalf("HandleFinalText after recovery: %v", err)
	}
	waitState(t, events, StateCompleted)
}

func TestEmptyCaptureReturnsToIdle(t *testing.T) {
	t.Parallel()

	observer, events := collectEvents()
	s := NewSession(Config{Observer: observer, Clock: newFakeClock()})

	if err := s.StartListening(); err != nil {
		t.Fatalf("StartListening: %v", err)
	}
	s.FinishListening()
	waitState(t, events, StateIdle)

	if got := s.State(); got != StateIdle {
		t.Errorf("State = %v, want idle", got)
	}
}

func TestStartListeningRejectedWhileBusy(t *testing.T) {
	t.Parallel()

	observer, events := collectEvents()
	tr := &scriptTranscriber{text: "mở video", release: make(chan struct{})}
	s := NewSession(Config{Transcriber: tr, Observer: observer, Clock: newFakeClock()})

	if err := s.StartListening(); err != nil {
		t.Fatalf("StartListening: %v", err)
	}
	s.PushAudio([]byte("chunk"))
	s.FinishListening()
	waitState(t, events, StateAnalyzing)

	if err := s.StartListening(); !errors.Is(err, ErrNotIdle) {
		t.Errorf("StartListening = %v, want ErrNotIdle", err)
	}
	close(tr.release)
}

// fallbackStub satisfies llm.Provider with a canned conversation reply.
type fallbackStub struct{}

func (fallbackStub) Complete(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return &llm.CompletionResponse{
		Content: `{"type":"conversation","text":"Dạ cháu đây ạ."}`,
	}, nil
}

func TestUnresolvedUtteranceEscalatesToFallback(t *testing.T) {
	t.Parallel()

	observer, events := collectEvents()
	fb := fallback.New(fallbackStub{}, config.DefaultThresholds())
	s := NewSession(Config{Observer: observer, Clock: newFakeClock(), Fallback: fb})

	if err := s.HandleFinalText("ờ thì cái đó đó"); err != nil {
		t.Fatalf("HandleFinalText: %v", err)
	}

	e := waitState(t, events, StateCompleted)
	if e.Result == nil || e.Result.Kind != dispatch.ResultConversation {
		t.Fatalf("Result = %+v, want conversation from fallback", e.Result)
	}
	if !strings.Contains(e.Result.ResponseText, "Dạ cháu đây ạ.") {
		t.Errorf("ResponseText = %q, want the fallback reply", e.Result.ResponseText)
	}
}
