// Package voice owns the session state machine coordinating one voice
// interaction: Idle → Listening → Analyzing → Executing → Completed/Error,
// with a settle delay back to Idle.
//
// Processing is single-flight: while an utterance is in the pipeline, new
// final utterances are dropped, never queued. Stop abandons any in-flight
// stage — its eventual result is ignored once the session has moved on.
package voice

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/carevoice/carevoice/internal/config"
	"github.com/carevoice/carevoice/internal/dispatch"
	"github.com/carevoice/carevoice/internal/fallback"
	"github.com/carevoice/carevoice/internal/intent"
	"github.com/carevoice/carevoice/internal/journal"
	"github.com/carevoice/carevoice/internal/normalize"
	"github.com/carevoice/carevoice/pkg/clock"
	"github.com/carevoice/carevoice/pkg/provider/stt"
	"github.com/carevoice/carevoice/pkg/provider/tts"
)

const defaultSettleDelay = 3 * time.Second

// State is the session's lifecycle phase, exposed to the UI.
type State string

const (
	StateIdle      State = "idle"
	StateListening State = "listening"
	StateAnalyzing State = "analyzing"
	StateExecuting State = "executing"
	StateCompleted State = "completed"
	StateError     State = "error"
)

// Event is one observable session update: a state change, optionally with
// the text being processed, the spoken reply, and the dispatch result.
type Event struct {
	State  State
	Text   string
	Spoken string
	Result *dispatch.Result
}

// Observer receives session events. It is called synchronously from the
// session's pipeline goroutine and must not block.
type Observer func(Event)

// Recorder receives pipeline measurements. Implemented by the observability
// layer; a nil Recorder disables measurement.
type Recorder interface {
	// Stage records the duration of one pipeline stage.
	Stage(name string, d time.Duration)

	// Intent counts one classified utterance by intent kind.
	Intent(kind string)

	// ProviderError counts one failed external provider call.
	ProviderError(provider, kind string)
}

// Config wires a Session's collaborators. Transcriber may be nil when every
// utterance arrives as text via [Session.HandleFinalText].
type Config struct {
	Transcriber stt.Transcriber
	Normalizer  *normalize.Normalizer
	Classifier  *intent.Classifier
	Fallback    *fallback.Orchestrator
	Dispatcher  *dispatch.Dispatcher
	Speaker     *tts.Speaker
	Journal     journal.Store
	Metrics     Recorder
	Observer    Observer

	// Overrides lets hosting screens intercept commands aimed at them.
	Overrides map[string]dispatch.Handler

	// Clock is the time source for the settle delay. Defaults to the
	// system clock.
	Clock clock.Clock

	// SettleDelay is the rest period in Completed or Error before the
	// session returns to Idle. Default: 3s.
	SettleDelay time.Duration

	// Thresholds supplies the local acceptance cutoff used to decide when
	// a conversation result is weak enough to escalate to the fallback.
	Thresholds config.Thresholds
}

// Session is the per-connection voice session. All methods are safe for
// concurrent use.
type Session struct {
	id          string
	transcriber stt.Transcriber
	normalizer  *normalize.Normalizer
	classifier  *intent.Classifier
	fallback    *fallback.Orchestrator
	dispatcher  *dispatch.Dispatcher
	speaker     *tts.Speaker
	journal     journal.Store
	metrics     Recorder
	observer    Observer
	overrides   map[string]dispatch.Handler
	clk         clock.Clock
	settleDelay time.Duration
	localAccept float64

	mu         sync.Mutex
	state      State
	processing bool
	epoch      int
	audio      bytes.Buffer
	lastText   string
	cancel     context.CancelFunc
}

// NewSession creates a Session from cfg, filling defaults for nil
// collaborators.
func NewSession(cfg Config) *Session {
	if cfg.Normalizer == nil {
		cfg.Normalizer = normalize.New()
	}
	if cfg.Thresholds == (config.Thresholds{}) {
		cfg.Thresholds = config.DefaultThresholds()
	}
	if cfg.Classifier == nil {
		cfg.Classifier = intent.New(cfg.Thresholds)
	}
	if cfg.Dispatcher == nil {
		cfg.Dispatcher = dispatch.New()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = defaultSettleDelay
	}

	return &Session{
		id:          uuid.NewString(),
		transcriber: cfg.Transcriber,
		normalizer:  cfg.Normalizer,
		classifier:  cfg.Classifier,
		fallback:    cfg.Fallback,
		dispatcher:  cfg.Dispatcher,
		speaker:     cfg.Speaker,
		journal:     cfg.Journal,
		metrics:     cfg.Metrics,
		observer:    cfg.Observer,
		overrides:   cfg.Overrides,
		clk:         cfg.Clock,
		settleDelay: cfg.SettleDelay,
		localAccept: cfg.Thresholds.LocalAccept,
		state:       StateIdle,
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastText returns the most recent utterance the session processed.
func (s *Session) LastText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastText
}

// StartListening moves the session from Idle to Listening and resets the
// capture buffer.
func (s *Session) StartListening() error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrNotIdle
	}
	s.audio.Reset()
	s.state = StateListening
	s.mu.Unlock()

	s.emit(Event{State: StateListening})
	return nil
}

// PushAudio appends captured audio. Chunks arriving outside Listening are
// discarded.
func (s *Session) PushAudio(chunk []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateListening {
		s.audio.Write(chunk)
	}
}

// FinishListening ends capture. With recorded audio the session moves to
// Analyzing and processing starts; an empty capture returns to Idle.
func (s *Session) FinishListening() {
	s.mu.Lock()
	if s.state != StateListening {
		s.mu.Unlock()
		return
	}
	if s.audio.Len() == 0 {
		s.state = StateIdle
		s.mu.Unlock()
		s.emit(Event{State: StateIdle})
		return
	}

	audio := make([]byte, s.audio.Len())
	copy(audio, s.audio.Bytes())
	s.audio.Reset()
	s.beginProcessingLocked(audio, "")
}

// HandleFinalText feeds a final utterance that was recognised on the client
// device, bypassing the transcription stage. While an utterance is already
// in flight it returns [ErrBusy] and the text is dropped.
func (s *Session) HandleFinalText(text string) error {
	s.mu.Lock()
	if s.processing {
		s.mu.Unlock()
		slog.Debug("voice: dropping utterance, session busy", "session", s.id)
		return ErrBusy
	}
	s.beginProcessingLocked(nil, text)
	return nil
}

// beginProcessingLocked flips the session into Analyzing and launches the
// pipeline goroutine. s.mu must be held; it is released here.
func (s *Session) beginProcessingLocked(audio []byte, finalText string) {
	s.processing = true
	s.state = StateAnalyzing
	s.epoch++
	epoch := s.epoch

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	s.emit(Event{State: StateAnalyzing})
	go s.run(ctx, epoch, audio, finalText)
}

// Stop forces the session back to Idle, discarding any partial capture and
// abandoning whatever pipeline stage is outstanding.
func (s *Session) Stop() {
	s.mu.Lock()
	s.epoch++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.audio.Reset()
	s.processing = false
	changed := s.state != StateIdle
	s.state = StateIdle
	s.mu.Unlock()

	if s.speaker != nil {
		s.speaker.Stop()
	}
	if changed {
		s.emit(Event{State: StateIdle})
	}
}

// Fail reports a client-side failure (microphone permission, recognizer
// start). The session speaks an instruction and rests in Error before
// returning to Idle.
func (s *Session) Fail(err error) {
	s.mu.Lock()
	s.epoch++
	epoch := s.epoch
	s.processing = true
	s.state = StateError
	s.mu.Unlock()

	msg := "Bác kiểm tra giúp cháu quyền dùng micro trong cài đặt máy nhé."
	s.speak(msg)
	s.emit(Event{State: StateError, Spoken: msg})
	slog.Warn("voice: session error", "session", s.id, "err", err)
	go s.settle(epoch)
}

// run drives one utterance through the pipeline.
func (s *Session) run(ctx context.Context, epoch int, audio []byte, finalText string) {
	raw := finalText
	if raw == "" {
		if s.transcriber == nil {
			// Text-only deployment, yet audio was captured anyway.
			slog.Warn("voice: no transcriber configured, dropping audio utterance", "session", s.id)
			s.finish(epoch, StateError, s.dispatcher.SystemBusy())
			return
		}
		start := time.Now()
		transcript, err := s.transcriber.Transcribe(ctx, bytes.NewReader(audio))
		s.stage("transcribe", start)
		if err != nil {
			if ctx.Err() != nil {
				return // abandoned by Stop
			}
			slog.Warn("voice: transcription failed", "session", s.id, "err", err)
			s.providerError("stt", "transcribe")
			s.finish(epoch, StateError, s.dispatcher.SystemBusy())
			return
		}
		raw = transcript.Text
	}

	norm := s.normalizer.Normalize(raw)
	if norm == "" {
		s.finish(epoch, StateCompleted, s.dispatcher.Apology())
		return
	}
	s.setText(epoch, norm)

	start := time.Now()
	cl := s.classifier.Classify(norm)
	s.stage("classify", start)

	if s.fallback != nil && needsFallback(cl, s.localAccept) {
		start = time.Now()
		if fb := s.fallback.Classify(ctx, raw); fb.Kind != intent.KindUnknown {
			cl = fb
		}
		s.stage("fallback", start)
		if ctx.Err() != nil {
			return
		}
	}
	if s.metrics != nil {
		s.metrics.Intent(string(cl.Kind))
	}

	if !s.transition(epoch, StateExecuting) {
		return
	}

	start = time.Now()
	result := s.dispatcher.Dispatch(norm, cl, s.overrides)
	s.stage("dispatch", start)

	s.record(raw, norm, cl, result)
	s.finish(epoch, StateCompleted, result)
}

// needsFallback reports whether the local result is weak enough to escalate:
// nothing matched, or only a low-confidence conversation.
func needsFallback(cl intent.Classification, localAccept float64) bool {
	if cl.Kind == intent.KindUnknown {
		return true
	}
	return cl.Kind == intent.KindConversation && cl.Confidence < localAccept
}

// finish speaks the result, publishes it, and rests before returning to
// Idle. state is Completed on success and Error on pipeline failure.
func (s *Session) finish(epoch int, state State, result dispatch.Result) {
	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return
	}
	s.state = state
	s.mu.Unlock()

	if result.Spoken && result.ResponseText != "" {
		s.speak(result.ResponseText)
	}
	s.emit(Event{State: state, Spoken: result.ResponseText, Result: &result})
	go s.settle(epoch)
}

// settle waits out the rest period, then returns to Idle unless the session
// has already moved on.
func (s *Session) settle(epoch int) {
	<-s.clk.After(s.settleDelay)

	s.mu.Lock()
	if epoch != s.epoch || (s.state != StateCompleted && s.state != StateError) {
		s.mu.Unlock()
		return
	}
	s.state = StateIdle
	s.processing = false
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.emit(Event{State: StateIdle})
}

// transition moves to next if the utterance is still current.
func (s *Session) transition(epoch int, next State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch {
		return false
	}
	s.state = next
	return true
}

func (s *Session) setText(epoch int, text string) {
	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return
	}
	s.lastText = text
	s.mu.Unlock()

	s.emit(Event{State: StateAnalyzing, Text: text})
}

func (s *Session) speak(text string) {
	if s.speaker != nil {
		s.speaker.Speak(text)
	}
}

func (s *Session) emit(e Event) {
	if s.observer != nil {
		s.observer(e)
	}
}

func (s *Session) stage(name string, start time.Time) {
	if s.metrics != nil {
		s.metrics.Stage(name, time.Since(start))
	}
}

func (s *Session) providerError(provider, kind string) {
	if s.metrics != nil {
		s.metrics.ProviderError(provider, kind)
	}
}

// record journals the completed interaction off the voice path.
func (s *Session) record(raw, norm string, cl intent.Classification, result dispatch.Result) {
	if s.journal == nil {
		return
	}
	entry := journal.Entry{
		ID:             uuid.New(),
		SessionID:      s.id,
		RawText:        strings.TrimSpace(raw),
		NormalizedText: norm,
		IntentKind:     string(cl.Kind),
		TargetIntent:   cl.TargetIntent,
		Confidence:     cl.Confidence,
		ResultKind:     string(result.Kind),
		ResponseText:   result.ResponseText,
		At:             time.Now(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.journal.Record(ctx, entry); err != nil {
			slog.Warn("voice: journal write failed", "session", s.id, "err", err)
		}
	}()
}
