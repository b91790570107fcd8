// Package tts defines the Synthesizer interface for text-to-speech backends
// and the Speaker serializer that guarantees at most one active spoken
// utterance system-wide.
package tts

import (
	"context"
	"log/slog"
	"sync"
)

// SpeakOptions tune how an utterance is rendered.
type SpeakOptions struct {
	// Locale is the BCP-47 language code (e.g., "vi").
	Locale string

	// Rate adjusts speaking speed; 1.0 is the provider default.
	Rate float64

	// Pitch adjusts voice pitch; 1.0 is the provider default.
	Pitch float64

	// VoiceID selects a provider-specific voice. Empty means the default.
	VoiceID string
}

// Synthesizer renders text to audio. Implementations must be safe for
// concurrent use.
type Synthesizer interface {
	// Synthesize renders text and returns the encoded audio bytes.
	Synthesize(ctx context.Context, text string, opts SpeakOptions) ([]byte, error)
}

// Sink consumes rendered audio, typically by pushing it down the session's
// WebSocket for the client to play.
type Sink func(audio []byte)

// SpeakerOption is a functional option for configuring a Speaker.
type SpeakerOption func(*Speaker)

// WithFailureHook registers fn to be called when synthesis fails. Utterances
// interrupted by newer speech do not count as failures.
func WithFailureHook(fn func(error)) SpeakerOption {
	return func(s *Speaker) {
		s.onError = fn
	}
}

// Speaker serialises spoken output on top of a [Synthesizer]: issuing a new
// utterance cancels whichever utterance is currently rendering. Speak is
// fire-and-forget; synthesis failures are logged, never returned.
//
// Speaker is safe for concurrent use.
type Speaker struct {
	synth   Synthesizer
	sink    Sink
	opts    SpeakOptions
	onError func(error)

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewSpeaker creates a Speaker that renders through synth and delivers audio
// to sink. opts apply to every utterance. synth or sink may be nil, in which
// case Speak becomes a no-op (useful in tests and text-only deployments).
func NewSpeaker(synth Synthesizer, sink Sink, opts SpeakOptions, options ...SpeakerOption) *Speaker {
	s := &Speaker{synth: synth, sink: sink, opts: opts}
	for _, o := range options {
		o(s)
	}
	return s
}

// Speak renders text in the background. Any utterance still rendering is
// interrupted first.
func (s *Speaker) Speak(text string) {
	if s.synth == nil || s.sink == nil || text == "" {
		return
	}

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	go func() {
		defer cancel()
		audio, err := s.synth.Synthesize(ctx, text, s.opts)
		if err != nil {
			if ctx.Err() == nil {
				slog.Warn("tts: synthesis failed", "err", err)
				if s.onError != nil {
					s.onError(err)
				}
			}
			return
		}
		if ctx.Err() != nil {
			// Interrupted by a newer utterance while rendering.
			return
		}
		s.sink(audio)
	}()
}

// Stop interrupts the current utterance, if any.
func (s *Speaker) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}
