// Package fallback escalates utterances the local classifier could not
// resolve to a language-model service.
//
// The model is constrained by a system instruction to answer with exactly
// one of two JSON shapes: a command proposal with a confidence score, or a
// free-form conversational reply. Responses that are not directly parseable
// are salvaged by extracting the first balanced {...} substring, which
// handles models that wrap JSON in markdown fences or prose.
//
// This stage never returns an error to its caller: transport failures,
// contract violations, and low-confidence proposals all degrade to an
// Unknown classification, and the LLM call sits behind a circuit breaker so
// a flapping service is bypassed instead of slowing every utterance.
package fallback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/carevoice/carevoice/internal/config"
	"github.com/carevoice/carevoice/internal/intent"
	"github.com/carevoice/carevoice/internal/resilience"
	"github.com/carevoice/carevoice/pkg/provider/llm"
)

const (
	defaultTemperature = 0.2
	defaultMaxTokens   = 300
	defaultTimeout     = 10 * time.Second
)

// systemPrompt constrains the model to the two-shape contract. The screen
// list is appended at construction so configured extra screens are offered
// too.
const systemPromptTemplate = `You are the intent resolver of a Vietnamese voice assistant for elderly users.

Given the user's utterance, respond with ONLY a JSON object in exactly one of these two shapes (no markdown, no prose):

1. When the utterance is a request to open a feature of the app:
{"type": "command", "command": "<screen>", "action": "navigate", "confidence": <0.0-1.0>}
where <screen> is one of: %s

2. For anything else (greetings, questions, small talk):
{"type": "conversation", "text": "<a short, warm reply in Vietnamese>"}

Rules:
- confidence reflects how certain you are the user wants that screen.
- Never invent screens outside the list.
- Keep conversational replies under two sentences, suitable for being read aloud to an elderly person.`

// wireResponse covers both contract shapes.
type wireResponse struct {
	Type       string  `json:"type"`
	Command    string  `json:"command"`
	Action     string  `json:"action"`
	Confidence float64 `json:"confidence"`
	Text       string  `json:"text"`
}

// ErrorRecorder counts failed provider calls. Implemented by the
// observability layer.
type ErrorRecorder interface {
	ProviderError(provider, kind string)
}

// Option is a functional option for configuring an Orchestrator.
type Option func(*Orchestrator)

// WithMetrics registers rec to be notified when the LLM call fails.
func WithMetrics(rec ErrorRecorder) Option {
	return func(o *Orchestrator) {
		o.metrics = rec
	}
}

// WithTemperature sets the sampling temperature. Default: 0.2.
func WithTemperature(temp float64) Option {
	return func(o *Orchestrator) {
		o.temperature = temp
	}
}

// WithTimeout caps each LLM call. Default: 10s.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.timeout = d
	}
}

// WithBreakerConfig replaces the circuit breaker configuration.
func WithBreakerConfig(cfg resilience.BreakerConfig) Option {
	return func(o *Orchestrator) {
		cfg.Name = "llm-fallback"
		o.breaker = resilience.NewBreaker(cfg)
	}
}

// WithScreens sets the screen vocabulary offered to the model. Defaults to
// the built-in screen list.
func WithScreens(screens []string) Option {
	return func(o *Orchestrator) {
		o.screens = screens
	}
}

// Orchestrator is the language-model fallback classifier. It is safe for
// concurrent use.
type Orchestrator struct {
	provider    llm.Provider
	accept      float64
	temperature float64
	timeout     time.Duration
	screens     []string
	breaker     *resilience.Breaker
	metrics     ErrorRecorder
}

// New creates an Orchestrator backed by provider. provider may be nil, in
// which case Classify always returns Unknown (text-rule-only deployments).
func New(provider llm.Provider, thresholds config.Thresholds, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		provider:    provider,
		accept:      thresholds.FallbackAccept,
		temperature: defaultTemperature,
		timeout:     defaultTimeout,
		screens:     defaultScreens(),
		breaker:     resilience.NewBreaker(resilience.BreakerConfig{Name: "llm-fallback"}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func defaultScreens() []string {
	return []string{
		intent.ScreenHome, intent.ScreenVideo, intent.ScreenStories,
		intent.ScreenGames, intent.ScreenRadio, intent.ScreenExercise,
		intent.ScreenMedication, intent.ScreenCamera, intent.ScreenSettings,
	}
}

// Classify escalates text to the language model and reconciles the response
// into a Classification. It never fails: every transport or contract problem
// degrades to Unknown.
func (o *Orchestrator) Classify(ctx context.Context, text string) intent.Classification {
	if o.provider == nil || strings.TrimSpace(text) == "" {
		return intent.Unknown()
	}

	var content string
	err := o.breaker.Do(func() error {
		callCtx, cancel := context.WithTimeout(ctx, o.timeout)
		defer cancel()

		resp, err := o.provider.Complete(callCtx, llm.CompletionRequest{
			SystemPrompt: fmt.Sprintf(systemPromptTemplate, strings.Join(o.screens, ", ")),
			Messages:     []llm.Message{{Role: "user", Content: text}},
			Temperature:  o.temperature,
			MaxTokens:    defaultMaxTokens,
		})
		if err != nil {
			return err
		}
		content = resp.Content
		return nil
	})
	if err != nil {
		slog.Warn("fallback: llm call failed", "err", err)
		// An open breaker means no call was made, so it is not counted.
		if o.metrics != nil && !errors.Is(err, resilience.ErrBreakerOpen) {
			o.metrics.ProviderError("llm", "complete")
		}
		return intent.Unknown()
	}

	wire, ok := parseResponse(content)
	if !ok {
		slog.Debug("fallback: unparseable llm response", "content", content)
		return intent.Unknown()
	}
	return o.reconcile(wire)
}

// reconcile maps a contract-conforming response onto a Classification.
// Command proposals below the acceptance threshold are not dispatched.
func (o *Orchestrator) reconcile(wire wireResponse) intent.Classification {
	switch wire.Type {
	case "command":
		if wire.Command == "" || wire.Confidence <= o.accept {
			slog.Debug("fallback: command below acceptance",
				"command", wire.Command,
				"confidence", wire.Confidence)
			return intent.Unknown()
		}
		return intent.Classification{
			Kind:         intent.KindCommand,
			TargetIntent: wire.Command,
			Action:       &intent.Action{Type: intent.ActionNavigate, Screen: wire.Command},
			Confidence:   wire.Confidence,
		}

	case "conversation":
		if wire.Text == "" {
			return intent.Unknown()
		}
		return intent.Classification{
			Kind:       intent.KindConversation,
			Confidence: 1,
			Reply:      wire.Text,
		}

	default:
		return intent.Unknown()
	}
}

// parseResponse parses content as contract JSON, falling back to balanced
// {...} extraction when the model wrapped the object in fences or prose.
func parseResponse(content string) (wireResponse, bool) {
	var wire wireResponse
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &wire); err == nil {
		return wire, true
	}

	obj, ok := extractObject(content)
	if !ok {
		return wireResponse{}, false
	}
	if err := json.Unmarshal([]byte(obj), &wire); err != nil {
		return wireResponse{}, false
	}
	return wire, true
}

// extractObject returns the first balanced top-level {...} substring of s.
// Braces inside JSON strings are ignored.
func extractObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
