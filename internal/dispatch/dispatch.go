// Package dispatch converts intent classifications into concrete command
// results: navigation payloads, spoken replies, clarifications, and
// apologies.
//
// Dispatch itself is side-effect free apart from appending to the command
// history ring; invoking navigation, screen handlers, and the speak
// capability is the caller's responsibility.
package dispatch

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/carevoice/carevoice/internal/intent"
	"github.com/carevoice/carevoice/pkg/clock"
)

// ResultKind discriminates what a dispatched command resolved to.
type ResultKind string

const (
	ResultCommand       ResultKind = "command"
	ResultConversation  ResultKind = "conversation"
	ResultClarification ResultKind = "clarification"
	ResultSearch        ResultKind = "search"
	ResultError         ResultKind = "error"
	ResultUnknown       ResultKind = "unknown"
)

// NavigationTarget is the single payload shape emitted to the navigation
// layer for every command, regardless of which classifier layer produced it.
type NavigationTarget struct {
	Screen string            `json:"screen"`
	Params map[string]string `json:"params,omitempty"`
}

// SearchQuery carries the text of a search command.
type SearchQuery struct {
	Query string `json:"query"`
}

// Result is what one dispatched utterance resolves to. It is consumed
// immediately by the session and the UI.
type Result struct {
	Kind       ResultKind
	Navigation *NavigationTarget
	Search     *SearchQuery

	// ResponseText is the reply to show and, when Spoken is set, read
	// aloud.
	ResponseText string
	Spoken       bool
}

// Handler lets a hosting screen intercept a command aimed at it instead of
// triggering default navigation.
type Handler func(NavigationTarget) Result

// Option is a functional option for configuring a Dispatcher.
type Option func(*Dispatcher)

// WithClock replaces the time source used for history timestamps and
// time-of-day answers. Used by tests.
func WithClock(c clock.Clock) Option {
	return func(d *Dispatcher) {
		d.clk = c
	}
}

// WithRand replaces the random source used for pool selection. Used by
// tests for deterministic replies.
func WithRand(r *rand.Rand) Option {
	return func(d *Dispatcher) {
		d.rng = r
	}
}

// WithScreenLabel adds or overrides the spoken label for a screen, e.g. for
// screens added through configuration.
func WithScreenLabel(screen, label string) Option {
	return func(d *Dispatcher) {
		d.labels[screen] = label
	}
}

// Dispatcher resolves classifications into results. All methods are safe
// for concurrent use, though the session machine serialises calls anyway.
type Dispatcher struct {
	clk    clock.Clock
	labels map[string]string

	mu   sync.Mutex
	rng  *rand.Rand
	hist *history
}

// New creates a Dispatcher with the built-in response pools.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		clk:    clock.System{},
		labels: make(map[string]string, len(screenLabels)),
		rng:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		hist:   newHistory(historyCapacity),
	}
	for k, v := range screenLabels {
		d.labels[k] = v
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Dispatch resolves cl for the utterance text. overrides maps screen names
// to interceptors; it may be nil.
func (d *Dispatcher) Dispatch(text string, cl intent.Classification, overrides map[string]Handler) Result {
	repeated := d.isRepetition(text)

	var result Result
	switch cl.Kind {
	case intent.KindCommand:
		result = d.dispatchCommand(cl, overrides)
	case intent.KindQuestion:
		result = Result{
			Kind:         ResultConversation,
			ResponseText: d.pick(capabilityPool),
			Spoken:       true,
		}
	case intent.KindConversation:
		result = d.dispatchConversation(cl, repeated)
	default:
		result = Result{
			Kind:         ResultUnknown,
			ResponseText: d.pick(apologyPool),
			Spoken:       true,
		}
	}

	d.remember(text)
	return result
}

// SystemBusy is the spoken degradation for transcription and network
// failures. The session speaks it when the pipeline aborts before
// classification.
func (d *Dispatcher) SystemBusy() Result {
	return Result{
		Kind:         ResultError,
		ResponseText: d.pick(systemBusyPool),
		Spoken:       true,
	}
}

// Apology returns a pooled "I did not understand" result.
func (d *Dispatcher) Apology() Result {
	return Result{
		Kind:         ResultUnknown,
		ResponseText: d.pick(apologyPool),
		Spoken:       true,
	}
}

// History returns a copy of the current command history, newest last.
func (d *Dispatcher) History() []HistoryEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]HistoryEntry(nil), d.hist.entries...)
}

func (d *Dispatcher) dispatchCommand(cl intent.Classification, overrides map[string]Handler) Result {
	if cl.Action == nil {
		return Result{
			Kind:         ResultClarification,
			ResponseText: d.pick(clarificationPool),
			Spoken:       true,
		}
	}

	if cl.Action.Type == intent.ActionSearch {
		return Result{
			Kind:   ResultSearch,
			Search: &SearchQuery{Query: cl.Action.Query},
			Spoken: false,
		}
	}

	target := NavigationTarget{Screen: cl.Action.Screen}

	if h, ok := overrides[target.Screen]; ok && h != nil {
		result := h(target)
		if result.ResponseText == "" {
			result.ResponseText = d.openingPhrase(target.Screen)
			result.Spoken = true
		}
		return result
	}

	if _, known := d.labels[target.Screen]; !known {
		// A command layer proposed a screen the app does not have.
		return Result{
			Kind:         ResultClarification,
			ResponseText: d.pick(clarificationPool),
			Spoken:       true,
		}
	}

	return Result{
		Kind:         ResultCommand,
		Navigation:   &target,
		ResponseText: d.openingPhrase(target.Screen),
		Spoken:       true,
	}
}

func (d *Dispatcher) dispatchConversation(cl intent.Classification, repeated bool) Result {
	var reply string
	switch {
	case cl.Reply != "":
		reply = cl.Reply
	case cl.TargetIntent == "time-date":
		reply = d.timeAnswer()
	default:
		pool, ok := conversationPools[cl.TargetIntent]
		if !ok {
			return d.Apology()
		}
		reply = d.pick(pool)
	}

	if repeated {
		reply = d.pick(repetitionPrefixPool) + reply
	}
	return Result{
		Kind:         ResultConversation,
		ResponseText: reply,
		Spoken:       true,
	}
}

// openingPhrase builds the spoken confirmation attached to every
// navigation.
func (d *Dispatcher) openingPhrase(screen string) string {
	label, ok := d.labels[screen]
	if !ok {
		label = screen
	}
	return "Đang mở " + label
}

// timeAnswer renders the current time and date for the time-date category.
func (d *Dispatcher) timeAnswer() string {
	now := d.clk.Now()
	return fmt.Sprintf("Dạ bây giờ là %d giờ %02d phút, %s, ngày %d tháng %d năm %d ạ.",
		now.Hour(), now.Minute(), weekdayLabel(int(now.Weekday())),
		now.Day(), int(now.Month()), now.Year())
}

func weekdayLabel(weekday int) string {
	labels := [...]string{
		"chủ nhật", "thứ hai", "thứ ba", "thứ tư",
		"thứ năm", "thứ sáu", "thứ bảy",
	}
	return labels[weekday%len(labels)]
}

// isRepetition reports whether text closely overlaps one of the last few
// remembered utterances.
func (d *Dispatcher) isRepetition(text string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, e := range d.hist.last(repetitionWindow) {
		if wordOverlap(text, e.Text) > 0.6 {
			return true
		}
	}
	return false
}

func (d *Dispatcher) remember(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hist.append(HistoryEntry{Text: text, At: d.clk.Now()})
}

// pick selects a random entry from pool.
func (d *Dispatcher) pick(pool []string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return pool[d.rng.IntN(len(pool))]
}

// wordOverlap is |common words| / max(|words a|, |words b|) over distinct
// word sets.
func wordOverlap(a, b string) float64 {
	wa := make(map[string]bool)
	for _, w := range strings.Fields(a) {
		wa[w] = true
	}
	wb := make(map[string]bool)
	for _, w := range strings.Fields(b) {
		wb[w] = true
	}
	if len(wa) == 0 || len(wb) == 0 {
		return 0
	}
	common := 0
	for w := range wb {
		if wa[w] {
			common++
		}
	}
	return float64(common) / float64(max(len(wa), len(wb)))
}
