// Package intent classifies normalized Vietnamese utterances into typed
// intents using layered keyword lookup and category pattern scoring.
//
// Classification is fully synchronous and makes no network calls; utterances
// the local layers cannot resolve come back as Unknown and are escalated by
// the caller to the language-model fallback.
package intent

// Kind is the top-level classification of an utterance.
type Kind string

const (
	// KindCommand is an actionable request, typically navigation.
	KindCommand Kind = "command"

	// KindQuestion asks about the assistant itself (capabilities, help).
	KindQuestion Kind = "question"

	// KindConversation is small talk answered with a spoken reply.
	KindConversation Kind = "conversation"

	// KindUnknown means no layer produced a confident classification.
	KindUnknown Kind = "unknown"
)

// priority orders kinds for multi-clause combination: when an utterance
// contains several clauses, the first clause at the highest tier wins.
func (k Kind) priority() int {
	switch k {
	case KindCommand:
		return 3
	case KindQuestion:
		return 2
	case KindConversation:
		return 1
	default:
		return 0
	}
}

// ActionType discriminates the Action union.
type ActionType string

const (
	ActionNavigate ActionType = "navigate"
	ActionMedia    ActionType = "media"
	ActionSearch   ActionType = "search"
)

// Action is the concrete operation a Command classification resolves to.
type Action struct {
	Type ActionType

	// Screen is the navigation target for ActionNavigate.
	Screen string

	// Query carries the search text for ActionSearch.
	Query string
}

// Classification is the immutable result of classifying one utterance.
type Classification struct {
	// Kind is the top-level intent tier.
	Kind Kind

	// TargetIntent names the matched category ("read-story", "time-date")
	// or, for exact keyword hits, the mapped screen.
	TargetIntent string

	// Action is set for KindCommand only.
	Action *Action

	// Confidence is the classifier's certainty in [0, 1].
	Confidence float64

	// Reply is a pre-composed spoken reply. Only the language-model
	// fallback sets it; the dispatcher prefers it over pooled responses.
	Reply string
}

// Unknown is the zero-confidence classification returned when nothing
// matches.
func Unknown() Classification {
	return Classification{Kind: KindUnknown}
}
