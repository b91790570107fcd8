package intent

import (
	"strings"
	"unicode/utf8"

	"github.com/carevoice/carevoice/internal/config"
)

// longPhraseRunes is the matched-phrase length above which a category score
// earns the long-phrase bonus.
const longPhraseRunes = 10

// Category is one semantic bucket of the pattern-scoring layer. A clause
// accumulates score from every trigger phrase it contains or closely
// overlaps.
type Category struct {
	// Name is the category identifier reported as TargetIntent.
	Name string

	// Kind is the tier this category resolves to.
	Kind Kind

	// Screen is the navigation target for command categories; empty
	// otherwise.
	Screen string

	// Phrases are the trigger phrases, already normalized (lowercase,
	// canonical diacritics).
	Phrases []string
}

// Option is a functional option for configuring a Classifier.
type Option func(*Classifier)

// WithKeywords replaces the exact-keyword table (phrase → screen).
func WithKeywords(table map[string]string) Option {
	return func(c *Classifier) {
		c.keywords = table
	}
}

// WithCategories replaces the pattern-scoring category list.
func WithCategories(categories []Category) Option {
	return func(c *Classifier) {
		c.categories = categories
	}
}

// WithScreens extends the exact-keyword table from screen configuration:
// every phrase of every screen maps directly to that screen.
func WithScreens(screens []config.ScreenConfig) Option {
	return func(c *Classifier) {
		for _, s := range screens {
			for _, p := range s.Phrases {
				c.keywords[strings.ToLower(p)] = s.Name
			}
		}
	}
}

// Classifier is the local intent classifier. It is read-only after
// construction and safe for concurrent use.
type Classifier struct {
	keywords   map[string]string
	categories []Category
	thresholds config.Thresholds
}

// New creates a Classifier with the built-in Vietnamese tables and the given
// scoring thresholds, then applies opts.
func New(thresholds config.Thresholds, opts ...Option) *Classifier {
	c := &Classifier{
		keywords:   defaultKeywords(),
		categories: defaultCategories(),
		thresholds: thresholds,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Classify classifies normalized text. Multi-clause utterances are split on
// sentence punctuation and the connective "và"; each clause is classified
// independently and the first clause at the highest tier wins.
func (c *Classifier) Classify(text string) Classification {
	best := Unknown()
	for _, clause := range splitClauses(text) {
		result := c.classifyClause(clause)
		if result.Kind.priority() > best.Kind.priority() {
			best = result
		}
	}
	return best
}

// classifyClause runs the exact-keyword layer, then pattern scoring.
func (c *Classifier) classifyClause(clause string) Classification {
	if clause == "" {
		return Unknown()
	}

	if cl, ok := c.matchKeyword(clause); ok {
		return cl
	}
	return c.scoreCategories(clause)
}

// matchKeyword checks the exact-keyword table for a substring hit. When
// several keys match, the longest wins. Confidence is the fraction of the
// clause covered by the matched phrase.
func (c *Classifier) matchKeyword(clause string) (Classification, bool) {
	var bestPhrase, bestScreen string
	for phrase, screen := range c.keywords {
		if strings.Contains(clause, phrase) && utf8.RuneCountInString(phrase) > utf8.RuneCountInString(bestPhrase) {
			bestPhrase, bestScreen = phrase, screen
		}
	}
	if bestPhrase == "" {
		return Classification{}, false
	}

	confidence := float64(utf8.RuneCountInString(bestPhrase)) / float64(utf8.RuneCountInString(clause))
	return Classification{
		Kind:         KindCommand,
		TargetIntent: bestScreen,
		Action:       &Action{Type: ActionNavigate, Screen: bestScreen},
		Confidence:   confidence,
	}, true
}

// scoreCategories runs the pattern-scoring layer over every category and
// picks a winner among those clearing the acceptance threshold.
//
// Selection among qualifying categories goes to the one whose single longest
// matched trigger phrase is longest; the summed score only breaks ties. A
// long specific phrase ("tôi muốn đọc truyện") is stronger evidence than
// many short incidental overlaps.
func (c *Classifier) scoreCategories(clause string) Classification {
	clauseLen := utf8.RuneCountInString(clause)
	clauseWords := uniqueWords(clause)

	var (
		bestCat     *Category
		bestScore   float64
		bestLongest int
	)

	for i := range c.categories {
		cat := &c.categories[i]
		score, longest := c.scoreCategory(cat, clause, clauseLen, clauseWords)
		if score <= c.thresholds.LocalAccept {
			continue
		}
		if longest > bestLongest || (longest == bestLongest && score > bestScore) {
			bestCat, bestScore, bestLongest = cat, score, longest
		}
	}

	if bestCat == nil {
		return Unknown()
	}

	cl := Classification{
		Kind:         bestCat.Kind,
		TargetIntent: bestCat.Name,
		Confidence:   bestScore,
	}
	if bestCat.Kind == KindCommand {
		cl.Action = &Action{Type: ActionNavigate, Screen: bestCat.Screen}
	}
	return cl
}

// scoreCategory sums the evidence for one category: full phrase coverage for
// substring hits, discounted word overlap for fuzzy hits. The long-phrase
// bonus rewards specific multi-word matches; the result is capped to 1.
func (c *Classifier) scoreCategory(cat *Category, clause string, clauseLen int, clauseWords map[string]bool) (score float64, longest int) {
	for _, phrase := range cat.Phrases {
		phraseLen := utf8.RuneCountInString(phrase)
		switch {
		case strings.Contains(clause, phrase):
			score += float64(phraseLen) / float64(clauseLen)
		default:
			if r := overlapRatio(clauseWords, phrase); r > c.thresholds.SimilarityCutoff {
				score += r * 0.8
			} else {
				continue
			}
		}
		if phraseLen > longest {
			longest = phraseLen
		}
	}

	if longest > longPhraseRunes {
		score *= c.thresholds.LongPhraseBonus
	}
	if score > 1 {
		score = 1
	}
	return score, longest
}

// overlapRatio is |common words| / max(|words a|, |words b|) over the
// distinct word sets of the clause and the phrase.
func overlapRatio(clauseWords map[string]bool, phrase string) float64 {
	phraseWords := uniqueWords(phrase)
	if len(clauseWords) == 0 || len(phraseWords) == 0 {
		return 0
	}

	common := 0
	for w := range phraseWords {
		if clauseWords[w] {
			common++
		}
	}
	return float64(common) / float64(max(len(clauseWords), len(phraseWords)))
}

func uniqueWords(s string) map[string]bool {
	words := make(map[string]bool)
	for _, w := range strings.Fields(s) {
		words[w] = true
	}
	return words
}

// splitClauses breaks an utterance into independent clauses on sentence
// punctuation and the connective "và".
func splitClauses(text string) []string {
	parts := strings.FieldsFunc(text, func(r rune) bool {
		switch r {
		case '.', '!', '?', ';', ',':
			return true
		}
		return false
	})

	var clauses []string
	for _, part := range parts {
		words := strings.Fields(part)
		start := 0
		for i, w := range words {
			if w == "và" {
				if clause := strings.Join(words[start:i], " "); clause != "" {
					clauses = append(clauses, clause)
				}
				start = i + 1
			}
		}
		if clause := strings.Join(words[start:], " "); clause != "" {
			clauses = append(clauses, clause)
		}
	}
	return clauses
}
