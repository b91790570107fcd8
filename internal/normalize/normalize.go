// Package normalize canonicalizes raw Vietnamese transcript text before
// intent classification.
//
// The pipeline is pure and deterministic: lowercase and trim, strip
// recognizer echo phrases (the app's own spoken prompts bleeding back into
// the microphone), strip leading/trailing filler particles, then apply a
// word-boundary substitution table that maps common unaccented renderings
// onto their canonical diacritic forms. A Jaro-Winkler assisted secondary
// pass catches near-miss ASCII spellings the fixed table does not list.
//
// Normalize is idempotent: canonical accented output contains no filler
// tokens and no ASCII table keys, so running it through the pipeline again
// returns it unchanged.
package normalize

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

const (
	defaultFuzzyThreshold = 0.88

	// phoneticThreshold is the lower Jaro-Winkler bar applied when the token
	// and the candidate key share a Double Metaphone code.
	phoneticThreshold = 0.84
)

// Option is a functional option for configuring a Normalizer.
type Option func(*Normalizer)

// WithEchoPhrases replaces the list of recognizer echo phrases stripped from
// the text. Matching is case-insensitive substring removal.
func WithEchoPhrases(phrases []string) Option {
	return func(n *Normalizer) {
		n.echoPhrases = phrases
	}
}

// WithFillers replaces the list of filler particles stripped from the start
// and end of the utterance.
func WithFillers(fillers []string) Option {
	return func(n *Normalizer) {
		n.fillers = make(map[string]bool, len(fillers))
		for _, f := range fillers {
			n.fillers[f] = true
		}
	}
}

// WithSubstitutions replaces the word-boundary substitution table. Keys are
// lowercase unaccented phrases (one or more space-separated words); values
// are the canonical accented forms. Values must never themselves be keys,
// otherwise idempotence is lost.
func WithSubstitutions(table map[string]string) Option {
	return func(n *Normalizer) {
		n.subs = table
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score for the near-miss
// pass to map an unknown ASCII token onto a table key. Default: 0.88.
// A threshold > 1 disables the pass.
func WithFuzzyThreshold(threshold float64) Option {
	return func(n *Normalizer) {
		n.fuzzyThreshold = threshold
	}
}

// Normalizer holds the tables driving normalization. It is read-only after
// construction and safe for concurrent use.
type Normalizer struct {
	echoPhrases    []string
	fillers        map[string]bool
	subs           map[string]string
	fuzzyThreshold float64

	// Derived at construction.
	maxSubWords   int
	singleSubKeys []string
	keyCodes      map[string]map[string]struct{}
}

// New creates a Normalizer with the default Vietnamese tables, then applies
// opts.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		echoPhrases:    defaultEchoPhrases(),
		subs:           defaultSubstitutions(),
		fuzzyThreshold: defaultFuzzyThreshold,
	}
	WithFillers(defaultFillers())(n)
	for _, o := range opts {
		o(n)
	}

	for key := range n.subs {
		words := len(strings.Fields(key))
		if words > n.maxSubWords {
			n.maxSubWords = words
		}
		if words == 1 {
			n.singleSubKeys = append(n.singleSubKeys, key)
		}
	}

	n.keyCodes = make(map[string]map[string]struct{}, len(n.singleSubKeys))
	for _, key := range n.singleSubKeys {
		n.keyCodes[key] = metaphoneCodes(key)
	}
	return n
}

// Normalize canonicalizes text. It never fails; unmapped tokens pass through
// unchanged.
func (n *Normalizer) Normalize(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	if s == "" {
		return ""
	}

	s = n.StripEcho(s)
	s = n.stripFillers(s)
	s = n.substitute(s)
	return s
}

// StripEcho removes known recognizer echo phrases from text. It is exposed
// separately so the transcription provider can filter completed transcripts
// before they enter the pipeline.
func (n *Normalizer) StripEcho(text string) string {
	s := strings.ToLower(text)
	for _, phrase := range n.echoPhrases {
		s = strings.ReplaceAll(s, phrase, " ")
	}
	return strings.Join(strings.Fields(s), " ")
}

// stripFillers drops filler particles from the start and end of the
// utterance. Fillers in the middle carry meaning often enough (e.g., "là" as
// a copula) that they are left alone.
func (n *Normalizer) stripFillers(s string) string {
	words := strings.Fields(s)
	for len(words) > 0 && n.fillers[words[0]] {
		words = words[1:]
	}
	for len(words) > 0 && n.fillers[words[len(words)-1]] {
		words = words[:len(words)-1]
	}
	return strings.Join(words, " ")
}

// substitute applies the word-boundary substitution table using longest-match
// n-gram replacement, then the Jaro-Winkler near-miss pass on leftover ASCII
// tokens.
func (n *Normalizer) substitute(s string) string {
	words := strings.Fields(s)
	var out []string

	for i := 0; i < len(words); {
		replaced := false
		// Longest phrase first so "tap the duc" wins over "the duc".
		for span := min(n.maxSubWords, len(words)-i); span >= 1; span-- {
			key := strings.Join(words[i:i+span], " ")
			if repl, ok := n.subs[key]; ok {
				out = append(out, strings.Fields(repl)...)
				i += span
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, n.fuzzyMap(words[i]))
			i++
		}
	}
	return strings.Join(out, " ")
}

// fuzzyMap maps a single unknown ASCII token onto the closest single-word
// table key. A key sharing a Double Metaphone code with the token is accepted
// at the lower phonetic bar; otherwise the Jaro-Winkler similarity must clear
// the fuzzy threshold. Tokens that already carry diacritics are canonical and
// pass through untouched, which keeps Normalize idempotent.
func (n *Normalizer) fuzzyMap(word string) string {
	if n.fuzzyThreshold > 1 || !isASCIIWord(word) || len(word) < 3 {
		return word
	}

	wordCodes := metaphoneCodes(word)

	var bestKey string
	var bestScore float64
	for _, key := range n.singleSubKeys {
		score := matchr.JaroWinkler(word, key, false)
		bar := n.fuzzyThreshold
		if codesOverlap(wordCodes, n.keyCodes[key]) {
			bar = min(phoneticThreshold, n.fuzzyThreshold)
		}
		if score >= bar && score > bestScore {
			bestScore = score
			bestKey = key
		}
	}
	if bestKey != "" {
		return n.subs[bestKey]
	}
	return word
}

// metaphoneCodes returns the set of Double Metaphone codes for a token,
// excluding empty codes.
func metaphoneCodes(token string) map[string]struct{} {
	codes := make(map[string]struct{}, 2)
	p, s := matchr.DoubleMetaphone(token)
	if p != "" {
		codes[p] = struct{}{}
	}
	if s != "" {
		codes[s] = struct{}{}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

func isASCIIWord(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII {
			return false
		}
	}
	return true
}

// defaultEchoPhrases lists prompts the app itself speaks that commonly bleed
// back through the microphone into the transcript.
func defaultEchoPhrases() []string {
	return []string{
		"tôi đang nghe",
		"toi dang nghe",
		"đang lắng nghe",
		"xin mời nói",
		"bạn cần gì ạ",
	}
}

// defaultFillers lists particles with no command content when they open or
// close an utterance.
func defaultFillers() []string {
	return []string{
		"ơi", "à", "ạ", "ừ", "ừm", "ờ", "ơ",
		"nhé", "nha", "nhá", "dạ", "vâng",
		"um", "uh", "er",
	}
}

// defaultSubstitutions maps common unaccented renderings produced by the
// recognizer onto canonical Vietnamese forms. Values never appear as keys.
func defaultSubstitutions() map[string]string {
	return map[string]string{
		// Navigation vocabulary.
		"trang chu":   "trang chủ",
		"man hinh":    "màn hình",
		"quay lai":    "quay lại",
		"doc truyen":  "đọc truyện",
		"doc":         "đọc",
		"truyen":      "truyện",
		"nghe nhac":   "nghe nhạc",
		"nhac":        "nhạc",
		"nghe dai":    "nghe đài",
		"radio":       "radio",
		"tro choi":    "trò chơi",
		"choi game":   "chơi game",
		"tap the duc": "tập thể dục",
		"the duc":     "thể dục",
		"uong thuoc":  "uống thuốc",
		"thuoc":       "thuốc",
		"chup anh":    "chụp ảnh",
		"may anh":     "máy ảnh",
		"cai dat":     "cài đặt",

		// Conversational vocabulary.
		"may gio roi": "mấy giờ rồi",
		"may gio":     "mấy giờ",
		"thoi tiet":   "thời tiết",
		"hom nay":     "hôm nay",
		"xin chao":    "xin chào",
		"chao":        "chào",
		"tam biet":    "tạm biệt",
		"cam on":      "cảm ơn",
		"ke chuyen":   "kể chuyện",
		"suc khoe":    "sức khỏe",

		// Frequent single words.
		"toi":  "tôi",
		"ban":  "bạn",
		"muon": "muốn",
		"gio":  "giờ",
		"roi":  "rồi",
		"xem":  "xem",
		"mo":   "mở",
		"bat":  "bật",
		"gi":   "gì",
	}
}
