package intent

import (
	"reflect"
	"testing"

	"github.com/carevoice/carevoice/internal/config"
)

func newTestClassifier(opts ...Option) *Classifier {
	return New(config.DefaultThresholds(), opts...)
}

func TestClassifyKeywordTable(t *testing.T) {
	t.Parallel()

	c := newTestClassifier()

	// Every phrase in the exact-keyword table must classify as a Command
	// targeting its mapped screen, at full confidence.
	for phrase, screen := range defaultKeywords() {
		got := c.Classify(phrase)
		if got.Kind != KindCommand {
			t.Errorf("Classify(%q).Kind = %v, want %v", phrase, got.Kind, KindCommand)
		}
		if got.TargetIntent != screen {
			t.Errorf("Classify(%q).TargetIntent = %q, want %q", phrase, got.TargetIntent, screen)
		}
		if got.Action == nil || got.Action.Screen != screen {
			t.Errorf("Classify(%q).Action = %+v, want navigate to %q", phrase, got.Action, screen)
		}
		if got.Confidence != 1 {
			t.Errorf("Classify(%q).Confidence = %v, want 1", phrase, got.Confidence)
		}
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	c := newTestClassifier()

	tests := []struct {
		name       string
		input      string
		wantKind   Kind
		wantTarget string
		wantScreen string
	}{
		{
			name:       "home keyword",
			input:      "trang chủ",
			wantKind:   KindCommand,
			wantTarget: ScreenHome,
			wantScreen: ScreenHome,
		},
		{
			name:       "read story sentence",
			input:      "tôi muốn đọc truyện",
			wantKind:   KindCommand,
			wantTarget: "read-story",
			wantScreen: ScreenStories,
		},
		{
			name:       "capabilities question",
			input:      "bạn có thể làm gì",
			wantKind:   KindQuestion,
			wantTarget: "ask-capabilities",
		},
		{
			name:       "time conversation",
			input:      "mấy giờ rồi",
			wantKind:   KindConversation,
			wantTarget: "time-date",
		},
		{
			name:       "watch video sentence",
			input:      "tôi muốn xem video",
			wantKind:   KindCommand,
			wantTarget: "watch-video",
			wantScreen: ScreenVideo,
		},
		{
			name:     "gibberish",
			input:    "xyz abc qqq",
			wantKind: KindUnknown,
		},
		{
			name:     "empty",
			input:    "",
			wantKind: KindUnknown,
		},
		{
			name:       "command beats conversation across clauses",
			input:      "xin chào và mở radio",
			wantKind:   KindCommand,
			wantTarget: ScreenRadio,
			wantScreen: ScreenRadio,
		},
		{
			name:       "punctuation clause split",
			input:      "mấy giờ rồi? mở video",
			wantKind:   KindCommand,
			wantTarget: ScreenVideo,
			wantScreen: ScreenVideo,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := c.Classify(tc.input)
			if got.Kind != tc.wantKind {
				t.Fatalf("Classify(%q).Kind = %v, want %v", tc.input, got.Kind, tc.wantKind)
			}
			if tc.wantTarget != "" && got.TargetIntent != tc.wantTarget {
				t.Errorf("Classify(%q).TargetIntent = %q, want %q", tc.input, got.TargetIntent, tc.wantTarget)
			}
			if tc.wantScreen != "" {
				if got.Action == nil || got.Action.Screen != tc.wantScreen {
					t.Errorf("Classify(%q).Action = %+v, want navigate to %q", tc.input, got.Action, tc.wantScreen)
				}
			}
			if tc.wantKind != KindCommand && got.Action != nil {
				t.Errorf("Classify(%q).Action = %+v, want nil for %v", tc.input, got.Action, tc.wantKind)
			}
		})
	}
}

func TestScoresStayInRange(t *testing.T) {
	t.Parallel()

	c := newTestClassifier()

	inputs := []string{
		"tôi muốn đọc truyện",
		"đọc truyện nghe truyện truyện cổ tích",
		"mấy giờ rồi bây giờ là mấy giờ",
		"bạn có thể làm gì giúp được gì",
		"uống thuốc nhắc uống thuốc lịch uống thuốc",
	}

	for _, in := range inputs {
		for _, clause := range splitClauses(in) {
			clauseWords := uniqueWords(clause)
			for i := range c.categories {
				score, _ := c.scoreCategory(&c.categories[i], clause, len([]rune(clause)), clauseWords)
				if score < 0 || score > 1 {
					t.Errorf("score for %q in category %q = %v, out of [0,1]", clause, c.categories[i].Name, score)
				}
			}
		}
	}
}

func TestLongestMatchedPhraseWins(t *testing.T) {
	t.Parallel()

	// Two artificial categories both exceed the acceptance threshold; the
	// one whose matched phrase is longer must win.
	c := newTestClassifier(WithKeywords(map[string]string{}), WithCategories([]Category{
		{Name: "short", Kind: KindConversation, Phrases: []string{"alpha beta"}},
		{Name: "long", Kind: KindConversation, Phrases: []string{"alpha beta gamma"}},
	}))

	got := c.Classify("alpha beta gamma")
	if got.TargetIntent != "long" {
		t.Errorf("TargetIntent = %q, want %q", got.TargetIntent, "long")
	}
}

func TestWithScreens(t *testing.T) {
	t.Parallel()

	c := newTestClassifier(WithScreens([]config.ScreenConfig{
		{Name: "Album", Phrases: []string{"xem ảnh cũ"}},
	}))

	got := c.Classify("xem ảnh cũ")
	want := Classification{
		Kind:         KindCommand,
		TargetIntent: "Album",
		Action:       &Action{Type: ActionNavigate, Screen: "Album"},
		Confidence:   1,
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Classify = %+v, want %+v", got, want)
	}
}

func TestOverlapRatio(t *testing.T) {
	t.Parallel()

	tests := []struct {
		clause string
		phrase string
		want   float64
	}{
		{"nghe đài đi", "nghe đài", 2.0 / 3.0},
		{"nghe đài", "nghe đài", 1},
		{"hoàn toàn khác", "nghe đài", 0},
		{"", "nghe đài", 0},
	}
	for _, tc := range tests {
		if got := overlapRatio(uniqueWords(tc.clause), tc.phrase); got != tc.want {
			t.Errorf("overlapRatio(%q, %q) = %v, want %v", tc.clause, tc.phrase, got, tc.want)
		}
	}
}

func TestSplitClauses(t *testing.T) {
	t.Parallel()

	got := splitClauses("xin chào, mở video và nghe nhạc nhé!")
	want := []string{"xin chào", "mở video", "nghe nhạc nhé"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("splitClauses = %v, want %v", got, want)
	}
}
