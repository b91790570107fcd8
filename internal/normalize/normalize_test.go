package normalize

import "testing"

func TestNormalize(t *testing.T) {
	t.Parallel()

	n := New()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "lowercase and trim",
			input: "  Trang Chủ  ",
			want:  "trang chủ",
		},
		{
			name:  "diacritic substitution",
			input: "trang chu",
			want:  "trang chủ",
		},
		{
			name:  "multi word phrase wins over single words",
			input: "tap the duc",
			want:  "tập thể dục",
		},
		{
			name:  "leading and trailing fillers stripped",
			input: "ơi mở trang chủ nhé",
			want:  "mở trang chủ",
		},
		{
			name:  "echo phrase removed",
			input: "tôi đang nghe mở radio",
			want:  "mở radio",
		},
		{
			name:  "mixed ascii sentence",
			input: "toi muon doc truyen",
			want:  "tôi muốn đọc truyện",
		},
		{
			name:  "unmapped tokens pass through",
			input: "blah blah",
			want:  "blah blah",
		},
		{
			name:  "empty input",
			input: "   ",
			want:  "",
		},
		{
			name:  "whitespace collapsed",
			input: "mở   trang   chu",
			want:  "mở trang chủ",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := n.Normalize(tc.input); got != tc.want {
				t.Errorf("Normalize(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	t.Parallel()

	n := New()

	inputs := []string{
		"trang chu",
		"toi muon doc truyen",
		"ơi mở radio nhé",
		"may gio roi",
		"bạn có thể làm gì",
		"xem video hài",
		"chụp ảnh",
		"random gibberish here",
	}

	for _, in := range inputs {
		once := n.Normalize(in)
		twice := n.Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: first %q, second %q", in, once, twice)
		}
	}
}

func TestFuzzyMapNearMiss(t *testing.T) {
	t.Parallel()

	n := New()

	// "truyem" is a one-letter recognizer slip for "truyen".
	got := n.Normalize("doc truyem")
	if got != "đọc truyện" {
		t.Errorf("Normalize(%q) = %q, want %q", "doc truyem", got, "đọc truyện")
	}
}

func TestFuzzyDisabled(t *testing.T) {
	t.Parallel()

	n := New(WithFuzzyThreshold(2))

	got := n.Normalize("doc truyem")
	if got != "đọc truyem" {
		t.Errorf("Normalize with fuzzy disabled = %q, want %q", got, "đọc truyem")
	}
}

func TestStripEcho(t *testing.T) {
	t.Parallel()

	n := New(WithEchoPhrases([]string{"đang lắng nghe"}))

	got := n.StripEcho("Đang lắng nghe mở video")
	if got != "mở video" {
		t.Errorf("StripEcho = %q, want %q", got, "mở video")
	}
}

func TestCustomTables(t *testing.T) {
	t.Parallel()

	n := New(
		WithFillers([]string{"yo"}),
		WithSubstitutions(map[string]string{"home": "trang chủ"}),
	)

	got := n.Normalize("yo home")
	if got != "trang chủ" {
		t.Errorf("Normalize = %q, want %q", got, "trang chủ")
	}
}
