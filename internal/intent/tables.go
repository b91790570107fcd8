package intent

// Screen names emitted as navigation targets. The UI's navigation layer is
// keyed on these; extra screens can be added through configuration.
const (
	ScreenHome       = "Home"
	ScreenVideo      = "Video"
	ScreenStories    = "Stories"
	ScreenGames      = "Games"
	ScreenRadio      = "Radio"
	ScreenExercise   = "Exercise"
	ScreenMedication = "Medication"
	ScreenCamera     = "Camera"
	ScreenSettings   = "Settings"
)

// defaultKeywords is the exact-phrase navigation table. These are direct
// screen names and short navigation orders; sentence-like requests ("tôi
// muốn đọc truyện") are handled by the category layer instead, so keys here
// deliberately avoid phrases that open the category trigger lists.
func defaultKeywords() map[string]string {
	return map[string]string{
		"trang chủ":      ScreenHome,
		"màn hình chính": ScreenHome,
		"về trang chủ":   ScreenHome,
		"mở video":       ScreenVideo,
		"mở truyện":      ScreenStories,
		"mở trò chơi":    ScreenGames,
		"mở radio":       ScreenRadio,
		"máy ảnh":        ScreenCamera,
		"cài đặt":        ScreenSettings,
	}
}

// defaultCategories is the pattern-scoring table. Phrases are normalized
// (lowercase, canonical diacritics) because classification runs after the
// normalizer.
func defaultCategories() []Category {
	return []Category{
		// Command categories.
		{
			Name: "read-story", Kind: KindCommand, Screen: ScreenStories,
			Phrases: []string{
				"đọc truyện", "nghe truyện", "muốn đọc truyện",
				"truyện cổ tích", "đọc sách",
			},
		},
		{
			Name: "watch-video", Kind: KindCommand, Screen: ScreenVideo,
			Phrases: []string{
				"xem video", "xem phim", "muốn xem video",
				"video hài", "coi phim",
			},
		},
		{
			Name: "play-game", Kind: KindCommand, Screen: ScreenGames,
			Phrases: []string{
				"chơi game", "chơi trò chơi", "trò chơi",
				"muốn chơi game", "giải trí",
			},
		},
		{
			Name: "listen-radio", Kind: KindCommand, Screen: ScreenRadio,
			Phrases: []string{
				"nghe đài", "nghe radio", "bật đài",
				"nghe nhạc", "muốn nghe nhạc",
			},
		},
		{
			Name: "exercise", Kind: KindCommand, Screen: ScreenExercise,
			Phrases: []string{
				"tập thể dục", "bài tập", "vận động",
				"muốn tập thể dục",
			},
		},
		{
			Name: "medication", Kind: KindCommand, Screen: ScreenMedication,
			Phrases: []string{
				"uống thuốc", "nhắc uống thuốc", "lịch uống thuốc",
				"thuốc của tôi",
			},
		},
		{
			Name: "camera", Kind: KindCommand, Screen: ScreenCamera,
			Phrases: []string{
				"chụp ảnh", "chụp hình", "mở máy ảnh",
			},
		},
		{
			Name: "settings", Kind: KindCommand, Screen: ScreenSettings,
			Phrases: []string{
				"mở cài đặt", "thiết lập", "điều chỉnh",
			},
		},

		// Question categories.
		{
			Name: "ask-capabilities", Kind: KindQuestion,
			Phrases: []string{
				"bạn có thể làm gì", "bạn làm được gì",
				"bạn biết làm gì", "giúp được gì",
			},
		},

		// Conversation categories.
		{
			Name: "greeting", Kind: KindConversation,
			Phrases: []string{
				"xin chào", "chào bạn", "chào buổi sáng",
			},
		},
		{
			Name: "ask-name", Kind: KindConversation,
			Phrases: []string{
				"bạn tên gì", "tên bạn là gì", "bạn là ai",
			},
		},
		{
			Name: "farewell", Kind: KindConversation,
			Phrases: []string{
				"tạm biệt", "hẹn gặp lại", "đi ngủ đây",
			},
		},
		{
			Name: "weather", Kind: KindConversation,
			Phrases: []string{
				"thời tiết", "thời tiết hôm nay", "trời có mưa",
			},
		},
		{
			Name: "time-date", Kind: KindConversation,
			Phrases: []string{
				"mấy giờ rồi", "mấy giờ", "hôm nay ngày mấy",
				"bây giờ là mấy giờ",
			},
		},
		{
			Name: "jokes", Kind: KindConversation,
			Phrases: []string{
				"kể chuyện cười", "nói đùa", "chuyện vui",
			},
		},
		{
			Name: "health-advice", Kind: KindConversation,
			Phrases: []string{
				"sức khỏe", "lời khuyên sức khỏe", "tư vấn sức khỏe",
				"mệt quá",
			},
		},
	}
}
