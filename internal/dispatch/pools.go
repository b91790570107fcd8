package dispatch

// Response pools. Replies are picked at random so repeated interactions do
// not sound robotic. All strings are written to be read aloud to an elderly
// Vietnamese user.

// screenLabels maps navigation screen names to their spoken Vietnamese
// labels used in the "Đang mở ..." confirmation.
var screenLabels = map[string]string{
	"Home":       "trang chủ",
	"Video":      "video",
	"Stories":    "truyện",
	"Games":      "trò chơi",
	"Radio":      "radio",
	"Exercise":   "tập thể dục",
	"Medication": "nhắc thuốc",
	"Camera":     "máy ảnh",
	"Settings":   "cài đặt",
}

var capabilityPool = []string{
	"Cháu có thể mở video, đọc truyện, bật radio, nhắc bác uống thuốc, hướng dẫn tập thể dục và trò chuyện cùng bác ạ.",
	"Bác cứ nói là cháu làm: xem video, nghe truyện, nghe đài, chơi trò chơi, chụp ảnh hay nhắc uống thuốc đều được ạ.",
	"Cháu biết mở các mục trong ứng dụng như video, truyện, radio, và cháu cũng thích nói chuyện với bác lắm ạ.",
}

var apologyPool = []string{
	"Cháu xin lỗi, cháu chưa hiểu ý bác. Bác nói lại giúp cháu nhé.",
	"Dạ cháu nghe chưa rõ, bác nhắc lại được không ạ?",
	"Xin lỗi bác, bác có thể nói cách khác giúp cháu không ạ?",
}

var clarificationPool = []string{
	"Bác muốn mở mục nào ạ? Bác nói tên mục giúp cháu nhé.",
	"Dạ bác nói rõ hơn một chút giúp cháu được không ạ?",
}

var systemBusyPool = []string{
	"Hệ thống đang bận, bác chờ một chút rồi thử lại giúp cháu nhé.",
	"Dạ mạng hơi chậm, bác thử lại sau một lát nhé.",
}

var repetitionPrefixPool = []string{
	"Dạ bác vừa hỏi câu này rồi ạ. ",
	"Câu này bác mới hỏi xong nè. ",
}

// conversationPools keys pooled replies by the classifier's category name.
// The time-date category is answered dynamically in the dispatcher instead.
var conversationPools = map[string][]string{
	"greeting": {
		"Dạ cháu chào bác ạ! Hôm nay bác thấy trong người thế nào ạ?",
		"Cháu chào bác! Bác cần cháu giúp gì hôm nay ạ?",
	},
	"ask-name": {
		"Dạ cháu là trợ lý giọng nói của bác, bác cứ gọi cháu là cháu thôi ạ.",
		"Cháu là người bạn nhỏ trong máy của bác đây ạ.",
	},
	"farewell": {
		"Dạ cháu chào bác, bác nghỉ ngơi nhé!",
		"Tạm biệt bác, khi nào cần bác cứ gọi cháu ạ.",
	},
	"weather": {
		"Dạ cháu chưa xem được dự báo thời tiết, nhưng bác nhớ mặc ấm khi ra ngoài nhé.",
		"Cháu xin lỗi, cháu chưa biết thời tiết hôm nay. Bác hỏi người nhà giúp cháu nhé.",
	},
	"jokes": {
		"Dạ có con cá nào không biết bơi không bác? Là con cá... gỗ đó ạ!",
		"Bác ơi, cái gì càng lau càng bẩn? Là cái khăn lau đó ạ!",
	},
	"health-advice": {
		"Bác nhớ uống đủ nước, ăn nhiều rau và đi bộ nhẹ nhàng mỗi ngày nhé.",
		"Dạ bác nên ngủ đủ giấc và uống thuốc đúng giờ. Bác giữ gìn sức khỏe ạ.",
	},
}
