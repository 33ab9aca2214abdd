// Package emotion tags companion replies with an expression code when the
// language model did not embed one itself. Pure keyword scoring, no model
// round trip.
package emotion

import "strings"

// Label 表示回复可以携带的表情代码。
type Label string

const (
	Neutral   Label = "neutral"
	Happy     Label = "happy"
	Sad       Label = "sad"
	Angry     Label = "angry"
	Surprised Label = "surprised"
	Wink      Label = "wink"
	Blush     Label = "blush"
)

// Decision 给出表情识别结果与置信得分。
type Decision struct {
	Emotion Label
	Score   int
}

var keywordBuckets = map[Label][]string{
	Happy: {
		"开心", "高兴", "喜悦", "快乐", "太好了", "太棒了", "真棒", "哈哈", "好耶", "笑死", "满意",
		"glad", "happy", "great", "awesome", "amazing", "thanks", "thank you", "love", "lol",
	},
	Sad: {
		"难过", "伤心", "失落", "沮丧", "悲伤", "哭", "痛苦", "寂寞", "孤单", "失望", "心碎", "委屈",
		"sad", "cry", "sorry", "unhappy", "depressed", "upset", "hurt", "sorrow", "miss you",
	},
	Angry: {
		"生气", "愤怒", "火大", "气死", "烦死", "受够了", "气愤", "抓狂", "气炸",
		"angry", "furious", "rage", "mad", "annoyed", "pissed", "outrage",
	},
	Surprised: {
		"惊讶", "惊喜", "震惊", "没想到", "居然", "竟然", "哇塞", "哇哦", "不会吧", "天哪",
		"wow", "really", "no way", "unbelievable", "surprised", "can't believe", "what?!",
	},
	Wink: {
		"嘿嘿", "调皮", "眨眼", "小秘密", "猜猜", "逗你", "开玩笑",
		"wink", "tease", "just kidding", "secret", "guess what", ";)",
	},
	Blush: {
		"害羞", "脸红", "不好意思", "讨厌啦", "人家", "夸我",
		"blush", "shy", "embarrassed", "flattered", "you're sweet",
	},
}

// punctuationBoost 根据语气符号增强对应表情的得分。
var punctuationBoost = map[Label]int{
	Surprised: 2,
	Happy:     1,
}

// Analyze 为一段回复挑选表情代码。命中多个类别时取得分最高者，
// 没有任何命中时返回 Neutral。
func Analyze(reply string) Decision {
	normalized := strings.TrimSpace(strings.ToLower(reply))
	if normalized == "" {
		return Decision{Emotion: Neutral}
	}

	scores := make(map[Label]int)
	for label, keywords := range keywordBuckets {
		for _, word := range keywords {
			if word == "" {
				continue
			}
			if strings.Contains(normalized, strings.ToLower(word)) {
				scores[label] += 3
			}
		}
	}

	exclamations := strings.Count(reply, "!") + strings.Count(reply, "！")
	if exclamations > 0 {
		scores[Happy] += punctuationBoost[Happy]
	}
	questions := strings.Count(reply, "?!") + strings.Count(reply, "？！")
	if questions > 0 {
		scores[Surprised] += questions * punctuationBoost[Surprised]
	}

	best := Neutral
	bestScore := 0
	for label, s := range scores {
		if s > bestScore || (s == bestScore && label < best) {
			best = label
			bestScore = s
		}
	}
	if bestScore == 0 {
		return Decision{Emotion: Neutral}
	}
	return Decision{Emotion: best, Score: bestScore}
}
