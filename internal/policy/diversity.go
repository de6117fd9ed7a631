package policy

import (
	"fmt"
	"strings"

	"github.com/qs3c/engage_go_server/internal/pkg/textutil"
)

// 语气分桶
const (
	ToneObservational = "observational"
	ToneCurious       = "curious"
	ToneSupportive    = "supportive"
	ToneCelebratory   = "celebratory"
	TonePlayful       = "playful"
)

// toneOrder 轮询顺序
var toneOrder = []string{ToneObservational, ToneCurious, ToneSupportive, ToneCelebratory, TonePlayful}

var toneKeywords = map[string][]string{
	ToneCelebratory: {"congrats", "congratulations", "cheers", "celebrat", "milestone", "well deserved", "big win", "champion", "🎉", "🥳", "🏆", "🍾"},
	ToneSupportive:  {"you got this", "keep going", "rooting for", "proud of", "inspiring", "so good to see", "sending love", "💪", "🙌", "❤", "🫶"},
	TonePlayful:     {"haha", "lol", "jealous", "not me", "sneaky", "plot twist", "mood", "😂", "🤣", "😜", "😄", "👀"},
}

// Tone 按启发式判断一条评论的语气
func Tone(text string) string {
	if strings.Contains(text, "?") {
		return ToneCurious
	}
	lower := strings.ToLower(text)
	for _, tone := range []string{ToneCelebratory, ToneSupportive, TonePlayful} {
		if textutil.ContainsAny(lower, toneKeywords[tone]) {
			return tone
		}
	}
	return ToneObservational
}

// Diversify 按语气分桶后轮询挑选，跳过开头重复或过于相似的候选；
// 结果里没有问句时补一个围绕话题的轻量提问
func (e *Engine) Diversify(accepted []string, topics []string) []string {
	buckets := make(map[string][]string, len(toneOrder))
	for _, c := range accepted {
		t := Tone(c)
		buckets[t] = append(buckets[t], c)
	}

	selected := make([]string, 0, len(accepted)+1)
	selectedSets := make([]map[string]struct{}, 0, len(accepted)+1)
	openers := make(map[string]struct{}, len(accepted)+1)

	take := func(c string) bool {
		sig := textutil.OpeningSignature(c, OpeningTokens)
		if _, dup := openers[sig]; dup {
			return false
		}
		set := textutil.TokenSet(c)
		for _, s := range selectedSets {
			if textutil.JaccardSets(set, s) > DiversitySimilarityThreshold {
				return false
			}
		}
		selected = append(selected, c)
		selectedSets = append(selectedSets, set)
		openers[sig] = struct{}{}
		return true
	}

	for remaining := len(accepted); remaining > 0 && len(selected) < e.maxAccepted; {
		for _, tone := range toneOrder {
			if len(selected) >= e.maxAccepted {
				break
			}
			// 当前桶里找到一条可用的即进入下一个桶
			for len(buckets[tone]) > 0 {
				c := buckets[tone][0]
				buckets[tone] = buckets[tone][1:]
				remaining--
				if take(c) {
					break
				}
			}
		}
	}

	for _, c := range selected {
		if strings.Contains(c, "?") {
			return selected
		}
	}
	q := topicQuestion(topics, openers)
	if q == "" {
		return selected
	}
	if len(selected) >= e.maxAccepted {
		selected[len(selected)-1] = q
		return selected
	}
	return append(selected, q)
}

var questionTemplates = []string{
	"What was the best part of the %s?",
	"How did the %s come together?",
	"Any tips for someone trying %s?",
}

var fallbackQuestions = []string{
	"What's the story behind this one?",
	"How did this moment come together?",
}

// topicQuestion 生成一个开头未被使用过的提问
func topicQuestion(topics []string, openers map[string]struct{}) string {
	var candidates []string
	for _, topic := range topics {
		topic = strings.TrimSpace(strings.TrimPrefix(topic, "#"))
		if topic == "" {
			continue
		}
		for _, tpl := range questionTemplates {
			candidates = append(candidates, fmt.Sprintf(tpl, strings.ToLower(topic)))
		}
		break
	}
	candidates = append(candidates, fallbackQuestions...)

	for _, q := range candidates {
		if _, dup := openers[textutil.OpeningSignature(q, OpeningTokens)]; dup {
			continue
		}
		return textutil.TruncateBytes(q, textutil.MaxCommentBytes)
	}
	return ""
}
