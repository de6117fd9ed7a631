package policy

import (
	"regexp"

	"github.com/qs3c/engage_go_server/internal/pkg/textutil"
)

// 拒绝原因
const (
	ReasonEmpty             = "empty"
	ReasonBlockedTerm       = "blocked_term"
	ReasonSensitiveClaim    = "sensitive_claim"
	ReasonHistorySimilarity = "history_similarity"
	ReasonBatchSimilarity   = "batch_similarity"
	ReasonRepeatedOpening   = "repeated_opening"
	ReasonGenericPhrase     = "generic_phrase"
	ReasonWeakGrounding     = "weak_visual_grounding"
	ReasonLowInformation    = "low_information"
	ReasonAcceptedLimit     = "accepted_limit"
)

// 相似度阈值
const (
	HistorySimilarityThreshold   = 0.82
	BatchSimilarityThreshold     = 0.75
	DiversitySimilarityThreshold = 0.74

	OpeningTokens = 3
	minMeaningful = 2
)

type rule struct {
	code    string
	pattern *regexp.Regexp
}

func matchAny(rules []rule, text string) []string {
	var hits []string
	for _, r := range rules {
		if r.pattern.MatchString(text) {
			hits = append(hits, r.code)
		}
	}
	return hits
}

// DefaultBlockedTerms 即使配置为空也会拦截的词
var DefaultBlockedTerms = []string{
	"follow me", "follow back", "check my page", "check out my", "dm me", "link in bio",
	"promo code", "giveaway", "onlyfans", "crypto", "forex", "investment opportunity",
	"sugar daddy", "nsfw",
}

// 对个人敏感属性的断言（健康、宗教、性取向、身材、经济、婚恋）
var sensitiveClaimRules = []rule{
	{code: "health", pattern: regexp.MustCompile(`(?i)\byou(?:'re| are|r)?\s+(?:so\s+|clearly\s+|definitely\s+)?(?:pregnant|sick|depressed|anxious|autistic|diabetic|ill)\b`)},
	{code: "body", pattern: regexp.MustCompile(`(?i)\b(?:you(?:'ve| have)?\s+(?:lost|gained)\s+(?:so much\s+)?weight|you(?:'re| are)\s+(?:so\s+)?(?:fat|skinny|thin|chubby|overweight))\b`)},
	{code: "orientation", pattern: regexp.MustCompile(`(?i)\byou(?:'re| are)\s+(?:so\s+|clearly\s+)?(?:gay|lesbian|straight|bi|trans|queer)\b`)},
	{code: "religion", pattern: regexp.MustCompile(`(?i)\b(?:you(?:'re| are)\s+(?:a\s+)?(?:christian|muslim|jewish|hindu|buddhist|atheist)|your\s+(?:religion|faith))\b`)},
	{code: "ethnicity", pattern: regexp.MustCompile(`(?i)\byour\s+(?:race|ethnicity|skin colou?r|nationality)\b`)},
	{code: "finances", pattern: regexp.MustCompile(`(?i)\byou(?:'re| are)\s+(?:so\s+)?(?:rich|poor|broke|loaded)\b`)},
	{code: "relationship", pattern: regexp.MustCompile(`(?i)\b(?:is (?:that|this|he|she) your (?:boyfriend|girlfriend|husband|wife|partner)|you(?:'re| are)\s+(?:single|divorced|engaged|married))\b`)},
	{code: "age", pattern: regexp.MustCompile(`(?i)\byou\s+(?:look|are)\s+(?:so\s+)?(?:old|\d{2}\s*(?:years? old)?)\b`)},
}

// 空洞夸奖与机器腔
var genericPhraseRules = []rule{
	{code: "canned_compliment", pattern: regexp.MustCompile(`(?i)\b(?:great|nice|amazing|awesome|love\s+(?:your|the))\s+(?:content|feed|page|profile|account)\b`)},
	{code: "single_word_compliment", pattern: regexp.MustCompile(`(?i)^\s*(?:nice|cool|wow|awesome|amazing|beautiful|lovely|stunning|gorgeous)(?:\s+(?:pic|photo|shot|one))?\s*[!.]*\s*$`)},
	{code: "keep_it_up", pattern: regexp.MustCompile(`(?i)\bkeep\s+(?:it\s+up|up\s+the\s+(?:good|great)\s+work)\b`)},
	{code: "as_always", pattern: regexp.MustCompile(`(?i)\b(?:as always|never disappoints?|another banger)\b`)},
	{code: "robotic_meta", pattern: regexp.MustCompile(`(?i)\b(?:as an ai|language model|here (?:are|is) (?:a |some |the )?(?:comments?|suggestions?|options?)|the (?:image|photo|picture|video) (?:shows|depicts|features)|in this (?:image|photo|picture|video)|this post (?:shows|features|depicts))\b`)},
}

// contextStoplist 流水线内部术语，不算作有效上下文
var contextStoplist = textutil.SetOf([]string{
	"ocr", "text", "image", "video", "photo", "post", "story", "reel", "object", "objects", "label", "labels",
	"scene", "scenes", "face", "faces", "person", "people", "caption", "transcript", "detected", "confidence",
	"unknown", "primary", "secondary", "none", "null", "media", "content", "frame", "shot", "signal",
	"the", "and", "with", "for", "from", "this", "that",
})

// lowInfoStoplist 不携带信息的词
var lowInfoStoplist = textutil.SetOf([]string{
	"a", "an", "the", "this", "that", "these", "those", "is", "are", "was", "were", "be", "been", "it", "its", "it's",
	"so", "very", "really", "just", "such", "what", "and", "or", "but", "you", "your", "you're", "my", "me", "i'm",
	"of", "to", "for", "in", "on", "at", "with", "great", "good", "nice", "cool", "wow", "omg", "lol", "haha",
	"post", "pic", "photo", "content", "amazing", "awesome", "beautiful", "look", "looks", "like", "too", "much",
	"yes", "yay", "oh", "ok", "okay", "all", "here", "there",
})
