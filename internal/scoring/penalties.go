package scoring

import (
	"math"
	"regexp"

	"github.com/qs3c/engage_go_server/internal/model"
	"github.com/qs3c/engage_go_server/internal/pkg/textutil"
)

const (
	lowAnchorConfidence  = 0.5
	highAnchorConfidence = 0.7
)

var roboticPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bas an ai\b`),
	regexp.MustCompile(`\bcaptures? the essence\b`),
	regexp.MustCompile(`\b(?:a )?testament to\b`),
	regexp.MustCompile(`\bshowcas(?:e|es|ing)\b`),
	regexp.MustCompile(`\bwhat a (?:wonderful|delightful|lovely) (?:post|image|photo|moment)\b`),
	regexp.MustCompile(`\b(?:this|the) (?:image|photo|content|post) (?:is|shows|features)\b`),
	regexp.MustCompile(`\babsolutely (?:stunning|breathtaking|delightful)\b`),
	regexp.MustCompile(`\b(?:truly|simply) (?:inspiring|remarkable|captivating)\b`),
	regexp.MustCompile(`\bvibrant (?:colors|energy|atmosphere)\b`),
}

var complimentPattern = regexp.MustCompile(`^\s*(?:so |such |what an? |absolutely )?(?:amazing|beautiful|gorgeous|stunning|awesome|incredible|perfect|lovely)\b`)

var genericFiller = textutil.SetOf([]string{
	"amazing", "awesome", "great", "nice", "beautiful", "love", "cool", "wow", "stunning",
	"incredible", "perfect", "best", "gorgeous", "lovely", "fantastic", "vibes", "vibe",
	"post", "pic", "photo", "content", "this", "so", "such", "really",
})

var (
	singularPersonPattern = regexp.MustCompile(`\b(?:you look|you're looking|your (?:smile|outfit|hair|eyes|look|glow)|yourself|he's|she's|her|his)\b`)
	pluralPersonPattern   = regexp.MustCompile(`\b(?:you (?:all|guys|two|both)|y'all|everyone|squad|crew|gang|team|the (?:group|fam)|all of you|these (?:guys|two)|both of you)\b`)
)

// lowConfidencePenalty 命中低置信物体逐个扣分；有物体却没命中任何高置信物体再额外扣分
func lowConfidencePenalty(matched []model.ObjectDetection, hasObjects bool) float64 {
	p := 0.0
	high := false
	for _, o := range matched {
		if o.Confidence < lowAnchorConfidence {
			p -= 0.06
		}
		if o.Confidence >= highAnchorConfidence {
			high = true
		}
	}
	if hasObjects && !high {
		p -= 0.12
	}
	return math.Max(p, -0.3)
}

func roboticPenalty(lower string) float64 {
	p := 0.0
	for _, re := range roboticPatterns {
		if re.MatchString(lower) {
			p -= 0.15
		}
	}
	return math.Max(p, -0.4)
}

// genericPenalty 空话多且几乎没有视觉锚点
func genericPenalty(tokens []string, lower string, visual float64) float64 {
	p := 0.0
	if len(tokens) > 0 {
		filler := 0
		for _, t := range tokens {
			if _, ok := genericFiller[t]; ok {
				filler++
			}
		}
		if visual < 0.2 && float64(filler)/float64(len(tokens)) >= 0.4 {
			p -= 0.25
		}
	}
	if visual <= 0.05 && complimentPattern.MatchString(lower) {
		p -= 0.2
	}
	return math.Max(p, -0.35)
}

// pluralityPenalty 单人称呼用在合影上，或群体称呼用在单人照上
func pluralityPenalty(lower string, ctx *Context) float64 {
	singular := singularPersonPattern.MatchString(lower)
	plural := pluralPersonPattern.MatchString(lower)
	switch {
	case ctx.GroupContext && singular && !plural:
		return -0.22
	case ctx.SoloContext && plural && !singular:
		return -0.22
	}
	return 0
}

// textModePenalty 以文字为主的内容，评论却完全没提到文字
func textModePenalty(ocrOverlap float64, ctx *Context) float64 {
	if ctx.TextHeavy && ocrOverlap == 0 {
		return -0.24
	}
	return 0
}
