package scoring

import (
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/qs3c/engage_go_server/internal/model"
	"github.com/qs3c/engage_go_server/internal/pkg/textutil"
)

const (
	DefaultAutoPostThreshold = 2.0
	MaxScore                 = 3.0

	baseScore = 0.8

	// 命中多少个参考词即视为完全重合
	overlapSaturation = 3
)

// 各因子权重
const (
	weightVisual       = 0.8
	weightOCR          = 0.35
	weightTranscript   = 0.35
	weightContext      = 0.55
	weightRelationship = 0.35
	weightNovelty      = 0.15
)

// 关系基础分
var relationshipBase = map[string]float64{
	"familiar": 0.75,
	"warm":     0.62,
	"new":      0.45,
	"unknown":  0.5,
}

// 置信等级
const (
	LevelHigh   = "high"
	LevelMedium = "medium"
	LevelLow    = "low"
)

// Context 打分所需的上下文
type Context struct {
	Objects           []model.ObjectDetection
	VisualDescription string
	OCRText           string
	Transcript        string
	Topics            []string
	Relationship      string
	History           []string
	GroupContext      bool
	SoloContext       bool
	TextHeavy         bool
}

// NewContext 由事实与账号信号组装打分上下文
func NewContext(f *model.VerifiedFacts, topics []string, relationship string, history []string) *Context {
	c := &Context{
		Topics:       topics,
		Relationship: relationship,
		History:      history,
	}
	if f == nil {
		return c
	}
	c.Objects = f.Objects
	c.VisualDescription = strings.Join(f.Scenes, " ")
	c.OCRText = f.OCRText
	c.Transcript = f.Transcript
	c.GroupContext = f.Faces.Total >= 2 || hasGroupLabel(f.Objects)
	c.SoloContext = f.Faces.Total == 1 && !c.GroupContext
	c.TextHeavy = len(textutil.Tokenize(f.OCRText)) >= 8
	return c
}

func hasGroupLabel(objects []model.ObjectDetection) bool {
	for _, o := range objects {
		switch o.Label {
		case "crowd", "group", "team", "people", "audience":
			return true
		}
	}
	return false
}

// Factor 单个因子的取值与定性等级
type Factor struct {
	Value float64 `json:"value"`
	Label string  `json:"label"`
}

// ScoredCandidate 打分后的候选
type ScoredCandidate struct {
	Text             string            `json:"text"`
	Score            float64           `json:"score"`
	ConfidenceLevel  string            `json:"confidence_level"`
	AutoPostEligible bool              `json:"auto_post_eligible"`
	Factors          map[string]Factor `json:"factors"`
}

// Scorer 评论相关度打分
type Scorer struct {
	threshold float64
}

// NewScorer threshold 为 0 时取默认值，并限制在 [0.5, 3.0]
func NewScorer(threshold float64) *Scorer {
	if threshold == 0 {
		threshold = DefaultAutoPostThreshold
	}
	threshold = math.Max(0.5, math.Min(MaxScore, threshold))
	return &Scorer{threshold: threshold}
}

// Threshold 自动发布阈值
func (s *Scorer) Threshold() float64 {
	return s.threshold
}

// Score 计算 [0, 3] 区间的相关度分数
func (s *Scorer) Score(candidate string, ctx *Context) ScoredCandidate {
	if ctx == nil {
		ctx = &Context{}
	}
	tokens := textutil.Tokenize(candidate)
	lower := strings.ToLower(candidate)
	factors := make(map[string]Factor, 16)

	visual, matched := visualOverlap(tokens, ctx)
	ocr := overlapRatio(tokens, ctx.OCRText)
	transcript := overlapRatio(tokens, ctx.Transcript)
	topical := overlapRatio(tokens, strings.Join(ctx.Topics, " "))
	relationship := relationshipFit(ctx.Relationship, math.Max(topical, visual))
	novelty := noveltyOf(candidate, ctx.History)
	length := lengthAdjustment(candidate)

	factors["visual_context"] = ratioFactor(visual)
	factors["ocr_text"] = ratioFactor(ocr)
	factors["transcript"] = ratioFactor(transcript)
	factors["user_context"] = ratioFactor(topical)
	factors["relationship_fit"] = ratioFactor(relationship)
	factors["novelty"] = ratioFactor(novelty)
	factors["length"] = adjustmentFactor(length)

	score := baseScore +
		weightVisual*visual +
		weightOCR*ocr +
		weightTranscript*transcript +
		weightContext*topical +
		weightRelationship*relationship +
		weightNovelty*novelty +
		length

	penalties := []struct {
		name  string
		value float64
	}{
		{"low_confidence_anchor", lowConfidencePenalty(matched, len(ctx.Objects) > 0)},
		{"robotic_phrasing", roboticPenalty(lower)},
		{"generic_comment", genericPenalty(tokens, lower, visual)},
		{"plurality_mismatch", pluralityPenalty(lower, ctx)},
		{"text_mode", textModePenalty(ocr, ctx)},
	}
	// 按固定顺序累加，浮点结果与调用次数无关
	for _, p := range penalties {
		factors[p.name] = penaltyFactor(p.value)
		score += p.value
	}

	score = round3(math.Max(0, math.Min(MaxScore, score)))
	return ScoredCandidate{
		Text:             candidate,
		Score:            score,
		ConfidenceLevel:  confidenceLevel(score),
		AutoPostEligible: score >= s.threshold,
		Factors:          factors,
	}
}

// Rank 打分并按分数降序排列，同分保持原顺序
func (s *Scorer) Rank(candidates []string, ctx *Context) []ScoredCandidate {
	out := make([]ScoredCandidate, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, s.Score(c, ctx))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// visualOverlap 命中物体按置信度加权，分母取前几名物体的置信度和；没有物体时退回描述词重合
func visualOverlap(tokens []string, ctx *Context) (float64, []model.ObjectDetection) {
	if len(ctx.Objects) == 0 {
		return overlapRatio(tokens, ctx.VisualDescription), nil
	}
	stems := textutil.StemSet(tokens)
	var matched []model.ObjectDetection
	hit := 0.0
	for _, o := range ctx.Objects {
		if textutil.OverlapCount(textutil.Tokenize(o.Label), stems) > 0 {
			matched = append(matched, o)
			hit += o.Confidence
		}
	}
	denom := 0.0
	for i, o := range ctx.Objects {
		if i >= overlapSaturation {
			break
		}
		denom += o.Confidence
	}
	if denom == 0 {
		return 0, matched
	}
	return math.Min(1, hit/denom), matched
}

// overlapRatio 候选命中参考文本的词干数，按饱和值归一
func overlapRatio(tokens []string, ref string) float64 {
	refTokens := textutil.Tokenize(ref)
	if len(refTokens) == 0 || len(tokens) == 0 {
		return 0
	}
	refStems := textutil.StemSet(refTokens)
	denom := overlapSaturation
	if len(refStems) < denom {
		denom = len(refStems)
	}
	return math.Min(1, float64(textutil.OverlapCount(tokens, refStems))/float64(denom))
}

func relationshipFit(relationship string, contextOverlap float64) float64 {
	base, ok := relationshipBase[relationship]
	if !ok {
		base = relationshipBase["unknown"]
	}
	return math.Min(1, base+0.25*contextOverlap)
}

func noveltyOf(candidate string, history []string) float64 {
	maxSim := 0.0
	set := textutil.TokenSet(candidate)
	for _, h := range history {
		if sim := textutil.JaccardSets(set, textutil.TokenSet(h)); sim > maxSim {
			maxSim = sim
		}
	}
	return 1 - maxSim
}

func lengthAdjustment(candidate string) float64 {
	n := utf8.RuneCountInString(candidate)
	switch {
	case n > 160:
		return -0.2
	case n >= 20 && n <= 120:
		return 0.15
	}
	return 0
}

func confidenceLevel(score float64) string {
	switch {
	case score >= 2.3:
		return LevelHigh
	case score >= 1.4:
		return LevelMedium
	}
	return LevelLow
}

func ratioFactor(v float64) Factor {
	label := LevelLow
	switch {
	case v >= 0.66:
		label = LevelHigh
	case v >= 0.33:
		label = LevelMedium
	}
	return Factor{Value: round3(v), Label: label}
}

func adjustmentFactor(v float64) Factor {
	label := LevelMedium
	if v > 0 {
		label = LevelHigh
	} else if v < 0 {
		label = LevelLow
	}
	return Factor{Value: round3(v), Label: label}
}

// penaltyFactor 扣分越多等级越高
func penaltyFactor(v float64) Factor {
	label := LevelLow
	switch {
	case v <= -0.2:
		label = LevelHigh
	case v < 0:
		label = LevelMedium
	}
	return Factor{Value: round3(v), Label: label}
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
