package facts

import (
	"fmt"

	"github.com/qs3c/engage_go_server/internal/model"
)

// 低于该置信度的本人内容需要人工复核
const manualReviewConfidence = 0.58

// 生成策略原因码
const (
	ReasonAllowed                 = "allowed"
	ReasonManualReviewLowIdentity = "manual_review_low_identity"
	ReasonManualReviewLowEvidence = "manual_review_insufficient_evidence"
)

// BuildGenerationPolicy 由归属结论决定能否生成评论以及能否自动发布
func BuildGenerationPolicy(f *model.VerifiedFacts, c *model.OwnershipClassification, minSignal int) *model.GenerationPolicy {
	if minSignal <= 0 {
		minSignal = DefaultMinSignalScore
	}
	p := &model.GenerationPolicy{
		OwnershipLabel:      c.Label,
		OwnershipConfidence: c.Confidence,
		SignalScore:         f.SignalScore,
		MinSignalScore:      minSignal,
	}

	switch {
	case c.Label == model.OwnershipInsufficient:
		p.AllowComment = true
		p.ManualReviewRequired = true
		p.ReasonCode = ReasonManualReviewLowEvidence
		p.Reason = fmt.Sprintf("signal score %d is below %d; suggestions require manual review", f.SignalScore, minSignal)
	case c.Label == model.OwnershipOwned && f.Identity.Likelihood == model.LikelihoodLow && c.Confidence < manualReviewConfidence:
		p.AllowComment = true
		p.ManualReviewRequired = true
		p.ReasonCode = ReasonManualReviewLowIdentity
		p.Reason = fmt.Sprintf("identity likelihood is low (ownership confidence %.2f); suggestions require manual review", c.Confidence)
	case c.Decision == model.DecisionAllow:
		p.AllowComment = true
		p.AllowAutoPost = true
		p.ReasonCode = ReasonAllowed
		p.Reason = summaryOf(c)
	default:
		p.ReasonCode = c.Label
		p.Reason = summaryOf(c)
	}
	return p
}

func summaryOf(c *model.OwnershipClassification) string {
	if c.Summary != "" {
		return c.Summary
	}
	return labelSummary[c.Label]
}

// Builder 串联事实构建、归属分类与生成策略
type Builder struct {
	MinSignalScore int
}

// NewBuilder 创建事实构建器，minSignal 为可信事实的最低信号分
func NewBuilder(minSignal int) *Builder {
	if minSignal <= 0 {
		minSignal = DefaultMinSignalScore
	}
	return &Builder{MinSignalScore: minSignal}
}

// Build 一次性产出某次运行的分析记录
func (b *Builder) Build(raw RawCapabilityOutput, meta SourceMetadata) (*model.VerifiedFacts, *model.OwnershipClassification, *model.GenerationPolicy) {
	f := BuildVerifiedFacts(raw, meta)
	c := ClassifyOwnership(f, AccountIdentity{Username: meta.AccountUsername}, b.MinSignalScore)
	p := BuildGenerationPolicy(f, c, b.MinSignalScore)
	return f, c, p
}
