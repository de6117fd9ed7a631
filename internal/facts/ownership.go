package facts

import (
	"fmt"
	"strings"

	"github.com/qs3c/engage_go_server/internal/model"
	"github.com/qs3c/engage_go_server/internal/pkg/textutil"
)

// DefaultMinSignalScore 低于该信号分视为证据不足
const DefaultMinSignalScore = 3

// 各标签的基础置信度
var baseConfidence = map[string]float64{
	model.OwnershipOwned:        0.60,
	model.OwnershipReshare:      0.85,
	model.OwnershipMemeReshare:  0.82,
	model.OwnershipThirdParty:   0.78,
	model.OwnershipUnrelated:    0.66,
	model.OwnershipInsufficient: 0.60,
}

var labelSummary = map[string]string{
	model.OwnershipOwned:        "content appears to be authored by the account",
	model.OwnershipReshare:      "content is reshared from another account",
	model.OwnershipMemeReshare:  "content looks like a reshared meme",
	model.OwnershipThirdParty:   "content appears to originate from a third party",
	model.OwnershipUnrelated:    "content is dominated by people other than the account owner",
	model.OwnershipInsufficient: "not enough verified evidence to judge ownership",
}

// AccountIdentity 被分析账号的身份
type AccountIdentity struct {
	Username string
}

// ownershipInput 规则表的求值输入
type ownershipInput struct {
	facts     *model.VerifiedFacts
	signals   model.OwnershipSignals
	minSignal int
}

func (in ownershipInput) hasExternal() bool { return len(in.signals.ExternalUsernames) > 0 }
func (in ownershipInput) ownPresent() bool  { return in.signals.OwnUsernamePresent }
func (in ownershipInput) likelihood() string {
	return in.facts.Identity.Likelihood
}

// ownershipRule 命中时返回原因码
type ownershipRule struct {
	label    string
	decision string
	match    func(in ownershipInput) ([]string, bool)
}

// ownershipRules 按优先级排列，第一条命中即生效；最后一条总是命中
var ownershipRules = []ownershipRule{
	{
		label: model.OwnershipInsufficient, decision: model.DecisionSkip,
		match: func(in ownershipInput) ([]string, bool) {
			return []string{"low_signal_score"}, in.facts.SignalScore < in.minSignal
		},
	},
	{
		label: model.OwnershipMemeReshare, decision: model.DecisionSkip,
		match: func(in ownershipInput) ([]string, bool) {
			if len(in.signals.MemeMarkers) == 0 || (!in.hasExternal() && in.ownPresent()) {
				return nil, false
			}
			reasons := []string{"meme_markers"}
			if in.hasExternal() {
				reasons = append(reasons, "external_usernames")
			}
			if !in.ownPresent() {
				reasons = append(reasons, "own_username_absent")
			}
			return reasons, true
		},
	},
	{
		label: model.OwnershipReshare, decision: model.DecisionSkip,
		match: func(in ownershipInput) ([]string, bool) {
			var reasons []string
			if len(in.signals.ReshareHits) > 0 {
				reasons = append(reasons, "reshare_language")
			}
			if len(in.signals.ThirdPartyLinks) > 0 {
				reasons = append(reasons, "third_party_profile_link")
			}
			return reasons, len(reasons) > 0
		},
	},
	{
		label: model.OwnershipThirdParty, decision: model.DecisionSkip,
		match: func(in ownershipInput) ([]string, bool) {
			ok := len(in.signals.ExternalSourceRefs) > 0 && !in.ownPresent()
			return []string{"external_source_reference", "own_username_absent"}, ok
		},
	},
	{
		label: model.OwnershipThirdParty, decision: model.DecisionSkip,
		match: func(in ownershipInput) ([]string, bool) {
			faces := in.facts.Faces
			ok := in.hasExternal() && !in.ownPresent() &&
				faces.Secondary > 0 && faces.Primary == 0
			return []string{"external_usernames", "own_username_absent", "non_primary_faces_only"}, ok
		},
	},
	{
		label: model.OwnershipUnrelated, decision: model.DecisionSkip,
		match: func(in ownershipInput) ([]string, bool) {
			ok := in.signals.NonPrimaryDominant && in.facts.SignalScore < 4
			return []string{"non_primary_faces_dominant", "low_signal_score"}, ok
		},
	},
	{
		label: model.OwnershipThirdParty, decision: model.DecisionSkip,
		match: func(in ownershipInput) ([]string, bool) {
			if in.likelihood() != model.LikelihoodLow {
				return nil, false
			}
			reasons := []string{"low_identity_likelihood"}
			if in.hasExternal() {
				reasons = append(reasons, "external_usernames")
			}
			if len(in.signals.ExternalSourceRefs) > 0 || len(in.signals.ThirdPartyLinks) > 0 {
				reasons = append(reasons, "external_reference")
			}
			if in.signals.NonPrimaryDominant {
				reasons = append(reasons, "non_primary_faces_dominant")
			}
			return reasons, len(reasons) > 1
		},
	},
	{
		label: model.OwnershipOwned, decision: model.DecisionAllow,
		match: func(in ownershipInput) ([]string, bool) {
			id := in.facts.Identity
			if id.Likelihood != model.LikelihoodHigh || id.Confidence < 0.7 ||
				len(in.signals.ReshareHits) > 0 || len(in.signals.MemeMarkers) > 0 {
				return nil, false
			}
			reasons := []string{"identity_verified"}
			if id.PrimaryFacePresent {
				reasons = append(reasons, "primary_face_present")
			}
			if id.OwnUsernameMentioned {
				reasons = append(reasons, "own_username_mentioned")
			}
			return reasons, true
		},
	},
	{
		label: model.OwnershipOwned, decision: model.DecisionAllow,
		match: func(in ownershipInput) ([]string, bool) {
			return []string{}, true
		},
	},
}

// ClassifyOwnership 判断内容是否由账号本人发布，规则按优先级求值
func ClassifyOwnership(f *model.VerifiedFacts, account AccountIdentity, minSignal int) *model.OwnershipClassification {
	if minSignal <= 0 {
		minSignal = DefaultMinSignalScore
	}
	in := ownershipInput{facts: f, signals: DetectSignals(f, account), minSignal: minSignal}

	for _, rule := range ownershipRules {
		reasons, ok := rule.match(in)
		if !ok {
			continue
		}
		if reasons == nil {
			reasons = []string{}
		}
		return &model.OwnershipClassification{
			Label:       rule.label,
			Decision:    rule.decision,
			Confidence:  ownershipConfidence(rule.label, reasons, f),
			ReasonCodes: reasons,
			Summary:     summarize(rule.label, reasons),
			Signals:     in.signals,
		}
	}
	// 最后一条规则总会命中
	panic("facts: ownership rule table is not total")
}

// DetectSignals 从说明文字、OCR 与链接里找出归属相关证据
func DetectSignals(f *model.VerifiedFacts, account AccountIdentity) model.OwnershipSignals {
	own := NormalizeUsername(account.Username)
	corpus := f.Caption
	if f.OCRText != "" {
		corpus += "\n" + f.OCRText
	}

	s := model.OwnershipSignals{
		MemeMarkers:        nonNil(memeRules.Match(corpus)),
		ReshareHits:        nonNil(reshareRules.Match(corpus)),
		ExternalSourceRefs: nonNil(externalSourceRules.Match(corpus)),
		ThirdPartyLinks:    []string{},
		ExternalUsernames:  []string{},
		NonPrimaryDominant: f.Faces.NonPrimaryDominant(),
	}
	if multiLineOverlay(f) {
		s.MemeMarkers = append(s.MemeMarkers, "multi_line_overlay")
	}

	for _, u := range f.DetectedUsernames {
		if own != "" && u == own {
			s.OwnUsernamePresent = true
			continue
		}
		s.ExternalUsernames = append(s.ExternalUsernames, u)
	}
	for _, link := range f.URLs {
		name, ok := ProfileUsername(link)
		if ok && name != own {
			s.ThirdPartyLinks = append(s.ThirdPartyLinks, link)
		}
	}
	s.ExternalUsernames = textutil.Dedupe(s.ExternalUsernames)
	return s
}

// multiLineOverlay 多行叠字且画面中没有本人，典型的梗图排版
func multiLineOverlay(f *model.VerifiedFacts) bool {
	if f.Faces.Primary > 0 {
		return false
	}
	lines := 0
	for _, b := range f.OCRBlocks {
		if len(textutil.Tokenize(b.Text)) >= 2 {
			lines++
		}
	}
	return lines >= 3
}

func ownershipConfidence(label string, reasons []string, f *model.VerifiedFacts) float64 {
	conf := baseConfidence[label]
	conf += 0.03 * float64(len(reasons))
	if f.SignalScore >= 4 {
		conf += 0.02
	}
	return round3(clamp(conf, 0.5, 0.98))
}

func summarize(label string, reasons []string) string {
	s := labelSummary[label]
	if len(reasons) == 0 {
		return s + "; no conflicting ownership signals"
	}
	return fmt.Sprintf("%s (%s)", s, strings.Join(reasons, ", "))
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
