package model

import "time"

// 归属标签
const (
	OwnershipOwned        = "owned_by_profile"
	OwnershipReshare      = "reshare"
	OwnershipMemeReshare  = "meme_reshare"
	OwnershipThirdParty   = "third_party_content"
	OwnershipUnrelated    = "unrelated_post"
	OwnershipInsufficient = "insufficient_evidence"
)

const (
	DecisionAllow = "allow_comment"
	DecisionSkip  = "skip_comment"
)

// 人脸角色
const (
	FaceRolePrimary   = "primary"
	FaceRoleSecondary = "secondary"
	FaceRoleUnknown   = "unknown"
)

// 身份可信度
const (
	LikelihoodHigh   = "high"
	LikelihoodMedium = "medium"
	LikelihoodLow    = "low"
)

type OCRBlock struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source,omitempty"`
}

type ObjectDetection struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source,omitempty"`
}

type FacePerson struct {
	Role       string  `json:"role"`
	Confidence float64 `json:"confidence"`
}

// FaceSummary 按角色统计的人脸
type FaceSummary struct {
	Total     int          `json:"total"`
	Primary   int          `json:"primary"`
	Secondary int          `json:"secondary"`
	Unknown   int          `json:"unknown"`
	People    []FacePerson `json:"people,omitempty"`
}

// NonPrimaryDominant 同框人物多于主体人脸；背景路人（unknown）不计入
func (f FaceSummary) NonPrimaryDominant() bool {
	return f.Secondary > f.Primary
}

// IdentityVerification 内容与账号身份的匹配程度
type IdentityVerification struct {
	Likelihood           string   `json:"likelihood"`
	Confidence           float64  `json:"confidence"`
	OwnUsernameMentioned bool     `json:"own_username_mentioned"`
	ExternalUsernames    []string `json:"external_usernames,omitempty"`
	PrimaryFacePresent   bool     `json:"primary_face_present"`
	Reasons              []string `json:"reasons,omitempty"`
}

// VerifiedFacts 过滤后被视为事实的识别结果
type VerifiedFacts struct {
	Caption           string               `json:"caption,omitempty"`
	OCRText           string               `json:"ocr_text"`
	OCRBlocks         []OCRBlock           `json:"ocr_blocks"`
	Transcript        string               `json:"transcript"`
	Objects           []ObjectDetection    `json:"object_detections"`
	Scenes            []string             `json:"scenes"`
	Hashtags          []string             `json:"hashtags"`
	Mentions          []string             `json:"mentions"`
	DetectedUsernames []string             `json:"detected_usernames"`
	URLs              []string             `json:"urls,omitempty"`
	Faces             FaceSummary          `json:"faces"`
	Identity          IdentityVerification `json:"identity_verification"`
	SignalScore       int                  `json:"signal_score"`
}

// ObjectLabels 按顺序返回检测标签
func (f *VerifiedFacts) ObjectLabels() []string {
	out := make([]string, 0, len(f.Objects))
	for _, o := range f.Objects {
		out = append(out, o.Label)
	}
	return out
}

// OwnershipSignals 分类时命中的证据
type OwnershipSignals struct {
	MemeMarkers        []string `json:"meme_markers,omitempty"`
	ReshareHits        []string `json:"reshare_hits,omitempty"`
	ThirdPartyLinks    []string `json:"third_party_links,omitempty"`
	ExternalSourceRefs []string `json:"external_source_refs,omitempty"`
	ExternalUsernames  []string `json:"external_usernames,omitempty"`
	OwnUsernamePresent bool     `json:"own_username_present"`
	NonPrimaryDominant bool     `json:"non_primary_dominant"`
}

type OwnershipClassification struct {
	Label       string           `json:"label"`
	Decision    string           `json:"decision"`
	Confidence  float64          `json:"confidence"`
	ReasonCodes []string         `json:"reason_codes"`
	Summary     string           `json:"summary"`
	Signals     OwnershipSignals `json:"signals"`
}

type GenerationPolicy struct {
	AllowComment         bool    `json:"allow_comment"`
	AllowAutoPost        bool    `json:"allow_auto_post"`
	ManualReviewRequired bool    `json:"manual_review_required"`
	ReasonCode           string  `json:"reason_code"`
	Reason               string  `json:"reason"`
	OwnershipLabel       string  `json:"ownership_label"`
	OwnershipConfidence  float64 `json:"ownership_confidence"`
	SignalScore          int     `json:"signal_score"`
	MinSignalScore       int     `json:"minimum_signal_score"`
}

// AnalysisRecord 某次运行的事实阶段产物
type AnalysisRecord struct {
	RunID     string                  `json:"run_id"`
	Facts     VerifiedFacts           `json:"facts"`
	Ownership OwnershipClassification `json:"ownership"`
	Policy    GenerationPolicy        `json:"policy"`
	BuiltAt   time.Time               `json:"built_at"`
}
