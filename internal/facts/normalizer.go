package facts

import (
	"sort"
	"strings"

	"github.com/qs3c/engage_go_server/internal/capability"
	"github.com/qs3c/engage_go_server/internal/model"
	"github.com/qs3c/engage_go_server/internal/pkg/textutil"
)

// 过滤阈值与数组上限
const (
	MinOCRConfidence    = 0.35
	MinObjectConfidence = 0.30
	MinFaceConfidence   = 0.50
	// PeerFaceAreaRatio 与主体人脸面积相当的才算同框人物
	PeerFaceAreaRatio   = 0.5

	MaxOCRBlocks  = 40
	MaxObjects    = 30
	MaxScenes     = 30
	MaxTags       = 30
	MaxUsernames  = 30
	MaxURLs       = 10
	MaxFacePeople = 20

	maxOCRTextChars    = 1200
	maxTranscriptChars = 1500
	maxCaptionChars    = 1000
)

// MaxSignalScore 各证据类别权重之和
const MaxSignalScore = 9

// 结构性镜头标记不是场景内容
var structuralScenes = map[string]struct{}{
	"scene_change": {}, "shot": {}, "cut": {}, "transition": {}, "fade": {},
}

// RawCapabilityOutput 各识别步骤的原始输出汇总
type RawCapabilityOutput struct {
	OCRBlocks  []capability.TextBlock `json:"ocr_blocks,omitempty"`
	Objects    []capability.Label     `json:"objects,omitempty"`
	Scenes     []string               `json:"scenes,omitempty"`
	Faces      []capability.Face      `json:"faces,omitempty"`
	Mentions   []string               `json:"mentions,omitempty"`
	Hashtags   []string               `json:"hashtags,omitempty"`
	Transcript string                 `json:"transcript,omitempty"`
}

// SourceMetadata 条目自身携带的信息
type SourceMetadata struct {
	AccountUsername string
	Caption         string
	Kind            string
}

// BuildVerifiedFacts 过滤、去重、截断原始识别结果并计算信号分
func BuildVerifiedFacts(raw RawCapabilityOutput, meta SourceMetadata) *model.VerifiedFacts {
	caption := textutil.TruncateRunes(strings.TrimSpace(meta.Caption), maxCaptionChars)

	f := &model.VerifiedFacts{
		Caption:    caption,
		OCRBlocks:  normalizeOCR(raw.OCRBlocks),
		Objects:    normalizeObjects(raw.Objects),
		Scenes:     normalizeScenes(raw.Scenes),
		Transcript: textutil.TruncateRunes(textutil.NormalizeSpace(raw.Transcript), maxTranscriptChars),
	}

	lines := make([]string, 0, len(f.OCRBlocks))
	for _, b := range f.OCRBlocks {
		lines = append(lines, b.Text)
	}
	f.OCRText = textutil.TruncateRunes(strings.Join(lines, "\n"), maxOCRTextChars)

	hashtags := make([]string, 0, len(raw.Hashtags))
	for _, h := range raw.Hashtags {
		hashtags = append(hashtags, strings.ToLower(strings.TrimPrefix(strings.TrimSpace(h), "#")))
	}
	hashtags = append(hashtags, ExtractHashtags(caption)...)
	hashtags = append(hashtags, ExtractHashtags(f.OCRText)...)
	f.Hashtags = textutil.Cap(textutil.Dedupe(hashtags), MaxTags)

	mentions := make([]string, 0, len(raw.Mentions))
	for _, m := range raw.Mentions {
		mentions = append(mentions, NormalizeUsername(m))
	}
	mentions = append(mentions, ExtractUsernames(caption)...)
	f.Mentions = textutil.Cap(textutil.Dedupe(mentions), MaxTags)

	f.URLs = textutil.Cap(textutil.Dedupe(append(ExtractURLs(caption), ExtractURLs(f.OCRText)...)), MaxURLs)

	usernames := append([]string{}, f.Mentions...)
	usernames = append(usernames, ExtractUsernames(f.OCRText)...)
	usernames = append(usernames, ExtractUsernames(f.Transcript)...)
	for _, u := range f.URLs {
		if name, ok := ProfileUsername(u); ok {
			usernames = append(usernames, name)
		}
	}
	f.DetectedUsernames = textutil.Cap(textutil.Dedupe(usernames), MaxUsernames)

	f.Faces = summarizeFaces(raw.Faces)
	f.Identity = VerifyIdentity(f, meta.AccountUsername)
	f.SignalScore = SignalScore(f)
	return f
}

// SignalScore 按非空证据类别累加固定权重
func SignalScore(f *model.VerifiedFacts) int {
	score := 0
	if strings.TrimSpace(f.OCRText) != "" {
		score += 2
	}
	if strings.TrimSpace(f.Transcript) != "" {
		score += 2
	}
	if len(f.Objects) > 0 {
		score += 2
	}
	if len(f.Scenes) > 0 {
		score++
	}
	if len(f.Hashtags) > 0 || len(f.Mentions) > 0 {
		score++
	}
	if f.Faces.Total > 0 {
		score++
	}
	return score
}

func normalizeOCR(blocks []capability.TextBlock) []model.OCRBlock {
	seen := make(map[string]struct{}, len(blocks))
	out := make([]model.OCRBlock, 0, len(blocks))
	for _, b := range blocks {
		if b.Confidence < MinOCRConfidence {
			continue
		}
		text := textutil.NormalizeSpace(b.Text)
		if text == "" {
			continue
		}
		key := strings.ToLower(text)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, model.OCRBlock{Text: text, Confidence: round3(b.Confidence), Source: b.Source})
		if len(out) >= MaxOCRBlocks {
			break
		}
	}
	return out
}

// normalizeObjects 同名标签保留最高置信度，按置信度降序
func normalizeObjects(labels []capability.Label) []model.ObjectDetection {
	best := make(map[string]float64, len(labels))
	order := make([]string, 0, len(labels))
	for _, l := range labels {
		conf := l.Confidence
		if l.MaxConfidence > conf {
			conf = l.MaxConfidence
		}
		if conf < MinObjectConfidence {
			continue
		}
		name := strings.ToLower(textutil.NormalizeSpace(l.Label))
		if name == "" {
			continue
		}
		prev, ok := best[name]
		if !ok {
			order = append(order, name)
		}
		if !ok || conf > prev {
			best[name] = conf
		}
	}
	out := make([]model.ObjectDetection, 0, len(order))
	for _, name := range order {
		out = append(out, model.ObjectDetection{Label: name, Confidence: round3(best[name])})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return textutil.Cap(out, MaxObjects)
}

func normalizeScenes(scenes []string) []string {
	out := make([]string, 0, len(scenes))
	for _, s := range scenes {
		s = strings.ToLower(textutil.NormalizeSpace(s))
		if _, structural := structuralScenes[s]; structural {
			continue
		}
		out = append(out, s)
	}
	return textutil.Cap(textutil.Dedupe(out), MaxScenes)
}

func summarizeFaces(faces []capability.Face) model.FaceSummary {
	var s model.FaceSummary
	kept := make([]capability.Face, 0, len(faces))
	for _, f := range faces {
		if f.Confidence >= MinFaceConfidence {
			kept = append(kept, f)
		}
	}
	for _, f := range assignFaceRoles(kept) {
		switch f.Role {
		case model.FaceRolePrimary:
			s.Primary++
		case model.FaceRoleSecondary:
			s.Secondary++
		default:
			s.Unknown++
		}
		s.Total++
		if len(s.People) < MaxFacePeople {
			s.People = append(s.People, model.FacePerson{Role: f.Role, Confidence: round3(f.Confidence)})
		}
	}
	return s
}

// assignFaceRoles 识别服务已给出角色时原样保留，未标注的记为 unknown。
// 全部未标注时，画面里最大的人脸（没有 bbox 时取置信度最高者）视为主体，
// 面积不小于主体 PeerFaceAreaRatio 的视为同框人物，其余为背景路人
func assignFaceRoles(faces []capability.Face) []capability.Face {
	out := make([]capability.Face, len(faces))
	copy(out, faces)

	labeled := false
	for _, f := range out {
		if f.Role == model.FaceRolePrimary || f.Role == model.FaceRoleSecondary {
			labeled = true
			break
		}
	}
	if labeled || len(out) == 0 {
		for i := range out {
			if out[i].Role != model.FaceRolePrimary && out[i].Role != model.FaceRoleSecondary {
				out[i].Role = model.FaceRoleUnknown
			}
		}
		return out
	}

	dominant := 0
	for i := 1; i < len(out); i++ {
		if faceDominates(out[i], out[dominant]) {
			dominant = i
		}
	}
	mainArea := bboxArea(out[dominant].BBox)
	for i := range out {
		switch {
		case i == dominant:
			out[i].Role = model.FaceRolePrimary
		case mainArea > 0 && bboxArea(out[i].BBox) >= PeerFaceAreaRatio*mainArea:
			out[i].Role = model.FaceRoleSecondary
		default:
			out[i].Role = model.FaceRoleUnknown
		}
	}
	return out
}

func faceDominates(a, b capability.Face) bool {
	areaA, areaB := bboxArea(a.BBox), bboxArea(b.BBox)
	if areaA != areaB {
		return areaA > areaB
	}
	return a.Confidence > b.Confidence
}

// bboxArea bbox 为 [x1, y1, x2, y2]，格式不对时返回 0
func bboxArea(b []float64) float64 {
	if len(b) != 4 {
		return 0
	}
	w, h := b[2]-b[0], b[3]-b[1]
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// VerifyIdentity 根据用户名与人脸估计内容属于该账号的可能性
func VerifyIdentity(f *model.VerifiedFacts, accountUsername string) model.IdentityVerification {
	own := NormalizeUsername(accountUsername)
	iv := model.IdentityVerification{
		PrimaryFacePresent: f.Faces.Primary > 0,
		ExternalUsernames:  []string{},
		Reasons:            []string{},
	}
	for _, u := range f.DetectedUsernames {
		if own != "" && u == own {
			iv.OwnUsernameMentioned = true
			continue
		}
		iv.ExternalUsernames = append(iv.ExternalUsernames, u)
	}

	conf := 0.4
	if iv.PrimaryFacePresent {
		conf += 0.45
		iv.Reasons = append(iv.Reasons, "primary_face_present")
	}
	if iv.OwnUsernameMentioned {
		conf += 0.25
		iv.Reasons = append(iv.Reasons, "own_username_mentioned")
	}
	if len(iv.ExternalUsernames) > 0 {
		conf -= 0.2
		iv.Reasons = append(iv.Reasons, "external_usernames_present")
	}
	if f.Faces.NonPrimaryDominant() {
		conf -= 0.2
		iv.Reasons = append(iv.Reasons, "non_primary_faces_dominant")
	}
	iv.Confidence = round3(clamp(conf, 0, 1))

	switch {
	case iv.Confidence >= 0.6:
		iv.Likelihood = model.LikelihoodHigh
	case iv.Confidence >= 0.35:
		iv.Likelihood = model.LikelihoodMedium
	default:
		iv.Likelihood = model.LikelihoodLow
	}
	return iv
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round3(v float64) float64 {
	return float64(int64(v*1000+0.5)) / 1000
}
