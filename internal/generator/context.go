package generator

import (
	"encoding/json"
	"fmt"

	"github.com/qs3c/engage_go_server/internal/model"
	"github.com/qs3c/engage_go_server/internal/pkg/textutil"
)

// 上下文各字段的初始长度上限
const (
	storyCaptionChars    = 220
	storyOCRChars        = 240
	storyTranscriptChars = 240
	storyShortChars      = 80
	historyItems         = 5
	historyItemChars     = 100
	signalItems          = 12
	maxTopics            = 8
)

// StoryDetail 当前内容的细节
type StoryDetail struct {
	Kind       string   `json:"kind,omitempty"`
	Caption    string   `json:"caption,omitempty"`
	OCRText    string   `json:"ocr_text,omitempty"`
	Transcript string   `json:"transcript,omitempty"`
	Scenes     []string `json:"scenes,omitempty"`
	Hashtags   []string `json:"hashtags,omitempty"`
}

// ScoredSignals 带置信度的识别信号
type ScoredSignals struct {
	Objects  []string `json:"objects,omitempty"`
	Mentions []string `json:"mentions,omitempty"`
	Faces    string   `json:"faces,omitempty"`
}

// HistoryContext 近期内容摘要与要避开的开头
type HistoryContext struct {
	Summaries     []string `json:"recent_summaries,omitempty"`
	AvoidOpenings []string `json:"avoid_openings,omitempty"`
}

type PolicyContext struct {
	AllowAutoPost        bool   `json:"allow_auto_post"`
	ManualReviewRequired bool   `json:"manual_review_required"`
	OwnershipLabel       string `json:"ownership_label,omitempty"`
}

// ContextDocument 提示词中的上下文文档，按优先级裁剪
type ContextDocument struct {
	ToneProfile     string          `json:"tone_profile,omitempty"`
	Relationship    string          `json:"relationship,omitempty"`
	Topics          []string        `json:"topics,omitempty"`
	VisualAnchors   []string        `json:"visual_anchors,omitempty"`
	SituationalCues []string        `json:"situational_cues,omitempty"`
	ContentMode     string          `json:"content_mode,omitempty"`
	CurrentStory    *StoryDetail    `json:"current_story,omitempty"`
	ScoredSignals   *ScoredSignals  `json:"scored_signals,omitempty"`
	History         *HistoryContext `json:"history,omitempty"`
	Policy          PolicyContext   `json:"generation_policy"`
}

// JSON 序列化结果
func (d *ContextDocument) JSON() string {
	b, err := json.Marshal(d)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// Size 序列化后的字符数
func (d *ContextDocument) Size() int {
	return len([]rune(d.JSON()))
}

// BuildContextDocument 组装上下文；超过硬上限时依次裁掉历史、打分信号、当前内容细节
func BuildContextDocument(req *Request, anchors, cues []string, mode string, hardCap int) (*ContextDocument, []string) {
	f := req.Facts
	if f == nil {
		f = &model.VerifiedFacts{}
	}
	doc := &ContextDocument{
		ToneProfile:     req.History.ToneProfile,
		Relationship:    req.History.Relationship,
		Topics:          textutil.Cap(textutil.Dedupe(req.History.Topics), maxTopics),
		VisualAnchors:   anchors,
		SituationalCues: cues,
		ContentMode:     mode,
		CurrentStory: &StoryDetail{
			Kind:       req.Kind,
			Caption:    textutil.TruncateRunes(f.Caption, storyCaptionChars),
			OCRText:    textutil.TruncateRunes(textutil.NormalizeSpace(f.OCRText), storyOCRChars),
			Transcript: textutil.TruncateRunes(f.Transcript, storyTranscriptChars),
			Scenes:     textutil.Cap(f.Scenes, signalItems),
			Hashtags:   textutil.Cap(f.Hashtags, signalItems),
		},
	}
	if req.Policy != nil {
		doc.Policy = PolicyContext{
			AllowAutoPost:        req.Policy.AllowAutoPost,
			ManualReviewRequired: req.Policy.ManualReviewRequired,
			OwnershipLabel:       req.Policy.OwnershipLabel,
		}
	}

	signals := &ScoredSignals{Mentions: textutil.Cap(f.Mentions, signalItems)}
	for _, o := range textutil.Cap(f.Objects, signalItems) {
		signals.Objects = append(signals.Objects, fmt.Sprintf("%s:%.2f", o.Label, o.Confidence))
	}
	if f.Faces.Total > 0 {
		signals.Faces = fmt.Sprintf("total=%d primary=%d secondary=%d unknown=%d", f.Faces.Total, f.Faces.Primary, f.Faces.Secondary, f.Faces.Unknown)
	}
	if len(signals.Objects) > 0 || len(signals.Mentions) > 0 || signals.Faces != "" {
		doc.ScoredSignals = signals
	}

	hist := &HistoryContext{}
	for _, s := range textutil.Cap(req.History.Summaries, historyItems) {
		hist.Summaries = append(hist.Summaries, textutil.TruncateRunes(s, historyItemChars))
	}
	hist.AvoidOpenings = textutil.Cap(textutil.Dedupe(req.History.RecentOpeners), historyItems)
	if len(hist.Summaries) > 0 || len(hist.AvoidOpenings) > 0 {
		doc.History = hist
	}

	return doc, trimToCap(doc, hardCap)
}

// trimStep 一次裁剪；返回 false 表示该部分已无可裁
type trimStep struct {
	name string
	trim func(d *ContextDocument) bool
}

var trimSteps = []trimStep{
	{name: "history.summaries", trim: func(d *ContextDocument) bool {
		if d.History == nil || len(d.History.Summaries) == 0 {
			return false
		}
		d.History.Summaries = d.History.Summaries[:len(d.History.Summaries)-1]
		return true
	}},
	{name: "history", trim: func(d *ContextDocument) bool {
		if d.History == nil {
			return false
		}
		d.History = nil
		return true
	}},
	{name: "scored_signals.lists", trim: func(d *ContextDocument) bool {
		s := d.ScoredSignals
		if s == nil || (len(s.Objects) <= 2 && len(s.Mentions) <= 2) {
			return false
		}
		s.Objects = textutil.Cap(s.Objects, len(s.Objects)/2)
		s.Mentions = textutil.Cap(s.Mentions, len(s.Mentions)/2)
		return true
	}},
	{name: "scored_signals", trim: func(d *ContextDocument) bool {
		if d.ScoredSignals == nil {
			return false
		}
		d.ScoredSignals = nil
		return true
	}},
	{name: "current_story.shorten", trim: func(d *ContextDocument) bool {
		s := d.CurrentStory
		if s == nil {
			return false
		}
		changed := false
		for _, field := range []*string{&s.Transcript, &s.OCRText, &s.Caption} {
			if len([]rune(*field)) > storyShortChars {
				*field = textutil.TruncateRunes(*field, storyShortChars)
				changed = true
			}
		}
		if len(s.Scenes) > 3 || len(s.Hashtags) > 3 {
			s.Scenes = textutil.Cap(s.Scenes, 3)
			s.Hashtags = textutil.Cap(s.Hashtags, 3)
			changed = true
		}
		return changed
	}},
	{name: "current_story", trim: func(d *ContextDocument) bool {
		if d.CurrentStory == nil {
			return false
		}
		d.CurrentStory = nil
		return true
	}},
	{name: "topics", trim: func(d *ContextDocument) bool {
		if len(d.Topics) <= 3 && len(d.VisualAnchors) <= 3 {
			return false
		}
		d.Topics = textutil.Cap(d.Topics, 3)
		d.VisualAnchors = textutil.Cap(d.VisualAnchors, 3)
		return true
	}},
}

func trimToCap(doc *ContextDocument, hardCap int) []string {
	trimmed := []string{}
	if hardCap <= 0 {
		return trimmed
	}
	for _, step := range trimSteps {
		for doc.Size() > hardCap {
			if !step.trim(doc) {
				break
			}
			if len(trimmed) == 0 || trimmed[len(trimmed)-1] != step.name {
				trimmed = append(trimmed, step.name)
			}
		}
		if doc.Size() <= hardCap {
			break
		}
	}
	return trimmed
}
