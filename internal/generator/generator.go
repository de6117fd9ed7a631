package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/qs3c/engage_go_server/config"
	"github.com/qs3c/engage_go_server/internal/capability"
	"github.com/qs3c/engage_go_server/internal/model"
	"github.com/qs3c/engage_go_server/internal/pkg/logger"
	"github.com/qs3c/engage_go_server/internal/pkg/textutil"
	"github.com/qs3c/engage_go_server/internal/policy"
)

// 模型档位
const (
	TierPrimary  = "primary"
	TierQuality  = "quality"
	TierTemplate = "template"
)

// Options 生成参数，零值由 OptionsFromConfig 的默认配置兜底
type Options struct {
	PrimaryModel        string
	QualityModel        string
	EscalationEnabled   bool
	MaxCandidates       int
	MinCandidates       int
	Temperature         float64
	RetryTemperature    float64
	ContextTargetChars  int
	ContextHardCapChars int
	ContextTokenLimit   int
	MaxOutputTokens     int
	MinOutputTokens     int
	EscalateMinAccepted int
	EscalateRejectRatio float64
	EscalateGrounded    float64
}

// OptionsFromConfig 从配置组装生成参数
func OptionsFromConfig(m config.ModelsConfig, g config.GenerationConfig) Options {
	return Options{
		PrimaryModel:        m.PrimaryModel,
		QualityModel:        m.QualityModel,
		EscalationEnabled:   m.EscalationEnabled,
		MaxCandidates:       g.MaxCandidates,
		MinCandidates:       g.MinCandidates,
		Temperature:         g.Temperature,
		RetryTemperature:    g.RetryTemperature,
		ContextTargetChars:  g.ContextTargetChars,
		ContextHardCapChars: g.ContextHardCapChars,
		ContextTokenLimit:   g.ContextTokenLimit,
		MaxOutputTokens:     g.MaxOutputTokens,
		MinOutputTokens:     g.MinOutputTokens,
		EscalateMinAccepted: g.EscalateMinAccepted,
		EscalateRejectRatio: g.EscalateRejectRatio,
		EscalateGrounded:    g.EscalateGrounded,
	}
}

// canEscalate 开启升级且质量模型与主模型不同
func (o Options) canEscalate() bool {
	return o.EscalationEnabled && o.QualityModel != "" && o.QualityModel != o.PrimaryModel
}

// HistorySignals 账号历史与语气设定
type HistorySignals struct {
	RecentComments []string `json:"recent_comments,omitempty"`
	RecentOpeners  []string `json:"recent_openers,omitempty"`
	Topics         []string `json:"topics,omitempty"`
	ToneProfile    string   `json:"tone_profile,omitempty"`
	Relationship   string   `json:"relationship,omitempty"`
	Summaries      []string `json:"summaries,omitempty"`
}

type Request struct {
	ItemID  int64
	RunID   string
	Kind    string
	Facts   *model.VerifiedFacts
	Policy  *model.GenerationPolicy
	History HistorySignals
}

// Candidate 一条最终候选及其来源
type Candidate struct {
	Text      string `json:"text"`
	ModelTier string `json:"model_tier"`
	Model     string `json:"model,omitempty"`
	Source    string `json:"source"`
}

// PassStats 单个档位的一轮生成统计
type PassStats struct {
	Tier           string                `json:"tier"`
	Model          string                `json:"model"`
	Attempts       int                   `json:"attempts"`
	Retried        bool                  `json:"retried"`
	Parsed         int                   `json:"parsed"`
	Accepted       int                   `json:"accepted"`
	Rejected       int                   `json:"rejected"`
	RejectRatio    float64               `json:"reject_ratio"`
	GroundedRatio  float64               `json:"grounded_ratio"`
	SelectionScore float64               `json:"selection_score"`
	PromptChars    int                   `json:"prompt_chars"`
	MaxTokens      []int                 `json:"max_tokens"`
	Usage          capability.TokenUsage `json:"usage"`
	Error          string                `json:"error,omitempty"`
}

type Telemetry struct {
	ContextChars      int          `json:"context_chars"`
	ContextOverTarget bool         `json:"context_over_target"`
	TrimmedSections   []string     `json:"trimmed_sections"`
	ContentMode       string       `json:"content_mode"`
	VisualAnchors     []string     `json:"visual_anchors,omitempty"`
	SituationalCues   []string     `json:"situational_cues,omitempty"`
	Passes            []*PassStats `json:"passes"`
	Escalated         bool         `json:"escalated"`
	EscalationReasons []string     `json:"escalation_reasons,omitempty"`
	SelectedTier      string       `json:"selected_tier,omitempty"`
	FallbackUsed      bool         `json:"fallback_used"`
	EmergencyUsed     bool         `json:"emergency_used"`
	TotalTokens       int          `json:"total_tokens"`
}

// RejectedCandidate 被策略引擎拒绝的候选
type RejectedCandidate struct {
	Tier    string   `json:"tier"`
	Text    string   `json:"text"`
	Reasons []string `json:"reasons"`
	Details []string `json:"details,omitempty"`
}

type PolicyDiagnostics struct {
	AllowComment         bool                `json:"allow_comment"`
	AllowAutoPost        bool                `json:"allow_auto_post"`
	ManualReviewRequired bool                `json:"manual_review_required"`
	ReasonCode           string              `json:"reason_code"`
	OwnershipLabel       string              `json:"ownership_label,omitempty"`
	ReasonCounts         map[string]int      `json:"reason_counts"`
	Rejected             []RejectedCandidate `json:"rejected"`
}

func (d *PolicyDiagnostics) add(tier string, rejected []policy.Rejection) {
	for _, r := range rejected {
		d.Rejected = append(d.Rejected, RejectedCandidate{Tier: tier, Text: r.Text, Reasons: r.Reasons, Details: r.Details})
		for _, reason := range r.Reasons {
			d.ReasonCounts[reason]++
		}
	}
}

// Result 生成结果；被策略拦截时 Candidates 为空
type Result struct {
	Status        string            `json:"status"`
	Source        string            `json:"source"`
	ReasonCode    string            `json:"reason_code,omitempty"`
	Reason        string            `json:"reason,omitempty"`
	SelectedModel string            `json:"selected_model,omitempty"`
	RawResponse   string            `json:"raw_response,omitempty"`
	Candidates    []Candidate       `json:"candidates"`
	Telemetry     Telemetry         `json:"telemetry"`
	Diagnostics   PolicyDiagnostics `json:"policy_diagnostics"`
	ErrorClass    string            `json:"error_class,omitempty"`
	ErrorMessage  string            `json:"error_message,omitempty"`
}

// Texts 候选文本
func (r *Result) Texts() []string {
	out := make([]string, 0, len(r.Candidates))
	for _, c := range r.Candidates {
		out = append(out, c.Text)
	}
	return out
}

// Generator 候选评论生成与模型路由
type Generator struct {
	llm    capability.TextGenerator
	engine *policy.Engine
	opts   Options
	log    *logger.Logger
	tracer trace.Tracer
}

// withDefaults 与配置默认值保持一致
func (o Options) withDefaults() Options {
	if o.MaxCandidates <= 0 {
		o.MaxCandidates = policy.DefaultMaxAccepted
	}
	if o.MinCandidates <= 0 {
		o.MinCandidates = 3
	}
	if o.Temperature <= 0 {
		o.Temperature = 0.7
	}
	if o.RetryTemperature <= 0 {
		o.RetryTemperature = o.Temperature - 0.1
	}
	if o.ContextTargetChars <= 0 {
		o.ContextTargetChars = 1300
	}
	if o.ContextHardCapChars <= 0 {
		o.ContextHardCapChars = 1800
	}
	if o.ContextTokenLimit <= 0 {
		o.ContextTokenLimit = 2048
	}
	if o.MaxOutputTokens <= 0 {
		o.MaxOutputTokens = 420
	}
	if o.MinOutputTokens <= 0 {
		o.MinOutputTokens = 160
	}
	if o.EscalateMinAccepted <= 0 {
		o.EscalateMinAccepted = 5
	}
	if o.EscalateRejectRatio <= 0 {
		o.EscalateRejectRatio = 0.45
	}
	if o.EscalateGrounded <= 0 {
		o.EscalateGrounded = 0.55
	}
	return o
}

// New 创建评论生成器
func New(llm capability.TextGenerator, engine *policy.Engine, opts Options, log *logger.Logger) *Generator {
	return &Generator{
		llm:    llm,
		engine: engine,
		opts:   opts.withDefaults(),
		log:    log.With("component", "generator"),
		tracer: otel.Tracer("engage_go_server/generator"),
	}
}

// prepared 一次生成中各轮共享的上下文
type prepared struct {
	req       *Request
	anchors   []string
	cues      []string
	mode      string
	doc       *ContextDocument
	trimmed   []string
	keywords  []string
	grounding map[string]struct{}
	history   policy.History
}

func (g *Generator) prepare(req *Request) *prepared {
	f := req.Facts
	if f == nil {
		f = &model.VerifiedFacts{}
	}
	label := ""
	if req.Policy != nil {
		label = req.Policy.OwnershipLabel
	}
	p := &prepared{req: req}
	p.anchors = VisualAnchors(f.Objects)
	p.cues = SituationalCues(f, req.History.Topics)
	p.mode = ContentMode(f, label, p.cues)
	p.doc, p.trimmed = BuildContextDocument(req, p.anchors, p.cues, p.mode, g.opts.ContextHardCapChars)

	p.keywords = append(p.keywords, req.History.Topics...)
	p.keywords = append(p.keywords, p.anchors...)
	p.keywords = append(p.keywords, f.Scenes...)
	p.keywords = append(p.keywords, f.Hashtags...)
	p.keywords = append(p.keywords, textutil.Cap(policy.MeaningfulTokens(f.OCRText), 12)...)
	p.keywords = append(p.keywords, textutil.Cap(policy.MeaningfulTokens(f.Transcript), 12)...)

	p.grounding = policy.ContextStems(append(append([]string{}, req.History.Topics...), p.anchors...))
	p.history = policy.History{Comments: req.History.RecentComments, Openers: req.History.RecentOpeners}
	return p
}

// Generate 生成候选评论。
// 策略拦截返回 blocked 结果；暂时性错误原样返回给调用方重试；其余错误和 panic 转为 error_fallback。
func (g *Generator) Generate(ctx context.Context, req *Request) (res *Result, err error) {
	ctx, span := g.tracer.Start(ctx, "generator.Generate", trace.WithAttributes(
		attribute.Int64("item_id", req.ItemID),
		attribute.String("run_id", req.RunID),
	))
	defer span.End()

	if req.Policy == nil || !req.Policy.AllowComment {
		span.SetAttributes(attribute.String("source", model.SourcePolicy))
		return g.blocked(req), nil
	}

	defer func() {
		if r := recover(); r != nil {
			perr := fmt.Errorf("panic: %v", r)
			g.log.Error("generation panicked", "item_id", req.ItemID, "run_id", req.RunID, "error", perr)
			span.RecordError(perr)
			res, err = g.errorFallback(req, "panic", perr), nil
		}
	}()

	res, err = g.generate(ctx, req)
	if err != nil {
		if capability.IsTransient(err) || errors.Is(err, context.Canceled) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "transient")
			return nil, err
		}
		g.log.Warn("generation failed, using fallback", "item_id", req.ItemID, "run_id", req.RunID, "error", err)
		span.RecordError(err)
		return g.errorFallback(req, errorClass(err), err), nil
	}
	span.SetAttributes(
		attribute.String("source", res.Source),
		attribute.String("selected_model", res.SelectedModel),
		attribute.Int("candidates", len(res.Candidates)),
		attribute.Bool("escalated", res.Telemetry.Escalated),
	)
	return res, nil
}

func (g *Generator) generate(ctx context.Context, req *Request) (*Result, error) {
	p := g.prepare(req)
	res := g.newResult(req, p)

	primary, err := g.runPass(ctx, TierPrimary, g.opts.PrimaryModel, p)
	if err != nil {
		return nil, err
	}
	res.Telemetry.Passes = append(res.Telemetry.Passes, primary.stats)
	ran := []*passResult{primary}
	best := primary

	reasons := g.escalationReasons(primary, p)
	res.Telemetry.EscalationReasons = reasons
	if len(reasons) > 0 && g.opts.canEscalate() {
		res.Telemetry.Escalated = true
		g.log.Info("escalating to quality model", "item_id", req.ItemID, "reasons", reasons, "model", g.opts.QualityModel)

		quality, err := g.runPass(ctx, TierQuality, g.opts.QualityModel, p)
		switch {
		case err != nil && capability.IsTransient(err):
			return nil, err
		case err != nil:
			g.log.Warn("quality pass failed, keeping primary", "item_id", req.ItemID, "error", err)
			res.Telemetry.Passes = append(res.Telemetry.Passes, &PassStats{Tier: TierQuality, Model: g.opts.QualityModel, Error: err.Error()})
		default:
			res.Telemetry.Passes = append(res.Telemetry.Passes, quality.stats)
			ran = append(ran, quality)
			if quality.stats.SelectionScore > primary.stats.SelectionScore {
				best = quality
			}
		}
	}

	for _, pass := range ran {
		res.Diagnostics.add(pass.stats.Tier, pass.rejected)
	}
	for _, ps := range res.Telemetry.Passes {
		res.Telemetry.TotalTokens += ps.Usage.TotalTokens
	}

	res.SelectedModel = best.stats.Model
	res.RawResponse = best.raw
	res.Telemetry.SelectedTier = best.stats.Tier

	tierOf := make(map[string]Candidate, len(best.accepted))
	for _, text := range best.accepted {
		tierOf[strings.ToLower(text)] = Candidate{Text: text, ModelTier: best.stats.Tier, Model: best.stats.Model, Source: model.SourceModel}
	}
	accepted := best.accepted

	if len(accepted) < g.opts.MinCandidates {
		res.Status = model.GenerationStatusFallback
		res.Source = model.SourceFallback
		res.Telemetry.FallbackUsed = true
		vars := newTemplateVars(req.Facts, p.anchors, req.History.Topics, p.cues)
		merged := append(append([]string{}, accepted...), TemplateCandidates(p.mode, vars)...)
		fres := g.engine.Evaluate(merged, p.history, p.keywords)
		res.Diagnostics.add(TierTemplate, fres.Rejected)
		accepted = fres.Accepted
		if len(accepted) == 0 {
			accepted = textutil.Cap(append([]string{}, emergencyCandidates...), g.engine.MaxAccepted())
			res.Telemetry.EmergencyUsed = true
		}
		res.ReasonCode = "insufficient_model_candidates"
		res.Reason = fmt.Sprintf("model produced %d usable candidates, below minimum %d", len(best.accepted), g.opts.MinCandidates)
	}

	final := textutil.Cap(g.engine.Diversify(accepted, req.History.Topics), g.opts.MaxCandidates)
	res.Candidates = make([]Candidate, 0, len(final))
	for _, text := range final {
		c, ok := tierOf[strings.ToLower(text)]
		if !ok {
			c = Candidate{Text: text, ModelTier: TierTemplate, Source: model.SourceFallback}
		}
		res.Candidates = append(res.Candidates, c)
	}
	return res, nil
}

func (g *Generator) newResult(req *Request, p *prepared) *Result {
	res := &Result{
		Status:     model.GenerationStatusGenerated,
		Source:     model.SourceModel,
		Candidates: []Candidate{},
		ReasonCode: req.Policy.ReasonCode,
		Reason:     req.Policy.Reason,
		Diagnostics: PolicyDiagnostics{
			AllowComment:         req.Policy.AllowComment,
			AllowAutoPost:        req.Policy.AllowAutoPost,
			ManualReviewRequired: req.Policy.ManualReviewRequired,
			ReasonCode:           req.Policy.ReasonCode,
			OwnershipLabel:       req.Policy.OwnershipLabel,
			ReasonCounts:         map[string]int{},
			Rejected:             []RejectedCandidate{},
		},
		Telemetry: Telemetry{
			TrimmedSections: []string{},
			Passes:          []*PassStats{},
		},
	}
	if p != nil {
		res.Telemetry.ContextChars = p.doc.Size()
		res.Telemetry.ContextOverTarget = g.opts.ContextTargetChars > 0 && res.Telemetry.ContextChars > g.opts.ContextTargetChars
		res.Telemetry.TrimmedSections = p.trimmed
		res.Telemetry.ContentMode = p.mode
		res.Telemetry.VisualAnchors = p.anchors
		res.Telemetry.SituationalCues = p.cues
	}
	return res
}

// blocked 策略不允许评论，不调用模型
func (g *Generator) blocked(req *Request) *Result {
	pol := req.Policy
	if pol == nil {
		pol = &model.GenerationPolicy{ReasonCode: "missing_policy", Reason: "no generation policy for this run"}
	}
	g.log.Info("generation blocked by policy", "item_id", req.ItemID, "run_id", req.RunID, "reason_code", pol.ReasonCode)
	return &Result{
		Status:     model.GenerationStatusBlocked,
		Source:     model.SourcePolicy,
		ReasonCode: pol.ReasonCode,
		Reason:     pol.Reason,
		Candidates: []Candidate{},
		Telemetry:  Telemetry{TrimmedSections: []string{}, Passes: []*PassStats{}},
		Diagnostics: PolicyDiagnostics{
			AllowComment:         pol.AllowComment,
			AllowAutoPost:        pol.AllowAutoPost,
			ManualReviewRequired: pol.ManualReviewRequired,
			ReasonCode:           pol.ReasonCode,
			OwnershipLabel:       pol.OwnershipLabel,
			ReasonCounts:         map[string]int{},
			Rejected:             []RejectedCandidate{},
		},
	}
}

// errorFallback 内部错误时仍给出经过过滤的模板候选
func (g *Generator) errorFallback(req *Request, class string, cause error) *Result {
	res := g.newResult(req, nil)
	res.Status = model.GenerationStatusError
	res.Source = model.SourceErrorFallback
	res.ReasonCode = "generation_error"
	res.Reason = "generation failed, fallback candidates used"
	res.ErrorClass = class
	res.ErrorMessage = cause.Error()
	res.Telemetry.FallbackUsed = true

	texts := g.safeFallbackTexts(req, res)
	for _, text := range texts {
		res.Candidates = append(res.Candidates, Candidate{Text: text, ModelTier: TierTemplate, Source: model.SourceErrorFallback})
	}
	return res
}

// safeFallbackTexts 模板路径本身出错时退到固定兜底
func (g *Generator) safeFallbackTexts(req *Request, res *Result) (texts []string) {
	defer func() {
		if r := recover(); r != nil {
			texts = textutil.Cap(append([]string{}, emergencyCandidates...), g.engine.MaxAccepted())
			res.Telemetry.EmergencyUsed = true
		}
	}()
	f := req.Facts
	if f == nil {
		f = &model.VerifiedFacts{}
	}
	anchors := VisualAnchors(f.Objects)
	cues := SituationalCues(f, req.History.Topics)
	mode := ContentMode(f, req.Policy.OwnershipLabel, cues)
	res.Telemetry.ContentMode = mode
	keywords := append(append(append([]string{}, req.History.Topics...), anchors...), f.Scenes...)
	history := policy.History{Comments: req.History.RecentComments, Openers: req.History.RecentOpeners}
	accepted, rejected, emergency := fallbackCandidates(g.engine, mode, newTemplateVars(f, anchors, req.History.Topics, cues), history, keywords)
	res.Diagnostics.add(TierTemplate, rejected)
	res.Telemetry.EmergencyUsed = emergency
	return textutil.Cap(accepted, g.opts.MaxCandidates)
}

// errorClass 错误类型名，用于审计
func errorClass(err error) string {
	var httpErr *capability.HTTPError
	if errors.As(err, &httpErr) {
		return fmt.Sprintf("http_%d", httpErr.StatusCode)
	}
	for {
		next := errors.Unwrap(err)
		if next == nil {
			break
		}
		err = next
	}
	return strings.TrimPrefix(fmt.Sprintf("%T", err), "*")
}
