package generator

import (
	"context"
	"math"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/qs3c/engage_go_server/internal/capability"
	"github.com/qs3c/engage_go_server/internal/pkg/textutil"
	"github.com/qs3c/engage_go_server/internal/policy"
)

// 升级原因
const (
	EscalateLowAccepted   = "low_accepted_count"
	EscalateHighReject    = "high_reject_ratio"
	EscalateWeakGrounding = "low_grounded_ratio"
)

// passResult 一个档位的生成结果（含一次重试）
type passResult struct {
	stats    *PassStats
	accepted []string
	rejected []policy.Rejection
	raw      string
}

// runPass 提示词 → 模型 → 解析 → 策略过滤；通过数不足时用更严格的提示词和更低温度重试一次
func (g *Generator) runPass(ctx context.Context, tier, modelName string, p *prepared) (*passResult, error) {
	ctx, span := g.tracer.Start(ctx, "generator.pass", trace.WithAttributes(
		attribute.String("tier", tier),
		attribute.String("model", modelName),
	))
	defer span.End()

	stats := &PassStats{Tier: tier, Model: modelName, MaxTokens: []int{}}
	var parsed []string
	var raws []string

	attempt := func(strict bool, temperature float64) (*policy.Result, error) {
		prompt := BuildPrompt(p.doc, g.opts.MaxCandidates, strict)
		maxTokens := tokenBudget(systemPrompt+prompt, g.opts.ContextTokenLimit, g.opts.MinOutputTokens, g.opts.MaxOutputTokens)
		stats.Attempts++
		stats.PromptChars = len([]rune(prompt))
		stats.MaxTokens = append(stats.MaxTokens, maxTokens)

		resp, err := g.llm.GenerateText(ctx, capability.GenerateRequest{
			Model:          modelName,
			System:         systemPrompt,
			Prompt:         prompt,
			Temperature:    temperature,
			MaxTokens:      maxTokens,
			ResponseFormat: capability.FormatJSON,
		})
		if err != nil {
			return nil, err
		}
		stats.Usage.PromptTokens += resp.Usage.PromptTokens
		stats.Usage.CompletionTokens += resp.Usage.CompletionTokens
		stats.Usage.TotalTokens += resp.Usage.TotalTokens
		raws = append(raws, resp.Text)

		parsed = append(parsed, ParseCandidates(resp.Text)...)
		return g.engine.Evaluate(parsed, p.history, p.keywords), nil
	}

	res, err := attempt(false, g.opts.Temperature)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if len(res.Accepted) < g.opts.MinCandidates {
		stats.Retried = true
		g.log.Debug("too few candidates, retrying with strict prompt",
			"tier", tier, "model", modelName, "accepted", len(res.Accepted))
		retry, err := attempt(true, g.opts.RetryTemperature)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		res = retry
	}

	accepted := textutil.Cap(res.Accepted, g.opts.MaxCandidates)
	stats.Parsed = len(parsed)
	stats.Accepted = len(accepted)
	stats.Rejected = len(res.Rejected)
	stats.RejectRatio = round3(res.RejectRatio())
	stats.GroundedRatio = round3(groundedRatio(accepted, p.grounding))
	stats.SelectionScore = round3(selectionScore(stats))

	span.SetAttributes(
		attribute.Int("accepted", stats.Accepted),
		attribute.Int("rejected", stats.Rejected),
		attribute.Bool("retried", stats.Retried),
		attribute.Float64("selection_score", stats.SelectionScore),
	)
	return &passResult{
		stats:    stats,
		accepted: accepted,
		rejected: res.Rejected,
		raw:      strings.Join(raws, "\n---\n"),
	}, nil
}

// groundedRatio 与话题或视觉锚点共享词干的候选占比
func groundedRatio(accepted []string, grounding map[string]struct{}) float64 {
	if len(accepted) == 0 || len(grounding) == 0 {
		return 0
	}
	n := 0
	for _, c := range accepted {
		if textutil.OverlapCount(textutil.Tokenize(c), grounding) > 0 {
			n++
		}
	}
	return float64(n) / float64(len(accepted))
}

// selectionScore 档位间择优
func selectionScore(s *PassStats) float64 {
	retry := 0.0
	if s.Retried {
		retry = 1
	}
	return float64(s.Accepted) + 2.5*s.GroundedRatio - 2.2*s.RejectRatio - 0.2*retry
}

// escalationReasons 主模型结果需要升级的原因，为空表示不升级
func (g *Generator) escalationReasons(pass *passResult, p *prepared) []string {
	var reasons []string
	if pass.stats.Accepted < g.opts.EscalateMinAccepted {
		reasons = append(reasons, EscalateLowAccepted)
	}
	if pass.stats.RejectRatio > g.opts.EscalateRejectRatio {
		reasons = append(reasons, EscalateHighReject)
	}
	if len(p.grounding) > 0 && pass.stats.GroundedRatio < g.opts.EscalateGrounded {
		reasons = append(reasons, EscalateWeakGrounding)
	}
	return reasons
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
