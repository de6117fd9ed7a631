package service

import (
	"context"
	"encoding/json"
	"errors"
	"sort"

	"gorm.io/datatypes"

	"github.com/qs3c/engage_go_server/internal/generator"
	"github.com/qs3c/engage_go_server/internal/model"
	"github.com/qs3c/engage_go_server/internal/pkg/logger"
	"github.com/qs3c/engage_go_server/internal/pkg/textutil"
	"github.com/qs3c/engage_go_server/internal/policy"
	"github.com/qs3c/engage_go_server/internal/repository"
	"github.com/qs3c/engage_go_server/internal/scoring"
)

const (
	defaultToneProfile = "warm, casual, concise"
	summaryItems       = 5
	summaryChars       = 120
)

var ErrGenerationNotFound = errors.New("尚未生成评论")

// GenerationOutput 一次生成的持久化结果
type GenerationOutput struct {
	Generation  *model.GenerationRecord     `json:"generation"`
	Suggestions []*model.CommentSuggestion  `json:"suggestions"`
	Telemetry   generator.Telemetry         `json:"telemetry"`
	Diagnostics generator.PolicyDiagnostics `json:"policy_diagnostics"`
}

// CommentService 生成、打分并保存候选评论
type CommentService struct {
	items        *repository.ItemRepository
	generations  *repository.GenerationRepository
	comments     *repository.CommentRepository
	generator    *generator.Generator
	scorer       *scoring.Scorer
	historyLimit int
	log          *logger.Logger
}

// NewCommentService 创建评论服务
func NewCommentService(
	items *repository.ItemRepository,
	generations *repository.GenerationRepository,
	comments *repository.CommentRepository,
	gen *generator.Generator,
	scorer *scoring.Scorer,
	historyLimit int,
	log *logger.Logger,
) *CommentService {
	return &CommentService{
		items:        items,
		generations:  generations,
		comments:     comments,
		generator:    gen,
		scorer:       scorer,
		historyLimit: historyLimit,
		log:          log.With("component", "comment_service"),
	}
}

// GeneratePostComments 基于最近一次分析记录生成评论。runID 为空时使用记录里的运行。
// 临时性错误原样返回，由调用方决定是否重试
func (s *CommentService) GeneratePostComments(ctx context.Context, itemID int64, runID string) (*GenerationOutput, error) {
	item, err := s.items.GetByID(itemID)
	if err != nil {
		if errors.Is(err, repository.ErrItemNotFound) {
			return nil, ErrItemNotFound
		}
		return nil, err
	}
	rec, err := item.AnalysisRecord()
	if err != nil {
		return nil, err
	}
	if rec == nil || (runID != "" && rec.RunID != runID) {
		return nil, ErrAnalysisNotReady
	}

	history, err := s.historySignals(item)
	if err != nil {
		return nil, err
	}

	res, err := s.generator.Generate(ctx, &generator.Request{
		ItemID:  item.ID,
		RunID:   rec.RunID,
		Kind:    item.Kind,
		Facts:   &rec.Facts,
		Policy:  &rec.Policy,
		History: history,
	})
	if err != nil {
		return nil, err
	}

	out, err := s.persist(item, rec, history, res)
	if err != nil {
		return nil, err
	}
	s.log.Info("comments generated",
		"item_id", item.ID,
		"run_id", rec.RunID,
		"status", res.Status,
		"source", res.Source,
		"suggestions", len(out.Suggestions),
		"escalated", res.Telemetry.Escalated,
	)
	return out, nil
}

// historySignals 账号最近的评论、开头与帖子摘要
func (s *CommentService) historySignals(item *model.AnalysisItem) (generator.HistorySignals, error) {
	recent, err := s.comments.ListRecentTextsByAccount(item.AccountID, s.historyLimit)
	if err != nil {
		return generator.HistorySignals{}, err
	}

	openers := make([]string, 0, len(recent))
	for _, text := range recent {
		if sig := textutil.OpeningSignature(text, policy.OpeningTokens); sig != "" {
			openers = append(openers, sig)
		}
	}

	others, err := s.items.ListByAccount(item.AccountID, summaryItems+1)
	if err != nil {
		return generator.HistorySignals{}, err
	}
	summaries := make([]string, 0, summaryItems)
	for _, other := range others {
		if other.ID == item.ID || other.Caption == "" {
			continue
		}
		summaries = append(summaries, textutil.TruncateRunes(textutil.NormalizeSpace(other.Caption), summaryChars))
	}

	return generator.HistorySignals{
		RecentComments: recent,
		RecentOpeners:  textutil.Dedupe(openers),
		Topics:         textutil.Dedupe(item.Topics),
		ToneProfile:    defaultToneProfile,
		Relationship:   relationshipFor(len(recent)),
		Summaries:      textutil.Cap(summaries, summaryItems),
	}, nil
}

// relationshipFor 按历史评论数量估计与账号的熟悉程度
func relationshipFor(n int) string {
	switch {
	case n >= 20:
		return "familiar"
	case n >= 5:
		return "warm"
	case n > 0:
		return "new"
	default:
		return "unknown"
	}
}

func (s *CommentService) persist(item *model.AnalysisItem, rec *model.AnalysisRecord, history generator.HistorySignals, res *generator.Result) (*GenerationOutput, error) {
	gen := &model.GenerationRecord{
		ItemID:        item.ID,
		RunID:         rec.RunID,
		AccountID:     item.AccountID,
		Status:        res.Status,
		Source:        res.Source,
		ReasonCode:    res.ReasonCode,
		Reason:        res.Reason,
		SelectedModel: res.SelectedModel,
		RawResponse:   res.RawResponse,
		ErrorClass:    res.ErrorClass,
		ErrorMessage:  res.ErrorMessage,
	}
	var err error
	if gen.Telemetry, err = toJSON(res.Telemetry); err != nil {
		return nil, err
	}
	if gen.Rejected, err = toJSON(res.Diagnostics.Rejected); err != nil {
		return nil, err
	}
	if gen.PolicyDiagnostics, err = toJSON(res.Diagnostics); err != nil {
		return nil, err
	}

	suggestions, err := s.rank(item, rec, history, res)
	if err != nil {
		return nil, err
	}
	if err := s.generations.CreateWithSuggestions(gen, suggestions); err != nil {
		return nil, err
	}
	return &GenerationOutput{
		Generation:  gen,
		Suggestions: suggestions,
		Telemetry:   res.Telemetry,
		Diagnostics: res.Diagnostics,
	}, nil
}

// rank 打分并按分数排序；策略不允许自动发布时全部标记为不可自动发布
func (s *CommentService) rank(item *model.AnalysisItem, rec *model.AnalysisRecord, history generator.HistorySignals, res *generator.Result) ([]*model.CommentSuggestion, error) {
	sctx := scoring.NewContext(&rec.Facts, history.Topics, history.Relationship, history.RecentComments)
	out := make([]*model.CommentSuggestion, 0, len(res.Candidates))
	for _, c := range res.Candidates {
		scored := s.scorer.Score(c.Text, sctx)
		factors, err := toJSON(scored.Factors)
		if err != nil {
			return nil, err
		}
		out = append(out, &model.CommentSuggestion{
			ItemID:           item.ID,
			RunID:            rec.RunID,
			AccountID:        item.AccountID,
			Text:             c.Text,
			Score:            scored.Score,
			ConfidenceLevel:  scored.ConfidenceLevel,
			AutoPostEligible: scored.AutoPostEligible && rec.Policy.AllowAutoPost,
			Factors:          factors,
			ModelTier:        c.ModelTier,
			Model:            c.Model,
			Source:           c.Source,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	for i, sg := range out {
		sg.Rank = i + 1
	}
	return out, nil
}

// LatestGeneration 最近一次生成记录及其候选
func (s *CommentService) LatestGeneration(itemID int64) (*GenerationOutput, error) {
	gen, err := s.generations.GetLatestByItemID(itemID)
	if err != nil {
		if errors.Is(err, repository.ErrGenerationNotFound) {
			return nil, ErrGenerationNotFound
		}
		return nil, err
	}
	suggestions, err := s.comments.ListByGenerationID(gen.ID)
	if err != nil {
		return nil, err
	}
	out := &GenerationOutput{Generation: gen, Suggestions: suggestions}
	if len(gen.Telemetry) > 0 {
		if err := json.Unmarshal(gen.Telemetry, &out.Telemetry); err != nil {
			return nil, err
		}
	}
	if len(gen.PolicyDiagnostics) > 0 {
		if err := json.Unmarshal(gen.PolicyDiagnostics, &out.Diagnostics); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func toJSON(v interface{}) (datatypes.JSON, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(data), nil
}
