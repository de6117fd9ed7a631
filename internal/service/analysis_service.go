package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/qs3c/engage_go_server/internal/facts"
	"github.com/qs3c/engage_go_server/internal/model"
	"github.com/qs3c/engage_go_server/internal/pipeline"
	"github.com/qs3c/engage_go_server/internal/pkg/logger"
	"github.com/qs3c/engage_go_server/internal/repository"
)

var ErrAnalysisNotReady = errors.New("分析结果尚未生成")

// AnalysisService 把各步骤的识别结果整理为事实、归属与生成策略
type AnalysisService struct {
	items   *repository.ItemRepository
	tracker *pipeline.Tracker
	builder *facts.Builder
	log     *logger.Logger
	now     func() time.Time
}

// NewAnalysisService 创建分析服务
func NewAnalysisService(items *repository.ItemRepository, tracker *pipeline.Tracker, builder *facts.Builder, log *logger.Logger) *AnalysisService {
	return &AnalysisService{
		items:   items,
		tracker: tracker,
		builder: builder,
		log:     log.With("component", "analysis_service"),
		now:     time.Now,
	}
}

// BuildFacts 在 item 锁内合并步骤结果并写入分析记录；运行已被替换时返回 nil, nil
func (s *AnalysisService) BuildFacts(ctx context.Context, itemID int64, runID string) (*model.AnalysisRecord, error) {
	var rec *model.AnalysisRecord
	run, err := s.tracker.Update(ctx, itemID, runID, "build_facts", func(item *model.AnalysisItem, run *model.PipelineRun) (bool, error) {
		raw, used, err := facts.CollectRaw(run)
		if err != nil {
			return false, err
		}
		f, ownership, policy := s.builder.Build(raw, facts.SourceMetadata{
			AccountUsername: item.AccountUsername,
			Caption:         item.Caption,
			Kind:            item.Kind,
		})
		rec = &model.AnalysisRecord{
			RunID:     run.RunID,
			Facts:     *f,
			Ownership: *ownership,
			Policy:    *policy,
			BuiltAt:   s.now(),
		}
		s.log.Info("facts built",
			"item_id", itemID,
			"run_id", runID,
			"steps", used,
			"signal_score", f.SignalScore,
			"ownership", ownership.Label,
			"allow_comment", policy.AllowComment,
		)
		return true, item.SetAnalysisRecord(rec)
	})
	if err != nil {
		return nil, fmt.Errorf("build facts: %w", err)
	}
	if run == nil {
		return nil, nil
	}
	return rec, nil
}

// GetAnalysis 最近一次事实分析结果
func (s *AnalysisService) GetAnalysis(itemID int64) (*model.AnalysisRecord, error) {
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
	if rec == nil {
		return nil, ErrAnalysisNotReady
	}
	return rec, nil
}
