package testutil

import (
	"fmt"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/engage_go_server/internal/model"
)

// TestItem 创建测试分析对象
func TestItem(t *testing.T, db *gorm.DB, opts ...func(*model.AnalysisItem)) *model.AnalysisItem {
	t.Helper()

	item := &model.AnalysisItem{
		AccountID:       1,
		AccountUsername: "maya.travels",
		Kind:            model.ItemKindPost,
		MediaType:       model.MediaTypeImage,
		MediaKey:        fmt.Sprintf("media/%d.jpg", time.Now().UnixNano()),
		Caption:         "Golden hour at the pier",
		Status:          model.ItemStatusPending,
	}

	for _, opt := range opts {
		opt(item)
	}

	if err := db.Create(item).Error; err != nil {
		t.Fatalf("Failed to create test item: %v", err)
	}

	return item
}

// WithAccount 设置账号
func WithAccount(id int64, username string) func(*model.AnalysisItem) {
	return func(i *model.AnalysisItem) {
		i.AccountID = id
		i.AccountUsername = username
	}
}

// WithVideo 设置为视频帖
func WithVideo(key string) func(*model.AnalysisItem) {
	return func(i *model.AnalysisItem) {
		i.MediaType = model.MediaTypeVideo
		i.VideoKey = key
	}
}

// WithoutMedia 清空素材
func WithoutMedia() func(*model.AnalysisItem) {
	return func(i *model.AnalysisItem) {
		i.MediaKey = ""
		i.VideoKey = ""
	}
}

// WithCaption 设置文案
func WithCaption(caption string) func(*model.AnalysisItem) {
	return func(i *model.AnalysisItem) {
		i.Caption = caption
	}
}

// WithTopics 设置话题
func WithTopics(topics ...string) func(*model.AnalysisItem) {
	return func(i *model.AnalysisItem) {
		i.Topics = topics
	}
}

// WithItemStatus 设置状态
func WithItemStatus(status string) func(*model.AnalysisItem) {
	return func(i *model.AnalysisItem) {
		i.Status = status
	}
}

// TestGeneration 创建生成记录
func TestGeneration(t *testing.T, db *gorm.DB, item *model.AnalysisItem, status string) *model.GenerationRecord {
	t.Helper()

	rec := &model.GenerationRecord{
		ItemID:    item.ID,
		AccountID: item.AccountID,
		RunID:     fmt.Sprintf("run-%d", time.Now().UnixNano()),
		Status:    status,
		Source:    model.SourceModel,
	}
	if err := db.Create(rec).Error; err != nil {
		t.Fatalf("Failed to create test generation: %v", err)
	}
	return rec
}

// TestSuggestion 创建候选评论
func TestSuggestion(t *testing.T, db *gorm.DB, item *model.AnalysisItem, text string, opts ...func(*model.CommentSuggestion)) *model.CommentSuggestion {
	t.Helper()

	s := &model.CommentSuggestion{
		ItemID:          item.ID,
		AccountID:       item.AccountID,
		Text:            text,
		Score:           1.5,
		ConfidenceLevel: "medium",
		Source:          model.SourceModel,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := db.Create(s).Error; err != nil {
		t.Fatalf("Failed to create test suggestion: %v", err)
	}
	return s
}

// WithCreatedAt 设置创建时间
func WithCreatedAt(at time.Time) func(*model.CommentSuggestion) {
	return func(s *model.CommentSuggestion) {
		s.CreatedAt = at
	}
}
