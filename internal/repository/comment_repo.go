package repository

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/qs3c/engage_go_server/internal/model"
)

type CommentRepository struct {
	db *gorm.DB
}

// NewCommentRepository 创建评论建议仓储
func NewCommentRepository(db *gorm.DB) *CommentRepository {
	return &CommentRepository{db: db}
}

func (r *CommentRepository) CreateBatch(suggestions []*model.CommentSuggestion) error {
	if len(suggestions) == 0 {
		return nil
	}
	return r.db.Create(&suggestions).Error
}

// ListByGenerationID 按排名返回某次生成的候选
func (r *CommentRepository) ListByGenerationID(generationID int64) ([]*model.CommentSuggestion, error) {
	var list []*model.CommentSuggestion
	err := r.db.Where("generation_id = ?", generationID).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "rank"}}).
		Find(&list).Error
	return list, err
}

func (r *CommentRepository) ListByItemID(itemID int64) ([]*model.CommentSuggestion, error) {
	var list []*model.CommentSuggestion
	err := r.db.Where("item_id = ?", itemID).
		Order("created_at DESC, id DESC").
		Find(&list).Error
	return list, err
}

// ListRecentTextsByAccount 账号最近给出的评论文本（新的在前）
func (r *CommentRepository) ListRecentTextsByAccount(accountID int64, limit int) ([]string, error) {
	var texts []string
	err := r.db.Model(&model.CommentSuggestion{}).
		Where("account_id = ?", accountID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Pluck("text", &texts).Error
	return texts, err
}

func (r *CommentRepository) CountOlderThan(before time.Time) (int64, error) {
	var n int64
	err := r.db.Model(&model.CommentSuggestion{}).Where("created_at < ?", before).Count(&n).Error
	return n, err
}

func (r *CommentRepository) DeleteOlderThan(before time.Time) (int64, error) {
	res := r.db.Where("created_at < ?", before).Delete(&model.CommentSuggestion{})
	return res.RowsAffected, res.Error
}
