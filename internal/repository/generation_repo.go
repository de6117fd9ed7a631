package repository

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/engage_go_server/internal/model"
)

var ErrGenerationNotFound = errors.New("generation record not found")

type GenerationRepository struct {
	db *gorm.DB
}

// NewGenerationRepository 创建生成记录仓储
func NewGenerationRepository(db *gorm.DB) *GenerationRepository {
	return &GenerationRepository{db: db}
}

func (r *GenerationRepository) Create(rec *model.GenerationRecord) error {
	return r.db.Create(rec).Error
}

// CreateWithSuggestions 同一事务写入生成记录和候选评论
func (r *GenerationRepository) CreateWithSuggestions(rec *model.GenerationRecord, suggestions []*model.CommentSuggestion) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(rec).Error; err != nil {
			return err
		}
		if len(suggestions) == 0 {
			return nil
		}
		for _, s := range suggestions {
			s.GenerationID = rec.ID
		}
		return tx.Create(&suggestions).Error
	})
}

func (r *GenerationRepository) GetLatestByItemID(itemID int64) (*model.GenerationRecord, error) {
	var rec model.GenerationRecord
	err := r.db.Where("item_id = ?", itemID).Order("id DESC").First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGenerationNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// CountOlderThan 统计过期记录
func (r *GenerationRepository) CountOlderThan(before time.Time) (int64, error) {
	var n int64
	err := r.db.Model(&model.GenerationRecord{}).Where("created_at < ?", before).Count(&n).Error
	return n, err
}

// DeleteOlderThan 删除过期记录
func (r *GenerationRepository) DeleteOlderThan(before time.Time) (int64, error) {
	res := r.db.Where("created_at < ?", before).Delete(&model.GenerationRecord{})
	return res.RowsAffected, res.Error
}
