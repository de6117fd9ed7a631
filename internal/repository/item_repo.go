package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/qs3c/engage_go_server/internal/model"
)

var (
	ErrItemNotFound     = errors.New("analysis item not found")
	ErrConcurrentUpdate = errors.New("analysis item was modified concurrently")
)

// MutateFunc 在行锁内修改 item，返回是否需要写回
type MutateFunc func(item *model.AnalysisItem) (bool, error)

type ItemRepository struct {
	db *gorm.DB
}

// NewItemRepository 创建分析条目仓储
func NewItemRepository(db *gorm.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

func (r *ItemRepository) Create(item *model.AnalysisItem) error {
	return r.db.Create(item).Error
}

func (r *ItemRepository) GetByID(id int64) (*model.AnalysisItem, error) {
	var item model.AnalysisItem
	err := r.db.Where("id = ?", id).First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrItemNotFound
		}
		return nil, err
	}
	return &item, nil
}

func (r *ItemRepository) Update(item *model.AnalysisItem) error {
	return r.db.Save(item).Error
}

func (r *ItemRepository) UpdateStatus(id int64, status, lastError string) error {
	return r.db.Model(&model.AnalysisItem{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"last_error": lastError,
			"updated_at": time.Now(),
		}).Error
}

// MutateLocked 事务内 SELECT ... FOR UPDATE 重新加载 item，执行 fn，
// 再以 pipeline_version 做比较交换写回。fn 返回 false 时不写库。
func (r *ItemRepository) MutateLocked(ctx context.Context, id int64, fn MutateFunc) (*model.AnalysisItem, error) {
	var out *model.AnalysisItem
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item model.AnalysisItem
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).
			First(&item).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrItemNotFound
		}
		if err != nil {
			return err
		}

		changed, err := fn(&item)
		if err != nil {
			return err
		}
		if !changed {
			out = &item
			return nil
		}

		prev := item.PipelineVersion
		item.PipelineVersion = prev + 1
		item.UpdatedAt = time.Now()
		res := tx.Model(&model.AnalysisItem{}).
			Where("id = ? AND pipeline_version = ?", id, prev).
			Updates(map[string]interface{}{
				"status":           item.Status,
				"pipeline":         item.Pipeline,
				"pipeline_version": item.PipelineVersion,
				"analysis":         item.Analysis,
				"last_error":       item.LastError,
				"updated_at":       item.UpdatedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConcurrentUpdate
		}
		out = &item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListStaleRunning 获取超过截止时间仍处于 running 的 item
func (r *ItemRepository) ListStaleRunning(before time.Time, limit int) ([]*model.AnalysisItem, error) {
	var items []*model.AnalysisItem
	err := r.db.Where("status = ? AND updated_at < ?", model.ItemStatusRunning, before).
		Order("updated_at ASC").
		Limit(limit).
		Find(&items).Error
	return items, err
}

// ListByAccount 账号最近的 item
func (r *ItemRepository) ListByAccount(accountID int64, limit int) ([]*model.AnalysisItem, error) {
	var items []*model.AnalysisItem
	err := r.db.Where("account_id = ?", accountID).
		Order("created_at DESC").
		Limit(limit).
		Find(&items).Error
	return items, err
}
