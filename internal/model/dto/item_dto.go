package dto

import (
	"time"

	"github.com/qs3c/engage_go_server/internal/model"
)

// CreateItemRequest 登记待分析的帖子或快拍
type CreateItemRequest struct {
	AccountID       int64    `json:"account_id" binding:"required,min=1"`
	AccountUsername string   `json:"account_username" binding:"required,max=100"`
	Kind            string   `json:"kind,omitempty" binding:"omitempty,oneof=post story"`
	MediaType       string   `json:"media_type,omitempty" binding:"omitempty,oneof=image video"`
	MediaKey        string   `json:"media_key,omitempty" binding:"omitempty,max=500"`
	VideoKey        string   `json:"video_key,omitempty" binding:"omitempty,max=500"`
	Caption         string   `json:"caption,omitempty" binding:"omitempty,max=5000"`
	Permalink       string   `json:"permalink,omitempty" binding:"omitempty,url,max=500"`
	Topics          []string `json:"topics,omitempty" binding:"omitempty,max=10,dive,max=50"`
	AutoStart       bool     `json:"auto_start,omitempty"`
}

// CreateItemResponse 登记结果
type CreateItemResponse struct {
	ItemID int64  `json:"item_id"`
	RunID  string `json:"run_id,omitempty"`
}

// ItemDetail item 详情
type ItemDetail struct {
	ID              int64     `json:"id"`
	AccountID       int64     `json:"account_id"`
	AccountUsername string    `json:"account_username"`
	Kind            string    `json:"kind"`
	MediaType       string    `json:"media_type"`
	Caption         string    `json:"caption,omitempty"`
	Permalink       string    `json:"permalink,omitempty"`
	Topics          []string  `json:"topics"`
	Status          string    `json:"status"`
	LastError       string    `json:"last_error,omitempty"`
	Progress        int       `json:"progress"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// NewItemDetail 由 item 及其当前运行组装详情
func NewItemDetail(item *model.AnalysisItem, run *model.PipelineRun) *ItemDetail {
	d := &ItemDetail{
		ID:              item.ID,
		AccountID:       item.AccountID,
		AccountUsername: item.AccountUsername,
		Kind:            item.Kind,
		MediaType:       item.MediaType,
		Caption:         item.Caption,
		Permalink:       item.Permalink,
		Topics:          []string(item.Topics),
		Status:          item.Status,
		LastError:       item.LastError,
		CreatedAt:       item.CreatedAt,
		UpdatedAt:       item.UpdatedAt,
	}
	if d.Topics == nil {
		d.Topics = []string{}
	}
	if run != nil {
		d.Progress = run.Progress()
	}
	return d
}
