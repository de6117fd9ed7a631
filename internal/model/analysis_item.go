package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// 分析对象状态
const (
	ItemStatusPending   = "pending"
	ItemStatusRunning   = "running"
	ItemStatusCompleted = "completed"
	ItemStatusFailed    = "failed"
	ItemStatusBlocked   = "blocked"
)

const (
	ItemKindPost  = "post"
	ItemKindStory = "story"

	MediaTypeImage = "image"
	MediaTypeVideo = "video"
)

// AnalysisItem 被分析的帖子或快拍
type AnalysisItem struct {
	ID              int64          `gorm:"primaryKey" json:"id"`
	AccountID       int64          `gorm:"not null;index" json:"account_id"`
	AccountUsername string         `gorm:"size:100;not null" json:"account_username"`
	Kind            string         `gorm:"size:20;default:post" json:"kind"`
	MediaType       string         `gorm:"size:20;default:image" json:"media_type"`
	MediaKey        string         `gorm:"size:500" json:"media_key,omitempty"`
	VideoKey        string         `gorm:"size:500" json:"video_key,omitempty"`
	Caption         string         `gorm:"type:text" json:"caption,omitempty"`
	Permalink       string         `gorm:"size:500" json:"permalink,omitempty"`
	Topics          StringArray    `gorm:"type:json" json:"topics,omitempty"`
	Status          string         `gorm:"size:20;default:pending;index" json:"status"`
	Pipeline        datatypes.JSON `json:"pipeline,omitempty"`
	PipelineVersion int64          `gorm:"not null;default:0" json:"pipeline_version"`
	Analysis        datatypes.JSON `json:"analysis,omitempty"`
	LastError       string         `gorm:"type:text" json:"last_error,omitempty"`
	CreatedAt       time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"index" json:"updated_at"`
}

func (AnalysisItem) TableName() string {
	return "analysis_items"
}

// HasVideo 是否有可用的视频素材
func (i *AnalysisItem) HasVideo() bool {
	if i.VideoKey != "" {
		return true
	}
	return i.MediaType == MediaTypeVideo && i.MediaKey != ""
}

// VideoRef 视频素材的存储键
func (i *AnalysisItem) VideoRef() string {
	if i.VideoKey != "" {
		return i.VideoKey
	}
	if i.MediaType == MediaTypeVideo {
		return i.MediaKey
	}
	return ""
}

// ImageRef 图片素材（视频帖的封面也放在 MediaKey）
func (i *AnalysisItem) ImageRef() string {
	if i.MediaType == MediaTypeVideo && i.VideoKey == "" {
		return ""
	}
	return i.MediaKey
}

// CurrentRun 解码当前流水线，未启动时返回 nil
func (i *AnalysisItem) CurrentRun() (*PipelineRun, error) {
	if len(i.Pipeline) == 0 || string(i.Pipeline) == "null" {
		return nil, nil
	}
	var run PipelineRun
	if err := json.Unmarshal(i.Pipeline, &run); err != nil {
		return nil, err
	}
	if run.RunID == "" {
		return nil, nil
	}
	return &run, nil
}

// SetRun 编码流水线到 JSON 列
func (i *AnalysisItem) SetRun(run *PipelineRun) error {
	data, err := json.Marshal(run)
	if err != nil {
		return err
	}
	i.Pipeline = datatypes.JSON(data)
	return nil
}

// AnalysisRecord 解码最近一次事实分析结果
func (i *AnalysisItem) AnalysisRecord() (*AnalysisRecord, error) {
	if len(i.Analysis) == 0 || string(i.Analysis) == "null" {
		return nil, nil
	}
	var rec AnalysisRecord
	if err := json.Unmarshal(i.Analysis, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (i *AnalysisItem) SetAnalysisRecord(rec *AnalysisRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	i.Analysis = datatypes.JSON(data)
	return nil
}
