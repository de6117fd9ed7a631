package model

import (
	"time"

	"gorm.io/datatypes"
)

// 生成结果状态
const (
	GenerationStatusGenerated = "generated"
	GenerationStatusBlocked   = "blocked"
	GenerationStatusFallback  = "fallback"
	GenerationStatusError     = "error_fallback"
)

// 候选来源
const (
	SourceModel         = "model"
	SourceFallback      = "fallback"
	SourcePolicy        = "policy"
	SourceErrorFallback = "error_fallback"
)

// GenerationRecord 一次评论生成的审计记录
type GenerationRecord struct {
	ID                int64          `gorm:"primaryKey" json:"id"`
	ItemID            int64          `gorm:"not null;index" json:"item_id"`
	RunID             string         `gorm:"size:64;index" json:"run_id"`
	AccountID         int64          `gorm:"not null;index" json:"account_id"`
	Status            string         `gorm:"size:20;not null" json:"status"`
	Source            string         `gorm:"size:20;not null" json:"source"`
	ReasonCode        string         `gorm:"size:64" json:"reason_code,omitempty"`
	Reason            string         `gorm:"type:text" json:"reason,omitempty"`
	SelectedModel     string         `gorm:"size:100" json:"selected_model,omitempty"`
	RawResponse       string         `gorm:"type:text" json:"raw_response,omitempty"`
	Telemetry         datatypes.JSON `json:"telemetry,omitempty"`
	Rejected          datatypes.JSON `json:"rejected,omitempty"`
	PolicyDiagnostics datatypes.JSON `json:"policy_diagnostics,omitempty"`
	ErrorClass        string         `gorm:"size:100" json:"error_class,omitempty"`
	ErrorMessage      string         `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt         time.Time      `gorm:"index" json:"created_at"`
}

func (GenerationRecord) TableName() string {
	return "generation_records"
}

// CommentSuggestion 最终给出的候选评论
type CommentSuggestion struct {
	ID               int64          `gorm:"primaryKey" json:"id"`
	ItemID           int64          `gorm:"not null;index" json:"item_id"`
	GenerationID     int64          `gorm:"index" json:"generation_id"`
	RunID            string         `gorm:"size:64" json:"run_id"`
	AccountID        int64          `gorm:"not null;index" json:"account_id"`
	Text             string         `gorm:"size:255;not null" json:"text"`
	Rank             int            `json:"rank"`
	Score            float64        `json:"score"`
	ConfidenceLevel  string         `gorm:"size:10" json:"confidence_level"`
	AutoPostEligible bool           `json:"auto_post_eligible"`
	Factors          datatypes.JSON `json:"factors,omitempty"`
	ModelTier        string         `gorm:"size:20" json:"model_tier,omitempty"`
	Model            string         `gorm:"size:100" json:"model,omitempty"`
	Source           string         `gorm:"size:20" json:"source"`
	CreatedAt        time.Time      `gorm:"index" json:"created_at"`
}

func (CommentSuggestion) TableName() string {
	return "comment_suggestions"
}
