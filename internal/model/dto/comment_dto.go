package dto

import (
	"encoding/json"
	"time"

	"github.com/qs3c/engage_go_server/internal/model"
)

// SuggestionItem 候选评论
type SuggestionItem struct {
	ID               int64           `json:"id"`
	Text             string          `json:"text"`
	Rank             int             `json:"rank"`
	Score            float64         `json:"score"`
	ConfidenceLevel  string          `json:"confidence_level"`
	AutoPostEligible bool            `json:"auto_post_eligible"`
	ModelTier        string          `json:"model_tier,omitempty"`
	Source           string          `json:"source"`
	Factors          json.RawMessage `json:"factors,omitempty"`
}

// GenerationResponse 一次生成的结果
type GenerationResponse struct {
	GenerationID  int64             `json:"generation_id"`
	RunID         string            `json:"run_id"`
	Status        string            `json:"status"`
	Source        string            `json:"source"`
	ReasonCode    string            `json:"reason_code,omitempty"`
	Reason        string            `json:"reason,omitempty"`
	SelectedModel string            `json:"selected_model,omitempty"`
	Suggestions   []*SuggestionItem `json:"suggestions"`
	Telemetry     json.RawMessage   `json:"telemetry,omitempty"`
	Diagnostics   json.RawMessage   `json:"policy_diagnostics,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// NewGenerationResponse 组装生成结果；verbose 为 false 时省略遥测和诊断
func NewGenerationResponse(gen *model.GenerationRecord, suggestions []*model.CommentSuggestion, verbose bool) *GenerationResponse {
	resp := &GenerationResponse{
		GenerationID:  gen.ID,
		RunID:         gen.RunID,
		Status:        gen.Status,
		Source:        gen.Source,
		ReasonCode:    gen.ReasonCode,
		Reason:        gen.Reason,
		SelectedModel: gen.SelectedModel,
		Suggestions:   make([]*SuggestionItem, 0, len(suggestions)),
		CreatedAt:     gen.CreatedAt,
	}
	if verbose {
		resp.Telemetry = json.RawMessage(gen.Telemetry)
		resp.Diagnostics = json.RawMessage(gen.PolicyDiagnostics)
	}
	for _, s := range suggestions {
		resp.Suggestions = append(resp.Suggestions, &SuggestionItem{
			ID:               s.ID,
			Text:             s.Text,
			Rank:             s.Rank,
			Score:            s.Score,
			ConfidenceLevel:  s.ConfidenceLevel,
			AutoPostEligible: s.AutoPostEligible,
			ModelTier:        s.ModelTier,
			Source:           s.Source,
			Factors:          json.RawMessage(s.Factors),
		})
	}
	return resp
}
