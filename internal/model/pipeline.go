package model

import (
	"encoding/json"
	"time"
)

// 分析步骤
const (
	StepVisual   = "visual"
	StepFace     = "face"
	StepOCR      = "ocr"
	StepVideo    = "video"
	StepMetadata = "metadata"
)

// AllSteps 固定的步骤顺序
var AllSteps = []string{StepVisual, StepFace, StepOCR, StepVideo, StepMetadata}

// 步骤状态
const (
	StepStatusPending   = "pending"
	StepStatusQueued    = "queued"
	StepStatusRunning   = "running"
	StepStatusSucceeded = "succeeded"
	StepStatusFailed    = "failed"
	StepStatusSkipped   = "skipped"
)

// 流水线状态
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// IsTerminalStepStatus 是否为步骤终态
func IsTerminalStepStatus(status string) bool {
	switch status {
	case StepStatusSucceeded, StepStatusFailed, StepStatusSkipped:
		return true
	}
	return false
}

// IsKnownStep 是否为已知步骤
func IsKnownStep(step string) bool {
	for _, s := range AllSteps {
		if s == step {
			return true
		}
	}
	return false
}

// TaskFlags 本次运行启用哪些步骤
type TaskFlags struct {
	Visual   bool `json:"visual"`
	Face     bool `json:"face"`
	OCR      bool `json:"ocr"`
	Video    bool `json:"video"`
	Metadata bool `json:"metadata"`
}

// DefaultTaskFlags 默认全部启用
func DefaultTaskFlags() TaskFlags {
	return TaskFlags{Visual: true, Face: true, OCR: true, Video: true, Metadata: true}
}

// Enabled 对应步骤的开关
func (f TaskFlags) Enabled(step string) bool {
	switch step {
	case StepVisual:
		return f.Visual
	case StepFace:
		return f.Face
	case StepOCR:
		return f.OCR
	case StepVideo:
		return f.Video
	case StepMetadata:
		return f.Metadata
	}
	return false
}

// StepState 单个步骤的状态
type StepState struct {
	Status     string          `json:"status"`
	Attempts   int             `json:"attempts"`
	QueueRef   string          `json:"queue_ref,omitempty"`
	JobRef     string          `json:"job_ref,omitempty"`
	QueuedAt   *time.Time      `json:"queued_at,omitempty"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// Terminal 是否已结束
func (s *StepState) Terminal() bool {
	return s != nil && IsTerminalStepStatus(s.Status)
}

// PipelineRun 针对一个 AnalysisItem 的一次分析
type PipelineRun struct {
	RunID           string                `json:"run_id"`
	Status          string                `json:"status"`
	Source          string                `json:"source,omitempty"`
	Flags           TaskFlags             `json:"flags"`
	RequiredSteps   []string              `json:"required_steps"`
	Steps           map[string]*StepState `json:"steps"`
	FinalizeClaimed bool                  `json:"finalize_claimed,omitempty"`
	ReasonCode      string                `json:"reason_code,omitempty"`
	Reason          string                `json:"reason,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
	FinishedAt      *time.Time            `json:"finished_at,omitempty"`
}

// PipelineDetails 结束流水线时附带的原因
type PipelineDetails struct {
	ReasonCode string `json:"reason_code,omitempty"`
	Reason     string `json:"reason,omitempty"`
	// ItemStatus 覆盖 item 的最终状态（例如 blocked）
	ItemStatus string `json:"-"`
}

// Step 取步骤状态，不存在时返回 nil
func (r *PipelineRun) Step(step string) *StepState {
	if r == nil || r.Steps == nil {
		return nil
	}
	return r.Steps[step]
}

// IsRequired 步骤是否属于本次运行
func (r *PipelineRun) IsRequired(step string) bool {
	for _, s := range r.RequiredSteps {
		if s == step {
			return true
		}
	}
	return false
}

// Terminal 流水线是否已结束
func (r *PipelineRun) Terminal() bool {
	return r.Status == RunStatusCompleted || r.Status == RunStatusFailed
}

// AllRequiredStepsTerminal 所有必需步骤都已到达终态
func (r *PipelineRun) AllRequiredStepsTerminal() bool {
	for _, s := range r.RequiredSteps {
		if !r.Step(s).Terminal() {
			return false
		}
	}
	return true
}

// CoreStepsSucceeded 除 metadata 外的必需步骤全部成功
func (r *PipelineRun) CoreStepsSucceeded() bool {
	for _, s := range r.RequiredSteps {
		if s == StepMetadata {
			continue
		}
		st := r.Step(s)
		if st == nil || st.Status != StepStatusSucceeded {
			return false
		}
	}
	return true
}

// FailedRequiredSteps 失败的必需步骤（按固定顺序）
func (r *PipelineRun) FailedRequiredSteps() []string {
	failed := []string{}
	for _, s := range r.RequiredSteps {
		if st := r.Step(s); st != nil && st.Status == StepStatusFailed {
			failed = append(failed, s)
		}
	}
	return failed
}

// Progress 已结束步骤占比（0-100）
func (r *PipelineRun) Progress() int {
	if len(r.RequiredSteps) == 0 {
		return 100
	}
	done := 0
	for _, s := range r.RequiredSteps {
		if r.Step(s).Terminal() {
			done++
		}
	}
	return done * 100 / len(r.RequiredSteps)
}
