package dto

import "github.com/qs3c/engage_go_server/internal/model"

// StartPipelineRequest 启动分析；未传开关时全部启用
type StartPipelineRequest struct {
	Flags  *model.TaskFlags `json:"flags,omitempty"`
	Source string           `json:"source,omitempty" binding:"omitempty,max=50"`
}

// TaskFlags 请求里的开关，缺省取默认值
func (r *StartPipelineRequest) TaskFlags() model.TaskFlags {
	if r == nil || r.Flags == nil {
		return model.DefaultTaskFlags()
	}
	return *r.Flags
}

// PipelineStatusResponse 当前运行状态
type PipelineStatusResponse struct {
	ItemID     int64              `json:"item_id"`
	ItemStatus string             `json:"item_status"`
	Progress   int                `json:"progress"`
	Failed     []string           `json:"failed_steps"`
	Run        *model.PipelineRun `json:"run"`
}
