package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/engage_go_server/internal/model/dto"
	"github.com/qs3c/engage_go_server/internal/pkg/logger"
	"github.com/qs3c/engage_go_server/internal/pkg/response"
	"github.com/qs3c/engage_go_server/internal/service"
)

type PipelineHandler struct {
	itemService     *service.ItemService
	pipelineService *service.PipelineService
	log             *logger.Logger
}

// NewPipelineHandler 创建流水线处理器
func NewPipelineHandler(itemService *service.ItemService, pipelineService *service.PipelineService, log *logger.Logger) *PipelineHandler {
	return &PipelineHandler{
		itemService:     itemService,
		pipelineService: pipelineService,
		log:             log.With("component", "pipeline_handler"),
	}
}

// Start 启动新的分析运行，旧运行随之作废
// POST /api/v1/items/:id/pipeline
func (h *PipelineHandler) Start(c *gin.Context) {
	detail, ok := loadItem(c, h.itemService)
	if !ok {
		return
	}

	var req dto.StartPipelineRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ParamError(c, err.Error())
			return
		}
	}
	source := req.Source
	if source == "" {
		source = "api"
	}

	run, err := h.pipelineService.StartAnalysis(c.Request.Context(), detail.ID, req.TaskFlags(), source)
	if err != nil {
		h.log.Error("start pipeline failed", "item_id", detail.ID, "error", err)
		response.ServerError(c, "")
		return
	}
	response.SuccessWithMessage(c, "分析已开始", run)
}

// Status 当前运行状态
// GET /api/v1/items/:id/pipeline
func (h *PipelineHandler) Status(c *gin.Context) {
	detail, ok := loadItem(c, h.itemService)
	if !ok {
		return
	}

	run, err := h.pipelineService.GetRun(detail.ID)
	if err != nil {
		response.ServerError(c, "")
		return
	}
	if run == nil {
		response.NotReadyError(c, "尚未启动分析")
		return
	}

	response.Success(c, &dto.PipelineStatusResponse{
		ItemID:     detail.ID,
		ItemStatus: detail.Status,
		Progress:   run.Progress(),
		Failed:     run.FailedRequiredSteps(),
		Run:        run,
	})
}
