package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/engage_go_server/internal/pkg/response"
	"github.com/qs3c/engage_go_server/internal/service"
)

type AnalysisHandler struct {
	itemService     *service.ItemService
	analysisService *service.AnalysisService
}

// NewAnalysisHandler 创建分析结果处理器
func NewAnalysisHandler(itemService *service.ItemService, analysisService *service.AnalysisService) *AnalysisHandler {
	return &AnalysisHandler{
		itemService:     itemService,
		analysisService: analysisService,
	}
}

// Get 事实、归属分类与生成策略
// GET /api/v1/items/:id/analysis
func (h *AnalysisHandler) Get(c *gin.Context) {
	detail, ok := loadItem(c, h.itemService)
	if !ok {
		return
	}

	rec, err := h.analysisService.GetAnalysis(detail.ID)
	if err != nil {
		if errors.Is(err, service.ErrAnalysisNotReady) {
			response.NotReadyError(c, err.Error())
			return
		}
		response.ServerError(c, "")
		return
	}
	response.Success(c, rec)
}
