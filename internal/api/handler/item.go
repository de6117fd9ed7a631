package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/engage_go_server/internal/api/middleware"
	"github.com/qs3c/engage_go_server/internal/model"
	"github.com/qs3c/engage_go_server/internal/model/dto"
	"github.com/qs3c/engage_go_server/internal/pkg/logger"
	"github.com/qs3c/engage_go_server/internal/pkg/response"
	"github.com/qs3c/engage_go_server/internal/service"
)

type ItemHandler struct {
	itemService     *service.ItemService
	pipelineService *service.PipelineService
	log             *logger.Logger
}

// NewItemHandler 创建条目处理器
func NewItemHandler(itemService *service.ItemService, pipelineService *service.PipelineService, log *logger.Logger) *ItemHandler {
	return &ItemHandler{
		itemService:     itemService,
		pipelineService: pipelineService,
		log:             log.With("component", "item_handler"),
	}
}

// Create 登记帖子或快拍，auto_start 时直接启动分析
// POST /api/v1/items
func (h *ItemHandler) Create(c *gin.Context) {
	var req dto.CreateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}
	if !middleware.CanAccessAccount(c, req.AccountID) {
		response.PermissionError(c, "")
		return
	}

	item, err := h.itemService.Register(&req)
	if err != nil {
		if errors.Is(err, service.ErrMissingMedia) {
			response.ParamError(c, err.Error())
			return
		}
		h.log.Error("register item failed", "account_id", req.AccountID, "error", err)
		response.ServerError(c, "")
		return
	}

	resp := &dto.CreateItemResponse{ItemID: item.ID}
	if req.AutoStart {
		run, err := h.pipelineService.StartAnalysis(c.Request.Context(), item.ID, model.DefaultTaskFlags(), "api")
		if err != nil {
			h.log.Error("auto start failed", "item_id", item.ID, "error", err)
			response.ServerError(c, "")
			return
		}
		resp.RunID = run.RunID
	}

	response.SuccessWithMessage(c, "登记成功", resp)
}

// Get 获取 item 详情
// GET /api/v1/items/:id
func (h *ItemHandler) Get(c *gin.Context) {
	detail, ok := loadItem(c, h.itemService)
	if !ok {
		return
	}
	response.Success(c, detail)
}

// ListByAccount 账号最近登记的 item
// GET /api/v1/accounts/:account_id/items
func (h *ItemHandler) ListByAccount(c *gin.Context) {
	accountID, ok := parseID(c, "account_id")
	if !ok {
		return
	}
	if !middleware.CanAccessAccount(c, accountID) {
		response.PermissionError(c, "")
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	items, err := h.itemService.ListByAccount(accountID, limit)
	if err != nil {
		response.ServerError(c, "")
		return
	}
	response.SuccessList(c, len(items), items)
}
