package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/engage_go_server/internal/capability"
	"github.com/qs3c/engage_go_server/internal/model/dto"
	"github.com/qs3c/engage_go_server/internal/pkg/logger"
	"github.com/qs3c/engage_go_server/internal/pkg/response"
	"github.com/qs3c/engage_go_server/internal/service"
)

type CommentHandler struct {
	itemService    *service.ItemService
	commentService *service.CommentService
	log            *logger.Logger
}

// NewCommentHandler 创建评论处理器
func NewCommentHandler(itemService *service.ItemService, commentService *service.CommentService, log *logger.Logger) *CommentHandler {
	return &CommentHandler{
		itemService:    itemService,
		commentService: commentService,
		log:            log.With("component", "comment_handler"),
	}
}

// Latest 最近一次生成的候选评论，verbose=1 时附带遥测与策略诊断
// GET /api/v1/items/:id/comments
func (h *CommentHandler) Latest(c *gin.Context) {
	detail, ok := loadItem(c, h.itemService)
	if !ok {
		return
	}

	out, err := h.commentService.LatestGeneration(detail.ID)
	if err != nil {
		if errors.Is(err, service.ErrGenerationNotFound) {
			response.NotReadyError(c, err.Error())
			return
		}
		response.ServerError(c, "")
		return
	}
	response.Success(c, dto.NewGenerationResponse(out.Generation, out.Suggestions, verbose(c)))
}

// Regenerate 基于已有的分析结果重新生成
// POST /api/v1/items/:id/comments/generate
func (h *CommentHandler) Regenerate(c *gin.Context) {
	detail, ok := loadItem(c, h.itemService)
	if !ok {
		return
	}

	out, err := h.commentService.GeneratePostComments(c.Request.Context(), detail.ID, "")
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAnalysisNotReady):
			response.NotReadyError(c, err.Error())
		case capability.IsTransient(err):
			h.log.Warn("regenerate unavailable", "item_id", detail.ID, "error", err)
			response.UnavailableError(c, "")
		default:
			h.log.Error("regenerate failed", "item_id", detail.ID, "error", err)
			response.ServerError(c, "")
		}
		return
	}
	response.SuccessWithMessage(c, "生成成功", dto.NewGenerationResponse(out.Generation, out.Suggestions, verbose(c)))
}

func verbose(c *gin.Context) bool {
	v := c.Query("verbose")
	return v == "1" || v == "true"
}
