package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/engage_go_server/internal/api/middleware"
	"github.com/qs3c/engage_go_server/internal/model/dto"
	"github.com/qs3c/engage_go_server/internal/pkg/response"
	"github.com/qs3c/engage_go_server/internal/service"
)

// parseID 解析路径参数中的 ID
func parseID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.ParamError(c, "无效的ID")
		return 0, false
	}
	return id, true
}

// loadItem 读取 :id 对应的 item 并校验令牌的账号范围，失败时已写入响应
func loadItem(c *gin.Context, items *service.ItemService) (*dto.ItemDetail, bool) {
	itemID, ok := parseID(c, "id")
	if !ok {
		return nil, false
	}
	detail, err := items.Get(itemID)
	if err != nil {
		if errors.Is(err, service.ErrItemNotFound) {
			response.NotFoundError(c, err.Error())
		} else {
			response.ServerError(c, "")
		}
		return nil, false
	}
	if !middleware.CanAccessAccount(c, detail.AccountID) {
		response.PermissionError(c, "")
		return nil, false
	}
	return detail, true
}
