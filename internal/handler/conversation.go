package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"guava/internal/model"
	"guava/internal/pkg/ctxutil"
	"guava/internal/service"
)

// ConversationHandler 会话管理处理器
type ConversationHandler struct {
	chatService *service.ChatService
}

// NewConversationHandler 创建会话管理处理器
func NewConversationHandler(chatService *service.ChatService) *ConversationHandler {
	return &ConversationHandler{
		chatService: chatService,
	}
}

// List 获取会话列表
// @Summary      获取会话列表
// @Description  获取当前用户的会话列表，按最近更新排序
// @Tags         会话
// @Produce      json
// @Security     BearerAuth
// @Param        limit   query     int  false  "每页数量"  default(20)
// @Param        offset  query     int  false  "偏移量"    default(0)
// @Success      200     {object}  model.ListConversationsResponse
// @Router       /api/v1/conversations [get]
func (h *ConversationHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	userID, ok := ctxutil.GetUserID(ctx)
	if !ok {
		c.JSON(http.StatusUnauthorized, model.ErrorResponse{
			Code:    40101,
			Message: "未授权",
		})
		return
	}

	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "20"), 10, 64)
	offset, _ := strconv.ParseInt(c.DefaultQuery("offset", "0"), 10, 64)
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	resp, err := h.chatService.GetConversations(ctx, userID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Code:    50001,
			Message: "Failed to list conversations",
			Detail:  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetHistory 获取会话历史
// @Summary      获取会话历史
// @Description  获取会话的完整消息历史，按时间正序
// @Tags         会话
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "会话ID"
// @Success      200  {object}  model.ConversationHistoryResponse
// @Failure      403  {object}  model.ErrorResponse
// @Failure      404  {object}  model.ErrorResponse
// @Router       /api/v1/conversations/{id}/messages [get]
func (h *ConversationHandler) GetHistory(c *gin.Context) {
	ctx := c.Request.Context()
	userID, ok := ctxutil.GetUserID(ctx)
	if !ok {
		c.JSON(http.StatusUnauthorized, model.ErrorResponse{
			Code:    40101,
			Message: "未授权",
		})
		return
	}

	resp, err := h.chatService.GetConversationHistory(ctx, userID, c.Param("id"))
	if err != nil {
		status, errorCode, message := chatErrorResponse(err)
		c.JSON(status, model.ErrorResponse{
			Code:    errorCode,
			Message: message,
		})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// UpdateTitle 修改会话标题
// @Summary      修改会话标题
// @Tags         会话
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                    true  "会话ID"
// @Param        request  body      model.UpdateTitleRequest  true  "标题请求"
// @Success      200      {object}  map[string]interface{}
// @Failure      400      {object}  model.ErrorResponse
// @Failure      403      {object}  model.ErrorResponse
// @Failure      404      {object}  model.ErrorResponse
// @Router       /api/v1/conversations/{id}/title [put]
func (h *ConversationHandler) UpdateTitle(c *gin.Context) {
	var req model.UpdateTitleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Code:    40001,
			Message: "Invalid request body",
			Detail:  err.Error(),
		})
		return
	}

	ctx := c.Request.Context()
	userID, ok := ctxutil.GetUserID(ctx)
	if !ok {
		c.JSON(http.StatusUnauthorized, model.ErrorResponse{
			Code:    40101,
			Message: "未授权",
		})
		return
	}

	if err := h.chatService.UpdateTitle(ctx, userID, c.Param("id"), req.Title); err != nil {
		status, errorCode, message := chatErrorResponse(err)
		c.JSON(status, model.ErrorResponse{
			Code:    errorCode,
			Message: message,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "success",
	})
}

// Delete 删除会话
// @Summary      删除会话
// @Description  删除会话及其全部消息
// @Tags         会话
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "会话ID"
// @Success      200  {object}  map[string]interface{}
// @Failure      403  {object}  model.ErrorResponse
// @Failure      404  {object}  model.ErrorResponse
// @Router       /api/v1/conversations/{id} [delete]
func (h *ConversationHandler) Delete(c *gin.Context) {
	ctx := c.Request.Context()
	userID, ok := ctxutil.GetUserID(ctx)
	if !ok {
		c.JSON(http.StatusUnauthorized, model.ErrorResponse{
			Code:    40101,
			Message: "未授权",
		})
		return
	}

	if err := h.chatService.DeleteConversation(ctx, userID, c.Param("id")); err != nil {
		status, errorCode, message := chatErrorResponse(err)
		c.JSON(status, model.ErrorResponse{
			Code:    errorCode,
			Message: message,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "success",
	})
}
