package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"guava/internal/model"
	"guava/internal/pkg/ctxutil"
	"guava/internal/service"
)

// ChatHandler 对话处理器
type ChatHandler struct {
	chatService *service.ChatService
}

// NewChatHandler 创建对话处理器
func NewChatHandler(chatService *service.ChatService) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
	}
}

// SendMessage 发送消息
// @Summary      发送消息
// @Description  发送一条消息并获取助手回复，conversation_id为空时创建新会话
// @Tags         对话
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      model.SendMessageRequest  true  "消息请求"
// @Success      200      {object}  model.SendMessageResponse
// @Failure      400      {object}  model.ErrorResponse
// @Failure      403      {object}  model.ErrorResponse
// @Failure      404      {object}  model.ErrorResponse
// @Failure      502      {object}  model.ErrorResponse
// @Router       /api/v1/chat/messages [post]
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req model.SendMessageRequest
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

	resp, err := h.chatService.SendMessage(ctx, userID, &req)
	if err != nil {
		status, errorCode, message := chatErrorResponse(err)
		c.JSON(status, model.ErrorResponse{
			Code:    errorCode,
			Message: message,
			Detail:  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// chatErrorResponse 业务错误到HTTP状态码的映射
func chatErrorResponse(err error) (int, int, string) {
	switch {
	case errors.Is(err, service.ErrConversationNotFound):
		return http.StatusNotFound, 40401, "Conversation not found"
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, 40301, "Forbidden"
	case errors.Is(err, service.ErrAssistantUnavailable):
		return http.StatusBadGateway, 50201, "Assistant is unavailable"
	default:
		return http.StatusInternalServerError, 50001, "Internal error"
	}
}
