package model

// SendMessageRequest 发送消息请求
// ConversationID 为空时创建新会话
type SendMessageRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Content        string `json:"content" binding:"required,max=4000"`
}

// UpdateTitleRequest 修改会话标题请求
type UpdateTitleRequest struct {
	Title string `json:"title" binding:"required,max=255"`
}
