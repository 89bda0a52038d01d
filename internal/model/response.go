package model

import (
	"time"

	"guava/internal/model/chat"
)

// ErrorResponse 错误响应
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// ConversationSummary 会话摘要（列表和发送消息响应共用）
type ConversationSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MessageView 消息视图
type MessageView struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Sender    string    `json:"sender"`
	CreatedAt time.Time `json:"created_at"`
}

// SendMessageResponse 发送消息响应
// Warning 为非致命提示（如上下文合成失败），消息本身已落库
type SendMessageResponse struct {
	Conversation ConversationSummary `json:"conversation"`
	UserMessage  MessageView         `json:"user_message"`
	BotMessage   MessageView         `json:"bot_message"`
	Warning      string              `json:"warning,omitempty"`
}

// ConversationHistoryResponse 会话历史响应
type ConversationHistoryResponse struct {
	ConversationID string        `json:"conversation_id"`
	Title          string        `json:"title"`
	Messages       []MessageView `json:"messages"`
	TotalMessages  int           `json:"total_messages"`
}

// ListConversationsResponse 会话列表响应
type ListConversationsResponse struct {
	Conversations []ConversationSummary `json:"conversations"`
	Total         int                   `json:"total"`
}

// ToConversationSummary 会话实体转摘要
func ToConversationSummary(conv *chat.Conversation) ConversationSummary {
	return ConversationSummary{
		ID:        conv.ID,
		Title:     conv.Title,
		CreatedAt: conv.CreatedAt,
		UpdatedAt: conv.UpdatedAt,
	}
}

// ToMessageView 消息实体转视图
func ToMessageView(msg *chat.Message) MessageView {
	return MessageView{
		ID:        msg.ID,
		Content:   msg.Content,
		Sender:    string(msg.Sender),
		CreatedAt: msg.CreatedAt,
	}
}
