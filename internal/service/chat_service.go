package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"guava/internal/model"
	"guava/internal/model/chat"
	"guava/internal/pkg/cache"
	"guava/internal/pkg/id"
	"guava/internal/pkg/lock"
)

// 业务错误
var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrForbidden            = errors.New("conversation belongs to another user")
	ErrAssistantUnavailable = errors.New("assistant is unavailable")
)

// synthesisThreshold 触发上下文合成的消息数阈值
const synthesisThreshold = 6

// responseHistoryWindow 生成回复时带入的历史消息条数
const responseHistoryWindow int64 = 20

// ConversationStore 会话存取能力
type ConversationStore interface {
	Create(ctx context.Context, conv *chat.Conversation) error
	FindByID(ctx context.Context, id string) (*chat.Conversation, error)
	Update(ctx context.Context, conv *chat.Conversation) error
	ListByUserID(ctx context.Context, userID string, limit, offset int64) ([]*chat.Conversation, error)
	Delete(ctx context.Context, id string) error
}

// MessageStore 消息存取能力
type MessageStore interface {
	Append(ctx context.Context, msg *chat.Message) error
	ListByConversation(ctx context.Context, conversationID string) ([]*chat.Message, error)
	ListRecent(ctx context.Context, conversationID string, limit int64) ([]*chat.Message, error)
	DeleteByConversation(ctx context.Context, conversationID string) error
}

// TxRunner 事务执行器，fn 内的写操作要么全部生效要么全部回滚
type TxRunner interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Assistant 文本生成能力（标题与回复）
type Assistant interface {
	GenerateTitle(ctx context.Context, firstMessage string) (string, error)
	GenerateResponse(ctx context.Context, history []*chat.Message, metadataJSON string) (string, error)
}

// Synthesizer 上下文合成能力
type Synthesizer interface {
	Synthesize(ctx context.Context, conv *chat.Conversation) error
}

// ChatService 会话编排服务
// 所有对同一会话的修改都经过按会话 ID 的锁串行执行
type ChatService struct {
	conversations ConversationStore
	messages      MessageStore
	tx            TxRunner
	assistant     Assistant
	synthesizer   Synthesizer
	cache         *cache.RedisCache
	locks         *lock.Keyed
}

// NewChatService 创建会话服务
// cache 可以为 nil，此时列表查询直接走数据库
func NewChatService(
	conversations ConversationStore,
	messages MessageStore,
	tx TxRunner,
	assistant Assistant,
	synthesizer Synthesizer,
	redisCache *cache.RedisCache,
) *ChatService {
	return &ChatService{
		conversations: conversations,
		messages:      messages,
		tx:            tx,
		assistant:     assistant,
		synthesizer:   synthesizer,
		cache:         redisCache,
		locks:         lock.NewKeyed(),
	}
}

// SendMessage 处理一轮对话
// conversation_id 为空时创建新会话，否则在已有会话中追加
func (s *ChatService) SendMessage(ctx context.Context, userID string, req *model.SendMessageRequest) (*model.SendMessageResponse, error) {
	if req.ConversationID == "" {
		return s.startConversation(ctx, userID, req.Content)
	}
	return s.continueConversation(ctx, userID, req.ConversationID, req.Content)
}

// startConversation 创建新会话并完成首轮交互
// 标题生成失败只降级，不阻断；会话、用户消息、回复消息在同一事务内落库，
// 回复生成失败时整个会话不会出现半成品
func (s *ChatService) startConversation(ctx context.Context, userID, content string) (*model.SendMessageResponse, error) {
	title, err := s.assistant.GenerateTitle(ctx, content)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("title generation failed, using default")
		title = chat.DefaultTitle
	}

	conv := &chat.Conversation{
		ID:       id.New(),
		UserID:   userID,
		Title:    title,
		Metadata: chat.NewMetadata(),
		// 首轮的两条消息已计入合成计数
		MessagesSinceSynthesis: 2,
	}

	userMsg := &chat.Message{
		ID:             id.New(),
		ConversationID: conv.ID,
		Sender:         chat.SenderUser,
		Content:        content,
	}

	reply, err := s.assistant.GenerateResponse(ctx, []*chat.Message{userMsg}, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAssistantUnavailable, err)
	}

	botMsg := &chat.Message{
		ID:             id.New(),
		ConversationID: conv.ID,
		Sender:         chat.SenderBot,
		Content:        reply,
	}

	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.conversations.Create(ctx, conv); err != nil {
			return err
		}
		if err := s.messages.Append(ctx, userMsg); err != nil {
			return err
		}
		return s.messages.Append(ctx, botMsg)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	s.invalidateList(ctx, userID)

	log.Info().
		Str("conversation_id", conv.ID).
		Str("user_id", userID).
		Msg("conversation created")

	return &model.SendMessageResponse{
		Conversation: model.ToConversationSummary(conv),
		UserMessage:  model.ToMessageView(userMsg),
		BotMessage:   model.ToMessageView(botMsg),
	}, nil
}

// continueConversation 在已有会话中处理一轮交互
// 用户消息先行落库：后续任何一步失败都不会丢掉用户的输入。
// 计数达到阈值时同步执行上下文合成，合成失败不阻断响应，
// 计数保留，下一轮自动重试
func (s *ChatService) continueConversation(ctx context.Context, userID, convID, content string) (*model.SendMessageResponse, error) {
	if err := s.locks.Acquire(ctx, convID); err != nil {
		return nil, err
	}
	defer s.locks.Release(convID)

	conv, err := s.loadOwned(ctx, userID, convID)
	if err != nil {
		return nil, err
	}

	userMsg := &chat.Message{
		ID:             id.New(),
		ConversationID: conv.ID,
		Sender:         chat.SenderUser,
		Content:        content,
	}
	if err := s.messages.Append(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("failed to store message: %w", err)
	}

	history, err := s.recentHistory(ctx, conv.ID)
	if err != nil {
		return nil, err
	}

	metadataJSON := ""
	if !conv.Metadata.IsInitial() {
		metadataJSON = conv.Metadata.JSON()
	}

	reply, err := s.assistant.GenerateResponse(ctx, history, metadataJSON)
	if err != nil {
		// 用户消息已落库，不回滚
		return nil, fmt.Errorf("%w: %v", ErrAssistantUnavailable, err)
	}

	botMsg := &chat.Message{
		ID:             id.New(),
		ConversationID: conv.ID,
		Sender:         chat.SenderBot,
		Content:        reply,
	}
	if err := s.messages.Append(ctx, botMsg); err != nil {
		return nil, fmt.Errorf("failed to store message: %w", err)
	}

	conv.MessagesSinceSynthesis += 2

	warning := ""
	if conv.MessagesSinceSynthesis >= synthesisThreshold {
		if err := s.synthesizer.Synthesize(ctx, conv); err != nil {
			log.Warn().
				Err(err).
				Str("conversation_id", conv.ID).
				Int("messages_since_synthesis", conv.MessagesSinceSynthesis).
				Msg("context synthesis failed, will retry next exchange")
			warning = "context synthesis failed"
		} else {
			conv.MessagesSinceSynthesis = 0
		}
	}

	if err := s.conversations.Update(ctx, conv); err != nil {
		return nil, fmt.Errorf("failed to update conversation: %w", err)
	}

	s.invalidateList(ctx, userID)

	return &model.SendMessageResponse{
		Conversation: model.ToConversationSummary(conv),
		UserMessage:  model.ToMessageView(userMsg),
		BotMessage:   model.ToMessageView(botMsg),
		Warning:      warning,
	}, nil
}

// recentHistory 返回时间正序的最近消息窗口
func (s *ChatService) recentHistory(ctx context.Context, convID string) ([]*chat.Message, error) {
	recent, err := s.messages.ListRecent(ctx, convID, responseHistoryWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	history := make([]*chat.Message, len(recent))
	for i, msg := range recent {
		history[len(recent)-1-i] = msg
	}
	return history, nil
}

// GetConversations 查询用户的会话列表，带缓存
func (s *ChatService) GetConversations(ctx context.Context, userID string, limit, offset int64) (*model.ListConversationsResponse, error) {
	key := cache.ConversationListKey(userID)

	// 只有第一页走缓存
	if s.cache != nil && offset == 0 {
		var cached model.ListConversationsResponse
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return &cached, nil
		}
	}

	convs, err := s.conversations.ListByUserID(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	resp := &model.ListConversationsResponse{
		Conversations: make([]model.ConversationSummary, 0, len(convs)),
		Total:         len(convs),
	}
	for _, conv := range convs {
		resp.Conversations = append(resp.Conversations, model.ToConversationSummary(conv))
	}

	if s.cache != nil && offset == 0 {
		if err := s.cache.Set(ctx, key, resp, cache.ConversationListTTL); err != nil {
			log.Warn().Err(err).Str("user_id", userID).Msg("failed to cache conversation list")
		}
	}

	return resp, nil
}

// GetConversationHistory 查询会话的完整消息历史
func (s *ChatService) GetConversationHistory(ctx context.Context, userID, convID string) (*model.ConversationHistoryResponse, error) {
	conv, err := s.loadOwned(ctx, userID, convID)
	if err != nil {
		return nil, err
	}

	msgs, err := s.messages.ListByConversation(ctx, convID)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}

	resp := &model.ConversationHistoryResponse{
		ConversationID: conv.ID,
		Title:          conv.Title,
		Messages:       make([]model.MessageView, 0, len(msgs)),
		TotalMessages:  len(msgs),
	}
	for _, msg := range msgs {
		resp.Messages = append(resp.Messages, model.ToMessageView(msg))
	}

	return resp, nil
}

// UpdateTitle 修改会话标题
func (s *ChatService) UpdateTitle(ctx context.Context, userID, convID, title string) error {
	if err := s.locks.Acquire(ctx, convID); err != nil {
		return err
	}
	defer s.locks.Release(convID)

	conv, err := s.loadOwned(ctx, userID, convID)
	if err != nil {
		return err
	}

	conv.Title = title
	if err := s.conversations.Update(ctx, conv); err != nil {
		return fmt.Errorf("failed to update conversation: %w", err)
	}

	s.invalidateList(ctx, userID)
	return nil
}

// DeleteConversation 删除会话及其全部消息
func (s *ChatService) DeleteConversation(ctx context.Context, userID, convID string) error {
	if err := s.locks.Acquire(ctx, convID); err != nil {
		return err
	}
	defer s.locks.Release(convID)

	if _, err := s.loadOwned(ctx, userID, convID); err != nil {
		return err
	}

	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.messages.DeleteByConversation(ctx, convID); err != nil {
			return err
		}
		return s.conversations.Delete(ctx, convID)
	})
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}

	s.invalidateList(ctx, userID)

	log.Info().
		Str("conversation_id", convID).
		Str("user_id", userID).
		Msg("conversation deleted")
	return nil
}

// loadOwned 加载会话并校验归属
func (s *ChatService) loadOwned(ctx context.Context, userID, convID string) (*chat.Conversation, error) {
	conv, err := s.conversations.FindByID(ctx, convID)
	if err != nil {
		return nil, ErrConversationNotFound
	}
	if conv.UserID != userID {
		return nil, ErrForbidden
	}
	return conv, nil
}

// invalidateList 清掉用户的列表缓存，失败只记日志
func (s *ChatService) invalidateList(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, cache.ConversationListKey(userID)); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("failed to invalidate conversation list cache")
	}
}
