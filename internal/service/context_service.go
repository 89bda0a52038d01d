package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"guava/internal/model/chat"
)

// 合成窗口大小
// 首次抽取看更长的上下文，增量更新只看最近一轮附近的消息
const (
	initialWindow int64 = 6
	updateWindow  int64 = 4
)

// MetadataExtractor 元数据抽取能力
type MetadataExtractor interface {
	ExtractMetadata(ctx context.Context, transcript, currentJSON string) (string, error)
}

// RecentMessageLister 最近消息查询能力
type RecentMessageLister interface {
	ListRecent(ctx context.Context, conversationID string, limit int64) ([]*chat.Message, error)
}

// ContextService 上下文合成引擎
// 周期性地把最近的对话消息压缩成结构化销售上下文
type ContextService struct {
	messages  RecentMessageLister
	extractor MetadataExtractor
}

// NewContextService 创建上下文合成服务
func NewContextService(messages RecentMessageLister, extractor MetadataExtractor) *ContextService {
	return &ContextService{
		messages:  messages,
		extractor: extractor,
	}
}

// Synthesize 对会话执行一次上下文合成，成功时原地更新 conv.Metadata
// 失败不修改会话状态，由调用方决定是否重试
func (s *ContextService) Synthesize(ctx context.Context, conv *chat.Conversation) error {
	window := updateWindow
	currentJSON := conv.Metadata.JSON()
	if conv.Metadata.IsInitial() {
		window = initialWindow
		currentJSON = ""
	}

	msgs, err := s.messages.ListRecent(ctx, conv.ID, window)
	if err != nil {
		return fmt.Errorf("failed to load recent messages: %w", err)
	}
	if len(msgs) == 0 {
		return nil
	}

	raw, err := s.extractor.ExtractMetadata(ctx, formatTranscript(msgs), currentJSON)
	if err != nil {
		return fmt.Errorf("metadata extraction failed: %w", err)
	}

	proposed, err := chat.ParseMetadata(raw)
	if err != nil {
		log.Warn().
			Err(err).
			Str("conversation_id", conv.ID).
			Msg("discarding unparseable metadata document")
		return err
	}

	conv.Metadata = conv.Metadata.Merge(proposed)

	log.Debug().
		Str("conversation_id", conv.ID).
		Str("sale_status", conv.Metadata.SaleStatus.String()).
		Int("interests", len(conv.Metadata.Interests)).
		Msg("conversation context synthesized")

	return nil
}

// formatTranscript 把倒序的最近消息还原成时间正序的纯文本对话
func formatTranscript(recent []*chat.Message) string {
	var b strings.Builder
	for i := len(recent) - 1; i >= 0; i-- {
		msg := recent[i]
		b.WriteString(string(msg.Sender))
		b.WriteString(": ")
		b.WriteString(msg.Content)
		b.WriteString("\n")
	}
	return b.String()
}
