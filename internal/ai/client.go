package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	"guava/internal/ai/component"
	"guava/internal/config"
	"guava/internal/model/chat"
)

// ErrEmptyCompletion 模型返回空内容
var ErrEmptyCompletion = errors.New("model returned empty completion")

// Client AI 能力层客户端
// 职责: 封装所有 AI 能力，提供统一接口
type Client struct {
	cfg       *config.AIConfig
	chatModel model.ChatModel
}

// NewClient 创建 AI 客户端
func NewClient(ctx context.Context, cfg *config.AIConfig) (*Client, error) {
	if cfg.APIKey == "" {
		log.Warn().Msg("AI API key not configured")
	}

	chatModel, err := component.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	return &Client{
		cfg:       cfg,
		chatModel: chatModel,
	}, nil
}

// generate 统一的模型调用入口，带超时和空响应检查
func (c *Client) generate(ctx context.Context, messages []*schema.Message) (string, error) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	resp, err := c.chatModel.Generate(ctx, messages)
	if err != nil {
		return "", err
	}

	content := strings.TrimSpace(resp.Content)
	if content == "" {
		return "", ErrEmptyCompletion
	}
	return content, nil
}

// GenerateTitle 根据首条消息生成会话标题
// 调用失败由上层降级，这里只负责调用本身
func (c *Client) GenerateTitle(ctx context.Context, firstMessage string) (string, error) {
	title, err := c.generate(ctx, []*schema.Message{
		schema.SystemMessage(titleSystemPrompt),
		schema.UserMessage(firstMessage),
	})
	if err != nil {
		return "", err
	}

	// 模型偶尔会带引号返回
	return strings.Trim(title, `"'`), nil
}

// GenerateResponse 基于对话历史和销售上下文生成助手回复
// history 按时间升序，最后一条应当是本轮用户消息
func (c *Client) GenerateResponse(ctx context.Context, history []*chat.Message, metadataJSON string) (string, error) {
	system := responseSystemPrompt
	if metadataJSON != "" {
		system += "\n\n" + fmt.Sprintf(responseContextPrompt, metadataJSON)
	}

	messages := make([]*schema.Message, 0, len(history)+1)
	messages = append(messages, schema.SystemMessage(system))
	for _, msg := range history {
		switch msg.Sender {
		case chat.SenderBot:
			messages = append(messages, schema.AssistantMessage(msg.Content, nil))
		default:
			messages = append(messages, schema.UserMessage(msg.Content))
		}
	}

	return c.generate(ctx, messages)
}

// ExtractMetadata 从对话片段中提取销售上下文
// currentJSON 为空表示首次提取，否则执行增量更新
// 返回模型原始输出，JSON 解析由调用方完成
func (c *Client) ExtractMetadata(ctx context.Context, transcript, currentJSON string) (string, error) {
	var prompt string
	if currentJSON == "" {
		prompt = fmt.Sprintf(metadataInitialPrompt, transcript)
	} else {
		prompt = fmt.Sprintf(metadataUpdatePrompt, currentJSON, transcript)
	}

	return c.generate(ctx, []*schema.Message{
		schema.UserMessage(prompt),
	})
}
