package chat

import (
	"time"
)

// DefaultTitle 标题生成失败时的兜底标题
const DefaultTitle = "New Conversation"

// Conversation 会话实体
// ID使用UUID格式（string），避免ObjectID转换的麻烦
type Conversation struct {
	ID     string `bson:"_id,omitempty" json:"id"`
	UserID string `bson:"user_id" json:"user_id"`
	Title  string `bson:"title" json:"title"`

	// Metadata 永不为 nil，新会话从空的 exploring 态开始
	Metadata *Metadata `bson:"metadata" json:"metadata"`

	// MessagesSinceSynthesis 自上次上下文合成以来新增的消息数
	// 创建时从 2 起算（首条用户消息和首条回复已计入），
	// 达到阈值后触发合成并清零
	MessagesSinceSynthesis int `bson:"messages_since_synthesis" json:"messages_since_synthesis"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
