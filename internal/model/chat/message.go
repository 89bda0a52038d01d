package chat

import (
	"time"
)

// Sender 消息发送方
type Sender string

const (
	SenderUser Sender = "user" // 客户
	SenderBot  Sender = "bot"  // 销售助手
)

// IsValid 检查发送方是否有效
func (s Sender) IsValid() bool {
	return s == SenderUser || s == SenderBot
}

// Message 消息实体，归属于唯一的会话，创建后不可变
// 会话内按 (created_at, seq) 排序，seq 解决同一时间戳的插入顺序
type Message struct {
	ID             string    `bson:"_id,omitempty" json:"id"`
	ConversationID string    `bson:"conversation_id" json:"conversation_id"`
	Sender         Sender    `bson:"sender" json:"sender"`
	Content        string    `bson:"content" json:"content"`
	Seq            int64     `bson:"seq" json:"-"`
	CreatedAt      time.Time `bson:"created_at" json:"created_at"`
}
