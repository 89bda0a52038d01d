package chat

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"guava/internal/model/chat"
)

// MessageRepo 消息仓库
type MessageRepo struct {
	collection *mongo.Collection
	counters   *mongo.Collection
}

// NewMessageRepo 创建消息仓库
func NewMessageRepo(db *mongo.Database) *MessageRepo {
	return &MessageRepo{
		collection: db.Collection("messages"),
		counters:   db.Collection("message_counters"),
	}
}

// nextSeq 通过计数器集合原子分配会话内序号
// 同一时间戳的消息靠 seq 保持稳定顺序
func (r *MessageRepo) nextSeq(ctx context.Context, conversationID string) (int64, error) {
	var doc struct {
		Seq int64 `bson:"seq"`
	}

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	err := r.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": conversationID},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		opts,
	).Decode(&doc)
	if err != nil {
		return 0, err
	}

	return doc.Seq, nil
}

// Append 追加一条消息，序号由仓库分配
func (r *MessageRepo) Append(ctx context.Context, msg *chat.Message) error {
	seq, err := r.nextSeq(ctx, msg.ConversationID)
	if err != nil {
		return err
	}
	msg.Seq = seq
	msg.CreatedAt = time.Now()

	_, err = r.collection.InsertOne(ctx, msg)
	return err
}

// ListByConversation 按时间升序返回全部消息
func (r *MessageRepo) ListByConversation(ctx context.Context, conversationID string) ([]*chat.Message, error) {
	opts := options.Find().
		SetSort(bson.D{bson.E{Key: "created_at", Value: 1}, bson.E{Key: "seq", Value: 1}})

	cursor, err := r.collection.Find(ctx, bson.M{"conversation_id": conversationID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var msgs []*chat.Message
	if err := cursor.All(ctx, &msgs); err != nil {
		return nil, err
	}

	return msgs, nil
}

// ListRecent 返回最近 limit 条消息，按时间降序
// 调用方需要自行反转得到对话顺序
func (r *MessageRepo) ListRecent(ctx context.Context, conversationID string, limit int64) ([]*chat.Message, error) {
	opts := options.Find().
		SetSort(bson.D{bson.E{Key: "created_at", Value: -1}, bson.E{Key: "seq", Value: -1}}).
		SetLimit(limit)

	cursor, err := r.collection.Find(ctx, bson.M{"conversation_id": conversationID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var msgs []*chat.Message
	if err := cursor.All(ctx, &msgs); err != nil {
		return nil, err
	}

	return msgs, nil
}

// DeleteByConversation 删除会话下的全部消息及其计数器
func (r *MessageRepo) DeleteByConversation(ctx context.Context, conversationID string) error {
	if _, err := r.collection.DeleteMany(ctx, bson.M{"conversation_id": conversationID}); err != nil {
		return err
	}
	_, err := r.counters.DeleteOne(ctx, bson.M{"_id": conversationID})
	return err
}
