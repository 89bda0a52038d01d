package chat

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"guava/internal/model/chat"
)

// ErrNotFound 会话不存在
var ErrNotFound = errors.New("conversation not found")

// ConversationRepo 会话仓库
// 使用UUID作为ID，无需ObjectID转换
type ConversationRepo struct {
	collection *mongo.Collection
}

// NewConversationRepo 创建会话仓库
func NewConversationRepo(db *mongo.Database) *ConversationRepo {
	return &ConversationRepo{
		collection: db.Collection("conversations"),
	}
}

// Create 创建会话
func (r *ConversationRepo) Create(ctx context.Context, conv *chat.Conversation) error {
	now := time.Now()
	conv.CreatedAt = now
	conv.UpdatedAt = now
	if conv.Metadata == nil {
		conv.Metadata = chat.NewMetadata()
	}

	_, err := r.collection.InsertOne(ctx, conv)
	return err
}

// FindByID 根据 ID 查询
func (r *ConversationRepo) FindByID(ctx context.Context, id string) (*chat.Conversation, error) {
	var conv chat.Conversation
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&conv)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	// 防御历史数据：metadata 永不为 nil
	if conv.Metadata == nil {
		conv.Metadata = chat.NewMetadata()
	}

	return &conv, nil
}

// Update 持久化标题、元数据、计数器和 updated_at
func (r *ConversationRepo) Update(ctx context.Context, conv *chat.Conversation) error {
	conv.UpdatedAt = time.Now()

	update := bson.M{
		"$set": bson.M{
			"title":                    conv.Title,
			"metadata":                 conv.Metadata,
			"messages_since_synthesis": conv.MessagesSinceSynthesis,
			"updated_at":               conv.UpdatedAt,
		},
	}

	result, err := r.collection.UpdateByID(ctx, conv.ID, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByUserID 查询用户会话列表（按最近更新排序）
func (r *ConversationRepo) ListByUserID(ctx context.Context, userID string, limit, offset int64) ([]*chat.Conversation, error) {
	opts := options.Find().
		SetSort(bson.D{bson.E{Key: "updated_at", Value: -1}}).
		SetLimit(limit).
		SetSkip(offset)

	cursor, err := r.collection.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var convs []*chat.Conversation
	if err := cursor.All(ctx, &convs); err != nil {
		return nil, err
	}

	return convs, nil
}

// Delete 删除会话
func (r *ConversationRepo) Delete(ctx context.Context, id string) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	return err
}
