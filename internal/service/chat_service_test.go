package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"guava/internal/model"
	"guava/internal/model/chat"
)

// fakeConversationStore 内存会话存储，支持快照回滚以模拟事务
type fakeConversationStore struct {
	mu    sync.Mutex
	convs map[string]*chat.Conversation
}

func newFakeConversationStore() *fakeConversationStore {
	return &fakeConversationStore{convs: make(map[string]*chat.Conversation)}
}

func (f *fakeConversationStore) Create(ctx context.Context, conv *chat.Conversation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if conv.Metadata == nil {
		conv.Metadata = chat.NewMetadata()
	}
	f.convs[conv.ID] = conv
	return nil
}

func (f *fakeConversationStore) FindByID(ctx context.Context, id string) (*chat.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.convs[id]
	if !ok {
		return nil, errors.New("not found")
	}
	c := *conv
	c.Metadata = conv.Metadata.Clone()
	return &c, nil
}

func (f *fakeConversationStore) Update(ctx context.Context, conv *chat.Conversation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.convs[conv.ID]; !ok {
		return errors.New("not found")
	}
	c := *conv
	c.Metadata = conv.Metadata.Clone()
	f.convs[conv.ID] = &c
	return nil
}

func (f *fakeConversationStore) ListByUserID(ctx context.Context, userID string, limit, offset int64) ([]*chat.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*chat.Conversation
	for _, conv := range f.convs {
		if conv.UserID == userID {
			out = append(out, conv)
		}
	}
	return out, nil
}

func (f *fakeConversationStore) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.convs, id)
	return nil
}

// fakeMessageStore 内存消息存储
type fakeMessageStore struct {
	mu        sync.Mutex
	msgs      []*chat.Message
	seq       int64
	appendErr error
}

func newFakeMessageStore() *fakeMessageStore {
	return &fakeMessageStore{}
}

func (f *fakeMessageStore) Append(ctx context.Context, msg *chat.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.seq++
	msg.Seq = f.seq
	m := *msg
	f.msgs = append(f.msgs, &m)
	return nil
}

func (f *fakeMessageStore) ListByConversation(ctx context.Context, conversationID string) ([]*chat.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*chat.Message
	for _, m := range f.msgs {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeMessageStore) ListRecent(ctx context.Context, conversationID string, limit int64) ([]*chat.Message, error) {
	all, _ := f.ListByConversation(ctx, conversationID)
	// 倒序返回最后 limit 条
	var out []*chat.Message
	for i := len(all) - 1; i >= 0 && int64(len(out)) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

func (f *fakeMessageStore) DeleteByConversation(ctx context.Context, conversationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept []*chat.Message
	for _, m := range f.msgs {
		if m.ConversationID != conversationID {
			kept = append(kept, m)
		}
	}
	f.msgs = kept
	return nil
}

// fakeTx 模拟事务：失败时恢复两个存储的快照
type fakeTx struct {
	convs *fakeConversationStore
	msgs  *fakeMessageStore
}

func (f *fakeTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	f.convs.mu.Lock()
	convSnap := make(map[string]*chat.Conversation, len(f.convs.convs))
	for k, v := range f.convs.convs {
		convSnap[k] = v
	}
	f.convs.mu.Unlock()

	f.msgs.mu.Lock()
	msgSnap := append([]*chat.Message{}, f.msgs.msgs...)
	seqSnap := f.msgs.seq
	f.msgs.mu.Unlock()

	if err := fn(ctx); err != nil {
		f.convs.mu.Lock()
		f.convs.convs = convSnap
		f.convs.mu.Unlock()
		f.msgs.mu.Lock()
		f.msgs.msgs = msgSnap
		f.msgs.seq = seqSnap
		f.msgs.mu.Unlock()
		return err
	}
	return nil
}

// fakeAssistant 可编程的文本生成桩
type fakeAssistant struct {
	titleErr    error
	responseErr error
	reply       string
	extractRaw  string
	extractErr  error

	extractCalls int
	lastCurrent  string
	lastHistory  []*chat.Message
}

func (f *fakeAssistant) GenerateTitle(ctx context.Context, firstMessage string) (string, error) {
	if f.titleErr != nil {
		return "", f.titleErr
	}
	return "Laptop shopping", nil
}

func (f *fakeAssistant) GenerateResponse(ctx context.Context, history []*chat.Message, metadataJSON string) (string, error) {
	if f.responseErr != nil {
		return "", f.responseErr
	}
	f.lastHistory = history
	if f.reply != "" {
		return f.reply, nil
	}
	return "Sure, let me help with that.", nil
}

func (f *fakeAssistant) ExtractMetadata(ctx context.Context, transcript, currentJSON string) (string, error) {
	f.extractCalls++
	f.lastCurrent = currentJSON
	if f.extractErr != nil {
		return "", f.extractErr
	}
	return f.extractRaw, nil
}

func newTestChatService() (*ChatService, *fakeConversationStore, *fakeMessageStore, *fakeAssistant) {
	convs := newFakeConversationStore()
	msgs := newFakeMessageStore()
	assistant := &fakeAssistant{
		extractRaw: `{"interests":["laptops"],"offeredProducts":["macbook air"],"rejectedProducts":[],"saleStatus":"interested","lastIntent":"compare models"}`,
	}
	synthesizer := NewContextService(msgs, assistant)
	svc := NewChatService(convs, msgs, &fakeTx{convs: convs, msgs: msgs}, assistant, synthesizer, nil)
	return svc, convs, msgs, assistant
}

func TestChatService_SendMessage_NewConversation(t *testing.T) {
	Convey("新会话首轮交互", t, func() {
		svc, convs, msgs, assistant := newTestChatService()
		ctx := context.Background()

		Convey("正常路径：创建会话并返回两条消息", func() {
			resp, err := svc.SendMessage(ctx, "u1", &model.SendMessageRequest{Content: "I need a laptop"})
			So(err, ShouldBeNil)
			So(resp.Conversation.ID, ShouldNotBeEmpty)
			So(resp.Conversation.Title, ShouldEqual, "Laptop shopping")
			So(resp.UserMessage.Sender, ShouldEqual, "user")
			So(resp.BotMessage.Sender, ShouldEqual, "bot")
			So(resp.Warning, ShouldBeEmpty)

			stored, err := convs.FindByID(ctx, resp.Conversation.ID)
			So(err, ShouldBeNil)
			So(stored.MessagesSinceSynthesis, ShouldEqual, 2)
			So(stored.Metadata.SaleStatus, ShouldEqual, chat.SaleStatusExploring)

			history, _ := msgs.ListByConversation(ctx, resp.Conversation.ID)
			So(len(history), ShouldEqual, 2)
		})

		Convey("标题生成失败时降级为默认标题", func() {
			assistant.titleErr = errors.New("model down")
			resp, err := svc.SendMessage(ctx, "u1", &model.SendMessageRequest{Content: "hello"})
			So(err, ShouldBeNil)
			So(resp.Conversation.Title, ShouldEqual, chat.DefaultTitle)
		})

		Convey("回复生成失败时不创建任何记录", func() {
			assistant.responseErr = errors.New("model down")
			_, err := svc.SendMessage(ctx, "u1", &model.SendMessageRequest{Content: "hello"})
			So(errors.Is(err, ErrAssistantUnavailable), ShouldBeTrue)
			So(len(convs.convs), ShouldEqual, 0)
			So(len(msgs.msgs), ShouldEqual, 0)
		})
	})
}

func TestChatService_SendMessage_ExistingConversation(t *testing.T) {
	Convey("已有会话的一轮交互", t, func() {
		svc, convs, msgs, assistant := newTestChatService()
		ctx := context.Background()

		resp, err := svc.SendMessage(ctx, "u1", &model.SendMessageRequest{Content: "I need a laptop"})
		So(err, ShouldBeNil)
		convID := resp.Conversation.ID

		Convey("消息追加且计数累加", func() {
			resp2, err := svc.SendMessage(ctx, "u1", &model.SendMessageRequest{
				ConversationID: convID,
				Content:        "something light for travel",
			})
			So(err, ShouldBeNil)
			So(resp2.Conversation.ID, ShouldEqual, convID)

			stored, _ := convs.FindByID(ctx, convID)
			So(stored.MessagesSinceSynthesis, ShouldEqual, 4)

			history, _ := msgs.ListByConversation(ctx, convID)
			So(len(history), ShouldEqual, 4)
		})

		Convey("第三轮交互触发上下文合成并清零计数", func() {
			_, err := svc.SendMessage(ctx, "u1", &model.SendMessageRequest{ConversationID: convID, Content: "light, for travel"})
			So(err, ShouldBeNil)
			So(assistant.extractCalls, ShouldEqual, 0)

			resp3, err := svc.SendMessage(ctx, "u1", &model.SendMessageRequest{ConversationID: convID, Content: "budget is 1000"})
			So(err, ShouldBeNil)
			So(assistant.extractCalls, ShouldEqual, 1)
			So(resp3.Warning, ShouldBeEmpty)

			stored, _ := convs.FindByID(ctx, convID)
			So(stored.MessagesSinceSynthesis, ShouldEqual, 0)
			So(stored.Metadata.SaleStatus, ShouldEqual, chat.SaleStatusInterested)
			So(stored.Metadata.Interests, ShouldResemble, []string{"laptops"})
			So(stored.Metadata.OfferedProducts, ShouldResemble, []string{"macbook air"})
		})

		Convey("合成失败时返回 warning 且计数保留，下一轮重试", func() {
			_, err := svc.SendMessage(ctx, "u1", &model.SendMessageRequest{ConversationID: convID, Content: "light"})
			So(err, ShouldBeNil)

			assistant.extractErr = errors.New("model down")
			resp3, err := svc.SendMessage(ctx, "u1", &model.SendMessageRequest{ConversationID: convID, Content: "budget?"})
			So(err, ShouldBeNil)
			So(resp3.Warning, ShouldNotBeEmpty)

			stored, _ := convs.FindByID(ctx, convID)
			So(stored.MessagesSinceSynthesis, ShouldEqual, 6)
			So(stored.Metadata.IsInitial(), ShouldBeTrue)

			// 下一轮合成恢复后重新触发并清零
			assistant.extractErr = nil
			_, err = svc.SendMessage(ctx, "u1", &model.SendMessageRequest{ConversationID: convID, Content: "so?"})
			So(err, ShouldBeNil)
			stored, _ = convs.FindByID(ctx, convID)
			So(stored.MessagesSinceSynthesis, ShouldEqual, 0)
		})

		Convey("回复生成失败时用户消息已保留", func() {
			assistant.responseErr = errors.New("model down")
			_, err := svc.SendMessage(ctx, "u1", &model.SendMessageRequest{
				ConversationID: convID,
				Content:        "are you there?",
			})
			So(errors.Is(err, ErrAssistantUnavailable), ShouldBeTrue)

			history, _ := msgs.ListByConversation(ctx, convID)
			So(len(history), ShouldEqual, 3)
			So(history[2].Sender, ShouldEqual, chat.SenderUser)
			So(history[2].Content, ShouldEqual, "are you there?")

			stored, _ := convs.FindByID(ctx, convID)
			So(stored.MessagesSinceSynthesis, ShouldEqual, 2)
		})

		Convey("会话不存在", func() {
			_, err := svc.SendMessage(ctx, "u1", &model.SendMessageRequest{
				ConversationID: "missing",
				Content:        "hello",
			})
			So(errors.Is(err, ErrConversationNotFound), ShouldBeTrue)
		})

		Convey("访问他人会话被拒绝", func() {
			_, err := svc.SendMessage(ctx, "u2", &model.SendMessageRequest{
				ConversationID: convID,
				Content:        "hello",
			})
			So(errors.Is(err, ErrForbidden), ShouldBeTrue)
		})
	})
}

func TestChatService_MetadataGuidesResponse(t *testing.T) {
	Convey("已合成的上下文会带入回复生成", t, func() {
		svc, convs, _, assistant := newTestChatService()
		ctx := context.Background()

		resp, err := svc.SendMessage(ctx, "u1", &model.SendMessageRequest{Content: "I need a laptop"})
		So(err, ShouldBeNil)
		convID := resp.Conversation.ID

		// 推到阈值触发合成
		_, err = svc.SendMessage(ctx, "u1", &model.SendMessageRequest{ConversationID: convID, Content: "light one"})
		So(err, ShouldBeNil)
		_, err = svc.SendMessage(ctx, "u1", &model.SendMessageRequest{ConversationID: convID, Content: "budget 1000"})
		So(err, ShouldBeNil)

		stored, _ := convs.FindByID(ctx, convID)
		So(stored.Metadata.IsInitial(), ShouldBeFalse)

		Convey("客户拒绝已推荐的产品后状态不回退", func() {
			assistant.extractRaw = `{"interests":["laptops"],"offeredProducts":[],"rejectedProducts":["macbook air"],"saleStatus":"exploring","lastIntent":"wants alternatives"}`

			// 连续三轮推到下一次合成
			for i := 0; i < 3; i++ {
				_, err := svc.SendMessage(ctx, "u1", &model.SendMessageRequest{
					ConversationID: convID,
					Content:        fmt.Sprintf("not a mac, round %d", i),
				})
				So(err, ShouldBeNil)
			}

			stored, _ := convs.FindByID(ctx, convID)
			So(stored.Metadata.RejectedProducts, ShouldResemble, []string{"macbook air"})
			So(stored.Metadata.OfferedProducts, ShouldBeEmpty)
			// 漏斗只进不退
			So(stored.Metadata.SaleStatus, ShouldEqual, chat.SaleStatusInterested)
			So(stored.Metadata.LastIntent, ShouldEqual, "wants alternatives")
		})
	})
}

func TestChatService_ConversationManagement(t *testing.T) {
	Convey("会话管理操作", t, func() {
		svc, convs, msgs, _ := newTestChatService()
		ctx := context.Background()

		resp, err := svc.SendMessage(ctx, "u1", &model.SendMessageRequest{Content: "hi"})
		So(err, ShouldBeNil)
		convID := resp.Conversation.ID

		Convey("列表只返回自己的会话", func() {
			_, err := svc.SendMessage(ctx, "u2", &model.SendMessageRequest{Content: "hello"})
			So(err, ShouldBeNil)

			list, err := svc.GetConversations(ctx, "u1", 20, 0)
			So(err, ShouldBeNil)
			So(list.Total, ShouldEqual, 1)
			So(list.Conversations[0].ID, ShouldEqual, convID)
		})

		Convey("查询历史按时间正序", func() {
			_, err := svc.SendMessage(ctx, "u1", &model.SendMessageRequest{ConversationID: convID, Content: "more"})
			So(err, ShouldBeNil)

			history, err := svc.GetConversationHistory(ctx, "u1", convID)
			So(err, ShouldBeNil)
			So(history.TotalMessages, ShouldEqual, 4)
			So(history.Messages[0].Sender, ShouldEqual, "user")
			So(history.Messages[0].Content, ShouldEqual, "hi")
			So(history.Messages[3].Sender, ShouldEqual, "bot")
		})

		Convey("他人无法查询历史", func() {
			_, err := svc.GetConversationHistory(ctx, "u2", convID)
			So(errors.Is(err, ErrForbidden), ShouldBeTrue)
		})

		Convey("修改标题", func() {
			err := svc.UpdateTitle(ctx, "u1", convID, "Budget laptops")
			So(err, ShouldBeNil)
			stored, _ := convs.FindByID(ctx, convID)
			So(stored.Title, ShouldEqual, "Budget laptops")
		})

		Convey("删除会话级联删除消息", func() {
			err := svc.DeleteConversation(ctx, "u1", convID)
			So(err, ShouldBeNil)
			_, err = convs.FindByID(ctx, convID)
			So(err, ShouldNotBeNil)
			remaining, _ := msgs.ListByConversation(ctx, convID)
			So(len(remaining), ShouldEqual, 0)
		})
	})
}

func TestChatService_ConcurrentSends(t *testing.T) {
	Convey("同一会话的并发请求被串行处理", t, func() {
		svc, convs, msgs, _ := newTestChatService()
		ctx := context.Background()

		resp, err := svc.SendMessage(ctx, "u1", &model.SendMessageRequest{Content: "hi"})
		So(err, ShouldBeNil)
		convID := resp.Conversation.ID

		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				_, _ = svc.SendMessage(ctx, "u1", &model.SendMessageRequest{
					ConversationID: convID,
					Content:        fmt.Sprintf("message %d", n),
				})
			}(i)
		}
		wg.Wait()

		// 每轮 +2，没有丢失的更新
		stored, _ := convs.FindByID(ctx, convID)
		history, _ := msgs.ListByConversation(ctx, convID)
		So(len(history), ShouldEqual, 10)
		// 计数在阈值处被合成清零过，但始终是偶数
		So(stored.MessagesSinceSynthesis%2, ShouldEqual, 0)
	})
}
