package biz

import (
	"context"
	"strings"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/bhasha/internal/model"
	"github.com/kart-io/bhasha/internal/pkg/rag/textutil"
	"github.com/kart-io/bhasha/internal/rag/store"
	"github.com/kart-io/bhasha/pkg/errors"
	"github.com/kart-io/bhasha/pkg/utils/json"
)

// MemoryConfig 会话记忆配置。
type MemoryConfig struct {
	// ShortTermSize 短期记忆保留的最大轮数。
	ShortTermSize int `json:"short-term-size" mapstructure:"short-term-size"`
	// LongTermWindow 混合上下文时取的最近长期消息数。
	LongTermWindow int `json:"long-term-window" mapstructure:"long-term-window"`
	// BlendLimit 混合上下文的最大消息数。
	BlendLimit int `json:"blend-limit" mapstructure:"blend-limit"`
}

// DefaultMemoryConfig 返回默认记忆配置。
func DefaultMemoryConfig() *MemoryConfig {
	return &MemoryConfig{
		ShortTermSize:  10,
		LongTermWindow: 5,
		BlendLimit:     10,
	}
}

// Turn 短期记忆中的一轮对话。
type Turn struct {
	ID             string             `json:"id"`
	Role           string             `json:"role"`
	Content        string             `json:"content"`
	GroundingScore *float64           `json:"grounding_score,omitempty"`
	RAGMetadata    *model.RAGMetadata `json:"rag_metadata,omitempty"`
	ResponseTime   *float64           `json:"response_time,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
}

// History 分页的会话历史，按时间正序。
type History struct {
	Messages []*model.Message `json:"messages"`
	Total    int64            `json:"total"`
	HasMore  bool             `json:"has_more"`
}

// BlendedContext 短期与长期记忆混合后的上下文。
type BlendedContext struct {
	RecentMessages []Turn `json:"recent_messages"`
	CurrentQuery   string `json:"current_query"`
}

// ChatList 分页的会话列表。
type ChatList struct {
	Chats []*model.Chat `json:"chats"`
	Total int64         `json:"total"`
}

// MessageOption 设置消息的可选字段。
type MessageOption func(*messageOptions)

type messageOptions struct {
	documentIDs    []string
	retrieved      []RetrievedChunk
	groundingScore *float64
	ragMetadata    *model.RAGMetadata
	responseTime   *float64
}

// WithDocumentIDs 关联消息引用的文档。
func WithDocumentIDs(ids ...string) MessageOption {
	return func(o *messageOptions) { o.documentIDs = ids }
}

// WithRetrievedChunks 记录回答所用的检索结果。
func WithRetrievedChunks(chunks []RetrievedChunk) MessageOption {
	return func(o *messageOptions) { o.retrieved = chunks }
}

// WithGroundingScore 记录回答置信度。
func WithGroundingScore(score float64) MessageOption {
	return func(o *messageOptions) { o.groundingScore = &score }
}

// WithRAGMetadata 记录回答流程元数据。
func WithRAGMetadata(meta *model.RAGMetadata) MessageOption {
	return func(o *messageOptions) { o.ragMetadata = meta }
}

// WithResponseTime 记录响应耗时（秒）。
func WithResponseTime(seconds float64) MessageOption {
	return func(o *messageOptions) { o.responseTime = &seconds }
}

// Memory 管理会话的长期（消息表）与短期（会话上的 JSON 缓冲）记忆。
type Memory struct {
	store  store.Factory
	config *MemoryConfig
}

// NewMemory 创建记忆服务。
func NewMemory(factory store.Factory, config *MemoryConfig) *Memory {
	if config == nil {
		config = DefaultMemoryConfig()
	}
	return &Memory{store: factory, config: config}
}

// GetHistory 返回会话历史，offset 从最新消息开始计数，结果按时间正序。
func (m *Memory) GetHistory(ctx context.Context, chatID string, limit, offset int) (*History, error) {
	total, newest, err := m.store.Messages().ListNewest(ctx, chatID, offset, limit)
	if err != nil {
		return nil, errors.ErrPersistence.WithCause(err)
	}

	messages := make([]*model.Message, len(newest))
	for i, msg := range newest {
		messages[len(newest)-1-i] = msg
	}

	return &History{
		Messages: messages,
		Total:    total,
		HasMore:  int64(offset+len(messages)) < total,
	}, nil
}

// GetShortTerm 返回短期记忆。内容无法解析时视为空。
func (m *Memory) GetShortTerm(ctx context.Context, chatID string) ([]Turn, error) {
	return m.shortTerm(ctx, m.store, chatID)
}

func (m *Memory) shortTerm(ctx context.Context, f store.Factory, chatID string) ([]Turn, error) {
	chat, err := f.Chats().Get(ctx, chatID)
	if err != nil {
		return nil, wrapErrno(errors.ErrPersistence, err)
	}
	if strings.TrimSpace(chat.ShortTermMemory) == "" {
		return []Turn{}, nil
	}

	var turns []Turn
	if err := json.UnmarshalString(chat.ShortTermMemory, &turns); err != nil {
		logger.Warnw("短期记忆解析失败，按空处理", "chat_id", chatID, "error", err.Error())
		return []Turn{}, nil
	}
	return turns, nil
}

// AppendShortTerm 追加一轮对话，超过上限时淘汰最早的。
// 相同 ID 的轮次原位替换。
func (m *Memory) AppendShortTerm(ctx context.Context, chatID string, turn Turn) error {
	return m.store.TX(ctx, func(ctx context.Context, tx store.Factory) error {
		turns, err := m.shortTerm(ctx, tx, chatID)
		if err != nil {
			return err
		}

		replaced := false
		if turn.ID != "" {
			for i := range turns {
				if turns[i].ID == turn.ID {
					turns[i] = turn
					replaced = true
					break
				}
			}
		}
		if !replaced {
			turns = append(turns, turn)
		}
		if n := m.config.ShortTermSize; n > 0 && len(turns) > n {
			turns = turns[len(turns)-n:]
		}

		raw, err := json.MarshalString(turns)
		if err != nil {
			return errors.ErrPersistence.WithCause(err)
		}
		return wrapErrno(errors.ErrPersistence, tx.Chats().UpdateShortTermMemory(ctx, chatID, raw))
	})
}

// ClearShortTerm 清空短期记忆。
func (m *Memory) ClearShortTerm(ctx context.Context, chatID string) error {
	if err := m.store.Chats().UpdateShortTermMemory(ctx, chatID, "[]"); err != nil {
		return wrapErrno(errors.ErrPersistence, err)
	}
	return nil
}

// BlendContext 合并短期记忆与最近的长期消息，保留最后 BlendLimit 条。
func (m *Memory) BlendContext(ctx context.Context, chatID, query string) (*BlendedContext, error) {
	short, err := m.GetShortTerm(ctx, chatID)
	if err != nil {
		return nil, err
	}

	history, err := m.GetHistory(ctx, chatID, m.config.LongTermWindow, 0)
	if err != nil {
		return nil, err
	}

	recent := make([]Turn, 0, len(short)+len(history.Messages))
	recent = append(recent, short...)
	for _, msg := range history.Messages {
		recent = append(recent, Turn{
			ID:        msg.ID,
			Role:      msg.Role,
			Content:   msg.Content,
			CreatedAt: msg.CreatedAt,
		})
	}
	if n := m.config.BlendLimit; n > 0 && len(recent) > n {
		recent = recent[len(recent)-n:]
	}

	return &BlendedContext{RecentMessages: recent, CurrentQuery: query}, nil
}

// CreateSession 以首个问题生成标题并创建会话。
func (m *Memory) CreateSession(ctx context.Context, ownerID, firstQuery string) (*model.Chat, error) {
	chat := &model.Chat{
		OwnerID:         ownerID,
		Name:            GenerateTitle(firstQuery),
		ShortTermMemory: "[]",
	}
	if err := m.store.Chats().Create(ctx, chat); err != nil {
		return nil, errors.ErrPersistence.WithCause(err)
	}

	logger.Infow("创建会话", "chat_id", chat.ID, "owner_id", ownerID, "name", chat.Name)
	return chat, nil
}

// StoreMessage 写入长期记忆并追加到短期记忆。
// 短期记忆更新失败只记录日志。
func (m *Memory) StoreMessage(ctx context.Context, chatID, content, role string, opts ...MessageOption) (*model.Message, error) {
	o := &messageOptions{}
	for _, opt := range opts {
		opt(o)
	}

	msg := &model.Message{
		ChatID:         chatID,
		Role:           role,
		Content:        content,
		GroundingScore: o.groundingScore,
		RAGMetadata:    o.ragMetadata,
		ResponseTime:   o.responseTime,
	}
	if len(o.retrieved) > 0 {
		raw, err := json.MarshalString(o.retrieved)
		if err != nil {
			return nil, errors.ErrPersistence.WithCause(err)
		}
		msg.RetrievedChunks = &raw
	}

	if err := m.store.Messages().Create(ctx, msg, o.documentIDs); err != nil {
		return nil, errors.ErrPersistence.WithCause(err)
	}
	if err := m.store.Chats().Touch(ctx, chatID); err != nil {
		logger.Warnw("更新会话时间失败", "chat_id", chatID, "error", err.Error())
	}

	turn := Turn{
		ID:             msg.ID,
		Role:           role,
		Content:        content,
		GroundingScore: o.groundingScore,
		RAGMetadata:    o.ragMetadata,
		ResponseTime:   o.responseTime,
		CreatedAt:      msg.CreatedAt,
	}
	if err := m.AppendShortTerm(ctx, chatID, turn); err != nil {
		logger.Warnw("更新短期记忆失败", "chat_id", chatID, "error", err.Error())
	}

	return msg, nil
}

// GetChat 返回属于 ownerID 的会话，否则返回 ErrChatNotFound。
func (m *Memory) GetChat(ctx context.Context, ownerID, chatID string) (*model.Chat, error) {
	chat, err := m.store.Chats().Get(ctx, chatID)
	if err != nil {
		return nil, wrapErrno(errors.ErrPersistence, err)
	}
	if chat.OwnerID != ownerID {
		return nil, errors.ErrChatNotFound
	}
	return chat, nil
}

// ListChats 按更新时间倒序列出用户的会话。
func (m *Memory) ListChats(ctx context.Context, ownerID string, limit, offset int) (*ChatList, error) {
	total, chats, err := m.store.Chats().List(ctx, ownerID, offset, limit)
	if err != nil {
		return nil, errors.ErrPersistence.WithCause(err)
	}
	return &ChatList{Chats: chats, Total: total}, nil
}

// DeleteChat 删除用户的会话及其消息。
func (m *Memory) DeleteChat(ctx context.Context, ownerID, chatID string) error {
	if _, err := m.GetChat(ctx, ownerID, chatID); err != nil {
		return err
	}
	if err := m.store.Chats().Delete(ctx, chatID); err != nil {
		return wrapErrno(errors.ErrPersistence, err)
	}
	logger.Infow("删除会话", "chat_id", chatID, "owner_id", ownerID)
	return nil
}

// GenerateTitle 由首个问题生成会话标题：
// 超过 6 个词取前 6 个加 "..."，超过 50 个字符截为 47 个加 "..."。
func GenerateTitle(query string) string {
	words := textutil.Words(query)
	title := strings.Join(words, " ")
	if len(words) > 6 {
		title = strings.Join(words[:6], " ") + "..."
	}
	if textutil.RuneLen(title) > 50 {
		title = textutil.TruncateString(title, 47) + "..."
	}
	return title
}
