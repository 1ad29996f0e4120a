package model

import (
	"time"

	"gorm.io/gorm"

	"github.com/kart-io/bhasha/pkg/id"
)

// Message roles.
const (
	RoleUser = "user"
	RoleAI   = "ai"
)

// Chat 会话。ShortTermMemory 保存最近若干轮对话的 JSON 列表。
type Chat struct {
	ID              string    `json:"id" gorm:"primaryKey;type:varchar(64)"`
	OwnerID         string    `json:"owner_id" gorm:"type:varchar(64);index"`
	Name            string    `json:"name" gorm:"type:varchar(64)"`
	ShortTermMemory string    `json:"-" gorm:"type:text"`
	CreatedAt       time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt       time.Time `json:"updated_at" gorm:"autoUpdateTime;index"`

	Messages []Message `json:"-" gorm:"foreignKey:ChatID;constraint:OnDelete:CASCADE"`
}

// TableName specifies the table name for Chat.
func (Chat) TableName() string {
	return "rag_chats"
}

// BeforeCreate assigns a ULID when the caller did not.
func (c *Chat) BeforeCreate(*gorm.DB) error {
	if c.ID == "" {
		c.ID = id.New()
	}
	return nil
}

// Message 会话中的一条消息。AI 消息携带检索与评分信息。
type Message struct {
	ID              string       `json:"id" gorm:"primaryKey;type:varchar(64)"`
	ChatID          string       `json:"chat_id" gorm:"type:varchar(64);index;not null"`
	Role            string       `json:"role" gorm:"type:varchar(8);not null"`
	Content         string       `json:"content" gorm:"type:text;not null"`
	RetrievedChunks *string      `json:"retrieved_chunks,omitempty" gorm:"type:text"`
	GroundingScore  *float64     `json:"grounding_score,omitempty"`
	ResponseTime    *float64     `json:"response_time,omitempty"`
	RAGMetadata     *RAGMetadata `json:"rag_metadata,omitempty" gorm:"type:text"`
	CreatedAt       time.Time    `json:"created_at" gorm:"autoCreateTime;index"`

	Documents []Document `json:"documents,omitempty" gorm:"many2many:rag_message_documents;constraint:OnDelete:CASCADE"`
}

// TableName specifies the table name for Message.
func (Message) TableName() string {
	return "rag_messages"
}

// BeforeCreate assigns a ULID when the caller did not.
func (m *Message) BeforeCreate(*gorm.DB) error {
	if m.ID == "" {
		m.ID = id.New()
	}
	return nil
}

// Feedback labels.
const (
	FeedbackHelpful    = "helpful"
	FeedbackNotHelpful = "not_helpful"
	FeedbackPartial    = "partial"
)

// ValidFeedback 判断反馈标签是否合法。
func ValidFeedback(s string) bool {
	return s == FeedbackHelpful || s == FeedbackNotHelpful || s == FeedbackPartial
}

// Evaluation 回答质量评估，每条消息最多一条。
type Evaluation struct {
	ID           string    `json:"id" gorm:"primaryKey;type:varchar(64)"`
	MessageID    string    `json:"message_id" gorm:"type:varchar(64);uniqueIndex;not null"`
	Groundedness *float64  `json:"groundedness,omitempty"`
	Relevance    *float64  `json:"relevance,omitempty"`
	UserFeedback *string   `json:"user_feedback,omitempty" gorm:"type:varchar(16)"`
	CreatedAt    time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for Evaluation.
func (Evaluation) TableName() string {
	return "rag_evaluations"
}

// BeforeCreate assigns a ULID when the caller did not.
func (e *Evaluation) BeforeCreate(*gorm.DB) error {
	if e.ID == "" {
		e.ID = id.New()
	}
	return nil
}

// AllModels 返回需要迁移的全部模型。
func AllModels() []any {
	return []any{&Document{}, &File{}, &Chunk{}, &Chat{}, &Message{}, &Evaluation{}}
}
