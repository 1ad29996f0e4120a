package store

import (
	"context"

	"github.com/kart-io/bhasha/internal/model"
)

// Factory defines the factory interface for creating stores.
type Factory interface {
	Documents() DocumentStore
	Chunks() ChunkStore
	Files() FileStore
	Chats() ChatStore
	Messages() MessageStore
	Evaluations() EvaluationStore

	// TX 在同一数据库事务中执行 fn，fn 返回错误时回滚。
	TX(ctx context.Context, fn func(ctx context.Context, tx Factory) error) error

	AutoMigrate() error
	Close() error
}

// DocumentStore defines the document storage interface.
type DocumentStore interface {
	Create(ctx context.Context, doc *model.Document) error
	Get(ctx context.Context, id string) (*model.Document, error)
	FindByTitle(ctx context.Context, title string) (*model.Document, error)
	// List 返回 ownerID 的文档；ownerID 为空时返回全部。按创建时间倒序。
	List(ctx context.Context, ownerID string) ([]*model.Document, error)
	// Delete 删除文档及其文档块、文件记录与消息关联。
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int64, error)
	// GroupByLanguage 按语言统计文档数量。
	GroupByLanguage(ctx context.Context) ([]LanguageCount, error)
}

// ChunkFilter 文档块候选过滤条件，零值表示不过滤。
type ChunkFilter struct {
	Language    string
	DocumentIDs []string
}

// LanguageCount 按语言聚合的数量。
type LanguageCount struct {
	Language string `json:"language"`
	Count    int64  `json:"count"`
}

// ChunkStore defines the chunk storage interface.
type ChunkStore interface {
	// InsertMany 按给定顺序写入文档块，ChunkIndex 为 0..n-1。
	InsertMany(ctx context.Context, documentID string, fileID *string, chunks []*model.Chunk) ([]string, error)
	FindByDocument(ctx context.Context, documentID string) ([]*model.Chunk, error)
	// FindByFilter 返回全部候选块（含所属文档与文件），按存储顺序。
	FindByFilter(ctx context.Context, filter ChunkFilter) ([]*model.Chunk, error)
	DeleteByDocument(ctx context.Context, documentID string) (int64, error)
	CountAll(ctx context.Context) (int64, error)
	CountByDocument(ctx context.Context, documentID string) (int64, error)
	// GroupByLanguage 按所属文档语言统计文档块数量。
	GroupByLanguage(ctx context.Context) ([]LanguageCount, error)
}

// FileStore defines the file storage interface.
type FileStore interface {
	Create(ctx context.Context, file *model.File) error
	GetByDocument(ctx context.Context, documentID string) (*model.File, error)
}

// ChatStore defines the chat storage interface.
type ChatStore interface {
	Create(ctx context.Context, chat *model.Chat) error
	Get(ctx context.Context, id string) (*model.Chat, error)
	// List 按更新时间倒序分页，返回总数。
	List(ctx context.Context, ownerID string, offset, limit int) (int64, []*model.Chat, error)
	UpdateShortTermMemory(ctx context.Context, id, memory string) error
	Touch(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// MessageStore defines the message storage interface.
type MessageStore interface {
	// Create 写入消息并关联文档。
	Create(ctx context.Context, msg *model.Message, documentIDs []string) error
	Get(ctx context.Context, id string) (*model.Message, error)
	// ListNewest 按创建时间倒序分页（含关联文档），返回总数。
	ListNewest(ctx context.Context, chatID string, offset, limit int) (int64, []*model.Message, error)
}

// EvaluationStats 评估汇总。
type EvaluationStats struct {
	Total                int64            `json:"total_evaluations"`
	AvgGroundedness      float64          `json:"avg_groundedness"`
	AvgRelevance         float64          `json:"avg_relevance"`
	FeedbackDistribution map[string]int64 `json:"feedback_distribution"`
}

// EvaluationStore defines the evaluation storage interface.
type EvaluationStore interface {
	UpsertScores(ctx context.Context, messageID string, groundedness, relevance float64) error
	UpsertFeedback(ctx context.Context, messageID, feedback string) error
	Get(ctx context.Context, messageID string) (*model.Evaluation, error)
	Stats(ctx context.Context) (*EvaluationStats, error)
}
