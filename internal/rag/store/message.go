package store

import (
	"context"
	stderrors "errors"

	"gorm.io/gorm"

	"github.com/kart-io/bhasha/internal/model"
	"github.com/kart-io/bhasha/pkg/errors"
)

type messages struct {
	db *gorm.DB
}

func newMessages(db *gorm.DB) *messages {
	return &messages{db}
}

// Create stores a message and links the referenced documents.
// Unknown document ids are ignored.
func (m *messages) Create(ctx context.Context, msg *model.Message, documentIDs []string) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Documents").Create(msg).Error; err != nil {
			return err
		}
		if len(documentIDs) == 0 {
			return nil
		}
		var known []string
		if err := tx.Model(&model.Document{}).Where("id IN ?", documentIDs).Pluck("id", &known).Error; err != nil {
			return err
		}
		if len(known) == 0 {
			return nil
		}
		links := make([]map[string]any, 0, len(known))
		for _, docID := range known {
			links = append(links, map[string]any{"message_id": msg.ID, "document_id": docID})
		}
		return tx.Table("rag_message_documents").Create(&links).Error
	})
}

// Get retrieves a message by id.
func (m *messages) Get(ctx context.Context, id string) (*model.Message, error) {
	var msg model.Message
	err := m.db.WithContext(ctx).Where("id = ?", id).First(&msg).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// ListNewest lists messages of a chat, newest first.
func (m *messages) ListNewest(ctx context.Context, chatID string, offset, limit int) (int64, []*model.Message, error) {
	var count int64
	var out []*model.Message

	if err := m.db.WithContext(ctx).Model(&model.Message{}).Where("chat_id = ?", chatID).Count(&count).Error; err != nil {
		return 0, nil, err
	}

	err := m.db.WithContext(ctx).
		Preload("Documents", func(db *gorm.DB) *gorm.DB {
			return db.Select("id", "title", "language")
		}).
		Preload("Documents.File").
		Where("chat_id = ?", chatID).
		Order("created_at DESC").Order("id DESC").
		Offset(offset).Limit(limit).
		Find(&out).Error
	if err != nil {
		return 0, nil, err
	}
	return count, out, nil
}
