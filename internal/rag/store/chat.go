package store

import (
	"context"
	stderrors "errors"
	"time"

	"gorm.io/gorm"

	"github.com/kart-io/bhasha/internal/model"
	"github.com/kart-io/bhasha/pkg/errors"
)

type chats struct {
	db *gorm.DB
}

func newChats(db *gorm.DB) *chats {
	return &chats{db}
}

// Create creates a new chat.
func (c *chats) Create(ctx context.Context, chat *model.Chat) error {
	return c.db.WithContext(ctx).Omit("Messages").Create(chat).Error
}

// Get retrieves a chat by id.
func (c *chats) Get(ctx context.Context, id string) (*model.Chat, error) {
	var chat model.Chat
	err := c.db.WithContext(ctx).Where("id = ?", id).First(&chat).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.ErrChatNotFound
	}
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

// List lists chats of an owner, most recently updated first.
func (c *chats) List(ctx context.Context, ownerID string, offset, limit int) (int64, []*model.Chat, error) {
	var count int64
	var out []*model.Chat

	q := c.db.WithContext(ctx).Model(&model.Chat{}).Where("owner_id = ?", ownerID)
	if err := q.Count(&count).Error; err != nil {
		return 0, nil, err
	}

	err := c.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("updated_at DESC").Order("id DESC").
		Offset(offset).Limit(limit).
		Find(&out).Error
	if err != nil {
		return 0, nil, err
	}
	return count, out, nil
}

// UpdateShortTermMemory replaces the serialized short-term buffer.
func (c *chats) UpdateShortTermMemory(ctx context.Context, id, memory string) error {
	res := c.db.WithContext(ctx).Model(&model.Chat{}).Where("id = ?", id).
		Updates(map[string]any{"short_term_memory": memory, "updated_at": time.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errors.ErrChatNotFound
	}
	return nil
}

// Touch bumps updated_at.
func (c *chats) Touch(ctx context.Context, id string) error {
	return c.db.WithContext(ctx).Model(&model.Chat{}).Where("id = ?", id).
		Update("updated_at", time.Now()).Error
}

// Delete removes a chat with its messages and their evaluations.
func (c *chats) Delete(ctx context.Context, id string) error {
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		msgIDs := tx.Model(&model.Message{}).Select("id").Where("chat_id = ?", id)
		if err := tx.Where("message_id IN (?)", msgIDs).Delete(&model.Evaluation{}).Error; err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM rag_message_documents WHERE message_id IN (?)", msgIDs).Error; err != nil {
			return err
		}
		if err := tx.Where("chat_id = ?", id).Delete(&model.Message{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&model.Chat{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errors.ErrChatNotFound
		}
		return nil
	})
}
