package store

import (
	"context"
	stderrors "errors"

	"gorm.io/gorm"

	"github.com/kart-io/bhasha/internal/model"
	"github.com/kart-io/bhasha/pkg/errors"
)

type documents struct {
	db *gorm.DB
}

func newDocuments(db *gorm.DB) *documents {
	return &documents{db}
}

// Create creates a new document.
func (d *documents) Create(ctx context.Context, doc *model.Document) error {
	return d.db.WithContext(ctx).Omit("File", "Chunks").Create(doc).Error
}

// Get retrieves a document with its file.
func (d *documents) Get(ctx context.Context, id string) (*model.Document, error) {
	var doc model.Document
	err := d.db.WithContext(ctx).Preload("File").Where("id = ?", id).First(&doc).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.ErrDocumentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// FindByTitle retrieves the first document with the given title.
func (d *documents) FindByTitle(ctx context.Context, title string) (*model.Document, error) {
	var doc model.Document
	err := d.db.WithContext(ctx).Where("title = ?", title).Order("created_at ASC").First(&doc).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.ErrDocumentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// List lists documents of an owner, newest first.
func (d *documents) List(ctx context.Context, ownerID string) ([]*model.Document, error) {
	var docs []*model.Document
	q := d.db.WithContext(ctx).Preload("File").Omit("content")
	if ownerID != "" {
		q = q.Where("owner_id = ?", ownerID)
	}
	if err := q.Order("created_at DESC").Order("id DESC").Find(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}

// Delete removes a document and everything it owns.
func (d *documents) Delete(ctx context.Context, id string) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", id).Delete(&model.Chunk{}).Error; err != nil {
			return err
		}
		if err := tx.Where("document_id = ?", id).Delete(&model.File{}).Error; err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM rag_message_documents WHERE document_id = ?", id).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&model.Document{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errors.ErrDocumentNotFound
		}
		return nil
	})
}

// Count returns the number of documents.
func (d *documents) Count(ctx context.Context) (int64, error) {
	var n int64
	err := d.db.WithContext(ctx).Model(&model.Document{}).Count(&n).Error
	return n, err
}

// GroupByLanguage counts documents per language.
func (d *documents) GroupByLanguage(ctx context.Context) ([]LanguageCount, error) {
	var rows []LanguageCount
	err := d.db.WithContext(ctx).Model(&model.Document{}).
		Select("language, COUNT(*) AS count").
		Group("language").
		Order("language ASC").
		Scan(&rows).Error
	return rows, err
}
