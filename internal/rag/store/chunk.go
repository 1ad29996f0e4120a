package store

import (
	"context"

	"gorm.io/gorm"

	"github.com/kart-io/bhasha/internal/model"
)

// insertBatchSize 批量写入文档块的批大小。
const insertBatchSize = 100

type chunks struct {
	db *gorm.DB
}

func newChunks(db *gorm.DB) *chunks {
	return &chunks{db}
}

// InsertMany stores chunks in order, numbering them 0..n-1.
func (c *chunks) InsertMany(ctx context.Context, documentID string, fileID *string, items []*model.Chunk) ([]string, error) {
	if len(items) == 0 {
		return nil, nil
	}
	for i, ch := range items {
		ch.DocumentID = documentID
		ch.FileID = fileID
		ch.ChunkIndex = i
	}
	if err := c.db.WithContext(ctx).Omit("Document").CreateInBatches(items, insertBatchSize).Error; err != nil {
		return nil, err
	}
	ids := make([]string, len(items))
	for i, ch := range items {
		ids[i] = ch.ID
	}
	return ids, nil
}

// FindByDocument returns the chunks of one document ordered by index.
func (c *chunks) FindByDocument(ctx context.Context, documentID string) ([]*model.Chunk, error) {
	var out []*model.Chunk
	err := c.db.WithContext(ctx).
		Preload("Document").
		Where("document_id = ?", documentID).
		Order("chunk_index ASC").
		Find(&out).Error
	return out, err
}

// FindByFilter returns every candidate chunk matching the filter.
func (c *chunks) FindByFilter(ctx context.Context, filter ChunkFilter) ([]*model.Chunk, error) {
	q := c.db.WithContext(ctx).Preload("Document").Preload("Document.File")
	if filter.Language != "" {
		sub := c.db.Model(&model.Document{}).Select("id").Where("language = ?", filter.Language)
		q = q.Where("document_id IN (?)", sub)
	}
	if len(filter.DocumentIDs) > 0 {
		q = q.Where("document_id IN ?", filter.DocumentIDs)
	}

	var out []*model.Chunk
	err := q.Order("document_id ASC").Order("chunk_index ASC").Find(&out).Error
	return out, err
}

// DeleteByDocument removes all chunks of a document.
func (c *chunks) DeleteByDocument(ctx context.Context, documentID string) (int64, error) {
	res := c.db.WithContext(ctx).Where("document_id = ?", documentID).Delete(&model.Chunk{})
	return res.RowsAffected, res.Error
}

// CountAll returns the total number of chunks.
func (c *chunks) CountAll(ctx context.Context) (int64, error) {
	var n int64
	err := c.db.WithContext(ctx).Model(&model.Chunk{}).Count(&n).Error
	return n, err
}

// CountByDocument returns the number of chunks of a document.
func (c *chunks) CountByDocument(ctx context.Context, documentID string) (int64, error) {
	var n int64
	err := c.db.WithContext(ctx).Model(&model.Chunk{}).Where("document_id = ?", documentID).Count(&n).Error
	return n, err
}

// GroupByLanguage counts chunks per document language.
func (c *chunks) GroupByLanguage(ctx context.Context) ([]LanguageCount, error) {
	var rows []LanguageCount
	err := c.db.WithContext(ctx).
		Table("rag_chunks").
		Select("rag_documents.language AS language, COUNT(*) AS count").
		Joins("JOIN rag_documents ON rag_documents.id = rag_chunks.document_id").
		Group("rag_documents.language").
		Order("language ASC").
		Scan(&rows).Error
	return rows, err
}
