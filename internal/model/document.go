// Package model provides data models for the bhasha RAG service.
package model

import (
	"time"

	"gorm.io/gorm"

	"github.com/kart-io/bhasha/pkg/id"
)

// Document represents an ingested document.
type Document struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(64)"`
	OwnerID   string    `json:"owner_id" gorm:"type:varchar(64);index"`
	Title     string    `json:"title" gorm:"type:varchar(255);not null;index"`
	Content   string    `json:"content,omitempty" gorm:"type:text"`
	Language  string    `json:"language" gorm:"type:varchar(8);not null"`
	WordCount int       `json:"word_count" gorm:"default:0"`
	PageCount int       `json:"page_count" gorm:"default:0"`
	Metadata  JSONMap   `json:"metadata" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`

	File   *File   `json:"file,omitempty" gorm:"foreignKey:DocumentID;constraint:OnDelete:CASCADE"`
	Chunks []Chunk `json:"-" gorm:"foreignKey:DocumentID;constraint:OnDelete:CASCADE"`
}

// TableName specifies the table name for Document.
func (Document) TableName() string {
	return "rag_documents"
}

// BeforeCreate assigns a ULID when the caller did not.
func (d *Document) BeforeCreate(*gorm.DB) error {
	if d.ID == "" {
		d.ID = id.New()
	}
	return nil
}

// Chunk represents a text chunk with its embedding.
type Chunk struct {
	ID         string  `json:"id" gorm:"primaryKey;type:varchar(64)"`
	DocumentID string  `json:"document_id" gorm:"type:varchar(64);index;not null"`
	FileID     *string `json:"file_id,omitempty" gorm:"type:varchar(64);index"`
	ChunkIndex int     `json:"chunk_index" gorm:"not null"`
	Content    string  `json:"content" gorm:"type:text;not null"`
	// Embedding 以 JSON 数组文本保存，检索时解析。
	Embedding  string    `json:"-" gorm:"type:text;not null"`
	TokenCount int       `json:"token_count" gorm:"default:0"`
	Metadata   JSONMap   `json:"metadata" gorm:"type:text"`
	CreatedAt  time.Time `json:"created_at" gorm:"autoCreateTime"`

	Document *Document `json:"-" gorm:"foreignKey:DocumentID"`
}

// TableName specifies the table name for Chunk.
func (Chunk) TableName() string {
	return "rag_chunks"
}

// BeforeCreate assigns a ULID when the caller did not.
func (c *Chunk) BeforeCreate(*gorm.DB) error {
	if c.ID == "" {
		c.ID = id.New()
	}
	return nil
}

// File 上传文件在对象存储中的记录，与 Document 一对一。
type File struct {
	ID          string    `json:"id" gorm:"primaryKey;type:varchar(64)"`
	URL         string    `json:"url" gorm:"type:varchar(1024)"`
	Type        string    `json:"type" gorm:"type:varchar(16)"`
	FileName    string    `json:"file_name" gorm:"type:varchar(255)"`
	FileSize    int64     `json:"file_size"`
	StoragePath string    `json:"storage_path" gorm:"type:varchar(1024)"`
	DocumentID  string    `json:"document_id" gorm:"type:varchar(64);uniqueIndex"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName specifies the table name for File.
func (File) TableName() string {
	return "rag_files"
}

// BeforeCreate assigns a ULID when the caller did not.
func (f *File) BeforeCreate(*gorm.DB) error {
	if f.ID == "" {
		f.ID = id.New()
	}
	return nil
}
