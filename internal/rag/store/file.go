package store

import (
	"context"
	stderrors "errors"

	"gorm.io/gorm"

	"github.com/kart-io/bhasha/internal/model"
	"github.com/kart-io/bhasha/pkg/errors"
)

type files struct {
	db *gorm.DB
}

func newFiles(db *gorm.DB) *files {
	return &files{db}
}

// Create creates a file record.
func (f *files) Create(ctx context.Context, file *model.File) error {
	return f.db.WithContext(ctx).Create(file).Error
}

// GetByDocument returns the file attached to a document.
func (f *files) GetByDocument(ctx context.Context, documentID string) (*model.File, error) {
	var file model.File
	err := f.db.WithContext(ctx).Where("document_id = ?", documentID).First(&file).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.ErrNotFound.WithMessage("File not found")
	}
	if err != nil {
		return nil, err
	}
	return &file, nil
}
