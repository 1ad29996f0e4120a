package store

import (
	"context"

	"gorm.io/gorm"

	"github.com/kart-io/bhasha/internal/model"
)

// datastore implements the Factory interface on top of GORM.
type datastore struct {
	db *gorm.DB
}

var _ Factory = (*datastore)(nil)

// NewFactory 基于已建立的 GORM 连接创建存储工厂。
func NewFactory(db *gorm.DB) Factory {
	return &datastore{db: db}
}

// Documents returns the document store.
func (ds *datastore) Documents() DocumentStore {
	return newDocuments(ds.db)
}

// Chunks returns the chunk store.
func (ds *datastore) Chunks() ChunkStore {
	return newChunks(ds.db)
}

// Files returns the file store.
func (ds *datastore) Files() FileStore {
	return newFiles(ds.db)
}

// Chats returns the chat store.
func (ds *datastore) Chats() ChatStore {
	return newChats(ds.db)
}

// Messages returns the message store.
func (ds *datastore) Messages() MessageStore {
	return newMessages(ds.db)
}

// Evaluations returns the evaluation store.
func (ds *datastore) Evaluations() EvaluationStore {
	return newEvaluations(ds.db)
}

// TX runs fn inside a database transaction.
func (ds *datastore) TX(ctx context.Context, fn func(ctx context.Context, tx Factory) error) error {
	return ds.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, &datastore{db: tx})
	})
}

// AutoMigrate migrates the database schema.
func (ds *datastore) AutoMigrate() error {
	return ds.db.AutoMigrate(model.AllModels()...)
}

// Close closes the factory. The connection is owned by the db component.
func (ds *datastore) Close() error {
	return nil
}
