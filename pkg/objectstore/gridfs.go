package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	mongoopts "go.mongodb.org/mongo-driver/mongo/options"
)

// GridFS stores objects in a MongoDB GridFS bucket, keyed by file name.
type GridFS struct {
	bucket  *gridfs.Bucket
	baseURL string
}

var _ Store = (*GridFS)(nil)

// NewGridFS creates a GridFS-backed store.
func NewGridFS(db *mongo.Database, bucketName, baseURL string) (*GridFS, error) {
	bucket, err := gridfs.NewBucket(db, mongoopts.GridFSBucket().SetName(bucketName))
	if err != nil {
		return nil, fmt.Errorf("open gridfs bucket %s: %w", bucketName, err)
	}
	return &GridFS{bucket: bucket, baseURL: baseURL}, nil
}

// Upload replaces any existing object with the same path.
func (g *GridFS) Upload(ctx context.Context, objectPath string, data []byte) (string, error) {
	p, err := Clean(objectPath)
	if err != nil {
		return "", err
	}
	if err := g.Remove(ctx, p); err != nil {
		return "", err
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := g.bucket.SetWriteDeadline(deadline); err != nil {
			return "", err
		}
	}
	if _, err := g.bucket.UploadFromStream(p, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("upload %s: %w", p, err)
	}
	return p, nil
}

// Open reads the newest revision of the object into memory.
func (g *GridFS) Open(ctx context.Context, objectPath string) (io.ReadCloser, error) {
	p, err := Clean(objectPath)
	if err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := g.bucket.SetReadDeadline(deadline); err != nil {
			return nil, err
		}
	}
	var buf bytes.Buffer
	if _, err := g.bucket.DownloadToStreamByName(p, &buf); err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("download %s: %w", p, err)
	}
	return io.NopCloser(&buf), nil
}

// PublicURL returns the URL of the object.
func (g *GridFS) PublicURL(objectPath string) string {
	return publicURL(g.baseURL, objectPath)
}

// Remove deletes every revision stored under the given paths.
func (g *GridFS) Remove(ctx context.Context, objectPaths ...string) error {
	var errs []error
	for _, objectPath := range objectPaths {
		p, err := Clean(objectPath)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		ids, err := g.revisions(ctx, p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, id := range ids {
			if err := g.bucket.Delete(id); err != nil && !errors.Is(err, gridfs.ErrFileNotFound) {
				errs = append(errs, fmt.Errorf("remove %s: %w", p, err))
			}
		}
	}
	return errors.Join(errs...)
}

func (g *GridFS) revisions(ctx context.Context, p string) ([]primitive.ObjectID, error) {
	cursor, err := g.bucket.Find(bson.M{"filename": p})
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", p, err)
	}
	defer cursor.Close(ctx)

	var ids []primitive.ObjectID
	for cursor.Next(ctx) {
		var file struct {
			ID primitive.ObjectID `bson:"_id"`
		}
		if err := cursor.Decode(&file); err != nil {
			return nil, err
		}
		ids = append(ids, file.ID)
	}
	return ids, cursor.Err()
}
