// Package objectstore stores uploaded document files.
//
// Two backends are provided: a filesystem backend built on afero and a
// MongoDB GridFS backend. Object paths are slash separated, for example
// "documents/{owner}/{fileID}_{filename}".
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/spf13/afero"
	"go.mongodb.org/mongo-driver/mongo"

	options "github.com/kart-io/bhasha/pkg/options/objectstore"
)

// ErrNotFound is returned when an object does not exist.
var ErrNotFound = errors.New("object not found")

// Store is the storage contract used by the document service.
type Store interface {
	// Upload writes data to objectPath and returns the stored path.
	Upload(ctx context.Context, objectPath string, data []byte) (string, error)
	// Open returns a reader for the object.
	Open(ctx context.Context, objectPath string) (io.ReadCloser, error)
	// PublicURL returns the URL the object is served from.
	PublicURL(objectPath string) string
	// Remove deletes the objects. Missing objects are ignored.
	Remove(ctx context.Context, objectPaths ...string) error
}

// New creates a Store from options. db is only used by the gridfs backend.
func New(opts *options.Options, db *mongo.Database) (Store, error) {
	switch opts.Backend {
	case options.BackendLocal:
		return NewLocal(afero.NewBasePathFs(afero.NewOsFs(), opts.Root), opts.PublicBaseURL), nil
	case options.BackendGridFS:
		if db == nil {
			return nil, fmt.Errorf("gridfs backend requires a mongodb database")
		}
		return NewGridFS(db, opts.Bucket, opts.PublicBaseURL)
	default:
		return nil, fmt.Errorf("unsupported object storage backend %q", opts.Backend)
	}
}

// DocumentPath builds the object path of an uploaded document.
func DocumentPath(ownerID, fileID, filename string) string {
	return path.Join("documents", ownerID, fileID+"_"+path.Base(filename))
}

// Clean normalizes an object path and rejects paths escaping the root.
func Clean(objectPath string) (string, error) {
	p := path.Clean("/" + strings.TrimSpace(objectPath))
	p = strings.TrimPrefix(p, "/")
	if p == "" || p == "." {
		return "", fmt.Errorf("invalid object path %q", objectPath)
	}
	return p, nil
}

func publicURL(base, objectPath string) string {
	return strings.TrimRight(base, "/") + "/" + objectPath
}
