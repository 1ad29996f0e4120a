// Package objectstore provides object storage options.
package objectstore

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"github.com/kart-io/bhasha/pkg/options"
)

// Supported backends.
const (
	BackendLocal  = "local"
	BackendGridFS = "gridfs"
)

var _ options.IOptions = (*Options)(nil)

// Options defines configuration options for the uploaded-file store.
type Options struct {
	// Backend 存储后端：local 或 gridfs。
	Backend string `json:"backend" mapstructure:"backend"`
	// Root local 后端的根目录。
	Root string `json:"root" mapstructure:"root"`
	// Bucket gridfs 后端的 bucket 名称。
	Bucket string `json:"bucket" mapstructure:"bucket"`
	// PublicBaseURL 拼接文件公开地址的前缀。
	PublicBaseURL string `json:"public-base-url" mapstructure:"public-base-url"`
}

// NewOptions creates a new Options object with default values.
func NewOptions() *Options {
	return &Options{
		Backend:       BackendLocal,
		Root:          "_output/uploads",
		Bucket:        "rag_files",
		PublicBaseURL: "/v1/files",
	}
}

// Validate checks if the options are valid.
func (o *Options) Validate() []error {
	var errs []error
	switch o.Backend {
	case BackendLocal:
		if o.Root == "" {
			errs = append(errs, fmt.Errorf("objectstore.root is required for the local backend"))
		}
	case BackendGridFS:
		if o.Bucket == "" {
			errs = append(errs, fmt.Errorf("objectstore.bucket is required for the gridfs backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported objectstore.backend %q", o.Backend))
	}
	return errs
}

// Complete trims the trailing slash of the public URL prefix.
func (o *Options) Complete() error {
	o.PublicBaseURL = strings.TrimRight(o.PublicBaseURL, "/")
	return nil
}

// AddFlags adds flags for object storage options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "objectstore."
	fs.StringVar(&o.Backend, p+"backend", o.Backend, "Object storage backend (local|gridfs)")
	fs.StringVar(&o.Root, p+"root", o.Root, "Root directory of the local backend")
	fs.StringVar(&o.Bucket, p+"bucket", o.Bucket, "GridFS bucket name")
	fs.StringVar(&o.PublicBaseURL, p+"public-base-url", o.PublicBaseURL, "URL prefix used to build public file URLs")
}
