// Package options contains flags and options for initializing the RAG server.
package options

import (
	"fmt"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/kart-io/bhasha/internal/rag"
	cliflag "github.com/kart-io/bhasha/pkg/infra/app"
	dbopts "github.com/kart-io/bhasha/pkg/options/db"
	etcdopts "github.com/kart-io/bhasha/pkg/options/etcd"
	jwtopts "github.com/kart-io/bhasha/pkg/options/jwt"
	llmopts "github.com/kart-io/bhasha/pkg/options/llm"
	logopts "github.com/kart-io/bhasha/pkg/options/logger"
	mongoopts "github.com/kart-io/bhasha/pkg/options/mongodb"
	objectstoreopts "github.com/kart-io/bhasha/pkg/options/objectstore"
	poolopts "github.com/kart-io/bhasha/pkg/options/pool"
	ragopts "github.com/kart-io/bhasha/pkg/options/rag"
	redisopts "github.com/kart-io/bhasha/pkg/options/redis"
	httpopts "github.com/kart-io/bhasha/pkg/options/server/http"
	tracingopts "github.com/kart-io/bhasha/pkg/options/tracing"
)

// ServerOptions contains the configuration options for the server.
type ServerOptions struct {
	// HTTPOptions contains HTTP server configuration.
	HTTPOptions *httpopts.Options `json:"http" mapstructure:"http"`

	// LogOptions contains logger configuration.
	LogOptions *logopts.Options `json:"log" mapstructure:"log"`

	// DBOptions contains the relational database configuration.
	DBOptions *dbopts.Options `json:"db" mapstructure:"db"`

	// RedisOptions contains the optional Redis configuration.
	RedisOptions *redisopts.Options `json:"redis" mapstructure:"redis"`

	// MongoDBOptions is only used by the gridfs object store.
	MongoDBOptions *mongoopts.Options `json:"mongodb" mapstructure:"mongodb"`

	// EtcdOptions contains service registration configuration.
	EtcdOptions *etcdopts.Options `json:"etcd" mapstructure:"etcd"`

	// JWTOptions contains token verification configuration.
	JWTOptions *jwtopts.Options `json:"jwt" mapstructure:"jwt"`

	// ObjectStoreOptions contains uploaded-file storage configuration.
	ObjectStoreOptions *objectstoreopts.Options `json:"objectstore" mapstructure:"objectstore"`

	// EmbeddingOptions contains embedding provider configuration.
	EmbeddingOptions *llmopts.ProviderOptions `json:"embedding" mapstructure:"embedding"`

	// ChatOptions contains chat provider configuration.
	ChatOptions *llmopts.ProviderOptions `json:"chat" mapstructure:"chat"`

	// EmbeddingCacheOptions contains the Redis embedding cache configuration.
	EmbeddingCacheOptions *llmopts.CacheOptions `json:"embedding-cache" mapstructure:"embedding-cache"`

	// RAGOptions contains RAG-specific configuration.
	RAGOptions *ragopts.Options `json:"rag" mapstructure:"rag"`

	// TracingOptions contains OpenTelemetry configuration.
	TracingOptions *tracingopts.Options `json:"tracing" mapstructure:"tracing"`

	// PoolOptions contains worker pool configuration.
	PoolOptions *poolopts.Options `json:"pool" mapstructure:"pool"`
}

// NewServerOptions creates a ServerOptions instance with default values.
func NewServerOptions() *ServerOptions {
	tracingOpts := tracingopts.NewOptions()
	tracingOpts.ServiceName = rag.Name

	return &ServerOptions{
		HTTPOptions:           httpopts.NewOptions(),
		LogOptions:            logopts.NewOptions(),
		DBOptions:             dbopts.NewOptions(),
		RedisOptions:          redisopts.NewOptions(),
		MongoDBOptions:        mongoopts.NewOptions(),
		EtcdOptions:           etcdopts.NewOptions(),
		JWTOptions:            jwtopts.NewOptions(),
		ObjectStoreOptions:    objectstoreopts.NewOptions(),
		EmbeddingOptions:      llmopts.NewEmbeddingOptions(),
		ChatOptions:           llmopts.NewChatOptions(),
		EmbeddingCacheOptions: llmopts.NewCacheOptions(),
		RAGOptions:            ragopts.NewOptions(),
		TracingOptions:        tracingOpts,
		PoolOptions:           poolopts.NewOptions(),
	}
}

// Flags returns flags for a specific server by section name.
func (o *ServerOptions) Flags() (fss cliflag.NamedFlagSets) {
	o.HTTPOptions.AddFlags(fss.FlagSet("http"))
	o.LogOptions.AddFlags(fss.FlagSet("log"))
	o.DBOptions.AddFlags(fss.FlagSet("db"))
	o.RedisOptions.AddFlags(fss.FlagSet("redis"))
	o.MongoDBOptions.AddFlags(fss.FlagSet("mongodb"))
	o.EtcdOptions.AddFlags(fss.FlagSet("etcd"))
	o.JWTOptions.AddFlags(fss.FlagSet("jwt"))
	o.ObjectStoreOptions.AddFlags(fss.FlagSet("objectstore"))
	o.EmbeddingOptions.AddFlags(fss.FlagSet("embedding"))
	o.ChatOptions.AddFlags(fss.FlagSet("chat"))
	o.EmbeddingCacheOptions.AddFlags(fss.FlagSet("embedding"))
	o.RAGOptions.AddFlags(fss.FlagSet("rag"))
	o.TracingOptions.AddFlags(fss.FlagSet("tracing"))
	o.PoolOptions.AddFlags(fss.FlagSet("pool"))

	return fss
}

// Complete completes all the required options.
func (o *ServerOptions) Complete() error {
	completers := []struct {
		name string
		fn   func() error
	}{
		{"http", o.HTTPOptions.Complete},
		{"log", o.LogOptions.Complete},
		{"db", o.DBOptions.Complete},
		{"redis", o.RedisOptions.Complete},
		{"mongodb", o.MongoDBOptions.Complete},
		{"etcd", o.EtcdOptions.Complete},
		{"jwt", o.JWTOptions.Complete},
		{"objectstore", o.ObjectStoreOptions.Complete},
		{"embedding", o.EmbeddingOptions.Complete},
		{"chat", o.ChatOptions.Complete},
		{"rag", o.RAGOptions.Complete},
		{"tracing", o.TracingOptions.Complete},
	}
	for _, c := range completers {
		if err := c.fn(); err != nil {
			return fmt.Errorf("%s: %w", c.name, err)
		}
	}

	// 向量缓存依赖 Redis
	if !o.RedisOptions.Enabled {
		o.EmbeddingCacheOptions.Enabled = false
		o.RAGOptions.RateLimit.UseRedis = false
	}
	return nil
}

// Validate checks whether the options in ServerOptions are valid.
func (o *ServerOptions) Validate() error {
	errs := []error{}

	errs = append(errs, o.HTTPOptions.Validate()...)
	errs = append(errs, o.LogOptions.Validate()...)
	errs = append(errs, o.DBOptions.Validate()...)
	errs = append(errs, o.RedisOptions.Validate()...)
	errs = append(errs, o.EtcdOptions.Validate()...)
	errs = append(errs, o.JWTOptions.Validate()...)
	errs = append(errs, o.ObjectStoreOptions.Validate()...)
	errs = append(errs, o.EmbeddingOptions.Validate()...)
	errs = append(errs, o.ChatOptions.Validate()...)
	errs = append(errs, o.EmbeddingCacheOptions.Validate()...)
	errs = append(errs, o.RAGOptions.Validate()...)
	errs = append(errs, o.TracingOptions.Validate()...)
	errs = append(errs, o.PoolOptions.Validate()...)

	// MongoDB 只服务于 gridfs 文件存储
	if o.ObjectStoreOptions.Backend == objectstoreopts.BackendGridFS {
		errs = append(errs, o.MongoDBOptions.Validate()...)
	}

	return utilerrors.NewAggregate(errs)
}

// Config builds a rag.Config based on ServerOptions.
func (o *ServerOptions) Config() (*rag.Config, error) {
	return &rag.Config{
		HTTPOptions:           o.HTTPOptions,
		LogOptions:            o.LogOptions,
		DBOptions:             o.DBOptions,
		RedisOptions:          o.RedisOptions,
		MongoDBOptions:        o.MongoDBOptions,
		EtcdOptions:           o.EtcdOptions,
		JWTOptions:            o.JWTOptions,
		ObjectStoreOptions:    o.ObjectStoreOptions,
		EmbeddingOptions:      o.EmbeddingOptions,
		ChatOptions:           o.ChatOptions,
		EmbeddingCacheOptions: o.EmbeddingCacheOptions,
		RAGOptions:            o.RAGOptions,
		TracingOptions:        o.TracingOptions,
		PoolOptions:           o.PoolOptions,
	}, nil
}
