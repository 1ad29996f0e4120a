// Package pool provides worker pool options.
package pool

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/bhasha/pkg/infra/pool"
	"github.com/kart-io/bhasha/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// PoolOptions 单个池的配置。
type PoolOptions struct {
	Capacity         int           `json:"capacity" mapstructure:"capacity"`
	ExpiryDuration   time.Duration `json:"expiry-duration" mapstructure:"expiry-duration"`
	MaxBlockingTasks int           `json:"max-blocking-tasks" mapstructure:"max-blocking-tasks"`
}

// Options 三个工作池的配置。
type Options struct {
	Embedding  *PoolOptions `json:"embedding" mapstructure:"embedding"`
	Generation *PoolOptions `json:"generation" mapstructure:"generation"`
	Background *PoolOptions `json:"background" mapstructure:"background"`
}

func fromConfig(c *pool.Config) *PoolOptions {
	return &PoolOptions{
		Capacity:         c.Capacity,
		ExpiryDuration:   c.ExpiryDuration,
		MaxBlockingTasks: c.MaxBlockingTasks,
	}
}

// NewOptions creates Options with the pool package defaults.
func NewOptions() *Options {
	return &Options{
		Embedding:  fromConfig(pool.EmbeddingPoolConfig()),
		Generation: fromConfig(pool.GenerationPoolConfig()),
		Background: fromConfig(pool.BackgroundPoolConfig()),
	}
}

// AddFlags adds flags for pool options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "pool."
	for name, po := range map[string]*PoolOptions{
		"embedding":  o.Embedding,
		"generation": o.Generation,
		"background": o.Background,
	} {
		fs.IntVar(&po.Capacity, p+name+".capacity", po.Capacity, "Maximum concurrent "+name+" tasks.")
		fs.DurationVar(&po.ExpiryDuration, p+name+".expiry-duration", po.ExpiryDuration, "Idle time before a "+name+" worker exits.")
		fs.IntVar(&po.MaxBlockingTasks, p+name+".max-blocking-tasks", po.MaxBlockingTasks,
			"Tasks allowed to wait for a "+name+" worker, 0 for unlimited.")
	}
}

// Validate checks if the options are valid.
func (o *Options) Validate() []error {
	var errs []error
	for name, po := range map[string]*PoolOptions{
		"embedding":  o.Embedding,
		"generation": o.Generation,
		"background": o.Background,
	} {
		if po == nil {
			errs = append(errs, fmt.Errorf("pool.%s is required", name))
			continue
		}
		if po.Capacity <= 0 {
			errs = append(errs, fmt.Errorf("pool.%s.capacity must be positive", name))
		}
		if po.MaxBlockingTasks < 0 {
			errs = append(errs, fmt.Errorf("pool.%s.max-blocking-tasks must not be negative", name))
		}
	}
	return errs
}

// Configs converts the options into pool configs keyed by pool type.
// The background pool stays nonblocking so a full pool drops work instead of
// stalling request handlers.
func (o *Options) Configs() map[pool.Type]*pool.Config {
	background := pool.BackgroundPoolConfig()
	background.Capacity = o.Background.Capacity
	background.ExpiryDuration = o.Background.ExpiryDuration
	background.MaxBlockingTasks = o.Background.MaxBlockingTasks

	return map[pool.Type]*pool.Config{
		pool.EmbeddingPool: {
			Capacity:         o.Embedding.Capacity,
			ExpiryDuration:   o.Embedding.ExpiryDuration,
			MaxBlockingTasks: o.Embedding.MaxBlockingTasks,
		},
		pool.GenerationPool: {
			Capacity:         o.Generation.Capacity,
			ExpiryDuration:   o.Generation.ExpiryDuration,
			MaxBlockingTasks: o.Generation.MaxBlockingTasks,
		},
		pool.BackgroundPool: background,
	}
}
