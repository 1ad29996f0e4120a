// Package watcher ingests documents dropped into a knowledge-base directory.
package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/kart-io/logger"
	"github.com/spf13/afero"

	"github.com/kart-io/bhasha/internal/pkg/rag/docutil"
	"github.com/kart-io/bhasha/internal/rag/biz"
)

// Ingester imports a local file, skipping titles that already exist.
type Ingester interface {
	IngestLocalFile(ctx context.Context, path, title string) (*biz.KnowledgeBaseResult, error)
}

// Config 目录监听配置。
type Config struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Dir     string `json:"dir" mapstructure:"dir"`
	// Debounce 同一文件连续写入事件合并的等待时间。
	Debounce time.Duration `json:"debounce" mapstructure:"debounce"`
}

// DefaultConfig 返回默认配置。
func DefaultConfig() *Config {
	return &Config{
		Dir:      "data/knowledge-base",
		Debounce: time.Second,
	}
}

// Watcher 监听目录中新增或修改的 .txt/.pdf/.md 文件并导入。
type Watcher struct {
	config   *Config
	ingester Ingester

	mu       sync.Mutex
	timers   map[string]*time.Timer
	watching bool
	cancel   context.CancelFunc
	done     chan struct{}
	fsw      *fsnotify.Watcher
}

// New 创建目录监听器。
func New(config *Config, ingester Ingester) *Watcher {
	if config == nil {
		config = DefaultConfig()
	}
	return &Watcher{
		config:   config,
		ingester: ingester,
		timers:   make(map[string]*time.Timer),
	}
}

// Start 导入目录中已有的文件，然后开始监听。重复调用无效果。
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watching {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(w.config.Dir); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("watch %s: %w", w.config.Dir, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	w.fsw, w.cancel, w.done = fsw, cancel, make(chan struct{})
	w.watching = true

	w.scan(ctx)
	go w.loop(ctx)

	logger.Infow("知识库目录监听已启动", "dir", w.config.Dir)
	return nil
}

// Stop 停止监听并等待事件循环退出。
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.watching {
		w.mu.Unlock()
		return
	}
	w.watching = false
	w.cancel()
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
	done := w.done
	w.mu.Unlock()

	<-done
	logger.Info("知识库目录监听已停止")
}

// IsWatching 返回是否正在监听。
func (w *Watcher) IsWatching() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.watching
}

func (w *Watcher) scan(ctx context.Context) {
	files, err := docutil.FindFiles(afero.NewOsFs(), w.config.Dir, docutil.SupportedExtensions)
	if err != nil {
		logger.Warnw("扫描知识库目录失败", "dir", w.config.Dir, "error", err.Error())
	}
	for _, f := range files {
		w.ingest(ctx, f)
	}
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)
	defer w.fsw.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) {
				w.schedule(ctx, ev.Name)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Warnw("知识库目录监听错误", "error", err.Error())
		}
	}
}

// schedule 合并同一文件的连续事件，静默 Debounce 后导入一次。
func (w *Watcher) schedule(ctx context.Context, path string) {
	if !docutil.IsSupported(path) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.watching {
		return
	}
	if t, ok := w.timers[path]; ok {
		t.Reset(w.config.Debounce)
		return
	}
	w.timers[path] = time.AfterFunc(w.config.Debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		w.ingest(ctx, path)
	})
}

func (w *Watcher) ingest(ctx context.Context, path string) {
	if ctx.Err() != nil {
		return
	}
	res, err := w.ingester.IngestLocalFile(ctx, path, docutil.TitleFromName(path))
	if err != nil {
		logger.Errorw("导入知识库文件失败", "path", path, "error", err.Error())
		return
	}
	logger.Infow("知识库文件已处理",
		"file", filepath.Base(path),
		"status", res.Status,
		"document_id", res.DocumentID,
		"chunks", res.ChunkCount,
	)
}
