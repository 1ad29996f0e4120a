// Package app builds the bhasha-rag command.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kart-io/bhasha/cmd/rag/app/options"
	"github.com/kart-io/bhasha/internal/rag"
	"github.com/kart-io/bhasha/pkg/infra/app"
)

const commandDesc = `Bhasha RAG Service

Answers Bengali, English and mixed questions from an uploaded document corpus.

Documents (.txt, .pdf, .md) are split into language-tagged chunks and embedded.
A question retrieves the most similar chunks of its own language; when none is
similar enough the model answers from general knowledge instead. Conversations
keep a short rolling memory, and every answer can be scored and rated.`

// NewApp returns the bhasha-rag application.
func NewApp() *app.App {
	opts := options.NewServerOptions()
	return app.NewApp(
		app.WithName(rag.Name),
		app.WithShortDescription("Bilingual retrieval-augmented question answering"),
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithRunFunc(func() error { return run(opts) }),
	)
}

func run(opts *options.ServerOptions) error {
	cfg, err := opts.Config()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 第一次信号触发优雅关闭，停止监听后第二次信号按默认行为直接退出。
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		stop()
	}()
	defer stop()

	srv, err := cfg.NewServer(ctx)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}
	return srv.Run(ctx)
}
