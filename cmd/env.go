package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/argus-advisory/advisor-cli/internal/blob"
	"github.com/argus-advisory/advisor-cli/internal/model"
	"github.com/argus-advisory/advisor-cli/internal/queue"
	"github.com/argus-advisory/advisor-cli/internal/store"
	"github.com/argus-advisory/advisor-cli/internal/worker"
	"github.com/argus-advisory/advisor-cli/pkg/advisor"
	anthropicpkg "github.com/argus-advisory/advisor-cli/pkg/anthropic"
	"github.com/argus-advisory/advisor-cli/pkg/notion"
)

// appEnv holds the initialized store, queue, blob storage and advisory
// clients shared by the worker/serve/run/import commands.
type appEnv struct {
	Store    store.Store
	Queue    queue.Queue
	Blobs    blob.Storage
	Advisor  advisor.Client
	Exporter worker.Exporter // nil unless Notion is configured
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv wires the configured backends. Callers should defer env.Close().
func initEnv(ctx context.Context) (*appEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	q, err := initQueue(ctx)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	blobs, err := initBlobs(ctx)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	if cfg.Anthropic.Key == "" {
		_ = st.Close()
		return nil, eris.New("ARGUS_ANTHROPIC_KEY is required")
	}
	adv := advisor.New(anthropicpkg.NewClient(cfg.Anthropic.Key), cfg.Anthropic.Advisor)

	env := &appEnv{
		Store:   st,
		Queue:   q,
		Blobs:   blobs,
		Advisor: adv,
	}

	if cfg.Notion.Token != "" && cfg.Notion.ParentPage != "" {
		env.Exporter = &notionExporter{
			client:     notion.NewClient(cfg.Notion.Token),
			parentPage: cfg.Notion.ParentPage,
		}
		zap.L().Info("notion export enabled")
	}

	return env, nil
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite", "":
		return store.NewSQLite(cfg.Store.Path)
	case "postgres":
		if cfg.Store.DatabaseURL == "" {
			return nil, eris.New("store.database_url is required for the postgres driver")
		}
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func initQueue(ctx context.Context) (queue.Queue, error) {
	switch cfg.Queue.Driver {
	case "memory", "":
		zap.L().Warn("using in-memory queue; jobs do not survive restarts")
		return queue.NewMemory(), nil
	case "sqs":
		return queue.NewSQS(ctx, cfg.Queue.SQS)
	default:
		return nil, eris.Errorf("unknown queue driver %q", cfg.Queue.Driver)
	}
}

func initBlobs(ctx context.Context) (blob.Storage, error) {
	switch cfg.Blob.Driver {
	case "fs", "":
		return blob.NewFS(cfg.Blob.Root)
	case "s3":
		return blob.NewS3(ctx, cfg.Blob.S3)
	default:
		return nil, eris.Errorf("unknown blob driver %q", cfg.Blob.Driver)
	}
}

// notionExporter adapts the notion package to the worker's Exporter.
type notionExporter struct {
	client     notion.Client
	parentPage string
}

func (e *notionExporter) Export(ctx context.Context, projectName string, report *model.AdvisoryReport) error {
	_, err := notion.ExportReport(ctx, e.client, e.parentPage, projectName, report)
	return err
}
