package main

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"imgdrop/clipboard"
	"imgdrop/common"
	"imgdrop/config"
	"imgdrop/inbox"
	"imgdrop/ingest"
	"imgdrop/metrics"
	"imgdrop/saver"
	"imgdrop/window"
)

// App wires the window, the inbox and the pipeline they share.
type App struct {
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
	pipeline *ingest.Pipeline
	server   *window.Server
	inbox    *inbox.Watcher
}

// NewApp builds every component from cfg. A nil writer means the system
// clipboard, unless clipboard support is disabled.
func NewApp(cfg *config.Config, logger *slog.Logger, writer clipboard.Writer) (*App, error) {
	if logger == nil {
		logger = common.DiscardLogger()
	}
	m := metrics.New()
	disk := saver.NewDiskSaver(cfg.Save.Dir)

	var (
		prompt  ingest.SavePrompt
		prompts *window.PromptBroker
	)
	if cfg.Save.AutoAccept {
		prompt = saver.NewAutoPrompt(disk)
	} else {
		prompts = window.NewPromptBroker(disk, logger)
		prompt = prompts
	}

	pipeline, err := ingest.NewPipeline(ingest.Options{
		Fetcher:  ingest.NewHTTPFetcher(cfg.Fetch.Timeout, cfg.Fetch.UserAgent, cfg.Fetch.MaxBytes),
		Prompt:   prompt,
		Logger:   logger,
		Recorder: m,
	})
	if err != nil {
		return nil, err
	}

	if writer == nil && cfg.Clipboard.Enabled {
		writer = clipboard.NewSystem()
	}

	server, err := window.NewServer(window.Options{
		Config:   cfg,
		Pipeline: pipeline,
		Prompts:  prompts,
		Copier:   clipboard.NewCopier(writer, logger, m),
		Metrics:  m,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	app := &App{
		cfg:      cfg,
		logger:   logger,
		metrics:  m,
		pipeline: pipeline,
		server:   server,
	}

	if cfg.Inbox.Enabled {
		app.inbox, err = inbox.NewWatcher(cfg.Inbox.Dir, pipeline, logger)
		if err != nil {
			return nil, err
		}
	}

	return app, nil
}

// Run serves the window and watches the inbox until ctx is done or one of
// them fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.server.Start(ctx)
	})

	if a.inbox != nil {
		g.Go(func() error {
			return a.inbox.Run(ctx)
		})
		g.Go(func() error {
			for event := range a.inbox.Events() {
				a.logger.Debug("inbox event", "file", event.FilePath, "outcome", event.Result.Outcome)
			}
			return nil
		})
	}

	err := g.Wait()
	a.logger.Info("imgdrop stopped")
	return err
}
