// Package main provides the imgdrop binary entry point.
// imgdrop opens a local window that turns dragged timeline images into
// full-size files on disk and PNG images on the clipboard.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"imgdrop/common"
	"imgdrop/config"
	"imgdrop/ingest"
	"imgdrop/saver"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "imgdrop"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type globalFlags struct {
	configPath string
	logLevel   string
}

// load reads the config file and applies the --log-level override.
func (f *globalFlags) load() (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	return cfg, nil
}

func rootCmd() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Drag timeline images into a local window to save them",
		Long: `imgdrop serves a local window on 127.0.0.1. Drag an embedded timeline
image onto it and imgdrop downloads the largest variant, shows a thumbnail
and asks where to save it. Clicking a thumbnail copies it to the clipboard
as PNG.

Only images hosted on pbs.twimg.com are accepted.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), flags)
		},
	}

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Open the drop window (default)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return serve(cmd.Context(), flags)
			},
		},
		&cobra.Command{
			Use:   "resolve <fragment.html|->",
			Short: "Print the full-size URL and file name for a dragged fragment",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return resolve(cmd, flags, args[0])
			},
		},
		&cobra.Command{
			Use:   "fetch <fragment.html|->",
			Short: "Download the image of a dragged fragment into the save folder",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return fetch(cmd, flags, args[0])
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
			},
		},
	)

	return cmd
}

func serve(parent context.Context, flags *globalFlags) error {
	cfg, err := flags.load()
	if err != nil {
		return err
	}
	logger := common.NewLogger(cfg.Log.Level, cfg.Log.Format)

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := NewApp(cfg, logger, nil)
	if err != nil {
		return err
	}

	logger.Info("imgdrop ready", "version", Version, "window", "http://"+cfg.Addr(), "save_dir", cfg.Save.Dir)
	return app.Run(ctx)
}

func resolve(cmd *cobra.Command, flags *globalFlags, source string) error {
	cfg, err := flags.load()
	if err != nil {
		return err
	}

	payload, err := readFragment(cmd.InOrStdin(), source)
	if err != nil {
		return err
	}

	pipeline, err := cliPipeline(cfg, nil)
	if err != nil {
		return err
	}

	result := pipeline.Resolve(payload)
	if result.Outcome != ingest.OutcomeAccepted {
		return common.New(common.KindRejected, "cli.resolve", fmt.Sprintf("fragment ignored: %s", result.Outcome))
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, result.CanonicalURL)
	fmt.Fprintln(out, ingest.SuggestedFilename(result.CanonicalURL))
	return nil
}

func fetch(cmd *cobra.Command, flags *globalFlags, source string) error {
	cfg, err := flags.load()
	if err != nil {
		return err
	}
	logger := common.NewLoggerTo(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)

	payload, err := readFragment(cmd.InOrStdin(), source)
	if err != nil {
		return err
	}

	pipeline, err := cliPipeline(cfg, logger)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	result, err := pipeline.Ingest(ctx, payload)
	if err != nil {
		return err
	}

	switch result.Outcome {
	case ingest.OutcomeSaved:
		fmt.Fprintln(cmd.OutOrStdout(), result.SavedPath)
		return nil
	case ingest.OutcomeUnsupportedFormat:
		return common.New(common.KindUnsupported, "cli.fetch", "image type has no file extension")
	default:
		return common.New(common.KindRejected, "cli.fetch", fmt.Sprintf("fragment ignored: %s", result.Outcome))
	}
}

// cliPipeline builds a pipeline that saves under the suggested name.
func cliPipeline(cfg *config.Config, logger *slog.Logger) (*ingest.Pipeline, error) {
	return ingest.NewPipeline(ingest.Options{
		Fetcher: ingest.NewHTTPFetcher(cfg.Fetch.Timeout, cfg.Fetch.UserAgent, cfg.Fetch.MaxBytes),
		Prompt:  saver.NewAutoPrompt(saver.NewDiskSaver(cfg.Save.Dir)),
		Logger:  logger,
	})
}

// readFragment reads an HTML fragment from a file, or stdin when source is "-".
func readFragment(stdin io.Reader, source string) (ingest.DragPayload, error) {
	var (
		data []byte
		err  error
	)
	if source == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(source)
	}
	if err != nil {
		return ingest.DragPayload{}, common.Wrap(common.KindStorage, "cli.read", fmt.Sprintf("read fragment %s", source), err)
	}
	return ingest.HTMLPayload(strings.TrimSpace(string(data))), nil
}
