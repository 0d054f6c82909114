package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"sheetsync/internal/config"
	"sheetsync/internal/dify"
	"sheetsync/internal/orchestrator"
	"sheetsync/internal/server"
	"sheetsync/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

type globalFlags struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "sheetsync",
		Short:         "Classify spreadsheet rows and send schedule notifications",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", "", "YAML config file (env SHEETSYNC_* overrides it)")
	root.AddCommand(newRunCmd(g), newWatchCmd(g), newServeCmd(g), newDumpCmd(g), newImportCmd(g))
	return root
}

func load(g *globalFlags) (config.Runtime, *slog.Logger, error) {
	cfg, err := config.LoadRuntime(g.configPath)
	if err != nil {
		return config.Runtime{}, nil, err
	}
	logger, err := newLogger(cfg.Log, os.Stderr)
	if err != nil {
		return config.Runtime{}, nil, err
	}
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func newLogger(lc config.LogConfig, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(lc.Level)); err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(lc.Format) {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("log.format %q: want text or json", lc.Format)
	}
}

func openApp(g *globalFlags, validate bool) (*orchestrator.App, config.Runtime, *slog.Logger, error) {
	cfg, logger, err := load(g)
	if err != nil {
		return nil, cfg, nil, err
	}
	if validate {
		if err := cfg.Validate(); err != nil {
			return nil, cfg, nil, fmt.Errorf("invalid config: %w", err)
		}
	}
	app, err := orchestrator.New(cfg, logger)
	if err != nil {
		return nil, cfg, nil, err
	}
	return app, cfg, logger, nil
}

func newRunCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run one sync pass",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, _, logger, err := openApp(g, true)
			if err != nil {
				return err
			}
			defer app.Close()
			sum, err := app.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			logger.Info("sync complete", "run_id", sum.RunID, "classified", sum.Classified,
				"deleted", len(sum.Reconcile.Deleted), "reminders", sum.Reminders)
			return nil
		},
	}
}

func newWatchCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Run sync passes on the configured cron schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, cfg, logger, err := openApp(g, true)
			if err != nil {
				return err
			}
			defer app.Close()
			if cfg.Metrics.Addr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.Handler())
				srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error("metrics server stopped", "error", err)
					}
				}()
				defer shutdown(srv)
			}
			err = app.Watch(cmd.Context(), cfg.Schedule)
			if errors.Is(err, context.Canceled) {
				logger.Info("watch stopped")
				return nil
			}
			return err
		},
	}
}

func newServeCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the classifier endpoint backed by a Dify app",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := load(g)
			if err != nil {
				return err
			}
			if err := cfg.ValidateServe(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			asker := dify.NewClient(cfg.Dify.BaseURL, cfg.Dify.APIKey, &http.Client{Timeout: 2 * cfg.HTTP.Timeout})
			srv := &http.Server{
				Addr:              cfg.Server.Addr,
				Handler:           server.New(asker, cfg.Location(), logger).Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()
			logger.Info("serving", "addr", cfg.Server.Addr)
			select {
			case err := <-errCh:
				return err
			case <-cmd.Context().Done():
				shutdown(srv)
				return nil
			}
		},
	}
}

func shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}

func pickTable(app *orchestrator.App, which string) (store.Table, error) {
	switch which {
	case "live":
		return app.Live(), nil
	case "cache":
		return app.Cache(), nil
	default:
		return nil, fmt.Errorf("unknown table %q: want live or cache", which)
	}
}

func newDumpCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "dump live|cache",
		Short: "Write a table snapshot to stdout as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, _, _, err := openApp(g, false)
			if err != nil {
				return err
			}
			defer app.Close()
			table, err := pickTable(app, args[0])
			if err != nil {
				return err
			}
			snap, err := table.Snapshot(cmd.Context())
			if err != nil {
				return err
			}
			return store.EncodeYAML(cmd.OutOrStdout(), snap)
		},
	}
}

func newImportCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "import live|cache FILE",
		Short: "Replace a table with the YAML snapshot in FILE",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, _, logger, err := openApp(g, false)
			if err != nil {
				return err
			}
			defer app.Close()
			table, err := pickTable(app, args[0])
			if err != nil {
				return err
			}
			f, err := os.Open(args[1])
			if err != nil {
				return err
			}
			defer f.Close()
			snap, err := store.DecodeYAML(f)
			if err != nil {
				return fmt.Errorf("%s: %w", args[1], err)
			}
			if err := table.Replace(cmd.Context(), snap); err != nil {
				return err
			}
			logger.Info("imported", "table", args[0], "rows", len(snap.Rows))
			return nil
		},
	}
}
