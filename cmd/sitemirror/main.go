// Command sitemirror mirrors a bounded slice of a website to local
// storage, resumably and in parallel.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/site-mirror/sitemirror/internal/config"
	"github.com/site-mirror/sitemirror/internal/logger"
	"github.com/site-mirror/sitemirror/internal/orchestrate"
	"github.com/site-mirror/sitemirror/internal/report"
	"github.com/site-mirror/sitemirror/internal/storage"
)

var (
	configPath string
	logLevel   string
	logJSON    bool
)

func main() {
	root := &cobra.Command{
		Use:           "sitemirror",
		Short:         "Resumable parallel website mirror",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config/config.yml", "path to the YAML configuration file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&logJSON, "log-json", false, "emit JSON logs")

	root.AddCommand(crawlCmd(), resetCmd(), exportCmd(), reportCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func setup() (*config.Config, *zap.Logger, error) {
	log, err := logger.New(logger.Config{Level: logLevel, JSON: logJSON})
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func crawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Start or resume the crawl described by the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			orch, err := orchestrate.New(cfg, log)
			if err != nil {
				return err
			}
			defer orch.Close()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigCh
				log.Info("interrupt received, finishing in-flight pages")
				cancel()
			}()

			if err := orch.Run(ctx); err != nil && err != context.Canceled {
				return err
			}
			return nil
		},
	}
}

func resetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Reset all crawl progress, keeping the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			store, err := storage.Open(cfg.Files.DatabaseFile)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.ResetProgress(); err != nil {
				return err
			}
			log.Info("crawl progress reset", zap.String("database", cfg.Files.DatabaseFile))
			return nil
		},
	}
}

func exportCmd() *cobra.Command {
	var status, format, outPath string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export discovered URLs by status to csv, xlsx or json",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			store, err := storage.Open(cfg.Files.DatabaseFile)
			if err != nil {
				return err
			}
			defer store.Close()

			if outPath == "" {
				outPath = fmt.Sprintf("urls_%s.%s", status, format)
			}
			if err := report.ExportURLsByStatus(store, status, report.ExportFormat(format), outPath); err != nil {
				return err
			}
			log.Info("export written", zap.String("path", outPath))
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", storage.StatusFailed, "URL status to export (pending, downloading, completed, failed)")
	cmd.Flags().StringVar(&format, "format", "csv", "export format (csv, xlsx, json)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output file path")
	return cmd
}

func reportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Print a summary report of the crawl database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			store, err := storage.Open(cfg.Files.DatabaseFile)
			if err != nil {
				return err
			}
			defer store.Close()

			return report.Summary(store, cfg.Files.DatabaseFile, os.Stdout)
		},
	}
}
