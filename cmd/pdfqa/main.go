// Package main is the pdfqa CLI entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/pdfqa/internal/cli"
	"github.com/hyperjump/pdfqa/internal/config"
	"github.com/hyperjump/pdfqa/internal/models"
	"github.com/hyperjump/pdfqa/internal/rag"
	"github.com/hyperjump/pdfqa/internal/server"
	"github.com/hyperjump/pdfqa/internal/watcher"
	"github.com/hyperjump/pdfqa/pkg/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/pdfqa/config.yaml"

var (
	configPath string
	debugFlag  bool
	serverURL  string
	jsonOutput bool
)

// loadConfig loads config from path. When path is the default, config.yaml in the current
// directory wins if it exists. Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// persistForCLI switches an in-memory registry to a sqlite file next to the upload directory,
// so documents ingested by one invocation are visible to the next.
func persistForCLI(cfg *config.Config) {
	if cfg.Storage.Type == "memory" {
		cfg.Storage.Type = "sqlite"
		cfg.Storage.DSN = filepath.Join(filepath.Dir(filepath.Clean(cfg.Storage.UploadDir)), "pdfqa.db")
	} else if cfg.Storage.Type == "sqlite" && cfg.Storage.DSN == ":memory:" {
		cfg.Storage.DSN = filepath.Join(filepath.Dir(filepath.Clean(cfg.Storage.UploadDir)), "pdfqa.db")
	}
}

func outputFormat() cli.OutputFormat {
	if jsonOutput {
		return cli.OutputJSON
	}
	return cli.OutputText
}

func main() {
	root := &cobra.Command{
		Use:           "pdfqa",
		Short:         "Ask questions about uploaded PDFs",
		Long:          "pdfqa ingests PDFs (with a vision fallback for scanned pages), indexes them and answers questions grounded in their content.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "config file path")
	root.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging")

	root.AddCommand(serveCmd())
	root.AddCommand(ingestCmd())
	root.AddCommand(askCmd())
	root.AddCommand(documentsCmd())
	root.AddCommand(historyCmd())
	root.AddCommand(versionCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads config and builds a logger. The logger must be synced by the caller.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	debugMode := cfg.Debug || debugFlag
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logger.Debug("config loaded", zap.String("config_path", resolved), zap.Bool("debug", debugMode))
	cfg.Debug = debugMode
	return cfg, logger, nil
}

// direct builds the in-process pipeline for one-shot commands.
func direct(ctx context.Context) (*Components, *zap.Logger, error) {
	cfg, logger, err := setup()
	if err != nil {
		return nil, nil, err
	}
	persistForCLI(cfg)
	if cfg.Vector.Type == "memory" {
		logger.Warn("vector store is in memory; chunks ingested now are gone when the command exits")
	}
	comps, err := initializeComponents(ctx, cfg, logger, cfg.Debug)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, err
	}
	return comps, logger, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx := cmd.Context()
			comps, err := initializeComponents(ctx, cfg, logger, cfg.Debug)
			if err != nil {
				return err
			}
			defer comps.Close()

			if cfg.Watcher.Enabled {
				w := watcher.NewWatcher(cfg.Watcher.Inbox, comps.Service,
					watcher.WithDebounce(cfg.Watcher.Debounce),
					watcher.WithLogger(logger))
				if err := w.Start(ctx); err != nil {
					return fmt.Errorf("failed to start watcher: %w", err)
				}
				defer w.Stop()
				go w.SyncExisting(ctx)
			}

			srv := server.NewServer(comps.Service, &cfg.Server, logger)
			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server failed: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			logger.Info("Shutting down...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Stop(shutdownCtx)
		},
	}
}

func ingestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <file.pdf|directory>...",
		Short: "Ingest PDF files or every PDF under a directory",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var results []*models.UploadResult
			if serverURL != "" {
				client := cli.NewClient(serverURL, 10*time.Minute)
				paths, err := expandPDFs(args)
				if err != nil {
					return err
				}
				for _, p := range paths {
					res, err := client.Upload(ctx, p)
					if err != nil {
						return fmt.Errorf("%s: %w", p, err)
					}
					results = append(results, res)
				}
				return cli.WriteUploadResults(cmd.OutOrStdout(), results, outputFormat())
			}

			comps, logger, err := direct(ctx)
			if err != nil {
				return err
			}
			defer logger.Sync()
			defer comps.Close()
			for _, arg := range args {
				info, err := os.Stat(arg)
				if err != nil {
					return err
				}
				if info.IsDir() {
					rs, err := comps.Service.IngestDirectory(ctx, arg)
					results = append(results, rs...)
					if err != nil {
						_ = cli.WriteUploadResults(cmd.OutOrStdout(), results, outputFormat())
						return err
					}
					continue
				}
				res, err := comps.Service.IngestFile(ctx, arg)
				if err != nil {
					_ = cli.WriteUploadResults(cmd.OutOrStdout(), results, outputFormat())
					return fmt.Errorf("%s: %w", arg, err)
				}
				results = append(results, res)
			}
			return cli.WriteUploadResults(cmd.OutOrStdout(), results, outputFormat())
		},
	}
	addClientFlags(cmd)
	return cmd
}

// expandPDFs replaces each directory argument by the PDFs below it.
func expandPDFs(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && rag.IsPDF(path) {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return paths, nil
}

func askCmd() *cobra.Command {
	var stream bool
	cmd := &cobra.Command{
		Use:   "ask <doc-id> <question>",
		Short: "Ask a question about an ingested document",
		Long:  "Ask a question about an ingested document. The question is all remaining arguments joined by spaces.",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			docID, question := args[0], strings.Join(args[1:], " ")
			out := cmd.OutOrStdout()

			var asker interface {
				Ask(ctx context.Context, docID, question string) (*models.AskResult, error)
				AskStream(ctx context.Context, docID, question string) (<-chan string, error)
			}
			if serverURL != "" {
				asker = cli.NewClient(serverURL, 5*time.Minute)
			} else {
				comps, logger, err := direct(ctx)
				if err != nil {
					return err
				}
				defer logger.Sync()
				defer comps.Close()
				asker = comps.Service
			}

			if !stream || jsonOutput {
				res, err := asker.Ask(ctx, docID, question)
				if err != nil {
					return err
				}
				return cli.WriteAnswer(out, res, outputFormat())
			}
			fragments, err := asker.AskStream(ctx, docID, question)
			if err != nil {
				return err
			}
			md, err := cli.StreamAnswer(out, fragments)
			fmt.Fprintln(out)
			if err != nil {
				return err
			}
			fmt.Fprintln(out)
			cli.WriteMetadata(out, *md)
			return nil
		},
	}
	cmd.Flags().BoolVar(&stream, "stream", false, "print the answer as it is generated")
	addClientFlags(cmd)
	return cmd
}

func documentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "documents",
		Short: "List ingested documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var docs []*models.Document
			var err error
			if serverURL != "" {
				docs, err = cli.NewClient(serverURL, 30*time.Second).Documents(ctx)
			} else {
				comps, logger, derr := direct(ctx)
				if derr != nil {
					return derr
				}
				defer logger.Sync()
				defer comps.Close()
				docs, err = comps.Service.Documents(ctx)
			}
			if err != nil {
				return err
			}
			return cli.WriteDocuments(cmd.OutOrStdout(), docs, outputFormat())
		},
	}
	addClientFlags(cmd)
	return cmd
}

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <doc-id>",
		Short: "Show the questions asked about a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var turns []models.ChatTurn
			var err error
			if serverURL != "" {
				turns, err = cli.NewClient(serverURL, 30*time.Second).History(ctx, args[0])
			} else {
				comps, logger, derr := direct(ctx)
				if derr != nil {
					return derr
				}
				defer logger.Sync()
				defer comps.Close()
				turns, err = comps.Service.History(ctx, args[0])
			}
			if err != nil {
				return err
			}
			return cli.WriteHistory(cmd.OutOrStdout(), turns, outputFormat())
		},
	}
	addClientFlags(cmd)
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pdfqa version %s\n", version)
		},
	}
}

func addClientFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&serverURL, "server", "", "server URL (e.g. http://localhost:8080); empty runs in-process")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print JSON")
}
