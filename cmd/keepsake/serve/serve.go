// Package servecmder provides the serve command that runs the memory engine
// behind the keepsake API server.
package servecmder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/keepsake/api"
	"github.com/papercomputeco/keepsake/cmd/keepsake/cmdutil"
	"github.com/papercomputeco/keepsake/pkg/config"
	"github.com/papercomputeco/keepsake/pkg/dotdir"
	"github.com/papercomputeco/keepsake/pkg/logger"
	"github.com/papercomputeco/keepsake/pkg/memory"
)

const shutdownTimeout = 10 * time.Second

type serveCommander struct {
	flags serveFlags

	noMCP   bool
	noWatch bool
	json    bool
	logFile string

	configDir string
	cfg       *config.Config
	logger    *slog.Logger
}

// serveFlags holds the flag targets for the ServeFlags registry. Values are
// read back through viper, so these only back the pflag definitions.
type serveFlags struct {
	listen, storage, sqlite, postgres                 string
	vectorProvider, vectorTarget                      string
	embeddingProvider, embeddingTarget, embeddingModel string
	embeddingDims                                     uint
	llmProvider, llmModel, llmBaseURL                 string
	journalDir, snapshotPath                          string
	maxIngestQueue                                    uint
	eventsProvider, eventsTopic                       string
}

var serveFlagKeys = []string{
	config.FlagAPIListen,
	config.FlagStorageProvider,
	config.FlagSQLite,
	config.FlagPostgres,
	config.FlagVectorStoreProv,
	config.FlagVectorStoreTgt,
	config.FlagEmbeddingProv,
	config.FlagEmbeddingTgt,
	config.FlagEmbeddingModel,
	config.FlagEmbeddingDims,
	config.FlagLLMProvider,
	config.FlagLLMModel,
	config.FlagLLMBaseURL,
	config.FlagJournalDir,
	config.FlagSnapshotPath,
	config.FlagMaxIngestQueue,
	config.FlagEventsProvider,
	config.FlagEventsTopic,
}

const serveLongDesc string = `Run the keepsake memory engine behind the API server.

The server ingests chat messages, extracts grounded durable facts with the
configured LLM, and answers fact searches and prompt memory slices. An MCP
endpoint is mounted at /mcp unless --no-mcp is set.

Configuration is read from .keepsake/config.toml, KEEPSAKE_* environment
variables, and the flags below, in increasing order of precedence. Changes to
config.toml are picked up while the server runs.

Examples:
  keepsake serve
  keepsake serve --listen :9000 --llm-provider openai --llm-model gpt-4o-mini
  keepsake serve --storage postgres --postgres postgres://localhost/keepsake
  keepsake serve --vector-store-provider qdrant --vector-store-target localhost:6334`

const serveShortDesc string = "Run the keepsake API server"

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			v, err := cmdutil.Viper(cmd, config.ServeFlags, serveFlagKeys...)
			if err != nil {
				return err
			}

			cmder.cfg, err = config.Load(v)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			cmder.configDir = cmdutil.ConfigDir(cmd)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			debug := cmdutil.Debug(cmd)
			cmder.logger = logger.New(
				logger.WithDebug(debug),
				logger.WithPretty(!cmder.json && logger.IsTerminal(os.Stdout)),
				logger.WithJSON(cmder.json),
			)

			if cmder.logFile != "" {
				f, err := os.OpenFile(cmder.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
				if err != nil {
					return fmt.Errorf("opening log file: %w", err)
				}
				defer f.Close()

				fileLogger := logger.New(
					logger.WithDebug(debug),
					logger.WithJSON(true),
					logger.WithWriter(f),
				)
				cmder.logger = logger.Multi(cmder.logger, fileLogger)
			}

			return cmder.run(cmd.Context())
		},
	}

	f := &cmder.flags
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagAPIListen, &f.listen)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagStorageProvider, &f.storage)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagSQLite, &f.sqlite)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagPostgres, &f.postgres)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagVectorStoreProv, &f.vectorProvider)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagVectorStoreTgt, &f.vectorTarget)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagEmbeddingProv, &f.embeddingProvider)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagEmbeddingTgt, &f.embeddingTarget)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagEmbeddingModel, &f.embeddingModel)
	config.AddUintFlag(cmd, config.ServeFlags, config.FlagEmbeddingDims, &f.embeddingDims)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagLLMProvider, &f.llmProvider)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagLLMModel, &f.llmModel)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagLLMBaseURL, &f.llmBaseURL)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagJournalDir, &f.journalDir)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagSnapshotPath, &f.snapshotPath)
	config.AddUintFlag(cmd, config.ServeFlags, config.FlagMaxIngestQueue, &f.maxIngestQueue)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagEventsProvider, &f.eventsProvider)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagEventsTopic, &f.eventsTopic)

	cmd.Flags().BoolVar(&cmder.noMCP, "no-mcp", false, "Do not mount the MCP endpoint at /mcp")
	cmd.Flags().BoolVar(&cmder.noWatch, "no-watch", false, "Do not reload config.toml while running")
	cmd.Flags().BoolVar(&cmder.json, "json", false, "Emit JSON logs")
	cmd.Flags().StringVar(&cmder.logFile, "log-file", "", "Also write JSON logs to this file")

	return cmd
}

func (c *serveCommander) run(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	layout, err := dotdir.NewManager().Layout(c.configDir)
	if err != nil {
		return fmt.Errorf("resolving keepsake dir: %w", err)
	}

	st, err := buildStack(ctx, c.cfg, layout, c.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			c.logger.Error("closing backends", "error", err)
		}
	}()

	engine, err := memory.NewEngine(engineConfig(c.cfg, layout, st, c.logger))
	if err != nil {
		return fmt.Errorf("creating memory engine: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := engine.Close(closeCtx); err != nil {
			c.logger.Error("closing memory engine", "error", err)
		}
	}()

	settings := func() memory.Settings { return c.cfg.MemorySettings() }
	if !c.noWatch {
		watcher, err := config.NewWatcher(
			filepath.Join(layout.Root, "config.toml"),
			c.cfg,
			config.WithWatcherLogger(c.logger),
		)
		if err != nil {
			return fmt.Errorf("watching config: %w", err)
		}
		defer watcher.Close()
		go watcher.Run(ctx)
		settings = watcher.Settings
	}

	server, err := api.NewServer(api.Config{
		ListenAddr: c.cfg.API.Listen,
		Settings:   settings,
		MCP:        !c.noMCP,
		Logger:     c.logger,
	}, engine)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	errChan := make(chan error, 1)
	go func() {
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		c.logger.Info("received signal, shutting down")
		return server.Shutdown()
	}
}
