package servecmder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/papercomputeco/keepsake/pkg/config"
	"github.com/papercomputeco/keepsake/pkg/dotdir"
	embeddingutils "github.com/papercomputeco/keepsake/pkg/embeddings/utils"
	"github.com/papercomputeco/keepsake/pkg/eventstream"
	"github.com/papercomputeco/keepsake/pkg/eventstream/kafka"
	"github.com/papercomputeco/keepsake/pkg/eventstream/nop"
	"github.com/papercomputeco/keepsake/pkg/journal"
	"github.com/papercomputeco/keepsake/pkg/llm"
	"github.com/papercomputeco/keepsake/pkg/memory"
	"github.com/papercomputeco/keepsake/pkg/storage"
	"github.com/papercomputeco/keepsake/pkg/storage/inmemory"
	"github.com/papercomputeco/keepsake/pkg/storage/postgres"
	"github.com/papercomputeco/keepsake/pkg/storage/sqlite"
	"github.com/papercomputeco/keepsake/pkg/vector"
	vectorinmemory "github.com/papercomputeco/keepsake/pkg/vector/inmemory"
	"github.com/papercomputeco/keepsake/pkg/vector/qdrant"
	"github.com/papercomputeco/keepsake/pkg/vector/sqlitevec"
)

// stack is every collaborator the memory engine is built from.
type stack struct {
	store      storage.Driver
	vectors    vector.Driver
	embeddings memory.EmbeddingProvider
	extractor  memory.Extractor
	journal    memory.Journal
	publisher  eventstream.Publisher

	closers []func() error
}

// buildStack opens every configured backend. Paths left empty fall back to
// files inside layout. On error, anything already opened is closed.
func buildStack(ctx context.Context, cfg *config.Config, layout dotdir.Layout, log *slog.Logger) (s *stack, err error) {
	s = &stack{}
	defer func() {
		if err != nil {
			_ = s.Close()
			s = nil
		}
	}()

	if s.store, err = newStore(ctx, cfg.Storage, layout, log); err != nil {
		return nil, err
	}
	s.closers = append(s.closers, s.store.Close)

	if s.vectors, err = newVectors(ctx, cfg, layout, log); err != nil {
		return nil, err
	}
	if s.vectors != nil {
		s.closers = append(s.closers, s.vectors.Close)
	}

	if s.embeddings, err = newEmbeddings(cfg.Embedding, s, log); err != nil {
		return nil, err
	}

	if s.extractor, err = newExtractor(cfg.LLM, log); err != nil {
		return nil, err
	}

	if cfg.Memory.JournalDir != "none" {
		dir := dotdir.Or(cfg.Memory.JournalDir, layout.JournalDir())
		s.journal = journal.New(dir)
		log.Info("journaling messages", "dir", dir)
	}

	if s.publisher, err = newPublisher(cfg.Events, log); err != nil {
		return nil, err
	}
	s.closers = append(s.closers, s.publisher.Close)

	return s, nil
}

// Close releases every backend in reverse order of opening.
func (s *stack) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

func newStore(ctx context.Context, c config.StorageConfig, layout dotdir.Layout, log *slog.Logger) (storage.Driver, error) {
	switch strings.ToLower(c.Provider) {
	case "memory", "inmemory":
		log.Warn("using in-memory storage, facts are lost on exit")
		return inmemory.NewDriver(), nil

	case "postgres":
		if c.PostgresDSN == "" {
			return nil, errors.New("storage.postgres_dsn is required for the postgres provider")
		}
		driver, err := postgres.NewDriver(ctx, c.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL storer: %w", err)
		}
		log.Info("using PostgreSQL storage")
		return driver, nil

	case "sqlite", "":
		path := dotdir.Or(c.SQLitePath, layout.SQLitePath())
		driver, err := sqlite.NewSQLiteDriver(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite storer: %w", err)
		}
		log.Info("using SQLite storage", "path", path)
		return driver, nil

	default:
		return nil, fmt.Errorf("unsupported storage provider: %s", c.Provider)
	}
}

func newVectors(ctx context.Context, cfg *config.Config, layout dotdir.Layout, log *slog.Logger) (vector.Driver, error) {
	c := cfg.VectorStore
	switch strings.ToLower(c.Provider) {
	case "none", "":
		log.Info("semantic ranking disabled, no vector store configured")
		return nil, nil

	case "memory", "inmemory":
		return vectorinmemory.NewDriver(), nil

	case "qdrant":
		driver, err := qdrant.NewDriver(ctx, qdrant.Config{
			Target:     c.Target,
			Collection: c.Collection,
			Dimensions: cfg.Embedding.Dimensions,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create qdrant vector store: %w", err)
		}
		log.Info("using qdrant vector store", "target", c.Target)
		return driver, nil

	case "sqlitevec", "sqlite-vec":
		path := dotdir.Or(c.Target, layout.VectorPath())
		driver, err := sqlitevec.NewSQLiteVecDriver(sqlitevec.Config{
			DBPath:     path,
			Dimensions: cfg.Embedding.Dimensions,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create sqlite-vec vector store: %w", err)
		}
		log.Info("using sqlite-vec vector store", "path", path)
		return driver, nil

	default:
		return nil, fmt.Errorf("unsupported vector store provider: %s", c.Provider)
	}
}

func newEmbeddings(c config.EmbeddingConfig, s *stack, log *slog.Logger) (memory.EmbeddingProvider, error) {
	if s.vectors == nil {
		return nil, nil
	}

	switch strings.ToLower(c.Provider) {
	case "none", "":
		log.Info("semantic ranking disabled, no embedding provider configured")
		return nil, nil
	}

	embedder, err := embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{
		ProviderType: strings.ToLower(c.Provider),
		TargetURL:    c.Target,
		Model:        c.Model,
		APIKey:       c.APIKey,
		Dimensions:   int(c.Dimensions),
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}
	s.closers = append(s.closers, embedder.Close)

	log.Info("using embeddings", "provider", c.Provider, "model", embedder.Model())
	return memory.NewEmbedderProvider(embedder), nil
}

func newExtractor(c config.LLMConfig, log *slog.Logger) (memory.Extractor, error) {
	if strings.EqualFold(c.Provider, "none") {
		log.Info("fact extraction disabled")
		return nil, nil
	}

	call, err := llm.NewCaller(llm.CallerConfig{
		Provider: c.Provider,
		Model:    c.Model,
		APIKey:   c.APIKey,
		BaseURL:  c.BaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("creating fact extraction caller: %w", err)
	}

	log.Info("using fact extraction", "provider", c.Provider, "model", c.Model)
	return llm.NewFactExtractor(call, log), nil
}

func newPublisher(c config.EventsConfig, log *slog.Logger) (eventstream.Publisher, error) {
	switch strings.ToLower(c.Provider) {
	case "nop", "none", "":
		return nop.NewPublisher(), nil

	case "kafka":
		p, err := kafka.NewPublisher(kafka.Config{
			Brokers: c.Brokers,
			Topic:   c.Topic,
		})
		if err != nil {
			return nil, fmt.Errorf("creating kafka publisher: %w", err)
		}
		log.Info("publishing fact events", "brokers", c.Brokers, "topic", c.Topic)
		return p, nil

	default:
		return nil, fmt.Errorf("unsupported events provider: %s", c.Provider)
	}
}

// engineConfig maps the memory section onto the engine configuration.
func engineConfig(cfg *config.Config, layout dotdir.Layout, s *stack, log *slog.Logger) *memory.Config {
	snapshot := cfg.Memory.SnapshotPath
	switch snapshot {
	case "none":
		snapshot = ""
	case "":
		snapshot = layout.SnapshotPath()
	}

	return &memory.Config{
		Store:              s.store,
		Vectors:            s.vectors,
		Embeddings:         s.embeddings,
		Extractor:          s.extractor,
		Journal:            s.journal,
		Publisher:          s.publisher,
		SnapshotPath:       snapshot,
		MaxIngestQueue:     int(cfg.Memory.MaxIngestQueue),
		ArchiveKeep:        int(cfg.Memory.ArchiveKeep),
		MaxFactsPerMessage: int(cfg.Memory.MaxFactsPerMessage),
		SnapshotDebounce:   cfg.Memory.Debounce(),
		Logger:             log,
	}
}
