package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/papercomputeco/keepsake/pkg/dotdir"
)

// EnvPrefix prefixes every environment variable keepsake reads.
const EnvPrefix = "KEEPSAKE"

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the KEEPSAKE_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (KEEPSAKE_API_LISTEN, KEEPSAKE_LLM_MODEL, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	setViperDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// Load materializes the merged viper state into a Config.
func Load(v *viper.Viper) (*Config, error) {
	cfg := NewDefaultConfig()
	err := v.Unmarshal(cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "toml"
	})
	if err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return cfg, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Storage
	v.SetDefault("storage.provider", d.Storage.Provider)
	v.SetDefault("storage.sqlite_path", d.Storage.SQLitePath)
	v.SetDefault("storage.postgres_dsn", d.Storage.PostgresDSN)

	// Vector store
	v.SetDefault("vector_store.provider", d.VectorStore.Provider)
	v.SetDefault("vector_store.target", d.VectorStore.Target)
	v.SetDefault("vector_store.collection", d.VectorStore.Collection)

	// Embedding
	v.SetDefault("embedding.provider", d.Embedding.Provider)
	v.SetDefault("embedding.target", d.Embedding.Target)
	v.SetDefault("embedding.model", d.Embedding.Model)
	v.SetDefault("embedding.dimensions", d.Embedding.Dimensions)
	v.SetDefault("embedding.api_key", d.Embedding.APIKey)

	// LLM
	v.SetDefault("llm.provider", d.LLM.Provider)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.base_url", d.LLM.BaseURL)
	v.SetDefault("llm.api_key", d.LLM.APIKey)

	// Memory
	v.SetDefault("memory.enabled", d.Memory.Enabled)
	v.SetDefault("memory.journal_dir", d.Memory.JournalDir)
	v.SetDefault("memory.snapshot_path", d.Memory.SnapshotPath)
	v.SetDefault("memory.max_ingest_queue", d.Memory.MaxIngestQueue)
	v.SetDefault("memory.archive_keep", d.Memory.ArchiveKeep)
	v.SetDefault("memory.max_facts_per_message", d.Memory.MaxFactsPerMessage)
	v.SetDefault("memory.snapshot_debounce", d.Memory.SnapshotDebounce)

	// Events
	v.SetDefault("events.provider", d.Events.Provider)
	v.SetDefault("events.brokers", d.Events.Brokers)
	v.SetDefault("events.topic", d.Events.Topic)

	// API
	v.SetDefault("api.listen", d.API.Listen)

	// Client
	v.SetDefault("client.api_target", d.Client.APITarget)
}
