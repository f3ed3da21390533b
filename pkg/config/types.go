package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config represents the persistent keepsake configuration stored as config.toml
// in the .keepsake/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Storage     StorageConfig     `toml:"storage"`
	VectorStore VectorStoreConfig `toml:"vector_store"`
	Embedding   EmbeddingConfig   `toml:"embedding"`
	LLM         LLMConfig         `toml:"llm"`
	Memory      MemoryConfig      `toml:"memory"`
	Events      EventsConfig      `toml:"events"`
	API         APIConfig         `toml:"api"`
	Client      ClientConfig      `toml:"client"`
}

// StorageConfig selects and configures the fact store.
type StorageConfig struct {
	Provider    string `toml:"provider,omitempty"`
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// VectorStoreConfig holds vector store settings.
type VectorStoreConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Collection string `toml:"collection,omitempty"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Model      string `toml:"model,omitempty"`
	Dimensions uint   `toml:"dimensions,omitempty"`
	APIKey     string `toml:"api_key,omitempty"`
}

// LLMConfig holds the fact extraction model settings.
type LLMConfig struct {
	Provider string `toml:"provider,omitempty"`
	Model    string `toml:"model,omitempty"`
	BaseURL  string `toml:"base_url,omitempty"`
	APIKey   string `toml:"api_key,omitempty"`
}

// MemoryConfig holds memory engine settings.
type MemoryConfig struct {
	Enabled            bool   `toml:"enabled"`
	JournalDir         string `toml:"journal_dir,omitempty"`
	SnapshotPath       string `toml:"snapshot_path,omitempty"`
	MaxIngestQueue     uint   `toml:"max_ingest_queue,omitempty"`
	ArchiveKeep        uint   `toml:"archive_keep,omitempty"`
	MaxFactsPerMessage uint   `toml:"max_facts_per_message,omitempty"`
	SnapshotDebounce   string `toml:"snapshot_debounce,omitempty"`
}

// Debounce returns the parsed snapshot debounce, or zero when unset or invalid.
func (m MemoryConfig) Debounce() time.Duration {
	d, err := time.ParseDuration(m.SnapshotDebounce)
	if err != nil {
		return 0
	}
	return d
}

// EventsConfig selects where fact-persisted events are published.
type EventsConfig struct {
	Provider string   `toml:"provider,omitempty"`
	Brokers  []string `toml:"brokers,omitempty"`
	Topic    string   `toml:"topic,omitempty"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// ClientConfig holds settings for CLI commands that connect to a running
// keepsake API server (e.g. keepsake search, keepsake remember).
// Values are full URLs (scheme + host + port).
type ClientConfig struct {
	APITarget string `toml:"api_target,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func stringKey(field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

func uintKey(name string, field func(c *Config) *uint) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(*field(c)), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = uint(n)
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.provider":     stringKey(func(c *Config) *string { return &c.Storage.Provider }),
	"storage.sqlite_path":  stringKey(func(c *Config) *string { return &c.Storage.SQLitePath }),
	"storage.postgres_dsn": stringKey(func(c *Config) *string { return &c.Storage.PostgresDSN }),

	"vector_store.provider":   stringKey(func(c *Config) *string { return &c.VectorStore.Provider }),
	"vector_store.target":     stringKey(func(c *Config) *string { return &c.VectorStore.Target }),
	"vector_store.collection": stringKey(func(c *Config) *string { return &c.VectorStore.Collection }),

	"embedding.provider":   stringKey(func(c *Config) *string { return &c.Embedding.Provider }),
	"embedding.target":     stringKey(func(c *Config) *string { return &c.Embedding.Target }),
	"embedding.model":      stringKey(func(c *Config) *string { return &c.Embedding.Model }),
	"embedding.dimensions": uintKey("embedding.dimensions", func(c *Config) *uint { return &c.Embedding.Dimensions }),
	"embedding.api_key":    stringKey(func(c *Config) *string { return &c.Embedding.APIKey }),

	"llm.provider": stringKey(func(c *Config) *string { return &c.LLM.Provider }),
	"llm.model":    stringKey(func(c *Config) *string { return &c.LLM.Model }),
	"llm.base_url": stringKey(func(c *Config) *string { return &c.LLM.BaseURL }),
	"llm.api_key":  stringKey(func(c *Config) *string { return &c.LLM.APIKey }),

	"memory.enabled": {
		get: func(c *Config) string { return strconv.FormatBool(c.Memory.Enabled) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for memory.enabled: %w", err)
			}
			c.Memory.Enabled = b
			return nil
		},
	},
	"memory.journal_dir":           stringKey(func(c *Config) *string { return &c.Memory.JournalDir }),
	"memory.snapshot_path":         stringKey(func(c *Config) *string { return &c.Memory.SnapshotPath }),
	"memory.max_ingest_queue":      uintKey("memory.max_ingest_queue", func(c *Config) *uint { return &c.Memory.MaxIngestQueue }),
	"memory.archive_keep":          uintKey("memory.archive_keep", func(c *Config) *uint { return &c.Memory.ArchiveKeep }),
	"memory.max_facts_per_message": uintKey("memory.max_facts_per_message", func(c *Config) *uint { return &c.Memory.MaxFactsPerMessage }),
	"memory.snapshot_debounce": {
		get: func(c *Config) string { return c.Memory.SnapshotDebounce },
		set: func(c *Config, v string) error {
			if _, err := time.ParseDuration(v); err != nil {
				return fmt.Errorf("invalid value for memory.snapshot_debounce: %w", err)
			}
			c.Memory.SnapshotDebounce = v
			return nil
		},
	},

	"events.provider": stringKey(func(c *Config) *string { return &c.Events.Provider }),
	"events.brokers": {
		get: func(c *Config) string { return strings.Join(c.Events.Brokers, ",") },
		set: func(c *Config, v string) error {
			c.Events.Brokers = nil
			for b := range strings.SplitSeq(v, ",") {
				if b = strings.TrimSpace(b); b != "" {
					c.Events.Brokers = append(c.Events.Brokers, b)
				}
			}
			return nil
		},
	},
	"events.topic": stringKey(func(c *Config) *string { return &c.Events.Topic }),

	"api.listen":        stringKey(func(c *Config) *string { return &c.API.Listen }),
	"client.api_target": stringKey(func(c *Config) *string { return &c.Client.APITarget }),
}

// orderedKeys lists config keys in the TOML section layout order.
var orderedKeys = []string{
	"storage.provider",
	"storage.sqlite_path",
	"storage.postgres_dsn",
	"vector_store.provider",
	"vector_store.target",
	"vector_store.collection",
	"embedding.provider",
	"embedding.target",
	"embedding.model",
	"embedding.dimensions",
	"embedding.api_key",
	"llm.provider",
	"llm.model",
	"llm.base_url",
	"llm.api_key",
	"memory.enabled",
	"memory.journal_dir",
	"memory.snapshot_path",
	"memory.max_ingest_queue",
	"memory.archive_keep",
	"memory.max_facts_per_message",
	"memory.snapshot_debounce",
	"events.provider",
	"events.brokers",
	"events.topic",
	"api.listen",
	"client.api_target",
}
