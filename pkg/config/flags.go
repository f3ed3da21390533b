package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline. This prevents flag drift
// when the same logical flag appears on multiple commands (e.g., --api-target
// on both "keepsake search" and "keepsake remember").
type Flag struct {
	// Name is the long flag name (e.g. "listen").
	Name string

	// Shorthand is the one-letter short flag (e.g. "l"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "api.listen").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
// Use these constants when calling AddStringFlag, AddUintFlag,
// and BindRegisteredFlags to avoid typos or drift from one command to another.
const (
	FlagAPIListen       = "api-listen"
	FlagAPITarget       = "api-target"
	FlagStorageProvider = "storage-provider"
	FlagSQLite          = "sqlite"
	FlagPostgres        = "postgres"
	FlagVectorStoreProv = "vector-store-provider"
	FlagVectorStoreTgt  = "vector-store-target"
	FlagEmbeddingProv   = "embedding-provider"
	FlagEmbeddingTgt    = "embedding-target"
	FlagEmbeddingModel  = "embedding-model"
	FlagEmbeddingDims   = "embedding-dimensions"
	FlagLLMProvider     = "llm-provider"
	FlagLLMModel        = "llm-model"
	FlagLLMBaseURL      = "llm-base-url"
	FlagJournalDir      = "journal-dir"
	FlagSnapshotPath    = "snapshot-path"
	FlagMaxIngestQueue  = "max-ingest-queue"
	FlagEventsProvider  = "events-provider"
	FlagEventsTopic     = "events-topic"
)

// ServeFlags is the flag registry shared by commands that open the memory
// engine in-process.
var ServeFlags = FlagSet{
	FlagAPIListen:       {Name: "listen", Shorthand: "l", ViperKey: "api.listen", Description: "Address for the API server to listen on"},
	FlagStorageProvider: {Name: "storage", ViperKey: "storage.provider", Description: "Fact store provider (sqlite, postgres, memory)"},
	FlagSQLite:          {Name: "sqlite", Shorthand: "s", ViperKey: "storage.sqlite_path", Description: "Path to SQLite database (default: .keepsake/keepsake.sqlite)"},
	FlagPostgres:        {Name: "postgres", ViperKey: "storage.postgres_dsn", Description: "PostgreSQL connection string"},
	FlagVectorStoreProv: {Name: "vector-store-provider", ViperKey: "vector_store.provider", Description: "Vector store provider (sqlitevec, qdrant, memory, none)"},
	FlagVectorStoreTgt:  {Name: "vector-store-target", ViperKey: "vector_store.target", Description: "Vector store target (file path or host:port)"},
	FlagEmbeddingProv:   {Name: "embedding-provider", ViperKey: "embedding.provider", Description: "Embedding provider (ollama, openai, none)"},
	FlagEmbeddingTgt:    {Name: "embedding-target", ViperKey: "embedding.target", Description: "Embedding provider URL"},
	FlagEmbeddingModel:  {Name: "embedding-model", ViperKey: "embedding.model", Description: "Embedding model name"},
	FlagEmbeddingDims:   {Name: "embedding-dimensions", ViperKey: "embedding.dimensions", Description: "Embedding vector dimensions"},
	FlagLLMProvider:     {Name: "llm-provider", ViperKey: "llm.provider", Description: "Fact extraction provider (ollama, openai, anthropic, none)"},
	FlagLLMModel:        {Name: "llm-model", ViperKey: "llm.model", Description: "Fact extraction model"},
	FlagLLMBaseURL:      {Name: "llm-base-url", ViperKey: "llm.base_url", Description: "Fact extraction provider URL"},
	FlagJournalDir:      {Name: "journal-dir", ViperKey: "memory.journal_dir", Description: "Directory for daily markdown journals"},
	FlagSnapshotPath:    {Name: "snapshot-path", ViperKey: "memory.snapshot_path", Description: "Path of the rendered MEMORY.md snapshot"},
	FlagMaxIngestQueue:  {Name: "max-ingest-queue", ViperKey: "memory.max_ingest_queue", Description: "Maximum number of queued ingest jobs"},
	FlagEventsProvider:  {Name: "events-provider", ViperKey: "events.provider", Description: "Fact event publisher (nop, kafka)"},
	FlagEventsTopic:     {Name: "events-topic", ViperKey: "events.topic", Description: "Kafka topic for fact events"},
}

// ClientFlags is the flag registry for commands that talk to a running server.
var ClientFlags = FlagSet{
	FlagAPITarget: {Name: "api-target", ViperKey: "client.api_target", Description: "Keepsake API server URL"},
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddUintFlag registers a uint flag on cmd from the given FlagSet.
func AddUintFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *uint) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultUint(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().UintVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().UintVar(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

// defaultString returns the default string value for a viper key from NewDefaultConfig.
func defaultString(viperKey string) string {
	v := viper.New()
	setViperDefaults(v)
	return v.GetString(viperKey)
}

// defaultUint returns the default uint value for a viper key from NewDefaultConfig.
func defaultUint(viperKey string) uint {
	v := viper.New()
	setViperDefaults(v)
	return v.GetUint(viperKey)
}
