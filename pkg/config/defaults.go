package config

const (
	defaultStorageProvider = "sqlite"
	defaultVectorProvider  = "sqlitevec"
	defaultCollection      = "keepsake_facts"

	defaultOllamaTarget        = "http://localhost:11434"
	defaultEmbeddingProvider   = "ollama"
	defaultEmbeddingModel      = "embeddinggemma"
	defaultEmbeddingDimensions = 768

	defaultLLMProvider = "ollama"
	defaultLLMModel    = "llama3.2"

	defaultMaxIngestQueue     = 400
	defaultArchiveKeep        = 80
	defaultMaxFactsPerMessage = 4
	defaultSnapshotDebounce   = "1s"

	defaultEventsProvider = "nop"
	defaultEventsTopic    = "keepsake.facts"

	defaultAPIListen       = ":8082"
	defaultClientAPITarget = "http://localhost:8082"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Storage: StorageConfig{
			Provider: defaultStorageProvider,
		},
		VectorStore: VectorStoreConfig{
			Provider:   defaultVectorProvider,
			Collection: defaultCollection,
		},
		Embedding: EmbeddingConfig{
			Provider:   defaultEmbeddingProvider,
			Target:     defaultOllamaTarget,
			Model:      defaultEmbeddingModel,
			Dimensions: defaultEmbeddingDimensions,
		},
		LLM: LLMConfig{
			Provider: defaultLLMProvider,
			Model:    defaultLLMModel,
			BaseURL:  defaultOllamaTarget,
		},
		Memory: MemoryConfig{
			Enabled:            true,
			MaxIngestQueue:     defaultMaxIngestQueue,
			ArchiveKeep:        defaultArchiveKeep,
			MaxFactsPerMessage: defaultMaxFactsPerMessage,
			SnapshotDebounce:   defaultSnapshotDebounce,
		},
		Events: EventsConfig{
			Provider: defaultEventsProvider,
			Topic:    defaultEventsTopic,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		Client: ClientConfig{
			APITarget: defaultClientAPITarget,
		},
	}
}
