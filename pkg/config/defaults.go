package config

const (
	defaultLLMProvider = "ollama"
	defaultLLMTarget   = "http://localhost:11434"
	defaultLLMModel    = "llama3.2"

	defaultEmbeddingProvider   = "ollama"
	defaultEmbeddingTarget     = "http://localhost:11434"
	defaultEmbeddingModel      = "embeddinggemma"
	defaultEmbeddingDimensions = 768

	defaultVectorProvider   = "sqlite"
	defaultVectorTarget     = "engram.db"
	defaultVectorCollection = "memories"

	defaultGraphProvider = "sqlite"
	defaultGraphTarget   = "engram.db"

	defaultHistorySQLitePath = "engram.db"

	defaultMemoryTopK            = 5
	defaultMemoryConflictRetries = 2
	defaultMemorySweepGrace      = "5m"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		LLM: LLMConfig{
			Provider: defaultLLMProvider,
			Target:   defaultLLMTarget,
			Model:    defaultLLMModel,
		},
		Embedding: EmbeddingConfig{
			Provider:   defaultEmbeddingProvider,
			Target:     defaultEmbeddingTarget,
			Model:      defaultEmbeddingModel,
			Dimensions: defaultEmbeddingDimensions,
		},
		VectorStore: VectorStoreConfig{
			Provider:   defaultVectorProvider,
			Target:     defaultVectorTarget,
			Collection: defaultVectorCollection,
		},
		GraphStore: GraphStoreConfig{
			Provider: defaultGraphProvider,
			Target:   defaultGraphTarget,
		},
		History: HistoryConfig{
			SQLitePath: defaultHistorySQLitePath,
		},
		Memory: MemoryConfig{
			TopK:            defaultMemoryTopK,
			ConflictRetries: defaultMemoryConflictRetries,
			SweepGrace:      defaultMemorySweepGrace,
		},
	}
}
