package config

import (
	"fmt"
	"strconv"
	"time"
)

// Config represents the persistent engram configuration stored as
// config.toml in the .engram/ directory. The TOML layout uses sections for
// logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	LLM         LLMConfig         `toml:"llm"`
	Embedding   EmbeddingConfig   `toml:"embedding"`
	VectorStore VectorStoreConfig `toml:"vector_store"`
	GraphStore  GraphStoreConfig  `toml:"graph_store"`
	History     HistoryConfig     `toml:"history"`
	Events      EventsConfig      `toml:"events"`
	Memory      MemoryConfig      `toml:"memory"`
}

// LLMConfig holds settings for the model used by fact extraction, the
// decision step and graph entity extraction. API keys are never stored in
// the config file; they come from the provider's environment variable.
type LLMConfig struct {
	Provider string `toml:"provider,omitempty"`
	Target   string `toml:"target,omitempty"`
	Model    string `toml:"model,omitempty"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Model      string `toml:"model,omitempty"`
	Dimensions uint   `toml:"dimensions,omitempty"`
}

// VectorStoreConfig holds vector store settings. Target is the database
// path for the sqlite provider and the host:port for qdrant.
type VectorStoreConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Collection string `toml:"collection,omitempty"`
}

// GraphStoreConfig holds graph store settings. Target is the database path
// for the sqlite provider and the bolt URI for neo4j. An empty provider
// disables the graph memory path.
type GraphStoreConfig struct {
	Provider string `toml:"provider,omitempty"`
	Target   string `toml:"target,omitempty"`
	Username string `toml:"username,omitempty"`
	Password string `toml:"password,omitempty"`
}

// HistoryConfig holds history ledger settings.
type HistoryConfig struct {
	SQLitePath string `toml:"sqlite_path,omitempty"`
}

// EventsConfig holds mutation event stream settings. An empty provider
// disables publishing.
type EventsConfig struct {
	Provider string   `toml:"provider,omitempty"`
	Brokers  []string `toml:"brokers,omitempty"`
	Topic    string   `toml:"topic,omitempty"`
}

// MemoryConfig holds consolidation policy settings. SweepGrace is a Go
// duration string such as "5m".
type MemoryConfig struct {
	TopK            uint    `toml:"top_k,omitempty"`
	Threshold       float64 `toml:"threshold,omitempty"`
	HardDelete      bool    `toml:"hard_delete,omitempty"`
	AuditNoop       bool    `toml:"audit_noop,omitempty"`
	ConflictRetries uint    `toml:"conflict_retries,omitempty"`
	SweepGrace      string  `toml:"sweep_grace,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"llm.provider": {
		get: func(c *Config) string { return c.LLM.Provider },
		set: func(c *Config, v string) error { c.LLM.Provider = v; return nil },
	},
	"llm.target": {
		get: func(c *Config) string { return c.LLM.Target },
		set: func(c *Config, v string) error { c.LLM.Target = v; return nil },
	},
	"llm.model": {
		get: func(c *Config) string { return c.LLM.Model },
		set: func(c *Config, v string) error { c.LLM.Model = v; return nil },
	},
	"embedding.provider": {
		get: func(c *Config) string { return c.Embedding.Provider },
		set: func(c *Config, v string) error { c.Embedding.Provider = v; return nil },
	},
	"embedding.target": {
		get: func(c *Config) string { return c.Embedding.Target },
		set: func(c *Config, v string) error { c.Embedding.Target = v; return nil },
	},
	"embedding.model": {
		get: func(c *Config) string { return c.Embedding.Model },
		set: func(c *Config, v string) error { c.Embedding.Model = v; return nil },
	},
	"embedding.dimensions": {
		get: func(c *Config) string {
			if c.Embedding.Dimensions == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(c.Embedding.Dimensions), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for embedding.dimensions: %w", err)
			}
			c.Embedding.Dimensions = uint(n)
			return nil
		},
	},
	"vector_store.provider": {
		get: func(c *Config) string { return c.VectorStore.Provider },
		set: func(c *Config, v string) error { c.VectorStore.Provider = v; return nil },
	},
	"vector_store.target": {
		get: func(c *Config) string { return c.VectorStore.Target },
		set: func(c *Config, v string) error { c.VectorStore.Target = v; return nil },
	},
	"vector_store.collection": {
		get: func(c *Config) string { return c.VectorStore.Collection },
		set: func(c *Config, v string) error { c.VectorStore.Collection = v; return nil },
	},
	"graph_store.provider": {
		get: func(c *Config) string { return c.GraphStore.Provider },
		set: func(c *Config, v string) error { c.GraphStore.Provider = v; return nil },
	},
	"graph_store.target": {
		get: func(c *Config) string { return c.GraphStore.Target },
		set: func(c *Config, v string) error { c.GraphStore.Target = v; return nil },
	},
	"graph_store.username": {
		get: func(c *Config) string { return c.GraphStore.Username },
		set: func(c *Config, v string) error { c.GraphStore.Username = v; return nil },
	},
	"graph_store.password": {
		get: func(c *Config) string { return c.GraphStore.Password },
		set: func(c *Config, v string) error { c.GraphStore.Password = v; return nil },
	},
	"history.sqlite_path": {
		get: func(c *Config) string { return c.History.SQLitePath },
		set: func(c *Config, v string) error { c.History.SQLitePath = v; return nil },
	},
	"events.provider": {
		get: func(c *Config) string { return c.Events.Provider },
		set: func(c *Config, v string) error { c.Events.Provider = v; return nil },
	},
	"events.topic": {
		get: func(c *Config) string { return c.Events.Topic },
		set: func(c *Config, v string) error { c.Events.Topic = v; return nil },
	},
	"memory.top_k": {
		get: func(c *Config) string {
			if c.Memory.TopK == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(c.Memory.TopK), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for memory.top_k: %w", err)
			}
			c.Memory.TopK = uint(n)
			return nil
		},
	},
	"memory.threshold": {
		get: func(c *Config) string {
			if c.Memory.Threshold == 0 {
				return ""
			}
			return strconv.FormatFloat(c.Memory.Threshold, 'f', -1, 64)
		},
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for memory.threshold: %w", err)
			}
			c.Memory.Threshold = f
			return nil
		},
	},
	"memory.hard_delete": {
		get: func(c *Config) string { return strconv.FormatBool(c.Memory.HardDelete) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for memory.hard_delete: %w", err)
			}
			c.Memory.HardDelete = b
			return nil
		},
	},
	"memory.audit_noop": {
		get: func(c *Config) string { return strconv.FormatBool(c.Memory.AuditNoop) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for memory.audit_noop: %w", err)
			}
			c.Memory.AuditNoop = b
			return nil
		},
	},
	"memory.conflict_retries": {
		get: func(c *Config) string {
			if c.Memory.ConflictRetries == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(c.Memory.ConflictRetries), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for memory.conflict_retries: %w", err)
			}
			c.Memory.ConflictRetries = uint(n)
			return nil
		},
	},
	"memory.sweep_grace": {
		get: func(c *Config) string { return c.Memory.SweepGrace },
		set: func(c *Config, v string) error {
			if _, err := time.ParseDuration(v); err != nil {
				return fmt.Errorf("invalid value for memory.sweep_grace: %w", err)
			}
			c.Memory.SweepGrace = v
			return nil
		},
	},
}
