// Package bootstrap assembles a memory engine from resolved configuration.
// Every engram subcommand that touches the store goes through BuildEngine
// so providers, paths and policy knobs are wired identically everywhere.
package bootstrap

import (
	"context"
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/papercomputeco/engram/pkg/dotdir"
	embeddingutils "github.com/papercomputeco/engram/pkg/embeddings/utils"
	"github.com/papercomputeco/engram/pkg/eventstream"
	kafkastream "github.com/papercomputeco/engram/pkg/eventstream/kafka"
	"github.com/papercomputeco/engram/pkg/graph"
	graphutils "github.com/papercomputeco/engram/pkg/graph/utils"
	historysqlite "github.com/papercomputeco/engram/pkg/history/sqlite"
	"github.com/papercomputeco/engram/pkg/llm"
	"github.com/papercomputeco/engram/pkg/memory"
	vectorutils "github.com/papercomputeco/engram/pkg/vector/utils"
)

// BuildEngine constructs the engine and everything it depends on from the
// viper configuration. The returned closer releases all stores; call it
// when the command finishes.
func BuildEngine(ctx context.Context, v *viper.Viper, configDir string, logger *zap.Logger) (*memory.Engine, func(), error) {
	dataDir, err := dotdir.NewManager().Ensure(configDir)
	if err != nil {
		return nil, nil, fmt.Errorf("resolving data directory: %w", err)
	}

	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	llmCall, err := llm.NewCaller(llm.Config{
		Provider: v.GetString("llm.provider"),
		Model:    v.GetString("llm.model"),
		BaseURL:  v.GetString("llm.target"),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("creating llm caller: %w", err)
	}

	embedder, err := embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{
		ProviderType: v.GetString("embedding.provider"),
		TargetURL:    v.GetString("embedding.target"),
		Model:        v.GetString("embedding.model"),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("creating embedder: %w", err)
	}
	closers = append(closers, func() { _ = embedder.Close() })

	// The qdrant provider reads its host and port out of the same target
	// key the sqlite provider uses for its database path.
	vectorProvider := v.GetString("vector_store.provider")
	vectorTarget := v.GetString("vector_store.target")
	host, port := "", 0
	if vectorProvider == "qdrant" {
		host, port = splitHostPort(vectorTarget)
	} else {
		vectorTarget = resolveDBPath(dataDir, vectorTarget)
	}

	vectors, err := vectorutils.NewVectorDriver(ctx, &vectorutils.NewVectorDriverOpts{
		ProviderType: vectorProvider,
		Target:       vectorTarget,
		Host:         host,
		Port:         port,
		APIKey:       v.GetString("vector_store.api_key"),
		Collection:   v.GetString("vector_store.collection"),
		Dimensions:   v.GetUint("embedding.dimensions"),
		Logger:       logger,
	})
	if err != nil {
		closeAll()
		return nil, nil, fmt.Errorf("creating vector driver: %w", err)
	}
	closers = append(closers, func() { _ = vectors.Close() })

	ledger, err := historysqlite.NewStore(historysqlite.Config{
		DBPath: resolveDBPath(dataDir, v.GetString("history.sqlite_path")),
	}, logger)
	if err != nil {
		closeAll()
		return nil, nil, fmt.Errorf("creating history ledger: %w", err)
	}
	closers = append(closers, func() { _ = ledger.Close() })

	var graphStore graph.Store
	if provider := v.GetString("graph_store.provider"); provider != "" {
		graphStore, err = graphutils.NewGraphStore(ctx, &graphutils.NewGraphStoreOpts{
			ProviderType: provider,
			Target:       resolveDBPath(dataDir, v.GetString("graph_store.target")),
			Username:     v.GetString("graph_store.username"),
			Password:     v.GetString("graph_store.password"),
			Logger:       logger,
		})
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("creating graph store: %w", err)
		}
		closers = append(closers, func() { _ = graphStore.Close() })
	}

	var events eventstream.Publisher
	if v.GetString("events.provider") == "kafka" {
		events, err = kafkastream.NewPublisher(kafkastream.Config{
			Brokers: v.GetStringSlice("events.brokers"),
			Topic:   v.GetString("events.topic"),
		}, logger)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("creating event publisher: %w", err)
		}
		closers = append(closers, func() { _ = events.Close() })
	}

	engine, err := memory.New(memory.Options{
		Embedder:   embedder,
		LLM:        llmCall,
		Vectors:    vectors,
		History:    ledger,
		GraphStore: graphStore,
		Events:     events,
		Logger:     logger,
		Policy: memory.Policy{
			TopK:            v.GetInt("memory.top_k"),
			Threshold:       float32(v.GetFloat64("memory.threshold")),
			HardDelete:      v.GetBool("memory.hard_delete"),
			AuditNoop:       v.GetBool("memory.audit_noop"),
			ConflictRetries: v.GetInt("memory.conflict_retries"),
			SweepGrace:      v.GetDuration("memory.sweep_grace"),
		},
	})
	if err != nil {
		closeAll()
		return nil, nil, fmt.Errorf("assembling engine: %w", err)
	}

	return engine, closeAll, nil
}

// splitHostPort parses "host:port", defaulting to localhost:6334 parts
// when either side is missing.
func splitHostPort(target string) (string, int) {
	host, portStr, err := net.SplitHostPort(target)
	if err != nil {
		if target != "" {
			return target, 6334
		}
		return "localhost", 6334
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		port = 6334
	}
	if host == "" {
		host = "localhost"
	}
	return host, port
}

// resolveDBPath keeps relative database paths inside the .engram/ data
// directory; absolute paths and in-memory databases pass through.
func resolveDBPath(dataDir, path string) string {
	if path == "" || path == ":memory:" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dataDir, path)
}

// WaitTimeout is the default per-command deadline for store and model
// calls made by CLI commands.
const WaitTimeout = 2 * time.Minute

// ScopeFromCmd reads the persistent --user, --agent and --run flags into a
// memory scope.
func ScopeFromCmd(cmd *cobra.Command) memory.Scope {
	user, _ := cmd.Flags().GetString("user")
	agent, _ := cmd.Flags().GetString("agent")
	run, _ := cmd.Flags().GetString("run")
	return memory.Scope{UserID: user, AgentID: agent, RunID: run}
}
