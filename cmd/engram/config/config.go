// Package configcmder provides the config command for managing persistent
// engram configuration stored in the .engram/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent engram configuration.

Configuration is stored as config.toml in the .engram/ directory and
provides default values for command flags. CLI flags always take
precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  llm.provider, llm.target, llm.model,
  embedding.provider, embedding.target, embedding.model, embedding.dimensions,
  vector_store.provider, vector_store.target, vector_store.collection,
  graph_store.provider, graph_store.target,
  history.sqlite_path,
  memory.top_k, memory.threshold, memory.hard_delete, memory.audit_noop

Use subcommands to get, set, or list configuration values:
  engram config set <key> <value>    Set a configuration value
  engram config get <key>            Get a configuration value
  engram config list                 List all configuration values

Examples:
  engram config set llm.provider anthropic
  engram config set embedding.model nomic-embed-text
  engram config get vector_store.provider
  engram config list`

const configShortDesc string = "Manage persistent engram configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}
