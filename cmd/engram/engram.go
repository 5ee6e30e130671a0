// Package engramcmder
package engramcmder

import (
	"github.com/spf13/cobra"

	addcmder "github.com/papercomputeco/engram/cmd/engram/add"
	configcmder "github.com/papercomputeco/engram/cmd/engram/config"
	deletecmder "github.com/papercomputeco/engram/cmd/engram/delete"
	historycmder "github.com/papercomputeco/engram/cmd/engram/history"
	listcmder "github.com/papercomputeco/engram/cmd/engram/list"
	searchcmder "github.com/papercomputeco/engram/cmd/engram/search"
	sweepcmder "github.com/papercomputeco/engram/cmd/engram/sweep"
	versioncmder "github.com/papercomputeco/engram/cmd/version"
)

const engramLongDesc string = `Engram is a consolidating memory layer for your agents.

Feed it conversation turns and it distills them into atomic facts,
reconciles each fact against what it already knows, and keeps a durable,
scope-partitioned memory store with a full audit ledger.

Common commands:
  engram add "I prefer tea over coffee" --user alice
  engram search "drink preferences" --user alice
  engram list --user alice
  engram history <memory-id>`

const engramShortDesc string = "Engram - Agent Memory"

func NewEngramCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "engram",
		Short: engramShortDesc,
		Long:  engramLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .engram/ config directory")
	cmd.PersistentFlags().StringP("user", "u", "", "User id scoping reads and writes")
	cmd.PersistentFlags().String("agent", "", "Agent id scoping reads and writes")
	cmd.PersistentFlags().String("run", "", "Run id scoping reads and writes")

	// Add subcommands
	cmd.AddCommand(addcmder.NewAddCmd())
	cmd.AddCommand(searchcmder.NewSearchCmd())
	cmd.AddCommand(listcmder.NewListCmd())
	cmd.AddCommand(deletecmder.NewDeleteCmd())
	cmd.AddCommand(historycmder.NewHistoryCmd())
	cmd.AddCommand(sweepcmder.NewSweepCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
