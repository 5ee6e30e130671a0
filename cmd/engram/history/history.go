// Package historycmder provides the history command for inspecting a
// memory's audit ledger.
package historycmder

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/engram/cmd/engram/bootstrap"
	"github.com/papercomputeco/engram/pkg/cliui"
	"github.com/papercomputeco/engram/pkg/config"
	"github.com/papercomputeco/engram/pkg/logger"
)

type historyCommander struct {
	id        string
	configDir string

	debug  bool
	logger *zap.Logger
}

const historyLongDesc string = `Show a memory's full audit ledger, oldest entry first.

Every mutation a memory has ever undergone is recorded: the event kind,
the text before and after, when it happened and what actor applied it.

Examples:
  engram history 4f8a2c10-...`

const historyShortDesc string = "Show a memory's audit ledger"

func NewHistoryCmd() *cobra.Command {
	cmder := &historyCommander{}

	cmd := &cobra.Command{
		Use:   "history <memory-id>",
		Short: historyShortDesc,
		Long:  historyLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.id = args[0]

			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			return cmder.run()
		},
	}

	return cmd
}

func (c *historyCommander) run() error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), bootstrap.WaitTimeout)
	defer cancel()

	v, err := config.InitViper(c.configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	engine, closeAll, err := bootstrap.BuildEngine(ctx, v, c.configDir, c.logger)
	if err != nil {
		return err
	}
	defer closeAll()

	entries, err := engine.History(ctx, c.id)
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		fmt.Println("No history for this memory.")
		return nil
	}

	fmt.Printf("\n  %s %s\n\n", cliui.KeyStyle.Render("History for:"), cliui.DimStyle.Render(c.id))

	for _, entry := range entries {
		fmt.Printf("  %s  %-6s  %s\n",
			cliui.DimStyle.Render(entry.CreatedAt.Format("2006-01-02 15:04:05")),
			entry.Event,
			cliui.DimStyle.Render("by "+entry.Actor),
		)
		if entry.PrevValue != "" {
			fmt.Printf("    %s %s\n", cliui.DimStyle.Render("-"), entry.PrevValue)
		}
		if entry.NewValue != "" {
			fmt.Printf("    %s %s\n", cliui.ValueStyle.Render("+"), entry.NewValue)
		}
		fmt.Println()
	}

	return nil
}
