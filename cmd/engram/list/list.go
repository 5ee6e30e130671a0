// Package listcmder provides the list command for enumerating a scope's
// memories.
package listcmder

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/engram/cmd/engram/bootstrap"
	"github.com/papercomputeco/engram/pkg/cliui"
	"github.com/papercomputeco/engram/pkg/config"
	"github.com/papercomputeco/engram/pkg/logger"
	"github.com/papercomputeco/engram/pkg/memory"
)

type listCommander struct {
	configDir string
	scope     memory.Scope
	deleted   bool

	debug  bool
	logger *zap.Logger
}

const listLongDesc string = `List all active memories in a scope.

At least one scope flag (--user, --agent, --run) is required. Pass
--deleted to include soft-deleted memories alongside the active ones.

Examples:
  engram list --user alice
  engram list --user alice --deleted
  engram list --agent deployer --run run-42`

const listShortDesc string = "List all memories in a scope"

func NewListCmd() *cobra.Command {
	cmder := &listCommander{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: listShortDesc,
		Long:  listLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.scope = bootstrap.ScopeFromCmd(cmd)

			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			return cmder.run()
		},
	}

	cmd.Flags().BoolVar(&cmder.deleted, "deleted", false, "Include soft-deleted memories")

	return cmd
}

func (c *listCommander) run() error {
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

	memories, err := engine.GetAll(ctx, c.scope, memory.ListOptions{IncludeDeleted: c.deleted})
	if err != nil {
		return err
	}

	if len(memories) == 0 {
		fmt.Println("No memories in this scope.")
		return nil
	}

	for _, m := range memories {
		fmt.Printf("  %s  %s\n",
			cliui.KeyStyle.Render(m.ID),
			cliui.ValueStyle.Render(m.Text),
		)
		detail := "created " + m.CreatedAt.Format("2006-01-02 15:04:05")
		if m.Deleted {
			detail += "  (deleted)"
		}
		fmt.Printf("  %s\n\n", cliui.DimStyle.Render(detail))
	}

	return nil
}
