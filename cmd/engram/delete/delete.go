// Package deletecmder provides the delete command for retiring memories.
package deletecmder

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

type deleteCommander struct {
	id        string
	all       bool
	configDir string
	scope     memory.Scope

	debug  bool
	logger *zap.Logger
}

const deleteLongDesc string = `Retire memories.

With a memory id, retires that single memory. With --all, retires every
memory in the scope given by --user, --agent and --run, along with the
scope's graph data.

Retired memories stay in the store as tombstones and keep their history;
set memory.hard_delete in the config to remove them physically instead.

Examples:
  engram delete 4f8a2c10-...
  engram delete --all --user alice --run run-42`

const deleteShortDesc string = "Retire memories"

func NewDeleteCmd() *cobra.Command {
	cmder := &deleteCommander{}

	cmd := &cobra.Command{
		Use:   "delete [memory-id]",
		Short: deleteShortDesc,
		Long:  deleteLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				cmder.id = args[0]
			}
			cmder.scope = bootstrap.ScopeFromCmd(cmd)

			if cmder.id == "" && !cmder.all {
				return fmt.Errorf("provide a memory id or --all")
			}
			if cmder.id != "" && cmder.all {
				return fmt.Errorf("--all cannot be combined with a memory id")
			}

			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			return cmder.run()
		},
	}

	cmd.Flags().BoolVar(&cmder.all, "all", false, "Retire every memory in the scope")

	return cmd
}

func (c *deleteCommander) run() error {
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

	if c.all {
		if err := engine.DeleteAll(ctx, c.scope); err != nil {
			return err
		}
		fmt.Printf("  %s Retired all memories in scope\n", cliui.SuccessMark)
		return nil
	}

	if err := engine.Delete(ctx, c.id); err != nil {
		return err
	}

	fmt.Printf("  %s Retired %s\n", cliui.SuccessMark, cliui.KeyStyle.Render(c.id))
	return nil
}
