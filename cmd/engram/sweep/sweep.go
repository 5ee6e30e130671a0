// Package sweepcmder provides the sweep command for finalizing memories
// stranded by a crash.
package sweepcmder

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/engram/cmd/engram/bootstrap"
	"github.com/papercomputeco/engram/pkg/cliui"
	"github.com/papercomputeco/engram/pkg/config"
	"github.com/papercomputeco/engram/pkg/logger"
)

type sweepCommander struct {
	configDir string

	debug  bool
	logger *zap.Logger
}

const sweepLongDesc string = `Finalize memories stranded mid-write.

A crash between storing a memory and activating it leaves the record in
the processing state, invisible to search. Sweep finds such records past
the grace period, repairs their ledger entries if needed and activates
them.

Run this at startup, or any time after an unclean shutdown.

Examples:
  engram sweep`

const sweepShortDesc string = "Finalize memories stranded mid-write"

func NewSweepCmd() *cobra.Command {
	cmder := &sweepCommander{}

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: sweepShortDesc,
		Long:  sweepLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
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

func (c *sweepCommander) run() error {
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

	var swept int
	err = cliui.Step(os.Stdout, "Sweeping stranded memories", func() error {
		var err error
		swept, err = engine.Sweep(ctx)
		return err
	})
	if err != nil {
		return err
	}

	if swept == 0 {
		fmt.Println("  Nothing to sweep.")
	} else {
		fmt.Printf("  Finalized %d stranded memor%s.\n", swept, plural(swept))
	}

	return nil
}

func plural(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}
