// Package addcmder provides the add command for ingesting conversation
// input into memory.
package addcmder

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
	"github.com/papercomputeco/engram/pkg/memory"
)

type addCommander struct {
	text      string
	metadata  map[string]string
	noInfer   bool
	configDir string
	scope     memory.Scope

	debug  bool
	logger *zap.Logger
}

const addLongDesc string = `Ingest conversation input into memory.

The input is distilled into atomic facts and each fact is reconciled
against the memories already stored in the scope: genuinely new facts are
added, refinements update existing memories, contradictions retire them,
and duplicates change nothing. Every mutation lands in the history ledger.

At least one scope flag (--user, --agent, --run) is required.

Use --no-infer to skip distillation and store the input verbatim.

Examples:
  engram add "I'm vegetarian and allergic to nuts" --user alice
  engram add "Deploy finished at 14:02" --agent deployer --run run-42
  engram add "raw note, keep as-is" --user alice --no-infer
  engram add "likes jazz" --user alice --meta source=onboarding`

const addShortDesc string = "Ingest conversation input into memory"

func NewAddCmd() *cobra.Command {
	cmder := &addCommander{}

	cmd := &cobra.Command{
		Use:   "add <text>",
		Short: addShortDesc,
		Long:  addLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.text = args[0]
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

	cmd.Flags().BoolVar(&cmder.noInfer, "no-infer", false, "Store the input verbatim without fact extraction")
	cmd.Flags().StringToStringVar(&cmder.metadata, "meta", nil, "Metadata key=value pairs attached to stored memories")

	return cmd
}

func (c *addCommander) run() error {
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

	var result *memory.AddResult
	err = cliui.Step(os.Stdout, "Consolidating memory", func() error {
		var err error
		result, err = engine.Add(ctx, c.text, c.scope, memory.AddOptions{
			Metadata:      c.metadata,
			SkipInference: c.noInfer,
		})
		return err
	})
	if err != nil {
		return err
	}

	if len(result.Results) == 0 {
		fmt.Println("\n  Nothing worth remembering in that input.")
	}

	for _, r := range result.Results {
		if r.Err != nil {
			fmt.Printf("  %s %s %s\n", cliui.FailMark, r.Event, r.Err)
			continue
		}
		fmt.Printf("  %s %-6s %s  %s\n",
			cliui.SuccessMark,
			r.Event,
			cliui.DimStyle.Render(r.ID),
			cliui.ValueStyle.Render(r.Text),
		)
	}

	for _, rel := range result.Relations {
		fmt.Printf("  %s %s -[%s]-> %s\n",
			cliui.DimStyle.Render("graph:"),
			rel.Source, rel.Relationship, rel.Target,
		)
	}

	return nil
}
