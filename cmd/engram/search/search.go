// Package searchcmder provides the search command for semantic search over
// stored memories.
package searchcmder

import (
	"context"
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/engram/cmd/engram/bootstrap"
	"github.com/papercomputeco/engram/pkg/config"
	"github.com/papercomputeco/engram/pkg/logger"
	"github.com/papercomputeco/engram/pkg/memory"
)

var (
	rankStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true)
	scoreStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	idStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	textStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type searchCommander struct {
	query     string
	topK      int
	minScore  float32
	withGraph bool
	quiet     bool
	configDir string
	scope     memory.Scope

	debug  bool
	logger *zap.Logger
}

const searchLongDesc string = `Search memories by meaning.

Returns the memories in the scope most similar to the query, best first.
At least one scope flag (--user, --agent, --run) is required; results
never cross scopes.

With --graph, results are re-ranked using one hop of graph traversal from
entities mentioned in the top results.

Use --quiet to output only memory ids, one per line, for piping into
other commands like engram history.

Examples:
  engram search "dietary restrictions" --user alice
  engram search "deploy status" --agent deployer --top 3
  engram search "music taste" --user alice --graph
  engram history $(engram search "allergies" --user alice --quiet --top 1)`

const searchShortDesc string = "Search memories by meaning"

func NewSearchCmd() *cobra.Command {
	cmder := &searchCommander{}

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: searchShortDesc,
		Long:  searchLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.query = args[0]
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

	cmd.Flags().IntVarP(&cmder.topK, "top", "k", 10, "Number of results to return")
	cmd.Flags().Float32Var(&cmder.minScore, "min-score", 0, "Drop results scoring below this value")
	cmd.Flags().BoolVar(&cmder.withGraph, "graph", false, "Re-rank results using graph proximity")
	cmd.Flags().BoolVarP(&cmder.quiet, "quiet", "q", false, "Output only memory ids, one per line (for piping)")

	return cmd
}

func (c *searchCommander) run() error {
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

	results, err := engine.Search(ctx, c.query, c.scope, memory.SearchOptions{
		Limit:       c.topK,
		MinScore:    c.minScore,
		ExpandGraph: c.withGraph,
	})
	if err != nil {
		return err
	}

	if len(results) == 0 {
		if !c.quiet {
			fmt.Println("No results found.")
		}
		return nil
	}

	if c.quiet {
		for _, result := range results {
			fmt.Println(result.ID)
		}
		return nil
	}

	fmt.Printf("\n%s %s\n\n",
		headerStyle.Render("Memories matching:"),
		idStyle.Render(fmt.Sprintf("%q", c.query)),
	)

	for i, result := range results {
		fmt.Printf("  %s  %s  %s\n",
			rankStyle.Render(fmt.Sprintf("#%d", i+1)),
			scoreStyle.Render(fmt.Sprintf("score: %.4f", result.Score)),
			idStyle.Render(result.ID),
		)
		fmt.Printf("  %s\n", textStyle.Render(result.Text))
		fmt.Printf("  %s\n\n", dimStyle.Render("updated "+result.UpdatedAt.Format("2006-01-02 15:04:05")))
	}

	return nil
}
