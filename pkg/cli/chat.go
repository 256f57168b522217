package cli

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-dialoggen/pkg/config"
	"github.com/ekaya-inc/ekaya-dialoggen/pkg/dataset"
	"github.com/ekaya-inc/ekaya-dialoggen/pkg/models"
	"github.com/ekaya-inc/ekaya-dialoggen/pkg/scenarios"
)

type chatOptions struct {
	scenario string
	turns    int
	seed     uint64
	output   string
}

func newChatCmd(root *rootOptions) *cobra.Command {
	opts := &chatOptions{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Play one conversation and print it",
		Long: `Plays a single buyer/seller conversation, prints it as it happens and
saves it as a conversation file. Prompts are always recorded.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, root, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.scenario, "scenario", "s", "", "Scenario kind to play (default: random)")
	cmd.Flags().IntVar(&opts.turns, "turns", 0, "Buyer/seller exchanges (default from config)")
	cmd.Flags().Uint64Var(&opts.seed, "seed", 0, "Random seed (0 uses the clock)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Conversation file (default <output dir>/conversa.json)")

	return cmd
}

func runChat(cmd *cobra.Command, root *rootOptions, opts *chatOptions) error {
	ctx := cmd.Context()
	flags := cmd.Flags()

	cfg, err := loadConfig(root.configPath, root.version, func(c *config.Config) {
		c.Generation.RecordPrompts = true
		if flags.Changed("turns") {
			c.Generation.Turns = opts.turns
		}
		if flags.Changed("seed") {
			c.Generation.Seed = opts.seed
		}
	})
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, root.logLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	out := newPrinter(cmd.OutOrStdout())
	a, err := newApp(ctx, cfg, logger, out.turn, false)
	if err != nil {
		return err
	}
	defer a.Close()

	sel, err := pickScenario(a.catalog, opts.scenario)
	if err != nil {
		return err
	}
	out.scenario(string(sel.Kind), sel.Context, sel.Intent)

	conv := a.orchestrator.Run(ctx, sel)
	if err := ctx.Err(); err != nil {
		return err
	}
	out.rule()

	if err := dataset.CheckDegenerate(conv); err != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "warning: %v\n", err)
	}

	path := opts.output
	if path == "" {
		path = filepath.Join(cfg.Output.Dir, "conversa.json")
	}
	ex := models.NewDatasetExample(1, conv, time.Now())
	if err := dataset.WriteConversationFile(path, ex); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Conversation saved to %s\n", path)
	return nil
}

// pickScenario draws a selection, restricted to kind when one is named.
func pickScenario(catalog *scenarios.Catalog, kind string) (scenarios.Selection, error) {
	if kind == "" {
		return catalog.Select(), nil
	}
	sc, ok := catalog.Scenario(scenarios.Kind(kind))
	if !ok {
		return scenarios.Selection{}, fmt.Errorf("unknown scenario %q (known: %v)", kind, scenarios.AllKinds)
	}
	return catalog.SelectFrom(sc), nil
}
