package cli

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dialoggen/pkg/config"
	"github.com/ekaya-inc/ekaya-dialoggen/pkg/dataset"
	"github.com/ekaya-inc/ekaya-dialoggen/pkg/dialog"
	"github.com/ekaya-inc/ekaya-dialoggen/pkg/retry"
)

type generateOptions struct {
	count         int
	maxAttempts   int
	turns         int
	seed          uint64
	outputDir     string
	recordPrompts bool
	verbose       bool
}

func newGenerateCmd(root *rootOptions) *cobra.Command {
	opts := &generateOptions{}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a batch of conversations and write the dataset",
		Long: `Runs buyer/seller conversations until --count valid examples are collected
or --max-attempts conversations have been played. Degenerate conversations
are discarded. Collecting fewer examples than requested is reported as a
warning, not an error.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, root, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.count, "count", "n", 0, "Number of examples to collect (default from config)")
	cmd.Flags().IntVar(&opts.maxAttempts, "max-attempts", 0, "Maximum conversations to play (default from config)")
	cmd.Flags().IntVar(&opts.turns, "turns", 0, "Buyer/seller exchanges per conversation (default from config)")
	cmd.Flags().Uint64Var(&opts.seed, "seed", 0, "Random seed for scenario draws and pacing (0 uses the clock)")
	cmd.Flags().StringVarP(&opts.outputDir, "output", "o", "", "Output directory (default from config)")
	cmd.Flags().BoolVar(&opts.recordPrompts, "record-prompts", false, "Keep every turn's prompts in the output")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Print each conversation as it is generated")

	return cmd
}

// applyGenerateFlags copies explicitly set flags over the loaded config.
func applyGenerateFlags(cmd *cobra.Command, opts *generateOptions) func(*config.Config) {
	return func(cfg *config.Config) {
		flags := cmd.Flags()
		if flags.Changed("count") {
			cfg.Batch.TargetCount = opts.count
			if !flags.Changed("max-attempts") && cfg.Batch.MaxAttempts < opts.count {
				// Keep the default 1.5x headroom when only --count is given.
				cfg.Batch.MaxAttempts = opts.count + opts.count/2
			}
		}
		if flags.Changed("max-attempts") {
			cfg.Batch.MaxAttempts = opts.maxAttempts
		}
		if flags.Changed("turns") {
			cfg.Generation.Turns = opts.turns
		}
		if flags.Changed("seed") {
			cfg.Generation.Seed = opts.seed
		}
		if flags.Changed("output") {
			cfg.Output.Dir = opts.outputDir
		}
		if flags.Changed("record-prompts") {
			cfg.Generation.RecordPrompts = opts.recordPrompts
		}
	}
}

func runGenerate(cmd *cobra.Command, root *rootOptions, opts *generateOptions) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(root.configPath, root.version, applyGenerateFlags(cmd, opts))
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, root.logLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	out := newPrinter(cmd.OutOrStdout())
	var observer dialog.TurnObserver
	if opts.verbose {
		observer = out.turn
	}

	a, err := newApp(ctx, cfg, logger, observer, true)
	if err != nil {
		return err
	}
	defer a.Close()

	sinks, err := a.sinks()
	if err != nil {
		return err
	}

	assembler := dataset.NewAssembler(a.orchestrator, a.catalog, sinks, dataset.Config{
		DelayUnit:     cfg.Batch.DelayUnit,
		MinDelayUnits: cfg.Batch.MinDelayUnits,
		MaxDelayUnits: cfg.Batch.MaxDelayUnits,
	}, a.rng, logger, dataset.WithSleeper(retry.Sleep))

	start := time.Now()
	batch, genErr := assembler.GenerateBatch(ctx, cfg.Batch.TargetCount, cfg.Batch.MaxAttempts)
	closeErr := sinks.Close()

	if batch != nil {
		out.rule()
		out.report(&batch.Report)
		hits, misses := a.client.Cache().Stats()
		fmt.Fprintf(cmd.OutOrStdout(), "  cache: %d hits, %d misses; elapsed %s\n",
			hits, misses, time.Since(start).Round(time.Second))
		if a.redis != nil {
			remoteHits, failures := a.client.Cache().RemoteStats()
			state := "shared"
			if a.client.Cache().RemoteDisabled() {
				state = color.YellowString("disabled after %d failures", failures)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "  redis: %d hits, %s\n", remoteHits, state)
		}
	}

	if genErr != nil {
		return fmt.Errorf("generate batch: %w", genErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close outputs: %w", closeErr)
	}

	logger.Info("Dataset written",
		zap.String("dir", cfg.Output.Dir),
		zap.Int("examples", batch.Report.Collected))
	return nil
}
