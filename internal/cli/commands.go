package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"cell-tracker/internal/logger"
	"cell-tracker/internal/pipeline"
	"cell-tracker/internal/version"
)

type stageFunc func(context.Context) error

func stageCommand(e *env, name, short string, pick func(*pipeline.Pipeline) stageFunc) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			// PersistentPostRunE does not run when RunE fails.
			defer func() {
				if cerr := e.close(); err == nil {
					err = cerr
				}
			}()

			err = pick(e.pipeline())(cmd.Context())
			if err != nil {
				e.log.Error("stage failed", logger.String("command", name), logger.Error(err))
			}
			return err
		},
	}
}

func focusCommand(e *env) *cobra.Command {
	cmd := stageCommand(e, pipeline.StageFocus, "Cut raw recordings into sequences of in-focus frames",
		func(p *pipeline.Pipeline) stageFunc { return p.Focus })
	cmd.Flags().Float64("percentile", 95, "Keep frames sharper than this percentile of their recording")
	cmd.Flags().Int("adjacent", 3, "Neighbouring frames kept on each side of a sharp frame")
	mustBind(e, "focus.percentile", cmd, "percentile")
	mustBind(e, "focus.adjacent", cmd, "adjacent")
	return cmd
}

func displacementCommand(e *env) *cobra.Command {
	cmd := stageCommand(e, pipeline.StageDisplacement, "Track objects through normalized sequences and write displacements",
		func(p *pipeline.Pipeline) stageFunc { return p.Displacement })
	cmd.Flags().Bool("require-stable-count", true, "Treat a change in object count between frames as a lost track")
	mustBind(e, "displacement.require_stable_count", cmd, "require-stable-count")
	return cmd
}

func summaryCommand(e *env) *cobra.Command {
	cmd := stageCommand(e, pipeline.StageSummary, "Write per-track means and a balanced, binned sample of tracks",
		func(p *pipeline.Pipeline) stageFunc { return p.Summary })
	cmd.Flags().StringSlice("allowed-experiments", nil, "Experiments to include (default: all)")
	cmd.Flags().Int("bins", 18, "Number of equal-width bins")
	cmd.Flags().Int64("seed", 1, "Random seed for sampling")
	mustBind(e, "summary.allowed_experiments", cmd, "allowed-experiments")
	mustBind(e, "summary.bins", cmd, "bins")
	mustBind(e, "summary.seed", cmd, "seed")
	return cmd
}

func mustBind(e *env, key string, cmd *cobra.Command, flag string) {
	if err := e.v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
		panic(fmt.Sprintf("error binding flag %s: %v", flag, err))
	}
}

func configCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective settings as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := e.settings.YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print version information",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipSetup: "true"},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
