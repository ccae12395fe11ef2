// Package cli wires the pipeline stages to cobra commands.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"cell-tracker/internal/conf"
	"cell-tracker/internal/logger"
	"cell-tracker/internal/metrics"
	"cell-tracker/internal/pipeline"
)

// env is what PersistentPreRunE prepares for the subcommands.
type env struct {
	v          *viper.Viper
	configFile string

	settings *conf.Settings
	log      *logger.SlogLogger
	metrics  *metrics.Metrics
}

// skipSetup marks commands that run without loading settings.
const skipSetup = "skip-setup"

// RootCommand creates the celltrack command tree.
func RootCommand() *cobra.Command {
	e := &env{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:          "celltrack",
		Short:        "Track swimming cells through microscopy frame sequences",
		SilenceUsage: true,
	}

	if err := setupFlags(rootCmd, e); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(
		focusCommand(e),
		stageCommand(e, pipeline.StageTrajectory, "Detect objects and write the per-object table with motion angles",
			func(p *pipeline.Pipeline) stageFunc { return p.Trajectory }),
		stageCommand(e, pipeline.StageNormalize, "Write rotated, recentred crops for every sequence with an anchor",
			func(p *pipeline.Pipeline) stageFunc { return p.Normalize }),
		displacementCommand(e),
		summaryCommand(e),
		stageCommand(e, "run", "Run every stage in order",
			func(p *pipeline.Pipeline) stageFunc { return p.All }),
		configCommand(e),
		versionCommand(),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if _, ok := cmd.Annotations[skipSetup]; ok {
			return nil
		}
		return e.initialize(cmd)
	}
	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		return e.close()
	}

	return rootCmd
}

func setupFlags(rootCmd *cobra.Command, e *env) error {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&e.configFile, "config", "c", "", "Config file (default: celltrack.yaml in . or $HOME/.config/celltrack)")
	flags.String("root", "", "Experiments directory")
	flags.Int("workers", 0, "Sequences processed in parallel (0 = number of CPUs)")
	flags.BoolP("debug", "d", false, "Enable debug output")
	flags.String("log-file", "", "Append log output to this file")

	for key, name := range map[string]string{
		"root":     "root",
		"workers":  "workers",
		"debug":    "debug",
		"log.file": "log-file",
	} {
		if err := e.v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", name, err)
		}
	}
	return nil
}

// initialize loads settings and opens the logger and metrics.
func (e *env) initialize(cmd *cobra.Command) error {
	settings, err := conf.Load(e.v, e.configFile)
	if err != nil {
		return err
	}
	if settings.Debug {
		settings.Log.Level = "debug"
	}

	log, err := logger.New(logger.Config{
		Level:    settings.Log.Level,
		Console:  cmd.ErrOrStderr(),
		FilePath: settings.Log.File,
	})
	if err != nil {
		return fmt.Errorf("failed to open log: %w", err)
	}
	m, err := metrics.New()
	if err != nil {
		log.Close()
		return err
	}

	e.settings, e.log, e.metrics = settings, log, m
	return nil
}

// close writes the metrics textfile and closes the log. Later calls are
// no-ops.
func (e *env) close() error {
	if e.settings == nil {
		return nil
	}
	err := e.metrics.WriteTextfile(e.settings.Metrics.Textfile)
	if cerr := e.log.Close(); err == nil {
		err = cerr
	}
	e.settings = nil
	return err
}

func (e *env) pipeline() *pipeline.Pipeline {
	return pipeline.New(e.settings, e.log, e.metrics)
}
