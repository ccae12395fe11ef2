// Package conf loads pipeline settings from defaults, an optional YAML file,
// CELLTRACK_* environment variables and command-line flags, in increasing
// order of precedence.
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	errors "cell-tracker/internal/errors"
)

// Settings is the complete pipeline configuration.
type Settings struct {
	Root    string `mapstructure:"root" yaml:"root"`       // experiments tree
	Workers int    `mapstructure:"workers" yaml:"workers"` // parallel sequences; 0 = NumCPU
	Debug   bool   `mapstructure:"debug" yaml:"debug"`

	Log          LogSettings          `mapstructure:"log" yaml:"log"`
	Metrics      MetricsSettings      `mapstructure:"metrics" yaml:"metrics"`
	Detection    DetectionSettings    `mapstructure:"detection" yaml:"detection"`
	Focus        FocusSettings        `mapstructure:"focus" yaml:"focus"`
	Trajectory   TrajectorySettings   `mapstructure:"trajectory" yaml:"trajectory"`
	Normalize    NormalizeSettings    `mapstructure:"normalize" yaml:"normalize"`
	Displacement DisplacementSettings `mapstructure:"displacement" yaml:"displacement"`
	Summary      SummarySettings      `mapstructure:"summary" yaml:"summary"`
}

// LogSettings controls logging output.
type LogSettings struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file"` // appended to on every run; empty disables
}

// MetricsSettings controls the Prometheus textfile written at the end of a run.
type MetricsSettings struct {
	Textfile string `mapstructure:"textfile" yaml:"textfile"`
}

// DetectionSettings configures contour extraction.
type DetectionSettings struct {
	MinArea   float64 `mapstructure:"min_area" yaml:"min_area"`   // contours with area <= MinArea are dropped
	Threshold float64 `mapstructure:"threshold" yaml:"threshold"` // pixels > Threshold are foreground
}

// FocusSettings configures the sharp-frame filter that cuts raw recordings
// into the sequences the trajectory stage reads.
type FocusSettings struct {
	InputDir     string  `mapstructure:"input_dir" yaml:"input_dir"`   // raw recordings under each experiment
	Percentile   float64 `mapstructure:"percentile" yaml:"percentile"` // frames sharper than this percentile are kept
	ExcludeStart int     `mapstructure:"exclude_start" yaml:"exclude_start"`
	ExcludeEnd   int     `mapstructure:"exclude_end" yaml:"exclude_end"`
	Adjacent     int     `mapstructure:"adjacent" yaml:"adjacent"` // neighbours kept on each side of a sharp frame
	Output       string  `mapstructure:"output" yaml:"output"`
}

// TrajectorySettings configures the per-object table and motion angle.
type TrajectorySettings struct {
	InputDir      string `mapstructure:"input_dir" yaml:"input_dir"` // stage directory under each experiment
	AnchorFrame   int    `mapstructure:"anchor_frame" yaml:"anchor_frame"`
	CompareOffset int    `mapstructure:"compare_offset" yaml:"compare_offset"`
	Output        string `mapstructure:"output" yaml:"output"`
}

// NormalizeSettings configures rotation, recentring and cropping.
type NormalizeSettings struct {
	OutputDir      string  `mapstructure:"output_dir" yaml:"output_dir"`
	CropSize       int     `mapstructure:"crop_size" yaml:"crop_size"`
	ReferenceAngle float64 `mapstructure:"reference_angle" yaml:"reference_angle"` // canonical direction in degrees
}

// DisplacementSettings configures tracking and the displacement table.
type DisplacementSettings struct {
	RequireStableCount bool   `mapstructure:"require_stable_count" yaml:"require_stable_count"`
	Output             string `mapstructure:"output" yaml:"output"`
}

// SummarySettings configures the per-track aggregation chain.
type SummarySettings struct {
	AllowedExperiments []string `mapstructure:"allowed_experiments" yaml:"allowed_experiments"`
	Bins               int      `mapstructure:"bins" yaml:"bins"`
	Seed               int64    `mapstructure:"seed" yaml:"seed"`
}

// Load reads settings into a fresh viper instance. configFile may be empty,
// in which case celltrack.yaml is searched for in the working directory and
// $HOME/.config/celltrack; a missing file is not an error.
func Load(v *viper.Viper, configFile string) (*Settings, error) {
	SetDefaults(v)

	v.SetEnvPrefix("CELLTRACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("celltrack")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "celltrack"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, errors.Wrap(errors.CategoryConfiguration, configFile, fmt.Errorf("error reading config file: %w", err))
		}
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.Wrap(errors.CategoryConfiguration, "", fmt.Errorf("error unmarshaling config: %w", err))
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

// Validate checks value ranges.
func (s *Settings) Validate() error {
	var problems []string
	if s.Root == "" {
		problems = append(problems, "root must be set")
	}
	if s.Workers < 0 {
		problems = append(problems, fmt.Sprintf("workers must be >= 0, got %d", s.Workers))
	}
	if s.Detection.MinArea < 0 {
		problems = append(problems, fmt.Sprintf("detection.min_area must be >= 0, got %g", s.Detection.MinArea))
	}
	if s.Detection.Threshold < 0 {
		problems = append(problems, fmt.Sprintf("detection.threshold must be >= 0, got %g", s.Detection.Threshold))
	}
	if s.Focus.Percentile < 0 || s.Focus.Percentile > 100 {
		problems = append(problems, fmt.Sprintf("focus.percentile must be within [0, 100], got %g", s.Focus.Percentile))
	}
	if s.Focus.ExcludeStart < 0 || s.Focus.ExcludeEnd < 0 {
		problems = append(problems, fmt.Sprintf("focus.exclude_start and focus.exclude_end must be >= 0, got %d and %d",
			s.Focus.ExcludeStart, s.Focus.ExcludeEnd))
	}
	if s.Focus.Adjacent < 0 {
		problems = append(problems, fmt.Sprintf("focus.adjacent must be >= 0, got %d", s.Focus.Adjacent))
	}
	if s.Trajectory.AnchorFrame < 0 {
		problems = append(problems, fmt.Sprintf("trajectory.anchor_frame must be >= 0, got %d", s.Trajectory.AnchorFrame))
	}
	if s.Trajectory.CompareOffset < 1 {
		problems = append(problems, fmt.Sprintf("trajectory.compare_offset must be >= 1, got %d", s.Trajectory.CompareOffset))
	}
	if s.Normalize.CropSize < 1 {
		problems = append(problems, fmt.Sprintf("normalize.crop_size must be >= 1, got %d", s.Normalize.CropSize))
	}
	if s.Summary.Bins < 1 {
		problems = append(problems, fmt.Sprintf("summary.bins must be >= 1, got %d", s.Summary.Bins))
	}
	if len(problems) > 0 {
		return errors.New(errors.CategoryConfiguration, "", "invalid settings: %s", strings.Join(problems, "; "))
	}
	return nil
}

// YAML renders the settings as a config file body.
func (s *Settings) YAML() ([]byte, error) {
	out, err := yaml.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("error marshaling settings: %w", err)
	}
	return out, nil
}

// ExperimentPath joins parts under the configured root.
func (s *Settings) ExperimentPath(parts ...string) string {
	return filepath.Join(append([]string{s.Root}, parts...)...)
}
