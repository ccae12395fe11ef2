package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"cell-tracker/internal/conf"
	"cell-tracker/internal/version"
)

// run executes the command tree in a scratch working directory.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)

	var out, errOut bytes.Buffer
	cmd := RootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, version.Version)
}

func TestConfigReflectsFlags(t *testing.T) {
	out, err := run(t, "config", "--root", "/data/exp", "--workers", "3", "--debug")
	require.NoError(t, err)

	var s conf.Settings
	require.NoError(t, yaml.Unmarshal([]byte(out), &s))
	assert.Equal(t, "/data/exp", s.Root)
	assert.Equal(t, 3, s.Workers)
	assert.Equal(t, "debug", s.Log.Level)
	assert.Equal(t, 128, s.Normalize.CropSize)
}

func TestConfigEnvironment(t *testing.T) {
	t.Setenv("CELLTRACK_NORMALIZE_CROP_SIZE", "64")
	out, err := run(t, "config")
	require.NoError(t, err)
	assert.Contains(t, out, "crop_size: 64")
}

func TestInvalidSettingsFail(t *testing.T) {
	_, err := run(t, "config", "--workers", "-1")
	assert.Error(t, err)
}

func TestTrajectoryOnEmptyTree(t *testing.T) {
	root := t.TempDir()
	logFile := filepath.Join(t.TempDir(), "run.log")
	metricsFile := filepath.Join(t.TempDir(), "celltrack.prom")
	t.Setenv("CELLTRACK_METRICS_TEXTFILE", metricsFile)

	_, err := run(t, "trajectory", "--root", root, "--log-file", logFile)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(root, "image_data_with_upward_angles.csv"))
	require.NoError(t, err)
	assert.Equal(t, "experiment,species,pool_ID,file_name,seq_number,seq_frame,object_number,object_area,centroid_x,centroid_y,file_path,angle\n", string(data))

	logged, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(logged), "stage complete")

	prom, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), `celltrack_rows_written_total{file="image_data_with_upward_angles.csv"} 0`)
}

func TestSummaryWithoutDisplacementTable(t *testing.T) {
	_, err := run(t, "summary", "--root", t.TempDir(), "--bins", "4")
	assert.Error(t, err)
}

func TestFailedStageStillWritesMetrics(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "run.log")
	metricsFile := filepath.Join(t.TempDir(), "celltrack.prom")
	t.Setenv("CELLTRACK_METRICS_TEXTFILE", metricsFile)

	_, err := run(t, "summary", "--root", t.TempDir(), "--log-file", logFile)
	require.Error(t, err)

	assert.FileExists(t, metricsFile)
	logged, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(logged), "stage failed")
}

func TestFocusRejectsBadPercentile(t *testing.T) {
	_, err := run(t, "focus", "--root", t.TempDir(), "--percentile", "120")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "focus.percentile")
}

func TestFocusOnEmptyTree(t *testing.T) {
	root := t.TempDir()
	_, err := run(t, "focus", "--root", root, "--percentile", "90")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(root, "focus_measures.csv"))
	require.NoError(t, err)
	assert.Equal(t, "experiment,species,pool_ID,recording,position,focus_measure,sharp,kept\n", string(data))
}
