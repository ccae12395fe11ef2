package conf

import "github.com/spf13/viper"

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("root", "./experiments")
	v.SetDefault("workers", 0)
	v.SetDefault("debug", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "log.txt")

	v.SetDefault("metrics.textfile", "")

	v.SetDefault("detection.min_area", 16.0)
	v.SetDefault("detection.threshold", 0.0)

	v.SetDefault("focus.input_dir", "pools_sample")
	v.SetDefault("focus.percentile", 95.0)
	v.SetDefault("focus.exclude_start", 4)
	v.SetDefault("focus.exclude_end", 4)
	v.SetDefault("focus.adjacent", 3)
	v.SetDefault("focus.output", "focus_measures.csv")

	v.SetDefault("trajectory.input_dir", "objects")
	v.SetDefault("trajectory.anchor_frame", 0)
	v.SetDefault("trajectory.compare_offset", 3)
	v.SetDefault("trajectory.output", "image_data_with_upward_angles.csv")

	v.SetDefault("normalize.output_dir", "final_transformed_images")
	v.SetDefault("normalize.crop_size", 128)
	v.SetDefault("normalize.reference_angle", -90.0)

	v.SetDefault("displacement.require_stable_count", true)
	v.SetDefault("displacement.output", "centroids_displacements.csv")

	v.SetDefault("summary.allowed_experiments", []string{})
	v.SetDefault("summary.bins", 18)
	v.SetDefault("summary.seed", 1)
}
