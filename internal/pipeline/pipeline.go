// Package pipeline runs the batch stages over an experiments tree: focus
// filtering, object trajectories, normalized crops, displacement and the
// per-track summary.
package pipeline

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"cell-tracker/internal/conf"
	"cell-tracker/internal/detect"
	errors "cell-tracker/internal/errors"
	"cell-tracker/internal/image"
	"cell-tracker/internal/logger"
	"cell-tracker/internal/metrics"
	"cell-tracker/internal/sequence"
	"cell-tracker/internal/table"
)

// Stage names, used as metric labels and log fields.
const (
	StageFocus        = "focus"
	StageTrajectory   = "trajectory"
	StageNormalize    = "normalize"
	StageDisplacement = "displacement"
	StageSummary      = "summary"
)

// Pipeline holds what every stage shares.
type Pipeline struct {
	settings *conf.Settings
	log      logger.Logger
	metrics  *metrics.Metrics
	detector *detect.Detector
}

// New creates a pipeline. m may be nil.
func New(settings *conf.Settings, log logger.Logger, m *metrics.Metrics) *Pipeline {
	if log == nil {
		log = logger.Discard()
	}
	params := detect.DefaultParams().
		WithMinArea(settings.Detection.MinArea).
		WithThreshold(settings.Detection.Threshold)
	return &Pipeline{
		settings: settings,
		log:      log.Module("pipeline"),
		metrics:  m,
		detector: detect.NewDetector(params),
	}
}

// All runs every stage in order, stopping at the first stage error.
func (p *Pipeline) All(ctx context.Context) error {
	for _, stage := range []func(context.Context) error{
		p.Focus, p.Trajectory, p.Normalize, p.Displacement, p.Summary,
	} {
		if err := stage(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) workers() int {
	if p.settings.Workers > 0 {
		return p.settings.Workers
	}
	return runtime.NumCPU()
}

// fanOut calls fn for 0..n-1 on a bounded worker group. fn writes its
// result to its own slot, so no further synchronisation is needed.
// Cancelling ctx stops new work from being scheduled.
func (p *Pipeline) fanOut(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers())
	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error { return fn(gctx, i) })
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// walkStage calls visit for every supported file exactly three levels
// below <root>/<experiment>/<stageDir>. Experiments without stageDir are
// skipped.
func (p *Pipeline) walkStage(ctx context.Context, stage, stageDir string, visit func(path string)) error {
	log := p.log.With(logger.String("stage", stage))
	root := p.settings.Root

	experiments, err := os.ReadDir(root)
	if err != nil {
		return errors.Wrap(errors.CategoryFileIO, root, err)
	}

	for _, exp := range experiments {
		if !exp.IsDir() {
			continue
		}
		dir := filepath.Join(root, exp.Name(), stageDir)
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				log.Warn("skipping unreadable path", logger.String("path", path), logger.Error(err))
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
				return nil
			}
			if !image.IsSupportedFormat(path) {
				log.Debug("ignoring non-frame file", logger.String("path", path))
				return nil
			}
			rel, _ := filepath.Rel(dir, path)
			if strings.Count(filepath.ToSlash(rel), "/") != 2 {
				return nil
			}
			visit(path)
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// discover finds every frame under <root>/<experiment>/<stageDir> and
// groups the frames into sequences. Files that do not follow the naming
// convention are logged and skipped.
func (p *Pipeline) discover(ctx context.Context, stage, stageDir string) ([]sequence.Sequence, error) {
	log := p.log.With(logger.String("stage", stage))

	var frames []sequence.FrameKey
	err := p.walkStage(ctx, stage, stageDir, func(path string) {
		fk, ok := sequence.ParsePath(p.settings.Root, path, stageDir)
		if !ok {
			err := errors.New(errors.CategoryMissingMatch, path, "file name carries no sequence number or frame index")
			log.Warn("skipping frame", logger.Error(err))
			p.metrics.FrameSkipped(stage, metrics.ReasonMissingMatch)
			return
		}
		frames = append(frames, fk)
	})
	if err != nil {
		return nil, err
	}

	seqs, duplicates := sequence.Group(frames)
	if duplicates > 0 {
		log.Warn("dropped duplicate frames", logger.Int("count", duplicates))
		for range duplicates {
			p.metrics.FrameSkipped(stage, metrics.ReasonDuplicate)
		}
	}
	log.Info("discovered frames",
		logger.Int("frames", len(frames)-duplicates),
		logger.Int("sequences", len(seqs)))
	return seqs, nil
}

// discoverRecordings finds the raw recordings under
// <root>/<experiment>/<stageDir>.
func (p *Pipeline) discoverRecordings(ctx context.Context, stage, stageDir string) ([]sequence.Recording, error) {
	log := p.log.With(logger.String("stage", stage))

	var paths []string
	err := p.walkStage(ctx, stage, stageDir, func(path string) { paths = append(paths, path) })
	if err != nil {
		return nil, err
	}

	recs, rejected := sequence.GroupRecordings(p.settings.Root, stageDir, paths)
	for _, path := range rejected {
		err := errors.New(errors.CategoryMissingMatch, path, "file name carries no frame index")
		log.Warn("skipping frame", logger.Error(err))
		p.metrics.FrameSkipped(stage, metrics.ReasonMissingMatch)
	}
	log.Info("discovered recordings",
		logger.Int("frames", len(paths)-len(rejected)),
		logger.Int("recordings", len(recs)))
	return recs, nil
}

// detectFrames runs the detector on every frame of seq. A frame that
// cannot be read yields a nil entry.
func (p *Pipeline) detectFrames(ctx context.Context, stage string, seq sequence.Sequence) ([]*detect.Result, error) {
	log := p.log.With(logger.String("stage", stage), logger.String("sequence", seq.Key.String()))
	results := make([]*detect.Result, len(seq.Frames))
	for i, fk := range seq.Frames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := p.detector.DetectFile(fk.Path)
		if err != nil {
			log.Warn("skipping frame", logger.Error(errors.Wrap(errors.CategoryFileIO, fk.Path, err)))
			p.metrics.FrameSkipped(stage, metrics.ReasonFileIO)
			continue
		}
		for _, d := range res.Detections {
			if d.Degenerate {
				err := errors.New(errors.CategoryDegenerate, fk.Path, "object %d has zero moment area", d.Object)
				log.Debug("degenerate contour", logger.Error(err), logger.Float64("area", d.Area))
				p.metrics.DegenerateDetection(stage)
			}
		}
		p.metrics.FrameProcessed(stage)
		results[i] = &res
	}
	return results, nil
}

// writeTable writes t under the experiments root.
func (p *Pipeline) writeTable(name string, t *table.Table) error {
	path := p.settings.ExperimentPath(name)
	if err := t.WriteFile(path); err != nil {
		return errors.Wrap(errors.CategoryFileIO, path, err)
	}
	p.metrics.Rows(name, t.Len())
	p.log.Info("wrote table", logger.String("path", path), logger.Int("rows", t.Len()))
	return nil
}

// readTable reads a table written by an earlier stage.
func (p *Pipeline) readTable(name string) (*table.Table, error) {
	path := p.settings.ExperimentPath(name)
	t, err := table.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.CategoryFileIO, path, fmt.Errorf("run the earlier stage first: %w", err))
	}
	return t, nil
}

func (p *Pipeline) finish(stage string, start time.Time) {
	p.log.Info("stage complete", logger.String("stage", stage), logger.Duration("elapsed", time.Since(start)))
}
