package pipeline

import (
	"context"
	"math/rand/v2"
	"path/filepath"
	"strconv"
	"time"

	"cell-tracker/internal/displacement"
	errors "cell-tracker/internal/errors"
	"cell-tracker/internal/focus"
	"cell-tracker/internal/image"
	"cell-tracker/internal/logger"
	"cell-tracker/internal/metrics"
	"cell-tracker/internal/normalize"
	"cell-tracker/internal/sequence"
	"cell-tracker/internal/summary"
	"cell-tracker/internal/table"
	"cell-tracker/internal/trajectory"
)

// Summary output tables, written under the experiments root.
const (
	MeanPerTrackFile    = "mean_angular_displacements_allowed.csv"
	FirstFramesFile     = "filtered_unbinned_data.csv"
	SampledFile         = "sampled_unbinned_data.csv"
	BinnedFile          = "sampled_binned_data.csv"
	BinnedSequencesFile = "sampled_binned_sequences.csv"
)

// Focus scores the sharpness of every raw recording under
// <experiment>/<focus.input_dir> and writes each run of in-focus frames as a
// sequence where the trajectory stage reads.
func (p *Pipeline) Focus(ctx context.Context) error {
	start := time.Now()
	cfg := p.settings.Focus
	recs, err := p.discoverRecordings(ctx, StageFocus, cfg.InputDir)
	if err != nil {
		return err
	}

	opts := focus.Options{
		Percentile:   cfg.Percentile,
		ExcludeStart: cfg.ExcludeStart,
		ExcludeEnd:   cfg.ExcludeEnd,
		Adjacent:     cfg.Adjacent,
	}
	perRec := make([][][]string, len(recs))
	err = p.fanOut(ctx, len(recs), func(ctx context.Context, i int) error {
		rows, err := p.focusRecording(ctx, recs[i], opts)
		perRec[i] = rows
		return err
	})
	if err != nil {
		return err
	}

	t := table.New(focus.Header...)
	for _, rows := range perRec {
		for _, r := range rows {
			t.Append(r)
		}
	}
	if err := p.writeTable(cfg.Output, t); err != nil {
		return err
	}
	p.finish(StageFocus, start)
	return nil
}

// focusRecording scores one recording, writes its in-focus sequences and
// returns its focus table rows.
func (p *Pipeline) focusRecording(ctx context.Context, rec sequence.Recording, opts focus.Options) ([][]string, error) {
	log := p.log.With(logger.String("stage", StageFocus), logger.String("recording", rec.String()))

	lo, hi, err := opts.Window(len(rec.Frames))
	if err != nil {
		log.Warn("skipping recording", logger.Error(err))
		p.metrics.SequenceSkipped(StageFocus, metrics.ReasonTooShort)
		return nil, nil
	}

	measures := make([]float64, hi-lo)
	for pos := lo; pos < hi; pos++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m, err := focus.MeasureFile(rec.Frames[pos])
		if err != nil {
			// An unreadable frame scores zero and is only kept as a neighbour.
			log.Warn("skipping frame", logger.Error(errors.Wrap(errors.CategoryFileIO, rec.Frames[pos], err)))
			p.metrics.FrameSkipped(StageFocus, metrics.ReasonFileIO)
			continue
		}
		measures[pos-lo] = m
		p.metrics.FrameProcessed(StageFocus)
	}

	kept := focus.Select(len(rec.Frames), measures, opts)
	selected := make(map[int]bool, len(kept))
	for _, pos := range kept {
		selected[pos] = true
	}

	outDir := filepath.Join(p.settings.Root, rec.Experiment, p.settings.Trajectory.InputDir, rec.Species, rec.PoolID)
	for n, run := range focus.Runs(kept) {
		first, last := run[0], run[len(run)-1]
		for k, pos := range run {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			dst := filepath.Join(outDir, sequence.SequenceFileName(rec.Stem, n+1, first, last, k))
			if err := copyFrame(rec.Frames[pos], dst); err != nil {
				log.Warn("skipping frame", logger.Error(err))
				p.metrics.FrameSkipped(StageFocus, metrics.ReasonFileIO)
			}
		}
		p.metrics.SequenceCompleted(StageFocus)
	}
	threshold := opts.Threshold(measures)
	log.Debug("filtered", logger.Int("kept", len(kept)), logger.Float64("threshold", threshold))

	rows := make([][]string, 0, len(measures))
	for i, m := range measures {
		pos := lo + i
		rows = append(rows, []string{
			rec.Experiment, rec.Species, rec.PoolID, rec.Stem,
			strconv.Itoa(pos),
			strconv.FormatFloat(m, 'g', -1, 64),
			strconv.FormatBool(m > threshold),
			strconv.FormatBool(selected[pos]),
		})
	}
	return rows, nil
}

// copyFrame re-encodes the frame at src as a TIFF at dst.
func copyFrame(src, dst string) error {
	frame, err := image.Load(src)
	if err != nil {
		return errors.Wrap(errors.CategoryFileIO, src, err)
	}
	if err := image.Save(dst, frame.Image); err != nil {
		return errors.Wrap(errors.CategoryFileIO, dst, err)
	}
	return nil
}

// Trajectory detects objects in every raw frame and writes the per-object
// table with the anchor motion angle of each sequence.
func (p *Pipeline) Trajectory(ctx context.Context) error {
	start := time.Now()
	cfg := p.settings.Trajectory
	seqs, err := p.discover(ctx, StageTrajectory, cfg.InputDir)
	if err != nil {
		return err
	}

	analyzer := trajectory.Analyzer{AnchorFrame: cfg.AnchorFrame, CompareOffset: cfg.CompareOffset}
	perSeq := make([][]trajectory.ObjectRow, len(seqs))
	err = p.fanOut(ctx, len(seqs), func(ctx context.Context, i int) error {
		results, err := p.detectFrames(ctx, StageTrajectory, seqs[i])
		if err != nil {
			return err
		}
		perSeq[i] = analyzer.Analyze(seqs[i], results)
		if anchor, ok := trajectory.Anchor(perSeq[i], cfg.AnchorFrame); !ok || anchor.Angle == nil {
			p.log.Debug("no motion angle", logger.String("sequence", seqs[i].Key.String()))
		}
		p.metrics.SequenceCompleted(StageTrajectory)
		return nil
	})
	if err != nil {
		return err
	}

	var rows []trajectory.ObjectRow
	for _, r := range perSeq {
		rows = append(rows, r...)
	}
	trajectory.SortRows(rows)
	if err := p.writeTable(cfg.Output, trajectory.ToTable(rows)); err != nil {
		return err
	}
	p.finish(StageTrajectory, start)
	return nil
}

// Normalize renders the rotated, recentred crops of every sequence with a
// usable anchor. Sequences without one are skipped with a warning.
func (p *Pipeline) Normalize(ctx context.Context) error {
	start := time.Now()
	tbl, err := p.readTable(p.settings.Trajectory.Output)
	if err != nil {
		return err
	}
	rows, err := trajectory.FromTable(tbl)
	if err != nil {
		return err
	}
	keys, groups := trajectory.GroupRows(rows)

	cfg := p.settings.Normalize
	n := &normalize.Normalizer{
		Root:           p.settings.Root,
		OutputDir:      cfg.OutputDir,
		CropSize:       cfg.CropSize,
		ReferenceAngle: cfg.ReferenceAngle,
		AnchorFrame:    p.settings.Trajectory.AnchorFrame,
	}

	err = p.fanOut(ctx, len(keys), func(ctx context.Context, i int) error {
		key := keys[i]
		log := p.log.With(logger.String("stage", StageNormalize), logger.String("sequence", key.String()))

		plan, err := n.Plan(key, groups[key])
		if err != nil {
			log.Warn("skipping sequence", logger.Error(err))
			p.metrics.SequenceSkipped(StageNormalize, metrics.ReasonMissingAnchor)
			removed, err := n.Discard(trajectory.Frames(groups[key]))
			if removed > 0 {
				log.Info("removed stale crops", logger.Int("files", removed))
			}
			return err
		}
		for _, fk := range trajectory.Frames(groups[key]) {
			if err := ctx.Err(); err != nil {
				return err
			}
			if _, err := n.Frame(fk, plan); err != nil {
				log.Warn("skipping frame", logger.Error(err))
				p.metrics.FrameSkipped(StageNormalize, metrics.ReasonFileIO)
				continue
			}
			p.metrics.FrameProcessed(StageNormalize)
		}
		log.Debug("normalized", logger.Float64("rotation", plan.Rotation))
		p.metrics.SequenceCompleted(StageNormalize)
		return nil
	})
	if err != nil {
		return err
	}
	p.finish(StageNormalize, start)
	return nil
}

// Displacement tracks the object through every normalized sequence and
// writes linear and angular displacement per frame.
func (p *Pipeline) Displacement(ctx context.Context) error {
	start := time.Now()
	seqs, err := p.discover(ctx, StageDisplacement, p.settings.Normalize.OutputDir)
	if err != nil {
		return err
	}

	estimator := displacement.Estimator{RequireStableCount: p.settings.Displacement.RequireStableCount}
	perSeq := make([][]displacement.Record, len(seqs))
	err = p.fanOut(ctx, len(seqs), func(ctx context.Context, i int) error {
		seq := seqs[i]
		results, err := p.detectFrames(ctx, StageDisplacement, seq)
		if err != nil {
			return err
		}
		samples := displacement.Tracker{}.Track(seq.Frames, results)
		for j, s := range samples {
			if !s.Found && results[j] != nil {
				p.log.Debug("no object tracked",
					logger.String("sequence", seq.Key.String()),
					logger.Int("frame", s.Frame.Frame))
				p.metrics.FrameSkipped(StageDisplacement, metrics.ReasonNoObject)
			}
		}
		perSeq[i] = estimator.Estimate(samples)
		p.metrics.SequenceCompleted(StageDisplacement)
		return nil
	})
	if err != nil {
		return err
	}

	t := table.New(displacement.Header...)
	for _, records := range perSeq {
		for _, r := range records {
			if r.Found {
				t.Append(r.Row())
			}
		}
	}
	if err := p.writeTable(p.settings.Displacement.Output, t); err != nil {
		return err
	}

	keys := make([]sequence.Key, len(seqs))
	for i, s := range seqs {
		keys[i] = s.Key
	}
	means := displacement.Aggregate(keys, perSeq)
	p.log.Info("turn statistics",
		logger.Int("sequences", len(seqs)),
		logger.Int("with_angles", len(means)))
	p.finish(StageDisplacement, start)
	return nil
}

// Summary reduces the displacement table to per-track means and a
// balanced, binned sample of tracks.
func (p *Pipeline) Summary(ctx context.Context) error {
	start := time.Now()
	cfg := p.settings.Summary
	disp, err := p.readTable(p.settings.Displacement.Output)
	if err != nil {
		return err
	}

	mean, err := summary.MeanPerTrack(disp, cfg.AllowedExperiments)
	if err != nil {
		return err
	}
	first, err := summary.FirstFrames(mean)
	if err != nil {
		return err
	}
	seed := uint64(cfg.Seed)
	sampled, err := summary.SampleBalanced(first, rand.New(rand.NewPCG(seed, seed)))
	if err != nil {
		return err
	}
	binned, err := summary.Bin(sampled, cfg.Bins)
	if err != nil {
		return err
	}
	merged, err := summary.Merge(binned, disp)
	if err != nil {
		return err
	}

	for _, out := range []struct {
		name string
		t    *table.Table
	}{
		{MeanPerTrackFile, mean},
		{FirstFramesFile, first},
		{SampledFile, sampled},
		{BinnedFile, binned},
		{BinnedSequencesFile, merged},
	} {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.writeTable(out.name, out.t); err != nil {
			return err
		}
	}
	p.finish(StageSummary, start)
	return nil
}
