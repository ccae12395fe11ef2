package sequence

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
)

// Recording is a raw, unsegmented stack stored one file per frame as
// <stem>_<frame>.<ext> under <experiment>/<stageDir>/<species>/<pool_ID>.
type Recording struct {
	Experiment string
	Species    string
	PoolID     string
	Stem       string
	Frames     []string // paths ordered by frame index
}

// String renders the recording as a slash-separated unit name for logs.
func (r Recording) String() string {
	return fmt.Sprintf("%s/%s/%s/%s", r.Experiment, r.Species, r.PoolID, r.Stem)
}

// SplitFrameName splits <stem>_<frame>.<ext>. ok is false when the name has
// no trailing frame index or an unsupported extension.
func SplitFrameName(name string) (stem string, frame int, ok bool) {
	loc := framePattern.FindStringSubmatchIndex(name)
	if loc == nil || loc[0] == 0 {
		return "", 0, false
	}
	frame, err := strconv.Atoi(name[loc[2]:loc[3]])
	if err != nil {
		return "", 0, false
	}
	return name[:loc[0]], frame, true
}

// SequenceFileName names frame k of sequence seq, cut from positions
// first..last of the recording stem.
func SequenceFileName(stem string, seq, first, last, k int) string {
	return fmt.Sprintf("%s_seq%d_f%dto%d_%d.tif", stem, seq, first, last, k)
}

// GroupRecordings collects frame files laid out as
// <root>/<experiment>/<stageDir>/<species>/<pool_ID>/<stem>_<frame>.<ext>
// into recordings sorted by experiment, species, pool and stem. Paths that
// do not fit the layout are returned as rejected.
func GroupRecordings(root, stageDir string, paths []string) (recs []Recording, rejected []string) {
	type frame struct {
		index int
		path  string
	}
	byRec := make(map[Recording][]frame)
	for _, path := range paths {
		k, ok := parseLayout(root, path, stageDir)
		if !ok {
			rejected = append(rejected, path)
			continue
		}
		stem, index, ok := SplitFrameName(filepath.Base(path))
		if !ok {
			rejected = append(rejected, path)
			continue
		}
		key := Recording{Experiment: k.Experiment, Species: k.Species, PoolID: k.PoolID, Stem: stem}
		byRec[key] = append(byRec[key], frame{index: index, path: path})
	}

	recs = make([]Recording, 0, len(byRec))
	for key, frames := range byRec {
		sort.Slice(frames, func(i, j int) bool {
			if frames[i].index != frames[j].index {
				return frames[i].index < frames[j].index
			}
			return frames[i].path < frames[j].path
		})
		rec := key
		for _, f := range frames {
			rec.Frames = append(rec.Frames, f.path)
		}
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		ka := Key{Experiment: a.Experiment, Species: a.Species, PoolID: a.PoolID}
		kb := Key{Experiment: b.Experiment, Species: b.Species, PoolID: b.PoolID}
		if ka != kb {
			return ka.Less(kb)
		}
		return a.Stem < b.Stem
	})
	return recs, rejected
}
