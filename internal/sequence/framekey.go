// Package sequence turns frame file paths into structured keys and groups
// them into ordered per-track sequences.
package sequence

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var (
	seqPattern   = regexp.MustCompile(`_seq(\d+)_`)
	framePattern = regexp.MustCompile(`(?i)_(\d+)\.(tif|tiff|png)$`)
)

// Key identifies a sequence: every frame of one tracked recording shares it.
type Key struct {
	Experiment string
	Species    string
	PoolID     string
	Seq        int
}

// String renders the key as a slash-separated unit name for logs.
func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s/seq%d", k.Experiment, k.Species, k.PoolID, k.Seq)
}

// Less orders keys by experiment, species, pool and numeric sequence number.
func (k Key) Less(other Key) bool {
	if k.Experiment != other.Experiment {
		return k.Experiment < other.Experiment
	}
	if k.Species != other.Species {
		return k.Species < other.Species
	}
	if k.PoolID != other.PoolID {
		return k.PoolID < other.PoolID
	}
	return k.Seq < other.Seq
}

// FrameKey is the identity of one frame, derived from where its file lives
// and what it is called.
type FrameKey struct {
	Key
	Frame    int
	FileName string
	Path     string
}

// ParseFrameName extracts the sequence number and frame index from a file
// name of the form <prefix>_<pool>_seq<n>_f<a>to<b>_<frame>.<ext>. The
// sequence tag may appear anywhere; the frame index must directly precede
// a .tif, .tiff or .png extension. ok is false when either part is absent.
func ParseFrameName(name string) (seq, frame int, ok bool) {
	sm := seqPattern.FindStringSubmatch(name)
	if sm == nil {
		return 0, 0, false
	}
	fm := framePattern.FindStringSubmatch(name)
	if fm == nil {
		return 0, 0, false
	}

	seq, err := strconv.Atoi(sm[1])
	if err != nil {
		return 0, 0, false
	}
	frame, err = strconv.Atoi(fm[1])
	if err != nil {
		return 0, 0, false
	}
	return seq, frame, true
}

// ParsePath builds a FrameKey for a file laid out as
// <root>/<experiment>/<stageDir>/<species>/<pool_ID>/<file>.
func ParsePath(root, path, stageDir string) (FrameKey, bool) {
	k, ok := parseLayout(root, path, stageDir)
	if !ok {
		return FrameKey{}, false
	}
	return NewFrameKey(k.Experiment, k.Species, k.PoolID, path)
}

// parseLayout reads experiment, species and pool from the directories
// between root and path. Seq is left zero.
func parseLayout(root, path, stageDir string) (Key, bool) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return Key{}, false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 5 || parts[1] != stageDir {
		return Key{}, false
	}
	return Key{Experiment: parts[0], Species: parts[2], PoolID: parts[3]}, true
}

// NewFrameKey builds a FrameKey from explicit directory metadata and a file path.
func NewFrameKey(experiment, species, poolID, path string) (FrameKey, bool) {
	name := filepath.Base(path)
	seq, frame, ok := ParseFrameName(name)
	if !ok {
		return FrameKey{}, false
	}
	return FrameKey{
		Key: Key{
			Experiment: experiment,
			Species:    species,
			PoolID:     poolID,
			Seq:        seq,
		},
		Frame:    frame,
		FileName: name,
		Path:     path,
	}, true
}
