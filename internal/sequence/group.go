package sequence

import (
	"sort"
)

// Sequence is the ordered list of frames sharing one Key.
type Sequence struct {
	Key    Key
	Frames []FrameKey
}

// Len returns the number of frames.
func (s Sequence) Len() int {
	return len(s.Frames)
}

// Frame returns the frame with index frame, if present.
func (s Sequence) Frame(frame int) (FrameKey, bool) {
	i := sort.Search(len(s.Frames), func(i int) bool { return s.Frames[i].Frame >= frame })
	if i < len(s.Frames) && s.Frames[i].Frame == frame {
		return s.Frames[i], true
	}
	return FrameKey{}, false
}

// Group collects frames into sequences sorted by key, with frames sorted by
// ascending index. A second file with the same key and frame index is
// dropped; the number dropped is returned.
func Group(frames []FrameKey) (seqs []Sequence, duplicates int) {
	byKey := make(map[Key]map[int]FrameKey)
	for _, f := range frames {
		m, ok := byKey[f.Key]
		if !ok {
			m = make(map[int]FrameKey)
			byKey[f.Key] = m
		}
		if prev, dup := m[f.Frame]; dup {
			duplicates++
			// Keep the lexically smaller path so the result does not depend on walk order.
			if f.Path >= prev.Path {
				continue
			}
		}
		m[f.Frame] = f
	}

	seqs = make([]Sequence, 0, len(byKey))
	for key, m := range byKey {
		s := Sequence{Key: key, Frames: make([]FrameKey, 0, len(m))}
		for _, f := range m {
			s.Frames = append(s.Frames, f)
		}
		sort.Slice(s.Frames, func(i, j int) bool { return s.Frames[i].Frame < s.Frames[j].Frame })
		seqs = append(seqs, s)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i].Key.Less(seqs[j].Key) })
	return seqs, duplicates
}
