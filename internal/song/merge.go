package song

import "github.com/handiism/songmesh/internal/model"

// foldState is the value carried from one merge step to the next.
type foldState struct {
	acc  model.Song
	base model.Tags
}

// Merge folds the records reported by several nodes into one canonical
// record. Records earlier in the slice take precedence.
//
// The fold runs from the last record to the first. Each step overlays the
// record's own tags onto an inheritance base: the full running tag set for
// every step except the one folding records[0], which inherits only
// model.HeritableTags. Record-level fields overlay the accumulator, except
// that an empty cover link never replaces one set earlier.
//
// Merge returns nil for an empty slice. It does not modify its input.
func Merge(records []model.SongInfo) *model.Song {
	if len(records) == 0 {
		return nil
	}

	st := foldState{acc: model.Song{Tags: model.Tags{}}}
	for i := len(records) - 1; i >= 0; i-- {
		st = step(st, records[i], i == 0)
	}

	out := st.acc
	return &out
}

func step(st foldState, rec model.SongInfo, first bool) foldState {
	base := st.acc.Tags
	if first {
		base = base.Pick(model.HeritableTags)
	}
	tags := base.Overlay(rec.Tags)

	acc := st.acc
	acc.Title = rec.Title
	acc.FileHash = rec.FileHash
	acc.Priority = rec.Priority
	acc.AudioLink = rec.AudioLink
	if rec.CoverLink != "" {
		acc.CoverLink = rec.CoverLink
	}
	acc.Tags = tags

	return foldState{acc: acc, base: base}
}
