// Package conflict reports time-of-day collisions between a candidate
// event and the occurrences already on its date. The result is advisory:
// callers decide whether to warn, confirm or ignore.
package conflict

import (
	"evcal/internal/model"
)

// OccurrenceSource answers "what is on this date". *store.Store satisfies it.
type OccurrenceSource interface {
	OccurrencesOn(date model.Date) []model.Occurrence
}

type Detector struct {
	src OccurrenceSource
}

func NewDetector(src OccurrenceSource) *Detector {
	return &Detector{src: src}
}

// Conflicts returns the occurrences on candidate.Date that share its time.
// Occurrences belonging to excludeID are skipped so an edit is not flagged
// against its own series.
func (d *Detector) Conflicts(candidate model.BaseEvent, excludeID string) []model.Occurrence {
	var out []model.Occurrence
	for _, occ := range d.src.OccurrencesOn(candidate.Date) {
		if excludeID != "" && occ.SourceID == excludeID {
			continue
		}
		if occ.Time == candidate.Time {
			out = append(out, occ)
		}
	}
	return out
}

func (d *Detector) HasConflict(candidate model.BaseEvent, excludeID string) bool {
	return len(d.Conflicts(candidate, excludeID)) > 0
}
