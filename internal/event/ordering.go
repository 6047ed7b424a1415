package event

import (
	"sort"
)

// SortDeterministic orders events by (timestamp, ingestion sequence) in
// place. The secondary key makes the order total: two replays over the
// same input always see the same sequence, which is what makes the
// tracker's output reproducible and auditable.
func SortDeterministic(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		ti, tj := events[i].Timestamp, events[j].Timestamp
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return events[i].Seq < events[j].Seq
	})
}

// ValidateBatch validates every event and returns the first offending
// record's error. The batch is rejected as a whole: a replay over
// partially valid input would produce a figure nobody can trust.
func ValidateBatch(events []Event) error {
	for i := range events {
		if err := events[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Prepare validates and deterministically orders a copy of the input,
// leaving the caller's slice untouched. This is the single entry point
// the replay engine uses to normalize a raw feed.
func Prepare(events []Event) ([]Event, error) {
	if err := ValidateBatch(events); err != nil {
		return nil, err
	}
	ordered := make([]Event, len(events))
	copy(ordered, events)
	SortDeterministic(ordered)
	return ordered, nil
}
