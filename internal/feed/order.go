package feed

import (
	"sort"
	"time"

	"github.com/shinyyama/musclecat-chat/internal/model"
)

func compare(at time.Time, aID string, bt time.Time, bID string) int {
	if c := at.Compare(bt); c != 0 {
		return c
	}
	switch {
	case aID < bID:
		return -1
	case aID > bID:
		return 1
	}
	return 0
}

// Less orders committed messages by timestamp with the id as tie-break.
// Pending messages sort after every committed one.
func Less(a, b model.Message) bool {
	switch {
	case a.Timestamp == nil && b.Timestamp == nil:
		return false
	case a.Timestamp == nil:
		return false
	case b.Timestamp == nil:
		return true
	}
	return compare(*a.Timestamp, a.ID, *b.Timestamp, b.ID) < 0
}

// Sort orders msgs ascending in place.
func Sort(msgs []model.Message) {
	sort.SliceStable(msgs, func(i, j int) bool { return Less(msgs[i], msgs[j]) })
}

// committedUnique drops pending records and duplicate ids, keeping the last
// copy seen, and returns the rest ascending.
func committedUnique(msgs []model.Message) []model.Message {
	idx := make(map[string]int, len(msgs))
	out := make([]model.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Timestamp == nil || m.ID == "" {
			continue
		}
		if i, ok := idx[m.ID]; ok {
			out[i] = m
			continue
		}
		idx[m.ID] = len(out)
		out = append(out, m)
	}
	Sort(out)
	return out
}
