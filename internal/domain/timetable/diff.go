package timetable

import "sort"

// Diff computes the change set between a stored week and a freshly fetched
// one. Events are keyed by lesson ID; events without one cannot be tracked
// across syncs and are excluded on both sides. When old is nil every keyed
// event in new is reported as added.
func Diff(old *TimetableData, new TimetableData) WeekDiff {
	newIndex := indexByLessonID(new.Events)

	var oldIndex map[string]Event
	if old != nil {
		oldIndex = indexByLessonID(old.Events)
	}

	var diff WeekDiff
	for id, ev := range newIndex {
		prev, existed := oldIndex[id]
		switch {
		case !existed:
			diff.Added = append(diff.Added, ev)
		case prev != ev:
			diff.Updated = append(diff.Updated, ev)
		}
	}
	for id := range oldIndex {
		if _, still := newIndex[id]; !still {
			diff.Removed = append(diff.Removed, id)
		}
	}

	sortEvents(diff.Added)
	sortEvents(diff.Updated)
	sort.Strings(diff.Removed)
	return diff
}

func indexByLessonID(events []Event) map[string]Event {
	index := make(map[string]Event, len(events))
	for _, ev := range events {
		if ev.LessonID == "" {
			continue
		}
		index[ev.LessonID] = ev
	}
	return index
}

func sortEvents(events []Event) {
	sort.Slice(events, func(i, j int) bool {
		return events[i].LessonID < events[j].LessonID
	})
}
