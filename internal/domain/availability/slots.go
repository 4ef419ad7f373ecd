package availability

import (
	"sort"
	"time"
)

// GenerateSlots expands windows into fixed-length slots on the UTC date of
// date. Within each window slots start at the window start and step by the
// window's slot duration; a trailing remainder shorter than one slot is
// dropped. The result is sorted by start time. Availability is not decided
// here: every slot comes back with Available set to true.
func GenerateSlots(windows []*Window, date time.Time) []CandidateSlot {
	var out []CandidateSlot
	for _, w := range windows {
		d := w.SlotDuration()
		if d <= 0 || w.StartTime >= w.EndTime {
			continue
		}
		end := w.EndTime.On(date)
		for cur := w.StartTime.On(date); !cur.Add(d).After(end); cur = cur.Add(d) {
			out = append(out, CandidateSlot{
				StartDatetime: cur,
				EndDatetime:   cur.Add(d),
				Doctor:        w.DoctorIdentity,
				Available:     true,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartDatetime.Before(out[j].StartDatetime)
	})
	return out
}
