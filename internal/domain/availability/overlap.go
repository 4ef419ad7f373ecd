package availability

import "time"

// Overlaps reports whether the half-open ranges [aStart, aEnd) and
// [bStart, bEnd) intersect. Ranges that only touch do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// OverlapsBlocked reports whether [start, end) intersects any blocked interval.
func OverlapsBlocked(start, end time.Time, blocked []*BlockedTime) bool {
	for _, b := range blocked {
		if Overlaps(start, end, b.StartDatetime, b.EndDatetime) {
			return true
		}
	}
	return false
}

// OverlapsBooked reports whether [start, end) intersects any appointment.
func OverlapsBooked(start, end time.Time, booked []*BookedAppointment) bool {
	for _, a := range booked {
		if Overlaps(start, end, a.StartUTC, a.EndUTC) {
			return true
		}
	}
	return false
}
