package scheduler

import "time"

// Overlaps reports whether the half-open ranges [aStart, aEnd) and [bStart, bEnd)
// intersect. Ranges that only touch at an endpoint do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// Interval is a half-open time range.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Valid reports whether the interval starts strictly before it ends.
func (i Interval) Valid() bool {
	return i.Start.Before(i.End)
}

// Overlaps applies the package overlap predicate to two intervals.
func (i Interval) Overlaps(other Interval) bool {
	return Overlaps(i.Start, i.End, other.Start, other.End)
}

// Reservation is the minimal view of a booking the detector needs.
type Reservation struct {
	ID     int64
	RoomID int64
	Interval
}

// Conflict names an existing reservation that blocks a candidate.
type Conflict struct {
	WithReservationID int64
	RoomID            int64
	Overlap           Interval
}

// DetectConflicts returns the existing reservations on the candidate's room whose
// interval overlaps the candidate. A reservation sharing the candidate's non-zero
// id is skipped so updates can be checked against their own previous state.
func DetectConflicts(candidate Reservation, existing []Reservation) []Conflict {
	var conflicts []Conflict
	for _, other := range existing {
		if other.RoomID != candidate.RoomID {
			continue
		}
		if candidate.ID != 0 && other.ID == candidate.ID {
			continue
		}
		if !candidate.Overlaps(other.Interval) {
			continue
		}
		conflicts = append(conflicts, Conflict{
			WithReservationID: other.ID,
			RoomID:            other.RoomID,
			Overlap:           intersection(candidate.Interval, other.Interval),
		})
	}
	return conflicts
}

func intersection(a, b Interval) Interval {
	start := a.Start
	if b.Start.After(start) {
		start = b.Start
	}
	end := a.End
	if b.End.Before(end) {
		end = b.End
	}
	return Interval{Start: start, End: end}
}
