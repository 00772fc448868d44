package schedule

import "time"

const defaultPostsPerDay = 3

// Fixed hour-of-day sets per posting frequency. Changing the frequency never
// moves items that already hold a slot, occupancy is checked on absolute
// instants, so a new hour set only affects future allocations.
var slotHourSets = map[int][]int{
	1: {12},
	2: {10, 12},
	3: {10, 12, 14},
}

// SlotHours returns the fixed local hours for the given posts-per-day
// setting. Unknown or unset values fall back to the default frequency.
func SlotHours(postsPerDay int) []int {
	hours, ok := slotHourSets[postsPerDay]
	if !ok {
		hours = slotHourSets[defaultPostsPerDay]
	}
	out := make([]int, len(hours))
	copy(out, hours)
	return out
}

// Occupied is the set of instants already taken by a user's queued and
// scheduled items, keyed by Unix seconds so that two representations of the
// same instant collide regardless of zone.
type Occupied map[int64]struct{}

func NewOccupied(instants []time.Time) Occupied {
	o := make(Occupied, len(instants))
	for _, t := range instants {
		o.Add(t)
	}
	return o
}

func (o Occupied) Add(t time.Time) {
	o[t.Unix()] = struct{}{}
}

func (o Occupied) Has(t time.Time) bool {
	_, ok := o[t.Unix()]
	return ok
}

// NextSlots returns the next count free slot instants for a user, walking
// local calendar days forward from now. Every returned instant is strictly
// after now, absent from occupied, and distinct from the others in the same
// batch. The result is in UTC, ascending. The search is unbounded forward,
// a fully booked day is skipped, never an error.
//
// now is an explicit input so the allocation is deterministic and testable.
// The caller owns persisting the result, this function performs no I/O.
func NextSlots(now time.Time, loc *time.Location, postsPerDay, count int, occupied Occupied) []time.Time {
	if count <= 0 {
		return nil
	}
	if loc == nil {
		loc = time.UTC
	}

	hours := SlotHours(postsPerDay)
	slots := make([]time.Time, 0, count)
	taken := make(Occupied, count)

	localNow := now.In(loc)
	year, month, day := localNow.Date()

	for d := time.Date(year, month, day, 0, 0, 0, 0, loc); len(slots) < count; d = d.AddDate(0, 0, 1) {
		for _, hour := range hours {
			if len(slots) == count {
				break
			}

			candidate := time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, loc)
			if !candidate.After(now) {
				continue
			}
			if occupied.Has(candidate) || taken.Has(candidate) {
				continue
			}

			slots = append(slots, candidate.UTC())
			taken.Add(candidate)
		}
	}

	return slots
}

// InWindow reports whether t falls inside the user's posting window in the
// given timezone. Bounds are hours of day and both are inclusive: a window
// of 8 to 20 admits any local time from 08:00:00 through 20:59:59. Used by
// manual scheduling only, queue slots come from the fixed hour sets.
func InWindow(t time.Time, loc *time.Location, startHour, endHour int) bool {
	if loc == nil {
		loc = time.UTC
	}
	h := t.In(loc).Hour()
	return h >= startHour && h <= endHour
}
