package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextSlotsWalksForward(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	at := func(day, hour int) time.Time {
		return time.Date(2025, time.June, day, hour, 0, 0, 0, loc)
	}

	tests := []struct {
		name        string
		now         time.Time
		postsPerDay int
		count       int
		occupied    []time.Time
		want        []time.Time
	}{
		{
			name:        "morning leaves both slots today",
			now:         at(10, 9),
			postsPerDay: 2,
			count:       3,
			want:        []time.Time{at(10, 10), at(10, 12), at(11, 10)},
		},
		{
			name:        "afternoon rolls to tomorrow",
			now:         at(10, 15),
			postsPerDay: 3,
			count:       1,
			want:        []time.Time{at(11, 10)},
		},
		{
			name:        "slot at now is not in the future",
			now:         at(10, 10),
			postsPerDay: 3,
			count:       2,
			want:        []time.Time{at(10, 12), at(10, 14)},
		},
		{
			name:        "occupied slot is skipped",
			now:         at(10, 9),
			postsPerDay: 2,
			count:       2,
			occupied:    []time.Time{at(10, 10)},
			want:        []time.Time{at(10, 12), at(11, 10)},
		},
		{
			name:        "fully booked days are skipped entirely",
			now:         at(10, 9),
			postsPerDay: 1,
			count:       1,
			occupied:    []time.Time{at(10, 12), at(11, 12), at(12, 12)},
			want:        []time.Time{at(13, 12)},
		},
		{
			name:        "batch spans multiple days",
			now:         at(10, 9),
			postsPerDay: 3,
			count:       5,
			want:        []time.Time{at(10, 10), at(10, 12), at(10, 14), at(11, 10), at(11, 12)},
		},
		{
			name:        "unknown frequency falls back to default hours",
			now:         at(10, 9),
			postsPerDay: 0,
			count:       3,
			want:        []time.Time{at(10, 10), at(10, 12), at(10, 14)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextSlots(tt.now, loc, tt.postsPerDay, tt.count, NewOccupied(tt.occupied))

			require.Len(t, got, len(tt.want))
			for i := range tt.want {
				assert.True(t, got[i].Equal(tt.want[i]), "slot %d: want %s, got %s", i, tt.want[i], got[i])
				assert.Equal(t, time.UTC, got[i].Location())
			}
		})
	}
}

func TestNextSlotsNeverDoubleBooks(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	now := time.Date(2025, time.February, 1, 7, 30, 0, 0, loc)

	occupied := NewOccupied([]time.Time{
		time.Date(2025, time.February, 1, 12, 0, 0, 0, loc),
		time.Date(2025, time.February, 2, 10, 0, 0, 0, loc),
	})

	slots := NextSlots(now, loc, 3, 8, occupied)
	require.Len(t, slots, 8)

	seen := make(map[int64]bool)
	for _, s := range slots {
		assert.True(t, s.After(now), "slot %s must be strictly after now", s)
		assert.False(t, occupied.Has(s), "slot %s is already occupied", s)
		assert.False(t, seen[s.Unix()], "slot %s returned twice in one batch", s)
		seen[s.Unix()] = true
	}
}

func TestNextSlotsAscending(t *testing.T) {
	now := time.Date(2025, time.February, 1, 11, 0, 0, 0, time.UTC)

	slots := NextSlots(now, time.UTC, 3, 7, nil)
	require.Len(t, slots, 7)
	for i := 1; i < len(slots); i++ {
		assert.True(t, slots[i].After(slots[i-1]))
	}
}

func TestNextSlotsDeterministic(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	now := time.Date(2025, time.February, 1, 9, 15, 42, 0, loc)
	occupied := []time.Time{time.Date(2025, time.February, 1, 10, 0, 0, 0, loc)}

	first := NextSlots(now, loc, 2, 4, NewOccupied(occupied))
	second := NextSlots(now, loc, 2, 4, NewOccupied(occupied))

	require.Equal(t, first, second)
}

func TestNextSlotsDoesNotMutateOccupied(t *testing.T) {
	now := time.Date(2025, time.February, 1, 9, 0, 0, 0, time.UTC)
	occupied := NewOccupied(nil)

	NextSlots(now, time.UTC, 3, 5, occupied)
	assert.Empty(t, occupied)
}

func TestNextSlotsZeroCount(t *testing.T) {
	now := time.Date(2025, time.February, 1, 9, 0, 0, 0, time.UTC)
	assert.Nil(t, NextSlots(now, time.UTC, 3, 0, nil))
	assert.Nil(t, NextSlots(now, time.UTC, 3, -2, nil))
}

func TestOccupiedMatchesAcrossZones(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	local := time.Date(2025, time.June, 10, 10, 0, 0, 0, loc)
	occupied := NewOccupied([]time.Time{local.UTC()})

	assert.True(t, occupied.Has(local), "same instant in a different zone must count as occupied")
}

func TestSlotHours(t *testing.T) {
	assert.Equal(t, []int{12}, SlotHours(1))
	assert.Equal(t, []int{10, 12}, SlotHours(2))
	assert.Equal(t, []int{10, 12, 14}, SlotHours(3))
	assert.Equal(t, []int{10, 12, 14}, SlotHours(0))
	assert.Equal(t, []int{10, 12, 14}, SlotHours(99))
}

func TestSlotHoursReturnsCopy(t *testing.T) {
	hours := SlotHours(2)
	hours[0] = 23
	assert.Equal(t, []int{10, 12}, SlotHours(2))
}

func TestInWindow(t *testing.T) {
	loc := time.FixedZone("CET", 3600)

	tests := []struct {
		name  string
		t     time.Time
		start int
		end   int
		want  bool
	}{
		{"before window", time.Date(2025, time.February, 1, 7, 59, 0, 0, loc), 8, 20, false},
		{"window start", time.Date(2025, time.February, 1, 8, 0, 0, 0, loc), 8, 20, true},
		{"midday", time.Date(2025, time.February, 1, 13, 30, 0, 0, loc), 8, 20, true},
		{"last hour inclusive", time.Date(2025, time.February, 1, 20, 59, 0, 0, loc), 8, 20, true},
		{"after window", time.Date(2025, time.February, 1, 21, 0, 0, 0, loc), 8, 20, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InWindow(tt.t, loc, tt.start, tt.end))
		})
	}
}

func TestInWindowUsesLocalHour(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// 13:00 UTC on this date is 09:00 in New York.
	instant := time.Date(2025, time.June, 10, 13, 0, 0, 0, time.UTC)

	assert.True(t, InWindow(instant, loc, 8, 20))
	assert.False(t, InWindow(instant, loc, 10, 20))
}
