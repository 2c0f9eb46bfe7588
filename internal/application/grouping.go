package application

import (
	"sort"
	"time"

	"github.com/example/gymdesk-client/internal/api"
)

// SlotDay is the set of slots starting on one calendar day.
type SlotDay struct {
	Date  time.Time
	Slots []api.TimeSlot
}

// GroupSlotsByDay buckets slots by their start date in loc (UTC when nil).
// Days are ascending and slots within a day are ordered by start time; slots
// starting at the same instant keep their input order.
func GroupSlotsByDay(slots []api.TimeSlot, loc *time.Location) []SlotDay {
	if len(slots) == 0 {
		return nil
	}
	if loc == nil {
		loc = time.UTC
	}

	index := make(map[time.Time]int)
	var days []SlotDay
	for _, slot := range slots {
		start := slot.Start.In(loc)
		day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
		i, ok := index[day]
		if !ok {
			i = len(days)
			index[day] = i
			days = append(days, SlotDay{Date: day})
		}
		days[i].Slots = append(days[i].Slots, slot)
	}

	sort.Slice(days, func(i, j int) bool { return days[i].Date.Before(days[j].Date) })
	for i := range days {
		slots := days[i].Slots
		sort.SliceStable(slots, func(a, b int) bool { return slots[a].Start.Before(slots[b].Start) })
	}
	return days
}
