package reschedule

import (
	"fmt"
	"sort"
	"time"

	"github.com/jimdaga/capacity-planner/internal/models"
)

// roundUp returns t rounded up to the next multiple of slot.
func roundUp(t time.Time, slot time.Duration) time.Time {
	if slot <= 0 {
		return t
	}
	r := t.Truncate(slot)
	if r.Before(t) {
		r = r.Add(slot)
	}
	return r
}

// availableMinutes is the whole number of minutes in [start, end), never negative.
func availableMinutes(start, end time.Time) int {
	if !end.After(start) {
		return 0
	}
	return int(end.Sub(start).Minutes())
}

// incomplete returns the plan's incomplete tasks ordered by position.
func incomplete(tasks []models.PlanTask) []models.PlanTask {
	out := make([]models.PlanTask, 0, len(tasks))
	for _, t := range tasks {
		if !t.Completed {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

// Distribute packs the remaining tasks into [start, end).
//
// Tasks are considered by priority, highest first, ties kept in position
// order. A task is accepted when it still fits the remaining budget,
// otherwise it is deferred and the next one is tried. Accepted tasks are laid
// out back-to-back from start in their original position order.
func Distribute(tasks []models.PlanTask, start, end time.Time) (timings []models.TaskTiming, deferred []uint, used int) {
	budget := availableMinutes(start, end)
	remaining := incomplete(tasks)

	byPriority := make([]models.PlanTask, len(remaining))
	copy(byPriority, remaining)
	sort.SliceStable(byPriority, func(i, j int) bool {
		return byPriority[i].Priority.Rank() > byPriority[j].Priority.Rank()
	})

	accepted := make(map[uint]bool, len(byPriority))
	for _, t := range byPriority {
		if used+t.EstimatedMinutes <= budget {
			accepted[t.ID] = true
			used += t.EstimatedMinutes
		}
	}

	cursor := start
	for _, t := range remaining {
		if !accepted[t.ID] {
			deferred = append(deferred, t.ID)
			continue
		}
		next := cursor.Add(time.Duration(t.EstimatedMinutes) * time.Minute)
		timings = append(timings, models.TaskTiming{TaskID: t.ID, NewStart: cursor, NewEnd: next})
		cursor = next
	}
	return timings, deferred, used
}

func distributionReasoning(scheduled, deferred, used, budget int) string {
	if scheduled == 0 && deferred == 0 {
		return "No remaining tasks to schedule."
	}
	msg := fmt.Sprintf("Scheduled %d remaining task(s) using %d of %d available minutes.", scheduled, used, budget)
	if deferred > 0 {
		msg += fmt.Sprintf(" Deferred %d lower-priority task(s) that no longer fit today.", deferred)
	}
	return msg
}
