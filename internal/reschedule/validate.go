package reschedule

import (
	"sort"
	"time"

	"github.com/jimdaga/capacity-planner/internal/apperr"
	"github.com/jimdaga/capacity-planner/internal/models"
)

// ValidateProposal checks an untrusted proposal against the plan's remaining
// tasks and the window [start, end). It returns the accepted timings sorted
// by start and the deferred ids, including every remaining task the proposal
// did not mention.
func ValidateProposal(p *Proposal, tasks []models.PlanTask, start, end time.Time) ([]models.TaskTiming, []uint, error) {
	if p == nil {
		return nil, nil, apperr.Validation("proposal", "is empty")
	}

	known := make(map[uint]models.PlanTask, len(tasks))
	for _, t := range tasks {
		known[t.ID] = t
	}
	seen := make(map[uint]bool, len(p.Tasks)+len(p.Deferred))
	claim := func(id uint) error {
		t, ok := known[id]
		if !ok {
			return apperr.Validation("proposal", "task %d does not belong to the plan", id)
		}
		if t.Completed {
			return apperr.Validation("proposal", "task %d is already completed", id)
		}
		if seen[id] {
			return apperr.Validation("proposal", "task %d appears more than once", id)
		}
		seen[id] = true
		return nil
	}

	timings := make([]models.TaskTiming, 0, len(p.Tasks))
	for _, slot := range p.Tasks {
		if err := claim(slot.TaskID); err != nil {
			return nil, nil, err
		}
		if !slot.End.After(slot.Start) {
			return nil, nil, apperr.Validation("proposal", "task %d ends before it starts", slot.TaskID)
		}
		if slot.Start.Before(start) || slot.End.After(end) {
			return nil, nil, apperr.Validation("proposal", "task %d is scheduled outside %s-%s",
				slot.TaskID, start.Format(time.Kitchen), end.Format(time.Kitchen))
		}
		timings = append(timings, models.TaskTiming{TaskID: slot.TaskID, NewStart: slot.Start.UTC(), NewEnd: slot.End.UTC()})
	}
	for _, id := range p.Deferred {
		if err := claim(id); err != nil {
			return nil, nil, err
		}
	}

	sort.Slice(timings, func(i, j int) bool { return timings[i].NewStart.Before(timings[j].NewStart) })
	for i := 1; i < len(timings); i++ {
		if timings[i].NewStart.Before(timings[i-1].NewEnd) {
			return nil, nil, apperr.Validation("proposal", "tasks %d and %d overlap", timings[i-1].TaskID, timings[i].TaskID)
		}
	}

	// Slots may be compressed, but the estimates still have to fit the day.
	budget := availableMinutes(start, end)
	scheduled := 0
	for _, t := range timings {
		scheduled += known[t.TaskID].EstimatedMinutes
	}
	if scheduled > budget {
		return nil, nil, &apperr.BudgetViolationError{ScheduledMinutes: scheduled, AvailableMinutes: budget}
	}

	var deferred []uint
	for _, t := range incomplete(tasks) {
		if !seen[t.ID] || containsID(p.Deferred, t.ID) {
			deferred = append(deferred, t.ID)
		}
	}
	return timings, deferred, nil
}

func containsID(ids []uint, id uint) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
