package assignments

import (
	"github.com/tidyops/tidyops-backend/pkg/db/models"
	"github.com/tidyops/tidyops-backend/pkg/enums"
)

// Aggregate computes the readiness gate over a booking's assignments. It is
// a pure function so the gate can be evaluated against any roster snapshot;
// reads are allowed to be slightly stale.
func Aggregate(assignments []models.Assignment) Readiness {
	agg := Readiness{ChecklistComplete: true}
	allFinished := true

	for _, a := range assignments {
		if !a.Status.IsActive() {
			continue
		}
		agg.ActiveAssignments++

		if a.ChecklistTotal > 0 && a.ChecklistCompleted < a.ChecklistTotal {
			agg.ChecklistComplete = false
			agg.Incomplete = append(agg.Incomplete, IncompleteAssignment{
				AssigneeType:       a.AssigneeType,
				AssigneeID:         a.AssigneeID,
				Role:               a.Role,
				ChecklistCompleted: a.ChecklistCompleted,
				ChecklistTotal:     a.ChecklistTotal,
			})
		}
		if a.Status != enums.AssignmentStatusCompleted {
			allFinished = false
		}
	}

	agg.ReadyToAutoComplete = agg.ActiveAssignments > 0 && allFinished && agg.ChecklistComplete
	return agg
}
