package pkt

import (
	"github.com/zulandar/reactoryard/internal/errs"
	"github.com/zulandar/reactoryard/internal/models"
)

// ValidTransitions maps each non-terminal status to the statuses it may move
// to. Completed and cancelled have no entry: nothing leaves them.
var ValidTransitions = map[models.Status][]models.Status{
	models.StatusPlanned:             {models.StatusInProgress, models.StatusCancelled},
	models.StatusInProgress:          {models.StatusProductionCompleted, models.StatusCancelled},
	models.StatusProductionCompleted: {models.StatusWashing, models.StatusCancelled},
	models.StatusWashing:             {models.StatusWashingCompleted, models.StatusCancelled},
	models.StatusWashingCompleted:    {models.StatusCompleted, models.StatusCancelled},
}

func isValidTransition(from, to models.Status) bool {
	for _, v := range ValidTransitions[from] {
		if v == to {
			return true
		}
	}
	return false
}

// checkTransition returns an InvalidTransitionError when id may not move
// from -> to.
func checkTransition(id uint, from, to models.Status) error {
	if !isValidTransition(from, to) {
		return &errs.InvalidTransitionError{ID: id, From: string(from), To: string(to)}
	}
	return nil
}
