package models

// Status is the lifecycle stage of a production transaction.
type Status string

const (
	StatusPlanned             Status = "planned"
	StatusInProgress          Status = "in_progress"
	StatusProductionCompleted Status = "production_completed"
	StatusWashing             Status = "washing"
	StatusWashingCompleted    Status = "washing_completed"
	StatusCompleted           Status = "completed"
	StatusCancelled           Status = "cancelled"
)

// Lifecycle lists the forward path in order. Cancelled is not part of it.
var Lifecycle = []Status{
	StatusPlanned,
	StatusInProgress,
	StatusProductionCompleted,
	StatusWashing,
	StatusWashingCompleted,
	StatusCompleted,
}

// ActiveStatuses are the non-terminal statuses; a reactor may hold at most
// one transaction in any of them.
var ActiveStatuses = []Status{
	StatusPlanned,
	StatusInProgress,
	StatusProductionCompleted,
	StatusWashing,
	StatusWashingCompleted,
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Rank returns the position of s on the forward path, or -1 for cancelled
// and unknown values.
func (s Status) Rank() int {
	for i, v := range Lifecycle {
		if v == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusCancelled || s.Rank() >= 0
}

func (s Status) String() string { return string(s) }
