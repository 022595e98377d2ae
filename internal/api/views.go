package api

import (
	"time"

	"github.com/zulandar/reactoryard/internal/models"
)

// transactionView is the JSON shape of a transaction. Durations are
// rendered as Go duration strings.
type transactionView struct {
	ID                       uint          `json:"id"`
	Status                   models.Status `json:"status"`
	ReactorID                uint          `json:"reactor_id"`
	ProductID                uint          `json:"product_id"`
	WorkOrderNo              string        `json:"work_order_no"`
	LotNo                    string        `json:"lot_no"`
	StartOfWork              *time.Time    `json:"start_of_work"`
	End                      *time.Time    `json:"end"`
	ActualProductionDuration *string       `json:"actual_production_duration"`
	DelayDuration            *string       `json:"delay_duration"`
	DelayReasonID            *uint         `json:"delay_reason_id"`
	WashingDuration          *string       `json:"washing_duration"`
	CausticAmountKg          *float64      `json:"caustic_amount_kg"`
	Description              string        `json:"description"`
	ProductionCompletedAt    *time.Time    `json:"production_completed_at"`
	WashingStartedAt         *time.Time    `json:"washing_started_at"`
	WashingCompletedAt       *time.Time    `json:"washing_completed_at"`
	Version                  int64         `json:"version"`
	CreatedAt                time.Time     `json:"created_at"`
	UpdatedAt                time.Time     `json:"updated_at"`
}

func durationString(d *time.Duration) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func toView(t *models.PktTransaction) transactionView {
	return transactionView{
		ID:                       t.ID,
		Status:                   t.Status,
		ReactorID:                t.ReactorID,
		ProductID:                t.ProductID,
		WorkOrderNo:              t.WorkOrderNo,
		LotNo:                    t.LotNo,
		StartOfWork:              t.StartOfWork,
		End:                      t.End,
		ActualProductionDuration: durationString(t.ActualProductionDuration),
		DelayDuration:            durationString(t.DelayDuration),
		DelayReasonID:            t.DelayReasonID,
		WashingDuration:          durationString(t.WashingDuration),
		CausticAmountKg:          t.CausticAmountKg,
		Description:              t.Description,
		ProductionCompletedAt:    t.ProductionCompletedAt,
		WashingStartedAt:         t.WashingStartedAt,
		WashingCompletedAt:       t.WashingCompletedAt,
		Version:                  t.Version,
		CreatedAt:                t.CreatedAt,
		UpdatedAt:                t.UpdatedAt,
	}
}

// eventView is the JSON shape of one history entry.
type eventView struct {
	ID            uint          `json:"id"`
	EventID       string        `json:"event_id"`
	TransactionID uint          `json:"transaction_id"`
	ReactorID     uint          `json:"reactor_id"`
	From          models.Status `json:"from,omitempty"`
	To            models.Status `json:"to"`
	Note          string        `json:"note,omitempty"`
	OccurredAt    time.Time     `json:"occurred_at"`
}

func toEventView(ev models.TransactionEvent) eventView {
	return eventView{
		ID:            ev.ID,
		EventID:       ev.EventID,
		TransactionID: ev.TransactionID,
		ReactorID:     ev.ReactorID,
		From:          ev.FromStatus,
		To:            ev.ToStatus,
		Note:          ev.Note,
		OccurredAt:    ev.OccurredAt,
	}
}
