package api

import (
	"time"

	"github.com/zulandar/reactoryard/internal/models"
	"github.com/zulandar/reactoryard/internal/registry"
	"gorm.io/gorm"
)

// ReactorRow is one line of the reactor board.
type ReactorRow struct {
	ID            uint          `json:"id"`
	Name          string        `json:"name"`
	Active        bool          `json:"active"`
	Busy          bool          `json:"busy"`
	TransactionID uint          `json:"transaction_id,omitempty"`
	Status        models.Status `json:"status,omitempty"`
	WorkOrderNo   string        `json:"work_order_no,omitempty"`
	StartOfWork   *time.Time    `json:"start_of_work,omitempty"`
}

// ReactorBoard returns every reactor with the batch currently holding it.
func ReactorBoard(db *gorm.DB) ([]ReactorRow, error) {
	reactors, err := registry.ListReactors(db)
	if err != nil {
		return nil, err
	}

	var active []models.PktTransaction
	if err := db.Where("status IN ?", models.ActiveStatuses).Find(&active).Error; err != nil {
		return nil, err
	}
	holders := make(map[uint]models.PktTransaction, len(active))
	for _, t := range active {
		holders[t.ReactorID] = t
	}

	rows := make([]ReactorRow, len(reactors))
	for i, r := range reactors {
		rows[i] = ReactorRow{ID: r.ID, Name: r.Name, Active: r.Active}
		if t, ok := holders[r.ID]; ok {
			rows[i].Busy = true
			rows[i].TransactionID = t.ID
			rows[i].Status = t.Status
			rows[i].WorkOrderNo = t.WorkOrderNo
			rows[i].StartOfWork = t.StartOfWork
		}
	}
	return rows, nil
}

// StatusCounts returns the number of transactions per status. Statuses with
// no rows are reported as zero.
func StatusCounts(db *gorm.DB) (map[models.Status]int, error) {
	type row struct {
		Status models.Status
		Count  int
	}
	var rows []row
	if err := db.Model(&models.PktTransaction{}).
		Select("status, count(*) as count").
		Group("status").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[models.Status]int, len(models.Lifecycle)+1)
	for _, s := range append(models.Lifecycle, models.StatusCancelled) {
		counts[s] = 0
	}
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}
