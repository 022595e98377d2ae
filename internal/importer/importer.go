// Package importer bulk-loads historical production batches. Rows are
// independent: each is replayed through the lifecycle engine at its own
// timestamps, and a failing row is reported without stopping the batch.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/zulandar/reactoryard/internal/errs"
	"github.com/zulandar/reactoryard/internal/metrics"
	"github.com/zulandar/reactoryard/internal/models"
	"github.com/zulandar/reactoryard/internal/pkt"
	"github.com/zulandar/reactoryard/internal/registry"
	"gorm.io/gorm"
)

// Result summarizes one import run. Errors and Warnings are prefixed with
// the 1-based row number.
type Result struct {
	BatchID      string   `json:"batch_id"`
	Total        int      `json:"total"`
	SuccessCount int      `json:"success_count"`
	FailureCount int      `json:"failure_count"`
	Errors       []string `json:"errors"`
	Warnings     []string `json:"warnings"`
}

// Opts configures an Importer.
type Opts struct {
	// MaxAttempts bounds tries per engine call for conflict and store
	// errors. Default 3.
	MaxAttempts int
	// Backoff is multiplied by the attempt number between retries.
	Backoff  time.Duration
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Progress func(done, total int)
}

// Importer drives rows through a pkt.Engine.
type Importer struct {
	engine      *pkt.Engine
	maxAttempts int
	backoff     time.Duration
	logger      *slog.Logger
	metrics     *metrics.Metrics
	progress    func(done, total int)
}

// DefaultBackoff is the base wait between retries of a transient failure.
const DefaultBackoff = 100 * time.Millisecond

// New creates an Importer. Replayed transitions are persisted but not
// published to engine's notifier.
func New(engine *pkt.Engine, opts Opts) *Importer {
	im := &Importer{
		engine:      engine.WithoutNotifier(),
		maxAttempts: opts.MaxAttempts,
		backoff:     opts.Backoff,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		progress:    opts.Progress,
	}
	if im.maxAttempts < 1 {
		im.maxAttempts = 3
	}
	if im.logger == nil {
		im.logger = slog.Default()
	}
	return im
}

// ImportRows processes every row and reports per-row outcomes. It never
// returns early on a row failure; a cancelled ctx fails the remaining rows.
func (im *Importer) ImportRows(ctx context.Context, rows []Row) Result {
	res := Result{BatchID: uuid.New().String(), Total: len(rows), Errors: []string{}, Warnings: []string{}}
	log := im.logger.With("batch_id", res.BatchID)
	log.Info("importer: start", "rows", len(rows))

	for i, row := range rows {
		done := i + 1
		n := row.Line
		if n == 0 {
			n = done
		}
		var (
			warnings []string
			err      error
		)
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		} else {
			warnings, err = im.importRow(ctx, row)
		}

		for _, w := range warnings {
			res.Warnings = append(res.Warnings, fmt.Sprintf("row %d: %s", n, w))
		}
		if err != nil {
			res.FailureCount++
			res.Errors = append(res.Errors, fmt.Sprintf("row %d: %s", n, message(err)))
			log.Warn("importer: row failed", "row", n, "error", err)
		} else {
			res.SuccessCount++
		}
		im.metrics.ObserveImportRow(err == nil)
		if im.progress != nil {
			im.progress(done, len(rows))
		}
	}

	log.Info("importer: done", "success", res.SuccessCount, "failed", res.FailureCount, "warnings", len(res.Warnings))
	return res
}

// message renders err for a row report. Missing references read as
// "<entity> not found" without the lookup key.
func message(err error) string {
	var nf *errs.NotFoundError
	if errors.As(err, &nf) {
		return nf.Entity + " not found"
	}
	return err.Error()
}

// resolved holds a row's references as ids.
type resolved struct {
	reactorID     uint
	productID     uint
	delayReasonID *uint
}

func (im *Importer) importRow(ctx context.Context, row Row) ([]string, error) {
	if row.ParseErr != nil {
		return nil, row.ParseErr
	}
	warnings, err := checkRow(&row)
	if err != nil {
		return warnings, err
	}

	ref, err := im.resolve(im.engine.Store().DB(ctx), row)
	if err != nil {
		return warnings, err
	}

	eng := im.engine
	if row.StartOfWork != nil {
		eng = im.engine.At(*row.StartOfWork)
	}
	var t *models.PktTransaction
	err = im.retry(ctx, func() error {
		var cerr error
		t, cerr = eng.Create(ctx, pkt.CreateOpts{
			ReactorID:   ref.reactorID,
			ProductID:   ref.productID,
			WorkOrderNo: row.WorkOrderNo,
			LotNo:       row.LotNo,
			Description: row.Description,
		})
		return cerr
	})
	if err != nil {
		return warnings, err
	}

	if err := im.replay(ctx, t.ID, row, ref); err != nil {
		// Leave no half-imported batch holding the reactor.
		if _, cerr := im.engine.Cancel(context.WithoutCancel(ctx), t.ID, "import failed: "+message(err)); cerr != nil {
			im.logger.Error("importer: cancel after failed replay", "transaction_id", t.ID, "error", cerr)
		}
		return warnings, err
	}
	return warnings, nil
}

// checkRow validates a row's own fields before anything is written and
// drops values that cannot be recorded, returning warnings for them.
func checkRow(row *Row) ([]string, error) {
	var warnings []string
	if row.ReactorID == 0 && row.ReactorName == "" {
		return nil, errs.Invalid("reactor", "is required")
	}
	if row.ProductID == 0 && row.ProductCode == "" {
		return nil, errs.Invalid("product", "is required")
	}
	if row.WorkOrderNo == "" {
		return nil, errs.Invalid("workOrderNo", "is required")
	}

	hasReason := row.DelayReasonID != 0 || row.DelayReasonName != ""
	switch {
	case row.DelayDuration != nil && *row.DelayDuration > 0 && !hasReason:
		return nil, errs.Invalid("delayReason", "is required when delayDuration is given")
	case (row.DelayDuration == nil || *row.DelayDuration == 0) && hasReason:
		warnings = append(warnings, "delay reason ignored without delay duration")
		row.DelayReasonID, row.DelayReasonName = 0, ""
		row.DelayDuration = nil
	case row.DelayDuration != nil && *row.DelayDuration == 0:
		row.DelayDuration = nil
	}

	if row.End == nil {
		if row.CausticAmountKg != nil || row.WashingDuration != nil {
			warnings = append(warnings, "washing data ignored for unfinished batch")
			row.CausticAmountKg, row.WashingDuration = nil, nil
		}
		if row.DelayDuration != nil {
			warnings = append(warnings, "delay ignored for unfinished batch")
			row.DelayDuration, row.DelayReasonID, row.DelayReasonName = nil, 0, ""
		}
		return warnings, nil
	}

	switch {
	case row.StartOfWork == nil:
		return warnings, errs.Invalid("startOfWork", "is required when end is set")
	case row.End.Before(*row.StartOfWork):
		return warnings, errs.Invalid("end", "%s is before start of work %s",
			row.End.Format(time.RFC3339), row.StartOfWork.Format(time.RFC3339))
	case row.CausticAmountKg == nil || *row.CausticAmountKg <= 0:
		return warnings, errs.Invalid("causticAmountKg", "must be greater than zero to complete a batch")
	case row.WashingDuration != nil && *row.WashingDuration > row.End.Sub(*row.StartOfWork):
		return warnings, errs.Invalid("washingDuration", "%s exceeds the batch span", *row.WashingDuration)
	}
	if row.WashingDuration == nil {
		warnings = append(warnings, "washing duration missing, recorded as zero")
	}
	return warnings, nil
}

func (im *Importer) resolve(db *gorm.DB, row Row) (resolved, error) {
	var ref resolved

	if row.ReactorID != 0 {
		r, err := registry.GetReactor(db, row.ReactorID)
		if err != nil {
			return ref, err
		}
		ref.reactorID = r.ID
	} else {
		r, err := registry.FindReactorByName(db, row.ReactorName)
		if err != nil {
			return ref, err
		}
		ref.reactorID = r.ID
	}

	if row.ProductID != 0 {
		p, err := registry.GetProduct(db, row.ProductID)
		if err != nil {
			return ref, err
		}
		ref.productID = p.ID
	} else {
		p, err := registry.FindProductByCode(db, row.ProductCode)
		if err != nil {
			return ref, err
		}
		ref.productID = p.ID
	}

	switch {
	case row.DelayReasonID != 0:
		d, err := registry.GetDelayReason(db, row.DelayReasonID)
		if err != nil {
			return ref, err
		}
		ref.delayReasonID = &d.ID
	case row.DelayReasonName != "":
		d, err := registry.FindDelayReasonByName(db, row.DelayReasonName)
		if err != nil {
			return ref, err
		}
		ref.delayReasonID = &d.ID
	}
	return ref, nil
}

// replay drives a created batch through the transitions its row implies,
// each at its historical time.
func (im *Importer) replay(ctx context.Context, id uint, row Row, ref resolved) error {
	if row.StartOfWork == nil {
		return nil
	}
	start := *row.StartOfWork
	if err := im.step(ctx, start, func(e *pkt.Engine) error {
		_, err := e.Start(ctx, id)
		return err
	}); err != nil {
		return err
	}
	if row.End == nil {
		return nil
	}

	end := *row.End
	washStart := end
	if row.WashingDuration != nil {
		washStart = end.Add(-*row.WashingDuration)
	}

	steps := []struct {
		at time.Time
		fn func(e *pkt.Engine) error
	}{
		{washStart, func(e *pkt.Engine) error {
			_, err := e.CompleteProduction(ctx, id, pkt.CompleteProductionOpts{
				DelayReasonID: ref.delayReasonID,
				DelayDuration: row.DelayDuration,
			})
			return err
		}},
		{washStart, func(e *pkt.Engine) error {
			_, err := e.StartWashing(ctx, id, *row.CausticAmountKg)
			return err
		}},
		{end, func(e *pkt.Engine) error {
			_, err := e.CompleteWashing(ctx, id)
			return err
		}},
		{end, func(e *pkt.Engine) error {
			_, err := e.Finish(ctx, id)
			return err
		}},
	}
	for _, s := range steps {
		if err := im.step(ctx, s.at, s.fn); err != nil {
			return err
		}
	}
	return nil
}

func (im *Importer) step(ctx context.Context, at time.Time, fn func(e *pkt.Engine) error) error {
	e := im.engine.At(at)
	return im.retry(ctx, func() error { return fn(e) })
}

// retry runs fn until it succeeds, fails with a non-retryable error, or
// MaxAttempts is reached.
func (im *Importer) retry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= im.maxAttempts; attempt++ {
		err = fn()
		if err == nil || !errs.IsRetryable(err) || attempt == im.maxAttempts {
			return err
		}
		im.logger.Debug("importer: retrying", "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * im.backoff):
		}
	}
	return err
}
