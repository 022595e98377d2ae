package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// Row is one historical batch from a spreadsheet export. References may be
// given by id or by name/code; the id wins when both are present.
type Row struct {
	ReactorID       uint
	ReactorName     string
	ProductID       uint
	ProductCode     string
	WorkOrderNo     string
	LotNo           string
	StartOfWork     *time.Time
	End             *time.Time
	CausticAmountKg *float64
	WashingDuration *time.Duration
	DelayDuration   *time.Duration
	DelayReasonID   uint
	DelayReasonName string
	Description     string

	// Line is the row's position among the data lines of its source,
	// counting blank lines, starting at 1 below the header. Zero when the
	// row did not come from a file.
	Line int

	// ParseErr is set when a cell could not be decoded. The row is then
	// reported as failed without touching the database.
	ParseErr error
}

// column identifies a Row field by its normalized header.
type column int

const (
	colUnknown column = iota
	colReactorID
	colReactorName
	colProductID
	colProductCode
	colWorkOrderNo
	colLotNo
	colStartOfWork
	colEnd
	colCaustic
	colWashingDuration
	colDelayDuration
	colDelayReasonID
	colDelayReasonName
	colDescription
)

var headerAliases = map[string]column{
	"reactorid":       colReactorID,
	"reactor":         colReactorName,
	"reactorname":     colReactorName,
	"productid":       colProductID,
	"product":         colProductCode,
	"productcode":     colProductCode,
	"workorder":       colWorkOrderNo,
	"workorderno":     colWorkOrderNo,
	"wo":              colWorkOrderNo,
	"lot":             colLotNo,
	"lotno":           colLotNo,
	"start":           colStartOfWork,
	"startofwork":     colStartOfWork,
	"end":             colEnd,
	"caustic":         colCaustic,
	"causticamount":   colCaustic,
	"causticamountkg": colCaustic,
	"caustickg":       colCaustic,
	"washingduration": colWashingDuration,
	"washing":         colWashingDuration,
	"delayduration":   colDelayDuration,
	"delay":           colDelayDuration,
	"delayreasonid":   colDelayReasonID,
	"delayreason":     colDelayReasonName,
	"delayreasonname": colDelayReasonName,
	"description":     colDescription,
	"notes":           colDescription,
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.TrimPrefix(h, "\ufeff")
	return strings.NewReplacer(" ", "", "_", "", "-", "", "(", "", ")", "", ".", "").Replace(h)
}

// timeLayouts are tried in order for timestamp cells.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"02.01.2006 15:04:05",
	"02.01.2006 15:04",
	"01/02/2006 15:04",
	"2006-01-02",
}

func parseTime(s string, loc *time.Location) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// parseDuration accepts Go durations ("1h30m"), clock notation ("01:30" or
// "01:30:00") and bare numbers, which are minutes.
func parseDuration(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	if parts := strings.Split(s, ":"); len(parts) == 2 || len(parts) == 3 {
		var total time.Duration
		units := []time.Duration{time.Hour, time.Minute, time.Second}
		for i, p := range parts {
			n, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil || n < 0 {
				return 0, fmt.Errorf("unrecognized duration %q", s)
			}
			total += time.Duration(n) * units[i]
		}
		return total, nil
	}
	if f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64); err == nil && f >= 0 {
		return time.Duration(f * float64(time.Minute)), nil
	}
	return 0, fmt.Errorf("unrecognized duration %q", s)
}

func parseUint(s string) (uint, error) {
	n, err := strconv.ParseUint(s, 10, 0)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return uint(n), nil
}

// RowsFromRecords maps a header line plus data lines onto Rows. Blank lines
// are skipped but still counted in Row.Line. Timestamps without a zone are
// read in loc.
func RowsFromRecords(records [][]string, loc *time.Location) ([]Row, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("importer: no header row")
	}
	if loc == nil {
		loc = time.UTC
	}

	cols := make([]column, len(records[0]))
	known := 0
	for i, h := range records[0] {
		cols[i] = headerAliases[normalizeHeader(h)]
		if cols[i] != colUnknown {
			known++
		}
	}
	if known == 0 {
		return nil, fmt.Errorf("importer: header has no known columns: %v", records[0])
	}

	var rows []Row
	for i, rec := range records[1:] {
		if blank(rec) {
			continue
		}
		row := decodeRow(rec, cols, loc)
		row.Line = i + 1
		rows = append(rows, row)
	}
	return rows, nil
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func decodeRow(rec []string, cols []column, loc *time.Location) Row {
	var r Row
	for i, raw := range rec {
		if i >= len(cols) {
			break
		}
		v := strings.TrimSpace(raw)
		if v == "" {
			continue
		}
		if err := r.set(cols[i], v, loc); err != nil && r.ParseErr == nil {
			r.ParseErr = err
		}
	}
	return r
}

func (r *Row) set(c column, v string, loc *time.Location) error {
	var err error
	switch c {
	case colReactorID:
		r.ReactorID, err = parseUint(v)
	case colReactorName:
		r.ReactorName = v
	case colProductID:
		r.ProductID, err = parseUint(v)
	case colProductCode:
		r.ProductCode = v
	case colWorkOrderNo:
		r.WorkOrderNo = v
	case colLotNo:
		r.LotNo = v
	case colStartOfWork:
		var t time.Time
		if t, err = parseTime(v, loc); err == nil {
			r.StartOfWork = &t
		}
	case colEnd:
		var t time.Time
		if t, err = parseTime(v, loc); err == nil {
			r.End = &t
		}
	case colCaustic:
		var f float64
		if f, err = strconv.ParseFloat(strings.ReplaceAll(v, ",", "."), 64); err == nil {
			r.CausticAmountKg = &f
		} else {
			err = fmt.Errorf("invalid caustic amount %q", v)
		}
	case colWashingDuration:
		var d time.Duration
		if d, err = parseDuration(v); err == nil {
			r.WashingDuration = &d
		}
	case colDelayDuration:
		var d time.Duration
		if d, err = parseDuration(v); err == nil {
			r.DelayDuration = &d
		}
	case colDelayReasonID:
		r.DelayReasonID, err = parseUint(v)
	case colDelayReasonName:
		r.DelayReasonName = v
	case colDescription:
		r.Description = v
	}
	return err
}

// ReadCSV reads a comma-separated export with a header line.
func ReadCSV(r io.Reader, loc *time.Location) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var (
		records [][]string
		header  int
	)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("importer: read csv: %w", err)
		}
		line, _ := cr.FieldPos(0)
		if records == nil {
			header = line
		}
		// csv.Reader drops empty lines; pad so record i sits i lines below
		// the header.
		for len(records) > 0 && header+len(records) < line {
			records = append(records, nil)
		}
		records = append(records, rec)
	}
	return RowsFromRecords(records, loc)
}

// ReadXLSX reads one sheet of an Excel workbook. An empty sheet name selects
// the first sheet.
func ReadXLSX(r io.Reader, sheet string, loc *time.Location) ([]Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("importer: open xlsx: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	records, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("importer: read sheet %q: %w", sheet, err)
	}
	return RowsFromRecords(records, loc)
}
