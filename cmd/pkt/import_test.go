package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zulandar/reactoryard/internal/importer"
)

const sampleCSV = "reactor,product,work order,lot,start,end,caustic,washing\n" +
	"R1,P1,WO-1,L-1,2026-01-10 06:00,2026-01-10 12:00,4,1h\n" +
	"R9,P1,WO-2,L-2,,,,\n" +
	"R2,P1,WO-3,L-3,2026-01-10 07:00,,,\n"

func writeCSV(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "batches.csv")
	if err := os.WriteFile(path, []byte(sampleCSV), 0644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	return path
}

func TestImport_ReportsRowFailures(t *testing.T) {
	cfg := initDB(t)
	out, err := run(t, "", "import", writeCSV(t), "-c", cfg)
	if err == nil || !strings.Contains(err.Error(), "1 of 3 rows failed") {
		t.Fatalf("err = %v, want 1 of 3 rows failed", err)
	}
	for _, want := range []string{"3 rows, 2 imported, 1 failed", "error: row 2: reactor not found"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	out, err = run(t, "", "tx", "list", "--status", "completed", "-c", cfg)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "WO-1") || !strings.Contains(out, "2026-01-10 12:00") {
		t.Errorf("completed list = %q", out)
	}
}

func TestImport_JSON(t *testing.T) {
	cfg := initDB(t)
	out, err := run(t, "", "import", writeCSV(t), "--json", "-c", cfg)
	if err != nil {
		t.Fatalf("import --json: %v", err)
	}
	var res importer.Result
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if res.Total != 3 || res.SuccessCount != 2 || res.FailureCount != 1 {
		t.Errorf("result = %+v", res)
	}
}

func TestImport_BadTimeZone(t *testing.T) {
	_, err := run(t, "", "import", "x.csv", "--tz", "Nowhere/Nothing", "-c", "unused.yaml")
	if err == nil || !strings.Contains(err.Error(), "time zone") {
		t.Errorf("err = %v, want time zone error", err)
	}
}

func TestProgressPrinter_NotATerminal(t *testing.T) {
	if p := progressPrinter(new(bytes.Buffer)); p != nil {
		t.Error("expected no progress printer for a buffer")
	}
}
