package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/reactoryard/internal/importer"
	"golang.org/x/term"
)

func newImportCmd() *cobra.Command {
	var (
		configPath string
		sheet      string
		tz         string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import historical batches from CSV or XLSX",
		Long: `Replays each row of a spreadsheet export as a production transaction at its
recorded timestamps. Rows are independent: a failing row is reported and the
rest continue. Files ending in .xlsx are read as workbooks, anything else
as CSV.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, configPath, args[0], sheet, tz, asJSON)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to tracker config file")
	cmd.Flags().StringVar(&sheet, "sheet", "", "worksheet name (default: first sheet)")
	cmd.Flags().StringVar(&tz, "tz", "UTC", "time zone for timestamps without an offset")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}

func runImport(cmd *cobra.Command, configPath, path, sheet, tz string, asJSON bool) error {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return fmt.Errorf("time zone %q: %w", tz, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var rows []importer.Row
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		rows, err = importer.ReadXLSX(f, sheet, loc)
	} else {
		rows, err = importer.ReadCSV(f, loc)
	}
	if err != nil {
		return err
	}

	rt, err := newRuntime(configPath, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	out := cmd.OutOrStdout()
	im := importer.New(rt.engine, importer.Opts{
		MaxAttempts: rt.cfg.Database.MaxAttempts,
		Backoff:     importer.DefaultBackoff,
		Logger:      rt.logger,
		Metrics:     rt.metrics,
		Progress:    progressPrinter(out),
	})
	res := im.ImportRows(cmd.Context(), rows)

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	printImportResult(out, res)
	if res.FailureCount > 0 {
		return fmt.Errorf("%d of %d rows failed", res.FailureCount, res.Total)
	}
	return nil
}

// progressPrinter redraws a progress line when out is a terminal and
// prints nothing otherwise.
func progressPrinter(out io.Writer) func(done, total int) {
	f, ok := out.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return nil
	}
	return func(done, total int) {
		fmt.Fprintf(f, "\rImporting row %d/%d", done, total)
		if done == total {
			fmt.Fprintln(f)
		}
	}
}

func printImportResult(out io.Writer, res importer.Result) {
	fmt.Fprintf(out, "Import %s: %d rows, %d imported, %d failed\n",
		res.BatchID, res.Total, res.SuccessCount, res.FailureCount)
	for _, e := range res.Errors {
		fmt.Fprintf(out, "  error: %s\n", e)
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(out, "  warning: %s\n", w)
	}
}
