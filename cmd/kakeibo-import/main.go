// Command kakeibo-import ingests one expense export and optionally prints
// the summary and settlement of a period.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"kakeibo/internal/backend"
	"kakeibo/internal/cli"
	"kakeibo/internal/config"
	"kakeibo/internal/core"
	"kakeibo/internal/log"
	"kakeibo/internal/services"
	"kakeibo/internal/sheets"
	"kakeibo/internal/sheets/csvfile"
)

type ingestReport struct {
	Success        bool     `json:"success"`
	BatchID        string   `json:"batchId"`
	Processed      int      `json:"processed"`
	Errors         []string `json:"errors"`
	TouchedPeriods []string `json:"touchedPeriods"`
	Failure        string   `json:"failure,omitempty"`
}

type personReport struct {
	Person string `json:"person"`
	Paid   int64  `json:"paid"`
}

type transferReport struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount int64  `json:"amount"`
}

type settlementReport struct {
	Period     string           `json:"period"`
	GrandTotal int64            `json:"grandTotal"`
	Persons    []personReport   `json:"persons"`
	FairShare  int64            `json:"fairShare"`
	Transfers  []transferReport `json:"transfers"`
}

func newSettlementReport(sum core.Summary, st core.Settlement) settlementReport {
	r := settlementReport{
		Period:     sum.Period.String(),
		GrandTotal: sum.GrandTotal,
		Persons:    make([]personReport, 0, len(sum.PersonTotals)),
		FairShare:  st.FairShare,
		Transfers:  make([]transferReport, 0, len(st.Transfers)),
	}
	for _, p := range sum.PersonTotals {
		r.Persons = append(r.Persons, personReport{Person: p.Person, Paid: p.Amount})
	}
	for _, t := range st.Transfers {
		r.Transfers = append(r.Transfers, transferReport(t))
	}
	return r
}

func main() {
	var (
		file    = flag.String("file", "", "CSV export to ingest (- for stdin)")
		sheet   = flag.Bool("sheet", false, "ingest the configured Google Sheets range")
		summary = flag.String("summary", "", "print summary and settlement for period YYYY-MM")
	)
	flag.Parse()

	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentImport)
	os.Exit(run(context.Background(), logger, *file, *sheet, *summary, os.Stdout))
}

func run(ctx context.Context, logger *log.Logger, file string, sheet bool, summary string, out io.Writer) int {
	if file == "" && !sheet && summary == "" {
		fmt.Fprintln(os.Stderr, "usage: kakeibo-import [-file export.csv | -sheet] [-summary YYYY-MM]")
		return 2
	}
	if file != "" && sheet {
		fmt.Fprintln(os.Stderr, "-file and -sheet are mutually exclusive")
		return 2
	}
	var period core.Period
	if summary != "" {
		p, err := core.ParsePeriod(summary)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid -summary: %v\n", err)
			return 2
		}
		period = p
	}

	cfg := cli.LoadAndValidateConfig(logger)
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		return 1
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to create backend", log.FieldError, err)
		return 1
	}
	defer res.Cleanup()

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")

	if file != "" || sheet {
		rows, closeRows, err := openRows(ctx, file, sheet, cfg)
		if err != nil {
			logger.Error("Failed to open row source", log.FieldError, err)
			return 1
		}
		result, ingestErr := res.Ledger.Ingest(ctx, rows)
		closeRows()

		report := ingestReport{
			Success:        result.Success,
			BatchID:        result.BatchID,
			Processed:      result.Processed,
			Errors:         result.Errors,
			TouchedPeriods: make([]string, 0, len(result.TouchedPeriods)),
		}
		for _, p := range result.TouchedPeriods {
			report.TouchedPeriods = append(report.TouchedPeriods, p.String())
		}
		if report.Errors == nil {
			report.Errors = []string{}
		}
		if ingestErr != nil {
			report.Failure = ingestErr.Error()
		}
		_ = enc.Encode(report)

		var perr *services.PersistenceError
		switch {
		case errors.Is(ingestErr, services.ErrNoValidRecords):
			logger.Warn("Nothing ingested", log.FieldRowErrors, len(result.Errors))
			return 1
		case errors.As(ingestErr, &perr):
			logger.Error("Ingest rolled back", log.FieldPeriods, perr.Periods, log.FieldError, perr.Err)
			return 1
		case ingestErr != nil:
			logger.Error("Ingest aborted", log.FieldError, ingestErr)
			return 1
		}
	}

	if summary != "" {
		sum, st, err := res.Ledger.Settle(ctx, period)
		if err != nil {
			logger.Error("Failed to summarize", log.FieldPeriod, period, log.FieldError, err)
			return 1
		}
		_ = enc.Encode(newSettlementReport(sum, st))
	}
	return 0
}

// openRows returns the selected row source and a func releasing it.
func openRows(ctx context.Context, file string, sheet bool, cfg *config.Config) (sheets.RowReader, func(), error) {
	if sheet {
		client, err := cli.NewSheetsClient(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		rows, err := client.Rows(ctx)
		if err != nil {
			return nil, nil, err
		}
		return rows, func() {}, nil
	}

	var in io.ReadCloser = os.Stdin
	if file != "-" {
		f, err := os.Open(file)
		if err != nil {
			return nil, nil, err
		}
		in = f
	}
	rows, err := csvfile.NewReader(in)
	if err != nil {
		in.Close()
		return nil, nil, fmt.Errorf("%s: %w", file, err)
	}
	return rows, func() { in.Close() }, nil
}
