package app

import (
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/google/uuid"

	"proppulse-risk/internal/storage"
)

func TestWriteTrialsCSV(t *testing.T) {
	runID := uuid.New()
	const count = 5000

	trials := make([]storage.TrialRecord, count)
	var meanIRR float64
	for i := range trials {
		irr := 0.01 + float64(i%100)/1000
		trials[i] = storage.TrialRecord{
			RunID:         runID,
			TrialIndex:    i,
			IRR:           irr,
			NPV:           float64(i) * 10,
			TerminalValue: 1_000_000,
			Valid:         true,
		}
		meanIRR += irr
	}
	meanIRR /= count

	path := filepath.Join(t.TempDir(), "trials.csv")
	if err := writeTrialsCSV(path, trials); err != nil {
		t.Fatalf("writeTrialsCSV: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != count+1 {
		t.Fatalf("csv has %d lines, want %d (header + one per trial)", len(records), count+1)
	}

	header := records[0]
	want := []string{"trial_index", "irr", "npv", "terminal_value", "valid"}
	for i, col := range want {
		if header[i] != col {
			t.Fatalf("header[%d] = %q, want %q", i, header[i], col)
		}
	}

	// the exported IRRs must reproduce the run mean
	var sum float64
	for _, rec := range records[1:] {
		irr, err := strconv.ParseFloat(rec[1], 64)
		if err != nil {
			t.Fatalf("parse irr %q: %v", rec[1], err)
		}
		sum += irr
	}
	if got := sum / count; math.Abs(got-meanIRR) > 1e-6 {
		t.Fatalf("csv mean IRR = %v, want %v", got, meanIRR)
	}
}

func TestWriteTrialsCSVInvalidTrialHasEmptyIRR(t *testing.T) {
	trials := []storage.TrialRecord{
		{TrialIndex: 0, IRR: 0.08, NPV: 12.5, TerminalValue: 100, Valid: true},
		{TrialIndex: 1, IRR: math.NaN(), NPV: -40, TerminalValue: 90, Valid: false},
	}

	path := filepath.Join(t.TempDir(), "trials.csv")
	if err := writeTrialsCSV(path, trials); err != nil {
		t.Fatalf("writeTrialsCSV: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if records[2][1] != "" {
		t.Fatalf("invalid trial irr = %q, want empty", records[2][1])
	}
	if records[2][4] != "false" {
		t.Fatalf("invalid trial valid = %q, want false", records[2][4])
	}
}
