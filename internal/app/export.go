package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	chart "github.com/wcharczuk/go-chart/v2"

	"proppulse-risk/internal/storage"
)

// Export writes a run's raw trials as CSV and/or its IRR distribution as a
// PNG histogram. With no --run the property's current run is used.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	run, err := a.resolveRun(ctx, store, opts)
	if err != nil {
		return err
	}

	if opts.CSVPath != "" {
		trials, err := store.GetTrials(ctx, run.RunID)
		if err != nil {
			return err
		}
		if err := writeTrialsCSV(opts.CSVPath, trials); err != nil {
			return err
		}
		a.Logger.Info().Str("path", opts.CSVPath).Int("trials", len(trials)).Msg("trials exported")
	}

	if opts.PNGPath != "" {
		if err := writeHistogramPNG(opts.PNGPath, run); err != nil {
			return err
		}
		a.Logger.Info().Str("path", opts.PNGPath).Msg("histogram exported")
	}

	return nil
}

func (a *App) resolveRun(ctx context.Context, store *storage.Store, opts ExportOptions) (storage.SimulationRun, error) {
	if opts.RunID != "" {
		runID, err := uuid.Parse(opts.RunID)
		if err != nil {
			return storage.SimulationRun{}, fmt.Errorf("invalid --run value: %w", err)
		}
		return store.GetRun(ctx, runID)
	}
	if opts.PropertyID == "" {
		return storage.SimulationRun{}, errors.New("either --run or --property must be provided")
	}
	return store.GetCurrentRun(ctx, opts.PropertyID)
}

func writeTrialsCSV(path string, trials []storage.TrialRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"trial_index", "irr", "npv", "terminal_value", "valid"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, trial := range trials {
		irr := ""
		if !math.IsNaN(trial.IRR) {
			irr = strconv.FormatFloat(trial.IRR, 'f', -1, 64)
		}
		record := []string{
			strconv.Itoa(trial.TrialIndex),
			irr,
			strconv.FormatFloat(trial.NPV, 'f', -1, 64),
			strconv.FormatFloat(trial.TerminalValue, 'f', -1, 64),
			strconv.FormatBool(trial.Valid),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeHistogramPNG(path string, run storage.SimulationRun) error {
	if len(run.Histogram) == 0 {
		return errors.New("run has no histogram data")
	}
	if err := ensureDir(path); err != nil {
		return err
	}

	bars := make([]chart.Value, len(run.Histogram))
	for i, bin := range run.Histogram {
		bars[i] = chart.Value{
			Value: float64(bin.Count),
			Label: fmt.Sprintf("%.1f%%", (bin.Low+bin.High)/2*100),
		}
	}

	graph := chart.BarChart{
		Title:    fmt.Sprintf("%s IRR distribution (%s)", run.PropertyID, run.Grade),
		Width:    1280,
		Height:   720,
		BarWidth: 1024 / len(bars),
		XAxis: chart.Style{
			TextRotationDegrees: 45,
		},
		YAxis: chart.YAxis{
			Name: "Trials",
		},
		Bars: bars,
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
