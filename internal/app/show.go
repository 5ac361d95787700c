package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"proppulse-risk/internal/grading"
)

// Show prints recent simulation runs for a property, newest first.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	runs, err := store.ListRunsByProperty(ctx, opts.PropertyID, opts.Limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(os.Stdout, "no runs found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tGrade\tP(IRR<0)\tMean IRR\tIRR p5\tBreakeven\tTrials\tRun ID")

	for _, run := range runs {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%.2f%%\t%.2f%%\t%.2f%%\t%s\t%d\t%s\n",
			run.CreatedAt.UTC().Format(time.RFC3339),
			run.Grade,
			run.ProbNegativeIRR*100,
			run.MeanIRR*100,
			run.Percentiles.P5*100,
			formatBreakeven(run.BreakevenYearMean),
			run.TrialCount,
			run.RunID,
		)
	}

	return writer.Flush()
}

// Grades lists every property currently carrying the given grade.
func (a *App) Grades(ctx context.Context, grade string) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	parsed, err := grading.ParseGrade(strings.ToLower(grade))
	if err != nil {
		return err
	}

	ids, err := store.ListPropertyIDsByGrade(ctx, parsed)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Fprintf(os.Stdout, "no properties graded %s\n", parsed)
		return nil
	}

	for _, id := range ids {
		fmt.Fprintln(os.Stdout, id)
	}
	return nil
}
