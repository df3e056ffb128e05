package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"inspection_cycle_sync/internal/app"
	"inspection_cycle_sync/internal/domain/checklist"
	"inspection_cycle_sync/internal/domain/cycle"

	"github.com/fatih/color"
)

var (
	okColor     = color.New(color.FgHiGreen)
	defectColor = color.New(color.FgRed)
	queuedColor = color.New(color.FgYellow)
)

func okMark() string     { return okColor.Sprint("✓") }
func queuedMark() string { return queuedColor.Sprint("…") }

// slotStatus colours a per-slot status string.
func slotStatus(status string) string {
	if status == checklist.StatusOK {
		return okColor.Sprint(status)
	}
	return defectColor.Sprint(status)
}

func printCycles(out io.Writer, v checklist.Variant, records []cycle.Record, pending []int) {
	if len(records) == 0 {
		fmt.Fprintln(out, "No cycles recorded")
		return
	}
	queued := make(map[int]bool, len(pending))
	for _, n := range pending {
		queued[n] = true
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	header := []string{"CYCLE", "SHIFT", "INSPECTOR", "PRODUCT"}
	for _, slot := range v.Slots {
		header = append(header, strings.ToUpper(slot.Key.String()))
	}
	fmt.Fprintln(w, strings.Join(header, "\t"))
	for _, rec := range records {
		number := fmt.Sprint(rec.CycleNumber)
		if queued[rec.CycleNumber] {
			number += queuedColor.Sprint(" [queued]")
		}
		row := []string{number, dash(rec.Shift), dash(rec.Inspector), dash(rec.Product)}
		for _, slot := range v.Slots {
			row = append(row, slotStatus(rec.StatusByField[slot.Key]))
		}
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	w.Flush()
}

func printReport(out io.Writer, r *app.ReconcileReport) {
	switch {
	case r.Replayed == 0:
		fmt.Fprintf(out, "Tour %s: nothing queued\n", r.TourID)
	case r.OK():
		fmt.Fprintf(out, "%s Tour %s: %d queued cycle(s) submitted, queue cleared\n", okMark(), r.TourID, r.Submitted)
	default:
		fmt.Fprintf(out, "%s Tour %s: %d of %d submitted, queue kept\n", defectColor.Sprint("✗"), r.TourID, r.Submitted, r.Replayed)
		for _, f := range r.Failures {
			fmt.Fprintf(out, "  cycle %d: %s\n", f.CycleNumber, f.Reason)
		}
	}
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
