package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"inspection_cycle_sync/internal/app"
	"inspection_cycle_sync/internal/domain/checklist"
	"inspection_cycle_sync/internal/domain/cycle"

	"github.com/spf13/cobra"
)

func cyclesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cycles",
		Short: "List recorded cycles of a tour and the next cycle number",
		RunE: func(cmd *cobra.Command, args []string) error {
			tourID, err := requiredString(cmd, "tour")
			if err != nil {
				return err
			}
			return withService(cmd, func(ctx context.Context, svc *app.SyncService) error {
				records := svc.LoadCycles(ctx, tourID)
				printCycles(os.Stdout, svc.Variant(), records, svc.PendingCycles(ctx, tourID))
				fmt.Printf("Next cycle: %d\n", svc.NextCycleNumber(ctx, tourID))
				return nil
			})
		},
	}
	cmd.Flags().String("tour", "", "tour id")
	return cmd
}

func startCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Capture start-of-cycle data for the next cycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			tourID, err := requiredString(cmd, "tour")
			if err != nil {
				return err
			}
			var start cycle.StartData
			start.Product, _ = cmd.Flags().GetString("product")
			start.Executive, _ = cmd.Flags().GetString("executive")
			start.BatchNo, _ = cmd.Flags().GetString("batch")
			start.Location, _ = cmd.Flags().GetString("location")
			start.Category, _ = cmd.Flags().GetString("category")

			return withService(cmd, func(ctx context.Context, svc *app.SyncService) error {
				draft, err := svc.StartCycle(ctx, tourID, start)
				if err != nil {
					return fmt.Errorf("failed to start cycle: %w", err)
				}
				fmt.Printf("%s Started cycle %d for tour %s\n", okMark(), draft.CycleNumber, tourID)
				fmt.Printf("  Product: %s\n", draft.Start.Product)
				fmt.Printf("  Executive: %s\n", draft.Start.Executive)
				return nil
			})
		},
	}
	cmd.Flags().String("tour", "", "tour id")
	cmd.Flags().String("product", "", "product (required)")
	cmd.Flags().String("executive", "", "executive name (required)")
	cmd.Flags().String("batch", "", "batch number")
	cmd.Flags().String("location", "", "location")
	cmd.Flags().String("category", "", "category")
	return cmd
}

func completeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "complete",
		Short: "Grade the active cycle and submit it (or queue it with --offline)",
		Long: `Grade the active cycle from a JSON file and submit it.

The items file is an array of graded checklist items:
  [{"group": "FE", "label": "Centre 1st Pass", "status": "okay"},
   {"group": "MD", "label": "Reject Mechanism", "status": "not_okay", "remarks": "jammed"}]

Items left out stay ungraded. With --offline the record is queued locally
and replayed later by "cyclesync reconcile".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var session cycle.Session
			var err error
			if session.TourID, err = requiredString(cmd, "tour"); err != nil {
				return err
			}
			session.Shift, _ = cmd.Flags().GetString("shift")
			session.Inspector, _ = cmd.Flags().GetString("user")
			path, err := requiredString(cmd, "items")
			if err != nil {
				return err
			}
			isOffline, _ := cmd.Flags().GetBool("offline")

			graded, err := readItems(path)
			if err != nil {
				return err
			}

			return withService(cmd, func(ctx context.Context, svc *app.SyncService) error {
				draft := svc.Draft(ctx, session.TourID)
				if err := draft.Apply(graded); err != nil {
					return err
				}
				res, err := svc.CompleteCycle(ctx, session, draft, isOffline)
				if err != nil {
					return fmt.Errorf("cycle %d not saved: %s", draft.CycleNumber, app.FailureMessage(err))
				}
				if res.Queued {
					fmt.Printf("%s Cycle %d queued offline\n", queuedMark(), res.Record.CycleNumber)
				} else {
					fmt.Printf("%s Cycle %d submitted\n", okMark(), res.Record.CycleNumber)
				}
				fmt.Printf("  Okays: %s\n", res.Record.Okays)
				fmt.Printf("  Defects: %s\n", res.Record.Defects)
				fmt.Printf("Next cycle: %d\n", res.NextCycle)
				return nil
			})
		},
	}
	cmd.Flags().String("tour", "", "tour id")
	cmd.Flags().String("shift", "", "shift")
	cmd.Flags().String("user", "", "inspector name")
	cmd.Flags().String("items", "", "path to the graded items JSON file")
	cmd.Flags().Bool("offline", false, "queue the cycle locally instead of submitting")
	return cmd
}

func reconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Replay queued cycles (one tour with --tour, otherwise every tour)",
		RunE: func(cmd *cobra.Command, args []string) error {
			tourID, _ := cmd.Flags().GetString("tour")
			return withService(cmd, func(ctx context.Context, svc *app.SyncService) error {
				if tourID == "" {
					reports, err := svc.ReconcileAll(ctx)
					for _, r := range reports {
						printReport(os.Stdout, r)
					}
					if err != nil {
						return err
					}
					return reportsError(reports...)
				}
				report, err := svc.Reconcile(ctx, tourID)
				if err != nil {
					return err
				}
				printReport(os.Stdout, report)
				return reportsError(report)
			})
		},
	}
	cmd.Flags().String("tour", "", "tour id")
	return cmd
}

func discardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discard",
		Short: "Drop the queued cycles of a tour without submitting them",
		RunE: func(cmd *cobra.Command, args []string) error {
			tourID, err := requiredString(cmd, "tour")
			if err != nil {
				return err
			}
			return withService(cmd, func(ctx context.Context, svc *app.SyncService) error {
				n, err := svc.DiscardQueue(ctx, tourID)
				if err != nil {
					return err
				}
				fmt.Printf("Discarded %d queued cycle(s) for tour %s\n", n, tourID)
				return nil
			})
		},
	}
	cmd.Flags().String("tour", "", "tour id")
	return cmd
}

func readItems(path string) ([]checklist.Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read items file: %w", err)
	}
	var items []checklist.Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to parse items file %s: %w", path, err)
	}
	return items, nil
}

func reportsError(reports ...*app.ReconcileReport) error {
	var failed int
	for _, r := range reports {
		failed += len(r.Failures)
	}
	if failed > 0 {
		return fmt.Errorf("%d queued cycle(s) were not accepted, queue kept", failed)
	}
	return nil
}
