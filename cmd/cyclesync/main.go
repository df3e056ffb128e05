package main

import (
	"fmt"
	"os"

	"inspection_cycle_sync/internal/domain/checklist"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "cyclesync",
		Short: "Record inspection cycles and sync them with the backend",
		Long: `cyclesync records QA inspection cycles for a tour and pushes them to the
backend. Cycles completed while offline are queued locally and replayed by
"cyclesync reconcile" or by the daemon.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("variant", checklist.OPRPCCP.Name, fmt.Sprintf("checklist variant %v", checklist.Names()))

	rootCmd.AddCommand(cyclesCmd())
	rootCmd.AddCommand(startCmd())
	rootCmd.AddCommand(completeCmd())
	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(discardCmd())
	rootCmd.AddCommand(daemonCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
