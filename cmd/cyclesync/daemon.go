package main

import (
	"os"
	"os/signal"
	"syscall"

	"inspection_cycle_sync/internal/app"
	"inspection_cycle_sync/internal/domain/checklist"
	"inspection_cycle_sync/internal/infra/logger"
	"inspection_cycle_sync/internal/infra/scheduler"
	"inspection_cycle_sync/internal/infra/telegram"

	"github.com/spf13/cobra"
)

func daemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Replay offline queues of every variant on a schedule",
		Long: `Run the reconcile scheduler until SIGINT or SIGTERM.

Every CRON_SPEC_RECONCILE tick replays the queued cycles of every tour and
variant. When TELEGRAM_TOKEN and ALERT_CHAT_ID are set, failed replays are
reported to that chat.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()
			mainLogger := logger.Component("main")

			var reconcilers []scheduler.Reconciler
			for _, name := range checklist.Names() {
				v, _ := checklist.Lookup(name)
				reconcilers = append(reconcilers, rt.service(v))
			}

			var alerter scheduler.Alerter
			if rt.cfg.AlertsEnabled() {
				bot, err := telegram.NewSendOnlyBot(rt.cfg.TelegramToken, rt.cfg.HTTPTimeout)
				if err != nil {
					return err
				}
				alerter = app.NewAlertService(telegram.NewTelebotAdapter(bot), rt.cfg.AlertChatID, logger.Component("alerts"))
				mainLogger.WithField("chat_id", rt.cfg.AlertChatID).Info("Reconcile alerts enabled")
			}

			reconcileScheduler := scheduler.NewReconcileScheduler(reconcilers, alerter, logger.Component("scheduler"), rt.cfg.CronSpecReconcile)
			// Replay right away instead of waiting for the first tick.
			reconcileScheduler.RunOnce(cmd.Context())
			if err := reconcileScheduler.Start(); err != nil {
				return err
			}

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit // Block until a signal is received

			mainLogger.Info("Shutting down...")
			reconcileScheduler.Stop()
			mainLogger.Info("Shut down gracefully.")
			return nil
		},
	}
}
