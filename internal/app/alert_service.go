package app

import (
	"fmt"
	"inspection_cycle_sync/internal/domain/telegram"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// AlertService posts reconcile problems to a supervisor chat.
type AlertService struct {
	client telegram.Client
	chatID int64
	logger *logrus.Entry
}

func NewAlertService(client telegram.Client, chatID int64, logger *logrus.Entry) *AlertService {
	return &AlertService{client: client, chatID: chatID, logger: logger}
}

// NotifyReconcile sends one message describing the failed tours of a
// reconcile run. Nothing is sent when every tour went through.
func (a *AlertService) NotifyReconcile(variant string, reports []*ReconcileReport, runErr error) error {
	text := FormatReconcileAlert(variant, reports, runErr)
	if text == "" {
		return nil
	}
	if err := a.client.SendMessage(a.chatID, text, &telebot.SendOptions{DisableWebPagePreview: true}); err != nil {
		a.logger.WithError(err).WithField("chat_id", a.chatID).Error("Failed to send reconcile alert")
		return fmt.Errorf("failed to send reconcile alert: %w", err)
	}
	a.logger.WithField("variant", variant).Info("Reconcile alert sent")
	return nil
}

// FormatReconcileAlert renders the alert text, or "" when there is nothing to report.
func FormatReconcileAlert(variant string, reports []*ReconcileReport, runErr error) string {
	var b strings.Builder
	for _, r := range reports {
		if r.OK() {
			continue
		}
		fmt.Fprintf(&b, "Tour %s: %d of %d queued cycles replayed, queue kept\n", r.TourID, r.Submitted, r.Replayed)
		for _, f := range r.Failures {
			fmt.Fprintf(&b, "  cycle %d: %s\n", f.CycleNumber, f.Reason)
		}
	}
	if runErr != nil {
		fmt.Fprintf(&b, "Error: %v\n", runErr)
	}
	if b.Len() == 0 {
		return ""
	}
	return fmt.Sprintf("Reconcile failed (%s)\n%s", variant, strings.TrimRight(b.String(), "\n"))
}
