package scheduler

import (
	"context"
	"fmt"
	"inspection_cycle_sync/internal/app"
	"inspection_cycle_sync/internal/domain/checklist"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const reconcileTimeout = 5 * time.Minute

// Reconciler is the part of app.SyncService the scheduler drives.
type Reconciler interface {
	Variant() checklist.Variant
	ReconcileAll(ctx context.Context) ([]*app.ReconcileReport, error)
}

// Alerter receives the outcome of every scheduled run. May be nil.
type Alerter interface {
	NotifyReconcile(variant string, reports []*app.ReconcileReport, runErr error) error
}

type ReconcileScheduler struct {
	cronEngine    *cron.Cron
	reconcilers   []Reconciler
	alerter       Alerter
	logger        *logrus.Entry
	cronSpec      string
	reconcileTime time.Duration
}

func NewReconcileScheduler(
	reconcilers []Reconciler,
	alerter Alerter,
	logger *logrus.Entry,
	cronSpec string, // e.g., "*/10 * * * *" (every 10 minutes)
) *ReconcileScheduler {
	cronLogger := cron.VerbosePrintfLogger(logger.WithField("source", "cron"))
	return &ReconcileScheduler{
		cronEngine: cron.New(
			cron.WithLocation(time.Local), // Use server's local time for cron
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		reconcilers:   reconcilers,
		alerter:       alerter,
		logger:        logger,
		cronSpec:      cronSpec,
		reconcileTime: reconcileTimeout,
	}
}

func (s *ReconcileScheduler) Start() error {
	s.logger.Info("Starting reconcile scheduler...")

	_, err := s.cronEngine.AddFunc(s.cronSpec, func() {
		s.logger.Debug("Cron job triggered for offline queue reconcile.")
		ctx, cancel := context.WithTimeout(context.Background(), s.reconcileTime)
		defer cancel()
		s.RunOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("could not add reconcile cron job %q: %w", s.cronSpec, err)
	}

	s.cronEngine.Start()
	s.logger.WithField("spec", s.cronSpec).Info("Reconcile scheduler started.")
	return nil
}

// RunOnce reconciles every variant and reports the outcome.
func (s *ReconcileScheduler) RunOnce(ctx context.Context) {
	for _, r := range s.reconcilers {
		name := r.Variant().Name
		log := s.logger.WithField("variant", name)

		reports, err := r.ReconcileAll(ctx)
		if err != nil {
			log.WithError(err).Error("Reconcile run failed")
		}
		var submitted, failed int
		for _, rep := range reports {
			submitted += rep.Submitted
			failed += len(rep.Failures)
		}
		if len(reports) > 0 {
			log.WithFields(logrus.Fields{"tours": len(reports), "submitted": submitted, "failed": failed}).Info("Reconcile run finished")
		}

		if s.alerter == nil {
			continue
		}
		if alertErr := s.alerter.NotifyReconcile(name, reports, err); alertErr != nil {
			log.WithError(alertErr).Warn("Could not deliver reconcile alert")
		}
	}
}

func (s *ReconcileScheduler) Stop() {
	s.logger.Info("Stopping reconcile scheduler...")
	ctx := s.cronEngine.Stop() // Stops the scheduler from adding new jobs, waits for running jobs.
	<-ctx.Done()               // Wait for graceful shutdown
	s.logger.Info("Reconcile scheduler gracefully stopped.")
}
