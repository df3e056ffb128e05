// internal/app/sync_service.go
package app

import (
	"context"
	"errors"
	"fmt"
	"inspection_cycle_sync/internal/domain/checklist"
	"inspection_cycle_sync/internal/domain/cycle"
	"inspection_cycle_sync/internal/domain/offline"
	"inspection_cycle_sync/internal/infra/backend"
	idb "inspection_cycle_sync/internal/infra/database"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
)

// Backend is the part of the backend client the sync service needs.
type Backend interface {
	FetchCycles(ctx context.Context, tourID string) ([]cycle.Record, error)
	SubmitOne(ctx context.Context, rec cycle.Record) (backend.Representation, error)
	SubmitBatch(ctx context.Context, records []cycle.Record) backend.BatchResult
}

// CompletionResult describes what happened to a completed cycle.
type CompletionResult struct {
	Record         cycle.Record
	Queued         bool // true when staged offline instead of submitted
	Representation backend.Representation
	NextCycle      int
}

// ReplayFailure is one queued record the backend did not accept.
type ReplayFailure struct {
	CycleNumber int
	Reason      string
	Err         error
}

// ReconcileReport summarizes one replay of a tour's offline queue.
type ReconcileReport struct {
	TourID    string
	Replayed  int
	Submitted int
	Failures  []ReplayFailure
	Cleared   bool
}

func (r *ReconcileReport) OK() bool {
	return len(r.Failures) == 0
}

type tourState struct {
	loaded    bool
	confirmed []cycle.Record
	pending   []offline.Entry
	registry  *cycle.Registry
}

// SyncService records cycles of one checklist variant and keeps them in sync
// with the backend. It is the only writer of the offline queue and of the
// in-memory cycle view; callers must not use one service from several goroutines.
type SyncService struct {
	variant checklist.Variant
	backend Backend
	queue   offline.Repository
	starts  cycle.StartDataRepository
	logger  *logrus.Entry
	now     func() time.Time
	tours   map[string]*tourState
}

func NewSyncService(
	v checklist.Variant,
	b Backend,
	queue offline.Repository,
	starts cycle.StartDataRepository,
	logger *logrus.Entry,
) *SyncService {
	return &SyncService{
		variant: v,
		backend: b,
		queue:   queue,
		starts:  starts,
		logger:  logger.WithFields(logrus.Fields{"component": "sync_service", "variant": v.Name}),
		now:     time.Now,
		tours:   make(map[string]*tourState),
	}
}

func (s *SyncService) Variant() checklist.Variant {
	return s.variant
}

func (s *SyncService) state(tourID string) *tourState {
	st, ok := s.tours[tourID]
	if !ok {
		st = &tourState{registry: cycle.NewRegistry(s.variant)}
		s.tours[tourID] = st
	}
	return st
}

// LoadCycles refreshes the tour's view from the backend and the offline queue.
// A failed fetch is not an error: the previously confirmed records (none on first
// load) are kept, so new cycles can always be entered.
func (s *SyncService) LoadCycles(ctx context.Context, tourID string) []cycle.Record {
	st := s.state(tourID)
	log := s.logger.WithField("tour_id", tourID)

	remote, err := s.backend.FetchCycles(ctx, tourID)
	if err != nil {
		log.WithError(err).Warn("Fetching cycles failed, continuing with local view")
	} else {
		st.confirmed = remote
	}

	pending, err := s.queue.Drain(ctx, tourID)
	if err != nil {
		log.WithError(err).Error("Reading offline queue failed")
	} else {
		st.pending = pending
	}
	st.loaded = true

	s.syncRegistry(ctx, tourID, st)
	return s.view(st)
}

func (s *SyncService) ensureLoaded(ctx context.Context, tourID string) *tourState {
	st := s.state(tourID)
	if !st.loaded {
		s.LoadCycles(ctx, tourID)
	}
	return st
}

// Cycles returns the current view without refreshing, loading it once if needed.
func (s *SyncService) Cycles(ctx context.Context, tourID string) []cycle.Record {
	return s.view(s.ensureLoaded(ctx, tourID))
}

// view merges confirmed and pending records, one per cycle number, confirmed first.
func (s *SyncService) view(st *tourState) []cycle.Record {
	seen := make(map[int]struct{})
	out := make([]cycle.Record, 0, len(st.confirmed)+len(st.pending))
	for _, rec := range append(append([]cycle.Record{}, st.confirmed...), offline.Records(st.pending)...) {
		if _, ok := seen[rec.CycleNumber]; ok {
			continue
		}
		seen[rec.CycleNumber] = struct{}{}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CycleNumber < out[j].CycleNumber })
	return out
}

// syncRegistry re-derives the active cycle. On a change the draft resets and any
// start data saved for the new cycle is restored.
func (s *SyncService) syncRegistry(ctx context.Context, tourID string, st *tourState) {
	known := cycle.KnownNumbers(st.confirmed, offline.CycleNumbers(st.pending))
	n, reset := st.registry.Sync(known)
	if !reset {
		return
	}
	start, err := s.starts.GetStart(ctx, tourID, n)
	if err != nil {
		if !errors.Is(err, idb.ErrStartDataNotFound) {
			s.logger.WithError(err).WithFields(logrus.Fields{"tour_id": tourID, "cycle": n}).Warn("Could not restore start data")
		}
		return
	}
	st.registry.SetStart(*start)
}

// NextCycleNumber is max(confirmed ∪ pending)+1.
func (s *SyncService) NextCycleNumber(ctx context.Context, tourID string) int {
	return s.ensureLoaded(ctx, tourID).registry.Current()
}

// PendingCycles lists the cycle numbers waiting in the tour's offline queue.
func (s *SyncService) PendingCycles(ctx context.Context, tourID string) []int {
	return offline.CycleNumbers(s.ensureLoaded(ctx, tourID).pending)
}

// Draft returns the active cycle's draft.
func (s *SyncService) Draft(ctx context.Context, tourID string) cycle.Draft {
	return s.ensureLoaded(ctx, tourID).registry.Draft()
}

// StartCycle validates and persists start-of-cycle data for the active cycle.
func (s *SyncService) StartCycle(ctx context.Context, tourID string, start cycle.StartData) (cycle.Draft, error) {
	if err := start.Validate(); err != nil {
		return cycle.Draft{}, err
	}
	if tourID == "" {
		return cycle.Draft{}, &cycle.ValidationError{Missing: []string{"tour id"}}
	}

	st := s.ensureLoaded(ctx, tourID)
	n := st.registry.Current()
	if err := s.starts.SaveStart(ctx, tourID, n, start); err != nil {
		return cycle.Draft{}, fmt.Errorf("failed to save start data for cycle %d: %w", n, err)
	}
	st.registry.SetStart(start)
	s.logger.WithFields(logrus.Fields{"tour_id": tourID, "cycle": n, "product": start.Product}).Info("Cycle started")
	return st.registry.Draft(), nil
}

// CompleteCycle turns the draft into a record. Offline, the record is queued and
// shown immediately. Online, it is submitted; on failure the draft is kept and
// the cycle number does not advance.
func (s *SyncService) CompleteCycle(ctx context.Context, session cycle.Session, draft cycle.Draft, isOffline bool) (*CompletionResult, error) {
	if err := session.Validate(); err != nil {
		return nil, err
	}
	if err := draft.Start.Validate(); err != nil {
		return nil, err
	}

	st := s.ensureLoaded(ctx, session.TourID)
	if err := st.registry.Save(draft); err != nil {
		return nil, err
	}

	now := s.now()
	rec := cycle.NewRecord(s.variant, session, draft, now)
	log := s.logger.WithFields(logrus.Fields{"tour_id": session.TourID, "cycle": rec.CycleNumber, "offline": isOffline})

	result := &CompletionResult{Record: rec}
	if isOffline {
		entry := offline.Entry{
			TourID:      session.TourID,
			CycleNumber: rec.CycleNumber,
			Records:     []cycle.Record{rec},
			EnqueuedAt:  now,
		}
		if err := s.queue.Enqueue(ctx, entry); err != nil {
			log.WithError(err).Error("Failed to queue cycle")
			return nil, fmt.Errorf("failed to queue cycle %d: %w", rec.CycleNumber, err)
		}
		st.pending = append(st.pending, entry)
		result.Queued = true
		log.Info("Cycle queued for later sync")
	} else {
		rep, err := s.backend.SubmitOne(ctx, rec)
		if err != nil {
			log.WithError(err).Warn("Cycle submission failed, draft kept")
			return nil, fmt.Errorf("failed to submit cycle %d: %w", rec.CycleNumber, err)
		}
		st.confirmed = append(st.confirmed, rec)
		result.Representation = rep
		if err := s.starts.DeleteStart(ctx, session.TourID, rec.CycleNumber); err != nil {
			log.WithError(err).Warn("Failed to delete start data of submitted cycle")
		}
		log.Info("Cycle submitted")
	}

	s.syncRegistry(ctx, session.TourID, st)
	result.NextCycle = st.registry.Current()
	return result, nil
}

// Reconcile replays the tour's offline queue. The queue is cleared only when
// every record was accepted; otherwise it is left intact for a later retry.
func (s *SyncService) Reconcile(ctx context.Context, tourID string) (*ReconcileReport, error) {
	st := s.state(tourID)
	log := s.logger.WithField("tour_id", tourID)

	entries, err := s.queue.Drain(ctx, tourID)
	if err != nil {
		return nil, fmt.Errorf("failed to read offline queue for tour %s: %w", tourID, err)
	}
	st.pending = entries

	report := &ReconcileReport{TourID: tourID}
	if len(entries) == 0 {
		log.Debug("Offline queue empty, nothing to reconcile")
		return report, nil
	}

	records := offline.Records(entries)
	report.Replayed = len(records)
	result := s.backend.SubmitBatch(ctx, records)
	report.Submitted = len(result.Successes)
	for _, f := range result.Failures {
		report.Failures = append(report.Failures, ReplayFailure{CycleNumber: f.CycleNumber, Reason: FailureMessage(f.Err), Err: f.Err})
	}

	if !result.OK() {
		log.WithFields(logrus.Fields{"submitted": report.Submitted, "failed": len(report.Failures)}).Warn("Reconcile incomplete, offline queue kept")
		return report, nil
	}

	if err := s.queue.Clear(ctx, tourID); err != nil {
		return report, fmt.Errorf("replayed %d records but failed to clear offline queue: %w", report.Submitted, err)
	}
	report.Cleared = true
	if err := s.starts.DeleteStart(ctx, tourID, offline.CycleNumbers(entries)...); err != nil {
		log.WithError(err).Warn("Failed to delete start data of replayed cycles")
	}
	st.confirmed = append(st.confirmed, records...)
	st.pending = nil
	log.WithField("submitted", report.Submitted).Info("Offline queue replayed and cleared")

	s.LoadCycles(ctx, tourID)
	return report, nil
}

// ReconcileAll replays every tour that has queued cycles.
func (s *SyncService) ReconcileAll(ctx context.Context) ([]*ReconcileReport, error) {
	tours, err := s.queue.PendingTours(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tours with queued cycles: %w", err)
	}

	reports := make([]*ReconcileReport, 0, len(tours))
	var errs []error
	for _, tourID := range tours {
		report, err := s.Reconcile(ctx, tourID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		reports = append(reports, report)
	}
	return reports, errors.Join(errs...)
}

// DiscardQueue drops the tour's queued cycles at the user's request.
func (s *SyncService) DiscardQueue(ctx context.Context, tourID string) (int, error) {
	st := s.state(tourID)
	entries, err := s.queue.Drain(ctx, tourID)
	if err != nil {
		return 0, fmt.Errorf("failed to read offline queue for tour %s: %w", tourID, err)
	}
	if err := s.queue.Clear(ctx, tourID); err != nil {
		return 0, fmt.Errorf("failed to clear offline queue for tour %s: %w", tourID, err)
	}
	if err := s.starts.DeleteStart(ctx, tourID, offline.CycleNumbers(entries)...); err != nil {
		s.logger.WithError(err).WithField("tour_id", tourID).Warn("Failed to delete start data of discarded cycles")
	}
	st.pending = nil
	if st.loaded {
		s.syncRegistry(ctx, tourID, st)
	}
	s.logger.WithFields(logrus.Fields{"tour_id": tourID, "discarded": len(entries)}).Warn("Offline queue discarded")
	return len(entries), nil
}

// FailureMessage is the text shown to the inspector for a rejected submission:
// the backend's message when there is one, a generic fallback otherwise.
func FailureMessage(err error) string {
	var backendErr *backend.BackendError
	var authErr *backend.AuthError
	var netErr *backend.NetworkError
	switch {
	case errors.As(err, &backendErr):
		if backendErr.Body != "" {
			return fmt.Sprintf("HTTP %d: %s", backendErr.Status, backendErr.Body)
		}
		return fmt.Sprintf("HTTP %d", backendErr.Status)
	case errors.As(err, &authErr):
		return "authentication failed, sign in again"
	case errors.As(err, &netErr):
		return "backend unreachable"
	case err != nil:
		return err.Error()
	default:
		return "unknown error"
	}
}
