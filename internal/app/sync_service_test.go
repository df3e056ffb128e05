package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"inspection_cycle_sync/internal/domain/checklist"
	"inspection_cycle_sync/internal/domain/cycle"
	"inspection_cycle_sync/internal/domain/offline"
	"inspection_cycle_sync/internal/infra/backend"
	idb "inspection_cycle_sync/internal/infra/database"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	remote    []cycle.Record
	fetchErr  error
	fail      map[int]error
	fetches   int
	submitted []cycle.Record
}

func (f *fakeBackend) FetchCycles(_ context.Context, tourID string) ([]cycle.Record, error) {
	f.fetches++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	var out []cycle.Record
	for _, r := range f.remote {
		if r.TourID == tourID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeBackend) SubmitOne(_ context.Context, rec cycle.Record) (backend.Representation, error) {
	if err := f.fail[rec.CycleNumber]; err != nil {
		return nil, err
	}
	f.submitted = append(f.submitted, rec)
	f.remote = append(f.remote, rec)
	return backend.Representation{"cr3c0_cycle": rec.CycleNumber}, nil
}

func (f *fakeBackend) SubmitBatch(ctx context.Context, records []cycle.Record) backend.BatchResult {
	var result backend.BatchResult
	for _, rec := range records {
		rep, err := f.SubmitOne(ctx, rec)
		if err != nil {
			result.Failures = append(result.Failures, backend.Failure{CycleNumber: rec.CycleNumber, Err: err})
			continue
		}
		result.Successes = append(result.Successes, backend.Accepted{CycleNumber: rec.CycleNumber, Representation: rep})
	}
	return result
}

const testTour = "TOUR-1"

var testSession = cycle.Session{TourID: testTour, Shift: "A", Inspector: "QA One"}

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func newTestKV(t *testing.T) idb.KV {
	t.Helper()
	db, err := idb.NewSQLiteConnection(filepath.Join(t.TempDir(), "sync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	kv, err := idb.NewSQLiteKV(context.Background(), db)
	require.NoError(t, err)
	return kv
}

func newTestService(kv idb.KV, fb *fakeBackend) (*SyncService, *idb.KVOfflineQueue) {
	queue := idb.NewKVOfflineQueue(kv, checklist.OPRPCCP.Namespace)
	starts := idb.NewKVStartDataRepository(kv, checklist.OPRPCCP.Namespace)
	svc := NewSyncService(checklist.OPRPCCP, fb, queue, starts, testLogger())

	clock := time.Date(2026, 10, 14, 6, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	return svc, queue
}

var (
	fe1 = checklist.Key{Group: "FE", Label: "Centre 1st Pass"}
	fe2 = checklist.Key{Group: "FE", Label: "Centre 2nd Pass"}
)

func startAndGrade(t *testing.T, svc *SyncService) cycle.Draft {
	t.Helper()
	ctx := context.Background()
	_, err := svc.StartCycle(ctx, testTour, cycle.StartData{Product: "Marie Biscuit", Executive: "S. Nair", BatchNo: "B-1"})
	require.NoError(t, err)

	d := svc.Draft(ctx, testTour)
	require.NoError(t, d.Grade(fe1, checklist.StatusOkay, ""))
	require.NoError(t, d.Grade(fe2, checklist.StatusNotOkay, "gap"))
	return d
}

func TestCompleteCycleOnline(t *testing.T) {
	ctx := context.Background()
	kv := newTestKV(t)
	fb := &fakeBackend{}
	svc, _ := newTestService(kv, fb)

	assert.Empty(t, svc.LoadCycles(ctx, testTour))
	assert.Equal(t, 1, svc.NextCycleNumber(ctx, testTour))

	res, err := svc.CompleteCycle(ctx, testSession, startAndGrade(t, svc), false)
	require.NoError(t, err)
	assert.False(t, res.Queued)
	assert.Equal(t, 2, res.NextCycle)
	assert.Equal(t, 1, res.Representation["cr3c0_cycle"])

	require.Len(t, fb.submitted, 1)
	rec := fb.submitted[0]
	assert.Equal(t, "Okays: FE - Centre 1st Pass", rec.Okays)
	assert.Equal(t, "Defects: FE - Centre 2nd Pass: gap", rec.Defects)
	assert.Equal(t, "QA One", rec.Inspector)

	statuses := checklist.OPRPCCP.Project(checklist.Decode(rec.Okays, rec.Defects))
	assert.Equal(t, "OK", statuses[fe1])
	assert.Equal(t, "Not Okay (gap)", statuses[fe2])
	for key, status := range statuses {
		if key != fe1 && key != fe2 {
			assert.Equal(t, "OK", status, key.String())
		}
	}

	next := svc.Draft(ctx, testTour)
	assert.Equal(t, 2, next.CycleNumber)
	assert.False(t, next.HasStart(), "start data must not leak into the next cycle")
	for _, item := range next.Items {
		assert.Equal(t, checklist.StatusUnset, item.Status)
	}

	_, err = idb.NewKVStartDataRepository(kv, checklist.OPRPCCP.Namespace).GetStart(ctx, testTour, 1)
	assert.ErrorIs(t, err, idb.ErrStartDataNotFound)

	views := svc.Cycles(ctx, testTour)
	require.Len(t, views, 1)
	assert.Equal(t, 1, views[0].CycleNumber)
}

func TestCompleteCycleOnlineFailureKeepsDraft(t *testing.T) {
	ctx := context.Background()
	fb := &fakeBackend{fail: map[int]error{1: &backend.BackendError{Op: "submit cycle 1", Status: http.StatusBadRequest, Body: "invalid product"}}}
	svc, queue := newTestService(newTestKV(t), fb)

	d := startAndGrade(t, svc)
	_, err := svc.CompleteCycle(ctx, testSession, d, false)
	var backendErr *backend.BackendError
	require.ErrorAs(t, err, &backendErr)
	assert.Equal(t, "HTTP 400: invalid product", FailureMessage(err))

	assert.Equal(t, 1, svc.NextCycleNumber(ctx, testTour), "failure must not skip a cycle number")
	kept := svc.Draft(ctx, testTour)
	assert.Equal(t, d, kept)
	assert.True(t, kept.HasStart())

	pending, err := queue.Drain(ctx, testTour)
	require.NoError(t, err)
	assert.Empty(t, pending)

	fb.fail = nil
	res, err := svc.CompleteCycle(ctx, testSession, kept, false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Record.CycleNumber)
	assert.Equal(t, 2, res.NextCycle)
}

func TestFetchFailureIsTreatedAsNoCycles(t *testing.T) {
	ctx := context.Background()
	fb := &fakeBackend{fetchErr: &backend.NetworkError{Op: "fetch cycles", Err: errors.New("dial tcp: no route to host")}}
	svc, _ := newTestService(newTestKV(t), fb)

	assert.Empty(t, svc.LoadCycles(ctx, testTour))
	assert.Equal(t, 1, svc.NextCycleNumber(ctx, testTour))
}

func TestNextCycleFromRemoteAndQueue(t *testing.T) {
	ctx := context.Background()
	kv := newTestKV(t)
	fb := &fakeBackend{remote: []cycle.Record{
		{TourID: testTour, CycleNumber: 1},
		{TourID: testTour, CycleNumber: 2},
		{TourID: testTour, CycleNumber: 4},
		{TourID: "OTHER", CycleNumber: 9},
	}}
	svc, _ := newTestService(kv, fb)

	assert.Len(t, svc.LoadCycles(ctx, testTour), 3)
	assert.Equal(t, 5, svc.NextCycleNumber(ctx, testTour))

	res, err := svc.CompleteCycle(ctx, testSession, startAndGrade(t, svc), true)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Record.CycleNumber)
	assert.Equal(t, 6, res.NextCycle)

	// A fresh process sees the pending cycle even though the backend does not.
	restarted, _ := newTestService(kv, fb)
	assert.Equal(t, 6, restarted.NextCycleNumber(ctx, testTour))
	assert.Equal(t, []int{5}, restarted.PendingCycles(ctx, testTour))
}

func TestValidationBeforeIO(t *testing.T) {
	ctx := context.Background()
	fb := &fakeBackend{}
	svc, _ := newTestService(newTestKV(t), fb)

	var verr *cycle.ValidationError
	_, err := svc.StartCycle(ctx, testTour, cycle.StartData{Product: "Only product"})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"executive"}, verr.Missing)

	_, err = svc.CompleteCycle(ctx, testSession, cycle.Draft{CycleNumber: 1}, false)
	require.ErrorAs(t, err, &verr)

	_, err = svc.CompleteCycle(ctx, cycle.Session{TourID: testTour}, cycle.Draft{CycleNumber: 1, Start: cycle.StartData{Product: "P", Executive: "E"}}, false)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 0, fb.fetches, "validation errors are raised before any I/O")
}

func TestStaleDraftRejected(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(newTestKV(t), &fakeBackend{})

	d := startAndGrade(t, svc)
	_, err := svc.CompleteCycle(ctx, testSession, d, true)
	require.NoError(t, err)

	_, err = svc.CompleteCycle(ctx, testSession, d, true)
	assert.ErrorIs(t, err, cycle.ErrStaleDraft)
}

func TestStartDataSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	kv := newTestKV(t)
	fb := &fakeBackend{}
	svc, _ := newTestService(kv, fb)
	_, err := svc.StartCycle(ctx, testTour, cycle.StartData{Product: "Rusk", Executive: "K. Menon", Category: "Bakery"})
	require.NoError(t, err)

	restarted, _ := newTestService(kv, fb)
	d := restarted.Draft(ctx, testTour)
	assert.Equal(t, 1, d.CycleNumber)
	assert.Equal(t, "Rusk", d.Start.Product)
	assert.Equal(t, "Bakery", d.Start.Category)
}

func completeOffline(t *testing.T, svc *SyncService, n int) {
	t.Helper()
	res, err := svc.CompleteCycle(context.Background(), testSession, startAndGrade(t, svc), true)
	require.NoError(t, err)
	require.True(t, res.Queued)
	require.Equal(t, n, res.Record.CycleNumber)
}

func TestReconcileAllOrNothing(t *testing.T) {
	ctx := context.Background()
	fb := &fakeBackend{fetchErr: errors.New("offline")}
	svc, queue := newTestService(newTestKV(t), fb)

	for n := 1; n <= 3; n++ {
		completeOffline(t, svc, n)
	}
	assert.Empty(t, fb.submitted)
	assert.Len(t, svc.Cycles(ctx, testTour), 3, "offline cycles show up immediately")
	assert.Equal(t, 4, svc.NextCycleNumber(ctx, testTour))

	fb.fetchErr = nil
	fb.fail = map[int]error{2: &backend.BackendError{Op: "submit cycle 2", Status: http.StatusInternalServerError, Body: "timeout"}}
	report, err := svc.Reconcile(ctx, testTour)
	require.NoError(t, err)
	assert.False(t, report.OK())
	assert.False(t, report.Cleared)
	assert.Equal(t, 3, report.Replayed)
	assert.Equal(t, 2, report.Submitted)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, 2, report.Failures[0].CycleNumber)
	assert.Equal(t, "HTTP 500: timeout", report.Failures[0].Reason)

	entries, err := queue.Drain(ctx, testTour)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, cycleNumbersOf(entries), "queue stays intact after a partial failure")
	assert.Equal(t, 4, svc.NextCycleNumber(ctx, testTour))

	fb.fail = nil
	report, err = svc.Reconcile(ctx, testTour)
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.True(t, report.Cleared)
	assert.Equal(t, 3, report.Submitted)

	entries, err = queue.Drain(ctx, testTour)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Empty(t, svc.PendingCycles(ctx, testTour))
	assert.Len(t, svc.Cycles(ctx, testTour), 3)
	assert.Equal(t, 4, svc.NextCycleNumber(ctx, testTour))

	report, err = svc.Reconcile(ctx, testTour)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Replayed)
}

func TestReconcileAll(t *testing.T) {
	ctx := context.Background()
	kv := newTestKV(t)
	fb := &fakeBackend{}
	svc, queue := newTestService(kv, fb)
	completeOffline(t, svc, 1)

	other := cycle.Session{TourID: "TOUR-2", Shift: "B", Inspector: "QA Two"}
	_, err := svc.StartCycle(ctx, other.TourID, cycle.StartData{Product: "Cake", Executive: "P. Shah"})
	require.NoError(t, err)
	_, err = svc.CompleteCycle(ctx, other, svc.Draft(ctx, other.TourID), true)
	require.NoError(t, err)

	reports, err := svc.ReconcileAll(ctx)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	for _, r := range reports {
		assert.True(t, r.Cleared, r.TourID)
	}
	tours, err := queue.PendingTours(ctx)
	require.NoError(t, err)
	assert.Empty(t, tours)
	assert.Len(t, fb.submitted, 2)
}

func TestDiscardQueue(t *testing.T) {
	ctx := context.Background()
	fb := &fakeBackend{}
	svc, queue := newTestService(newTestKV(t), fb)
	completeOffline(t, svc, 1)
	completeOffline(t, svc, 2)

	n, err := svc.DiscardQueue(ctx, testTour)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	entries, err := queue.Drain(ctx, testTour)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Empty(t, svc.Cycles(ctx, testTour))
	assert.Equal(t, 1, svc.NextCycleNumber(ctx, testTour))
	assert.Empty(t, fb.submitted)
}

func TestFailureMessage(t *testing.T) {
	assert.Equal(t, "HTTP 502", FailureMessage(&backend.BackendError{Status: 502}))
	assert.Equal(t, "authentication failed, sign in again", FailureMessage(fmt.Errorf("wrapped: %w", &backend.AuthError{Status: 401})))
	assert.Equal(t, "backend unreachable", FailureMessage(&backend.NetworkError{Err: errors.New("eof")}))
	assert.Equal(t, "plain", FailureMessage(errors.New("plain")))
	assert.Equal(t, "unknown error", FailureMessage(nil))
}

func cycleNumbersOf(entries []offline.Entry) []int {
	return offline.CycleNumbers(entries)
}
