package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shorts-uploader/internal/jobs"
	"shorts-uploader/internal/persistence"
	"shorts-uploader/internal/quota"
)

// scriptedExecutor fails the files listed in failFiles and panics on
// the files listed in panicFiles; everything else succeeds.
type scriptedExecutor struct {
	executed   []string
	failFiles  map[string]jobs.FaultKind
	panicFiles map[string]bool
}

func (s *scriptedExecutor) Execute(_ context.Context, job jobs.Job) jobs.Outcome {
	s.executed = append(s.executed, job.File)
	if s.panicFiles[job.File] {
		panic("executor blew up on " + job.File)
	}
	if kind, ok := s.failFiles[job.File]; ok {
		return jobs.Outcome{
			Job:       job,
			Status:    jobs.StatusFailure,
			Err:       "scripted failure",
			Fault:     kind,
			Billed:    kind != jobs.FaultInvalidTimestamp && kind != jobs.FaultAuth,
			Timestamp: time.Now(),
		}
	}
	return jobs.Outcome{
		Job:       job,
		Status:    jobs.StatusSuccess,
		VideoID:   "vid-" + filepath.Base(job.File),
		Billed:    true,
		Timestamp: time.Now(),
	}
}

type memHistory struct {
	runID    string
	mode     string
	outcomes []jobs.Outcome
	calls    int
}

func (m *memHistory) AppendOutcomes(_ context.Context, runID, mode string, outcomes []jobs.Outcome) error {
	m.runID = runID
	m.mode = mode
	m.outcomes = outcomes
	m.calls++
	return nil
}

type memLedger struct {
	st quota.State
}

func (m *memLedger) Load() (quota.State, error) { return m.st, nil }
func (m *memLedger) Save(st quota.State) error  { m.st = st; return nil }

func makeJobs(n int) []jobs.Job {
	list := make([]jobs.Job, 0, n)
	for i := 1; i <= n; i++ {
		list = append(list, jobs.Job{
			File:       fmt.Sprintf("videos/%02d.mp4", i),
			Title:      fmt.Sprintf("Short %02d", i),
			CategoryID: jobs.DefaultCategoryID,
			Privacy:    jobs.PrivacyPublic,
		})
	}
	return list
}

func newCSVStore(t *testing.T, n int) *persistence.CSVStore {
	t.Helper()

	var sb strings.Builder
	sb.WriteString(strings.Join(jobs.Header, ","))
	sb.WriteString("\n")
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&sb, "videos/%02d.mp4,Short %02d,,,,,,\n", i, i)
	}
	path := filepath.Join(t.TempDir(), "upload_list.csv")
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0o644))
	return persistence.NewCSVStore(path)
}

func TestRunList_OrderDelayAndAggregation(t *testing.T) {
	t.Parallel()

	exec := &scriptedExecutor{failFiles: map[string]jobs.FaultKind{
		"videos/02.mp4": jobs.FaultRejected,
	}}
	var sleeps []time.Duration
	orch := New(exec, WithSleep(func(d time.Duration) { sleeps = append(sleeps, d) }))

	report := orch.RunList(context.Background(), makeJobs(3), 10*time.Second)

	assert.Equal(t, []string{"videos/01.mp4", "videos/02.mp4", "videos/03.mp4"}, exec.executed)
	assert.Equal(t, 3, report.Attempted)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	assert.Zero(t, report.Deferred)
	assert.NotEmpty(t, report.RunID)

	// Delay between jobs, never after the last.
	assert.Equal(t, []time.Duration{10 * time.Second, 10 * time.Second}, sleeps)
}

func TestRunList_FailureNeverAbortsTheRun(t *testing.T) {
	t.Parallel()

	exec := &scriptedExecutor{
		failFiles:  map[string]jobs.FaultKind{"videos/01.mp4": jobs.FaultTransient},
		panicFiles: map[string]bool{"videos/02.mp4": true},
	}
	orch := New(exec, WithSleep(func(time.Duration) {}))

	report := orch.RunList(context.Background(), makeJobs(3), time.Second)

	require.Len(t, report.Outcomes, 3)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 2, report.Failed)

	panicked := report.Outcomes[1]
	assert.Equal(t, jobs.StatusFailure, panicked.Status)
	assert.Contains(t, panicked.Err, "panic during upload")
	assert.Equal(t, jobs.FaultTransient, panicked.Fault)
}

func TestRunList_PlatformQuotaFaultDefersRemainder(t *testing.T) {
	t.Parallel()

	exec := &scriptedExecutor{failFiles: map[string]jobs.FaultKind{
		"videos/02.mp4": jobs.FaultQuotaExceeded,
	}}
	orch := New(exec, WithSleep(func(time.Duration) {}))

	report := orch.RunList(context.Background(), makeJobs(5), time.Second)

	assert.Equal(t, []string{"videos/01.mp4", "videos/02.mp4"}, exec.executed)
	assert.Equal(t, 2, report.Attempted)
	assert.Equal(t, 3, report.Deferred)
}

func TestRunScheduled_RemovesAttemptedRegardlessOfOutcome(t *testing.T) {
	t.Parallel()

	store := newCSVStore(t, 10)
	exec := &scriptedExecutor{failFiles: map[string]jobs.FaultKind{
		"videos/02.mp4": jobs.FaultRejected,
		"videos/04.mp4": jobs.FaultTransient,
	}}
	history := &memHistory{}
	orch := New(exec, WithHistory(history))

	report, err := orch.RunScheduled(context.Background(), store, 5)
	require.NoError(t, err)

	assert.Equal(t, 5, report.Attempted)
	assert.Equal(t, 3, report.Succeeded)
	assert.Equal(t, 2, report.Failed)
	assert.Equal(t, 5, report.Remaining)

	// Store contains exactly jobs 6-10: failed jobs are removed too.
	remaining, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, remaining, 5)
	assert.Equal(t, "videos/06.mp4", remaining[0].File)
	assert.Equal(t, "videos/10.mp4", remaining[4].File)

	// Backup snapshot holds the original ten jobs.
	backup, err := os.ReadFile(store.BackupPath())
	require.NoError(t, err)
	parsed, err := jobs.ParseList(strings.NewReader(string(backup)))
	require.NoError(t, err)
	assert.Len(t, parsed, 10)

	assert.Equal(t, "scheduled", history.mode)
	assert.Equal(t, report.RunID, history.runID)
	assert.Len(t, history.outcomes, 5)
}

func TestRunScheduled_CapLargerThanStore(t *testing.T) {
	t.Parallel()

	store := newCSVStore(t, 2)
	exec := &scriptedExecutor{}
	orch := New(exec)

	report, err := orch.RunScheduled(context.Background(), store, 5)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Attempted)
	assert.Zero(t, report.Remaining)

	remaining, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestRunScheduled_EmptyStore(t *testing.T) {
	t.Parallel()

	store := newCSVStore(t, 0)
	exec := &scriptedExecutor{}
	orch := New(exec)

	report, err := orch.RunScheduled(context.Background(), store, 5)
	require.NoError(t, err)
	assert.Zero(t, report.Attempted)
	assert.Empty(t, exec.executed)

	// No attempt happened, so no backup and no rewrite.
	_, statErr := os.Stat(store.BackupPath())
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunScheduled_LoadErrorLeavesStoreUntouched(t *testing.T) {
	t.Parallel()

	store := persistence.NewCSVStore(filepath.Join(t.TempDir(), "absent.csv"))
	orch := New(&scriptedExecutor{})

	_, err := orch.RunScheduled(context.Background(), store, 5)
	require.Error(t, err)
}

func TestRunScheduled_LocalQuotaDefersInsteadOfFailing(t *testing.T) {
	t.Parallel()

	store := newCSVStore(t, 4)
	exec := &scriptedExecutor{}
	// Capacity for exactly two uploads.
	gate := quota.NewGate(&memLedger{}, quota.WithDailyLimit(2*quota.CostVideoInsert))
	orch := New(exec, WithQuotaGate(gate))

	report, err := orch.RunScheduled(context.Background(), store, 4)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Attempted)
	assert.Equal(t, 2, report.Deferred)
	assert.Equal(t, 2, report.Succeeded)
	assert.Zero(t, report.Failed, "deferred jobs are not failures")

	// Deferred jobs stay in the store for the next period.
	remaining, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, remaining, 2)
	assert.Equal(t, "videos/03.mp4", remaining[0].File)
}

func TestRunList_ExhaustedGateDefersWithoutOutcomes(t *testing.T) {
	t.Parallel()

	exec := &scriptedExecutor{}
	gate := quota.NewGate(&memLedger{})
	require.NoError(t, gate.Record(quota.DefaultDailyLimit))
	orch := New(exec, WithQuotaGate(gate))

	report := orch.RunList(context.Background(), makeJobs(1), 0)

	assert.Empty(t, exec.executed)
	assert.Empty(t, report.Outcomes)
	assert.Zero(t, report.Attempted)
	assert.Zero(t, report.Failed)
	assert.Equal(t, 1, report.Deferred)
}

func TestRunList_AuthFailureAbortsRun(t *testing.T) {
	t.Parallel()

	exec := &scriptedExecutor{failFiles: map[string]jobs.FaultKind{
		"videos/02.mp4": jobs.FaultAuth,
	}}
	orch := New(exec, WithSleep(func(time.Duration) {}))

	report := orch.RunList(context.Background(), makeJobs(4), time.Second)

	assert.Equal(t, []string{"videos/01.mp4", "videos/02.mp4"}, exec.executed)
	require.Len(t, report.Outcomes, 2)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 2, report.Deferred)
}

func TestRunScheduled_AuthFailureKeepsFailingJobInStore(t *testing.T) {
	t.Parallel()

	store := newCSVStore(t, 5)
	exec := &scriptedExecutor{failFiles: map[string]jobs.FaultKind{
		"videos/03.mp4": jobs.FaultAuth,
	}}
	ledger := &memLedger{}
	orch := New(exec, WithQuotaGate(quota.NewGate(ledger)))

	report, err := orch.RunScheduled(context.Background(), store, 5)
	require.NoError(t, err)

	// The failing job never reached the API, so only the two successes
	// count as attempted and get removed from the store.
	assert.Equal(t, 2, report.Attempted)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 2, report.Deferred)
	assert.Equal(t, 3, report.Remaining)

	remaining, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, remaining, 3)
	assert.Equal(t, "videos/03.mp4", remaining[0].File)
	assert.Equal(t, "videos/05.mp4", remaining[2].File)

	// Nothing was billed for the refused token exchange.
	assert.Equal(t, 2*quota.CostVideoInsert, ledger.st.UsedUnits)
}

func TestRunScheduled_QuotaRecordedForBilledFailures(t *testing.T) {
	t.Parallel()

	store := newCSVStore(t, 2)
	exec := &scriptedExecutor{failFiles: map[string]jobs.FaultKind{
		"videos/01.mp4": jobs.FaultTransient,       // billed by the platform
		"videos/02.mp4": jobs.FaultInvalidTimestamp, // no network call
	}}
	ledger := &memLedger{}
	gate := quota.NewGate(ledger)
	orch := New(exec, WithQuotaGate(gate))

	_, err := orch.RunScheduled(context.Background(), store, 2)
	require.NoError(t, err)

	remaining, err := gate.Remaining()
	require.NoError(t, err)
	assert.Equal(t, quota.DefaultDailyLimit-quota.CostVideoInsert, remaining)
}

type failingRemoveStore struct {
	inner jobs.Store
}

func (f *failingRemoveStore) Load(ctx context.Context) ([]jobs.Job, error) {
	return f.inner.Load(ctx)
}

func (f *failingRemoveStore) RemoveFirst(ctx context.Context, n int) error {
	return errors.New("disk full")
}

func TestRunScheduled_RewriteFailureSurfacesWithReport(t *testing.T) {
	t.Parallel()

	csvStore := newCSVStore(t, 3)
	store := &failingRemoveStore{inner: csvStore}
	orch := New(&scriptedExecutor{})

	report, err := orch.RunScheduled(context.Background(), store, 2)
	require.Error(t, err)
	require.NotNil(t, report)
	assert.Equal(t, 2, report.Attempted)

	// The store still holds the pre-run state, so the next invocation
	// re-attempts the same jobs.
	remaining, err := csvStore.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, remaining, 3)
}

func TestRunList_RecordsHistoryWithBatchMode(t *testing.T) {
	t.Parallel()

	history := &memHistory{}
	orch := New(&scriptedExecutor{}, WithHistory(history), WithSleep(func(time.Duration) {}))

	report := orch.RunList(context.Background(), makeJobs(2), time.Second)

	assert.Equal(t, 1, history.calls)
	assert.Equal(t, "batch", history.mode)
	assert.Equal(t, report.RunID, history.runID)
	assert.Len(t, history.outcomes, 2)
}
