// Package batch sequences upload jobs and enforces the run policy:
// quota admission, failure isolation, inter-job spacing, and the
// forward-progress guarantee of scheduled runs.
package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"shorts-uploader/internal/jobs"
	"shorts-uploader/internal/quota"
	"shorts-uploader/pkg/log"
)

// JobExecutor runs one job to its terminal outcome.
type JobExecutor interface {
	Execute(ctx context.Context, job jobs.Job) jobs.Outcome
}

// History receives the outcomes of a completed run.
type History interface {
	AppendOutcomes(ctx context.Context, runID, mode string, outcomes []jobs.Outcome) error
}

// Orchestrator drives batches of upload jobs strictly in order. Uploads
// are sequential: the per-call quota cost makes parallelism
// counter-productive and risks platform-side throttling.
type Orchestrator struct {
	executor JobExecutor
	gate     *quota.Gate
	history  History
	logger   *log.Logger
	sleep    func(time.Duration)
}

type Option func(*Orchestrator)

// WithQuotaGate enables local quota admission checks.
func WithQuotaGate(gate *quota.Gate) Option {
	return func(o *Orchestrator) {
		o.gate = gate
	}
}

// WithHistory records run outcomes to the given history sink.
func WithHistory(h History) Option {
	return func(o *Orchestrator) {
		o.history = h
	}
}

// WithLogger redirects orchestrator logging.
func WithLogger(logger *log.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithSleep overrides the inter-job sleep, for tests.
func WithSleep(sleep func(time.Duration)) Option {
	return func(o *Orchestrator) {
		o.sleep = sleep
	}
}

func New(executor JobExecutor, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		executor: executor,
		logger:   log.GetLogger(),
		sleep:    time.Sleep,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Report aggregates the outcomes of one run.
type Report struct {
	RunID     string
	Outcomes  []jobs.Outcome
	Attempted int
	Succeeded int
	Failed    int
	// Deferred counts jobs skipped because the local quota gate had no
	// capacity left or a platform quota fault aborted the run. Deferred
	// jobs are never removed from a job store.
	Deferred int
	// Remaining is the store size after a scheduled run; zero for list
	// runs.
	Remaining int
}

// RunList executes an ordered job list front to back, sleeping delay
// between jobs (not after the last). One-shot manual mode: the operator
// supplies the full set each time and no job store is mutated.
func (o *Orchestrator) RunList(ctx context.Context, list []jobs.Job, delay time.Duration) *Report {
	report := &Report{RunID: uuid.NewString()}
	o.logger.Info("Batch run %s: %d job(s), %s between jobs", report.RunID, len(list), delay)

	for i, job := range list {
		if !o.admit(report, len(list)-i) {
			break
		}

		o.logger.Info("[%d/%d] %s", i+1, len(list), job.File)
		outcome := o.attempt(ctx, job)
		if outcome.Fault == jobs.FaultAuth {
			o.abort(report, outcome, len(list)-i-1)
			break
		}
		o.collect(report, outcome)

		if outcome.Fault == jobs.FaultQuotaExceeded {
			report.Deferred = len(list) - i - 1
			o.logger.Error("Platform quota exhausted; deferring %d remaining job(s)", report.Deferred)
			break
		}
		if i < len(list)-1 && delay > 0 {
			o.sleep(delay)
		}
	}

	o.logger.Info("Batch run %s finished: %d succeeded, %d failed, %d deferred",
		report.RunID, report.Succeeded, report.Failed, report.Deferred)
	o.record(ctx, report, "batch")
	return report
}

// RunScheduled executes at most maxJobs from the front of the store,
// then backs up and rewrites the store once, removing every attempted
// job regardless of outcome. Repeated invocations therefore always
// advance through the list even under persistent per-job failures;
// failed jobs are recovered manually from the logs, never re-queued.
//
// The store is only rewritten after the whole batch, so termination
// mid-run leaves it untouched and the next invocation re-attempts the
// same jobs. Duplicate uploads after such a crash are an accepted
// tradeoff.
func (o *Orchestrator) RunScheduled(ctx context.Context, store jobs.Store, maxJobs int) (*Report, error) {
	report := &Report{RunID: uuid.NewString()}

	list, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		o.logger.Info("Scheduled run %s: upload list is empty, all uploads completed", report.RunID)
		return report, nil
	}

	window := list
	if maxJobs > 0 && maxJobs < len(list) {
		window = list[:maxJobs]
	}
	o.logger.Info("Scheduled run %s: %d of %d job(s) in this window", report.RunID, len(window), len(list))

	for i, job := range window {
		if !o.admit(report, len(window)-i) {
			break
		}

		o.logger.Info("[%d/%d] %s", i+1, len(window), job.File)
		outcome := o.attempt(ctx, job)
		if outcome.Fault == jobs.FaultAuth {
			o.abort(report, outcome, len(window)-i-1)
			break
		}
		o.collect(report, outcome)

		if outcome.Fault == jobs.FaultQuotaExceeded {
			report.Deferred = len(window) - i - 1
			o.logger.Error("Platform quota exhausted; deferring %d remaining job(s)", report.Deferred)
			break
		}
	}

	report.Remaining = len(list) - report.Attempted
	if report.Attempted > 0 {
		if err := store.RemoveFirst(ctx, report.Attempted); err != nil {
			o.record(ctx, report, "scheduled")
			return report, fmt.Errorf("rewrite upload list after %d attempt(s): %w", report.Attempted, err)
		}
	}

	o.logger.Info("Scheduled run %s finished: %d succeeded, %d failed, %d deferred, %d remaining",
		report.RunID, report.Succeeded, report.Failed, report.Deferred, report.Remaining)
	if report.Remaining == 0 && report.Deferred == 0 {
		o.logger.Info("All uploads completed")
	}
	o.record(ctx, report, "scheduled")
	return report, nil
}

// abort ends a run on an auth failure. The failing job never reached
// the API: it is reported as a failure but not counted attempted, so a
// scheduled run keeps it and everything after it in the store.
func (o *Orchestrator) abort(report *Report, outcome jobs.Outcome, left int) {
	report.Outcomes = append(report.Outcomes, outcome)
	report.Failed++
	report.Deferred = left
	o.logger.Error("Authentication failed, aborting run with %d job(s) untouched: %s", left, outcome.Err)
}

// admit consults the quota gate before an attempt. On refusal the rest
// of the run is deferred, not failed.
func (o *Orchestrator) admit(report *Report, left int) bool {
	if o.gate == nil {
		return true
	}
	ok, err := o.gate.CanAdmit(quota.CostVideoInsert)
	if err != nil {
		o.logger.Warn("Quota gate unavailable, proceeding without admission check: %v", err)
		return true
	}
	if !ok {
		report.Deferred = left
		o.logger.Warn("Local quota capacity exhausted; deferring %d job(s) to the next period", left)
		return false
	}
	return true
}

// attempt is the per-job failure boundary: whatever happens inside the
// executor, exactly one outcome comes back and the loop continues.
func (o *Orchestrator) attempt(ctx context.Context, job jobs.Job) (outcome jobs.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = jobs.Outcome{
				Job:       job,
				Status:    jobs.StatusFailure,
				Err:       fmt.Sprintf("panic during upload: %v", r),
				Fault:     jobs.FaultTransient,
				Timestamp: time.Now(),
			}
		}
	}()
	return o.executor.Execute(ctx, job)
}

func (o *Orchestrator) collect(report *Report, outcome jobs.Outcome) {
	report.Outcomes = append(report.Outcomes, outcome)
	report.Attempted++
	if outcome.Succeeded() {
		report.Succeeded++
	} else {
		report.Failed++
	}

	if o.gate != nil && outcome.Billed {
		if err := o.gate.Record(quota.CostVideoInsert); err != nil {
			o.logger.Warn("Failed to record quota consumption: %v", err)
		}
	}
}

func (o *Orchestrator) record(ctx context.Context, report *Report, mode string) {
	if o.history == nil || len(report.Outcomes) == 0 {
		return
	}
	if err := o.history.AppendOutcomes(ctx, report.RunID, mode, report.Outcomes); err != nil {
		o.logger.Warn("Failed to record run history: %v", err)
	}
}
