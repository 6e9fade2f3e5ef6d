// Package service is the daemon mode: a cron-driven loop that runs one
// scheduled upload batch per firing.
package service

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"shorts-uploader/internal/batch"
	"shorts-uploader/internal/config"
	"shorts-uploader/internal/jobs"
	"shorts-uploader/pkg/icron"
	"shorts-uploader/pkg/log"
)

// Runner abstracts the batch orchestrator for tests.
type Runner interface {
	RunScheduled(ctx context.Context, store jobs.Store, maxJobs int) (*batch.Report, error)
}

type uploadService struct {
	settings *config.RuntimeSettingsStore
	runner   Runner
	store    jobs.Store
	cron     *cron.Cron
}

func NewRunnableUploadService(
	settings *config.RuntimeSettingsStore,
	runner Runner,
	store jobs.Store,
	cron *cron.Cron,
) uploadService {
	return uploadService{
		settings: settings,
		runner:   runner,
		store:    store,
		cron:     cron,
	}
}

var singleflightGroup singleflight.Group

// Schedule registers the upload batch with the cron runner. Overlapping
// firings collapse into one run through the singleflight group, so a
// slow batch never overlaps the next one.
func (s uploadService) Schedule(ctx context.Context) error {
	log.Info("Run UploadService")

	settings, err := s.settings.GetRuntimeSettings()
	if err != nil {
		return err
	}

	if info, err := icron.GetTriggerInfo(settings.CronExpr, time.Now()); err == nil {
		log.Info("Schedule %q: next run at %v (in %v)", settings.CronExpr, info.Next, info.TimeUntilNext.Round(time.Second))
	}

	runFunc := func() {
		_, _, _ = singleflightGroup.Do("run", func() (any, error) {
			s.runOnce(ctx)
			return nil, nil
		})
	}
	_, err = s.cron.AddFunc(settings.CronExpr, runFunc)
	return err
}

func (s uploadService) runOnce(ctx context.Context) {
	settings, err := s.settings.GetRuntimeSettings()
	if err != nil {
		log.Error("Failed to read runtime settings: %v", err)
		return
	}

	report, err := s.runner.RunScheduled(ctx, s.store, settings.MaxUploads)
	if err != nil {
		log.Error("Scheduled run failed: %v", err)
		return
	}
	if report.Failed > 0 {
		log.Warn("Scheduled run %s finished with %d failure(s)", report.RunID, report.Failed)
	}
}
