package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"shorts-uploader/internal/batch"
	"shorts-uploader/internal/config"
	"shorts-uploader/internal/executor"
	"shorts-uploader/internal/jobs"
	"shorts-uploader/internal/media"
	"shorts-uploader/internal/persistence"
	"shorts-uploader/internal/quota"
	"shorts-uploader/internal/service"
	"shorts-uploader/internal/youtube"
	"shorts-uploader/pkg/file"
	"shorts-uploader/pkg/log"
)

const usage = `Usage: shorts-uploader <command> [flags]

Commands:
  upload     upload a single video file
  batch      upload a CSV list or a directory of videos
  scheduled  run one scheduled batch from the upload list
  serve      run the cron daemon
  quota      show or reset the local quota ledger
  validate   check videos against the Shorts format limits
`

func main() {
	_ = godotenv.Load()
	log.InitLogger(log.ParseLevel(os.Getenv("LOG_LEVEL")))

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatal("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch os.Args[1] {
	case "upload":
		err = runUpload(ctx, cfg, os.Args[2:])
	case "batch":
		err = runBatch(ctx, cfg, os.Args[2:])
	case "scheduled":
		err = runScheduled(ctx, cfg, os.Args[2:])
	case "serve":
		err = runServe(ctx, cfg)
	case "quota":
		err = runQuota(cfg, os.Args[2:])
	case "validate":
		err = runValidate(cfg, os.Args[2:])
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	if err != nil {
		log.Error("%v", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	var opts []config.Option
	settingsPath := config.RuntimeSettingsFilePath()
	if settings, err := config.LoadRuntimeSettingsFile(settingsPath); err == nil {
		opts = append(opts, config.WithRuntimeSettings(settings))
	}
	return config.NewFromEnv(opts...)
}

// newOrchestrator wires the upload stack: authenticator, API client,
// executor, quota gate and history store. The token preflight makes an
// invalid credential abort the run before any job or store is touched.
func newOrchestrator(ctx context.Context, cfg *config.Config, logger *log.Logger, saveHistory bool) (*batch.Orchestrator, func(), error) {
	auth, err := youtube.NewAuthenticator(cfg.YouTube)
	if err != nil {
		return nil, nil, err
	}
	if _, err := auth.Token(ctx); err != nil {
		return nil, nil, err
	}

	client := youtube.NewClient(cfg.YouTube, auth, youtube.WithLogger(logger))
	exec := executor.New(client, client).WithLogger(logger)

	gate := quota.NewGate(quota.NewFileLedger(cfg.Quota.StatePath),
		quota.WithDailyLimit(cfg.Quota.DailyLimit))

	opts := []batch.Option{
		batch.WithQuotaGate(gate),
		batch.WithLogger(logger),
	}

	cleanup := func() {}
	if saveHistory {
		history, err := persistence.NewHistoryStore(cfg.Storage.HistoryDBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open history store: %w", err)
		}
		opts = append(opts, batch.WithHistory(history))
		cleanup = func() { _ = history.Close() }
	}

	return batch.New(exec, opts...), cleanup, nil
}

func runUpload(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	title := fs.String("title", "", "video title (default: file name)")
	description := fs.String("desc", "", "video description")
	tags := fs.String("tags", "", "comma-separated tags")
	privacy := fs.String("privacy", cfg.Uploads.DefaultPrivacy, "privacy status")
	playlist := fs.String("playlist", cfg.Uploads.DefaultPlaylist, "playlist name")
	publishAt := fs.String("publish-at", "", "JST publish time (2006-01-02 15:04)")
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		return fmt.Errorf("upload: exactly one video file is required")
	}

	job := jobs.FromMediaFile(fs.Arg(0))
	if *title != "" {
		job.Title = *title
	}
	if *description != "" {
		job.Description = *description
	}
	if *tags != "" {
		job.Tags = jobs.SplitTags(*tags)
	}
	job.Privacy = jobs.PrivacyStatus(*privacy)
	job.PlaylistName = *playlist
	job.PublishAt = *publishAt
	job.CategoryID = cfg.Uploads.DefaultCategory
	log.Info("Uploading %s as %s (%s)", job.File, jobs.CategoryName(job.CategoryID), job.Privacy)

	orch, cleanup, err := newOrchestrator(ctx, cfg, log.GetLogger(), false)
	if err != nil {
		return err
	}
	defer cleanup()

	return singleUploadResult(orch.RunList(ctx, []jobs.Job{job}, 0))
}

// singleUploadResult reports the outcome of a one-job run. The quota
// gate may defer the job before any attempt, leaving the report with
// no outcomes at all.
func singleUploadResult(report *batch.Report) error {
	if len(report.Outcomes) == 0 {
		return fmt.Errorf("upload deferred: daily quota capacity exhausted, try again after the reset")
	}
	outcome := report.Outcomes[0]
	if !outcome.Succeeded() {
		return fmt.Errorf("upload failed: %s", outcome.Err)
	}
	log.Info("Uploaded: %s", outcome.URL())
	return nil
}

func runBatch(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	csvPath := fs.String("c", "", "CSV upload list (default: VIDEO_DIR scan)")
	dir := fs.String("d", cfg.Uploads.VideoDir, "video directory")
	interval := fs.Int("i", cfg.Uploads.IntervalSeconds, "seconds between uploads")
	saveHistory := fs.Bool("save-history", false, "record outcomes in the history database")
	_ = fs.Parse(args)

	var list []jobs.Job
	if *csvPath != "" {
		f, err := os.Open(*csvPath)
		if err != nil {
			return err
		}
		list, err = jobs.ParseList(f)
		f.Close()
		if err != nil {
			return err
		}
	} else {
		paths, err := file.ListPattern(*dir, "*.mp4")
		if err != nil {
			return err
		}
		for _, path := range paths {
			job := jobs.FromMediaFile(path)
			job.Privacy = jobs.PrivacyStatus(cfg.Uploads.DefaultPrivacy)
			job.PlaylistName = cfg.Uploads.DefaultPlaylist
			job.CategoryID = cfg.Uploads.DefaultCategory
			list = append(list, job)
		}
	}

	if len(list) == 0 {
		log.Info("Nothing to upload")
		return nil
	}

	orch, cleanup, err := newOrchestrator(ctx, cfg, log.GetLogger(), *saveHistory)
	if err != nil {
		return err
	}
	defer cleanup()

	report := orch.RunList(ctx, list, time.Duration(*interval)*time.Second)
	if report.Failed > 0 {
		return fmt.Errorf("batch finished with %d failure(s)", report.Failed)
	}
	return nil
}

func runScheduled(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("scheduled", flag.ExitOnError)
	csvPath := fs.String("c", cfg.Uploads.ListPath, "CSV upload list")
	maxJobs := fs.Int("n", cfg.Uploads.MaxPerRun, "maximum uploads this run")
	_ = fs.Parse(args)

	// Each scheduled run gets its own log file.
	logPath := filepath.Join(cfg.Storage.LogDir,
		fmt.Sprintf("scheduled_%s.log", time.Now().Format("20060102_150405")))
	fileLogger, err := log.NewFileLogger(logPath, log.ParseLevel(os.Getenv("LOG_LEVEL")))
	if err != nil {
		return err
	}
	defer fileLogger.Close()

	orch, cleanup, err := newOrchestrator(ctx, cfg, fileLogger.Logger, true)
	if err != nil {
		return err
	}
	defer cleanup()

	report, err := orch.RunScheduled(ctx, persistence.NewCSVStore(*csvPath), *maxJobs)
	if err != nil {
		return err
	}
	if report.Failed > 0 {
		return fmt.Errorf("scheduled run finished with %d failure(s)", report.Failed)
	}
	return nil
}

func runServe(ctx context.Context, cfg *config.Config) error {
	settingsPath := config.RuntimeSettingsFilePath()
	if !file.Exists(settingsPath) {
		if err := config.WriteRuntimeSettingsFile(settingsPath, cfg.RuntimeSettings()); err != nil {
			return fmt.Errorf("write initial settings: %w", err)
		}
	}
	settings, err := config.LoadRuntimeSettingsFile(settingsPath)
	if err != nil {
		return err
	}
	settingsStore, err := config.NewRuntimeSettingsStore(settingsPath, settings)
	if err != nil {
		return err
	}

	orch, cleanup, err := newOrchestrator(ctx, cfg, log.GetLogger(), true)
	if err != nil {
		return err
	}
	defer cleanup()

	c := cron.New()
	svc := service.NewRunnableUploadService(settingsStore, orch, persistence.NewCSVStore(cfg.Uploads.ListPath), c)
	if err := svc.Schedule(ctx); err != nil {
		return err
	}

	c.Start()
	<-ctx.Done()
	log.Info("Shutting down")
	<-c.Stop().Done()
	return nil
}

func runQuota(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("quota", flag.ExitOnError)
	reset := fs.Bool("reset", false, "zero the counter for the current period")
	_ = fs.Parse(args)

	gate := quota.NewGate(quota.NewFileLedger(cfg.Quota.StatePath),
		quota.WithDailyLimit(cfg.Quota.DailyLimit))

	if *reset {
		if err := gate.Reset(); err != nil {
			return err
		}
		log.Info("Quota counter reset")
	}

	remaining, err := gate.Remaining()
	if err != nil {
		return err
	}
	uploads, err := gate.RemainingUploads()
	if err != nil {
		return err
	}

	fmt.Printf("Daily limit:       %d units\n", gate.DailyLimit())
	fmt.Printf("Remaining:         %d units\n", remaining)
	fmt.Printf("Remaining uploads: %d\n", uploads)
	return nil
}

func runValidate(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	csvPath := fs.String("c", "", "validate every file in a CSV upload list")
	_ = fs.Parse(args)

	var paths []string
	if *csvPath != "" {
		f, err := os.Open(*csvPath)
		if err != nil {
			return err
		}
		list, err := jobs.ParseList(f)
		f.Close()
		if err != nil {
			return err
		}
		for _, job := range list {
			paths = append(paths, job.File)
		}
	} else {
		for _, arg := range fs.Args() {
			if stat, err := os.Stat(arg); err == nil && stat.IsDir() {
				found, err := file.ListPattern(arg, "*.mp4")
				if err != nil {
					return err
				}
				paths = append(paths, found...)
				continue
			}
			paths = append(paths, arg)
		}
	}
	if len(paths) == 0 {
		return fmt.Errorf("validate: no files given")
	}

	failed := 0
	for _, path := range paths {
		result, err := media.ValidateFile(path)
		if err != nil {
			log.Error("%s: %v", path, err)
			failed++
			continue
		}
		for _, warning := range result.Warnings {
			log.Warn("%s: %s", path, warning)
		}
		if !result.OK() {
			log.Error("%s: %s", path, strings.Join(result.Errors, "; "))
			failed++
			continue
		}
		log.Info("%s: ok", path)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d file(s) failed validation", failed, len(paths))
	}
	return nil
}
