// Package executor turns one upload job into one terminal outcome. The
// executor mutates no local state: quota recording and job-store
// removal belong to the batch orchestrator, which keeps this package
// testable against fakes.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"shorts-uploader/internal/jobs"
	"shorts-uploader/pkg/civiltime"
	"shorts-uploader/pkg/file"
	"shorts-uploader/pkg/log"
)

// ErrPlaylistNotFound is returned by PlaylistResolver.Find when no
// playlist carries the requested name. It is a warning, not a failure:
// playlists are never created implicitly, so a misspelled name cannot
// silently proliferate new ones.
var ErrPlaylistNotFound = errors.New("playlist not found")

// UploadError is a classified fault from the upload client. The client
// performs its own bounded retry before surfacing a transient fault.
// Billed records whether an API request actually went out before the
// failure: auth failures and local I/O errors consume no quota.
type UploadError struct {
	Kind   jobs.FaultKind
	Err    error
	Billed bool
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload failed (%s): %v", e.Kind, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// Classify extracts the fault kind from an error chain, defaulting to
// transient for unclassified failures.
func Classify(err error) jobs.FaultKind {
	var ue *UploadError
	if errors.As(err, &ue) {
		return ue.Kind
	}
	if errors.Is(err, civiltime.ErrInvalidTimestamp) {
		return jobs.FaultInvalidTimestamp
	}
	return jobs.FaultTransient
}

// BilledFrom reports whether the platform charged quota for a failed
// call. Unclassified errors count as billed: overcounting an advisory
// ledger is safer than undercounting it.
func BilledFrom(err error) bool {
	var ue *UploadError
	if errors.As(err, &ue) {
		return ue.Billed
	}
	return true
}

// UploadRequest is the wire-level input of one upload call. PublishAt,
// when set, is already the UTC instant in API format.
type UploadRequest struct {
	File        string
	Title       string
	Description string
	Tags        []string
	CategoryID  string
	Privacy     jobs.PrivacyStatus
	PublishAt   string
}

// Uploader performs exactly one upload call against the remote API.
type Uploader interface {
	Upload(ctx context.Context, req UploadRequest) (videoID string, err error)
}

// PlaylistResolver looks up playlists by name and attaches videos.
type PlaylistResolver interface {
	Find(ctx context.Context, name string) (playlistID string, err error)
	AddItem(ctx context.Context, playlistID, videoID string) error
}

type Executor struct {
	uploader  Uploader
	playlists PlaylistResolver
	logger    *log.Logger
}

func New(uploader Uploader, playlists PlaylistResolver) *Executor {
	return &Executor{
		uploader:  uploader,
		playlists: playlists,
		logger:    log.GetLogger(),
	}
}

// WithLogger redirects executor logging, used by scheduled runs that
// tee into a per-run log file.
func (e *Executor) WithLogger(logger *log.Logger) *Executor {
	clone := *e
	clone.logger = logger
	return &clone
}

// Execute runs one job to its terminal outcome. Every call produces
// exactly one Outcome; errors never escape.
func (e *Executor) Execute(ctx context.Context, job jobs.Job) jobs.Outcome {
	if err := job.Validate(); err != nil {
		return e.failure(job, jobs.FaultRejected, err)
	}
	if !file.Exists(job.File) {
		return e.failure(job, jobs.FaultRejected, fmt.Errorf("video file not found: %s", job.File))
	}

	playlistID := e.resolvePlaylist(ctx, job)

	req := UploadRequest{
		File:        job.File,
		Title:       job.Title,
		Description: job.Description,
		Tags:        job.Tags,
		CategoryID:  job.CategoryID,
		Privacy:     job.Privacy,
	}

	if job.PublishAt != "" {
		publishAt, err := civiltime.ToPublishAt(job.PublishAt)
		if err != nil {
			return e.failure(job, jobs.FaultInvalidTimestamp,
				fmt.Errorf("publish-at %q: %w", job.PublishAt, err))
		}
		req.PublishAt = publishAt
		// Scheduled publication requires the video to be private at
		// creation; the platform flips it to the requested visibility
		// at the publish instant.
		req.Privacy = jobs.PrivacyPrivate
		e.logger.Info("Scheduled publication: %s (JST) -> %s (UTC), uploading as private", job.PublishAt, publishAt)
	}

	videoID, err := e.uploader.Upload(ctx, req)
	if err != nil {
		out := e.failure(job, Classify(err), err)
		out.Billed = BilledFrom(err)
		return out
	}

	e.logger.Info("Uploaded %s: https://youtube.com/shorts/%s", job.File, videoID)

	if playlistID != "" {
		if err := e.playlists.AddItem(ctx, playlistID, videoID); err != nil {
			// The video is already uploaded; a failed playlist
			// association never downgrades the outcome.
			e.logger.Warn("Failed to add video %s to playlist %s: %v", videoID, playlistID, err)
		} else {
			e.logger.Info("Added video %s to playlist %s", videoID, playlistID)
		}
	}

	return jobs.Outcome{
		Job:       job,
		Status:    jobs.StatusSuccess,
		VideoID:   videoID,
		Billed:    true,
		Timestamp: time.Now(),
	}
}

func (e *Executor) resolvePlaylist(ctx context.Context, job jobs.Job) string {
	if job.PlaylistName == "" || e.playlists == nil {
		return ""
	}

	playlistID, err := e.playlists.Find(ctx, job.PlaylistName)
	if errors.Is(err, ErrPlaylistNotFound) {
		e.logger.Warn("Playlist %q not found; uploading %s without playlist association", job.PlaylistName, job.File)
		return ""
	}
	if err != nil {
		e.logger.Warn("Playlist lookup for %q failed: %v; uploading %s without playlist association", job.PlaylistName, err, job.File)
		return ""
	}
	return playlistID
}

func (e *Executor) failure(job jobs.Job, kind jobs.FaultKind, err error) jobs.Outcome {
	e.logger.Error("Upload of %s failed: %v", job.File, err)
	return jobs.Outcome{
		Job:       job,
		Status:    jobs.StatusFailure,
		Err:       err.Error(),
		Fault:     kind,
		Timestamp: time.Now(),
	}
}
