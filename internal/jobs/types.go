package jobs

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

type PrivacyStatus string

const (
	PrivacyPublic   PrivacyStatus = "public"
	PrivacyPrivate  PrivacyStatus = "private"
	PrivacyUnlisted PrivacyStatus = "unlisted"
)

const (
	// DefaultCategoryID is YouTube category 22, People & Blogs.
	DefaultCategoryID = "22"
)

// Job is one pending upload. Jobs are immutable once parsed: the store
// either retains or removes them, it never rewrites their fields.
type Job struct {
	File         string
	Title        string
	Description  string
	Tags         []string
	CategoryID   string
	Privacy      PrivacyStatus
	PlaylistName string
	// PublishAt is a civil JST timestamp ("2006-01-02 15:04[:05]") or
	// empty. It is validated at execution time, not at load time.
	PublishAt string
}

// Validate checks the invariants that can be decided without touching
// the filesystem or the network.
func (j Job) Validate() error {
	if strings.TrimSpace(j.Title) == "" {
		return fmt.Errorf("job %q: title is required", j.File)
	}
	if !ValidPrivacy(j.Privacy) {
		return fmt.Errorf("job %q: unknown privacy status %q", j.File, j.Privacy)
	}
	return nil
}

// ValidPrivacy reports whether s is one of the statuses the API accepts.
func ValidPrivacy(s PrivacyStatus) bool {
	switch s {
	case PrivacyPublic, PrivacyPrivate, PrivacyUnlisted:
		return true
	}
	return false
}

// FromMediaFile builds a Job with metadata derived from the file name,
// used when uploading a bare directory of videos with no list file.
func FromMediaFile(path string) Job {
	base := filepath.Base(path)
	title := strings.TrimSuffix(base, filepath.Ext(base))

	return Job{
		File:        path,
		Title:       title,
		Description: "Uploaded by shorts-uploader.",
		Tags:        []string{"Shorts"},
		CategoryID:  DefaultCategoryID,
		Privacy:     PrivacyPublic,
	}
}

type OutcomeStatus string

const (
	StatusSuccess OutcomeStatus = "success"
	StatusFailure OutcomeStatus = "failure"
)

// FaultKind classifies a failure outcome.
type FaultKind string

const (
	FaultNone FaultKind = ""
	// FaultInvalidTimestamp: the publish-at string failed to parse; no
	// network call was made.
	FaultInvalidTimestamp FaultKind = "invalid_timestamp"
	// FaultQuotaExceeded: the platform reported its quota limit. Fatal
	// to the remainder of a run, every further attempt would also fail.
	FaultQuotaExceeded FaultKind = "quota_exceeded"
	// FaultTransient: network or 5xx failure that survived the upload
	// client's own bounded retry.
	FaultTransient FaultKind = "transient"
	// FaultRejected: 4xx validation failure, not retried.
	FaultRejected FaultKind = "rejected"
	// FaultAuth: credentials could not be exchanged for an access
	// token. Fatal to the remainder of a run; the failing job never
	// reached the API and stays in the store.
	FaultAuth FaultKind = "auth"
)

// Outcome is the terminal result of exactly one upload attempt.
type Outcome struct {
	Job       Job
	Status    OutcomeStatus
	VideoID   string
	Err       string
	Fault     FaultKind
	// Billed reports whether an API call that consumes quota capacity
	// was actually issued. The platform bills failed uploads too, but
	// not jobs rejected before any network call.
	Billed    bool
	Timestamp time.Time
}

func (o Outcome) Succeeded() bool {
	return o.Status == StatusSuccess
}

// URL returns the public Shorts URL for a successful outcome.
func (o Outcome) URL() string {
	if o.VideoID == "" {
		return ""
	}
	return "https://youtube.com/shorts/" + o.VideoID
}
