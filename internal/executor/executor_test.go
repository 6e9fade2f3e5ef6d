package executor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shorts-uploader/internal/jobs"
)

type fakeUploader struct {
	calls   []UploadRequest
	videoID string
	err     error
}

func (f *fakeUploader) Upload(_ context.Context, req UploadRequest) (string, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return "", f.err
	}
	return f.videoID, nil
}

type fakePlaylists struct {
	playlists map[string]string
	added     [][2]string
	addErr    error
}

func (f *fakePlaylists) Find(_ context.Context, name string) (string, error) {
	if id, ok := f.playlists[name]; ok {
		return id, nil
	}
	return "", ErrPlaylistNotFound
}

func (f *fakePlaylists) AddItem(_ context.Context, playlistID, videoID string) error {
	if f.addErr != nil {
		return f.addErr
	}
	f.added = append(f.added, [2]string{playlistID, videoID})
	return nil
}

func tempVideo(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(path, []byte("fake video"), 0o644))
	return path
}

func baseJob(t *testing.T) jobs.Job {
	return jobs.Job{
		File:       tempVideo(t),
		Title:      "Morning Cat",
		Tags:       []string{"cat"},
		CategoryID: "22",
		Privacy:    jobs.PrivacyPublic,
	}
}

func TestExecute_Success(t *testing.T) {
	t.Parallel()

	up := &fakeUploader{videoID: "vid-1"}
	ex := New(up, &fakePlaylists{})

	out := ex.Execute(context.Background(), baseJob(t))

	require.Equal(t, jobs.StatusSuccess, out.Status)
	assert.Equal(t, "vid-1", out.VideoID)
	assert.Empty(t, out.Err)
	assert.Equal(t, jobs.FaultNone, out.Fault)
	assert.True(t, out.Billed)
	assert.False(t, out.Timestamp.IsZero())

	require.Len(t, up.calls, 1)
	assert.Equal(t, jobs.PrivacyPublic, up.calls[0].Privacy)
	assert.Empty(t, up.calls[0].PublishAt)
}

func TestExecute_ScheduledPublishForcesPrivate(t *testing.T) {
	t.Parallel()

	up := &fakeUploader{videoID: "vid-2"}
	ex := New(up, &fakePlaylists{})

	job := baseJob(t)
	job.Privacy = jobs.PrivacyPublic
	job.PublishAt = "2025-11-20 19:00"

	out := ex.Execute(context.Background(), job)

	require.Equal(t, jobs.StatusSuccess, out.Status)
	require.Len(t, up.calls, 1)
	assert.Equal(t, jobs.PrivacyPrivate, up.calls[0].Privacy)
	assert.Equal(t, "2025-11-20T10:00:00Z", up.calls[0].PublishAt)
}

func TestExecute_InvalidPublishAtFailsBeforeUpload(t *testing.T) {
	t.Parallel()

	up := &fakeUploader{videoID: "unused"}
	ex := New(up, &fakePlaylists{})

	job := baseJob(t)
	job.PublishAt = "2025-13-01 00:00"

	out := ex.Execute(context.Background(), job)

	require.Equal(t, jobs.StatusFailure, out.Status)
	assert.Equal(t, jobs.FaultInvalidTimestamp, out.Fault)
	assert.False(t, out.Billed)
	assert.Empty(t, up.calls, "no network call may happen for a bad timestamp")
}

func TestExecute_MissingFileIsRejected(t *testing.T) {
	t.Parallel()

	up := &fakeUploader{videoID: "unused"}
	ex := New(up, &fakePlaylists{})

	job := baseJob(t)
	job.File = filepath.Join(t.TempDir(), "gone.mp4")

	out := ex.Execute(context.Background(), job)

	require.Equal(t, jobs.StatusFailure, out.Status)
	assert.Equal(t, jobs.FaultRejected, out.Fault)
	assert.Empty(t, up.calls)
}

func TestExecute_MissingTitleIsRejected(t *testing.T) {
	t.Parallel()

	up := &fakeUploader{}
	ex := New(up, &fakePlaylists{})

	job := baseJob(t)
	job.Title = ""

	out := ex.Execute(context.Background(), job)

	require.Equal(t, jobs.StatusFailure, out.Status)
	assert.Equal(t, jobs.FaultRejected, out.Fault)
	assert.Empty(t, up.calls)
}

func TestExecute_PlaylistResolvedAndAttached(t *testing.T) {
	t.Parallel()

	up := &fakeUploader{videoID: "vid-3"}
	pl := &fakePlaylists{playlists: map[string]string{"Daily Cats": "pl-9"}}
	ex := New(up, pl)

	job := baseJob(t)
	job.PlaylistName = "Daily Cats"

	out := ex.Execute(context.Background(), job)

	require.Equal(t, jobs.StatusSuccess, out.Status)
	require.Len(t, pl.added, 1)
	assert.Equal(t, [2]string{"pl-9", "vid-3"}, pl.added[0])
}

func TestExecute_PlaylistNotFoundIsWarningNotFailure(t *testing.T) {
	t.Parallel()

	up := &fakeUploader{videoID: "vid-4"}
	pl := &fakePlaylists{}
	ex := New(up, pl)

	job := baseJob(t)
	job.PlaylistName = "Misspelled"

	out := ex.Execute(context.Background(), job)

	require.Equal(t, jobs.StatusSuccess, out.Status)
	assert.Equal(t, "vid-4", out.VideoID)
	assert.Empty(t, pl.added, "no implicit playlist creation or association")
}

func TestExecute_PlaylistAddFailureKeepsSuccess(t *testing.T) {
	t.Parallel()

	up := &fakeUploader{videoID: "vid-5"}
	pl := &fakePlaylists{
		playlists: map[string]string{"Daily Cats": "pl-9"},
		addErr:    errors.New("api down"),
	}
	ex := New(up, pl)

	job := baseJob(t)
	job.PlaylistName = "Daily Cats"

	out := ex.Execute(context.Background(), job)

	require.Equal(t, jobs.StatusSuccess, out.Status)
	assert.Equal(t, "vid-5", out.VideoID)
}

func TestExecute_UploadFaultClassificationPassesThrough(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		want       jobs.FaultKind
		wantBilled bool
	}{
		{
			name:       "quota exceeded",
			err:        &UploadError{Kind: jobs.FaultQuotaExceeded, Err: errors.New("quotaExceeded"), Billed: true},
			want:       jobs.FaultQuotaExceeded,
			wantBilled: true,
		},
		{
			name:       "rejected",
			err:        &UploadError{Kind: jobs.FaultRejected, Err: errors.New("invalidVideoMetadata"), Billed: true},
			want:       jobs.FaultRejected,
			wantBilled: true,
		},
		{
			name:       "unclassified defaults to transient and billed",
			err:        errors.New("connection reset"),
			want:       jobs.FaultTransient,
			wantBilled: true,
		},
		{
			name:       "auth failure never reaches the API",
			err:        &UploadError{Kind: jobs.FaultAuth, Err: errors.New("invalid_grant")},
			want:       jobs.FaultAuth,
			wantBilled: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := &fakeUploader{err: tt.err}
			ex := New(up, &fakePlaylists{})

			out := ex.Execute(context.Background(), baseJob(t))

			require.Equal(t, jobs.StatusFailure, out.Status)
			assert.Equal(t, tt.want, out.Fault)
			assert.Equal(t, tt.wantBilled, out.Billed)
			assert.NotEmpty(t, out.Err)
		})
	}
}
