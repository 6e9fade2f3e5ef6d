package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shorts-uploader/internal/batch"
	"shorts-uploader/internal/jobs"
)

func TestSingleUploadResult(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		t.Parallel()
		report := &batch.Report{
			Attempted: 1,
			Succeeded: 1,
			Outcomes: []jobs.Outcome{
				{Status: jobs.StatusSuccess, VideoID: "vid123"},
			},
		}
		require.NoError(t, singleUploadResult(report))
	})

	t.Run("failure", func(t *testing.T) {
		t.Parallel()
		report := &batch.Report{
			Attempted: 1,
			Failed:    1,
			Outcomes: []jobs.Outcome{
				{Status: jobs.StatusFailure, Fault: jobs.FaultRejected, Err: "invalid title"},
			},
		}
		err := singleUploadResult(report)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid title")
	})

	t.Run("deferred by the quota gate", func(t *testing.T) {
		t.Parallel()
		// An exhausted gate refuses the job before any attempt: the
		// report carries no outcomes at all, only the deferral count.
		report := &batch.Report{Deferred: 1}
		err := singleUploadResult(report)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "deferred")
	})
}
