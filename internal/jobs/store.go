package jobs

import "context"

// Store is the durable ordered list of not-yet-attempted jobs. Order is
// significant: the first listed job is attempted first.
type Store interface {
	// Load reads the full remaining list. Called once per run.
	Load(ctx context.Context) ([]Job, error)
	// RemoveFirst drops the first n jobs after snapshotting the prior
	// state, so a crash mid-write can always be recovered. Called at
	// most once per run, after the batch of attempts completes.
	RemoveFirst(ctx context.Context, n int) error
}
