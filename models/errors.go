package models

import "errors"

var (
	// ErrFetchFailed marks a failed snapshot request. The feed keeps serving
	// the last known good entries; retry policy belongs to the caller.
	ErrFetchFailed = errors.New("snapshot fetch failed")

	// ErrLocationUnavailable means no coordinate has ever been obtained. The
	// feed is empty by design in this state, which is distinct from a fetch
	// failure.
	ErrLocationUnavailable = errors.New("location unavailable")

	// ErrStreamInterrupted means live updates are paused. Stale-but-valid
	// entries continue to display; resubscription is the caller's policy.
	ErrStreamInterrupted = errors.New("change stream interrupted")
)
