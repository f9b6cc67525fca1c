package fetch

import "errors"

var (
	// ErrEmptyURL is returned when Fetch is called with an empty URL.
	ErrEmptyURL = errors.New("fetch: empty URL")

	// ErrManualAborted is returned from the manual-intervention tier
	// when the operator aborts instead of clearing the challenge.
	ErrManualAborted = errors.New("fetch: manual intervention aborted")

	// ErrRootNotFound is returned by ResolveRoot when the landing page
	// yields no valid candidate to use as the tree root.
	ErrRootNotFound = errors.New("fetch: no root paper found")
)
