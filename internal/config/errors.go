package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() and provide specific
// information about what is wrong with the configuration.
//
// Design decision: We use package-level sentinel errors rather than
// creating new error instances in Validate(). This allows callers to use
// errors.Is() for programmatic error handling while still providing
// human-readable messages. Using errors.New() here rather than fmt.Errorf()
// because we don't need to include dynamic values in these messages.
var (
	// ErrNoStartURL is returned when neither a start URL nor a session to
	// resume is specified. One of the two is required to have work to do.
	ErrNoStartURL = errors.New("no start URL specified: provide a paper URL or use --resume")

	// ErrInvalidMaxDepth is returned when the tree depth bound is not positive.
	// A depth of zero would produce an empty tree.
	ErrInvalidMaxDepth = errors.New("invalid max depth: must be positive")

	// ErrInvalidMaxPapers is returned when the per-level fan-out cap is not
	// positive. A cap of zero would drop every extracted paper.
	ErrInvalidMaxPapers = errors.New("invalid max papers per level: must be positive")

	// ErrInvalidDelayRange is returned when the delay bounds are negative
	// or inverted. Use equal min and max for a fixed delay.
	ErrInvalidDelayRange = errors.New("invalid delay range: bounds must be non-negative with min <= max")

	// ErrInvalidMaxRetries is returned when the per-URL retry budget is not
	// positive. A budget of zero would mean no fetch attempts at all.
	ErrInvalidMaxRetries = errors.New("invalid max retries: must be positive")

	// ErrInvalidFormat is returned for report formats other than
	// text, json or markdown.
	ErrInvalidFormat = errors.New("invalid report format: must be text, json or markdown")

	// ErrUnknownPreset is returned when the requested preset name does not
	// exist. Valid presets are demo, production and quick.
	ErrUnknownPreset = errors.New("unknown preset: must be demo, production or quick")
)
