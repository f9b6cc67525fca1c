package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
)

// Default configuration values. The crawl-shape defaults mirror the
// values the project has always shipped with; the pacing defaults are
// deliberately polite because the upstream service blocks aggressively.
const (
	// DefaultMaxDepth bounds the citation tree recursion. Depth 3 keeps a
	// first crawl in the hundreds of requests rather than the millions.
	DefaultMaxDepth = 3

	// DefaultMaxPapersPerLevel caps the fan-out at each tree node. Papers
	// are sorted by citation count first, so the cap keeps the most
	// influential citations.
	DefaultMaxPapersPerLevel = 10

	// DefaultDelayMin and DefaultDelayMax bound the uniform base delay
	// between requests, before the adaptive multiplier is applied.
	DefaultDelayMin = 1 * time.Second
	DefaultDelayMax = 3 * time.Second

	// DefaultMaxRetries is the per-URL attempt budget across all
	// escalation tiers.
	DefaultMaxRetries = 3

	// DefaultCheckpointEveryN saves the session snapshot after this many
	// requests. Frequent enough that an interrupted crawl loses little,
	// rare enough that disk writes never dominate.
	DefaultCheckpointEveryN = 10

	// DefaultCheckpointInterval is the wall-clock fallback for
	// checkpointing during long blocks where the request counter stalls.
	DefaultCheckpointInterval = 1 * time.Minute

	// AppName is the application name used for XDG directory paths.
	AppName = "papertracer"
)

// Config holds all configuration options for PaperTracer.
// This struct is designed to be populated from CLI flags and passed through
// the application via dependency injection rather than global state.
//
// Design decision: We use a single flat struct instead of nested structs
// (e.g., CrawlConfig, SessionConfig) for simplicity. The number of options
// is manageable, and nesting would add complexity without significant benefit.
// If the configuration grows significantly, consider refactoring into sub-structs.
type Config struct {
	// StartURL is the paper or cited-by URL the crawl starts from.
	StartURL string

	// MaxDepth is the maximum citation tree depth. Children are only
	// expanded while their depth stays strictly below this bound.
	MaxDepth int

	// MaxPapersPerLevel caps how many citing papers each node keeps.
	MaxPapersPerLevel int

	// DelayMin and DelayMax bound the uniform base delay drawn before
	// every request. The adaptive multiplier scales this base.
	DelayMin time.Duration
	DelayMax time.Duration

	// MaxRetries is the per-URL attempt budget across escalation tiers.
	MaxRetries int

	// SkipBlocks enables skip mode: blocked URLs are recorded and
	// abandoned instead of escalated to the browser tiers. The crawl
	// never waits on a human.
	SkipBlocks bool

	// BrowserFallback enables the headless browser tier when plain HTTP
	// attempts keep classifying as blocked.
	BrowserFallback bool

	// ManualMode enables the visible-browser tier where a human solves
	// the challenge. Ignored while SkipBlocks is set.
	ManualMode bool

	// Proxies is the rotation ring of proxy URLs (http, https or socks5).
	// Empty means all requests go direct.
	Proxies []string

	// ResumeSessionID resumes a previous crawl from its saved snapshot
	// instead of starting a fresh session.
	ResumeSessionID string

	// SaveSession persists the session snapshot and tree under DataDir.
	SaveSession bool

	// CheckpointEveryN saves the snapshot after every N requests.
	CheckpointEveryN int

	// CheckpointInterval is the wall-clock fallback between saves.
	CheckpointInterval time.Duration

	// DataDir is the root directory holding per-session directories.
	// Defaults to the XDG data directory.
	DataDir string

	// Format selects the report output: "text", "json" or "markdown".
	Format string

	// OutputFile is the report destination. Empty means stdout.
	OutputFile string

	// ConfigFilePath is the path to the configuration file. If empty,
	// the tool searches for .papertracer.yml in the current directory
	// and then in the user's home directory.
	ConfigFilePath string

	// Verbose enables detailed log output using slog.LevelDebug.
	Verbose bool
}

// NewConfig creates a new Config with default values.
// All fields are set to safe, sensible defaults that work for most use cases.
// Users can override specific values after creation.
//
// Design decision: We use a constructor function instead of relying on
// zero values because many defaults are non-zero (e.g., depth, delays).
// This also serves as documentation of what the defaults are.
func NewConfig() *Config {
	return &Config{
		MaxDepth:           DefaultMaxDepth,
		MaxPapersPerLevel:  DefaultMaxPapersPerLevel,
		DelayMin:           DefaultDelayMin,
		DelayMax:           DefaultDelayMax,
		MaxRetries:         DefaultMaxRetries,
		BrowserFallback:    true,
		CheckpointEveryN:   DefaultCheckpointEveryN,
		CheckpointInterval: DefaultCheckpointInterval,
		DataDir:            XDGDataDir(),
		Format:             "text",
	}
}

// XDGDataDir returns the XDG data directory for PaperTracer.
// This follows the XDG Base Directory Specification.
// On Linux: ~/.local/share/papertracer
// On macOS: ~/Library/Application Support/papertracer
// On Windows: %LOCALAPPDATA%\papertracer
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for PaperTracer.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// LoadDotEnv loads a .env file from the current directory if one exists
// and then applies PAPERTRACER_* environment overrides to the config.
// A missing .env file is not an error.
//
// Supported variables:
//   - PAPERTRACER_PROXIES: comma-separated proxy URLs
//   - PAPERTRACER_DATA_DIR: session data root
func (c *Config) LoadDotEnv() error {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return err
		}
	}

	if proxies := os.Getenv("PAPERTRACER_PROXIES"); proxies != "" && len(c.Proxies) == 0 {
		for _, p := range strings.Split(proxies, ",") {
			if p = strings.TrimSpace(p); p != "" {
				c.Proxies = append(c.Proxies, p)
			}
		}
	}
	if dir := os.Getenv("PAPERTRACER_DATA_DIR"); dir != "" {
		c.DataDir = dir
	}
	return nil
}

// Validate checks if the configuration is valid.
// It returns a specific error describing what is invalid.
//
// Design decision: We validate at the config level rather than at each
// point of use to fail fast and provide clear error messages upfront.
// This is called once after CLI parsing, before any crawling begins.
//
// We chose to return the first error found rather than collecting all errors
// because fixing one error often makes others irrelevant.
func (c *Config) Validate() error {
	// Either a start URL or a session to resume must be given
	if c.StartURL == "" && c.ResumeSessionID == "" {
		return ErrNoStartURL
	}

	// Depth must be positive; zero depth would produce an empty tree
	if c.MaxDepth <= 0 {
		return ErrInvalidMaxDepth
	}

	// Fan-out must be positive
	if c.MaxPapersPerLevel <= 0 {
		return ErrInvalidMaxPapers
	}

	// Delay bounds must be non-negative and ordered
	if c.DelayMin < 0 || c.DelayMax < 0 || c.DelayMax < c.DelayMin {
		return ErrInvalidDelayRange
	}

	// Retry budget must be positive; zero would mean no fetching at all
	if c.MaxRetries <= 0 {
		return ErrInvalidMaxRetries
	}

	switch c.Format {
	case "text", "json", "markdown":
	default:
		return ErrInvalidFormat
	}

	return nil
}
