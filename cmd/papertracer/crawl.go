package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/shufanz/papertracer/internal/config"
	"github.com/shufanz/papertracer/internal/database"
	"github.com/shufanz/papertracer/internal/fetch"
	"github.com/shufanz/papertracer/internal/log"
	"github.com/shufanz/papertracer/internal/model"
	"github.com/shufanz/papertracer/internal/report"
	"github.com/shufanz/papertracer/internal/session"
	"github.com/shufanz/papertracer/internal/tree"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [paper-url]",
		Short: "Build a citation tree starting from a paper or cited-by URL",
		Long: `Crawl builds a citation tree by recursively following "cited by" links.

The start URL may be a paper's landing page (the paper is resolved
first) or a cited-by listing URL (a placeholder root is synthesized).
Citing papers are sorted by citation count, and depth and fan-out are
bounded.

When the source blocks requests, the crawler escalates: it rotates
headers and proxies with backoff, then renders the page in a headless
browser, and with --manual finally opens a visible browser and waits
for a human to solve the challenge. With --skip-blocks it records
blocked URLs and moves on instead.

Examples:
  # Crawl from a paper landing page
  papertracer crawl "https://scholar.example.org/citations?view_op=view_citation&citation_for_view=abc"

  # Crawl from a cited-by listing with a preset
  papertracer crawl --preset quick "https://scholar.example.org/scholar?cites=12345"

  # Unattended crawl through proxies, skipping hard blocks
  papertracer crawl --skip-blocks --proxy socks5://127.0.0.1:1080 <url>

  # Resume an interrupted session
  papertracer crawl --resume session_20260827_100000 <url>

  # Markdown report to a file
  papertracer crawl --format markdown -o report.md <url>`,
		Args: cobra.MaximumNArgs(1),
		RunE: runCrawlCmd,
	}

	// Crawl shape flags
	cmd.Flags().String("preset", "",
		"Named preset for crawl shape: demo, production or quick")
	cmd.Flags().IntP("depth", "d", config.DefaultMaxDepth,
		"Maximum citation tree depth")
	cmd.Flags().IntP("max-papers", "p", config.DefaultMaxPapersPerLevel,
		"Maximum citing papers kept per node")

	// Pacing and escalation flags
	cmd.Flags().Duration("delay-min", config.DefaultDelayMin,
		"Minimum base delay between requests")
	cmd.Flags().Duration("delay-max", config.DefaultDelayMax,
		"Maximum base delay between requests")
	cmd.Flags().IntP("max-retries", "r", config.DefaultMaxRetries,
		"Per-URL attempt budget across all tiers")
	cmd.Flags().Bool("skip-blocks", false,
		"Record blocked URLs and move on; never wait for a human")
	cmd.Flags().Bool("no-browser", false,
		"Disable the headless browser fallback tier")
	cmd.Flags().BoolP("manual", "m", false,
		"Open a visible browser and wait for a human on hard challenges")
	cmd.Flags().StringArray("proxy", nil,
		"Proxy URL for the rotation ring (repeatable)")

	// Session flags
	cmd.Flags().String("resume", "",
		"Resume a previous session by ID")
	cmd.Flags().BoolP("save-session", "s", true,
		"Persist the session snapshot, tree and crawl database")
	cmd.Flags().Int("checkpoint-every", config.DefaultCheckpointEveryN,
		"Save the session snapshot after this many requests")
	cmd.Flags().Duration("checkpoint-interval", config.DefaultCheckpointInterval,
		"Wall-clock fallback between snapshot saves")
	cmd.Flags().String("data-dir", "",
		"Session data root (default: XDG data directory)")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .papertracer.yml in current or home directory)")

	// Report flags
	cmd.Flags().StringP("format", "f", "text",
		"Report format: text, json or markdown")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")

	return cmd
}

// runCrawlCmd executes the crawl command.
func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildCrawlConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	// Set up structured logging with credential redaction
	logger := log.NewSecureLogger(os.Stderr, getVerboseFlag(cmd))
	slog.SetDefault(logger)

	// Handle interrupt signals for graceful shutdown; the checkpointer
	// takes a final snapshot on cancellation.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runCrawl(ctx, cfg, logger)
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// buildCrawlConfig creates a Config from cobra command flags.
//
// Precedence, lowest to highest: defaults, preset, config file,
// environment (.env), explicitly set flags.
func buildCrawlConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()

	preset, err := cmd.Flags().GetString("preset")
	if err != nil {
		return nil, err
	}
	if preset != "" {
		if err := cfg.ApplyPreset(preset); err != nil {
			return nil, err
		}
	}

	cfg.ConfigFilePath, err = cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	// If user explicitly specified a config file path, error if not found.
	// If no path specified, silently skip when no file is found.
	explicitConfigPath := cfg.ConfigFilePath != ""
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	if configPath != "" {
		cf, err := config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		cfg.ApplyFile(cf)
	} else if explicitConfigPath {
		return nil, fmt.Errorf("configuration file not found: %s", cfg.ConfigFilePath)
	}

	if err := cfg.LoadDotEnv(); err != nil {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	// Explicitly set flags override everything, default-valued ones do
	// not clobber preset or file values.
	if err := applyCrawlFlags(cmd, cfg); err != nil {
		return nil, err
	}

	if len(args) > 0 {
		cfg.StartURL = args[0]
	}
	return cfg, nil
}

// applyCrawlFlags copies explicitly changed flags into the config.
func applyCrawlFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	var err error

	if flags.Changed("depth") {
		if cfg.MaxDepth, err = flags.GetInt("depth"); err != nil {
			return err
		}
	}
	if flags.Changed("max-papers") {
		if cfg.MaxPapersPerLevel, err = flags.GetInt("max-papers"); err != nil {
			return err
		}
	}
	if flags.Changed("delay-min") {
		if cfg.DelayMin, err = flags.GetDuration("delay-min"); err != nil {
			return err
		}
	}
	if flags.Changed("delay-max") {
		if cfg.DelayMax, err = flags.GetDuration("delay-max"); err != nil {
			return err
		}
	}
	if flags.Changed("max-retries") {
		if cfg.MaxRetries, err = flags.GetInt("max-retries"); err != nil {
			return err
		}
	}
	if flags.Changed("skip-blocks") {
		if cfg.SkipBlocks, err = flags.GetBool("skip-blocks"); err != nil {
			return err
		}
	}
	if flags.Changed("no-browser") {
		noBrowser, err := flags.GetBool("no-browser")
		if err != nil {
			return err
		}
		cfg.BrowserFallback = !noBrowser
	}
	if flags.Changed("manual") {
		if cfg.ManualMode, err = flags.GetBool("manual"); err != nil {
			return err
		}
	}
	if flags.Changed("proxy") {
		if cfg.Proxies, err = flags.GetStringArray("proxy"); err != nil {
			return err
		}
	}
	if flags.Changed("resume") {
		if cfg.ResumeSessionID, err = flags.GetString("resume"); err != nil {
			return err
		}
	}
	if cfg.SaveSession, err = flags.GetBool("save-session"); err != nil {
		return err
	}
	if flags.Changed("checkpoint-every") {
		if cfg.CheckpointEveryN, err = flags.GetInt("checkpoint-every"); err != nil {
			return err
		}
	}
	if flags.Changed("checkpoint-interval") {
		if cfg.CheckpointInterval, err = flags.GetDuration("checkpoint-interval"); err != nil {
			return err
		}
	}
	if flags.Changed("data-dir") {
		if cfg.DataDir, err = flags.GetString("data-dir"); err != nil {
			return err
		}
	}
	if flags.Changed("format") {
		if cfg.Format, err = flags.GetString("format"); err != nil {
			return err
		}
	}
	if cfg.OutputFile, err = flags.GetString("output"); err != nil {
		return err
	}
	return nil
}

// runCrawl executes the crawl.
func runCrawl(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	store := session.NewStore(cfg.DataDir)
	sess := model.NewCrawlSession()

	if cfg.ResumeSessionID != "" {
		// An unreadable snapshot is non-fatal by contract: log and
		// start fresh rather than refusing to crawl.
		snap, err := store.Load(cfg.ResumeSessionID)
		if err != nil {
			logger.Warn("session snapshot unreadable, starting fresh",
				"session", cfg.ResumeSessionID, "error", err)
		} else if err := sess.Restore(snap); err != nil {
			logger.Warn("session snapshot malformed, starting fresh",
				"session", cfg.ResumeSessionID, "error", err)
		} else {
			logger.Info("session resumed",
				"session", sess.ID(),
				"visited", sess.VisitedCount(),
				"requests", sess.RequestCount(),
			)
		}
	}

	// The crawl database lives inside the session directory alongside
	// the snapshot and tree files.
	var db *database.CrawlDB
	if cfg.SaveSession {
		var err error
		db, err = database.Open(store.Dir(sess.ID()), database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open crawl database: %w", err)
		}
		defer db.Close()
		logger.Info("crawl database opened", "path", db.Path())
	}

	orch, err := buildOrchestrator(cfg, sess, db, logger)
	if err != nil {
		return err
	}

	builderOpts := []tree.Option{
		tree.WithMaxDepth(cfg.MaxDepth),
		tree.WithMaxPapersPerLevel(cfg.MaxPapersPerLevel),
		tree.WithLogger(logger),
	}

	spin := startSpinner()
	if spin != nil {
		builderOpts = append(builderOpts, tree.WithProgress(func(s tree.Stats) {
			spin.Suffix = fmt.Sprintf(" building citation tree... %d nodes", s.NodesBuilt)
		}))
	}

	builder := tree.NewBuilder(orch, builderOpts...)

	logger.Info("starting crawl",
		"url", cfg.StartURL,
		"session", sess.ID(),
		"max_depth", cfg.MaxDepth,
		"max_papers_per_level", cfg.MaxPapersPerLevel,
		"skip_blocks", cfg.SkipBlocks,
		"manual", cfg.ManualMode,
	)
	startTime := time.Now()

	root, stats, interrupted, err := runBuild(ctx, cfg, store, sess, builder, logger)
	if spin != nil {
		spin.Stop()
	}
	if err != nil {
		return err
	}

	elapsed := time.Since(startTime)
	fmt.Fprintf(os.Stderr, "Crawl finished in %s\n", elapsed.Round(time.Millisecond))

	// The crawl is done; persistence and reporting must not be cut
	// short by the cancelled crawl context.
	finishCtx := context.Background()

	if cfg.SaveSession {
		if err := store.Save(sess.Snapshot()); err != nil {
			return fmt.Errorf("failed to save session: %w", err)
		}
		if root != nil {
			if err := store.SaveTree(sess.ID(), root); err != nil {
				return fmt.Errorf("failed to save citation tree: %w", err)
			}
			if db != nil {
				if err := db.InsertTree(finishCtx, sess.ID(), root); err != nil {
					logger.Error("failed to store papers", "error", err)
				}
			}
		}
		logger.Info("session saved", "dir", store.Dir(sess.ID()))
	}

	return outputReport(finishCtx, cfg, sess, db, root, stats, interrupted)
}

// runBuild runs the tree build and, when session saving is on, a
// background checkpointer alongside it. Cancellation is reported as an
// interrupted crawl rather than an error so partial results still get
// saved and reported.
func runBuild(
	ctx context.Context,
	cfg *config.Config,
	store *session.Store,
	sess *model.CrawlSession,
	builder *tree.Builder,
	logger *slog.Logger,
) (root *model.CitationNode, stats tree.Stats, interrupted bool, err error) {
	g, gctx := errgroup.WithContext(ctx)

	var buildErr error
	if cfg.SaveSession {
		cp := session.NewCheckpointer(store, sess,
			session.WithEveryN(cfg.CheckpointEveryN),
			session.WithInterval(cfg.CheckpointInterval),
			session.WithCheckpointLogger(logger),
		)
		cpCtx, cpCancel := context.WithCancel(gctx)
		g.Go(func() error { return cp.Run(cpCtx) })
		g.Go(func() error {
			defer cpCancel()
			root, stats, buildErr = builder.Build(gctx, cfg.StartURL)
			return nil
		})
	} else {
		g.Go(func() error {
			root, stats, buildErr = builder.Build(gctx, cfg.StartURL)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, stats, false, err
	}

	switch {
	case buildErr == nil:
		return root, stats, false, nil
	case errors.Is(buildErr, context.Canceled) || errors.Is(buildErr, context.DeadlineExceeded):
		logger.Warn("crawl interrupted", "error", buildErr)
		return root, stats, true, nil
	case errors.Is(buildErr, fetch.ErrRootNotFound):
		// No tree, but counters and the attempt log are still worth a
		// report.
		logger.Error("root resolution failed", "url", cfg.StartURL, "error", buildErr)
		return nil, stats, false, nil
	default:
		return nil, stats, false, buildErr
	}
}

// buildOrchestrator wires the fetch orchestrator from the config.
func buildOrchestrator(cfg *config.Config, sess *model.CrawlSession, db *database.CrawlDB, logger *slog.Logger) (*fetch.Orchestrator, error) {
	opts := []fetch.Option{
		fetch.WithLogger(logger),
		fetch.WithMaxRetries(cfg.MaxRetries),
		fetch.WithDelayPolicy(fetch.NewDelayPolicy(cfg.DelayMin, cfg.DelayMax)),
		fetch.WithBrowserFallback(cfg.BrowserFallback),
		fetch.WithSkipMode(cfg.SkipBlocks),
		fetch.WithManualMode(cfg.ManualMode),
	}

	if len(cfg.Proxies) > 0 {
		ring, err := fetch.NewProxyRing(cfg.Proxies)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy configuration: %w", err)
		}
		opts = append(opts, fetch.WithProxies(ring))
	}

	if cfg.BrowserFallback {
		opts = append(opts, fetch.WithRenderer(fetch.NewChromeRenderer()))
	}
	if cfg.ManualMode && !cfg.SkipBlocks {
		opts = append(opts, fetch.WithManualGate(fetch.NewPromptGate(os.Stdin, os.Stderr)))
	}

	if db != nil {
		sessionID := sess.ID()
		opts = append(opts, fetch.WithAttemptHook(func(a fetch.Attempt) {
			record := &database.AttemptRecord{
				SessionID:      sessionID,
				URL:            a.URL,
				Tier:           a.Tier,
				StatusCode:     a.Status,
				Classification: classificationLabel(a),
				Error:          a.Err,
			}
			if _, err := db.InsertAttempt(context.Background(), record); err != nil {
				logger.Debug("failed to record attempt", "url", a.URL, "error", err)
			}
		}))
	}

	return fetch.New(sess, opts...), nil
}

// classificationLabel maps an attempt to its stored classification.
// Transport failures have no classification and are stored empty.
func classificationLabel(a fetch.Attempt) string {
	if a.Err != "" {
		return ""
	}
	return a.Classification.String()
}

// startSpinner shows build progress on interactive terminals. Returns
// nil when stderr is not a terminal.
func startSpinner() *spinner.Spinner {
	info, err := os.Stderr.Stat()
	if err != nil || info.Mode()&os.ModeCharDevice == 0 {
		return nil
	}

	spin := spinner.New(spinner.CharSets[14], 100*time.Millisecond,
		spinner.WithWriter(os.Stderr),
		spinner.WithSuffix(" building citation tree..."),
	)
	spin.Start()
	return spin
}

// outputReport assembles the crawl report and writes it in the
// requested format.
func outputReport(
	ctx context.Context,
	cfg *config.Config,
	sess *model.CrawlSession,
	db *database.CrawlDB,
	root *model.CitationNode,
	stats tree.Stats,
	interrupted bool,
) error {
	crawlReport := &report.CrawlReport{
		SessionID:    sess.ID(),
		StartURL:     cfg.StartURL,
		GeneratedAt:  time.Now(),
		Interrupted:  interrupted,
		RequestCount: sess.RequestCount(),
		VisitedURLs:  sess.VisitedCount(),
		Stats:        stats,
		Tree:         root,
	}

	if db != nil {
		if counts, err := db.ClassificationCounts(ctx, sess.ID()); err == nil && len(counts) > 0 {
			crawlReport.Classifications = counts
		}
		if top, err := db.TopPapers(ctx, sess.ID(), 10); err == nil {
			crawlReport.TopPapers = top
		}
	}

	output, closeOutput, err := openReportOutput(cfg.OutputFile)
	if err != nil {
		return err
	}
	defer closeOutput()

	var writer report.Writer
	switch cfg.Format {
	case "json":
		writer = report.NewJSONWriter(output, report.WithPrettyPrint(), report.WithVersion(getVersion()))
	case "markdown":
		writer = report.NewMarkdownWriter(output)
	default:
		writer = report.NewTextWriter(output)
	}

	_, err = writer.Write(crawlReport)
	return err
}

// openReportOutput opens the report destination, defaulting to stdout.
func openReportOutput(path string) (*os.File, func(), error) {
	if path == "" {
		return os.Stdout, func() {}, nil
	}

	// Create directories if they don't exist
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, func() { f.Close() }, nil
}
