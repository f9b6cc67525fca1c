package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/shufanz/papertracer/internal/model"
)

// Checkpointer saves session snapshots in the background while a crawl
// runs. It saves when either enough new requests have been issued or
// enough time has passed, and takes a final snapshot on shutdown so
// the last stretch of work is never lost.
type Checkpointer struct {
	store   *Store
	session *model.CrawlSession
	logger  *slog.Logger

	// everyN saves after this many new requests; 0 disables the
	// request trigger.
	everyN int

	// interval saves after this much time regardless of traffic; 0
	// disables the time trigger.
	interval time.Duration

	// poll is how often the triggers are evaluated.
	poll time.Duration
}

// CheckpointOption configures a Checkpointer.
type CheckpointOption func(*Checkpointer)

// WithEveryN sets the request-count trigger.
func WithEveryN(n int) CheckpointOption {
	return func(c *Checkpointer) {
		c.everyN = n
	}
}

// WithInterval sets the time trigger.
func WithInterval(d time.Duration) CheckpointOption {
	return func(c *Checkpointer) {
		c.interval = d
	}
}

// WithPoll sets the trigger evaluation period; tests shorten it.
func WithPoll(d time.Duration) CheckpointOption {
	return func(c *Checkpointer) {
		c.poll = d
	}
}

// WithCheckpointLogger sets the structured logger.
func WithCheckpointLogger(l *slog.Logger) CheckpointOption {
	return func(c *Checkpointer) {
		c.logger = l
	}
}

// NewCheckpointer creates a checkpointer saving sess through store.
func NewCheckpointer(store *Store, sess *model.CrawlSession, opts ...CheckpointOption) *Checkpointer {
	c := &Checkpointer{
		store:    store,
		session:  sess,
		logger:   slog.Default(),
		everyN:   10,
		interval: time.Minute,
		poll:     time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run evaluates the triggers until the context is cancelled, then
// takes one final snapshot. It always returns nil on cancellation so
// an errgroup treats shutdown as clean; only the final save's failure
// is reported.
func (c *Checkpointer) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()

	lastCount := c.session.RequestCount()
	lastSave := time.Now()

	for {
		select {
		case <-ctx.Done():
			if err := c.save(); err != nil {
				return err
			}
			return nil
		case <-ticker.C:
			count := c.session.RequestCount()
			due := (c.everyN > 0 && count-lastCount >= c.everyN) ||
				(c.interval > 0 && time.Since(lastSave) >= c.interval)
			if !due {
				continue
			}
			if err := c.save(); err != nil {
				c.logger.Error("checkpoint failed", "error", err)
				continue
			}
			lastCount = count
			lastSave = time.Now()
		}
	}
}

func (c *Checkpointer) save() error {
	snap := c.session.Snapshot()
	if err := c.store.Save(snap); err != nil {
		return err
	}
	c.logger.Debug("session checkpointed",
		"session", snap.SessionID,
		"requests", snap.RequestCount,
		"visited", len(snap.VisitedURLs),
	)
	return nil
}
