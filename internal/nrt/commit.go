package nrt

import (
	"context"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/index"
)

// CommitLoop commits the writer every interval when its content changed
// since the last commit. Searches never depend on commits; they only bound
// how much is lost on a crash.
type CommitLoop struct {
	writer   *index.Writer
	interval time.Duration
	commits  func() error
	logger   *slog.Logger
	done     chan struct{}
}

func NewCommitLoop(w *index.Writer, interval time.Duration) *CommitLoop {
	if interval <= 0 {
		interval = time.Minute
	}
	return &CommitLoop{
		writer:   w,
		interval: interval,
		commits:  w.Commit,
		logger:   slog.Default().With("component", "commit-loop"),
		done:     make(chan struct{}),
	}
}

// Start runs the loop until ctx is cancelled, committing once more on the
// way out. Close waits for it.
func (c *CommitLoop) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	go func() {
		defer close(c.done)
		defer ticker.Stop()
		committed := c.writer.Version()
		for {
			select {
			case <-ctx.Done():
				c.logger.Info("commit loop stopping, performing final commit")
				c.commit(&committed)
				return
			case <-ticker.C:
				c.commit(&committed)
			}
		}
	}()
	c.logger.Info("commit loop started", "interval", c.interval)
}

func (c *CommitLoop) commit(committed *int64) {
	v := c.writer.Version()
	if v == *committed {
		return
	}
	if err := c.commits(); err != nil {
		c.logger.Error("periodic commit failed", "error", err)
		return
	}
	*committed = v
	c.logger.Debug("index committed", "version", v, "docs", c.writer.NumDocs())
}

func (c *CommitLoop) Close() {
	<-c.done
}
