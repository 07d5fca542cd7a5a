package jobs

import (
	"context"
	"time"

	"postseq/internal/ingest"
	"postseq/internal/logging"
	"postseq/internal/store/sqlitevec"
)

// RunIngestOnce copies the posts tree under root into db.
func RunIngestOnce(ctx context.Context, db *sqlitevec.DB, root string) (int, int, error) {
	start := time.Now()
	users, stored, err := ingest.IngestDir(ctx, db, root)
	if err != nil {
		logging.Error("ingest_once_error", map[string]any{"root": root, "error": err})
		return users, stored, err
	}
	logging.Info("ingest_once", map[string]any{"root": root, "users": users, "stored": stored, "elapsed_ms": time.Since(start).Milliseconds()})
	return users, stored, nil
}

// RunIngestLoop re-ingests root on a ticker until ctx is cancelled. Ingest is idempotent,
// so only new posts are stored on each pass.
func RunIngestLoop(ctx context.Context, db *sqlitevec.DB, root string, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	_, _, _ = RunIngestOnce(ctx, db, root)
	for {
		select {
		case <-ctx.Done():
			logging.Info("ingest_loop_stop", nil)
			return ctx.Err()
		case <-t.C:
			_, _, _ = RunIngestOnce(ctx, db, root)
		}
	}
}
