package cmdlog

import (
	"time"

	"postseq/internal/logging"
	"postseq/internal/metrics"
)

// Run executes f as the named CLI command, counting runs and failures and logging the outcome.
func Run(cmd string, f func() error) error {
	metrics.IncCommandRun(cmd)
	start := time.Now()
	err := f()
	if err != nil {
		metrics.IncCommandError(cmd)
		logging.Error(cmd+"_error", map[string]any{"error": err, "elapsed": time.Since(start).String()})
	} else {
		logging.Info(cmd+"_ok", map[string]any{"elapsed": time.Since(start).String()})
	}
	return err
}
