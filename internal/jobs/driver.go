package jobs

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"postseq/internal/config"
	"postseq/internal/errs"
	"postseq/internal/logging"
	"postseq/internal/model"
	"postseq/internal/pipeline"
)

// Runner prepares users and runs batches. *pipeline.Pipeline satisfies it.
type Runner interface {
	Prepare(ctx context.Context, userID string) (pipeline.UserSequence, error)
	Forward(seqs []pipeline.UserSequence) (pipeline.BatchResult, error)
}

// PredictionSink stores predictions under a run id. *sqlitevec.DB satisfies it.
type PredictionSink interface {
	PutPrediction(ctx context.Context, runID string, p model.Prediction, meta any) error
}

// Summary reports one dataset run. Gold is index aligned with Predictions.
type Summary struct {
	RunID         string
	Batches       int
	FailedBatches int
	Users         int
	SkippedUsers  int
	Predictions   []model.Prediction
	Gold          []string
}

// RunDataset classifies rows in batches of batchSize. A user failure is handled per policy:
// skip_user drops the user, abort_batch drops the batch, abort_run returns the error.
// Batch-level failures drop the batch unless the policy is abort_run. sink may be nil.
func RunDataset(ctx context.Context, r Runner, rows []model.DatasetRow, batchSize int, policy string, sink PredictionSink) (Summary, error) {
	if batchSize <= 0 {
		return Summary{}, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	sum := Summary{RunID: uuid.NewString()}
	for start := 0; start < len(rows); start += batchSize {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		chunk := rows[start:min(start+batchSize, len(rows))]
		batchNo := start / batchSize
		sum.Batches++

		seqs, gold, err := prepareBatch(ctx, r, chunk, policy, &sum)
		if err != nil {
			if policy == config.PolicyAbortRun {
				return sum, err
			}
			sum.FailedBatches++
			logging.Warn("batch_aborted", map[string]any{"run_id": sum.RunID, "batch": batchNo, "error": err})
			continue
		}
		if len(seqs) == 0 {
			continue
		}
		res, err := r.Forward(seqs)
		if err != nil {
			if policy == config.PolicyAbortRun {
				return sum, err
			}
			sum.FailedBatches++
			logging.Warn("batch_aborted", map[string]any{"run_id": sum.RunID, "batch": batchNo, "error": err})
			continue
		}
		for i, p := range res.Predictions {
			if sink != nil {
				meta := map[string]any{"gold": gold[i], "batch": batchNo}
				if err := sink.PutPrediction(ctx, sum.RunID, p, meta); err != nil {
					return sum, fmt.Errorf("store prediction for %s: %w", p.UserID, err)
				}
			}
			sum.Predictions = append(sum.Predictions, p)
			sum.Gold = append(sum.Gold, gold[i])
		}
		sum.Users += len(res.Predictions)
		logging.Info("batch_done", map[string]any{"run_id": sum.RunID, "batch": batchNo, "users": len(res.Predictions)})
	}
	return sum, nil
}

func prepareBatch(ctx context.Context, r Runner, rows []model.DatasetRow, policy string, sum *Summary) ([]pipeline.UserSequence, []string, error) {
	seqs := make([]pipeline.UserSequence, 0, len(rows))
	gold := make([]string, 0, len(rows))
	for _, row := range rows {
		s, err := r.Prepare(ctx, row.UserID)
		if err != nil {
			err = errs.WithUser(err, row.UserID)
			if policy == config.PolicySkipUser {
				sum.SkippedUsers++
				logging.Warn("user_skipped", map[string]any{"run_id": sum.RunID, "user_id": row.UserID, "error": err})
				continue
			}
			return nil, nil, err
		}
		seqs = append(seqs, s)
		gold = append(gold, row.Label)
	}
	return seqs, gold, nil
}
