// Package pipeline turns per-user post histories into padded batches and runs the classifier.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"postseq/internal/embed"
	"postseq/internal/errs"
	"postseq/internal/logging"
	"postseq/internal/metrics"
	"postseq/internal/model"
	"postseq/internal/nn"
)

// PostStore yields a user's posts in unspecified order.
type PostStore interface {
	LoadPosts(ctx context.Context, userID string) ([]model.Post, error)
}

// UserSequence is one user's prepared input: the time-ordered sequence matrix and metric vector.
type UserSequence struct {
	UserID  string
	Seq     *mat.Dense
	Metrics []float64
	Posts   int // posts loaded
	Kept    int // rows after compression
}

// BatchResult is the forward pass over one batch.
type BatchResult struct {
	UserIDs     []string
	Mask        [][]bool
	Logits      *mat.Dense
	Predictions []model.Prediction
}

type Pipeline struct {
	store       PostStore
	embedder    embed.Embedder
	cache       *nn.MetricCache
	compressor  nn.Compressor
	model       *nn.Model
	maxLen      int
	parallelism int
}

// Options bound the sequence length and embedding fan-out.
type Options struct {
	MaxSeqLen   int
	Parallelism int
}

func New(store PostStore, e embed.Embedder, cache *nn.MetricCache, c nn.Compressor, m *nn.Model, opts Options) *Pipeline {
	if opts.Parallelism <= 0 {
		opts.Parallelism = 1
	}
	return &Pipeline{
		store:       store,
		embedder:    e,
		cache:       cache,
		compressor:  c,
		model:       m,
		maxLen:      opts.MaxSeqLen,
		parallelism: opts.Parallelism,
	}
}

func (p *Pipeline) Model() *nn.Model { return p.model }

// Prepare loads, embeds, featurizes, compresses and orders one user's posts.
func (p *Pipeline) Prepare(ctx context.Context, userID string) (UserSequence, error) {
	posts, err := p.store.LoadPosts(ctx, userID)
	if err != nil {
		return UserSequence{}, p.fail(userID, classify(errs.StageLoad, userID, err))
	}

	vectors, err := p.embedAll(ctx, userID, posts)
	if err != nil {
		return UserSequence{}, p.fail(userID, err)
	}

	set := model.UserPostSet{UserID: userID, Posts: posts}
	mv := p.cache.Get(ctx, userID, set.Texts())
	if err := checkMetrics(mv); err != nil {
		return UserSequence{}, p.fail(userID, errs.Data(errs.StageMetrics, userID, err))
	}

	items := make([]model.EmbeddedPost, len(posts))
	for i := range posts {
		items[i] = model.EmbeddedPost{Post: posts[i], Vector: vectors[i]}
	}
	items, err = p.compressor.Compress(items)
	if err != nil {
		return UserSequence{}, p.fail(userID, classify(errs.StageCompress, userID, err))
	}

	seq, err := nn.BuildSequenceFromEmbedded(items, p.embedder.Dim())
	if err != nil {
		return UserSequence{}, p.fail(userID, classify(errs.StageSort, userID, err))
	}
	r, _ := seq.Dims()
	logging.Debug("user_prepared", map[string]any{"user_id": userID, "posts": len(posts), "kept": r})
	return UserSequence{UserID: userID, Seq: seq, Metrics: mv, Posts: len(posts), Kept: r}, nil
}

// checkMetrics rejects vectors a damaged metric store could hand back.
func checkMetrics(mv []float64) error {
	if len(mv) != nn.MetricDim {
		return fmt.Errorf("metric vector has %d values, want %d", len(mv), nn.MetricDim)
	}
	for i, v := range mv {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("metric %d is not finite", i)
		}
	}
	return nil
}

// embedAll embeds posts concurrently into position-aligned slots.
func (p *Pipeline) embedAll(ctx context.Context, userID string, posts []model.Post) ([][]float32, error) {
	out := make([][]float32, len(posts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.parallelism)
	for i := range posts {
		g.Go(func() error {
			v, err := p.embedder.Encode(gctx, posts[i].Text)
			if err != nil {
				return classify(errs.StageEmbed, userID, err)
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Forward pads the prepared sequences into one batch and returns logits and predictions.
func (p *Pipeline) Forward(seqs []UserSequence) (BatchResult, error) {
	start := time.Now()
	metrics.Batches.Inc()
	defer metrics.ObserveBatchDuration(start)

	ids := make([]string, len(seqs))
	mats := make([]*mat.Dense, len(seqs))
	rows := make([][]float64, len(seqs))
	for i, s := range seqs {
		ids[i], mats[i], rows[i] = s.UserID, s.Seq, s.Metrics
	}
	batch, err := nn.Pad(mats, p.maxLen)
	if err != nil {
		return BatchResult{}, p.failBatch(ids, err)
	}
	logits, err := p.model.Forward(batch, rows)
	if err != nil {
		return BatchResult{}, p.failBatch(ids, err)
	}
	scored := p.model.Predict(logits)
	preds := make([]model.Prediction, len(scored))
	for i, s := range scored {
		preds[i] = model.Prediction{UserID: ids[i], Label: s.Label, Logits: s.Logits, Probabilities: s.Probabilities}
	}
	return BatchResult{UserIDs: ids, Mask: batch.Mask, Logits: logits, Predictions: preds}, nil
}

// classify keeps data and resource kinds from lower layers and treats anything else as a resource failure.
func classify(stage, userID string, err error) error {
	if pe, ok := errs.As(err); ok {
		cp := *pe
		if cp.Stage == "" {
			cp.Stage = stage
		}
		if cp.UserID == "" {
			cp.UserID = userID
		}
		return &cp
	}
	if errors.Is(err, model.ErrMalformed) {
		return errs.Data(stage, userID, err)
	}
	return errs.Resource(stage, userID, err)
}

func (p *Pipeline) fail(userID string, err error) error {
	stage := ""
	var shapes []string
	if pe, ok := errs.As(err); ok {
		stage, shapes = pe.Stage, pe.Shapes
	}
	metrics.IncUserError(stage)
	logging.Error("user_failed", map[string]any{"user_id": userID, "stage": stage, "shapes": shapes, "error": err})
	return err
}

func (p *Pipeline) failBatch(ids []string, err error) error {
	metrics.BatchErrors.Inc()
	fields := map[string]any{"user_ids": ids, "error": err}
	if pe, ok := errs.As(err); ok {
		fields["stage"] = pe.Stage
		fields["shapes"] = pe.Shapes
	}
	logging.Error("batch_failed", fields)
	return err
}
