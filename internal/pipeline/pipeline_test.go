package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"postseq/internal/config"
	"postseq/internal/embed"
	"postseq/internal/errs"
	"postseq/internal/logging"
	"postseq/internal/model"
	"postseq/internal/nn"
	"postseq/internal/sentiment"
)

const testDim = 8

type mapStore map[string][]model.Post

func (m mapStore) LoadPosts(_ context.Context, id string) ([]model.Post, error) {
	if id == "broken" {
		return nil, errors.New("disk on fire")
	}
	return m[id], nil
}

type failingEmbedder struct{ embed.Embedder }

func (failingEmbedder) Encode(context.Context, string) ([]float32, error) {
	return nil, errs.Resource(errs.StageEmbed, "", errors.New("service down"))
}

type flatScorer struct{ calls atomic.Int64 }

func (f *flatScorer) Score(string) sentiment.Polarity {
	f.calls.Add(1)
	return sentiment.Polarity{Pos: 0.1, Neg: 0.2}
}

var base = time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)

func postsN(n int, reverse bool) []model.Post {
	out := make([]model.Post, n)
	for i := range out {
		ts := base.Add(time.Duration(i) * time.Minute)
		if reverse {
			ts = base.Add(time.Duration(n-i) * time.Minute)
		}
		out[i] = model.Post{Timestamp: ts, Text: fmt.Sprintf("post %d", i)}
	}
	return out
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Embedding.Dim = testDim
	cfg.Embedding.Model = HashModel
	cfg.Embedding.CacheSize = 0
	cfg.Model.Dim = testDim
	cfg.Model.Hidden = testDim + cfg.Model.MetricDim
	cfg.Pipeline.KMeansInit = 2
	cfg.Pipeline.KMeansMaxIter = 50
	return cfg
}

func newTestPipeline(t *testing.T, store PostStore, e embed.Embedder) (*Pipeline, *flatScorer) {
	t.Helper()
	cfg := testConfig()
	if e == nil {
		var err error
		e, _, err = NewEmbedder(cfg.Embedding)
		require.NoError(t, err)
	}
	m, err := NewModel(cfg)
	require.NoError(t, err)
	sc := &flatScorer{}
	return FromConfig(cfg, store, e, NewMetricCache(cfg.Pipeline, sc, nil), m), sc
}

func TestPrepareAndForward(t *testing.T) {
	store := mapStore{
		"empty": nil,
		"short": postsN(10, true),
		"long":  postsN(250, false),
		"busy":  postsN(120, false),
	}
	p, sc := newTestPipeline(t, store, nil)
	ctx := context.Background()

	var seqs []UserSequence
	for _, id := range []string{"empty", "short", "long", "busy"} {
		s, err := p.Prepare(ctx, id)
		require.NoError(t, err, id)
		seqs = append(seqs, s)
	}
	require.Equal(t, 1, seqs[0].Kept)
	require.Equal(t, 10, seqs[1].Kept)
	require.LessOrEqual(t, seqs[2].Kept, 200)
	require.Equal(t, 120, seqs[3].Kept)
	require.Equal(t, make([]float64, nn.MetricDim), seqs[1].Metrics)
	require.NotEqual(t, make([]float64, nn.MetricDim), seqs[2].Metrics)
	require.Equal(t, int64(250+120), sc.calls.Load())

	res, err := p.Forward(seqs)
	require.NoError(t, err)
	r, c := res.Logits.Dims()
	require.Equal(t, 4, r)
	require.Equal(t, 2, c)
	require.Len(t, res.Predictions, 4)
	require.Equal(t, "long", res.Predictions[2].UserID)
	require.True(t, res.Mask[0][0])
	require.False(t, res.Mask[0][1])

	// metrics are not recomputed on a second pass
	_, err = p.Prepare(ctx, "long")
	require.NoError(t, err)
	require.Equal(t, int64(250+120), sc.calls.Load())
}

func TestPrepareSortsByTimestamp(t *testing.T) {
	posts := postsN(5, true)
	p, _ := newTestPipeline(t, mapStore{"u": posts}, nil)
	s, err := p.Prepare(context.Background(), "u")
	require.NoError(t, err)

	e := embed.NewHashEmbedder(testDim)
	// last post has the earliest timestamp
	want, err := e.Encode(context.Background(), posts[4].Text)
	require.NoError(t, err)
	for j, v := range want {
		require.InDelta(t, float64(v), s.Seq.At(0, j), 1e-7)
	}
}

func TestPrepareErrorsAreLoggedAndTyped(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	prev := logging.L()
	logging.SetLogger(zap.New(core))
	defer logging.SetLogger(prev)

	p, _ := newTestPipeline(t, mapStore{}, nil)
	_, err := p.Prepare(context.Background(), "broken")
	require.True(t, errs.IsResource(err))
	pe, ok := errs.As(err)
	require.True(t, ok)
	require.Equal(t, "broken", pe.UserID)
	require.Equal(t, errs.StageLoad, pe.Stage)

	p, _ = newTestPipeline(t, mapStore{"u": postsN(3, false)}, failingEmbedder{embed.NewHashEmbedder(testDim)})
	_, err = p.Prepare(context.Background(), "u")
	require.True(t, errs.IsResource(err))
	pe, _ = errs.As(err)
	require.Equal(t, errs.StageEmbed, pe.Stage)
	require.Equal(t, "u", pe.UserID)

	bad := []model.Post{{Text: "no time"}}
	p, _ = newTestPipeline(t, mapStore{"d": bad}, nil)
	_, err = p.Prepare(context.Background(), "d")
	require.True(t, errs.IsData(err))

	entries := logs.FilterMessage("user_failed").All()
	require.Len(t, entries, 3)
	require.Equal(t, "broken", entries[0].ContextMap()["user_id"])
	require.Equal(t, errs.StageLoad, entries[0].ContextMap()["stage"])
	require.Equal(t, errs.StageEmbed, entries[1].ContextMap()["stage"])
	require.Equal(t, errs.StageSort, entries[2].ContextMap()["stage"])
}

func TestForwardShapeErrorAbortsBatch(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	prev := logging.L()
	logging.SetLogger(zap.New(core))
	defer logging.SetLogger(prev)

	p, _ := newTestPipeline(t, mapStore{"a": postsN(2, false)}, nil)
	good, err := p.Prepare(context.Background(), "a")
	require.NoError(t, err)
	odd := good
	odd.UserID = "odd"
	odd.Seq, err = nn.FromRows([][]float32{{1, 2, 3}}, 3)
	require.NoError(t, err)

	_, err = p.Forward([]UserSequence{good, odd})
	require.True(t, errs.IsShape(err))
	entries := logs.FilterMessage("batch_failed").All()
	require.Len(t, entries, 1)
	require.Equal(t, errs.StagePad, entries[0].ContextMap()["stage"])
}

type fixedMetricStore struct{ vec []float64 }

func (s fixedMetricStore) PutMetricVector(context.Context, string, []float64) error { return nil }

func (s fixedMetricStore) LoadMetricVector(context.Context, string) ([]float64, bool, error) {
	return s.vec, true, nil
}

func TestPrepareRejectsNonFiniteMetrics(t *testing.T) {
	cfg := testConfig()
	e, _, err := NewEmbedder(cfg.Embedding)
	require.NoError(t, err)
	m, err := NewModel(cfg)
	require.NoError(t, err)
	vec := make([]float64, nn.MetricDim)
	vec[3] = math.NaN()
	cache := NewMetricCache(cfg.Pipeline, &flatScorer{}, fixedMetricStore{vec: vec})
	p := FromConfig(cfg, mapStore{"u": postsN(5, false)}, e, cache, m)

	_, err = p.Prepare(context.Background(), "u")
	require.True(t, errs.IsData(err))
	pe, ok := errs.As(err)
	require.True(t, ok)
	require.Equal(t, errs.StageMetrics, pe.Stage)
	require.Equal(t, "u", pe.UserID)
}
