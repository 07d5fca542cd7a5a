package pipeline

import (
	"postseq/internal/config"
	"postseq/internal/embed"
	"postseq/internal/nn"
	"postseq/internal/sentiment"
)

// HashModel selects the offline hashing embedder instead of the HTTP service.
const HashModel = "hash"

// NewEmbedder builds the configured embedder with its cache layers. The returned close func
// releases the on-disk cache and is never nil.
func NewEmbedder(cfg config.EmbeddingConfig) (embed.Embedder, func() error, error) {
	var e embed.Embedder
	if cfg.Model == HashModel || cfg.BaseURL == "" {
		e = embed.NewHashEmbedder(cfg.Dim)
	} else {
		e = embed.NewHTTPEmbedder(embed.HTTPOptions{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Dim:     cfg.Dim,
			RPS:     cfg.RPS,
			Burst:   cfg.Burst,
			Timeout: cfg.Timeout,
		})
	}
	closer := func() error { return nil }
	if cfg.BoltPath != "" {
		b, err := embed.WrapBolt(e, cfg.BoltPath)
		if err != nil {
			return nil, closer, err
		}
		e, closer = b, b.Close
	}
	if cfg.CacheSize > 0 {
		e = embed.WrapLRU(e, cfg.CacheSize, cfg.CacheTTL)
	}
	return e, closer, nil
}

func NewCompressor(p config.PipelineConfig) nn.Compressor {
	return nn.Compressor{
		Threshold: p.CompressThreshold,
		KMeans: nn.KMeans{
			K:       p.NumClusters,
			NInit:   p.KMeansInit,
			MaxIter: p.KMeansMaxIter,
			Tol:     1e-4,
			Seed:    p.KMeansSeed,
		},
	}
}

// NewMetricCache wires the featurizer to scorer and, when store is non-nil, persistent storage.
func NewMetricCache(p config.PipelineConfig, scorer sentiment.Scorer, store nn.MetricStore) *nn.MetricCache {
	c := nn.NewMetricCache(nn.Featurizer{Scorer: scorer, MinPosts: p.MetricMinPosts, Window: p.MetricWindow})
	if store != nil {
		c.WithStore(store)
	}
	return c
}

// NewModel initializes fresh seeded weights sized by cfg.
func NewModel(cfg config.Config) (*nn.Model, error) {
	return nn.New(nn.Options{
		Dim:              cfg.Model.Dim,
		MetricDim:        cfg.Model.MetricDim,
		Hidden:           cfg.Model.Hidden,
		Labels:           cfg.Model.Labels,
		Dropout:          cfg.Model.Dropout,
		AttentionDropout: cfg.Model.AttentionDropout,
		MaskPadding:      cfg.Pipeline.MaskPadding,
		Seed:             cfg.Model.Seed,
	})
}

// FromConfig assembles a pipeline over store.
func FromConfig(cfg config.Config, store PostStore, e embed.Embedder, cache *nn.MetricCache, m *nn.Model) *Pipeline {
	return New(store, e, cache, NewCompressor(cfg.Pipeline), m, Options{
		MaxSeqLen:   cfg.Pipeline.MaxSeqLen,
		Parallelism: cfg.Embedding.Parallelism,
	})
}
