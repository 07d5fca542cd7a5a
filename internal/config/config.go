package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// User error policies applied by the batch driver.
const (
	PolicySkipUser   = "skip_user"
	PolicyAbortBatch = "abort_batch"
	PolicyAbortRun   = "abort_run"
)

// Config is the application's configuration model.
// It covers storage, the embedding service, pipeline bounds, model shape and observability.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Model     ModelConfig     `yaml:"model"`
	Output    OutputConfig    `yaml:"output"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Log       LogConfig       `yaml:"log"`
}

type StorageConfig struct {
	DBPath string `yaml:"dbPath"`
	// Root of the per-user post JSON tree; numeric subdirectories are user directories.
	PostsDir string `yaml:"postsDir"`
}

type EmbeddingConfig struct {
	// Text-embeddings service base URL. If empty, read from env POSTSEQ_EMBED_URL
	BaseURL   string        `yaml:"baseURL"`
	Model     string        `yaml:"model"`
	Dim       int           `yaml:"dim"`
	RPS       float64       `yaml:"rps"`
	Burst     int           `yaml:"burst"`
	Timeout   time.Duration `yaml:"timeout"`
	CacheSize int           `yaml:"cacheSize"`
	CacheTTL  time.Duration `yaml:"cacheTTL"`
	// Optional on-disk cache; empty disables it.
	BoltPath    string `yaml:"boltPath"`
	Parallelism int    `yaml:"parallelism"`
}

type PipelineConfig struct {
	MaxSeqLen         int    `yaml:"maxSeqLen"`
	BatchSize         int    `yaml:"batchSize"`
	CompressThreshold int    `yaml:"compressThreshold"`
	NumClusters       int    `yaml:"numClusters"`
	KMeansSeed        uint64 `yaml:"kmeansSeed"`
	KMeansInit        int    `yaml:"kmeansInit"`
	KMeansMaxIter     int    `yaml:"kmeansMaxIter"`
	MetricMinPosts    int    `yaml:"metricMinPosts"`
	MetricWindow      int    `yaml:"metricWindow"`
	// MaskPadding excludes padded keys from attention softmax.
	MaskPadding bool   `yaml:"maskPadding"`
	OnUserError string `yaml:"onUserError"`
	// PersistMetrics keeps metric vectors in sqlite across runs, keyed by user and text digest.
	PersistMetrics bool `yaml:"persistMetrics"`
}

type ModelConfig struct {
	Dim              int       `yaml:"dim"`
	MetricDim        int       `yaml:"metricDim"`
	Hidden           int       `yaml:"hidden"`
	Labels           []string  `yaml:"labels"`
	Dropout          []float64 `yaml:"dropout"`
	AttentionDropout float64   `yaml:"attentionDropout"`
	Seed             uint64    `yaml:"seed"`
}

type OutputConfig struct {
	Dir    string `yaml:"dir"`
	Prefix string `yaml:"prefix"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

// Default returns the reference configuration.
func Default() Config {
	return Config{
		Storage: StorageConfig{DBPath: "./postseq.db", PostsDir: "./data/posts"},
		Embedding: EmbeddingConfig{
			BaseURL:     "http://localhost:8080",
			Model:       "bert-base-uncased",
			Dim:         768,
			RPS:         20,
			Burst:       40,
			Timeout:     30 * time.Second,
			CacheSize:   50000,
			CacheTTL:    time.Hour,
			Parallelism: 8,
		},
		Pipeline: PipelineConfig{
			MaxSeqLen:         100,
			BatchSize:         100,
			CompressThreshold: 200,
			NumClusters:       200,
			KMeansSeed:        42,
			KMeansInit:        10,
			KMeansMaxIter:     300,
			MetricMinPosts:    101,
			MetricWindow:      14,
			MaskPadding:       true,
			OnUserError:       PolicyAbortBatch,
		},
		Model: ModelConfig{
			Dim:              768,
			MetricDim:        10,
			Hidden:           778,
			Labels:           []string{"0", "1"},
			Dropout:          []float64{0.2, 0.3, 0.3},
			AttentionDropout: 0.2,
			Seed:             1,
		},
		Output:  OutputConfig{Dir: "./output", Prefix: "depression_"},
		Metrics: MetricsConfig{Addr: ""},
		Log:     LogConfig{Level: "info"},
	}
}

// ResolveEnv overrides config fields with environment variables that are set.
func (c *Config) ResolveEnv() {
	if v := os.Getenv("POSTSEQ_EMBED_URL"); v != "" {
		c.Embedding.BaseURL = v
	}
	if v := os.Getenv("POSTSEQ_DB_PATH"); v != "" {
		c.Storage.DBPath = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		c.Metrics.Addr = v
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c Config) Validate() error {
	var errs []error
	positive := func(name string, v int) {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", name, v))
		}
	}
	positive("embedding.dim", c.Embedding.Dim)
	positive("pipeline.maxSeqLen", c.Pipeline.MaxSeqLen)
	positive("pipeline.batchSize", c.Pipeline.BatchSize)
	positive("pipeline.compressThreshold", c.Pipeline.CompressThreshold)
	positive("pipeline.numClusters", c.Pipeline.NumClusters)
	positive("pipeline.metricWindow", c.Pipeline.MetricWindow)
	positive("model.dim", c.Model.Dim)
	positive("model.hidden", c.Model.Hidden)
	if c.Embedding.Dim != c.Model.Dim {
		errs = append(errs, fmt.Errorf("embedding.dim %d does not match model.dim %d", c.Embedding.Dim, c.Model.Dim))
	}
	if len(c.Model.Labels) < 2 {
		errs = append(errs, errors.New("model.labels needs at least two classes"))
	}
	if len(c.Model.Dropout) != 3 {
		errs = append(errs, fmt.Errorf("model.dropout needs one rate per classifier layer, got %d", len(c.Model.Dropout)))
	}
	switch c.Pipeline.OnUserError {
	case PolicySkipUser, PolicyAbortBatch, PolicyAbortRun:
	default:
		errs = append(errs, fmt.Errorf("unknown pipeline.onUserError %q", c.Pipeline.OnUserError))
	}
	return errors.Join(errs...)
}

// Load reads YAML config from path on top of Default.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	cfg.ResolveEnv()
	return cfg, cfg.Validate()
}

// Save writes YAML config to path, creating directories as needed.
func Save(path string, cfg Config) error {
	if path == "" {
		return errors.New("empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
