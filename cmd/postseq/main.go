package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"postseq/internal/analytics"
	"postseq/internal/cmdlog"
	"postseq/internal/config"
	"postseq/internal/ingest"
	"postseq/internal/jobs"
	"postseq/internal/logging"
	"postseq/internal/metrics"
	"postseq/internal/nn"
	"postseq/internal/pipeline"
	"postseq/internal/sentiment"
	"postseq/internal/store/sqlitevec"
	"postseq/internal/theme"
)

var version = "dev"

const (
	sourceDB  = "db"
	sourceDir = "dir"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "postseq",
		Short:         "classify users from their timestamped post histories",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "./postseq.yaml", "config path")

	rootCmd.AddCommand(
		initCmd(),
		ingestCmd(&configPath),
		featuresCmd(&configPath),
		archiveCmd(&configPath),
		classifyCmd(&configPath),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		logging.Sync()
		os.Exit(1)
	}
	logging.Sync()
}

// setup loads config and starts logging and the metrics endpoint.
func setup(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, fmt.Errorf("load config %s: %w", path, err)
	}
	if err := logging.Init(cfg.Log.Level, cfg.Log.Console); err != nil {
		return cfg, err
	}
	metrics.StartServer(cfg.Metrics.Addr)
	return cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func initCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdlog.Run("init", func() error {
				if err := config.Save(path, config.Default()); err != nil {
					return err
				}
				abs, _ := filepath.Abs(path)
				theme.PrintBanner(cmd.OutOrStdout(), version, true)
				fmt.Fprintln(cmd.OutOrStdout(), "Config written to:", abs)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&path, "path", "./postseq.yaml", "path to write config")
	return cmd
}

func ingestCmd(configPath *string) *cobra.Command {
	var watch time.Duration
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "load the posts directory into sqlite",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(*configPath)
			if err != nil {
				return err
			}
			return cmdlog.Run("ingest", func() error {
				db, err := sqlitevec.Open(cfg.Storage.DBPath)
				if err != nil {
					return fmt.Errorf("open db: %w", err)
				}
				defer db.Close()
				ctx, cancel := signalContext()
				defer cancel()
				if watch > 0 {
					if err := jobs.RunIngestLoop(ctx, db, cfg.Storage.PostsDir, watch); !errors.Is(err, context.Canceled) {
						return err
					}
					return nil
				}
				users, stored, err := jobs.RunIngestOnce(ctx, db, cfg.Storage.PostsDir)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "users=%d new_posts=%d\n", users, stored)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&watch, "watch", 0, "re-ingest on this interval until interrupted")
	return cmd
}

// env holds the long-lived resources a pipeline command needs.
type env struct {
	cfg     config.Config
	db      *sqlitevec.DB
	store   pipeline.PostStore
	closers []func() error
}

func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		_ = e.closers[i]()
	}
}

func openEnv(cfg config.Config, source string) (*env, error) {
	e := &env{cfg: cfg}
	db, err := sqlitevec.Open(cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	e.db = db
	e.closers = append(e.closers, db.Close)
	switch source {
	case sourceDB:
		e.store = db
	case sourceDir:
		e.store = ingest.NewDirStore(cfg.Storage.PostsDir)
	default:
		e.Close()
		return nil, fmt.Errorf("unknown source %q (want %s or %s)", source, sourceDB, sourceDir)
	}
	return e, nil
}

func (e *env) pipeline(m *nn.Model) (*pipeline.Pipeline, error) {
	emb, closeEmb, err := pipeline.NewEmbedder(e.cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}
	e.closers = append(e.closers, closeEmb)
	var ms nn.MetricStore
	if e.cfg.Pipeline.PersistMetrics {
		ms = e.db
	}
	cache := pipeline.NewMetricCache(e.cfg.Pipeline, sentiment.NewVader(), ms)
	return pipeline.FromConfig(e.cfg, e.store, emb, cache, m), nil
}

func featuresCmd(configPath *string) *cobra.Command {
	var userID, source string
	cmd := &cobra.Command{
		Use:   "features",
		Short: "print one user's metric vector and sequence shape",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(*configPath)
			if err != nil {
				return err
			}
			return cmdlog.Run("features", func() error {
				if userID == "" {
					return fmt.Errorf("--user is required")
				}
				e, err := openEnv(cfg, source)
				if err != nil {
					return err
				}
				defer e.Close()
				m, err := pipeline.NewModel(cfg)
				if err != nil {
					return err
				}
				p, err := e.pipeline(m)
				if err != nil {
					return err
				}
				ctx, cancel := signalContext()
				defer cancel()
				s, err := p.Prepare(ctx, userID)
				if err != nil {
					return err
				}
				rows, cols := s.Seq.Dims()
				out := map[string]any{
					"user_id": s.UserID,
					"posts":   s.Posts,
					"kept":    s.Kept,
					"shape":   []int{rows, cols},
					"metrics": s.Metrics,
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().StringVar(&source, "source", sourceDB, "post source: db or dir")
	return cmd
}

func archiveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "archive",
		Short: "write freshly initialized seeded weights and the label vocabulary",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(*configPath)
			if err != nil {
				return err
			}
			return cmdlog.Run("archive", func() error {
				m, err := pipeline.NewModel(cfg)
				if err != nil {
					return err
				}
				dir, err := nn.SaveArchive(cfg.Output.Dir, cfg.Output.Prefix, m, time.Now())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Archive written to:", dir)
				return nil
			})
		},
	}
}

func classifyCmd(configPath *string) *cobra.Command {
	var dataset, weights, vocab, source, policy string
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "classify every user in a dataset CSV and write an evaluation report",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(*configPath)
			if err != nil {
				return err
			}
			if policy == "" {
				policy = cfg.Pipeline.OnUserError
			}
			switch policy {
			case config.PolicySkipUser, config.PolicyAbortBatch, config.PolicyAbortRun:
			default:
				return fmt.Errorf("unknown policy %q", policy)
			}
			return cmdlog.Run("classify", func() error {
				if dataset == "" {
					return fmt.Errorf("--dataset is required")
				}
				rows, err := ingest.ReadDataset(dataset)
				if err != nil {
					return err
				}
				m, err := loadModel(cfg, weights, vocab)
				if err != nil {
					return err
				}
				e, err := openEnv(cfg, source)
				if err != nil {
					return err
				}
				defer e.Close()
				p, err := e.pipeline(m)
				if err != nil {
					return err
				}
				ctx, cancel := signalContext()
				defer cancel()
				sum, err := jobs.RunDataset(ctx, p, rows, cfg.Pipeline.BatchSize, policy, e.db)
				if err != nil {
					return err
				}
				report, err := analytics.Evaluate(sum.Predictions, sum.Gold, positiveLabel(m.Labels))
				if err != nil {
					return err
				}
				path := analytics.ReportPath(cfg.Output.Dir, dataset)
				if err := analytics.WriteReport(path, report); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "run=%s users=%d skipped=%d failed_batches=%d accuracy=%.4f f1=%.4f report=%s\n",
					sum.RunID, sum.Users, sum.SkippedUsers, sum.FailedBatches, report.Accuracy, report.F1, path)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&dataset, "dataset", "", "dataset CSV (label,user_id)")
	cmd.Flags().StringVar(&weights, "weights", "", "weights file; empty uses fresh seeded weights")
	cmd.Flags().StringVar(&vocab, "vocab", "", "vocabulary directory; defaults to <weights dir>/vocabulary")
	cmd.Flags().StringVar(&source, "source", sourceDB, "post source: db or dir")
	cmd.Flags().StringVar(&policy, "policy", "", "user error policy: skip_user, abort_batch or abort_run")
	return cmd
}

func loadModel(cfg config.Config, weights, vocab string) (*nn.Model, error) {
	if weights == "" {
		return pipeline.NewModel(cfg)
	}
	if vocab == "" {
		vocab = filepath.Join(filepath.Dir(weights), nn.VocabularyDir)
	}
	m, err := nn.LoadArchive(weights, vocab)
	if err != nil {
		return nil, fmt.Errorf("load archive: %w", err)
	}
	if m.Encoder.Dim() != cfg.Embedding.Dim {
		return nil, fmt.Errorf("archive dim %d does not match embedding dim %d", m.Encoder.Dim(), cfg.Embedding.Dim)
	}
	return m, nil
}

// positiveLabel is "1" when present, else the last label.
func positiveLabel(labels []string) string {
	for _, l := range labels {
		if l == "1" {
			return l
		}
	}
	return labels[len(labels)-1]
}
