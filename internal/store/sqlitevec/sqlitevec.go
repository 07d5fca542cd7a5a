package sqlitevec

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"math"
	"time"

	_ "modernc.org/sqlite"

	"postseq/internal/model"
)

// DB wraps a SQLite database holding posts, cached metric vectors and predictions.
type DB struct{ sql *sql.DB }

func Open(path string) (*DB, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if path == ":memory:" {
		// each pooled connection would otherwise get its own empty database
		d.SetMaxOpenConns(1)
	}
	if _, err := d.Exec(`PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;`); err != nil {
		_ = d.Close()
		return nil, err
	}
	db := &DB{sql: d}
	if err := db.migrate(); err != nil {
		_ = d.Close()
		return nil, err
	}
	return db, nil
}

func (d *DB) Close() error { return d.sql.Close() }

func (d *DB) migrate() error {
	_, err := d.sql.Exec(`
	CREATE TABLE IF NOT EXISTS posts (
	  id INTEGER PRIMARY KEY AUTOINCREMENT,
	  user_id TEXT NOT NULL,
	  seq INTEGER NOT NULL,
	  ts INTEGER NOT NULL,
	  text TEXT NOT NULL,
	  UNIQUE(user_id, seq)
	);
	CREATE INDEX IF NOT EXISTS idx_posts_user ON posts(user_id);
	CREATE TABLE IF NOT EXISTS metric_vectors (
	  cache_key TEXT PRIMARY KEY,
	  vector BLOB NOT NULL,
	  updated_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS predictions (
	  id INTEGER PRIMARY KEY AUTOINCREMENT,
	  run_id TEXT NOT NULL,
	  user_id TEXT NOT NULL,
	  label TEXT NOT NULL,
	  probs BLOB NOT NULL,
	  meta TEXT,
	  created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_predictions_run ON predictions(run_id);
	`)
	return err
}

// PutPosts stores a user's posts keyed by their index in the source record list. Indexes
// already stored are ignored, so re-ingesting an append-only file only adds new records and
// identical posts at different indexes are all kept.
func (d *DB) PutPosts(ctx context.Context, userID string, posts []model.Post) (int, error) {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()
	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO posts(user_id, seq, ts, text) VALUES(?,?,?,?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()
	n := 0
	for i, p := range posts {
		res, err := stmt.ExecContext(ctx, userID, i, p.Timestamp.Unix(), p.Text)
		if err != nil {
			return n, err
		}
		if k, _ := res.RowsAffected(); k > 0 {
			n++
		}
	}
	return n, tx.Commit()
}

// LoadPosts returns a user's posts in source record order.
func (d *DB) LoadPosts(ctx context.Context, userID string) ([]model.Post, error) {
	rows, err := d.sql.QueryContext(ctx, `SELECT ts, text FROM posts WHERE user_id=? ORDER BY seq`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Post
	for rows.Next() {
		var ts int64
		var text string
		if err := rows.Scan(&ts, &text); err != nil {
			return nil, err
		}
		out = append(out, model.Post{Timestamp: time.Unix(ts, 0).UTC(), Text: text})
	}
	return out, rows.Err()
}

// UserIDs lists users with at least one stored post.
func (d *DB) UserIDs(ctx context.Context) ([]string, error) {
	rows, err := d.sql.QueryContext(ctx, `SELECT DISTINCT user_id FROM posts ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// PutMetricVector upserts a metric vector under a cache key.
func (d *DB) PutMetricVector(ctx context.Context, key string, vec []float64) error {
	_, err := d.sql.ExecContext(ctx, `INSERT INTO metric_vectors(cache_key, vector, updated_at) VALUES(?,?,?)
	ON CONFLICT(cache_key) DO UPDATE SET vector=excluded.vector, updated_at=excluded.updated_at`,
		key, encodeF64(vec), time.Now().UTC().Unix())
	return err
}

// LoadMetricVector returns the stored vector and whether one exists.
func (d *DB) LoadMetricVector(ctx context.Context, key string) ([]float64, bool, error) {
	var b []byte
	err := d.sql.QueryRowContext(ctx, `SELECT vector FROM metric_vectors WHERE cache_key=?`, key).Scan(&b)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return decodeF64(b), true, nil
}

// PutPrediction stores a prediction under a run id.
func (d *DB) PutPrediction(ctx context.Context, runID string, p model.Prediction, meta any) error {
	var mstr *string
	if meta != nil {
		mb, _ := json.Marshal(meta)
		ms := string(mb)
		mstr = &ms
	}
	_, err := d.sql.ExecContext(ctx, `INSERT INTO predictions(run_id, user_id, label, probs, meta, created_at) VALUES(?,?,?,?,?,?)`,
		runID, p.UserID, p.Label, encodeF64(p.Probabilities), mstr, time.Now().UTC().Unix())
	return err
}

// LoadPredictions returns every prediction recorded for runID in insertion order.
func (d *DB) LoadPredictions(ctx context.Context, runID string) ([]model.Prediction, error) {
	rows, err := d.sql.QueryContext(ctx, `SELECT user_id, label, probs FROM predictions WHERE run_id=? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Prediction
	for rows.Next() {
		var p model.Prediction
		var pb []byte
		if err := rows.Scan(&p.UserID, &p.Label, &pb); err != nil {
			return nil, err
		}
		p.Probabilities = decodeF64(pb)
		out = append(out, p)
	}
	return out, rows.Err()
}

func encodeF64(v []float64) []byte {
	b := make([]byte, 8*len(v))
	for i := range v {
		binary.LittleEndian.PutUint64(b[8*i:], math.Float64bits(v[i]))
	}
	return b
}

func decodeF64(b []byte) []float64 {
	n := len(b) / 8
	v := make([]float64, n)
	for i := 0; i < n; i++ {
		v[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[8*i:]))
	}
	return v
}
