package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"postseq/internal/logging"
	"postseq/internal/model"
	"postseq/internal/store/sqlitevec"
)

// IndexPostsDir maps user id to the directory holding <user>.json. Only directories whose
// basename is all digits are considered user directories.
func IndexPostsDir(root string) (map[string]string, error) {
	abs, err := filepath.EvalSymlinks(root)
	if err != nil {
		return nil, fmt.Errorf("resolve posts dir: %w", err)
	}
	out := make(map[string]string)
	err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == abs {
			return nil
		}
		if d.IsDir() && isDigits(d.Name()) {
			out[d.Name()] = path
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// DirStore reads per-user post files straight from a posts directory tree.
type DirStore struct {
	root  string
	once  sync.Once
	index map[string]string
	err   error
}

func NewDirStore(root string) *DirStore { return &DirStore{root: root} }

// LoadPosts returns the user's posts in file order. Unknown users yield no posts.
func (s *DirStore) LoadPosts(ctx context.Context, userID string) ([]model.Post, error) {
	s.once.Do(func() { s.index, s.err = IndexPostsDir(s.root) })
	if s.err != nil {
		return nil, s.err
	}
	dir, ok := s.index[userID]
	if !ok {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return readUserFile(filepath.Join(dir, userID+".json"))
}

func readUserFile(path string) ([]model.Post, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	posts, err := model.DecodePostRecords(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return posts, nil
}

// IngestDir copies every user's post file under root into db. It returns the number of users
// seen and posts newly stored.
func IngestDir(ctx context.Context, db *sqlitevec.DB, root string) (int, int, error) {
	index, err := IndexPostsDir(root)
	if err != nil {
		return 0, 0, err
	}
	users, stored := 0, 0
	for userID, dir := range index {
		if err := ctx.Err(); err != nil {
			return users, stored, err
		}
		posts, err := readUserFile(filepath.Join(dir, userID+".json"))
		if err != nil {
			return users, stored, fmt.Errorf("user %s: %w", userID, err)
		}
		n, err := db.PutPosts(ctx, userID, posts)
		if err != nil {
			return users, stored, fmt.Errorf("user %s: %w", userID, err)
		}
		users++
		stored += n
	}
	logging.Info("ingest_dir", map[string]any{"root": root, "users": users, "posts": stored})
	return users, stored, nil
}
