package nn

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"

	"postseq/internal/errs"
	"postseq/internal/model"
)

// BuildSequence orders index-aligned posts and vectors by ascending timestamp and returns the
// len x dim sequence matrix. Equal timestamps keep input order. No posts yields a single zero row.
func BuildSequence(posts []model.Post, vectors [][]float32, dim int) (*mat.Dense, error) {
	if dim <= 0 {
		return nil, errs.Shape(errs.StageSort, nil, fmt.Errorf("non-positive embedding dim %d", dim))
	}
	if len(posts) != len(vectors) {
		return nil, errs.Shape(errs.StageSort, []string{fmt.Sprintf("posts=%d", len(posts)), fmt.Sprintf("vectors=%d", len(vectors))},
			errors.New("posts and vectors are not index aligned"))
	}
	if len(posts) == 0 {
		return mat.NewDense(1, dim, nil), nil
	}
	for i, p := range posts {
		if p.Timestamp.IsZero() {
			return nil, errs.Data(errs.StageSort, "", fmt.Errorf("post %d has no timestamp", i))
		}
	}
	order := make([]int, len(posts))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return posts[order[a]].Timestamp.Before(posts[order[b]].Timestamp)
	})
	rows := make([][]float32, len(order))
	for i, idx := range order {
		rows[i] = vectors[idx]
	}
	m, err := FromRows(rows, dim)
	if err != nil {
		return nil, errs.Shape(errs.StageSort, nil, err)
	}
	return m, nil
}

// BuildSequenceFromEmbedded is BuildSequence over already paired items.
func BuildSequenceFromEmbedded(items []model.EmbeddedPost, dim int) (*mat.Dense, error) {
	posts := make([]model.Post, len(items))
	vecs := make([][]float32, len(items))
	for i, it := range items {
		posts[i] = it.Post
		vecs[i] = it.Vector
	}
	return BuildSequence(posts, vecs, dim)
}
