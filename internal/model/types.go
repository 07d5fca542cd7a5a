package model

import "time"

// Post is a single timestamped text item authored by a user.
type Post struct {
	Timestamp time.Time
	Text      string
}

// UserPostSet holds every post loaded for one user id. Order is whatever the store returned.
type UserPostSet struct {
	UserID string
	Posts  []Post
}

// Texts returns post texts in set order.
func (s UserPostSet) Texts() []string {
	out := make([]string, len(s.Posts))
	for i, p := range s.Posts {
		out[i] = p.Text
	}
	return out
}

// EmbeddedPost pairs a post with its embedding vector.
type EmbeddedPost struct {
	Post
	Vector []float32
}

// DatasetRow is one labelled (or unlabelled) user in a dataset file.
type DatasetRow struct {
	Label  string
	UserID string
}

// Prediction is the classifier output for one user.
type Prediction struct {
	UserID        string
	Label         string
	Logits        []float64
	Probabilities []float64
}
