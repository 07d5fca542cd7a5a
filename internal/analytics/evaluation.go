package analytics

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"postseq/internal/model"
)

// Report holds binary classification scores for the positive label.
type Report struct {
	Positive  string         `json:"positive_label"`
	Total     int            `json:"total"`
	Accuracy  float64        `json:"accuracy"`
	Precision float64        `json:"precision"`
	Recall    float64        `json:"recall"`
	F1        float64        `json:"f1"`
	Predicted map[string]int `json:"predicted"`
	Gold      map[string]int `json:"gold"`
}

// Evaluate scores predictions against index-aligned gold labels. Undefined ratios are zero.
func Evaluate(preds []model.Prediction, gold []string, positive string) (Report, error) {
	if len(preds) != len(gold) {
		return Report{}, fmt.Errorf("%d predictions but %d gold labels", len(preds), len(gold))
	}
	r := Report{Positive: positive, Total: len(preds), Predicted: map[string]int{}, Gold: map[string]int{}}
	var tp, fp, fn, correct int
	for i, p := range preds {
		r.Predicted[p.Label]++
		r.Gold[gold[i]]++
		if p.Label == gold[i] {
			correct++
		}
		switch {
		case p.Label == positive && gold[i] == positive:
			tp++
		case p.Label == positive:
			fp++
		case gold[i] == positive:
			fn++
		}
	}
	r.Accuracy = ratio(correct, r.Total)
	r.Precision = ratio(tp, tp+fp)
	r.Recall = ratio(tp, tp+fn)
	if r.Precision+r.Recall > 0 {
		r.F1 = 2 * r.Precision * r.Recall / (r.Precision + r.Recall)
	}
	return r, nil
}

func ratio(a, b int) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}

// SortedLabels returns the keys of a label histogram in order.
func SortedLabels(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ReportPath is <dir>/<dataset basename without extension>_eval.json.
func ReportPath(dir, datasetPath string) string {
	base := filepath.Base(datasetPath)
	return filepath.Join(dir, strings.TrimSuffix(base, filepath.Ext(base))+"_eval.json")
}

// WriteReport writes r as indented JSON.
func WriteReport(path string, r Report) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
