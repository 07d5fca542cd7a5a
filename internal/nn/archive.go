package nn

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"
)

const (
	WeightsFile    = "weights_best.json"
	VocabularyDir  = "vocabulary"
	LabelsFile     = "labels.txt"
	archiveVersion = 1
)

type linearJSON struct {
	In  int       `json:"in"`
	Out int       `json:"out"`
	W   []float64 `json:"w"`
	B   []float64 `json:"b"`
}

type blockJSON struct {
	Observer  linearJSON `json:"observer"`
	Matrix    linearJSON `json:"matrix"`
	Value     linearJSON `json:"value"`
	NormGamma []float64  `json:"norm_gamma"`
	NormBeta  []float64  `json:"norm_beta"`
	NormEps   float64    `json:"norm_eps"`
	Dropout   float64    `json:"dropout"`
}

type weightsJSON struct {
	Version     int          `json:"version"`
	ArchiveID   string       `json:"archive_id"`
	CreatedAt   time.Time    `json:"created_at"`
	Dim         int          `json:"dim"`
	MetricDim   int          `json:"metric_dim"`
	MaskPadding bool         `json:"mask_padding"`
	Query       []float64    `json:"query"`
	Stages      []blockJSON  `json:"stages"`
	Classifier  []linearJSON `json:"classifier"`
	Dropout     []float64    `json:"dropout"`
}

func toLinearJSON(l Linear) linearJSON {
	return linearJSON{In: l.In(), Out: l.Out(), W: clone64(l.W.RawMatrix().Data), B: clone64(l.B)}
}

func (lj linearJSON) linear(name string) (Linear, error) {
	if lj.In <= 0 || lj.Out <= 0 || len(lj.W) != lj.In*lj.Out || len(lj.B) != lj.Out {
		return Linear{}, fmt.Errorf("%s: %dx%d layer with %d weights and %d biases", name, lj.Out, lj.In, len(lj.W), len(lj.B))
	}
	return Linear{W: mat.NewDense(lj.Out, lj.In, clone64(lj.W)), B: clone64(lj.B)}, nil
}

// SaveArchive writes <dir>/<prefix><YYYYMMDDHHMM>/ with the weights file and label vocabulary
// and returns the archive directory.
func SaveArchive(dir, prefix string, m *Model, now time.Time) (string, error) {
	out := filepath.Join(dir, prefix+now.Format("200601021504"))
	if err := os.MkdirAll(filepath.Join(out, VocabularyDir), 0o755); err != nil {
		return "", err
	}
	w := weightsJSON{
		Version:     archiveVersion,
		ArchiveID:   uuid.NewString(),
		CreatedAt:   now.UTC(),
		Dim:         m.Encoder.Dim(),
		MetricDim:   m.MetricDim,
		MaskPadding: m.Encoder.MaskPadding,
		Query:       clone64(m.Encoder.Query.RawRowView(0)),
		Dropout:     clone64(m.Classifier.Dropout),
	}
	for _, s := range m.Encoder.Stages {
		w.Stages = append(w.Stages, blockJSON{
			Observer:  toLinearJSON(s.Observer),
			Matrix:    toLinearJSON(s.Matrix),
			Value:     toLinearJSON(s.Value),
			NormGamma: clone64(s.Norm.Gamma),
			NormBeta:  clone64(s.Norm.Beta),
			NormEps:   s.Norm.Eps,
			Dropout:   s.Dropout,
		})
	}
	for _, l := range m.Classifier.Layers {
		w.Classifier = append(w.Classifier, toLinearJSON(l))
	}
	b, err := json.Marshal(w)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(out, WeightsFile), b, 0o644); err != nil {
		return "", err
	}
	labels := strings.Join(m.Labels, "\n") + "\n"
	if err := os.WriteFile(filepath.Join(out, VocabularyDir, LabelsFile), []byte(labels), 0o644); err != nil {
		return "", err
	}
	return out, nil
}

// LoadArchive restores a model from a weights file and a vocabulary directory.
func LoadArchive(weightsPath, vocabDir string) (*Model, error) {
	labels, err := readLabels(filepath.Join(vocabDir, LabelsFile))
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(weightsPath)
	if err != nil {
		return nil, err
	}
	var w weightsJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, fmt.Errorf("decode %s: %w", weightsPath, err)
	}
	if w.Version != archiveVersion {
		return nil, fmt.Errorf("unsupported archive version %d", w.Version)
	}
	if w.Dim <= 0 || len(w.Query) != w.Dim {
		return nil, fmt.Errorf("query has %d values, want dim %d", len(w.Query), w.Dim)
	}
	if len(w.Stages) != 2 {
		return nil, fmt.Errorf("archive has %d attention stages, want 2", len(w.Stages))
	}
	enc := &Encoder{Query: mat.NewDense(1, w.Dim, clone64(w.Query)), MaskPadding: w.MaskPadding}
	for i, s := range w.Stages {
		var blk HANBlock
		if blk.Observer, err = s.Observer.linear(fmt.Sprintf("stage %d observer", i)); err != nil {
			return nil, err
		}
		if blk.Matrix, err = s.Matrix.linear(fmt.Sprintf("stage %d matrix", i)); err != nil {
			return nil, err
		}
		if blk.Value, err = s.Value.linear(fmt.Sprintf("stage %d value", i)); err != nil {
			return nil, err
		}
		for _, l := range []Linear{blk.Observer, blk.Matrix, blk.Value} {
			if l.In() != w.Dim || l.Out() != w.Dim {
				return nil, fmt.Errorf("stage %d projection is %dx%d, want %dx%d", i, l.Out(), l.In(), w.Dim, w.Dim)
			}
		}
		if len(s.NormGamma) != w.Dim || len(s.NormBeta) != w.Dim {
			return nil, fmt.Errorf("stage %d layer norm has %d/%d params, want %d", i, len(s.NormGamma), len(s.NormBeta), w.Dim)
		}
		blk.Norm = LayerNorm{Gamma: clone64(s.NormGamma), Beta: clone64(s.NormBeta), Eps: s.NormEps}
		blk.Dropout = s.Dropout
		enc.Stages[i] = blk
	}
	if len(w.Classifier) != 3 {
		return nil, fmt.Errorf("archive has %d classifier layers, want 3", len(w.Classifier))
	}
	cls := &Classifier{Activations: []Activation{LeakyReLU, Identity, Identity}, Dropout: clone64(w.Dropout)}
	for i, lj := range w.Classifier {
		l, err := lj.linear(fmt.Sprintf("classifier layer %d", i))
		if err != nil {
			return nil, err
		}
		if i > 0 && l.In() != cls.Layers[i-1].Out() {
			return nil, fmt.Errorf("classifier layer %d takes %d inputs, previous emits %d", i, l.In(), cls.Layers[i-1].Out())
		}
		cls.Layers = append(cls.Layers, l)
	}
	if cls.In() != w.Dim+w.MetricDim {
		return nil, fmt.Errorf("classifier takes %d inputs, want %d", cls.In(), w.Dim+w.MetricDim)
	}
	if cls.Classes() != len(labels) {
		return nil, fmt.Errorf("classifier emits %d classes but vocabulary has %d labels", cls.Classes(), len(labels))
	}
	return &Model{
		Encoder:    enc,
		Classifier: cls,
		Labels:     labels,
		MetricDim:  w.MetricDim,
		rng:        newRand(1),
	}, nil
}

func readLabels(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var labels []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if l := strings.TrimSpace(sc.Text()); l != "" {
			labels = append(labels, l)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(labels) < 2 {
		return nil, errors.New("vocabulary needs at least two labels")
	}
	return labels, nil
}
