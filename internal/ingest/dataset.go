package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"postseq/internal/model"
)

// ReadDataset reads a dataset CSV: a header row followed by (label, user id) rows.
// Extra columns are ignored.
func ReadDataset(path string) ([]model.DatasetRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseDataset(f)
}

func ParseDataset(r io.Reader) ([]model.DatasetRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	if _, err := cr.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	var out []model.DatasetRow
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if len(rec) < 2 {
			return nil, fmt.Errorf("line %d: want label,user_id got %d columns", line, len(rec))
		}
		userID := strings.TrimSpace(rec[1])
		if userID == "" {
			return nil, fmt.Errorf("line %d: empty user id", line)
		}
		out = append(out, model.DatasetRow{Label: strings.TrimSpace(rec[0]), UserID: userID})
	}
}
