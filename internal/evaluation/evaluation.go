// Package evaluation compares recovered trace links with a gold standard.
package evaluation

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kit-sdq/Retrieval-Augmented-TLR/pkg/types"
)

// Result holds the quality of one run.
type Result struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`

	TruePositives  int `json:"true_positives"`
	FalsePositives int `json:"false_positives"`
	FalseNegatives int `json:"false_negatives"`
}

// LoadGroundTruth reads a CSV file of (source, target) identifier pairs.
// With reverse set, every pair is swapped to match a reversed run.
func LoadGroundTruth(path string, reverse bool) (types.TraceLinkSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("evaluation: failed to open ground truth: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ReadGroundTruth(f, reverse)
}

// ReadGroundTruth is LoadGroundTruth over a reader. Every row is a pair;
// columns after the second are ignored.
func ReadGroundTruth(r io.Reader, reverse bool) (types.TraceLinkSet, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	truth := types.NewTraceLinkSet()
	for line := 1; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			return truth, nil
		}
		if err != nil {
			return nil, fmt.Errorf("evaluation: failed to read ground truth: %w", err)
		}
		if len(row) < 2 {
			return nil, fmt.Errorf("evaluation: ground truth line %d has %d columns, want 2", line, len(row))
		}
		link := types.TraceLink{Source: strings.TrimSpace(row[0]), Target: strings.TrimSpace(row[1])}
		if reverse {
			link.Source, link.Target = link.Target, link.Source
		}
		truth.Add(link)
	}
}

// Score computes precision, recall and F1 of links against truth. Ratios
// with a zero denominator are 0.
func Score(links []types.TraceLink, truth types.TraceLinkSet) Result {
	predicted := types.NewTraceLinkSet(links...)
	var r Result
	for l := range predicted {
		if truth.Contains(l) {
			r.TruePositives++
		}
	}
	r.FalsePositives = len(predicted) - r.TruePositives
	r.FalseNegatives = len(truth) - r.TruePositives

	r.Precision = ratio(r.TruePositives, r.TruePositives+r.FalsePositives)
	r.Recall = ratio(r.TruePositives, r.TruePositives+r.FalseNegatives)
	if r.Precision+r.Recall > 0 {
		r.F1 = 2 * r.Precision * r.Recall / (r.Precision + r.Recall)
	}
	return r
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}

// WriteLinks writes links as CSV rows of (source, target).
func WriteLinks(w io.Writer, links []types.TraceLink) error {
	cw := csv.NewWriter(w)
	for _, l := range links {
		if err := cw.Write([]string{l.Source, l.Target}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
