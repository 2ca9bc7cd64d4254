package storage

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/config"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/pkg/types"
)

var (
	// ErrNotFound indicates that the requested element was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotIngested indicates a query against a store that has not been
	// ingested yet, or that holds no comparable elements. It is a
	// configuration error.
	ErrNotIngested = fmt.Errorf("%w: element store is empty or not ingested", config.ErrConfiguration)

	// ErrStorageConsistency indicates that a reused collection does not match
	// the entries supplied for ingestion.
	ErrStorageConsistency = errors.New("stored collection does not match supplied entries")

	// ErrCacheRead indicates a malformed payload in the fingerprint cache.
	ErrCacheRead = errors.New("malformed cache entry")
)

// Metric is the distance function used to rank elements. Lower distances
// mean more similar elements.
type Metric string

const (
	// MetricCosine is 1 - cosine similarity.
	MetricCosine Metric = "cosine"
	// MetricL2 is the squared euclidean distance.
	MetricL2 Metric = "l2"
	// MetricInnerProduct is 1 - dot product.
	MetricInnerProduct Metric = "ip"
)

// ParseMetric validates a similarity function name.
func ParseMetric(name string) (Metric, error) {
	switch m := Metric(strings.ToLower(name)); m {
	case MetricCosine, MetricL2, MetricInnerProduct:
		return m, nil
	default:
		return "", fmt.Errorf("%w: unknown similarity function %q", config.ErrConfiguration, name)
	}
}

// Distance computes the distance between two vectors of equal length.
// A cosine distance against a zero vector, and any distance that is not a
// number, is 1.
func (m Metric) Distance(a, b types.Embedding) (float64, error) {
	d, err := m.distance(a, b)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(d) {
		return 1, nil
	}
	return d, nil
}

func (m Metric) distance(a, b types.Embedding) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: embedding dimensions differ (%d != %d)", ErrInvalidInput, len(a), len(b))
	}
	switch m {
	case MetricCosine:
		var dot, na, nb float64
		for i := range a {
			dot += a[i] * b[i]
			na += a[i] * a[i]
			nb += b[i] * b[i]
		}
		if na == 0 || nb == 0 {
			return 1, nil
		}
		return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb)), nil
	case MetricL2:
		var sum float64
		for i := range a {
			d := a[i] - b[i]
			sum += d * d
		}
		return sum, nil
	case MetricInnerProduct:
		var dot float64
		for i := range a {
			dot += a[i] * b[i]
		}
		return 1 - dot, nil
	default:
		return 0, fmt.Errorf("%w: unknown similarity function %q", config.ErrConfiguration, string(m))
	}
}

// Result count policies accepted by the n_results argument.
const (
	ResultsAll     = "all"
	ResultsDynamic = "dynamic"
)

// ResultCount is a truncation policy: either every match or the first K.
type ResultCount struct {
	All bool
	K   int
}

// ParseResultCount accepts "all", a non-negative integer (also as a string) or
// the reserved value "dynamic", which is rejected with config.ErrNotSupported.
func ParseResultCount(v any) (ResultCount, error) {
	if s, ok := v.(string); ok {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case ResultsAll:
			return ResultCount{All: true}, nil
		case ResultsDynamic:
			return ResultCount{}, fmt.Errorf("%w: result count %q", config.ErrNotSupported, ResultsDynamic)
		}
	}
	k, err := config.NonNegativeInt(map[string]any{"n_results": v}, "n_results", 0)
	if err != nil {
		return ResultCount{}, err
	}
	return ResultCount{K: k}, nil
}

// String implements fmt.Stringer.
func (r ResultCount) String() string {
	if r.All {
		return ResultsAll
	}
	return fmt.Sprintf("%d", r.K)
}

// Match is an element with its distance to a query.
type Match struct {
	Element  *types.Element
	Distance float64
}

// Options are the parsed arguments shared by every element store.
type Options struct {
	Path          string
	Direction     string
	Metric        Metric
	Results       ResultCount
	Threshold     float64
	VerifyEntries bool
}

// Default option values.
const (
	DefaultResults   = 10
	DefaultThreshold = 1.0
)

// ParseOptions reads store arguments: path, direction (required),
// similarity_function (default cosine), n_results (default 10),
// threshold (default 1.0) and verify_entries (default false).
func ParseOptions(args map[string]any) (Options, error) {
	var (
		opts Options
		err  error
	)
	if opts.Path, err = config.String(args, "path", ""); err != nil {
		return Options{}, err
	}
	if opts.Direction, err = config.RequiredString(args, "direction"); err != nil {
		return Options{}, err
	}
	fn, err := config.String(args, "similarity_function", string(MetricCosine))
	if err != nil {
		return Options{}, err
	}
	if opts.Metric, err = ParseMetric(fn); err != nil {
		return Options{}, err
	}
	n, ok := args["n_results"]
	if !ok || n == nil {
		n = DefaultResults
	}
	if opts.Results, err = ParseResultCount(n); err != nil {
		return Options{}, err
	}
	if dynamic, err := config.Bool(args, "dynamic_n", false); err != nil {
		return Options{}, err
	} else if dynamic {
		return Options{}, fmt.Errorf("%w: dynamic_n", config.ErrNotSupported)
	}
	if opts.Threshold, err = config.Float(args, "threshold", DefaultThreshold); err != nil {
		return Options{}, err
	}
	if opts.VerifyEntries, err = config.Bool(args, "verify_entries", false); err != nil {
		return Options{}, err
	}
	return opts, nil
}
