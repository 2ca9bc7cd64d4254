package evaluation

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kit-sdq/Retrieval-Augmented-TLR/pkg/types"
)

func TestLoadGroundTruth(t *testing.T) {
	path := filepath.Join(t.TempDir(), "UC2CC.csv")
	require.NoError(t, os.WriteFile(path, []byte("UC1,Code1\nUC1, Code2\nUC2,Code1,extra\n"), 0o644))

	truth, err := LoadGroundTruth(path, false)
	require.NoError(t, err)
	assert.Equal(t, []types.TraceLink{
		{Source: "UC1", Target: "Code1"},
		{Source: "UC1", Target: "Code2"},
		{Source: "UC2", Target: "Code1"},
	}, truth.Links())

	reversed, err := LoadGroundTruth(path, true)
	require.NoError(t, err)
	assert.True(t, reversed.Contains(types.TraceLink{Source: "Code2", Target: "UC1"}))

	_, err = ReadGroundTruth(strings.NewReader("UC1\n"), false)
	assert.Error(t, err)

	_, err = LoadGroundTruth(filepath.Join(t.TempDir(), "missing.csv"), false)
	assert.Error(t, err)
}

func TestScore(t *testing.T) {
	truth := types.NewTraceLinkSet(
		types.TraceLink{Source: "A", Target: "1"},
		types.TraceLink{Source: "A", Target: "2"},
		types.TraceLink{Source: "B", Target: "1"},
		types.TraceLink{Source: "C", Target: "3"},
	)
	links := []types.TraceLink{
		{Source: "A", Target: "1"},
		{Source: "B", Target: "1"},
		{Source: "B", Target: "2"},
		{Source: "B", Target: "1"},
	}

	r := Score(links, truth)
	assert.Equal(t, 2, r.TruePositives)
	assert.Equal(t, 1, r.FalsePositives, "duplicate predictions count once")
	assert.Equal(t, 2, r.FalseNegatives)
	assert.InDelta(t, 2.0/3.0, r.Precision, 1e-9)
	assert.InDelta(t, 0.5, r.Recall, 1e-9)
	assert.InDelta(t, 4.0/7.0, r.F1, 1e-9)
}

func TestScore_ZeroDivision(t *testing.T) {
	assert.Equal(t, Result{}, Score(nil, types.NewTraceLinkSet()))

	r := Score([]types.TraceLink{{Source: "A", Target: "1"}}, types.NewTraceLinkSet())
	assert.Equal(t, Result{FalsePositives: 1}, r)
}

func TestWriteLinks(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteLinks(&buf, []types.TraceLink{{Source: "A", Target: "x,y"}, {Source: "B", Target: "1"}}))
	assert.Equal(t, "A,\"x,y\"\nB,1\n", buf.String())
}
