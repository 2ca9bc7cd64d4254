package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/config"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/pkg/types"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(Options{Dir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func classifierConfig(args map[string]any) types.ModuleConfiguration {
	return types.ModuleConfiguration{Type: types.ModuleClassifier, Name: "multi_step", Args: args}
}

func TestCanonicalize_KeyOrderDoesNotMatter(t *testing.T) {
	a, err := Canonicalize(map[string]any{"b": 1, "a": map[string]any{"y": true, "x": "<tag>"}})
	require.NoError(t, err)
	b, err := Canonicalize(map[string]any{"a": map[string]any{"x": "<tag>", "y": true}, "b": 1})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, `{"a":{"x":"<tag>","y":true},"b":1}`, a, "compact, sorted, no HTML escaping")

	type record struct {
		Zeta  string `json:"zeta"`
		Alpha string `json:"alpha"`
	}
	s, err := Canonicalize(record{Zeta: "z", Alpha: "a"})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":"a","zeta":"z"}`, s, "struct fields are sorted too")

	n, err := Canonicalize(json.RawMessage(`{"n": 1.50}`))
	require.NoError(t, err)
	assert.Equal(t, `{"n":1.50}`, n, "numbers are kept verbatim")
}

func TestConfigHash_NilEqualsEmpty(t *testing.T) {
	h1, c1, err := ConfigHash(nil)
	require.NoError(t, err)
	h2, _, err := ConfigHash(map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Equal(t, "{}", c1)
	assert.Len(t, h1, 64)
}

func TestCache_RoundTrip(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	cfg := classifierConfig(map[string]any{"model": "gpt-4o", "use_original_artifacts": true})

	payload := map[string]any{"source": "S", "target": "T", "output": "<trace>yes</trace>"}
	require.NoError(t, c.Put(ctx, cfg, `{"input":1}`, payload))

	got, err := c.Get(ctx, cfg, `{"input":1}`)
	require.NoError(t, err)
	require.Len(t, got, 1)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(got[0], &decoded))
	assert.Equal(t, payload, decoded)
}

func TestCache_MissIsEmpty(t *testing.T) {
	c := newTestCache(t)
	got, err := c.Get(context.Background(), classifierConfig(nil), "nothing")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestCache_ArgumentOrderDoesNotChangeKey(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, classifierConfig(map[string]any{"a": 1, "b": 2}), "in", "v"))
	got, err := c.Get(ctx, classifierConfig(map[string]any{"b": 2, "a": 1}), "in")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestCache_IsolatedByArguments(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, classifierConfig(map[string]any{"model": "gpt-4o"}), "in", "a"))
	got, err := c.Get(ctx, classifierConfig(map[string]any{"model": "llama3"}), "in")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCache_IsolatedByProducer(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	args := map[string]any{"model": "m"}

	require.NoError(t, c.Put(ctx, types.ModuleConfiguration{Type: types.ModuleClassifier, Name: "simple", Args: args}, "in", "x"))

	for _, cfg := range []types.ModuleConfiguration{
		{Type: types.ModuleClassifier, Name: "multi_step", Args: args},
		{Type: types.ModuleEmbeddingCreator, Name: "simple", Args: args},
	} {
		got, err := c.Get(ctx, cfg, "in")
		require.NoError(t, err)
		assert.Empty(t, got, "%s/%s", cfg.Type, cfg.Name)
	}
}

func TestCache_IsolatedByInput(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	cfg := classifierConfig(nil)

	require.NoError(t, c.Put(ctx, cfg, "in-1", "x"))
	got, err := c.Get(ctx, cfg, "in-2")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCache_KeepsDistinctPayloadsInOrder(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	cfg := classifierConfig(nil)

	require.NoError(t, c.Put(ctx, cfg, "in", "first"))
	require.NoError(t, c.Put(ctx, cfg, "in", "second"))
	require.NoError(t, c.Put(ctx, cfg, "in", "first"))

	got, err := c.Get(ctx, cfg, "in")
	require.NoError(t, err)
	require.Len(t, got, 2, "an identical payload is stored once")
	assert.JSONEq(t, `"first"`, string(got[0]))
	assert.JSONEq(t, `"second"`, string(got[1]))
}

func TestLookup_ValidPutShadowsMalformedEntry(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	cfg := classifierConfig(nil)

	require.NoError(t, c.Put(ctx, cfg, "in", map[string]any{"source": "S"}))
	_, ok, err := Lookup[outputPayload](ctx, c, cfg, "in")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Put(ctx, cfg, "in", map[string]any{"output": "yes"}))
	require.NoError(t, c.Put(ctx, cfg, "in", map[string]any{"output": "no"}))
	v, ok, err := Lookup[outputPayload](ctx, c, cfg, "in")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "yes", *v.Output, "the first valid payload wins")
}

func TestCache_PersistsAcrossHandles(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	cfg := classifierConfig(map[string]any{"model": "m"})

	first, err := Open(Options{Dir: dir})
	require.NoError(t, err)
	require.NoError(t, first.Put(ctx, cfg, "in", map[string]string{"output": "yes"}))
	require.NoError(t, first.Close())

	second, err := Open(Options{Dir: dir})
	require.NoError(t, err)
	defer second.Close()

	got, err := second.Get(ctx, cfg, "in")
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.NotEqual(t, first.RunID(), second.RunID())
}

func TestCache_RejectsInvalidRawPayload(t *testing.T) {
	c := newTestCache(t)
	err := c.Put(context.Background(), classifierConfig(nil), "in", json.RawMessage(`{broken`))
	assert.Error(t, err)
}

type outputPayload struct {
	Output *string `json:"output"`
}

func (p *outputPayload) Validate() error {
	if p.Output == nil {
		return errors.New("missing output")
	}
	return nil
}

func TestLookup_SkipsMalformedEntries(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	cfg := classifierConfig(nil)

	// An entry whose payload lacks the required field behaves like a miss.
	require.NoError(t, c.Put(ctx, cfg, "bad", map[string]any{"source": "S"}))
	_, ok, err := Lookup[outputPayload](ctx, c, cfg, "bad")
	require.NoError(t, err)
	assert.False(t, ok)

	// A payload of the wrong JSON type is skipped as well.
	require.NoError(t, c.Put(ctx, cfg, "wrong-type", []int{1, 2}))
	_, ok, err = Lookup[outputPayload](ctx, c, cfg, "wrong-type")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Put(ctx, cfg, "good", map[string]any{"output": "yes"}))
	v, ok, err := Lookup[outputPayload](ctx, c, cfg, "good")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "yes", *v.Output)
}

func TestCache_ConcurrentReadYourWrites(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	cfg := classifierConfig(map[string]any{"model": "m"})

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				input := fmt.Sprintf("w%d-i%d", w, i)
				if err := c.Put(ctx, cfg, input, i); err != nil {
					errs <- err
					return
				}
				got, err := c.Get(ctx, cfg, input)
				if err != nil {
					errs <- err
					return
				}
				if len(got) != 1 {
					errs <- fmt.Errorf("%s: expected own write, got %d entries", input, len(got))
					return
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, Stat{Module: types.ModuleClassifier, Name: "multi_step", Entries: 80, Configurations: 1}, stats[0])
}

func TestOpen_ConfigurationErrors(t *testing.T) {
	_, err := Open(Options{})
	assert.ErrorIs(t, err, config.ErrConfiguration)

	_, err = Open(Options{Driver: "redis", Dir: t.TempDir()})
	assert.ErrorIs(t, err, config.ErrConfiguration)

	_, err = Open(Options{Driver: DriverPostgres})
	assert.ErrorIs(t, err, config.ErrConfiguration)
}

func TestRebind(t *testing.T) {
	pg := &Cache{driver: DriverPostgres}
	assert.Equal(t, "a = $1 AND b = $2", pg.rebind("a = ? AND b = ?"))
	lite := &Cache{driver: DriverSQLite}
	assert.Equal(t, "a = ?", lite.rebind("a = ?"))
}

func TestCache_Postgres(t *testing.T) {
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set; skipping PostgreSQL integration tests")
	}
	c, err := Open(Options{Driver: DriverPostgres, DSN: dsn})
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	cfg := classifierConfig(map[string]any{"run": c.RunID()})
	require.NoError(t, c.Put(ctx, cfg, "in", "first"))
	require.NoError(t, c.Put(ctx, cfg, "in", "second"))
	require.NoError(t, c.Put(ctx, cfg, "in", "first"))

	got, err := c.Get(ctx, cfg, "in")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.JSONEq(t, `"first"`, string(got[0]))
	assert.JSONEq(t, `"second"`, string(got[1]))
}
