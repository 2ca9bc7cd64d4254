package artifacts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/config"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/storage"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/pkg/types"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func ids(artifacts []*types.Element) []string {
	out := make([]string, len(artifacts))
	for i, a := range artifacts {
		out[i] = a.Identifier
	}
	return out
}

func TestText(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "UC2.txt"), "second")
	writeFile(t, filepath.Join(dir, "UC1.txt"), "first")
	writeFile(t, filepath.Join(dir, "nested", "ignored.txt"), "deep")

	p, err := New(types.ModuleConfiguration{Name: "text", Args: map[string]any{"path": dir, "artifact_type": "requirement"}})
	require.NoError(t, err)

	all := p.GetAll()
	assert.Equal(t, []string{"UC1", "UC2"}, ids(all))
	assert.Equal(t, "requirement", all[0].Type)
	assert.Equal(t, 0, all[0].Granularity)
	assert.False(t, all[0].Compare)

	a, err := p.Get("UC2")
	require.NoError(t, err)
	assert.Equal(t, "second", a.Content)

	_, err = p.Get("UC3")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDeepText(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "src", "app", "Main.java"), "class Main {}")
	writeFile(t, filepath.Join(dir, "src", "Util.java"), "class Util {}")
	writeFile(t, filepath.Join(dir, "README.md"), "readme")

	p, err := New(types.ModuleConfiguration{Name: "deep_text", Args: map[string]any{
		"path": dir, "artifact_type": "source code", "extensions": []any{".java"},
	}})
	require.NoError(t, err)
	assert.Equal(t, []string{"src/Util.java", "src/app/Main.java"}, ids(p.GetAll()))
}

func TestSingleFileAndMock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.uml")
	writeFile(t, path, "<xmi/>")

	p, err := New(types.ModuleConfiguration{Name: "single_file", Args: map[string]any{"path": path, "artifact_type": "architecture model"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"model"}, ids(p.GetAll()))

	p, err = New(types.ModuleConfiguration{Name: "mock"})
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "1", "2"}, ids(p.GetAll()))
}

func TestConfigurationErrors(t *testing.T) {
	_, err := New(types.ModuleConfiguration{Name: "jira"})
	assert.ErrorIs(t, err, config.ErrConfiguration)

	_, err = New(types.ModuleConfiguration{Name: "text", Args: map[string]any{"path": t.TempDir()}})
	assert.ErrorIs(t, err, config.ErrConfiguration, "artifact_type is required")

	_, err = New(types.ModuleConfiguration{Name: "deep_text", Args: map[string]any{"path": t.TempDir(), "artifact_type": "code"}})
	assert.ErrorIs(t, err, config.ErrConfiguration, "extensions are required")

	_, err = NewStatic([]*types.Element{types.NewArtifact("a", "t", ""), types.NewArtifact("a", "t", "")})
	assert.ErrorIs(t, err, types.ErrDuplicateElement)
}
