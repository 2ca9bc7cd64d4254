package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/config"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/storage/mock"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/storage/sqlite"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/pkg/types"
)

func TestNew(t *testing.T) {
	s, err := New(types.ModuleConfiguration{Name: "mock"}, Deps{})
	require.NoError(t, err)
	assert.IsType(t, &mock.ElementStore{}, s)

	s, err = New(types.ModuleConfiguration{Name: "chroma", Args: map[string]any{
		"path": t.TempDir(), "direction": "target",
	}}, Deps{})
	require.NoError(t, err)
	assert.IsType(t, &sqlite.ElementStore{}, s)
	require.NoError(t, s.Close())
}

func TestNew_ConfigurationErrors(t *testing.T) {
	_, err := New(types.ModuleConfiguration{Name: "faiss"}, Deps{})
	assert.ErrorIs(t, err, config.ErrConfiguration)

	_, err = New(types.ModuleConfiguration{Name: "sqlite", Args: map[string]any{
		"path": t.TempDir(), "direction": "target", "n_results": "dynamic",
	}}, Deps{})
	assert.ErrorIs(t, err, config.ErrNotSupported)

	_, err = New(types.ModuleConfiguration{Name: "postgres", Args: map[string]any{"direction": "target"}}, Deps{})
	assert.ErrorIs(t, err, config.ErrConfiguration, "postgres needs a dsn")
}

func TestNames(t *testing.T) {
	assert.Equal(t, []string{"chroma", "mock", "postgres", "sqlite"}, Names())
}
