// Package artifacts loads the whole documents of one artifact collection.
package artifacts

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/config"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/storage"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/pkg/types"
)

// Provider serves the artifacts of one collection.
type Provider interface {
	GetAll() []*types.Element
	Get(identifier string) (*types.Element, error)
}

// Static is a Provider over a fixed list of artifacts, sorted by identifier.
type Static struct {
	artifacts []*types.Element
	byID      map[string]*types.Element
}

// NewStatic returns a provider over artifacts. Identifiers must be unique.
func NewStatic(artifacts []*types.Element) (*Static, error) {
	s := &Static{byID: make(map[string]*types.Element, len(artifacts))}
	for _, a := range artifacts {
		if _, dup := s.byID[a.Identifier]; dup {
			return nil, fmt.Errorf("%w: %q", types.ErrDuplicateElement, a.Identifier)
		}
		s.byID[a.Identifier] = a
		s.artifacts = append(s.artifacts, a)
	}
	sort.Slice(s.artifacts, func(i, j int) bool { return s.artifacts[i].Identifier < s.artifacts[j].Identifier })
	return s, nil
}

// GetAll returns every artifact.
func (s *Static) GetAll() []*types.Element {
	return append([]*types.Element(nil), s.artifacts...)
}

// Get returns the artifact with the given identifier.
func (s *Static) Get(identifier string) (*types.Element, error) {
	a, ok := s.byID[identifier]
	if !ok {
		return nil, fmt.Errorf("%w: artifact %q", storage.ErrNotFound, identifier)
	}
	return a, nil
}

type builder func(args map[string]any) ([]*types.Element, error)

var builders = map[string]builder{
	"text":        loadText,
	"deep_text":   loadDeepText,
	"single_file": loadSingleFile,
	"mock":        func(map[string]any) ([]*types.Element, error) { return mockArtifacts(), nil },
}

// New builds the provider named by cfg and loads its artifacts.
func New(cfg types.ModuleConfiguration) (*Static, error) {
	b, ok := builders[cfg.Name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown artifact provider %q", config.ErrConfiguration, cfg.Name)
	}
	artifacts, err := b(cfg.Args)
	if err != nil {
		return nil, err
	}
	return NewStatic(artifacts)
}

func pathAndType(args map[string]any) (string, string, error) {
	path, err := config.RequiredString(args, "path")
	if err != nil {
		return "", "", err
	}
	typ, err := config.RequiredString(args, "artifact_type")
	if err != nil {
		return "", "", err
	}
	return path, typ, nil
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func readArtifact(path, identifier, typ string) (*types.Element, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("artifacts: failed to read %s: %w", path, err)
	}
	return types.NewArtifact(identifier, typ, string(content)), nil
}

// loadText reads every file of one directory; identifiers are file stems.
func loadText(args map[string]any) ([]*types.Element, error) {
	dir, typ, err := pathAndType(args)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("artifacts: failed to list %s: %w", dir, err)
	}
	var out []*types.Element
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		a, err := readArtifact(filepath.Join(dir, e.Name()), stem(e.Name()), typ)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// loadDeepText reads the files below a directory whose names end in one of
// the configured extensions; identifiers are slash separated paths relative
// to the directory.
func loadDeepText(args map[string]any) ([]*types.Element, error) {
	root, typ, err := pathAndType(args)
	if err != nil {
		return nil, err
	}
	extensions, err := config.StringList(args, "extensions", nil)
	if err != nil {
		return nil, err
	}
	if len(extensions) == 0 {
		return nil, fmt.Errorf("%w: missing required argument %q", config.ErrConfiguration, "extensions")
	}

	var out []*types.Element
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !hasAnySuffix(d.Name(), extensions) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		a, err := readArtifact(path, filepath.ToSlash(rel), typ)
		if err != nil {
			return err
		}
		out = append(out, a)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("artifacts: failed to walk %s: %w", root, err)
	}
	return out, nil
}

func hasAnySuffix(name string, suffixes []string) bool {
	for _, s := range suffixes {
		if strings.HasSuffix(name, s) {
			return true
		}
	}
	return false
}

// loadSingleFile reads one file as one artifact.
func loadSingleFile(args map[string]any) ([]*types.Element, error) {
	path, typ, err := pathAndType(args)
	if err != nil {
		return nil, err
	}
	a, err := readArtifact(path, stem(path), typ)
	if err != nil {
		return nil, err
	}
	return []*types.Element{a}, nil
}

func mockArtifacts() []*types.Element {
	return []*types.Element{
		types.NewArtifact("0", "requirement", "Lorem ipsum dolor sit amet"),
		types.NewArtifact("1", "requirement", "consetetur sadipscing elitr"),
		types.NewArtifact("2", "requirement", "sed diam nonumy eirmod tempor invidunt ut labore et dolore magna aliquyam erat"),
	}
}
