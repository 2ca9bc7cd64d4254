// Package registry builds element stores from module configurations.
package registry

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/config"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/storage"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/storage/mock"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/storage/postgres"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/storage/sqlite"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/pkg/types"
)

// Deps carries process-level settings the stores may need.
type Deps struct {
	// DSN is the default PostgreSQL DSN when a postgres store has no dsn argument.
	DSN    string
	Logger *zap.Logger
}

type builder func(cfg types.ModuleConfiguration, deps Deps) (storage.ElementStore, error)

var builders = map[string]builder{
	"sqlite": buildSQLite,
	// chroma is accepted for pipeline files written for the persistent
	// vector store of earlier tooling; it maps onto the SQLite store.
	"chroma":   buildSQLite,
	"postgres": buildPostgres,
	"mock": func(types.ModuleConfiguration, Deps) (storage.ElementStore, error) {
		return mock.NewElementStore(), nil
	},
}

// Names returns the registered store names.
func Names() []string {
	out := make([]string, 0, len(builders))
	for n := range builders {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// New builds the element store named by cfg.
func New(cfg types.ModuleConfiguration, deps Deps) (storage.ElementStore, error) {
	b, ok := builders[cfg.Name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown element store %q", config.ErrConfiguration, cfg.Name)
	}
	return b(cfg, deps)
}

func buildSQLite(cfg types.ModuleConfiguration, deps Deps) (storage.ElementStore, error) {
	opts, err := storage.ParseOptions(cfg.Args)
	if err != nil {
		return nil, err
	}
	return sqlite.NewElementStore(cfg.Name, opts, deps.Logger)
}

func buildPostgres(cfg types.ModuleConfiguration, deps Deps) (storage.ElementStore, error) {
	opts, err := storage.ParseOptions(cfg.Args)
	if err != nil {
		return nil, err
	}
	dsn, err := config.String(cfg.Args, "dsn", deps.DSN)
	if err != nil {
		return nil, err
	}
	return postgres.NewElementStore(dsn, cfg.Name, opts, deps.Logger)
}
