package postgres

import (
	"context"
	"fmt"
)

// TruncateForTest removes every stored collection.
// It is only compiled into tests.
func (s *ElementStore) TruncateForTest(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "TRUNCATE TABLE element_collections CASCADE")
	if err != nil {
		return fmt.Errorf("postgres: failed to truncate collections: %w", err)
	}
	return nil
}
