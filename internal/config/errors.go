package config

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration indicates an unknown module name, a missing role or a
	// missing or malformed argument. It is fatal at construction time.
	ErrConfiguration = errors.New("configuration error")

	// ErrNotSupported indicates a reserved configuration value that has no
	// implementation. It matches ErrConfiguration with errors.Is.
	ErrNotSupported = fmt.Errorf("%w: not supported", ErrConfiguration)
)
