package persona

import "errors"

var (
	// ErrUnknownPersona is returned when a name matches no catalog entry.
	ErrUnknownPersona = errors.New("unknown persona")
	// ErrInvalidCatalog is returned when a persona table cannot be loaded.
	ErrInvalidCatalog = errors.New("invalid persona catalog")
)
