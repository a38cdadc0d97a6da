package draft

import (
	"fmt"
	"log/slog"
)

// Store drivers accepted by Open.
const (
	DriverJSON   = "json"
	DriverSQLite = "sqlite"
)

// Open creates the store selected by driver. An empty driver means JSON.
func Open(driver, path string, logger *slog.Logger) (Store, error) {
	switch driver {
	case "", DriverJSON:
		return NewFileStore(path, logger)
	case DriverSQLite:
		return NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("draft store: unknown driver %q", driver)
	}
}
