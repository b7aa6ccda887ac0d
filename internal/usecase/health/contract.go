package health

import "context"

// DBPinger checks database availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// ModelChecker checks embedding model availability without forcing a load.
type ModelChecker interface {
	Dimension() int
}
