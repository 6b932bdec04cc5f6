package dashboard

import (
	"context"
	"log/slog"
)

// DBPool exposes the pool interface to tests.
type DBPool = dbPool

// WithNewPool overrides the pool constructor.
func WithNewPool(newPool func(ctx context.Context, dsn string) (DBPool, error)) PostgresOptions {
	return func(o *pgOptions) {
		o.newPool = newPool
	}
}

// WithLogger is an option to set the logger for the File source.
func WithLogger(l *slog.Logger) FileOptions {
	return func(o *fileOptions) {
		o.logger = l
	}
}
