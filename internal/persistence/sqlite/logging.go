package sqlite

import (
	"context"
	"log/slog"

	"github.com/example/conference-rooms/internal/logging"
)

func repositoryLogger(ctx context.Context, base *slog.Logger, repository, operation string, attrs ...any) *slog.Logger {
	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = base
	}
	if logger == nil {
		logger = slog.Default()
	}

	pairs := []any{"repository", repository, "operation", operation}
	return logger.With(append(pairs, attrs...)...)
}
