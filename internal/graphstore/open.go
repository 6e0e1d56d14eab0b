package graphstore

import (
	"context"

	apperrors "github.com/rohankatakam/graphrag/internal/errors"
	"github.com/sirupsen/logrus"
)

// Open constructs the Backend named by backend ("sqlite", "postgres", or
// "memory") against dsn, mirroring Config.GraphStore.Backend/DBID.
func Open(ctx context.Context, backend, dsn string, logger *logrus.Logger) (Backend, error) {
	switch backend {
	case "sqlite":
		return NewSQLiteBackend(dsn, logger)
	case "postgres":
		return NewPostgresBackend(ctx, dsn, logger)
	case "memory":
		return NewMemoryBackend(), nil
	default:
		return nil, apperrors.ConfigErrorf("unknown graph store backend %q", backend)
	}
}
