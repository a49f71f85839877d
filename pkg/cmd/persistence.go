// Package cmd wires shared infrastructure for the shipline binaries.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/courierlab/shipline/pkg/persistence"
	"github.com/courierlab/shipline/pkg/persistence/file"
	"github.com/courierlab/shipline/pkg/persistence/postgresql"
	"github.com/courierlab/shipline/pkg/persistence/redis"
)

// NewPersistence builds a persistence layer from a database URL. The URL
// scheme picks the backend: postgres://, redis://, or a plain path (optionally
// file://) for the file store.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch parsePersistenceProvider(databaseURL) {
	case "postgresql":
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize PostgreSQL persistence: %w", err)
		}

		return p, nil
	case "redis":
		p, err := redis.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Redis persistence: %w", err)
		}

		return p, nil
	default:
		return file.NewPersistence(databaseURL), nil
	}
}

func parsePersistenceProvider(databaseURL string) string {
	scheme, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	switch scheme {
	case "postgres", "postgresql":
		return "postgresql"
	case "redis", "rediss":
		return "redis"
	default:
		return "file"
	}
}
