// Package cmd holds the factories shared by the orchestrator subcommands.
package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/dukex/orchestrator/pkg/persistence"
	"github.com/dukex/orchestrator/pkg/persistence/file"
	"github.com/dukex/orchestrator/pkg/persistence/postgresql"
)

// NewPersistence opens the store named by databaseURL: PostgreSQL for
// postgres:// and postgresql:// URLs, the file store for anything else.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch parsePersistenceProvider(databaseURL) {
	case "postgresql":
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	default:
		return file.NewPersistence(logger, databaseURL)
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
	default:
		return "file"
	}
}
