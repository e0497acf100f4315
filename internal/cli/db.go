package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/cohortq/internal/store"
)

// EnvDatabase names the environment variable used as the default --db.
const EnvDatabase = "COHORTQ_DB"

// addDatabaseFlag registers --db on cmd, defaulting to $COHORTQ_DB.
func addDatabaseFlag(cmd *cobra.Command, target *string) {
	cmd.Flags().StringVar(target, "db", os.Getenv(EnvDatabase), "path to SQLite database (default $"+EnvDatabase+")")
}

// openStore opens the database named by path. An empty path is a command
// error.
func openStore(path string, logger *slog.Logger) (*store.Store, error) {
	if path == "" {
		return nil, NewExitError(ExitCommandError, "no database: pass --db or set "+EnvDatabase)
	}
	return store.Open(path, store.WithLogger(logger))
}
