package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/cohortq/internal/serializer"
	"github.com/roach88/cohortq/internal/store"
)

// SaveOptions holds flags for the save command.
type SaveOptions struct {
	*RootOptions
	Database    string
	Name        string
	Description string
	ID          string // replace an existing saved query
}

// SavedQueryInfo is the JSON form of a saved query's metadata.
type SavedQueryInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Seq         int64  `json:"seq"`
	Fingerprint string `json:"fingerprint"`
}

func infoOf(q store.SavedQuery) SavedQueryInfo {
	return SavedQueryInfo{
		ID:          q.ID,
		Name:        q.Name,
		Description: q.Description,
		Seq:         q.Seq,
		Fingerprint: q.Fingerprint,
	}
}

// NewSaveCommand creates the save command.
func NewSaveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SaveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "save <cohort-file>",
		Short: "Save a cohort selection",
		Long: `Serialize a cohort file in both modes and store it under a name.

The restricted document's fingerprint identifies the selection; the full
document is what restore reads back. Passing --id replaces that saved query.

Example:
  cohortq save adults.yaml --db ./cohorts.db --name adults`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSave(opts, args[0], cmd)
		},
	}

	addDatabaseFlag(cmd, &opts.Database)
	cmd.Flags().StringVar(&opts.Name, "name", "", "name of the saved query (required)")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description of the saved query")
	cmd.Flags().StringVar(&opts.ID, "id", "", "id of a saved query to replace")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func runSave(opts *SaveOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	logger := opts.logger()

	reg, err := loadSelection(path, logger)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidCohort, "failed to load cohort", err)
	}
	full, err := serializeSelection(reg, serializer.ModeFull)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeGeneric, "serialization failed", err)
	}
	restricted, err := serializeSelection(reg, serializer.ModeRestricted)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeGeneric, "serialization failed", err)
	}

	st, err := openStore(opts.Database, logger)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to open database", err)
	}
	defer st.Close()

	saved, err := st.SaveQuery(cmd.Context(), store.SavedQuery{
		ID:          opts.ID,
		Name:        opts.Name,
		Description: opts.Description,
		Full:        full,
		Restricted:  restricted,
	})
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to save query", err)
	}

	if opts.Format == "json" {
		return formatter.Success(infoOf(saved))
	}
	fmt.Fprintf(formatter.Writer, "✓ Saved %q as %s\n", saved.Name, saved.ID)
	formatter.VerboseLog("seq=%d fingerprint=%s", saved.Seq, saved.Fingerprint)
	return nil
}
