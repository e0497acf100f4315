package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/cohortq/internal/mapper"
	"github.com/roach88/cohortq/internal/queryast"
	"github.com/roach88/cohortq/internal/registry"
)

// RestoreOptions holds flags for the restore command.
type RestoreOptions struct {
	*RootOptions
	Database string
	Full     bool
}

// NewRestoreCommand creates the restore command.
func NewRestoreCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RestoreOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "restore <id>...",
		Short: "Restore saved selections and serialize them",
		Long: `Restore one or more saved queries into a single root selection and
print the serialized result.

Each saved query is mapped back to a constraint tree from its full
document. Groups are merged into the root in the order given.

Example:
  cohortq restore 0190f6b2-... 0190f6b3-... --db ./cohorts.db`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRestore(opts, args, cmd)
		},
	}

	addDatabaseFlag(cmd, &opts.Database)
	cmd.Flags().BoolVar(&opts.Full, "full", false, "include concept metadata")

	return cmd
}

func runRestore(opts *RestoreOptions, ids []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	logger := opts.logger()

	st, err := openStore(opts.Database, logger)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to open database", err)
	}
	defer st.Close()

	reg := registry.New(registry.WithLogger(logger))
	for _, id := range ids {
		q, err := st.GetQuery(cmd.Context(), id)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeStore, fmt.Sprintf("failed to load query %s", id), err)
		}
		tree, err := mapper.ToConstraint(q.Full)
		if err != nil {
			return formatter.Fail(ExitFailure, ErrCodeRestoreFailed, fmt.Sprintf("failed to restore query %s", id), err)
		}
		reg.RestoreRoot(tree)
		logger.Debug("query restored", "id", id, "name", q.Name)
	}

	mode := modeFor(opts.Full)
	doc, err := serializeSelection(reg, mode)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeGeneric, "serialization failed", err)
	}
	fingerprint, err := queryast.Fingerprint(doc)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeGeneric, "serialization failed", err)
	}

	if opts.Format == "json" {
		return formatter.Success(SerializeResult{
			Mode:        mode.String(),
			Fingerprint: fingerprint,
			Document:    queryast.ToMap(doc),
		})
	}
	data, err := queryast.MarshalIndent(doc)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeGeneric, "serialization failed", err)
	}
	return formatter.Success(string(data))
}
