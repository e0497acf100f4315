package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	Database string
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved cohort selections",
		Long: `List saved queries in the order they were saved.

Example:
  cohortq list --db ./cohorts.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(opts, cmd)
		},
	}

	addDatabaseFlag(cmd, &opts.Database)

	return cmd
}

func runList(opts *ListOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	st, err := openStore(opts.Database, opts.logger())
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to open database", err)
	}
	defer st.Close()

	queries, err := st.ListQueries(cmd.Context())
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to list queries", err)
	}

	infos := make([]SavedQueryInfo, len(queries))
	for i, q := range queries {
		infos[i] = infoOf(q)
	}

	if opts.Format == "json" {
		return formatter.Success(infos)
	}
	if len(infos) == 0 {
		fmt.Fprintln(formatter.Writer, "No saved queries.")
		return nil
	}
	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tDESCRIPTION")
	for _, q := range infos {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", q.ID, q.Name, q.Description)
	}
	tw.Flush()
	fmt.Fprint(formatter.Writer, b.String())
	return nil
}
