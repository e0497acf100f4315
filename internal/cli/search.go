package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/cohortq/internal/registry"
)

// SearchOptions holds flags for the search command.
type SearchOptions struct {
	*RootOptions
	Max int // result limit
}

// SearchHit is one search result.
type SearchHit struct {
	Kind string `json:"kind"`
	Text string `json:"text"`
}

// NewSearchCommand creates the search command.
func NewSearchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SearchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "search <catalog-file> [term]",
		Short: "Search the constraint catalog",
		Long: `Search the constraints offered by a catalog.

Matching is a case-insensitive substring match on each constraint's text.
Without a term the first --max entries are listed.

Examples:
  cohortq search catalog.yaml
  cohortq search catalog.yaml age --max 5`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			term := ""
			if len(args) == 2 {
				term = args[1]
			}
			return runSearch(opts, args[0], term, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Max, "max", registry.DefaultMaxResults, "maximum number of results")

	return cmd
}

func runSearch(opts *SearchOptions, catalogPath, term string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	catalog, err := LoadCatalog(catalogPath)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidCatalog, "failed to load catalog", err)
	}
	reg, err := catalog.Registry(opts.logger(), registry.WithMaxResults(opts.Max))
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidCatalog, "invalid catalog", err)
	}

	results := reg.Search(term)
	hits := make([]SearchHit, len(results))
	for i, c := range results {
		hits[i] = SearchHit{Kind: c.Kind().String(), Text: c.Text()}
	}
	formatter.VerboseLog("%d of %d catalog entries match %q", len(hits), reg.Len(), term)

	if opts.Format == "json" {
		return formatter.Success(hits)
	}
	if len(hits) == 0 {
		fmt.Fprintln(formatter.Writer, "No matches.")
		return nil
	}
	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	for _, h := range hits {
		fmt.Fprintf(tw, "%s\t%s\n", h.Kind, h.Text)
	}
	tw.Flush()
	fmt.Fprint(formatter.Writer, b.String())
	return nil
}
