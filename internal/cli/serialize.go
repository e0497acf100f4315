package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/cohortq/internal/cohortfile"
	"github.com/roach88/cohortq/internal/queryast"
	"github.com/roach88/cohortq/internal/registry"
	"github.com/roach88/cohortq/internal/serializer"
)

// SerializeOptions holds flags for the serialize command.
type SerializeOptions struct {
	*RootOptions
	Full   bool   // emit concept metadata
	Output string // output file path
}

// SerializeResult is the JSON payload of the serialize command.
type SerializeResult struct {
	Mode        string         `json:"mode"`
	Fingerprint string         `json:"fingerprint"`
	Document    map[string]any `json:"document"`
}

// NewSerializeCommand creates the serialize command.
func NewSerializeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SerializeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serialize <cohort-file>",
		Short: "Serialize a cohort file to a query document",
		Long: `Serialize a cohort selection to the backend's query document.

The cohort file is YAML (.yaml, .yml, .json) or CUE (.cue). Restricted
documents are accepted by the count and data endpoints; --full adds the
concept metadata needed to restore the selection later.

Examples:
  cohortq serialize adults.yaml
  cohortq serialize adults.cue --full -o adults.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSerialize(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Full, "full", false, "include concept metadata")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runSerialize(opts *SerializeOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	logger := opts.logger()

	mode := modeFor(opts.Full)
	reg, err := loadSelection(path, logger)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidCohort, "failed to load cohort", err)
	}
	doc, err := serializeSelection(reg, mode)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeGeneric, "serialization failed", err)
	}
	fingerprint, err := queryast.Fingerprint(doc)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeGeneric, "serialization failed", err)
	}
	logger.Debug("cohort serialized", "file", path, "mode", mode.String(), "fingerprint", fingerprint)

	if opts.Output != "" {
		data, err := queryast.MarshalIndent(doc)
		if err != nil {
			return formatter.Fail(ExitFailure, ErrCodeGeneric, "serialization failed", err)
		}
		if err := os.WriteFile(opts.Output, append(data, '\n'), 0644); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, "failed to write output", err)
		}
		formatter.VerboseLog("Wrote %s", opts.Output)
	}

	if opts.Format == "json" {
		return formatter.Success(SerializeResult{
			Mode:        mode.String(),
			Fingerprint: fingerprint,
			Document:    queryast.ToMap(doc),
		})
	}
	if opts.Output != "" {
		fmt.Fprintf(formatter.Writer, "✓ Wrote %s document to %s\n", mode, opts.Output)
		return nil
	}
	data, err := queryast.MarshalIndent(doc)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeGeneric, "serialization failed", err)
	}
	return formatter.Success(string(data))
}

func modeFor(full bool) serializer.Mode {
	if full {
		return serializer.ModeFull
	}
	return serializer.ModeRestricted
}

// loadSelection reads a cohort file and restores it into a fresh registry's
// root selection.
func loadSelection(path string, logger *slog.Logger) (*registry.Registry, error) {
	f, err := cohortfile.LoadFile(path)
	if err != nil {
		return nil, err
	}
	root, err := f.Build()
	if err != nil {
		var ce *cohortfile.Error
		if errors.As(err, &ce) && ce.File == "" {
			ce.File = path
		}
		return nil, err
	}
	reg := registry.New(registry.WithLogger(logger))
	reg.RestoreRoot(root)
	return reg, nil
}

// serializeSelection serializes the registry's cohort selection. An
// unconstrained selection serializes to true.
func serializeSelection(reg *registry.Registry, mode serializer.Mode) (queryast.Node, error) {
	doc, err := serializer.Serialize(reg.CohortSelection(), mode)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		doc = queryast.NewTrue()
	}
	return doc, nil
}
