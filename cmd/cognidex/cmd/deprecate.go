package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// deprecateOptions holds CLI flags for deprecate.
type deprecateOptions struct {
	tenant   int64
	document int64
	chunk    int64
	undo     bool
}

func newDeprecateCmd() *cobra.Command {
	var opts deprecateOptions

	cmd := &cobra.Command{
		Use:   "deprecate",
		Short: "Mark a document or chunk as deprecated",
		Long: `Flag a document's chunks (or a single chunk) as deprecated.

Deprecated content is excluded from queries by default, or heavily
demoted when --include-deprecated is passed to query. Use --undo to
clear the flag.

Examples:
  cognidex deprecate --tenant 1 --document 7
  cognidex deprecate --tenant 1 --chunk 42
  cognidex deprecate --tenant 1 --document 7 --undo`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDeprecate(cmd, opts)
		},
	}

	cmd.Flags().Int64Var(&opts.tenant, "tenant", 0, "Tenant id (required)")
	cmd.Flags().Int64Var(&opts.document, "document", 0, "Document id to deprecate")
	cmd.Flags().Int64Var(&opts.chunk, "chunk", 0, "Chunk id to deprecate")
	cmd.Flags().BoolVar(&opts.undo, "undo", false, "Clear the deprecation flag instead")
	_ = cmd.MarkFlagRequired("tenant")

	return cmd
}

func runDeprecate(cmd *cobra.Command, opts deprecateOptions) error {
	if (opts.document == 0) == (opts.chunk == 0) {
		return fmt.Errorf("pass exactly one of --document or --chunk")
	}

	app, err := openApp(cfgPath)
	if err != nil {
		return err
	}
	defer app.Close()

	deprecated := !opts.undo
	verb := "Deprecated"
	if opts.undo {
		verb = "Restored"
	}

	ctx := cmd.Context()
	if opts.document != 0 {
		if err := app.meta.SetDocumentDeprecated(ctx, opts.tenant, opts.document, deprecated); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s document %d\n", verb, opts.document)
		return nil
	}
	if err := app.meta.SetChunkDeprecated(ctx, opts.tenant, opts.chunk, deprecated); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s chunk %d\n", verb, opts.chunk)
	return nil
}
