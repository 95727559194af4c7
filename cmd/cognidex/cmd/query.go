package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/cognidex/cognidex/internal/retrieve"
	"github.com/cognidex/cognidex/internal/ui"
)

// queryOptions holds CLI flags for query.
type queryOptions struct {
	tenant            int64
	topK              int
	freshnessWeight   float64
	includeDeprecated bool
	noAnswer          bool
}

func newQueryCmd() *cobra.Command {
	var opts queryOptions

	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Query a tenant's knowledge base",
		Long: `Retrieve the most relevant chunks for a question and compose an answer.

Results are ranked by vector similarity weighted by content freshness.
Deprecated content is excluded unless --include-deprecated is set, in
which case it is heavily demoted instead.

Examples:
  cognidex query --tenant 1 "how do refunds work"
  cognidex query --tenant 1 --top-k 10 --freshness-weight 0.5 "deploy steps"
  cognidex query --tenant 1 --no-answer "release checklist"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().Int64Var(&opts.tenant, "tenant", 0, "Tenant id (required)")
	cmd.Flags().IntVarP(&opts.topK, "top-k", "k", 0, "Number of chunks to retrieve (default from config)")
	cmd.Flags().Float64Var(&opts.freshnessWeight, "freshness-weight", 0, "Freshness weight (default from config)")
	cmd.Flags().BoolVar(&opts.includeDeprecated, "include-deprecated", false, "Rank deprecated chunks instead of dropping them")
	cmd.Flags().BoolVar(&opts.noAnswer, "no-answer", false, "Show retrieved chunks without generating an answer")
	_ = cmd.MarkFlagRequired("tenant")

	return cmd
}

func runQuery(cmd *cobra.Command, question string, opts queryOptions) error {
	out := ui.NewRenderer(cmd.OutOrStdout(), plainOutput)

	app, err := openApp(cfgPath)
	if err != nil {
		return err
	}
	defer app.Close()

	engine, err := app.engine()
	if err != nil {
		return err
	}

	retrieval := retrieve.Options{
		TopK:              app.cfg.Retrieval.TopK,
		FreshnessWeight:   app.cfg.Retrieval.FreshnessWeight,
		ExcludeDeprecated: app.cfg.Retrieval.ExcludeDeprecated,
	}
	if opts.topK > 0 {
		retrieval.TopK = opts.topK
	}
	if cmd.Flags().Changed("freshness-weight") {
		retrieval.FreshnessWeight = opts.freshnessWeight
	}
	if opts.includeDeprecated {
		retrieval.ExcludeDeprecated = false
	}

	chunks, err := engine.Retrieve(cmd.Context(), opts.tenant, question, retrieval)
	if err != nil {
		return err
	}

	if opts.noAnswer {
		out.Results(chunks, "")
		return nil
	}

	text, err := app.composer().Compose(cmd.Context(), question, chunks)
	if err != nil {
		return err
	}
	out.Results(chunks, text)
	return nil
}
