package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/cognidex/cognidex/internal/store"
	"github.com/cognidex/cognidex/internal/ui"
)

func newStatsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show per-tenant knowledge base statistics",
		Long: `Display document, chunk and index entry counts per tenant.

A drift value means chunks are confirmed in metadata but missing from
the vector index; re-ingesting the affected documents repairs it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStats(cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

// statsOutput is the JSON output format for tenant stats.
type statsOutput struct {
	TenantID        int64 `json:"tenant_id"`
	Documents       int   `json:"documents"`
	Chunks          int   `json:"chunks"`
	ConfirmedChunks int   `json:"confirmed_chunks"`
	IndexEntries    int   `json:"index_entries"`
	Drift           int   `json:"drift"`
}

func runStats(cmd *cobra.Command, jsonOutput bool) error {
	app, err := openApp(cfgPath)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx := cmd.Context()
	tenants, err := app.meta.Tenants(ctx)
	if err != nil {
		return err
	}

	stats := make([]store.TenantStats, 0, len(tenants))
	for _, tenantID := range tenants {
		docs, err := app.meta.CountDocuments(ctx, tenantID)
		if err != nil {
			return err
		}
		confirmed, total, err := app.meta.CountChunks(ctx, tenantID)
		if err != nil {
			return err
		}
		entries, err := app.indexes.Count(tenantID)
		if err != nil {
			return err
		}
		stats = append(stats, store.TenantStats{
			TenantID:        tenantID,
			Documents:       docs,
			Chunks:          total,
			ConfirmedChunks: confirmed,
			IndexEntries:    entries,
		})
	}

	if jsonOutput {
		out := make([]statsOutput, len(stats))
		for i, s := range stats {
			out[i] = statsOutput{
				TenantID:        s.TenantID,
				Documents:       s.Documents,
				Chunks:          s.Chunks,
				ConfirmedChunks: s.ConfirmedChunks,
				IndexEntries:    s.IndexEntries,
				Drift:           s.ConsistencyDelta(),
			}
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	ui.NewRenderer(cmd.OutOrStdout(), plainOutput).TenantStats(stats)
	return nil
}
