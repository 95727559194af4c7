package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cognidex/cognidex/internal/extract"
	"github.com/cognidex/cognidex/internal/ingest"
	"github.com/cognidex/cognidex/internal/store"
	"github.com/cognidex/cognidex/internal/ui"
)

func newUploadCmd() *cobra.Command {
	var tenant int64

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a file into a tenant's knowledge base",
		Long: `Upload a single file as a manual upload.

Each upload gets a fresh source id at version 1, so uploading the same
file twice creates two independent documents. Use 'cognidex ingest' with
an explicit source id when you need versioned re-ingestion.

Supported types: ` + strings.Join(extract.AllowedExtensions, ", ") + `

Examples:
  cognidex upload handbook.md --tenant 1
  cognidex upload notes.txt --tenant 3`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpload(cmd, tenant, args[0])
		},
	}

	cmd.Flags().Int64Var(&tenant, "tenant", 0, "Tenant id (required)")
	_ = cmd.MarkFlagRequired("tenant")

	return cmd
}

func runUpload(cmd *cobra.Command, tenant int64, path string) error {
	out := ui.NewRenderer(cmd.OutOrStdout(), plainOutput)

	ext := filepath.Ext(path)
	if !extract.Allowed(ext) {
		return fmt.Errorf("unsupported file type %q (allowed: %s)",
			ext, strings.Join(extract.AllowedExtensions, ", "))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	content, err := extract.Text(data, ext)
	if err != nil {
		return err
	}

	app, err := openApp(cfgPath)
	if err != nil {
		return err
	}
	defer app.Close()

	orch, err := app.orchestrator()
	if err != nil {
		return err
	}

	res, err := orch.Ingest(cmd.Context(), ingest.Request{
		TenantID:   tenant,
		SourceType: store.SourceTypeManualUpload,
		SourceID:   uuid.NewString(),
		Version:    1,
		Name:       filepath.Base(path),
		Content:    content,
	})
	if err != nil {
		return err
	}

	out.IngestResult(res)
	return nil
}
