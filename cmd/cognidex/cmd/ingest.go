package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cognidex/cognidex/internal/extract"
	"github.com/cognidex/cognidex/internal/ingest"
	"github.com/cognidex/cognidex/internal/store"
	"github.com/cognidex/cognidex/internal/ui"
)

// ingestOptions holds CLI flags for ingest.
type ingestOptions struct {
	tenant   int64
	sourceID string
	version  int
	name     string
	content  string
	file     string
}

func newIngestCmd() *cobra.Command {
	var opts ingestOptions

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest content into a tenant's knowledge base",
		Long: `Ingest content for a tenant under an explicit source id and version.

Re-ingesting the same (tenant, source-id, version) is a no-op; bump the
version to publish updated content. Content comes from --content, --file,
or stdin.

Examples:
  cognidex ingest --tenant 1 --source-id wiki-42 --content "..."
  cognidex ingest --tenant 1 --source-id wiki-42 --version 2 --file page.md
  cat notes.txt | cognidex ingest --tenant 1 --source-id notes-7`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIngest(cmd, opts)
		},
	}

	cmd.Flags().Int64Var(&opts.tenant, "tenant", 0, "Tenant id (required)")
	cmd.Flags().StringVar(&opts.sourceID, "source-id", "", "Stable source identifier (required)")
	cmd.Flags().IntVar(&opts.version, "version", 1, "Content version")
	cmd.Flags().StringVar(&opts.name, "name", "", "Human-readable source name")
	cmd.Flags().StringVar(&opts.content, "content", "", "Content to ingest")
	cmd.Flags().StringVar(&opts.file, "file", "", "File to ingest (.txt, .md or .pdf)")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("source-id")

	return cmd
}

func runIngest(cmd *cobra.Command, opts ingestOptions) error {
	out := ui.NewRenderer(cmd.OutOrStdout(), plainOutput)

	content, err := resolveContent(cmd, opts)
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
		TenantID:   opts.tenant,
		SourceType: store.SourceTypeAPI,
		SourceID:   opts.sourceID,
		Version:    opts.version,
		Name:       opts.name,
		Content:    content,
	})
	if err != nil {
		return err
	}

	out.IngestResult(res)
	return nil
}

// resolveContent picks the content source: flag, file, or piped stdin.
func resolveContent(cmd *cobra.Command, opts ingestOptions) (string, error) {
	if opts.content != "" && opts.file != "" {
		return "", fmt.Errorf("--content and --file are mutually exclusive")
	}
	if opts.content != "" {
		return opts.content, nil
	}
	if opts.file != "" {
		ext := filepath.Ext(opts.file)
		if !extract.Allowed(ext) {
			return "", fmt.Errorf("unsupported file type %q (allowed: %s)",
				ext, strings.Join(extract.AllowedExtensions, ", "))
		}
		data, err := os.ReadFile(opts.file)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", opts.file, err)
		}
		return extract.Text(data, ext)
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("no content: pass --content, --file or pipe stdin")
	}
	return string(data), nil
}
