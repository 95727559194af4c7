package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTestConfig writes a config pointing all state at a temp directory
// with the static embedder, so commands run without network access.
func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "cognidex.yaml")
	cfg := fmt.Sprintf(`version: 1
storage:
  root: %s
  metadata_path: %s
embeddings:
  provider: static
  dimensions: 32
`, filepath.Join(dir, "indexes"), filepath.Join(dir, "metadata.db"))
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestRootCmd_Help_ListsSubcommands(t *testing.T) {
	out, err := execute(t, "--help")

	require.NoError(t, err)
	for _, sub := range []string{"init", "ingest", "upload", "query", "deprecate", "watch", "stats", "version"} {
		assert.Contains(t, out, sub)
	}
}

func TestRootCmd_InitWritesConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cognidex.yaml")

	out, err := execute(t, "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "chunking")

	// Refuses to overwrite without --force.
	_, err = execute(t, "init", path)
	require.Error(t, err)
}

func TestRootCmd_IngestQueryStats(t *testing.T) {
	cfg := writeTestConfig(t)
	t.Setenv("OPENAI_API_KEY", "")

	out, err := execute(t, "--plain", "--config", cfg,
		"ingest", "--tenant", "1", "--source-id", "guide-1",
		"--content", "Refunds are processed within five business days of the request.")
	require.NoError(t, err)
	assert.Contains(t, out, "Ingested guide-1")
	assert.Contains(t, out, "version 1")

	// Same version again is a no-op.
	out, err = execute(t, "--plain", "--config", cfg,
		"ingest", "--tenant", "1", "--source-id", "guide-1",
		"--content", "Refunds are processed within five business days of the request.")
	require.NoError(t, err)
	assert.Contains(t, out, "Already ingested guide-1")

	// Without a generation backend the answer degrades to a context excerpt.
	out, err = execute(t, "--plain", "--config", cfg,
		"query", "--tenant", "1", "refund processing time")
	require.NoError(t, err)
	assert.Contains(t, out, "chunk")
	assert.Contains(t, out, "Answer:")
	assert.Contains(t, out, "Based on the provided context:")

	out, err = execute(t, "--plain", "--config", cfg,
		"query", "--tenant", "1", "--no-answer", "refund processing time")
	require.NoError(t, err)
	assert.NotContains(t, out, "Answer:")

	out, err = execute(t, "--plain", "--config", cfg, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "tenant")
	assert.Contains(t, out, "1")
}

func TestRootCmd_DeprecateHidesDocumentFromQueries(t *testing.T) {
	cfg := writeTestConfig(t)
	t.Setenv("OPENAI_API_KEY", "")

	_, err := execute(t, "--plain", "--config", cfg,
		"ingest", "--tenant", "1", "--source-id", "old-guide",
		"--content", "The legacy deploy process uses the jump host.")
	require.NoError(t, err)

	out, err := execute(t, "--plain", "--config", cfg,
		"deprecate", "--tenant", "1", "--document", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Deprecated document 1")

	out, err = execute(t, "--plain", "--config", cfg,
		"query", "--tenant", "1", "legacy deploy process")
	require.NoError(t, err)
	assert.Contains(t, out, "No relevant information found in the knowledge base.")

	// Included but demoted when asked for.
	out, err = execute(t, "--plain", "--config", cfg,
		"query", "--tenant", "1", "--include-deprecated", "legacy deploy process")
	require.NoError(t, err)
	assert.Contains(t, out, "deprecated")
}

func TestRootCmd_QueryUnknownTenantFindsNothing(t *testing.T) {
	cfg := writeTestConfig(t)
	t.Setenv("OPENAI_API_KEY", "")

	out, err := execute(t, "--plain", "--config", cfg,
		"query", "--tenant", "42", "anything at all")

	require.NoError(t, err)
	assert.Contains(t, out, "No relevant information found in the knowledge base.")
}

func TestRootCmd_UploadRejectsUnsupportedExtension(t *testing.T) {
	cfg := writeTestConfig(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "payload.exe")
	require.NoError(t, os.WriteFile(path, []byte("binary"), 0o644))

	_, err := execute(t, "--plain", "--config", cfg,
		"upload", path, "--tenant", "1")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file type")
}

func TestRootCmd_UploadIngestsMarkdown(t *testing.T) {
	cfg := writeTestConfig(t)
	t.Setenv("OPENAI_API_KEY", "")
	dir := t.TempDir()
	path := filepath.Join(dir, "handbook.md")
	require.NoError(t, os.WriteFile(path, []byte("# Handbook\n\nOn-call rotates weekly."), 0o644))

	out, err := execute(t, "--plain", "--config", cfg,
		"upload", path, "--tenant", "2")

	require.NoError(t, err)
	assert.Contains(t, out, "Ingested")
	assert.Contains(t, out, "version 1")
}
