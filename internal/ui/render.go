package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/cognidex/cognidex/internal/ingest"
	"github.com/cognidex/cognidex/internal/retrieve"
	"github.com/cognidex/cognidex/internal/store"
)

const snippetLimit = 160

// Renderer writes human-readable command output.
type Renderer struct {
	out    io.Writer
	styles Styles
}

// NewRenderer creates a renderer. Plain disables styling for pipes.
func NewRenderer(out io.Writer, plain bool) *Renderer {
	styles := DefaultStyles()
	if plain {
		styles = PlainStyles()
	}
	return &Renderer{out: out, styles: styles}
}

// IngestResult prints the outcome of one ingestion.
func (r *Renderer) IngestResult(res *ingest.Result) {
	verb := map[ingest.Status]string{
		ingest.StatusCreated:         "Ingested",
		ingest.StatusAlreadyIngested: "Already ingested",
		ingest.StatusRepaired:        "Repaired",
	}[res.Status]
	fmt.Fprintf(r.out, "%s %s (version %d, document %d, %d chunks)\n",
		r.styles.Success.Render(verb), res.SourceID, res.Version, res.DocumentID, res.Chunks)
}

// Results prints ranked retrieval results followed by the answer. An empty
// answer prints the chunks alone.
func (r *Renderer) Results(chunks []retrieve.ScoredChunk, answer string) {
	for i, sc := range chunks {
		header := fmt.Sprintf("%d. chunk %d", i+1, sc.Chunk.ID)
		score := fmt.Sprintf("score %.4f (sim %.4f, fresh %.2f)",
			sc.FinalScore, sc.Similarity, sc.Freshness)
		fmt.Fprintf(r.out, "%s  %s\n", r.styles.Header.Render(header), r.styles.Score.Render(score))
		if sc.Chunk.IsDeprecated {
			fmt.Fprintf(r.out, "   %s\n", r.styles.Warning.Render("deprecated"))
		}
		fmt.Fprintf(r.out, "   %s\n", r.styles.Dim.Render(snippet(sc.Chunk.ChunkText)))
	}
	if answer == "" {
		return
	}
	if len(chunks) > 0 {
		fmt.Fprintln(r.out)
	}
	fmt.Fprintf(r.out, "%s %s\n", r.styles.Label.Render("Answer:"), answer)
}

// TenantStats prints one stats row per tenant.
func (r *Renderer) TenantStats(stats []store.TenantStats) {
	if len(stats) == 0 {
		fmt.Fprintln(r.out, "no tenants ingested yet")
		return
	}
	fmt.Fprintln(r.out, r.styles.Header.Render("tenant  documents  chunks  confirmed  indexed"))
	for _, s := range stats {
		line := fmt.Sprintf("%6d  %9d  %6d  %9d  %7d",
			s.TenantID, s.Documents, s.Chunks, s.ConfirmedChunks, s.IndexEntries)
		if s.ConsistencyDelta() != 0 {
			line += "  " + r.styles.Warning.Render(fmt.Sprintf("drift %+d", -s.ConsistencyDelta()))
		}
		fmt.Fprintln(r.out, line)
	}
}

// Errorf prints a styled error line.
func (r *Renderer) Errorf(format string, args ...any) {
	fmt.Fprintf(r.out, "%s %s\n", r.styles.Error.Render("error:"), fmt.Sprintf(format, args...))
}

func snippet(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) > snippetLimit {
		text = text[:snippetLimit] + "..."
	}
	return text
}
