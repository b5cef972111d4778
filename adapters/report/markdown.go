package report

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"fctarget/internal/coords"
	"fctarget/ports"
)

// MarkdownWriter writes <dir>/<run>.md and, when HTML is set, <dir>/<run>.html
type MarkdownWriter struct {
	dir  string
	HTML bool
}

// NewMarkdownWriter creates a markdown writer rooted at dir
func NewMarkdownWriter(dir string, withHTML bool) *MarkdownWriter {
	return &MarkdownWriter{dir: dir, HTML: withHTML}
}

// Path returns the markdown path of a run
func (w *MarkdownWriter) Path(r *ports.Report) string {
	return filepath.Join(w.dir, baseName(r)+".md")
}

// Publish renders and saves the documents
func (w *MarkdownWriter) Publish(ctx context.Context, r *ports.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := w.Path(r)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}

	md := Markdown(r)
	if err := os.WriteFile(path, md, 0o644); err != nil {
		return fmt.Errorf("write markdown report: %w", err)
	}
	if !w.HTML {
		return nil
	}
	htmlPath := strings.TrimSuffix(path, ".md") + ".html"
	if err := os.WriteFile(htmlPath, ToHTML(md, "FC target "+r.RunID.String()), 0o644); err != nil {
		return fmt.Errorf("write html report: %w", err)
	}
	return nil
}

// ToHTML renders markdown as a complete HTML page
func ToHTML(md []byte, title string) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	renderer := html.NewRenderer(html.RendererOptions{
		Flags: html.CommonFlags | html.CompletePage,
		Title: title,
	})
	return markdown.ToHTML(md, p, renderer)
}

// Markdown renders the report body
func Markdown(r *ports.Report) []byte {
	var b bytes.Buffer

	fmt.Fprintf(&b, "# FC target report %s\n\n", r.RunID)
	fmt.Fprintf(&b, "**Status:** %s\n\n", r.Status)

	if r.Selected != nil {
		fmt.Fprintf(&b, "**Target coordinate:** %s\n\n", coords.Format(r.Selected.Target))
	} else {
		b.WriteString("No cluster survived the permutation threshold.\n\n")
	}

	b.WriteString("## Inputs\n\n")
	b.WriteString("| Parameter | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Time series | %s |\n", r.Parameters.TimeSeries)
	fmt.Fprintf(&b, "| Seed mask | %s |\n", r.Parameters.SeedMask)
	fmt.Fprintf(&b, "| Target mask | %s |\n", r.Parameters.TargetMask)
	fmt.Fprintf(&b, "| Permutations | %d |\n", r.Parameters.Permutations)
	fmt.Fprintf(&b, "| Alpha | %g |\n", r.Parameters.Alpha)
	fmt.Fprintf(&b, "| Min cluster voxels | %d |\n", r.Parameters.MinClusterVoxels)
	fmt.Fprintf(&b, "| Connectivity | NN=%d |\n", r.Parameters.Connectivity)
	fmt.Fprintf(&b, "| Seed | %d |\n\n", r.Parameters.Seed)

	b.WriteString("## Null distribution\n\n")
	fmt.Fprintf(&b, "- Trials completed: %d of %d (%s)\n", r.TrialsCompleted(), r.Parameters.Permutations, r.Skipped)
	fmt.Fprintf(&b, "- Threshold |r| > %.4f (percentile %.1f)\n", r.Threshold.Value, r.Threshold.Percentile)
	fmt.Fprintf(&b, "- Null max |r|: mean %.4f, sd %.4f, p95 %.4f, p99 %.4f\n", r.Null.Mean, r.Null.StdDev, r.Null.Percentile95, r.Null.Percentile99)
	fmt.Fprintf(&b, "- Observed: %d/%d voxels defined, max |r| %.4f, %d above threshold\n\n",
		r.Observed.DefinedVoxels, r.Observed.TargetVoxels, r.Observed.MaxAbs, r.Observed.SupraThreshold)

	if len(r.Clusters) > 0 {
		b.WriteString("## Clusters\n\n")
		b.WriteString("| Rank | Size | Peak | Sign | Center (native) | Target |\n|---|---|---|---|---|---|\n")
		for _, tc := range r.Clusters {
			c := tc.Cluster
			fmt.Fprintf(&b, "| %d | %d | %.4f | %s | %s | %s |\n",
				c.Rank, c.Size, c.Peak, c.Sign, coords.Format(c.CenterOfMass), coords.Format(tc.Target))
		}
		b.WriteString("\n")
	}
	return b.Bytes()
}
