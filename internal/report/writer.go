package report

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/auspex/internal/common"
	"github.com/ternarybob/auspex/internal/models"
)

// Writer renders a run artifact into the configured formats and writes the
// files under the output directory, one file per format named by run ID.
type Writer struct {
	outputDir string
	formats   []string
	logger    arbor.ILogger
}

// NewWriter creates a report writer from configuration
func NewWriter(cfg *common.ReportConfig) *Writer {
	return &Writer{
		outputDir: cfg.OutputDir,
		formats:   cfg.Formats,
		logger:    common.GetLogger(),
	}
}

// Write renders every configured format and returns format -> file path.
// Markdown is assembled once and reused as the source for HTML and PDF.
func (w *Writer) Write(run *models.RunArtifact) (map[string]string, error) {
	markdown, err := Assemble(run)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(w.outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create report directory: %w", err)
	}

	title := fmt.Sprintf("Congestion Income Analysis: %s > %s", run.InDomain, run.OutDomain)
	paths := make(map[string]string, len(w.formats))

	for _, format := range w.formats {
		var (
			content []byte
			ext     string
		)
		switch format {
		case "markdown":
			content = []byte(markdown)
			ext = "md"
		case "html":
			content, err = RenderHTML(markdown, title)
			ext = "html"
		case "pdf":
			content, err = RenderPDF(markdown, title)
			ext = "pdf"
		default:
			return nil, fmt.Errorf("unsupported report format: %s", format)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to render %s report: %w", format, err)
		}

		path := filepath.Join(w.outputDir, fmt.Sprintf("%s.%s", run.ID, ext))
		if err := os.WriteFile(path, content, 0644); err != nil {
			return nil, fmt.Errorf("failed to write %s report: %w", format, err)
		}
		paths[format] = path

		w.logger.Debug().
			Str("format", format).
			Str("path", path).
			Int("bytes", len(content)).
			Msg("Report written")
	}

	return paths, nil
}
