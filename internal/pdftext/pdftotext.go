package pdftext

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"

	"github.com/rotisserie/eris"

	"github.com/sells-group/congress-cli/internal/resilience"
)

// PdfToText extracts text from PDFs using the poppler pdftotext CLI.
type PdfToText struct {
	binPath string
}

// NewPdfToText creates a PdfToText extractor. If binPath is empty, "pdftotext" is used.
func NewPdfToText(binPath string) *PdfToText {
	if binPath == "" {
		binPath = "pdftotext"
	}
	return &PdfToText{binPath: binPath}
}

// ExtractText writes pdf to a temp file and runs pdftotext -layout on it.
// A document pdftotext rejects is a ParseFailure.
func (p *PdfToText) ExtractText(ctx context.Context, pdf []byte) (string, error) {
	f, err := os.CreateTemp("", "congress-*.pdf")
	if err != nil {
		return "", eris.Wrap(err, "pdftext: create temp file")
	}
	defer os.Remove(f.Name()) //nolint:errcheck

	if _, err := f.Write(pdf); err != nil {
		f.Close() //nolint:errcheck
		return "", eris.Wrap(err, "pdftext: write temp file")
	}
	if err := f.Close(); err != nil {
		return "", eris.Wrap(err, "pdftext: close temp file")
	}

	cmd := exec.CommandContext(ctx, p.binPath, "-layout", "-enc", "UTF-8", f.Name(), "-")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", eris.Wrap(ctx.Err(), "pdftext: extraction interrupted")
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", resilience.Newf(resilience.ParseFailure, "pdftext: pdftotext", "exit %d: %s", exitErr.ExitCode(), stderr.String())
		}
		return "", eris.Wrapf(err, "pdftext: run %s", p.binPath)
	}

	return Clean(stdout.String()), nil
}
