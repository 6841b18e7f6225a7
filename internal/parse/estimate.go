package parse

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/sells-group/congress-cli/internal/pdftext"
)

// VariantCBOPDF is the cost estimate variant.
const VariantCBOPDF = "cbo-pdf"

// headerLines bounds how far into an estimate the publish date is searched.
const headerLines = 40

var (
	longDateRe = regexp.MustCompile(`\b(January|February|March|April|May|June|July|August|September|October|November|December)\s+[0-9]{1,2},\s+[0-9]{4}\b`)
	numDateRe  = regexp.MustCompile(`\b[0-9]{1,2}/[0-9]{1,2}/[0-9]{4}\b`)
	measureRe  = regexp.MustCompile(`^(H\.\s?R\.|S\.|H\.\s?J\.\s?Res\.|S\.\s?J\.\s?Res\.|H\.\s?Res\.|S\.\s?Res\.|H\.\s?Con\.\s?Res\.|S\.\s?Con\.\s?Res\.)\s?[0-9]+\b`)
)

// Estimate is a parsed cost estimate document.
type Estimate struct {
	VersionCode string     `json:"version_code"`
	Date        *time.Time `json:"date,omitempty"`
	Title       string     `json:"title,omitempty"`
	Text        string     `json:"-"`

	Hash string `json:"-"`
}

// ContentHash implements Record.
func (e *Estimate) ContentHash() string { return e.Hash }

// EstimateParser parses cbos/NN.pdf.gz.
type EstimateParser struct {
	pdf pdftext.Extractor
}

// Variant implements Parser.
func (p *EstimateParser) Variant() string { return VariantCBOPDF }

// Parse implements Parser. A document without a recognizable date is kept
// with the date absent.
func (p *EstimateParser) Parse(ctx context.Context, in Input) (Record, error) {
	body, err := extractPDF(ctx, p.pdf, in.Data)
	if err != nil {
		return nil, err
	}

	e := &Estimate{VersionCode: in.Descriptor.SubID, Text: body}
	lines := strings.SplitN(body, "\n", headerLines+1)
	if len(lines) > headerLines {
		lines = lines[:headerLines]
	}
	e.Date = findDate(lines)
	e.Title = findMeasureTitle(lines)

	e.Hash = hashRecord(struct {
		*Estimate
		Text string `json:"text"`
	}{e, canonicalText(body)})
	return e, nil
}

func findDate(lines []string) *time.Time {
	for _, line := range lines {
		m := longDateRe.FindString(line)
		if m == "" {
			m = numDateRe.FindString(line)
		}
		if m == "" {
			continue
		}
		t, err := dateparse.ParseIn(m, time.UTC)
		if err != nil {
			continue
		}
		d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		return &d
	}
	return nil
}

func findMeasureTitle(lines []string) string {
	for _, line := range lines {
		line = collapse(line)
		if measureRe.MatchString(line) {
			return truncate(line, 300)
		}
	}
	return ""
}
