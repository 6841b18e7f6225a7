package parse

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/sells-group/congress-cli/internal/model"
	"github.com/sells-group/congress-cli/internal/pdftext"
	"github.com/sells-group/congress-cli/internal/resilience"
)

// Bill text variants.
const (
	VariantTextPage  = "congressgov-text-page"
	VariantPlainText = "gpo-plain-text"
	VariantPDFText   = "gpo-pdf-text"
)

const textTitlePrefix = "Text - "

var (
	selTextContainer = cascadia.MustCompile("pre#billTextContainer")
	selTextOptions   = cascadia.MustCompile("#textSelector option")
)

var markerPatterns = []struct {
	kind model.MarkerKind
	re   *regexp.Regexp
}{
	{model.MarkerEnacting, regexp.MustCompile(`(?i)^be it enacted by the senate and house of representatives`)},
	{model.MarkerResolving, regexp.MustCompile(`^Resolved(,| by the (House|Senate))`)},
	{model.MarkerDivision, regexp.MustCompile(`^DIVISION [A-Z]{1,3}\b`)},
	{model.MarkerTitle, regexp.MustCompile(`^TITLE [IVXLCDM]+\b`)},
	{model.MarkerSection, regexp.MustCompile(`^SEC(TION)?\.?\s+[0-9]+[A-Za-z]?\.`)},
}

const maxMarkerLabel = 120

// TextVersion is one parsed bill text version.
type TextVersion struct {
	VersionCode string                `json:"version_code"`
	Label       string                `json:"label,omitempty"`
	Body        string                `json:"-"`
	Sections    []model.SectionMarker `json:"sections,omitempty"`
	Format      model.SourceFormat    `json:"format"`

	Hash string `json:"-"`
}

// ContentHash implements Record.
func (v *TextVersion) ContentHash() string { return v.Hash }

// finish derives markers and the hash. The body enters the hash in
// whitespace-canonical form.
func (v *TextVersion) finish() *TextVersion {
	v.Sections = findSections(v.Body)
	v.Hash = hashRecord(struct {
		VersionCode string                `json:"version_code"`
		Label       string                `json:"label"`
		Format      model.SourceFormat    `json:"format"`
		Sections    []model.SectionMarker `json:"sections"`
		Body        string                `json:"body"`
	}{v.VersionCode, v.Label, v.Format, v.Sections, canonicalText(v.Body)})
	return v
}

// TextPageParser parses the rendered text page (texts.html.gz). The page
// holds the version picked in its version selector.
type TextPageParser struct{}

// Variant implements Parser.
func (p *TextPageParser) Variant() string { return VariantTextPage }

// Parse implements Parser.
func (p *TextPageParser) Parse(_ context.Context, in Input) (Record, error) {
	const op = "parse: text page"

	doc, err := parseHTML(in.Data)
	if err != nil {
		return nil, resilience.New(resilience.ParseFailure, op, err)
	}
	if t := text(first(doc, selTitle)); !strings.HasPrefix(t, textTitlePrefix) {
		return nil, resilience.Newf(resilience.ParseFailure, op, "page title %q is not a text page", truncate(t, 80))
	}
	pre := first(doc, selTextContainer)
	if pre == nil {
		return nil, resilience.Newf(resilience.ParseFailure, op, "no text container")
	}
	body := normalizeNewlines(rawText(pre))
	if strings.TrimSpace(body) == "" {
		return nil, resilience.Newf(resilience.ParseFailure, op, "empty text container")
	}

	code, label := selectedVersion(all(doc, selTextOptions))
	v := &TextVersion{VersionCode: code, Label: label, Body: body, Format: model.FormatHTML}
	return v.finish(), nil
}

// selectedVersion numbers the selector options from 1 and returns the
// position and trailing path code ("ih", "eh", ...) of the selected one.
// Without options the page holds the only version, "01".
func selectedVersion(options []*html.Node) (string, string) {
	if len(options) == 0 {
		return "01", ""
	}
	idx := 0
	for i, o := range options {
		if hasAttr(o, "selected") {
			idx = i
			break
		}
	}
	value := strings.TrimRight(attr(options[idx], "value"), "/")
	return fmt.Sprintf("%02d", idx+1), path.Base(value)
}

// PlainTextParser parses texts/NN.txt.gz. The body is the decoded text with
// line endings normalized and nothing else touched.
type PlainTextParser struct{}

// Variant implements Parser.
func (p *PlainTextParser) Variant() string { return VariantPlainText }

// Parse implements Parser.
func (p *PlainTextParser) Parse(_ context.Context, in Input) (Record, error) {
	body := normalizeNewlines(string(in.Data))
	if strings.TrimSpace(body) == "" {
		return nil, resilience.Newf(resilience.ParseFailure, "parse: plain text", "empty text")
	}
	v := &TextVersion{VersionCode: in.Descriptor.SubID, Body: body, Format: model.FormatTxt}
	return v.finish(), nil
}

// PDFTextParser parses texts/NN.pdf.gz through the PDF extractor.
type PDFTextParser struct {
	pdf pdftext.Extractor
}

// Variant implements Parser.
func (p *PDFTextParser) Variant() string { return VariantPDFText }

// Parse implements Parser.
func (p *PDFTextParser) Parse(ctx context.Context, in Input) (Record, error) {
	body, err := extractPDF(ctx, p.pdf, in.Data)
	if err != nil {
		return nil, err
	}
	v := &TextVersion{VersionCode: in.Descriptor.SubID, Body: body, Format: model.FormatPDF}
	return v.finish(), nil
}

func extractPDF(ctx context.Context, pdf pdftext.Extractor, data []byte) (string, error) {
	if !bytes.Contains(data[:min(len(data), 1024)], []byte("%PDF-")) {
		return "", resilience.Newf(resilience.ParseFailure, "parse: pdf", "missing PDF header")
	}
	body, err := pdf.ExtractText(ctx, data)
	if err != nil {
		return "", err
	}
	body = pdftext.Clean(body)
	if strings.TrimSpace(body) == "" {
		return "", resilience.Newf(resilience.ParseFailure, "parse: pdf", "no text layer")
	}
	return body, nil
}

// normalizeNewlines converts CRLF and CR line endings to LF and replaces
// invalid UTF-8.
func normalizeNewlines(s string) string {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "\uFFFD")
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// findSections scans body line by line for structural headings. Offsets
// count runes.
func findSections(body string) []model.SectionMarker {
	var markers []model.SectionMarker
	offset := 0
	for _, line := range strings.SplitAfter(body, "\n") {
		trimmed := strings.TrimLeft(line, " \t")
		content := strings.TrimSpace(trimmed)
		for _, p := range markerPatterns {
			if p.re.MatchString(content) {
				lead := utf8.RuneCountInString(line) - utf8.RuneCountInString(trimmed)
				markers = append(markers, model.SectionMarker{
					Offset: offset + lead,
					Kind:   p.kind,
					Label:  truncate(collapse(content), maxMarkerLabel),
				})
				break
			}
		}
		offset += utf8.RuneCountInString(line)
	}
	return markers
}
