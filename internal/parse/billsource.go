package parse

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/sells-group/congress-cli/internal/model"
	"github.com/sells-group/congress-cli/internal/resilience"
)

// Bill source variants.
const (
	VariantAllInfoTwoColumn   = "allinfo-two-column"
	VariantAllInfoThreeColumn = "allinfo-three-column"
)

const allInfoTitlePrefix = "All Info - "

var (
	selTitle        = cascadia.MustCompile("title")
	selHeading      = cascadia.MustCompile("h1.legDetail")
	selHeadingSpan  = cascadia.MustCompile("span")
	selOverviewRows = cascadia.MustCompile("div.overview_wrapper.bill div.overview table tr")
	selTH           = cascadia.MustCompile("th")
	selTD           = cascadia.MustCompile("td")
	selLink         = cascadia.MustCompile("a")
	selTracker      = cascadia.MustCompile("ol.bill_progress li.selected")
	selActions      = cascadia.MustCompile("#allActions-content table")
	selActionHeader = cascadia.MustCompile("thead th")
	selActionRows   = cascadia.MustCompile("tbody tr")
	selActionBy     = cascadia.MustCompile("span")
	selCosponsors   = cascadia.MustCompile("#cosponsors-content table tbody tr")
	selPolicyArea   = cascadia.MustCompile("#subjects-content .search-column-nav li")
	selSubjects     = cascadia.MustCompile("#subjects-content .search-column-main li")
	selTitleHeads   = cascadia.MustCompile("#titles-content h4")
	selMoreOnBill   = cascadia.MustCompile("div.tertiary li")
	selScript       = cascadia.MustCompile("script")
	selBody         = cascadia.MustCompile("body")
	selCommittees   = cascadia.MustCompile("#committees-content table")
	selRelated      = cascadia.MustCompile("#relatedBills-content table")
	selSummaries    = cascadia.MustCompile(`#allSummaries-content > div[id^="summary-"]`)
	selSummaryHead  = cascadia.MustCompile("h3")
	selParagraphs   = cascadia.MustCompile("p")
)

const congressGovBase = "https://www.congress.gov"

var (
	committeeHeader = []string{"committee / subcommittee", "date", "activity", "related documents"}
	relatedHeader   = []string{"bill", "latest title", "relationships to", "relationships identified by", "latest action"}
	billURLRe       = regexp.MustCompile(`/bill/(\d+)(?:st|nd|rd|th)-congress/([a-z-]+)/(\d+)`)
)

var actionDateLayouts = []string{"01/02/2006-3:04pm", "01/02/2006-3:04PM", "01/02/2006"}

// BillSource is the parsed content of a bill's all-info page.
type BillSource struct {
	Title      string          `json:"title,omitempty"`
	Sponsors   []model.Sponsor `json:"sponsors,omitempty"`
	Actions    []model.Action  `json:"actions,omitempty"`
	Status     string          `json:"status,omitempty"`
	PolicyArea string          `json:"policy_area,omitempty"`
	Subjects   []string        `json:"subjects,omitempty"`
	Titles     []string        `json:"titles,omitempty"`

	Committees         []model.CommitteeActivity `json:"committees,omitempty"`
	Related            []model.RelatedBill       `json:"related,omitempty"`
	Summaries          []model.Summary           `json:"summaries,omitempty"`
	AuthorityStatement string                    `json:"authority_statement,omitempty"`
	CBOEstimates       []model.Link              `json:"cbo_estimates,omitempty"`
	Reports            []model.Link              `json:"reports,omitempty"`

	Hash string `json:"-"`
}

// ContentHash implements Record.
func (b *BillSource) ContentHash() string { return b.Hash }

// BillSourceParser parses all-info pages. The action table layout depends on
// the era: older congresses carry no chamber column and name the acting body
// in an "Action By:" span instead.
type BillSourceParser struct {
	variant string
	columns int
}

// Variant implements Parser.
func (p *BillSourceParser) Variant() string { return p.variant }

// Parse implements Parser.
func (p *BillSourceParser) Parse(_ context.Context, in Input) (Record, error) {
	const op = "parse: bill source"

	doc, err := parseHTML(in.Data)
	if err != nil {
		return nil, resilience.New(resilience.ParseFailure, op, err)
	}

	pageTitle := text(first(doc, selTitle))
	if !strings.HasPrefix(pageTitle, allInfoTitlePrefix) {
		return nil, resilience.Newf(resilience.ParseFailure, op, "page title %q is not an all-info page", truncate(pageTitle, 80))
	}

	out := &BillSource{}
	titles, official := parseTitles(doc)
	out.Titles = titles
	out.Title = official
	if out.Title == "" {
		out.Title = headingTitle(doc)
	}

	if s, ok := overviewSponsor(doc); ok {
		out.Sponsors = append(out.Sponsors, s)
	}
	for _, row := range all(doc, selCosponsors) {
		cells := all(row, selTD)
		if len(cells) == 0 {
			continue
		}
		link := first(cells[0], selLink)
		s, ok := parseSponsor(text(cells[0]), attr(link, "href"), model.SponsorRoleCosponsor)
		if !ok {
			continue
		}
		if len(cells) > 1 {
			if d, ok := parseActionDate(text(cells[1])); ok {
				s.Date = &d
			}
		}
		out.Sponsors = append(out.Sponsors, s)
	}

	actions, err := p.parseActions(doc)
	if err != nil {
		return nil, resilience.New(resilience.ParseFailure, op, err)
	}
	out.Actions = actions

	out.Status = ownText(first(doc, selTracker))
	if n := first(doc, selPolicyArea); n != nil {
		out.PolicyArea = text(n)
	}
	for _, n := range all(doc, selSubjects) {
		if s := text(n); s != "" {
			out.Subjects = append(out.Subjects, s)
		}
	}

	if out.Committees, err = parseCommittees(doc); err != nil {
		return nil, resilience.New(resilience.ParseFailure, op, err)
	}
	if out.Related, err = parseRelated(doc); err != nil {
		return nil, resilience.New(resilience.ParseFailure, op, err)
	}
	out.Summaries = parseSummaries(doc)
	out.Reports = overviewReports(doc)
	out.AuthorityStatement, out.CBOEstimates = moreOnBill(doc)

	out.Hash = hashRecord(out)
	return out, nil
}

// parseTitles returns every listed title and the first official one.
func parseTitles(doc *html.Node) ([]string, string) {
	var titles []string
	official := ""
	for _, h := range all(doc, selTitleHeads) {
		p := nextElement(h)
		if p == nil || p.Data != "p" {
			continue
		}
		t := text(p)
		if t == "" {
			continue
		}
		titles = append(titles, t)
		if official == "" && strings.Contains(strings.ToLower(text(h)), "official title") {
			official = t
		}
	}
	return titles, official
}

// headingTitle takes the title from "<h1>H.R.1 - Lower Energy Costs Act<span>118th Congress</span></h1>".
func headingTitle(doc *html.Node) string {
	h := first(doc, selHeading)
	if h == nil {
		return ""
	}
	t := textWithout(h, selHeadingSpan)
	if _, after, ok := strings.Cut(t, " - "); ok {
		return strings.TrimSpace(after)
	}
	return t
}

func overviewSponsor(doc *html.Node) (model.Sponsor, bool) {
	for _, row := range all(doc, selOverviewRows) {
		if !strings.HasPrefix(text(first(row, selTH)), "Sponsor") {
			continue
		}
		td := first(row, selTD)
		if td == nil {
			return model.Sponsor{}, false
		}
		link := first(td, selLink)
		raw := text(td)
		if link != nil {
			raw = text(link)
		}
		s, ok := parseSponsor(raw, attr(link, "href"), model.SponsorRolePrimary)
		if !ok {
			return model.Sponsor{}, false
		}
		if _, after, found := strings.Cut(text(td), "(Introduced "); found {
			if d, ok := parseActionDate(strings.TrimSuffix(strings.TrimSpace(after), ")")); ok {
				s.Date = &d
			}
		}
		return s, true
	}
	return model.Sponsor{}, false
}

func (p *BillSourceParser) parseActions(doc *html.Node) ([]model.Action, error) {
	table := first(doc, selActions)
	if table == nil {
		return nil, nil
	}

	var header []string
	for _, th := range all(table, selActionHeader) {
		header = append(header, strings.ToLower(text(th)))
	}
	if err := p.checkHeader(header); err != nil {
		return nil, err
	}

	var actions []model.Action
	for _, row := range all(table, selActionRows) {
		cells := all(row, selTD)
		if len(cells) == 0 {
			continue
		}
		if len(cells) != p.columns {
			return nil, resilience.Newf(resilience.ParseFailure, "parse: actions", "row has %d cells, want %d", len(cells), p.columns)
		}
		date, ok := parseActionDate(text(cells[0]))
		if !ok {
			return nil, resilience.Newf(resilience.ParseFailure, "parse: actions", "malformed action date %q", text(cells[0]))
		}

		a := model.Action{Date: date}
		desc := cells[p.columns-1]
		if p.columns == 3 {
			a.Chamber, _ = model.ParseChamber(text(cells[1]))
		} else {
			a.Chamber = actionByChamber(desc)
		}
		a.Description = textWithout(desc, selActionBy)
		a.Links = links(desc)
		actions = append(actions, a)
	}

	// Pages list newest first. Reverse, then order by date keeping page order
	// for actions on the same date.
	for i, j := 0, len(actions)-1; i < j; i, j = i+1, j-1 {
		actions[i], actions[j] = actions[j], actions[i]
	}
	sort.SliceStable(actions, func(i, j int) bool { return actions[i].Date.Before(actions[j].Date) })
	for i := range actions {
		actions[i].Seq = i + 1
	}
	return actions, nil
}

func (p *BillSourceParser) checkHeader(header []string) error {
	want := []string{"date", "all actions"}
	if p.columns == 3 {
		want = []string{"date", "chamber", "all actions"}
	}
	if len(header) != len(want) {
		return resilience.Newf(resilience.ParseFailure, "parse: actions", "header %q does not match %s layout", header, p.variant)
	}
	for i := range want {
		if !strings.HasPrefix(header[i], want[i]) {
			return resilience.Newf(resilience.ParseFailure, "parse: actions", "header %q does not match %s layout", header, p.variant)
		}
	}
	return nil
}

// actionByChamber reads "Action By: House Judiciary" style spans.
func actionByChamber(cell *html.Node) model.Chamber {
	for _, span := range all(cell, selActionBy) {
		t := text(span)
		_, by, ok := strings.Cut(t, "Action By:")
		if !ok {
			continue
		}
		by = strings.TrimSpace(by)
		switch {
		case strings.HasPrefix(by, "House"):
			return model.ChamberHouse
		case strings.HasPrefix(by, "Senate"):
			return model.ChamberSenate
		}
	}
	return ""
}

func parseActionDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range actionDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
