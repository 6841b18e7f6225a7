package parse

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/sells-group/congress-cli/internal/model"
	"github.com/sells-group/congress-cli/internal/resilience"
)

// Sections of the all-info page beyond titles, sponsors and actions.

func absURL(href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "http") {
		return href
	}
	return congressGovBase + href
}

// links returns every anchor under n that carries an href.
func links(n *html.Node) []model.Link {
	var out []model.Link
	for _, a := range all(n, selLink) {
		href := attr(a, "href")
		if href == "" || strings.HasPrefix(href, "#") {
			continue
		}
		out = append(out, model.Link{Text: text(a), URL: absURL(href)})
	}
	return out
}

func tableHeader(table *html.Node) []string {
	var header []string
	for _, th := range all(table, selActionHeader) {
		header = append(header, strings.ToLower(text(th)))
	}
	return header
}

// matchHeader compares header cells by prefix, since some headers carry the
// bill designation ("Relationships to H.R.1").
func matchHeader(header, want []string) bool {
	if len(header) != len(want) {
		return false
	}
	for i := range want {
		if !strings.HasPrefix(header[i], want[i]) {
			return false
		}
	}
	return true
}

// parseCommittees reads the committee activity table. Rows without a
// heading cell continue the committee above them.
func parseCommittees(doc *html.Node) ([]model.CommitteeActivity, error) {
	table := first(doc, selCommittees)
	if table == nil {
		return nil, nil
	}
	header := tableHeader(table)
	if len(header) == 0 {
		return nil, nil
	}
	if !matchHeader(header, committeeHeader) {
		return nil, resilience.Newf(resilience.ParseFailure, "parse: committees", "unexpected header %q", header)
	}

	var (
		out  []model.CommitteeActivity
		name string
		sub  bool
	)
	for _, row := range all(table, selActionRows) {
		if th := first(row, selTH); th != nil {
			name = text(th)
			sub = strings.Contains(attr(row, "class"), "subcommittee")
		}
		cells := all(row, selTD)
		if len(cells) < 3 {
			continue
		}
		c := model.CommitteeActivity{
			Name:         name,
			Subcommittee: sub,
			Activity:     text(cells[1]),
			Documents:    links(cells[2]),
		}
		if d, ok := parseActionDate(text(cells[0])); ok {
			c.Date = &d
		}
		out = append(out, c)
	}
	return out, nil
}

// parseRelated reads the related bills table, skipping the expanded detail
// rows.
func parseRelated(doc *html.Node) ([]model.RelatedBill, error) {
	table := first(doc, selRelated)
	if table == nil {
		return nil, nil
	}
	header := tableHeader(table)
	if len(header) == 0 {
		return nil, nil
	}
	if !matchHeader(header, relatedHeader) {
		return nil, resilience.Newf(resilience.ParseFailure, "parse: related bills", "unexpected header %q", header)
	}

	var out []model.RelatedBill
	for _, row := range all(table, selActionRows) {
		if strings.Contains(attr(row, "class"), "relatedbill_exrow") {
			continue
		}
		cells := all(row, selTD)
		if len(cells) < 4 {
			continue
		}
		href := attr(first(cells[0], selLink), "href")
		if href == "" {
			continue
		}
		rel := model.RelatedBill{
			URL:          absURL(href),
			Relationship: text(cells[2]),
			IdentifiedBy: text(cells[3]),
		}
		if strings.HasPrefix(rel.Relationship, "Procedurally related") {
			rel.Relationship = "Procedurally related"
		}
		rel.Key, _ = billKeyFromURL(href)
		out = append(out, rel)
	}
	return out, nil
}

// billKeyFromURL reads "/bill/118th-congress/house-bill/2".
func billKeyFromURL(href string) (model.BillKey, bool) {
	m := billURLRe.FindStringSubmatch(href)
	if m == nil {
		return model.BillKey{}, false
	}
	congress, _ := strconv.Atoi(m[1])
	bt, ok := model.ParseBillType(m[2])
	if !ok {
		return model.BillKey{}, false
	}
	number, _ := strconv.Atoi(m[3])
	return model.BillKey{Congress: congress, Type: bt, Number: number}, true
}

// parseSummaries reads "Shown Here: Introduced in House (03/14/2023)" style
// summaries. Titles drop the prefix and the date.
func parseSummaries(doc *html.Node) []model.Summary {
	var out []model.Summary
	for _, div := range all(doc, selSummaries) {
		title := text(first(div, selSummaryHead))
		title = strings.TrimSpace(strings.TrimPrefix(title, "Shown Here:"))
		if before, _, ok := strings.Cut(title, "("); ok {
			title = strings.TrimSpace(before)
		}
		var paras []string
		for _, p := range all(div, selParagraphs) {
			if t := text(p); t != "" {
				paras = append(paras, t)
			}
		}
		out = append(out, model.Summary{Title: title, Text: strings.Join(paras, "\n")})
	}
	return out
}

func overviewReports(doc *html.Node) []model.Link {
	for _, row := range all(doc, selOverviewRows) {
		if strings.HasPrefix(strings.ToLower(text(first(row, selTH))), "committee reports") {
			return links(first(row, selTD))
		}
	}
	return nil
}

// moreOnBill reads the constitutional authority statement and the CBO
// estimate links. Both sit in popup scripts of the "More on This Bill" list.
func moreOnBill(doc *html.Node) (string, []model.Link) {
	var (
		authority string
		estimates []model.Link
	)
	for _, li := range all(doc, selMoreOnBill) {
		msg, ok := scriptMessage(li)
		if !ok {
			continue
		}
		switch attr(first(li, selLink), "id") {
		case "constAuthButton":
			authority = authorityText(msg)
		case "cboEstimateButton":
			for _, l := range links(msg) {
				if strings.Contains(l.Text, "Cost Estimates Search page") {
					continue
				}
				estimates = append(estimates, l)
			}
		}
	}
	return authority, estimates
}

// scriptMessage parses the HTML held in a "var msg = '...';" script.
func scriptMessage(n *html.Node) (*html.Node, bool) {
	src := rawText(first(n, selScript))
	_, rest, ok := strings.Cut(src, "var msg = '")
	if !ok {
		return nil, false
	}
	body, _, ok := strings.Cut(rest, "';")
	if !ok {
		return nil, false
	}
	body = strings.NewReplacer(`\"`, `"`, `\'`, `'`, `\/`, `/`).Replace(body)
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return nil, false
	}
	return first(doc, selBody), true
}

// authorityText flattens the statement, keeping line breaks and dropping
// bracketed page markers such as "[Page H1234]".
func authorityText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			switch {
			case c.Type == html.TextNode:
				b.WriteString(c.Data)
			case c.Data == "br":
				b.WriteByte('\n')
			case c.Data == "h3":
				return
			default:
				walk(c)
			}
		}
	}
	if n != nil {
		walk(n)
	}

	var lines []string
	for _, line := range strings.Split(b.String(), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "[") || strings.HasSuffix(line, "]") {
			continue
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
