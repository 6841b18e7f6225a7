package parse

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/sells-group/congress-cli/internal/model"
	"github.com/sells-group/congress-cli/internal/resilience"
)

// Selectors for the clerk.house.gov Votes/{year}{roll} page.
var (
	selVoteHeading = cascadia.MustCompile("h1")
	selVoteBody    = cascadia.MustCompile("body")
	selLabelled    = cascadia.MustCompile("p:haschild(strong)")
	selStrong      = cascadia.MustCompile("strong")
	selTables      = cascadia.MustCompile("table")
	selHeaderCells = cascadia.MustCompile("thead th")
	selBodyRows    = cascadia.MustCompile("tbody tr")
)

var (
	rollHeadingRe = regexp.MustCompile(`(?i)roll\s*call\s*(?:vote\s*)?(?:no\.?\s*)?(\d+)`)
	congressRe    = regexp.MustCompile(`(\d+)(?:st|nd|rd|th)\s+Congress`)
	clerkDateRe   = regexp.MustCompile(`\b\d{1,2}-[A-Za-z]{3}-\d{4}\b`)
)

const voteNotAvailable = "roll call vote not available"

// looksLikeHTML reports whether a vote artifact is a saved web page rather
// than an EVS XML record.
func looksLikeHTML(data []byte) bool {
	head := bytes.ToLower(data[:min(len(data), 1024)])
	if bytes.Contains(head, []byte("<rollcall-vote")) {
		return false
	}
	return bytes.Contains(head, []byte("<html")) || bytes.Contains(head, []byte("<!doctype html"))
}

// parseClerkPage reads the clerk.house.gov roll-call page. Congress falls
// back to the descriptor when the page does not print it.
func parseClerkPage(in Input) (*Vote, error) {
	const op = "parse: house vote page"

	doc, err := parseHTML(in.Data)
	if err != nil {
		return nil, resilience.New(resilience.ParseFailure, op, err)
	}

	heading := text(first(doc, selVoteHeading))
	if strings.Contains(strings.ToLower(heading), voteNotAvailable) {
		return nil, resilience.Newf(resilience.MissingArtifact, op, "clerk has no record: %q", heading)
	}
	m := rollHeadingRe.FindStringSubmatch(heading)
	if m == nil {
		return nil, resilience.Newf(resilience.ParseFailure, op, "heading %q names no roll call", truncate(heading, 80))
	}
	roll, _ := strconv.Atoi(m[1])

	body := text(first(doc, selVoteBody))
	congress := in.Descriptor.Congress
	if cm := congressRe.FindStringSubmatch(body); cm != nil {
		congress, _ = strconv.Atoi(cm[1])
	}
	rawDate := clerkDateRe.FindString(body)
	date, err := time.Parse("2-Jan-2006", rawDate)
	if err != nil {
		return nil, resilience.Newf(resilience.ParseFailure, op, "no vote date on page")
	}

	v := &Vote{
		Congress: congress,
		Chamber:  model.ChamberHouse,
		RollCall: roll,
		Date:     date.UTC(),
	}
	if _, desig, ok := strings.Cut(heading, "Bill Number:"); ok {
		v.Designation = strings.TrimSpace(desig)
	}
	for _, p := range all(doc, selLabelled) {
		label := strings.ToLower(strings.TrimSuffix(text(first(p, selStrong)), ":"))
		value := textWithout(p, selStrong)
		switch label {
		case "question":
			v.Question = value
		case "status", "result":
			v.Result = value
		case "bill title", "description":
			if v.Subject == "" {
				v.Subject = value
			}
		}
	}

	var haveTotals bool
	for _, table := range all(doc, selTables) {
		cols := headerIndex(table)
		switch {
		case cols.has("vote") && (cols.has("representative") || cols.has("member")):
			members, err := clerkMembers(table, cols)
			if err != nil {
				return nil, resilience.New(resilience.ParseFailure, op, err)
			}
			v.Members = append(v.Members, members...)
		case cols.has("yeas") || cols.has("ayes"):
			tally, ok, err := clerkTotals(table, cols)
			if err != nil {
				return nil, resilience.New(resilience.ParseFailure, op, err)
			}
			if ok {
				v.Tally = tally
				haveTotals = true
			}
		}
	}
	if !haveTotals {
		return nil, resilience.Newf(resilience.ParseFailure, op, "no totals row")
	}
	return v, nil
}

// columns maps lowercased header text to column index.
type columns map[string]int

func (c columns) has(name string) bool {
	_, ok := c[name]
	return ok
}

func (c columns) cell(cells []*html.Node, name string) string {
	i, ok := c[name]
	if !ok || i >= len(cells) {
		return ""
	}
	return text(cells[i])
}

func headerIndex(table *html.Node) columns {
	out := make(columns)
	for i, th := range all(table, selHeaderCells) {
		out[strings.ToLower(text(th))] = i
	}
	return out
}

func clerkTotals(table *html.Node, cols columns) (model.Tally, bool, error) {
	yea, nay := "yeas", "nays"
	if !cols.has(yea) {
		yea, nay = "ayes", "noes"
	}
	for _, row := range all(table, selBodyRows) {
		cells := all(row, selTD)
		if len(cells) == 0 || !strings.HasPrefix(strings.ToLower(text(cells[0])), "total") {
			continue
		}
		nums, err := counts(cols.cell(cells, yea), cols.cell(cells, nay), cols.cell(cells, "present"), cols.cell(cells, "not voting"))
		if err != nil {
			return model.Tally{}, false, err
		}
		return model.Tally{Yea: nums[0], Nay: nums[1], Present: nums[2], NotVoting: nums[3]}, true, nil
	}
	return model.Tally{}, false, nil
}

func clerkMembers(table *html.Node, cols columns) ([]model.MemberVote, error) {
	nameCol := "representative"
	if !cols.has(nameCol) {
		nameCol = "member"
	}
	var out []model.MemberVote
	for _, row := range all(table, selBodyRows) {
		cells := all(row, selTD)
		if len(cells) == 0 {
			continue
		}
		raw := cols.cell(cells, "vote")
		choice, ok := houseChoice(raw)
		if !ok {
			return nil, resilience.Newf(resilience.ParseFailure, "parse: house vote page", "unknown vote %q", raw)
		}
		mv := model.MemberVote{
			Name:   cols.cell(cells, nameCol),
			Party:  cols.cell(cells, "party"),
			State:  cols.cell(cells, "state"),
			Choice: choice,
		}
		if i := cols[nameCol]; i < len(cells) {
			href := attr(first(cells[i], selLink), "href")
			mv.MemberID = href[strings.LastIndex(href, "/")+1:]
		}
		out = append(out, mv)
	}
	return out, nil
}
