package parse

import (
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/sells-group/congress-cli/internal/archive"
	"github.com/sells-group/congress-cli/internal/model"
	"github.com/sells-group/congress-cli/internal/resilience"
)

// Vote variants.
const (
	VariantClerkEVS  = "clerk-evs"
	VariantSenateLIS = "senate-lis"
)

// Vote is a parsed roll-call record.
type Vote struct {
	Congress    int                `json:"congress"`
	Chamber     model.Chamber      `json:"chamber"`
	RollCall    int                `json:"roll_call"`
	Date        time.Time          `json:"date"`
	Question    string             `json:"question,omitempty"`
	Result      string             `json:"result,omitempty"`
	Subject     string             `json:"subject,omitempty"`
	Designation string             `json:"designation,omitempty"`
	Tally       model.Tally        `json:"tally"`
	Members     []model.MemberVote `json:"members"`

	Hash string `json:"-"`
}

// ContentHash implements Record.
func (v *Vote) ContentHash() string { return v.Hash }

// check verifies the record against its path and its own printed totals.
func (v *Vote) check(d model.Descriptor) error {
	const op = "parse: vote"

	chamber, roll, ok := archive.ParseVoteSubID(d.SubID)
	if !ok {
		return resilience.Newf(resilience.ParseFailure, op, "malformed vote identifier %q", d.SubID)
	}
	if chamber != v.Chamber {
		return resilience.Newf(resilience.ParseFailure, op, "record chamber %s, path says %s", v.Chamber, chamber)
	}
	if roll != v.RollCall {
		return resilience.Newf(resilience.ParseFailure, op, "record roll call %d, path says %d", v.RollCall, roll)
	}
	if v.Congress != d.Congress {
		return resilience.Newf(resilience.ParseFailure, op, "record congress %d, path says %d", v.Congress, d.Congress)
	}
	if len(v.Members) == 0 {
		return resilience.Newf(resilience.ParseFailure, op, "no member votes")
	}

	var counted model.Tally
	for _, m := range v.Members {
		counted.Add(m.Choice)
	}
	if counted != v.Tally {
		return resilience.Newf(resilience.ParseFailure, op,
			"tally mismatch: printed yea=%d nay=%d present=%d not_voting=%d, members yea=%d nay=%d present=%d not_voting=%d",
			v.Tally.Yea, v.Tally.Nay, v.Tally.Present, v.Tally.NotVoting,
			counted.Yea, counted.Nay, counted.Present, counted.NotVoting)
	}
	return nil
}

// finish checks v and stamps its content hash.
func (v *Vote) finish(d model.Descriptor) (Record, error) {
	if err := v.check(d); err != nil {
		return nil, err
	}
	v.Hash = hashRecord(v)
	return v, nil
}

func decodeXML(data []byte, v any) error {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	decoder.Strict = false
	decoder.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return nil, eris.Wrapf(err, "parse: unsupported charset %q", charset)
		}
		return enc.NewDecoder().Reader(input), nil
	}
	return decoder.Decode(v)
}

// count parses a printed total. Empty elements count as zero.
func count(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

func counts(values ...string) ([]int, error) {
	out := make([]int, len(values))
	for i, s := range values {
		n, err := count(s)
		if err != nil {
			return nil, eris.Wrapf(err, "parse: total %q", s)
		}
		out[i] = n
	}
	return out, nil
}

type houseRollCall struct {
	XMLName xml.Name `xml:"rollcall-vote"`
	Meta    struct {
		Congress string `xml:"congress"`
		RollCall string `xml:"rollcall-num"`
		LegisNum string `xml:"legis-num"`
		Question string `xml:"vote-question"`
		Result   string `xml:"vote-result"`
		Date     string `xml:"action-date"`
		Desc     string `xml:"vote-desc"`
		Totals   struct {
			Yea       string `xml:"yea-total"`
			Nay       string `xml:"nay-total"`
			Present   string `xml:"present-total"`
			NotVoting string `xml:"not-voting-total"`
		} `xml:"vote-totals>totals-by-vote"`
	} `xml:"vote-metadata"`
	Votes []struct {
		Legislator struct {
			ID    string `xml:"name-id,attr"`
			Party string `xml:"party,attr"`
			State string `xml:"state,attr"`
			Name  string `xml:",chardata"`
		} `xml:"legislator"`
		Vote string `xml:"vote"`
	} `xml:"vote-data>recorded-vote"`
}

// HouseVoteParser parses House roll calls. Archives hold either the Clerk
// electronic voting system XML or the clerk.house.gov vote page; the
// parser tells them apart by content.
type HouseVoteParser struct{}

// Variant implements Parser.
func (p *HouseVoteParser) Variant() string { return VariantClerkEVS }

// Parse implements Parser.
func (p *HouseVoteParser) Parse(_ context.Context, in Input) (Record, error) {
	const op = "parse: house vote"

	if looksLikeHTML(in.Data) {
		v, err := parseClerkPage(in)
		if err != nil {
			return nil, err
		}
		return v.finish(in.Descriptor)
	}

	var rc houseRollCall
	if err := decodeXML(in.Data, &rc); err != nil {
		return nil, resilience.New(resilience.ParseFailure, op, err)
	}
	m := rc.Meta

	nums, err := counts(m.Congress, m.RollCall, m.Totals.Yea, m.Totals.Nay, m.Totals.Present, m.Totals.NotVoting)
	if err != nil {
		return nil, resilience.New(resilience.ParseFailure, op, err)
	}
	date, err := time.Parse("2-Jan-2006", strings.TrimSpace(m.Date))
	if err != nil {
		return nil, resilience.New(resilience.ParseFailure, op, eris.Wrapf(err, "action date %q", m.Date))
	}

	v := &Vote{
		Congress:    nums[0],
		Chamber:     model.ChamberHouse,
		RollCall:    nums[1],
		Date:        date.UTC(),
		Question:    collapse(m.Question),
		Result:      collapse(m.Result),
		Subject:     collapse(m.Desc),
		Designation: collapse(m.LegisNum),
		Tally:       model.Tally{Yea: nums[2], Nay: nums[3], Present: nums[4], NotVoting: nums[5]},
	}
	for _, rv := range rc.Votes {
		choice, ok := houseChoice(rv.Vote)
		if !ok {
			return nil, resilience.Newf(resilience.ParseFailure, op, "unknown vote %q for %s", rv.Vote, rv.Legislator.Name)
		}
		v.Members = append(v.Members, model.MemberVote{
			MemberID: rv.Legislator.ID,
			Name:     collapse(rv.Legislator.Name),
			Party:    rv.Legislator.Party,
			State:    rv.Legislator.State,
			Choice:   choice,
		})
	}
	return v.finish(in.Descriptor)
}

func houseChoice(s string) (model.Choice, bool) {
	switch strings.ToLower(collapse(s)) {
	case "yea", "aye":
		return model.ChoiceYea, true
	case "nay", "no":
		return model.ChoiceNay, true
	case "present":
		return model.ChoicePresent, true
	case "not voting":
		return model.ChoiceNotVoting, true
	}
	return "", false
}

type senateRollCall struct {
	XMLName      xml.Name `xml:"roll_call_vote"`
	Congress     string   `xml:"congress"`
	VoteNumber   string   `xml:"vote_number"`
	VoteDate     string   `xml:"vote_date"`
	QuestionText string   `xml:"vote_question_text"`
	DocumentText string   `xml:"vote_document_text"`
	Question     string   `xml:"question"`
	Title        string   `xml:"vote_title"`
	Result       string   `xml:"vote_result"`
	Document     struct {
		Name  string `xml:"document_name"`
		Title string `xml:"document_title"`
	} `xml:"document"`
	Count struct {
		Yeas    string `xml:"yeas"`
		Nays    string `xml:"nays"`
		Present string `xml:"present"`
		Absent  string `xml:"absent"`
	} `xml:"count"`
	Members []struct {
		ID       string `xml:"lis_member_id"`
		Full     string `xml:"member_full"`
		Last     string `xml:"last_name"`
		First    string `xml:"first_name"`
		Party    string `xml:"party"`
		State    string `xml:"state"`
		VoteCast string `xml:"vote_cast"`
	} `xml:"members>member"`
}

// SenateVoteParser parses Senate legislative information system records.
type SenateVoteParser struct{}

// Variant implements Parser.
func (p *SenateVoteParser) Variant() string { return VariantSenateLIS }

// Parse implements Parser.
func (p *SenateVoteParser) Parse(_ context.Context, in Input) (Record, error) {
	const op = "parse: senate vote"

	var rc senateRollCall
	if err := decodeXML(in.Data, &rc); err != nil {
		return nil, resilience.New(resilience.ParseFailure, op, err)
	}

	nums, err := counts(rc.Congress, rc.VoteNumber, rc.Count.Yeas, rc.Count.Nays, rc.Count.Present, rc.Count.Absent)
	if err != nil {
		return nil, resilience.New(resilience.ParseFailure, op, err)
	}
	// "March 30, 2023, 12:00 PM": only the date part matters.
	rawDate := collapse(rc.VoteDate)
	if parts := strings.Split(rawDate, ","); len(parts) > 2 {
		rawDate = strings.Join(parts[:2], ",")
	}
	when, err := dateparse.ParseIn(rawDate, time.UTC)
	if err != nil {
		return nil, resilience.New(resilience.ParseFailure, op, eris.Wrapf(err, "vote date %q", rc.VoteDate))
	}

	subject := collapse(rc.Document.Title)
	if subject == "" {
		subject = collapse(rc.DocumentText)
	}
	if subject == "" {
		subject = collapse(rc.Title)
	}
	question := collapse(rc.QuestionText)
	if question == "" {
		question = collapse(rc.Question)
	}

	v := &Vote{
		Congress:    nums[0],
		Chamber:     model.ChamberSenate,
		RollCall:    nums[1],
		Date:        time.Date(when.Year(), when.Month(), when.Day(), 0, 0, 0, 0, time.UTC),
		Question:    question,
		Result:      collapse(rc.Result),
		Subject:     subject,
		Designation: collapse(rc.Document.Name),
		Tally:       model.Tally{Yea: nums[2], Nay: nums[3], Present: nums[4], NotVoting: nums[5]},
	}
	for _, m := range rc.Members {
		choice, ok := senateChoice(m.VoteCast)
		if !ok {
			return nil, resilience.Newf(resilience.ParseFailure, op, "unknown vote %q for %s", m.VoteCast, m.Full)
		}
		name := collapse(m.Last + ", " + m.First)
		if strings.TrimSpace(m.Last) == "" {
			name = collapse(m.Full)
		}
		v.Members = append(v.Members, model.MemberVote{
			MemberID: collapse(m.ID),
			Name:     name,
			Party:    collapse(m.Party),
			State:    collapse(m.State),
			Choice:   choice,
		})
	}
	return v.finish(in.Descriptor)
}

func senateChoice(s string) (model.Choice, bool) {
	s = strings.ToLower(collapse(s))
	switch {
	case s == "yea" || s == "guilty":
		return model.ChoiceYea, true
	case s == "nay" || s == "not guilty":
		return model.ChoiceNay, true
	case strings.HasPrefix(s, "present"):
		return model.ChoicePresent, true
	case s == "not voting" || s == "absent":
		return model.ChoiceNotVoting, true
	}
	return "", false
}
