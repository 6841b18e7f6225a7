package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Chamber is a house of Congress.
type Chamber string

const (
	ChamberHouse  Chamber = "house"
	ChamberSenate Chamber = "senate"
)

// ParseChamber normalizes "House", "Senate" and their lowercase forms.
func ParseChamber(s string) (Chamber, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "house":
		return ChamberHouse, true
	case "senate":
		return ChamberSenate, true
	}
	return "", false
}

// Choice is how a member voted.
type Choice string

const (
	ChoiceYea       Choice = "yea"
	ChoiceNay       Choice = "nay"
	ChoicePresent   Choice = "present"
	ChoiceNotVoting Choice = "not_voting"
)

// Tally holds the printed totals of a roll call.
type Tally struct {
	Yea       int `json:"yea"`
	Nay       int `json:"nay"`
	Present   int `json:"present"`
	NotVoting int `json:"not_voting"`
}

// Add counts one choice.
func (t *Tally) Add(c Choice) {
	switch c {
	case ChoiceYea:
		t.Yea++
	case ChoiceNay:
		t.Nay++
	case ChoicePresent:
		t.Present++
	case ChoiceNotVoting:
		t.NotVoting++
	}
}

// Total returns the number of members accounted for.
func (t Tally) Total() int {
	return t.Yea + t.Nay + t.Present + t.NotVoting
}

// MemberVote is a single member's recorded position.
type MemberVote struct {
	MemberID string `json:"member_id,omitempty"`
	Name     string `json:"name"`
	Party    string `json:"party,omitempty"`
	State    string `json:"state,omitempty"`
	Choice   Choice `json:"choice"`
}

// VoteKey identifies a roll call.
type VoteKey struct {
	Congress int     `json:"congress"`
	Chamber  Chamber `json:"chamber"`
	RollCall int     `json:"roll_call"`
}

func (k VoteKey) String() string {
	return fmt.Sprintf("%d/%s/%d", k.Congress, k.Chamber, k.RollCall)
}

// ParseVoteKey parses the "congress/chamber/roll" form produced by String.
func ParseVoteKey(s string) (VoteKey, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return VoteKey{}, eris.Errorf("model: malformed vote key %q", s)
	}
	congress, err := strconv.Atoi(parts[0])
	if err != nil || congress <= 0 {
		return VoteKey{}, eris.Errorf("model: malformed congress in vote key %q", s)
	}
	chamber, ok := ParseChamber(parts[1])
	if !ok {
		return VoteKey{}, eris.Errorf("model: unknown chamber in vote key %q", s)
	}
	roll, err := strconv.Atoi(parts[2])
	if err != nil || roll <= 0 {
		return VoteKey{}, eris.Errorf("model: malformed roll call in vote key %q", s)
	}
	return VoteKey{Congress: congress, Chamber: chamber, RollCall: roll}, nil
}

// VoteRecord is one roll-call vote.
type VoteRecord struct {
	Key         VoteKey      `json:"key"`
	Date        time.Time    `json:"date"`
	Question    string       `json:"question,omitempty"`
	Result      string       `json:"result,omitempty"`
	Subject     string       `json:"subject,omitempty"`
	Designation string       `json:"designation,omitempty"`
	Tally       Tally        `json:"tally"`
	Members     []MemberVote `json:"members"`
	FiledUnder  *BillKey     `json:"filed_under,omitempty"`
	ContentHash string       `json:"content_hash"`
}

// EntityKind implements Entity.
func (v *VoteRecord) EntityKind() EntityKind { return EntityVote }

// EntityKey implements Entity.
func (v *VoteRecord) EntityKey() string { return v.Key.String() }

// LockKey implements Entity.
func (v *VoteRecord) LockKey() string { return "vote:" + v.Key.String() }

// Hash implements Entity.
func (v *VoteRecord) Hash() string { return v.ContentHash }

// Scope implements Entity. Votes do not belong to a bill until resolved.
func (v *VoteRecord) Scope() (int, string) { return v.Key.Congress, "" }

// LinkStatus is the outcome of vote-to-bill resolution.
type LinkStatus string

const (
	LinkResolved   LinkStatus = "resolved"
	LinkUnresolved LinkStatus = "unresolved"
	LinkAmbiguous  LinkStatus = "ambiguous"
)

// LinkCandidate is one bill action considered during resolution.
type LinkCandidate struct {
	Bill        BillKey `json:"bill"`
	ActionSeq   int     `json:"action_seq"`
	Score       float64 `json:"score"`
	TitleSim    float64 `json:"title_sim"`
	ActionSim   float64 `json:"action_sim"`
	Designation bool    `json:"designation"`
	Citation    bool    `json:"citation"`
}

// VoteLink is the resolved (or not) bill reference of a vote.
type VoteLink struct {
	Vote       VoteKey         `json:"vote"`
	Status     LinkStatus      `json:"status"`
	Bill       *BillKey        `json:"bill,omitempty"`
	ActionSeq  int             `json:"action_seq,omitempty"`
	Confidence float64         `json:"confidence"`
	Candidates []LinkCandidate `json:"candidates,omitempty"`
	UpdatedAt  time.Time       `json:"updated_at"`
}
