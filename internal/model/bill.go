package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// BillType is the short designation code of a measure (hr, s, hjres, ...).
type BillType string

const (
	BillTypeHR      BillType = "hr"
	BillTypeHRes    BillType = "hres"
	BillTypeHJRes   BillType = "hjres"
	BillTypeHConRes BillType = "hconres"
	BillTypeS       BillType = "s"
	BillTypeSRes    BillType = "sres"
	BillTypeSJRes   BillType = "sjres"
	BillTypeSConRes BillType = "sconres"
)

var billTypes = map[BillType]struct {
	chamber Chamber
	print   string
}{
	BillTypeHR:      {ChamberHouse, "H.R."},
	BillTypeHRes:    {ChamberHouse, "H.Res."},
	BillTypeHJRes:   {ChamberHouse, "H.J.Res."},
	BillTypeHConRes: {ChamberHouse, "H.Con.Res."},
	BillTypeS:       {ChamberSenate, "S."},
	BillTypeSRes:    {ChamberSenate, "S.Res."},
	BillTypeSJRes:   {ChamberSenate, "S.J.Res."},
	BillTypeSConRes: {ChamberSenate, "S.Con.Res."},
}

// legacyBillTypes maps the long directory names written by older crawls.
var legacyBillTypes = map[string]BillType{
	"house-bill":                   BillTypeHR,
	"house-resolution":             BillTypeHRes,
	"house-joint-resolution":       BillTypeHJRes,
	"house-concurrent-resolution":  BillTypeHConRes,
	"senate-bill":                  BillTypeS,
	"senate-resolution":            BillTypeSRes,
	"senate-joint-resolution":      BillTypeSJRes,
	"senate-concurrent-resolution": BillTypeSConRes,
}

// ParseBillType accepts a short code or a legacy long directory name.
func ParseBillType(s string) (BillType, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if _, ok := billTypes[BillType(s)]; ok {
		return BillType(s), true
	}
	bt, ok := legacyBillTypes[s]
	return bt, ok
}

// Valid reports whether t is a known bill type.
func (t BillType) Valid() bool {
	_, ok := billTypes[t]
	return ok
}

// Chamber returns the originating chamber of the bill type.
func (t BillType) Chamber() Chamber {
	return billTypes[t].chamber
}

// Designation returns the printed form of a bill number, e.g. "H.R. 1319".
func (t BillType) Designation(number int) string {
	return fmt.Sprintf("%s %d", billTypes[t].print, number)
}

// BillKey identifies a bill within the archive.
type BillKey struct {
	Congress int      `json:"congress"`
	Type     BillType `json:"bill_type"`
	Number   int      `json:"number"`
}

func (k BillKey) String() string {
	return fmt.Sprintf("%d/%s/%d", k.Congress, k.Type, k.Number)
}

// IsZero reports whether the key is unset.
func (k BillKey) IsZero() bool {
	return k.Congress == 0 && k.Type == "" && k.Number == 0
}

// Designation returns the printed designation, e.g. "H.R. 1319".
func (k BillKey) Designation() string {
	return k.Type.Designation(k.Number)
}

// ParseBillKey parses the "congress/type/number" form produced by String.
func ParseBillKey(s string) (BillKey, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return BillKey{}, eris.Errorf("model: malformed bill key %q", s)
	}
	congress, err := strconv.Atoi(parts[0])
	if err != nil || congress <= 0 {
		return BillKey{}, eris.Errorf("model: malformed congress in bill key %q", s)
	}
	bt, ok := ParseBillType(parts[1])
	if !ok {
		return BillKey{}, eris.Errorf("model: unknown bill type in bill key %q", s)
	}
	number, err := strconv.Atoi(parts[2])
	if err != nil || number <= 0 {
		return BillKey{}, eris.Errorf("model: malformed number in bill key %q", s)
	}
	return BillKey{Congress: congress, Type: bt, Number: number}, nil
}

// SponsorRole distinguishes the primary sponsor from cosponsors.
type SponsorRole string

const (
	SponsorRolePrimary   SponsorRole = "sponsor"
	SponsorRoleCosponsor SponsorRole = "cosponsor"
)

// Sponsor is a member listed as sponsoring a bill.
type Sponsor struct {
	Role       SponsorRole `json:"role"`
	Title      string      `json:"title,omitempty"` // Rep., Sen., Del., Resident Commissioner
	Name       string      `json:"name"`
	Party      string      `json:"party,omitempty"`
	State      string      `json:"state,omitempty"`
	District   string      `json:"district,omitempty"`
	BioguideID string      `json:"bioguide_id,omitempty"`
	Date       *time.Time  `json:"date,omitempty"`
	Withdrawn  bool        `json:"withdrawn,omitempty"`
}

// Link is an anchor found on a bill page. URLs are absolute.
type Link struct {
	Text string `json:"text,omitempty"`
	URL  string `json:"url"`
}

// Action is one entry in a bill's action history.
type Action struct {
	Seq         int       `json:"seq"`
	Date        time.Time `json:"date"`
	Chamber     Chamber   `json:"chamber,omitempty"`
	Description string    `json:"description"`
	Links       []Link    `json:"links,omitempty"`
}

// CommitteeActivity is one row of a bill's committee table.
type CommitteeActivity struct {
	Name         string     `json:"name"`
	Subcommittee bool       `json:"subcommittee,omitempty"`
	Date         *time.Time `json:"date,omitempty"`
	Activity     string     `json:"activity"`
	Documents    []Link     `json:"documents,omitempty"`
}

// RelatedBill is a measure the bill page lists as related.
type RelatedBill struct {
	// Key is zero when the link does not name a bill of this archive.
	Key          BillKey `json:"key"`
	URL          string  `json:"url"`
	Relationship string  `json:"relationship"`
	IdentifiedBy string  `json:"identified_by,omitempty"`
}

// Summary is one CRS summary of a bill version.
type Summary struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// Bill is the canonical record of one measure.
type Bill struct {
	Key                BillKey             `json:"key"`
	Title              string              `json:"title,omitempty"`
	Sponsors           []Sponsor           `json:"sponsors,omitempty"`
	Actions            []Action            `json:"actions,omitempty"`
	Status             string              `json:"status,omitempty"`
	PolicyArea         string              `json:"policy_area,omitempty"`
	Subjects           []string            `json:"subjects,omitempty"`
	Titles             []string            `json:"titles,omitempty"`
	Committees         []CommitteeActivity `json:"committees,omitempty"`
	Related            []RelatedBill       `json:"related,omitempty"`
	Summaries          []Summary           `json:"summaries,omitempty"`
	AuthorityStatement string              `json:"authority_statement,omitempty"`
	CBOEstimates       []Link              `json:"cbo_estimates,omitempty"`
	Reports            []Link              `json:"reports,omitempty"`
	SourceModified     time.Time           `json:"source_modified"`
	ContentHash        string              `json:"content_hash"`
}

// EntityKind implements Entity.
func (b *Bill) EntityKind() EntityKind { return EntityBill }

// EntityKey implements Entity.
func (b *Bill) EntityKey() string { return b.Key.String() }

// LockKey implements Entity.
func (b *Bill) LockKey() string { return b.Key.String() }

// Hash implements Entity.
func (b *Bill) Hash() string { return b.ContentHash }

// Scope implements Entity.
func (b *Bill) Scope() (int, string) { return b.Key.Congress, b.Key.String() }

// Sponsor returns the primary sponsor, if one was parsed.
func (b *Bill) Sponsor() (Sponsor, bool) {
	for _, s := range b.Sponsors {
		if s.Role == SponsorRolePrimary {
			return s, true
		}
	}
	return Sponsor{}, false
}
