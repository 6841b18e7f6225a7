package model

import (
	"fmt"
	"time"
)

// SourceFormat tags where a version body was taken from.
type SourceFormat string

const (
	FormatTxt  SourceFormat = "txt"
	FormatHTML SourceFormat = "html"
	FormatPDF  SourceFormat = "pdf"
)

// Rank orders formats by fidelity. Higher wins when two formats carry the
// same version.
func (f SourceFormat) Rank() int {
	switch f {
	case FormatTxt:
		return 3
	case FormatHTML:
		return 2
	case FormatPDF:
		return 1
	default:
		return 0
	}
}

// MarkerKind classifies a structural marker found in bill text.
type MarkerKind string

const (
	MarkerEnacting  MarkerKind = "enacting_clause"
	MarkerResolving MarkerKind = "resolving_clause"
	MarkerDivision  MarkerKind = "division"
	MarkerTitle     MarkerKind = "title"
	MarkerSection   MarkerKind = "section"
)

// SectionMarker points at a structural heading. Offset counts runes from
// the start of the body.
type SectionMarker struct {
	Offset int        `json:"offset"`
	Kind   MarkerKind `json:"kind"`
	Label  string     `json:"label"`
}

// BillVersion is one published text version of a bill.
type BillVersion struct {
	Bill         BillKey         `json:"bill"`
	VersionCode  string          `json:"version_code"`
	Label        string          `json:"label,omitempty"`
	Body         string          `json:"body"`
	Sections     []SectionMarker `json:"sections,omitempty"`
	SourceFormat SourceFormat    `json:"source_format"`
	ContentHash  string          `json:"content_hash"`
}

// EntityKind implements Entity.
func (v *BillVersion) EntityKind() EntityKind { return EntityBillVersion }

// EntityKey implements Entity.
func (v *BillVersion) EntityKey() string { return VersionKey(v.Bill, v.VersionCode) }

// LockKey implements Entity.
func (v *BillVersion) LockKey() string { return v.Bill.String() }

// Hash implements Entity.
func (v *BillVersion) Hash() string { return v.ContentHash }

// Scope implements Entity.
func (v *BillVersion) Scope() (int, string) { return v.Bill.Congress, v.Bill.String() }

// VersionKey renders the natural key of a bill version.
func VersionKey(bill BillKey, code string) string {
	return fmt.Sprintf("%s/%s", bill, code)
}

// CostEstimate is a budget-office cost estimate attached to a bill version.
type CostEstimate struct {
	Bill        BillKey    `json:"bill"`
	VersionCode string     `json:"version_code"`
	Date        *time.Time `json:"date,omitempty"`
	Title       string     `json:"title,omitempty"`
	Text        string     `json:"text"`
	ContentHash string     `json:"content_hash"`
}

// EntityKind implements Entity.
func (e *CostEstimate) EntityKind() EntityKind { return EntityCostEstimate }

// EntityKey implements Entity. An absent date renders as "-".
func (e *CostEstimate) EntityKey() string {
	date := "-"
	if e.Date != nil {
		date = e.Date.Format(time.DateOnly)
	}
	return fmt.Sprintf("%s/%s/%s", e.Bill, e.VersionCode, date)
}

// LockKey implements Entity.
func (e *CostEstimate) LockKey() string { return e.Bill.String() }

// Hash implements Entity.
func (e *CostEstimate) Hash() string { return e.ContentHash }

// Scope implements Entity.
func (e *CostEstimate) Scope() (int, string) { return e.Bill.Congress, e.Bill.String() }
