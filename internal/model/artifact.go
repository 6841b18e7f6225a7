package model

import (
	"fmt"
	"time"
)

// ArtifactKind names a raw file family in the archive.
type ArtifactKind string

const (
	KindBillSource   ArtifactKind = "bill_source"
	KindBillTextHTML ArtifactKind = "bill_text_html"
	KindBillTextTxt  ArtifactKind = "bill_text_txt"
	KindBillTextPDF  ArtifactKind = "bill_text_pdf"
	KindCostEstimate ArtifactKind = "cost_estimate"
	KindHouseVote    ArtifactKind = "house_vote"
	KindSenateVote   ArtifactKind = "senate_vote"
)

// AllKinds lists artifact kinds in walk order.
var AllKinds = []ArtifactKind{
	KindBillSource,
	KindBillTextHTML,
	KindBillTextTxt,
	KindBillTextPDF,
	KindCostEstimate,
	KindHouseVote,
	KindSenateVote,
}

// Valid reports whether k is a known artifact kind.
func (k ArtifactKind) Valid() bool {
	for _, kind := range AllKinds {
		if kind == k {
			return true
		}
	}
	return false
}

// Descriptor locates one artifact. It carries enough to rebuild the artifact
// key without opening the file.
type Descriptor struct {
	Ordinal    int64        `json:"ordinal"`
	Congress   int          `json:"congress"`
	BillType   BillType     `json:"bill_type"`
	BillNumber int          `json:"bill_number"`
	Kind       ArtifactKind `json:"kind"`
	SubID      string       `json:"sub_id,omitempty"`
	Path       string       `json:"path"`
	Size       int64        `json:"size"`
	ModTime    time.Time    `json:"mod_time"`
	Missing    bool         `json:"missing,omitempty"`
}

// Bill returns the key of the bill directory the artifact was found in.
func (d Descriptor) Bill() BillKey {
	return BillKey{Congress: d.Congress, Type: d.BillType, Number: d.BillNumber}
}

// Key is the stable artifact identity used by the ingestion log.
func (d Descriptor) Key() string {
	if d.SubID == "" {
		return fmt.Sprintf("%s/%s", d.Bill(), d.Kind)
	}
	return fmt.Sprintf("%s/%s/%s", d.Bill(), d.Kind, d.SubID)
}

// ArtifactStatus is the processing state of an artifact.
type ArtifactStatus string

const (
	ArtifactPending   ArtifactStatus = "pending"
	ArtifactSucceeded ArtifactStatus = "succeeded"
	ArtifactFailed    ArtifactStatus = "failed"
)

// Outcome is the result of an idempotent write.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeUpdated   Outcome = "updated"
	OutcomeUnchanged Outcome = "unchanged"
)

// ArtifactRecord is the audit entry of the latest processing attempt of one
// artifact. It is the source of truth for resume.
type ArtifactRecord struct {
	ArtifactKey   string         `json:"artifact_key"`
	Congress      int            `json:"congress"`
	BillType      BillType       `json:"bill_type"`
	BillNumber    int            `json:"bill_number"`
	Kind          ArtifactKind   `json:"kind"`
	SubID         string         `json:"sub_id,omitempty"`
	Path          string         `json:"path"`
	Size          int64          `json:"size"`
	ModTime       time.Time      `json:"mod_time"`
	ContentHash   string         `json:"content_hash,omitempty"`
	Status        ArtifactStatus `json:"status"`
	Outcome       Outcome        `json:"outcome,omitempty"`
	ErrorKind     string         `json:"error_kind,omitempty"`
	ErrorDetail   string         `json:"error_detail,omitempty"`
	Attempts      int            `json:"attempts"`
	LastAttemptAt time.Time      `json:"last_attempt_at"`
	RunID         string         `json:"run_id,omitempty"`
}

// NewArtifactRecord starts a record for d.
func NewArtifactRecord(d Descriptor) ArtifactRecord {
	return ArtifactRecord{
		ArtifactKey: d.Key(),
		Congress:    d.Congress,
		BillType:    d.BillType,
		BillNumber:  d.BillNumber,
		Kind:        d.Kind,
		SubID:       d.SubID,
		Path:        d.Path,
		Size:        d.Size,
		ModTime:     d.ModTime,
	}
}

// Checkpoint marks a position in the walk. Every descriptor up to and
// including Ordinal has been processed.
type Checkpoint struct {
	Ordinal     int64     `json:"ordinal"`
	ArtifactKey string    `json:"artifact_key"`
	Congress    int       `json:"congress"`
	BillDir     string    `json:"bill_dir"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// IsZero reports whether the checkpoint points at the start of the walk.
func (c Checkpoint) IsZero() bool {
	return c.Ordinal == 0
}

// RunStatus is the state of an ingestion run.
type RunStatus string

const (
	RunRunning  RunStatus = "running"
	RunComplete RunStatus = "complete"
	RunFailed   RunStatus = "failed"
)

// IngestRun is one invocation of the ingestion coordinator.
type IngestRun struct {
	ID          string         `json:"id"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Status      RunStatus      `json:"status"`
	Root        string         `json:"root"`
	Resume      bool           `json:"resume"`
	Summary     map[string]any `json:"summary,omitempty"`
	Error       string         `json:"error,omitempty"`
}
