package ingest

import "github.com/sells-group/congress-cli/internal/model"

// Decision is what resume mode does with one descriptor.
type Decision string

const (
	// DecideProcess runs the full parse and write path.
	DecideProcess Decision = "process"
	// DecideSkip trusts the previous successful attempt.
	DecideSkip Decision = "skip"
)

// Decide compares the latest ingestion record of an artifact with its
// current descriptor. Only a succeeded record whose size and mtime match the
// file on disk is skipped; anything else is reprocessed, and the writer
// reports unchanged content as unchanged.
func Decide(rec *model.ArtifactRecord, d model.Descriptor) Decision {
	if rec == nil || rec.Status != model.ArtifactSucceeded {
		return DecideProcess
	}
	if rec.Size != d.Size || !rec.ModTime.Equal(d.ModTime) {
		return DecideProcess
	}
	return DecideSkip
}
