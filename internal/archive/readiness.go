package archive

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/congress-cli/internal/model"
	"github.com/sells-group/congress-cli/internal/resilience"
)

// Readiness decides whether the crawler has finished writing a file. A file
// is ready once its mtime is older than Settle, or when two stats Interval
// apart agree on size and mtime.
type Readiness struct {
	Settle   time.Duration
	Interval time.Duration

	now func() time.Time
}

// NewReadiness creates a readiness check.
func NewReadiness(settle, interval time.Duration) *Readiness {
	return &Readiness{Settle: settle, Interval: interval, now: time.Now}
}

// Ready re-stats d and reports whether it is safe to read. The returned
// descriptor carries the latest size and mtime.
func (r *Readiness) Ready(ctx context.Context, d model.Descriptor) (model.Descriptor, bool, error) {
	info, err := stat(d.Path)
	if err != nil {
		return d, false, err
	}
	d.Size = info.Size()
	d.ModTime = info.ModTime().UTC()

	now := time.Now
	if r.now != nil {
		now = r.now
	}
	if now().Sub(d.ModTime) >= r.Settle {
		return d, true, nil
	}

	timer := time.NewTimer(r.Interval)
	select {
	case <-ctx.Done():
		timer.Stop()
		return d, false, eris.Wrap(ctx.Err(), "archive: readiness cancelled")
	case <-timer.C:
	}

	again, err := stat(d.Path)
	if err != nil {
		return d, false, err
	}
	stable := again.Size() == d.Size && again.ModTime().UTC().Equal(d.ModTime)
	return d, stable, nil
}

func stat(path string) (fs.FileInfo, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, resilience.New(resilience.MissingArtifact, "archive: stat", eris.Wrapf(err, "stat %s", path))
	}
	if err != nil {
		return nil, eris.Wrapf(err, "archive: stat %s", path)
	}
	return info, nil
}
