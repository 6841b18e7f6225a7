// Package archive walks the raw artifact tree written by the crawler and
// opens individual artifacts.
package archive

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/congress-cli/internal/model"
)

// Stats counts what a walk saw besides the descriptors it emitted.
type Stats struct {
	Emitted      int64 `json:"emitted"`
	Unrecognized int64 `json:"unrecognized"`
	Unreadable   int64 `json:"unreadable"`
}

// Walker produces artifact descriptors in a stable order: congresses
// numerically, bill directories by (type, number), then a fixed order of
// files within each bill.
type Walker struct {
	root string
	log  *zap.Logger

	emitted      atomic.Int64
	unrecognized atomic.Int64
	unreadable   atomic.Int64
}

// NewWalker creates a walker over root, the directory holding one
// subdirectory per congress.
func NewWalker(root string) *Walker {
	return &Walker{
		root: root,
		log:  zap.L().With(zap.String("component", "archive.walker")),
	}
}

// Stats returns the counters accumulated so far.
func (w *Walker) Stats() Stats {
	return Stats{
		Emitted:      w.emitted.Load(),
		Unrecognized: w.unrecognized.Load(),
		Unreadable:   w.unreadable.Load(),
	}
}

// CheckpointAt returns the checkpoint that resumes right after d.
func CheckpointAt(d model.Descriptor) model.Checkpoint {
	return model.Checkpoint{
		Ordinal:     d.Ordinal,
		ArtifactKey: d.Key(),
		Congress:    d.Congress,
		BillDir:     CanonicalBillDir(d.BillType, d.BillNumber),
		UpdatedAt:   time.Now().UTC(),
	}
}

type walkState struct {
	from     model.Checkpoint
	fromBill BillDir
	resuming bool
	ordinal  int64
}

// Walk streams descriptors starting after from. The error channel receives
// at most one error: an unreadable root or cancellation. Subtrees ordered
// before the checkpoint are skipped by name without being listed.
func (w *Walker) Walk(ctx context.Context, from model.Checkpoint) (<-chan model.Descriptor, <-chan error) {
	outCh := make(chan model.Descriptor, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(outCh)
		defer close(errCh)

		if err := w.walk(ctx, from, outCh); err != nil {
			errCh <- err
		}
	}()

	return outCh, errCh
}

func (w *Walker) walk(ctx context.Context, from model.Checkpoint, out chan<- model.Descriptor) error {
	entries, err := os.ReadDir(w.root)
	if err != nil {
		return eris.Wrapf(err, "archive: read root %s", w.root)
	}

	st := &walkState{from: from, ordinal: from.Ordinal, resuming: !from.IsZero()}
	if st.resuming {
		bd, ok := parseBillDir(from.BillDir)
		if !ok {
			return eris.Errorf("archive: malformed checkpoint bill directory %q", from.BillDir)
		}
		st.fromBill = bd
	}

	type congressDir struct {
		number int
		name   string
	}
	var congresses []congressDir
	for _, e := range entries {
		n, ok := parseCongressDir(e.Name())
		if !ok || !e.IsDir() {
			w.skip(filepath.Join(w.root, e.Name()))
			continue
		}
		congresses = append(congresses, congressDir{number: n, name: e.Name()})
	}
	sort.Slice(congresses, func(i, j int) bool { return congresses[i].number < congresses[j].number })

	for _, c := range congresses {
		if st.resuming {
			if c.number < from.Congress {
				continue
			}
			if c.number > from.Congress {
				st.resuming = false
			}
		}
		if err := w.walkCongress(ctx, c.number, filepath.Join(w.root, c.name), st, out); err != nil {
			return err
		}
	}
	return nil
}

func (w *Walker) walkCongress(ctx context.Context, congress int, dir string, st *walkState, out chan<- model.Descriptor) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		w.unreadable.Add(1)
		w.log.Warn("unreadable congress directory", zap.String("path", dir), zap.Error(err))
		return nil
	}

	var bills []BillDir
	for _, e := range entries {
		bd, ok := parseBillDir(e.Name())
		if !ok || !e.IsDir() {
			w.skip(filepath.Join(dir, e.Name()))
			continue
		}
		bills = append(bills, bd)
	}
	sort.SliceStable(bills, func(i, j int) bool { return bills[i].less(bills[j]) })

	for _, bd := range bills {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "archive: walk cancelled")
		}

		skipThrough := ""
		if st.resuming {
			switch {
			case bd.less(st.fromBill):
				continue
			case st.fromBill.less(bd):
				st.resuming = false
			default:
				skipThrough = st.from.ArtifactKey
			}
		}

		descs := w.billArtifacts(congress, filepath.Join(dir, bd.Name), bd)
		if skipThrough != "" {
			descs = afterKey(descs, skipThrough)
			st.resuming = false
		}
		for _, d := range descs {
			st.ordinal++
			d.Ordinal = st.ordinal
			select {
			case out <- d:
				w.emitted.Add(1)
			case <-ctx.Done():
				return eris.Wrap(ctx.Err(), "archive: walk cancelled")
			}
		}
	}
	return nil
}

// afterKey drops descriptors up to and including key. When key is no longer
// present the whole directory is kept.
func afterKey(descs []model.Descriptor, key string) []model.Descriptor {
	for i, d := range descs {
		if d.Key() == key {
			return descs[i+1:]
		}
	}
	return descs
}

// billArtifacts lists one bill directory in walk order.
func (w *Walker) billArtifacts(congress int, dir string, bd BillDir) []model.Descriptor {
	base := model.Descriptor{Congress: congress, BillType: bd.Type, BillNumber: bd.Number}

	entries, err := os.ReadDir(dir)
	if err != nil {
		w.unreadable.Add(1)
		w.log.Warn("unreadable bill directory", zap.String("path", dir), zap.Error(err))
		return nil
	}

	var (
		source   *model.Descriptor
		textPage *model.Descriptor
		subdirs  = map[string]bool{}
	)
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		switch {
		case e.Name() == SourceFile && !e.IsDir():
			d := w.describe(base, model.KindBillSource, "", path, e)
			source = &d
		case e.Name() == TextPageFile && !e.IsDir():
			d := w.describe(base, model.KindBillTextHTML, "", path, e)
			textPage = &d
		case e.IsDir() && (e.Name() == TextsDir || e.Name() == EstimatesDir || e.Name() == VotesDir):
			subdirs[e.Name()] = true
		default:
			w.skip(path)
		}
	}

	var descs []model.Descriptor
	if source == nil {
		d := base
		d.Kind = model.KindBillSource
		d.Path = filepath.Join(dir, SourceFile)
		d.Missing = true
		source = &d
	}
	descs = append(descs, *source)
	if textPage != nil {
		descs = append(descs, *textPage)
	}
	if subdirs[TextsDir] {
		descs = append(descs, w.listSubdir(base, filepath.Join(dir, TextsDir), func(name string) (model.ArtifactKind, string, bool) {
			m := textFileRe.FindStringSubmatch(name)
			if m == nil {
				return "", "", false
			}
			if m[2] == "txt" {
				return model.KindBillTextTxt, m[1], true
			}
			return model.KindBillTextPDF, m[1], true
		})...)
	}
	if subdirs[EstimatesDir] {
		descs = append(descs, w.listSubdir(base, filepath.Join(dir, EstimatesDir), func(name string) (model.ArtifactKind, string, bool) {
			m := estimateRe.FindStringSubmatch(name)
			if m == nil {
				return "", "", false
			}
			return model.KindCostEstimate, m[1], true
		})...)
	}
	if subdirs[VotesDir] {
		descs = append(descs, w.listSubdir(base, filepath.Join(dir, VotesDir), func(name string) (model.ArtifactKind, string, bool) {
			m := voteFileRe.FindStringSubmatch(name)
			if m == nil {
				return "", "", false
			}
			kind := model.KindHouseVote
			if m[1] == string(model.ChamberSenate) {
				kind = model.KindSenateVote
			}
			return kind, m[1] + "-" + m[2], true
		})...)
	}
	return descs
}

type classifyFunc func(name string) (model.ArtifactKind, string, bool)

func (w *Walker) listSubdir(base model.Descriptor, dir string, classify classifyFunc) []model.Descriptor {
	entries, err := os.ReadDir(dir)
	if err != nil {
		w.unreadable.Add(1)
		w.log.Warn("unreadable artifact directory", zap.String("path", dir), zap.Error(err))
		return nil
	}
	var descs []model.Descriptor
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		if e.IsDir() {
			w.skip(path)
			continue
		}
		kind, sub, ok := classify(e.Name())
		if !ok {
			w.skip(path)
			continue
		}
		descs = append(descs, w.describe(base, kind, sub, path, e))
	}
	return descs
}

func (w *Walker) describe(base model.Descriptor, kind model.ArtifactKind, sub, path string, e fs.DirEntry) model.Descriptor {
	d := base
	d.Kind = kind
	d.SubID = sub
	d.Path = path
	info, err := e.Info()
	if err != nil {
		// Removed between listing and stat.
		if errors.Is(err, fs.ErrNotExist) {
			d.Missing = true
		}
		return d
	}
	d.Size = info.Size()
	d.ModTime = info.ModTime().UTC()
	return d
}

func (w *Walker) skip(path string) {
	w.unrecognized.Add(1)
	w.log.Debug("skipping unrecognized path", zap.String("path", path))
}
