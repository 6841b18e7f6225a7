// Package router maps (artifact kind, congress) to the parser variant that
// understands the markup of that era.
package router

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/congress-cli/internal/model"
	"github.com/sells-group/congress-cli/internal/resilience"
)

// Unsupported marks a congress range no parser handles.
const Unsupported = "unsupported"

//go:embed eras.yaml
var defaultEras []byte

// Era is one contiguous congress range handled by a single variant.
type Era struct {
	Kind    model.ArtifactKind `yaml:"-"`
	From    int                `yaml:"from"`
	To      int                `yaml:"to"`
	Variant string             `yaml:"variant"`
}

// ID names the era for reporting, e.g. "bill_source:101-199".
func (e Era) ID() string {
	return fmt.Sprintf("%s:%d-%d", e.Kind, e.From, e.To)
}

// Supported reports whether a parser variant covers the era.
func (e Era) Supported() bool {
	return e.Variant != Unsupported
}

type tableFile struct {
	MaxCongress int                          `yaml:"max_congress"`
	Eras        map[model.ArtifactKind][]Era `yaml:"eras"`
}

// Table is a validated, closed era table.
type Table struct {
	maxCongress int
	eras        map[model.ArtifactKind][]Era
}

// Default returns the embedded era table.
func Default() (*Table, error) {
	return Parse(defaultEras)
}

// LoadFile reads an era table from path, or the embedded table when path is
// empty.
func LoadFile(path string) (*Table, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "router: read %s", path)
	}
	return Parse(data)
}

// Parse decodes and structurally validates an era table.
func Parse(data []byte) (*Table, error) {
	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "router: decode era table")
	}
	if f.MaxCongress <= 0 {
		return nil, eris.New("router: max_congress must be > 0")
	}

	t := &Table{maxCongress: f.MaxCongress, eras: make(map[model.ArtifactKind][]Era)}
	for _, kind := range model.AllKinds {
		eras, ok := f.Eras[kind]
		if !ok || len(eras) == 0 {
			return nil, eris.Errorf("router: no eras for kind %s", kind)
		}
		eras = append([]Era(nil), eras...)
		sort.Slice(eras, func(i, j int) bool { return eras[i].From < eras[j].From })
		for i := range eras {
			eras[i].Kind = kind
		}
		if err := checkCoverage(kind, eras, f.MaxCongress); err != nil {
			return nil, err
		}
		t.eras[kind] = eras
	}
	for kind := range f.Eras {
		if !kind.Valid() {
			return nil, eris.Errorf("router: unknown artifact kind %q", kind)
		}
	}
	return t, nil
}

func checkCoverage(kind model.ArtifactKind, eras []Era, maxCongress int) error {
	next := 1
	for _, e := range eras {
		if e.Variant == "" {
			return eris.Errorf("router: %s era %d-%d has no variant", kind, e.From, e.To)
		}
		if e.To < e.From {
			return eris.Errorf("router: %s era %d-%d is inverted", kind, e.From, e.To)
		}
		switch {
		case e.From > next:
			return eris.Errorf("router: %s has a gap at congresses %d-%d", kind, next, e.From-1)
		case e.From < next:
			return eris.Errorf("router: %s eras overlap at congress %d", kind, e.From)
		}
		next = e.To + 1
	}
	if next != maxCongress+1 {
		return eris.Errorf("router: %s eras end at %d, want %d", kind, next-1, maxCongress)
	}
	return nil
}

// Validate checks that every supported era names a known variant.
func (t *Table) Validate(known func(variant string) bool) error {
	for _, kind := range model.AllKinds {
		for _, e := range t.eras[kind] {
			if e.Supported() && !known(e.Variant) {
				return eris.Errorf("router: %s names unregistered variant %q", e.ID(), e.Variant)
			}
		}
	}
	return nil
}

// MaxCongress returns the last congress the table covers.
func (t *Table) MaxCongress() int {
	return t.maxCongress
}

// Eras returns the eras of kind in congress order.
func (t *Table) Eras(kind model.ArtifactKind) []Era {
	return append([]Era(nil), t.eras[kind]...)
}

// Select returns the era covering congress for kind. Unsupported eras and
// congresses outside the table are reported as UnsupportedFormatEra; the
// era is still returned when one covers the congress.
func (t *Table) Select(kind model.ArtifactKind, congress int) (Era, error) {
	eras, ok := t.eras[kind]
	if !ok {
		return Era{}, resilience.Newf(resilience.UnsupportedFormatEra, "router: select", "unknown artifact kind %q", kind)
	}
	i := sort.Search(len(eras), func(i int) bool { return eras[i].To >= congress })
	if congress < 1 || i == len(eras) || eras[i].From > congress {
		return Era{}, resilience.Newf(resilience.UnsupportedFormatEra, "router: select",
			"congress %d outside 1-%d for %s", congress, t.maxCongress, kind)
	}
	e := eras[i]
	if !e.Supported() {
		return e, resilience.Newf(resilience.UnsupportedFormatEra, "router: select",
			"no parser for %s in congress %d (era %s)", kind, congress, e.ID())
	}
	return e, nil
}
