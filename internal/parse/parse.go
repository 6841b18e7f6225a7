// Package parse turns decompressed archive artifacts into kind-specific
// records. Each record carries a content hash over its canonical form.
package parse

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/congress-cli/internal/model"
	"github.com/sells-group/congress-cli/internal/pdftext"
)

// Input is one decompressed artifact.
type Input struct {
	Descriptor model.Descriptor
	Data       []byte
}

// Record is the output of a parser.
type Record interface {
	ContentHash() string
}

// Parser handles one format variant of one artifact kind.
type Parser interface {
	Variant() string
	Parse(ctx context.Context, in Input) (Record, error)
}

// Registry maps variant names (as used in the era table) to parsers.
type Registry struct {
	parsers map[string]Parser
}

// NewRegistry creates a registry holding every known variant. The extractor
// backs the PDF-based variants.
func NewRegistry(pdf pdftext.Extractor) *Registry {
	r := &Registry{parsers: make(map[string]Parser)}

	r.Register(&BillSourceParser{variant: VariantAllInfoTwoColumn, columns: 2})
	r.Register(&BillSourceParser{variant: VariantAllInfoThreeColumn, columns: 3})
	r.Register(&TextPageParser{})
	r.Register(&PlainTextParser{})
	r.Register(&PDFTextParser{pdf: pdf})
	r.Register(&EstimateParser{pdf: pdf})
	r.Register(&HouseVoteParser{})
	r.Register(&SenateVoteParser{})

	return r
}

// Register adds a parser, replacing any parser with the same variant.
func (r *Registry) Register(p Parser) {
	r.parsers[p.Variant()] = p
}

// Get returns the parser for a variant.
func (r *Registry) Get(variant string) (Parser, error) {
	p, ok := r.parsers[variant]
	if !ok {
		return nil, eris.Errorf("parse: unknown variant %q", variant)
	}
	return p, nil
}

// Known reports whether a variant is registered.
func (r *Registry) Known(variant string) bool {
	_, ok := r.parsers[variant]
	return ok
}

// Variants returns the registered variant names in sorted order.
func (r *Registry) Variants() []string {
	names := make([]string, 0, len(r.parsers))
	for name := range r.parsers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
