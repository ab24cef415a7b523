package diag

import (
	"fmt"
	"sort"

	"github.com/snrtools/salc/pkg/token"
)

type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

func (s Severity) String() string {
	if s == SeverityWarning {
		return "warning"
	}
	return "error"
}

// Label attaches a note to a secondary location, e.g. "first defined here".
type Label struct {
	Message string
	Span    token.Span
}

type Diagnostic struct {
	Severity Severity
	Message  string
	Span     token.Span
	Labels   []Label
}

func (d Diagnostic) WithLabel(msg string, span token.Span) Diagnostic {
	d.Labels = append(d.Labels, Label{Message: msg, Span: span})
	return d
}

// Errorf builds an error diagnostic without recording it, so labels can be
// attached before it is added to a bag.
func Errorf(span token.Span, format string, args ...interface{}) Diagnostic {
	return Diagnostic{Severity: SeverityError, Message: fmt.Sprintf(format, args...), Span: span}
}

// Warnf builds a warning diagnostic without recording it.
func Warnf(span token.Span, format string, args ...interface{}) Diagnostic {
	return Diagnostic{Severity: SeverityWarning, Message: fmt.Sprintf(format, args...), Span: span}
}

// Bag accumulates diagnostics across compilation stages. Stages never abort
// on error; they record it here and produce placeholder results so later
// stages still run.
type Bag struct {
	diags []Diagnostic
}

func (b *Bag) Errorf(span token.Span, format string, args ...interface{}) {
	b.diags = append(b.diags, Errorf(span, format, args...))
}

func (b *Bag) Warnf(span token.Span, format string, args ...interface{}) {
	b.diags = append(b.diags, Warnf(span, format, args...))
}

func (b *Bag) Add(d Diagnostic) { b.diags = append(b.diags, d) }

func (b *Bag) Extend(o *Bag) { b.diags = append(b.diags, o.diags...) }

func (b *Bag) HasErrors() bool {
	for _, d := range b.diags {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

func (b *Bag) Len() int { return len(b.diags) }

// All returns the diagnostics ordered by source position.
func (b *Bag) All() []Diagnostic {
	out := make([]Diagnostic, len(b.diags))
	copy(out, b.diags)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Span.Start != out[j].Span.Start {
			return out[i].Span.Start < out[j].Span.Start
		}
		return out[i].Span.End < out[j].Span.End
	})
	return out
}

// LineIndex maps byte offsets to 1-based line/column pairs.
type LineIndex struct {
	src        string
	lineStarts []int
}

func NewLineIndex(src string) *LineIndex {
	starts := []int{0}
	for i := 0; i < len(src); i++ {
		if src[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &LineIndex{src: src, lineStarts: starts}
}

func (ix *LineIndex) Position(offset int) (line, col int) {
	if offset > len(ix.src) {
		offset = len(ix.src)
	}
	i := sort.Search(len(ix.lineStarts), func(i int) bool {
		return ix.lineStarts[i] > offset
	}) - 1
	return i + 1, offset - ix.lineStarts[i] + 1
}

// Line returns the text of the 1-based line, without its newline.
func (ix *LineIndex) Line(line int) string {
	if line < 1 || line > len(ix.lineStarts) {
		return ""
	}
	start := ix.lineStarts[line-1]
	end := len(ix.src)
	if line < len(ix.lineStarts) {
		end = ix.lineStarts[line] - 1
	}
	return ix.src[start:end]
}

func (ix *LineIndex) LineCount() int { return len(ix.lineStarts) }
