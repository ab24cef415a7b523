// Package compile runs the full assembly pipeline with per-unit caching and
// parallel code generation. Units are cached by a content hash of their
// text, so editing one function never re-lexes or re-parses the others; a
// unit that merely moved inside the file has its cached spans shifted in
// place. Lowered code is additionally keyed by the identities of the symbols
// the unit references, because cross-unit facts like a callee's arity feed
// into lowering.
package compile

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/snrtools/salc/pkg/ast"
	"github.com/snrtools/salc/pkg/codegen"
	"github.com/snrtools/salc/pkg/config"
	"github.com/snrtools/salc/pkg/diag"
	"github.com/snrtools/salc/pkg/lexer"
	"github.com/snrtools/salc/pkg/parser"
	"github.com/snrtools/salc/pkg/symbols"
	"github.com/snrtools/salc/pkg/token"
)

// Stats counts cache behavior across Compile calls.
type Stats struct {
	ParseHits, ParseMisses int
	LowerHits, LowerMisses int
}

type unitEntry struct {
	gen        uint64
	base       int // file offset the cached spans currently assume
	tree       *ast.Node
	parseDiags []diag.Diagnostic
	refs       []string
	lowerKey   uint64
	units      []*codegen.Unit
	lowerDiags []diag.Diagnostic
}

// Pipeline caches per-unit artifacts across compiles of evolving source.
type Pipeline struct {
	cfg   *config.Config
	mu    sync.Mutex
	cache map[uint64]*unitEntry
	gen   uint64
	stats Stats
}

func NewPipeline(cfg *config.Config) *Pipeline {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	return &Pipeline{cfg: cfg, cache: make(map[uint64]*unitEntry)}
}

func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Compile assembles the source into a scenario binary. On error-severity
// diagnostics the binary is nil; warnings never block output.
func (p *Pipeline) Compile(src string) ([]byte, *diag.Bag) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gen++
	bag := &diag.Bag{}

	segs := splitUnits(src)
	entries := make([]*unitEntry, len(segs))
	seen := make(map[uint64]bool, len(segs))
	for i, seg := range segs {
		h := xxhash.Sum64String(seg.text)
		e, cached := p.cache[h]
		if !cached || seen[h] {
			// a repeated hash within one compile means two units with
			// byte-identical text; each needs its own entry, since an entry
			// tracks a single position and lowering slot
			var ubag diag.Bag
			tree := parser.Parse(lexer.Tokenize(seg.text, &ubag), &ubag)
			e = &unitEntry{tree: tree, parseDiags: ubag.All(), refs: refsOf(tree)}
			if !seen[h] {
				p.cache[h] = e
			}
			p.stats.ParseMisses++
		} else {
			p.stats.ParseHits++
		}
		seen[h] = true
		if delta := seg.base - e.base; delta != 0 {
			shiftEntry(e, delta)
		}
		e.gen = p.gen
		for _, d := range e.parseDiags {
			bag.Add(d)
		}
		entries[i] = e
	}

	// collection pass: freeze the global scope before any lowering
	table := symbols.NewTable()
	for _, e := range entries {
		table.CollectFrom(e.tree, bag)
	}

	// map each surviving symbol back to the unit that declares it; a
	// duplicate's loser has no symbols and lowers to nothing
	owner := make(map[*ast.Node]int)
	for i, e := range entries {
		for _, item := range e.tree.Nodes() {
			owner[item] = i
		}
	}
	perUnit := make([][]*symbols.Symbol, len(entries))
	for _, sym := range table.Symbols() {
		if i, ok := owner[sym.Item]; ok {
			perUnit[i] = append(perUnit[i], sym)
		}
	}

	var wg sync.WaitGroup
	lowerBags := make([]*diag.Bag, len(entries))
	for i, e := range entries {
		key := lowerKey(perUnit[i], e.refs, table)
		if e.units != nil && e.lowerKey == key && len(e.units) == len(perUnit[i]) {
			// rebind cached units to this compile's symbols
			for k := range e.units {
				e.units[k].Sym = perUnit[i][k]
			}
			p.stats.LowerHits++
			continue
		}
		p.stats.LowerMisses++
		e.lowerKey = key
		lowerBags[i] = &diag.Bag{}
		wg.Add(1)
		go func(e *unitEntry, syms []*symbols.Symbol, ubag *diag.Bag) {
			defer wg.Done()
			units := make([]*codegen.Unit, 0, len(syms))
			for _, sym := range syms {
				units = append(units, codegen.LowerItem(sym, table, p.cfg, ubag))
			}
			e.units = units
		}(e, perUnit[i], lowerBags[i])
	}
	wg.Wait()

	var units []*codegen.Unit
	for i, e := range entries {
		if lowerBags[i] != nil {
			e.lowerDiags = lowerBags[i].All()
		}
		for _, d := range e.lowerDiags {
			bag.Add(d)
		}
		units = append(units, e.units...)
	}
	bin := codegen.Layout(units, bag)

	// sweep entries the current source no longer contains
	for h, e := range p.cache {
		if e.gen != p.gen {
			delete(p.cache, h)
		}
	}

	if bag.HasErrors() {
		return nil, bag
	}
	return bin, bag
}

// lowerKey digests the identities lowering depends on: the unit's own
// symbols and, for every name it references, the referent's kind and arity.
func lowerKey(own []*symbols.Symbol, refs []string, table *symbols.Table) uint64 {
	d := xxhash.New()
	for _, sym := range own {
		fmt.Fprintf(d, "own:%s/%d/%d;", sym.Name, sym.Kind, len(sym.Params))
	}
	for _, name := range refs {
		io.WriteString(d, name)
		if sym := table.Lookup(name); sym != nil {
			fmt.Fprintf(d, "/%d/%d;", sym.Kind, len(sym.Params))
		} else {
			io.WriteString(d, "/undef;")
		}
	}
	return d.Sum64()
}

// refsOf gathers the names a tree references: bare identifiers in operand
// position and jump table targets.
func refsOf(root *ast.Node) []string {
	seen := make(map[string]bool)
	var walk func(n *ast.Node)
	walk = func(n *ast.Node) {
		switch n.Kind {
		case ast.NameRefExpr:
			if tok := n.FirstToken(token.Ident); tok != nil {
				seen[tok.Text] = true
			}
		case ast.MappingArm:
			if tok := n.FirstToken(token.Ident); tok != nil {
				seen[tok.Text] = true
			}
		}
		for _, kid := range n.Nodes() {
			walk(kid)
		}
	}
	walk(root)
	refs := make([]string, 0, len(seen))
	for name := range seen {
		refs = append(refs, name)
	}
	sort.Strings(refs)
	return refs
}

// shiftEntry moves every cached span by delta when a unit's text is
// unchanged but its position in the file moved.
func shiftEntry(e *unitEntry, delta int) {
	shiftTree(e.tree, delta)
	shiftDiags(e.parseDiags, delta)
	shiftDiags(e.lowerDiags, delta)
	for _, u := range e.units {
		for i := range u.Relocs {
			u.Relocs[i].Span = shiftSpan(u.Relocs[i].Span, delta)
		}
	}
	e.base += delta
}

func shiftSpan(s token.Span, delta int) token.Span {
	s.Start += delta
	s.End += delta
	return s
}

func shiftTree(n *ast.Node, delta int) {
	n.Span = shiftSpan(n.Span, delta)
	for i := range n.Children {
		if tok := n.Children[i].Tok; tok != nil {
			tok.Span = shiftSpan(tok.Span, delta)
		} else {
			shiftTree(n.Children[i].Node, delta)
		}
	}
}

func shiftDiags(ds []diag.Diagnostic, delta int) {
	for i := range ds {
		ds[i].Span = shiftSpan(ds[i].Span, delta)
		for j := range ds[i].Labels {
			ds[i].Labels[j].Span = shiftSpan(ds[i].Labels[j].Span, delta)
		}
	}
}
