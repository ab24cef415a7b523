// Package symbols collects the global definitions of a source file and
// resolves register spellings inside items. Collection is a separate pass so
// code generation can run over units in parallel against a frozen table.
package symbols

import (
	"strconv"
	"strings"

	"github.com/snrtools/salc/pkg/ast"
	"github.com/snrtools/salc/pkg/diag"
	"github.com/snrtools/salc/pkg/snr"
	"github.com/snrtools/salc/pkg/token"
)

type Kind int

const (
	KindFunction Kind = iota
	KindSubroutine
	KindEntry
	KindLabel
)

func (k Kind) String() string {
	switch k {
	case KindFunction:
		return "function"
	case KindSubroutine:
		return "subroutine"
	case KindEntry:
		return "entry point"
	default:
		return "label"
	}
}

// Param is one function parameter: an alias name bound to an argument
// register by position.
type Param struct {
	Name string
	Reg  snr.Register
	Span token.Span
}

// Symbol is a global definition: a function, subroutine, entry point or
// top-level label. Code generation attaches the final code address later.
type Symbol struct {
	Name     string
	Kind     Kind
	Span     token.Span
	Item     *ast.Node
	Params   []Param
	Preserve []snr.Register
	// Labels maps the item's local block labels to their CodeBlock nodes.
	Labels map[string]*ast.Node
}

func (s *Symbol) Param(name string) *Param {
	for i := range s.Params {
		if s.Params[i].Name == name {
			return &s.Params[i]
		}
	}
	return nil
}

// Table holds the file's global symbols in definition order.
type Table struct {
	byName map[string]*Symbol
	order  []*Symbol
}

func (t *Table) Lookup(name string) *Symbol { return t.byName[name] }

func (t *Table) Symbols() []*Symbol { return t.order }

func (t *Table) define(sym *Symbol, bag *diag.Bag) {
	if prev, ok := t.byName[sym.Name]; ok {
		bag.Add(diag.Errorf(sym.Span, "duplicate definition of '%s'", sym.Name).
			WithLabel("first defined here", prev.Span))
		// first definition wins
		return
	}
	t.byName[sym.Name] = sym
	t.order = append(t.order, sym)
}

func NewTable() *Table {
	return &Table{byName: make(map[string]*Symbol)}
}

// Collect walks the tree and builds the symbol table. Malformed items get
// placeholder symbols so references to them do not cascade.
func Collect(root *ast.Node, bag *diag.Bag) *Table {
	t := NewTable()
	t.CollectFrom(root, bag)
	return t
}

// CollectFrom adds the tree's definitions to the table. The pipeline calls
// this once per unit tree to build the file-wide scope.
func (t *Table) CollectFrom(root *ast.Node, bag *diag.Bag) {
	for _, item := range root.Nodes() {
		switch item.Kind {
		case ast.FunctionDef:
			collectItem(t, item, KindFunction, bag)
		case ast.SubroutineDef:
			collectItem(t, item, KindSubroutine, bag)
		case ast.EntryDef:
			collectItem(t, item, KindEntry, bag)
		case ast.CodeBlock:
			label := item.FirstNode(ast.BlockLabel)
			if label == nil {
				continue
			}
			name := label.FirstToken(token.Ident)
			if name == nil {
				continue
			}
			t.define(&Symbol{
				Name: name.Text,
				Kind: KindLabel,
				Span: name.Span,
				Item: item,
			}, bag)
		}
	}
}

func collectItem(t *Table, item *ast.Node, kind Kind, bag *diag.Bag) {
	name := item.FirstToken(token.Ident)
	if name == nil {
		return // reported by the parser
	}
	sym := &Symbol{
		Name:   name.Text,
		Kind:   kind,
		Span:   name.Span,
		Item:   item,
		Labels: make(map[string]*ast.Node),
	}

	if params := item.FirstNode(ast.ParamList); params != nil {
		collectParams(sym, params, bag)
	}
	if preserve := item.FirstNode(ast.PreserveList); preserve != nil {
		collectPreserve(sym, preserve, bag)
	}

	for _, block := range item.NodesOf(ast.CodeBlock) {
		label := block.FirstNode(ast.BlockLabel)
		if label == nil {
			continue
		}
		lname := label.FirstToken(token.Ident)
		if lname == nil {
			continue
		}
		if prev, ok := sym.Labels[lname.Text]; ok {
			prevName := prev.FirstNode(ast.BlockLabel).FirstToken(token.Ident)
			bag.Add(diag.Errorf(lname.Span, "duplicate label '%s' in %s '%s'", lname.Text, kind, sym.Name).
				WithLabel("first defined here", prevName.Span))
			continue
		}
		sym.Labels[lname.Text] = block
	}

	t.define(sym, bag)
}

func collectParams(sym *Symbol, params *ast.Node, bag *diag.Bag) {
	for _, param := range params.NodesOf(ast.Param) {
		reg := param.FirstToken(token.Register)
		if reg == nil {
			continue
		}
		name := strings.TrimPrefix(reg.Text, "$")
		if isDirectRegister(name) {
			bag.Errorf(reg.Span, "parameter name '%s' collides with a register", reg.Text)
			continue
		}
		if prev := sym.Param(name); prev != nil {
			bag.Add(diag.Errorf(reg.Span, "duplicate parameter '%s'", reg.Text).
				WithLabel("first defined here", prev.Span))
			continue
		}
		if len(sym.Params) >= snr.NumArgRegisters {
			bag.Errorf(reg.Span, "too many parameters: at most %d arguments can be passed", snr.NumArgRegisters)
			continue
		}
		r, _ := snr.ArgumentRegister(len(sym.Params))
		sym.Params = append(sym.Params, Param{Name: name, Reg: r, Span: reg.Span})
	}
}

func collectPreserve(sym *Symbol, preserve *ast.Node, bag *diag.Bag) {
	for _, rng := range preserve.NodesOf(ast.RegisterRange) {
		regs := rng.Tokens()
		var lo, hi snr.Register
		var ok bool
		switch {
		case len(regs) >= 3: // $vN - $vM
			lo, ok = parseDirect(regs[0], bag)
			if !ok {
				continue
			}
			hi, ok = parseDirect(regs[2], bag)
			if !ok {
				continue
			}
		case len(regs) == 1:
			lo, ok = parseDirect(regs[0], bag)
			if !ok {
				continue
			}
			hi = lo
		default:
			continue
		}
		if lo.IsArgument() || hi.IsArgument() {
			bag.Errorf(rng.Span, "argument registers are caller-owned and cannot be preserved")
			continue
		}
		if hi < lo {
			bag.Errorf(rng.Span, "empty register range %s-%s", lo, hi)
			continue
		}
		for r := lo; r <= hi; r++ {
			sym.Preserve = append(sym.Preserve, r)
		}
	}
}

func parseDirect(tok *token.Token, bag *diag.Bag) (snr.Register, bool) {
	if !isDirectRegister(strings.TrimPrefix(tok.Text, "$")) {
		bag.Errorf(tok.Span, "expected a register, found alias '%s'", tok.Text)
		return 0, false
	}
	r, err := snr.ParseRegister(tok.Text)
	if err != nil {
		bag.Errorf(tok.Span, "%s", err)
		return 0, false
	}
	return r, true
}

// isDirectRegister reports whether name (without '$') spells a concrete
// register like v12 or a3 rather than an alias.
func isDirectRegister(name string) bool {
	if len(name) < 2 || name[0] != 'v' && name[0] != 'a' {
		return false
	}
	n, err := strconv.Atoi(name[1:])
	return err == nil && n >= 0 && n <= snr.MaxRegisterIndex
}

// ResolveRegister resolves a register token inside an item: either a direct
// register or a parameter alias of the surrounding function. Errors produce
// a $v0 placeholder so lowering can continue.
func ResolveRegister(sym *Symbol, tok *token.Token, bag *diag.Bag) snr.Register {
	name := strings.TrimPrefix(tok.Text, "$")
	if isDirectRegister(name) {
		r, err := snr.ParseRegister(tok.Text)
		if err != nil {
			bag.Errorf(tok.Span, "%s", err)
			return 0
		}
		return r
	}
	if sym != nil {
		if p := sym.Param(name); p != nil {
			return p.Reg
		}
	}
	bag.Errorf(tok.Span, "undeclared register alias '%s'", tok.Text)
	return 0
}
