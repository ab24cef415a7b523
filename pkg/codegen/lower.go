// Package codegen lowers resolved syntax trees to SNR instruction blocks and
// lays the blocks out into a scenario file. Each top-level item lowers into
// an independent Unit, so units can be generated in parallel once the symbol
// table is frozen; layout and relocation patching run serially afterwards.
package codegen

import (
	"strings"

	"github.com/snrtools/salc/pkg/ast"
	"github.com/snrtools/salc/pkg/config"
	"github.com/snrtools/salc/pkg/diag"
	"github.com/snrtools/salc/pkg/lexer"
	"github.com/snrtools/salc/pkg/snr"
	"github.com/snrtools/salc/pkg/symbols"
	"github.com/snrtools/salc/pkg/token"
)

// Reloc is an address slot inside a unit's code that layout patches once the
// target's final offset is known.
type Reloc struct {
	Offset int // byte offset of the u32 within Code
	Target string
	Span   token.Span
}

// Unit is the lowered code of one top-level item.
type Unit struct {
	Sym    *symbols.Symbol
	Code   []byte
	Relocs []Reloc
	Labels map[string]int // local label -> offset within Code
	Msgs   int            // MSGSET count, for the header's dialogue line count
	Base   snr.CodeAddress
}

type itemLowerer struct {
	sym        *symbols.Symbol
	table      *symbols.Table
	cfg        *config.Config
	bag        *diag.Bag
	w          *snr.Writer
	unit       *Unit
	used       map[string]bool
	terminated bool // control cannot reach past the last instruction
}

// LowerItem generates the code of one item against a frozen symbol table.
// Address operands are left zero and recorded as relocations.
func LowerItem(sym *symbols.Symbol, table *symbols.Table, cfg *config.Config, bag *diag.Bag) *Unit {
	l := &itemLowerer{
		sym:   sym,
		table: table,
		cfg:   cfg,
		bag:   bag,
		w:     snr.NewWriter(),
		used:  make(map[string]bool),
	}
	l.unit = &Unit{Sym: sym, Labels: make(map[string]int)}

	if len(sym.Preserve) > 0 {
		push := &snr.Push{}
		for _, r := range sym.Preserve {
			push.Values = append(push.Values, snr.FromRegister(r))
		}
		l.emit(push, sym.Span)
	}

	var blocks []*ast.Node
	if sym.Kind == symbols.KindLabel {
		blocks = []*ast.Node{sym.Item}
	} else {
		blocks = sym.Item.NodesOf(ast.CodeBlock)
	}
	for _, block := range blocks {
		instrs := block.NodesOf(ast.Instruction)
		if label := blockLabelName(block); label != "" {
			l.unit.Labels[label] = l.w.Len()
			l.terminated = false
			if len(instrs) == 0 && cfg.IsWarningEnabled(config.WarnEmptyBlock) {
				bag.Warnf(block.Span, "label '%s' has no instructions", label)
			}
		}
		for _, instr := range instrs {
			l.instruction(instr)
		}
	}

	switch sym.Kind {
	case symbols.KindFunction:
		if !l.terminated {
			l.epilogue()
			l.emit(&snr.Return{}, sym.Span)
		}
	case symbols.KindSubroutine:
		if !l.terminated {
			l.epilogue()
			l.emit(&snr.RetSub{}, sym.Span)
		}
	}

	if cfg.IsWarningEnabled(config.WarnUnusedAlias) {
		for _, p := range sym.Params {
			if !l.used[p.Name] {
				bag.Warnf(p.Span, "unused parameter '$%s'", p.Name)
			}
		}
	}

	l.unit.Code = l.w.Bytes()
	return l.unit
}

func blockLabelName(block *ast.Node) string {
	label := block.FirstNode(ast.BlockLabel)
	if label == nil {
		return ""
	}
	if tok := label.FirstToken(token.Ident); tok != nil {
		return tok.Text
	}
	return ""
}

func (l *itemLowerer) emit(i snr.Instruction, span token.Span) int {
	start := l.w.Len()
	if err := i.Encode(l.w); err != nil {
		l.bag.Errorf(span, "%s", err)
	}
	return start
}

func (l *itemLowerer) reloc(offset int, target *token.Token) {
	l.unit.Relocs = append(l.unit.Relocs, Reloc{Offset: offset, Target: target.Text, Span: target.Span})
}

func (l *itemLowerer) resolveReg(tok *token.Token) snr.Register {
	name := strings.TrimPrefix(tok.Text, "$")
	if l.sym != nil && l.sym.Param(name) != nil {
		l.used[name] = true
	}
	return symbols.ResolveRegister(l.sym, tok, l.bag)
}

func (l *itemLowerer) register(n *ast.Node) snr.Register {
	if n.Kind == ast.RegisterExpr {
		if tok := n.FirstToken(token.Register); tok != nil {
			return l.resolveReg(tok)
		}
	}
	l.bag.Errorf(n.Span, "expected a register")
	return 0
}

func (l *itemLowerer) targetName(n *ast.Node) *token.Token {
	if n.Kind == ast.NameRefExpr {
		if tok := n.FirstToken(token.Ident); tok != nil {
			return tok
		}
	}
	l.bag.Errorf(n.Span, "expected a label name")
	return nil
}

func (l *itemLowerer) stringOperand(n *ast.Node) string {
	if n.Kind == ast.LiteralExpr {
		if tok := n.FirstToken(token.String); tok != nil {
			if s, ok := lexer.Unquote(tok.Text); ok {
				return s
			}
		}
	}
	l.bag.Errorf(n.Span, "expected a string literal")
	return ""
}

// epilogue restores the preserved registers in reverse push order.
func (l *itemLowerer) epilogue() {
	if len(l.sym.Preserve) == 0 {
		return
	}
	pop := &snr.Pop{}
	for i := len(l.sym.Preserve) - 1; i >= 0; i-- {
		pop.Dest = append(pop.Dest, l.sym.Preserve[i])
	}
	l.emit(pop, l.sym.Span)
}

// commandMnemonics are the engine commands; their canonical casing is upper,
// core instructions are lower.
var commandMnemonics = map[string]bool{
	"exit": true, "sget": true, "sset": true, "wait": true,
	"msginit": true, "msgset": true, "msgwait": true, "msgsignal": true,
	"msgclose": true, "bgmplay": true, "bgmstop": true, "bgmvol": true,
	"saveinfo": true, "autosave": true,
}

func canonicalMnemonic(lower string) string {
	if commandMnemonics[lower] {
		return strings.ToUpper(lower)
	}
	return lower
}

func (l *itemLowerer) instruction(n *ast.Node) {
	toks := n.Tokens()
	if len(toks) == 0 {
		return
	}
	mnemonic := toks[0]
	name := strings.ToLower(mnemonic.Text)
	if !l.cfg.IsFeatureEnabled(config.FeatCaseFold) && mnemonic.Text != canonicalMnemonic(name) {
		l.bag.Errorf(mnemonic.Span, "unknown instruction '%s' (did you mean '%s'?)", mnemonic.Text, canonicalMnemonic(name))
		return
	}

	var ops []*ast.Node
	if list := n.FirstNode(ast.OperandList); list != nil {
		for _, op := range list.Nodes() {
			if op.Kind != ast.ErrorNode {
				ops = append(ops, op)
			}
		}
	}
	span := mnemonic.Span

	switch name {
	case "zero", "not16", "neg", "abs":
		types := map[string]snr.UnaryOpType{
			"zero": snr.UnaryZero, "not16": snr.UnaryNot16,
			"neg": snr.UnaryNeg, "abs": snr.UnaryAbs,
		}
		l.unaryOp(types[name], name, ops, span)
	case "mov", "bzero", "add", "sub", "mul", "div", "mod", "and", "or", "xor",
		"shl", "shr", "mulr", "divr", "atan2", "setbit", "clrbit", "ctz":
		types := map[string]snr.BinaryOpType{
			"mov": snr.BinaryMovRight, "bzero": snr.BinaryZero,
			"add": snr.BinaryAdd, "sub": snr.BinarySubtract, "mul": snr.BinaryMultiply,
			"div": snr.BinaryDivide, "mod": snr.BinaryModulo, "and": snr.BinaryBitwiseAnd,
			"or": snr.BinaryBitwiseOr, "xor": snr.BinaryBitwiseXor, "shl": snr.BinaryLeftShift,
			"shr": snr.BinaryRightShift, "mulr": snr.BinaryMultiplyReal, "divr": snr.BinaryDivideReal,
			"atan2": snr.BinaryATan2, "setbit": snr.BinarySetBit, "clrbit": snr.BinaryClearBit,
			"ctz": snr.BinaryCtz,
		}
		l.binaryOp(types[name], name, ops, span)
	case "exp":
		if !l.wantOperands(name, ops, 2, 2, span) {
			return
		}
		dest := l.register(ops[0])
		l.emit(&snr.Exp{Dest: dest, Expr: l.lowerExpr(ops[1]).terms1()}, span)
	case "gt":
		if !l.wantOperands(name, ops, 3, -1, span) {
			return
		}
		i := &snr.GetTable{Dest: l.register(ops[0]), Index: l.valueOperand(ops[1])}
		for _, op := range ops[2:] {
			i.Table = append(i.Table, l.valueOperand(op))
		}
		l.emit(i, span)
	case "jc":
		l.jumpCond(ops, span)
	case "j":
		if !l.wantOperands(name, ops, 1, 1, span) {
			return
		}
		start := l.emit(&snr.Jump{}, span)
		if t := l.targetName(ops[0]); t != nil {
			l.reloc(start+1, t)
		}
		l.terminated = true
	case "gosub":
		if !l.wantOperands(name, ops, 1, 1, span) {
			return
		}
		start := l.emit(&snr.Gosub{}, span)
		if t := l.targetName(ops[0]); t != nil {
			if sym := l.table.Lookup(t.Text); sym != nil && sym.Kind == symbols.KindFunction {
				l.bag.Errorf(t.Span, "'%s' is a function; use 'call'", t.Text)
			}
			l.reloc(start+1, t)
		}
	case "retsub":
		if l.sym.Kind == symbols.KindFunction {
			l.bag.Errorf(span, "'retsub' inside a function; use 'return'")
			return
		}
		l.epilogue()
		l.emit(&snr.RetSub{}, span)
		l.terminated = true
	case "jt":
		l.jumpTable(ops, span)
	case "rnd":
		if !l.wantOperands(name, ops, 3, 3, span) {
			return
		}
		l.emit(&snr.Rnd{Dest: l.register(ops[0]), Min: l.valueOperand(ops[1]), Max: l.valueOperand(ops[2])}, span)
	case "push":
		if !l.wantOperands(name, ops, 1, -1, span) {
			return
		}
		i := &snr.Push{}
		for _, op := range ops {
			i.Values = append(i.Values, l.valueOperand(op))
		}
		l.emit(i, span)
	case "pop":
		if !l.wantOperands(name, ops, 1, -1, span) {
			return
		}
		i := &snr.Pop{}
		for _, op := range ops {
			i.Dest = append(i.Dest, l.register(op))
		}
		l.emit(i, span)
	case "call":
		l.call(ops, span)
	case "return":
		// bare script units may return; entries and subroutines may not
		if l.sym.Kind == symbols.KindEntry || l.sym.Kind == symbols.KindSubroutine {
			l.bag.Errorf(span, "'return' outside a function")
			return
		}
		l.epilogue()
		l.emit(&snr.Return{}, span)
		l.terminated = true
	default:
		if commandMnemonics[name] {
			l.command(name, ops, span)
			return
		}
		l.bag.Errorf(mnemonic.Span, "unknown instruction '%s'", mnemonic.Text)
	}
}

func (l *itemLowerer) wantOperands(name string, ops []*ast.Node, min, max int, span token.Span) bool {
	if len(ops) < min || max >= 0 && len(ops) > max {
		switch {
		case min == max:
			l.bag.Errorf(span, "'%s' expects %d operands, got %d", name, min, len(ops))
		case max < 0:
			l.bag.Errorf(span, "'%s' expects at least %d operands, got %d", name, min, len(ops))
		default:
			l.bag.Errorf(span, "'%s' expects %d to %d operands, got %d", name, min, max, len(ops))
		}
		return false
	}
	return true
}

// unaryOp lowers a uo mnemonic. The one-operand form encodes the source
// implicitly as the destination; a written source always encodes explicitly,
// which keeps disassembled text byte-exact on reassembly.
func (l *itemLowerer) unaryOp(t snr.UnaryOpType, name string, ops []*ast.Node, span token.Span) {
	if !l.wantOperands(name, ops, 1, 2, span) {
		return
	}
	dest := l.register(ops[0])
	i := &snr.UnaryOp{Type: t, Dest: dest, Source: snr.FromRegister(dest)}
	if len(ops) == 2 {
		i.Source = l.valueOperand(ops[1])
		i.ExplicitOperand = true
	}
	l.emit(i, span)
}

// binaryOp lowers a bo mnemonic: dest, right with the left operand
// implicitly the destination, or an explicit dest, left, right triple.
func (l *itemLowerer) binaryOp(t snr.BinaryOpType, name string, ops []*ast.Node, span token.Span) {
	if !l.wantOperands(name, ops, 2, 3, span) {
		return
	}
	dest := l.register(ops[0])
	i := &snr.BinaryOp{Type: t, Dest: dest, Left: snr.FromRegister(dest)}
	if len(ops) == 3 {
		i.Left = l.valueOperand(ops[1])
		i.Right = l.valueOperand(ops[2])
		i.ExplicitLeft = true
	} else {
		i.Right = l.valueOperand(ops[1])
	}
	l.emit(i, span)
}

func (l *itemLowerer) jumpCond(ops []*ast.Node, span token.Span) {
	if !l.wantOperands("jc", ops, 2, 2, span) {
		return
	}
	cond, negated, left, right, ok := l.condition(ops[0])
	if !ok {
		return
	}
	l.emit(&snr.JumpCond{Cond: cond, Negated: negated, Left: left, Right: right}, span)
	if t := l.targetName(ops[1]); t != nil {
		l.reloc(l.w.Len()-4, t)
	}
}

// condition analyzes a jc condition operand: a comparison, a top-level '&'
// (jump if the intersection is nonzero), a bit(value, index) test, or any of
// those negated with '!'.
func (l *itemLowerer) condition(n *ast.Node) (snr.JumpCondKind, bool, snr.NumberSpec, snr.NumberSpec, bool) {
	negated := false
unwrap:
	for {
		switch {
		case n.Kind == ast.ParenExpr && len(n.Nodes()) == 1:
			n = n.Nodes()[0]
		case n.Kind == ast.UnaryExpr && len(n.Nodes()) == 1 && n.FirstToken(token.Bang) != nil:
			negated = !negated
			n = n.Nodes()[0]
		default:
			break unwrap
		}
	}
	if n.Kind == ast.BinaryExpr {
		toks := n.Tokens()
		kids := n.Nodes()
		if len(toks) > 0 && len(kids) == 2 {
			conds := map[token.Kind]snr.JumpCondKind{
				token.EqEq: snr.JumpEqual, token.Neq: snr.JumpNotEqual,
				token.Gte: snr.JumpGreaterOrEqual, token.Gt: snr.JumpGreater,
				token.Lte: snr.JumpLessOrEqual, token.Lt: snr.JumpLess,
				token.Amp: snr.JumpAndNotZero,
			}
			if cond, ok := conds[toks[0].Kind]; ok {
				return cond, negated, l.valueOperand(kids[0]), l.valueOperand(kids[1]), true
			}
		}
	}
	if n.Kind == ast.CallExpr {
		toks := n.Tokens()
		if len(toks) > 0 && strings.ToLower(toks[0].Text) == "bit" {
			var args []*ast.Node
			if list := n.FirstNode(ast.ArgList); list != nil {
				args = list.Nodes()
			}
			if len(args) != 2 {
				l.bag.Errorf(n.Span, "'bit' takes 2 arguments, got %d", len(args))
				return 0, false, snr.NumberSpec{}, snr.NumberSpec{}, false
			}
			return snr.JumpBitSet, negated, l.valueOperand(args[0]), l.valueOperand(args[1]), true
		}
	}
	l.bag.Errorf(n.Span, "not a jump condition; expected a comparison, '&' or bit()")
	return 0, false, snr.NumberSpec{}, snr.NumberSpec{}, false
}

// jumpTable lowers jt index, { key => LABEL, ... }. Keys must cover 0..n-1;
// a repeated key keeps its first target.
func (l *itemLowerer) jumpTable(ops []*ast.Node, span token.Span) {
	if !l.wantOperands("jt", ops, 2, 2, span) {
		return
	}
	index := l.valueOperand(ops[0])
	if ops[1].Kind != ast.MappingExpr {
		l.bag.Errorf(ops[1].Span, "'jt' expects a { key => label } table")
		return
	}

	type caseArm struct {
		target *token.Token
		span   token.Span
	}
	cases := make(map[int64]caseArm)
	maxKey := int64(-1)
	for _, arm := range ops[1].NodesOf(ast.MappingArm) {
		kids := arm.Nodes()
		if len(kids) == 0 {
			continue
		}
		key := l.lowerExpr(kids[0])
		if !key.konst || key.kind == kindReal {
			l.bag.Errorf(kids[0].Span, "case key must be a constant integer")
			continue
		}
		if key.raw < 0 || key.raw > 0xffff {
			l.bag.Errorf(kids[0].Span, "case key %d out of range [0, %d]", key.raw, 0xffff)
			continue
		}
		target := arm.FirstToken(token.Ident)
		if target == nil {
			continue
		}
		if prev, ok := cases[key.raw]; ok {
			if l.cfg.IsWarningEnabled(config.WarnDuplicateCase) {
				l.bag.Add(diag.Warnf(kids[0].Span, "duplicate case %d; the first target wins", key.raw).
					WithLabel("first case here", prev.span))
			}
			continue
		}
		cases[key.raw] = caseArm{target: target, span: kids[0].Span}
		if key.raw > maxKey {
			maxKey = key.raw
		}
	}

	targets := make([]*token.Token, maxKey+1)
	for k := int64(0); k <= maxKey; k++ {
		arm, ok := cases[k]
		if !ok {
			l.bag.Errorf(ops[1].Span, "jump table has no case for %d", k)
			continue
		}
		targets[k] = arm.target
	}

	l.emit(&snr.JumpTable{Index: index, Targets: make([]snr.CodeAddress, len(targets))}, span)
	base := l.w.Len() - 4*len(targets)
	for k, target := range targets {
		if target != nil {
			l.reloc(base+4*k, target)
		}
	}
	l.terminated = true
}

func (l *itemLowerer) call(ops []*ast.Node, span token.Span) {
	if !l.wantOperands("call", ops, 1, -1, span) {
		return
	}
	i := &snr.Call{}
	for _, op := range ops[1:] {
		i.Args = append(i.Args, l.valueOperand(op))
	}
	t := l.targetName(ops[0])
	if t != nil {
		if sym := l.table.Lookup(t.Text); sym != nil {
			switch {
			case sym.Kind == symbols.KindSubroutine:
				l.bag.Errorf(t.Span, "'%s' is a subroutine; use 'gosub'", t.Text)
			case sym.Kind == symbols.KindFunction && len(i.Args) != len(sym.Params):
				l.bag.Add(diag.Errorf(t.Span, "'%s' takes %d arguments, got %d", t.Text, len(sym.Params), len(i.Args)).
					WithLabel("defined here", sym.Span))
			}
		}
	}
	start := l.emit(i, span)
	if t != nil {
		l.reloc(start+1, t)
	}
}

// flag keywords recognized by name among a command's trailing operands.
func splitFlags(ops []*ast.Node, allowed ...string) ([]*ast.Node, map[string]bool) {
	flags := make(map[string]bool)
	var rest []*ast.Node
	for _, op := range ops {
		if op.Kind == ast.NameRefExpr {
			var name string
			if tok := op.FirstToken(token.Ident); tok != nil {
				name = strings.ToLower(tok.Text)
			}
			matched := false
			for _, a := range allowed {
				if name == a {
					flags[a] = true
					matched = true
					break
				}
			}
			if matched {
				continue
			}
		}
		rest = append(rest, op)
	}
	return rest, flags
}

func (l *itemLowerer) command(name string, ops []*ast.Node, span token.Span) {
	switch name {
	case "exit":
		if !l.wantOperands("EXIT", ops, 2, 2, span) {
			return
		}
		l.emit(&snr.Exit{Arg1: uint8(l.constUint(ops[0], 0xff, "exit argument")), Arg2: l.valueOperand(ops[1])}, span)
	case "sget":
		if !l.wantOperands("SGET", ops, 2, 2, span) {
			return
		}
		l.emit(&snr.SGet{Dest: l.register(ops[0]), Slot: l.valueOperand(ops[1])}, span)
	case "sset":
		if !l.wantOperands("SSET", ops, 2, 2, span) {
			return
		}
		l.emit(&snr.SSet{Slot: l.valueOperand(ops[0]), Value: l.valueOperand(ops[1])}, span)
	case "wait":
		ops, flags := splitFlags(ops, "interruptable")
		if !l.wantOperands("WAIT", ops, 1, 1, span) {
			return
		}
		l.emit(&snr.Wait{Interruptable: flags["interruptable"], Amount: l.valueOperand(ops[0])}, span)
	case "msginit":
		if !l.wantOperands("MSGINIT", ops, 1, 1, span) {
			return
		}
		l.emit(&snr.MsgInit{Style: l.valueOperand(ops[0])}, span)
	case "msgset":
		ops, flags := splitFlags(ops, "nowait")
		if !l.wantOperands("MSGSET", ops, 2, 2, span) {
			return
		}
		l.emit(&snr.MsgSet{
			MsgID:  l.constUint(ops[0], 0xffffff, "message id"),
			NoWait: flags["nowait"],
			Text:   l.stringOperand(ops[1]),
		}, span)
		l.unit.Msgs++
	case "msgwait":
		if !l.wantOperands("MSGWAIT", ops, 1, 1, span) {
			return
		}
		l.emit(&snr.MsgWait{SignalNum: l.valueOperand(ops[0])}, span)
	case "msgsignal":
		if !l.wantOperands("MSGSIGNAL", ops, 0, 0, span) {
			return
		}
		l.emit(&snr.MsgSignal{}, span)
	case "msgclose":
		ops, flags := splitFlags(ops, "wait")
		if !l.wantOperands("MSGCLOSE", ops, 0, 0, span) {
			return
		}
		l.emit(&snr.MsgClose{Wait: flags["wait"]}, span)
	case "bgmplay":
		if !l.wantOperands("BGMPLAY", ops, 4, 4, span) {
			return
		}
		l.emit(&snr.BgmPlay{
			DataID:     l.valueOperand(ops[0]),
			FadeInTime: l.valueOperand(ops[1]),
			NoRepeat:   l.valueOperand(ops[2]),
			Volume:     l.valueOperand(ops[3]),
		}, span)
	case "bgmstop":
		if !l.wantOperands("BGMSTOP", ops, 1, 1, span) {
			return
		}
		l.emit(&snr.BgmStop{FadeOutTime: l.valueOperand(ops[0])}, span)
	case "bgmvol":
		if !l.wantOperands("BGMVOL", ops, 2, 2, span) {
			return
		}
		l.emit(&snr.BgmVol{Volume: l.valueOperand(ops[0]), FadeInTime: l.valueOperand(ops[1])}, span)
	case "saveinfo":
		if !l.wantOperands("SAVEINFO", ops, 2, 2, span) {
			return
		}
		l.emit(&snr.SaveInfo{Level: l.valueOperand(ops[0]), Info: l.stringOperand(ops[1])}, span)
	case "autosave":
		if !l.wantOperands("AUTOSAVE", ops, 0, 0, span) {
			return
		}
		l.emit(&snr.AutoSave{}, span)
	}
}
