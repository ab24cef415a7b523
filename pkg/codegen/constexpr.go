package codegen

import (
	"math"
	"strconv"
	"strings"

	"github.com/snrtools/salc/pkg/ast"
	"github.com/snrtools/salc/pkg/config"
	"github.com/snrtools/salc/pkg/snr"
	"github.com/snrtools/salc/pkg/token"
)

// realScale is the fixed-point denominator: real 1.234 is raw 1234.
const realScale = 1000

type valueKind int

const (
	// kindAny is the kind of a register operand. Registers hold raw values
	// and adopt whatever kind the surrounding expression requires, without
	// any scaling.
	kindAny valueKind = iota
	kindInt
	kindReal
)

func (k valueKind) String() string {
	switch k {
	case kindInt:
		return "integer"
	case kindReal:
		return "real"
	}
	return "value"
}

// lowered is one lowered expression subtree: a folded constant when every
// leaf is a literal, otherwise an RPN term sequence for an exp instruction.
type lowered struct {
	kind  valueKind
	konst bool
	raw   int64
	terms snr.Expression
}

func constLowered(raw int64, kind valueKind) lowered {
	return lowered{kind: kind, konst: true, raw: raw}
}

var zeroLowered = constLowered(0, kindInt)

func (v lowered) terms1() snr.Expression {
	if v.konst {
		return snr.Expression{snr.PushTerm(snr.Constant(int32(v.raw)))}
	}
	return v.terms
}

// isRegister reports whether the lowered value is exactly one register push,
// i.e. usable as a plain register operand.
func (v lowered) isRegister() (snr.Register, bool) {
	if !v.konst && len(v.terms) == 1 && v.terms[0].Op == snr.OpPush && v.terms[0].Value.IsReg {
		return v.terms[0].Value.Reg, true
	}
	return 0, false
}

// checkRange clamps folding results to 32 bits; overflow during folding is
// an error rather than silent wraparound.
func (l *itemLowerer) checkRange(v int64, span token.Span) int64 {
	if v > math.MaxInt32 || v < math.MinInt32 {
		l.bag.Errorf(span, "constant overflow: %d does not fit in 32 bits", v)
		return 0
	}
	return v
}

func (l *itemLowerer) lowerExpr(n *ast.Node) lowered {
	switch n.Kind {
	case ast.LiteralExpr:
		return l.lowerLiteral(n)
	case ast.RegisterExpr:
		tok := n.FirstToken(token.Register)
		if tok == nil {
			return zeroLowered
		}
		r := l.resolveReg(tok)
		return lowered{kind: kindAny, terms: snr.Expression{snr.PushTerm(snr.FromRegister(r))}}
	case ast.NameRefExpr:
		l.bag.Errorf(n.Span, "'%s' is a label, not a value", n.Text())
		return zeroLowered
	case ast.ParenExpr:
		inner := n.Nodes()
		if len(inner) == 0 {
			return zeroLowered
		}
		return l.lowerExpr(inner[0])
	case ast.UnaryExpr:
		return l.lowerUnary(n)
	case ast.BinaryExpr:
		return l.lowerBinary(n)
	case ast.CallExpr:
		return l.lowerCall(n)
	}
	// ErrorNode and anything malformed: already reported upstream.
	return zeroLowered
}

func (l *itemLowerer) lowerLiteral(n *ast.Node) lowered {
	toks := n.Tokens()
	if len(toks) == 0 {
		return zeroLowered
	}
	tok := toks[0]
	switch tok.Kind {
	case token.IntNumber:
		v, err := strconv.ParseInt(tok.Text, 0, 64)
		if err != nil {
			l.bag.Errorf(tok.Span, "invalid integer literal '%s'", tok.Text)
			return zeroLowered
		}
		return constLowered(l.checkRange(v, tok.Span), kindInt)
	case token.FloatNumber:
		f, err := strconv.ParseFloat(tok.Text, 64)
		if err != nil {
			l.bag.Errorf(tok.Span, "invalid real literal '%s'", tok.Text)
			return zeroLowered
		}
		raw := int64(math.Round(f * realScale))
		return constLowered(l.checkRange(raw, tok.Span), kindReal)
	case token.String:
		l.bag.Errorf(tok.Span, "string literal is not a numeric operand")
	}
	return zeroLowered
}

func (l *itemLowerer) lowerUnary(n *ast.Node) lowered {
	toks := n.Tokens()
	kids := n.Nodes()
	if len(toks) == 0 || len(kids) == 0 {
		return zeroLowered
	}
	v := l.lowerExpr(kids[0])
	switch toks[0].Kind {
	case token.Minus:
		if v.konst {
			return constLowered(l.checkRange(-v.raw, n.Span), v.kind)
		}
		return lowered{kind: v.kind, terms: append(v.terms1(), snr.OpTerm(snr.OpNegate))}
	case token.Tilde:
		if v.kind == kindReal {
			l.bag.Errorf(n.Span, "'~' needs an integer operand, got a real")
			return zeroLowered
		}
		if v.konst {
			return constLowered(^v.raw, kindInt)
		}
		return lowered{kind: kindInt, terms: append(v.terms1(), snr.OpTerm(snr.OpBitwiseNot))}
	case token.Bang:
		if v.konst {
			return constLowered(bool01(v.raw == 0), kindInt)
		}
		return lowered{kind: kindInt, terms: append(v.terms1(), snr.OpTerm(snr.OpCmpZero))}
	}
	return zeroLowered
}

func bool01(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// unifiedKind is the result kind of an operation over both operand kinds.
func unifiedKind(a, b valueKind) valueKind {
	switch {
	case a == kindReal || b == kindReal:
		return kindReal
	case a == kindInt || b == kindInt:
		return kindInt
	}
	return kindAny
}

// unify promotes an integer operand to real when the other operand is real.
// Integer constants scale by the fixed-point factor; integer subexpressions
// get a multiply appended. Register operands are never scaled.
func (l *itemLowerer) unify(a, b lowered, span token.Span) (lowered, lowered, valueKind) {
	kind := unifiedKind(a.kind, b.kind)
	if kind == kindReal {
		a = l.promote(a, span)
		b = l.promote(b, span)
	}
	return a, b, kind
}

func (l *itemLowerer) promote(v lowered, span token.Span) lowered {
	if v.kind != kindInt {
		return v
	}
	if v.konst {
		return constLowered(l.checkRange(v.raw*realScale, span), kindReal)
	}
	terms := append(v.terms1(), snr.PushTerm(snr.Constant(realScale)), snr.OpTerm(snr.OpMultiply))
	return lowered{kind: kindReal, terms: terms}
}

func (l *itemLowerer) requireInt(v lowered, op string, span token.Span) bool {
	if v.kind == kindReal {
		l.bag.Errorf(span, "'%s' needs integer operands, got a real", op)
		return false
	}
	return true
}

// combine folds two constants with fold, or emits both operands and op.
func combine(a, b lowered, kind valueKind, op snr.ExprOp, fold func(x, y int64) int64) lowered {
	if a.konst && b.konst {
		return constLowered(fold(a.raw, b.raw), kind)
	}
	terms := append(append(a.terms1(), b.terms1()...), snr.OpTerm(op))
	return lowered{kind: kind, terms: terms}
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

func (l *itemLowerer) lowerBinary(n *ast.Node) lowered {
	toks := n.Tokens()
	kids := n.Nodes()
	if len(toks) == 0 || len(kids) < 2 {
		if len(kids) == 1 {
			return l.lowerExpr(kids[0])
		}
		return zeroLowered
	}
	op := toks[0]
	a := l.lowerExpr(kids[0])
	b := l.lowerExpr(kids[1])
	span := n.Span

	// ck wraps checkRange so fold closures stay one-liners.
	ck := func(v int64) int64 { return l.checkRange(v, span) }

	switch op.Kind {
	case token.Plus:
		a, b, kind := l.unify(a, b, span)
		return combine(a, b, kind, snr.OpAdd, func(x, y int64) int64 { return ck(x + y) })
	case token.Minus:
		a, b, kind := l.unify(a, b, span)
		return combine(a, b, kind, snr.OpSubtract, func(x, y int64) int64 { return ck(x - y) })
	case token.Star:
		a, b, kind := l.unify(a, b, span)
		if kind == kindReal {
			return combine(a, b, kind, snr.OpMultiplyReal, func(x, y int64) int64 { return ck(x * y / realScale) })
		}
		return combine(a, b, kind, snr.OpMultiply, func(x, y int64) int64 { return ck(x * y) })
	case token.Slash:
		// '/' is always real division: on raw values DivideReal yields the
		// fixed-point quotient, so integer operands need no scaling.
		a, b, _ := l.unify(a, b, span)
		if b.konst && b.raw == 0 {
			l.bag.Errorf(span, "division by zero")
			return constLowered(0, kindReal)
		}
		return combine(a, b, kindReal, snr.OpDivideReal, func(x, y int64) int64 { return ck(x * realScale / y) })
	case token.Percent:
		if !l.cfg.IsFeatureEnabled(config.FeatPercentMod) {
			l.bag.Errorf(op.Span, "'%%' needs the percent-mod feature; use 'mod'")
			return zeroLowered
		}
		fallthrough
	case token.KwMod:
		a, b, kind := l.unify(a, b, span)
		if b.konst && b.raw == 0 {
			l.bag.Errorf(span, "modulo by zero")
			return constLowered(0, kind)
		}
		return combine(a, b, kind, snr.OpModulo, func(x, y int64) int64 { return ck(x - y*floorDiv(x, y)) })
	case token.DotStar, token.DotSlash:
		if a.kind == kindInt && b.kind == kindReal || a.kind == kindReal && b.kind == kindInt {
			l.bag.Errorf(span, "operands of %s must have the same kind, got %s and %s", op.Kind, a.kind, b.kind)
			return zeroLowered
		}
		kind := unifiedKind(a.kind, b.kind)
		if op.Kind == token.DotStar {
			return combine(a, b, kind, snr.OpMultiplyReal, func(x, y int64) int64 { return ck(x * y / realScale) })
		}
		if b.konst && b.raw == 0 {
			l.bag.Errorf(span, "division by zero")
			return constLowered(0, kind)
		}
		return combine(a, b, kind, snr.OpDivideReal, func(x, y int64) int64 { return ck(x * realScale / y) })
	case token.Shl, token.Shr:
		if !l.requireInt(a, op.Text, span) || !l.requireInt(b, op.Text, span) {
			return zeroLowered
		}
		if b.konst && (b.raw < 0 || b.raw > 31) {
			l.bag.Errorf(span, "shift count %d out of range", b.raw)
			return zeroLowered
		}
		if op.Kind == token.Shl {
			return combine(a, b, kindInt, snr.OpShiftLeft, func(x, y int64) int64 { return ck(x << uint(y)) })
		}
		return combine(a, b, kindInt, snr.OpShiftRight, func(x, y int64) int64 { return int64(int32(x) >> uint(y)) })
	case token.Amp, token.Pipe, token.Caret:
		if !l.requireInt(a, op.Text, span) || !l.requireInt(b, op.Text, span) {
			return zeroLowered
		}
		switch op.Kind {
		case token.Amp:
			return combine(a, b, kindInt, snr.OpBitwiseAnd, func(x, y int64) int64 { return x & y })
		case token.Pipe:
			return combine(a, b, kindInt, snr.OpBitwiseOr, func(x, y int64) int64 { return x | y })
		}
		return combine(a, b, kindInt, snr.OpBitwiseXor, func(x, y int64) int64 { return x ^ y })
	case token.EqEq, token.Neq, token.Gte, token.Gt, token.Lte, token.Lt:
		a, b, _ = l.unify(a, b, span)
		var cop snr.ExprOp
		var fold func(x, y int64) int64
		switch op.Kind {
		case token.EqEq:
			cop, fold = snr.OpCmpEqual, func(x, y int64) int64 { return bool01(x == y) }
		case token.Neq:
			cop, fold = snr.OpCmpNotEqual, func(x, y int64) int64 { return bool01(x != y) }
		case token.Gte:
			cop, fold = snr.OpCmpGreaterOrEqual, func(x, y int64) int64 { return bool01(x >= y) }
		case token.Gt:
			cop, fold = snr.OpCmpGreater, func(x, y int64) int64 { return bool01(x > y) }
		case token.Lte:
			cop, fold = snr.OpCmpLessOrEqual, func(x, y int64) int64 { return bool01(x <= y) }
		default:
			cop, fold = snr.OpCmpLess, func(x, y int64) int64 { return bool01(x < y) }
		}
		return combine(a, b, kindInt, cop, fold)
	case token.AmpAmp:
		return combine(a, b, kindInt, snr.OpLogicalAnd, func(x, y int64) int64 { return bool01(x != 0 && y != 0) })
	case token.PipePipe:
		return combine(a, b, kindInt, snr.OpLogicalOr, func(x, y int64) int64 { return bool01(x != 0 || y != 0) })
	}
	return zeroLowered
}

func (l *itemLowerer) lowerCall(n *ast.Node) lowered {
	toks := n.Tokens()
	if len(toks) == 0 {
		return zeroLowered
	}
	callee := toks[0]
	var args []*ast.Node
	if list := n.FirstNode(ast.ArgList); list != nil {
		args = list.Nodes()
	}
	name := strings.ToLower(callee.Text)

	want := map[string]int{
		"abs": 1, "min": 2, "max": 2, "sin": 1, "cos": 1, "tan": 1,
		"select": 3, "div": 2, "iszero": 1, "nonzero": 1,
	}
	if name == "bit" {
		l.bag.Errorf(callee.Span, "'bit' is only valid as a jc condition")
		return zeroLowered
	}
	arity, ok := want[name]
	if !ok {
		l.bag.Errorf(callee.Span, "unknown builtin '%s'", callee.Text)
		return zeroLowered
	}
	if len(args) != arity {
		l.bag.Errorf(n.Span, "'%s' takes %d arguments, got %d", name, arity, len(args))
		return zeroLowered
	}

	span := n.Span
	ck := func(v int64) int64 { return l.checkRange(v, span) }
	switch name {
	case "abs":
		v := l.lowerExpr(args[0])
		if v.konst {
			if v.raw < 0 {
				return constLowered(ck(-v.raw), v.kind)
			}
			return v
		}
		return lowered{kind: v.kind, terms: append(v.terms1(), snr.OpTerm(snr.OpAbs))}
	case "min", "max":
		a, b, kind := l.unify(l.lowerExpr(args[0]), l.lowerExpr(args[1]), span)
		if name == "min" {
			return combine(a, b, kind, snr.OpMin, func(x, y int64) int64 { return min(x, y) })
		}
		return combine(a, b, kind, snr.OpMax, func(x, y int64) int64 { return max(x, y) })
	case "sin", "cos", "tan":
		// trig results come from VM tables and never fold
		v := l.lowerExpr(args[0])
		ops := map[string]snr.ExprOp{"sin": snr.OpSin, "cos": snr.OpCos, "tan": snr.OpTan}
		return lowered{kind: kindReal, terms: append(v.terms1(), snr.OpTerm(ops[name]))}
	case "select":
		c := l.lowerExpr(args[0])
		a, b, kind := l.unify(l.lowerExpr(args[1]), l.lowerExpr(args[2]), span)
		if c.konst && a.konst && b.konst {
			if c.raw != 0 {
				return constLowered(a.raw, kind)
			}
			return constLowered(b.raw, kind)
		}
		terms := append(c.terms1(), a.terms1()...)
		terms = append(terms, b.terms1()...)
		return lowered{kind: kind, terms: append(terms, snr.OpTerm(snr.OpSelect))}
	case "div":
		a := l.lowerExpr(args[0])
		b := l.lowerExpr(args[1])
		if !l.requireInt(a, "div", span) || !l.requireInt(b, "div", span) {
			return zeroLowered
		}
		if b.konst && b.raw == 0 {
			l.bag.Errorf(span, "division by zero")
			return zeroLowered
		}
		return combine(a, b, kindInt, snr.OpDivide, func(x, y int64) int64 { return ck(x / y) })
	case "iszero":
		v := l.lowerExpr(args[0])
		if v.konst {
			return constLowered(bool01(v.raw == 0), kindInt)
		}
		return lowered{kind: kindInt, terms: append(v.terms1(), snr.OpTerm(snr.OpCmpZero))}
	default: // nonzero
		v := l.lowerExpr(args[0])
		if v.konst {
			return constLowered(bool01(v.raw != 0), kindInt)
		}
		return lowered{kind: kindInt, terms: append(v.terms1(), snr.OpTerm(snr.OpCmpNotZero))}
	}
}

// valueOperand lowers an operand expression to a NumberSpec. Outside exp,
// an operand must fold to a constant or be a plain register.
func (l *itemLowerer) valueOperand(n *ast.Node) snr.NumberSpec {
	v := l.lowerExpr(n)
	if v.konst {
		return snr.Constant(int32(v.raw))
	}
	if r, ok := v.isRegister(); ok {
		return snr.FromRegister(r)
	}
	l.bag.Errorf(n.Span, "computed expressions are only allowed in 'exp'")
	return snr.Constant(0)
}

// constUint lowers an operand that must fold to an integer in [0, max].
func (l *itemLowerer) constUint(n *ast.Node, max int64, what string) uint32 {
	v := l.lowerExpr(n)
	if !v.konst || v.kind == kindReal {
		l.bag.Errorf(n.Span, "%s must be a constant integer", what)
		return 0
	}
	if v.raw < 0 || v.raw > max {
		l.bag.Errorf(n.Span, "%s %d out of range [0, %d]", what, v.raw, max)
		return 0
	}
	return uint32(v.raw)
}
