package disasm

import (
	"fmt"
	"strings"

	"github.com/snrtools/salc/pkg/snr"
)

// Infix reconstruction of exp operands. Precedence levels mirror the
// assembler's binding powers, so the printed expression re-lowers to the
// exact RPN term sequence it was decoded from.
const (
	precOr     = 3
	precAnd    = 4
	precCmp    = 5
	precBitOr  = 6
	precXor    = 7
	precBitAnd = 8
	precShift  = 9
	precAdd    = 10
	precMult   = 11
	precUnary  = 13
	precAtom   = 14
)

// frag is a printed subexpression and the precedence of its outermost
// operator, used to decide where parentheses are required.
type frag struct {
	text string
	prec int
}

func atom(text string) frag { return frag{text: text, prec: precAtom} }

type infixOp struct {
	text string
	prec int
}

var infixOps = map[snr.ExprOp]infixOp{
	snr.OpAdd:               {"+", precAdd},
	snr.OpSubtract:          {"-", precAdd},
	snr.OpMultiply:          {"*", precMult},
	snr.OpModulo:            {"mod", precMult},
	snr.OpMultiplyReal:      {".*", precMult},
	snr.OpDivideReal:        {"./", precMult},
	snr.OpShiftLeft:         {"<<", precShift},
	snr.OpShiftRight:        {">>", precShift},
	snr.OpBitwiseAnd:        {"&", precBitAnd},
	snr.OpBitwiseXor:        {"^", precXor},
	snr.OpBitwiseOr:         {"|", precBitOr},
	snr.OpCmpEqual:          {"==", precCmp},
	snr.OpCmpNotEqual:       {"!=", precCmp},
	snr.OpCmpGreaterOrEqual: {">=", precCmp},
	snr.OpCmpGreater:        {">", precCmp},
	snr.OpCmpLessOrEqual:    {"<=", precCmp},
	snr.OpCmpLess:           {"<", precCmp},
	snr.OpLogicalAnd:        {"&&", precAnd},
	snr.OpLogicalOr:         {"||", precOr},
}

var prefixOps = map[snr.ExprOp]string{
	snr.OpNegate:     "-",
	snr.OpBitwiseNot: "~",
	snr.OpCmpZero:    "!",
}

var callOps = map[snr.ExprOp]string{
	snr.OpAbs:        "abs",
	snr.OpSin:        "sin",
	snr.OpCos:        "cos",
	snr.OpTan:        "tan",
	snr.OpMin:        "min",
	snr.OpMax:        "max",
	snr.OpSelect:     "select",
	snr.OpDivide:     "div",
	snr.OpCmpNotZero: "nonzero",
}

// rpnText rebuilds source syntax from a validated RPN sequence.
func rpnText(e snr.Expression) string {
	var stack []frag
	pop := func() frag {
		if len(stack) == 0 {
			return atom("0")
		}
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return f
	}
	for _, term := range e {
		switch {
		case term.Op == snr.OpPush:
			f := atom(term.Value.String())
			if !term.Value.IsReg && term.Value.Value < 0 {
				f.prec = precUnary
			}
			stack = append(stack, f)
		case infixOps[term.Op].text != "":
			op := infixOps[term.Op]
			right := pop()
			left := pop()
			lt := left.text
			if left.prec < op.prec {
				lt = "(" + lt + ")"
			}
			rt := right.text
			if right.prec <= op.prec {
				rt = "(" + rt + ")"
			}
			stack = append(stack, frag{
				text: fmt.Sprintf("%s %s %s", lt, op.text, rt),
				prec: op.prec,
			})
		case prefixOps[term.Op] != "":
			v := pop()
			vt := v.text
			if v.prec < precUnary {
				vt = "(" + vt + ")"
			}
			stack = append(stack, frag{text: prefixOps[term.Op] + vt, prec: precUnary})
		case callOps[term.Op] != "":
			n := term.Op.ArgumentCount()
			args := make([]string, n)
			for k := n - 1; k >= 0; k-- {
				args[k] = pop().text
			}
			stack = append(stack, atom(callOps[term.Op]+"("+strings.Join(args, ", ")+")"))
		}
	}
	return pop().text
}
