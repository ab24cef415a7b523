package snr

import "fmt"

// ExprOp is a stack-machine operation inside an exp instruction. Values
// above OpPush are the wire bytes; a 0xff byte terminates the sequence.
type ExprOp uint8

const (
	OpPush              ExprOp = 0x00
	OpAdd               ExprOp = 0x01
	OpSubtract          ExprOp = 0x02
	OpMultiply          ExprOp = 0x03
	OpDivide            ExprOp = 0x04
	OpModulo            ExprOp = 0x05
	OpShiftLeft         ExprOp = 0x06
	OpShiftRight        ExprOp = 0x07
	OpBitwiseAnd        ExprOp = 0x08
	OpBitwiseOr         ExprOp = 0x09
	OpBitwiseXor        ExprOp = 0x0a
	OpNegate            ExprOp = 0x0b
	OpBitwiseNot        ExprOp = 0x0c
	OpAbs               ExprOp = 0x0d
	OpCmpEqual          ExprOp = 0x0e
	OpCmpNotEqual       ExprOp = 0x0f
	OpCmpGreaterOrEqual ExprOp = 0x10
	OpCmpGreater        ExprOp = 0x11
	OpCmpLessOrEqual    ExprOp = 0x12
	OpCmpLess           ExprOp = 0x13
	OpCmpZero           ExprOp = 0x14
	OpCmpNotZero        ExprOp = 0x15
	OpLogicalAnd        ExprOp = 0x16
	OpLogicalOr         ExprOp = 0x17
	OpSelect            ExprOp = 0x18
	OpMultiplyReal      ExprOp = 0x19
	OpDivideReal        ExprOp = 0x1a
	OpSin               ExprOp = 0x1b
	OpCos               ExprOp = 0x1c
	OpTan               ExprOp = 0x1d
	OpMin               ExprOp = 0x1e
	OpMax               ExprOp = 0x1f

	exprTerminator = 0xff
)

// ArgumentCount returns how many stack values the operation pops.
func (op ExprOp) ArgumentCount() int {
	switch op {
	case OpPush:
		return 0
	case OpNegate, OpBitwiseNot, OpAbs, OpCmpZero, OpCmpNotZero, OpSin, OpCos, OpTan:
		return 1
	case OpSelect:
		return 3
	default:
		return 2
	}
}

func (op ExprOp) valid() bool { return op <= OpMax }

// ExpressionTerm is one step of an exp instruction. Value is only meaningful
// for OpPush.
type ExpressionTerm struct {
	Op    ExprOp
	Value NumberSpec
}

func PushTerm(v NumberSpec) ExpressionTerm { return ExpressionTerm{Op: OpPush, Value: v} }

func OpTerm(op ExprOp) ExpressionTerm { return ExpressionTerm{Op: op} }

// Expression is an RPN term sequence that must evaluate to exactly one
// stack value.
type Expression []ExpressionTerm

// Validate simulates the stack depth of the expression.
func (e Expression) Validate() error {
	depth := 0
	for pos, term := range e {
		depth -= term.Op.ArgumentCount()
		if depth < 0 {
			return fmt.Errorf("expression underflows the stack at term %d", pos)
		}
		depth++
	}
	if depth != 1 {
		return fmt.Errorf("expression leaves %d values on the stack, want 1", depth)
	}
	return nil
}

func (e Expression) encode(w *Writer) error {
	if err := e.Validate(); err != nil {
		return err
	}
	for _, term := range e {
		w.U8(uint8(term.Op))
		if term.Op == OpPush {
			if err := term.Value.encode(w); err != nil {
				return err
			}
		}
	}
	w.U8(exprTerminator)
	return nil
}

func decodeExpression(r *Reader) Expression {
	var e Expression
	for {
		b := r.U8()
		if r.Err() != nil {
			return e
		}
		if b == exprTerminator {
			break
		}
		op := ExprOp(b)
		if !op.valid() {
			r.fail("unknown expression operation 0x%02x", b)
			return e
		}
		term := ExpressionTerm{Op: op}
		if op == OpPush {
			term.Value = decodeNumberSpec(r)
		}
		e = append(e, term)
	}
	if err := e.Validate(); err != nil {
		r.fail("%s", err)
	}
	return e
}
