package snr

import "fmt"

// CodeAddress is an absolute byte offset into the scenario file.
type CodeAddress uint32

// UnaryOpType selects the computation of a uo instruction.
type UnaryOpType uint8

const (
	UnaryZero  UnaryOpType = 0 // ignore the source, store 0
	UnaryNot16 UnaryOpType = 1 // source ^ 0xffff
	UnaryNeg   UnaryOpType = 2
	UnaryAbs   UnaryOpType = 3
)

// BinaryOpType selects the computation of a bo instruction.
type BinaryOpType uint8

const (
	BinaryMovRight     BinaryOpType = 0x00 // ignore the left operand, store the right
	BinaryZero         BinaryOpType = 0x01 // ignore both operands, store 0
	BinaryAdd          BinaryOpType = 0x02
	BinarySubtract     BinaryOpType = 0x03
	BinaryMultiply     BinaryOpType = 0x04
	BinaryDivide       BinaryOpType = 0x05
	BinaryModulo       BinaryOpType = 0x06 // L - R*floor(L/R)
	BinaryBitwiseAnd   BinaryOpType = 0x07
	BinaryBitwiseOr    BinaryOpType = 0x08
	BinaryBitwiseXor   BinaryOpType = 0x09
	BinaryLeftShift    BinaryOpType = 0x0a
	BinaryRightShift   BinaryOpType = 0x0b
	BinaryMultiplyReal BinaryOpType = 0x0c
	BinaryDivideReal   BinaryOpType = 0x0d
	BinaryATan2        BinaryOpType = 0x0e
	BinarySetBit       BinaryOpType = 0x0f
	BinaryClearBit     BinaryOpType = 0x10
	BinaryCtz          BinaryOpType = 0x11 // ctz((0xffffffff << R) & L)
)

// JumpCondKind selects the comparison of a jc instruction.
type JumpCondKind uint8

const (
	JumpEqual           JumpCondKind = 0x0
	JumpNotEqual        JumpCondKind = 0x1
	JumpGreaterOrEqual  JumpCondKind = 0x2
	JumpGreater         JumpCondKind = 0x3
	JumpLessOrEqual     JumpCondKind = 0x4
	JumpLess            JumpCondKind = 0x5
	JumpAndNotZero      JumpCondKind = 0x6 // L & R != 0
	JumpBitSet          JumpCondKind = 0x7 // L & (1 << R) != 0
)

// Instruction is one encodable scenario instruction or engine command.
type Instruction interface {
	Encode(w *Writer) error
}

// EncodedSize returns the byte size of the instruction's encoding. The size
// never depends on unresolved code addresses, which are fixed-width.
func EncodedSize(i Instruction) (int, error) {
	w := NewWriter()
	if err := i.Encode(w); err != nil {
		return 0, err
	}
	return w.Len(), nil
}

// UnaryOp computes a single-operand result into Dest. When the source
// operand equals the destination register the encoding omits it; the
// ExplicitOperand flag preserves a non-canonical explicit encoding read
// from a file.
type UnaryOp struct {
	Type            UnaryOpType
	Dest            Register
	Source          NumberSpec
	ExplicitOperand bool
}

func (i *UnaryOp) implicitSource() bool {
	return !i.ExplicitOperand && i.Source.IsReg && i.Source.Reg == i.Dest
}

func (i *UnaryOp) Encode(w *Writer) error {
	t := uint8(i.Type)
	implicit := i.implicitSource()
	if !implicit {
		t |= 0x80
	}
	w.U8(0x40)
	w.U8(t)
	w.U16(uint16(i.Dest))
	if implicit {
		return nil
	}
	return i.Source.encode(w)
}

// BinaryOp computes a two-operand result into Dest. Like UnaryOp, a left
// operand equal to the destination register is encoded implicitly.
type BinaryOp struct {
	Type         BinaryOpType
	Dest         Register
	Left         NumberSpec
	Right        NumberSpec
	ExplicitLeft bool
}

func (i *BinaryOp) implicitLeft() bool {
	return !i.ExplicitLeft && i.Left.IsReg && i.Left.Reg == i.Dest
}

func (i *BinaryOp) Encode(w *Writer) error {
	t := uint8(i.Type)
	implicit := i.implicitLeft()
	if !implicit {
		t |= 0x80
	}
	w.U8(0x41)
	w.U8(t)
	w.U16(uint16(i.Dest))
	if !implicit {
		if err := i.Left.encode(w); err != nil {
			return err
		}
	}
	return i.Right.encode(w)
}

// Exp evaluates an RPN expression and stores the result into Dest.
type Exp struct {
	Dest Register
	Expr Expression
}

func (i *Exp) Encode(w *Writer) error {
	w.U8(0x42)
	w.U16(uint16(i.Dest))
	return i.Expr.encode(w)
}

// GetTable selects Table[Index] into Dest. Entries are padded to 4 bytes.
type GetTable struct {
	Dest  Register
	Index NumberSpec
	Table []NumberSpec
}

func (i *GetTable) Encode(w *Writer) error {
	w.U8(0x44)
	w.U16(uint16(i.Dest))
	if err := i.Index.encode(w); err != nil {
		return err
	}
	if len(i.Table) > 0xffff {
		return fmt.Errorf("value table too long: %d entries", len(i.Table))
	}
	w.U16(uint16(len(i.Table)))
	for _, entry := range i.Table {
		start := w.Len()
		if err := entry.encode(w); err != nil {
			return err
		}
		for w.Len()-start < 4 {
			w.U8(0)
		}
	}
	return nil
}

// JumpCond jumps to Target when the comparison of Left and Right holds.
type JumpCond struct {
	Cond    JumpCondKind
	Negated bool
	Left    NumberSpec
	Right   NumberSpec
	Target  CodeAddress
}

func (i *JumpCond) Encode(w *Writer) error {
	c := uint8(i.Cond)
	if i.Negated {
		c |= 0x80
	}
	w.U8(0x46)
	w.U8(c)
	if err := i.Left.encode(w); err != nil {
		return err
	}
	if err := i.Right.encode(w); err != nil {
		return err
	}
	w.U32(uint32(i.Target))
	return nil
}

// Jump transfers control unconditionally.
type Jump struct {
	Target CodeAddress
}

func (i *Jump) Encode(w *Writer) error {
	w.U8(0x47)
	w.U32(uint32(i.Target))
	return nil
}

// Gosub calls a subroutine without passing arguments. Returned from with
// RetSub.
type Gosub struct {
	Target CodeAddress
}

func (i *Gosub) Encode(w *Writer) error {
	w.U8(0x48)
	w.U32(uint32(i.Target))
	return nil
}

type RetSub struct{}

func (i *RetSub) Encode(w *Writer) error {
	w.U8(0x49)
	return nil
}

// JumpTable jumps to Targets[Index].
type JumpTable struct {
	Index   NumberSpec
	Targets []CodeAddress
}

func (i *JumpTable) Encode(w *Writer) error {
	w.U8(0x4a)
	if err := i.Index.encode(w); err != nil {
		return err
	}
	if len(i.Targets) > 0xffff {
		return fmt.Errorf("jump table too long: %d entries", len(i.Targets))
	}
	w.U16(uint16(len(i.Targets)))
	for _, t := range i.Targets {
		w.U32(uint32(t))
	}
	return nil
}

// Rnd stores a uniformly random number in [Min, Max] into Dest.
type Rnd struct {
	Dest Register
	Min  NumberSpec
	Max  NumberSpec
}

func (i *Rnd) Encode(w *Writer) error {
	w.U8(0x4c)
	w.U16(uint16(i.Dest))
	if err := i.Min.encode(w); err != nil {
		return err
	}
	return i.Max.encode(w)
}

// Push saves values onto the call stack, to be restored with Pop before
// returning.
type Push struct {
	Values []NumberSpec
}

func (i *Push) Encode(w *Writer) error {
	w.U8(0x4d)
	if len(i.Values) > 0xff {
		return fmt.Errorf("push list too long: %d entries", len(i.Values))
	}
	w.U8(uint8(len(i.Values)))
	for _, v := range i.Values {
		if err := v.encode(w); err != nil {
			return err
		}
	}
	return nil
}

// Pop restores previously pushed values into registers, in order.
type Pop struct {
	Dest []Register
}

func (i *Pop) Encode(w *Writer) error {
	w.U8(0x4e)
	if len(i.Dest) > 0xff {
		return fmt.Errorf("pop list too long: %d entries", len(i.Dest))
	}
	w.U8(uint8(len(i.Dest)))
	for _, r := range i.Dest {
		w.U16(uint16(r))
	}
	return nil
}

// Call invokes a function, binding Args to $a0.. in the callee. Returned
// from with Return.
type Call struct {
	Target CodeAddress
	Args   []NumberSpec
}

func (i *Call) Encode(w *Writer) error {
	w.U8(0x4f)
	w.U32(uint32(i.Target))
	if len(i.Args) > NumArgRegisters {
		return fmt.Errorf("too many call arguments: %d", len(i.Args))
	}
	w.U8(uint8(len(i.Args)))
	for _, a := range i.Args {
		if err := a.encode(w); err != nil {
			return err
		}
	}
	return nil
}

type Return struct{}

func (i *Return) Encode(w *Writer) error {
	w.U8(0x50)
	return nil
}

// DecodeInstruction reads one instruction at the reader's position.
func DecodeInstruction(r *Reader) (Instruction, error) {
	opcode := r.U8()
	if r.Err() != nil {
		return nil, r.Err()
	}
	var instr Instruction
	switch opcode {
	case 0x40:
		t := r.U8()
		i := &UnaryOp{Type: UnaryOpType(t & 0x7f), Dest: Register(r.U16())}
		if t&0x7f > uint8(UnaryAbs) {
			r.fail("unknown unary operation type %d", t&0x7f)
			return nil, r.Err()
		}
		if t&0x80 != 0 {
			i.ExplicitOperand = true
			i.Source = decodeNumberSpec(r)
		} else {
			i.Source = FromRegister(i.Dest)
		}
		instr = i
	case 0x41:
		t := r.U8()
		if t&0x7f > uint8(BinaryCtz) {
			r.fail("unknown binary operation type %d", t&0x7f)
			return nil, r.Err()
		}
		i := &BinaryOp{Type: BinaryOpType(t & 0x7f), Dest: Register(r.U16())}
		if t&0x80 != 0 {
			i.ExplicitLeft = true
			i.Left = decodeNumberSpec(r)
		} else {
			i.Left = FromRegister(i.Dest)
		}
		i.Right = decodeNumberSpec(r)
		instr = i
	case 0x42:
		i := &Exp{Dest: Register(r.U16())}
		i.Expr = decodeExpression(r)
		instr = i
	case 0x44:
		i := &GetTable{Dest: Register(r.U16())}
		i.Index = decodeNumberSpec(r)
		count := int(r.U16())
		for n := 0; n < count && r.Err() == nil; n++ {
			start := r.Pos()
			entry := decodeNumberSpec(r)
			for r.Pos()-start < 4 && r.Err() == nil {
				r.U8()
			}
			i.Table = append(i.Table, entry)
		}
		instr = i
	case 0x46:
		c := r.U8()
		if c&0x7f > uint8(JumpBitSet) {
			r.fail("unknown jump condition type %d", c&0x7f)
			return nil, r.Err()
		}
		i := &JumpCond{Cond: JumpCondKind(c & 0x7f), Negated: c&0x80 != 0}
		i.Left = decodeNumberSpec(r)
		i.Right = decodeNumberSpec(r)
		i.Target = CodeAddress(r.U32())
		instr = i
	case 0x47:
		instr = &Jump{Target: CodeAddress(r.U32())}
	case 0x48:
		instr = &Gosub{Target: CodeAddress(r.U32())}
	case 0x49:
		instr = &RetSub{}
	case 0x4a:
		i := &JumpTable{Index: decodeNumberSpec(r)}
		count := int(r.U16())
		for n := 0; n < count && r.Err() == nil; n++ {
			i.Targets = append(i.Targets, CodeAddress(r.U32()))
		}
		instr = i
	case 0x4c:
		i := &Rnd{Dest: Register(r.U16())}
		i.Min = decodeNumberSpec(r)
		i.Max = decodeNumberSpec(r)
		instr = i
	case 0x4e:
		i := &Pop{}
		count := int(r.U8())
		for n := 0; n < count && r.Err() == nil; n++ {
			i.Dest = append(i.Dest, Register(r.U16()))
		}
		instr = i
	case 0x4d:
		i := &Push{}
		count := int(r.U8())
		for n := 0; n < count && r.Err() == nil; n++ {
			i.Values = append(i.Values, decodeNumberSpec(r))
		}
		instr = i
	case 0x4f:
		i := &Call{Target: CodeAddress(r.U32())}
		count := int(r.U8())
		for n := 0; n < count && r.Err() == nil; n++ {
			i.Args = append(i.Args, decodeNumberSpec(r))
		}
		instr = i
	case 0x50:
		instr = &Return{}
	default:
		var err error
		instr, err = decodeCommand(r, opcode)
		if err != nil {
			return nil, err
		}
	}
	return instr, r.Err()
}
