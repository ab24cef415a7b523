// Package disasm decodes a scenario binary back into instructions and prints
// canonical assembly text. Every address operand gets a synthetic L_%08x
// label, so the output is a sequence of labeled script units that reassembles
// to the original bytes.
package disasm

import (
	"fmt"
	"strings"

	"github.com/snrtools/salc/pkg/snr"
)

// Entry is one decoded instruction and its absolute file offset.
type Entry struct {
	Addr  snr.CodeAddress
	Instr snr.Instruction
}

type Disassembly struct {
	Header snr.Header
	Instrs []Entry
	Labels map[snr.CodeAddress]string
}

// Decode reads the whole file. Jump targets must land on instruction
// boundaries; anything else is a decode error.
func Decode(bin []byte) (*Disassembly, error) {
	r := snr.NewReader(bin)
	h, err := snr.DecodeHeader(r)
	if err != nil {
		return nil, err
	}
	if h.Size != uint32(len(bin)) {
		return nil, fmt.Errorf("header size %d does not match file size %d", h.Size, len(bin))
	}
	r.Seek(int(h.CodeOffset))

	d := &Disassembly{Header: h, Labels: make(map[snr.CodeAddress]string)}
	starts := make(map[snr.CodeAddress]bool)
	for !r.AtEnd() {
		addr := snr.CodeAddress(r.Pos())
		instr, err := snr.DecodeInstruction(r)
		if err != nil {
			return nil, err
		}
		starts[addr] = true
		d.Instrs = append(d.Instrs, Entry{Addr: addr, Instr: instr})
	}

	label := func(a snr.CodeAddress) error {
		if !starts[a] {
			return fmt.Errorf("jump target 0x%x is not at an instruction boundary", a)
		}
		d.Labels[a] = fmt.Sprintf("L_%08x", uint32(a))
		return nil
	}
	for _, e := range d.Instrs {
		var targets []snr.CodeAddress
		switch i := e.Instr.(type) {
		case *snr.Jump:
			targets = []snr.CodeAddress{i.Target}
		case *snr.Gosub:
			targets = []snr.CodeAddress{i.Target}
		case *snr.Call:
			targets = []snr.CodeAddress{i.Target}
		case *snr.JumpCond:
			targets = []snr.CodeAddress{i.Target}
		case *snr.JumpTable:
			targets = i.Targets
		}
		for _, t := range targets {
			if err := label(t); err != nil {
				return nil, err
			}
		}
	}
	// the first instruction opens the initial unit
	if len(d.Instrs) > 0 {
		d.Labels[d.Instrs[0].Addr] = fmt.Sprintf("L_%08x", uint32(d.Instrs[0].Addr))
	}
	return d, nil
}

// Print renders the canonical text: one instruction per line, labels at
// column zero, lowercase core mnemonics and uppercase engine commands.
func (d *Disassembly) Print() string {
	var sb strings.Builder
	for _, e := range d.Instrs {
		if name, ok := d.Labels[e.Addr]; ok {
			fmt.Fprintf(&sb, "%s:\n", name)
		}
		sb.WriteString("\t")
		sb.WriteString(d.instrText(e.Instr))
		sb.WriteString("\n")
	}
	return sb.String()
}

// Disassemble decodes and prints in one step.
func Disassemble(bin []byte) (string, error) {
	d, err := Decode(bin)
	if err != nil {
		return "", err
	}
	return d.Print(), nil
}

func (d *Disassembly) target(a snr.CodeAddress) string { return d.Labels[a] }

var unaryNames = map[snr.UnaryOpType]string{
	snr.UnaryZero: "zero", snr.UnaryNot16: "not16",
	snr.UnaryNeg: "neg", snr.UnaryAbs: "abs",
}

var binaryNames = map[snr.BinaryOpType]string{
	snr.BinaryMovRight: "mov", snr.BinaryZero: "bzero",
	snr.BinaryAdd: "add", snr.BinarySubtract: "sub",
	snr.BinaryMultiply: "mul", snr.BinaryDivide: "div",
	snr.BinaryModulo: "mod", snr.BinaryBitwiseAnd: "and",
	snr.BinaryBitwiseOr: "or", snr.BinaryBitwiseXor: "xor",
	snr.BinaryLeftShift: "shl", snr.BinaryRightShift: "shr",
	snr.BinaryMultiplyReal: "mulr", snr.BinaryDivideReal: "divr",
	snr.BinaryATan2: "atan2", snr.BinarySetBit: "setbit",
	snr.BinaryClearBit: "clrbit", snr.BinaryCtz: "ctz",
}

var condTexts = map[snr.JumpCondKind]string{
	snr.JumpEqual: "==", snr.JumpNotEqual: "!=",
	snr.JumpGreaterOrEqual: ">=", snr.JumpGreater: ">",
	snr.JumpLessOrEqual: "<=", snr.JumpLess: "<",
	snr.JumpAndNotZero: "&",
}

func (d *Disassembly) instrText(instr snr.Instruction) string {
	switch i := instr.(type) {
	case *snr.UnaryOp:
		if i.ExplicitOperand {
			return fmt.Sprintf("%s %s, %s", unaryNames[i.Type], i.Dest, i.Source)
		}
		return fmt.Sprintf("%s %s", unaryNames[i.Type], i.Dest)
	case *snr.BinaryOp:
		if i.ExplicitLeft {
			return fmt.Sprintf("%s %s, %s, %s", binaryNames[i.Type], i.Dest, i.Left, i.Right)
		}
		return fmt.Sprintf("%s %s, %s", binaryNames[i.Type], i.Dest, i.Right)
	case *snr.Exp:
		return fmt.Sprintf("exp %s, %s", i.Dest, rpnText(i.Expr))
	case *snr.GetTable:
		parts := []string{i.Dest.String(), i.Index.String()}
		for _, e := range i.Table {
			parts = append(parts, e.String())
		}
		return "gt " + strings.Join(parts, ", ")
	case *snr.JumpCond:
		cond := fmt.Sprintf("%s %s %s", i.Left, condTexts[i.Cond], i.Right)
		if i.Cond == snr.JumpBitSet {
			cond = fmt.Sprintf("bit(%s, %s)", i.Left, i.Right)
		}
		if i.Negated {
			cond = "!(" + cond + ")"
		}
		return fmt.Sprintf("jc %s, %s", cond, d.target(i.Target))
	case *snr.Jump:
		return "j " + d.target(i.Target)
	case *snr.Gosub:
		return "gosub " + d.target(i.Target)
	case *snr.RetSub:
		return "retsub"
	case *snr.JumpTable:
		var arms []string
		for k, t := range i.Targets {
			arms = append(arms, fmt.Sprintf("%d => %s", k, d.target(t)))
		}
		return fmt.Sprintf("jt %s, { %s }", i.Index, strings.Join(arms, ", "))
	case *snr.Rnd:
		return fmt.Sprintf("rnd %s, %s, %s", i.Dest, i.Min, i.Max)
	case *snr.Push:
		return "push " + joinSpecs(i.Values)
	case *snr.Pop:
		var parts []string
		for _, r := range i.Dest {
			parts = append(parts, r.String())
		}
		return "pop " + strings.Join(parts, ", ")
	case *snr.Call:
		parts := []string{d.target(i.Target)}
		for _, a := range i.Args {
			parts = append(parts, a.String())
		}
		return "call " + strings.Join(parts, ", ")
	case *snr.Return:
		return "return"
	case *snr.Exit:
		return fmt.Sprintf("EXIT %d, %s", i.Arg1, i.Arg2)
	case *snr.SGet:
		return fmt.Sprintf("SGET %s, %s", i.Dest, i.Slot)
	case *snr.SSet:
		return fmt.Sprintf("SSET %s, %s", i.Slot, i.Value)
	case *snr.Wait:
		if i.Interruptable {
			return fmt.Sprintf("WAIT %s, interruptable", i.Amount)
		}
		return fmt.Sprintf("WAIT %s", i.Amount)
	case *snr.MsgInit:
		return fmt.Sprintf("MSGINIT %s", i.Style)
	case *snr.MsgSet:
		s := fmt.Sprintf("MSGSET %d, %s", i.MsgID, quote(i.Text))
		if i.NoWait {
			s += ", nowait"
		}
		return s
	case *snr.MsgWait:
		return fmt.Sprintf("MSGWAIT %s", i.SignalNum)
	case *snr.MsgSignal:
		return "MSGSIGNAL"
	case *snr.MsgClose:
		if i.Wait {
			return "MSGCLOSE wait"
		}
		return "MSGCLOSE"
	case *snr.BgmPlay:
		return fmt.Sprintf("BGMPLAY %s, %s, %s, %s", i.DataID, i.FadeInTime, i.NoRepeat, i.Volume)
	case *snr.BgmStop:
		return fmt.Sprintf("BGMSTOP %s", i.FadeOutTime)
	case *snr.BgmVol:
		return fmt.Sprintf("BGMVOL %s, %s", i.Volume, i.FadeInTime)
	case *snr.SaveInfo:
		return fmt.Sprintf("SAVEINFO %s, %s", i.Level, quote(i.Info))
	case *snr.AutoSave:
		return "AUTOSAVE"
	}
	return fmt.Sprintf("// unprintable %T", instr)
}

func joinSpecs(specs []snr.NumberSpec) string {
	parts := make([]string, len(specs))
	for i, s := range specs {
		parts[i] = s.String()
	}
	return strings.Join(parts, ", ")
}

func quote(s string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for _, b := range []byte(s) {
		switch b {
		case '\\':
			sb.WriteString(`\\`)
		case '"':
			sb.WriteString(`\"`)
		case '\n':
			sb.WriteString(`\n`)
		case '\t':
			sb.WriteString(`\t`)
		case '\r':
			sb.WriteString(`\r`)
		default:
			if b < 0x20 {
				fmt.Fprintf(&sb, `\x%02x`, b)
			} else {
				sb.WriteByte(b)
			}
		}
	}
	sb.WriteByte('"')
	return sb.String()
}
