package snr

import "fmt"

// Constant range representable by the widest NumberSpec form (28-bit signed).
const (
	MinConstant = -0x8000000
	MaxConstant = 0x7ffffff
)

// NumberSpec is a variable-width operand: either a constant or a register
// reference, always encoded in its narrowest form.
//
// The first byte is TXXXXXXX. T=0 makes XXXXXXX a 7-bit signed constant.
// T=1 makes the byte 1PPPKKKK:
//
//	P=0  12-bit constant, K is the upper 4 bits, 1 more byte
//	P=1  20-bit constant, K is the upper 4 bits, 2 more bytes (high first)
//	P=2  28-bit constant, K is the upper 4 bits, 3 more bytes (high first)
//	P=3  regular register, index K
//	P=4  regular register, 12-bit index, K upper 4 bits, 1 more byte
//	P=5  argument register, index K
type NumberSpec struct {
	Reg   Register
	Value int32
	IsReg bool
}

func Constant(v int32) NumberSpec { return NumberSpec{Value: v} }

func FromRegister(r Register) NumberSpec { return NumberSpec{Reg: r, IsReg: true} }

func (n NumberSpec) String() string {
	if n.IsReg {
		return n.Reg.String()
	}
	return fmt.Sprintf("%d", n.Value)
}

func encTag(p, k uint8) uint8 { return 0x80 | p<<4 | k }

func (n NumberSpec) encode(w *Writer) error {
	if n.IsReg {
		if n.Reg.IsArgument() {
			if n.Reg.Index() >= NumArgRegisters {
				return fmt.Errorf("argument register out of operand range: %s", n.Reg)
			}
			w.U8(encTag(5, uint8(n.Reg.Index())))
			return nil
		}
		index := n.Reg.Index()
		if index <= 15 {
			w.U8(encTag(3, uint8(index)))
			return nil
		}
		w.U8(encTag(4, uint8(index>>8)))
		w.U8(uint8(index))
		return nil
	}

	v := n.Value
	switch {
	case v >= -0x40 && v <= 0x3f:
		w.U8(uint8(v) & 0x7f)
	case v >= -0x800 && v <= 0x7ff:
		w.U8(encTag(0, uint8(v>>8)&0xf))
		w.U8(uint8(v))
	case v >= -0x80000 && v <= 0x7ffff:
		w.U8(encTag(1, uint8(v>>16)&0xf))
		w.U8(uint8(v >> 8))
		w.U8(uint8(v))
	case v >= MinConstant && v <= MaxConstant:
		w.U8(encTag(2, uint8(v>>24)&0xf))
		w.U8(uint8(v >> 16))
		w.U8(uint8(v >> 8))
		w.U8(uint8(v))
	default:
		return fmt.Errorf("constant out of operand range: %d", v)
	}
	return nil
}

func decodeNumberSpec(r *Reader) NumberSpec {
	t := r.U8()
	if t&0x80 == 0 {
		// sign-extend the 7-bit payload
		return Constant(int32(t&0x7f) << 25 >> 25)
	}
	p := t >> 4 & 0x7
	k := int32(t & 0xf)
	kSext := k << 28 >> 28
	switch p {
	case 0:
		return Constant(int32(r.U8()) | kSext<<8)
	case 1:
		b1 := int32(r.U8())
		b2 := int32(r.U8())
		return Constant(b2 | b1<<8 | kSext<<16)
	case 2:
		b1 := int32(r.U8())
		b2 := int32(r.U8())
		b3 := int32(r.U8())
		return Constant(b3 | b2<<8 | b1<<16 | kSext<<24)
	case 3:
		return FromRegister(Register(k))
	case 4:
		return FromRegister(Register(int32(r.U8()) | k<<8))
	case 5:
		return FromRegister(Register(argumentBit | k))
	}
	r.fail("unknown operand form: t=0x%02x, P=%d", t, p)
	return NumberSpec{}
}
