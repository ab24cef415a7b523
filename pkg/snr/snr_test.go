package snr

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func encodeSpec(t *testing.T, n NumberSpec) []byte {
	t.Helper()
	w := NewWriter()
	if err := n.encode(w); err != nil {
		t.Fatalf("encode %v: %v", n, err)
	}
	return w.Bytes()
}

func mustReg(t *testing.T, s string) Register {
	t.Helper()
	r, err := ParseRegister(s)
	if err != nil {
		t.Fatalf("ParseRegister(%q): %v", s, err)
	}
	return r
}

func TestNumberSpecEncoding(t *testing.T) {
	tests := []struct {
		spec NumberSpec
		hex  string
	}{
		// 7-bit form
		{Constant(0), "00"},
		{Constant(1), "01"},
		{Constant(-1), "7f"},
		{Constant(63), "3f"},
		{Constant(-64), "40"},
		// 12-bit form
		{Constant(64), "8040"},
		{Constant(-65), "8fbf"},
		{Constant(128), "8080"},
		{Constant(2047), "87ff"},
		{Constant(-2048), "8800"},
		// 20-bit form
		{Constant(2048), "900800"},
		{Constant(-2049), "9ff7ff"},
		{Constant(4096), "901000"},
		{Constant(524287), "97ffff"},
		{Constant(-524288), "980000"},
		// 28-bit form
		{Constant(524288), "a0080000"},
		{Constant(-524289), "aff7ffff"},
		{Constant(16777216), "a1000000"},
		{Constant(MaxConstant), "a7ffffff"},
		{Constant(MinConstant), "a8000000"},
		// registers
		{FromRegister(Register(0)), "b0"},
		{FromRegister(Register(1)), "b1"},
		{FromRegister(Register(15)), "bf"},
		{FromRegister(Register(16)), "c010"},
		{FromRegister(Register(0xfff)), "cfff"},
		{FromRegister(Register(0x1000)), "d0"},
		{FromRegister(Register(0x100f)), "df"},
	}
	for _, tt := range tests {
		got := hex.EncodeToString(encodeSpec(t, tt.spec))
		if got != tt.hex {
			t.Errorf("encode %v = %s, want %s", tt.spec, got, tt.hex)
		}
		r := NewReader(encodeSpec(t, tt.spec))
		back := decodeNumberSpec(r)
		if r.Err() != nil {
			t.Errorf("decode %s: %v", tt.hex, r.Err())
		}
		if back != tt.spec {
			t.Errorf("decode %s = %v, want %v", tt.hex, back, tt.spec)
		}
	}
}

func TestNumberSpecOutOfRange(t *testing.T) {
	for _, v := range []int32{MaxConstant + 1, MinConstant - 1, 1 << 30, -(1 << 30)} {
		w := NewWriter()
		if err := Constant(v).encode(w); err == nil {
			t.Errorf("expected range error for %d", v)
		}
	}
}

func TestRegisterParsing(t *testing.T) {
	tests := []struct {
		text string
		raw  Register
	}{
		{"$v0", 0x0000},
		{"$v15", 0x000f},
		{"$v4095", 0x0fff},
		{"$a0", 0x1000},
		{"$a15", 0x100f},
	}
	for _, tt := range tests {
		r := mustReg(t, tt.text)
		if r != tt.raw {
			t.Errorf("ParseRegister(%q) = %#x, want %#x", tt.text, uint16(r), uint16(tt.raw))
		}
		if r.String() != tt.text {
			t.Errorf("%#x.String() = %q, want %q", uint16(r), r.String(), tt.text)
		}
	}
	for _, bad := range []string{"$", "$v", "$x0", "$v4096", "$a-1", "v0"} {
		if _, err := ParseRegister(bad); err == nil {
			t.Errorf("expected parse error for %q", bad)
		}
	}
}

func TestExpressionEncoding(t *testing.T) {
	tests := []struct {
		expr Expression
		hex  string
	}{
		{Expression{PushTerm(Constant(42))}, "002aff"},
		{Expression{PushTerm(Constant(1)), PushTerm(Constant(2)), OpTerm(OpAdd)}, "0001000201ff"},
		{Expression{PushTerm(Constant(1)), PushTerm(Constant(2)), PushTerm(Constant(3)), OpTerm(OpSelect)}, "00010002000318ff"},
	}
	for _, tt := range tests {
		w := NewWriter()
		if err := tt.expr.encode(w); err != nil {
			t.Fatalf("encode: %v", err)
		}
		if got := hex.EncodeToString(w.Bytes()); got != tt.hex {
			t.Errorf("encode = %s, want %s", got, tt.hex)
		}
		r := NewReader(w.Bytes())
		back := decodeExpression(r)
		if r.Err() != nil {
			t.Fatalf("decode: %v", r.Err())
		}
		if diff := cmp.Diff(tt.expr, back); diff != "" {
			t.Errorf("round trip mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestExpressionValidation(t *testing.T) {
	if err := (Expression{}).Validate(); err == nil {
		t.Error("empty expression should not validate")
	}
	if err := (Expression{OpTerm(OpAdd)}).Validate(); err == nil {
		t.Error("underflowing expression should not validate")
	}
	if err := (Expression{PushTerm(Constant(1)), PushTerm(Constant(2))}).Validate(); err == nil {
		t.Error("expression leaving two values should not validate")
	}
}

func encodeInstr(t *testing.T, i Instruction) []byte {
	t.Helper()
	w := NewWriter()
	if err := i.Encode(w); err != nil {
		t.Fatalf("encode %#v: %v", i, err)
	}
	return w.Bytes()
}

func TestInstructionEncoding(t *testing.T) {
	v0 := mustReg(t, "$v0")
	v1 := mustReg(t, "$v1")
	tests := []struct {
		instr Instruction
		hex   string
	}{
		{&UnaryOp{Type: UnaryNeg, Dest: v0, Source: Constant(42)}, "4082" + "0000" + "2a"},
		{&UnaryOp{Type: UnaryAbs, Dest: v1, Source: Constant(42)}, "4083" + "0100" + "2a"},
		{&UnaryOp{Type: UnaryZero, Dest: v1, Source: FromRegister(v1)}, "4000" + "0100"},
		{&BinaryOp{Type: BinaryAdd, Dest: v0, Left: FromRegister(v0), Right: Constant(1)}, "4102" + "0000" + "01"},
		{&BinaryOp{Type: BinaryAdd, Dest: v0, Left: FromRegister(v1), Right: Constant(1)}, "4182" + "0000" + "b1" + "01"},
		{&Jump{Target: 0x80}, "47" + "80000000"},
		{&Gosub{Target: 0x1234}, "48" + "34120000"},
		{&RetSub{}, "49"},
		{&Return{}, "50"},
		{&JumpTable{Index: FromRegister(v0), Targets: []CodeAddress{0x80, 0x90}}, "4a" + "b0" + "0200" + "80000000" + "90000000"},
		{&Rnd{Dest: v0, Min: Constant(1), Max: Constant(6)}, "4c" + "0000" + "01" + "06"},
		{&Push{Values: []NumberSpec{FromRegister(v0), FromRegister(v1)}}, "4d" + "02" + "b0" + "b1"},
		{&Pop{Dest: []Register{v1, v0}}, "4e" + "02" + "0100" + "0000"},
		{&Call{Target: 0x80, Args: []NumberSpec{Constant(5)}}, "4f" + "80000000" + "01" + "05"},
		{&Exp{Dest: v0, Expr: Expression{PushTerm(Constant(1)), PushTerm(Constant(2)), OpTerm(OpAdd)}}, "42" + "0000" + "0001000201ff"},
		{&GetTable{Dest: v0, Index: Constant(1), Table: []NumberSpec{Constant(10), Constant(2048)}}, "44" + "0000" + "01" + "0200" + "0a000000" + "90080000"},
		{&JumpCond{Cond: JumpEqual, Left: FromRegister(v0), Right: Constant(0), Target: 0x80}, "46" + "00" + "b0" + "00" + "80000000"},
		{&JumpCond{Cond: JumpLess, Negated: true, Left: FromRegister(v0), Right: Constant(0), Target: 0x80}, "46" + "85" + "b0" + "00" + "80000000"},
		{&Exit{Arg1: 0, Arg2: Constant(0)}, "00" + "00" + "00"},
		{&SGet{Dest: v0, Slot: Constant(7)}, "81" + "0000" + "07"},
		{&SSet{Slot: Constant(7), Value: Constant(1)}, "82" + "07" + "01"},
		{&Wait{Interruptable: true, Amount: Constant(60)}, "83" + "01" + "3c"},
		{&MsgInit{Style: Constant(0)}, "85" + "00"},
		{&MsgSet{MsgID: 0x123456, NoWait: true, Text: "hi"}, "86" + "563412" + "01" + "0300" + "6869" + "00"},
		{&MsgWait{SignalNum: Constant(-1)}, "87" + "7f"},
		{&MsgSignal{}, "88"},
		{&MsgClose{Wait: true}, "8a" + "01"},
		{&BgmPlay{DataID: Constant(3), FadeInTime: Constant(0), NoRepeat: Constant(0), Volume: Constant(1000)}, "90" + "03" + "00" + "00" + "83e8"},
		{&BgmStop{FadeOutTime: Constant(120)}, "91" + "8078"},
		{&BgmVol{Volume: Constant(500), FadeInTime: Constant(0)}, "92" + "81f4" + "00"},
		{&SaveInfo{Level: Constant(0), Info: "Chapter 1"}, "a0" + "00" + "0a00" + hex.EncodeToString([]byte("Chapter 1")) + "00"},
		{&AutoSave{}, "a1"},
	}
	for _, tt := range tests {
		got := hex.EncodeToString(encodeInstr(t, tt.instr))
		if got != tt.hex {
			t.Errorf("encode %#v = %s, want %s", tt.instr, got, tt.hex)
			continue
		}
		r := NewReader(encodeInstr(t, tt.instr))
		back, err := DecodeInstruction(r)
		if err != nil {
			t.Errorf("decode %s: %v", tt.hex, err)
			continue
		}
		if diff := cmp.Diff(tt.instr, back); diff != "" {
			t.Errorf("round trip mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestImplicitOperandRoundTrip(t *testing.T) {
	// A file may carry the explicit form even when the operand equals the
	// destination; the flag keeps re-encoding byte-exact.
	raw, _ := hex.DecodeString("418200" + "00" + "b0" + "01") // add $v0, $v0, 1 with explicit left
	r := NewReader(raw)
	instr, err := DecodeInstruction(r)
	if err != nil {
		t.Fatal(err)
	}
	bo := instr.(*BinaryOp)
	if !bo.ExplicitLeft {
		t.Fatal("explicit flag not preserved")
	}
	if got := encodeInstr(t, bo); !bytes.Equal(got, raw) {
		t.Errorf("re-encode = %x, want %x", got, raw)
	}
	// The assembler's own canonical form is implicit.
	bo.ExplicitLeft = false
	if got := hex.EncodeToString(encodeInstr(t, bo)); got != "41020000"+"01" {
		t.Errorf("canonical form = %s, want 4102000001", got)
	}
}

func TestMsgSetUTF8(t *testing.T) {
	c := &MsgSet{MsgID: 1, Text: "こんにちは"}
	r := NewReader(encodeInstr(t, c))
	back, err := DecodeInstruction(r)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(c, back); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeErrors(t *testing.T) {
	cases := map[string]string{
		"unknown opcode":     "f3",
		"truncated uo":       "4082",
		"bad unary type":     "400f0000",
		"bad jump cond":      "460f",
		"bad expression op":  "420000" + "20ff",
		"truncated constant": "90",
		"bad operand form":   "f0", // decoded as operand inside push
	}
	for name, h := range cases {
		raw, err := hex.DecodeString(h)
		if err != nil {
			t.Fatal(err)
		}
		if name == "bad operand form" {
			raw = append([]byte{0x4d, 0x01}, raw...)
		}
		r := NewReader(raw)
		if _, err := DecodeInstruction(r); err == nil && r.Err() == nil {
			t.Errorf("%s: expected a decode error", name)
		}
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{
		Size:              0xad,
		DialogueLineCount: 27,
		Unk2:              6,
		Unk3:              19,
		CodeOffset:        HeaderSize,
	}
	w := NewWriter()
	h.Encode(w)
	if w.Len() != HeaderSize {
		t.Fatalf("header size = %d, want %d", w.Len(), HeaderSize)
	}
	wantPrefix, _ := hex.DecodeString("534e5220" + "ad000000" + "1b000000" + "06000000" + "13000000")
	if !bytes.Equal(w.Bytes()[:len(wantPrefix)], wantPrefix) {
		t.Errorf("header prefix = %x, want %x", w.Bytes()[:len(wantPrefix)], wantPrefix)
	}
	back, err := DecodeHeader(NewReader(w.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if back != h {
		t.Errorf("round trip = %+v, want %+v", back, h)
	}
	if _, err := DecodeHeader(NewReader([]byte("BAD MAGIC HERE__"))); err == nil {
		t.Error("expected a magic error")
	}
}
