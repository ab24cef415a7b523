package codegen

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/snrtools/salc/pkg/config"
	"github.com/snrtools/salc/pkg/diag"
	"github.com/snrtools/salc/pkg/lexer"
	"github.com/snrtools/salc/pkg/parser"
	"github.com/snrtools/salc/pkg/snr"
	"github.com/snrtools/salc/pkg/symbols"
)

func assemble(t *testing.T, src string) ([]byte, *diag.Bag) {
	t.Helper()
	var bag diag.Bag
	root := parser.Parse(lexer.Tokenize(src, &bag), &bag)
	table := symbols.Collect(root, &bag)
	return Generate(table, config.NewConfig(), &bag), &bag
}

func assembleOK(t *testing.T, src string) []byte {
	t.Helper()
	bin, bag := assemble(t, src)
	if bag.HasErrors() {
		t.Fatalf("unexpected errors: %+v", bag.All())
	}
	return bin
}

type decoded struct {
	off   snr.CodeAddress
	instr snr.Instruction
}

func decodeAll(t *testing.T, bin []byte) []decoded {
	t.Helper()
	r := snr.NewReader(bin)
	h, err := snr.DecodeHeader(r)
	if err != nil {
		t.Fatalf("header: %v", err)
	}
	if h.Size != uint32(len(bin)) {
		t.Fatalf("header size = %d, file size = %d", h.Size, len(bin))
	}
	r.Seek(int(h.CodeOffset))
	var out []decoded
	for !r.AtEnd() {
		off := snr.CodeAddress(r.Pos())
		instr, err := snr.DecodeInstruction(r)
		if err != nil {
			t.Fatalf("decode at 0x%x: %v", off, err)
		}
		out = append(out, decoded{off, instr})
	}
	return out
}

func reg(t *testing.T, s string) snr.Register {
	t.Helper()
	r, err := snr.ParseRegister(s)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func hasError(bag *diag.Bag, substr string) bool {
	for _, d := range bag.All() {
		if d.Severity == diag.SeverityError && strings.Contains(d.Message, substr) {
			return true
		}
	}
	return false
}

func TestGCD(t *testing.T) {
	src := `function GCD($x, $y) [$v0-$v1]
	mov $v0, $x
	mov $v1, $y
LOOP:
	jc $v1 == 0, DONE
	mov $v2, $v0
	mod $v2, $v1
	mov $v0, $v1
	mov $v1, $v2
	j LOOP
DONE:
	return
endfun
`
	instrs := decodeAll(t, assembleOK(t, src))
	if len(instrs) != 11 {
		t.Fatalf("got %d instructions, want 11", len(instrs))
	}

	v0, v1, v2 := reg(t, "$v0"), reg(t, "$v1"), reg(t, "$v2")
	a0, a1 := reg(t, "$a0"), reg(t, "$a1")
	mov := func(dest, src snr.Register) snr.Instruction {
		return &snr.BinaryOp{Type: snr.BinaryMovRight, Dest: dest, Left: snr.FromRegister(dest), Right: snr.FromRegister(src)}
	}
	want := []snr.Instruction{
		&snr.Push{Values: []snr.NumberSpec{snr.FromRegister(v0), snr.FromRegister(v1)}},
		mov(v0, a0),
		mov(v1, a1),
		&snr.JumpCond{Cond: snr.JumpEqual, Left: snr.FromRegister(v1), Right: snr.Constant(0), Target: instrs[9].off},
		mov(v2, v0),
		&snr.BinaryOp{Type: snr.BinaryModulo, Dest: v2, Left: snr.FromRegister(v2), Right: snr.FromRegister(v1)},
		mov(v0, v1),
		mov(v1, v2),
		&snr.Jump{Target: instrs[3].off},
		&snr.Pop{Dest: []snr.Register{v1, v0}},
		&snr.Return{},
	}
	for i := range want {
		if diff := cmp.Diff(want[i], instrs[i].instr); diff != "" {
			t.Errorf("instruction %d mismatch (-want +got):\n%s", i, diff)
		}
	}
}

func TestJumpTableDispatch(t *testing.T) {
	src := `entry MAIN
	jt $v0, { 0 => CASE_A, 1 => CASE_B }
endentry

CASE_A:
	retsub

CASE_B:
	retsub
`
	instrs := decodeAll(t, assembleOK(t, src))
	if len(instrs) != 3 {
		t.Fatalf("got %d instructions, want 3", len(instrs))
	}
	jt, ok := instrs[0].instr.(*snr.JumpTable)
	if !ok {
		t.Fatalf("first instruction is %T, want *snr.JumpTable", instrs[0].instr)
	}
	want := []snr.CodeAddress{instrs[1].off, instrs[2].off}
	if diff := cmp.Diff(want, jt.Targets); diff != "" {
		t.Errorf("targets mismatch (-want +got):\n%s", diff)
	}
}

func TestEntryLaidOutFirst(t *testing.T) {
	src := `subroutine NOP
	retsub
endsub

entry MAIN
	EXIT 0, 0
endentry
`
	instrs := decodeAll(t, assembleOK(t, src))
	if _, ok := instrs[0].instr.(*snr.Exit); !ok {
		t.Errorf("first instruction is %T, want the entry's *snr.Exit", instrs[0].instr)
	}
}

func TestMessageFlags(t *testing.T) {
	src := `entry MAIN
	MSGINIT 0
	MSGSET 42, "Hello", nowait
	MSGWAIT -1
	MSGCLOSE wait
	EXIT 0, 0
endentry
`
	bin := assembleOK(t, src)
	instrs := decodeAll(t, bin)

	msg, ok := instrs[1].instr.(*snr.MsgSet)
	if !ok {
		t.Fatalf("instruction 1 is %T, want *snr.MsgSet", instrs[1].instr)
	}
	want := &snr.MsgSet{MsgID: 42, NoWait: true, Text: "Hello"}
	if diff := cmp.Diff(want, msg); diff != "" {
		t.Errorf("MSGSET mismatch (-want +got):\n%s", diff)
	}
	if mc := instrs[3].instr.(*snr.MsgClose); !mc.Wait {
		t.Error("MSGCLOSE wait flag not set")
	}

	r := snr.NewReader(bin)
	h, _ := snr.DecodeHeader(r)
	if h.DialogueLineCount != 1 {
		t.Errorf("dialogue line count = %d, want 1", h.DialogueLineCount)
	}
}

func TestDuplicateCase(t *testing.T) {
	src := `entry MAIN
	jt $v0, { 0 => A, 0 => B, 1 => B }
endentry

A:
	retsub

B:
	retsub
`
	bin, bag := assemble(t, src)
	if bag.HasErrors() {
		t.Fatalf("unexpected errors: %+v", bag.All())
	}
	warned := false
	for _, d := range bag.All() {
		if d.Severity == diag.SeverityWarning && strings.Contains(d.Message, "duplicate case") {
			warned = true
		}
	}
	if !warned {
		t.Error("expected a duplicate-case warning")
	}

	instrs := decodeAll(t, bin)
	jt := instrs[0].instr.(*snr.JumpTable)
	if jt.Targets[0] != instrs[1].off {
		t.Errorf("case 0 jumps to 0x%x, want the first target A at 0x%x", jt.Targets[0], instrs[1].off)
	}
}

func TestExpressionFolding(t *testing.T) {
	src := `function F()
	exp $v0, 2 + 3 * 4
	exp $v1, 3 / 2
	exp $v2, $v0 + 1
	return
endfun
`
	instrs := decodeAll(t, assembleOK(t, src))
	v0 := reg(t, "$v0")
	want := []snr.Expression{
		{snr.PushTerm(snr.Constant(14))},
		{snr.PushTerm(snr.Constant(1500))},
		{snr.PushTerm(snr.FromRegister(v0)), snr.PushTerm(snr.Constant(1)), snr.OpTerm(snr.OpAdd)},
	}
	for i := range want {
		e := instrs[i].instr.(*snr.Exp)
		if diff := cmp.Diff(want[i], e.Expr); diff != "" {
			t.Errorf("exp %d mismatch (-want +got):\n%s", i, diff)
		}
	}
}

func TestRealPromotion(t *testing.T) {
	src := `function F()
	exp $v0, 1.5 + 2
	exp $v1, 1.5 .* 2.0
	return
endfun
`
	instrs := decodeAll(t, assembleOK(t, src))
	// 1.5 + 2 promotes the integer: raw 1500 + 2000
	e0 := instrs[0].instr.(*snr.Exp)
	if diff := cmp.Diff(snr.Expression{snr.PushTerm(snr.Constant(3500))}, e0.Expr); diff != "" {
		t.Errorf("promotion mismatch (-want +got):\n%s", diff)
	}
	// fixed-point multiply: 1500 * 2000 / 1000
	e1 := instrs[1].instr.(*snr.Exp)
	if diff := cmp.Diff(snr.Expression{snr.PushTerm(snr.Constant(3000))}, e1.Expr); diff != "" {
		t.Errorf("fixed-point multiply mismatch (-want +got):\n%s", diff)
	}
}

func TestExponentLiteralFolding(t *testing.T) {
	src := `function F()
	exp $v0, 2e3
	exp $v1, 1.5e-2 + 1
	return
endfun
`
	instrs := decodeAll(t, assembleOK(t, src))
	want := []snr.Expression{
		// 2e3 is the real 2000.0, raw 2000000
		{snr.PushTerm(snr.Constant(2000000))},
		// 0.015 promotes the integer: raw 15 + 1000
		{snr.PushTerm(snr.Constant(1015))},
	}
	for i := range want {
		e := instrs[i].instr.(*snr.Exp)
		if diff := cmp.Diff(want[i], e.Expr); diff != "" {
			t.Errorf("exp %d mismatch (-want +got):\n%s", i, diff)
		}
	}
}

func TestLoweringErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			"division by constant zero",
			"function F()\n\texp $v0, 1 / 0\n\treturn\nendfun\n",
			"division by zero",
		},
		{
			"computed expression outside exp",
			"function F()\n\tmov $v0, $v1 + 1\n\treturn\nendfun\n",
			"only allowed in 'exp'",
		},
		{
			"undeclared alias",
			"function F($x)\n\tmov $v0, $z\n\treturn\nendfun\n",
			"undeclared register alias",
		},
		{
			"call arity mismatch",
			"function F($x)\n\treturn\nendfun\n\nentry MAIN\n\tcall F, 1, 2\nendentry\n",
			"takes 1 argument",
		},
		{
			"undefined jump target",
			"entry MAIN\n\tj NOWHERE\nendentry\n",
			"undefined reference to 'NOWHERE'",
		},
		{
			"kind mismatch on fixed-point multiply",
			"function F()\n\texp $v0, 2 .* 1.5\n\treturn\nendfun\n",
			"must have the same kind",
		},
		{
			"return outside a function",
			"entry MAIN\n\treturn\nendentry\n",
			"'return' outside a function",
		},
		{
			"unknown mnemonic",
			"entry MAIN\n\tfrobnicate $v0\nendentry\n",
			"unknown instruction",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, bag := assemble(t, tt.src)
			if !hasError(bag, tt.want) {
				t.Errorf("expected an error containing %q, got %+v", tt.want, bag.All())
			}
		})
	}
}

func TestEarlyReturnRestoresPreserves(t *testing.T) {
	src := `function F($x) [$v5]
	jc $x == 0, OUT
	mov $v5, $x
OUT:
	return
endfun
`
	instrs := decodeAll(t, assembleOK(t, src))
	v5 := reg(t, "$v5")
	want := []snr.Instruction{
		&snr.Push{Values: []snr.NumberSpec{snr.FromRegister(v5)}},
		&snr.JumpCond{Cond: snr.JumpEqual, Left: snr.FromRegister(reg(t, "$a0")), Right: snr.Constant(0), Target: instrs[3].off},
		&snr.BinaryOp{Type: snr.BinaryMovRight, Dest: v5, Left: snr.FromRegister(v5), Right: snr.FromRegister(reg(t, "$a0"))},
		&snr.Pop{Dest: []snr.Register{v5}},
		&snr.Return{},
	}
	for i := range want {
		if diff := cmp.Diff(want[i], instrs[i].instr); diff != "" {
			t.Errorf("instruction %d mismatch (-want +got):\n%s", i, diff)
		}
	}
}

func TestUnusedAliasWarning(t *testing.T) {
	src := "function F($x, $y)\n\tmov $v0, $x\n\treturn\nendfun\n"
	_, bag := assemble(t, src)
	if bag.HasErrors() {
		t.Fatalf("unexpected errors: %+v", bag.All())
	}
	found := false
	for _, d := range bag.All() {
		if d.Severity == diag.SeverityWarning && strings.Contains(d.Message, "unused parameter '$y'") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected an unused-parameter warning for $y, got %+v", bag.All())
	}
}

func TestNegatedCondition(t *testing.T) {
	src := `entry MAIN
	jc !($v0 < 10), OUT
OUT:
	EXIT 0, 0
endentry
`
	instrs := decodeAll(t, assembleOK(t, src))
	jc := instrs[0].instr.(*snr.JumpCond)
	if jc.Cond != snr.JumpLess || !jc.Negated {
		t.Errorf("cond = %d negated = %v, want less negated", jc.Cond, jc.Negated)
	}
}
