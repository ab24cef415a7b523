package disasm

import (
	"bytes"
	"strings"
	"testing"

	"github.com/snrtools/salc/pkg/codegen"
	"github.com/snrtools/salc/pkg/config"
	"github.com/snrtools/salc/pkg/diag"
	"github.com/snrtools/salc/pkg/lexer"
	"github.com/snrtools/salc/pkg/parser"
	"github.com/snrtools/salc/pkg/symbols"
)

func assemble(t *testing.T, src string) []byte {
	t.Helper()
	var bag diag.Bag
	root := parser.Parse(lexer.Tokenize(src, &bag), &bag)
	table := symbols.Collect(root, &bag)
	bin := codegen.Generate(table, config.NewConfig(), &bag)
	if bag.HasErrors() {
		t.Fatalf("assembly failed: %+v", bag.All())
	}
	return bin
}

const scenario = `entry MAIN
	mov $v0, 3
	exp $v1, $v0 * 2 + 1
	exp $v2, min($v0, $v1) .* $v1
	exp $v3, select($v0 > 0, $v1 mod 7, -$v2)
	jc !($v1 < 10), DONE
	call HELPER, $v0
DONE:
	jt $v0, { 0 => A, 1 => B }
A:
	rnd $v4, 1, 6
	gt $v5, $v0, 10, 20, 30
	j B
B:
	MSGINIT 0
	MSGSET 42, "He said \"hi\"\n", nowait
	MSGWAIT -1
	MSGCLOSE wait
	WAIT 30, interruptable
	SAVEINFO 0, "Chapter 1"
	EXIT 0, 0
endentry

function HELPER($x)
	push $v6
	add $v6, $x, 5
	bzero $v7, $v6
	mov $v0, $v6
	pop $v6
	return
endfun

subroutine CLEANUP
	zero $v8
	not16 $v9, $v8
	retsub
endsub
`

func TestRoundTrip(t *testing.T) {
	first := assemble(t, scenario)
	text, err := Disassemble(first)
	if err != nil {
		t.Fatalf("disassembly failed: %v", err)
	}
	second := assemble(t, text)
	if !bytes.Equal(first, second) {
		t.Errorf("reassembled binary differs from the original\ndisassembly:\n%s", text)
	}
}

func TestPrintedForms(t *testing.T) {
	text, err := Disassemble(assemble(t, scenario))
	if err != nil {
		t.Fatalf("disassembly failed: %v", err)
	}
	for _, want := range []string{
		"\tmov $v0, 3\n",
		"\texp $v1, $v0 * 2 + 1\n",
		"\texp $v2, min($v0, $v1) .* $v1\n",
		"\texp $v3, select($v0 > 0, $v1 mod 7, -$v2)\n",
		"\tjc !($v1 < 10), L_",
		"\tjt $v0, { 0 => L_",
		"\trnd $v4, 1, 6\n",
		"\tgt $v5, $v0, 10, 20, 30\n",
		"\tMSGSET 42, \"He said \\\"hi\\\"\\n\", nowait\n",
		"\tMSGCLOSE wait\n",
		"\tWAIT 30, interruptable\n",
		"\tSAVEINFO 0, \"Chapter 1\"\n",
		"\tadd $v6, $a0, 5\n",
		"\tbzero $v7, $v6\n",
		"\tzero $v8\n",
		"\tnot16 $v9, $v8\n",
		"\tretsub\n",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("disassembly is missing %q:\n%s", want, text)
		}
	}
}

// add $v6, $x, 5 has an explicit left operand on the wire; the printed form
// must keep all three operands so the explicit encoding survives.
func TestExplicitOperandForms(t *testing.T) {
	src := `entry MAIN
	add $v0, $v0, 1
	add $v0, 1
	neg $v1, $v1
	neg $v1
	EXIT 0, 0
endentry
`
	first := assemble(t, src)
	text, err := Disassemble(first)
	if err != nil {
		t.Fatalf("disassembly failed: %v", err)
	}
	for _, want := range []string{
		"\tadd $v0, $v0, 1\n",
		"\tadd $v0, 1\n",
		"\tneg $v1, $v1\n",
		"\tneg $v1\n",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("disassembly is missing %q:\n%s", want, text)
		}
	}
	second := assemble(t, text)
	if !bytes.Equal(first, second) {
		t.Error("explicit and implicit forms did not survive the round trip")
	}
}

func TestLabelSynthesis(t *testing.T) {
	d, err := Decode(assemble(t, "entry MAIN\nLOOP:\n\tj LOOP\nendentry\n"))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(d.Instrs) != 1 {
		t.Fatalf("got %d instructions, want 1", len(d.Instrs))
	}
	name, ok := d.Labels[d.Instrs[0].Addr]
	if !ok || !strings.HasPrefix(name, "L_") {
		t.Errorf("expected a synthetic label at the loop head, got %q", name)
	}
}

func TestDecodeErrors(t *testing.T) {
	if _, err := Decode([]byte("not a scenario")); err == nil {
		t.Error("expected a bad-magic error")
	}

	// corrupt a jump target so it points into the middle of an instruction
	bin := assemble(t, "entry MAIN\nLOOP:\n\tmov $v0, 1\n\tj LOOP\nendentry\n")
	good := make([]byte, len(bin))
	copy(good, bin)
	// the j opcode is the last 5 bytes; nudge its 32-bit target by one
	off := len(good) - 4
	good[off]++
	if _, err := Decode(good); err == nil {
		t.Error("expected a boundary error for a misaligned jump target")
	} else if !strings.Contains(err.Error(), "instruction boundary") {
		t.Errorf("unexpected error: %v", err)
	}
}
