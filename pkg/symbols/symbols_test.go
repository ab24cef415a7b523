package symbols

import (
	"strings"
	"testing"

	"github.com/snrtools/salc/pkg/diag"
	"github.com/snrtools/salc/pkg/lexer"
	"github.com/snrtools/salc/pkg/parser"
	"github.com/snrtools/salc/pkg/snr"
	"github.com/snrtools/salc/pkg/token"
)

func collect(t *testing.T, src string) (*Table, *diag.Bag) {
	t.Helper()
	var bag diag.Bag
	root := parser.Parse(lexer.Tokenize(src, &bag), &bag)
	return Collect(root, &bag), &bag
}

func TestCollectItems(t *testing.T) {
	src := `function GCD($x, $y) [$v0-$v1]
	mov $v0, $x
endfun

subroutine FADE
	retsub
endsub

entry START
	exit 0, 0
endentry

GLOBAL_LOOP:
	j GLOBAL_LOOP
`
	table, bag := collect(t, src)
	if bag.HasErrors() {
		t.Fatalf("unexpected errors: %+v", bag.All())
	}

	syms := table.Symbols()
	if len(syms) != 4 {
		t.Fatalf("got %d symbols, want 4", len(syms))
	}
	wantKinds := map[string]Kind{
		"GCD": KindFunction, "FADE": KindSubroutine,
		"START": KindEntry, "GLOBAL_LOOP": KindLabel,
	}
	for name, kind := range wantKinds {
		sym := table.Lookup(name)
		if sym == nil {
			t.Fatalf("symbol %s not collected", name)
		}
		if sym.Kind != kind {
			t.Errorf("%s kind = %v, want %v", name, sym.Kind, kind)
		}
	}

	gcd := table.Lookup("GCD")
	if len(gcd.Params) != 2 {
		t.Fatalf("GCD has %d params, want 2", len(gcd.Params))
	}
	if gcd.Params[0].Name != "x" || gcd.Params[0].Reg.String() != "$a0" {
		t.Errorf("param 0 = %s -> %s, want x -> $a0", gcd.Params[0].Name, gcd.Params[0].Reg)
	}
	if gcd.Params[1].Reg.String() != "$a1" {
		t.Errorf("param 1 bound to %s, want $a1", gcd.Params[1].Reg)
	}
	if len(gcd.Preserve) != 2 || gcd.Preserve[0] != 0 || gcd.Preserve[1] != 1 {
		t.Errorf("GCD preserve = %v, want [$v0 $v1]", gcd.Preserve)
	}
}

func TestLocalLabels(t *testing.T) {
	src := `function F()
	zero $v0
LOOP:
	j LOOP
DONE:
	return
endfun
`
	table, bag := collect(t, src)
	if bag.HasErrors() {
		t.Fatalf("unexpected errors: %+v", bag.All())
	}
	f := table.Lookup("F")
	if f == nil {
		t.Fatal("F not collected")
	}
	for _, label := range []string{"LOOP", "DONE"} {
		if f.Labels[label] == nil {
			t.Errorf("local label %s not collected", label)
		}
	}
	if table.Lookup("LOOP") != nil {
		t.Error("local label leaked into the global table")
	}
}

func TestDuplicateDefinitionKeepsFirst(t *testing.T) {
	src := `function F($x)
	return
endfun

function F($x, $y)
	return
endfun
`
	table, bag := collect(t, src)
	if !bag.HasErrors() {
		t.Fatal("expected a duplicate definition error")
	}
	f := table.Lookup("F")
	if len(f.Params) != 1 {
		t.Errorf("first definition should win, got %d params", len(f.Params))
	}
}

func TestParamErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			"register as parameter",
			"function F($v3)\n\treturn\nendfun\n",
			"collides with a register",
		},
		{
			"duplicate parameter",
			"function F($x, $x)\n\treturn\nendfun\n",
			"duplicate parameter",
		},
		{
			"too many parameters",
			"function F($p0, $p1, $p2, $p3, $p4, $p5, $p6, $p7, $p8, $p9, $pa, $pb, $pc, $pd, $pe, $pf, $pg)\n\treturn\nendfun\n",
			"too many parameters",
		},
		{
			"argument register preserved",
			"subroutine S [$a0-$a1]\n\tretsub\nendsub\n",
			"caller-owned",
		},
		{
			"inverted range",
			"subroutine S [$v5-$v2]\n\tretsub\nendsub\n",
			"empty register range",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, bag := collect(t, tt.src)
			found := false
			for _, d := range bag.All() {
				if d.Severity == diag.SeverityError && strings.Contains(d.Message, tt.want) {
					found = true
				}
			}
			if !found {
				t.Errorf("expected an error containing %q, got %+v", tt.want, bag.All())
			}
		})
	}
}

func TestResolveRegister(t *testing.T) {
	src := "function F($x)\n\tmov $v0, $x\nendfun\n"
	table, bag := collect(t, src)
	if bag.HasErrors() {
		t.Fatalf("unexpected errors: %+v", bag.All())
	}
	f := table.Lookup("F")

	resolve := func(text string) (snr.Register, bool) {
		var rbag diag.Bag
		tok := &token.Token{Kind: token.Register, Text: text}
		r := ResolveRegister(f, tok, &rbag)
		return r, !rbag.HasErrors()
	}

	if r, ok := resolve("$v12"); !ok || r.String() != "$v12" {
		t.Errorf("$v12 resolved to %s (ok=%v)", r, ok)
	}
	if r, ok := resolve("$a2"); !ok || r.String() != "$a2" {
		t.Errorf("$a2 resolved to %s (ok=%v)", r, ok)
	}
	if r, ok := resolve("$x"); !ok || r.String() != "$a0" {
		t.Errorf("alias $x resolved to %s (ok=%v)", r, ok)
	}
	if _, ok := resolve("$undeclared"); ok {
		t.Error("undeclared alias should report an error")
	}
}

func TestSingleRegisterPreserve(t *testing.T) {
	src := "subroutine S [$v7]\n\tretsub\nendsub\n"
	table, bag := collect(t, src)
	if bag.HasErrors() {
		t.Fatalf("unexpected errors: %+v", bag.All())
	}
	s := table.Lookup("S")
	if len(s.Preserve) != 1 || s.Preserve[0].String() != "$v7" {
		t.Errorf("preserve = %v, want [$v7]", s.Preserve)
	}
}
