package lexer

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/snrtools/salc/pkg/diag"
	"github.com/snrtools/salc/pkg/token"
)

func kindsOf(toks []token.Token) []token.Kind {
	kinds := make([]token.Kind, len(toks))
	for i, t := range toks {
		kinds[i] = t.Kind
	}
	return kinds
}

func TestTokenKinds(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []token.Kind
	}{
		{
			"instruction line",
			"add $v0, $v1, 2\n",
			[]token.Kind{
				token.Ident, token.Whitespace, token.Register, token.Comma,
				token.Whitespace, token.Register, token.Comma, token.Whitespace,
				token.IntNumber, token.Newline, token.EOF,
			},
		},
		{
			"label and jump",
			"LOOP:\n\tj LOOP\n",
			[]token.Kind{
				token.Ident, token.Colon, token.Newline,
				token.Whitespace, token.Ident, token.Whitespace, token.Ident,
				token.Newline, token.EOF,
			},
		},
		{
			"keywords",
			"function subroutine endfun endsub entry endentry mod",
			[]token.Kind{
				token.KwFunction, token.Whitespace, token.KwSubroutine,
				token.Whitespace, token.KwEndfun, token.Whitespace, token.KwEndsub,
				token.Whitespace, token.KwEntry, token.Whitespace, token.KwEndentry,
				token.Whitespace, token.KwMod, token.EOF,
			},
		},
		{
			"operators",
			"+ - * / % .* ./ & && | || ^ ~ ! << >> < > <= >= == != =>",
			[]token.Kind{
				token.Plus, token.Whitespace, token.Minus, token.Whitespace,
				token.Star, token.Whitespace, token.Slash, token.Whitespace,
				token.Percent, token.Whitespace, token.DotStar, token.Whitespace,
				token.DotSlash, token.Whitespace, token.Amp, token.Whitespace,
				token.AmpAmp, token.Whitespace, token.Pipe, token.Whitespace,
				token.PipePipe, token.Whitespace, token.Caret, token.Whitespace,
				token.Tilde, token.Whitespace, token.Bang, token.Whitespace,
				token.Shl, token.Whitespace, token.Shr, token.Whitespace,
				token.Lt, token.Whitespace, token.Gt, token.Whitespace,
				token.Lte, token.Whitespace, token.Gte, token.Whitespace,
				token.EqEq, token.Whitespace, token.Neq, token.Whitespace,
				token.FatArrow, token.EOF,
			},
		},
		{
			"number bases",
			"42 0x2a 0b101010 0o52 1_000_000 3.14",
			[]token.Kind{
				token.IntNumber, token.Whitespace, token.IntNumber, token.Whitespace,
				token.IntNumber, token.Whitespace, token.IntNumber, token.Whitespace,
				token.IntNumber, token.Whitespace, token.FloatNumber, token.EOF,
			},
		},
		{
			"line continuation",
			"add $v0, \\\n\t1\n",
			[]token.Kind{
				token.Ident, token.Whitespace, token.Register, token.Comma,
				token.Whitespace, token.LineContinuation, token.Whitespace,
				token.IntNumber, token.Newline, token.EOF,
			},
		},
		{
			"comments",
			"zero $v0 // clear\n/* block */ abs $v1, 1\n",
			[]token.Kind{
				token.Ident, token.Whitespace, token.Register, token.Whitespace,
				token.Comment, token.Newline,
				token.Comment, token.Whitespace, token.Ident, token.Whitespace,
				token.Register, token.Comma, token.Whitespace, token.IntNumber,
				token.Newline, token.EOF,
			},
		},
		{
			"jump table arm",
			"{ 0 => DONE }",
			[]token.Kind{
				token.LBrace, token.Whitespace, token.IntNumber, token.Whitespace,
				token.FatArrow, token.Whitespace, token.Ident, token.Whitespace,
				token.RBrace, token.EOF,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var bag diag.Bag
			toks := Tokenize(tt.input, &bag)
			if bag.HasErrors() {
				t.Fatalf("unexpected errors: %+v", bag.All())
			}
			if diff := cmp.Diff(tt.want, kindsOf(toks)); diff != "" {
				t.Errorf("token kinds mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExponentLiterals(t *testing.T) {
	tests := []struct {
		input string
		kinds []token.Kind
		first string
	}{
		{"2e3", []token.Kind{token.FloatNumber, token.EOF}, "2e3"},
		{"1.5e-2", []token.Kind{token.FloatNumber, token.EOF}, "1.5e-2"},
		{"7E+10", []token.Kind{token.FloatNumber, token.EOF}, "7E+10"},
		{"1_0e2", []token.Kind{token.FloatNumber, token.EOF}, "1_0e2"},
		// a bare 'e' is not an exponent; it belongs to the next token
		{"2e", []token.Kind{token.IntNumber, token.Ident, token.EOF}, "2"},
		{"2e+", []token.Kind{token.IntNumber, token.Ident, token.Plus, token.EOF}, "2"},
		{"0x2e", []token.Kind{token.IntNumber, token.EOF}, "0x2e"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var bag diag.Bag
			toks := Tokenize(tt.input, &bag)
			if bag.HasErrors() {
				t.Fatalf("unexpected errors: %+v", bag.All())
			}
			if diff := cmp.Diff(tt.kinds, kindsOf(toks)); diff != "" {
				t.Errorf("token kinds mismatch (-want +got):\n%s", diff)
			}
			if toks[0].Text != tt.first {
				t.Errorf("first token text = %q, want %q", toks[0].Text, tt.first)
			}
		})
	}
}

func TestStreamCoversSource(t *testing.T) {
	input := "function FIB($n)\n\tadd $v0, $n, 1 // note\n\t/* multi\n\tline */ zero $v1\nendfun\n"
	var bag diag.Bag
	toks := Tokenize(input, &bag)

	var sb strings.Builder
	prevEnd := 0
	for _, tok := range toks {
		if tok.Span.Start != prevEnd {
			t.Fatalf("gap in token stream at offset %d (next token starts at %d)", prevEnd, tok.Span.Start)
		}
		sb.WriteString(tok.Text)
		prevEnd = tok.Span.End
	}
	if sb.String() != input {
		t.Errorf("concatenated token text differs from input:\n%q\nvs\n%q", sb.String(), input)
	}
}

func TestNestedBlockComment(t *testing.T) {
	var bag diag.Bag
	toks := Tokenize("/* a /* b */ c */x", &bag)
	if bag.HasErrors() {
		t.Fatalf("unexpected errors: %+v", bag.All())
	}
	want := []token.Kind{token.Comment, token.Ident, token.EOF}
	if diff := cmp.Diff(want, kindsOf(toks)); diff != "" {
		t.Errorf("kinds mismatch (-want +got):\n%s", diff)
	}
}

func TestLexErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"unterminated string", `msgset 0, "hello`},
		{"unterminated block comment", "/* never closed"},
		{"bare dollar", "$ 1"},
		{"stray backslash", "add $v0, \\ 1"},
		{"unexpected character", "zero @"},
		{"empty hex literal", "0x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var bag diag.Bag
			Tokenize(tt.input, &bag)
			if !bag.HasErrors() {
				t.Errorf("expected an error for %q", tt.input)
			}
		})
	}
}

func TestUnquote(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{`"hello"`, "hello", true},
		{`"a\nb"`, "a\nb", true},
		{`"tab\there"`, "tab\there", true},
		{`"q\"q"`, `q"q`, true},
		{`"\x41\x42"`, "AB", true},
		{`"あ"`, "あ", true},
		{`"bad\q"`, "badq", false},
		{`"unterminated`, "unterminated", true},
	}
	for _, tt := range tests {
		got, ok := Unquote(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Unquote(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
