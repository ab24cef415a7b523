package token

type Kind int

const (
	EOF Kind = iota

	// Trivia kinds. Kept in the syntax tree for lossless reprinting, skipped
	// by the parser cursor.
	Whitespace
	Comment
	LineContinuation

	Ident
	Register
	IntNumber
	FloatNumber
	String

	Newline
	Comma
	Colon
	LParen
	RParen
	LBrace
	RBrace
	LBracket
	RBracket
	Plus
	Minus
	Star
	Slash
	Percent
	DotStar
	DotSlash
	Amp
	AmpAmp
	Pipe
	PipePipe
	Caret
	Tilde
	Bang
	Shl
	Shr
	Lt
	Gt
	Lte
	Gte
	EqEq
	Neq
	FatArrow

	KwFunction
	KwSubroutine
	KwEndfun
	KwEndsub
	KwEntry
	KwEndentry
	KwMod

	Error
)

var KeywordMap = map[string]Kind{
	"function":   KwFunction,
	"subroutine": KwSubroutine,
	"endfun":     KwEndfun,
	"endsub":     KwEndsub,
	"entry":      KwEntry,
	"endentry":   KwEndentry,
	"mod":        KwMod,
}

var kindNames = map[Kind]string{
	EOF:              "end of file",
	Whitespace:       "whitespace",
	Comment:          "comment",
	LineContinuation: "line continuation",
	Ident:            "identifier",
	Register:         "register",
	IntNumber:        "integer",
	FloatNumber:      "real number",
	String:           "string",
	Newline:          "newline",
	Comma:            "','",
	Colon:            "':'",
	LParen:           "'('",
	RParen:           "')'",
	LBrace:           "'{'",
	RBrace:           "'}'",
	LBracket:         "'['",
	RBracket:         "']'",
	Plus:             "'+'",
	Minus:            "'-'",
	Star:             "'*'",
	Slash:            "'/'",
	Percent:          "'%'",
	DotStar:          "'.*'",
	DotSlash:         "'./'",
	Amp:              "'&'",
	AmpAmp:           "'&&'",
	Pipe:             "'|'",
	PipePipe:         "'||'",
	Caret:            "'^'",
	Tilde:            "'~'",
	Bang:             "'!'",
	Shl:              "'<<'",
	Shr:              "'>>'",
	Lt:               "'<'",
	Gt:               "'>'",
	Lte:              "'<='",
	Gte:              "'>='",
	EqEq:             "'=='",
	Neq:              "'!='",
	FatArrow:         "'=>'",
	KwFunction:       "'function'",
	KwSubroutine:     "'subroutine'",
	KwEndfun:         "'endfun'",
	KwEndsub:         "'endsub'",
	KwEntry:          "'entry'",
	KwEndentry:       "'endentry'",
	KwMod:            "'mod'",
	Error:            "invalid token",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown token"
}

// IsTrivia reports whether the kind carries no syntactic meaning.
func (k Kind) IsTrivia() bool {
	return k == Whitespace || k == Comment || k == LineContinuation
}

func (k Kind) IsKeyword() bool { return k >= KwFunction && k <= KwMod }

// Span is a half-open byte range [Start, End) into the source text.
type Span struct {
	Start int
	End   int
}

func (s Span) Len() int { return s.End - s.Start }

// Cover returns the smallest span containing both s and o.
func (s Span) Cover(o Span) Span {
	if o.Start < s.Start {
		s.Start = o.Start
	}
	if o.End > s.End {
		s.End = o.End
	}
	return s
}

type Token struct {
	Kind Kind
	Text string
	Span Span
}
