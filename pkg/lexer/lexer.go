package lexer

import (
	"strings"

	"github.com/snrtools/salc/pkg/diag"
	"github.com/snrtools/salc/pkg/token"
)

// Lexer produces a token stream that covers every byte of the source.
// Trivia (whitespace, comments, line continuations) is emitted as ordinary
// tokens so the syntax tree built on top can reprint the input exactly.
type Lexer struct {
	source string
	pos    int
	bag    *diag.Bag
}

func NewLexer(source string, bag *diag.Bag) *Lexer {
	return &Lexer{source: source, bag: bag}
}

// Tokenize runs the lexer to completion. The last token is always EOF.
func Tokenize(source string, bag *diag.Bag) []token.Token {
	l := NewLexer(source, bag)
	var toks []token.Token
	for {
		tok := l.Next()
		toks = append(toks, tok)
		if tok.Kind == token.EOF {
			return toks
		}
	}
}

func (l *Lexer) Next() token.Token {
	start := l.pos

	if l.isAtEnd() {
		return l.makeToken(token.EOF, start)
	}

	ch := l.peek()
	switch {
	case ch == ' ' || ch == '\t' || ch == '\r' && l.peekNext() != '\n':
		for !l.isAtEnd() {
			c := l.peek()
			if c != ' ' && c != '\t' && !(c == '\r' && l.peekNext() != '\n') {
				break
			}
			l.advance()
		}
		return l.makeToken(token.Whitespace, start)
	case ch == '\n' || ch == '\r':
		if ch == '\r' {
			l.advance()
		}
		l.advance()
		return l.makeToken(token.Newline, start)
	case ch == '\\':
		l.advance()
		if l.peek() == '\r' {
			l.advance()
		}
		if l.peek() == '\n' {
			l.advance()
			return l.makeToken(token.LineContinuation, start)
		}
		l.bag.Errorf(token.Span{Start: start, End: l.pos}, "stray '\\' outside a line continuation")
		return l.makeToken(token.Error, start)
	case ch == '/' && l.peekNext() == '/':
		for !l.isAtEnd() && l.peek() != '\n' {
			l.advance()
		}
		return l.makeToken(token.Comment, start)
	case ch == '/' && l.peekNext() == '*':
		return l.blockComment(start)
	case isIdentStart(ch):
		return l.identifierOrKeyword(start)
	case ch == '$':
		return l.register(start)
	case isDigit(ch):
		return l.numberLiteral(start)
	case ch == '"':
		return l.stringLiteral(start)
	}

	l.advance()
	switch ch {
	case '(':
		return l.makeToken(token.LParen, start)
	case ')':
		return l.makeToken(token.RParen, start)
	case '{':
		return l.makeToken(token.LBrace, start)
	case '}':
		return l.makeToken(token.RBrace, start)
	case '[':
		return l.makeToken(token.LBracket, start)
	case ']':
		return l.makeToken(token.RBracket, start)
	case ',':
		return l.makeToken(token.Comma, start)
	case ':':
		return l.makeToken(token.Colon, start)
	case '+':
		return l.makeToken(token.Plus, start)
	case '-':
		return l.makeToken(token.Minus, start)
	case '*':
		return l.makeToken(token.Star, start)
	case '/':
		return l.makeToken(token.Slash, start)
	case '%':
		return l.makeToken(token.Percent, start)
	case '^':
		return l.makeToken(token.Caret, start)
	case '~':
		return l.makeToken(token.Tilde, start)
	case '.':
		switch {
		case l.match('*'):
			return l.makeToken(token.DotStar, start)
		case l.match('/'):
			return l.makeToken(token.DotSlash, start)
		}
	case '&':
		return l.matchThen('&', token.AmpAmp, token.Amp, start)
	case '|':
		return l.matchThen('|', token.PipePipe, token.Pipe, start)
	case '!':
		return l.matchThen('=', token.Neq, token.Bang, start)
	case '<':
		if l.match('<') {
			return l.makeToken(token.Shl, start)
		}
		return l.matchThen('=', token.Lte, token.Lt, start)
	case '>':
		if l.match('>') {
			return l.makeToken(token.Shr, start)
		}
		return l.matchThen('=', token.Gte, token.Gt, start)
	case '=':
		switch {
		case l.match('='):
			return l.makeToken(token.EqEq, start)
		case l.match('>'):
			return l.makeToken(token.FatArrow, start)
		}
	}

	l.bag.Errorf(token.Span{Start: start, End: l.pos}, "unexpected character %q", l.source[start:l.pos])
	return l.makeToken(token.Error, start)
}

func (l *Lexer) peek() byte {
	if l.isAtEnd() {
		return 0
	}
	return l.source[l.pos]
}

func (l *Lexer) peekNext() byte {
	if l.pos+1 >= len(l.source) {
		return 0
	}
	return l.source[l.pos+1]
}

func (l *Lexer) advance() byte {
	if l.isAtEnd() {
		return 0
	}
	ch := l.source[l.pos]
	l.pos++
	return ch
}

func (l *Lexer) match(expected byte) bool {
	if l.isAtEnd() || l.source[l.pos] != expected {
		return false
	}
	l.pos++
	return true
}

func (l *Lexer) isAtEnd() bool { return l.pos >= len(l.source) }

func (l *Lexer) makeToken(kind token.Kind, start int) token.Token {
	return token.Token{
		Kind: kind,
		Text: l.source[start:l.pos],
		Span: token.Span{Start: start, End: l.pos},
	}
}

// blockComment consumes a /* ... */ comment. Comments nest.
func (l *Lexer) blockComment(start int) token.Token {
	l.advance()
	l.advance()
	depth := 1
	for !l.isAtEnd() {
		if l.peek() == '/' && l.peekNext() == '*' {
			l.advance()
			l.advance()
			depth++
			continue
		}
		if l.peek() == '*' && l.peekNext() == '/' {
			l.advance()
			l.advance()
			depth--
			if depth == 0 {
				return l.makeToken(token.Comment, start)
			}
			continue
		}
		l.advance()
	}
	l.bag.Errorf(token.Span{Start: start, End: l.pos}, "unterminated block comment")
	return l.makeToken(token.Comment, start)
}

func (l *Lexer) identifierOrKeyword(start int) token.Token {
	for isIdentPart(l.peek()) {
		l.advance()
	}
	tok := l.makeToken(token.Ident, start)
	if kind, ok := token.KeywordMap[tok.Text]; ok {
		tok.Kind = kind
	}
	return tok
}

func (l *Lexer) register(start int) token.Token {
	l.advance()
	if !isIdentStart(l.peek()) && !isDigit(l.peek()) {
		l.bag.Errorf(token.Span{Start: start, End: l.pos}, "'$' must be followed by a register name")
		return l.makeToken(token.Error, start)
	}
	for isIdentPart(l.peek()) {
		l.advance()
	}
	return l.makeToken(token.Register, start)
}

func (l *Lexer) numberLiteral(start int) token.Token {
	if l.peek() == '0' && (l.peekNext() == 'x' || l.peekNext() == 'X' ||
		l.peekNext() == 'b' || l.peekNext() == 'B' ||
		l.peekNext() == 'o' || l.peekNext() == 'O') {
		base := l.peekNext()
		l.advance()
		l.advance()
		digits := 0
		for isBaseDigit(l.peek(), base) || l.peek() == '_' {
			if l.peek() != '_' {
				digits++
			}
			l.advance()
		}
		if digits == 0 {
			l.bag.Errorf(token.Span{Start: start, End: l.pos}, "number literal has no digits after base prefix")
			return l.makeToken(token.Error, start)
		}
		return l.makeToken(token.IntNumber, start)
	}

	for isDigit(l.peek()) || l.peek() == '_' {
		l.advance()
	}
	isFloat := false
	if l.peek() == '.' && isDigit(l.peekNext()) {
		isFloat = true
		l.advance()
		for isDigit(l.peek()) || l.peek() == '_' {
			l.advance()
		}
	}
	// exponent part: [eE][+-]?digits; a bare 'e' stays with the next token
	if l.peek() == 'e' || l.peek() == 'E' {
		n := 1
		if l.peekNext() == '+' || l.peekNext() == '-' {
			n = 2
		}
		if l.digitAt(l.pos + n) {
			isFloat = true
			for ; n > 0; n-- {
				l.advance()
			}
			for isDigit(l.peek()) || l.peek() == '_' {
				l.advance()
			}
		}
	}
	if isFloat {
		return l.makeToken(token.FloatNumber, start)
	}
	return l.makeToken(token.IntNumber, start)
}

func (l *Lexer) digitAt(pos int) bool {
	return pos < len(l.source) && isDigit(l.source[pos])
}

func (l *Lexer) stringLiteral(start int) token.Token {
	l.advance()
	for !l.isAtEnd() {
		c := l.peek()
		if c == '"' {
			l.advance()
			return l.makeToken(token.String, start)
		}
		if c == '\n' {
			break
		}
		if c == '\\' {
			l.advance()
			if l.isAtEnd() || l.peek() == '\n' {
				break
			}
		}
		l.advance()
	}
	l.bag.Errorf(token.Span{Start: start, End: l.pos}, "unterminated string literal")
	return l.makeToken(token.String, start)
}

func (l *Lexer) matchThen(expected byte, thenKind, elseKind token.Kind, start int) token.Token {
	if l.match(expected) {
		return l.makeToken(thenKind, start)
	}
	return l.makeToken(elseKind, start)
}

func isIdentStart(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_'
}

func isIdentPart(c byte) bool { return isIdentStart(c) || isDigit(c) }

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isBaseDigit(c, base byte) bool {
	switch base {
	case 'x', 'X':
		return isDigit(c) || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'
	case 'b', 'B':
		return c == '0' || c == '1'
	default:
		return c >= '0' && c <= '7'
	}
}

var simpleEscapes = map[byte]byte{
	'n': '\n', 't': '\t', 'r': '\r', '0': 0,
	'\\': '\\', '"': '"', '\'': '\'',
}

// Unquote decodes the escape sequences of a String token's text. The input
// includes the surrounding quotes; a missing closing quote is tolerated so
// error-recovered tokens still produce a value.
func Unquote(text string) (string, bool) {
	if len(text) < 1 || text[0] != '"' {
		return "", false
	}
	body := text[1:]
	if strings.HasSuffix(body, "\"") && !strings.HasSuffix(body, "\\\"") {
		body = body[:len(body)-1]
	}
	var sb strings.Builder
	ok := true
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c != '\\' {
			sb.WriteByte(c)
			continue
		}
		i++
		if i >= len(body) {
			ok = false
			break
		}
		e := body[i]
		if v, found := simpleEscapes[e]; found {
			sb.WriteByte(v)
			continue
		}
		switch e {
		case 'x':
			v, n := hexValue(body[i+1:], 2)
			if n < 2 {
				ok = false
				continue
			}
			sb.WriteByte(byte(v))
			i += 2
		case 'u':
			v, n := hexValue(body[i+1:], 4)
			if n < 4 {
				ok = false
				continue
			}
			sb.WriteRune(rune(v))
			i += 4
		default:
			ok = false
			sb.WriteByte(e)
		}
	}
	return sb.String(), ok
}

func hexValue(s string, max int) (int, int) {
	v, n := 0, 0
	for n < max && n < len(s) {
		c := s[n]
		switch {
		case c >= '0' && c <= '9':
			v = v*16 + int(c-'0')
		case c >= 'a' && c <= 'f':
			v = v*16 + int(c-'a'+10)
		case c >= 'A' && c <= 'F':
			v = v*16 + int(c-'A'+10)
		default:
			return v, n
		}
		n++
	}
	return v, n
}
