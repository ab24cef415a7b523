package parser

import (
	"github.com/snrtools/salc/pkg/ast"
	"github.com/snrtools/salc/pkg/diag"
	"github.com/snrtools/salc/pkg/token"
)

// Parser holds the state for the parsing process. It never aborts: malformed
// input is wrapped in ErrorNode children and reported to the bag, and every
// token of the input ends up somewhere in the resulting tree.
type Parser struct {
	tokens  []token.Token
	pos     int
	depth   int // grouping depth; newlines are insignificant inside ( { [
	builder *ast.Builder
	bag     *diag.Bag
}

// NewParser creates and initializes a new Parser from a token stream. The
// stream must be trivia-carrying and EOF-terminated, as produced by
// lexer.Tokenize.
func NewParser(tokens []token.Token, bag *diag.Bag) *Parser {
	return &Parser{tokens: tokens, builder: ast.NewBuilder(), bag: bag}
}

// Parse consumes the whole stream and returns the SourceFile root.
func Parse(tokens []token.Token, bag *diag.Bag) *ast.Node {
	return NewParser(tokens, bag).ParseSourceFile()
}

func (p *Parser) ParseSourceFile() *ast.Node {
	p.builder.StartNode(ast.SourceFile)
	for !p.at(token.EOF) {
		switch p.current().Kind {
		case token.Newline:
			p.bump()
		case token.KwFunction:
			p.functionDef()
		case token.KwSubroutine:
			p.subroutineDef()
		case token.KwEntry:
			p.entryDef()
		case token.Ident:
			if p.nth(1).Kind == token.Colon {
				p.codeBlock()
			} else {
				p.errorLine("expected an item or a label, found an instruction outside any block")
			}
		default:
			p.errorLine("expected 'function', 'subroutine', 'entry' or a label, found %s", p.current().Kind)
		}
	}
	p.flushTrivia()
	p.bump() // EOF
	return p.builder.FinishNode()
}

// ignorable reports whether the token at index i is skipped by the cursor:
// trivia always, newlines only inside grouping constructs.
func (p *Parser) ignorable(i int) bool {
	k := p.tokens[i].Kind
	return k.IsTrivia() || p.depth > 0 && k == token.Newline
}

// flushTrivia pushes pending ignorable tokens into the currently open node.
func (p *Parser) flushTrivia() {
	for p.pos < len(p.tokens)-1 && p.ignorable(p.pos) {
		p.builder.PushToken(p.tokens[p.pos])
		p.pos++
	}
}

// current peeks at the next significant token without consuming anything.
func (p *Parser) current() token.Token {
	return p.nth(0)
}

func (p *Parser) nth(n int) token.Token {
	i := p.pos
	for i < len(p.tokens)-1 {
		if p.ignorable(i) {
			i++
			continue
		}
		if n == 0 {
			break
		}
		n--
		i++
	}
	return p.tokens[i]
}

func (p *Parser) at(kind token.Kind) bool { return p.current().Kind == kind }

// bump consumes the next significant token (with its leading trivia) into
// the open node.
func (p *Parser) bump() {
	p.flushTrivia()
	if p.pos < len(p.tokens)-1 {
		p.builder.PushToken(p.tokens[p.pos])
		p.pos++
	} else {
		p.builder.PushToken(p.tokens[p.pos]) // EOF
	}
}

// expect consumes a token of the given kind or reports an error without
// consuming anything.
func (p *Parser) expect(kind token.Kind) bool {
	if p.at(kind) {
		p.bump()
		return true
	}
	p.bag.Errorf(p.current().Span, "expected %s, found %s", kind, p.current().Kind)
	return false
}

// errorLine wraps everything up to the end of the current line in an
// ErrorNode so parsing can resume at the next line.
func (p *Parser) errorLine(format string, args ...interface{}) {
	p.bag.Errorf(p.current().Span, format, args...)
	p.builder.StartNode(ast.ErrorNode)
	for !p.at(token.EOF) && !p.at(token.Newline) {
		p.bump()
	}
	p.builder.FinishNode()
}

// atItemEnd reports whether the cursor sits on a token that terminates the
// surrounding item. Used so a missing end keyword does not swallow the rest
// of the file.
func (p *Parser) atItemEnd() bool {
	switch p.current().Kind {
	case token.EOF, token.KwEndfun, token.KwEndsub, token.KwEndentry,
		token.KwFunction, token.KwSubroutine, token.KwEntry:
		return true
	}
	return false
}

func (p *Parser) functionDef() {
	p.builder.StartNode(ast.FunctionDef)
	p.bump() // 'function'
	p.expect(token.Ident)
	if p.at(token.LParen) {
		p.paramList()
	} else {
		p.bag.Errorf(p.current().Span, "expected '(', found %s", p.current().Kind)
	}
	if p.at(token.LBracket) {
		p.preserveList()
	}
	p.endOfLine()
	p.itemBody()
	if !p.expect(token.KwEndfun) {
		p.recoverItemEnd()
	}
	p.builder.FinishNode()
}

func (p *Parser) subroutineDef() {
	p.builder.StartNode(ast.SubroutineDef)
	p.bump() // 'subroutine'
	p.expect(token.Ident)
	if p.at(token.LBracket) {
		p.preserveList()
	}
	p.endOfLine()
	p.itemBody()
	if !p.expect(token.KwEndsub) {
		p.recoverItemEnd()
	}
	p.builder.FinishNode()
}

func (p *Parser) entryDef() {
	p.builder.StartNode(ast.EntryDef)
	p.bump() // 'entry'
	p.expect(token.Ident)
	p.endOfLine()
	p.itemBody()
	if !p.expect(token.KwEndentry) {
		p.recoverItemEnd()
	}
	p.builder.FinishNode()
}

// recoverItemEnd consumes a mismatched end keyword into an ErrorNode so the
// outer loop does not see it again. A following item keyword or EOF is left
// for the caller.
func (p *Parser) recoverItemEnd() {
	switch p.current().Kind {
	case token.KwEndfun, token.KwEndsub, token.KwEndentry:
		p.builder.StartNode(ast.ErrorNode)
		p.bump()
		p.builder.FinishNode()
	}
}

// endOfLine consumes the newline terminating an item header.
func (p *Parser) endOfLine() {
	switch p.current().Kind {
	case token.Newline:
		p.bump()
	case token.EOF:
	default:
		p.errorLine("expected end of line, found %s", p.current().Kind)
	}
}

func (p *Parser) paramList() {
	p.builder.StartNode(ast.ParamList)
	p.depth++
	p.bump() // '('
	for !p.at(token.RParen) && !p.at(token.EOF) {
		p.builder.StartNode(ast.Param)
		if !p.expect(token.Register) {
			p.builder.FinishNode()
			break
		}
		p.builder.FinishNode()
		if !p.at(token.RParen) && !p.expect(token.Comma) {
			break
		}
	}
	p.depth--
	p.expect(token.RParen)
	p.builder.FinishNode()
}

// preserveList parses the bracketed register range naming the registers the
// body clobbers, e.g. [$v2-$v5].
func (p *Parser) preserveList() {
	p.builder.StartNode(ast.PreserveList)
	p.depth++
	p.bump() // '['
	for !p.at(token.RBracket) && !p.at(token.EOF) {
		p.builder.StartNode(ast.RegisterRange)
		ok := p.expect(token.Register)
		if ok && p.at(token.Minus) {
			p.bump()
			ok = p.expect(token.Register)
		}
		p.builder.FinishNode()
		if !ok {
			break
		}
		if !p.at(token.RBracket) && !p.expect(token.Comma) {
			break
		}
	}
	p.depth--
	p.expect(token.RBracket)
	p.builder.FinishNode()
}

// itemBody parses the blocks of a function, subroutine or entry. A label
// starts a new CodeBlock; instructions before the first label form an
// unlabeled block.
func (p *Parser) itemBody() {
	for !p.atItemEnd() {
		switch p.current().Kind {
		case token.Newline:
			p.bump()
		case token.Ident:
			if p.nth(1).Kind == token.Colon {
				p.codeBlock()
			} else {
				p.unlabeledBlock()
			}
		case token.KwMod:
			// 'mod' doubles as an instruction mnemonic.
			p.unlabeledBlock()
		default:
			p.errorLine("expected a label or an instruction, found %s", p.current().Kind)
		}
	}
}

func (p *Parser) codeBlock() {
	p.builder.StartNode(ast.CodeBlock)
	p.builder.StartNode(ast.BlockLabel)
	p.bump() // label ident
	p.bump() // ':'
	p.builder.FinishNode()
	p.blockInstructions()
	p.builder.FinishNode()
}

func (p *Parser) unlabeledBlock() {
	p.builder.StartNode(ast.CodeBlock)
	p.blockInstructions()
	p.builder.FinishNode()
}

func (p *Parser) blockInstructions() {
	for {
		switch p.current().Kind {
		case token.Newline:
			p.bump()
			continue
		case token.Ident:
			if p.nth(1).Kind == token.Colon {
				return // next block
			}
			p.instruction()
			continue
		case token.KwMod:
			p.instruction()
			continue
		}
		if p.atItemEnd() {
			return
		}
		p.errorLine("expected an instruction, found %s", p.current().Kind)
	}
}

func (p *Parser) instruction() {
	p.builder.StartNode(ast.Instruction)
	p.bump() // mnemonic
	if !p.at(token.Newline) && !p.at(token.EOF) {
		p.operandList()
	}
	if !p.at(token.Newline) && !p.at(token.EOF) {
		p.errorLine("expected end of line after instruction, found %s", p.current().Kind)
	}
	p.builder.FinishNode()
}

func (p *Parser) operandList() {
	p.builder.StartNode(ast.OperandList)
	for {
		if p.at(token.LBrace) {
			p.mappingExpr()
		} else {
			p.expression(0)
		}
		if !p.at(token.Comma) {
			break
		}
		p.bump()
	}
	p.builder.FinishNode()
}

// mappingExpr parses a jump table operand: { 0 => CASE_A, 1 => CASE_B }.
func (p *Parser) mappingExpr() {
	p.builder.StartNode(ast.MappingExpr)
	p.depth++
	p.bump() // '{'
	for !p.at(token.RBrace) && !p.at(token.EOF) {
		p.builder.StartNode(ast.MappingArm)
		p.expression(0)
		ok := p.expect(token.FatArrow)
		if ok {
			ok = p.expect(token.Ident)
		}
		p.builder.FinishNode()
		if !ok {
			break
		}
		if !p.at(token.RBrace) && !p.expect(token.Comma) {
			break
		}
	}
	p.depth--
	p.expect(token.RBrace)
	p.builder.FinishNode()
}

// Binding powers for infix operators. Higher binds tighter.
func infixBindingPower(kind token.Kind) int {
	switch kind {
	case token.Star, token.Slash, token.Percent, token.KwMod, token.DotStar, token.DotSlash:
		return 11
	case token.Plus, token.Minus:
		return 10
	case token.Shl, token.Shr:
		return 9
	case token.Amp:
		return 8
	case token.Caret:
		return 7
	case token.Pipe:
		return 6
	case token.EqEq, token.Neq, token.Lt, token.Gt, token.Lte, token.Gte:
		return 5
	case token.AmpAmp:
		return 4
	case token.PipePipe:
		return 3
	}
	return 0
}

const prefixBindingPower = 13

// expression parses one expression with Pratt-style precedence and attaches
// it to the open builder node. Expression subtrees are assembled detached
// from the builder because a binary operator re-parents its left operand,
// which an append-only builder cannot express.
func (p *Parser) expression(minBP int) bool {
	n := p.parseExpr(minBP)
	if n == nil {
		p.bag.Errorf(p.current().Span, "expected an expression, found %s", p.current().Kind)
		p.builder.StartNode(ast.ErrorNode)
		if !p.atExprEnd() {
			p.bump()
		}
		p.builder.FinishNode()
		return false
	}
	p.builder.AttachNode(n)
	return true
}

func (p *Parser) atExprEnd() bool {
	switch p.current().Kind {
	case token.Newline, token.EOF, token.Comma,
		token.RParen, token.RBrace, token.RBracket:
		return true
	}
	return false
}

func (p *Parser) parseExpr(minBP int) *ast.Node {
	lhs := p.parseAtom()
	if lhs == nil {
		return nil
	}
	for {
		bp := infixBindingPower(p.current().Kind)
		if bp == 0 || bp <= minBP {
			break
		}
		wrap := &ast.Node{Kind: ast.BinaryExpr}
		appendNode(wrap, lhs)
		p.bumpInto(wrap) // operator
		if rhs := p.parseExpr(bp); rhs != nil {
			appendNode(wrap, rhs)
		} else {
			p.bag.Errorf(p.current().Span, "expected a right operand, found %s", p.current().Kind)
		}
		wrap.Seal()
		lhs = wrap
	}
	return lhs
}

func (p *Parser) parseAtom() *ast.Node {
	switch p.current().Kind {
	case token.Minus, token.Tilde, token.Bang:
		n := &ast.Node{Kind: ast.UnaryExpr}
		p.bumpInto(n)
		if operand := p.parseExpr(prefixBindingPower); operand != nil {
			appendNode(n, operand)
		} else {
			p.bag.Errorf(p.current().Span, "expected an operand, found %s", p.current().Kind)
		}
		n.Seal()
		return n
	case token.IntNumber, token.FloatNumber, token.String:
		n := &ast.Node{Kind: ast.LiteralExpr}
		p.bumpInto(n)
		n.Seal()
		return n
	case token.Register:
		n := &ast.Node{Kind: ast.RegisterExpr}
		p.bumpInto(n)
		n.Seal()
		return n
	case token.Ident:
		if p.nth(1).Kind == token.LParen {
			return p.parseCall()
		}
		n := &ast.Node{Kind: ast.NameRefExpr}
		p.bumpInto(n)
		n.Seal()
		return n
	case token.LParen:
		n := &ast.Node{Kind: ast.ParenExpr}
		p.bumpInto(n) // '('
		p.depth++
		if inner := p.parseExpr(0); inner != nil {
			appendNode(n, inner)
		} else {
			p.bag.Errorf(p.current().Span, "expected an expression, found %s", p.current().Kind)
		}
		p.depth--
		p.expectInto(n, token.RParen)
		n.Seal()
		return n
	}
	return nil
}

func (p *Parser) parseCall() *ast.Node {
	n := &ast.Node{Kind: ast.CallExpr}
	p.bumpInto(n) // callee
	args := &ast.Node{Kind: ast.ArgList}
	p.bumpInto(args) // '('
	p.depth++
	for !p.at(token.RParen) && !p.at(token.EOF) {
		arg := p.parseExpr(0)
		if arg == nil {
			p.bag.Errorf(p.current().Span, "expected an argument, found %s", p.current().Kind)
			break
		}
		appendNode(args, arg)
		if !p.at(token.RParen) && !p.expectInto(args, token.Comma) {
			break
		}
	}
	p.depth--
	p.expectInto(args, token.RParen)
	args.Seal()
	appendNode(n, args)
	n.Seal()
	return n
}

// bumpInto consumes the next significant token, with its leading trivia,
// directly into the detached node n.
func (p *Parser) bumpInto(n *ast.Node) {
	for p.pos < len(p.tokens)-1 && p.ignorable(p.pos) {
		appendToken(n, p.tokens[p.pos])
		p.pos++
	}
	if p.pos < len(p.tokens)-1 {
		appendToken(n, p.tokens[p.pos])
		p.pos++
	}
}

func (p *Parser) expectInto(n *ast.Node, kind token.Kind) bool {
	if p.at(kind) {
		p.bumpInto(n)
		return true
	}
	p.bag.Errorf(p.current().Span, "expected %s, found %s", kind, p.current().Kind)
	return false
}

func appendNode(parent, child *ast.Node) {
	parent.Children = append(parent.Children, ast.Element{Node: child})
}

func appendToken(parent *ast.Node, tok token.Token) {
	t := tok
	parent.Children = append(parent.Children, ast.Element{Tok: &t})
}
