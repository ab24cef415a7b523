// Package ast defines the lossless concrete syntax tree produced by the
// parser. Every source byte, trivia included, lives in exactly one token of
// the tree, so reprinting a tree reproduces the input exactly.
package ast

import (
	"strings"

	"github.com/snrtools/salc/pkg/token"
)

// NodeKind defines the kind of a node in the syntax tree
type NodeKind int

// Node kinds enum
const (
	SourceFile NodeKind = iota

	// Items
	FunctionDef
	SubroutineDef
	EntryDef

	// Item parts
	ParamList
	Param
	PreserveList
	RegisterRange
	CodeBlock
	BlockLabel
	Instruction
	OperandList

	// Operands / expressions
	LiteralExpr
	NameRefExpr
	RegisterExpr
	ParenExpr
	UnaryExpr
	BinaryExpr
	CallExpr
	ArgList
	MappingExpr
	MappingArm

	ErrorNode
)

var nodeKindNames = [...]string{
	SourceFile:    "SourceFile",
	FunctionDef:   "FunctionDef",
	SubroutineDef: "SubroutineDef",
	EntryDef:      "EntryDef",
	ParamList:     "ParamList",
	Param:         "Param",
	PreserveList:  "PreserveList",
	RegisterRange: "RegisterRange",
	CodeBlock:     "CodeBlock",
	BlockLabel:    "BlockLabel",
	Instruction:   "Instruction",
	OperandList:   "OperandList",
	LiteralExpr:   "LiteralExpr",
	NameRefExpr:   "NameRefExpr",
	RegisterExpr:  "RegisterExpr",
	ParenExpr:     "ParenExpr",
	UnaryExpr:     "UnaryExpr",
	BinaryExpr:    "BinaryExpr",
	CallExpr:      "CallExpr",
	ArgList:       "ArgList",
	MappingExpr:   "MappingExpr",
	MappingArm:    "MappingArm",
	ErrorNode:     "ErrorNode",
}

func (k NodeKind) String() string {
	if int(k) < len(nodeKindNames) {
		return nodeKindNames[k]
	}
	return "Unknown"
}

// Element is one child slot of a Node: either a token or a nested node.
type Element struct {
	Tok  *token.Token
	Node *Node
}

func (e Element) Span() token.Span {
	if e.Tok != nil {
		return e.Tok.Span
	}
	return e.Node.Span
}

// Node is an interior node of the concrete tree. Children appear in source
// order and cover the node's span without gaps.
type Node struct {
	Kind     NodeKind
	Span     token.Span
	Children []Element
}

// Seal computes the node's span from its children. Nodes built detached
// from a Builder call this once complete.
func (n *Node) Seal() { n.Span = coverChildren(n.Children) }

// Text reprints the node's exact source text.
func (n *Node) Text() string {
	var sb strings.Builder
	n.writeText(&sb)
	return sb.String()
}

func (n *Node) writeText(sb *strings.Builder) {
	for _, c := range n.Children {
		if c.Tok != nil {
			sb.WriteString(c.Tok.Text)
		} else {
			c.Node.writeText(sb)
		}
	}
}

// Tokens returns the node's direct token children, trivia excluded.
func (n *Node) Tokens() []*token.Token {
	var out []*token.Token
	for _, c := range n.Children {
		if c.Tok != nil && !c.Tok.Kind.IsTrivia() {
			out = append(out, c.Tok)
		}
	}
	return out
}

// Nodes returns the node's direct node children.
func (n *Node) Nodes() []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.Node != nil {
			out = append(out, c.Node)
		}
	}
	return out
}

// FirstToken returns the first direct token child of the given kind.
func (n *Node) FirstToken(kind token.Kind) *token.Token {
	for _, c := range n.Children {
		if c.Tok != nil && c.Tok.Kind == kind {
			return c.Tok
		}
	}
	return nil
}

// FirstNode returns the first direct node child of the given kind.
func (n *Node) FirstNode(kind NodeKind) *Node {
	for _, c := range n.Children {
		if c.Node != nil && c.Node.Kind == kind {
			return c.Node
		}
	}
	return nil
}

// NodesOf returns all direct node children of the given kind.
func (n *Node) NodesOf(kind NodeKind) []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.Node != nil && c.Node.Kind == kind {
			out = append(out, c.Node)
		}
	}
	return out
}

// Builder assembles a tree bottom-up while the parser walks the token
// stream. StartNode/FinishNode bracket children; PushToken appends a leaf.
type Builder struct {
	stack []*Node
}

func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) StartNode(kind NodeKind) {
	b.stack = append(b.stack, &Node{Kind: kind})
}

func (b *Builder) PushToken(tok token.Token) {
	n := b.stack[len(b.stack)-1]
	t := tok
	n.Children = append(n.Children, Element{Tok: &t})
}

// AttachNode appends a detached, fully built node to the open node. The
// parser uses this for expression subtrees, which it assembles bottom-up
// outside the builder stack.
func (b *Builder) AttachNode(n *Node) {
	parent := b.stack[len(b.stack)-1]
	parent.Children = append(parent.Children, Element{Node: n})
}

func (b *Builder) FinishNode() *Node {
	n := b.stack[len(b.stack)-1]
	b.stack = b.stack[:len(b.stack)-1]
	n.Span = coverChildren(n.Children)
	if len(b.stack) > 0 {
		parent := b.stack[len(b.stack)-1]
		parent.Children = append(parent.Children, Element{Node: n})
	}
	return n
}

func coverChildren(children []Element) token.Span {
	if len(children) == 0 {
		return token.Span{}
	}
	span := children[0].Span()
	for _, c := range children[1:] {
		span = span.Cover(c.Span())
	}
	return span
}
