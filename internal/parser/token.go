package parser

import (
	"github.com/yuin/goldmark"
	gmast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// TokenKind tags the variant of a Token.
type TokenKind int

const (
	TokenContainer TokenKind = iota
	TokenText
	TokenLinkOpen
	TokenImage
)

// Token is one node of the inline token tree built from a Markdown document.
// Link-open tokens carry an "href" attribute, image tokens a "src" attribute.
type Token struct {
	Kind     TokenKind
	Children []*Token

	attrs map[string]string
}

// Attr returns the named attribute.
func (t *Token) Attr(name string) (string, bool) {
	if t.attrs == nil {
		return "", false
	}
	v, ok := t.attrs[name]
	return v, ok
}

// Tokenize parses Markdown source into a token tree. Code blocks and code
// spans produce no tokens.
func Tokenize(source []byte) *Token {
	root := goldmark.New().Parser().Parse(text.NewReader(source))
	return convert(root, source)
}

func convert(n gmast.Node, source []byte) *Token {
	var tok *Token
	switch node := n.(type) {
	case *gmast.Link:
		tok = &Token{Kind: TokenLinkOpen, attrs: map[string]string{"href": string(node.Destination)}}
	case *gmast.AutoLink:
		tok = &Token{Kind: TokenLinkOpen, attrs: map[string]string{"href": string(node.URL(source))}}
	case *gmast.Image:
		tok = &Token{Kind: TokenImage, attrs: map[string]string{"src": string(node.Destination)}}
	case *gmast.Text:
		return &Token{Kind: TokenText, attrs: map[string]string{"content": string(node.Segment.Value(source))}}
	case *gmast.CodeBlock, *gmast.FencedCodeBlock, *gmast.CodeSpan, *gmast.HTMLBlock, *gmast.RawHTML:
		return nil
	default:
		tok = &Token{Kind: TokenContainer}
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if child := convert(c, source); child != nil {
			tok.Children = append(tok.Children, child)
		}
	}
	return tok
}

// linkTargets walks the tree depth-first and returns link and image targets
// in document order.
func linkTargets(t *Token) []string {
	var out []string
	var walk func(*Token)
	walk = func(t *Token) {
		switch t.Kind {
		case TokenLinkOpen:
			if href, ok := t.Attr("href"); ok {
				out = append(out, href)
			}
		case TokenImage:
			if src, ok := t.Attr("src"); ok {
				out = append(out, src)
			}
		}
		for _, c := range t.Children {
			walk(c)
		}
	}
	walk(t)
	return out
}
