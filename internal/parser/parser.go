package parser

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/semantica-dev/codectx/pkg/types"
)

// Parser turns source text into a deterministic sequence of named symbols.
type Parser struct{}

// New creates a Parser.
func New() *Parser {
	return &Parser{}
}

// Parse extracts the declarations of one file. A missing grammar or a failed
// parse yields a fallback result rather than an error; genuine errors are
// limited to context cancellation.
func (p *Parser) Parse(ctx context.Context, path string, content []byte) (*types.ParseResult, error) {
	lang := types.DetectLanguage(path)
	spec, ok := registry[lang]
	if !ok {
		return &types.ParseResult{Language: types.LangGeneric, Fallback: true}, nil
	}

	// tree-sitter parsers are not safe for concurrent use; one per call
	// keeps the fan-out in the indexer lock-free.
	tsParser := sitter.NewParser()
	tsParser.SetLanguage(spec.language)

	tree, err := tsParser.ParseCtx(ctx, nil, content)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return &types.ParseResult{Language: lang, Fallback: true, ErrorPos: err.Error()}, nil
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		return &types.ParseResult{Language: lang, Fallback: true}, nil
	}

	result := &types.ParseResult{Language: lang}
	if root.HasError() {
		// tree-sitter recovers around broken syntax; extraction continues
		// over the intact declarations.
		result.ErrorPos = firstErrorPos(root)
	}

	ex := &extractor{src: content, spec: spec, lang: lang}
	ex.walk(root, nil)
	result.Symbols = ex.symbols

	if len(result.Symbols) == 0 && result.ErrorPos != "" {
		// Nothing salvageable from a broken file: whole-file fallback.
		result.Fallback = true
	}
	return result, nil
}

// extractor walks a syntax tree collecting declaration symbols.
type extractor struct {
	src     []byte
	spec    languageSpec
	lang    types.Language
	symbols []types.Symbol
}

// walk descends the tree. scope is the stack of enclosing container names
// used to qualify member declarations.
func (e *extractor) walk(node *sitter.Node, scope []string) {
	count := int(node.NamedChildCount())
	for i := 0; i < count; i++ {
		child := node.NamedChild(i)
		nodeType := child.Type()

		switch {
		case e.spec.functionNodes[nodeType]:
			e.emitFunction(child, nodeType, scope)
			// No descent: nested helpers fold into this declaration.

		case e.spec.classNodes[nodeType]:
			name := nameOf(child, e.src)
			if name == "" {
				name = nodeType
			}
			inner := make([]string, len(scope)+1)
			copy(inner, scope)
			inner[len(scope)] = name

			before := len(e.symbols)
			e.walk(child, inner)
			if len(e.symbols) == before {
				// A container with no function members is itself the unit.
				e.emit(child, qualify(scope, name), types.SymbolClass)
			}

		default:
			// Wrapper nodes (decorators, export statements, bodies) are
			// transparent to extraction.
			e.walk(child, scope)
		}
	}
}

func (e *extractor) emitFunction(node *sitter.Node, nodeType string, scope []string) {
	name := nameOf(node, e.src)
	if name == "" {
		name = nodeType
	}

	kind := types.SymbolFunction
	qualified := qualify(scope, name)

	if len(scope) > 0 {
		kind = types.SymbolMethod
	}
	if e.lang == types.LangGo && nodeType == "method_declaration" {
		kind = types.SymbolMethod
		if recv := receiverType(node, e.src); recv != "" {
			qualified = recv + "." + name
		}
	}

	e.emit(node, qualified, kind)
}

func (e *extractor) emit(node *sitter.Node, qualified string, kind types.SymbolKind) {
	parts := strings.Split(qualified, ".")
	e.symbols = append(e.symbols, types.Symbol{
		Name:      parts[len(parts)-1],
		Qualified: qualified,
		Kind:      kind,
		StartLine: int(node.StartPoint().Row) + 1,
		EndLine:   int(node.EndPoint().Row) + 1,
		StartByte: int(node.StartByte()),
		EndByte:   int(node.EndByte()),
	})
}

func qualify(scope []string, name string) string {
	if len(scope) == 0 {
		return name
	}
	return strings.Join(scope, ".") + "." + name
}

// identifierTypes are the node types that carry a declaration's name across
// the registered grammars.
var identifierTypes = map[string]bool{
	"identifier":          true,
	"field_identifier":    true,
	"type_identifier":     true,
	"property_identifier": true,
}

// nameOf finds the declared name of a declaration node. It prefers the
// grammar's "name" field, follows declarator chains (C++), and otherwise
// scans direct children for an identifier.
func nameOf(node *sitter.Node, src []byte) string {
	if n := node.ChildByFieldName("name"); n != nil {
		return n.Content(src)
	}

	// C++ function_definition: the name lives at the bottom of a
	// declarator chain.
	for d := node.ChildByFieldName("declarator"); d != nil; d = d.ChildByFieldName("declarator") {
		if identifierTypes[d.Type()] || d.Type() == "qualified_identifier" {
			return d.Content(src)
		}
	}

	count := int(node.NamedChildCount())
	for i := 0; i < count; i++ {
		child := node.NamedChild(i)
		if identifierTypes[child.Type()] {
			return child.Content(src)
		}
		// Go type_declaration wraps a type_spec carrying the name field.
		if n := child.ChildByFieldName("name"); n != nil {
			return n.Content(src)
		}
	}
	return ""
}

// receiverType extracts the bare receiver type name of a Go method, with
// pointer stars and type parameters stripped.
func receiverType(node *sitter.Node, src []byte) string {
	recv := node.ChildByFieldName("receiver")
	if recv == nil {
		return ""
	}
	var find func(n *sitter.Node) string
	find = func(n *sitter.Node) string {
		if n.Type() == "type_identifier" {
			return n.Content(src)
		}
		count := int(n.NamedChildCount())
		for i := 0; i < count; i++ {
			if got := find(n.NamedChild(i)); got != "" {
				return got
			}
		}
		return ""
	}
	return find(recv)
}

// firstErrorPos locates the first ERROR node for warning logs.
func firstErrorPos(root *sitter.Node) string {
	var find func(n *sitter.Node) *sitter.Node
	find = func(n *sitter.Node) *sitter.Node {
		if n.Type() == "ERROR" || n.IsMissing() {
			return n
		}
		count := int(n.NamedChildCount())
		for i := 0; i < count; i++ {
			if got := find(n.NamedChild(i)); got != nil {
				return got
			}
		}
		return nil
	}
	errNode := find(root)
	if errNode == nil {
		return "unknown position"
	}
	return fmt.Sprintf("line %d, column %d", errNode.StartPoint().Row+1, errNode.StartPoint().Column+1)
}
