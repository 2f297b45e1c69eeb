package parser

import (
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/cpp"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/semantica-dev/codectx/pkg/types"
)

// languageSpec pairs a tree-sitter grammar with the node types that
// introduce extractable declarations in that grammar.
type languageSpec struct {
	language *sitter.Language

	// functionNodes are emitted as function or method symbols and never
	// descended into, so nested helpers fold into the enclosing chunk.
	functionNodes map[string]bool

	// classNodes are scope containers: their function members are emitted
	// with a qualified name, and the container itself becomes a class
	// symbol only when it has no function members.
	classNodes map[string]bool
}

// registry holds the closed set of supported language variants. Adding a
// language is adding an entry here.
var registry = map[types.Language]languageSpec{
	types.LangPython: {
		language:      python.GetLanguage(),
		functionNodes: set("function_definition"),
		classNodes:    set("class_definition"),
	},
	types.LangJava: {
		language:      java.GetLanguage(),
		functionNodes: set("method_declaration", "constructor_declaration"),
		classNodes:    set("class_declaration", "interface_declaration", "enum_declaration", "record_declaration"),
	},
	types.LangCPP: {
		language:      cpp.GetLanguage(),
		functionNodes: set("function_definition"),
		classNodes:    set("class_specifier", "struct_specifier"),
	},
	types.LangJavaScript: {
		language:      javascript.GetLanguage(),
		functionNodes: set("function_declaration", "generator_function_declaration", "method_definition"),
		classNodes:    set("class_declaration"),
	},
	types.LangTypeScript: {
		language:      typescript.GetLanguage(),
		functionNodes: set("function_declaration", "generator_function_declaration", "method_definition"),
		classNodes:    set("class_declaration", "abstract_class_declaration", "interface_declaration"),
	},
	types.LangGo: {
		language:      golang.GetLanguage(),
		functionNodes: set("function_declaration", "method_declaration"),
		classNodes:    set("type_declaration"),
	},
}

func set(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

// Supported reports whether a structural grammar is registered for lang.
func Supported(lang types.Language) bool {
	_, ok := registry[lang]
	return ok
}
