package types

// SymbolKind classifies a declaration found by the structural parser.
type SymbolKind string

const (
	SymbolFunction SymbolKind = "function"
	SymbolMethod   SymbolKind = "method"
	SymbolClass    SymbolKind = "class"
)

// Symbol is a single named declaration extracted from a syntax tree.
type Symbol struct {
	Name      string // Declared name
	Qualified string // Scope-qualified name, e.g. "C.m"
	Kind      SymbolKind

	StartLine int // 1-based
	EndLine   int // 1-based
	StartByte int
	EndByte   int
}

// ParseResult is the output of structurally parsing one source file.
type ParseResult struct {
	Language Language
	Symbols  []Symbol

	// Fallback is set when no structural parse was possible and the file
	// should be indexed as a single module chunk.
	Fallback bool

	// ErrorPos describes the first syntax error position when the parse
	// recovered around broken syntax ("" when the parse was clean).
	ErrorPos string
}
