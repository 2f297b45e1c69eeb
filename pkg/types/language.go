package types

import (
	"path/filepath"
	"strings"
)

// Language identifies the syntax family of a source file.
type Language string

const (
	LangPython     Language = "python"
	LangJava       Language = "java"
	LangCPP        Language = "cpp"
	LangJavaScript Language = "javascript"
	LangTypeScript Language = "typescript"
	LangGo         Language = "go"

	// LangGeneric is the fallback for files with no structural parser.
	// Generic files are indexed as a single whole-file chunk.
	LangGeneric Language = "generic"
)

// extLanguages maps source file extensions to their language tag.
var extLanguages = map[string]Language{
	".py":  LangPython,
	".java": LangJava,
	".cpp": LangCPP,
	".cc":  LangCPP,
	".cxx": LangCPP,
	".c":   LangCPP,
	".h":   LangCPP,
	".hpp": LangCPP,
	".js":  LangJavaScript,
	".jsx": LangJavaScript,
	".mjs": LangJavaScript,
	".ts":  LangTypeScript,
	".tsx": LangTypeScript,
	".go":  LangGo,
}

// DetectLanguage maps a file path to its language tag by extension.
// Unknown extensions yield LangGeneric.
func DetectLanguage(path string) Language {
	ext := strings.ToLower(filepath.Ext(path))
	if lang, ok := extLanguages[ext]; ok {
		return lang
	}
	return LangGeneric
}

// SourceExtensions returns the set of extensions with structural parser
// support. Used by the merkle tracker's default include rules.
func SourceExtensions() []string {
	exts := make([]string, 0, len(extLanguages))
	for ext := range extLanguages {
		exts = append(exts, ext)
	}
	return exts
}
