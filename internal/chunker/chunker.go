package chunker

import (
	"fmt"
	"path"
	"strings"

	"github.com/semantica-dev/codectx/pkg/types"
)

const (
	// DefaultMaxChunkLen bounds a chunk's text length before it is split
	// into part chunks, keeping embedding inputs under provider limits.
	DefaultMaxChunkLen = 8000

	// partLen is the target length of each continuation part.
	partLen = 4000
)

// Chunker converts one file's parse result into its chunk set.
type Chunker struct {
	maxChunkLen int
}

// New creates a Chunker with the default size limit.
func New() *Chunker {
	return &Chunker{maxChunkLen: DefaultMaxChunkLen}
}

// NewWithLimit creates a Chunker with a custom chunk length limit.
func NewWithLimit(maxChunkLen int) *Chunker {
	if maxChunkLen <= 0 {
		maxChunkLen = DefaultMaxChunkLen
	}
	return &Chunker{maxChunkLen: maxChunkLen}
}

// ChunkFile produces the chunk set for one file. Chunk identities are unique
// within the file and stable across re-parses of unchanged text.
func (c *Chunker) ChunkFile(relPath string, content []byte, result *types.ParseResult) []types.CodeChunk {
	if result == nil || result.Fallback || len(result.Symbols) == 0 {
		return c.moduleFallback(relPath, content, result)
	}

	lines := strings.Split(string(content), "\n")

	// Ordinals per qualified name in source order: the first occurrence
	// keeps the bare name, duplicates get #2, #3, ...
	occurrences := make(map[string]int)

	chunks := make([]types.CodeChunk, 0, len(result.Symbols))
	for _, sym := range result.Symbols {
		text := sliceBytes(content, sym.StartByte, sym.EndByte)
		if text == "" {
			continue
		}

		occurrences[sym.Qualified]++
		id := relPath + ":" + sym.Qualified
		if n := occurrences[sym.Qualified]; n > 1 {
			id = fmt.Sprintf("%s#%d", id, n)
		}

		chunk := types.CodeChunk{
			ID:        id,
			Path:      relPath,
			Language:  result.Language,
			Kind:      symbolKindToChunkKind(sym.Kind),
			Name:      sym.Qualified,
			StartLine: sym.StartLine,
			EndLine:   clampLine(sym.EndLine, len(lines)),
			Text:      text,
		}
		chunk.ComputeDigest()
		chunks = append(chunks, c.splitOversize(chunk)...)
	}

	if len(chunks) == 0 {
		return c.moduleFallback(relPath, content, result)
	}
	return chunks
}

// moduleFallback indexes an entire file as a single chunk, used for generic
// files, failed parses, and files with no extractable declarations.
func (c *Chunker) moduleFallback(relPath string, content []byte, result *types.ParseResult) []types.CodeChunk {
	text := string(content)
	if strings.TrimSpace(text) == "" {
		return nil
	}

	lang := types.LangGeneric
	if result != nil {
		lang = result.Language
	}

	chunk := types.CodeChunk{
		ID:        relPath + ":" + path.Base(relPath),
		Path:      relPath,
		Language:  lang,
		Kind:      types.ChunkModule,
		Name:      path.Base(relPath),
		StartLine: 1,
		EndLine:   countLines(text),
		Text:      text,
	}
	chunk.ComputeDigest()
	return c.splitOversize(chunk)
}

// splitOversize breaks a chunk exceeding the length limit into part chunks
// on line boundaries. Part identities extend the base identity so they stay
// stable while the underlying text is stable.
func (c *Chunker) splitOversize(chunk types.CodeChunk) []types.CodeChunk {
	if len(chunk.Text) <= c.maxChunkLen {
		return []types.CodeChunk{chunk}
	}

	lines := strings.Split(chunk.Text, "\n")
	var parts []types.CodeChunk
	var buf []string
	bufLen := 0
	startLine := chunk.StartLine

	flush := func(endLine int) {
		if len(buf) == 0 {
			return
		}
		part := chunk
		part.ID = fmt.Sprintf("%s#part%d", chunk.ID, len(parts)+1)
		part.Name = fmt.Sprintf("%s (part %d)", chunk.Name, len(parts)+1)
		part.Text = strings.Join(buf, "\n")
		part.StartLine = startLine
		part.EndLine = endLine
		part.ComputeDigest()
		parts = append(parts, part)
		buf = buf[:0]
		bufLen = 0
		startLine = endLine + 1
	}

	for i, line := range lines {
		buf = append(buf, line)
		bufLen += len(line) + 1
		if bufLen >= partLen {
			flush(chunk.StartLine + i)
		}
	}
	flush(chunk.EndLine)

	return parts
}

func symbolKindToChunkKind(kind types.SymbolKind) types.ChunkKind {
	switch kind {
	case types.SymbolMethod:
		return types.ChunkMethod
	case types.SymbolClass:
		return types.ChunkClass
	default:
		return types.ChunkFunction
	}
}

func sliceBytes(content []byte, start, end int) string {
	if start < 0 || end > len(content) || start >= end {
		return ""
	}
	return string(content[start:end])
}

func clampLine(line, max int) int {
	if max > 0 && line > max {
		return max
	}
	return line
}

func countLines(text string) int {
	return strings.Count(text, "\n") + 1
}
