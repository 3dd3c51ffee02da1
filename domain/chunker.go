package domain

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Chunker defines the interface for splitting source files into chunks.
type Chunker interface {
	// Chunk splits source into chunks of at most maxChunkTokens tokens,
	// ordered by ascending start line. Adjacent chunks produced by
	// splitting a construct mid-body overlap by roughly overlapTokens
	// tokens. Empty or whitespace-only input yields an empty slice.
	// Binary content fails with ErrUnreadableSource.
	Chunk(path string, source []byte, maxChunkTokens, overlapTokens int) ([]Chunk, error)
}

// CodeChunker splits files along structurally meaningful boundaries.
// Go files are cut at top-level declarations via go/ast; everything else
// falls back to fixed-size line windows.
type CodeChunker struct{}

// NewCodeChunker creates a new CodeChunker.
func NewCodeChunker() *CodeChunker {
	return &CodeChunker{}
}

// segment is a contiguous line range delimited by structural boundaries.
type segment struct {
	startLine int // 1-based
	endLine   int // inclusive
	symbol    string
}

// piece is a candidate chunk: either one whole segment or a window cut
// from an oversize segment. Windows overlap their neighbors, so they are
// never merged again. content is set only for sub-line windows, where the
// text is not the join of whole lines.
type piece struct {
	startLine int
	endLine   int
	tokens    int
	symbols   []string
	window    bool
	content   string
}

// Chunk implements the Chunker interface.
func (c *CodeChunker) Chunk(path string, source []byte, maxChunkTokens, overlapTokens int) ([]Chunk, error) {
	if maxChunkTokens < 1 {
		return nil, fmt.Errorf("maxChunkTokens must be >= 1, got %d", maxChunkTokens)
	}
	if overlapTokens < 0 || overlapTokens >= maxChunkTokens {
		return nil, fmt.Errorf("overlapTokens must be in [0, maxChunkTokens), got %d", overlapTokens)
	}

	if !utf8.Valid(source) || looksBinary(source) {
		return nil, fmt.Errorf("%w: %s", ErrUnreadableSource, path)
	}

	text := string(source)
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	lines := strings.Split(text, "\n")
	// A trailing newline produces a phantom empty last element.
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	segments := mergeBlankSegments(c.segments(path, source, len(lines)), lines)
	pieces := cutPieces(segments, lines, maxChunkTokens, overlapTokens)
	merged := mergePieces(pieces, maxChunkTokens)

	chunks := make([]Chunk, 0, len(merged))
	for _, p := range merged {
		content := p.content
		if content == "" {
			content = strings.Join(lines[p.startLine-1:p.endLine], "\n")
		}
		// Every chunk carries text; a lone blank line boxed in between
		// windows has nothing to embed.
		if content == "" {
			continue
		}
		chunks = append(chunks, Chunk{
			ID:         uuid.New().String(),
			FilePath:   path,
			StartLine:  p.startLine,
			EndLine:    p.endLine,
			Content:    content,
			TokenCount: EstimateTokens(content),
			Symbols:    p.symbols,
		})
	}
	return chunks, nil
}

// segments partitions the file into line ranges. For Go sources each
// top-level declaration becomes one segment and the gaps between them
// (package clause, imports, blank runs) become their own segments, so the
// segment list always covers every line. Non-Go files and files that fail
// to parse collapse to a single whole-file segment.
func (c *CodeChunker) segments(path string, source []byte, totalLines int) []segment {
	if totalLines == 0 {
		return nil
	}

	whole := []segment{{startLine: 1, endLine: totalLines}}
	if !strings.HasSuffix(path, ".go") {
		return whole
	}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, source, parser.ParseComments)
	if err != nil {
		return whole
	}

	var segs []segment
	cursor := 1
	for _, decl := range file.Decls {
		start := fset.Position(declStart(decl)).Line
		end := fset.Position(decl.End()).Line
		if end > totalLines {
			end = totalLines
		}
		if start < cursor {
			continue
		}
		if start > cursor {
			segs = append(segs, segment{startLine: cursor, endLine: start - 1})
		}
		segs = append(segs, segment{startLine: start, endLine: end, symbol: declSymbol(decl)})
		cursor = end + 1
	}
	if cursor <= totalLines {
		segs = append(segs, segment{startLine: cursor, endLine: totalLines})
	}
	if len(segs) == 0 {
		return whole
	}
	return segs
}

// mergeBlankSegments folds segments made only of blank lines into a
// neighbor. A blank run between declarations must never surface as its
// own chunk: its content would be empty and the index rejects text-free
// entries.
func mergeBlankSegments(segs []segment, lines []string) []segment {
	var out []segment
	for i, s := range segs {
		if !blankRange(lines, s.startLine, s.endLine) {
			out = append(out, s)
			continue
		}
		if len(out) > 0 {
			out[len(out)-1].endLine = s.endLine
			continue
		}
		if i+1 < len(segs) {
			segs[i+1].startLine = s.startLine
			continue
		}
		out = append(out, s)
	}
	return out
}

func blankRange(lines []string, start, end int) bool {
	for i := start; i <= end; i++ {
		if strings.TrimSpace(lines[i-1]) != "" {
			return false
		}
	}
	return true
}

// declStart returns the start position of a declaration, including its doc
// comment when present so the comment travels with the code it documents.
func declStart(decl ast.Decl) token.Pos {
	switch d := decl.(type) {
	case *ast.FuncDecl:
		if d.Doc != nil {
			return d.Doc.Pos()
		}
	case *ast.GenDecl:
		if d.Doc != nil {
			return d.Doc.Pos()
		}
	}
	return decl.Pos()
}

// declSymbol extracts the declared name, qualifying methods with their
// receiver type the way editors display them.
func declSymbol(decl ast.Decl) string {
	switch d := decl.(type) {
	case *ast.FuncDecl:
		name := d.Name.Name
		if d.Recv != nil && len(d.Recv.List) > 0 {
			if recv := receiverTypeName(d.Recv.List[0].Type); recv != "" {
				name = recv + "." + name
			}
		}
		return name
	case *ast.GenDecl:
		for _, spec := range d.Specs {
			switch s := spec.(type) {
			case *ast.TypeSpec:
				return s.Name.Name
			case *ast.ValueSpec:
				if len(s.Names) > 0 {
					return s.Names[0].Name
				}
			}
		}
	}
	return ""
}

func receiverTypeName(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.StarExpr:
		return receiverTypeName(t.X)
	case *ast.Ident:
		return t.Name
	case *ast.IndexExpr: // generic receiver
		return receiverTypeName(t.X)
	}
	return ""
}

// cutPieces turns segments into budget-respecting pieces. Segments that
// fit the budget pass through whole; oversize segments are split into line
// windows where consecutive windows share overlapTokens worth of lines.
func cutPieces(segments []segment, lines []string, maxChunkTokens, overlapTokens int) []piece {
	var pieces []piece
	for _, seg := range segments {
		tok := rangeTokens(lines, seg.startLine, seg.endLine)
		if tok <= maxChunkTokens {
			p := piece{startLine: seg.startLine, endLine: seg.endLine, tokens: tok}
			if seg.symbol != "" {
				p.symbols = []string{seg.symbol}
			}
			pieces = append(pieces, p)
			continue
		}
		pieces = append(pieces, splitByLines(seg, lines, maxChunkTokens, overlapTokens)...)
	}
	return pieces
}

// splitByLines cuts an oversize segment into consecutive line windows.
// Each window holds as many whole lines as the budget allows (always at
// least one), and the next window rewinds by up to overlapTokens worth of
// trailing lines so no context is lost at the cut. A single line that
// alone exceeds the budget (minified or generated sources) is cut below
// line granularity so the per-chunk budget holds for it too.
func splitByLines(seg segment, lines []string, maxChunkTokens, overlapTokens int) []piece {
	var pieces []piece
	i := seg.startLine
	for i <= seg.endLine {
		if lineTokens(lines[i-1]) > maxChunkTokens {
			pieces = append(pieces, splitOversizeLine(seg, lines[i-1], i, len(pieces), maxChunkTokens, overlapTokens)...)
			i++
			continue
		}

		j := i
		tok := 0
		for j <= seg.endLine {
			lt := lineTokens(lines[j-1])
			if j > i && tok+lt > maxChunkTokens {
				break
			}
			tok += lt
			j++
		}

		p := piece{startLine: i, endLine: j - 1, tokens: tok, window: true}
		if seg.symbol != "" {
			p.symbols = []string{fmt.Sprintf("%s_part%d", seg.symbol, len(pieces)+1)}
		}
		pieces = append(pieces, p)

		if j > seg.endLine {
			break
		}

		// Rewind for overlap without losing forward progress.
		back := 0
		otok := 0
		for k := j - 1; k > i; k-- {
			lt := lineTokens(lines[k-1])
			if otok+lt > overlapTokens {
				break
			}
			otok += lt
			back++
		}
		i = j - back
	}
	return pieces
}

// splitOversizeLine cuts one over-budget line into character windows,
// never splitting a UTF-8 rune. Consecutive windows overlap by up to
// overlapTokens worth of characters. All windows share the line number.
func splitOversizeLine(seg segment, line string, lineNo, partBase, maxChunkTokens, overlapTokens int) []piece {
	// EstimateTokens rounds up, so cap the window just under 4x.
	maxChars := maxChunkTokens*4 - 3
	if maxChars < 1 {
		maxChars = 1
	}
	overlapChars := overlapTokens * 4

	var pieces []piece
	start := 0
	for start < len(line) {
		end := start + maxChars
		if end >= len(line) {
			end = len(line)
		} else {
			for end > start+1 && !utf8.RuneStart(line[end]) {
				end--
			}
		}

		content := line[start:end]
		p := piece{
			startLine: lineNo,
			endLine:   lineNo,
			tokens:    EstimateTokens(content),
			window:    true,
			content:   content,
		}
		if seg.symbol != "" {
			p.symbols = []string{fmt.Sprintf("%s_part%d", seg.symbol, partBase+len(pieces)+1)}
		}
		pieces = append(pieces, p)

		if end == len(line) {
			break
		}
		next := end - overlapChars
		if next <= start {
			next = end
		}
		for next < len(line) && !utf8.RuneStart(line[next]) {
			next++
		}
		start = next
	}
	return pieces
}

// mergePieces greedily joins adjacent whole-segment pieces while the
// combined size stays within the budget. Window pieces overlap their
// neighbors and are emitted as-is.
func mergePieces(pieces []piece, maxChunkTokens int) []piece {
	var merged []piece
	for _, p := range pieces {
		if len(merged) > 0 {
			last := &merged[len(merged)-1]
			if !p.window && !last.window &&
				p.startLine == last.endLine+1 &&
				last.tokens+p.tokens <= maxChunkTokens {
				last.endLine = p.endLine
				last.tokens += p.tokens
				last.symbols = append(last.symbols, p.symbols...)
				continue
			}
		}
		merged = append(merged, p)
	}
	return merged
}

// rangeTokens sums per-line token estimates for lines [start, end], 1-based
// inclusive. Per-line estimates include the joining newline, so the sum
// never undercounts the estimate of the joined content.
func rangeTokens(lines []string, start, end int) int {
	tok := 0
	for i := start; i <= end; i++ {
		tok += lineTokens(lines[i-1])
	}
	return tok
}

func lineTokens(line string) int {
	return (len(line) + 1 + 3) / 4
}

// looksBinary reports whether the data contains null bytes in its leading
// window, the usual marker of non-text content.
func looksBinary(data []byte) bool {
	n := len(data)
	if n > 1024 {
		n = 1024
	}
	for _, b := range data[:n] {
		if b == 0 {
			return true
		}
	}
	return false
}
