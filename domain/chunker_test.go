package domain

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const twoFunctionSource = `package calc

// Add returns the sum of two ints.
func Add(a, b int) int {
	return a + b
}

// Mul multiplies two ints and reports the product of the operands.
func Mul(a, b int) int {
	product := a * b
	return product
}
`

func TestCodeChunker_EmptyInput(t *testing.T) {
	chunker := NewCodeChunker()

	for name, content := range map[string]string{
		"empty":           "",
		"whitespace only": "  \n\t\n  \n",
	} {
		t.Run(name, func(t *testing.T) {
			chunks, err := chunker.Chunk("empty.go", []byte(content), 100, 10)
			require.NoError(t, err)
			assert.Empty(t, chunks)
		})
	}
}

func TestCodeChunker_BinaryInput(t *testing.T) {
	chunker := NewCodeChunker()

	_, err := chunker.Chunk("blob.bin", []byte{0x7f, 0x45, 0x4c, 0x46, 0x00, 0x01, 0x02}, 100, 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnreadableSource))

	_, err = chunker.Chunk("bad.txt", []byte{0xff, 0xfe, 0x41}, 100, 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnreadableSource))
}

func TestCodeChunker_InvalidOptions(t *testing.T) {
	chunker := NewCodeChunker()

	_, err := chunker.Chunk("a.go", []byte("package a\n"), 0, 0)
	assert.Error(t, err)

	_, err = chunker.Chunk("a.go", []byte("package a\n"), 100, 100)
	assert.Error(t, err)

	_, err = chunker.Chunk("a.go", []byte("package a\n"), 100, -1)
	assert.Error(t, err)
}

func TestCodeChunker_TwoIndependentFunctions(t *testing.T) {
	chunker := NewCodeChunker()

	// Budget fits either function alone but not both together, so each
	// function lands in its own chunk.
	chunks, err := chunker.Chunk("calc.go", []byte(twoFunctionSource), 40, 8)
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	assert.Contains(t, chunks[0].Content, "func Add")
	assert.NotContains(t, chunks[0].Content, "func Mul")
	assert.Contains(t, chunks[1].Content, "func Mul")
	assert.NotContains(t, chunks[1].Content, "func Add")

	assert.Equal(t, []string{"Add"}, chunks[0].Symbols)
	assert.Equal(t, []string{"Mul"}, chunks[1].Symbols)

	// Chunk 1 starts at the top of the file, chunk 2 at Mul's doc comment.
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 8, chunks[1].StartLine)
	assert.Equal(t, 12, chunks[1].EndLine)
}

func TestCodeChunker_SmallFunctionsMerge(t *testing.T) {
	chunker := NewCodeChunker()

	// With a budget that fits the whole file, everything merges into one chunk.
	chunks, err := chunker.Chunk("calc.go", []byte(twoFunctionSource), 512, 64)
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 12, chunks[0].EndLine)
	assert.ElementsMatch(t, []string{"Add", "Mul"}, chunks[0].Symbols)
}

func TestCodeChunker_TokenBudgetRespected(t *testing.T) {
	chunker := NewCodeChunker()

	line := strings.Repeat("x", 40)
	content := strings.Repeat(line+"\n", 100)

	chunks, err := chunker.Chunk("notes.txt", []byte(content), 50, 15)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for _, c := range chunks {
		assert.LessOrEqual(t, c.TokenCount, 50, "chunk %s exceeds budget", c.ID)
		assert.NotEmpty(t, c.Content)
		assert.GreaterOrEqual(t, c.EndLine, c.StartLine)
	}
}

func TestCodeChunker_WindowsOverlap(t *testing.T) {
	chunker := NewCodeChunker()

	// 40-char lines estimate to 11 tokens; overlap 15 rewinds one line, so
	// consecutive windows share exactly one line.
	line := strings.Repeat("x", 40)
	content := strings.Repeat(line+"\n", 20)

	chunks, err := chunker.Chunk("notes.txt", []byte(content), 50, 15)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for i := 1; i < len(chunks); i++ {
		assert.Equal(t, chunks[i-1].EndLine, chunks[i].StartLine,
			"windows %d and %d should share one line", i-1, i)
	}
}

func TestCodeChunker_FullLineCoverage(t *testing.T) {
	chunker := NewCodeChunker()

	sources := map[string]string{
		"calc.go":   twoFunctionSource,
		"notes.txt": strings.Repeat(strings.Repeat("y", 30)+"\n", 50),
	}

	for path, src := range sources {
		t.Run(path, func(t *testing.T) {
			chunks, err := chunker.Chunk(path, []byte(src), 60, 10)
			require.NoError(t, err)
			require.NotEmpty(t, chunks)

			totalLines := len(strings.Split(strings.TrimSuffix(src, "\n"), "\n"))

			assert.Equal(t, 1, chunks[0].StartLine)
			assert.Equal(t, totalLines, chunks[len(chunks)-1].EndLine)
			for i := 1; i < len(chunks); i++ {
				// Ascending order, no uncovered gap between neighbors.
				assert.Greater(t, chunks[i].StartLine, chunks[i-1].StartLine)
				assert.LessOrEqual(t, chunks[i].StartLine, chunks[i-1].EndLine+1)
			}
		})
	}
}

func TestCodeChunker_OversizeFunctionSplits(t *testing.T) {
	chunker := NewCodeChunker()

	var b strings.Builder
	b.WriteString("package big\n\nfunc Everything() {\n")
	for i := 0; i < 60; i++ {
		b.WriteString("\tdoSomethingModeratelyInteresting()\n")
	}
	b.WriteString("}\n")

	chunks, err := chunker.Chunk("big.go", []byte(b.String()), 100, 20)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for _, c := range chunks {
		assert.LessOrEqual(t, c.TokenCount, 100)
	}
	// Split parts carry derived symbol names.
	assert.Contains(t, chunks[1].Symbols[0], "Everything_part")
}

func TestCodeChunker_NoEmptyChunksAcrossBudgets(t *testing.T) {
	chunker := NewCodeChunker()

	// Blank-line gaps between declarations must never surface as their
	// own text-free chunks, whatever the budget does to the merge pass.
	for budget := 22; budget <= 200; budget++ {
		chunks, err := chunker.Chunk("calc.go", []byte(twoFunctionSource), budget, 8)
		require.NoError(t, err)
		require.NotEmpty(t, chunks)
		for _, c := range chunks {
			assert.NotEmpty(t, c.Content, "budget %d produced a text-free chunk (lines %d-%d)",
				budget, c.StartLine, c.EndLine)
			assert.Greater(t, c.TokenCount, 0, "budget %d", budget)
		}
	}
}

func TestCodeChunker_BlankGapStaysWithNeighbor(t *testing.T) {
	chunker := NewCodeChunker()

	// Budget 26 fits the file prologue plus Add exactly; without folding,
	// the blank line between the functions is left over on its own.
	chunks, err := chunker.Chunk("calc.go", []byte(twoFunctionSource), 26, 4)
	require.NoError(t, err)

	covered := 0
	for _, c := range chunks {
		assert.NotEmpty(t, strings.TrimSpace(c.Content))
		if c.EndLine > covered {
			covered = c.EndLine
		}
	}
	assert.Equal(t, 12, covered, "blank lines stay covered by a neighboring chunk")
}

func TestCodeChunker_OversizeSingleLine(t *testing.T) {
	chunker := NewCodeChunker()

	long := strings.Repeat("x", 2000) // ~500 tokens on one line
	content := "short first line\n" + long + "\nshort last line\n"

	chunks, err := chunker.Chunk("bundle.min.js", []byte(content), 50, 10)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 3)

	sliced := 0
	for _, c := range chunks {
		assert.LessOrEqual(t, c.TokenCount, 50)
		assert.NotEmpty(t, c.Content)
		if c.StartLine == 2 {
			assert.Equal(t, 2, c.EndLine, "sub-line windows cite the line they came from")
			sliced++
		}
	}
	assert.Greater(t, sliced, 1, "the long line splits into several chunks")

	assert.Equal(t, "short first line", chunks[0].Content)
	assert.True(t, strings.HasPrefix(long, chunks[1].Content))
	assert.Equal(t, "short last line", chunks[len(chunks)-1].Content)
}

func TestCodeChunker_UnparsableGoFallsBack(t *testing.T) {
	chunker := NewCodeChunker()

	chunks, err := chunker.Chunk("broken.go", []byte("package {{{ not go\nstill not go\n"), 100, 10)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.Equal(t, 1, chunks[0].StartLine)
}

func TestCodeChunker_MethodSymbols(t *testing.T) {
	chunker := NewCodeChunker()

	src := `package store

type Store struct{}

func (s *Store) Get(key string) string {
	return key
}
`
	chunks, err := chunker.Chunk("store.go", []byte(src), 512, 64)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0].Symbols, "Store.Get")
}

func TestCodeChunker_UniqueIDs(t *testing.T) {
	chunker := NewCodeChunker()

	chunks, err := chunker.Chunk("calc.go", []byte(twoFunctionSource), 40, 8)
	require.NoError(t, err)

	seen := make(map[string]bool)
	for _, c := range chunks {
		assert.NotEmpty(t, c.ID)
		assert.False(t, seen[c.ID], "duplicate chunk id %s", c.ID)
		seen[c.ID] = true
	}
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("ab"))
	assert.Equal(t, 1, EstimateTokens("abcd"))
	assert.Equal(t, 2, EstimateTokens("abcde"))
}
