package chunker

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"packrag/internal/domain"
)

func TestNewRecursive(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
		wantErr bool
	}{
		{name: "defaults", size: DefaultChunkSize, overlap: DefaultChunkOverlap},
		{name: "zero overlap", size: 10, overlap: 0},
		{name: "zero size", size: 0, overlap: 0, wantErr: true},
		{name: "negative overlap", size: 10, overlap: -1, wantErr: true},
		{name: "overlap equals size", size: 10, overlap: 10, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, err := NewRecursive(tc.size, tc.overlap)
			if tc.wantErr {
				assert.ErrorIs(t, err, domain.ErrConfiguration)
				assert.Nil(t, c)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, c)
		})
	}
}

func TestChunk_SkipsEmptyPages(t *testing.T) {
	c, err := NewRecursive(100, 10)
	require.NoError(t, err)

	chunks, err := c.Chunk([]domain.Page{
		{Text: "", Metadata: domain.ChunkMetadata{Source: "a.pdf", Page: 1}},
		{Text: "   \n\t ", Metadata: domain.ChunkMetadata{Source: "a.pdf", Page: 2}},
	})
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestChunk_ShortPageIsSingleChunk(t *testing.T) {
	c, err := NewRecursive(100, 10)
	require.NoError(t, err)

	md := domain.ChunkMetadata{Source: "pack.pdf", Path: "/data/pack.pdf", Page: 3}
	chunks, err := c.Chunk([]domain.Page{{Text: "  Claim Reference: CLM-ABC-123456  ", Metadata: md}})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Claim Reference: CLM-ABC-123456", chunks[0].Text)
	assert.Equal(t, "pack.pdf", chunks[0].Metadata.Source)
	assert.Equal(t, "/data/pack.pdf", chunks[0].Metadata.Path)
	assert.Equal(t, 3, chunks[0].Metadata.Page)
	assert.Equal(t, 0, chunks[0].Metadata.ChunkID)
}

func TestChunk_PrefersParagraphBoundaries(t *testing.T) {
	c, err := NewRecursive(30, 0)
	require.NoError(t, err)

	text := "First paragraph here.\n\nSecond paragraph here.\n\nThird one."
	got := c.SplitText(text)
	assert.Equal(t, []string{"First paragraph here.", "Second paragraph here.", "Third one."}, got)
}

func TestChunk_ChunkIDsContiguousPerPage(t *testing.T) {
	c, err := NewRecursive(40, 8)
	require.NoError(t, err)

	pages := []domain.Page{
		{Text: wordText(60), Metadata: domain.ChunkMetadata{Source: "a.pdf", Page: 1}},
		{Text: wordText(30), Metadata: domain.ChunkMetadata{Source: "a.pdf", Page: 2}},
	}
	chunks, err := c.Chunk(pages)
	require.NoError(t, err)

	next := map[int]int{}
	for _, ch := range chunks {
		assert.Equal(t, next[ch.Metadata.Page], ch.Metadata.ChunkID)
		next[ch.Metadata.Page]++
	}
	assert.Greater(t, next[1], 1)
	assert.Greater(t, next[2], 1)
}

func TestSplitText_BoundsAndOverlap(t *testing.T) {
	for _, tc := range []struct{ size, overlap int }{{50, 10}, {80, 20}, {35, 0}, {120, 40}} {
		t.Run(fmt.Sprintf("size=%d/overlap=%d", tc.size, tc.overlap), func(t *testing.T) {
			c, err := NewRecursive(tc.size, tc.overlap)
			require.NoError(t, err)

			text := wordText(200)
			chunks := c.SplitText(text)
			require.NotEmpty(t, chunks)

			cursor := 0
			prevEnd := 0
			covered := make([]bool, len(text))
			for i, ch := range chunks {
				assert.LessOrEqual(t, utf8.RuneCountInString(ch), tc.size)

				pos := strings.Index(text[cursor:], ch)
				require.GreaterOrEqual(t, pos, 0, "chunk %d is not an in-order substring", i)
				pos += cursor
				if i > 0 && pos < prevEnd {
					assert.LessOrEqual(t, prevEnd-pos, tc.overlap)
				}
				for j := pos; j < pos+len(ch); j++ {
					covered[j] = true
				}
				cursor = pos + 1
				prevEnd = pos + len(ch)
			}

			// Removing the overlap regions and whitespace reconstructs the page.
			for j, r := range text {
				if r != ' ' && r != '\n' {
					assert.True(t, covered[j], "byte %d (%q) not covered", j, r)
				}
			}
		})
	}
}

func TestSplitText_FallsBackToCharacters(t *testing.T) {
	c, err := NewRecursive(10, 2)
	require.NoError(t, err)

	text := strings.Repeat("x", 35)
	chunks := c.SplitText(text)
	require.NotEmpty(t, chunks)
	for _, ch := range chunks {
		assert.LessOrEqual(t, len(ch), 10)
	}
	assert.Equal(t, "xxxxxxxxxx", chunks[0])
}

func TestSplitText_Deterministic(t *testing.T) {
	c, err := NewRecursive(64, 16)
	require.NoError(t, err)

	text := "Claim Reference: CLM-ABC-123456\nPolicy Number: POL-12345678\n\n" + wordText(80)
	assert.Equal(t, c.SplitText(text), c.SplitText(text))
}

func TestSplitText_CountsRunes(t *testing.T) {
	c, err := NewRecursive(12, 0)
	require.NoError(t, err)

	chunks := c.SplitText("£100 £200 £300 £400 £500")
	for _, ch := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(ch), 12)
	}
	assert.Equal(t, "£100 £200", chunks[0])
}

// wordText builds n unique words separated by spaces with a line break every
// seventh word, so every chunk is locatable in the source.
func wordText(n int) string {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			if i%7 == 0 {
				sb.WriteString("\n")
			} else {
				sb.WriteString(" ")
			}
		}
		fmt.Fprintf(&sb, "w%03d", i)
	}
	return sb.String()
}

func TestSplitText_OverlapOnlyChunkIsDropped(t *testing.T) {
	c, err := NewRecursive(3, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, c.SplitText("\n a "))

	for _, text := range []string{"ab \n  cd", "x  y  z ", "a\n\n\nb  "} {
		chunks := c.SplitText(text)
		for i := 1; i < len(chunks); i++ {
			assert.NotEqual(t, chunks[i-1], chunks[i], text)
		}
	}

	// Repeated content is still chunked in full.
	c, err = NewRecursive(10, 2)
	require.NoError(t, err)
	assert.Greater(t, len(c.SplitText(strings.Repeat("x", 35))), 3)
}
