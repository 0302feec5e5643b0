package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dl4rce/flaiwheel/pkg/types"
)

const guideDoc = `Intro paragraph long enough to be kept as its own chunk by the chunker.

# Guide

The guide section explains the overall approach in enough words.

## Install

Run the installer and then configure the environment variables carefully.

## Tiny

short
`

func newChunker(t *testing.T, opts Options) *Chunker {
	t.Helper()
	c, err := New(opts)
	require.NoError(t, err)
	return c
}

func TestNew(t *testing.T) {
	c, err := New(Options{})
	require.NoError(t, err)
	opts := c.Options()
	assert.Equal(t, types.StrategyHybrid, opts.Strategy)
	assert.Equal(t, DefaultMaxChars, opts.MaxChars)
	assert.Equal(t, MinChunkChars, opts.MinChars)

	_, err = New(Options{Strategy: "sentences"})
	assert.ErrorIs(t, err, types.ErrInvalidStrategy)
}

func TestChunk_Heading(t *testing.T) {
	c := newChunker(t, Options{Strategy: types.StrategyHeading})

	chunks := c.Chunk(guideDoc, "setup/guide.md")
	require.Len(t, chunks, 3, "the tiny section is dropped")

	assert.Equal(t, IntroLabel, chunks[0].Heading)
	assert.Empty(t, chunks[0].HeadingPath)
	assert.True(t, strings.HasPrefix(chunks[0].Text, "Intro paragraph"))

	assert.Equal(t, "Guide", chunks[1].Heading)
	assert.Equal(t, "Guide", chunks[1].HeadingPath)

	assert.Equal(t, "Install", chunks[2].Heading)
	assert.Equal(t, "Guide > Install", chunks[2].HeadingPath)
	assert.True(t, strings.HasPrefix(chunks[2].Text, "[Guide > Install]\n\n## Install"))

	for i, ch := range chunks {
		assert.Equal(t, i, ch.Ordinal)
		assert.Equal(t, "setup/guide.md", ch.Source)
		assert.Equal(t, types.CategorySetup, ch.Category)
		assert.Equal(t, len([]rune(ch.Text)), ch.CharCount)
		assert.Equal(t, len(strings.Fields(ch.Text)), ch.WordCount)
		assert.NoError(t, ch.Validate())
	}
}

func TestChunk_HeadingPathResetsOnSibling(t *testing.T) {
	doc := "# A\n\n" + strings.Repeat("alpha ", 12) +
		"\n\n## B\n\n" + strings.Repeat("bravo ", 12) +
		"\n\n# C\n\n" + strings.Repeat("charlie ", 12)

	c := newChunker(t, Options{Strategy: types.StrategyHeading})
	chunks := c.Chunk(doc, "architecture/x.md")
	require.Len(t, chunks, 3)
	assert.Equal(t, "A", chunks[0].HeadingPath)
	assert.Equal(t, "A > B", chunks[1].HeadingPath)
	assert.Equal(t, "C", chunks[2].HeadingPath)
}

func TestChunk_CodeFenceIsNotAHeading(t *testing.T) {
	doc := "# Deploy\n\n```bash\n# not a heading\necho deploying the service to every region now\n```\n"

	c := newChunker(t, Options{Strategy: types.StrategyHeading})
	chunks := c.Chunk(doc, "setup/deploy.md")
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0].Text, "# not a heading")
}

func TestChunk_Deterministic(t *testing.T) {
	c := newChunker(t, DefaultOptions())

	first := c.Chunk(guideDoc, "setup/guide.md")
	second := c.Chunk(guideDoc, "setup/guide.md")
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
	}

	edited := strings.Replace(guideDoc, "carefully", "very carefully", 1)
	third := c.Chunk(edited, "setup/guide.md")
	require.Len(t, third, 3)
	assert.Equal(t, first[0].ID, third[0].ID, "earlier sections keep their ids")
	assert.Equal(t, first[1].ID, third[1].ID)
	assert.NotEqual(t, first[2].Text, third[2].Text)

	other := c.Chunk(guideDoc, "setup/other.md")
	assert.NotEqual(t, first[0].ID, other[0].ID, "ids are scoped to the source")
}

func TestChunk_Empty(t *testing.T) {
	c := newChunker(t, DefaultOptions())

	for _, text := range []string{"", "   \n\t\n"} {
		chunks := c.Chunk(text, "api/empty.md")
		assert.NotNil(t, chunks)
		assert.Empty(t, chunks)
	}
}

func TestChunk_Fixed(t *testing.T) {
	c := newChunker(t, Options{Strategy: types.StrategyFixed, MaxChars: 100, Overlap: 20})

	text := strings.Repeat("This is a sentence. ", 30)
	chunks := c.Chunk(text, "best-practices/style.md")
	require.Greater(t, len(chunks), 1)

	assert.Equal(t, "part 1", chunks[0].Heading)
	for _, ch := range chunks {
		assert.LessOrEqual(t, ch.CharCount, 100)
		assert.True(t, strings.HasSuffix(ch.Text, "."), "window %q ends mid-sentence", ch.Heading)
		assert.Empty(t, ch.HeadingPath)
		assert.Equal(t, types.CategoryBestPractice, ch.Category)
	}
}

func TestChunk_HybridSplitsLargeSections(t *testing.T) {
	c := newChunker(t, Options{Strategy: types.StrategyHybrid, MaxChars: 100, Overlap: 10})

	doc := "## Big\n\n" + strings.Repeat("word ", 60) + "\n\n## Small\n\nA short section that still clears the minimum size."
	chunks := c.Chunk(doc, "api/big.md")
	require.GreaterOrEqual(t, len(chunks), 3)

	seen := make(map[string]bool)
	for _, ch := range chunks[:len(chunks)-1] {
		assert.True(t, strings.HasPrefix(ch.Heading, "Big (part "), ch.Heading)
		assert.True(t, strings.HasPrefix(ch.Text, "[Big]\n\n"))
		assert.False(t, seen[ch.ID], "duplicate id %s", ch.ID)
		seen[ch.ID] = true
	}
	assert.Equal(t, "Big (part 1)", chunks[0].Heading)
	assert.Equal(t, "Small", chunks[len(chunks)-1].Heading)
}

func TestFixedWindows(t *testing.T) {
	t.Run("overlap without sentence breaks", func(t *testing.T) {
		text := strings.Repeat("abcdefghij", 25)
		windows := fixedWindows(text, 100, 20)
		require.Len(t, windows, 3)
		assert.Len(t, windows[0], 100)
		assert.Equal(t, windows[0][80:], windows[1][:20])
		assert.Equal(t, text[160:], windows[2])
	})

	t.Run("overlap larger than window still progresses", func(t *testing.T) {
		text := strings.Repeat("x", 95)
		windows := fixedWindows(text, 10, 20)
		assert.Len(t, windows, 10)
	})

	t.Run("sentence break before half is ignored", func(t *testing.T) {
		text := "Hi. " + strings.Repeat("y", 200)
		windows := fixedWindows(text, 100, 0)
		assert.Len(t, windows[0], 100)
	})

	t.Run("short text is one window", func(t *testing.T) {
		assert.Equal(t, []string{"hello"}, fixedWindows("hello", 100, 20))
	})
}

func TestChunkID(t *testing.T) {
	id := ChunkID("api/a.md", "Endpoints", 2)
	assert.Len(t, id, 16)
	assert.Equal(t, id, ChunkID("api/a.md", "Endpoints", 2))
	assert.NotEqual(t, id, ChunkID("api/a.md", "Endpoints", 3))
	assert.NotEqual(t, id, ChunkID("api/a.md", "Endpoint", 2))
	assert.NotEqual(t, ChunkID("ab", "c", 0), ChunkID("a", "bc", 0))
}
