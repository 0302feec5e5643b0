package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/dl4rce/flaiwheel/internal/category"
	"github.com/dl4rce/flaiwheel/pkg/types"
)

const (
	// DefaultMaxChars is the window size for the fixed strategy and the
	// split threshold for hybrid
	DefaultMaxChars = 2000

	// DefaultOverlap is the number of characters consecutive fixed windows share
	DefaultOverlap = 200

	// MinChunkChars drops chunks too short to carry retrievable signal
	MinChunkChars = 50

	// IntroLabel labels content that precedes the first heading
	IntroLabel = "intro"

	// idLength is the number of hex characters kept from the chunk id hash
	idLength = 16
)

// headingPattern matches h1-h3 markdown headings
var headingPattern = regexp.MustCompile(`^(#{1,3})\s+(.*)$`)

// Options configures a Chunker
type Options struct {
	Strategy types.ChunkStrategy
	MaxChars int
	Overlap  int
	MinChars int
}

// DefaultOptions returns the hybrid strategy with default sizes
func DefaultOptions() Options {
	return Options{
		Strategy: types.StrategyHybrid,
		MaxChars: DefaultMaxChars,
		Overlap:  DefaultOverlap,
		MinChars: MinChunkChars,
	}
}

// Chunker splits document text into retrievable chunks
type Chunker struct {
	opts Options
}

// New creates a Chunker. Zero sizes fall back to defaults.
func New(opts Options) (*Chunker, error) {
	if opts.Strategy == "" {
		opts.Strategy = types.StrategyHybrid
	}
	strategy, err := types.ParseChunkStrategy(string(opts.Strategy))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", err, opts.Strategy)
	}
	opts.Strategy = strategy
	if opts.MaxChars <= 0 {
		opts.MaxChars = DefaultMaxChars
	}
	if opts.Overlap < 0 {
		opts.Overlap = 0
	}
	if opts.MinChars <= 0 {
		opts.MinChars = MinChunkChars
	}
	return &Chunker{opts: opts}, nil
}

// Options returns the effective options
func (c *Chunker) Options() Options {
	return c.opts
}

// Chunk splits text from sourceID into ordered chunks. Empty input yields an
// empty slice. Chunking the same text twice yields identical ids.
func (c *Chunker) Chunk(text, sourceID string) []*types.Chunk {
	text = normalizeNewlines(text)
	if strings.TrimSpace(text) == "" {
		return []*types.Chunk{}
	}

	b := &builder{source: sourceID, category: category.Detect(sourceID)}

	switch c.opts.Strategy {
	case types.StrategyFixed:
		c.chunkFixed(b, text)
	case types.StrategyHeading:
		c.chunkByHeading(b, text, false)
	default:
		c.chunkByHeading(b, text, true)
	}
	return b.chunks
}

// section is the run of lines under one heading
type section struct {
	heading string
	path    string
	lines   []string
}

func (s section) raw() string {
	return strings.TrimSpace(strings.Join(s.lines, "\n"))
}

// chunkByHeading emits one chunk per section; with splitLarge set, sections
// longer than MaxChars are windowed as "<heading> (part N)".
func (c *Chunker) chunkByHeading(b *builder, text string, splitLarge bool) {
	for _, sec := range splitSections(text) {
		raw := sec.raw()
		if runeLen(raw) < c.opts.MinChars {
			continue
		}

		if splitLarge && runeLen(raw) > c.opts.MaxChars {
			part := 0
			for _, window := range fixedWindows(raw, c.opts.MaxChars, c.opts.Overlap) {
				if runeLen(window) < c.opts.MinChars {
					continue
				}
				part++
				label := sec.heading + " (part " + strconv.Itoa(part) + ")"
				b.add(label, sec.path, withPath(sec.path, window))
			}
			continue
		}

		b.add(sec.heading, sec.path, withPath(sec.path, raw))
	}
}

func (c *Chunker) chunkFixed(b *builder, text string) {
	for i, window := range fixedWindows(text, c.opts.MaxChars, c.opts.Overlap) {
		if runeLen(window) < c.opts.MinChars {
			continue
		}
		b.add("part "+strconv.Itoa(i+1), "", window)
	}
}

// splitSections splits markdown at h1-h3 headings, tracking the heading path.
// Lines inside fenced code blocks are never treated as headings.
func splitSections(text string) []section {
	var sections []section
	type level struct {
		depth int
		title string
	}
	var stack []level
	current := section{heading: IntroLabel}
	inFence := false

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
		}

		m := headingPattern.FindStringSubmatch(line)
		if inFence || m == nil {
			current.lines = append(current.lines, line)
			continue
		}

		if len(current.lines) > 0 {
			sections = append(sections, current)
		}

		depth := len(m[1])
		title := strings.TrimSpace(m[2])
		kept := stack[:0]
		for _, l := range stack {
			if l.depth < depth {
				kept = append(kept, l)
			}
		}
		stack = append(kept, level{depth: depth, title: title})

		titles := make([]string, len(stack))
		for i, l := range stack {
			titles[i] = l.title
		}
		current = section{
			heading: title,
			path:    strings.Join(titles, " > "),
			lines:   []string{line},
		}
	}
	if len(current.lines) > 0 {
		sections = append(sections, current)
	}
	return sections
}

// fixedWindows splits text into windows of at most maxChars runes. A window
// ends at the last ". " when one exists past half the window. Consecutive
// windows overlap by overlap runes and always make forward progress.
func fixedWindows(text string, maxChars, overlap int) []string {
	runes := []rune(text)
	n := len(runes)
	windows := make([]string, 0, n/maxChars+1)

	start := 0
	for start < n {
		end := start + maxChars
		if end > n {
			end = n
		}
		if end < n {
			if idx := lastSentenceBreak(runes[start:end]); idx >= 0 && idx*2 > maxChars {
				end = start + idx + 1
			}
		}

		windows = append(windows, strings.TrimSpace(string(runes[start:end])))
		if end >= n {
			break
		}

		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return windows
}

func lastSentenceBreak(r []rune) int {
	for i := len(r) - 2; i >= 0; i-- {
		if r[i] == '.' && r[i+1] == ' ' {
			return i
		}
	}
	return -1
}

// builder accumulates chunks for one document
type builder struct {
	source   string
	category types.Category
	chunks   []*types.Chunk
}

func (b *builder) add(label, headingPath, text string) {
	ordinal := len(b.chunks)
	b.chunks = append(b.chunks, &types.Chunk{
		ID:          ChunkID(b.source, label, ordinal),
		Source:      b.source,
		Ordinal:     ordinal,
		Heading:     label,
		HeadingPath: headingPath,
		Text:        text,
		CharCount:   runeLen(text),
		WordCount:   len(strings.Fields(text)),
		Category:    b.category,
	})
}

// ChunkID derives the stable id of a chunk from its source, label and ordinal
func ChunkID(sourceID, label string, ordinal int) string {
	h := sha256.New()
	h.Write([]byte(sourceID))
	h.Write([]byte{0})
	h.Write([]byte(label))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(ordinal)))
	return hex.EncodeToString(h.Sum(nil))[:idLength]
}

// withPath prefixes text with its heading path for retrieval context
func withPath(path, text string) string {
	if path == "" {
		return text
	}
	return "[" + path + "]\n\n" + text
}

func normalizeNewlines(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "\r\n", "\n"), "\r", "\n")
}

func runeLen(s string) int {
	return len([]rune(s))
}
