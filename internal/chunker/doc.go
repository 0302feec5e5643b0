// Package chunker splits markdown documents into chunks for embedding and search.
//
// # Basic Usage
//
//	c, err := chunker.New(chunker.DefaultOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	for _, chunk := range c.Chunk(text, "architecture/overview.md") {
//	    fmt.Printf("%s %q (%d chars)\n", chunk.ID, chunk.Heading, chunk.CharCount)
//	}
//
// # Strategies
//
// Three strategies are supported:
//   - heading: one chunk per h1-h3 section; content before the first heading
//     is labeled "intro"
//   - fixed: character windows of MaxChars with Overlap characters shared
//     between neighbours, preferring to end a window on a sentence boundary
//   - hybrid: heading sections, with sections longer than MaxChars split into
//     fixed windows labeled "<heading> (part N)"
//
// Sections are prefixed with their heading path ("Guide > Install") so that a
// chunk retrieved on its own still carries its position in the document.
// Chunks shorter than MinChars are dropped.
//
// # Chunk IDs
//
// A chunk id is the first 16 hex characters of sha256(source, label, ordinal).
// Chunking unchanged text twice yields the same ids, which lets diff-aware
// indexing replace a document's chunks without touching other documents.
package chunker
