// Package chunker splits extracted document text into bounded windows for
// submission to the extraction capability. Both algorithms are pure and
// I/O-free; every chunk carries exact [Start,End) offsets into the source.
package chunker

import "strings"

const (
	// DefaultMaxChunk is the paragraph-preserving chunk size limit.
	DefaultMaxChunk = 1200
	// DefaultWindow is the overlapping fixed-window size.
	DefaultWindow = 2000
	// DefaultOverlap is the overlap between consecutive fixed windows.
	DefaultOverlap = 400
)

// Chunk is a contiguous span of the source text.
type Chunk struct {
	Text  string
	Start int // inclusive byte offset into the source
	End   int // exclusive byte offset into the source
	Index int
}

// ChunkText splits text into paragraph-preserving chunks of at most maxLen
// bytes. Paragraphs are blank-line delimited and are greedily packed;
// a chunk is flushed when the next paragraph would push it past the limit.
// Chunks are contiguous spans, so concatenating them reconstructs the
// whitespace-trimmed source. Blank input yields no chunks.
func ChunkText(text string, maxLen int) []Chunk {
	if maxLen <= 0 {
		maxLen = DefaultMaxChunk
	}

	paras := paragraphSpans(text)
	if len(paras) == 0 {
		return nil
	}

	// Group paragraphs greedily by span length from the chunk start.
	type group struct{ start, end int }
	groups := []group{{start: paras[0][0], end: paras[0][1]}}
	for _, p := range paras[1:] {
		cur := &groups[len(groups)-1]
		if p[1]-cur.start > maxLen {
			groups = append(groups, group{start: p[0], end: p[1]})
			continue
		}
		cur.end = p[1]
	}

	// Stitch group boundaries so spans are gap-free: each chunk extends
	// through the separator whitespace up to the next chunk's start.
	chunks := make([]Chunk, len(groups))
	for i, g := range groups {
		end := g.end
		if i+1 < len(groups) {
			end = groups[i+1].start
		}
		chunks[i] = Chunk{
			Text:  text[g.start:end],
			Start: g.start,
			End:   end,
			Index: i,
		}
	}
	return chunks
}

// ChunkTextOverlapping splits text into fixed windows of the given size
// with the given overlap, so a finding near a window boundary always
// appears fully inside at least one window. When a forced break would
// fall mid-text, the boundary is pulled back to the nearest paragraph
// break, else the nearest sentence break, but only when that break is
// past half the window. The next window starts at end-overlap, and always
// advances by at least one byte even if overlap >= window.
func ChunkTextOverlapping(text string, window, overlap int) []Chunk {
	if window <= 0 {
		window = DefaultWindow
	}
	if overlap < 0 {
		overlap = DefaultOverlap
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var chunks []Chunk
	start := 0
	for start < len(text) {
		end := start + window
		if end >= len(text) {
			end = len(text)
		} else {
			end = pullBackBoundary(text, start, end, window)
		}

		chunks = append(chunks, Chunk{
			Text:  text[start:end],
			Start: start,
			End:   end,
			Index: len(chunks),
		})

		if end == len(text) {
			break
		}

		next := end - overlap
		if next <= start {
			step := window - overlap
			if step < 1 {
				step = 1
			}
			next = start + step
		}
		start = next
	}
	return chunks
}

// pullBackBoundary moves a forced window break back to a natural break
// point. Prefers a paragraph break, then a ". " sentence break; either is
// used only if it lies past 50% of the window, to avoid pathologically
// small chunks.
func pullBackBoundary(text string, start, end, window int) int {
	slice := text[start:end]
	half := window / 2

	if idx := strings.LastIndex(slice, "\n\n"); idx > half {
		return start + idx
	}
	if idx := strings.LastIndex(slice, ". "); idx > half {
		return start + idx + 1 // keep the period inside the chunk
	}
	return end
}

// paragraphSpans returns the [start,end) offsets of each blank-line
// delimited paragraph, trimmed to non-whitespace boundaries.
func paragraphSpans(text string) [][2]int {
	var spans [][2]int
	var pStart, pEnd = -1, -1 // current paragraph bounds

	flush := func() {
		if pStart >= 0 {
			spans = append(spans, [2]int{pStart, pEnd})
			pStart, pEnd = -1, -1
		}
	}

	lineStart := 0
	for lineStart <= len(text) {
		lineEnd := strings.IndexByte(text[lineStart:], '\n')
		if lineEnd < 0 {
			lineEnd = len(text)
		} else {
			lineEnd += lineStart
		}

		line := text[lineStart:lineEnd]
		if strings.TrimSpace(line) == "" {
			flush()
		} else {
			// Offsets of the first and last non-whitespace byte in the line.
			first := lineStart + (len(line) - len(strings.TrimLeft(line, " \t\r")))
			last := lineStart + len(strings.TrimRight(line, " \t\r"))
			if pStart < 0 {
				pStart = first
			}
			pEnd = last
		}

		lineStart = lineEnd + 1
	}
	flush()
	return spans
}
