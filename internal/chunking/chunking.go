// Package chunking splits document text into overlapping, size-bounded
// chunks.
//
// Chunks carry rune offsets into the source text and a contiguous sequence
// index starting at 0. Splitting prefers semantic boundaries (paragraph, then
// sentence, then whitespace) before falling back to a hard character cut, so
// words are not truncated when avoidable. Consecutive chunks share exactly
// OverlapChars runes of context.
package chunking

import (
	"fmt"
	"unicode"

	"github.com/fyrsmithlabs/recalld/internal/faults"
)

// Chunk is a contiguous slice of a document's text.
type Chunk struct {
	// Sequence is the 0-based position of the chunk within its document.
	Sequence int

	// Text is the chunk content, including the leading overlap region.
	Text string

	// Start and End are rune offsets into the source text (End exclusive).
	Start int
	End   int
}

// Config bounds chunk size and overlap.
type Config struct {
	// MaxChars is the maximum chunk length in runes. Default: 1000
	MaxChars int

	// OverlapChars is the number of runes repeated between consecutive
	// chunks. Must be smaller than MaxChars. Default: 100
	OverlapChars int
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.MaxChars == 0 {
		c.MaxChars = 1000
	}
	if c.OverlapChars == 0 && c.MaxChars > 100 {
		c.OverlapChars = 100
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.MaxChars <= 0 {
		return faults.New(faults.KindInvalidArgument, "chunking.validate",
			"max_chars must be positive, got %d", c.MaxChars)
	}
	if c.OverlapChars < 0 {
		return faults.New(faults.KindInvalidArgument, "chunking.validate",
			"overlap_chars must not be negative, got %d", c.OverlapChars)
	}
	if c.OverlapChars >= c.MaxChars {
		return faults.New(faults.KindInvalidArgument, "chunking.validate",
			"overlap_chars (%d) must be smaller than max_chars (%d)", c.OverlapChars, c.MaxChars)
	}
	return nil
}

// Split divides text into ordered chunks per cfg.
//
// Guarantees: chunks cover the source text in order, sequence indexes are
// contiguous from 0, and every chunk after the first starts exactly
// cfg.OverlapChars runes before the previous chunk's end. Empty input yields
// zero chunks without error; input shorter than MaxChars yields exactly one.
func Split(text string, cfg Config) ([]Chunk, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil, nil
	}
	if n <= cfg.MaxChars {
		return []Chunk{{Sequence: 0, Text: text, Start: 0, End: n}}, nil
	}

	var chunks []Chunk
	start := 0
	for seq := 0; ; seq++ {
		end := start + cfg.MaxChars
		if end >= n {
			end = n
		} else {
			end = cutPoint(runes, start, end, cfg.OverlapChars)
		}

		chunks = append(chunks, Chunk{
			Sequence: seq,
			Text:     string(runes[start:end]),
			Start:    start,
			End:      end,
		})
		if end == n {
			break
		}
		start = end - cfg.OverlapChars
	}
	return chunks, nil
}

// Reassemble reconstructs the original text from a complete, ordered chunk
// set produced by Split with the given overlap.
func Reassemble(chunks []Chunk, overlapChars int) (string, error) {
	if len(chunks) == 0 {
		return "", nil
	}
	out := []rune(chunks[0].Text)
	for i := 1; i < len(chunks); i++ {
		prev, cur := chunks[i-1], chunks[i]
		skip := prev.End - cur.Start
		if skip < 0 || skip > overlapChars {
			return "", faults.New(faults.KindInternal, "chunking.reassemble",
				"chunk %d overlaps chunk %d by %d runes, expected 0..%d", cur.Sequence, prev.Sequence, skip, overlapChars)
		}
		text := []rune(cur.Text)
		if skip > len(text) {
			return "", faults.New(faults.KindInternal, "chunking.reassemble",
				"chunk %d shorter than its overlap", cur.Sequence)
		}
		out = append(out, text[skip:]...)
	}
	return string(out), nil
}

// cutPoint picks the best cut position in (start+overlap, end]. The lower
// bound is exclusive so the next chunk always starts after the current one.
func cutPoint(runes []rune, start, end, overlap int) int {
	lo := start + overlap + 1
	if lo > end {
		return end
	}
	if c := lastParagraphCut(runes, lo, end); c > 0 {
		return c
	}
	if c := lastSentenceCut(runes, lo, end); c > 0 {
		return c
	}
	if c := lastWhitespaceCut(runes, lo, end); c > 0 {
		return c
	}
	return end
}

// lastParagraphCut finds the latest cut after a blank line, or 0.
func lastParagraphCut(runes []rune, lo, end int) int {
	for i := end - 2; i >= lo-2 && i >= 0; i-- {
		if runes[i] == '\n' && runes[i+1] == '\n' {
			if c := i + 2; c >= lo && c <= end {
				return c
			}
		}
	}
	return 0
}

// lastSentenceCut finds the latest cut after sentence-ending punctuation
// followed by whitespace, or 0.
func lastSentenceCut(runes []rune, lo, end int) int {
	for i := end - 2; i >= lo-2 && i >= 0; i-- {
		if isSentenceEnd(runes[i]) && unicode.IsSpace(runes[i+1]) {
			if c := i + 2; c >= lo && c <= end {
				return c
			}
		}
	}
	return 0
}

// lastWhitespaceCut finds the latest cut after any whitespace rune, or 0.
func lastWhitespaceCut(runes []rune, lo, end int) int {
	for i := end - 1; i >= lo-1 && i >= 0; i-- {
		if unicode.IsSpace(runes[i]) {
			if c := i + 1; c >= lo && c <= end {
				return c
			}
		}
	}
	return 0
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?':
		return true
	default:
		return false
	}
}

// String implements fmt.Stringer for debug logging.
func (c Chunk) String() string {
	return fmt.Sprintf("chunk[%d] %d..%d (%d runes)", c.Sequence, c.Start, c.End, c.End-c.Start)
}
