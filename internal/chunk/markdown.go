// Package chunk splits memory Markdown files into retrievable units.
//
// Files are split on headings up to level 3. Each chunk carries the heading
// path it sits under ("Project > Decisions"), 1-based inclusive line numbers
// from the original file, and a normalized content hash so counters survive
// re-indexing. Oversized sections are split again at paragraph boundaries
// with code fences kept atomic.
package chunk

import (
	"regexp"
	"strings"
)

// MaxSectionTokens is the split threshold for a single section.
const MaxSectionTokens = 500

// Chunk is one retrievable unit of a memory file.
type Chunk struct {
	ID          string
	URI         string // path relative to the scope root
	Content     string
	ContentHash string
	Section     string // heading path joined with " > "
	Type        string // from frontmatter; indexer may infer from the URI
	Importance  int
	StartLine   int // 1-based, inclusive
	EndLine     int
	TokenCount  int
}

// Chunker splits Markdown content into chunks.
type Chunker struct {
	maxTokens int
	counter   *TokenCounter
}

// NewChunker returns a chunker with the default section size limit.
func NewChunker() *Chunker {
	return &Chunker{maxTokens: MaxSectionTokens, counter: DefaultCounter()}
}

var headingRe = regexp.MustCompile(`^(#{1,3})\s+(.+?)\s*$`)

// sessionPartRe maps journal session subsection headings to their kind.
var sessionPartRe = map[string]*regexp.Regexp{
	"request":   regexp.MustCompile(`(?i)^(请求|request)`),
	"learned":   regexp.MustCompile(`(?i)^(学到了什么|learned)`),
	"completed": regexp.MustCompile(`(?i)^(完成了什么|completed)`),
	"next":      regexp.MustCompile(`(?i)^(下一步|next)`),
}

// SessionPart classifies a journal session heading.
// Returns "" for headings that are not session subsections.
func SessionPart(heading string) string {
	for kind, re := range sessionPartRe {
		if re.MatchString(strings.TrimSpace(heading)) {
			return kind
		}
	}
	return ""
}

// section is an intermediate unit between heading split and chunk emission.
type section struct {
	path      []string // heading stack, outermost first
	lines     []string
	startLine int // 1-based in the original file
}

// Chunk splits content into chunks. uri is the path relative to the scope
// root and is baked into each chunk id. Frontmatter is excluded from chunk
// content but its type and importance attach to every chunk.
func (c *Chunker) Chunk(uri, content string) []*Chunk {
	meta, body, offset := ParseFrontmatter(content)

	sections := splitSections(body, offset)

	var chunks []*Chunk
	for _, sec := range sections {
		if sectionEmpty(sec) {
			continue
		}
		text := strings.TrimRight(strings.Join(sec.lines, "\n"), "\n")
		heading := strings.Join(sec.path, " > ")
		if c.counter.Count(text) <= c.maxTokens {
			chunks = append(chunks, c.emit(uri, meta, heading, sec.lines, sec.startLine))
			continue
		}
		for _, part := range splitParagraphs(sec.lines, sec.startLine, c.maxTokens, c.counter) {
			chunks = append(chunks, c.emit(uri, meta, heading, part.lines, part.startLine))
		}
	}
	return chunks
}

// emit builds a chunk from a run of lines, trimming trailing blanks so line
// ranges stay tight.
func (c *Chunker) emit(uri string, meta Meta, heading string, lines []string, startLine int) *Chunk {
	end := len(lines)
	for end > 0 && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	start := 0
	for start < end && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	text := strings.Join(lines[start:end], "\n")
	hash := ContentHash(text)
	sl := startLine + start
	el := startLine + end - 1

	return &Chunk{
		ID:          ID(uri, sl, el, hash),
		URI:         uri,
		Content:     text,
		ContentHash: hash,
		Section:     heading,
		Type:        meta.Type,
		Importance:  meta.Importance,
		StartLine:   sl,
		EndLine:     el,
		TokenCount:  c.counter.Count(text),
	}
}

// splitSections walks the body splitting on headings up to level 3.
// lineOffset is the number of lines the frontmatter occupied.
func splitSections(body string, lineOffset int) []section {
	lines := strings.Split(body, "\n")

	var sections []section
	stack := make([]string, 0, 3)
	current := section{startLine: lineOffset + 1}
	inFence := false

	flush := func() {
		if len(current.lines) > 0 {
			sections = append(sections, current)
		}
	}

	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
		}
		if m := headingRe.FindStringSubmatch(line); m != nil && !inFence {
			flush()
			level := len(m[1])
			if level <= len(stack) {
				stack = stack[:level-1]
			}
			stack = append(stack, m[2])
			current = section{
				path:      append([]string(nil), stack...),
				lines:     []string{line},
				startLine: lineOffset + i + 1,
			}
			continue
		}
		current.lines = append(current.lines, line)
	}
	flush()
	return sections
}

// sectionEmpty reports whether a section has no content below its heading.
// The heading alone is not a memory.
func sectionEmpty(sec section) bool {
	lines := sec.lines
	if len(lines) > 0 && headingRe.MatchString(lines[0]) {
		lines = lines[1:]
	}
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			return false
		}
	}
	return true
}

// paragraphRun is a run of lines treated as an atomic split unit.
type paragraphRun struct {
	lines     []string
	startLine int
}

// splitParagraphs splits an oversized section at blank lines, packing
// paragraphs greedily up to maxTokens. Fenced code blocks never split.
func splitParagraphs(lines []string, startLine, maxTokens int, counter *TokenCounter) []paragraphRun {
	paras := collectParagraphs(lines, startLine)

	var out []paragraphRun
	var cur paragraphRun
	curTokens := 0

	for _, p := range paras {
		t := counter.Count(strings.Join(p.lines, "\n"))
		if len(cur.lines) > 0 && curTokens+t > maxTokens {
			out = append(out, cur)
			cur = paragraphRun{}
			curTokens = 0
		}
		if len(cur.lines) == 0 {
			cur.startLine = p.startLine
		} else {
			// Restore the blank line swallowed between paragraphs.
			cur.lines = append(cur.lines, "")
		}
		cur.lines = append(cur.lines, p.lines...)
		curTokens += t
	}
	if len(cur.lines) > 0 {
		out = append(out, cur)
	}
	return out
}

// collectParagraphs groups lines into blank-line separated paragraphs,
// keeping fenced blocks whole.
func collectParagraphs(lines []string, startLine int) []paragraphRun {
	var paras []paragraphRun
	var cur paragraphRun
	inFence := false

	flush := func() {
		if len(cur.lines) > 0 {
			paras = append(paras, cur)
			cur = paragraphRun{}
		}
	}

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			if !inFence && len(cur.lines) > 0 {
				flush()
			}
			inFence = !inFence
			if cur.startLine == 0 {
				cur.startLine = startLine + i
			}
			cur.lines = append(cur.lines, line)
			if !inFence {
				flush()
			}
			continue
		}
		if inFence {
			cur.lines = append(cur.lines, line)
			continue
		}
		if trimmed == "" {
			flush()
			continue
		}
		if len(cur.lines) == 0 {
			cur.startLine = startLine + i
		}
		cur.lines = append(cur.lines, line)
	}
	flush()
	return paras
}
