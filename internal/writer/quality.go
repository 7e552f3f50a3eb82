package writer

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Minimum content lengths. CJK packs more meaning per rune, so its floor is
// lower.
const (
	minRunesCJK   = 10
	minRunesASCII = 20
)

var (
	fillerRe = regexp.MustCompile(`^(我来|让我|我先|I'?ll\b|I will\b|Let me\b|好的|OK\b|Okay\b|Sure\b|Alright\b|Got it\b|嗯|哦)`)

	speculativeRe = regexp.MustCompile(`(?i)^(也许|可能|大概|或许|应该是|maybe|perhaps|probably|might be|not sure|i think|i guess)`)

	codeLineRe = []*regexp.Regexp{
		regexp.MustCompile(`^[\w./~-]+/[\w./~-]+$`),                 // bare path
		regexp.MustCompile(`^[/\\][\w/\\.-]+$`),                     // rooted or backslash path
		regexp.MustCompile(`^\S+\.(go|py|js|ts|rs|java|c|h|md|json|yaml|toml|txt)$`), // bare filename
		regexp.MustCompile(`^(import|from|require|include|package|using)\b`),
		regexp.MustCompile(`^[\[{(<]`), // starts mid-structure
	}
)

// CheckQuality decides whether content is worth remembering.
// Returns ok=false with a reason suitable for the "Rejected:" reply.
func CheckQuality(content string) (bool, string) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return false, "content is empty"
	}

	minLen := minRunesASCII
	if containsCJK(trimmed) {
		minLen = minRunesCJK
	}
	if utf8.RuneCountInString(trimmed) < minLen {
		return false, "content too short to be a useful memory"
	}

	if fillerRe.MatchString(trimmed) {
		return false, "content looks like conversational filler"
	}
	if speculativeRe.MatchString(trimmed) {
		return false, "content is speculative, not an established fact"
	}

	firstLine := trimmed
	if i := strings.IndexByte(trimmed, '\n'); i >= 0 {
		firstLine = trimmed[:i]
	}
	for _, re := range codeLineRe {
		if re.MatchString(firstLine) {
			return false, "content looks like code or a file path"
		}
	}
	return true, ""
}

func containsCJK(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}
