package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// ContentHash returns the first 16 hex characters of the SHA-256 of the
// content normalized to lowercase with whitespace collapsed. Cosmetic edits
// therefore keep the same hash, which preserves reinforcement and access
// counters across re-indexing.
func ContentHash(content string) string {
	normalized := whitespaceRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(content)), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])[:16]
}

// ID derives a stable chunk identifier from its source location and content.
func ID(uri string, startLine, endLine int, contentHash string) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s:%d:%d:%s", uri, startLine, endLine, contentHash))
	return hex.EncodeToString(sum[:])[:16]
}
