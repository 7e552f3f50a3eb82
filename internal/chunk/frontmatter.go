package chunk

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Meta is the YAML frontmatter carried by memory files.
type Meta struct {
	Type          string `yaml:"type,omitempty"`
	Importance    int    `yaml:"importance,omitempty"`
	Reinforcement int    `yaml:"reinforcement"`
	Created       string `yaml:"created,omitempty"`
	Updated       string `yaml:"updated,omitempty"`
	Status        string `yaml:"status,omitempty"`
	Sessions      int    `yaml:"sessions,omitempty"`
}

var frontmatterRe = regexp.MustCompile(`(?s)^---\n(.*?)\n---\n?`)

// ParseFrontmatter splits a file into frontmatter metadata and body.
// Returns the parsed meta, the body without the frontmatter block, and the
// number of lines the block occupied (0 when absent). Malformed YAML is
// treated as no frontmatter.
func ParseFrontmatter(content string) (Meta, string, int) {
	var meta Meta
	m := frontmatterRe.FindStringSubmatch(content)
	if m == nil {
		return meta, content, 0
	}
	if err := yaml.Unmarshal([]byte(m[1]), &meta); err != nil {
		return Meta{}, content, 0
	}
	block := m[0]
	body := content[len(block):]
	return meta, body, strings.Count(block, "\n")
}

// RenderFrontmatter serializes meta back into a frontmatter block.
func RenderFrontmatter(meta Meta) (string, error) {
	out, err := yaml.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("failed to marshal frontmatter: %w", err)
	}
	return "---\n" + string(out) + "---\n", nil
}
