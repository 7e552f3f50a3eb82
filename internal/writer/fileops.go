package writer

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/openclaw/openclaw-memory/internal/chunk"
	memerr "github.com/openclaw/openclaw-memory/internal/errors"
)

// writeAtomic writes data via a temp file and rename so watchers and
// concurrent readers never observe a half-written memory file.
func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return memerr.StorageError("failed to create directory", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return memerr.StorageError("failed to write temp file", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return memerr.StorageError("failed to replace file", err)
	}
	return nil
}

// ensureFile creates the memory file with frontmatter when absent.
func ensureFile(path string, meta chunk.Meta) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	fm, err := chunk.RenderFrontmatter(meta)
	if err != nil {
		return memerr.StorageError("failed to render frontmatter", err)
	}
	return writeAtomic(path, []byte(fm))
}

// appendBullet appends "- content" to the file and bumps its updated date.
func appendBullet(path, content, today string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return memerr.StorageError("failed to read memory file", err)
	}
	meta, body, _ := chunk.ParseFrontmatter(string(data))
	meta.Updated = today

	if body != "" && !strings.HasSuffix(body, "\n") {
		body += "\n"
	}
	body += "- " + content + "\n"
	return writeMetaBody(path, meta, body)
}

// replaceBullet swaps the first bullet whose text appears in oldContent for
// the new content. Returns false when no bullet matched.
func replaceBullet(path, oldContent, newContent, today string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, memerr.StorageError("failed to read memory file", err)
	}
	meta, body, _ := chunk.ParseFrontmatter(string(data))

	lines := strings.Split(body, "\n")
	replaced := false
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "- ") {
			continue
		}
		if strings.Contains(oldContent, strings.TrimPrefix(trimmed, "- ")) {
			lines[i] = "- " + newContent
			replaced = true
			break
		}
	}
	if !replaced {
		return false, nil
	}

	meta.Updated = today
	return true, writeMetaBody(path, meta, strings.Join(lines, "\n"))
}

// bumpReinforcement increments the file-level reinforcement counter.
func bumpReinforcement(path, today string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return memerr.StorageError("failed to read memory file", err)
	}
	meta, body, _ := chunk.ParseFrontmatter(string(data))
	meta.Reinforcement++
	meta.Updated = today
	return writeMetaBody(path, meta, body)
}

func writeMetaBody(path string, meta chunk.Meta, body string) error {
	fm, err := chunk.RenderFrontmatter(meta)
	if err != nil {
		return memerr.StorageError("failed to render frontmatter", err)
	}
	return writeAtomic(path, []byte(fm+body))
}
