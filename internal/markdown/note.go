package markdown

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileNote is a Markdown note backed by a file on disk.
type FileNote struct {
	path string
	raw  []byte
	doc  Document
}

// OpenNote reads and parses the note at path.
func OpenNote(path string) (*FileNote, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve note path: %w", err)
	}
	raw, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read note: %w", err)
	}
	doc, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("read note %s: %w", path, err)
	}
	return &FileNote{path: abs, raw: raw, doc: doc}, nil
}

// Path returns the absolute file path.
func (n *FileNote) Path() string { return n.path }

// Dir returns the directory holding the note.
func (n *FileNote) Dir() string { return filepath.Dir(n.path) }

// Basename returns the file name without its extension.
func (n *FileNote) Basename() string {
	base := filepath.Base(n.path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Content returns the raw note text, front matter included.
func (n *FileNote) Content() string { return string(n.raw) }

// Frontmatter returns the front matter parsed when the note was opened.
func (n *FileNote) Frontmatter() map[string]any { return n.doc.Frontmatter }

// UpdateFrontmatter applies fn to the front matter on disk and persists the
// result atomically. The file is re-read first so edits made since OpenNote
// are kept.
func (n *FileNote) UpdateFrontmatter(fn func(fm map[string]any)) error {
	raw, err := os.ReadFile(n.path)
	if err != nil {
		return fmt.Errorf("read note: %w", err)
	}
	updated, err := UpdateFrontmatter(raw, fn)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(n.path, updated); err != nil {
		return err
	}
	doc, err := Parse(updated)
	if err != nil {
		return fmt.Errorf("reparse note: %w", err)
	}
	n.raw = updated
	n.doc = doc
	return nil
}

// writeFileAtomic writes content: tmp file → fsync → rename. The original
// file mode is kept.
func writeFileAtomic(path string, content []byte) error {
	mode := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".ghost-publish-tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Chmod(mode); err != nil {
		return fmt.Errorf("chmod temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	success = true
	return nil
}
