package book

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Resource is a named content unit of a book. The filename is its identity
// within the book. Text content is guarded by its own lock; identity and
// location by another, so a resource can be named while its text is being
// rewritten.
type Resource struct {
	kind       Kind
	mediaType  string
	contentDir string

	idMu     sync.RWMutex
	filename string
	fullPath string

	mu   sync.RWMutex
	text string
}

func newResource(contentDir, fullPath, mediaType string) *Resource {
	filename := filepath.Base(fullPath)
	return &Resource{
		kind:       KindOf(filename, mediaType),
		mediaType:  mediaType,
		contentDir: contentDir,
		filename:   filename,
		fullPath:   fullPath,
	}
}

// Filename returns the base name of the resource.
func (r *Resource) Filename() string {
	r.idMu.RLock()
	defer r.idMu.RUnlock()
	return r.filename
}

// FullPath returns the location of the resource on disk.
func (r *Resource) FullPath() string {
	r.idMu.RLock()
	defer r.idMu.RUnlock()
	return r.fullPath
}

// RelativePathToOEBPS returns the slash separated path of the resource
// relative to the content folder, e.g. "Text/Section0001.xhtml".
func (r *Resource) RelativePathToOEBPS() string {
	rel, err := filepath.Rel(r.contentDir, r.FullPath())
	if err != nil {
		return r.Filename()
	}
	return filepath.ToSlash(rel)
}

// Kind returns the kind of content the resource holds.
func (r *Resource) Kind() Kind { return r.kind }

// MediaType returns the media type declared for the resource.
func (r *Resource) MediaType() string { return r.mediaType }

// Text returns the current text of a text resource.
func (r *Resource) Text() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.text
}

// SetText replaces the text of the resource.
func (r *Resource) SetText(text string) {
	r.mu.Lock()
	r.text = text
	r.mu.Unlock()
}

// Rewrite replaces the text with the result of fn while holding the
// resource exclusively. The text is kept when fn reports no change.
func (r *Resource) Rewrite(fn func(text string) (string, bool)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if text, changed := fn(r.text); changed {
		r.text = text
	}
}

// RenameTo gives the resource a new base name, moving its file on disk when
// it has been saved already.
func (r *Resource) RenameTo(filename string) error {
	r.idMu.Lock()
	defer r.idMu.Unlock()

	newPath := filepath.Join(filepath.Dir(r.fullPath), filename)
	if err := os.Rename(r.fullPath, newPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to rename %s to %s: %w", r.filename, filename, err)
	}
	r.filename = filename
	r.fullPath = newPath
	return nil
}

// SaveToDisk writes the text of a text resource to its location. Other
// resources live on disk already and are left alone.
func (r *Resource) SaveToDisk() error {
	if !r.kind.IsText() {
		return nil
	}
	path := r.FullPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", r.Filename(), err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := os.WriteFile(path, []byte(r.text), 0o644); err != nil {
		return fmt.Errorf("failed to save %s: %w", r.Filename(), err)
	}
	return nil
}

// remove deletes the file of the resource from disk.
func (r *Resource) remove() error {
	if err := os.Remove(r.FullPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", r.Filename(), err)
	}
	return nil
}
