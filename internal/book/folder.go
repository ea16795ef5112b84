package book

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/maruel/natural"

	"github.com/yuanying/epubedit/internal/epub"
)

var numberedNameRe = regexp.MustCompile(`^(.*?)(\d*)$`)

// Folder is the registry of the resources of a book, keyed by filename.
// Files live under the content folder in one sub folder per kind.
type Folder struct {
	root       string
	contentDir string

	mu        sync.RWMutex
	resources map[string]*Resource
}

func newFolder(root string) (*Folder, error) {
	contentDir := filepath.Join(root, ContentDir)
	for _, dir := range []string{TextFolder, StyleFolder, ImageFolder, FontFolder, MiscFolder} {
		if err := os.MkdirAll(filepath.Join(contentDir, dir), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create book folder: %w", err)
		}
	}
	return &Folder{
		root:       root,
		contentDir: contentDir,
		resources:  make(map[string]*Resource),
	}, nil
}

// Root returns the directory holding the unpacked book.
func (f *Folder) Root() string { return f.root }

// ContentDir returns the content folder, the directory of the package
// document.
func (f *Folder) ContentDir() string { return f.contentDir }

// Resource returns the resource with the filename.
func (f *Folder) Resource(filename string) (*Resource, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	r, ok := f.resources[filename]
	return r, ok
}

// Resources returns the resources of the given kinds, or all resources when
// no kind is given, in natural filename order.
func (f *Folder) Resources(kinds ...Kind) []*Resource {
	f.mu.RLock()
	var list []*Resource
	for _, r := range f.resources {
		if len(kinds) == 0 || hasKind(kinds, r.Kind()) {
			list = append(list, r)
		}
	}
	f.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		return natural.Less(list[i].Filename(), list[j].Filename())
	})
	return list
}

func hasKind(kinds []Kind, k Kind) bool {
	for _, kind := range kinds {
		if kind == k {
			return true
		}
	}
	return false
}

// UniqueFilename returns name when no resource uses it yet. Otherwise the
// trailing number of the base name is replaced by the first free number
// starting at 1, zero padded to at least four digits.
func (f *Folder) UniqueFilename(name string) string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.uniqueFilenameLocked(name, nil)
}

// uniqueFilenames picks unique variants of names in order, as if each one
// were added before the next is picked.
func (f *Folder) uniqueFilenames(names []string) []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	picked := make(map[string]bool, len(names))
	unique := make([]string, len(names))
	for i, name := range names {
		unique[i] = f.uniqueFilenameLocked(name, picked)
		picked[unique[i]] = true
	}
	return unique
}

// uniqueFilenameLocked treats the names in also as taken too.
func (f *Folder) uniqueFilenameLocked(name string, also map[string]bool) string {
	taken := func(candidate string) bool {
		_, ok := f.resources[candidate]
		return ok || also[candidate]
	}
	if !taken(name) {
		return name
	}
	ext := filepath.Ext(name)
	m := numberedNameRe.FindStringSubmatch(strings.TrimSuffix(name, ext))
	prefix, width := m[1], max(len(m[2]), 4)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s%0*d%s", prefix, width, i, ext)
		if !taken(candidate) {
			return candidate
		}
	}
}

// AddContentFile copies the file at src into the folder of its kind and
// registers it under its base name, or a unique variant of it. Text is
// decoded to UTF-8 on the way in.
func (f *Folder) AddContentFile(src, mediaType string) (*Resource, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", src, err)
	}
	if mediaType == "" {
		mediaType = MediaTypeOf(src)
	}

	r := f.reserve(filepath.Base(src), mediaType)
	if r.Kind().IsText() {
		text, err := epub.DecodeText(data)
		if err != nil {
			f.unregister(r)
			return nil, fmt.Errorf("failed to decode %s: %w", src, err)
		}
		r.SetText(text)
		err = r.SaveToDisk()
		if err != nil {
			f.unregister(r)
			return nil, err
		}
		return r, nil
	}

	if err := copyFile(src, r.FullPath()); err != nil {
		f.unregister(r)
		return nil, err
	}
	return r, nil
}

// reserve registers a new resource under a unique variant of name.
func (f *Folder) reserve(name, mediaType string) *Resource {
	f.mu.Lock()
	defer f.mu.Unlock()
	name = f.uniqueFilenameLocked(name, nil)
	kind := KindOf(name, mediaType)
	r := newResource(f.contentDir, filepath.Join(f.contentDir, kind.folder(), name), mediaType)
	f.resources[name] = r
	return r
}

// register adds a resource for an existing file.
func (f *Folder) register(fullPath, mediaType, text string) *Resource {
	r := newResource(f.contentDir, fullPath, mediaType)
	r.text = text
	f.mu.Lock()
	f.resources[r.Filename()] = r
	f.mu.Unlock()
	return r
}

func (f *Folder) unregister(r *Resource) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resources[r.Filename()] == r {
		delete(f.resources, r.Filename())
	}
}

// rename gives r a new filename. It reports false without renaming when
// another resource already uses the name.
func (f *Folder) rename(r *Resource, filename string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, taken := f.resources[filename]; taken {
		return false, nil
	}
	old := r.Filename()
	if err := r.RenameTo(filename); err != nil {
		return false, err
	}
	delete(f.resources, old)
	f.resources[filename] = r
	return true, nil
}

// byRelativePath indexes the resources by their path relative to the
// content folder.
func (f *Folder) byRelativePath() map[string]*Resource {
	f.mu.RLock()
	defer f.mu.RUnlock()
	index := make(map[string]*Resource, len(f.resources))
	for _, r := range f.resources {
		index[r.RelativePathToOEBPS()] = r
	}
	return index
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return out.Close()
}
