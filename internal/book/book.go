// Package book is the in-memory model of an unpacked EPUB: the resource
// registry, reading order and the structural operations that keep ids,
// links and table of contents entries resolvable.
//
// Structural operations on one book must be serialized by the caller.
package book

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yuanying/epubedit/internal/anchor"
	"github.com/yuanying/epubedit/internal/epub"
	"github.com/yuanying/epubedit/internal/xhtml"
)

const containerXML = `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
    <rootfiles>
        <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
    </rootfiles>
</container>
`

// ErrNotABook is returned by Open for a directory without a package
// document at the expected location.
var ErrNotABook = errors.New("directory does not hold an unpacked book")

// Options configures a book.
type Options struct {
	// Workers bounds the number of resources processed at once. 0 means
	// one per CPU.
	Workers int
	Log     *zap.Logger
}

// Book owns the resources of one unpacked EPUB.
type Book struct {
	folder  *Folder
	opf     *OPF
	ncx     *Resource
	updater *anchor.Updater
	log     *zap.Logger
	workers int

	stateMu     sync.Mutex
	modified    bool
	subscribers map[int]func(modified bool)
	nextSubID   int
}

func newBook(folder *Folder, opts Options) *Book {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Book{
		folder:      folder,
		updater:     anchor.New(log, workers),
		log:         log.Named("book"),
		workers:     workers,
		subscribers: make(map[int]func(bool)),
	}
}

// New creates an empty book in root with a fresh identifier.
func New(root, title string, opts Options) (*Book, error) {
	folder, err := newFolder(root)
	if err != nil {
		return nil, err
	}
	if err := writeContainer(root); err != nil {
		return nil, err
	}

	identifier := "urn:uuid:" + uuid.NewString()
	pkg, err := epub.NewPackageDocument(identifier, title)
	if err != nil {
		return nil, err
	}
	opfText, err := pkg.String()
	if err != nil {
		return nil, err
	}
	ncxText, err := epub.EmptyNCX(identifier, title, "")
	if err != nil {
		return nil, fmt.Errorf("failed to create navigation document: %w", err)
	}

	b := newBook(folder, opts)
	b.opf = &OPF{folder.register(filepath.Join(folder.ContentDir(), OPFFileName), epub.MediaTypeOPF, opfText)}
	b.ncx = folder.register(filepath.Join(folder.ContentDir(), NCXFileName), epub.MediaTypeNCX, ncxText)
	return b, nil
}

// Open loads a book previously laid out by New or an import. Manifest items
// whose files are missing are skipped with a warning.
func Open(root string, opts Options) (*Book, error) {
	contentDir := filepath.Join(root, ContentDir)
	opfPath := filepath.Join(contentDir, OPFFileName)
	if _, err := os.Stat(opfPath); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotABook, root)
	}
	pkg, opfText, err := epub.ReadPackage(opfPath)
	if err != nil {
		return nil, err
	}

	folder, err := newFolder(root)
	if err != nil {
		return nil, err
	}
	b := newBook(folder, opts)
	b.opf = &OPF{folder.register(opfPath, epub.MediaTypeOPF, opfText)}

	for _, id := range pkg.ManifestOrder {
		item := pkg.Manifest[id]
		if _, err := os.Stat(item.Href); err != nil {
			b.log.Warn("Manifest item missing from book folder", zap.String("id", id), zap.String("path", item.Href))
			continue
		}
		text := ""
		if KindOf(item.Href, item.MediaType).IsText() {
			data, err := os.ReadFile(item.Href)
			if err != nil {
				return nil, fmt.Errorf("failed to read %s: %w", item.Href, err)
			}
			if text, err = epub.DecodeText(data); err != nil {
				return nil, fmt.Errorf("failed to decode %s: %w", item.Href, err)
			}
		}
		folder.register(item.Href, item.MediaType, text)
	}

	ncxPath := filepath.Join(contentDir, NCXFileName)
	ncxText := ""
	if data, err := os.ReadFile(ncxPath); err == nil {
		ncxText, err = epub.DecodeText(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", ncxPath, err)
		}
	} else {
		b.log.Warn("Navigation document missing, creating an empty one", zap.String("path", ncxPath))
		if ncxText, err = epub.EmptyNCX(pkg.UniqueIdentifier, pkg.Metadata.Title, ""); err != nil {
			return nil, err
		}
	}
	b.ncx = folder.register(ncxPath, epub.MediaTypeNCX, ncxText)
	return b, nil
}

func writeContainer(root string) error {
	if err := os.MkdirAll(filepath.Join(root, "META-INF"), 0o755); err != nil {
		return fmt.Errorf("failed to create META-INF: %w", err)
	}
	if err := os.WriteFile(filepath.Join(root, MimetypeFile), []byte(epub.MimetypeEPUB), 0o644); err != nil {
		return fmt.Errorf("failed to write mimetype: %w", err)
	}
	if err := os.WriteFile(filepath.Join(root, filepath.FromSlash(epub.ContainerPath)), []byte(containerXML), 0o644); err != nil {
		return fmt.Errorf("failed to write container: %w", err)
	}
	return nil
}

// Folder returns the resource registry.
func (b *Book) Folder() *Folder { return b.folder }

// OPF returns the package document resource.
func (b *Book) OPF() *OPF { return b.opf }

// NCX returns the navigation document resource.
func (b *Book) NCX() *Resource { return b.ncx }

// Resource returns the resource with the filename.
func (b *Book) Resource(filename string) (*Resource, bool) {
	return b.folder.Resource(filename)
}

// HTMLResources returns every HTML resource in natural filename order,
// whether it is in the spine or not.
func (b *Book) HTMLResources() []*Resource {
	return b.folder.Resources(KindHTML)
}

// SpineResources returns the HTML resources in reading order.
func (b *Book) SpineResources() []*Resource {
	hrefs, err := b.opf.SpineHrefs()
	if err != nil {
		b.log.Warn("Failed to read spine", zap.Error(err))
		return nil
	}
	index := b.folder.byRelativePath()
	spine := make([]*Resource, 0, len(hrefs))
	for _, href := range hrefs {
		if r, ok := index[href]; ok && r.Kind() == KindHTML {
			spine = append(spine, r)
		}
	}
	return spine
}

// ReadingOrder returns the 0-based spine position of r, or -1 when r is not
// in the spine.
func (b *Book) ReadingOrder(r *Resource) int {
	return indexOf(b.SpineResources(), r)
}

func indexOf(list []*Resource, r *Resource) int {
	for i, item := range list {
		if item == r {
			return i
		}
	}
	return -1
}

func without(list []*Resource, drop ...*Resource) []*Resource {
	out := make([]*Resource, 0, len(list))
	for _, r := range list {
		if indexOf(drop, r) < 0 {
			out = append(out, r)
		}
	}
	return out
}

func insertAt(list []*Resource, i int, r *Resource) []*Resource {
	if i > len(list) {
		i = len(list)
	}
	list = append(list, nil)
	copy(list[i+1:], list[i:])
	list[i] = r
	return list
}

func documents(list []*Resource) []anchor.Document {
	docs := make([]anchor.Document, len(list))
	for i, r := range list {
		docs[i] = r
	}
	return docs
}

// Identifier returns the unique identifier of the book. A book without one
// gets a new uuid identifier.
func (b *Book) Identifier() string {
	if id := b.opf.Identifier(); id != "" {
		return id
	}
	id := "urn:uuid:" + uuid.NewString()
	b.log.Warn("Book has no identifier, generated a new one", zap.String("identifier", id))
	if err := b.opf.SetIdentifier(id); err != nil {
		b.log.Warn("Failed to store identifier", zap.Error(err))
	}
	return id
}

// IsModified reports whether the book changed since it was last marked
// unmodified.
func (b *Book) IsModified() bool {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	return b.modified
}

// SetModified sets the modified flag. Subscribers are called synchronously
// when the flag changes.
func (b *Book) SetModified(modified bool) {
	b.stateMu.Lock()
	if b.modified == modified {
		b.stateMu.Unlock()
		return
	}
	b.modified = modified
	subs := make([]func(bool), 0, len(b.subscribers))
	for _, fn := range b.subscribers {
		subs = append(subs, fn)
	}
	b.stateMu.Unlock()

	for _, fn := range subs {
		fn(modified)
	}
}

// Subscribe registers fn for changes of the modified flag. The returned
// function removes the subscription.
func (b *Book) Subscribe(fn func(modified bool)) (unsubscribe func()) {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	id := b.nextSubID
	b.nextSubID++
	b.subscribers[id] = fn
	return func() {
		b.stateMu.Lock()
		delete(b.subscribers, id)
		b.stateMu.Unlock()
	}
}

// IsWellFormed reports whether the text of r parses as XML.
func (b *Book) IsWellFormed(r *Resource) bool {
	return r != nil && xhtml.IsWellFormed(r.Text())
}

// AreWellFormed reports whether every resource is well-formed.
func (b *Book) AreWellFormed(resources []*Resource) bool {
	for _, r := range resources {
		if !b.IsWellFormed(r) {
			return false
		}
	}
	return true
}

// SaveAll writes every resource to disk. All resources are attempted; the
// failures are returned together.
func (b *Book) SaveAll() error {
	resources := b.folder.Resources()

	var (
		mu   sync.Mutex
		errs error
		g    errgroup.Group
	)
	g.SetLimit(b.workers)
	for _, r := range resources {
		r := r
		g.Go(func() error {
			if err := r.SaveToDisk(); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

// DeleteResource removes r from the book, the manifest, the spine and the
// disk.
func (b *Book) DeleteResource(r *Resource) error {
	if r == nil || r == b.opf.Resource || r == b.ncx {
		return nil
	}
	href := r.RelativePathToOEBPS()
	b.folder.unregister(r)
	err := multierr.Append(b.opf.RemoveManifestItem(href), r.remove())
	b.SetModified(true)
	return err
}

// addContentFile registers the file and declares it in the manifest.
func (b *Book) addContentFile(src, mediaType string) (*Resource, error) {
	r, err := b.folder.AddContentFile(src, mediaType)
	if err != nil {
		return nil, err
	}
	if err := b.opf.AddManifestItem(r); err != nil {
		b.folder.unregister(r)
		return nil, multierr.Append(err, r.remove())
	}
	return r, nil
}

// updateSpine writes the reading order back to the package document.
func (b *Book) updateSpine(spine []*Resource) error {
	if err := b.opf.UpdateSpineOrder(spine); err != nil {
		return fmt.Errorf("failed to update reading order: %w", err)
	}
	return nil
}

// warnOnError logs the failures of a reference repair. Documents that do
// not parse keep their references.
func (b *Book) warnOnError(step string, err error) {
	for _, e := range multierr.Errors(err) {
		b.log.Warn("Reference repair skipped a document", zap.String("step", step), zap.Error(e))
	}
}

// TOC parses the navigation document.
func (b *Book) TOC() (*epub.NCX, error) {
	return epub.ParseNCX(b.ncx.Text())
}
