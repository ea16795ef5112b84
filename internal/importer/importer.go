// Package importer assembles a book from an EPUB archive or from the file
// tree of an extracted one.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/google/uuid"
	"github.com/h2non/filetype"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yuanying/epubedit/internal/book"
	"github.com/yuanying/epubedit/internal/epub"
)

// errNotLoaded marks a manifest item whose file could not be loaded. Such
// items are left out of the book.
var errNotLoaded = errors.New("file not loaded")

// Options configures an Importer.
type Options struct {
	Workers int
	Log     *zap.Logger
}

// Importer turns EPUB files into books laid out by the book package.
type Importer struct {
	workers int
	log     *zap.Logger
	bookLog *zap.Logger
}

// New creates an Importer.
func New(opts Options) *Importer {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Importer{workers: workers, log: log.Named("import"), bookLog: log}
}

// ImportEPUB extracts the archive at archivePath and imports it into
// bookRoot.
func (im *Importer) ImportEPUB(ctx context.Context, archivePath, bookRoot string) (*book.Book, error) {
	tmp, err := os.MkdirTemp("", "epubedit-import-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary folder: %w", err)
	}
	defer os.RemoveAll(tmp)

	if err := epub.Extract(ctx, archivePath, tmp, im.bookLog); err != nil {
		return nil, err
	}
	return im.Import(ctx, tmp, bookRoot)
}

// loaded is the outcome of loading one manifest item.
type loaded struct {
	resource *book.Resource
	src      string
	err      error
}

// Import builds a book in bookRoot from the extracted EPUB in dir. Files
// listed in the manifest are copied into the book layout and every
// reference to them is updated. Files that cannot be loaded are skipped
// with a warning. Container and package faults abort the import.
func (im *Importer) Import(ctx context.Context, dir, bookRoot string) (*book.Book, error) {
	opfPath, err := epub.LocateOPF(dir)
	if err != nil {
		return nil, err
	}
	pkg, opfText, err := epub.ReadPackage(opfPath)
	if err != nil {
		return nil, err
	}
	im.log.Debug("Read package document",
		zap.String("path", opfPath),
		zap.String("version", pkg.Version),
		zap.Int("items", len(pkg.ManifestOrder)))

	b, err := book.New(bookRoot, pkg.Metadata.Title, book.Options{Workers: im.workers, Log: im.bookLog})
	if err != nil {
		return nil, err
	}

	results, err := im.loadFiles(ctx, b, pkg)
	if err != nil {
		return nil, err
	}

	dirs := make(map[*book.Resource]string)
	updates := make(map[string]string)
	byID := make(map[string]*book.Resource)
	for i, id := range pkg.ManifestOrder {
		res := results[i]
		if res.err != nil {
			im.log.Warn("Manifest item skipped", zap.String("id", id), zap.String("path", res.src), zap.Error(res.err))
			continue
		}
		byID[id] = res.resource
		dirs[res.resource] = filepath.Dir(res.src)
		updates[filepath.Clean(res.src)] = "../" + res.resource.RelativePathToOEBPS()
	}

	identifier := pkg.UniqueIdentifier
	if identifier == "" {
		identifier = "urn:uuid:" + uuid.NewString()
		im.log.Warn("Book has no identifier, generated a new one", zap.String("identifier", identifier))
	}

	ncxID, ncxText, ncxDir, err := im.loadNCX(b, pkg, byID, identifier)
	if err != nil {
		return nil, err
	}
	b.NCX().SetText(ncxText)
	dirs[b.NCX()] = ncxDir

	text, err := rewritePackage(opfText, byID, ncxID, identifier)
	if err != nil {
		return nil, err
	}
	b.OPF().SetText(text)

	for _, e := range multierr.Errors(b.UpdateReferences(dirs, updates)) {
		im.log.Warn("Reference update skipped a document", zap.Error(e))
	}

	if cover := pkg.DetectCover(); cover != nil {
		im.log.Debug("Detected cover image", zap.String("id", cover.ManifestID), zap.String("method", cover.DetectionMethod))
	}

	if err := b.SaveAll(); err != nil {
		return nil, fmt.Errorf("failed to save imported book: %w", err)
	}
	b.SetModified(false)
	im.log.Info("Imported book", zap.String("title", pkg.Metadata.Title), zap.Int("files", len(byID)))
	return b, nil
}

// loadFiles copies every manifest item into the book in parallel. The
// result for ManifestOrder[i] is at index i.
func (im *Importer) loadFiles(ctx context.Context, b *book.Book, pkg *epub.Package) ([]loaded, error) {
	results := make([]loaded, len(pkg.ManifestOrder))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(im.workers)
	for i, id := range pkg.ManifestOrder {
		i := i
		item := pkg.Manifest[id]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = loadFile(b, item)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func loadFile(b *book.Book, item epub.ManifestItem) loaded {
	res := loaded{src: item.Href}
	if _, err := os.Stat(item.Href); err != nil {
		res.err = fmt.Errorf("%w: %v", errNotLoaded, err)
		return res
	}
	mediaType := item.MediaType
	if mediaType == "" {
		mediaType = sniffMediaType(item.Href)
	}
	r, err := b.Folder().AddContentFile(item.Href, mediaType)
	if err != nil {
		res.err = fmt.Errorf("%w: %v", errNotLoaded, err)
		return res
	}
	res.resource = r
	return res
}

// sniffMediaType guesses the media type of a file declared without one,
// by extension first and by content for unknown extensions.
func sniffMediaType(path string) string {
	if mt := book.MediaTypeOf(path); mt != "application/octet-stream" {
		return mt
	}
	f, err := os.Open(path)
	if err != nil {
		return "application/octet-stream"
	}
	defer f.Close()

	head := make([]byte, 261)
	n, _ := io.ReadFull(f, head)
	kind, err := filetype.Match(head[:n])
	if err != nil || kind == filetype.Unknown {
		return "application/octet-stream"
	}
	return kind.MIME.Value
}
