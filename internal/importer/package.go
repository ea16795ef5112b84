package importer

import (
	"net/url"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/yuanying/epubedit/internal/book"
	"github.com/yuanying/epubedit/internal/epub"
)

// loadNCX finds and reads the navigation document of pkg. The spine toc
// reference is preferred, then a manifest item with the .ncx extension.
// Without either, or when the file cannot be read, an empty navigation
// document pointing at the first chapter is made. It returns the manifest
// id of the navigation document, empty for a new one, its text and the
// directory its references resolve against.
func (im *Importer) loadNCX(b *book.Book, pkg *epub.Package, byID map[string]*book.Resource, identifier string) (id, text, dir string, err error) {
	path, ok := pkg.NCXPath()
	if !ok {
		if path, ok = pkg.GuessNCXPath(); ok {
			im.log.Warn("Spine does not name the navigation document, using a guess", zap.String("path", path))
		}
	}
	if ok {
		text, rerr := readText(path)
		if rerr == nil {
			return ncxItemID(pkg, path), text, filepath.Dir(path), nil
		}
		im.log.Warn("Navigation document cannot be read", zap.String("path", path), zap.Error(rerr))
	}

	im.log.Warn("Navigation document missing, creating an empty one")
	firstSrc := ""
	for _, ref := range pkg.Spine {
		if r, ok := byID[ref.IDRef]; ok && r.Kind() == book.KindHTML {
			firstSrc = (&url.URL{Path: r.RelativePathToOEBPS()}).EscapedPath()
			break
		}
	}
	text, err = epub.EmptyNCX(identifier, pkg.Metadata.Title, firstSrc)
	if err != nil {
		return "", "", "", err
	}
	return "", text, b.Folder().ContentDir(), nil
}

func ncxItemID(pkg *epub.Package, path string) string {
	if href, ok := pkg.NCXCandidates[pkg.TocID]; ok && href == path {
		return pkg.TocID
	}
	best := ""
	for id, href := range pkg.NCXCandidates {
		if href == path && (best == "" || id < best) {
			best = id
		}
	}
	return best
}

func readText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return epub.DecodeText(data)
}

// rewritePackage points the manifest of the package document text at the
// new layout. Items that were not loaded are dropped along with their spine
// entries; the navigation document becomes toc.ncx.
func rewritePackage(text string, byID map[string]*book.Resource, ncxID, identifier string) (string, error) {
	p, err := epub.LoadPackageDocument(text)
	if err != nil {
		return "", err
	}

	for _, item := range p.Items() {
		if ncxID != "" && item.ID == ncxID {
			p.SetItemHref(item.ID, book.NCXFileName)
			p.SetItemMediaType(item.ID, epub.MediaTypeNCX)
			continue
		}
		r, ok := byID[item.ID]
		if !ok {
			p.RemoveItem(item.ID)
			continue
		}
		p.SetItemHref(item.ID, r.RelativePathToOEBPS())
		if item.MediaType == "" {
			p.SetItemMediaType(item.ID, r.MediaType())
		}
	}

	if ncxID == "" {
		ncxID = p.UniqueItemID("ncx")
		p.AddItem(ncxID, book.NCXFileName, epub.MediaTypeNCX)
	}
	p.SetSpineToc(ncxID)

	if p.UniqueIdentifier() != identifier {
		p.SetUniqueIdentifier(identifier)
	}
	return p.String()
}
