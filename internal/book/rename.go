package book

import (
	"path/filepath"
	"strings"
	"unicode"

	"github.com/gosimple/slug"
	"go.uber.org/zap"
)

// SanitizeFilename turns a requested name into a safe resource filename.
// Names made of letters, digits, '_', '-' and '.' are kept; anything else
// is slugged. The extension is kept in lower case.
func SanitizeFilename(name string) string {
	name = strings.TrimSpace(filepath.Base(filepath.ToSlash(name)))
	if name == "." || name == "/" {
		return ""
	}
	ext := strings.ToLower(filepath.Ext(name))
	base := strings.TrimSuffix(name, filepath.Ext(name))
	if !isSafeName(base) {
		base = slug.Make(base)
	}
	if base == "" {
		return ""
	}
	return base + ext
}

func isSafeName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' || r == '.') {
			return false
		}
	}
	return true
}

// RenameResource gives r a new filename and updates every reference to it
// in markup, stylesheets, the navigation document and the manifest. It
// reports false without changing anything when the name is empty, taken,
// of another kind, or r is the package or navigation document.
func (b *Book) RenameResource(r *Resource, newName string) (bool, error) {
	if r == nil || r == b.opf.Resource || r == b.ncx {
		return false, nil
	}
	newName = SanitizeFilename(newName)
	if newName == "" || newName == r.Filename() || KindOf(newName, "") != r.Kind() {
		return false, nil
	}

	oldName, oldPath := r.Filename(), r.FullPath()
	renamed, err := b.renameResource(r, newName)
	if err != nil || !renamed {
		return false, err
	}

	updates := map[string]string{oldPath: "../" + r.RelativePathToOEBPS()}
	b.warnOnError("update paths", b.updater.PerformUniversalUpdates(b.targets(), updates))
	b.log.Debug("Renamed resource", zap.String("from", oldName), zap.String("to", newName))
	b.SetModified(true)
	return true, nil
}

// renameResource renames r in the registry, on disk and in the manifest
// without touching references.
func (b *Book) renameResource(r *Resource, newName string) (bool, error) {
	oldHref := r.RelativePathToOEBPS()
	renamed, err := b.folder.rename(r, newName)
	if err != nil || !renamed {
		return false, err
	}
	if err := b.opf.RenameManifestItem(oldHref, r.RelativePathToOEBPS()); err != nil {
		return true, err
	}
	return true, nil
}
