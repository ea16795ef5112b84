package book

import (
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/beevik/etree"
	"github.com/disintegration/imaging"
	"github.com/maruel/natural"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yuanying/epubedit/internal/css"
	"github.com/yuanying/epubedit/internal/xhtml"
)

// perHTMLFile runs fn for every HTML resource on the worker pool and keys
// the results by filename.
func (b *Book) perHTMLFile(fn func(r *Resource) []string) map[string][]string {
	resources := b.HTMLResources()
	results := make([][]string, len(resources))

	var g errgroup.Group
	g.SetLimit(b.workers)
	for i, r := range resources {
		i, r := i, r
		g.Go(func() error {
			results[i] = fn(r)
			return nil
		})
	}
	_ = g.Wait()

	byFile := make(map[string][]string, len(resources))
	for i, r := range resources {
		byFile[r.Filename()] = results[i]
	}
	return byFile
}

// root parses r and returns its root element.
func (b *Book) root(r *Resource) (*etree.Element, bool) {
	tree, err := xhtml.Parse(r.Text())
	if err != nil {
		b.log.Debug("Skipping document that is not well-formed", zap.String("file", r.Filename()), zap.Error(err))
		return nil, false
	}
	return tree.Root(), true
}

// IDsByFile returns the ids used by each HTML file. Files that are not
// well-formed have none.
func (b *Book) IDsByFile() map[string][]string {
	return b.perHTMLFile(func(r *Resource) []string {
		if root, ok := b.root(r); ok {
			return xhtml.IDs(root)
		}
		return nil
	})
}

// ClassesByFile returns the class names used by each HTML file.
func (b *Book) ClassesByFile() map[string][]string {
	return b.perHTMLFile(func(r *Resource) []string {
		if root, ok := b.root(r); ok {
			return xhtml.Classes(root)
		}
		return nil
	})
}

// FilesByClass returns, for each class name, the HTML files using it.
func (b *Book) FilesByClass() map[string][]string {
	return invert(b.ClassesByFile(), func(class string) string { return class })
}

// ImagesByFile returns the image paths referenced by each HTML file.
func (b *Book) ImagesByFile() map[string][]string {
	return b.perHTMLFile(func(r *Resource) []string {
		return xhtml.ImagePaths(r.Text())
	})
}

// FilesByImage returns, for each referenced image filename, the HTML files
// referencing it.
func (b *Book) FilesByImage() map[string][]string {
	return invert(b.ImagesByFile(), path.Base)
}

// StylesheetsByFile returns the stylesheet paths linked by each HTML file.
func (b *Book) StylesheetsByFile() map[string][]string {
	return b.perHTMLFile(func(r *Resource) []string {
		return xhtml.LinkedStylesheets(r.Text())
	})
}

// MissingStylesheetTargets returns, for each stylesheet, the url() and
// @import targets that name no file of the book. Remote and data URLs are
// not checked.
func (b *Book) MissingStylesheetTargets() map[string][]string {
	index := b.folder.byRelativePath()
	missing := make(map[string][]string)
	for _, r := range b.folder.Resources(KindCSS) {
		dir := path.Dir(r.RelativePathToOEBPS())
		for _, ref := range css.References(r.Text()) {
			target, _, _ := strings.Cut(ref.Path, "#")
			target, _, _ = strings.Cut(target, "?")
			if target == "" || strings.Contains(target, ":") {
				continue
			}
			if decoded, err := url.PathUnescape(target); err == nil {
				target = decoded
			}
			if _, ok := index[path.Join(dir, target)]; !ok {
				missing[r.Filename()] = append(missing[r.Filename()], ref.Path)
			}
		}
	}
	return missing
}

// Words returns the distinct words of all HTML files in natural order.
func (b *Book) Words() []string {
	seen := make(map[string]bool)
	for _, words := range b.perHTMLFile(func(r *Resource) []string { return xhtml.Words(r.Text()) }) {
		for _, w := range words {
			seen[w] = true
		}
	}
	words := make([]string, 0, len(seen))
	for w := range seen {
		words = append(words, w)
	}
	sort.Sort(natural.StringSlice(words))
	return words
}

// ImageDimensions returns the pixel size of an image resource.
func (b *Book) ImageDimensions(r *Resource) (width, height int, err error) {
	if r == nil || r.Kind() != KindImage {
		return 0, 0, fmt.Errorf("%w: not an image", ErrUnsupportedKind)
	}
	img, err := imaging.Open(r.FullPath())
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open image %s: %w", r.Filename(), err)
	}
	bounds := img.Bounds()
	return bounds.Dx(), bounds.Dy(), nil
}

// SortedKeys returns the keys of m in natural order.
func SortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Sort(natural.StringSlice(keys))
	return keys
}

// invert turns a file to values mapping into a key(value) to files mapping.
// Files are listed once per key, in natural order.
func invert(byFile map[string][]string, key func(string) string) map[string][]string {
	inverted := make(map[string][]string)
	seen := make(map[[2]string]bool)
	for _, file := range SortedKeys(byFile) {
		for _, v := range byFile[file] {
			k := key(v)
			if seen[[2]string{k, file}] {
				continue
			}
			seen[[2]string{k, file}] = true
			inverted[k] = append(inverted[k], file)
		}
	}
	return inverted
}
