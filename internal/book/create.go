package book

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/yuanying/epubedit/internal/xhtml"
)

// First names of new resources. Later ones count up from these.
const (
	FirstChapterName = "Section0001.xhtml"
	FirstCSSName     = "Style0001.css"
	FirstSVGName     = "Image0001.svg"
)

const placeholderText = "PLACEHOLDER"

// ErrUnsupportedKind is returned when a resource of the kind cannot be
// created from scratch.
var ErrUnsupportedKind = errors.New("cannot create resources of this kind")

// CreateContentFile creates a resource of the kind with a new unique name
// and placeholder content. HTML resources are appended to the spine.
func (b *Book) CreateContentFile(kind Kind) (*Resource, error) {
	var name, text string
	switch kind {
	case KindHTML:
		name, text = FirstChapterName, placeholderText
	case KindCSS:
		name = FirstCSSName
	case KindSVG:
		name = FirstSVGName
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedKind, kind)
	}

	created, err := b.materialize([]string{name}, []string{text}, false)
	if err != nil {
		return nil, err
	}
	r := created[0]
	if kind == KindHTML {
		if err := b.updateSpine(append(b.SpineResources(), r)); err != nil {
			return nil, err
		}
	}
	b.SetModified(true)
	return r, nil
}

// CreateEmptyHTMLFile creates a chapter holding an empty document. When
// after is in the spine, the chapter is placed right after it; otherwise it
// stays at the end of the spine.
func (b *Book) CreateEmptyHTMLFile(after *Resource) (*Resource, error) {
	r, err := b.CreateContentFile(KindHTML)
	if err != nil {
		return nil, err
	}
	r.SetText(xhtml.EmptyDocument)
	if after != nil {
		if err := b.InsertAfter(r, after); err != nil {
			return r, err
		}
	}
	return r, nil
}

// CreateEmptyCSSFile creates an empty stylesheet.
func (b *Book) CreateEmptyCSSFile() (*Resource, error) {
	return b.CreateContentFile(KindCSS)
}

// CreateEmptySVGFile creates an empty SVG image.
func (b *Book) CreateEmptySVGFile() (*Resource, error) {
	return b.CreateContentFile(KindSVG)
}

// InsertAfter places r right after anchor in the spine. Nothing changes
// when anchor is not in the spine.
func (b *Book) InsertAfter(r, anchor *Resource) error {
	if r == nil || anchor == nil || r == anchor {
		return nil
	}
	spine := without(b.SpineResources(), r)
	pos := indexOf(spine, anchor)
	if pos < 0 {
		return nil
	}
	if err := b.updateSpine(insertAt(spine, pos+1, r)); err != nil {
		return err
	}
	b.SetModified(true)
	return nil
}

// MoveAfter moves from to the slot right after to in the spine. Nothing
// changes when either is not in the spine.
func (b *Book) MoveAfter(from, to *Resource) error {
	if from == nil || to == nil || from == to {
		return nil
	}
	spine := b.SpineResources()
	if indexOf(spine, from) < 0 {
		return nil
	}
	spine = without(spine, from)
	pos := indexOf(spine, to)
	if pos < 0 {
		return nil
	}
	if err := b.updateSpine(insertAt(spine, pos+1, from)); err != nil {
		return err
	}
	b.SetModified(true)
	return nil
}

// PreviousResource returns the chapter before r in reading order, or the
// first chapter when r is first or not in the spine. It returns nil for an
// empty spine.
func (b *Book) PreviousResource(r *Resource) *Resource {
	spine := b.SpineResources()
	if len(spine) == 0 {
		return nil
	}
	return spine[max(indexOf(spine, r)-1, 0)]
}

// materialize writes each text to a temporary file named after names[i]
// and adds the files to the book. Taken names are replaced by unique
// variants picked in order before any file is written. Files are then
// written and added in parallel; created[i] belongs to names[i] whatever
// order they finish in. With clean
// set, each text is repaired into a well-formed document first. On failure
// nothing is added.
func (b *Book) materialize(names, texts []string, clean bool) ([]*Resource, error) {
	tmp, err := os.MkdirTemp("", "epubedit-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary folder: %w", err)
	}
	defer os.RemoveAll(tmp)

	names = b.folder.uniqueFilenames(names)
	created := make([]*Resource, len(names))
	var (
		mu   sync.Mutex
		errs error
		g    errgroup.Group
	)
	g.SetLimit(b.workers)
	for i := range names {
		i := i
		g.Go(func() error {
			r, err := b.materializeOne(tmp, names[i], texts[i], clean)
			if err != nil {
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
				return nil
			}
			created[i] = r
			return nil
		})
	}
	_ = g.Wait()

	if errs != nil {
		for _, r := range created {
			if r != nil {
				errs = multierr.Append(errs, b.DeleteResource(r))
			}
		}
		return nil, errs
	}
	return created, nil
}

func (b *Book) materializeOne(dir, name, text string, clean bool) (*Resource, error) {
	if clean {
		cleaned, err := xhtml.Clean(text)
		if err != nil {
			return nil, fmt.Errorf("failed to clean %s: %w", name, err)
		}
		text = cleaned
	}
	src := filepath.Join(dir, name)
	if err := os.WriteFile(src, []byte(text), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", name, err)
	}
	return b.addContentFile(src, MediaTypeOf(name))
}
