// Package anchor keeps hyperlinks, ids and table of contents entries
// resolvable when book content is split, merged or renamed.
package anchor

import (
	"fmt"
	"net/url"
	"runtime"
	"strings"
	"sync"

	"github.com/beevik/etree"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yuanying/epubedit/internal/xhtml"
)

// Document is a piece of book content whose references can be repaired.
type Document interface {
	// Filename returns the decoded base name of the document.
	Filename() string
	// Text returns the current text.
	Text() string
	// Rewrite replaces the text with the result of fn while holding the
	// document exclusively. The text is kept when fn reports no change.
	Rewrite(fn func(text string) (string, bool))
}

// Updater repairs references across documents.
type Updater struct {
	log     *zap.Logger
	workers int
}

// New returns an Updater running at most workers documents at a time.
// workers <= 0 means one per CPU.
func New(log *zap.Logger, workers int) *Updater {
	if log == nil {
		log = zap.NewNop()
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Updater{log: log.Named("anchor"), workers: workers}
}

// forEach runs fn for every document on the bounded pool and combines the
// returned errors. A failure never stops the other documents.
func (u *Updater) forEach(docs []Document, fn func(Document) error) error {
	var (
		mu   sync.Mutex
		errs error
		g    errgroup.Group
	)
	g.SetLimit(u.workers)
	for _, doc := range docs {
		doc := doc
		g.Go(func() error {
			if err := fn(doc); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", doc.Filename(), err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

// rewriteTree parses the document text, applies edit and serializes the tree
// again when edit reports a change.
func rewriteTree(doc Document, edit func(*etree.Document) bool) error {
	var rerr error
	doc.Rewrite(func(text string) (string, bool) {
		tree, err := xhtml.Parse(text)
		if err != nil {
			rerr = err
			return text, false
		}
		if !edit(tree) {
			return text, false
		}
		out, err := xhtml.Serialize(tree)
		if err != nil {
			rerr = err
			return text, false
		}
		return out, true
	})
	return rerr
}

// reference is an in-book reference split into its parts. dir and fragment
// keep their raw form; file and id are percent-decoded.
type reference struct {
	dir         string
	file        string
	fragment    string
	id          string
	hasFragment bool
}

// parseReference splits raw into a reference. ok is false for empty values
// and for values with a URL scheme.
func parseReference(raw string) (reference, bool) {
	if raw == "" || hasScheme(raw) {
		return reference{}, false
	}
	var r reference
	p, fragment, hasFragment := strings.Cut(raw, "#")
	r.fragment, r.id, r.hasFragment = fragment, fragment, hasFragment
	if decoded, err := url.PathUnescape(fragment); err == nil {
		r.id = decoded
	}

	r.file = p
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		r.dir, r.file = p[:i+1], p[i+1:]
	}
	if decoded, err := url.PathUnescape(r.file); err == nil {
		r.file = decoded
	}
	return r, true
}

// path returns the percent-decoded path of the reference.
func (r reference) path() string {
	dir := r.dir
	if decoded, err := url.PathUnescape(dir); err == nil {
		dir = decoded
	}
	return dir + r.file
}

func (r reference) String() string {
	s := r.dir + escapePath(r.file)
	if r.hasFragment {
		s += "#" + r.fragment
	}
	return s
}

func hasScheme(raw string) bool {
	i := strings.IndexByte(raw, ':')
	return i > 0 && !strings.ContainsAny(raw[:i], "/#?")
}

func escapePath(p string) string {
	return (&url.URL{Path: p}).EscapedPath()
}

// isLinkAttr reports whether the attribute holds a hyperlink.
func isLinkAttr(a *etree.Attr) bool {
	return a.Key == "href"
}

// isResourceAttr reports whether the attribute references another resource.
func isResourceAttr(a *etree.Attr) bool {
	return a.Key == "href" || a.Key == "src"
}

// rewriteAttrs calls fn for every attribute under root accepted by match and
// stores the returned value. It reports whether anything changed.
func rewriteAttrs(root *etree.Element, match func(*etree.Attr) bool, fn func(el *etree.Element, value string) (string, bool)) bool {
	changed := false
	xhtml.Walk(root, func(el *etree.Element) {
		for i := range el.Attr {
			a := &el.Attr[i]
			if !match(a) {
				continue
			}
			if v, ok := fn(el, a.Value); ok && v != a.Value {
				a.Value = v
				changed = true
			}
		}
	})
	return changed
}

// idLocations maps every id found in docs to the first document holding it.
func (u *Updater) idLocations(docs []Document) (map[string]string, error) {
	type result struct {
		ids []string
		err error
	}
	results := make([]result, len(docs))

	var g errgroup.Group
	g.SetLimit(u.workers)
	for i, doc := range docs {
		i, doc := i, doc
		g.Go(func() error {
			tree, err := xhtml.Parse(doc.Text())
			if err != nil {
				results[i].err = fmt.Errorf("%s: %w", doc.Filename(), err)
				return nil
			}
			results[i].ids = xhtml.IDs(tree.Root())
			return nil
		})
	}
	_ = g.Wait()

	locations := make(map[string]string)
	var errs error
	for i, r := range results {
		errs = multierr.Append(errs, r.err)
		for _, id := range r.ids {
			if _, ok := locations[id]; !ok {
				locations[id] = docs[i].Filename()
			}
		}
	}
	return locations, errs
}
