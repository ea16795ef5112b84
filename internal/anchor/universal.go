package anchor

import (
	"path/filepath"
	"strings"

	"github.com/beevik/etree"
	"go.uber.org/zap"

	"github.com/yuanying/epubedit/internal/css"
)

// Kind selects how a target's references are found.
type Kind int

const (
	// Markup documents reference resources by href, src and xlink:href
	// attributes and by url() in style elements.
	Markup Kind = iota
	// Stylesheet documents reference resources by url() and @import.
	Stylesheet
	// Navigation documents reference content by navPoint content@src.
	Navigation
)

// Target is a document taking part in a universal update. Dir is the
// directory its relative references resolve against.
type Target struct {
	Doc  Document
	Dir  string
	Kind Kind
}

// PerformUniversalUpdates rewrites every reference that resolves to a key of
// updates into the mapped value. Keys are absolute paths; values are paths
// relative to a content folder such as "../Text/a.xhtml". Navigation
// documents sit one level higher, so the leading "../" is dropped for them.
// Fragments are kept. Every target is visited even when some fail.
func (u *Updater) PerformUniversalUpdates(targets []Target, updates map[string]string) error {
	if len(updates) == 0 {
		return nil
	}

	byDoc := make(map[Document]Target, len(targets))
	docs := make([]Document, 0, len(targets))
	for _, t := range targets {
		byDoc[t.Doc] = t
		docs = append(docs, t.Doc)
	}

	return u.forEach(docs, func(doc Document) error {
		t := byDoc[doc]
		resolve := u.resolver(t, updates)

		switch t.Kind {
		case Stylesheet:
			doc.Rewrite(func(text string) (string, bool) {
				out := css.RewriteReferences(text, resolve)
				return out, out != text
			})
			return nil
		case Navigation:
			return rewriteTree(doc, func(tree *etree.Document) bool {
				changed := false
				for _, content := range tree.FindElements("//content") {
					src := content.SelectAttr("src")
					if src == nil {
						continue
					}
					v, ok := resolve(src.Value)
					if v = strings.TrimPrefix(v, "../"); ok && v != src.Value {
						src.Value = v
						changed = true
					}
				}
				return changed
			})
		default:
			return rewriteTree(doc, func(tree *etree.Document) bool {
				changed := rewriteAttrs(tree.Root(), isResourceAttr, func(_ *etree.Element, value string) (string, bool) {
					return resolve(value)
				})
				for _, style := range tree.FindElements("//style") {
					text := style.Text()
					out := css.RewriteReferences(text, resolve)
					if out != text {
						style.SetText(out)
						changed = true
					}
				}
				return changed
			})
		}
	})
}

// resolver returns a function mapping a raw reference of t to its updated
// form.
func (u *Updater) resolver(t Target, updates map[string]string) func(string) (string, bool) {
	return func(raw string) (string, bool) {
		ref, ok := parseReference(raw)
		if !ok || ref.file == "" {
			return "", false
		}
		abs := filepath.Clean(filepath.Join(t.Dir, filepath.FromSlash(ref.path())))
		replacement, ok := updates[abs]
		if !ok {
			return "", false
		}

		updated := escapePath(replacement)
		if ref.hasFragment {
			updated += "#" + ref.fragment
		}
		if updated != raw {
			u.log.Debug("Updated reference",
				zap.String("file", t.Doc.Filename()),
				zap.String("from", raw),
				zap.String("to", updated))
		}
		return updated, true
	}
}
