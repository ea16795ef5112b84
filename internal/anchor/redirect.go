package anchor

import (
	"github.com/beevik/etree"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// RedirectExternal points links in others that target oldFilename at the
// replacement holding the linked id. Ids are not assumed unique across
// unrelated files, so only the replacements are searched. A link whose id
// is in none of them, or that has no fragment, goes to the first replacement.
func (u *Updater) RedirectExternal(others []Document, oldFilename string, replacements []Document) error {
	if len(replacements) == 0 {
		return nil
	}
	locations, errs := u.idLocations(replacements)

	err := u.forEach(others, func(doc Document) error {
		return rewriteTree(doc, func(tree *etree.Document) bool {
			return rewriteAttrs(tree.Root(), isLinkAttr, func(_ *etree.Element, value string) (string, bool) {
				return u.redirect(doc.Filename(), value, oldFilename, replacements, locations)
			})
		})
	})
	return multierr.Append(errs, err)
}

// RedirectTOC applies the redirection of RedirectExternal to the entries of
// the navigation document.
func (u *Updater) RedirectTOC(ncx Document, oldFilename string, replacements []Document) error {
	if ncx == nil || len(replacements) == 0 {
		return nil
	}
	locations, errs := u.idLocations(replacements)

	err := rewriteTree(ncx, func(tree *etree.Document) bool {
		changed := false
		for _, content := range tree.FindElements("//content") {
			src := content.SelectAttr("src")
			if src == nil {
				continue
			}
			if v, ok := u.redirect(ncx.Filename(), src.Value, oldFilename, replacements, locations); ok && v != src.Value {
				src.Value = v
				changed = true
			}
		}
		return changed
	})
	return multierr.Append(errs, err)
}

func (u *Updater) redirect(file, value, oldFilename string, replacements []Document, locations map[string]string) (string, bool) {
	ref, ok := parseReference(value)
	if !ok || ref.file != oldFilename {
		return "", false
	}

	target, found := "", false
	if ref.id != "" {
		target, found = locations[ref.id]
	}
	if !found {
		target = replacements[0].Filename()
		if ref.id != "" {
			u.log.Warn("Anchor target not found, pointing at first replacement",
				zap.String("file", file),
				zap.String("href", value),
				zap.String("target", target))
		}
	}

	ref.file = target
	updated := ref.String()
	u.log.Debug("Redirected link",
		zap.String("file", file),
		zap.String("from", value),
		zap.String("to", updated))
	return updated, true
}
