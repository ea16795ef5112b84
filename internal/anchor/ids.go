package anchor

import (
	"github.com/beevik/etree"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ReconcileIDs repairs links between documents that were produced from one
// common ancestor. Ids are assumed unique across the set, so a link to an id
// is pointed at whichever file of the set now holds that id. The fragment is
// kept; links to ids the set does not know are left alone.
func (u *Updater) ReconcileIDs(files []Document) error {
	locations, errs := u.idLocations(files)
	if len(locations) == 0 {
		return errs
	}

	inSet := make(map[string]bool, len(files))
	for _, f := range files {
		inSet[f.Filename()] = true
	}

	err := u.forEach(files, func(doc Document) error {
		current := doc.Filename()
		return rewriteTree(doc, func(tree *etree.Document) bool {
			return rewriteAttrs(tree.Root(), isLinkAttr, func(_ *etree.Element, value string) (string, bool) {
				ref, ok := parseReference(value)
				if !ok || !ref.hasFragment || ref.id == "" {
					return "", false
				}
				if ref.file != "" && !inSet[ref.file] {
					return "", false
				}
				target, ok := locations[ref.id]
				if !ok {
					return "", false
				}

				var updated string
				if target == current {
					updated = "#" + ref.fragment
				} else {
					ref.file = target
					updated = ref.String()
				}
				if updated != value {
					u.log.Debug("Fixed internal link",
						zap.String("file", current),
						zap.String("from", value),
						zap.String("to", updated))
				}
				return updated, true
			})
		})
	})
	return multierr.Append(errs, err)
}
