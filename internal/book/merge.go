package book

import (
	"github.com/beevik/etree"
	"go.uber.org/zap"

	"github.com/yuanying/epubedit/internal/xhtml"
)

// Merge appends the body of secondary to the body of primary and removes
// secondary from the book. Links to secondary are pointed at primary. It
// reports false without changing anything when both are the same resource,
// either is not well-formed or either does not have exactly one body.
// Ids of the two documents are expected not to collide.
func (b *Book) Merge(primary, secondary *Resource) bool {
	if primary == nil || secondary == nil || primary == secondary {
		return false
	}
	if primary.Kind() != KindHTML || secondary.Kind() != KindHTML {
		return false
	}

	source, err := xhtml.Parse(secondary.Text())
	if err != nil {
		return false
	}
	sourceBody, ok := xhtml.Body(source)
	if !ok {
		return false
	}
	appended := false
	primary.Rewrite(func(text string) (string, bool) {
		var out string
		out, appended = appendBody(text, sourceBody)
		return out, appended
	})
	if !appended {
		return false
	}

	secondaryName := secondary.Filename()
	secondaryPath := secondary.FullPath()
	if err := b.DeleteResource(secondary); err != nil {
		b.log.Warn("Failed to delete merged file", zap.String("file", secondaryName), zap.Error(err))
	}

	merged := []*Resource{primary}
	b.warnOnError("reconcile ids", b.updater.ReconcileIDs(documents(merged)))
	others := without(b.HTMLResources(), primary)
	b.warnOnError("redirect links", b.updater.RedirectExternal(documents(others), secondaryName, documents(merged)))
	b.warnOnError("redirect toc", b.updater.RedirectTOC(b.ncx, secondaryName, documents(merged)))

	updates := map[string]string{secondaryPath: "../" + primary.RelativePathToOEBPS()}
	b.warnOnError("update paths", b.updater.PerformUniversalUpdates(b.targets(KindHTML), updates))

	b.SetModified(true)
	return true
}

// appendBody appends the children of sourceBody to the body of text.
func appendBody(text string, sourceBody *etree.Element) (string, bool) {
	sink, err := xhtml.Parse(text)
	if err != nil {
		return text, false
	}
	body, ok := xhtml.Body(sink)
	if !ok {
		return text, false
	}
	xhtml.ImportFragment(body, xhtml.ExtractFragment(sourceBody))
	out, err := xhtml.Serialize(sink)
	if err != nil {
		return text, false
	}
	return out, true
}
