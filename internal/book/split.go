package book

import (
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/yuanying/epubedit/internal/markup"
	"github.com/yuanying/epubedit/internal/xhtml"
)

// SplitAtBoundary splits content off originating into a chapter of its
// own. The new chapter takes over the original filename and the place of
// originating in the spine; originating, which keeps the rest, is renamed.
// Links elsewhere to the original filename thus keep landing on the first
// half unless the id they point at moved to the second half.
func (b *Book) SplitAtBoundary(content string, originating *Resource) (*Resource, error) {
	if originating == nil || originating.Kind() != KindHTML {
		return nil, nil
	}
	originalName := originating.Filename()
	spine := b.SpineResources()
	pos := indexOf(spine, originating)

	renamed, err := b.renameResource(originating, b.folder.UniqueFilename(FirstChapterName))
	if err != nil {
		return nil, err
	}
	if !renamed {
		return nil, fmt.Errorf("failed to rename %s", originalName)
	}

	created, err := b.materialize([]string{originalName}, []string{content}, true)
	if err != nil {
		if _, rerr := b.renameResource(originating, originalName); rerr != nil {
			b.log.Warn("Failed to restore name after failed split", zap.String("file", originalName), zap.Error(rerr))
		}
		return nil, err
	}
	r := created[0]

	if pos >= 0 {
		if err := b.updateSpine(insertAt(spine, pos, r)); err != nil {
			return r, err
		}
	}

	b.repairSplit([]*Resource{r, originating}, originalName)
	b.SetModified(true)
	return r, nil
}

// SplitAt splits r at the byte offset pos of its text: everything before
// pos becomes a chapter of its own placed before the remainder. It reports
// false without changing anything when pos lies inside a tag or after the
// body, or r has no body.
func (b *Book) SplitAt(r *Resource, pos int) (*Resource, bool, error) {
	if r == nil || r.Kind() != KindHTML {
		return nil, false, nil
	}
	head, rest, ok := markup.SplitAt(r.Text(), pos)
	if !ok {
		return nil, false, nil
	}
	previous := r.Text()
	r.SetText(rest)
	created, err := b.SplitAtBoundary(head, r)
	if err != nil {
		r.SetText(previous)
		return nil, false, err
	}
	return created, true, nil
}

// SplitIntoMultipleChapters adds a chapter for every chunk right after
// original in the spine, or at the end of the spine when original is not
// in it. Chunk i is named after original with suffix i+2 and always lands
// before chunk i+1, whichever is created first.
func (b *Book) SplitIntoMultipleChapters(chunks []string, original *Resource) ([]*Resource, error) {
	if len(chunks) == 0 || original == nil || original.Kind() != KindHTML {
		return nil, nil
	}
	spine := b.SpineResources()
	originalPos := indexOf(spine, original)
	next := originalPos + 1
	if originalPos < 0 {
		next = len(spine)
	}

	originalName := original.Filename()
	prefix := strings.TrimSuffix(originalName, filepath.Ext(originalName))
	names := make([]string, len(chunks))
	orders := make([]int, len(chunks))
	for i := range chunks {
		names[i] = fmt.Sprintf("%s_%04d.xhtml", prefix, i+2)
		orders[i] = next + i
	}

	created, err := b.materialize(names, chunks, true)
	if err != nil {
		return nil, err
	}

	for i, r := range created {
		spine = insertAt(spine, orders[i], r)
	}
	if err := b.updateSpine(spine); err != nil {
		return created, err
	}

	b.repairSplit(append([]*Resource{original}, created...), originalName)
	b.SetModified(true)
	return created, nil
}

// SplitOnMarkers splits r at every split marker of its body. r keeps the
// content before the first marker; every later piece becomes a chapter
// following r. It returns the chapters created.
func (b *Book) SplitOnMarkers(r *Resource) ([]*Resource, error) {
	if r == nil || r.Kind() != KindHTML {
		return nil, nil
	}
	previous := r.Text()
	chunks := markup.SplitAtMarkers(previous)
	if len(chunks) < 2 {
		return nil, nil
	}
	first, err := xhtml.Clean(chunks[0])
	if err != nil {
		return nil, fmt.Errorf("failed to clean %s: %w", r.Filename(), err)
	}
	r.SetText(first)

	created, err := b.SplitIntoMultipleChapters(chunks[1:], r)
	if err != nil {
		r.SetText(previous)
		return nil, err
	}
	return created, nil
}

// repairSplit fixes references after files were produced from the one file
// formerly named oldFilename. The first of newFiles is the fallback target
// of links whose id cannot be found.
func (b *Book) repairSplit(newFiles []*Resource, oldFilename string) {
	b.warnOnError("reconcile ids", b.updater.ReconcileIDs(documents(newFiles)))

	others := without(b.HTMLResources(), newFiles...)
	b.warnOnError("redirect links", b.updater.RedirectExternal(documents(others), oldFilename, documents(newFiles)))
	b.warnOnError("redirect toc", b.updater.RedirectTOC(b.ncx, oldFilename, documents(newFiles)))
}
