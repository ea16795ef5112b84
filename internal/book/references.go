package book

import (
	"path/filepath"

	"github.com/yuanying/epubedit/internal/anchor"
)

// UpdateReferences rewrites every reference in the text resources that
// resolves to a key of updates. Keys are absolute paths and values paths
// relative to a content sub folder, such as "../Text/a.xhtml". References of
// a resource resolve against dirs[r] when given, else against the folder
// the resource lives in. Every resource is visited; failures are returned
// together.
func (b *Book) UpdateReferences(dirs map[*Resource]string, updates map[string]string) error {
	targets := b.targets()
	for i, t := range targets {
		if dir, ok := dirs[t.Doc.(*Resource)]; ok {
			targets[i].Dir = dir
		}
	}
	return b.updater.PerformUniversalUpdates(targets, updates)
}

// targets returns the universal update targets among the resources of the
// given kinds, or all text resources when no kind is given.
func (b *Book) targets(kinds ...Kind) []anchor.Target {
	var targets []anchor.Target
	for _, r := range b.folder.Resources(kinds...) {
		var kind anchor.Kind
		switch r.Kind() {
		case KindHTML, KindSVG:
			kind = anchor.Markup
		case KindCSS:
			kind = anchor.Stylesheet
		case KindNCX:
			kind = anchor.Navigation
		default:
			continue
		}
		targets = append(targets, anchor.Target{Doc: r, Dir: filepath.Dir(r.FullPath()), Kind: kind})
	}
	return targets
}
