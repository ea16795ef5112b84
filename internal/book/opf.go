package book

import (
	"github.com/yuanying/epubedit/internal/epub"
)

// OPF is the package document resource. It is the authority on the
// manifest and on reading order. Every change parses the current text and
// writes the whole document back while holding the resource exclusively, so
// the spine is always replaced as a whole.
type OPF struct {
	*Resource
}

func (o *OPF) read() (*epub.PackageDocument, error) {
	return epub.LoadPackageDocument(o.Text())
}

func (o *OPF) edit(fn func(p *epub.PackageDocument) bool) error {
	var err error
	o.Rewrite(func(text string) (string, bool) {
		p, perr := epub.LoadPackageDocument(text)
		if perr != nil {
			err = perr
			return text, false
		}
		if !fn(p) {
			return text, false
		}
		out, serr := p.String()
		if serr != nil {
			err = serr
			return text, false
		}
		return out, true
	})
	return err
}

// SpineHrefs returns the manifest hrefs of the spine items in reading order.
// Items missing from the manifest are skipped.
func (o *OPF) SpineHrefs() ([]string, error) {
	p, err := o.read()
	if err != nil {
		return nil, err
	}
	hrefs := make(map[string]string)
	for _, item := range p.Items() {
		hrefs[item.ID] = item.Href
	}
	var spine []string
	for _, id := range p.SpineIDRefs() {
		if href, ok := hrefs[id]; ok {
			spine = append(spine, href)
		}
	}
	return spine, nil
}

// UpdateSpineOrder replaces the spine with the resources in order. A
// resource without a manifest item gets one.
func (o *OPF) UpdateSpineOrder(resources []*Resource) error {
	return o.edit(func(p *epub.PackageDocument) bool {
		ids := make(map[string]string)
		for _, item := range p.Items() {
			ids[item.Href] = item.ID
		}
		idrefs := make([]string, 0, len(resources))
		for _, r := range resources {
			href := r.RelativePathToOEBPS()
			id, ok := ids[href]
			if !ok {
				id = p.UniqueItemID(r.Filename())
				p.AddItem(id, href, r.MediaType())
				ids[href] = id
			}
			idrefs = append(idrefs, id)
		}
		p.SetSpine(idrefs)
		return true
	})
}

// AddManifestItem declares the resource in the manifest.
func (o *OPF) AddManifestItem(r *Resource) error {
	return o.edit(func(p *epub.PackageDocument) bool {
		href := r.RelativePathToOEBPS()
		if _, ok := p.ItemByHref(href); ok {
			return false
		}
		p.AddItem(p.UniqueItemID(r.Filename()), href, r.MediaType())
		return true
	})
}

// RemoveManifestItem removes the item with the href and its spine entry.
func (o *OPF) RemoveManifestItem(href string) error {
	return o.edit(func(p *epub.PackageDocument) bool {
		item, ok := p.ItemByHref(href)
		if !ok {
			return false
		}
		p.RemoveItem(item.ID)
		return true
	})
}

// RenameManifestItem points the item with oldHref at newHref.
func (o *OPF) RenameManifestItem(oldHref, newHref string) error {
	return o.edit(func(p *epub.PackageDocument) bool {
		item, ok := p.ItemByHref(oldHref)
		if !ok {
			return false
		}
		return p.SetItemHref(item.ID, newHref)
	})
}

// Identifier returns the unique identifier of the book.
func (o *OPF) Identifier() string {
	p, err := o.read()
	if err != nil {
		return ""
	}
	return p.UniqueIdentifier()
}

// SetIdentifier changes the unique identifier of the book.
func (o *OPF) SetIdentifier(value string) error {
	return o.edit(func(p *epub.PackageDocument) bool {
		p.SetUniqueIdentifier(value)
		return true
	})
}

// Title returns the title of the book.
func (o *OPF) Title() string {
	p, err := o.read()
	if err != nil {
		return ""
	}
	return p.Title()
}
