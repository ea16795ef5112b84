package epub

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/beevik/etree"
)

const newPackageTemplate = `<?xml version="1.0" encoding="utf-8" standalone="yes"?>
<package xmlns="http://www.idpf.org/2007/opf" unique-identifier="BookId" version="2.0">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:opf="http://www.idpf.org/2007/opf">
    <dc:identifier id="BookId" opf:scheme="UUID"></dc:identifier>
    <dc:title></dc:title>
    <dc:language>en</dc:language>
  </metadata>
  <manifest>
    <item id="ncx" href="toc.ncx" media-type="application/x-dtbncx+xml"/>
  </manifest>
  <spine toc="ncx">
  </spine>
</package>`

// PackageDocument is an editable package document. Manifest hrefs are
// relative to the package document and handled decoded; they are
// percent-encoded when written.
type PackageDocument struct {
	doc *etree.Document
}

// NewPackageDocument returns the package document of an empty book.
func NewPackageDocument(identifier, title string) (*PackageDocument, error) {
	p, err := LoadPackageDocument(newPackageTemplate)
	if err != nil {
		return nil, err
	}
	p.SetUniqueIdentifier(identifier)
	if el := p.doc.FindElement("//metadata/title"); el != nil {
		el.SetText(title)
	}
	return p, nil
}

// LoadPackageDocument parses package document text for editing.
func LoadPackageDocument(text string) (*PackageDocument, error) {
	doc, err := parseXML("", PrepareForReading(text), ErrParsingOPF)
	if err != nil {
		return nil, err
	}
	if doc.FindElement("//manifest") == nil {
		return nil, &XMLError{Message: "package has no manifest", Err: ErrParsingOPF}
	}
	return &PackageDocument{doc: doc}, nil
}

// String serializes the package document.
func (p *PackageDocument) String() (string, error) {
	p.doc.Indent(2)
	text, err := p.doc.WriteToString()
	if err != nil {
		return "", fmt.Errorf("failed to serialize package document: %w", err)
	}
	return text, nil
}

func (p *PackageDocument) manifest() *etree.Element {
	return p.doc.FindElement("//manifest")
}

func (p *PackageDocument) spine() *etree.Element {
	spine := p.doc.FindElement("//spine")
	if spine == nil {
		spine = p.doc.Root().CreateElement("spine")
	}
	return spine
}

// Items returns the manifest items in document order.
func (p *PackageDocument) Items() []ManifestItem {
	var items []ManifestItem
	for _, el := range p.manifest().SelectElements("item") {
		items = append(items, itemFromElement(el))
	}
	return items
}

func itemFromElement(el *etree.Element) ManifestItem {
	item := ManifestItem{
		ID:        el.SelectAttrValue("id", ""),
		Href:      decodeHref(el.SelectAttrValue("href", "")),
		MediaType: el.SelectAttrValue("media-type", ""),
	}
	if props := el.SelectAttrValue("properties", ""); props != "" {
		item.Properties = strings.Fields(props)
	}
	return item
}

func (p *PackageDocument) itemElement(id string) *etree.Element {
	for _, el := range p.manifest().SelectElements("item") {
		if el.SelectAttrValue("id", "") == id {
			return el
		}
	}
	return nil
}

// ItemByHref returns the manifest item with the decoded href.
func (p *PackageDocument) ItemByHref(href string) (ManifestItem, bool) {
	for _, item := range p.Items() {
		if item.Href == href {
			return item, true
		}
	}
	return ManifestItem{}, false
}

// UniqueItemID returns base, or base with a numeric suffix, that no
// manifest item uses yet. Characters not allowed in an XML id are replaced.
func (p *PackageDocument) UniqueItemID(base string) string {
	base = xmlID(base)
	used := make(map[string]bool)
	for _, item := range p.Items() {
		used[item.ID] = true
	}
	if !used[base] {
		return base
	}
	for i := 1; ; i++ {
		id := base + "_" + strconv.Itoa(i)
		if !used[id] {
			return id
		}
	}
}

// AddItem appends an item to the manifest.
func (p *PackageDocument) AddItem(id, href, mediaType string) {
	el := p.manifest().CreateElement("item")
	el.CreateAttr("id", id)
	el.CreateAttr("href", encodeHref(href))
	el.CreateAttr("media-type", mediaType)
}

// SetItemHref changes the href of the item with the given id.
func (p *PackageDocument) SetItemHref(id, href string) bool {
	el := p.itemElement(id)
	if el == nil {
		return false
	}
	el.CreateAttr("href", encodeHref(href))
	return true
}

// SetItemMediaType changes the media type of the item with the given id.
func (p *PackageDocument) SetItemMediaType(id, mediaType string) bool {
	el := p.itemElement(id)
	if el == nil {
		return false
	}
	el.CreateAttr("media-type", mediaType)
	return true
}

// RemoveItem removes the item and every spine reference to it.
func (p *PackageDocument) RemoveItem(id string) {
	if el := p.itemElement(id); el != nil {
		p.manifest().RemoveChild(el)
	}
	spine := p.spine()
	for _, ref := range spine.SelectElements("itemref") {
		if ref.SelectAttrValue("idref", "") == id {
			spine.RemoveChild(ref)
		}
	}
}

// SpineIDRefs returns the idrefs of the spine in reading order.
func (p *PackageDocument) SpineIDRefs() []string {
	var refs []string
	for _, ref := range p.spine().SelectElements("itemref") {
		refs = append(refs, ref.SelectAttrValue("idref", ""))
	}
	return refs
}

// SetSpine replaces the whole spine with idrefs. Attributes of itemrefs
// that stay in the spine, such as linear, are kept.
func (p *PackageDocument) SetSpine(idrefs []string) {
	spine := p.spine()
	existing := make(map[string]*etree.Element)
	for _, ref := range spine.SelectElements("itemref") {
		if _, ok := existing[ref.SelectAttrValue("idref", "")]; !ok {
			existing[ref.SelectAttrValue("idref", "")] = ref
		}
		spine.RemoveChild(ref)
	}

	for _, id := range idrefs {
		ref, ok := existing[id]
		if !ok {
			ref = etree.NewElement("itemref")
			ref.CreateAttr("idref", id)
		}
		delete(existing, id)
		spine.AddChild(ref)
	}
}

// SetSpineToc points the spine toc attribute at the item id.
func (p *PackageDocument) SetSpineToc(id string) {
	p.spine().CreateAttr("toc", id)
}

func (p *PackageDocument) uniqueIdentifierElement() *etree.Element {
	root := p.doc.Root()
	if root == nil {
		return nil
	}
	uid := root.SelectAttrValue("unique-identifier", "")
	for _, el := range p.doc.FindElements("//metadata/identifier") {
		if uid != "" && el.SelectAttrValue("id", "") == uid {
			return el
		}
	}
	return nil
}

// UniqueIdentifier returns the value of the identifier named by the
// package unique-identifier attribute.
func (p *PackageDocument) UniqueIdentifier() string {
	if el := p.uniqueIdentifierElement(); el != nil {
		return strings.TrimSpace(el.Text())
	}
	return ""
}

// SetUniqueIdentifier sets the value of the unique identifier, creating the
// identifier element when the package lacks one.
func (p *PackageDocument) SetUniqueIdentifier(value string) {
	el := p.uniqueIdentifierElement()
	if el == nil {
		metadata := p.doc.FindElement("//metadata")
		if metadata == nil {
			metadata = p.doc.Root().CreateElement("metadata")
		}
		el = metadata.CreateElement("dc:identifier")
		id := p.doc.Root().SelectAttrValue("unique-identifier", "")
		if id == "" {
			id = "BookId"
			p.doc.Root().CreateAttr("unique-identifier", id)
		}
		el.CreateAttr("id", id)
	}
	el.SetText(value)
}

// Title returns the first dc:title.
func (p *PackageDocument) Title() string {
	if el := p.doc.FindElement("//metadata/title"); el != nil {
		return strings.TrimSpace(el.Text())
	}
	return ""
}

func encodeHref(href string) string {
	return (&url.URL{Path: href}).EscapedPath()
}

// xmlID makes s usable as an XML id.
func xmlID(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r == '_' || r == '-' || r == '.' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	id := b.String()
	if id == "" {
		return "item"
	}
	if r, _ := utf8.DecodeRuneInString(id); !unicode.IsLetter(r) && r != '_' {
		id = "x" + id
	}
	return id
}
