package epub

import (
	"bytes"
	"encoding/xml"
	"errors"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/net/html/charset"

	"github.com/yuanying/epubedit/internal/xhtml"
)

// opfPackage represents the OPF XML structure
type opfPackage struct {
	XMLName  xml.Name    `xml:"package"`
	Version  string      `xml:"version,attr"`
	UniqueID string      `xml:"unique-identifier,attr"`
	Metadata opfMetadata `xml:"metadata"`
	Manifest opfManifest `xml:"manifest"`
	Spine    opfSpine    `xml:"spine"`
	Guide    opfGuide    `xml:"guide"`
}

type opfMetadata struct {
	Title      []string        `xml:"http://purl.org/dc/elements/1.1/ title"`
	Creator    []opfCreator    `xml:"http://purl.org/dc/elements/1.1/ creator"`
	Language   []string        `xml:"http://purl.org/dc/elements/1.1/ language"`
	Identifier []opfIdentifier `xml:"http://purl.org/dc/elements/1.1/ identifier"`
	Meta       []opfMeta       `xml:"meta"`
}

type opfCreator struct {
	Name string `xml:",chardata"`
	Role string `xml:"http://www.idpf.org/2007/opf role,attr"`
	ID   string `xml:"id,attr"`
}

type opfIdentifier struct {
	Value  string `xml:",chardata"`
	ID     string `xml:"id,attr"`
	Scheme string `xml:"scheme,attr"`
}

type opfMeta struct {
	Name     string `xml:"name,attr"`
	Content  string `xml:"content,attr"`
	Value    string `xml:",chardata"`
	Property string `xml:"property,attr"`
	Refines  string `xml:"refines,attr"`
}

type opfManifest struct {
	Items []opfManifestItem `xml:"item"`
}

type opfManifestItem struct {
	ID         string `xml:"id,attr"`
	Href       string `xml:"href,attr"`
	MediaType  string `xml:"media-type,attr"`
	Properties string `xml:"properties,attr"`
}

type opfSpine struct {
	Toc      string       `xml:"toc,attr"`
	ItemRefs []opfItemRef `xml:"itemref"`
}

type opfItemRef struct {
	IDRef  string `xml:"idref,attr"`
	Linear string `xml:"linear,attr"`
}

type opfGuide struct {
	References []opfReference `xml:"reference"`
}

type opfReference struct {
	Type  string `xml:"type,attr"`
	Title string `xml:"title,attr"`
	Href  string `xml:"href,attr"`
}

// Package is the parsed package document of a book.
type Package struct {
	Version string
	// UniqueIdentifier is the value of the identifier named by the package
	// unique-identifier attribute.
	UniqueIdentifier string
	// UUIDIdentifier is the first identifier that is a UUID, by value or
	// by scheme.
	UUIDIdentifier string
	Metadata       Metadata
	// Manifest holds content items by id. Navigation documents are kept
	// apart in NCXCandidates. Hrefs are decoded and joined with the package
	// directory.
	Manifest      map[string]ManifestItem
	ManifestOrder []string
	NCXCandidates map[string]string
	Spine         []SpineItem
	TocID         string
	Guide         []GuideReference
}

// Metadata is the subset of package metadata the editor shows.
type Metadata struct {
	Title    string
	Creators []Creator
	Language string
	CoverID  string // EPUB 2.0 cover image manifest item ID (from meta name="cover")
}

// Creator is an author, editor or other contributor.
type Creator struct {
	Name string
	Role string
}

// ManifestItem is an item of the package manifest.
type ManifestItem struct {
	ID         string
	Href       string
	MediaType  string
	Properties []string
}

// SpineItem represents an item reference in the spine
type SpineItem struct {
	IDRef  string
	Linear bool
}

// GuideReference is an EPUB 2 guide entry.
type GuideReference struct {
	Type  string
	Title string
	Href  string
}

var xmlVersionRe = regexp.MustCompile(`^(\s*<\?xml[^>]*?\bversion\s*=\s*)["'][^"']*["']`)

// PrepareForReading declares XML 1.0 in the XML declaration. Books that
// claim XML 1.1 practically never use anything beyond 1.0.
func PrepareForReading(text string) string {
	return xmlVersionRe.ReplaceAllString(text, `${1}"1.0"`)
}

// ReadPackage reads and parses the package document at opfPath.
func ReadPackage(opfPath string) (*Package, string, error) {
	data, err := os.ReadFile(opfPath)
	if err != nil {
		return nil, "", &PathError{Op: "read", Path: opfPath, Err: errors.Join(ErrCannotReadFile, err)}
	}
	text, err := DecodeText(data)
	if err != nil {
		return nil, "", &PathError{Op: "decode", Path: opfPath, Err: errors.Join(ErrCannotReadFile, err)}
	}
	text = PrepareForReading(text)

	pkg, err := ParsePackage(text, filepath.Dir(opfPath))
	if err != nil {
		var xerr *XMLError
		if errors.As(err, &xerr) {
			xerr.Path = opfPath
		}
		return nil, "", err
	}
	return pkg, text, nil
}

// ParsePackage parses package document text. Manifest hrefs are resolved
// against opfDir.
func ParsePackage(text, opfDir string) (*Package, error) {
	var raw opfPackage
	d := xml.NewDecoder(bytes.NewReader([]byte(text)))
	d.CharsetReader = charset.NewReaderLabel
	if err := d.Decode(&raw); err != nil {
		xerr := &XMLError{Message: err.Error(), Err: ErrParsingOPF}
		if werr := xhtml.CheckWellFormed(text); werr != nil {
			xerr.Line, xerr.Column, xerr.Message = werr.Line, werr.Column, werr.Message
		} else if serr := (*xml.SyntaxError)(nil); errors.As(err, &serr) {
			xerr.Line = serr.Line
		}
		return nil, xerr
	}

	pkg := &Package{
		Version:       raw.Version,
		Manifest:      make(map[string]ManifestItem),
		NCXCandidates: make(map[string]string),
		TocID:         raw.Spine.Toc,
	}

	for _, id := range raw.Metadata.Identifier {
		value := strings.TrimSpace(id.Value)
		if id.ID != "" && id.ID == raw.UniqueID {
			pkg.UniqueIdentifier = value
		}
		if pkg.UUIDIdentifier == "" && (strings.Contains(value, "urn:uuid:") || strings.EqualFold(id.Scheme, "uuid")) {
			pkg.UUIDIdentifier = value
		}
	}
	pkg.Metadata = parseMetadata(&raw.Metadata)

	seen := make(map[string]bool)
	for _, item := range raw.Manifest.Items {
		href := joinPath(opfDir, decodeHref(item.Href))
		if item.MediaType == MediaTypeNCX || strings.EqualFold(path.Ext(item.Href), ".ncx") {
			pkg.NCXCandidates[item.ID] = href
			continue
		}
		if seen[href] {
			continue
		}
		seen[href] = true

		mi := ManifestItem{ID: item.ID, Href: href, MediaType: item.MediaType}
		if item.Properties != "" {
			mi.Properties = strings.Fields(item.Properties)
		}
		pkg.Manifest[item.ID] = mi
		pkg.ManifestOrder = append(pkg.ManifestOrder, item.ID)
	}

	for _, ref := range raw.Spine.ItemRefs {
		pkg.Spine = append(pkg.Spine, SpineItem{IDRef: ref.IDRef, Linear: ref.Linear != "no"})
	}
	for _, ref := range raw.Guide.References {
		pkg.Guide = append(pkg.Guide, GuideReference{Type: ref.Type, Title: ref.Title, Href: joinPath(opfDir, decodeHref(ref.Href))})
	}
	return pkg, nil
}

// NCXPath returns the navigation document declared by the spine toc
// attribute. ok is false when the spine does not name one that the
// manifest lists.
func (p *Package) NCXPath() (string, bool) {
	if p.TocID == "" {
		return "", false
	}
	href, ok := p.NCXCandidates[p.TocID]
	return href, ok
}

// GuessNCXPath returns a navigation document chosen by file extension, for
// packages whose spine does not declare one.
func (p *Package) GuessNCXPath() (string, bool) {
	var best string
	for _, href := range p.NCXCandidates {
		if !strings.EqualFold(filepath.Ext(href), ".ncx") {
			continue
		}
		if best == "" || href < best {
			best = href
		}
	}
	return best, best != ""
}

func parseMetadata(meta *opfMetadata) Metadata {
	var md Metadata
	if len(meta.Title) > 0 {
		md.Title = strings.TrimSpace(meta.Title[0])
	}
	if len(meta.Language) > 0 {
		md.Language = strings.TrimSpace(meta.Language[0])
	}

	byID := make(map[string]int)
	for _, c := range meta.Creator {
		if c.ID != "" {
			byID["#"+c.ID] = len(md.Creators)
		}
		md.Creators = append(md.Creators, Creator{Name: strings.TrimSpace(c.Name), Role: c.Role})
	}

	for _, m := range meta.Meta {
		switch {
		case m.Name == "cover" && m.Content != "" && md.CoverID == "":
			md.CoverID = m.Content
		case m.Property == "role" && m.Refines != "":
			// EPUB 3.0 refines creators with meta elements.
			if i, ok := byID[m.Refines]; ok {
				md.Creators[i].Role = strings.TrimSpace(m.Value)
			}
		}
	}
	return md
}

// decodeHref percent-decodes a manifest href. The raw value is kept when it
// does not decode.
func decodeHref(href string) string {
	if i := strings.IndexByte(href, '#'); i >= 0 {
		href = href[:i]
	}
	if decoded, err := url.PathUnescape(href); err == nil {
		return decoded
	}
	return href
}

// joinPath joins OPF directory with a relative path
func joinPath(base, rel string) string {
	if base == "" {
		return path.Clean(rel)
	}
	return filepath.Join(base, filepath.FromSlash(rel))
}
