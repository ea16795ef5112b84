package epub

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

const editablePackage = `<?xml version="1.0" encoding="utf-8"?>
<package xmlns="http://www.idpf.org/2007/opf" unique-identifier="uid" version="2.0">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>Book</dc:title>
    <dc:identifier id="uid">urn:uuid:1</dc:identifier>
  </metadata>
  <manifest>
    <item id="a" href="Text/a.xhtml" media-type="application/xhtml+xml"/>
    <item id="b" href="Text/b%20c.xhtml" media-type="application/xhtml+xml"/>
    <item id="c" href="Text/c.xhtml" media-type="application/xhtml+xml"/>
  </manifest>
  <spine toc="ncx">
    <itemref idref="a"/>
    <itemref idref="b" linear="no"/>
    <itemref idref="c"/>
  </spine>
</package>`

func loadEditable(t *testing.T) *PackageDocument {
	t.Helper()
	p, err := LoadPackageDocument(editablePackage)
	if err != nil {
		t.Fatalf("LoadPackageDocument() error = %v", err)
	}
	return p
}

func TestPackageDocument_SetSpineKeepsAttributes(t *testing.T) {
	p := loadEditable(t)
	p.SetSpine([]string{"c", "b", "new"})

	if got, want := p.SpineIDRefs(), []string{"c", "b", "new"}; !reflect.DeepEqual(got, want) {
		t.Errorf("SpineIDRefs() = %v, want %v", got, want)
	}
	text, err := p.String()
	if err != nil {
		t.Fatalf("String() error = %v", err)
	}
	if !strings.Contains(text, `<itemref idref="b" linear="no"/>`) {
		t.Errorf("String() = %q, want linear attribute kept", text)
	}
	if strings.Contains(text, `idref="a"`) {
		t.Errorf("String() = %q, want itemref a dropped", text)
	}
}

func TestPackageDocument_Items(t *testing.T) {
	p := loadEditable(t)

	item, ok := p.ItemByHref("Text/b c.xhtml")
	if !ok || item.ID != "b" {
		t.Fatalf("ItemByHref() = %+v, %v, want item b", item, ok)
	}

	p.AddItem("d", "Images/my pic.png", "image/png")
	if !p.SetItemHref("a", "Text/renamed.xhtml") {
		t.Fatal("SetItemHref() = false, want true")
	}
	if p.SetItemHref("missing", "x") {
		t.Error("SetItemHref() on missing item = true, want false")
	}
	if !p.SetItemMediaType("d", "image/jpeg") {
		t.Error("SetItemMediaType() = false, want true")
	}
	p.RemoveItem("c")

	var hrefs []string
	for _, item := range p.Items() {
		hrefs = append(hrefs, item.ID+"="+item.Href)
	}
	want := []string{"a=Text/renamed.xhtml", "b=Text/b c.xhtml", "d=Images/my pic.png"}
	if !reflect.DeepEqual(hrefs, want) {
		t.Errorf("Items() = %v, want %v", hrefs, want)
	}
	if got, want := p.SpineIDRefs(), []string{"a", "b"}; !reflect.DeepEqual(got, want) {
		t.Errorf("SpineIDRefs() = %v, want %v", got, want)
	}

	text, err := p.String()
	if err != nil {
		t.Fatalf("String() error = %v", err)
	}
	if !strings.Contains(text, `href="Images/my%20pic.png"`) {
		t.Errorf("String() = %q, want encoded href", text)
	}
	if !strings.Contains(text, `media-type="image/jpeg"`) {
		t.Errorf("String() = %q, want changed media type", text)
	}
}

func TestPackageDocument_UniqueItemID(t *testing.T) {
	p := loadEditable(t)
	tests := []struct {
		base string
		want string
	}{
		{base: "new.xhtml", want: "new.xhtml"},
		{base: "a", want: "a_1"},
		{base: "1st chapter.xhtml", want: "x1st_chapter.xhtml"},
		{base: "", want: "item"},
	}

	for _, tt := range tests {
		if got := p.UniqueItemID(tt.base); got != tt.want {
			t.Errorf("UniqueItemID(%q) = %q, want %q", tt.base, got, tt.want)
		}
	}
}

func TestPackageDocument_Identifier(t *testing.T) {
	p := loadEditable(t)
	if got := p.UniqueIdentifier(); got != "urn:uuid:1" {
		t.Errorf("UniqueIdentifier() = %q, want %q", got, "urn:uuid:1")
	}
	p.SetUniqueIdentifier("urn:uuid:2")
	if got := p.UniqueIdentifier(); got != "urn:uuid:2" {
		t.Errorf("UniqueIdentifier() = %q, want %q", got, "urn:uuid:2")
	}
	if got := p.Title(); got != "Book" {
		t.Errorf("Title() = %q, want %q", got, "Book")
	}
}

func TestNewPackageDocument(t *testing.T) {
	p, err := NewPackageDocument("urn:uuid:abc", "New Book")
	if err != nil {
		t.Fatalf("NewPackageDocument() error = %v", err)
	}
	if got := p.UniqueIdentifier(); got != "urn:uuid:abc" {
		t.Errorf("UniqueIdentifier() = %q, want %q", got, "urn:uuid:abc")
	}
	if got := p.Title(); got != "New Book" {
		t.Errorf("Title() = %q, want %q", got, "New Book")
	}
	if len(p.SpineIDRefs()) != 0 {
		t.Errorf("SpineIDRefs() = %v, want empty", p.SpineIDRefs())
	}
}

func TestLoadPackageDocument_Errors(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{name: "not well-formed", text: "<package><manifest></package>"},
		{name: "no manifest", text: `<package xmlns="http://www.idpf.org/2007/opf"/>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadPackageDocument(tt.text); !errors.Is(err, ErrParsingOPF) {
				t.Errorf("LoadPackageDocument() error = %v, want ErrParsingOPF", err)
			}
		})
	}
}
