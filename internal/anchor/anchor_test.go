package anchor

import (
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/beevik/etree"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type memDoc struct {
	mu   sync.Mutex
	name string
	text string
}

func (d *memDoc) Filename() string { return d.name }

func (d *memDoc) Text() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.text
}

func (d *memDoc) Rewrite(fn func(string) (string, bool)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if out, ok := fn(d.text); ok {
		d.text = out
	}
}

func page(body string) string {
	return `<html xmlns="http://www.w3.org/1999/xhtml"><head><title>t</title></head><body>` + body + `</body></html>`
}

// attrValues returns the values of attr on every element named tag.
func attrValues(t *testing.T, text, tag, attr string) []string {
	t.Helper()
	doc := etree.NewDocument()
	if err := doc.ReadFromString(text); err != nil {
		t.Fatalf("ReadFromString() error = %v", err)
	}
	var values []string
	for _, el := range doc.FindElements("//" + tag) {
		values = append(values, el.SelectAttrValue(attr, ""))
	}
	return values
}

func TestParseReference(t *testing.T) {
	tests := []struct {
		raw    string
		want   reference
		wantOK bool
	}{
		{raw: "B.xhtml#x", want: reference{file: "B.xhtml", fragment: "x", id: "x", hasFragment: true}, wantOK: true},
		{raw: "B.xhtml#caf%C3%A9", want: reference{file: "B.xhtml", fragment: "caf%C3%A9", id: "café", hasFragment: true}, wantOK: true},
		{raw: "B.xhtml#50%", want: reference{file: "B.xhtml", fragment: "50%", id: "50%", hasFragment: true}, wantOK: true},
		{raw: "../Text/a%20b.xhtml", want: reference{dir: "../Text/", file: "a b.xhtml"}, wantOK: true},
		{raw: "#only", want: reference{fragment: "only", id: "only", hasFragment: true}, wantOK: true},
		{raw: "http://example.com/B.xhtml"},
		{raw: "mailto:someone@example.com"},
		{raw: ""},
	}

	for _, tt := range tests {
		got, ok := parseReference(tt.raw)
		if ok != tt.wantOK {
			t.Errorf("parseReference(%q) ok = %v, want %v", tt.raw, ok, tt.wantOK)
			continue
		}
		if ok && got != tt.want {
			t.Errorf("parseReference(%q) = %+v, want %+v", tt.raw, got, tt.want)
		}
	}
}

func TestReferenceString(t *testing.T) {
	r := reference{dir: "../Text/", file: "a b.xhtml", fragment: "x", hasFragment: true}
	if got, want := r.String(), "../Text/a%20b.xhtml#x"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestReconcileIDs(t *testing.T) {
	b1 := &memDoc{name: "B1.xhtml", text: page(
		`<p id="a"><a href="#x">to x</a><a href="#a">self</a><a href="#missing">m</a><a href="other.xhtml#x">o</a></p>`)}
	b2 := &memDoc{name: "B2.xhtml", text: page(
		`<p id="x"><a href="B1.xhtml#x">back</a><a href="B2.xhtml#a">wrong file</a></p>`)}

	u := New(zap.NewNop(), 2)
	if err := u.ReconcileIDs([]Document{b1, b2}); err != nil {
		t.Fatalf("ReconcileIDs() error = %v", err)
	}

	wantB1 := []string{"B2.xhtml#x", "#a", "#missing", "other.xhtml#x"}
	if got := attrValues(t, b1.Text(), "a", "href"); !reflect.DeepEqual(got, wantB1) {
		t.Errorf("B1 hrefs = %v, want %v", got, wantB1)
	}
	wantB2 := []string{"#x", "B1.xhtml#a"}
	if got := attrValues(t, b2.Text(), "a", "href"); !reflect.DeepEqual(got, wantB2) {
		t.Errorf("B2 hrefs = %v, want %v", got, wantB2)
	}
}

func TestReconcileIDs_EncodedFragment(t *testing.T) {
	b1 := &memDoc{name: "B1.xhtml", text: page(`<p id="a"><a href="#caf%C3%A9">c</a></p>`)}
	b2 := &memDoc{name: "B2.xhtml", text: page(`<p id="café"><a href="B1.xhtml#caf%C3%A9">self</a></p>`)}

	if err := New(nil, 2).ReconcileIDs([]Document{b1, b2}); err != nil {
		t.Fatalf("ReconcileIDs() error = %v", err)
	}
	if got := attrValues(t, b1.Text(), "a", "href"); !reflect.DeepEqual(got, []string{"B2.xhtml#caf%C3%A9"}) {
		t.Errorf("B1 hrefs = %v, want [B2.xhtml#caf%%C3%%A9]", got)
	}
	if got := attrValues(t, b2.Text(), "a", "href"); !reflect.DeepEqual(got, []string{"#caf%C3%A9"}) {
		t.Errorf("B2 hrefs = %v, want [#caf%%C3%%A9]", got)
	}
}

func TestReconcileIDs_UnchangedDocumentKeepsText(t *testing.T) {
	text := page(`<p id="a">  <a href="#a">self</a>&#160;</p>`)
	doc := &memDoc{name: "A.xhtml", text: text}

	if err := New(nil, 1).ReconcileIDs([]Document{doc}); err != nil {
		t.Fatalf("ReconcileIDs() error = %v", err)
	}
	if doc.Text() != text {
		t.Errorf("Text() = %q, want untouched %q", doc.Text(), text)
	}
}

func TestRedirectExternal_Split(t *testing.T) {
	a := &memDoc{name: "A.xhtml", text: page(
		`<p><a href="B.xhtml#x">x</a><a href="B.xhtml#y">y</a><a href="B.xhtml#gone">g</a>` +
			`<a href="B.xhtml">b</a><a href="http://example.com/B.xhtml#x">e</a><a href="C.xhtml#x">c</a></p>`)}
	b1 := &memDoc{name: "B1.xhtml", text: page(`<p id="y">first half</p>`)}
	b2 := &memDoc{name: "B2.xhtml", text: page(`<p id="x">second half</p>`)}

	core, logs := observer.New(zapcore.WarnLevel)
	u := New(zap.New(core), 2)
	if err := u.RedirectExternal([]Document{a}, "B.xhtml", []Document{b1, b2}); err != nil {
		t.Fatalf("RedirectExternal() error = %v", err)
	}

	want := []string{"B2.xhtml#x", "B1.xhtml#y", "B1.xhtml#gone", "B1.xhtml", "http://example.com/B.xhtml#x", "C.xhtml#x"}
	if got := attrValues(t, a.Text(), "a", "href"); !reflect.DeepEqual(got, want) {
		t.Errorf("hrefs = %v, want %v", got, want)
	}
	if n := logs.Len(); n != 1 {
		t.Errorf("warnings = %d, want 1", n)
	}
}

func TestRedirectExternal_EncodedFragment(t *testing.T) {
	a := &memDoc{name: "A.xhtml", text: page(`<a href="B.xhtml#caf%C3%A9">c</a><a href="B.xhtml#café">d</a>`)}
	b1 := &memDoc{name: "B1.xhtml", text: page(`<p id="first">first half</p>`)}
	b2 := &memDoc{name: "B2.xhtml", text: page(`<p id="café">second half</p>`)}

	core, logs := observer.New(zapcore.WarnLevel)
	if err := New(zap.New(core), 2).RedirectExternal([]Document{a}, "B.xhtml", []Document{b1, b2}); err != nil {
		t.Fatalf("RedirectExternal() error = %v", err)
	}
	want := []string{"B2.xhtml#caf%C3%A9", "B2.xhtml#café"}
	if got := attrValues(t, a.Text(), "a", "href"); !reflect.DeepEqual(got, want) {
		t.Errorf("hrefs = %v, want %v", got, want)
	}
	if n := logs.Len(); n != 0 {
		t.Errorf("warnings = %d, want 0", n)
	}
}

func TestRedirectExternal_KeepsDirectoryAndEncoding(t *testing.T) {
	a := &memDoc{name: "A.xhtml", text: page(`<a href="../Text/B%20old.xhtml#x">x</a>`)}
	c := &memDoc{name: "C new.xhtml", text: page(`<p id="x">x</p>`)}

	if err := New(nil, 1).RedirectExternal([]Document{a}, "B old.xhtml", []Document{c}); err != nil {
		t.Fatalf("RedirectExternal() error = %v", err)
	}
	want := []string{"../Text/C%20new.xhtml#x"}
	if got := attrValues(t, a.Text(), "a", "href"); !reflect.DeepEqual(got, want) {
		t.Errorf("hrefs = %v, want %v", got, want)
	}
}

func TestRedirectExternal_MalformedDocumentReported(t *testing.T) {
	broken := &memDoc{name: "Broken.xhtml", text: `<html><body><p><a href="B.xhtml#x">x</body></html>`}
	good := &memDoc{name: "Good.xhtml", text: page(`<a href="B.xhtml#x">x</a>`)}
	b2 := &memDoc{name: "B2.xhtml", text: page(`<p id="x"/>`)}

	err := New(nil, 2).RedirectExternal([]Document{broken, good}, "B.xhtml", []Document{b2})
	if err == nil {
		t.Fatal("RedirectExternal() error = nil, want error for malformed document")
	}
	if !strings.Contains(err.Error(), "Broken.xhtml") {
		t.Errorf("error = %q, want it to name Broken.xhtml", err)
	}
	if got := attrValues(t, good.Text(), "a", "href"); !reflect.DeepEqual(got, []string{"B2.xhtml#x"}) {
		t.Errorf("hrefs = %v, want [B2.xhtml#x]", got)
	}
}

func TestRedirectTOC(t *testing.T) {
	ncx := &memDoc{name: "toc.ncx", text: `<?xml version="1.0" encoding="utf-8"?>
<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1">
<navMap>
<navPoint id="n1" playOrder="1"><navLabel><text>One</text></navLabel><content src="Text/B.xhtml"/>
<navPoint id="n2" playOrder="2"><navLabel><text>Two</text></navLabel><content src="Text/B.xhtml#x"/></navPoint>
</navPoint>
<navPoint id="n3" playOrder="3"><navLabel><text>Three</text></navLabel><content src="Text/A.xhtml"/></navPoint>
</navMap>
</ncx>`}
	b1 := &memDoc{name: "B1.xhtml", text: page(`<p>first</p>`)}
	b2 := &memDoc{name: "B2.xhtml", text: page(`<p id="x">second</p>`)}

	if err := New(nil, 1).RedirectTOC(ncx, "B.xhtml", []Document{b1, b2}); err != nil {
		t.Fatalf("RedirectTOC() error = %v", err)
	}
	want := []string{"Text/B1.xhtml", "Text/B2.xhtml#x", "Text/A.xhtml"}
	if got := attrValues(t, ncx.Text(), "content", "src"); !reflect.DeepEqual(got, want) {
		t.Errorf("src = %v, want %v", got, want)
	}
}

func TestPerformUniversalUpdates(t *testing.T) {
	src := filepath.Join(string(filepath.Separator), "src", "OEBPS")
	updates := map[string]string{
		filepath.Join(src, "images", "a.png"): "../Images/a.png",
		filepath.Join(src, "chap2.html"):      "../Text/chap2.html",
		filepath.Join(src, "style.css"):       "../Styles/style.css",
		filepath.Join(src, "other.css"):       "../Styles/other.css",
	}

	chapter := &memDoc{name: "chap1.html", text: `<html xmlns="http://www.w3.org/1999/xhtml"><head>` +
		`<link href="style.css" rel="stylesheet" type="text/css"/>` +
		`<style>p { background: url(images/a.png) }</style></head><body>` +
		`<img src="images/a.png" alt=""/><a href="chap2.html#f">next</a><a href="#local">here</a>` +
		`<a href="missing.html">gone</a></body></html>`}
	sheet := &memDoc{name: "style.css", text: `@import "other.css"; body { background: url('images/a.png') }`}
	ncx := &memDoc{name: "toc.ncx", text: `<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/"><navMap>` +
		`<navPoint id="n1"><content src="chap2.html#f"/></navPoint></navMap></ncx>`}

	targets := []Target{
		{Doc: chapter, Dir: src, Kind: Markup},
		{Doc: sheet, Dir: src, Kind: Stylesheet},
		{Doc: ncx, Dir: src, Kind: Navigation},
	}
	if err := New(nil, 2).PerformUniversalUpdates(targets, updates); err != nil {
		t.Fatalf("PerformUniversalUpdates() error = %v", err)
	}

	if got, want := attrValues(t, chapter.Text(), "a", "href"), []string{"../Text/chap2.html#f", "#local", "missing.html"}; !reflect.DeepEqual(got, want) {
		t.Errorf("a hrefs = %v, want %v", got, want)
	}
	if got, want := attrValues(t, chapter.Text(), "img", "src"), []string{"../Images/a.png"}; !reflect.DeepEqual(got, want) {
		t.Errorf("img src = %v, want %v", got, want)
	}
	if got, want := attrValues(t, chapter.Text(), "link", "href"), []string{"../Styles/style.css"}; !reflect.DeepEqual(got, want) {
		t.Errorf("link href = %v, want %v", got, want)
	}
	if !strings.Contains(chapter.Text(), "url(../Images/a.png)") {
		t.Errorf("style element = %q, want rewritten url()", chapter.Text())
	}

	wantSheet := `@import "../Styles/other.css"; body { background: url('../Images/a.png') }`
	if sheet.Text() != wantSheet {
		t.Errorf("stylesheet = %q, want %q", sheet.Text(), wantSheet)
	}
	if got, want := attrValues(t, ncx.Text(), "content", "src"), []string{"Text/chap2.html#f"}; !reflect.DeepEqual(got, want) {
		t.Errorf("ncx src = %v, want %v", got, want)
	}
}
