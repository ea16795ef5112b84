package book

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{name: "chapter1.xhtml", want: "chapter1.xhtml"},
		{name: "Part_2-b.XHTML", want: "Part_2-b.xhtml"},
		{name: "New Name.xhtml", want: "new-name.xhtml"},
		{name: "Café.xhtml", want: "cafe.xhtml"},
		{name: "../Styles/a.css", want: "a.css"},
		{name: "", want: ""},
		{name: "   ", want: ""},
	}
	for _, tt := range tests {
		if got := SanitizeFilename(tt.name); got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestRenameResource(t *testing.T) {
	b := newTestBook(t)
	files := addChapters(t, b,
		"A.xhtml", chapter(`<p><a href="B.xhtml#x">b</a><img src="../Images/pic.png" alt=""/></p>`),
		"B.xhtml", chapter(`<p id="x">b</p>`),
	)
	a, target := files[0], files[1]
	assets := addFiles(t, b, "s.css", "p { background: url(../Images/pic.png) }", "pic.png", "not really a png")
	css, pic := assets[0], assets[1]
	b.NCX().SetText(ncxWith("Text/B.xhtml"))
	oldPath := target.FullPath()

	renamed, err := b.RenameResource(target, "New Name.xhtml")
	if err != nil || !renamed {
		t.Fatalf("RenameResource() = %v, %v, want true, nil", renamed, err)
	}
	if target.Filename() != "new-name.xhtml" {
		t.Errorf("Filename() = %q, want %q", target.Filename(), "new-name.xhtml")
	}
	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Errorf("old file still on disk: %v", err)
	}
	if _, err := os.Stat(filepath.Join(b.Folder().ContentDir(), "Text", "new-name.xhtml")); err != nil {
		t.Errorf("renamed file missing: %v", err)
	}
	if !strings.Contains(a.Text(), `href="../Text/new-name.xhtml#x"`) {
		t.Errorf("link not updated:\n%s", a.Text())
	}
	if !strings.Contains(b.NCX().Text(), `src="Text/new-name.xhtml"`) {
		t.Errorf("toc not updated:\n%s", b.NCX().Text())
	}
	if !strings.Contains(b.OPF().Text(), `href="Text/new-name.xhtml"`) {
		t.Error("manifest not updated")
	}
	assertSpine(t, b, "A.xhtml", "new-name.xhtml")

	if renamed, err := b.RenameResource(pic, "cover.png"); err != nil || !renamed {
		t.Fatalf("RenameResource(image) = %v, %v, want true, nil", renamed, err)
	}
	if !strings.Contains(css.Text(), "url(../Images/cover.png)") {
		t.Errorf("stylesheet not updated: %q", css.Text())
	}
	if !strings.Contains(a.Text(), `src="../Images/cover.png"`) {
		t.Errorf("image reference not updated:\n%s", a.Text())
	}
}

func TestRenameResource_Refused(t *testing.T) {
	b := newTestBook(t)
	files := addChapters(t, b, "A.xhtml", chapter("a"), "B.xhtml", chapter("b"))

	tests := []struct {
		name    string
		r       *Resource
		newName string
	}{
		{name: "taken", r: files[1], newName: "A.xhtml"},
		{name: "kind change", r: files[1], newName: "B.css"},
		{name: "empty", r: files[1], newName: ""},
		{name: "unchanged", r: files[1], newName: "B.xhtml"},
		{name: "package document", r: b.OPF().Resource, newName: "other.opf"},
		{name: "navigation document", r: b.NCX(), newName: "other.ncx"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := tt.r.Filename()
			renamed, err := b.RenameResource(tt.r, tt.newName)
			if err != nil || renamed {
				t.Fatalf("RenameResource() = %v, %v, want false, nil", renamed, err)
			}
			if tt.r.Filename() != before {
				t.Errorf("Filename() = %q, want %q", tt.r.Filename(), before)
			}
		})
	}
	assertSpine(t, b, "A.xhtml", "B.xhtml")
}
