package book

import (
	"fmt"
	"strings"
	"testing"
)

func TestSplitAtBoundary(t *testing.T) {
	b := newTestBook(t)
	files := addChapters(t, b,
		"A.xhtml", chapter(`<p><a href="B.xhtml#x">x</a> <a href="B.xhtml#top">top</a> <a href="B.xhtml#gone">gone</a></p>`),
		"B.xhtml", chapter(`<p id="top">one</p><p id="x">two</p>`),
		"C.xhtml", chapter(`<p>c</p>`),
	)
	a, originating := files[0], files[1]
	b.NCX().SetText(ncxWith("Text/B.xhtml#x", "Text/B.xhtml"))

	originating.SetText(chapter(`<p id="x">two</p>`))
	created, err := b.SplitAtBoundary(chapter(`<p id="top">one</p>`), originating)
	if err != nil {
		t.Fatalf("SplitAtBoundary() error = %v", err)
	}

	if created.Filename() != "B.xhtml" {
		t.Errorf("new file = %q, want %q", created.Filename(), "B.xhtml")
	}
	if originating.Filename() != FirstChapterName {
		t.Errorf("originating file = %q, want %q", originating.Filename(), FirstChapterName)
	}
	if !strings.Contains(created.Text(), `id="top"`) {
		t.Errorf("new file text = %q, want first half", created.Text())
	}
	assertSpine(t, b, "A.xhtml", "B.xhtml", FirstChapterName, "C.xhtml")

	links := a.Text()
	for _, want := range []string{`href="Section0001.xhtml#x"`, `href="B.xhtml#top"`, `href="B.xhtml#gone"`} {
		if !strings.Contains(links, want) {
			t.Errorf("A.xhtml missing %s:\n%s", want, links)
		}
	}

	toc := b.NCX().Text()
	for _, want := range []string{`src="Text/Section0001.xhtml#x"`, `src="Text/B.xhtml"`} {
		if !strings.Contains(toc, want) {
			t.Errorf("toc missing %s:\n%s", want, toc)
		}
	}
	if !strings.Contains(b.OPF().Text(), `href="Text/Section0001.xhtml"`) {
		t.Error("manifest does not list the renamed file")
	}
}

func TestSplitAt(t *testing.T) {
	text := chapter(`<p id="top">one</p><p id="x">two</p>`)

	t.Run("inside tag", func(t *testing.T) {
		b := newTestBook(t)
		r := addChapters(t, b, "B.xhtml", text)[0]

		_, ok, err := b.SplitAt(r, strings.Index(text, `id="top"`))
		if err != nil || ok {
			t.Fatalf("SplitAt() = %v, %v, want false, nil", ok, err)
		}
		if r.Text() != text {
			t.Errorf("Text() changed on refused split")
		}
		assertSpine(t, b, "B.xhtml")
	})

	t.Run("between paragraphs", func(t *testing.T) {
		b := newTestBook(t)
		r := addChapters(t, b, "B.xhtml", text)[0]

		created, ok, err := b.SplitAt(r, strings.Index(text, `<p id="x">`))
		if err != nil || !ok {
			t.Fatalf("SplitAt() = %v, %v, want true, nil", ok, err)
		}
		if !strings.Contains(created.Text(), `id="top"`) || strings.Contains(created.Text(), `id="x"`) {
			t.Errorf("head = %q, want only the first paragraph", created.Text())
		}
		if !strings.Contains(r.Text(), `id="x"`) || strings.Contains(r.Text(), `id="top"`) {
			t.Errorf("rest = %q, want only the second paragraph", r.Text())
		}
		assertSpine(t, b, "B.xhtml", FirstChapterName)
	})
}

func TestSplitIntoMultipleChapters(t *testing.T) {
	b := newTestBook(t)
	files := addChapters(t, b,
		"A.xhtml", chapter(`<p><a href="O.xhtml#c3">three</a><a href="O.xhtml#gone">gone</a></p>`),
		"O.xhtml", chapter(`<p id="c1">one</p>`),
		"Z.xhtml", chapter(`<p>z</p>`),
	)
	a, original := files[0], files[1]

	chunks := []string{
		chapter(`<p id="c2">two</p>`),
		chapter(`<p id="c3">three</p>`),
		chapter(`<p id="c4">four</p>`),
	}
	created, err := b.SplitIntoMultipleChapters(chunks, original)
	if err != nil {
		t.Fatalf("SplitIntoMultipleChapters() error = %v", err)
	}
	if len(created) != 3 {
		t.Fatalf("created %d chapters, want 3", len(created))
	}
	for i, r := range created {
		want := fmt.Sprintf("O_%04d.xhtml", i+2)
		if r.Filename() != want {
			t.Errorf("created[%d] = %q, want %q", i, r.Filename(), want)
		}
		if id := fmt.Sprintf(`id="c%d"`, i+2); !strings.Contains(r.Text(), id) {
			t.Errorf("created[%d] missing %s", i, id)
		}
	}
	assertSpine(t, b, "A.xhtml", "O.xhtml", "O_0002.xhtml", "O_0003.xhtml", "O_0004.xhtml", "Z.xhtml")

	links := a.Text()
	for _, want := range []string{`href="O_0003.xhtml#c3"`, `href="O.xhtml#gone"`} {
		if !strings.Contains(links, want) {
			t.Errorf("A.xhtml missing %s:\n%s", want, links)
		}
	}
}

func TestSplitIntoMultipleChapters_KeepsChunkOrder(t *testing.T) {
	b := newTestBook(t)
	original := addChapters(t, b, "O.xhtml", chapter(`<p>o</p>`), "Z.xhtml", chapter(`<p>z</p>`))[0]

	var chunks []string
	for i := 0; i < 12; i++ {
		chunks = append(chunks, chapter(fmt.Sprintf(`<p>chunk %d</p>`, i)))
	}
	if _, err := b.SplitIntoMultipleChapters(chunks, original); err != nil {
		t.Fatalf("SplitIntoMultipleChapters() error = %v", err)
	}

	want := []string{"O.xhtml"}
	for i := range chunks {
		want = append(want, fmt.Sprintf("O_%04d.xhtml", i+2))
	}
	want = append(want, "Z.xhtml")
	assertSpine(t, b, want...)
}

func TestSplitIntoMultipleChapters_TakenNames(t *testing.T) {
	for run := 0; run < 20; run++ {
		b := newTestBook(t)
		original := addChapters(t, b, "O.xhtml", chapter(`<p>o</p>`))[0]
		addFiles(t, b, "O_0001.xhtml", chapter(`<p>one</p>`), "O_0002.xhtml", chapter(`<p>two</p>`))

		chunks := []string{chapter(`<p id="c2">a</p>`), chapter(`<p id="c3">b</p>`), chapter(`<p id="c4">c</p>`)}
		created, err := b.SplitIntoMultipleChapters(chunks, original)
		if err != nil {
			t.Fatalf("SplitIntoMultipleChapters() error = %v", err)
		}
		for i, want := range []string{"O_0003.xhtml", "O_0004.xhtml", "O_0005.xhtml"} {
			if got := created[i].Filename(); got != want {
				t.Fatalf("run %d: created[%d] = %q, want %q", run, i, got, want)
			}
			if id := fmt.Sprintf(`id="c%d"`, i+2); !strings.Contains(created[i].Text(), id) {
				t.Fatalf("run %d: created[%d] missing %s", run, i, id)
			}
		}
	}
}

func TestSplitIntoMultipleChapters_OriginalOutsideSpine(t *testing.T) {
	b := newTestBook(t)
	addChapters(t, b, "A.xhtml", chapter(`<p>a</p>`))
	original := addFiles(t, b, "O.xhtml", chapter(`<p>o</p>`))[0]

	if _, err := b.SplitIntoMultipleChapters([]string{chapter(`<p>two</p>`)}, original); err != nil {
		t.Fatalf("SplitIntoMultipleChapters() error = %v", err)
	}
	assertSpine(t, b, "A.xhtml", "O_0002.xhtml")
}

func TestSplitOnMarkers(t *testing.T) {
	b := newTestBook(t)
	r := addChapters(t, b, "O.xhtml", chapter(
		`<p id="one">1</p><hr class="split_marker" /><p id="two">2</p><HR CLASS="split_marker"></HR><p id="three">3</p>`,
	))[0]

	created, err := b.SplitOnMarkers(r)
	if err != nil {
		t.Fatalf("SplitOnMarkers() error = %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("created %d chapters, want 2", len(created))
	}

	tests := []struct {
		r       *Resource
		want    string
		notWant string
	}{
		{r: r, want: `id="one"`, notWant: `id="two"`},
		{r: created[0], want: `id="two"`, notWant: `id="three"`},
		{r: created[1], want: `id="three"`, notWant: `id="one"`},
	}
	for _, tt := range tests {
		text := tt.r.Text()
		if !strings.Contains(text, tt.want) || strings.Contains(text, tt.notWant) {
			t.Errorf("%s = %q, want %s without %s", tt.r.Filename(), text, tt.want, tt.notWant)
		}
		if strings.Contains(strings.ToLower(text), "split_marker") {
			t.Errorf("%s still holds a marker", tt.r.Filename())
		}
		if !b.IsWellFormed(tt.r) {
			t.Errorf("%s is not well-formed", tt.r.Filename())
		}
	}
	assertSpine(t, b, "O.xhtml", "O_0002.xhtml", "O_0003.xhtml")
}

func TestSplitOnMarkers_NoMarkers(t *testing.T) {
	b := newTestBook(t)
	text := chapter(`<p>only</p>`)
	r := addChapters(t, b, "O.xhtml", text)[0]

	created, err := b.SplitOnMarkers(r)
	if err != nil || created != nil {
		t.Fatalf("SplitOnMarkers() = %v, %v, want nil, nil", created, err)
	}
	if r.Text() != text {
		t.Error("Text() changed without markers")
	}
}
