// Package xhtml is the XML document service used by the book model: strict
// parsing with positioned errors, serialization, fragment moves and queries.
package xhtml

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/beevik/etree"
)

// EmptyDocument is the skeleton of a new, empty chapter. The non-breaking
// space keeps the caret of an editor inside the paragraph.
const EmptyDocument = `<?xml version="1.0" encoding="utf-8"?>
<!DOCTYPE html PUBLIC "-//W3C//DTD XHTML 1.1//EN"
    "http://www.w3.org/TR/xhtml11/DTD/xhtml11.dtd">

<html xmlns="http://www.w3.org/1999/xhtml">
<head>
<title></title>
</head>
<body>
<p>&nbsp;</p>
</body>
</html>`

// WellFormedError describes the first structural error found in a document.
type WellFormedError struct {
	Line    int
	Column  int
	Message string
}

func (e *WellFormedError) Error() string {
	return fmt.Sprintf("not well-formed at line %d, column %d: %s", e.Line, e.Column, e.Message)
}

// ErrNoRoot is reported when a document contains no element at all.
var ErrNoRoot = errors.New("document has no root element")

// passthroughCharset keeps decoded text as it is: resource text is already
// UTF-8 whatever its XML declaration says.
func passthroughCharset(_ string, input io.Reader) (io.Reader, error) {
	return input, nil
}

// CheckWellFormed strictly parses text and returns the first error, or nil
// when the text is well-formed. HTML named entities are accepted.
func CheckWellFormed(text string) *WellFormedError {
	d := xml.NewDecoder(strings.NewReader(text))
	d.Strict = true
	d.Entity = xml.HTMLEntity
	d.CharsetReader = passthroughCharset

	sawRoot := false
	for {
		tok, err := d.Token()
		if err == io.EOF {
			if !sawRoot {
				line, col := d.InputPos()
				return &WellFormedError{Line: line, Column: col, Message: ErrNoRoot.Error()}
			}
			return nil
		}
		if err != nil {
			line, col := d.InputPos()
			msg := err.Error()
			var syntaxErr *xml.SyntaxError
			if errors.As(err, &syntaxErr) {
				line = syntaxErr.Line
				msg = syntaxErr.Msg
			}
			return &WellFormedError{Line: line, Column: col, Message: msg}
		}
		if _, ok := tok.(xml.StartElement); ok {
			sawRoot = true
		}
	}
}

// IsWellFormed reports whether text passes strict parsing.
func IsWellFormed(text string) bool {
	return CheckWellFormed(text) == nil
}

// Parse strictly parses text into a tree. A structural error is returned as
// a *WellFormedError.
func Parse(text string) (*etree.Document, error) {
	if werr := CheckWellFormed(text); werr != nil {
		return nil, werr
	}

	doc := NewDocument()
	if err := doc.ReadFromString(text); err != nil {
		return nil, &WellFormedError{Message: err.Error()}
	}
	return doc, nil
}

// NewDocument returns an empty tree with the read and write settings used
// for book content.
func NewDocument() *etree.Document {
	doc := etree.NewDocument()
	doc.ReadSettings = etree.ReadSettings{
		CharsetReader: passthroughCharset,
		Entity:        xml.HTMLEntity,
	}
	doc.WriteSettings = etree.WriteSettings{
		CanonicalEndTags: true,
	}
	return doc
}

// Serialize writes the tree back to text.
func Serialize(doc *etree.Document) (string, error) {
	text, err := doc.WriteToString()
	if err != nil {
		return "", fmt.Errorf("failed to serialize document: %w", err)
	}
	return text, nil
}

// ElementsByTag returns every element with the given local name, in
// document order.
func ElementsByTag(doc *etree.Document, tag string) []*etree.Element {
	return doc.FindElements("//" + tag)
}

// Body returns the body element when the document has exactly one.
func Body(doc *etree.Document) (*etree.Element, bool) {
	bodies := ElementsByTag(doc, "body")
	if len(bodies) != 1 {
		return nil, false
	}
	return bodies[0], true
}

// ExtractFragment returns the child nodes of el. The nodes still belong to el
// until they are imported elsewhere.
func ExtractFragment(el *etree.Element) []etree.Token {
	frag := make([]etree.Token, len(el.Child))
	copy(frag, el.Child)
	return frag
}

// ImportFragment appends the fragment nodes to dst, detaching them from
// their previous parent.
func ImportFragment(dst *etree.Element, frag []etree.Token) {
	for _, tok := range frag {
		dst.AddChild(tok)
	}
}

// Walk calls fn for el and every descendant element in document order.
func Walk(el *etree.Element, fn func(*etree.Element)) {
	if el == nil {
		return
	}
	fn(el)
	for _, child := range el.ChildElements() {
		Walk(child, fn)
	}
}

// IDs returns the id attribute values of el and its descendants.
func IDs(el *etree.Element) []string {
	var ids []string
	Walk(el, func(e *etree.Element) {
		if id := e.SelectAttrValue("id", ""); id != "" {
			ids = append(ids, id)
		}
	})
	return ids
}

// Classes returns the distinct class names used by el and its descendants,
// in order of first use.
func Classes(el *etree.Element) []string {
	var classes []string
	seen := make(map[string]bool)
	Walk(el, func(e *etree.Element) {
		for _, class := range strings.Fields(e.SelectAttrValue("class", "")) {
			if !seen[class] {
				seen[class] = true
				classes = append(classes, class)
			}
		}
	})
	return classes
}
