package xhtml

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// XHTMLNamespace is the namespace of the html root element.
const XHTMLNamespace = "http://www.w3.org/1999/xhtml"

const cleanHeader = `<?xml version="1.0" encoding="utf-8"?>
<!DOCTYPE html PUBLIC "-//W3C//DTD XHTML 1.1//EN"
    "http://www.w3.org/TR/xhtml11/DTD/xhtml11.dtd">

`

var errNoHTMLElement = errors.New("no html element after parsing")

// Clean repairs markup into a well-formed XHTML document. Unclosed and
// misnested tags are fixed the way a browser would fix them.
func Clean(text string) (string, error) {
	root, err := html.Parse(strings.NewReader(text))
	if err != nil {
		return "", fmt.Errorf("failed to parse markup: %w", err)
	}

	var htmlNode *html.Node
	for n := root.FirstChild; n != nil; n = n.NextSibling {
		if n.Type == html.ElementNode && n.Data == "html" {
			htmlNode = n
			break
		}
	}
	if htmlNode == nil {
		return "", errNoHTMLElement
	}

	hasNamespace := false
	for _, a := range htmlNode.Attr {
		if a.Namespace == "" && a.Key == "xmlns" {
			hasNamespace = true
			break
		}
	}
	if !hasNamespace {
		htmlNode.Attr = append([]html.Attribute{{Key: "xmlns", Val: XHTMLNamespace}}, htmlNode.Attr...)
	}

	var b strings.Builder
	b.WriteString(cleanHeader)
	if err := html.Render(&b, htmlNode); err != nil {
		return "", fmt.Errorf("failed to render markup: %w", err)
	}
	b.WriteByte('\n')
	return b.String(), nil
}
