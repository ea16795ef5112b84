package xhtml

import (
	"net/url"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/unicode/norm"
)

// The queries below use a forgiving HTML parser so that they keep working on
// documents the user left in a broken state.

func loadTolerant(text string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(text))
}

// ImagePaths returns the percent-decoded paths referenced by img elements and
// SVG image elements.
func ImagePaths(text string) []string {
	doc, err := loadTolerant(text)
	if err != nil {
		return nil
	}

	var paths []string
	doc.Find("img, image").Each(func(_ int, s *goquery.Selection) {
		var ref string
		if s.Is("img") {
			ref, _ = s.Attr("src")
		} else {
			for _, a := range s.Nodes[0].Attr {
				if a.Key == "href" || a.Key == "xlink:href" {
					ref = a.Val
					break
				}
			}
		}
		if ref == "" {
			return
		}
		paths = append(paths, decodePath(ref))
	})
	return paths
}

// LinkedStylesheets returns the percent-decoded hrefs of stylesheet links.
func LinkedStylesheets(text string) []string {
	doc, err := loadTolerant(text)
	if err != nil {
		return nil
	}

	var hrefs []string
	doc.Find("link").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || href == "" {
			return
		}
		rel := strings.ToLower(s.AttrOr("rel", ""))
		typ := strings.ToLower(s.AttrOr("type", ""))
		if !strings.Contains(rel, "stylesheet") && typ != "text/css" {
			return
		}
		hrefs = append(hrefs, decodePath(href))
	})
	return hrefs
}

// Words returns the words of the document body in reading order, NFC
// normalized. Script and style content is ignored.
func Words(text string) []string {
	doc, err := loadTolerant(text)
	if err != nil {
		return nil
	}
	body := doc.Find("body")
	body.Find("script, style").Remove()

	fields := strings.FieldsFunc(norm.NFC.String(body.Text()), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && !unicode.IsMark(r) && r != '\'' && r != '’' && r != '-'
	})

	words := make([]string, 0, len(fields))
	for _, f := range fields {
		w := strings.Trim(f, "'’-")
		if w != "" {
			words = append(words, w)
		}
	}
	return words
}

// decodePath strips any fragment from ref and percent-decodes the rest.
// The raw value is kept when it does not decode.
func decodePath(ref string) string {
	if i := strings.IndexByte(ref, '#'); i >= 0 {
		ref = ref[:i]
	}
	if decoded, err := url.PathUnescape(ref); err == nil {
		return decoded
	}
	return ref
}
