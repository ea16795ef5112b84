package epub

import (
	"encoding/xml"
	"errors"
	"net/url"
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

// NCXFileName is the name of the navigation document of a book.
const NCXFileName = "toc.ncx"

// NCX represents the parsed navigation control structure.
type NCX struct {
	UID       string
	Depth     int
	DocTitle  string
	NavPoints []NavPoint
}

// NavPoint represents a single navigation point in the table of contents.
type NavPoint struct {
	ID          string
	PlayOrder   int
	Label       string
	ContentPath string // decoded path relative to the NCX, without fragment
	Fragment    string // fragment identifier (without #)
	Children    []NavPoint
}

type ncxDocument struct {
	Head struct {
		Meta []struct {
			Name    string `xml:"name,attr"`
			Content string `xml:"content,attr"`
		} `xml:"meta"`
	} `xml:"head"`
	DocTitle struct {
		Text string `xml:"text"`
	} `xml:"docTitle"`
	NavMap struct {
		NavPoints []ncxNavPoint `xml:"navPoint"`
	} `xml:"navMap"`
}

type ncxNavPoint struct {
	ID        string `xml:"id,attr"`
	PlayOrder string `xml:"playOrder,attr"`
	Label     string `xml:"navLabel>text"`
	Content   struct {
		Src string `xml:"src,attr"`
	} `xml:"content"`
	Children []ncxNavPoint `xml:"navPoint"`
}

// ParseNCX parses navigation document text.
func ParseNCX(text string) (*NCX, error) {
	var raw ncxDocument
	if err := xml.Unmarshal([]byte(text), &raw); err != nil {
		xerr := &XMLError{Message: err.Error(), Err: ErrParsingNCX}
		var serr *xml.SyntaxError
		if errors.As(err, &serr) {
			xerr.Line = serr.Line
		}
		return nil, xerr
	}

	ncx := &NCX{DocTitle: strings.TrimSpace(raw.DocTitle.Text)}
	for _, m := range raw.Head.Meta {
		switch m.Name {
		case "dtb:uid":
			ncx.UID = m.Content
		case "dtb:depth":
			ncx.Depth, _ = strconv.Atoi(m.Content)
		}
	}
	ncx.NavPoints = convertNavPoints(raw.NavMap.NavPoints)
	return ncx, nil
}

func convertNavPoints(raw []ncxNavPoint) []NavPoint {
	if len(raw) == 0 {
		return nil
	}
	points := make([]NavPoint, 0, len(raw))
	for _, r := range raw {
		p, fragment := splitFragment(r.Content.Src)
		if decoded, err := url.PathUnescape(p); err == nil {
			p = decoded
		}
		order, _ := strconv.Atoi(r.PlayOrder)
		points = append(points, NavPoint{
			ID:          r.ID,
			PlayOrder:   order,
			Label:       strings.TrimSpace(r.Label),
			ContentPath: p,
			Fragment:    fragment,
			Children:    convertNavPoints(r.Children),
		})
	}
	return points
}

// Walk calls fn for every navigation point in document order with its
// nesting depth, starting at 1.
func (n *NCX) Walk(fn func(p NavPoint, depth int)) {
	var walk func(points []NavPoint, depth int)
	walk = func(points []NavPoint, depth int) {
		for _, p := range points {
			fn(p, depth)
			walk(p.Children, depth+1)
		}
	}
	walk(n.NavPoints, 1)
}

// EmptyNCX returns a navigation document for a book without one. When
// firstSrc is not empty, it gets a single entry pointing there.
func EmptyNCX(uid, title, firstSrc string) (string, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="utf-8"`)
	doc.CreateDirective(`DOCTYPE ncx PUBLIC "-//NISO//DTD ncx 2005-1//EN"
   "http://www.daisy.org/z3986/2005/ncx-2005-1.dtd"`)

	root := doc.CreateElement("ncx")
	root.CreateAttr("xmlns", "http://www.daisy.org/z3986/2005/ncx/")
	root.CreateAttr("version", "2005-1")

	head := root.CreateElement("head")
	depth := "0"
	if firstSrc != "" {
		depth = "1"
	}
	for _, meta := range [][2]string{
		{"dtb:uid", uid},
		{"dtb:depth", depth},
		{"dtb:totalPageCount", "0"},
		{"dtb:maxPageNumber", "0"},
	} {
		m := head.CreateElement("meta")
		m.CreateAttr("name", meta[0])
		m.CreateAttr("content", meta[1])
	}

	if title == "" {
		title = "Unknown"
	}
	root.CreateElement("docTitle").CreateElement("text").SetText(title)

	navMap := root.CreateElement("navMap")
	if firstSrc != "" {
		point := navMap.CreateElement("navPoint")
		point.CreateAttr("id", "navPoint-1")
		point.CreateAttr("playOrder", "1")
		point.CreateElement("navLabel").CreateElement("text").SetText("Start")
		point.CreateElement("content").CreateAttr("src", firstSrc)
	}

	doc.Indent(2)
	return doc.WriteToString()
}

// splitFragment splits a source path into the path and fragment identifier.
func splitFragment(src string) (path, fragment string) {
	path, fragment, _ = strings.Cut(src, "#")
	return path, fragment
}
