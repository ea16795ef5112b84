package epub

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/beevik/etree"

	"github.com/yuanying/epubedit/internal/xhtml"
)

// Media types of the package and navigation documents.
const (
	MediaTypeOPF = "application/oebps-package+xml"
	MediaTypeNCX = "application/x-dtbncx+xml"
)

// ContainerPath is the location of the container descriptor in an EPUB.
const ContainerPath = "META-INF/container.xml"

// LocateOPF reads the container descriptor of the book extracted to dir and
// returns the absolute path of the first package document it lists.
func LocateOPF(dir string) (string, error) {
	containerPath := filepath.Join(dir, filepath.FromSlash(ContainerPath))
	content, err := os.ReadFile(containerPath)
	if err != nil {
		return "", &PathError{Op: "read", Path: containerPath, Err: errors.Join(ErrCannotReadFile, err)}
	}

	doc, err := parseXML(containerPath, string(content), ErrParsingContainer)
	if err != nil {
		return "", err
	}

	for _, rootfile := range doc.FindElements("//rootfile") {
		if rootfile.SelectAttrValue("media-type", "") != MediaTypeOPF {
			continue
		}
		fullPath := rootfile.SelectAttrValue("full-path", "")
		if fullPath == "" {
			continue
		}
		return filepath.Join(dir, filepath.FromSlash(normalizePath(fullPath))), nil
	}
	return "", &PathError{Op: "locate", Path: containerPath, Err: ErrNoAppropriateOPF}
}

// parseXML parses text into a tree. Faults are reported as *XMLError
// wrapping sentinel.
func parseXML(path, text string, sentinel error) (*etree.Document, error) {
	if werr := xhtml.CheckWellFormed(text); werr != nil {
		return nil, &XMLError{Path: path, Line: werr.Line, Column: werr.Column, Message: werr.Message, Err: sentinel}
	}
	doc := xhtml.NewDocument()
	doc.WriteSettings.CanonicalEndTags = false
	if err := doc.ReadFromString(text); err != nil {
		return nil, &XMLError{Path: path, Message: err.Error(), Err: sentinel}
	}
	return doc, nil
}
