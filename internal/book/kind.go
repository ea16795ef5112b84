package book

import (
	"mime"
	"path/filepath"
	"strings"
)

// Kind is the type of content a resource holds.
type Kind int

const (
	KindMisc Kind = iota
	KindHTML
	KindCSS
	KindImage
	KindSVG
	KindFont
	KindNCX
	KindOPF
)

func (k Kind) String() string {
	switch k {
	case KindHTML:
		return "html"
	case KindCSS:
		return "css"
	case KindImage:
		return "image"
	case KindSVG:
		return "svg"
	case KindFont:
		return "font"
	case KindNCX:
		return "ncx"
	case KindOPF:
		return "opf"
	default:
		return "misc"
	}
}

// IsText reports whether resources of the kind keep their content as text.
func (k Kind) IsText() bool {
	switch k {
	case KindHTML, KindCSS, KindSVG, KindNCX, KindOPF:
		return true
	}
	return false
}

// Folder names under the content folder.
const (
	TextFolder   = "Text"
	StyleFolder  = "Styles"
	ImageFolder  = "Images"
	FontFolder   = "Fonts"
	MiscFolder   = "Misc"
	ContentDir   = "OEBPS"
	OPFFileName  = "content.opf"
	NCXFileName  = "toc.ncx"
	MimetypeFile = "mimetype"
)

// folder returns the folder under the content folder holding the kind. The
// package and navigation documents sit in the content folder itself.
func (k Kind) folder() string {
	switch k {
	case KindHTML:
		return TextFolder
	case KindCSS:
		return StyleFolder
	case KindImage, KindSVG:
		return ImageFolder
	case KindFont:
		return FontFolder
	case KindNCX, KindOPF:
		return ""
	default:
		return MiscFolder
	}
}

var kindsByExt = map[string]Kind{
	".xhtml": KindHTML,
	".html":  KindHTML,
	".htm":   KindHTML,
	".css":   KindCSS,
	".svg":   KindSVG,
	".jpg":   KindImage,
	".jpeg":  KindImage,
	".png":   KindImage,
	".gif":   KindImage,
	".bmp":   KindImage,
	".tif":   KindImage,
	".tiff":  KindImage,
	".webp":  KindImage,
	".ttf":   KindFont,
	".otf":   KindFont,
	".woff":  KindFont,
	".woff2": KindFont,
	".ncx":   KindNCX,
	".opf":   KindOPF,
}

var mediaTypes = map[Kind]string{
	KindHTML: "application/xhtml+xml",
	KindCSS:  "text/css",
	KindSVG:  "image/svg+xml",
	KindNCX:  "application/x-dtbncx+xml",
	KindOPF:  "application/oebps-package+xml",
}

// KindOf returns the kind of a file. The extension decides; the media type
// is consulted for files whose extension is unknown.
func KindOf(filename, mediaType string) Kind {
	if k, ok := kindsByExt[strings.ToLower(filepath.Ext(filename))]; ok {
		return k
	}
	switch {
	case mediaType == "application/xhtml+xml" || mediaType == "text/html":
		return KindHTML
	case mediaType == "text/css":
		return KindCSS
	case mediaType == "image/svg+xml":
		return KindSVG
	case strings.HasPrefix(mediaType, "image/"):
		return KindImage
	case strings.HasPrefix(mediaType, "font/"), strings.Contains(mediaType, "font"):
		return KindFont
	}
	return KindMisc
}

// MediaTypeOf returns the media type a new resource with the name gets.
func MediaTypeOf(filename string) string {
	kind := KindOf(filename, "")
	if mt, ok := mediaTypes[kind]; ok {
		return mt
	}
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".jpg":
		return "image/jpeg"
	case ".otf":
		return "application/vnd.ms-opentype"
	case ".ttf":
		return "application/x-font-truetype"
	}
	if mt := mime.TypeByExtension(ext); mt != "" {
		mt, _, _ = strings.Cut(mt, ";")
		return mt
	}
	return "application/octet-stream"
}
