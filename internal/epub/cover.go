package epub

import (
	"path/filepath"
	"strings"
)

// CoverInfo holds information about the detected cover image.
type CoverInfo struct {
	ManifestID      string
	Href            string
	DetectionMethod string // "properties", "meta", "guide", "filename"
}

// DetectCover finds the cover image of the package. Methods are tried in
// priority order:
//  1. properties="cover-image" (EPUB 3.0)
//  2. meta name="cover" (EPUB 2.0)
//  3. guide type="cover" matched to an image item
//  4. an image whose basename contains "cover", SVG excluded
//
// Returns nil if no cover image is found.
func (p *Package) DetectCover() *CoverInfo {
	found := func(item ManifestItem, method string) *CoverInfo {
		return &CoverInfo{ManifestID: item.ID, Href: item.Href, DetectionMethod: method}
	}

	for _, id := range p.ManifestOrder {
		item := p.Manifest[id]
		for _, prop := range item.Properties {
			if prop == "cover-image" {
				return found(item, "properties")
			}
		}
	}

	if item, ok := p.Manifest[p.Metadata.CoverID]; ok && p.Metadata.CoverID != "" {
		return found(item, "meta")
	}

	for _, ref := range p.Guide {
		if ref.Type != "cover" {
			continue
		}
		for _, id := range p.ManifestOrder {
			item := p.Manifest[id]
			if isImageMediaType(item.MediaType) && item.Href == ref.Href {
				return found(item, "guide")
			}
		}
	}

	for _, id := range p.ManifestOrder {
		item := p.Manifest[id]
		if !isImageMediaType(item.MediaType) {
			continue
		}
		if strings.Contains(strings.ToLower(filepath.Base(item.Href)), "cover") {
			return found(item, "filename")
		}
	}
	return nil
}

// isImageMediaType checks if a media type is a raster image (SVG excluded).
func isImageMediaType(mediaType string) bool {
	if mediaType == "image/svg+xml" {
		return false
	}
	return strings.HasPrefix(mediaType, "image/")
}
