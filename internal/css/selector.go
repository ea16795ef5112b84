package css

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Selector is one member of a parsed rule header.
// Positions are byte offsets into the text handed to Parse.
type Selector struct {
	OriginalText string
	ElementNames []string
	ClassNames   []string
	Line         int
	Position     int
	IsGroup      bool
	OpenBrace    int
	CloseBrace   int
}

// HasElement reports whether name is one of the selector's element names.
func (s *Selector) HasElement(name string) bool {
	for _, e := range s.ElementNames {
		if e == name {
			return true
		}
	}
	return false
}

// HasClass reports whether name is one of the selector's class names.
func (s *Selector) HasClass(name string) bool {
	for _, c := range s.ClassNames {
		if c == name {
			return true
		}
	}
	return false
}

var (
	styleOpenRe  = regexp.MustCompile(`(?i)<\s*style(?:\s[^>]*)?>`)
	styleCloseRe = regexp.MustCompile(`(?i)<\s*/\s*style\s*>`)
	commentRe    = regexp.MustCompile(`(?s)/\*.*?\*/`)

	attributeSelectorRe = regexp.MustCompile(`\[[^\]]*\]`)
	idSelectorRe        = regexp.MustCompile(`#[^\s.]+`)
	nonNameRe           = regexp.MustCompile(`[^A-Za-z0-9_\-.]+`)
)

// Parse scans text for rule headers. When isStylesheet is false the text is
// treated as markup and only the contents of its <style> blocks are scanned.
// Malformed regions are skipped.
func Parse(text string, isStylesheet bool) []*Selector {
	if isStylesheet {
		return parseSelectors(text, 0, 0)
	}

	var selectors []*Selector
	offset := 0
	for {
		start, end, ok := findStyleBlock(text, offset)
		if !ok {
			break
		}
		line := strings.Count(text[:start], "\n")
		selectors = append(selectors, parseSelectors(text[start:end], line, start)...)
		offset = end
	}
	return selectors
}

// findStyleBlock locates the contents of the next <style> block at or after offset.
func findStyleBlock(text string, offset int) (start, end int, ok bool) {
	if offset >= len(text) {
		return 0, 0, false
	}
	loc := styleOpenRe.FindStringIndex(text[offset:])
	if loc == nil {
		return 0, 0, false
	}
	start = offset + loc[1]
	closeLoc := styleCloseRe.FindStringIndex(text[start:])
	if closeLoc == nil {
		return 0, 0, false
	}
	return start, start + closeLoc[0], true
}

// blankComments replaces every character of each block comment with a space,
// keeping line breaks so that offsets and line numbers stay valid.
func blankComments(text string) string {
	return commentRe.ReplaceAllStringFunc(text, func(comment string) string {
		var b strings.Builder
		b.Grow(len(comment))
		for i := 0; i < len(comment); i++ {
			if comment[i] == '\n' || comment[i] == '\r' {
				b.WriteByte(comment[i])
			} else {
				b.WriteByte(' ')
			}
		}
		return b.String()
	})
}

func parseSelectors(text string, offsetLines, offsetPos int) []*Selector {
	search := blankComments(text)

	var selectors []*Selector
	pos := 0
	for pos < len(search) {
		rel := strings.IndexByte(search[pos:], '{')
		if rel < 0 {
			break
		}
		open := pos + rel

		// Walk back to the nearest line containing text.
		haveText := false
		p := open - 1
		for p >= 0 && (search[p] != '\n' || !haveText) {
			r, size := utf8.DecodeLastRuneInString(search[:p+1])
			if unicode.IsLetter(r) {
				haveText = true
			}
			p -= size
		}
		p++
		if !haveText {
			pos = open + 1
			continue
		}

		closeRel := strings.IndexByte(search[open+1:], '}')
		if closeRel < 0 {
			break
		}
		closeBrace := open + 1 + closeRel

		for p < open && unicode.IsSpace(rune(search[p])) {
			p++
		}
		line := strings.Count(search[:p+1], "\n") + 1

		selectorText := strings.TrimSpace(search[p:open])
		members := splitNonEmpty(selectorText, ",")
		for _, member := range members {
			sel := &Selector{
				OriginalText: selectorText,
				Line:         line + offsetLines,
				Position:     p + offsetPos,
				IsGroup:      len(members) > 1,
				OpenBrace:    open + offsetPos,
				CloseBrace:   closeBrace + offsetPos,
			}
			decompose(sel, member)
			selectors = append(selectors, sel)
		}
		pos = open + 1
	}
	return selectors
}

// decompose fills element and class names from one selector member.
func decompose(sel *Selector, member string) {
	member = attributeSelectorRe.ReplaceAllString(member, "")
	member = idSelectorRe.ReplaceAllString(member, "")
	member = nonNameRe.ReplaceAllString(member, " ")

	for _, token := range strings.Fields(member) {
		if !strings.Contains(token, ".") {
			sel.ElementNames = append(sel.ElementNames, token)
			continue
		}
		parts := strings.Split(token, ".")
		if parts[0] != "" {
			sel.ElementNames = append(sel.ElementNames, parts[0])
		}
		for _, class := range parts[1:] {
			if class != "" {
				sel.ClassNames = append(sel.ClassNames, class)
			}
		}
	}
}

func splitNonEmpty(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
