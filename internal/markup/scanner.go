// Package markup is a lightweight regex tag scanner for caret-based edits on
// possibly invalid markup. It never fails; positions it cannot make sense of
// simply produce negative answers.
package markup

import (
	"regexp"
	"strings"
)

var (
	bodyStartRe    = regexp.MustCompile(`(?i)<\s*body(?:\s[^>]*)?>`)
	bodyEndRe      = regexp.MustCompile(`(?i)<\s*/\s*body\s*>`)
	tagRe          = regexp.MustCompile(`<[^>]+>`)
	closingTagRe   = regexp.MustCompile(`<\s*/[^>]*>`)
	closeTagNextRe = regexp.MustCompile(`</\s*[^>]+>`)
	tagNameRe      = regexp.MustCompile(`<\s*([^\s>]+)`)
	classAttrRe    = regexp.MustCompile(`\s+class\s*=\s*"([^"]+)"`)
)

// blockLevelTags end the backward search for unmatched tags.
var blockLevelTags = map[string]bool{
	"address": true, "blockquote": true, "center": true, "dir": true,
	"div": true, "dl": true, "fieldset": true, "form": true, "h1": true, "h2": true,
	"h3": true, "h4": true, "h5": true, "h6": true, "hr": true, "isindex": true,
	"menu": true, "noframes": true, "noscript": true, "ol": true, "p": true,
	"pre": true, "table": true, "ul": true,
}

// bodyBounds returns the end of the body start tag and the start of the body
// end tag, or ok=false when either is missing.
func bodyBounds(text string) (contentStart, contentEnd int, ok bool) {
	start := bodyStartRe.FindStringIndex(text)
	end := bodyEndRe.FindStringIndex(text)
	if start == nil || end == nil || end[0] < start[1] {
		return 0, 0, false
	}
	return start[1], end[0], true
}

// InBody reports whether pos lies between the body start and end tags.
func InBody(text string, pos int) bool {
	start, end, ok := bodyBounds(text)
	if !ok {
		return false
	}
	return pos >= start && pos <= end
}

// InTag reports whether pos lies inside any tag.
func InTag(text string, pos int) bool {
	return inMatch(tagRe, text, pos)
}

// InClosingTag reports whether pos lies inside a closing tag.
func InClosingTag(text string, pos int) bool {
	return inMatch(closingTagRe, text, pos)
}

// inMatch reports whether the last match of re starting before pos covers pos.
func inMatch(re *regexp.Regexp, text string, pos int) bool {
	if pos <= 0 || pos > len(text) {
		return false
	}
	start, end := lastMatchBefore(re, text, pos-1)
	return start >= 0 && pos >= start && pos < end
}

// lastMatchBefore returns the last match of re that starts at or before
// limit. The match may extend past limit.
func lastMatchBefore(re *regexp.Regexp, text string, limit int) (start, end int) {
	start, end = -1, -1
	for i := limit; i >= 0; i-- {
		if text[i] != '<' {
			continue
		}
		if loc := re.FindStringIndex(text[i:]); loc != nil && loc[0] == 0 {
			return i, i + loc[1]
		}
	}
	return start, end
}

// StyleElement is the element under the caret and the class to style it by.
type StyleElement struct {
	Name  string
	Class string
}

// StyleElementAt returns the tag name of the tag starting before pos and the
// class name under the caret. When the caret is not on a class name, the
// first class of the tag is used. Name is empty when no tag precedes pos.
func StyleElementAt(text string, pos int) StyleElement {
	var element StyleElement
	pos--
	if pos < 0 || pos >= len(text) {
		return element
	}

	nameStart, nameEnd := lastMatchBefore(tagNameRe, text, pos)
	if nameStart < 0 {
		return element
	}
	m := tagNameRe.FindStringSubmatch(text[nameStart:])
	element.Name = m[1]

	tagEnd := strings.IndexByte(text[nameEnd:], '>')
	if tagEnd < 0 {
		return element
	}
	tag := text[:nameEnd+tagEnd]

	loc := classAttrRe.FindStringSubmatchIndex(tag[nameEnd:])
	if loc == nil {
		return element
	}
	namesStart, namesEnd := nameEnd+loc[2], nameEnd+loc[3]

	if pos >= namesStart && pos < namesEnd {
		from := pos
		for from >= namesStart && tag[from] != ' ' {
			from--
		}
		from++
		to := from
		for to < namesEnd && tag[to] != ' ' {
			to++
		}
		element.Class = tag[from:to]
	}
	if element.Class == "" {
		if classes := strings.Fields(tag[namesStart:namesEnd]); len(classes) > 0 {
			element.Class = classes[0]
		}
	}
	return element
}

// UnmatchedTagsForBlock walks back from pos to the enclosing block-level tag
// and returns, in document order, the opening tags that are not closed
// before pos. Self-closing tags are ignored.
func UnmatchedTagsForBlock(text string, pos int) string {
	var opening []string
	closing := 0

	limit := pos - 1
	for limit >= 0 {
		start, end := lastMatchBefore(tagRe, text, min(limit, len(text)-1))
		if start < 0 {
			break
		}
		limit = start - 1

		full := text[start:end]
		if strings.HasSuffix(full, "/>") {
			continue
		}
		m := tagNameRe.FindStringSubmatch(full)
		if m == nil {
			continue
		}
		name := strings.ToLower(m[1])
		if name == "body" {
			break
		}

		if strings.HasPrefix(name, "/") {
			name = name[1:]
			closing++
		} else if closing > 0 {
			closing--
		} else {
			opening = append([]string{full}, opening...)
		}

		if blockLevelTags[name] {
			break
		}
	}
	return strings.Join(opening, "")
}

// SplitAt splits a document at pos. It returns the document for the content
// before pos and the remaining document. The remaining document reopens the
// tags left open at pos. ok is false when pos lies inside a tag, after the
// end of the body, or the document has no body.
func SplitAt(text string, pos int) (head, rest string, ok bool) {
	if pos < 0 || pos > len(text) || InTag(text, pos) {
		return "", text, false
	}
	bodyStart := bodyStartRe.FindStringIndex(text)
	bodyEnd := bodyEndRe.FindStringIndex(text)
	if bodyStart == nil || bodyEnd == nil || bodyEnd[0] < bodyStart[1] || pos > bodyEnd[0] {
		return "", text, false
	}
	tagStart, tagEnd := bodyStart[0], bodyStart[1]

	split := pos
	if split < tagEnd {
		split = tagEnd
	} else if closeTagNextRe.FindStringIndex(text[split:]) == nil {
		split = bodyEnd[0]
	}

	segment := text[tagStart:split]
	if split == tagEnd {
		segment += "\n<p>&nbsp;</p>"
	}
	head = text[:tagStart] + segment + "\n</body>\n</html>"

	var b strings.Builder
	b.WriteString(text[:tagEnd])
	if split < len(text) && text[split] == '<' {
		b.WriteByte('\n')
	}
	b.WriteString(UnmatchedTagsForBlock(text, split))
	b.WriteString(text[split:])
	return head, b.String(), true
}

// SplitMarker is the element that marks where a chapter should be split.
const SplitMarker = `<hr class="split_marker" />`

var splitMarkerRe = regexp.MustCompile(`(?i)<\s*hr\b[^>]*\bclass\s*=\s*["'][^"']*\bsplit_marker\b[^"']*["'][^>]*>(?:\s*<\s*/\s*hr\s*>)?`)

// SplitAtMarkers splits the body of a document at every split marker and
// returns one document per piece, each with the original head. The pieces
// may leave tags unbalanced. A document without markers is returned as the
// only piece.
func SplitAtMarkers(text string) []string {
	start, end, ok := bodyBounds(text)
	if !ok {
		return []string{text}
	}
	body := text[start:end]
	locs := splitMarkerRe.FindAllStringIndex(body, -1)
	if len(locs) == 0 {
		return []string{text}
	}

	prefix, suffix := text[:start], text[end:]
	chunks := make([]string, 0, len(locs)+1)
	prev := 0
	for _, loc := range locs {
		chunks = append(chunks, prefix+body[prev:loc[0]]+suffix)
		prev = loc[1]
	}
	return append(chunks, prefix+body[prev:]+suffix)
}
