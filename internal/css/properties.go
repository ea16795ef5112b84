package css

import (
	"strings"
)

// Property is one declaration inside a rule. HasValue is false for content
// that could not be split into name and value; Name then holds it verbatim.
type Property struct {
	Name     string
	Value    string
	HasValue bool
}

// Properties returns the declarations between the braces at openBrace and
// closeBrace.
func Properties(text string, openBrace, closeBrace int) []Property {
	if openBrace < 0 || closeBrace <= openBrace || closeBrace > len(text) {
		return nil
	}

	var props []Property
	for _, piece := range strings.Split(text[openBrace+1:closeBrace], ";") {
		if strings.TrimSpace(piece) == "" {
			continue
		}
		parts := splitNonEmpty(piece, ":")
		if len(parts) != 2 {
			props = append(props, Property{Name: strings.TrimSpace(piece)})
			continue
		}
		props = append(props, Property{
			Name:     strings.TrimSpace(parts[0]),
			Value:    strings.TrimSpace(parts[1]),
			HasValue: true,
		})
	}
	return props
}

// FormatProperties renders props for placement between a rule's braces.
// indent is the indentation of the rule's selector.
func FormatProperties(props []Property, multiLine bool, indent int) string {
	pad := strings.Repeat(" ", indent)
	if len(props) == 0 {
		if multiLine {
			return "\n" + pad
		}
		return ""
	}

	values := make([]string, 0, len(props))
	for _, p := range props {
		if p.HasValue {
			values = append(values, p.Name+": "+p.Value)
		} else {
			values = append(values, p.Name)
		}
	}

	if multiLine {
		tab := strings.Repeat(" ", tabWidth+indent)
		return "\n" + tab + strings.Join(values, ";\n"+tab) + ";\n" + pad
	}
	return " " + strings.Join(values, "; ") + "; "
}

// ApplyPropertyChange toggles a property: a declaration with the same name
// and value is removed, one with another value gets the new value, and a
// missing one is appended.
func ApplyPropertyChange(props []Property, name, value string) []Property {
	out := make([]Property, 0, len(props)+1)
	found := false
	for _, p := range props {
		if strings.EqualFold(p.Name, name) {
			found = true
			if p.HasValue && strings.EqualFold(p.Value, value) {
				continue
			}
			p.Value = value
			p.HasValue = true
		}
		out = append(out, p)
	}
	if !found {
		out = append(out, Property{Name: name, Value: value, HasValue: true})
	}
	return out
}

// FormatStyleAt toggles a property on the rule around pos and returns the
// new text. The rule must either enclose pos or start on pos's line (or on
// the line after it, for rules whose brace sits on its own line). A rule
// written on a single line stays on a single line.
func FormatStyleAt(text string, pos int, name, value string) (string, bool) {
	if name == "" || value == "" || pos < 0 || pos > len(text) {
		return text, false
	}

	endRel := strings.IndexByte(text[pos:], '}')
	if endRel < 0 {
		return text, false
	}
	end := pos + endRel

	lineStart := strings.LastIndexByte(text[:pos], '\n') + 1
	lineEnd := len(text)
	if i := strings.IndexByte(text[pos:], '\n'); i >= 0 {
		lineEnd = pos + i
	}

	start := strings.LastIndexByte(text[:min(pos+1, len(text))], '{')
	if start < 0 || strings.LastIndexByte(text[:pos], '}') > start {
		// The previous brace belongs to another rule.
		line := text[lineStart:lineEnd]
		if i := strings.IndexByte(line, '{'); i >= 0 {
			start = lineStart + i
		} else {
			if strings.TrimSpace(line) == "" || lineEnd >= len(text) {
				return text, false
			}
			nextStart := lineEnd + 1
			nextEnd := len(text)
			if i := strings.IndexByte(text[nextStart:], '\n'); i >= 0 {
				nextEnd = nextStart + i
			}
			next := text[nextStart:nextEnd]
			if !strings.HasPrefix(strings.TrimSpace(next), "{") {
				return text, false
			}
			start = nextStart + strings.IndexByte(next, '{')
		}
	}
	if start > end {
		return text, false
	}

	props := ApplyPropertyChange(Properties(text, start, end), name, value)
	singleLine := lineStart < start && end <= lineEnd
	return text[:start+1] + FormatProperties(props, !singleLine, 0) + text[end:], true
}
