package css

import (
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// tabWidth is the indentation step used when rendering properties and
// the indentation of selectors inside inline style blocks.
const tabWidth = 4

// lineMarker is a temporary placeholder for the blank line placed after each
// rule in multi-line mode. It survives the blank-line collapse pass.
const lineMarker = "[EPUBEDIT_NEWLINE]"

var (
	blankLinesRe = regexp.MustCompile(`\n{2,}`)
	spaceRunRe   = regexp.MustCompile(` {2,}`)
)

// Info holds the selectors of one stylesheet or one markup document.
// Selectors are recomputed from the text on every New, never maintained.
type Info struct {
	text         string
	isStylesheet bool
	selectors    []*Selector
	log          *zap.Logger
}

// New parses text and returns its selector model.
func New(text string, isStylesheet bool, log *zap.Logger) *Info {
	if log == nil {
		log = zap.NewNop()
	}
	info := &Info{
		text:         text,
		isStylesheet: isStylesheet,
		selectors:    Parse(text, isStylesheet),
		log:          log.Named("css"),
	}
	info.log.Debug("Parsed selectors",
		zap.Bool("stylesheet", isStylesheet),
		zap.Int("count", len(info.selectors)))
	return info
}

// Text returns the text the model was built from.
func (i *Info) Text() string {
	return i.text
}

// Selectors returns all selectors in text order.
func (i *Info) Selectors() []*Selector {
	return i.selectors
}

// Properties returns the properties declared between the braces of sel.
func (i *Info) Properties(sel *Selector) []Property {
	return Properties(i.text, sel.OpenBrace, sel.CloseBrace)
}

// ClassSelectors returns the selectors having at least one class name. A
// non-empty filter restricts the result to selectors containing that class.
func (i *Info) ClassSelectors(filter string) []*Selector {
	var out []*Selector
	for _, sel := range i.selectors {
		if len(sel.ClassNames) == 0 {
			continue
		}
		if filter == "" || sel.HasClass(filter) {
			out = append(out, sel)
		}
	}
	return out
}

// FindSelectorFor returns the selector best matching an element with the
// given class, or nil.
func (i *Info) FindSelectorFor(elementName, className string) *Selector {
	if className != "" {
		classSelectors := i.ClassSelectors(className)
		for _, sel := range classSelectors {
			if sel.HasElement(elementName) {
				return sel
			}
		}
		if len(classSelectors) > 0 {
			return classSelectors[0]
		}
		return nil
	}

	for _, sel := range i.selectors {
		if sel.HasElement(elementName) && len(sel.ClassNames) == 0 {
			return sel
		}
	}
	return nil
}

// Reformat rewrites every rule of the text in a normalized layout.
// Rules are rewritten from last to first so earlier offsets stay valid.
// Rules holding nested blocks, such as @media, are kept as they are
// together with every rule inside them.
func (i *Info) Reformat(multiLine bool) string {
	text := i.text
	indent := 0
	if !i.isStylesheet {
		indent = tabWidth
	}

	nested := i.nestedBlocks()
	lastLine := -1
	for n := len(i.selectors) - 1; n >= 0; n-- {
		sel := i.selectors[n]
		if insideAny(nested, sel.OpenBrace) {
			continue
		}
		if sel.IsGroup && sel.Line == lastLine {
			continue
		}
		lastLine = sel.Line

		if multiLine {
			text = text[:sel.CloseBrace+1] + lineMarker + text[sel.CloseBrace+1:]
		}

		props := Properties(i.text, sel.OpenBrace, sel.CloseBrace)
		text = text[:sel.OpenBrace+1] + FormatProperties(props, multiLine, indent) + text[sel.CloseBrace:]

		// Only whitespace in the header is touched since it was never fully parsed.
		header := i.text[sel.Position:sel.OpenBrace]
		header = strings.ReplaceAll(header, ",", ", ")
		header = spaceRunRe.ReplaceAllString(header, " ")
		text = text[:sel.Position] + strings.TrimSpace(header) + " " + text[sel.OpenBrace:]

		if sel.Position > 0 {
			p := sel.Position - 1
			for p >= 0 && (text[p] == ' ' || text[p] == '\t') {
				p--
			}
			text = text[:p+1] + strings.Repeat(" ", indent) + text[sel.Position:]
		}
	}

	if i.isStylesheet {
		text = blankLinesRe.ReplaceAllString(text, "\n")
	} else {
		offset := 0
		for {
			start, end, ok := findStyleBlock(text, offset)
			if !ok {
				break
			}
			block := blankLinesRe.ReplaceAllString(text[start:end], "\n")
			text = text[:start] + block + text[end:]
			offset = start + len(block)
		}
	}

	text = strings.ReplaceAll(text, lineMarker, "\n")
	return strings.TrimSpace(text)
}

// nestedBlocks returns the spans, from header to matching close brace, of
// the rules whose body holds another block.
func (i *Info) nestedBlocks() [][2]int {
	search := blankComments(i.text)
	var spans [][2]int
	for _, sel := range i.selectors {
		if !strings.Contains(search[sel.OpenBrace+1:sel.CloseBrace], "{") {
			continue
		}
		end, depth := len(search), 0
		for p := sel.OpenBrace; p < len(search); p++ {
			switch search[p] {
			case '{':
				depth++
			case '}':
				depth--
			}
			if depth == 0 {
				end = p + 1
				break
			}
		}
		spans = append(spans, [2]int{sel.Position, end})
	}
	return spans
}

func insideAny(spans [][2]int, pos int) bool {
	for _, s := range spans {
		if pos >= s[0] && pos < s[1] {
			return true
		}
	}
	return false
}
