package css

import (
	"io"
	"strings"

	"github.com/tdewolff/parse/v2"
	csslex "github.com/tdewolff/parse/v2/css"
)

// ReferenceKind tells how a stylesheet refers to another resource.
type ReferenceKind int

const (
	// URLReference is a url(...) token, in a declaration or an @import.
	URLReference ReferenceKind = iota
	// ImportReference is the quoted string form of @import.
	ImportReference
)

// Reference is a path found in a stylesheet.
type Reference struct {
	Kind ReferenceKind
	Path string
}

// References returns every url() and @import target of a stylesheet in
// text order.
func References(text string) []Reference {
	var refs []Reference
	walkReferences(text, func(kind ReferenceKind, path string) (string, bool) {
		refs = append(refs, Reference{Kind: kind, Path: path})
		return "", false
	})
	return refs
}

// RewriteReferences calls fn for every url() and @import target and replaces
// the target when fn reports a change. All other bytes are kept as they are.
// The text is returned unchanged if it cannot be tokenized.
func RewriteReferences(text string, fn func(path string) (string, bool)) string {
	return walkReferences(text, func(_ ReferenceKind, path string) (string, bool) {
		return fn(path)
	})
}

func walkReferences(text string, fn func(kind ReferenceKind, path string) (string, bool)) string {
	lexer := csslex.NewLexer(parse.NewInputString(text))

	var b strings.Builder
	b.Grow(len(text))
	afterImport := false
	for {
		tt, data := lexer.Next()
		if tt == csslex.ErrorToken {
			break
		}
		out := string(data)
		switch tt {
		case csslex.URLToken:
			if path, quote, ok := urlTarget(out); ok {
				if replacement, changed := fn(URLReference, path); changed {
					out = "url(" + quote + replacement + quote + ")"
				}
			}
			afterImport = false
		case csslex.StringToken:
			if afterImport && len(out) >= 2 {
				quote := out[:1]
				if replacement, changed := fn(ImportReference, out[1:len(out)-1]); changed {
					out = quote + replacement + quote
				}
			}
			afterImport = false
		case csslex.AtKeywordToken:
			afterImport = strings.EqualFold(out, "@import")
		case csslex.WhitespaceToken, csslex.CommentToken:
		default:
			afterImport = false
		}
		b.WriteString(out)
	}
	if lexer.Err() != io.EOF {
		return text
	}
	return b.String()
}

// urlTarget extracts the path and its quote character from a url() token.
func urlTarget(token string) (path, quote string, ok bool) {
	open := strings.IndexByte(token, '(')
	if open < 0 || !strings.HasSuffix(token, ")") {
		return "", "", false
	}
	inner := strings.TrimSpace(token[open+1 : len(token)-1])
	if len(inner) >= 2 && (inner[0] == '"' || inner[0] == '\'') && inner[len(inner)-1] == inner[0] {
		return inner[1 : len(inner)-1], inner[:1], true
	}
	return inner, "", true
}
