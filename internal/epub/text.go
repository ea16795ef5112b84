package epub

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
)

var (
	utf8BOM       = []byte{0xEF, 0xBB, 0xBF}
	xmlEncodingRe = regexp.MustCompile(`^\s*<\?xml[^>]*?\bencoding\s*=\s*["']([^"']+)["']`)
)

// DecodeText converts the raw bytes of a text resource to UTF-8. The
// encoding comes from a byte order mark, the XML declaration, an HTML meta
// tag or, failing those, detection. A declared non UTF-8 encoding is
// rewritten to utf-8 so the text stays truthful after decoding.
func DecodeText(data []byte) (string, error) {
	if bytes.HasPrefix(data, utf8BOM) {
		return string(data[len(utf8BOM):]), nil
	}

	var (
		enc      encoding.Encoding
		declared string
	)
	if m := xmlEncodingRe.FindSubmatch(data); m != nil {
		declared = string(m[1])
		enc, _ = charset.Lookup(declared)
	}
	if enc == nil {
		enc, _, _ = charset.DetermineEncoding(data, "")
	}

	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("failed to decode text: %w", err)
	}
	text := strings.TrimPrefix(string(out), "\ufeff")

	if declared != "" && !strings.EqualFold(declared, "utf-8") {
		if loc := xmlEncodingRe.FindStringSubmatchIndex(text); loc != nil {
			text = text[:loc[2]] + "utf-8" + text[loc[3]:]
		}
	}
	return text, nil
}
