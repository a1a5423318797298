package epub

import (
	"encoding/xml"
	"fmt"
	"regexp"
	"strings"
)

// RewriteOpf updates the package document in place for export: the language
// text, the spine's page-progression-direction attribute, and the metadata
// title when a translated one was supplied. Everything else — <meta>
// elements, repeated dc: entries, manifest, guide — passes through
// byte-for-byte.
func RewriteOpf(opfData []byte, lang, direction, translatedTitle string) ([]byte, error) {
	var pkg Package
	if err := xml.Unmarshal(opfData, &pkg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparsableOpf, err)
	}

	doc := string(opfData)
	doc = setMetadataText(doc, "language", lang)
	if translatedTitle != "" {
		doc = setMetadataText(doc, "title", escapeXML(translatedTitle))
	}
	doc = setSpineDirection(doc, direction)
	return []byte(doc), nil
}

// prefix matches an optional XML namespace prefix on an element name.
const prefix = `(?:[A-Za-z0-9._-]+:)?`

// setMetadataText replaces the text content of the first <dc:local> element,
// tolerating any namespace prefix. If the element is absent it is created at
// the end of the metadata block.
func setMetadataText(doc, local, text string) string {
	re := regexp.MustCompile(`(?s)(<` + prefix + local + `(?:\s[^>]*)?>)(.*?)(</` + prefix + local + `\s*>)`)
	if loc := re.FindStringSubmatchIndex(doc); loc != nil {
		return doc[:loc[3]] + text + doc[loc[6]:]
	}

	closeRe := regexp.MustCompile(`</` + prefix + `metadata\s*>`)
	if loc := closeRe.FindStringIndex(doc); loc != nil {
		element := `<dc:` + local + ` xmlns:dc="http://purl.org/dc/elements/1.1/">` + text + `</dc:` + local + ">\n  "
		return doc[:loc[0]] + element + doc[loc[0]:]
	}
	return doc
}

// setSpineDirection sets or inserts the page-progression-direction attribute
// on the spine's opening tag.
func setSpineDirection(doc, direction string) string {
	re := regexp.MustCompile(`<spine\b[^>]*>`)
	loc := re.FindStringIndex(doc)
	if loc == nil {
		return doc
	}

	tag := doc[loc[0]:loc[1]]
	attrRe := regexp.MustCompile(`page-progression-direction\s*=\s*"[^"]*"`)
	switch {
	case attrRe.MatchString(tag):
		tag = attrRe.ReplaceAllString(tag, `page-progression-direction="`+direction+`"`)
	case strings.HasSuffix(tag, "/>"):
		tag = strings.TrimSuffix(tag, "/>") + ` page-progression-direction="` + direction + `"/>`
	default:
		tag = strings.TrimSuffix(tag, ">") + ` page-progression-direction="` + direction + `">`
	}
	return doc[:loc[0]] + tag + doc[loc[1]:]
}

func escapeXML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	s = strings.ReplaceAll(s, "'", "&apos;")
	return s
}
