package assemble

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ParseFragment turns translated markup into a node list. Strict XML is
// tried first, then the same input with bare ampersands escaped, then a
// lenient HTML parse. An error means all three failed.
func ParseFragment(markup string) ([]*html.Node, error) {
	if nodes, err := parseXMLFragment(markup); err == nil {
		return nodes, nil
	}
	if nodes, err := parseXMLFragment(escapeBareAmpersands(markup)); err == nil {
		return nodes, nil
	}
	return parseHTMLFragment(markup)
}

// parseXMLFragment builds html nodes from a strict XML token walk over the
// fragment wrapped in a synthetic root.
func parseXMLFragment(markup string) ([]*html.Node, error) {
	dec := xml.NewDecoder(strings.NewReader("<frag>" + markup + "</frag>"))
	dec.Strict = true
	dec.Entity = xml.HTMLEntity

	var root *html.Node
	var stack []*html.Node

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("strict parse failed: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			n := &html.Node{
				Type:     html.ElementNode,
				Data:     t.Name.Local,
				DataAtom: atom.Lookup([]byte(t.Name.Local)),
			}
			for _, a := range t.Attr {
				key := a.Name.Local
				if a.Name.Space == "xml" {
					key = "xml:" + a.Name.Local
				}
				n.Attr = append(n.Attr, html.Attribute{Key: key, Val: a.Value})
			}
			if len(stack) == 0 {
				root = n
			} else {
				stack[len(stack)-1].AppendChild(n)
			}
			stack = append(stack, n)
		case xml.EndElement:
			if len(stack) == 0 {
				return nil, fmt.Errorf("unbalanced end element %s", t.Name.Local)
			}
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].AppendChild(&html.Node{Type: html.TextNode, Data: string(t)})
			}
		}
	}

	if root == nil || len(stack) != 0 {
		return nil, fmt.Errorf("fragment is not well-formed")
	}
	return detachChildren(root), nil
}

func parseHTMLFragment(markup string) ([]*html.Node, error) {
	context := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(markup), context)
	if err != nil {
		return nil, fmt.Errorf("lenient parse failed: %w", err)
	}
	return nodes, nil
}

func detachChildren(parent *html.Node) []*html.Node {
	var children []*html.Node
	for c := parent.FirstChild; c != nil; c = c.NextSibling {
		children = append(children, c)
	}
	for _, c := range children {
		parent.RemoveChild(c)
	}
	return children
}

// escapeBareAmpersands rewrites every & that does not start a character
// reference to &amp;.
func escapeBareAmpersands(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '&' {
			b.WriteByte(s[i])
			continue
		}
		if isEntityStart(s[i+1:]) {
			b.WriteByte('&')
		} else {
			b.WriteString("&amp;")
		}
	}
	return b.String()
}

// isEntityStart reports whether rest begins with the tail of a valid
// character reference (named, decimal or hex), terminated by a semicolon.
func isEntityStart(rest string) bool {
	end := strings.IndexByte(rest, ';')
	if end <= 0 || end > 32 {
		return false
	}
	body := rest[:end]
	if strings.HasPrefix(body, "#x") || strings.HasPrefix(body, "#X") {
		return len(body) > 2 && isHex(body[2:])
	}
	if strings.HasPrefix(body, "#") {
		return len(body) > 1 && isDigits(body[1:])
	}
	for i := 0; i < len(body); i++ {
		c := body[i]
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || i > 0 && c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F') {
			return false
		}
	}
	return true
}
