package segment

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/html"
)

// blockTags are candidate capture units.
var blockTags = map[string]bool{
	"p": true, "div": true, "blockquote": true, "li": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"section": true, "article": true, "aside": true, "main": true,
	"header": true, "footer": true,
}

// breakerTags flush the current batch and are never captured.
var breakerTags = map[string]bool{
	"img": true, "hr": true, "pre": true, "svg": true, "figure": true,
}

var headerTags = map[string]bool{
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

func isBlock(name string, version int) bool {
	if name == "table" {
		return version >= SchemaV2
	}
	return blockTags[name]
}

func isBreaker(name string, version int) bool {
	if name == "table" {
		return version < SchemaV2
	}
	return breakerTags[name]
}

// Segmenter cuts content documents into translation units bounded by a soft
// character budget, with boundaries aligned to block structure.
type Segmenter struct {
	logger    *logrus.Logger
	charLimit int
}

func NewSegmenter(logger *logrus.Logger, charLimit int) *Segmenter {
	if charLimit <= 0 {
		charLimit = DefaultBatchCharLimit
	}
	return &Segmenter{logger: logger, charLimit: charLimit}
}

// CharLimit returns the effective batch budget.
func (s *Segmenter) CharLimit() int {
	return s.charLimit
}

// SegmentDocument parses one content document and returns its segments in
// batch order, all PENDING with retry count 0.
func (s *Segmenter) SegmentDocument(docPath string, markup []byte, schemaVersion int) ([]Segment, error) {
	body, err := ParseBody(markup)
	if err != nil {
		return nil, fmt.Errorf("failed to parse content document %s: %w", docPath, err)
	}

	var segments []Segment
	Walk(body, schemaVersion, s.charLimit, func(nodes []*html.Node) {
		idx := len(segments)
		segments = append(segments, Segment{
			ID:           ID(docPath, idx),
			DocPath:      docPath,
			BatchIndex:   idx,
			OriginalHTML: RenderNodes(nodes),
			Status:       StatusPending,
		})
	})

	s.logger.Debugf("Segmented %s into %d segments (schema v%d)", docPath, len(segments), schemaVersion)
	return segments, nil
}

// ParseBody parses markup and returns the body node.
func ParseBody(markup []byte) (*html.Node, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(markup))
	if err != nil {
		return nil, err
	}
	body := doc.Find("body")
	if len(body.Nodes) == 0 {
		return nil, fmt.Errorf("document has no body")
	}
	return body.Nodes[0], nil
}

// Walk traverses body in document order applying the classification rules
// and invokes flush with each completed batch of captured nodes. The
// reassembler replays this walk with identical arguments to recover the
// exact batch boundaries chosen at segmentation time.
func Walk(body *html.Node, schemaVersion, charLimit int, flush func(nodes []*html.Node)) {
	w := &walker{
		version: schemaVersion,
		limit:   charLimit,
		emit:    flush,
	}
	w.visitChildren(body)
	w.flushBatch()
}

type walker struct {
	version  int
	limit    int
	emit     func([]*html.Node)
	batch    []*html.Node
	batchLen int
}

func (w *walker) flushBatch() {
	if len(w.batch) == 0 {
		return
	}
	w.emit(w.batch)
	w.batch = nil
	w.batchLen = 0
}

func (w *walker) capture(n *html.Node) {
	size := len(renderNode(n))
	if w.batchLen+size > w.limit && len(w.batch) > 0 {
		w.flushBatch()
	}
	w.batch = append(w.batch, n)
	w.batchLen += size
}

func (w *walker) visitChildren(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			if w.version >= SchemaV2 && strings.TrimSpace(c.Data) != "" {
				w.capture(c)
			}
		case html.ElementNode:
			name := c.Data
			switch {
			case isBreaker(name, w.version):
				w.flushBatch()
			case headerTags[name]:
				w.flushBatch()
				w.emit([]*html.Node{c})
			case w.isLeafBlock(c):
				w.capture(c)
			default:
				if c.FirstChild != nil {
					w.visitChildren(c)
				}
			}
		}
	}
}

// isLeafBlock reports whether c is a block element with meaningful text and
// no block or breaker element anywhere inside it.
func (w *walker) isLeafBlock(c *html.Node) bool {
	if !isBlock(c.Data, w.version) {
		return false
	}
	if strings.TrimSpace(textContent(c)) == "" {
		return false
	}
	return !containsStructural(c, w.version)
}

func containsStructural(n *html.Node, version int) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			if isBlock(c.Data, version) || isBreaker(c.Data, version) {
				return true
			}
			if containsStructural(c, version) {
				return true
			}
		}
	}
	return false
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func renderNode(n *html.Node) string {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return ""
	}
	return buf.String()
}

// RenderNodes serialises nodes in document order into one markup fragment.
func RenderNodes(nodes []*html.Node) string {
	var buf bytes.Buffer
	for _, n := range nodes {
		_ = html.Render(&buf, n)
	}
	return buf.String()
}
