package assemble

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/html"

	"github.com/onepurp/Mutarjim-Pro/internal/config"
	"github.com/onepurp/Mutarjim-Pro/internal/epub"
	"github.com/onepurp/Mutarjim-Pro/internal/segment"
	"github.com/onepurp/Mutarjim-Pro/internal/store"
)

// Options carries the target language and reading direction for export.
type Options struct {
	Language  string
	Direction string
}

// Assembler re-walks the original content documents with the segmentation
// rules used at import time and splices translated markup back in at the
// same boundaries.
type Assembler struct {
	logger *logrus.Logger
}

func NewAssembler(logger *logrus.Logger) *Assembler {
	return &Assembler{logger: logger}
}

// Assemble produces a fresh archive from the project's immutable source
// bytes. Untranslated segments keep their original markup; the export
// always completes.
func (a *Assembler) Assemble(p *store.Project, segments []segment.Segment, opts Options) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(p.SourceBytes), int64(len(p.SourceBytes)))
	if err != nil {
		return nil, fmt.Errorf("failed to open source archive: %w", err)
	}

	opfPath, err := epub.LocateOpf(zr)
	if err != nil {
		return nil, err
	}
	opfData, err := epub.ReadArchiveFile(zr, opfPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read package document: %w", err)
	}

	coverPath := ""
	if len(p.CoverBytes) > 0 {
		coverPath = epub.FindCoverPath(opfData, opfPath)
	}

	byDoc := make(map[string][]segment.Segment)
	for _, seg := range segments {
		byDoc[seg.DocPath] = append(byDoc[seg.DocPath], seg)
	}

	var out bytes.Buffer
	zw := zip.NewWriter(&out)

	// The mimetype entry comes first and uncompressed.
	w, err := zw.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
	if err != nil {
		return nil, fmt.Errorf("failed to create mimetype entry: %w", err)
	}
	if _, err := w.Write([]byte("application/epub+zip")); err != nil {
		return nil, fmt.Errorf("failed to write mimetype: %w", err)
	}

	for _, f := range zr.File {
		if f.Name == "mimetype" {
			continue
		}

		data, err := readZipEntry(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read archive entry %s: %w", f.Name, err)
		}

		switch {
		case f.Name == opfPath:
			data, err = epub.RewriteOpf(data, opts.Language, opts.Direction, p.TranslatedTitle)
			if err != nil {
				return nil, err
			}
		case coverPath != "" && f.Name == coverPath:
			data = p.CoverBytes
		default:
			if docSegments, ok := byDoc[f.Name]; ok {
				data, err = a.transformDocument(f.Name, data, docSegments, p, opts)
				if err != nil {
					return nil, err
				}
			}
		}

		ew, err := zw.Create(f.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to create archive entry %s: %w", f.Name, err)
		}
		if _, err := ew.Write(data); err != nil {
			return nil, fmt.Errorf("failed to write archive entry %s: %w", f.Name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalise archive: %w", err)
	}
	return out.Bytes(), nil
}

func readZipEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// patch is one planned splice: insert nodes before the first captured node,
// then remove every captured node. Planning first and applying second keeps
// the walk from mutating the tree under its own feet.
type patch struct {
	parent *html.Node
	before *html.Node
	insert []*html.Node
	remove []*html.Node
}

func (a *Assembler) transformDocument(docPath string, markup []byte, segments []segment.Segment, p *store.Project, opts Options) ([]byte, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("failed to parse content document %s: %w", docPath, err)
	}

	doc.Find("html").SetAttr("lang", opts.Language).SetAttr("xml:lang", opts.Language)
	body := doc.Find("body")
	body.SetAttr("dir", opts.Direction).SetAttr("lang", opts.Language)

	a.injectStylesheet(doc, p, opts)

	if len(body.Nodes) == 0 {
		rendered, herr := doc.Html()
		if herr != nil {
			return nil, fmt.Errorf("failed to serialise document %s: %w", docPath, herr)
		}
		return []byte(rendered), nil
	}

	byIndex := make(map[int]segment.Segment, len(segments))
	for _, seg := range segments {
		byIndex[seg.BatchIndex] = seg
	}

	limit := p.BatchCharLimit
	if limit <= 0 {
		limit = segment.DefaultBatchCharLimit
	}

	var patches []patch
	batchIdx := 0
	segment.Walk(body.Nodes[0], p.SchemaVersion, limit, func(nodes []*html.Node) {
		idx := batchIdx
		batchIdx++

		seg, ok := byIndex[idx]
		if !ok || seg.Status != segment.StatusTranslated {
			return
		}

		inserted, perr := ParseFragment(seg.TranslatedHTML)
		if perr != nil {
			a.logger.Warnf("Leaving segment %s untranslated: %v", seg.ID, perr)
			return
		}
		for _, n := range inserted {
			if n.Type == html.ElementNode {
				setAttr(n, "dir", opts.Direction)
			}
		}

		patches = append(patches, patch{
			parent: nodes[0].Parent,
			before: nodes[0],
			insert: inserted,
			remove: nodes,
		})
	})

	for _, pt := range patches {
		for _, n := range pt.insert {
			pt.parent.InsertBefore(n, pt.before)
		}
		for _, n := range pt.remove {
			if isProtected(n) {
				continue
			}
			if n.Parent != nil {
				n.Parent.RemoveChild(n)
			}
		}
	}

	rendered, err := doc.Html()
	if err != nil {
		return nil, fmt.Errorf("failed to serialise document %s: %w", docPath, err)
	}
	return []byte(rendered), nil
}

// isProtected guards the structural skeleton from removal.
func isProtected(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	switch n.Data {
	case "html", "head", "body":
		return true
	}
	return false
}

func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// blockSelectors is the broad selector set used when alignment is forced.
const blockSelectors = "p, div, li, td, th, blockquote, h1, h2, h3, h4, h5, h6"

func (a *Assembler) injectStylesheet(doc *goquery.Document, p *store.Project, opts Options) {
	alignment := p.TextAlignment
	if alignment == "" {
		alignment = config.AlignRight
	}

	var css strings.Builder
	fmt.Fprintf(&css, "html, body { direction: %s; text-align: %s; }\n", opts.Direction, alignment)
	if p.ForceAlignment {
		fmt.Fprintf(&css, "%s { direction: %s !important; text-align: %s !important; }\n",
			blockSelectors, opts.Direction, alignment)
	}

	style := fmt.Sprintf("<style type=\"text/css\">\n%s</style>", css.String())

	head := doc.Find("head")
	if head.Length() == 0 {
		doc.Find("html").PrependHtml("<head>" + style + "</head>")
		return
	}
	head.PrependHtml(style)
}
