package epub

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/sirupsen/logrus"
)

// Import failures. All are fatal.
var (
	ErrMissingContainer = errors.New("epub: missing META-INF/container.xml")
	ErrMissingOpf       = errors.New("epub: missing package document")
	ErrUnparsableOpf    = errors.New("epub: unparsable package document")
	ErrEmptySpine       = errors.New("epub: empty spine")
)

const containerPath = "META-INF/container.xml"

// Reader opens EPUB archives from raw bytes. The archive is never extracted
// to disk; the original bytes stay authoritative for the whole project.
type Reader struct {
	logger *logrus.Logger
}

func NewReader(logger *logrus.Logger) *Reader {
	return &Reader{logger: logger}
}

// Open parses the archive and returns project metadata together with the
// ordered content documents referenced by the spine.
func (r *Reader) Open(data []byte) (*Book, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}

	opfPath, err := LocateOpf(zr)
	if err != nil {
		return nil, err
	}

	opfData, err := ReadArchiveFile(zr, opfPath)
	if err != nil {
		return nil, ErrMissingOpf
	}

	var pkg Package
	if err := xml.Unmarshal(opfData, &pkg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparsableOpf, err)
	}

	book := &Book{
		Title:         strings.TrimSpace(pkg.Metadata.Title),
		Author:        strings.TrimSpace(pkg.Metadata.Creator),
		OpfPath:       opfPath,
		SchemaVersion: 2,
	}

	opfDir := path.Dir(opfPath)

	if coverHref := findCoverHref(&pkg); coverHref != "" {
		coverPath := resolveHref(opfDir, coverHref)
		if coverBytes, err := ReadArchiveFile(zr, coverPath); err == nil {
			book.CoverPath = coverPath
			book.CoverBytes = coverBytes
		} else {
			r.logger.Warnf("Cover item %s not readable: %v", coverPath, err)
		}
	}

	itemByID := make(map[string]Item, len(pkg.Manifest.Items))
	for _, item := range pkg.Manifest.Items {
		itemByID[item.ID] = item
	}

	for _, ref := range pkg.Spine.ItemRefs {
		item, ok := itemByID[ref.IDRef]
		if !ok {
			r.logger.Warnf("Spine itemref %s not found in manifest", ref.IDRef)
			continue
		}
		if !isTextContent(item.MediaType) {
			continue
		}
		book.Documents = append(book.Documents, DocumentRef{
			Path: resolveHref(opfDir, item.Href),
			Href: item.Href,
		})
	}

	if len(book.Documents) == 0 {
		return nil, ErrEmptySpine
	}

	r.logger.Debugf("Opened EPUB %q with %d content documents", book.Title, len(book.Documents))
	return book, nil
}

// LocateOpf reads the container manifest and returns the package document
// path named by its first rootfile.
func LocateOpf(zr *zip.Reader) (string, error) {
	data, err := ReadArchiveFile(zr, containerPath)
	if err != nil {
		return "", ErrMissingContainer
	}

	var container Container
	if err := xml.Unmarshal(data, &container); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMissingOpf, err)
	}
	if len(container.Rootfiles) == 0 || container.Rootfiles[0].FullPath == "" {
		return "", ErrMissingOpf
	}

	return container.Rootfiles[0].FullPath, nil
}

// findCoverHref applies the cover recognition rule shared with the
// reassembler: a manifest item whose properties attribute carries
// cover-image, or else an image/* item whose id contains "cover"
// (case-insensitive). Items of other media types are not matched by id.
func findCoverHref(pkg *Package) string {
	for _, item := range pkg.Manifest.Items {
		if strings.Contains(item.Properties, "cover-image") {
			return item.Href
		}
	}
	for _, item := range pkg.Manifest.Items {
		if !strings.HasPrefix(item.MediaType, "image/") {
			continue
		}
		if strings.Contains(strings.ToLower(item.ID), "cover") {
			return item.Href
		}
	}
	return ""
}

// FindCoverPath parses a package document and returns the archive path of
// the manifest item recognised as the cover, or empty when none matches.
func FindCoverPath(opfData []byte, opfPath string) string {
	var pkg Package
	if err := xml.Unmarshal(opfData, &pkg); err != nil {
		return ""
	}
	href := findCoverHref(&pkg)
	if href == "" {
		return ""
	}
	return resolveHref(path.Dir(opfPath), href)
}

// ReadArchiveFile returns the contents of a single entry. Zip paths are
// slash-separated regardless of platform.
func ReadArchiveFile(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name == name {
			rc, err := f.Open()
			if err != nil {
				return nil, fmt.Errorf("failed to open archive entry %s: %w", name, err)
			}
			defer rc.Close()
			return io.ReadAll(rc)
		}
	}
	return nil, fmt.Errorf("archive entry %s not found", name)
}

func resolveHref(opfDir, href string) string {
	if opfDir == "." || opfDir == "" {
		return path.Clean(href)
	}
	return path.Clean(path.Join(opfDir, href))
}

func isTextContent(mediaType string) bool {
	return strings.Contains(mediaType, "html") || strings.Contains(mediaType, "xhtml")
}
