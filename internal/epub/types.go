package epub

import "encoding/xml"

// Container maps META-INF/container.xml.
type Container struct {
	XMLName   xml.Name `xml:"container"`
	Rootfiles []struct {
		FullPath  string `xml:"full-path,attr"`
		MediaType string `xml:"media-type,attr"`
	} `xml:"rootfiles>rootfile"`
}

// Package maps the OPF package document. Metadata element tags carry no
// namespace so matching is on local name, which tolerates both dc:-prefixed
// and default-namespace metadata.
type Package struct {
	XMLName  xml.Name `xml:"package"`
	Version  string   `xml:"version,attr"`
	UniqueID string   `xml:"unique-identifier,attr"`
	Metadata Metadata `xml:"metadata"`
	Manifest Manifest `xml:"manifest"`
	Spine    Spine    `xml:"spine"`
	Guide    Guide    `xml:"guide"`
}

type Metadata struct {
	Title       string `xml:"title"`
	Language    string `xml:"language"`
	Identifier  string `xml:"identifier"`
	Creator     string `xml:"creator"`
	Publisher   string `xml:"publisher"`
	Date        string `xml:"date"`
	Description string `xml:"description"`
	Rights      string `xml:"rights"`
}

type Manifest struct {
	Items []Item `xml:"item"`
}

type Item struct {
	ID         string `xml:"id,attr"`
	Href       string `xml:"href,attr"`
	MediaType  string `xml:"media-type,attr"`
	Properties string `xml:"properties,attr"`
}

type Spine struct {
	TOC                      string    `xml:"toc,attr"`
	PageProgressionDirection string    `xml:"page-progression-direction,attr"`
	ItemRefs                 []ItemRef `xml:"itemref"`
}

type ItemRef struct {
	IDRef  string `xml:"idref,attr"`
	Linear string `xml:"linear,attr"`
}

type Guide struct {
	References []Reference `xml:"reference"`
}

type Reference struct {
	Type  string `xml:"type,attr"`
	Title string `xml:"title,attr"`
	Href  string `xml:"href,attr"`
}

// DocumentRef is one spine entry resolved to its archive path.
type DocumentRef struct {
	// Path is the archive-absolute, slash-separated location of the content
	// document inside the zip.
	Path string `json:"path"`
	// Href is the manifest href as written, relative to the OPF directory.
	Href string `json:"href"`
}

// Book is the result of opening an archive: project metadata plus the
// ordered content documents to segment.
type Book struct {
	Title         string        `json:"title"`
	Author        string        `json:"author"`
	CoverPath     string        `json:"cover_path,omitempty"`
	CoverBytes    []byte        `json:"-"`
	OpfPath       string        `json:"opf_path"`
	SchemaVersion int           `json:"schema_version"`
	Documents     []DocumentRef `json:"documents"`
}
