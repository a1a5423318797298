package backup

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/onepurp/Mutarjim-Pro/internal/segment"
	"github.com/onepurp/Mutarjim-Pro/internal/store"
)

// Bundle entry names. The cover entry is optional; the rest are required.
const (
	entrySource   = "source.epub"
	entryCover    = "custom-cover.bin"
	entryProject  = "project.json"
	entrySegments = "segments.json"
)

// Version of the bundle manifest format.
const Version = 1

type manifest struct {
	Version     int            `json:"version"`
	Timestamp   int64          `json:"timestamp"`
	ProjectData *store.Project `json:"projectData"`
}

// Bundle is the parsed content of a backup archive.
type Bundle struct {
	Project  *store.Project
	Segments []segment.Segment
}

// Write packages the project and its segments into a self-contained
// archive. Blob fields live as their own entries, not inside the JSON.
func Write(p *store.Project, segments []segment.Segment) ([]byte, error) {
	var out bytes.Buffer
	zw := zip.NewWriter(&out)

	if err := writeEntry(zw, entrySource, p.SourceBytes); err != nil {
		return nil, err
	}
	if len(p.CoverBytes) > 0 {
		if err := writeEntry(zw, entryCover, p.CoverBytes); err != nil {
			return nil, err
		}
	}

	projectData := *p
	projectData.SourceBytes = nil
	projectData.CoverBytes = nil

	m := manifest{
		Version:     Version,
		Timestamp:   time.Now().UnixMilli(),
		ProjectData: &projectData,
	}
	projectJSON, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal project: %w", err)
	}
	if err := writeEntry(zw, entryProject, projectJSON); err != nil {
		return nil, err
	}

	segmentsJSON, err := json.Marshal(segments)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal segments: %w", err)
	}
	if err := writeEntry(zw, entrySegments, segmentsJSON); err != nil {
		return nil, err
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalise bundle: %w", err)
	}
	return out.Bytes(), nil
}

func writeEntry(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("failed to create bundle entry %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write bundle entry %s: %w", name, err)
	}
	return nil
}

// Read validates and parses a backup archive. Structural problems fail the
// whole read; nothing is partially returned. The translated count is
// recomputed from segment statuses rather than trusted from the manifest.
func Read(data []byte) (*Bundle, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open bundle: %w", err)
	}

	entries := make(map[string][]byte)
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open bundle entry %s: %w", f.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read bundle entry %s: %w", f.Name, err)
		}
		entries[f.Name] = content
	}

	for _, required := range []string{entrySource, entryProject, entrySegments} {
		if _, ok := entries[required]; !ok {
			return nil, fmt.Errorf("bundle is missing required entry %s", required)
		}
	}

	project, err := parseProject(entries[entryProject])
	if err != nil {
		return nil, err
	}

	var segments []segment.Segment
	if err := json.Unmarshal(entries[entrySegments], &segments); err != nil {
		return nil, fmt.Errorf("failed to parse segments.json: %w", err)
	}

	project.SourceBytes = entries[entrySource]
	if cover, ok := entries[entryCover]; ok {
		project.CoverBytes = cover
	}

	project.TotalSegments = len(segments)
	project.TranslatedSegments = 0
	for _, seg := range segments {
		if seg.Status == segment.StatusTranslated {
			project.TranslatedSegments++
		}
	}

	return &Bundle{Project: project, Segments: segments}, nil
}

// parseProject accepts both the wrapped manifest form and legacy bundles
// whose project.json is the project object directly.
func parseProject(data []byte) (*store.Project, error) {
	var m manifest
	if err := json.Unmarshal(data, &m); err == nil && m.ProjectData != nil {
		return m.ProjectData, nil
	}

	var p store.Project
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse project.json: %w", err)
	}
	if p.ID == "" {
		return nil, fmt.Errorf("project.json has no project id")
	}
	return &p, nil
}
