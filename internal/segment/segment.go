package segment

import "fmt"

// Status is the lifecycle state of a segment in the translation queue.
type Status string

const (
	StatusPending     Status = "PENDING"
	StatusTranslating Status = "TRANSLATING"
	StatusTranslated  Status = "TRANSLATED"
	StatusFailed      Status = "FAILED"
	StatusSkipped     Status = "SKIPPED"
)

// Schema versions for the segmentation walk. V1 captures element-level
// leaves only; V2 additionally captures orphan text nodes in mixed content.
const (
	SchemaV1 = 1
	SchemaV2 = 2
)

// DefaultBatchCharLimit is the soft budget of serialised markup per segment.
const DefaultBatchCharLimit = 6000

// Segment is one atomic translation unit: a contiguous cut of a content
// document's body, captured whole and replaced whole.
type Segment struct {
	ID             string `json:"id"`
	DocPath        string `json:"doc_path"`
	BatchIndex     int    `json:"batch_index"`
	OriginalHTML   string `json:"original_html"`
	TranslatedHTML string `json:"translated_html"`
	Status         Status `json:"status"`
	RetryCount     int    `json:"retry_count"`
	Error          string `json:"error,omitempty"`
}

// ID composes the globally unique segment id from its document path and
// per-document batch index.
func ID(docPath string, batchIndex int) string {
	return fmt.Sprintf("%s::%d", docPath, batchIndex)
}
