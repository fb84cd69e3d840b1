package submission

import (
	"net/http"
	"strings"
	"time"
)

// Page is the raw result of a successful fetch.
type Page struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	Attempts     int
	UsedHeadless bool
	FromCache    bool
}

// Field is one labeled value captured from a structured field block.
type Field struct {
	Label string
	Value string
	Href  string
	// Detached is set when the label had no adjacent value block.
	Detached bool
}

// RawCandidate is one discovered document link on a page.
type RawCandidate struct {
	Href                 string
	LinkText             string
	SurroundingParagraph string
	SectionName          string
	SubsectionName       string
	GroupName            string
	PageURL              string
	// Order is the discovery position of the candidate within its page.
	Order  int64
	Fields []Field
}

// Field returns the first captured field whose label starts with title,
// ignoring case.
func (c RawCandidate) Field(title string) (Field, bool) {
	for _, f := range c.Fields {
		if len(f.Label) >= len(title) && strings.EqualFold(f.Label[:len(title)], title) {
			return f, true
		}
	}
	return Field{}, false
}

// ParsedMetadata is the typed draft produced by a layout parser.
type ParsedMetadata struct {
	Member        string     `json:"member,omitempty"`
	GroupOfStates string     `json:"group_of_states,omitempty"`
	Article       string     `json:"article,omitempty"`
	Description   string     `json:"description,omitempty"`
	IsReplacement bool       `json:"is_replacement"`
	FileURL       string     `json:"file"`
	Languages     []string   `json:"language,omitempty"`
	UploadDate    *time.Time `json:"upload_date,omitempty"`
	DocumentType  string     `json:"document_type"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
	Order         int64      `json:"-"`
}

// NormalizedSubmission is the taxonomy-linked record exposed downstream.
type NormalizedSubmission struct {
	ID            string     `json:"id,omitempty"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Authors       []string   `json:"authors"`
	DraftCategory []string   `json:"draft_category"`
	KeyElements   []string   `json:"key_elements,omitempty"`
	DocumentType  string     `json:"document_type"`
	Href          string     `json:"href"`
	Session       string     `json:"session"`
	Languages     []string   `json:"languages,omitempty"`
	UploadDate    *time.Time `json:"upload_date,omitempty"`
	IsReplacement bool       `json:"is_replacement,omitempty"`
	Verified      bool       `json:"verified"`
	Order         int64      `json:"-"`
}

// Snapshot is the persisted per-session document.
type Snapshot struct {
	Schema      string                 `json:"schema"`
	Title       string                 `json:"title"`
	Description string                 `json:"description"`
	Timestamp   time.Time              `json:"timestamp"`
	Submissions []NormalizedSubmission `json:"submissions"`
	Session     string                 `json:"-"`
}

// ContactGroup points at one sub-page holding a batch of submissions.
type ContactGroup struct {
	Text  string `json:"text"`
	URL   string `json:"url"`
	Index int    `json:"-"`
}

// IndexTask is handed to the downstream indexing dispatcher.
type IndexTask struct {
	FileURL      string   `json:"fileUrl"`
	SubmissionID string   `json:"submissionId"`
	RetrieverID  string   `json:"retrieverId"`
	Href         string   `json:"href"`
	KeyElements  []string `json:"keyElements"`
	Session      string   `json:"session"`
}

// RunStatus reports how a session run ended.
type RunStatus string

const (
	// RunSucceeded marks a run that wrote its snapshot.
	RunSucceeded RunStatus = "succeeded"
	// RunFailed marks a run aborted before writing.
	RunFailed RunStatus = "failed"
)

// RunRecord summarizes one session run.
type RunRecord struct {
	ID             string    `json:"id"`
	Session        string    `json:"session"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	Status         RunStatus `json:"status"`
	Candidates     int       `json:"candidates"`
	Records        int       `json:"records"`
	Failures       int       `json:"failures"`
	SnapshotURI    string    `json:"snapshot_uri,omitempty"`
	SnapshotSHA256 string    `json:"snapshot_sha256,omitempty"`
	Error          string    `json:"error,omitempty"`
}
