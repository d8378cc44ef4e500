package domain

import "time"

// Chat turn roles
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// ChatTurn is one message in a follow-up conversation. History is keyed by
// (session, section index, QA index), append-only within a session.
type ChatTurn struct {
	ID           string            `json:"id"`
	SessionID    string            `json:"session_id"`
	SectionIndex int               `json:"section_index"`
	QAIndex      int               `json:"qa_index"`
	Role         string            `json:"role"`
	Text         string            `json:"text"`
	Sources      []GroundingSource `json:"sources,omitempty"`
	RelatedLinks []GroundingSource `json:"related_links,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// FollowUpRequest is the request to send one follow-up chat message
type FollowUpRequest struct {
	Message   string `json:"message" binding:"required"`
	UseSearch bool   `json:"use_search"`
}

// FollowUpResponse is the reply to one follow-up chat message
type FollowUpResponse struct {
	Answer       string            `json:"answer"`
	Sources      []GroundingSource `json:"sources,omitempty"`
	RelatedLinks []GroundingSource `json:"related_links,omitempty"`
}

// DocumentUpload is a file payload submitted through the API
type DocumentUpload struct {
	Filename string `json:"filename"`
	MIMEType string `json:"mime_type,omitempty"`
	Data     []byte `json:"data" binding:"required"`
}

// SupplementAttachment carries replacement content for one missing URI.
// File and Text are mutually exclusive; Text wins when both are set.
type SupplementAttachment struct {
	URI  string          `json:"uri" binding:"required"`
	File *DocumentUpload `json:"file,omitempty"`
	Text string          `json:"text,omitempty"`
}

// SupplementRequest resubmits a pending session with supplied content
type SupplementRequest struct {
	Attachments []SupplementAttachment `json:"attachments,omitempty"`
	BulkFiles   []DocumentUpload       `json:"bulk_files,omitempty"`
}

// StartLearningRequest is the request to synthesize a new lesson
type StartLearningRequest struct {
	URLs        []string         `json:"urls,omitempty"`
	Documents   []DocumentUpload `json:"documents,omitempty"`
	PastedTexts []string         `json:"pasted_texts,omitempty"`
	SearchQuery string           `json:"search_query,omitempty"`
	FocusTopic  string           `json:"focus_topic,omitempty"`
	Model       string           `json:"model,omitempty"`
}

// Session states
const (
	SessionIdle              = "idle"
	SessionAwaitingDocuments = "awaiting_documents"
)

// SessionView is the API-facing snapshot of a study session
type SessionView struct {
	SessionID   string            `json:"session_id"`
	State       string            `json:"state"`
	Sections    []LessonSection   `json:"sections,omitempty"`
	Sources     []GroundingSource `json:"sources,omitempty"`
	MissingURIs []string          `json:"missing_uris,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}
