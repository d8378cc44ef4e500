package domain

// SourceKind identifies one input channel of a synthesis request
type SourceKind string

const (
	SourceURL         SourceKind = "url"
	SourceDocument    SourceKind = "document"
	SourcePastedText  SourceKind = "pasted_text"
	SourceSearchQuery SourceKind = "search_query"
)

// SourceDescriptor is one normalized piece of user-supplied material.
// Exactly one value field is populated, selected by Kind. Descriptors are
// immutable once built.
type SourceDescriptor struct {
	Kind     SourceKind `json:"kind"`
	URL      string     `json:"url,omitempty"`
	Data     []byte     `json:"data,omitempty"`
	MIMEType string     `json:"mime_type,omitempty"`
	Text     string     `json:"text,omitempty"`
	Query    string     `json:"query,omitempty"`
}

// URLSource builds a descriptor for a web page
func URLSource(url string) SourceDescriptor {
	return SourceDescriptor{Kind: SourceURL, URL: url}
}

// DocumentSource builds a descriptor for an uploaded document payload
func DocumentSource(data []byte, mimeType string) SourceDescriptor {
	return SourceDescriptor{Kind: SourceDocument, Data: data, MIMEType: mimeType}
}

// PastedTextSource builds a descriptor for a pasted text snippet
func PastedTextSource(text string) SourceDescriptor {
	return SourceDescriptor{Kind: SourcePastedText, Text: text}
}

// SearchQuerySource builds a descriptor for a web search focus query
func SearchQuerySource(query string) SourceDescriptor {
	return SourceDescriptor{Kind: SourceSearchQuery, Query: query}
}

// Empty reports whether the descriptor carries no usable content for its kind
func (d SourceDescriptor) Empty() bool {
	switch d.Kind {
	case SourceURL:
		return d.URL == ""
	case SourceDocument:
		return len(d.Data) == 0
	case SourcePastedText:
		return d.Text == ""
	case SourceSearchQuery:
		return d.Query == ""
	}
	return true
}

// GenerationContext is the full input of one lesson generation attempt.
// It is retained only while a missing-documents resolution is pending.
type GenerationContext struct {
	Sources    []SourceDescriptor `json:"sources"`
	FocusTopic string             `json:"focus_topic,omitempty"`
	Model      string             `json:"model"`
}

// GroundingSource is an external document or page the backend used to
// produce an answer, keyed by URI for deduplication
type GroundingSource struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}
