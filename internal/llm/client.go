package llm

import "context"

// Capability is an optional backend feature toggled per request
type Capability string

const (
	// CapabilityURLContext lets the backend fetch the request's URLs itself
	CapabilityURLContext Capability = "urlContext"
	// CapabilityWebSearch lets the backend ground the reply in web search
	CapabilityWebSearch Capability = "webSearch"
)

// Output format modes. Schema-constrained output cannot be combined with
// grounding tools, so search-enabled requests use the free-text JSON mode.
const (
	// OutputFormatSchema requests machine-checked JSON against the lesson schema
	OutputFormatSchema = "schema"
	// OutputFormatJSONText requests raw JSON by instruction only
	OutputFormatJSONText = "json_text"
	// OutputFormatPlain requests ordinary prose (follow-up turns)
	OutputFormatPlain = "plain"
)

// Part is one piece of request content: either text or an inline document
type Part struct {
	Text     string
	Data     []byte
	MIMEType string
}

// TextPart builds a text-only part
func TextPart(text string) Part {
	return Part{Text: text}
}

// DataPart builds an inline document part
func DataPart(data []byte, mimeType string) Part {
	return Part{Data: data, MIMEType: mimeType}
}

// GenerateRequest is one generation call to the backend collaborator
type GenerateRequest struct {
	Model             string
	SystemInstruction string
	Parts             []Part
	Capabilities      []Capability
	OutputFormat      string
}

// GroundingChunk is one schema-validated grounding entry from the reply
// metadata. This is the highest-trust provenance channel.
type GroundingChunk struct {
	URI   string
	Title string
}

// URL retrieval status reported by the backend for urlContext fetches
const URLRetrievalStatusSuccess = "URL_RETRIEVAL_STATUS_SUCCESS"

// URLRetrieval is one raw retrieval-status record from the reply metadata
type URLRetrieval struct {
	URI    string
	Status string
}

// Succeeded reports whether the URL was actually fetched
func (r URLRetrieval) Succeeded() bool {
	return r.Status == URLRetrievalStatusSuccess
}

// Reply is the raw backend reply consumed by the parser and the
// provenance resolver
type Reply struct {
	Text            string
	GroundingChunks []GroundingChunk
	URLRetrievals   []URLRetrieval
	SafetyBlocked   bool
}

// Client is the generative backend collaborator. One call per user action;
// cancellation flows through ctx, timeout policy belongs to the transport.
type Client interface {
	Generate(ctx context.Context, req *GenerateRequest) (*Reply, error)
}
