// Package grounding reconciles the backend's provenance channels into one
// deduplicated source list. Numeric in-text citation markers stay embedded
// in the answer text; the contract is that the returned source list is
// stable and index-addressable, so marker [k] always refers to the k-th
// entry, 1-indexed.
package grounding

import (
	"net/url"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/lessonforge/lessonforge/internal/domain"
	"github.com/lessonforge/lessonforge/internal/llm"
)

var urlTokenRe = regexp.MustCompile(`https?://[^\s<>"']+`)

// Resolver merges grounding metadata channels from raw backend replies
type Resolver struct {
	logger *zap.Logger
}

// NewResolver creates a new resolver
func NewResolver(logger *zap.Logger) *Resolver {
	return &Resolver{logger: logger}
}

// Sources merges the schema-validated grounding entries with successful
// URL-retrieval records, deduplicated by URI after fragment stripping.
// The schema channel is inserted first, so it wins the title on a
// duplicate URI. Failed retrievals are logged and never surfaced as
// sources.
func (r *Resolver) Sources(reply *llm.Reply) []domain.GroundingSource {
	seen := make(map[string]bool)
	var out []domain.GroundingSource

	add := func(uri, title string) {
		uri = stripFragment(uri)
		if uri == "" || seen[uri] {
			return
		}
		seen[uri] = true
		if title == "" {
			title = uri
		}
		out = append(out, domain.GroundingSource{URI: uri, Title: title})
	}

	for _, chunk := range reply.GroundingChunks {
		add(chunk.URI, chunk.Title)
	}

	for _, ret := range reply.URLRetrievals {
		if !ret.Succeeded() {
			r.logger.Warn("url retrieval failed",
				zap.String("uri", ret.URI),
				zap.String("status", ret.Status))
			continue
		}
		add(ret.URI, "")
	}

	return out
}

// ResolveChat resolves a chat reply: the merged source list plus the
// related links the model mentioned inline without registering them as
// formal grounding.
func (r *Resolver) ResolveChat(reply *llm.Reply) (sources, relatedLinks []domain.GroundingSource) {
	sources = r.Sources(reply)
	relatedLinks = extractRelatedLinks(reply.Text, sources)
	return sources, relatedLinks
}

// extractRelatedLinks scans answer text for bare URL tokens, strips
// trailing sentence punctuation and any fragment component, deduplicates,
// and keeps the ones absent from the merged source set.
func extractRelatedLinks(text string, sources []domain.GroundingSource) []domain.GroundingSource {
	known := make(map[string]bool, len(sources))
	for _, s := range sources {
		known[s.URI] = true
	}

	var out []domain.GroundingSource
	for _, token := range urlTokenRe.FindAllString(text, -1) {
		normalized := normalizeURL(token)
		if normalized == "" || known[normalized] {
			continue
		}
		known[normalized] = true
		out = append(out, domain.GroundingSource{URI: normalized, Title: normalized})
	}
	return out
}

// stripFragment drops the fragment component; URI equality across
// grounding channels is exact string match with fragments removed.
func stripFragment(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}

func normalizeURL(token string) string {
	token = strings.TrimRight(token, `.,;:!?)]}'"`)
	u, err := url.Parse(token)
	if err != nil || u.Host == "" {
		return ""
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}
