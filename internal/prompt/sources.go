package prompt

import (
	"fmt"
	"strings"

	"github.com/lessonforge/lessonforge/internal/domain"
	"github.com/lessonforge/lessonforge/internal/llm"
)

// Delimiters wrapping each pasted-text payload so the model can tell pasted
// content apart from instructions
const (
	pastedTextOpen  = "--- BEGIN PASTED CONTENT ---"
	pastedTextClose = "--- END PASTED CONTENT ---"
)

// CompiledSources is the normalized form of one heterogeneous source set:
// one instruction fragment per enabled channel, a deduplicated capability
// set, and the document/pasted-text payload parts in input order.
type CompiledSources struct {
	Fragments    []string
	Capabilities []llm.Capability
	Parts        []llm.Part
	SearchQuery  string
}

// CompileSources normalizes user-supplied material into a CompiledSources.
// Fails with ErrNoSourcesProvided when no channel carries content.
func CompileSources(sources []domain.SourceDescriptor) (*CompiledSources, error) {
	var (
		urls        []string
		docCount    int
		pastedCount int
		query       string
	)

	cs := &CompiledSources{}
	capSeen := make(map[llm.Capability]bool)
	addCapability := func(c llm.Capability) {
		if !capSeen[c] {
			capSeen[c] = true
			cs.Capabilities = append(cs.Capabilities, c)
		}
	}

	// One fragment per channel, in order of first appearance. Channel
	// counts are gathered first so each fragment is emitted exactly once.
	var channelOrder []domain.SourceKind
	seenKind := make(map[domain.SourceKind]bool)

	for _, src := range sources {
		if src.Empty() {
			continue
		}
		if !seenKind[src.Kind] {
			seenKind[src.Kind] = true
			channelOrder = append(channelOrder, src.Kind)
		}
		switch src.Kind {
		case domain.SourceURL:
			urls = append(urls, src.URL)
			addCapability(llm.CapabilityURLContext)
		case domain.SourceDocument:
			docCount++
			cs.Parts = append(cs.Parts, llm.DataPart(src.Data, src.MIMEType))
		case domain.SourcePastedText:
			pastedCount++
			cs.Parts = append(cs.Parts, llm.TextPart(
				pastedTextOpen+"\n"+src.Text+"\n"+pastedTextClose))
		case domain.SourceSearchQuery:
			if query == "" {
				query = src.Query
			}
			addCapability(llm.CapabilityWebSearch)
		}
	}

	if len(channelOrder) == 0 {
		return nil, domain.ErrNoSourcesProvided
	}

	for _, kind := range channelOrder {
		switch kind {
		case domain.SourceURL:
			cs.Fragments = append(cs.Fragments,
				fmt.Sprintf("the webpage(s) at %s", strings.Join(urls, ", ")))
		case domain.SourceDocument:
			cs.Fragments = append(cs.Fragments,
				fmt.Sprintf("%d uploaded document(s)", docCount))
		case domain.SourcePastedText:
			cs.Fragments = append(cs.Fragments,
				fmt.Sprintf("%d pasted text snippet(s)", pastedCount))
		case domain.SourceSearchQuery:
			cs.Fragments = append(cs.Fragments,
				fmt.Sprintf("web search results for %q", query))
		}
	}

	cs.SearchQuery = query
	return cs, nil
}
