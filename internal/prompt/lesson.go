package prompt

import (
	"fmt"
	"strings"

	"github.com/lessonforge/lessonforge/internal/domain"
	"github.com/lessonforge/lessonforge/internal/llm"
)

const lessonSystemBase = `You are an expert instructor preparing a study module for a technical/professional audience.
Produce 5-7 sequential sections that teach the material in order. Each section has a "title" and a "qa_pairs" array; each pair has a "question" and a detailed, well-formatted "answer".`

// Appended when the search capability is active: schema-constrained output
// cannot be combined with grounding tools, so the JSON contract rides in
// the instruction instead.
const rawJSONInstruction = `Respond with raw JSON only: either a JSON array of section objects, or a JSON object with a single "missing_pdfs" field holding an array of URIs. Do not wrap the JSON in markdown code fences and do not add any narrative text before or after it.`

// Appended unconditionally so the escalation path is reachable in both
// output modes.
const missingDocsInstruction = `If any required document cannot be retrieved or read, do not guess its contents. Instead respond with exactly one JSON object of the form {"missing_pdfs": ["<uri>", ...]} listing the inaccessible URIs.`

// CompileLessonRequest deterministically composes the outgoing generation
// request for one GenerationContext. Fails with ErrNoSourcesProvided
// before any request is built.
func CompileLessonRequest(gc *domain.GenerationContext) (*llm.GenerateRequest, error) {
	cs, err := CompileSources(gc.Sources)
	if err != nil {
		return nil, err
	}

	var header strings.Builder
	header.WriteString("Create a complete study module synthesized from ")
	header.WriteString(strings.Join(cs.Fragments, ", "))
	header.WriteString(".")
	if cs.SearchQuery != "" {
		fmt.Fprintf(&header, " Center the web research on: %q.", cs.SearchQuery)
	}

	parts := make([]llm.Part, 0, len(cs.Parts)+1)
	parts = append(parts, llm.TextPart(header.String()))
	parts = append(parts, cs.Parts...)

	searchEnabled := hasCapability(cs.Capabilities, llm.CapabilityWebSearch)

	var sys strings.Builder
	sys.WriteString(lessonSystemBase)
	if gc.FocusTopic != "" {
		fmt.Fprintf(&sys, "\nNarrow the module to the topic: %q.", gc.FocusTopic)
	}
	format := llm.OutputFormatSchema
	if searchEnabled {
		format = llm.OutputFormatJSONText
		sys.WriteString("\n" + rawJSONInstruction)
	}
	sys.WriteString("\n" + missingDocsInstruction)

	return &llm.GenerateRequest{
		Model:             gc.Model,
		SystemInstruction: sys.String(),
		Parts:             parts,
		Capabilities:      cs.Capabilities,
		OutputFormat:      format,
	}, nil
}

func hasCapability(caps []llm.Capability, want llm.Capability) bool {
	for _, c := range caps {
		if c == want {
			return true
		}
	}
	return false
}
