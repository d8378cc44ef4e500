// Package parse classifies and decodes raw backend replies. The decode is
// a strict parse-then-validate boundary: the reply text is decoded to an
// untyped tree first, then an explicit shape validator produces a tagged
// result before any caller touches typed fields. Grounding metadata is
// never inspected here.
package parse

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/lessonforge/lessonforge/internal/domain"
	"github.com/lessonforge/lessonforge/internal/llm"
)

// Kind tags the classification of one decoded reply
type Kind int

const (
	// KindLesson means the reply is a complete ordered section list
	KindLesson Kind = iota
	// KindMissingDocuments means the backend requested additional documents
	KindMissingDocuments
)

// Result is the decoded form of one backend reply
type Result struct {
	Kind        Kind
	Sections    []domain.LessonSection
	MissingURIs []string
}

var fencedBlockRe = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)```")

// Lesson classifies and decodes one raw backend reply produced under the
// given output format mode. The function is pure: calling it twice on the
// same reply yields identical results.
func Lesson(reply *llm.Reply, outputFormat string) (*Result, error) {
	if reply.SafetyBlocked {
		return nil, domain.ErrSafetyBlocked
	}

	raw := reply.Text
	if outputFormat == llm.OutputFormatJSONText {
		extracted, err := ExtractJSON(raw)
		if err != nil {
			return nil, err
		}
		raw = extracted
	}

	var tree any
	if err := json.Unmarshal([]byte(raw), &tree); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedJSON, err)
	}

	switch v := tree.(type) {
	case map[string]any:
		uris, ok := missingURIs(v)
		if !ok {
			return nil, domain.ErrUnexpectedShape
		}
		return &Result{Kind: KindMissingDocuments, MissingURIs: uris}, nil
	case []any:
		sections, err := validateSections(v)
		if err != nil {
			return nil, err
		}
		return &Result{Kind: KindLesson, Sections: sections}, nil
	default:
		return nil, domain.ErrUnexpectedShape
	}
}

// missingURIs recognizes the escalation object {"missing_pdfs": [uris...]}.
// This exact shape is the only recognized escalation signal.
func missingURIs(obj map[string]any) ([]string, bool) {
	raw, ok := obj["missing_pdfs"].([]any)
	if !ok || len(raw) == 0 {
		return nil, false
	}
	uris := make([]string, 0, len(raw))
	for _, item := range raw {
		uri, ok := item.(string)
		if !ok {
			return nil, false
		}
		uris = append(uris, uri)
	}
	return uris, true
}

func validateSections(items []any) ([]domain.LessonSection, error) {
	if len(items) == 0 {
		return nil, domain.ErrUnexpectedShape
	}
	sections := make([]domain.LessonSection, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, domain.ErrUnexpectedShape
		}
		title, ok := obj["title"].(string)
		if !ok || title == "" {
			return nil, domain.ErrUnexpectedShape
		}
		rawPairs, ok := obj["qa_pairs"].([]any)
		if !ok || len(rawPairs) == 0 {
			return nil, domain.ErrUnexpectedShape
		}
		pairs := make([]domain.QAPair, 0, len(rawPairs))
		for _, rp := range rawPairs {
			pairObj, ok := rp.(map[string]any)
			if !ok {
				return nil, domain.ErrUnexpectedShape
			}
			question, _ := pairObj["question"].(string)
			answer, _ := pairObj["answer"].(string)
			if question == "" || answer == "" {
				return nil, domain.ErrUnexpectedShape
			}
			pairs = append(pairs, domain.QAPair{Question: question, Answer: answer})
		}
		sections = append(sections, domain.LessonSection{Title: title, QAPairs: pairs})
	}
	return sections, nil
}

// ExtractJSON locates the JSON payload inside free-form reply text. A
// fenced code block wins; otherwise the first top-level JSON object or
// array found by bracket matching is returned. The bracket fallback is a
// best-effort heuristic: a stray bracket in narrative text before the real
// payload can mis-extract.
func ExtractJSON(text string) (string, error) {
	if m := fencedBlockRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1]), nil
	}

	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return "", domain.ErrUnparsableResponse
	}

	if extracted := balancedSpan(text[start:]); extracted != "" {
		return extracted, nil
	}
	return "", domain.ErrUnparsableResponse
}

// balancedSpan returns the prefix of s that forms one balanced JSON value
// starting at s[0], tracking strings and escapes, or "" if never closed.
func balancedSpan(s string) string {
	depth := 0
	inString := false
	escaped := false
	for i, r := range s {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return s[:i+1]
			}
		}
	}
	return ""
}
