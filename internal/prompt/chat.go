package prompt

import (
	"fmt"
	"strings"

	"github.com/lessonforge/lessonforge/internal/domain"
	"github.com/lessonforge/lessonforge/internal/llm"
)

// NoAnswerSentinel is the exact no-answer-in-context reply mandated when
// search is disabled. Consumers match it verbatim.
const NoAnswerSentinel = "The uploaded contents don't have an answer for that question. Please try the 'web for answer' option."

// Prefix caps for the conversation anchor. The originating answer is cut
// to answerAnchorLimit runes and the surrounding section to
// sectionAnchorLimit runes, each with truncationMarker appended when cut.
const (
	answerAnchorLimit  = 2000
	sectionAnchorLimit = 6000
	truncationMarker   = " [...truncated]"
	historyTurnLimit   = 12
)

const chatSearchInstruction = `You may search the web to answer. Cite every claim with numeric bracket markers [1], [2], ... where marker [k] refers to the k-th grounding source, in grounding order.`

var chatContextInstruction = `Answer strictly from the lesson context supplied in the request. If the context does not contain the answer, reply with exactly this sentence and nothing else: ` + NoAnswerSentinel

// ChatAnchor is the fixed context of one follow-up conversation: the
// originating question/answer plus the parent section's full content.
type ChatAnchor struct {
	Question string
	Answer   string
	Section  domain.LessonSection
}

// CompileFollowUp builds one conversational turn request from the anchor,
// a bounded slice of prior history, and the new message.
func CompileFollowUp(model string, anchor ChatAnchor, history []domain.ChatTurn, message string, useSearch bool) *llm.GenerateRequest {
	var b strings.Builder

	b.WriteString("Lesson context:\n")
	fmt.Fprintf(&b, "Original question: %s\n", anchor.Question)
	fmt.Fprintf(&b, "Original answer: %s\n", truncateRunes(anchor.Answer, answerAnchorLimit))
	fmt.Fprintf(&b, "Section %q:\n%s\n", anchor.Section.Title,
		truncateRunes(sectionText(anchor.Section), sectionAnchorLimit))

	if bounded := boundHistory(history, historyTurnLimit); len(bounded) > 0 {
		b.WriteString("\nConversation so far:\n")
		for _, turn := range bounded {
			fmt.Fprintf(&b, "%s: %s\n", turn.Role, turn.Text)
		}
	}

	fmt.Fprintf(&b, "\nuser: %s\n", message)

	req := &llm.GenerateRequest{
		Model:             model,
		SystemInstruction: chatContextInstruction,
		Parts:             []llm.Part{llm.TextPart(b.String())},
		OutputFormat:      llm.OutputFormatPlain,
	}
	if useSearch {
		req.SystemInstruction = chatSearchInstruction
		req.Capabilities = []llm.Capability{llm.CapabilityWebSearch}
	}
	return req
}

func boundHistory(history []domain.ChatTurn, limit int) []domain.ChatTurn {
	if len(history) <= limit {
		return history
	}
	return history[len(history)-limit:]
}

func sectionText(section domain.LessonSection) string {
	var b strings.Builder
	for _, qa := range section.QAPairs {
		fmt.Fprintf(&b, "Q: %s\nA: %s\n", qa.Question, qa.Answer)
	}
	return b.String()
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + truncationMarker
}
