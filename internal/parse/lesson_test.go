package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lessonforge/lessonforge/internal/domain"
	"github.com/lessonforge/lessonforge/internal/llm"
)

const validLessonJSON = `[
	{"title": "Basics", "qa_pairs": [{"question": "What?", "answer": "This."}]},
	{"title": "Advanced", "qa_pairs": [{"question": "Why?", "answer": "Because."}]}
]`

func TestLesson_SchemaModeArray(t *testing.T) {
	res, err := Lesson(&llm.Reply{Text: validLessonJSON}, llm.OutputFormatSchema)
	require.NoError(t, err)

	assert.Equal(t, KindLesson, res.Kind)
	require.Len(t, res.Sections, 2)
	assert.Equal(t, "Basics", res.Sections[0].Title)
	assert.Equal(t, "This.", res.Sections[0].QAPairs[0].Answer)
}

func TestLesson_MissingDocumentsRoundTrip(t *testing.T) {
	text := `{"missing_pdfs": ["https://x.org/a.pdf", "https://x.org/b.pdf", "https://x.org/c.pdf"]}`

	for _, mode := range []string{llm.OutputFormatSchema, llm.OutputFormatJSONText} {
		res, err := Lesson(&llm.Reply{Text: text}, mode)
		require.NoError(t, err, "escalation must be reachable in mode %s", mode)
		assert.Equal(t, KindMissingDocuments, res.Kind)
		assert.Equal(t, []string{"https://x.org/a.pdf", "https://x.org/b.pdf", "https://x.org/c.pdf"},
			res.MissingURIs, "URI order preserved")
	}
}

func TestLesson_FreeTextFencedBlockWins(t *testing.T) {
	text := "Here is your lesson:\n```json\n" + validLessonJSON + "\n```\nHope this helps!"

	res, err := Lesson(&llm.Reply{Text: text}, llm.OutputFormatJSONText)
	require.NoError(t, err)
	assert.Equal(t, KindLesson, res.Kind)
	assert.Len(t, res.Sections, 2)
}

func TestLesson_FreeTextBracketFallback(t *testing.T) {
	text := "Sure thing. " + validLessonJSON + " Let me know if you need more."

	res, err := Lesson(&llm.Reply{Text: text}, llm.OutputFormatJSONText)
	require.NoError(t, err)
	assert.Equal(t, KindLesson, res.Kind)
}

func TestLesson_ErrorClassification(t *testing.T) {
	tests := []struct {
		name string
		text string
		mode string
		want error
	}{
		{
			name: "no json at all",
			text: "I could not produce anything useful.",
			mode: llm.OutputFormatJSONText,
			want: domain.ErrUnparsableResponse,
		},
		{
			name: "invalid json in schema mode",
			text: `[{"title": "Basics",`,
			mode: llm.OutputFormatSchema,
			want: domain.ErrMalformedJSON,
		},
		{
			name: "object without missing_pdfs",
			text: `{"sections": []}`,
			mode: llm.OutputFormatSchema,
			want: domain.ErrUnexpectedShape,
		},
		{
			name: "empty missing_pdfs",
			text: `{"missing_pdfs": []}`,
			mode: llm.OutputFormatSchema,
			want: domain.ErrUnexpectedShape,
		},
		{
			name: "non-string missing_pdfs entry",
			text: `{"missing_pdfs": [42]}`,
			mode: llm.OutputFormatSchema,
			want: domain.ErrUnexpectedShape,
		},
		{
			name: "section without title",
			text: `[{"qa_pairs": [{"question": "q", "answer": "a"}]}]`,
			mode: llm.OutputFormatSchema,
			want: domain.ErrUnexpectedShape,
		},
		{
			name: "section with empty qa list",
			text: `[{"title": "T", "qa_pairs": []}]`,
			mode: llm.OutputFormatSchema,
			want: domain.ErrUnexpectedShape,
		},
		{
			name: "scalar payload",
			text: `"just a string"`,
			mode: llm.OutputFormatSchema,
			want: domain.ErrUnexpectedShape,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Lesson(&llm.Reply{Text: tt.text}, tt.mode)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLesson_SafetyBlocked(t *testing.T) {
	_, err := Lesson(&llm.Reply{SafetyBlocked: true, Text: validLessonJSON}, llm.OutputFormatSchema)
	assert.ErrorIs(t, err, domain.ErrSafetyBlocked)
}

func TestLesson_Idempotent(t *testing.T) {
	reply := &llm.Reply{Text: "prose\n```json\n" + validLessonJSON + "\n```"}

	first, err := Lesson(reply, llm.OutputFormatJSONText)
	require.NoError(t, err)
	second, err := Lesson(reply, llm.OutputFormatJSONText)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    string
		wantErr bool
	}{
		{
			name: "fenced json block",
			text: "before\n```json\n{\"a\": 1}\n```\nafter",
			want: `{"a": 1}`,
		},
		{
			name: "fence without language tag",
			text: "```\n[1, 2]\n```",
			want: "[1, 2]",
		},
		{
			name: "bracket fallback object",
			text: `noise {"a": {"b": "}"}} trailing`,
			want: `{"a": {"b": "}"}}`,
		},
		{
			name: "bracket fallback respects escaped quotes",
			text: `x {"a": "say \"}\" loud"} y`,
			want: `{"a": "say \"}\" loud"}`,
		},
		{
			name:    "nothing extractable",
			text:    "plain prose only",
			wantErr: true,
		},
		{
			name:    "unbalanced payload",
			text:    `{"a": [1, 2`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.text)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrUnparsableResponse)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
