package domain

import "time"

// QAPair is one question with its detailed answer. The answer may contain
// rich-text markup which this layer treats as opaque.
type QAPair struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// LessonSection is one titled teaching unit
type LessonSection struct {
	Title   string   `json:"title"`
	QAPairs []QAPair `json:"qa_pairs"`
}

// Lesson is the fully generated study module. Section order is the
// sequential teaching order and is immutable once produced.
type Lesson struct {
	ID        string            `json:"id"`
	SessionID string            `json:"session_id"`
	Sections  []LessonSection   `json:"sections"`
	Sources   []GroundingSource `json:"sources,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}
