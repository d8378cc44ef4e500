package repository

import (
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lessonforge/lessonforge/internal/domain"
)

// SessionRepository persists study sessions, their lessons, and follow-up
// chat history
type SessionRepository struct {
	db *DB
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// CreateSession inserts a new study session and returns its id
func (r *SessionRepository) CreateSession(state, focusTopic, model string) (string, error) {
	id := uuid.New().String()
	now := time.Now()
	_, err := r.db.Exec(`
		INSERT INTO study_sessions (id, state, focus_topic, model, pending_uris, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id, state, focusTopic, model, "", now, now)
	return id, err
}

// UpdateSessionState updates a session's state and pending URI list
func (r *SessionRepository) UpdateSessionState(id, state string, pendingURIs []string) error {
	_, err := r.db.Exec(`
		UPDATE study_sessions SET state = ?, pending_uris = ?, updated_at = ? WHERE id = ?
	`, state, strings.Join(pendingURIs, "\n"), time.Now(), id)
	return err
}

// SessionRecord is the persisted state of a study session
type SessionRecord struct {
	ID          string
	State       string
	PendingURIs []string
	CreatedAt   time.Time
}

// GetSession retrieves a session record by ID, or nil when none exists
func (r *SessionRepository) GetSession(id string) (*SessionRecord, error) {
	rec := &SessionRecord{ID: id}
	var pending sql.NullString

	err := r.db.QueryRow(`
		SELECT state, pending_uris, created_at
		FROM study_sessions WHERE id = ?
	`, id).Scan(&rec.State, &pending, &rec.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if pending.Valid && pending.String != "" {
		rec.PendingURIs = strings.Split(pending.String, "\n")
	}

	return rec, nil
}

// DeleteSession removes a session with its lesson and chat history
func (r *SessionRepository) DeleteSession(id string) error {
	_, err := r.db.Exec(`DELETE FROM study_sessions WHERE id = ?`, id)
	return err
}

// SaveLesson stores the generated lesson for a session, replacing any
// previous one
func (r *SessionRepository) SaveLesson(lesson *domain.Lesson) error {
	if lesson.ID == "" {
		lesson.ID = uuid.New().String()
	}
	lesson.CreatedAt = time.Now()

	sectionsJSON, err := json.Marshal(lesson.Sections)
	if err != nil {
		return err
	}
	sourcesJSON, _ := json.Marshal(lesson.Sources)

	if _, err := r.db.Exec(`DELETE FROM lessons WHERE session_id = ?`, lesson.SessionID); err != nil {
		return err
	}
	_, err = r.db.Exec(`
		INSERT INTO lessons (id, session_id, sections, sources, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, lesson.ID, lesson.SessionID, string(sectionsJSON), string(sourcesJSON), lesson.CreatedAt)
	return err
}

// GetLesson retrieves the lesson for a session, or nil when none exists
func (r *SessionRepository) GetLesson(sessionID string) (*domain.Lesson, error) {
	lesson := &domain.Lesson{SessionID: sessionID}
	var sectionsJSON string
	var sourcesJSON sql.NullString

	err := r.db.QueryRow(`
		SELECT id, sections, sources, created_at
		FROM lessons WHERE session_id = ?
	`, sessionID).Scan(&lesson.ID, &sectionsJSON, &sourcesJSON, &lesson.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(sectionsJSON), &lesson.Sections); err != nil {
		return nil, err
	}
	if sourcesJSON.Valid && sourcesJSON.String != "" {
		json.Unmarshal([]byte(sourcesJSON.String), &lesson.Sources)
	}

	return lesson, nil
}

// CreateChatTurn appends one turn to a conversation. Turns are never
// mutated retroactively.
func (r *SessionRepository) CreateChatTurn(turn *domain.ChatTurn) error {
	if turn.ID == "" {
		turn.ID = uuid.New().String()
	}
	turn.CreatedAt = time.Now()

	sourcesJSON, _ := json.Marshal(turn.Sources)
	relatedJSON, _ := json.Marshal(turn.RelatedLinks)

	_, err := r.db.Exec(`
		INSERT INTO chat_turns (id, session_id, section_idx, qa_idx, role, content, sources, related_links, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, turn.ID, turn.SessionID, turn.SectionIndex, turn.QAIndex, turn.Role,
		turn.Text, string(sourcesJSON), string(relatedJSON), turn.CreatedAt)

	return err
}

// GetChatTurns retrieves the ordered history for one conversation key
func (r *SessionRepository) GetChatTurns(sessionID string, sectionIdx, qaIdx int) ([]domain.ChatTurn, error) {
	rows, err := r.db.Query(`
		SELECT id, session_id, section_idx, qa_idx, role, content, sources, related_links, created_at
		FROM chat_turns
		WHERE session_id = ? AND section_idx = ? AND qa_idx = ?
		ORDER BY created_at ASC, rowid ASC
	`, sessionID, sectionIdx, qaIdx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []domain.ChatTurn
	for rows.Next() {
		var turn domain.ChatTurn
		var sourcesJSON, relatedJSON sql.NullString

		if err := rows.Scan(&turn.ID, &turn.SessionID, &turn.SectionIndex, &turn.QAIndex,
			&turn.Role, &turn.Text, &sourcesJSON, &relatedJSON, &turn.CreatedAt); err != nil {
			return nil, err
		}

		if sourcesJSON.Valid && sourcesJSON.String != "" {
			json.Unmarshal([]byte(sourcesJSON.String), &turn.Sources)
		}
		if relatedJSON.Valid && relatedJSON.String != "" {
			json.Unmarshal([]byte(relatedJSON.String), &turn.RelatedLinks)
		}
		turns = append(turns, turn)
	}

	return turns, rows.Err()
}
