// Package store persists questions, specializations, exam definitions, users
// and completed exam sessions behind database/sql. It backs both SQLite
// (modernc) and PostgreSQL (pgx); all queries use numbered placeholders,
// which both drivers accept.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	_ "modernc.org/sqlite"             // driver: sqlite

	"github.com/abdullah-az/ai-exam/internal/model"
	"github.com/abdullah-az/ai-exam/internal/session"
)

// Driver selects the backing database.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

type Store struct {
	db *sql.DB
}

// New opens the database and runs schema migration. For SQLite the dsn is a
// file path (":memory:" for tests); for Postgres a connection URL.
func New(driver Driver, dsn string) (*Store, error) {
	var drvName string
	switch driver {
	case DriverSQLite, "":
		drvName = "sqlite"
		dsn += "?_journal_mode=WAL&_busy_timeout=5000"
	case DriverPostgres:
		drvName = "pgx"
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(driver); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(driver Driver) error {
	timestamp := "DATETIME"
	if driver == DriverPostgres {
		timestamp = "TIMESTAMPTZ"
	}
	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS specializations (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS questions (
		id TEXT PRIMARY KEY,
		text TEXT NOT NULL,
		specialization_id TEXT NOT NULL,
		course_year INTEGER NOT NULL DEFAULT 0,
		mark INTEGER NOT NULL DEFAULT 5,
		is_ai_generated BOOLEAN NOT NULL DEFAULT FALSE,
		choices_json TEXT NOT NULL,
		attachments_json TEXT NOT NULL DEFAULT '[]'
	);

	CREATE TABLE IF NOT EXISTS exam_definitions (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		num_questions INTEGER NOT NULL DEFAULT 0,
		duration_minutes INTEGER NOT NULL DEFAULT 0,
		passing_grade_percent INTEGER NOT NULL DEFAULT 0,
		settings_json TEXT NOT NULL,
		specialization_id TEXT NOT NULL,
		created_at %[1]s NOT NULL
	);

	CREATE TABLE IF NOT EXISTS exam_sessions (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL,
		specialization_id TEXT NOT NULL,
		exam_definition_id TEXT NOT NULL DEFAULT '',
		exam_name TEXT NOT NULL DEFAULT '',
		score INTEGER NOT NULL DEFAULT 0,
		completed_at %[1]s NOT NULL,
		questions_json TEXT NOT NULL,
		answers_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'student',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at %[1]s NOT NULL
	);

	CREATE TABLE IF NOT EXISTS auth_sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		created_at %[1]s NOT NULL,
		expires_at %[1]s NOT NULL
	);

	CREATE TABLE IF NOT EXISTS imported_files (
		path TEXT PRIMARY KEY,
		sha256 TEXT NOT NULL
	);
	`, timestamp)
	_, err := s.db.Exec(schema)
	return err
}

// UpsertSpecialization stores a specialization, assigning an id when empty.
func (s *Store) UpsertSpecialization(sp model.Specialization) (string, error) {
	if sp.ID == "" {
		sp.ID = uuid.NewString()
	}
	_, err := s.db.Exec(
		`INSERT INTO specializations (id, name) VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`,
		sp.ID, sp.Name,
	)
	return sp.ID, err
}

// ListSpecializations returns all specializations ordered by name.
func (s *Store) ListSpecializations() ([]model.Specialization, error) {
	rows, err := s.db.Query(`SELECT id, name FROM specializations ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var specs []model.Specialization
	for rows.Next() {
		var sp model.Specialization
		if err := rows.Scan(&sp.ID, &sp.Name); err != nil {
			return nil, err
		}
		specs = append(specs, sp)
	}
	return specs, rows.Err()
}

// GetSpecialization returns a specialization by id.
func (s *Store) GetSpecialization(id string) (model.Specialization, error) {
	var sp model.Specialization
	err := s.db.QueryRow(`SELECT id, name FROM specializations WHERE id = $1`, id).
		Scan(&sp.ID, &sp.Name)
	return sp, err
}

// InsertQuestion stores a question, assigning ids to the question and any
// choices or attachments that lack one.
func (s *Store) InsertQuestion(q model.Question) (string, error) {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	for i := range q.Choices {
		if q.Choices[i].ID == "" {
			q.Choices[i].ID = uuid.NewString()
		}
	}
	for i := range q.Attachments {
		if q.Attachments[i].ID == "" {
			q.Attachments[i].ID = uuid.NewString()
		}
	}
	choices, err := json.Marshal(q.Choices)
	if err != nil {
		return "", fmt.Errorf("marshal choices: %w", err)
	}
	attachments, err := json.Marshal(q.Attachments)
	if err != nil {
		return "", fmt.Errorf("marshal attachments: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO questions (id, text, specialization_id, course_year, mark, is_ai_generated, choices_json, attachments_json)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		q.ID, q.Text, q.SpecializationID, q.CourseYear, q.Mark, q.IsAIGenerated, string(choices), string(attachments),
	)
	return q.ID, err
}

// UpdateQuestion replaces an existing question's fields.
func (s *Store) UpdateQuestion(q model.Question) error {
	choices, err := json.Marshal(q.Choices)
	if err != nil {
		return fmt.Errorf("marshal choices: %w", err)
	}
	attachments, err := json.Marshal(q.Attachments)
	if err != nil {
		return fmt.Errorf("marshal attachments: %w", err)
	}
	res, err := s.db.Exec(
		`UPDATE questions SET text = $1, specialization_id = $2, course_year = $3, mark = $4,
		 is_ai_generated = $5, choices_json = $6, attachments_json = $7 WHERE id = $8`,
		q.Text, q.SpecializationID, q.CourseYear, q.Mark, q.IsAIGenerated, string(choices), string(attachments), q.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return err
}

// DeleteQuestion removes a question from the authoring pool. Sessions that
// embedded it are unaffected.
func (s *Store) DeleteQuestion(id string) error {
	_, err := s.db.Exec(`DELETE FROM questions WHERE id = $1`, id)
	return err
}

// GetQuestion returns a question by id.
func (s *Store) GetQuestion(id string) (model.Question, error) {
	row := s.db.QueryRow(
		`SELECT id, text, specialization_id, course_year, mark, is_ai_generated, choices_json, attachments_json
		 FROM questions WHERE id = $1`, id,
	)
	return scanQuestion(row)
}

// ListQuestions returns questions, optionally filtered by specialization.
func (s *Store) ListQuestions(ctx context.Context, specializationID string) ([]model.Question, error) {
	query := `SELECT id, text, specialization_id, course_year, mark, is_ai_generated, choices_json, attachments_json FROM questions`
	var args []any
	if specializationID != "" {
		query += ` WHERE specialization_id = $1`
		args = append(args, specializationID)
	}
	return s.queryQuestions(ctx, query, args...)
}

// ListEligibleQuestions returns questions available for fixed-pool session
// building: filtered by specialization (empty means all) and optionally
// restricted to author-curated ones.
func (s *Store) ListEligibleQuestions(ctx context.Context, specializationID string, excludeAIGenerated bool) ([]model.Question, error) {
	query := `SELECT id, text, specialization_id, course_year, mark, is_ai_generated, choices_json, attachments_json
	 FROM questions WHERE 1=1`
	var args []any
	if specializationID != "" {
		args = append(args, specializationID)
		query += fmt.Sprintf(` AND specialization_id = $%d`, len(args))
	}
	if excludeAIGenerated {
		query += ` AND NOT is_ai_generated`
	}
	return s.queryQuestions(ctx, query, args...)
}

func (s *Store) queryQuestions(ctx context.Context, query string, args ...any) ([]model.Question, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var questions []model.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanQuestion(row scanner) (model.Question, error) {
	var q model.Question
	var choices, attachments string
	err := row.Scan(&q.ID, &q.Text, &q.SpecializationID, &q.CourseYear, &q.Mark, &q.IsAIGenerated, &choices, &attachments)
	if err != nil {
		return q, err
	}
	if err := json.Unmarshal([]byte(choices), &q.Choices); err != nil {
		return q, fmt.Errorf("unmarshal choices for %s: %w", q.ID, err)
	}
	if err := json.Unmarshal([]byte(attachments), &q.Attachments); err != nil {
		return q, fmt.Errorf("unmarshal attachments for %s: %w", q.ID, err)
	}
	return q, nil
}

// QuestionCount returns the number of authored questions.
func (s *Store) QuestionCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM questions`).Scan(&count)
	return count, err
}

// CreateExamDefinition stores an admin-defined exam, assigning an id when
// empty.
func (s *Store) CreateExamDefinition(def model.ExamDefinition) (string, error) {
	if def.ID == "" {
		def.ID = uuid.NewString()
	}
	settings, err := json.Marshal(def.Settings)
	if err != nil {
		return "", fmt.Errorf("marshal settings: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO exam_definitions (id, name, description, num_questions, duration_minutes, passing_grade_percent, settings_json, specialization_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		def.ID, def.Name, def.Description, def.NumQuestions, def.DurationMinutes,
		def.PassingGradePercent, string(settings), def.SpecializationID, def.CreatedAt,
	)
	return def.ID, err
}

// GetExamDefinition returns a definition by id.
func (s *Store) GetExamDefinition(id string) (model.ExamDefinition, error) {
	row := s.db.QueryRow(
		`SELECT id, name, description, num_questions, duration_minutes, passing_grade_percent, settings_json, specialization_id, created_at
		 FROM exam_definitions WHERE id = $1`, id,
	)
	return scanDefinition(row)
}

// ListExamDefinitions returns all definitions, newest first.
func (s *Store) ListExamDefinitions() ([]model.ExamDefinition, error) {
	rows, err := s.db.Query(
		`SELECT id, name, description, num_questions, duration_minutes, passing_grade_percent, settings_json, specialization_id, created_at
		 FROM exam_definitions ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var defs []model.ExamDefinition
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

func scanDefinition(row scanner) (model.ExamDefinition, error) {
	var def model.ExamDefinition
	var settings string
	err := row.Scan(&def.ID, &def.Name, &def.Description, &def.NumQuestions, &def.DurationMinutes,
		&def.PassingGradePercent, &settings, &def.SpecializationID, &def.CreatedAt)
	if err != nil {
		return def, err
	}
	if err := json.Unmarshal([]byte(settings), &def.Settings); err != nil {
		return def, fmt.Errorf("unmarshal settings for %s: %w", def.ID, err)
	}
	return def, nil
}

// AppendSession persists a completed session. Only submitted sessions are
// accepted; re-appending an already stored id is a no-op, so the write can
// be retried after a failure without duplicating the record.
func (s *Store) AppendSession(sess model.ExamSession) error {
	if !sess.Completed() {
		return session.ErrNotSubmitted
	}
	questions, err := json.Marshal(sess.Questions)
	if err != nil {
		return fmt.Errorf("marshal questions: %w", err)
	}
	answers, err := json.Marshal(sess.Answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO exam_sessions (id, student_id, specialization_id, exam_definition_id, exam_name, score, completed_at, questions_json, answers_json)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO NOTHING`,
		sess.ID, sess.StudentID, sess.SpecializationID, sess.ExamDefinitionID, sess.ExamName,
		sess.Score, *sess.CompletedAt, string(questions), string(answers),
	)
	return err
}

// GetSessionByID returns a stored session, or session.ErrSessionNotFound.
func (s *Store) GetSessionByID(id string) (model.ExamSession, error) {
	row := s.db.QueryRow(
		`SELECT id, student_id, specialization_id, exam_definition_id, exam_name, score, completed_at, questions_json, answers_json
		 FROM exam_sessions WHERE id = $1`, id,
	)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ExamSession{}, session.ErrSessionNotFound
	}
	return sess, err
}

// ListSessions returns all stored sessions, most recently completed first.
func (s *Store) ListSessions() ([]model.ExamSession, error) {
	rows, err := s.db.Query(
		`SELECT id, student_id, specialization_id, exam_definition_id, exam_name, score, completed_at, questions_json, answers_json
		 FROM exam_sessions ORDER BY completed_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sessions []model.ExamSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// ListSessionsForStudent returns one student's stored sessions, most recently
// completed first.
func (s *Store) ListSessionsForStudent(studentID string) ([]model.ExamSession, error) {
	rows, err := s.db.Query(
		`SELECT id, student_id, specialization_id, exam_definition_id, exam_name, score, completed_at, questions_json, answers_json
		 FROM exam_sessions WHERE student_id = $1 ORDER BY completed_at DESC`, studentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sessions []model.ExamSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func scanSession(row scanner) (model.ExamSession, error) {
	var sess model.ExamSession
	var completedAt sql.NullTime
	var questions, answers string
	err := row.Scan(&sess.ID, &sess.StudentID, &sess.SpecializationID, &sess.ExamDefinitionID,
		&sess.ExamName, &sess.Score, &completedAt, &questions, &answers)
	if err != nil {
		return sess, err
	}
	if completedAt.Valid {
		at := completedAt.Time
		sess.CompletedAt = &at
	}
	if err := json.Unmarshal([]byte(questions), &sess.Questions); err != nil {
		return sess, fmt.Errorf("unmarshal questions for %s: %w", sess.ID, err)
	}
	if err := json.Unmarshal([]byte(answers), &sess.Answers); err != nil {
		return sess, fmt.Errorf("unmarshal answers for %s: %w", sess.ID, err)
	}
	return sess, nil
}
