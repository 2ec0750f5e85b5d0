package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"feedback-collector/backend/internal/db"
	"feedback-collector/backend/internal/session/domain"
)

// Tables names the tables the repository reads and writes.
type Tables struct {
	Sessions string
	Feedback string
}

// DefaultTables matches the embedded migrations.
var DefaultTables = Tables{Sessions: "sessions", Feedback: "feedback"}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLRepository stores sessions in Postgres or SQLite. Organisers, questions, subsession ids and
// answers are JSON text columns decoded into domain types here and nowhere else.
type SQLRepository struct {
	conn    *sql.DB
	q       queryer
	dialect db.Dialect
	tables  Tables
}

// NewSQLRepository returns a session repository that uses conn for persistence.
func NewSQLRepository(conn *sql.DB, dialect db.Dialect, tables Tables) *SQLRepository {
	return &SQLRepository{conn: conn, q: conn, dialect: dialect, tables: tables}
}

// WithinTx runs fn in one transaction. The transaction is always released: committed when fn
// returns nil, rolled back otherwise.
func (r *SQLRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error {
	if _, ok := r.q.(*sql.Tx); ok {
		return fn(ctx, r)
	}
	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(ctx, &SQLRepository{conn: r.conn, q: tx, dialect: r.dialect, tables: r.tables}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

const sessionColumns = `id, name, title, date, multiple_dates, organisers, questions, certificate,
	subsessions, is_subsession, attendance, closed, created_at, updated_at`

// GetByID returns the session for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *SQLRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, sessionColumns, r.tables.Sessions)
	s, err := scanSession(r.q.QueryRowContext(ctx, r.dialect.Rebind(query), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

// GetMany returns the sessions among ids that exist. Missing ids are simply absent from the map.
func (r *SQLRepository) GetMany(ctx context.Context, ids []string) (map[string]*domain.Session, error) {
	out := make(map[string]*domain.Session, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id IN (%s)`, sessionColumns, r.tables.Sessions, db.Placeholders(len(ids)))
	rows, err := r.q.QueryContext(ctx, r.dialect.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out[s.ID] = s
	}
	return out, rows.Err()
}

// Save inserts the session or replaces every column of an existing row.
func (r *SQLRepository) Save(ctx context.Context, s *domain.Session) error {
	organisers, err := json.Marshal(organisersToRows(s.Organisers))
	if err != nil {
		return err
	}
	questions, err := json.Marshal(questionsToRows(s.Questions))
	if err != nil {
		return err
	}
	subsessions := s.Subsessions
	if subsessions == nil {
		subsessions = []string{}
	}
	subs, err := json.Marshal(subsessions)
	if err != nil {
		return err
	}
	created := s.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	updated := s.UpdatedAt
	if updated.IsZero() {
		updated = created
	}
	query := fmt.Sprintf(`INSERT INTO %s (%s)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			title = excluded.title,
			date = excluded.date,
			multiple_dates = excluded.multiple_dates,
			organisers = excluded.organisers,
			questions = excluded.questions,
			certificate = excluded.certificate,
			subsessions = excluded.subsessions,
			is_subsession = excluded.is_subsession,
			attendance = excluded.attendance,
			closed = excluded.closed,
			updated_at = excluded.updated_at`, r.tables.Sessions, sessionColumns)
	_, err = r.q.ExecContext(ctx, r.dialect.Rebind(query),
		s.ID, s.Name, s.Title, s.Date, s.MultipleDates,
		string(organisers), string(questions), s.Certificate, string(subs),
		s.IsSubsession, s.Attendance, s.Closed,
		r.dialect.TimeArg(created), r.dialect.TimeArg(updated),
	)
	return err
}

// CountFeedback returns the number of feedback rows recorded for the session.
func (r *SQLRepository) CountFeedback(ctx context.Context, sessionID string) (int, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE session_id = ?`, r.tables.Feedback)
	var n int
	if err := r.q.QueryRowContext(ctx, r.dialect.Rebind(query), sessionID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// CreateFeedback persists one feedback row. The feedback must have ID set.
func (r *SQLRepository) CreateFeedback(ctx context.Context, f *domain.Feedback) error {
	rows := make([]answerRow, len(f.Answers))
	for i, a := range f.Answers {
		rows[i] = answerRow{QuestionID: a.QuestionID, Value: a.Value}
	}
	answers, err := json.Marshal(rows)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`INSERT INTO %s (id, session_id, answers, attended, created_at) VALUES (?, ?, ?, ?, ?)`, r.tables.Feedback)
	_, err = r.q.ExecContext(ctx, r.dialect.Rebind(query),
		f.ID, f.SessionID, string(answers), f.Attended, r.dialect.TimeArg(f.CreatedAt))
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var (
		s                           domain.Session
		organisers, questions, subs []byte
		created, updated            db.Time
	)
	err := row.Scan(&s.ID, &s.Name, &s.Title, &s.Date, &s.MultipleDates,
		&organisers, &questions, &s.Certificate, &subs,
		&s.IsSubsession, &s.Attendance, &s.Closed, &created, &updated)
	if err != nil {
		return nil, err
	}
	var orgRows []organiserRow
	if err := json.Unmarshal(organisers, &orgRows); err != nil {
		return nil, fmt.Errorf("decode organisers of %s: %w", s.ID, err)
	}
	var qRows []questionRow
	if err := json.Unmarshal(questions, &qRows); err != nil {
		return nil, fmt.Errorf("decode questions of %s: %w", s.ID, err)
	}
	if err := json.Unmarshal(subs, &s.Subsessions); err != nil {
		return nil, fmt.Errorf("decode subsessions of %s: %w", s.ID, err)
	}
	s.Organisers = rowsToOrganisers(orgRows)
	s.Questions = rowsToQuestions(qRows)
	s.CreatedAt = created.Time
	s.UpdatedAt = updated.Time
	return &s, nil
}

type organiserRow struct {
	Name          string     `json:"name"`
	Email         string     `json:"email"`
	IsLead        bool       `json:"isLead"`
	CanEdit       bool       `json:"canEdit"`
	PinHash       string     `json:"pinHash"`
	Salt          string     `json:"salt"`
	Notifications bool       `json:"notifications"`
	LastSent      *time.Time `json:"lastSent"`
}

type questionRow struct {
	ID       string   `json:"id"`
	Text     string   `json:"text"`
	Type     string   `json:"type"`
	Options  []string `json:"options,omitempty"`
	Required bool     `json:"required"`
}

type answerRow struct {
	QuestionID string `json:"questionId"`
	Value      string `json:"value"`
}

func organisersToRows(in []domain.Organiser) []organiserRow {
	out := make([]organiserRow, len(in))
	for i, o := range in {
		out[i] = organiserRow(o)
	}
	return out
}

func rowsToOrganisers(in []organiserRow) []domain.Organiser {
	out := make([]domain.Organiser, len(in))
	for i, o := range in {
		out[i] = domain.Organiser(o)
	}
	return out
}

func questionsToRows(in []domain.Question) []questionRow {
	out := make([]questionRow, len(in))
	for i, q := range in {
		out[i] = questionRow{ID: q.ID, Text: q.Text, Type: string(q.Type), Options: q.Options, Required: q.Required}
	}
	return out
}

func rowsToQuestions(in []questionRow) []domain.Question {
	out := make([]domain.Question, len(in))
	for i, q := range in {
		out[i] = domain.Question{ID: q.ID, Text: q.Text, Type: domain.QuestionType(q.Type), Options: q.Options, Required: q.Required}
	}
	return out
}
