package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/XSAM/otelsql"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/patrickwarner/flagdesk/internal/models"
)

// Postgres wraps a postgres DB connection and implements models.FlagStore.
type Postgres struct {
	DB *sql.DB
}

var _ models.FlagStore = (*Postgres)(nil)

// schemaSQL sets up the necessary tables if they don't exist.
const schemaSQL = `CREATE TABLE IF NOT EXISTS users (
    id SERIAL PRIMARY KEY,
    name TEXT NOT NULL,
    email TEXT,
    role TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
    id SERIAL PRIMARY KEY,
    conversation_id INT NOT NULL,
    sender TEXT NOT NULL,
    content TEXT NOT NULL,
    sent_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS quizzes (
    id SERIAL PRIMARY KEY,
    title TEXT NOT NULL,
    course_id INT,
    questions JSONB NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS quiz_attempts (
    id SERIAL PRIMARY KEY,
    quiz_id INT NOT NULL REFERENCES quizzes(id),
    student_name TEXT,
    score DOUBLE PRECISION,
    answers JSONB NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS flagged_items (
    id SERIAL PRIMARY KEY,
    type TEXT NOT NULL,
    content_id INT,
    conversation_id INT,
    message_id INT,
    reason TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending',
    priority TEXT,
    flagged_by_name TEXT NOT NULL,
    flagged_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    assigned_to_id INT REFERENCES users(id),
    assigned_to_name TEXT,
    resolved_by_name TEXT,
    resolved_at TIMESTAMPTZ,
    resolution_notes TEXT,
    metadata JSONB,
    version INT NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS student_notifications (
    id SERIAL PRIMARY KEY,
    flag_id INT REFERENCES flagged_items(id),
    user_id INT NOT NULL,
    text TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages (conversation_id, sent_at);
CREATE INDEX IF NOT EXISTS idx_flagged_items_status ON flagged_items (status, flagged_at DESC);
CREATE INDEX IF NOT EXISTS idx_flagged_items_assignee ON flagged_items (assigned_to_id);
CREATE INDEX IF NOT EXISTS idx_users_role ON users (role);
CREATE INDEX IF NOT EXISTS idx_notifications_user ON student_notifications (user_id, created_at DESC);
`

// InitPostgres connects to Postgres with connection pooling configuration.
func InitPostgres(dsn string, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) (*Postgres, error) {
	driverName, err := otelsql.Register("postgres",
		otelsql.WithAttributes(
			attribute.String("db.system", "postgresql"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("register otelsql: %w", err)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	p := &Postgres{DB: db}
	if err := p.ensureSchema(); err != nil {
		return nil, err
	}
	zap.L().Info("Connected to Postgres with connection pooling",
		zap.Int("max_open_conns", maxOpenConns),
		zap.Int("max_idle_conns", maxIdleConns),
		zap.Duration("conn_max_lifetime", connMaxLifetime))
	return p, nil
}

// Close terminates the Postgres connection.
func (p *Postgres) Close() {
	if p != nil && p.DB != nil {
		if err := p.DB.Close(); err != nil {
			zap.L().Error("postgres close", zap.Error(err))
		}
	}
}

// ensureSchema creates the required tables if they do not exist.
func (p *Postgres) ensureSchema() error {
	if _, err := p.DB.ExecContext(context.Background(), schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

const flagColumns = `id, type, content_id, conversation_id, message_id, reason, status, priority,
 flagged_by_name, flagged_at, assigned_to_id, assigned_to_name, resolved_by_name, resolved_at,
 resolution_notes, metadata, version`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFlag(row rowScanner) (*models.FlaggedItem, error) {
	var (
		f                                 models.FlaggedItem
		contentID, convID, msgID, assigID sql.NullInt64
		status                            string
		priority, assigName, resBy, notes sql.NullString
		resAt                             sql.NullTime
		meta                              []byte
	)
	if err := row.Scan(&f.ID, &f.Type, &contentID, &convID, &msgID, &f.Reason, &status, &priority,
		&f.FlaggedByName, &f.FlaggedAt, &assigID, &assigName, &resBy, &resAt, &notes, &meta, &f.Version); err != nil {
		return nil, err
	}
	st, err := models.ParseStatus(status)
	if err != nil {
		return nil, fmt.Errorf("flag %d: %w", f.ID, err)
	}
	f.Status = st
	f.ContentID = intPtr(contentID)
	f.ConversationID = intPtr(convID)
	f.MessageID = intPtr(msgID)
	f.AssignedToID = intPtr(assigID)
	f.AssignedToName = strPtr(assigName)
	f.ResolvedByName = strPtr(resBy)
	f.ResolutionNotes = strPtr(notes)
	if priority.Valid {
		f.Priority = models.Priority(priority.String)
	}
	if resAt.Valid {
		t := resAt.Time.UTC()
		f.ResolvedAt = &t
	}
	f.FlaggedAt = f.FlaggedAt.UTC()
	if f.Metadata, err = models.DecodeMetadata(f.Type, meta); err != nil {
		return nil, fmt.Errorf("flag %d metadata: %w", f.ID, err)
	}
	return &f, nil
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

func strPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func nullStr(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func nullTime(p *time.Time) sql.NullTime {
	if p == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *p, Valid: true}
}

func (p *Postgres) queryFlags(ctx context.Context, query string, args ...any) ([]models.FlaggedItem, error) {
	rows, err := p.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query flags: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()
	var out []models.FlaggedItem
	for rows.Next() {
		f, err := scanFlag(rows)
		if err != nil {
			return nil, fmt.Errorf("scan flag: %w", err)
		}
		out = append(out, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

// ListFlags returns flags newest first, optionally restricted to one status.
func (p *Postgres) ListFlags(ctx context.Context, status *models.Status) ([]models.FlaggedItem, error) {
	if status == nil {
		return p.queryFlags(ctx, `SELECT `+flagColumns+` FROM flagged_items ORDER BY flagged_at DESC, id DESC`)
	}
	return p.queryFlags(ctx, `SELECT `+flagColumns+` FROM flagged_items WHERE status = $1 ORDER BY flagged_at DESC, id DESC`, status.WireValue())
}

// ListAssignedTo returns every flag assigned to facultyID.
func (p *Postgres) ListAssignedTo(ctx context.Context, facultyID int) ([]models.FlaggedItem, error) {
	return p.queryFlags(ctx, `SELECT `+flagColumns+` FROM flagged_items WHERE assigned_to_id = $1 ORDER BY flagged_at DESC, id DESC`, facultyID)
}

// GetFlag retrieves a flag by ID.
func (p *Postgres) GetFlag(ctx context.Context, id int) (*models.FlaggedItem, error) {
	f, err := scanFlag(p.DB.QueryRowContext(ctx, `SELECT `+flagColumns+` FROM flagged_items WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get flag %d: %w", id, err)
	}
	return f, nil
}

// InsertFlag stores a new flag and sets its ID.
func (p *Postgres) InsertFlag(ctx context.Context, f *models.FlaggedItem) error {
	if f.Status == "" {
		f.Status = models.StatusPending
	}
	if f.FlaggedAt.IsZero() {
		f.FlaggedAt = time.Now().UTC()
	}
	if f.Version == 0 {
		f.Version = 1
	}
	meta, err := models.EncodeMetadata(f.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	var priority sql.NullString
	if f.Priority != "" {
		priority = sql.NullString{String: string(f.Priority), Valid: true}
	}
	err = p.DB.QueryRowContext(ctx, `INSERT INTO flagged_items (type, content_id, conversation_id, message_id, reason, status,
 priority, flagged_by_name, flagged_at, assigned_to_id, assigned_to_name, resolved_by_name, resolved_at, resolution_notes, metadata, version)
 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16) RETURNING id`,
		f.Type, nullInt(f.ContentID), nullInt(f.ConversationID), nullInt(f.MessageID), f.Reason, f.Status.WireValue(),
		priority, f.FlaggedByName, f.FlaggedAt, nullInt(f.AssignedToID), nullStr(f.AssignedToName), nullStr(f.ResolvedByName),
		nullTime(f.ResolvedAt), nullStr(f.ResolutionNotes), nullJSON(meta), f.Version).Scan(&f.ID)
	if err != nil {
		return fmt.Errorf("insert flag: %w", err)
	}
	return nil
}

func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

// UpdateFlag locks the row, applies fn and writes back the lifecycle columns in
// one transaction.
func (p *Postgres) UpdateFlag(ctx context.Context, id, expectedVersion int, fn func(*models.FlaggedItem) error) (*models.FlaggedItem, error) {
	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	f, err := scanFlag(tx.QueryRowContext(ctx, `SELECT `+flagColumns+` FROM flagged_items WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load flag %d: %w", id, err)
	}
	if expectedVersion > 0 && f.Version != expectedVersion {
		return nil, models.ErrVersionMismatch
	}
	if err := fn(f); err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `UPDATE flagged_items SET status = $1, assigned_to_id = $2, assigned_to_name = $3,
 resolved_by_name = $4, resolved_at = $5, resolution_notes = $6, version = $7 WHERE id = $8`,
		f.Status.WireValue(), nullInt(f.AssignedToID), nullStr(f.AssignedToName), nullStr(f.ResolvedByName),
		nullTime(f.ResolvedAt), nullStr(f.ResolutionNotes), f.Version, id)
	if err != nil {
		return nil, fmt.Errorf("update flag %d: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit flag %d: %w", id, err)
	}
	return f, nil
}

// ListUsers returns users ordered by ID. An empty role returns everyone.
func (p *Postgres) ListUsers(ctx context.Context, role string) ([]models.User, error) {
	query := `SELECT id, name, COALESCE(email, ''), role FROM users`
	var args []any
	if role != "" {
		query += ` WHERE role = $1`
		args = append(args, role)
	}
	rows, err := p.DB.QueryContext(ctx, query+` ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()
	var out []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Role); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

// GetUser retrieves a user by ID.
func (p *Postgres) GetUser(ctx context.Context, id int) (*models.User, error) {
	var u models.User
	err := p.DB.QueryRowContext(ctx, `SELECT id, name, COALESCE(email, ''), role FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Name, &u.Email, &u.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", id, err)
	}
	return &u, nil
}

// InsertUser stores a user and sets its ID.
func (p *Postgres) InsertUser(ctx context.Context, u *models.User) error {
	if err := p.DB.QueryRowContext(ctx, `INSERT INTO users (name, email, role) VALUES ($1,$2,$3) RETURNING id`,
		u.Name, u.Email, u.Role).Scan(&u.ID); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// ListMessages returns a conversation in send order. An empty conversation is
// reported as ErrNotFound.
func (p *Postgres) ListMessages(ctx context.Context, conversationID int) ([]models.Message, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT id, conversation_id, sender, content, sent_at FROM messages
 WHERE conversation_id = $1 ORDER BY sent_at, id`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()
	var out []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Sender, &m.Content, &m.SentAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.SentAt = m.SentAt.UTC()
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	if len(out) == 0 {
		return nil, models.ErrNotFound
	}
	return out, nil
}

// InsertMessage stores a chat message and sets its ID.
func (p *Postgres) InsertMessage(ctx context.Context, m *models.Message) error {
	if m.SentAt.IsZero() {
		m.SentAt = time.Now().UTC()
	}
	if err := p.DB.QueryRowContext(ctx, `INSERT INTO messages (conversation_id, sender, content, sent_at) VALUES ($1,$2,$3,$4) RETURNING id`,
		m.ConversationID, m.Sender, m.Content, m.SentAt).Scan(&m.ID); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// GetQuiz retrieves a quiz with its questions.
func (p *Postgres) GetQuiz(ctx context.Context, id int) (*models.Quiz, error) {
	var (
		q         models.Quiz
		courseID  sql.NullInt64
		questions []byte
	)
	err := p.DB.QueryRowContext(ctx, `SELECT id, title, course_id, questions FROM quizzes WHERE id = $1`, id).
		Scan(&q.ID, &q.Title, &courseID, &questions)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get quiz %d: %w", id, err)
	}
	q.CourseID = int(courseID.Int64)
	if err := json.Unmarshal(questions, &q.Questions); err != nil {
		return nil, fmt.Errorf("parse questions: %w", err)
	}
	return &q, nil
}

// InsertQuiz stores a quiz and sets its ID.
func (p *Postgres) InsertQuiz(ctx context.Context, q *models.Quiz) error {
	questions, err := json.Marshal(q.Questions)
	if err != nil {
		return fmt.Errorf("encode questions: %w", err)
	}
	var courseID sql.NullInt64
	if q.CourseID != 0 {
		courseID = sql.NullInt64{Int64: int64(q.CourseID), Valid: true}
	}
	if err := p.DB.QueryRowContext(ctx, `INSERT INTO quizzes (title, course_id, questions) VALUES ($1,$2,$3) RETURNING id`,
		q.Title, courseID, questions).Scan(&q.ID); err != nil {
		return fmt.Errorf("insert quiz: %w", err)
	}
	return nil
}

// GetQuizAttempt retrieves an attempt by ID.
func (p *Postgres) GetQuizAttempt(ctx context.Context, id int) (*models.QuizAttempt, error) {
	var (
		a       models.QuizAttempt
		student sql.NullString
		score   sql.NullFloat64
		answers []byte
	)
	err := p.DB.QueryRowContext(ctx, `SELECT id, quiz_id, student_name, score, answers FROM quiz_attempts WHERE id = $1`, id).
		Scan(&a.ID, &a.QuizID, &student, &score, &answers)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get attempt %d: %w", id, err)
	}
	a.StudentName = student.String
	a.Score = score.Float64
	if err := json.Unmarshal(answers, &a.Answers); err != nil {
		return nil, fmt.Errorf("parse answers: %w", err)
	}
	return &a, nil
}

// InsertQuizAttempt stores an attempt and sets its ID.
func (p *Postgres) InsertQuizAttempt(ctx context.Context, a *models.QuizAttempt) error {
	answers, err := json.Marshal(a.Answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}
	if err := p.DB.QueryRowContext(ctx, `INSERT INTO quiz_attempts (quiz_id, student_name, score, answers) VALUES ($1,$2,$3,$4) RETURNING id`,
		a.QuizID, a.StudentName, a.Score, answers).Scan(&a.ID); err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

// InsertNotification records a student notification.
func (p *Postgres) InsertNotification(ctx context.Context, n models.StudentNotification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if _, err := p.DB.ExecContext(ctx, `INSERT INTO student_notifications (flag_id, user_id, text, created_at) VALUES ($1,$2,$3,$4)`,
		n.FlagID, n.UserID, n.Text, n.CreatedAt); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// ListNotifications returns a student's notifications newest first.
func (p *Postgres) ListNotifications(ctx context.Context, userID int) ([]models.StudentNotification, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT flag_id, user_id, text, created_at FROM student_notifications
 WHERE user_id = $1 ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()
	out := []models.StudentNotification{}
	for rows.Next() {
		var n models.StudentNotification
		if err := rows.Scan(&n.FlagID, &n.UserID, &n.Text, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

// FlagIDsByStatus returns the ids of flags in any of the given statuses. The
// seed tool uses it to avoid duplicating demo data.
func (p *Postgres) FlagIDsByStatus(ctx context.Context, statuses ...models.Status) ([]int64, error) {
	wire := make([]string, len(statuses))
	for i, s := range statuses {
		wire[i] = s.WireValue()
	}
	var ids []int64
	if err := p.DB.QueryRowContext(ctx, `SELECT COALESCE(array_agg(id ORDER BY id), '{}') FROM flagged_items WHERE status = ANY($1)`,
		pq.Array(wire)).Scan(pq.Array(&ids)); err != nil {
		return nil, fmt.Errorf("flag ids by status: %w", err)
	}
	return ids, nil
}
