package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/eldtechnologies/inquire/internal/models"
)

// SQLiteStore handles SQLite database operations.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/inquire.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/inquire.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	// One writer at a time; the sequence and answer updates rely on it.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS rooms (
		id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL DEFAULT '',
		team_id TEXT NOT NULL DEFAULT '',
		org_id TEXT NOT NULL DEFAULT '',
		active INTEGER NOT NULL DEFAULT 1,
		sequence INTEGER NOT NULL DEFAULT 0,
		memberships TEXT NOT NULL DEFAULT '[]',
		moderators TEXT NOT NULL DEFAULT '[]',
		last_activity INTEGER NOT NULL DEFAULT 0,
		mode TEXT NOT NULL DEFAULT '',
		sticky TEXT NOT NULL DEFAULT '',
		answer_count INTEGER NOT NULL DEFAULT 0,
		created_on INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS questions (
		id TEXT PRIMARY KEY,
		room_id TEXT NOT NULL REFERENCES rooms(id),
		sequence INTEGER NOT NULL,
		person_email TEXT NOT NULL DEFAULT '',
		person_id TEXT NOT NULL DEFAULT '',
		display_name TEXT NOT NULL DEFAULT '',
		text TEXT NOT NULL DEFAULT '',
		html TEXT NOT NULL DEFAULT '',
		files TEXT NOT NULL DEFAULT '[]',
		created_on INTEGER NOT NULL DEFAULT 0,
		answered INTEGER NOT NULL DEFAULT 0,
		answers TEXT NOT NULL DEFAULT '[]',
		UNIQUE (room_id, sequence)
	);

	CREATE INDEX IF NOT EXISTS idx_rooms_active ON rooms(active);
	CREATE INDEX IF NOT EXISTS idx_questions_room_answered ON questions(room_id, answered);
	CREATE INDEX IF NOT EXISTS idx_questions_room_created ON questions(room_id, created_on);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const sqliteRoomColumns = `id, display_name, team_id, org_id, active, sequence, memberships,
	moderators, last_activity, mode, sticky, answer_count, created_on`

const sqliteQuestionColumns = `id, room_id, sequence, person_email, person_id, display_name,
	text, html, files, created_on, answered, answers`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRoom(row rowScanner) (*models.Room, error) {
	room := &models.Room{}
	var memberships, moderators string
	var lastActivity, createdOn int64
	err := row.Scan(
		&room.ID,
		&room.DisplayName,
		&room.TeamID,
		&room.OrgID,
		&room.Active,
		&room.Sequence,
		&memberships,
		&moderators,
		&lastActivity,
		&room.Mode,
		&room.Sticky,
		&room.AnswerCount,
		&createdOn,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	room.LastActivity = fromMillis(lastActivity)
	room.CreatedOn = fromMillis(createdOn)
	if err := decodeJSONList(memberships, &room.Memberships); err != nil {
		return nil, err
	}
	if err := decodeJSONList(moderators, &room.Moderators); err != nil {
		return nil, err
	}
	return room, nil
}

func scanSQLiteQuestion(row rowScanner) (*models.Question, error) {
	q := &models.Question{}
	var files, answers string
	var createdOn int64
	err := row.Scan(
		&q.ID,
		&q.RoomID,
		&q.Sequence,
		&q.AuthorEmail,
		&q.AuthorID,
		&q.DisplayName,
		&q.Text,
		&q.HTML,
		&files,
		&createdOn,
		&q.Answered,
		&answers,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	q.CreatedOn = fromMillis(createdOn)
	if err := decodeJSONList(files, &q.Files); err != nil {
		return nil, err
	}
	if err := decodeJSONList(answers, &q.Answers); err != nil {
		return nil, err
	}
	return q, nil
}

func decodeJSONList[T any](raw string, out *[]T) error {
	if raw == "" || raw == "null" {
		*out = []T{}
		return nil
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("decode json column: %w", err)
	}
	return nil
}

func encodeJSONList[T any](list []T) (string, error) {
	if list == nil {
		list = []T{}
	}
	b, err := json.Marshal(list)
	return string(b), err
}

func isSQLiteConflict(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

// CountRooms counts room records with the given id.
func (s *SQLiteStore) CountRooms(ctx context.Context, id string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rooms WHERE id = ?`, id).Scan(&n)
	return n, err
}

// GetRoom retrieves a room by ID.
func (s *SQLiteStore) GetRoom(ctx context.Context, id string) (*models.Room, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteRoomColumns+` FROM rooms WHERE id = ?`, id)
	return scanSQLiteRoom(row)
}

// CreateRoom inserts a room. A second room with the same id is rejected
// with ErrAlreadyExists.
func (s *SQLiteStore) CreateRoom(ctx context.Context, room *models.Room) (*models.Room, error) {
	memberships, err := encodeJSONList(room.Memberships)
	if err != nil {
		return nil, err
	}
	moderators, err := encodeJSONList(room.Moderators)
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO rooms (id, display_name, team_id, org_id, active, sequence, memberships,
			moderators, last_activity, mode, sticky, answer_count, created_on)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING `+sqliteRoomColumns,
		room.ID, room.DisplayName, room.TeamID, room.OrgID, room.Active, room.Sequence,
		memberships, moderators, room.LastActivity.UnixMilli(), room.Mode, room.Sticky,
		room.AnswerCount, room.CreatedOn.UnixMilli(),
	)
	created, err := scanSQLiteRoom(row)
	if err != nil {
		if isSQLiteConflict(err) {
			return nil, ErrAlreadyExists
		}
		return nil, err
	}
	return created, nil
}

// PatchRoom overwrites the fields set in patch.
func (s *SQLiteStore) PatchRoom(ctx context.Context, id string, patch models.RoomPatch) (*models.Room, error) {
	if patch.IsEmpty() {
		return s.GetRoom(ctx, id)
	}

	var sets []string
	var args []any
	set := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}
	if patch.DisplayName != nil {
		set("display_name", *patch.DisplayName)
	}
	if patch.TeamID != nil {
		set("team_id", *patch.TeamID)
	}
	if patch.Active != nil {
		set("active", *patch.Active)
	}
	if patch.Members != nil {
		memberships, err := encodeJSONList(patch.Members.Memberships)
		if err != nil {
			return nil, err
		}
		moderators, err := encodeJSONList(patch.Members.Moderators)
		if err != nil {
			return nil, err
		}
		set("memberships", memberships)
		set("moderators", moderators)
	}
	if patch.LastActivity != nil {
		set("last_activity", patch.LastActivity.UnixMilli())
	}
	if patch.Mode != nil {
		set("mode", *patch.Mode)
	}
	if patch.Sticky != nil {
		set("sticky", *patch.Sticky)
	}
	if patch.AnswerCount != nil {
		set("answer_count", *patch.AnswerCount)
	}
	args = append(args, id)

	row := s.db.QueryRowContext(ctx,
		`UPDATE rooms SET `+strings.Join(sets, ", ")+` WHERE id = ? RETURNING `+sqliteRoomColumns,
		args...)
	return scanSQLiteRoom(row)
}

// NextSequence increments the room's sequence in a single statement.
func (s *SQLiteStore) NextSequence(ctx context.Context, id string, at time.Time) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		UPDATE rooms SET sequence = sequence + 1, last_activity = ?
		WHERE id = ?
		RETURNING sequence
	`, at.UnixMilli(), id).Scan(&seq)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return seq, nil
}

// ListActiveRooms returns every room the bot is still a member of.
func (s *SQLiteStore) ListActiveRooms(ctx context.Context) ([]models.Room, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteRoomColumns+` FROM rooms WHERE active = 1 ORDER BY last_activity DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []models.Room
	for rows.Next() {
		room, err := scanSQLiteRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, *room)
	}
	return rooms, rows.Err()
}

// CreateQuestion inserts a question. The (room, sequence) pair must be new.
func (s *SQLiteStore) CreateQuestion(ctx context.Context, q *models.Question) error {
	files, err := encodeJSONList(q.Files)
	if err != nil {
		return err
	}
	answers, err := encodeJSONList(q.Answers)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO questions (id, room_id, sequence, person_email, person_id, display_name,
			text, html, files, created_on, answered, answers)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, q.ID, q.RoomID, q.Sequence, q.AuthorEmail, q.AuthorID, q.DisplayName,
		q.Text, q.HTML, files, q.CreatedOn.UnixMilli(), q.Answered, answers)
	if err != nil && isSQLiteConflict(err) {
		return ErrAlreadyExists
	}
	return err
}

// AppendAnswer pushes the answer onto the question's list in one statement.
func (s *SQLiteStore) AppendAnswer(ctx context.Context, roomID string, sequence int64, answer models.Answer) (*models.Question, error) {
	n, err := s.countQuestions(ctx, roomID, sequence)
	if err != nil {
		return nil, err
	}
	if n > 1 {
		return nil, ErrAmbiguous
	}

	answer.CreatedOn = answer.CreatedOn.UTC()
	encoded, err := json.Marshal(answer)
	if err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, `
		UPDATE questions
		SET answers = json_insert(answers, '$[#]', json(?)), answered = 1
		WHERE room_id = ? AND sequence = ?
		RETURNING `+sqliteQuestionColumns,
		string(encoded), roomID, sequence)
	return scanSQLiteQuestion(row)
}

func (s *SQLiteStore) countQuestions(ctx context.Context, roomID string, sequence int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM questions WHERE room_id = ? AND sequence = ?`,
		roomID, sequence).Scan(&n)
	return n, err
}

// FindQuestion looks up a question by its room and sequence.
func (s *SQLiteStore) FindQuestion(ctx context.Context, roomID string, sequence int64) (*models.Question, error) {
	n, err := s.countQuestions(ctx, roomID, sequence)
	if err != nil {
		return nil, err
	}
	switch {
	case n == 0:
		return nil, ErrNotFound
	case n > 1:
		return nil, ErrAmbiguous
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteQuestionColumns+` FROM questions WHERE room_id = ? AND sequence = ?`,
		roomID, sequence)
	return scanSQLiteQuestion(row)
}

// ListQuestions returns a filtered, sorted window of a room's questions.
func (s *SQLiteStore) ListQuestions(ctx context.Context, q QuestionQuery) (*QuestionPage, error) {
	where := []string{"room_id = ?"}
	args := []any{q.RoomID}
	switch q.Filter {
	case FilterAnswered:
		where = append(where, "answered = 1")
	case FilterUnanswered:
		where = append(where, "answered = 0")
	}
	for _, word := range strings.Fields(q.Search) {
		where = append(where, `text LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(word)+"%")
	}
	clause := strings.Join(where, " AND ")

	page := &QuestionPage{Items: []models.Question{}, Limit: q.Limit, Skip: q.Skip}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions WHERE `+clause, args...).Scan(&page.Total); err != nil {
		return nil, err
	}
	if q.Limit == 0 {
		return page, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteQuestionColumns+` FROM questions WHERE `+clause+
			` ORDER BY `+q.Sort.OrderBy()+
			` LIMIT ? OFFSET ?`,
		append(args, q.Limit, q.Skip)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		question, err := scanSQLiteQuestion(rows)
		if err != nil {
			return nil, err
		}
		page.Items = append(page.Items, *question)
	}
	return page, rows.Err()
}

// CountAnswered counts the room's answered questions.
func (s *SQLiteStore) CountAnswered(ctx context.Context, roomID string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM questions WHERE room_id = ? AND answered = 1`, roomID).Scan(&n)
	return n, err
}

// Times are stored as Unix milliseconds.
func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
