package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eldtechnologies/inquire/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const pgRoomColumns = `id, display_name, team_id, org_id, active, sequence, memberships,
	moderators, last_activity, mode, sticky, answer_count, created_on`

const pgQuestionColumns = `id, room_id, sequence, person_email, person_id, display_name,
	text, html, files, created_on, answered, answers`

func scanPgRoom(row pgx.Row) (*models.Room, error) {
	room := &models.Room{}
	err := row.Scan(
		&room.ID,
		&room.DisplayName,
		&room.TeamID,
		&room.OrgID,
		&room.Active,
		&room.Sequence,
		&room.Memberships,
		&room.Moderators,
		&room.LastActivity,
		&room.Mode,
		&room.Sticky,
		&room.AnswerCount,
		&room.CreatedOn,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return room, nil
}

func scanPgQuestion(row pgx.Row) (*models.Question, error) {
	q := &models.Question{}
	err := row.Scan(
		&q.ID,
		&q.RoomID,
		&q.Sequence,
		&q.AuthorEmail,
		&q.AuthorID,
		&q.DisplayName,
		&q.Text,
		&q.HTML,
		&q.Files,
		&q.CreatedOn,
		&q.Answered,
		&q.Answers,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return q, nil
}

func isPgConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func nonNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}

// CountRooms counts room records with the given id.
func (s *PostgresStore) CountRooms(ctx context.Context, id string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM rooms WHERE id = $1`, id).Scan(&n)
	return n, err
}

// GetRoom retrieves a room by ID.
func (s *PostgresStore) GetRoom(ctx context.Context, id string) (*models.Room, error) {
	return scanPgRoom(s.pool.QueryRow(ctx, `SELECT `+pgRoomColumns+` FROM rooms WHERE id = $1`, id))
}

// CreateRoom inserts a room. A second room with the same id is rejected
// with ErrAlreadyExists.
func (s *PostgresStore) CreateRoom(ctx context.Context, room *models.Room) (*models.Room, error) {
	created, err := scanPgRoom(s.pool.QueryRow(ctx, `
		INSERT INTO rooms (id, display_name, team_id, org_id, active, sequence, memberships,
			moderators, last_activity, mode, sticky, answer_count, created_on)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING `+pgRoomColumns,
		room.ID, room.DisplayName, room.TeamID, room.OrgID, room.Active, room.Sequence,
		nonNil(room.Memberships), nonNil(room.Moderators), room.LastActivity, room.Mode,
		room.Sticky, room.AnswerCount, room.CreatedOn,
	))
	if err != nil {
		if isPgConflict(err) {
			return nil, ErrAlreadyExists
		}
		return nil, err
	}
	return created, nil
}

// PatchRoom overwrites the fields set in patch.
func (s *PostgresStore) PatchRoom(ctx context.Context, id string, patch models.RoomPatch) (*models.Room, error) {
	if patch.IsEmpty() {
		return s.GetRoom(ctx, id)
	}

	var sets []string
	args := []any{id}
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
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
		set("memberships", nonNil(patch.Members.Memberships))
		set("moderators", nonNil(patch.Members.Moderators))
	}
	if patch.LastActivity != nil {
		set("last_activity", *patch.LastActivity)
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

	return scanPgRoom(s.pool.QueryRow(ctx,
		`UPDATE rooms SET `+strings.Join(sets, ", ")+` WHERE id = $1 RETURNING `+pgRoomColumns,
		args...))
}

// NextSequence increments the room's sequence in a single statement.
func (s *PostgresStore) NextSequence(ctx context.Context, id string, at time.Time) (int64, error) {
	var seq int64
	err := s.pool.QueryRow(ctx, `
		UPDATE rooms SET sequence = sequence + 1, last_activity = $2
		WHERE id = $1
		RETURNING sequence
	`, id, at).Scan(&seq)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return seq, nil
}

// ListActiveRooms returns every room the bot is still a member of.
func (s *PostgresStore) ListActiveRooms(ctx context.Context) ([]models.Room, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgRoomColumns+` FROM rooms WHERE active = TRUE ORDER BY last_activity DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []models.Room
	for rows.Next() {
		room, err := scanPgRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, *room)
	}
	return rooms, rows.Err()
}

// CreateQuestion inserts a question. The (room, sequence) pair must be new.
func (s *PostgresStore) CreateQuestion(ctx context.Context, q *models.Question) error {
	answers := q.Answers
	if answers == nil {
		answers = []models.Answer{}
	}
	encoded, err := json.Marshal(answers)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO questions (id, room_id, sequence, person_email, person_id, display_name,
			text, html, files, created_on, answered, answers)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, q.ID, q.RoomID, q.Sequence, q.AuthorEmail, q.AuthorID, q.DisplayName,
		q.Text, q.HTML, nonNil(q.Files), q.CreatedOn, q.Answered, string(encoded))
	if err != nil && isPgConflict(err) {
		return ErrAlreadyExists
	}
	return err
}

// AppendAnswer pushes the answer onto the question's JSONB list in one
// statement; concurrent appends to the same row serialize on its lock.
func (s *PostgresStore) AppendAnswer(ctx context.Context, roomID string, sequence int64, answer models.Answer) (*models.Question, error) {
	n, err := s.countQuestions(ctx, roomID, sequence)
	if err != nil {
		return nil, err
	}
	if n > 1 {
		return nil, ErrAmbiguous
	}

	encoded, err := json.Marshal(answer)
	if err != nil {
		return nil, err
	}
	return scanPgQuestion(s.pool.QueryRow(ctx, `
		UPDATE questions
		SET answers = answers || jsonb_build_array($3::jsonb), answered = TRUE
		WHERE room_id = $1 AND sequence = $2
		RETURNING `+pgQuestionColumns,
		roomID, sequence, string(encoded)))
}

func (s *PostgresStore) countQuestions(ctx context.Context, roomID string, sequence int64) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM questions WHERE room_id = $1 AND sequence = $2`,
		roomID, sequence).Scan(&n)
	return n, err
}

// FindQuestion looks up a question by its room and sequence.
func (s *PostgresStore) FindQuestion(ctx context.Context, roomID string, sequence int64) (*models.Question, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgQuestionColumns+` FROM questions WHERE room_id = $1 AND sequence = $2 LIMIT 2`,
		roomID, sequence)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var found []*models.Question
	for rows.Next() {
		q, err := scanPgQuestion(rows)
		if err != nil {
			return nil, err
		}
		found = append(found, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	switch len(found) {
	case 0:
		return nil, ErrNotFound
	case 1:
		return found[0], nil
	default:
		return nil, ErrAmbiguous
	}
}

// ListQuestions returns a filtered, sorted window of a room's questions.
func (s *PostgresStore) ListQuestions(ctx context.Context, q QuestionQuery) (*QuestionPage, error) {
	where := []string{"room_id = $1"}
	args := []any{q.RoomID}
	switch q.Filter {
	case FilterAnswered:
		where = append(where, "answered IS TRUE")
	case FilterUnanswered:
		where = append(where, "answered IS NOT TRUE")
	}
	if search := strings.TrimSpace(q.Search); search != "" {
		args = append(args, search)
		where = append(where, fmt.Sprintf("search @@ plainto_tsquery('simple', $%d)", len(args)))
	}
	clause := strings.Join(where, " AND ")

	page := &QuestionPage{Items: []models.Question{}, Limit: q.Limit, Skip: q.Skip}
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM questions WHERE `+clause, args...).Scan(&page.Total); err != nil {
		return nil, err
	}
	if q.Limit == 0 {
		return page, nil
	}

	limitArg := len(args) + 1
	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT %s FROM questions WHERE %s ORDER BY %s LIMIT $%d OFFSET $%d`,
		pgQuestionColumns, clause, q.Sort.OrderBy(),
		limitArg, limitArg+1),
		append(args, q.Limit, q.Skip)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		question, err := scanPgQuestion(rows)
		if err != nil {
			return nil, err
		}
		page.Items = append(page.Items, *question)
	}
	return page, rows.Err()
}

// CountAnswered counts the room's answered questions.
func (s *PostgresStore) CountAnswered(ctx context.Context, roomID string) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM questions WHERE room_id = $1 AND answered IS TRUE`, roomID).Scan(&n)
	return n, err
}
