package store

import (
	"context"
	"errors"
	"time"

	"github.com/eldtechnologies/inquire/internal/models"
)

var (
	// ErrNotFound means no record matched. It is an expected outcome.
	ErrNotFound = errors.New("store: not found")
	// ErrAmbiguous means more than one record matched a key that should be
	// unique. It is a data-consistency fault, never a "false".
	ErrAmbiguous = errors.New("store: more than one record matched a unique key")
	// ErrAlreadyExists means a create collided with an existing primary key.
	ErrAlreadyExists = errors.New("store: record already exists")
)

// RoomStore persists room records.
type RoomStore interface {
	// CountRooms returns how many records carry the id.
	CountRooms(ctx context.Context, id string) (int, error)
	GetRoom(ctx context.Context, id string) (*models.Room, error)
	CreateRoom(ctx context.Context, room *models.Room) (*models.Room, error)
	PatchRoom(ctx context.Context, id string, patch models.RoomPatch) (*models.Room, error)
	// NextSequence atomically increments the room's sequence, stamps its
	// last activity and returns the new value.
	NextSequence(ctx context.Context, id string, at time.Time) (int64, error)
	ListActiveRooms(ctx context.Context) ([]models.Room, error)
}

// QuestionStore persists questions and their embedded answers.
type QuestionStore interface {
	CreateQuestion(ctx context.Context, q *models.Question) error
	// AppendAnswer atomically appends to the unique question keyed by
	// (roomID, sequence) and marks it answered.
	AppendAnswer(ctx context.Context, roomID string, sequence int64, answer models.Answer) (*models.Question, error)
	FindQuestion(ctx context.Context, roomID string, sequence int64) (*models.Question, error)
	ListQuestions(ctx context.Context, q QuestionQuery) (*QuestionPage, error)
	CountAnswered(ctx context.Context, roomID string) (int64, error)
}

// DataStore is implemented by PostgresStore, SQLiteStore and MongoStore.
type DataStore interface {
	Close()
	Ping(ctx context.Context) error

	RoomStore
	QuestionStore
}
