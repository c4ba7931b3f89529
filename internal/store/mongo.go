package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/eldtechnologies/inquire/internal/models"
)

const (
	roomsCollection     = "spaces"
	questionsCollection = "questions"
)

// MongoStore keeps rooms and questions as documents. Answers are embedded
// in their question document.
type MongoStore struct {
	client    *mongo.Client
	rooms     *mongo.Collection
	questions *mongo.Collection
}

// NewMongoStore connects to uri, selects database and ensures indexes.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	db := client.Database(database)
	s := &MongoStore{
		client:    client,
		rooms:     db.Collection(roomsCollection),
		questions: db.Collection(questionsCollection),
	}
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

// EnsureIndexes creates the unique (room, sequence) index and the text
// index used by question search.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.questions.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "_room", Value: 1}, {Key: "sequence", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("room_sequence"),
		},
		{
			Keys:    bson.D{{Key: "_room", Value: 1}, {Key: "createdOn", Value: -1}},
			Options: options.Index().SetName("room_created"),
		},
		{
			Keys:    bson.D{{Key: "text", Value: "text"}},
			Options: options.Index().SetName("question_text"),
		},
	})
	if err != nil {
		return err
	}
	_, err = s.rooms.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "active", Value: 1}},
		Options: options.Index().SetName("room_active"),
	})
	return err
}

// Close disconnects the client.
func (s *MongoStore) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.client.Disconnect(ctx)
}

// Ping checks the connection to the primary.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func mapMongoErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return ErrAlreadyExists
	default:
		return err
	}
}

// CountRooms counts room documents with the given id.
func (s *MongoStore) CountRooms(ctx context.Context, id string) (int, error) {
	n, err := s.rooms.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(2))
	return int(n), err
}

// GetRoom retrieves a room by ID.
func (s *MongoStore) GetRoom(ctx context.Context, id string) (*models.Room, error) {
	room := &models.Room{}
	if err := s.rooms.FindOne(ctx, bson.M{"_id": id}).Decode(room); err != nil {
		return nil, mapMongoErr(err)
	}
	return room, nil
}

// CreateRoom inserts a room document.
func (s *MongoStore) CreateRoom(ctx context.Context, room *models.Room) (*models.Room, error) {
	doc := *room
	doc.Memberships = nonNil(doc.Memberships)
	doc.Moderators = nonNil(doc.Moderators)
	if _, err := s.rooms.InsertOne(ctx, doc); err != nil {
		return nil, mapMongoErr(err)
	}
	return &doc, nil
}

// PatchRoom applies patch with a single $set.
func (s *MongoStore) PatchRoom(ctx context.Context, id string, patch models.RoomPatch) (*models.Room, error) {
	if patch.IsEmpty() {
		return s.GetRoom(ctx, id)
	}

	set := bson.M{}
	if patch.DisplayName != nil {
		set["displayName"] = *patch.DisplayName
	}
	if patch.TeamID != nil {
		set["teamId"] = *patch.TeamID
	}
	if patch.Active != nil {
		set["active"] = *patch.Active
	}
	if patch.Members != nil {
		set["memberships"] = nonNil(patch.Members.Memberships)
		set["moderators"] = nonNil(patch.Members.Moderators)
	}
	if patch.LastActivity != nil {
		set["lastActivity"] = *patch.LastActivity
	}
	if patch.Mode != nil {
		set["mode"] = *patch.Mode
	}
	if patch.Sticky != nil {
		set["sticky"] = *patch.Sticky
	}
	if patch.AnswerCount != nil {
		set["answerCount"] = *patch.AnswerCount
	}

	room := &models.Room{}
	err := s.rooms.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(room)
	if err != nil {
		return nil, mapMongoErr(err)
	}
	return room, nil
}

// NextSequence increments the room's sequence with $inc and returns the
// post-update value.
func (s *MongoStore) NextSequence(ctx context.Context, id string, at time.Time) (int64, error) {
	var room struct {
		Sequence int64 `bson:"sequence"`
	}
	err := s.rooms.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$inc": bson.M{"sequence": 1}, "$set": bson.M{"lastActivity": at}},
		options.FindOneAndUpdate().
			SetReturnDocument(options.After).
			SetProjection(bson.M{"sequence": 1}),
	).Decode(&room)
	if err != nil {
		return 0, mapMongoErr(err)
	}
	return room.Sequence, nil
}

// ListActiveRooms returns every room the bot is still a member of.
func (s *MongoStore) ListActiveRooms(ctx context.Context) ([]models.Room, error) {
	cur, err := s.rooms.Find(ctx, bson.M{"active": true},
		options.Find().SetSort(bson.D{{Key: "lastActivity", Value: -1}}))
	if err != nil {
		return nil, err
	}
	var rooms []models.Room
	if err := cur.All(ctx, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

// CreateQuestion inserts a question document.
func (s *MongoStore) CreateQuestion(ctx context.Context, q *models.Question) error {
	doc := *q
	if doc.Answers == nil {
		doc.Answers = []models.Answer{}
	}
	_, err := s.questions.InsertOne(ctx, doc)
	return mapMongoErr(err)
}

func questionKey(roomID string, sequence int64) bson.M {
	return bson.M{"_room": roomID, "sequence": sequence}
}

// AppendAnswer pushes the answer onto the embedded list with $push.
func (s *MongoStore) AppendAnswer(ctx context.Context, roomID string, sequence int64, answer models.Answer) (*models.Question, error) {
	key := questionKey(roomID, sequence)
	n, err := s.questions.CountDocuments(ctx, key, options.Count().SetLimit(2))
	if err != nil {
		return nil, err
	}
	switch {
	case n == 0:
		return nil, ErrNotFound
	case n > 1:
		return nil, ErrAmbiguous
	}

	q := &models.Question{}
	err = s.questions.FindOneAndUpdate(ctx, key,
		bson.M{
			"$push": bson.M{"answers": answer},
			"$set":  bson.M{"answered": true},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(q)
	if err != nil {
		return nil, mapMongoErr(err)
	}
	return q, nil
}

// FindQuestion looks up a question by its room and sequence.
func (s *MongoStore) FindQuestion(ctx context.Context, roomID string, sequence int64) (*models.Question, error) {
	cur, err := s.questions.Find(ctx, questionKey(roomID, sequence), options.Find().SetLimit(2))
	if err != nil {
		return nil, err
	}
	var found []models.Question
	if err := cur.All(ctx, &found); err != nil {
		return nil, err
	}
	switch len(found) {
	case 0:
		return nil, ErrNotFound
	case 1:
		return &found[0], nil
	default:
		return nil, ErrAmbiguous
	}
}

// mongoSort orders by the sort field, breaking ties on sequence.
// Duplicate sort keys are rejected by the server.
func mongoSort(sort Sort, dir int) bson.D {
	order := bson.D{{Key: mongoSortField(sort.Field), Value: dir}}
	if sort.Field != SortSequence {
		order = append(order, bson.E{Key: "sequence", Value: dir})
	}
	return order
}

func mongoSortField(f SortField) string {
	switch f {
	case SortSequence:
		return "sequence"
	case SortDisplayName:
		return "displayName"
	default:
		return "createdOn"
	}
}

// ListQuestions returns a filtered, sorted window of a room's questions.
func (s *MongoStore) ListQuestions(ctx context.Context, q QuestionQuery) (*QuestionPage, error) {
	filter := bson.M{"_room": q.RoomID}
	switch q.Filter {
	case FilterAnswered:
		filter["answered"] = true
	case FilterUnanswered:
		filter["answered"] = bson.M{"$ne": true}
	}
	if search := strings.TrimSpace(q.Search); search != "" {
		filter["$text"] = bson.M{"$search": search}
	}

	total, err := s.questions.CountDocuments(ctx, filter)
	if err != nil {
		return nil, err
	}
	page := &QuestionPage{Items: []models.Question{}, Total: int(total), Limit: q.Limit, Skip: q.Skip}
	if q.Limit == 0 {
		return page, nil
	}

	dir := 1
	if q.Sort.Desc {
		dir = -1
	}
	opts := options.Find().
		SetSort(mongoSort(q.Sort, dir)).
		SetSkip(int64(q.Skip)).
		SetLimit(int64(q.Limit))
	cur, err := s.questions.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	if err := cur.All(ctx, &page.Items); err != nil {
		return nil, err
	}
	return page, nil
}

// CountAnswered counts the room's answered questions.
func (s *MongoStore) CountAnswered(ctx context.Context, roomID string) (int64, error) {
	return s.questions.CountDocuments(ctx, bson.M{"_room": roomID, "answered": true})
}
