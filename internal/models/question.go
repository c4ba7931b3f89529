package models

import "time"

// Question is a message logged in a room, numbered by the room's sequence.
type Question struct {
	ID          string    `json:"id" bson:"_id"`
	RoomID      string    `json:"roomId" bson:"_room"`
	Sequence    int64     `json:"sequence" bson:"sequence"`
	AuthorEmail string    `json:"personEmail" bson:"personEmail"`
	AuthorID    string    `json:"personId" bson:"personId"`
	DisplayName string    `json:"displayName" bson:"displayName"`
	Text        string    `json:"text" bson:"text"`
	HTML        string    `json:"html,omitempty" bson:"html,omitempty"`
	Files       []string  `json:"files,omitempty" bson:"files,omitempty"`
	CreatedOn   time.Time `json:"createdOn" bson:"createdOn"`
	Answered    bool      `json:"answered" bson:"answered"`
	Answers     []Answer  `json:"answers" bson:"answers"`
}

// LastAnswer returns the most recently appended answer, if any.
func (q *Question) LastAnswer() (Answer, bool) {
	if len(q.Answers) == 0 {
		return Answer{}, false
	}
	return q.Answers[len(q.Answers)-1], true
}

// Answer is embedded in its question and never edited once appended.
type Answer struct {
	AuthorEmail string    `json:"personEmail" bson:"personEmail"`
	AuthorID    string    `json:"personId" bson:"personId"`
	DisplayName string    `json:"displayName" bson:"displayName"`
	Text        string    `json:"text" bson:"text"`
	HTML        string    `json:"html,omitempty" bson:"html,omitempty"`
	Files       []string  `json:"files,omitempty" bson:"files,omitempty"`
	CreatedOn   time.Time `json:"createdOn" bson:"createdOn"`
}
