package qna

import "errors"

var (
	// ErrMalformedAnswerReference means the message looks like an answer
	// but names no usable question number or carries no body.
	ErrMalformedAnswerReference = errors.New("qna: malformed answer reference")
	// ErrQuestionNotFound means the referenced question does not exist.
	ErrQuestionNotFound = errors.New("qna: question not found")
	// ErrRoomUnavailable means the room could not be found even after it
	// was created.
	ErrRoomUnavailable = errors.New("qna: room unavailable")
	// ErrNotModerator means the sender may not change room settings.
	ErrNotModerator = errors.New("qna: sender is not a moderator")
)
