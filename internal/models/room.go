package models

import "time"

// Room represents one chat conversation (a "space") that hosts a Q&A thread.
type Room struct {
	ID           string    `json:"id" bson:"_id"`
	DisplayName  string    `json:"displayName" bson:"displayName"`
	TeamID       string    `json:"teamId,omitempty" bson:"teamId,omitempty"`
	OrgID        string    `json:"orgId,omitempty" bson:"orgId,omitempty"`
	Active       bool      `json:"active" bson:"active"`
	Sequence     int64     `json:"sequence" bson:"sequence"`
	Memberships  []string  `json:"memberships" bson:"memberships"`
	Moderators   []string  `json:"moderators" bson:"moderators"`
	LastActivity time.Time `json:"lastActivity" bson:"lastActivity"`
	Mode         string    `json:"mode,omitempty" bson:"mode,omitempty"`
	Sticky       string    `json:"sticky,omitempty" bson:"sticky,omitempty"`
	AnswerCount  int64     `json:"answerCount" bson:"answerCount"`
	CreatedOn    time.Time `json:"createdOn" bson:"createdOn"`
}

// HasModerator reports whether personID may perform privileged actions.
// A room without moderators places no restriction.
func (r *Room) HasModerator(personID string) bool {
	if len(r.Moderators) == 0 {
		return true
	}
	for _, id := range r.Moderators {
		if id == personID {
			return true
		}
	}
	return false
}

// RoomPatch lists the room fields to overwrite. Nil fields are left alone.
type RoomPatch struct {
	DisplayName  *string
	TeamID       *string
	Active       *bool
	Members      *Members
	LastActivity *time.Time
	Mode         *string
	Sticky       *string
	AnswerCount  *int64
}

// Members replaces both membership sets of a room in one write.
type Members struct {
	Memberships []string
	Moderators  []string
}

// IsEmpty reports whether the patch changes nothing.
func (p RoomPatch) IsEmpty() bool {
	return p.DisplayName == nil && p.TeamID == nil && p.Active == nil &&
		p.Members == nil && p.LastActivity == nil && p.Mode == nil &&
		p.Sticky == nil && p.AnswerCount == nil
}
