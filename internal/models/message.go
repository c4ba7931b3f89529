package models

import "errors"

// UnknownDisplayName is used when the directory cannot name a person or room.
const UnknownDisplayName = "Unknown"

// Room types reported by the directory.
const (
	RoomTypeGroup  = "group"
	RoomTypeDirect = "direct"
)

// MessageData carries the platform-specific part of an inbound message.
type MessageData struct {
	PersonID string   `json:"personId"`
	Files    []string `json:"files,omitempty"`
}

// InboundMessage is a chat message delivered by the transport.
type InboundMessage struct {
	ID      string      `json:"id,omitempty"`
	Channel string      `json:"channel"`
	Text    string      `json:"text"`
	HTML    string      `json:"html,omitempty"`
	OrgID   string      `json:"orgId,omitempty"`
	User    string      `json:"user"`
	Data    MessageData `json:"data"`

	// Filled in by enrichment, never by the transport.
	PersonDisplayName string `json:"-"`
	RoomTitle         string `json:"-"`
	RoomTeamID        string `json:"-"`
	RoomType          string `json:"-"`
}

// Validate checks the fields every path relies on.
func (m *InboundMessage) Validate() error {
	if m.Channel == "" {
		return errors.New("message has no channel")
	}
	if m.Data.PersonID == "" {
		return errors.New("message has no person id")
	}
	return nil
}

// Space event kinds.
const (
	SpaceJoin  = "join"
	SpaceLeave = "leave"
)

// SpaceEvent reports the bot joining or leaving a conversation.
type SpaceEvent struct {
	Event   string `json:"event"`
	Channel string `json:"channel"`
	OrgID   string `json:"orgId,omitempty"`
}

// Validate checks that the event names a known kind and a channel.
func (e *SpaceEvent) Validate() error {
	if e.Channel == "" {
		return errors.New("event has no channel")
	}
	if e.Event != SpaceJoin && e.Event != SpaceLeave {
		return errors.New("unknown space event")
	}
	return nil
}
