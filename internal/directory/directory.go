// Package directory talks to the chat platform's people, room and
// membership endpoints, and sends direct messages on the bot's behalf.
package directory

import "context"

// Person is a platform user.
type Person struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"displayName"`
	Emails      []string `json:"emails,omitempty"`
}

// Email returns the person's primary address, if any.
func (p *Person) Email() string {
	if len(p.Emails) == 0 {
		return ""
	}
	return p.Emails[0]
}

// RoomProfile is the platform's view of a conversation.
type RoomProfile struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	TeamID string `json:"teamId,omitempty"`
	Type   string `json:"type"`
}

// Membership links a person to a room.
type Membership struct {
	PersonID    string `json:"personId"`
	IsModerator bool   `json:"isModerator"`
}

// MembershipPage is one page of a room's memberships. NextPageURL is empty
// on the last page.
type MembershipPage struct {
	Items       []Membership `json:"items"`
	NextPageURL string       `json:"-"`
}

// Directory looks up people, rooms and memberships.
type Directory interface {
	GetPerson(ctx context.Context, personID string) (*Person, error)
	GetRoomProfile(ctx context.Context, roomID string) (*RoomProfile, error)
	// GetMembershipsPage fetches pageURL, or the first page for roomID
	// when pageURL is empty.
	GetMembershipsPage(ctx context.Context, pageURL, roomID string) (*MembershipPage, error)
}

// Messenger delivers direct messages.
type Messenger interface {
	SendDirect(ctx context.Context, personID, markdown string) error
}
