package model

import "time"

// FamilyMember is a registered reunion attendee. ConnectedThrough holds the
// name (not the id) of the member this person is linked to.
type FamilyMember struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Email            string    `json:"email"`
	Phone            string    `json:"phone"`
	City             string    `json:"city"`
	RelationshipType string    `json:"relationshipType"`
	ConnectedThrough string    `json:"connectedThrough"`
	Generation       int       `json:"generation"`
	FamilyBranch     string    `json:"familyBranch"`
	Photo            *string   `json:"photo"`
	Attendees        int       `json:"attendees"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// PhotoURL returns the member's photo URL or "" when none is set.
func (m FamilyMember) PhotoURL() string {
	if m.Photo == nil {
		return ""
	}
	return *m.Photo
}
