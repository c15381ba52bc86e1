package models

import (
	"fmt"
	"time"
)

// User represents a user in the system
type User struct {
	ID             string     `json:"id"`
	Username       string     `json:"username"`
	Token          string     `json:"token,omitempty"`
	PushToken      *string    `json:"push_token,omitempty"`
	LastPostedDate *time.Time `json:"last_posted_date,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Viewer is the authenticated user a request acts on behalf of.
// LastPostedDate is the only field the posting workflow mutates.
type Viewer struct {
	ID             string     `json:"id"`
	Username       string     `json:"username"`
	LastPostedDate *time.Time `json:"last_posted_date,omitempty"`
}

// Viewer returns the session view of the user
func (u *User) Viewer() *Viewer {
	return &Viewer{
		ID:             u.ID,
		Username:       u.Username,
		LastPostedDate: u.LastPostedDate,
	}
}

// Location is a geographic coordinate in degrees
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid reports whether the coordinate is within range
func (l Location) Valid() bool {
	return l.Latitude >= -90 && l.Latitude <= 90 && l.Longitude >= -180 && l.Longitude <= 180
}

// Label renders the coordinate for display
func (l *Location) Label() string {
	if l == nil {
		return "Location not available"
	}
	return fmt.Sprintf("Location: Lat %g, Lon %g", l.Latitude, l.Longitude)
}

// Place is a reverse-geocoded locality
type Place struct {
	City   string `json:"city"`
	Region string `json:"region"`
}

// String renders the place as "City, Region"
func (p Place) String() string {
	return p.City + ", " + p.Region
}

// Post represents one published photo
type Post struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username,omitempty"`
	ImageKey  string    `json:"image_key"`
	Caption   *string   `json:"caption,omitempty"`
	Location  *Location `json:"location,omitempty"`
	Place     *Place    `json:"place,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
