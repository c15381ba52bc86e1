// Package events publishes post lifecycle events to NATS.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"bereal-backend/internal/models"

	"github.com/nats-io/nats.go"
)

// Conn is the subset of *nats.Conn used for publishing
type Conn interface {
	Publish(subject string, data []byte) error
}

// PostCreatedEvent is the payload of a post.created message
type PostCreatedEvent struct {
	PostID    string           `json:"post_id"`
	AuthorID  string           `json:"author_id"`
	Username  string           `json:"username"`
	ImageKey  string           `json:"image_key"`
	Caption   *string          `json:"caption,omitempty"`
	Location  *models.Location `json:"location,omitempty"`
	Place     *models.Place    `json:"place,omitempty"`
	Timestamp string           `json:"timestamp"`
}

// Publisher sends post events on a subject
type Publisher struct {
	conn    Conn
	subject string
}

// Connect dials a NATS server
func Connect(url string) (*nats.Conn, error) {
	nc, err := nats.Connect(url, nats.Name("bereal-backend"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	return nc, nil
}

// NewPublisher creates a publisher on subject
func NewPublisher(conn Conn, subject string) *Publisher {
	return &Publisher{conn: conn, subject: subject}
}

// PostCreated publishes a post.created event
func (p *Publisher) PostCreated(_ context.Context, post *models.Post) error {
	event := PostCreatedEvent{
		PostID:    post.ID,
		AuthorID:  post.UserID,
		Username:  post.Username,
		ImageKey:  post.ImageKey,
		Caption:   post.Caption,
		Location:  post.Location,
		Place:     post.Place,
		Timestamp: post.CreatedAt.UTC().Format(time.RFC3339),
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal post event: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("failed to publish post event: %w", err)
	}
	return nil
}
