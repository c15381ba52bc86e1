// Package push notifies other users through APNs when someone posts.
package push

import (
	"context"
	"fmt"

	"bereal-backend/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
)

// Client is the subset of *apns2.Client used to send notifications
type Client interface {
	PushWithContext(ctx apns2.Context, n *apns2.Notification) (*apns2.Response, error)
}

// TokenLister returns the device tokens that should hear about a post
type TokenLister interface {
	ListPushTokens(ctx context.Context, excludeID string) ([]string, error)
}

// Notifier pushes a "new post" alert to every other registered device
type Notifier struct {
	client Client
	tokens TokenLister
	topic  string
}

// NewTokenClient builds an APNs client authenticated with a .p8 signing key
func NewTokenClient(keyPath, keyID, teamID string, production bool) (*apns2.Client, error) {
	authKey, err := token.AuthKeyFromFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load apns key: %w", err)
	}

	client := apns2.NewTokenClient(&token.Token{
		AuthKey: authKey,
		KeyID:   keyID,
		TeamID:  teamID,
	})
	if production {
		return client.Production(), nil
	}
	return client.Development(), nil
}

// NewNotifier creates a notifier sending on topic (the app bundle ID)
func NewNotifier(client Client, tokens TokenLister, topic string) *Notifier {
	return &Notifier{client: client, tokens: tokens, topic: topic}
}

// PostCreated alerts every device except the author's. Individual delivery
// failures are logged; the first transport error is returned.
func (n *Notifier) PostCreated(ctx context.Context, post *models.Post) error {
	deviceTokens, err := n.tokens.ListPushTokens(ctx, post.UserID)
	if err != nil {
		return fmt.Errorf("failed to list push tokens: %w", err)
	}

	body := post.Username + " just posted"
	if post.Place != nil {
		body += " from " + post.Place.String()
	}
	p := payload.NewPayload().
		AlertTitle("New BeReal").
		AlertBody(body).
		Sound("default").
		Custom("post_id", post.ID)

	var firstErr error
	for _, deviceToken := range deviceTokens {
		res, err := n.client.PushWithContext(ctx, &apns2.Notification{
			DeviceToken: deviceToken,
			Topic:       n.topic,
			Payload:     p,
		})
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to push notification: %w", err)
			}
			continue
		}
		if !res.Sent() {
			log.Warn().
				Int("status", res.StatusCode).
				Str("reason", res.Reason).
				Str("post_id", post.ID).
				Msg("Push notification rejected")
		}
	}

	return firstErr
}
