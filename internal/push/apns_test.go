package push

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"bereal-backend/internal/models"

	"github.com/sideshow/apns2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	sent []*apns2.Notification
	err  error
}

func (c *fakeClient) PushWithContext(_ apns2.Context, n *apns2.Notification) (*apns2.Response, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.sent = append(c.sent, n)
	return &apns2.Response{StatusCode: http.StatusOK}, nil
}

type staticTokens struct {
	tokens   []string
	excluded string
}

func (s *staticTokens) ListPushTokens(_ context.Context, excludeID string) ([]string, error) {
	s.excluded = excludeID
	return s.tokens, nil
}

func TestNotifier_PostCreated(t *testing.T) {
	client := &fakeClient{}
	tokens := &staticTokens{tokens: []string{"device-a", "device-b"}}
	n := NewNotifier(client, tokens, "com.example.bereal")

	post := &models.Post{
		ID:       "post-1",
		UserID:   "author",
		Username: "tony",
		Place:    &models.Place{City: "Portland", Region: "Oregon"},
	}
	require.NoError(t, n.PostCreated(context.Background(), post))

	assert.Equal(t, "author", tokens.excluded)
	require.Len(t, client.sent, 2)
	assert.Equal(t, "device-a", client.sent[0].DeviceToken)
	assert.Equal(t, "com.example.bereal", client.sent[0].Topic)

	raw, err := json.Marshal(client.sent[0].Payload)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "tony just posted from Portland, Oregon")
	assert.Contains(t, string(raw), `"post_id":"post-1"`)
}

func TestNotifier_TransportError(t *testing.T) {
	boom := errors.New("connection reset")
	n := NewNotifier(&fakeClient{err: boom}, &staticTokens{tokens: []string{"device-a"}}, "topic")

	err := n.PostCreated(context.Background(), &models.Post{ID: "post-1", UserID: "author"})
	assert.ErrorIs(t, err, boom)
}

func TestNotifier_NoDevices(t *testing.T) {
	client := &fakeClient{}
	n := NewNotifier(client, &staticTokens{}, "topic")

	require.NoError(t, n.PostCreated(context.Background(), &models.Post{ID: "post-1", UserID: "author"}))
	assert.Empty(t, client.sent)
}
