package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"bereal-backend/internal/models"
	"bereal-backend/internal/repository"
)

// MemPosts is an in-memory post store stamping CreatedAt from clock
type MemPosts struct {
	mu        sync.Mutex
	posts     map[string]*models.Post
	CreateErr error
	clock     func() time.Time
	Creates   int
	Lists     int
}

func NewMemPosts(clock func() time.Time) *MemPosts {
	return &MemPosts{posts: make(map[string]*models.Post), clock: clock}
}

func (m *MemPosts) Create(_ context.Context, post *models.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Creates++
	if m.CreateErr != nil {
		return m.CreateErr
	}
	post.CreatedAt = m.clock()
	stored := *post
	m.posts[post.ID] = &stored
	return nil
}

func (m *MemPosts) GetByID(_ context.Context, id string) (*models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[id]
	if !ok {
		return nil, fmt.Errorf("post %w", repository.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (m *MemPosts) List(_ context.Context, limit, offset int) ([]*models.Post, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Lists++
	all := make([]*models.Post, 0, len(m.posts))
	for _, p := range m.posts {
		cp := *p
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if offset > len(all) {
		offset = len(all)
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], len(all), nil
}

// Add stores post as is
func (m *MemPosts) Add(post *models.Post) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posts[post.ID] = post
}

// MemImages is an in-memory object store
type MemImages struct {
	mu      sync.Mutex
	Objects map[string][]byte
	PutErr  error
	Deleted []string
	Puts    int
}

func NewMemImages() *MemImages {
	return &MemImages{Objects: make(map[string][]byte)}
}

func (m *MemImages) Put(_ context.Context, key string, data []byte, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Puts++
	if m.PutErr != nil {
		return m.PutErr
	}
	m.Objects[key] = data
	return nil
}

func (m *MemImages) Fetch(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.Objects[key]
	if !ok {
		return nil, fmt.Errorf("no such key %s", key)
	}
	return data, nil
}

func (m *MemImages) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Deleted = append(m.Deleted, key)
	delete(m.Objects, key)
	return nil
}

func (m *MemImages) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://images.test/" + key, nil
}

// MemUsers is an in-memory user store
type MemUsers struct {
	mu        sync.Mutex
	Users     map[string]*models.User
	UpdateErr error
	Gets      int
}

func NewMemUsers(users ...*models.User) *MemUsers {
	m := &MemUsers{Users: make(map[string]*models.User)}
	for _, u := range users {
		m.Users[u.ID] = u
	}
	return m
}

func (m *MemUsers) Create(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *user
	m.Users[user.ID] = &cp
	return nil
}

func (m *MemUsers) GetByID(_ context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Gets++
	u, ok := m.Users[id]
	if !ok {
		return nil, fmt.Errorf("user %w", repository.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (m *MemUsers) UsernameExists(_ context.Context, username string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.Users {
		if u.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemUsers) UpdatePushToken(_ context.Context, userID string, pushToken *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.Users[userID]
	if !ok {
		return fmt.Errorf("user %w", repository.ErrNotFound)
	}
	u.PushToken = pushToken
	return nil
}

func (m *MemUsers) UpdateLastPostedDate(_ context.Context, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpdateErr != nil {
		return m.UpdateErr
	}
	u, ok := m.Users[userID]
	if !ok {
		return fmt.Errorf("user %w", repository.ErrNotFound)
	}
	u.LastPostedDate = &at
	return nil
}

func (m *MemUsers) ListPushTokens(_ context.Context, excludeID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var tokens []string
	for _, u := range m.Users {
		if u.ID != excludeID && u.PushToken != nil {
			tokens = append(tokens, *u.PushToken)
		}
	}
	return tokens, nil
}

// StubGeocoder answers every lookup with Place and Err after Delay
type StubGeocoder struct {
	Place *models.Place
	Err   error
	Delay time.Duration

	mu    sync.Mutex
	asked []models.Location
}

func (g *StubGeocoder) ReverseGeocode(ctx context.Context, loc models.Location) (*models.Place, error) {
	g.mu.Lock()
	g.asked = append(g.asked, loc)
	g.mu.Unlock()
	if g.Delay > 0 {
		select {
		case <-time.After(g.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return g.Place, g.Err
}

// Asked returns the locations looked up so far
func (g *StubGeocoder) Asked() []models.Location {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]models.Location(nil), g.asked...)
}

// RecordingObserver forwards every saved post to Posts
type RecordingObserver struct {
	Posts chan *models.Post
}

func (o *RecordingObserver) PostCreated(_ context.Context, post *models.Post) error {
	o.Posts <- post
	return nil
}
