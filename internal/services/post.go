package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"sync"
	"time"

	"bereal-backend/internal/cache"
	"bereal-backend/internal/datefmt"
	"bereal-backend/internal/geo"
	"bereal-backend/internal/metrics"
	"bereal-backend/internal/models"
	"bereal-backend/internal/render"
	"bereal-backend/internal/repository"
	"bereal-backend/internal/visibility"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	_ "golang.org/x/image/webp"
)

const (
	defaultFeedLimit = 50
	maxFeedLimit     = 100
	observerTimeout  = 30 * time.Second
)

var (
	ErrMissingImage       = errors.New("no usable image selected")
	ErrMissingAuthor      = errors.New("post has no author")
	ErrSubmissionInFlight = errors.New("a post is already being shared")
	ErrPersistenceFailed  = errors.New("failed to save post")
	ErrViewerUpdateFailed = errors.New("post was shared but your last posted date could not be updated")
	ErrPostNotFound       = errors.New("post not found")
	ErrPostBlurred        = errors.New("post is hidden until you share your own")
)

// PostStore persists posts
type PostStore interface {
	Create(ctx context.Context, post *models.Post) error
	GetByID(ctx context.Context, id string) (*models.Post, error)
	List(ctx context.Context, limit, offset int) ([]*models.Post, int, error)
}

// ObjectStore holds image binaries
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Fetch(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	PresignGet(ctx context.Context, key string, expires time.Duration) (string, error)
}

// ViewerRecorder records that a user has just posted
type ViewerRecorder interface {
	RecordPost(ctx context.Context, userID string, at time.Time) error
}

// PostObserver is told about every saved post. Failures are logged only.
type PostObserver interface {
	PostCreated(ctx context.Context, post *models.Post) error
}

// ComposeStatus is the terminal state of a post submission
type ComposeStatus string

const (
	StatusCancelled          ComposeStatus = "cancelled"
	StatusMissingImage       ComposeStatus = "missing_image"
	StatusMissingAuthor      ComposeStatus = "missing_author"
	StatusBusy               ComposeStatus = "busy"
	StatusSaveFailed         ComposeStatus = "save_failed"
	StatusViewerUpdateFailed ComposeStatus = "viewer_update_failed"
	StatusSucceeded          ComposeStatus = "succeeded"
)

// ComposeInput is what the user picked and typed. A nil Image means the
// picker was dismissed without a selection.
type ComposeInput struct {
	Image    []byte
	Caption  string
	Location *models.Location
}

// ComposeResult is the outcome of Compose. Post is set whenever the post
// record was saved, including StatusViewerUpdateFailed.
type ComposeResult struct {
	Status ComposeStatus
	Post   *models.Post
	Err    error
}

// PostServiceOptions tunes the posting workflow
type PostServiceOptions struct {
	JPEGQuality    int
	MaxPixels      int
	EnrichmentWait time.Duration
	FeedTTL        time.Duration
	ImageURLTTL    time.Duration
}

// PostService composes posts and renders the feed
type PostService struct {
	postRepo  PostStore
	images    ObjectStore
	viewers   ViewerRecorder
	geocoder  geo.Geocoder
	cache     *cache.Cache
	dates     *datefmt.Formatter
	opts      PostServiceOptions
	observers []PostObserver
	now       func() time.Time

	mu       sync.Mutex
	inFlight map[string]struct{}
	wg       sync.WaitGroup
}

// NewPostService creates a new post service. geocoder and c may be nil.
func NewPostService(
	postRepo PostStore,
	images ObjectStore,
	viewers ViewerRecorder,
	geocoder geo.Geocoder,
	c *cache.Cache,
	dates *datefmt.Formatter,
	opts PostServiceOptions,
) *PostService {
	if opts.JPEGQuality <= 0 {
		opts.JPEGQuality = jpeg.DefaultQuality
	}
	if opts.ImageURLTTL <= 0 {
		opts.ImageURLTTL = 15 * time.Minute
	}
	if dates == nil {
		dates = datefmt.UTC()
	}
	return &PostService{
		postRepo: postRepo,
		images:   images,
		viewers:  viewers,
		geocoder: geocoder,
		cache:    c,
		dates:    dates,
		opts:     opts,
		now:      time.Now,
		inFlight: make(map[string]struct{}),
	}
}

// AddObserver registers o to hear about saved posts
func (s *PostService) AddObserver(o PostObserver) {
	s.observers = append(s.observers, o)
}

// Wait blocks until every observer notification has finished
func (s *PostService) Wait() {
	s.wg.Wait()
}

// Compose runs the posting workflow: validate the picked image, resolve its
// location, save the post, then record the viewer's last posted date.
func (s *PostService) Compose(ctx context.Context, viewer *models.Viewer, in ComposeInput) *ComposeResult {
	res := s.compose(ctx, viewer, in)
	metrics.ComposeTotal.WithLabelValues(string(res.Status)).Inc()

	event := log.Info()
	if res.Err != nil {
		event = log.Warn().Err(res.Err)
	}
	if viewer != nil {
		event = event.Str("user_id", viewer.ID)
	}
	if res.Post != nil {
		event = event.Str("post_id", res.Post.ID)
	}
	event.Str("status", string(res.Status)).Msg("Post submission finished")

	return res
}

func (s *PostService) compose(ctx context.Context, viewer *models.Viewer, in ComposeInput) *ComposeResult {
	if in.Image == nil {
		return &ComposeResult{Status: StatusCancelled}
	}
	if viewer == nil || viewer.ID == "" {
		return &ComposeResult{Status: StatusMissingAuthor, Err: ErrMissingAuthor}
	}
	if !s.acquire(viewer.ID) {
		return &ComposeResult{Status: StatusBusy, Err: ErrSubmissionInFlight}
	}
	defer s.release(viewer.ID)

	enrichCtx, cancelEnrich := context.WithCancel(ctx)
	defer cancelEnrich()
	enrich := startEnrichment(enrichCtx, s.geocoder, in.Image, in.Location)

	encoded, err := s.encodeImage(in.Image)
	if err != nil {
		return &ComposeResult{Status: StatusMissingImage, Err: fmt.Errorf("%w: %w", ErrMissingImage, err)}
	}

	extracted, place := enrich.wait(ctx, s.opts.EnrichmentWait)
	location := in.Location
	if location == nil {
		location = extracted
	}

	postID := uuid.New().String()
	post := &models.Post{
		ID:       postID,
		UserID:   viewer.ID,
		Username: viewer.Username,
		ImageKey: imageKey(postID),
		Caption:  optionalString(in.Caption),
		Location: location,
		Place:    place,
	}

	if err := s.images.Put(ctx, post.ImageKey, encoded, "image/jpeg"); err != nil {
		return &ComposeResult{Status: StatusSaveFailed, Err: fmt.Errorf("%w: %w", ErrPersistenceFailed, err)}
	}
	if err := s.postRepo.Create(ctx, post); err != nil {
		if delErr := s.images.Delete(context.WithoutCancel(ctx), post.ImageKey); delErr != nil {
			log.Warn().Err(delErr).Str("post_id", postID).Msg("Failed to remove orphaned image")
		}
		return &ComposeResult{Status: StatusSaveFailed, Err: fmt.Errorf("%w: %w", ErrPersistenceFailed, err)}
	}

	if err := s.cache.InvalidateFeed(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to invalidate feed cache")
	}
	s.notify(ctx, post)

	postedAt := s.now()
	if err := s.viewers.RecordPost(ctx, viewer.ID, postedAt); err != nil {
		return &ComposeResult{Status: StatusViewerUpdateFailed, Post: post, Err: fmt.Errorf("%w: %w", ErrViewerUpdateFailed, err)}
	}
	viewer.LastPostedDate = &postedAt

	return &ComposeResult{Status: StatusSucceeded, Post: post}
}

func (s *PostService) acquire(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[userID]; busy {
		return false
	}
	s.inFlight[userID] = struct{}{}
	return true
}

func (s *PostService) release(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, userID)
}

func (s *PostService) encodeImage(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("image is empty")
	}
	img, err := render.Decode(data, s.opts.MaxPixels)
	if err != nil {
		return nil, err
	}
	buf := &bytes.Buffer{}
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: s.opts.JPEGQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *PostService) notify(ctx context.Context, post *models.Post) {
	if len(s.observers) == 0 {
		return
	}
	snapshot := *post
	bg := context.WithoutCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(bg, observerTimeout)
		defer cancel()

		for _, o := range s.observers {
			if err := o.PostCreated(ctx, &snapshot); err != nil {
				log.Error().Err(err).
					Str("post_id", snapshot.ID).
					Str("observer", fmt.Sprintf("%T", o)).
					Msg("Failed to notify about new post")
			}
		}
	}()
}

func imageKey(postID string) string {
	return fmt.Sprintf("posts/%s.jpg", postID)
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Author identifies who published a post
type Author struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// PostView is a post as a particular viewer sees it
type PostView struct {
	ID            string           `json:"id"`
	Author        Author           `json:"author"`
	Caption       *string          `json:"caption,omitempty"`
	ImageURL      string           `json:"image_url,omitempty"`
	Blurred       bool             `json:"blurred"`
	Location      *models.Location `json:"location,omitempty"`
	LocationLabel string           `json:"location_label"`
	Place         string           `json:"place,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	DisplayDate   string           `json:"display_date"`
	PostedOn      string           `json:"posted_on"`
}

type feedPage struct {
	Posts []*models.Post `json:"posts"`
	Total int            `json:"total"`
}

// Feed lists posts newest first as viewer sees them
func (s *PostService) Feed(ctx context.Context, viewer *models.Viewer, limit, offset int) ([]*PostView, int, error) {
	if limit <= 0 {
		limit = defaultFeedLimit
	}
	if limit > maxFeedLimit {
		limit = maxFeedLimit
	}
	if offset < 0 {
		offset = 0
	}

	var page feedPage
	found, err := s.cache.GetFeedPage(ctx, limit, offset, &page)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read feed cache")
	}
	if !found {
		gen, genErr := s.cache.FeedGeneration(ctx)
		posts, total, err := s.postRepo.List(ctx, limit, offset)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to list posts: %w", err)
		}
		page = feedPage{Posts: posts, Total: total}
		if genErr == nil {
			if err := s.cache.SetFeedPage(ctx, gen, limit, offset, page, s.opts.FeedTTL); err != nil {
				log.Warn().Err(err).Msg("Failed to write feed cache")
			}
		}
	}

	views := make([]*PostView, 0, len(page.Posts))
	for _, post := range page.Posts {
		views = append(views, s.View(ctx, viewer, post))
	}
	return views, page.Total, nil
}

// Get returns a single post as viewer sees it
func (s *PostService) Get(ctx context.Context, viewer *models.Viewer, postID string) (*PostView, error) {
	post, err := s.getPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	return s.View(ctx, viewer, post), nil
}

// ImageKey returns the storage key of a post's image, or ErrPostBlurred
// when viewer may not see it yet.
func (s *PostService) ImageKey(ctx context.Context, viewer *models.Viewer, postID string) (string, error) {
	post, err := s.getPost(ctx, postID)
	if err != nil {
		return "", err
	}
	if visibility.ShouldBlur(post, viewer) {
		return "", ErrPostBlurred
	}
	return post.ImageKey, nil
}

// OpenImage returns the image bytes of a post viewer may see
func (s *PostService) OpenImage(ctx context.Context, viewer *models.Viewer, postID string) ([]byte, error) {
	key, err := s.ImageKey(ctx, viewer, postID)
	if err != nil {
		return nil, err
	}
	return s.images.Fetch(ctx, key)
}

func (s *PostService) getPost(ctx context.Context, postID string) (*models.Post, error) {
	post, err := s.postRepo.GetByID(ctx, postID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPostNotFound
		}
		return nil, fmt.Errorf("failed to get post: %w", err)
	}
	return post, nil
}

// View renders post as viewer sees it
func (s *PostService) View(ctx context.Context, viewer *models.Viewer, post *models.Post) *PostView {
	v := &PostView{
		ID:            post.ID,
		Author:        Author{ID: post.UserID, Username: post.Username},
		Caption:       post.Caption,
		Blurred:       visibility.ShouldBlur(post, viewer),
		Location:      post.Location,
		LocationLabel: post.Location.Label(),
		CreatedAt:     post.CreatedAt,
		DisplayDate:   s.dates.Short(post.CreatedAt),
		PostedOn:      s.dates.Full(post.CreatedAt),
	}
	if post.Place != nil {
		v.Place = post.Place.String()
	}
	if !v.Blurred {
		url, err := s.images.PresignGet(ctx, post.ImageKey, s.opts.ImageURLTTL)
		if err != nil {
			log.Warn().Err(err).Str("post_id", post.ID).Msg("Failed to presign image URL")
			url = "/api/v1/posts/" + post.ID + "/image"
		}
		v.ImageURL = url
	}
	return v
}
