package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"bereal-backend/internal/middleware"
	"bereal-backend/internal/models"
	"bereal-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

const multipartOverhead = 1 << 20

var composeStatusCodes = map[services.ComposeStatus]int{
	services.StatusCancelled:          http.StatusNoContent,
	services.StatusMissingImage:       http.StatusBadRequest,
	services.StatusMissingAuthor:      http.StatusUnauthorized,
	services.StatusBusy:               http.StatusConflict,
	services.StatusSaveFailed:         http.StatusBadGateway,
	services.StatusViewerUpdateFailed: http.StatusCreated,
	services.StatusSucceeded:          http.StatusCreated,
}

// PostHandler handles post-related HTTP requests
type PostHandler struct {
	postService    *services.PostService
	maxUploadBytes int64
}

// NewPostHandler creates a new post handler
func NewPostHandler(postService *services.PostService, maxUploadBytes int64) *PostHandler {
	return &PostHandler{
		postService:    postService,
		maxUploadBytes: maxUploadBytes,
	}
}

// CreatePostResponse is the outcome of a post submission
type CreatePostResponse struct {
	Status services.ComposeStatus `json:"status"`
	Post   *services.PostView     `json:"post,omitempty"`
	Error  string                 `json:"error,omitempty"`
}

// ListPosts handles GET /api/v1/posts
func (h *PostHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	viewer := middleware.GetViewer(ctx)

	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	posts, total, err := h.postService.Feed(ctx, viewer, limit, offset)
	if err != nil {
		log.Error().
			Err(err).
			Str("user_id", viewer.ID).
			Msg("Failed to list posts")
		respondError(w, "Failed to list posts", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"posts": posts,
		"total": total,
	})
}

// CreatePost handles POST /api/v1/posts. The body is multipart with an
// optional "image" file, "caption", and a "latitude"/"longitude" pair.
func (h *PostHandler) CreatePost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	viewer := middleware.GetViewer(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			respondError(w, "Image is too large", http.StatusRequestEntityTooLarge)
			return
		}
		respondError(w, "Invalid multipart form", http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	location, err := parseLocation(r.FormValue("latitude"), r.FormValue("longitude"))
	if err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	in := services.ComposeInput{
		Caption:  r.FormValue("caption"),
		Location: location,
	}

	file, _, err := r.FormFile("image")
	switch {
	case errors.Is(err, http.ErrMissingFile):
	case err != nil:
		respondError(w, "Invalid image upload", http.StatusBadRequest)
		return
	default:
		in.Image, err = io.ReadAll(file)
		file.Close()
		if err != nil {
			respondError(w, "Failed to read image", http.StatusBadRequest)
			return
		}
	}

	res := h.postService.Compose(ctx, viewer, in)

	code := composeStatusCodes[res.Status]
	if code == http.StatusNoContent {
		w.WriteHeader(code)
		return
	}

	resp := CreatePostResponse{Status: res.Status}
	if res.Post != nil {
		resp.Post = h.postService.View(ctx, viewer, res.Post)
	}
	if res.Err != nil {
		resp.Error = res.Err.Error()
	}
	respondJSON(w, code, resp)
}

// GetPost handles GET /api/v1/posts/{post_id}
func (h *PostHandler) GetPost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	viewer := middleware.GetViewer(ctx)
	postID := chi.URLParam(r, "post_id")

	post, err := h.postService.Get(ctx, viewer, postID)
	if err != nil {
		h.respondPostError(w, err, postID)
		return
	}

	respondJSON(w, http.StatusOK, post)
}

// GetImage handles GET /api/v1/posts/{post_id}/image
func (h *PostHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	viewer := middleware.GetViewer(ctx)
	postID := chi.URLParam(r, "post_id")

	data, err := h.postService.OpenImage(ctx, viewer, postID)
	if err != nil {
		h.respondPostError(w, err, postID)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "private, no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (h *PostHandler) respondPostError(w http.ResponseWriter, err error, postID string) {
	switch {
	case errors.Is(err, services.ErrPostNotFound):
		respondError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, services.ErrPostBlurred):
		respondError(w, err.Error(), http.StatusForbidden)
	default:
		log.Error().Err(err).Str("post_id", postID).Msg("Failed to load post")
		respondError(w, "Failed to load post", http.StatusInternalServerError)
	}
}

func parseLocation(lat, lon string) (*models.Location, error) {
	if lat == "" && lon == "" {
		return nil, nil
	}
	if lat == "" || lon == "" {
		return nil, errors.New("latitude and longitude must be sent together")
	}
	latitude, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return nil, errors.New("invalid latitude")
	}
	longitude, err := strconv.ParseFloat(lon, 64)
	if err != nil {
		return nil, errors.New("invalid longitude")
	}
	loc := &models.Location{Latitude: latitude, Longitude: longitude}
	if !loc.Valid() {
		return nil, errors.New("location is out of range")
	}
	return loc, nil
}
