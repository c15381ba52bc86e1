package repository

import (
	"context"
	"errors"
	"fmt"

	"bereal-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostRepository handles database operations for posts
type PostRepository struct {
	db *pgxpool.Pool
}

// NewPostRepository creates a new post repository
func NewPostRepository(db *pgxpool.Pool) *PostRepository {
	return &PostRepository{db: db}
}

const postColumns = `
	p.id, p.user_id, u.username, p.image_key, p.caption,
	p.latitude, p.longitude, p.city, p.region, p.created_at
`

// Create inserts a post. The database assigns created_at, which is written
// back to post.
func (r *PostRepository) Create(ctx context.Context, post *models.Post) error {
	var lat, lon *float64
	if post.Location != nil {
		lat, lon = &post.Location.Latitude, &post.Location.Longitude
	}
	var city, region *string
	if post.Place != nil {
		city, region = &post.Place.City, &post.Place.Region
	}

	query := `
		INSERT INTO posts (id, user_id, image_key, caption, latitude, longitude, city, region)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`
	err := r.db.QueryRow(ctx, query,
		post.ID, post.UserID, post.ImageKey, post.Caption, lat, lon, city, region,
	).Scan(&post.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create post: %w", err)
	}
	return nil
}

// GetByID retrieves a post by ID
func (r *PostRepository) GetByID(ctx context.Context, id string) (*models.Post, error) {
	query := `SELECT ` + postColumns + `
		FROM posts p
		JOIN users u ON u.id = p.user_id
		WHERE p.id = $1
	`
	post, err := scanPost(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("post %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get post: %w", err)
	}
	return post, nil
}

// List retrieves posts newest first with pagination
func (r *PostRepository) List(ctx context.Context, limit, offset int) ([]*models.Post, int, error) {
	// Get total count
	countQuery := `SELECT COUNT(*) FROM posts`
	var total int
	err := r.db.QueryRow(ctx, countQuery).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count posts: %w", err)
	}

	query := `SELECT ` + postColumns + `
		FROM posts p
		JOIN users u ON u.id = p.user_id
		ORDER BY p.created_at DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get posts: %w", err)
	}
	defer rows.Close()

	posts := make([]*models.Post, 0, limit)
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan post: %w", err)
		}
		posts = append(posts, post)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating posts: %w", err)
	}

	return posts, total, nil
}

func scanPost(row pgx.Row) (*models.Post, error) {
	var (
		post         models.Post
		lat, lon     *float64
		city, region *string
	)
	err := row.Scan(
		&post.ID, &post.UserID, &post.Username, &post.ImageKey, &post.Caption,
		&lat, &lon, &city, &region, &post.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lat != nil && lon != nil {
		post.Location = &models.Location{Latitude: *lat, Longitude: *lon}
	}
	if city != nil && region != nil {
		post.Place = &models.Place{City: *city, Region: *region}
	}
	return &post, nil
}
