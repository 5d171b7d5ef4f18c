// Package listings implements the food post operations: ownership checks,
// input validation, the public visibility rule and image handling.
package listings

import (
	"context"
	"errors"
	"mime/multipart"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/4xmen/wasteless/internal/apperr"
	"github.com/4xmen/wasteless/internal/media"
	"github.com/4xmen/wasteless/internal/models"
	"github.com/4xmen/wasteless/internal/store"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100

	UserTypeAuthenticated = "authenticated"
	UserTypePublic        = "public"
)

// Uploader stores listing images.
type Uploader interface {
	Upload(ctx context.Context, fh *multipart.FileHeader) (*media.Image, error)
	Delete(ctx context.Context, publicID string) error
}

type Store interface {
	store.ListingStore
	UserSummaries(ctx context.Context, ids []string) (map[string]models.UserSummary, error)
}

type Service struct {
	store  Store
	images Uploader
	logger *zap.Logger
	now    func() time.Time
}

func NewService(st Store, images Uploader, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: st, images: images, logger: logger, now: time.Now}
}

type Input struct {
	Name        string
	Description string
	Category    string
	Condition   string
	ExpiryDate  time.Time
	Location    string
	Quantity    string
	ImageURL    string
	Coordinates *models.Coordinates
}

// Patch carries a partial update; nil fields keep their value.
type Patch struct {
	Name        *string
	Description *string
	Category    *string
	Condition   *string
	ExpiryDate  *time.Time
	Location    *string
	Quantity    *string
	ImageURL    *string
	IsAvailable *bool
	Coordinates *models.Coordinates
}

type Filter struct {
	Category  string
	Location  string
	Search    string
	MinExpiry *time.Time
	MaxExpiry *time.Time
	SortBy    string
	SortOrder string
	Page      int
	Limit     int
}

type MineFilter struct {
	IsAvailable *bool
	SortBy      string
	SortOrder   string
	Page        int
	Limit       int
}

type Page struct {
	FoodPosts  []*models.FoodPostView `json:"foodPosts"`
	Pagination models.Pagination      `json:"pagination"`
	UserType   string                 `json:"userType,omitempty"`
}

func validate(p *models.FoodPost) error {
	switch {
	case p.Name == "":
		return apperr.InvalidRequest("name is required")
	case utf8.RuneCountInString(p.Name) > 100:
		return apperr.InvalidRequest("name cannot exceed 100 characters")
	case p.Description == "":
		return apperr.InvalidRequest("description is required")
	case utf8.RuneCountInString(p.Description) > 500:
		return apperr.InvalidRequest("description cannot exceed 500 characters")
	case !models.ValidCategory(p.Category):
		return apperr.InvalidRequest("invalid category")
	case !models.ValidCondition(p.Condition):
		return apperr.InvalidRequest("invalid condition")
	case p.ExpiryDate.IsZero():
		return apperr.InvalidRequest("expiry date is required")
	case p.Location == "":
		return apperr.InvalidRequest("location is required")
	case p.Quantity == "":
		return apperr.InvalidRequest("quantity is required")
	}
	return nil
}

func pageBounds(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if page > models.MaxPage {
		page = models.MaxPage
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return page, limit
}

func sortField(sortBy string) string {
	for _, f := range store.SortFields {
		if f == sortBy {
			return f
		}
	}
	return store.SortCreatedAt
}

func (s *Service) Create(ctx context.Context, ownerID string, in Input, image *multipart.FileHeader) (*models.FoodPostView, error) {
	post := &models.FoodPost{
		UserID:      ownerID,
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
		Category:    in.Category,
		Condition:   in.Condition,
		ExpiryDate:  in.ExpiryDate,
		Location:    strings.TrimSpace(in.Location),
		Quantity:    strings.TrimSpace(in.Quantity),
		ImageURL:    strings.TrimSpace(in.ImageURL),
		IsAvailable: true,
		Coordinates: in.Coordinates,
	}
	if err := validate(post); err != nil {
		return nil, err
	}

	if image != nil {
		img, err := s.images.Upload(ctx, image)
		if err != nil {
			return nil, err
		}
		post.ImageURL = img.URL
		post.ImageMetadata = img.Metadata()
	}

	if err := s.store.CreateListing(ctx, post); err != nil {
		s.discardImage(ctx, post.ImageMetadata)
		return nil, apperr.Internal("failed to create food post", err)
	}

	return s.view(ctx, post, false)
}

func (s *Service) load(ctx context.Context, id string) (*models.FoodPost, error) {
	post, err := s.store.ListingByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("food post not found")
		}
		return nil, apperr.Internal("failed to fetch food post", err)
	}
	return post, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.FoodPostView, error) {
	post, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, post, true)
}

func (s *Service) Update(ctx context.Context, actorID, id string, p Patch, image *multipart.FileHeader) (*models.FoodPostView, error) {
	post, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if post.UserID != actorID {
		return nil, apperr.Unauthorized("not authorized to update this food post")
	}

	previous, previousURL := post.ImageMetadata, post.ImageURL
	applyPatch(post, p)
	if err := validate(post); err != nil {
		return nil, err
	}

	if image != nil {
		img, err := s.images.Upload(ctx, image)
		if err != nil {
			return nil, err
		}
		post.ImageURL = img.URL
		post.ImageMetadata = img.Metadata()
	} else if previous != nil && post.ImageURL != previousURL {
		// The hosted image was replaced by an external URL.
		post.ImageMetadata = nil
	}

	if err := s.store.UpdateListing(ctx, post); err != nil {
		if post.ImageMetadata != previous {
			s.discardImage(ctx, post.ImageMetadata)
		}
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("food post not found")
		}
		return nil, apperr.Internal("failed to update food post", err)
	}

	if post.ImageMetadata != previous {
		s.discardImage(ctx, previous)
	}
	return s.view(ctx, post, false)
}

func applyPatch(post *models.FoodPost, p Patch) {
	if p.Name != nil {
		post.Name = strings.TrimSpace(*p.Name)
	}
	if p.Description != nil {
		post.Description = strings.TrimSpace(*p.Description)
	}
	if p.Category != nil {
		post.Category = *p.Category
	}
	if p.Condition != nil {
		post.Condition = *p.Condition
	}
	if p.ExpiryDate != nil {
		post.ExpiryDate = *p.ExpiryDate
	}
	if p.Location != nil {
		post.Location = strings.TrimSpace(*p.Location)
	}
	if p.Quantity != nil {
		post.Quantity = strings.TrimSpace(*p.Quantity)
	}
	if p.ImageURL != nil {
		post.ImageURL = strings.TrimSpace(*p.ImageURL)
	}
	if p.IsAvailable != nil {
		post.IsAvailable = *p.IsAvailable
	}
	if p.Coordinates != nil {
		post.Coordinates = p.Coordinates
	}
}

func (s *Service) Delete(ctx context.Context, actorID, id string) error {
	post, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if post.UserID != actorID {
		return apperr.Unauthorized("not authorized to delete this food post")
	}

	if err := s.store.DeleteListing(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("food post not found")
		}
		return apperr.Internal("failed to delete food post", err)
	}

	s.discardImage(ctx, post.ImageMetadata)
	return nil
}

// discardImage removes a hosted image. Failures are logged and ignored.
func (s *Service) discardImage(ctx context.Context, meta *models.ImageMetadata) {
	if meta == nil || meta.PublicID == "" {
		return
	}
	if err := s.images.Delete(ctx, meta.PublicID); err != nil {
		s.logger.Warn("failed to delete image", zap.String("public_id", meta.PublicID), zap.Error(err))
	}
}

// List returns one page of listings. Anonymous viewers only see available
// listings that have not expired.
func (s *Service) List(ctx context.Context, viewerID string, f Filter) (*Page, error) {
	page, limit := pageBounds(f.Page, f.Limit)
	q := store.ListingQuery{
		Category:      f.Category,
		Location:      strings.TrimSpace(f.Location),
		Search:        strings.TrimSpace(f.Search),
		ExpiresAfter:  f.MinExpiry,
		ExpiresBefore: f.MaxExpiry,
		SortBy:        sortField(f.SortBy),
		SortDesc:      f.SortOrder != "asc",
		Offset:        (page - 1) * limit,
		Limit:         limit,
	}

	userType := UserTypeAuthenticated
	if viewerID == "" {
		userType = UserTypePublic
		available := true
		q.Available = &available
		now := s.now()
		if q.ExpiresAfter == nil || q.ExpiresAfter.Before(now) {
			q.ExpiresAfter = &now
		}
	}

	result, err := s.find(ctx, q, page, limit)
	if err != nil {
		return nil, err
	}
	result.UserType = userType
	return result, nil
}

func (s *Service) Mine(ctx context.Context, actorID string, f MineFilter) (*Page, error) {
	page, limit := pageBounds(f.Page, f.Limit)
	return s.find(ctx, store.ListingQuery{
		OwnerID:   actorID,
		Available: f.IsAvailable,
		SortBy:    sortField(f.SortBy),
		SortDesc:  f.SortOrder != "asc",
		Offset:    (page - 1) * limit,
		Limit:     limit,
	}, page, limit)
}

// ByUser returns every available listing of userID, newest first.
func (s *Service) ByUser(ctx context.Context, userID string) ([]*models.FoodPostView, error) {
	available := true
	posts, _, err := s.store.FindListings(ctx, store.ListingQuery{
		OwnerID:   userID,
		Available: &available,
		SortBy:    store.SortCreatedAt,
		SortDesc:  true,
	})
	if err != nil {
		return nil, apperr.Internal("failed to fetch food posts", err)
	}
	return s.views(ctx, posts)
}

func (s *Service) Categories(ctx context.Context) ([]string, error) {
	categories, err := s.store.ListingCategories(ctx)
	if err != nil {
		return nil, apperr.Internal("failed to fetch categories", err)
	}
	return categories, nil
}

func (s *Service) find(ctx context.Context, q store.ListingQuery, page, limit int) (*Page, error) {
	posts, total, err := s.store.FindListings(ctx, q)
	if err != nil {
		return nil, apperr.Internal("failed to fetch food posts", err)
	}
	views, err := s.views(ctx, posts)
	if err != nil {
		return nil, err
	}
	return &Page{FoodPosts: views, Pagination: models.NewPagination(page, limit, total)}, nil
}

func (s *Service) owners(ctx context.Context, posts []*models.FoodPost) (map[string]models.UserSummary, error) {
	seen := make(map[string]bool, len(posts))
	ids := make([]string, 0, len(posts))
	for _, p := range posts {
		if !seen[p.UserID] {
			seen[p.UserID] = true
			ids = append(ids, p.UserID)
		}
	}
	owners, err := s.store.UserSummaries(ctx, ids)
	if err != nil {
		return nil, apperr.Internal("failed to fetch users", err)
	}
	return owners, nil
}

func (s *Service) views(ctx context.Context, posts []*models.FoodPost) ([]*models.FoodPostView, error) {
	owners, err := s.owners(ctx, posts)
	if err != nil {
		return nil, err
	}
	now := s.now()
	views := make([]*models.FoodPostView, len(posts))
	for i, p := range posts {
		views[i] = newView(p, owners, false, now)
	}
	return views, nil
}

func (s *Service) view(ctx context.Context, post *models.FoodPost, withBio bool) (*models.FoodPostView, error) {
	owners, err := s.owners(ctx, []*models.FoodPost{post})
	if err != nil {
		return nil, err
	}
	return newView(post, owners, withBio, s.now()), nil
}

func newView(p *models.FoodPost, owners map[string]models.UserSummary, withBio bool, now time.Time) *models.FoodPostView {
	owner, ok := owners[p.UserID]
	if !ok {
		owner = models.UserSummary{ID: p.UserID}
	}
	if !withBio {
		owner.Bio = ""
	}
	return &models.FoodPostView{FoodPost: p, User: owner, IsExpired: p.IsExpired(now)}
}
