package mongodb

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/4xmen/wasteless/internal/models"
	"github.com/4xmen/wasteless/internal/store"
)

type listingDoc struct {
	ID            string                `bson:"_id"`
	UserID        string                `bson:"user"`
	Name          string                `bson:"name"`
	Description   string                `bson:"description"`
	Category      string                `bson:"category"`
	Condition     string                `bson:"condition"`
	ExpiryDate    time.Time             `bson:"expiryDate"`
	Location      string                `bson:"location"`
	Quantity      string                `bson:"quantity"`
	ImageURL      string                `bson:"imageUrl"`
	ImageMetadata *models.ImageMetadata `bson:"imageMetadata,omitempty"`
	IsAvailable   bool                  `bson:"isAvailable"`
	Coordinates   *models.Coordinates   `bson:"coordinates,omitempty"`
	CreatedAt     time.Time             `bson:"createdAt"`
	UpdatedAt     time.Time             `bson:"updatedAt"`
}

func toListingDoc(p *models.FoodPost) listingDoc {
	return listingDoc{
		ID: p.ID, UserID: p.UserID, Name: p.Name, Description: p.Description,
		Category: p.Category, Condition: p.Condition, ExpiryDate: p.ExpiryDate,
		Location: p.Location, Quantity: p.Quantity, ImageURL: p.ImageURL,
		ImageMetadata: p.ImageMetadata, IsAvailable: p.IsAvailable, Coordinates: p.Coordinates,
		CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt,
	}
}

func (d listingDoc) model() *models.FoodPost {
	return &models.FoodPost{
		ID: d.ID, UserID: d.UserID, Name: d.Name, Description: d.Description,
		Category: d.Category, Condition: d.Condition, ExpiryDate: d.ExpiryDate.UTC(),
		Location: d.Location, Quantity: d.Quantity, ImageURL: d.ImageURL,
		ImageMetadata: d.ImageMetadata, IsAvailable: d.IsAvailable, Coordinates: d.Coordinates,
		CreatedAt: d.CreatedAt.UTC(), UpdatedAt: d.UpdatedAt.UTC(),
	}
}

var listingSortFields = map[string]string{
	store.SortCreatedAt:  "createdAt",
	store.SortUpdatedAt:  "updatedAt",
	store.SortExpiryDate: "expiryDate",
	store.SortName:       "name",
	store.SortCategory:   "category",
	store.SortLocation:   "location",
}

func (s *Store) CreateListing(ctx context.Context, p *models.FoodPost) error {
	if p.ID == "" {
		p.ID = newID()
	}
	ts := now()
	p.CreatedAt, p.UpdatedAt = ts, ts
	p.ExpiryDate = p.ExpiryDate.UTC().Truncate(time.Millisecond)

	if _, err := s.foodPosts().InsertOne(ctx, toListingDoc(p)); err != nil {
		return translateError(err)
	}
	return nil
}

func (s *Store) UpdateListing(ctx context.Context, p *models.FoodPost) error {
	p.UpdatedAt = now()
	p.ExpiryDate = p.ExpiryDate.UTC().Truncate(time.Millisecond)

	result, err := s.foodPosts().ReplaceOne(ctx, bson.M{"_id": p.ID}, toListingDoc(p))
	if err != nil {
		return translateError(err)
	}
	if result.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteListing(ctx context.Context, id string) error {
	result, err := s.foodPosts().DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete listing: %w", err)
	}
	if result.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListingByID(ctx context.Context, id string) (*models.FoodPost, error) {
	var doc listingDoc
	if err := s.foodPosts().FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return nil, translateError(err)
	}
	return doc.model(), nil
}

func (s *Store) ListingExists(ctx context.Context, id string) (bool, error) {
	n, err := s.foodPosts().CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to query listing: %w", err)
	}
	return n > 0, nil
}

func containsPattern(s string) bson.Regex {
	return bson.Regex{Pattern: regexp.QuoteMeta(s), Options: "i"}
}

func listingFilter(q store.ListingQuery) bson.M {
	filter := bson.M{}
	if q.OwnerID != "" {
		filter["user"] = q.OwnerID
	}
	if q.Category != "" {
		filter["category"] = q.Category
	}
	if q.Location != "" {
		filter["location"] = containsPattern(q.Location)
	}
	if q.Search != "" {
		pattern := containsPattern(q.Search)
		filter["$or"] = bson.A{bson.M{"name": pattern}, bson.M{"description": pattern}}
	}
	if q.Available != nil {
		filter["isAvailable"] = *q.Available
	}

	expiry := bson.M{}
	if q.ExpiresAfter != nil {
		expiry["$gte"] = q.ExpiresAfter.UTC()
	}
	if q.ExpiresBefore != nil {
		expiry["$lte"] = q.ExpiresBefore.UTC()
	}
	if len(expiry) > 0 {
		filter["expiryDate"] = expiry
	}
	return filter
}

func (s *Store) FindListings(ctx context.Context, q store.ListingQuery) ([]*models.FoodPost, int, error) {
	filter := listingFilter(q)

	total, err := s.foodPosts().CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count listings: %w", err)
	}

	field, ok := listingSortFields[q.SortBy]
	if !ok {
		field = "createdAt"
	}
	dir := 1
	if q.SortDesc {
		dir = -1
	}

	opts := options.Find().SetSort(bson.D{{Key: field, Value: dir}, {Key: "_id", Value: dir}})
	if q.Limit > 0 {
		opts.SetSkip(int64(q.Offset)).SetLimit(int64(q.Limit))
	}

	cursor, err := s.foodPosts().Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch listings: %w", err)
	}
	var docs []listingDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, 0, fmt.Errorf("failed to decode listings: %w", err)
	}

	listings := make([]*models.FoodPost, len(docs))
	for i, d := range docs {
		listings[i] = d.model()
	}
	return listings, int(total), nil
}

func (s *Store) ListingCategories(ctx context.Context) ([]string, error) {
	cursor, err := s.foodPosts().Aggregate(ctx, mongoPipeline(
		bson.D{{Key: "$group", Value: bson.M{"_id": "$category"}}},
		bson.D{{Key: "$sort", Value: bson.M{"_id": 1}}},
	))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch categories: %w", err)
	}
	var rows []struct {
		Category string `bson:"_id"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode categories: %w", err)
	}

	categories := make([]string, len(rows))
	for i, r := range rows {
		categories[i] = r.Category
	}
	return categories, nil
}

func (s *Store) ListingSummaries(ctx context.Context, ids []string) (map[string]models.ListingSummary, error) {
	summaries := make(map[string]models.ListingSummary, len(ids))
	if len(ids) == 0 {
		return summaries, nil
	}

	cursor, err := s.foodPosts().Find(ctx, bson.M{"_id": bson.M{"$in": ids}},
		options.Find().SetProjection(bson.M{"name": 1, "imageUrl": 1}))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch listings: %w", err)
	}
	var docs []struct {
		ID       string `bson:"_id"`
		Name     string `bson:"name"`
		ImageURL string `bson:"imageUrl"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode listings: %w", err)
	}
	for _, d := range docs {
		summaries[d.ID] = models.ListingSummary{ID: d.ID, Name: d.Name, ImageURL: d.ImageURL}
	}
	return summaries, nil
}

func mongoPipeline(stages ...bson.D) bson.A {
	pipeline := make(bson.A, len(stages))
	for i, st := range stages {
		pipeline[i] = st
	}
	return pipeline
}
