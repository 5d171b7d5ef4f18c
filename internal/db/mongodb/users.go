package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/4xmen/wasteless/internal/models"
	"github.com/4xmen/wasteless/internal/store"
)

type userDoc struct {
	ID             string    `bson:"_id"`
	Username       string    `bson:"username"`
	Email          string    `bson:"email"`
	Password       string    `bson:"password"`
	Location       string    `bson:"location"`
	Bio            string    `bson:"bio"`
	ProfilePicture string    `bson:"profilePicture"`
	CreatedAt      time.Time `bson:"createdAt"`
	UpdatedAt      time.Time `bson:"updatedAt"`
}

func toUserDoc(u *models.User) userDoc {
	return userDoc{
		ID: u.ID, Username: u.Username, Email: u.Email, Password: u.PasswordHash,
		Location: u.Location, Bio: u.Bio, ProfilePicture: u.ProfilePicture,
		CreatedAt: u.CreatedAt, UpdatedAt: u.UpdatedAt,
	}
}

func (d userDoc) model() *models.User {
	return &models.User{
		ID: d.ID, Username: d.Username, Email: d.Email, PasswordHash: d.Password,
		Location: d.Location, Bio: d.Bio, ProfilePicture: d.ProfilePicture,
		CreatedAt: d.CreatedAt.UTC(), UpdatedAt: d.UpdatedAt.UTC(),
	}
}

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	if u.ID == "" {
		u.ID = newID()
	}
	ts := now()
	u.CreatedAt, u.UpdatedAt = ts, ts

	if _, err := s.users().InsertOne(ctx, toUserDoc(u)); err != nil {
		return translateError(err)
	}
	return nil
}

func (s *Store) UpdateUser(ctx context.Context, u *models.User) error {
	u.UpdatedAt = now()

	result, err := s.users().UpdateByID(ctx, u.ID, bson.M{"$set": bson.M{
		"username":       u.Username,
		"email":          u.Email,
		"password":       u.PasswordHash,
		"location":       u.Location,
		"bio":            u.Bio,
		"profilePicture": u.ProfilePicture,
		"updatedAt":      u.UpdatedAt,
	}})
	if err != nil {
		return translateError(err)
	}
	if result.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) findUser(ctx context.Context, filter bson.M) (*models.User, error) {
	var doc userDoc
	if err := s.users().FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, translateError(err)
	}
	return doc.model(), nil
}

func (s *Store) UserByID(ctx context.Context, id string) (*models.User, error) {
	return s.findUser(ctx, bson.M{"_id": id})
}

func (s *Store) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findUser(ctx, bson.M{"email": email})
}

func (s *Store) UserExists(ctx context.Context, id string) (bool, error) {
	n, err := s.users().CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to query user: %w", err)
	}
	return n > 0, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]*models.User, error) {
	cursor, err := s.users().Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch users: %w", err)
	}
	var docs []userDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode users: %w", err)
	}

	users := make([]*models.User, len(docs))
	for i, d := range docs {
		users[i] = d.model()
	}
	return users, nil
}

func (s *Store) UserSummaries(ctx context.Context, ids []string) (map[string]models.UserSummary, error) {
	summaries := make(map[string]models.UserSummary, len(ids))
	if len(ids) == 0 {
		return summaries, nil
	}

	cursor, err := s.users().Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch users: %w", err)
	}
	var docs []userDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode users: %w", err)
	}
	for _, d := range docs {
		summaries[d.ID] = models.UserSummary{
			ID: d.ID, Username: d.Username, ProfilePicture: d.ProfilePicture,
			Location: d.Location, Bio: d.Bio,
		}
	}
	return summaries, nil
}
