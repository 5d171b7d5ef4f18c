// Package mongodb implements store.Store on MongoDB.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/4xmen/wasteless/internal/store"
)

type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ store.Store = (*Store)(nil)

// New connects to uri, selects database and makes sure the indexes exist.
func New(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	s := &Store{client: client, db: client.Database(database)}
	if err := s.migrate(ctx); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	collections := map[string][]mongo.IndexModel{
		"users": {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		"foodposts": {
			{Keys: bson.D{{Key: "category", Value: 1}, {Key: "location", Value: 1}, {Key: "expiryDate", Value: 1}}},
			{Keys: bson.D{{Key: "user", Value: 1}}},
			{Keys: bson.D{{Key: "isAvailable", Value: 1}}},
		},
		"messages": {
			{Keys: bson.D{{Key: "sender", Value: 1}, {Key: "receiver", Value: 1}, {Key: "foodPost", Value: 1}}},
			{Keys: bson.D{{Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "receiver", Value: 1}, {Key: "isRead", Value: 1}}},
		},
	}

	for name, indexes := range collections {
		if _, err := s.db.Collection(name).Indexes().CreateMany(ctx, indexes); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", name, err)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) users() *mongo.Collection     { return s.db.Collection("users") }
func (s *Store) foodPosts() *mongo.Collection { return s.db.Collection("foodposts") }
func (s *Store) messages() *mongo.Collection  { return s.db.Collection("messages") }

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// now is truncated to the millisecond precision BSON dates keep.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func translateError(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return store.ErrNotFound
	}
	if mongo.IsDuplicateKeyError(err) {
		// "E11000 duplicate key error collection: wasteless.users index: email_1 dup key: ..."
		field := "unknown"
		msg := err.Error()
		if i := strings.Index(msg, "index: "); i >= 0 {
			field = strings.TrimSuffix(strings.Fields(msg[i+len("index: "):])[0], "_1")
		}
		return &store.DuplicateError{Field: field}
	}
	return err
}

func (s *Store) Stats(ctx context.Context, since time.Time) (store.Stats, error) {
	var st store.Stats
	counts := []struct {
		dest   *int64
		coll   *mongo.Collection
		filter bson.M
	}{
		{&st.Users, s.users(), bson.M{}},
		{&st.Listings, s.foodPosts(), bson.M{}},
		{&st.AvailableListings, s.foodPosts(), bson.M{"isAvailable": true}},
		{&st.Messages, s.messages(), bson.M{}},
		{&st.UnreadMessages, s.messages(), bson.M{"isRead": false}},
		{&st.MessagesSince, s.messages(), bson.M{"createdAt": bson.M{"$gte": since}}},
	}
	for _, c := range counts {
		n, err := c.coll.CountDocuments(ctx, c.filter)
		if err != nil {
			return st, fmt.Errorf("failed to read stats: %w", err)
		}
		*c.dest = n
	}

	var latest struct {
		CreatedAt time.Time `bson:"createdAt"`
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: -1}}).SetProjection(bson.M{"createdAt": 1})
	err := s.messages().FindOne(ctx, bson.M{}, opts).Decode(&latest)
	if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		return st, fmt.Errorf("failed to read stats: %w", err)
	}
	st.LatestMessageAt = latest.CreatedAt
	return st, nil
}
