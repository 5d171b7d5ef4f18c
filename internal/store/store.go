// Package store defines the persistence contracts implemented by the SQLite
// and MongoDB backends.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/4xmen/wasteless/internal/models"
)

var ErrNotFound = errors.New("record not found")

// DuplicateError reports a unique constraint violation on Field.
type DuplicateError struct {
	Field string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate value for %s", e.Field)
}

type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	UpdateUser(ctx context.Context, u *models.User) error
	UserByID(ctx context.Context, id string) (*models.User, error)
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	UserExists(ctx context.Context, id string) (bool, error)
	ListUsers(ctx context.Context) ([]*models.User, error)
	// UserSummaries resolves ids in one round trip. Unknown ids are absent.
	UserSummaries(ctx context.Context, ids []string) (map[string]models.UserSummary, error)
}

// Sortable listing fields.
const (
	SortCreatedAt  = "createdAt"
	SortUpdatedAt  = "updatedAt"
	SortExpiryDate = "expiryDate"
	SortName       = "name"
	SortCategory   = "category"
	SortLocation   = "location"
)

var SortFields = []string{SortCreatedAt, SortUpdatedAt, SortExpiryDate, SortName, SortCategory, SortLocation}

type ListingQuery struct {
	OwnerID   string
	Category  string
	Location  string // case-insensitive substring
	Search    string // case-insensitive substring of name or description
	Available *bool
	// ExpiresAfter keeps listings whose expiry date is at or after the time.
	ExpiresAfter  *time.Time
	ExpiresBefore *time.Time
	SortBy        string
	SortDesc      bool
	Offset        int
	Limit         int
}

type ListingStore interface {
	CreateListing(ctx context.Context, p *models.FoodPost) error
	UpdateListing(ctx context.Context, p *models.FoodPost) error
	DeleteListing(ctx context.Context, id string) error
	ListingByID(ctx context.Context, id string) (*models.FoodPost, error)
	ListingExists(ctx context.Context, id string) (bool, error)
	// FindListings returns one page and the total number of matches.
	FindListings(ctx context.Context, q ListingQuery) ([]*models.FoodPost, int, error)
	ListingCategories(ctx context.Context) ([]string, error)
	ListingSummaries(ctx context.Context, ids []string) (map[string]models.ListingSummary, error)
}

type ThreadQuery struct {
	FoodPostID string
	UserID     string
	OtherID    string
	Offset     int
	Limit      int
}

type MessageStore interface {
	CreateMessage(ctx context.Context, m *models.Message) error
	MessageByID(ctx context.Context, id string) (*models.Message, error)
	DeleteMessage(ctx context.Context, id string) error
	// ThreadMessages returns one page of the thread newest first, and the
	// thread size.
	ThreadMessages(ctx context.Context, q ThreadQuery) ([]*models.Message, int, error)
	// MarkRead flips unread sender->receiver messages on a listing and
	// returns how many changed.
	MarkRead(ctx context.Context, foodPostID, senderID, receiverID string) (int64, error)
	UnreadCount(ctx context.Context, receiverID string) (int, error)
	// Conversations groups every message userID took part in by
	// (listing, other participant), most recent group first.
	Conversations(ctx context.Context, userID string) ([]models.ConversationGroup, error)
}

// Stats is an operational snapshot of the datastore.
type Stats struct {
	Users             int64
	Listings          int64
	AvailableListings int64
	Messages          int64
	UnreadMessages    int64
	// MessagesSince counts messages created at or after the time passed to
	// Stats.
	MessagesSince   int64
	LatestMessageAt time.Time
}

type Store interface {
	UserStore
	ListingStore
	MessageStore
	Stats(ctx context.Context, since time.Time) (Stats, error)
	Ping(ctx context.Context) error
	Close() error
}
