package models

import (
	"sort"
	"strings"
	"time"
)

// Listing categories.
const (
	CategoryFruits     = "Fruits"
	CategoryVegetables = "Vegetables"
	CategoryDairy      = "Dairy"
	CategoryMeat       = "Meat"
	CategoryGrains     = "Grains"
	CategoryBakedGoods = "Baked Goods"
	CategoryOther      = "Other"
)

// Listing conditions.
const (
	ConditionFresh      = "Fresh"
	ConditionNearExpiry = "Near Expiry"
	ConditionFrozen     = "Frozen"
	ConditionOpened     = "Opened"
)

// Message types.
const (
	MessageTypeText  = "text"
	MessageTypeImage = "image"
)

var Categories = []string{
	CategoryFruits, CategoryVegetables, CategoryDairy, CategoryMeat,
	CategoryGrains, CategoryBakedGoods, CategoryOther,
}

var Conditions = []string{
	ConditionFresh, ConditionNearExpiry, ConditionFrozen, ConditionOpened,
}

func ValidCategory(c string) bool  { return contains(Categories, c) }
func ValidCondition(c string) bool { return contains(Conditions, c) }

func ValidMessageType(t string) bool {
	return t == MessageTypeText || t == MessageTypeImage
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

type User struct {
	ID             string    `json:"_id"`
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	PasswordHash   string    `json:"-"`
	Location       string    `json:"location"`
	Bio            string    `json:"bio"`
	ProfilePicture string    `json:"profilePicture"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// UserSummary is the display form of a user embedded in other resources.
type UserSummary struct {
	ID             string `json:"_id"`
	Username       string `json:"username"`
	ProfilePicture string `json:"profilePicture"`
	Location       string `json:"location,omitempty"`
	Bio            string `json:"bio,omitempty"`
}

// Brief drops the profile details shown only on listing pages.
func (s UserSummary) Brief() UserSummary {
	return UserSummary{ID: s.ID, Username: s.Username, ProfilePicture: s.ProfilePicture}
}

func (u *User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Username: u.Username, ProfilePicture: u.ProfilePicture}
}

type ImageMetadata struct {
	PublicID string `json:"publicId" bson:"publicId"`
	Width    int    `json:"width" bson:"width"`
	Height   int    `json:"height" bson:"height"`
	Format   string `json:"format" bson:"format"`
	Size     int64  `json:"size" bson:"size"`
}

type Coordinates struct {
	Latitude  float64 `json:"latitude" bson:"latitude"`
	Longitude float64 `json:"longitude" bson:"longitude"`
}

type FoodPost struct {
	ID            string         `json:"_id"`
	UserID        string         `json:"-"`
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	Category      string         `json:"category"`
	Condition     string         `json:"condition"`
	ExpiryDate    time.Time      `json:"expiryDate"`
	Location      string         `json:"location"`
	Quantity      string         `json:"quantity"`
	ImageURL      string         `json:"imageUrl"`
	ImageMetadata *ImageMetadata `json:"imageMetadata,omitempty"`
	IsAvailable   bool           `json:"isAvailable"`
	Coordinates   *Coordinates   `json:"coordinates,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

func (p *FoodPost) IsExpired(now time.Time) bool {
	return now.After(p.ExpiryDate)
}

// FoodPostView is a listing with its owner resolved.
type FoodPostView struct {
	*FoodPost
	User      UserSummary `json:"user"`
	IsExpired bool        `json:"isExpired"`
}

type ListingSummary struct {
	ID       string `json:"_id"`
	Name     string `json:"name"`
	ImageURL string `json:"imageUrl"`
}

type Message struct {
	ID          string    `json:"_id"`
	SenderID    string    `json:"sender"`
	ReceiverID  string    `json:"receiver"`
	FoodPostID  string    `json:"foodPost"`
	Body        string    `json:"message"`
	MessageType string    `json:"messageType"`
	IsRead      bool      `json:"isRead"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ConversationID identifies the pair of participants talking about one
// listing, independent of message direction.
func (m *Message) ConversationID() string {
	return ConversationKey(m.SenderID, m.ReceiverID, m.FoodPostID)
}

func ConversationKey(userA, userB, foodPostID string) string {
	users := []string{userA, userB}
	sort.Strings(users)
	return strings.Join([]string{users[0], users[1], foodPostID}, "-")
}

// OtherParty returns the participant that is not userID.
func (m *Message) OtherParty(userID string) string {
	if m.SenderID == userID {
		return m.ReceiverID
	}
	return m.SenderID
}

// MessageView is a message with its references resolved to display form.
type MessageView struct {
	ID             string         `json:"_id"`
	Sender         UserSummary    `json:"sender"`
	Receiver       UserSummary    `json:"receiver"`
	FoodPost       ListingSummary `json:"foodPost"`
	Message        string         `json:"message"`
	MessageType    string         `json:"messageType"`
	IsRead         bool           `json:"isRead"`
	ConversationID string         `json:"conversationId"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// ConversationGroup is one (listing, other participant) bucket as produced by
// a store, before references are resolved.
type ConversationGroup struct {
	FoodPostID   string
	OtherUserID  string
	LastMessage  *Message
	MessageCount int
	UnreadCount  int
}

type ConversationKeyView struct {
	FoodPost  ListingSummary `json:"foodPost"`
	OtherUser UserSummary    `json:"otherUser"`
}

type Conversation struct {
	ID           ConversationKeyView `json:"_id"`
	LastMessage  MessageView         `json:"lastMessage"`
	MessageCount int                 `json:"messageCount"`
	UnreadCount  int                 `json:"unreadCount"`
}

type Pagination struct {
	CurrentPage  int `json:"currentPage"`
	TotalPages   int `json:"totalPages"`
	TotalItems   int `json:"totalItems"`
	ItemsPerPage int `json:"itemsPerPage"`
}

// MaxPage bounds page numbers so (page-1)*limit stays well inside int range.
const MaxPage = 1_000_000

func NewPagination(page, limit, total int) Pagination {
	totalPages := 0
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}
	return Pagination{
		CurrentPage:  page,
		TotalPages:   totalPages,
		TotalItems:   total,
		ItemsPerPage: limit,
	}
}
