// Package chat implements direct messaging about a listing and the derived
// conversation list.
package chat

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/4xmen/wasteless/internal/apperr"
	"github.com/4xmen/wasteless/internal/models"
	"github.com/4xmen/wasteless/internal/store"
)

const (
	DefaultThreadLimit = 20
	MaxThreadLimit     = 100
	MaxMessageLength   = 1000
)

type Store interface {
	store.MessageStore
	UserExists(ctx context.Context, id string) (bool, error)
	ListingExists(ctx context.Context, id string) (bool, error)
	UserSummaries(ctx context.Context, ids []string) (map[string]models.UserSummary, error)
	ListingSummaries(ctx context.Context, ids []string) (map[string]models.ListingSummary, error)
}

type Service struct {
	store  Store
	logger *zap.Logger
}

func NewService(st Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: st, logger: logger}
}

type SendInput struct {
	ReceiverID  string
	FoodPostID  string
	Message     string
	MessageType string
}

type ThreadPage struct {
	Messages   []models.MessageView `json:"messages"`
	Pagination models.Pagination    `json:"pagination"`
}

func (s *Service) requireUser(ctx context.Context, id, notFound string) error {
	ok, err := s.store.UserExists(ctx, id)
	if err != nil {
		return apperr.Internal("failed to fetch user", err)
	}
	if !ok {
		return apperr.NotFound(notFound)
	}
	return nil
}

func (s *Service) requireListing(ctx context.Context, id string) error {
	ok, err := s.store.ListingExists(ctx, id)
	if err != nil {
		return apperr.Internal("failed to fetch food post", err)
	}
	if !ok {
		return apperr.NotFound("food post not found")
	}
	return nil
}

// Send stores a message from senderID about a listing.
func (s *Service) Send(ctx context.Context, senderID string, in SendInput) (*models.MessageView, error) {
	if err := s.requireUser(ctx, in.ReceiverID, "receiver not found"); err != nil {
		return nil, err
	}
	if err := s.requireListing(ctx, in.FoodPostID); err != nil {
		return nil, err
	}
	if in.ReceiverID == senderID {
		return nil, apperr.InvalidRequest("cannot send message to yourself")
	}

	body := strings.TrimSpace(in.Message)
	if body == "" {
		return nil, apperr.InvalidRequest("message is required")
	}
	if utf8.RuneCountInString(body) > MaxMessageLength {
		return nil, apperr.InvalidRequest("message cannot exceed 1000 characters")
	}
	msgType := in.MessageType
	if msgType == "" {
		msgType = models.MessageTypeText
	}
	if !models.ValidMessageType(msgType) {
		return nil, apperr.InvalidRequest("invalid message type")
	}

	msg := &models.Message{
		SenderID:    senderID,
		ReceiverID:  in.ReceiverID,
		FoodPostID:  in.FoodPostID,
		Body:        body,
		MessageType: msgType,
	}
	if err := s.store.CreateMessage(ctx, msg); err != nil {
		return nil, apperr.Internal("failed to send message", err)
	}

	views, err := s.resolve(ctx, []*models.Message{msg})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// Delete removes a message. Only its sender may do so.
func (s *Service) Delete(ctx context.Context, actorID, messageID string) error {
	msg, err := s.store.MessageByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("message not found")
		}
		return apperr.Internal("failed to fetch message", err)
	}
	if msg.SenderID != actorID {
		return apperr.Unauthorized("not authorized to delete this message")
	}

	if err := s.store.DeleteMessage(ctx, messageID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("message not found")
		}
		return apperr.Internal("failed to delete message", err)
	}
	return nil
}

// Thread returns one page of the messages between actorID and otherID about
// a listing, oldest first. Pages are counted from the newest message.
// Opening a thread marks the other party's messages to actorID as read.
func (s *Service) Thread(ctx context.Context, actorID, foodPostID, otherID string, page, limit int) (*ThreadPage, error) {
	if page < 1 {
		page = 1
	}
	if page > models.MaxPage {
		page = models.MaxPage
	}
	if limit < 1 {
		limit = DefaultThreadLimit
	}
	if limit > MaxThreadLimit {
		limit = MaxThreadLimit
	}

	if err := s.requireUser(ctx, otherID, "user not found"); err != nil {
		return nil, err
	}
	if err := s.requireListing(ctx, foodPostID); err != nil {
		return nil, err
	}

	messages, total, err := s.store.ThreadMessages(ctx, store.ThreadQuery{
		FoodPostID: foodPostID,
		UserID:     actorID,
		OtherID:    otherID,
		Offset:     (page - 1) * limit,
		Limit:      limit,
	})
	if err != nil {
		return nil, apperr.Internal("failed to fetch messages", err)
	}

	if _, err := s.store.MarkRead(ctx, foodPostID, otherID, actorID); err != nil {
		return nil, apperr.Internal("failed to mark messages read", err)
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	views, err := s.resolve(ctx, messages)
	if err != nil {
		return nil, err
	}
	return &ThreadPage{Messages: views, Pagination: models.NewPagination(page, limit, total)}, nil
}

// Conversations lists actorID's conversations, most recent first.
func (s *Service) Conversations(ctx context.Context, actorID string) ([]models.Conversation, error) {
	groups, err := s.store.Conversations(ctx, actorID)
	if err != nil {
		return nil, apperr.Internal("failed to fetch conversations", err)
	}

	last := make([]*models.Message, len(groups))
	extraUsers := make([]string, len(groups))
	for i, g := range groups {
		last[i] = g.LastMessage
		extraUsers[i] = g.OtherUserID
	}

	refs, err := s.references(ctx, last, extraUsers)
	if err != nil {
		return nil, err
	}

	conversations := make([]models.Conversation, len(groups))
	for i, g := range groups {
		conversations[i] = models.Conversation{
			ID: models.ConversationKeyView{
				FoodPost:  refs.listing(g.FoodPostID),
				OtherUser: refs.user(g.OtherUserID),
			},
			LastMessage:  refs.view(g.LastMessage),
			MessageCount: g.MessageCount,
			UnreadCount:  g.UnreadCount,
		}
	}
	return conversations, nil
}

func (s *Service) MarkRead(ctx context.Context, actorID, foodPostID, senderID string) (int64, error) {
	n, err := s.store.MarkRead(ctx, foodPostID, senderID, actorID)
	if err != nil {
		return 0, apperr.Internal("failed to mark messages read", err)
	}
	return n, nil
}

func (s *Service) UnreadCount(ctx context.Context, actorID string) (int, error) {
	n, err := s.store.UnreadCount(ctx, actorID)
	if err != nil {
		return 0, apperr.Internal("failed to count unread messages", err)
	}
	return n, nil
}
