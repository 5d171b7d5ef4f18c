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

type messageDoc struct {
	ID          string    `bson:"_id"`
	SenderID    string    `bson:"sender"`
	ReceiverID  string    `bson:"receiver"`
	FoodPostID  string    `bson:"foodPost"`
	Body        string    `bson:"message"`
	MessageType string    `bson:"messageType"`
	IsRead      bool      `bson:"isRead"`
	CreatedAt   time.Time `bson:"createdAt"`
	UpdatedAt   time.Time `bson:"updatedAt"`
}

func (d messageDoc) model() *models.Message {
	return &models.Message{
		ID: d.ID, SenderID: d.SenderID, ReceiverID: d.ReceiverID, FoodPostID: d.FoodPostID,
		Body: d.Body, MessageType: d.MessageType, IsRead: d.IsRead,
		CreatedAt: d.CreatedAt.UTC(), UpdatedAt: d.UpdatedAt.UTC(),
	}
}

func (s *Store) CreateMessage(ctx context.Context, m *models.Message) error {
	if m.ID == "" {
		m.ID = newID()
	}
	if m.MessageType == "" {
		m.MessageType = models.MessageTypeText
	}
	ts := now()
	m.CreatedAt, m.UpdatedAt = ts, ts

	_, err := s.messages().InsertOne(ctx, messageDoc{
		ID: m.ID, SenderID: m.SenderID, ReceiverID: m.ReceiverID, FoodPostID: m.FoodPostID,
		Body: m.Body, MessageType: m.MessageType, IsRead: m.IsRead,
		CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt,
	})
	if err != nil {
		return translateError(err)
	}
	return nil
}

func (s *Store) MessageByID(ctx context.Context, id string) (*models.Message, error) {
	var doc messageDoc
	if err := s.messages().FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return nil, translateError(err)
	}
	return doc.model(), nil
}

func (s *Store) DeleteMessage(ctx context.Context, id string) error {
	result, err := s.messages().DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	if result.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ThreadMessages(ctx context.Context, q store.ThreadQuery) ([]*models.Message, int, error) {
	filter := bson.M{
		"foodPost": q.FoodPostID,
		"$or": bson.A{
			bson.M{"sender": q.UserID, "receiver": q.OtherID},
			bson.M{"sender": q.OtherID, "receiver": q.UserID},
		},
	}

	total, err := s.messages().CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count messages: %w", err)
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	if q.Limit > 0 {
		opts.SetSkip(int64(q.Offset)).SetLimit(int64(q.Limit))
	}
	cursor, err := s.messages().Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch messages: %w", err)
	}
	var docs []messageDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, 0, fmt.Errorf("failed to decode messages: %w", err)
	}

	messages := make([]*models.Message, len(docs))
	for i, d := range docs {
		messages[i] = d.model()
	}
	return messages, int(total), nil
}

func (s *Store) MarkRead(ctx context.Context, foodPostID, senderID, receiverID string) (int64, error) {
	result, err := s.messages().UpdateMany(ctx,
		bson.M{"foodPost": foodPostID, "sender": senderID, "receiver": receiverID, "isRead": false},
		bson.M{"$set": bson.M{"isRead": true, "updatedAt": now()}},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark messages read: %w", err)
	}
	return result.ModifiedCount, nil
}

func (s *Store) UnreadCount(ctx context.Context, receiverID string) (int, error) {
	n, err := s.messages().CountDocuments(ctx, bson.M{"receiver": receiverID, "isRead": false})
	if err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}
	return int(n), nil
}

// Conversations runs the grouping server side. Messages are sorted oldest
// first before $group so $last picks the most recent one.
func (s *Store) Conversations(ctx context.Context, userID string) ([]models.ConversationGroup, error) {
	otherParty := bson.M{"$cond": bson.A{bson.M{"$eq": bson.A{"$sender", userID}}, "$receiver", "$sender"}}
	unreadToUser := bson.M{"$cond": bson.A{
		bson.M{"$and": bson.A{
			bson.M{"$eq": bson.A{"$receiver", userID}},
			bson.M{"$eq": bson.A{"$isRead", false}},
		}},
		1, 0,
	}}

	cursor, err := s.messages().Aggregate(ctx, mongoPipeline(
		bson.D{{Key: "$match", Value: bson.M{"$or": bson.A{bson.M{"sender": userID}, bson.M{"receiver": userID}}}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}}},
		bson.D{{Key: "$group", Value: bson.M{
			"_id":          bson.M{"foodPost": "$foodPost", "otherUser": otherParty},
			"lastMessage":  bson.M{"$last": "$$ROOT"},
			"messageCount": bson.M{"$sum": 1},
			"unreadCount":  bson.M{"$sum": unreadToUser},
		}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "lastMessage.createdAt", Value: -1}, {Key: "lastMessage._id", Value: -1}}}},
	))
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate conversations: %w", err)
	}

	var rows []struct {
		Key struct {
			FoodPost  string `bson:"foodPost"`
			OtherUser string `bson:"otherUser"`
		} `bson:"_id"`
		LastMessage  messageDoc `bson:"lastMessage"`
		MessageCount int        `bson:"messageCount"`
		UnreadCount  int        `bson:"unreadCount"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode conversations: %w", err)
	}

	groups := make([]models.ConversationGroup, len(rows))
	for i, r := range rows {
		groups[i] = models.ConversationGroup{
			FoodPostID:   r.Key.FoodPost,
			OtherUserID:  r.Key.OtherUser,
			LastMessage:  r.LastMessage.model(),
			MessageCount: r.MessageCount,
			UnreadCount:  r.UnreadCount,
		}
	}
	return groups, nil
}
