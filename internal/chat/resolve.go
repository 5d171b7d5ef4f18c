package chat

import (
	"context"

	"go.uber.org/zap"

	"github.com/4xmen/wasteless/internal/apperr"
	"github.com/4xmen/wasteless/internal/models"
)

// refs holds the display summaries referenced by a set of messages.
// Missing references resolve to a summary carrying only the id.
type refs struct {
	users    map[string]models.UserSummary
	listings map[string]models.ListingSummary
}

func (r refs) user(id string) models.UserSummary {
	if u, ok := r.users[id]; ok {
		return u.Brief()
	}
	return models.UserSummary{ID: id}
}

func (r refs) listing(id string) models.ListingSummary {
	if l, ok := r.listings[id]; ok {
		return l
	}
	return models.ListingSummary{ID: id}
}

func (r refs) view(m *models.Message) models.MessageView {
	return models.MessageView{
		ID:             m.ID,
		Sender:         r.user(m.SenderID),
		Receiver:       r.user(m.ReceiverID),
		FoodPost:       r.listing(m.FoodPostID),
		Message:        m.Body,
		MessageType:    m.MessageType,
		IsRead:         m.IsRead,
		ConversationID: m.ConversationID(),
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func appendUnique(ids []string, seen map[string]bool, id string) []string {
	if id == "" || seen[id] {
		return ids
	}
	seen[id] = true
	return append(ids, id)
}

func missingIDs[V any](ids []string, found map[string]V) []string {
	var missing []string
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

// references batch loads every user and listing that messages point at,
// plus extraUsers.
func (s *Service) references(ctx context.Context, messages []*models.Message, extraUsers []string) (refs, error) {
	var userIDs, listingIDs []string
	seenUsers, seenListings := map[string]bool{}, map[string]bool{}
	for _, m := range messages {
		userIDs = appendUnique(userIDs, seenUsers, m.SenderID)
		userIDs = appendUnique(userIDs, seenUsers, m.ReceiverID)
		listingIDs = appendUnique(listingIDs, seenListings, m.FoodPostID)
	}
	for _, id := range extraUsers {
		userIDs = appendUnique(userIDs, seenUsers, id)
	}

	users, err := s.store.UserSummaries(ctx, userIDs)
	if err != nil {
		return refs{}, apperr.Internal("failed to fetch users", err)
	}
	listings, err := s.store.ListingSummaries(ctx, listingIDs)
	if err != nil {
		return refs{}, apperr.Internal("failed to fetch food posts", err)
	}
	if missing := missingIDs(userIDs, users); len(missing) > 0 {
		s.logger.Debug("users not found, using id-only summaries", zap.Strings("user_ids", missing))
	}
	if missing := missingIDs(listingIDs, listings); len(missing) > 0 {
		s.logger.Debug("food posts not found, using id-only summaries", zap.Strings("food_post_ids", missing))
	}
	return refs{users: users, listings: listings}, nil
}

func (s *Service) resolve(ctx context.Context, messages []*models.Message) ([]models.MessageView, error) {
	r, err := s.references(ctx, messages, nil)
	if err != nil {
		return nil, err
	}
	views := make([]models.MessageView, len(messages))
	for i, m := range messages {
		views[i] = r.view(m)
	}
	return views, nil
}
