package store

import (
	"sort"

	"github.com/4xmen/wasteless/internal/models"
)

type groupKey struct {
	foodPostID  string
	otherUserID string
}

// GroupConversations folds messages, which must be ordered oldest first,
// into conversation groups from userID's point of view. The group key uses
// the other participant, so A->B and B->A on one listing land together.
// Groups are ordered by last message time descending, then last message id
// descending.
func GroupConversations(userID string, messages []*models.Message) []models.ConversationGroup {
	index := make(map[groupKey]int)
	var groups []models.ConversationGroup

	for _, m := range messages {
		if m.SenderID != userID && m.ReceiverID != userID {
			continue
		}
		key := groupKey{foodPostID: m.FoodPostID, otherUserID: m.OtherParty(userID)}
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, models.ConversationGroup{
				FoodPostID:  key.foodPostID,
				OtherUserID: key.otherUserID,
			})
		}

		g := &groups[i]
		g.LastMessage = m
		g.MessageCount++
		if m.ReceiverID == userID && !m.IsRead {
			g.UnreadCount++
		}
	}

	SortConversations(groups)
	return groups
}

// SortConversations orders groups most recent first.
func SortConversations(groups []models.ConversationGroup) {
	sort.SliceStable(groups, func(i, j int) bool {
		a, b := groups[i].LastMessage, groups[j].LastMessage
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
}
