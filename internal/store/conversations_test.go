package store

import (
	"testing"
	"time"

	"github.com/4xmen/wasteless/internal/models"
)

func msg(id, from, to, listing string, at time.Time, read bool) *models.Message {
	return &models.Message{
		ID:          id,
		SenderID:    from,
		ReceiverID:  to,
		FoodPostID:  listing,
		Body:        "hi",
		MessageType: models.MessageTypeText,
		IsRead:      read,
		CreatedAt:   at,
	}
}

func TestGroupConversationsCollapsesDirections(t *testing.T) {
	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	messages := []*models.Message{
		msg("m1", "a", "b", "L", base, false),
		msg("m2", "a", "b", "L", base.Add(time.Minute), false),
		msg("m3", "a", "b", "L", base.Add(2*time.Minute), false),
		msg("m4", "b", "a", "L", base.Add(3*time.Minute), false),
	}

	for _, tt := range []struct {
		user       string
		other      string
		wantUnread int
	}{
		{user: "a", other: "b", wantUnread: 1},
		{user: "b", other: "a", wantUnread: 3},
	} {
		t.Run(tt.user, func(t *testing.T) {
			groups := GroupConversations(tt.user, messages)
			if len(groups) != 1 {
				t.Fatalf("len(groups) = %d, want 1", len(groups))
			}
			g := groups[0]
			if g.OtherUserID != tt.other || g.FoodPostID != "L" {
				t.Errorf("group key = (%s, %s)", g.FoodPostID, g.OtherUserID)
			}
			if g.MessageCount != 4 {
				t.Errorf("MessageCount = %d, want 4", g.MessageCount)
			}
			if g.UnreadCount != tt.wantUnread {
				t.Errorf("UnreadCount = %d, want %d", g.UnreadCount, tt.wantUnread)
			}
			if g.LastMessage.ID != "m4" {
				t.Errorf("LastMessage = %s, want m4", g.LastMessage.ID)
			}
		})
	}
}

func TestGroupConversationsSeparatesListingsAndPeers(t *testing.T) {
	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	messages := []*models.Message{
		msg("m1", "a", "b", "L1", base, true),
		msg("m2", "c", "a", "L1", base.Add(time.Minute), false),
		msg("m3", "a", "b", "L2", base.Add(2*time.Minute), false),
		msg("m4", "b", "c", "L1", base.Add(3*time.Minute), false),
	}

	groups := GroupConversations("a", messages)
	if len(groups) != 3 {
		t.Fatalf("len(groups) = %d, want 3", len(groups))
	}

	wantOrder := []string{"m3", "m2", "m1"}
	for i, id := range wantOrder {
		if groups[i].LastMessage.ID != id {
			t.Errorf("groups[%d].LastMessage = %s, want %s", i, groups[i].LastMessage.ID, id)
		}
	}
	if groups[1].OtherUserID != "c" || groups[1].UnreadCount != 1 {
		t.Errorf("group with c = %+v", groups[1])
	}
}

func TestSortConversationsTieBreaksOnID(t *testing.T) {
	at := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	groups := []models.ConversationGroup{
		{FoodPostID: "L1", LastMessage: msg("m1", "a", "b", "L1", at, false)},
		{FoodPostID: "L2", LastMessage: msg("m2", "a", "c", "L2", at, false)},
	}

	SortConversations(groups)

	if groups[0].FoodPostID != "L2" {
		t.Fatalf("expected the larger message id first on equal timestamps, got %s", groups[0].FoodPostID)
	}
}

func TestGroupConversationsEmpty(t *testing.T) {
	if groups := GroupConversations("a", nil); len(groups) != 0 {
		t.Fatalf("expected no groups, got %d", len(groups))
	}
}
