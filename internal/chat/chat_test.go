package chat

import (
	"context"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/4xmen/wasteless/internal/apperr"
	"github.com/4xmen/wasteless/internal/db"
	"github.com/4xmen/wasteless/internal/models"
)

type fixture struct {
	svc     *Service
	db      *db.DB
	a, b, c *models.User
	listing *models.FoodPost
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	database, err := db.New(t.TempDir() + "/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	ctx := context.Background()
	users := make([]*models.User, 3)
	for i, name := range []string{"alice", "bob", "carol"} {
		users[i] = &models.User{Username: name, Email: name + "@example.com", PasswordHash: "x", Location: "somewhere"}
		require.NoError(t, database.CreateUser(ctx, users[i]))
	}

	listing := &models.FoodPost{
		UserID: users[1].ID, Name: "Bread", Description: "Sourdough", Category: models.CategoryBakedGoods,
		Condition: models.ConditionFresh, ExpiryDate: time.Now().Add(24 * time.Hour),
		Location: "Downtown", Quantity: "1 loaf", ImageURL: "/uploads/bread.png", IsAvailable: true,
	}
	require.NoError(t, database.CreateListing(ctx, listing))

	return &fixture{
		svc: NewService(database, nil), db: database,
		a: users[0], b: users[1], c: users[2], listing: listing,
	}
}

func (f *fixture) send(t *testing.T, from, to *models.User, body string) *models.MessageView {
	t.Helper()
	view, err := f.svc.Send(context.Background(), from.ID, SendInput{
		ReceiverID: to.ID, FoodPostID: f.listing.ID, Message: body,
	})
	require.NoError(t, err)
	return view
}

func TestSend(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	view := f.send(t, f.a, f.b, "  is it still available?  ")
	assert.Equal(t, "is it still available?", view.Message)
	assert.Equal(t, models.MessageTypeText, view.MessageType)
	assert.False(t, view.IsRead)
	assert.Equal(t, "alice", view.Sender.Username)
	assert.Empty(t, view.Sender.Location)
	assert.Equal(t, "bob", view.Receiver.Username)
	assert.Equal(t, models.ListingSummary{ID: f.listing.ID, Name: "Bread", ImageURL: "/uploads/bread.png"}, view.FoodPost)

	reply := f.send(t, f.b, f.a, "yes")
	assert.Equal(t, view.ConversationID, reply.ConversationID)
	assert.Equal(t, models.ConversationKey(f.a.ID, f.b.ID, f.listing.ID), reply.ConversationID)

	tests := []struct {
		name   string
		sender string
		in     SendInput
		kind   apperr.Kind
	}{
		{"to self", f.a.ID, SendInput{ReceiverID: f.a.ID, FoodPostID: f.listing.ID, Message: "hi"}, apperr.KindInvalidRequest},
		{"unknown receiver", f.a.ID, SendInput{ReceiverID: "missing", FoodPostID: f.listing.ID, Message: "hi"}, apperr.KindNotFound},
		{"unknown listing", f.a.ID, SendInput{ReceiverID: f.b.ID, FoodPostID: "missing", Message: "hi"}, apperr.KindNotFound},
		{"blank", f.a.ID, SendInput{ReceiverID: f.b.ID, FoodPostID: f.listing.ID, Message: "   "}, apperr.KindInvalidRequest},
		{"too long", f.a.ID, SendInput{ReceiverID: f.b.ID, FoodPostID: f.listing.ID, Message: strings.Repeat("x", 1001)}, apperr.KindInvalidRequest},
		{"bad type", f.a.ID, SendInput{ReceiverID: f.b.ID, FoodPostID: f.listing.ID, Message: "hi", MessageType: "video"}, apperr.KindInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Send(ctx, tt.sender, tt.in)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
		})
	}
}

func TestThreadPagination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		f.send(t, f.a, f.b, fmt.Sprintf("m%d", i))
	}
	f.send(t, f.a, f.c, "not in this thread")

	first, err := f.svc.Thread(ctx, f.a.ID, f.listing.ID, f.b.ID, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, models.Pagination{CurrentPage: 1, TotalPages: 3, TotalItems: 5, ItemsPerPage: 2}, first.Pagination)
	require.Len(t, first.Messages, 2)
	assert.Equal(t, "m4", first.Messages[0].Message)
	assert.Equal(t, "m5", first.Messages[1].Message)

	last, err := f.svc.Thread(ctx, f.a.ID, f.listing.ID, f.b.ID, 3, 2)
	require.NoError(t, err)
	require.Len(t, last.Messages, 1)
	assert.Equal(t, "m1", last.Messages[0].Message)

	all, err := f.svc.Thread(ctx, f.a.ID, f.listing.ID, f.b.ID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultThreadLimit, all.Pagination.ItemsPerPage)
	for i := 1; i < len(all.Messages); i++ {
		assert.False(t, all.Messages[i].CreatedAt.Before(all.Messages[i-1].CreatedAt))
	}

	beyond, err := f.svc.Thread(ctx, f.a.ID, f.listing.ID, f.b.ID, math.MaxInt, MaxThreadLimit)
	require.NoError(t, err)
	assert.Equal(t, models.MaxPage, beyond.Pagination.CurrentPage)
	assert.Empty(t, beyond.Messages)

	_, err = f.svc.Thread(ctx, f.a.ID, f.listing.ID, "missing", 1, 20)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	_, err = f.svc.Thread(ctx, f.a.ID, "missing", f.b.ID, 1, 20)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

// A sends three messages to B about L, B replies once, then A opens the thread.
func TestConversationExample(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.send(t, f.a, f.b, "one")
	f.send(t, f.a, f.b, "two")
	f.send(t, f.a, f.b, "three")
	reply := f.send(t, f.b, f.a, "four")

	before, err := f.svc.UnreadCount(ctx, f.a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, before)

	_, err = f.svc.Thread(ctx, f.a.ID, f.listing.ID, f.b.ID, 1, 20)
	require.NoError(t, err)

	after, err := f.svc.UnreadCount(ctx, f.a.ID)
	require.NoError(t, err)
	assert.Equal(t, before-1, after)

	flipped, err := f.svc.MarkRead(ctx, f.a.ID, f.listing.ID, f.b.ID)
	require.NoError(t, err)
	assert.Zero(t, flipped)

	for _, tt := range []struct {
		user   *models.User
		other  *models.User
		unread int
	}{
		{f.a, f.b, 0},
		{f.b, f.a, 3},
	} {
		conversations, err := f.svc.Conversations(ctx, tt.user.ID)
		require.NoError(t, err)
		require.Len(t, conversations, 1)

		c := conversations[0]
		assert.Equal(t, tt.other.ID, c.ID.OtherUser.ID)
		assert.Equal(t, tt.other.Username, c.ID.OtherUser.Username)
		assert.Equal(t, "Bread", c.ID.FoodPost.Name)
		assert.Equal(t, 4, c.MessageCount)
		assert.Equal(t, tt.unread, c.UnreadCount)
		assert.Equal(t, reply.ID, c.LastMessage.ID)
	}

	flipped, err = f.svc.MarkRead(ctx, f.b.ID, f.listing.ID, f.a.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, flipped)
}

func TestConversationsOrderedByRecency(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.send(t, f.b, f.a, "from bob")
	f.send(t, f.c, f.a, "from carol")

	conversations, err := f.svc.Conversations(ctx, f.a.ID)
	require.NoError(t, err)
	require.Len(t, conversations, 2)
	assert.Equal(t, f.c.ID, conversations[0].ID.OtherUser.ID)
	assert.Equal(t, f.b.ID, conversations[1].ID.OtherUser.ID)

	// Messages outlive their listing; the summary then only carries the id.
	core, logs := observer.New(zapcore.DebugLevel)
	f.svc = NewService(f.db, zap.New(core))
	require.NoError(t, f.db.DeleteListing(ctx, f.listing.ID))
	conversations, err = f.svc.Conversations(ctx, f.a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ListingSummary{ID: f.listing.ID}, conversations[0].ID.FoodPost)

	fallbacks := logs.FilterMessage("food posts not found, using id-only summaries").All()
	require.Len(t, fallbacks, 1)
	assert.Equal(t, []any{f.listing.ID}, fallbacks[0].ContextMap()["food_post_ids"])
	assert.Zero(t, logs.FilterMessage("users not found, using id-only summaries").Len())
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	msg := f.send(t, f.a, f.b, "oops")

	err := f.svc.Delete(ctx, f.b.ID, msg.ID)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))

	require.NoError(t, f.svc.Delete(ctx, f.a.ID, msg.ID))

	err = f.svc.Delete(ctx, f.a.ID, msg.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	thread, err := f.svc.Thread(ctx, f.b.ID, f.listing.ID, f.a.ID, 1, 20)
	require.NoError(t, err)
	assert.Empty(t, thread.Messages)
}
