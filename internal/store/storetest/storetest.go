// Package storetest runs the same behaviour checks against every
// store.Store implementation.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/4xmen/wasteless/internal/models"
	"github.com/4xmen/wasteless/internal/store"
)

// Run executes every check, each on a fresh store from newStore.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("users", func(t *testing.T) { testUsers(t, newStore(t)) })
	t.Run("messages", func(t *testing.T) { testMessages(t, newStore(t)) })
	t.Run("text filters fold case", func(t *testing.T) { testTextFilters(t, newStore(t)) })
	t.Run("summaries", func(t *testing.T) { testSummaries(t, newStore(t)) })
}

func createUser(t *testing.T, s store.Store, name string) *models.User {
	t.Helper()
	u := &models.User{Username: name, Email: name + "@example.com", PasswordHash: "hash"}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func createListing(t *testing.T, s store.Store, owner *models.User, mutate func(*models.FoodPost)) *models.FoodPost {
	t.Helper()
	p := &models.FoodPost{
		UserID:      owner.ID,
		Name:        "Apples",
		Description: "A bag of apples",
		Category:    models.CategoryFruits,
		Condition:   models.ConditionFresh,
		ExpiryDate:  time.Now().Add(48 * time.Hour),
		Location:    "Downtown",
		Quantity:    "2 kg",
		IsAvailable: true,
	}
	if mutate != nil {
		mutate(p)
	}
	require.NoError(t, s.CreateListing(context.Background(), p))
	return p
}

func testUsers(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := createUser(t, s, "alice")
	b := createUser(t, s, "bob")

	got, err := s.UserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	_, err = s.UserByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, store.ErrNotFound)

	var dup *store.DuplicateError
	err = s.CreateUser(ctx, &models.User{Username: "alice2", Email: "alice@example.com", PasswordHash: "hash"})
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "email", dup.Field)

	b.Email = a.Email
	err = s.UpdateUser(ctx, b)
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "email", dup.Field)

	b.Email = "bob@example.org"
	b.Bio = "hello"
	require.NoError(t, s.UpdateUser(ctx, b))
	got, err = s.UserByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "bob@example.org", got.Email)
	assert.Equal(t, "hello", got.Bio)

	err = s.UpdateUser(ctx, &models.User{ID: "missing", Username: "x", Email: "x@example.com"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testMessages(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := createUser(t, s, "a")
	b := createUser(t, s, "b")
	listing := createListing(t, s, b, nil)

	send := func(from, to *models.User, body string) *models.Message {
		m := &models.Message{SenderID: from.ID, ReceiverID: to.ID, FoodPostID: listing.ID, Body: body}
		require.NoError(t, s.CreateMessage(ctx, m))
		return m
	}

	// Sent back to back these often share a timestamp, so ordering relies
	// on the id tie-break.
	send(a, b, "one")
	send(a, b, "two")
	send(a, b, "three")
	last := send(b, a, "four")

	t.Run("thread newest first", func(t *testing.T) {
		page, total, err := s.ThreadMessages(ctx, store.ThreadQuery{
			FoodPostID: listing.ID, UserID: a.ID, OtherID: b.ID, Limit: 2,
		})
		require.NoError(t, err)
		assert.Equal(t, 4, total)
		require.Len(t, page, 2)
		assert.Equal(t, "four", page[0].Body)
		assert.Equal(t, "three", page[1].Body)
		assert.Equal(t, models.MessageTypeText, page[0].MessageType)

		page, _, err = s.ThreadMessages(ctx, store.ThreadQuery{
			FoodPostID: listing.ID, UserID: b.ID, OtherID: a.ID, Offset: 2, Limit: 2,
		})
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, "two", page[0].Body)
		assert.Equal(t, "one", page[1].Body)
	})

	t.Run("mark read is idempotent", func(t *testing.T) {
		n, err := s.MarkRead(ctx, listing.ID, a.ID, b.ID)
		require.NoError(t, err)
		assert.EqualValues(t, 3, n)

		count, err := s.UnreadCount(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, count)

		count, err = s.UnreadCount(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		n, err = s.MarkRead(ctx, listing.ID, a.ID, b.ID)
		require.NoError(t, err)
		assert.EqualValues(t, 0, n)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, s.DeleteMessage(ctx, last.ID))
		_, err := s.MessageByID(ctx, last.ID)
		assert.ErrorIs(t, err, store.ErrNotFound)
		assert.ErrorIs(t, s.DeleteMessage(ctx, last.ID), store.ErrNotFound)
	})
}

func testTextFilters(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := createUser(t, s, "owner")
	zurich := createListing(t, s, owner, func(p *models.FoodPost) {
		p.Name = "Äpfel"
		p.Description = "Frische Äpfel vom Markt"
		p.Location = "Zürich Altstadt"
	})
	createListing(t, s, owner, nil)

	for _, q := range []store.ListingQuery{
		{Location: "ZÜRICH"},
		{Location: "altSTADT"},
		{Search: "äpfel"},
		{Search: "VOM MARKT"},
	} {
		got, total, err := s.FindListings(ctx, q)
		require.NoError(t, err)
		assert.Equal(t, 1, total, "%+v", q)
		if assert.Len(t, got, 1, "%+v", q) {
			assert.Equal(t, zurich.ID, got[0].ID)
		}
	}
}

func testSummaries(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := createUser(t, s, "owner")
	listing := createListing(t, s, owner, func(p *models.FoodPost) { p.ImageURL = "/uploads/a.png" })

	users, err := s.UserSummaries(ctx, []string{owner.ID, "missing"})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "owner", users[owner.ID].Username)

	listings, err := s.ListingSummaries(ctx, []string{listing.ID, "missing"})
	require.NoError(t, err)
	require.Len(t, listings, 1)
	assert.Equal(t, models.ListingSummary{ID: listing.ID, Name: "Apples", ImageURL: "/uploads/a.png"}, listings[listing.ID])

	empty, err := s.UserSummaries(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
