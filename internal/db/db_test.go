package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/4xmen/wasteless/internal/models"
	"github.com/4xmen/wasteless/internal/store"
	"github.com/4xmen/wasteless/internal/store/storetest"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createUser(t *testing.T, db *DB, name string) *models.User {
	t.Helper()
	u := &models.User{Username: name, Email: name + "@example.com", PasswordHash: "hash"}
	require.NoError(t, db.CreateUser(context.Background(), u))
	return u
}

func createListing(t *testing.T, db *DB, owner *models.User, mutate func(*models.FoodPost)) *models.FoodPost {
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
	require.NoError(t, db.CreateListing(context.Background(), p))
	return p
}

func TestPragmasWithFile(t *testing.T) {
	db := newTestDB(t)

	var journalMode string
	if err := db.conn.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("Failed to query journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("Expected journal_mode to be 'wal' for file database, got: %s", journalMode)
	}

	var busyTimeout int
	if err := db.conn.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout); err != nil {
		t.Fatalf("Failed to query busy_timeout: %v", err)
	}
	if busyTimeout != 5000 {
		t.Errorf("Expected busy_timeout to be 5000, got: %d", busyTimeout)
	}

	var foreignKeys int
	if err := db.conn.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys); err != nil {
		t.Fatalf("Failed to query foreign_keys: %v", err)
	}
	if foreignKeys != 1 {
		t.Errorf("Expected foreign_keys to be enabled, got: %d", foreignKeys)
	}

	var cacheSize int
	if err := db.conn.QueryRow("PRAGMA cache_size").Scan(&cacheSize); err != nil {
		t.Fatalf("Failed to query cache_size: %v", err)
	}
	if cacheSize != -64000 {
		t.Errorf("Expected cache_size to be -64000, got: %d", cacheSize)
	}
}

func TestSchemaIndexes(t *testing.T) {
	db := newTestDB(t)

	for _, name := range []string{
		"idx_food_posts_filter",
		"idx_food_posts_user_id",
		"idx_messages_thread",
		"idx_messages_unread",
	} {
		var n int
		err := db.conn.QueryRow(`
			SELECT COUNT(*) FROM sqlite_master
			WHERE type = 'index' AND name = ?
		`, name).Scan(&n)
		if err != nil {
			t.Fatalf("Failed to inspect schema: %v", err)
		}
		if n != 1 {
			t.Errorf("Expected index %s to exist", name)
		}
	}
}

func TestUsers(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	alice := createUser(t, db, "alice")
	assert.NotEmpty(t, alice.ID)
	assert.False(t, alice.CreatedAt.IsZero())

	t.Run("duplicate email", func(t *testing.T) {
		err := db.CreateUser(ctx, &models.User{Username: "other", Email: alice.Email, PasswordHash: "x"})
		var dup *store.DuplicateError
		require.ErrorAs(t, err, &dup)
		assert.Equal(t, "email", dup.Field)
	})

	t.Run("duplicate username", func(t *testing.T) {
		err := db.CreateUser(ctx, &models.User{Username: "alice", Email: "new@example.com", PasswordHash: "x"})
		var dup *store.DuplicateError
		require.ErrorAs(t, err, &dup)
		assert.Equal(t, "username", dup.Field)
	})

	t.Run("lookup", func(t *testing.T) {
		byEmail, err := db.UserByEmail(ctx, "alice@example.com")
		require.NoError(t, err)
		assert.Equal(t, alice.ID, byEmail.ID)

		_, err = db.UserByID(ctx, "missing")
		assert.True(t, errors.Is(err, store.ErrNotFound))

		exists, err := db.UserExists(ctx, alice.ID)
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("update", func(t *testing.T) {
		alice.Bio = "likes apples"
		require.NoError(t, db.UpdateUser(ctx, alice))

		got, err := db.UserByID(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, "likes apples", got.Bio)

		err = db.UpdateUser(ctx, &models.User{ID: "missing", Username: "m", Email: "m@example.com"})
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("summaries skip unknown ids", func(t *testing.T) {
		summaries, err := db.UserSummaries(ctx, []string{alice.ID, "missing"})
		require.NoError(t, err)
		require.Len(t, summaries, 1)
		assert.Equal(t, "alice", summaries[alice.ID].Username)
	})
}

func TestListings(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	owner := createUser(t, db, "owner")
	other := createUser(t, db, "other")

	apples := createListing(t, db, owner, func(p *models.FoodPost) {
		p.ImageURL = "/uploads/a.png"
		p.ImageMetadata = &models.ImageMetadata{PublicID: "a", Width: 800, Height: 600, Format: "png", Size: 1024}
		p.Coordinates = &models.Coordinates{Latitude: 35.7, Longitude: 51.4}
	})
	milk := createListing(t, db, owner, func(p *models.FoodPost) {
		p.Name = "Milk 100%"
		p.Category = models.CategoryDairy
		p.Location = "Uptown"
	})
	expired := createListing(t, db, other, func(p *models.FoodPost) {
		p.Name = "Old bread"
		p.Category = models.CategoryBakedGoods
		p.ExpiryDate = time.Now().Add(-time.Hour)
	})
	taken := createListing(t, db, other, func(p *models.FoodPost) {
		p.Name = "Carrots"
		p.Category = models.CategoryVegetables
		p.IsAvailable = false
	})

	t.Run("round trip", func(t *testing.T) {
		got, err := db.ListingByID(ctx, apples.ID)
		require.NoError(t, err)
		assert.Equal(t, owner.ID, got.UserID)
		require.NotNil(t, got.ImageMetadata)
		assert.Equal(t, 800, got.ImageMetadata.Width)
		require.NotNil(t, got.Coordinates)
		assert.InDelta(t, 51.4, got.Coordinates.Longitude, 1e-9)

		plain, err := db.ListingByID(ctx, milk.ID)
		require.NoError(t, err)
		assert.Nil(t, plain.ImageMetadata)
		assert.Nil(t, plain.Coordinates)
	})

	available := true
	nowTS := time.Now()

	tests := []struct {
		name    string
		query   store.ListingQuery
		wantIDs []string
	}{
		{
			name:    "all oldest first",
			query:   store.ListingQuery{},
			wantIDs: []string{apples.ID, milk.ID, expired.ID, taken.ID},
		},
		{
			name:    "visible to anonymous",
			query:   store.ListingQuery{Available: &available, ExpiresAfter: &nowTS, SortDesc: true},
			wantIDs: []string{milk.ID, apples.ID},
		},
		{
			name:    "by owner",
			query:   store.ListingQuery{OwnerID: other.ID},
			wantIDs: []string{expired.ID, taken.ID},
		},
		{
			name:    "category",
			query:   store.ListingQuery{Category: models.CategoryDairy},
			wantIDs: []string{milk.ID},
		},
		{
			name:    "location is case insensitive",
			query:   store.ListingQuery{Location: "uptown"},
			wantIDs: []string{milk.ID},
		},
		{
			name:    "search treats wildcards literally",
			query:   store.ListingQuery{Search: "100%"},
			wantIDs: []string{milk.ID},
		},
		{
			name:    "search matches description",
			query:   store.ListingQuery{Search: "BAG OF"},
			wantIDs: []string{apples.ID, milk.ID, expired.ID, taken.ID},
		},
		{
			name:    "sort by name",
			query:   store.ListingQuery{SortBy: store.SortName},
			wantIDs: []string{apples.ID, taken.ID, milk.ID, expired.ID},
		},
		{
			name:    "page",
			query:   store.ListingQuery{Limit: 2, Offset: 2},
			wantIDs: []string{expired.ID, taken.ID},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, total, err := db.FindListings(ctx, tt.query)
			require.NoError(t, err)

			ids := make([]string, len(got))
			for i, p := range got {
				ids[i] = p.ID
			}
			assert.Equal(t, tt.wantIDs, ids)
			if tt.query.Limit == 0 {
				assert.Equal(t, len(tt.wantIDs), total)
			} else {
				assert.Equal(t, 4, total)
			}
		})
	}

	t.Run("categories", func(t *testing.T) {
		categories, err := db.ListingCategories(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"Baked Goods", "Dairy", "Fruits", "Vegetables"}, categories)
	})

	t.Run("update and delete", func(t *testing.T) {
		milk.IsAvailable = false
		milk.ImageMetadata = nil
		require.NoError(t, db.UpdateListing(ctx, milk))

		got, err := db.ListingByID(ctx, milk.ID)
		require.NoError(t, err)
		assert.False(t, got.IsAvailable)

		require.NoError(t, db.DeleteListing(ctx, milk.ID))
		assert.ErrorIs(t, db.DeleteListing(ctx, milk.ID), store.ErrNotFound)

		exists, err := db.ListingExists(ctx, milk.ID)
		require.NoError(t, err)
		assert.False(t, exists)
	})
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return newTestDB(t) })
}

func TestMessages(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	a := createUser(t, db, "a")
	b := createUser(t, db, "b")
	listing := createListing(t, db, b, nil)

	send := func(from, to *models.User, body string) *models.Message {
		m := &models.Message{SenderID: from.ID, ReceiverID: to.ID, FoodPostID: listing.ID, Body: body}
		require.NoError(t, db.CreateMessage(ctx, m))
		return m
	}

	send(a, b, "one")
	send(a, b, "two")
	send(a, b, "three")
	last := send(b, a, "four")

	t.Run("conversations", func(t *testing.T) {
		for _, tt := range []struct {
			user   *models.User
			other  string
			unread int
		}{
			{user: a, other: b.ID, unread: 1},
			{user: b, other: a.ID, unread: 3},
		} {
			groups, err := db.Conversations(ctx, tt.user.ID)
			require.NoError(t, err)
			require.Len(t, groups, 1)
			assert.Equal(t, tt.other, groups[0].OtherUserID)
			assert.Equal(t, 4, groups[0].MessageCount)
			assert.Equal(t, tt.unread, groups[0].UnreadCount)
			assert.Equal(t, last.ID, groups[0].LastMessage.ID)
		}
	})

	t.Run("messages outlive the listing", func(t *testing.T) {
		require.NoError(t, db.DeleteListing(ctx, listing.ID))
		groups, err := db.Conversations(ctx, a.ID)
		require.NoError(t, err)
		require.Len(t, groups, 1)

		summaries, err := db.ListingSummaries(ctx, []string{listing.ID})
		require.NoError(t, err)
		assert.Empty(t, summaries)
	})
}

func TestStats(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	empty, err := db.Stats(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, store.Stats{}, empty)

	a := createUser(t, db, "a")
	b := createUser(t, db, "b")
	listing := createListing(t, db, a, nil)
	createListing(t, db, a, func(p *models.FoodPost) { p.IsAvailable = false })

	for _, m := range []*models.Message{
		{SenderID: b.ID, ReceiverID: a.ID, FoodPostID: listing.ID, Body: "first"},
		{SenderID: a.ID, ReceiverID: b.ID, FoodPostID: listing.ID, Body: "second"},
	} {
		require.NoError(t, db.CreateMessage(ctx, m))
	}
	_, err = db.MarkRead(ctx, listing.ID, b.ID, a.ID)
	require.NoError(t, err)

	st, err := db.Stats(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 2, st.Users)
	assert.EqualValues(t, 2, st.Listings)
	assert.EqualValues(t, 1, st.AvailableListings)
	assert.EqualValues(t, 2, st.Messages)
	assert.EqualValues(t, 1, st.UnreadMessages)
	assert.EqualValues(t, 2, st.MessagesSince)
	assert.WithinDuration(t, time.Now(), st.LatestMessageAt, time.Minute)

	later, err := db.Stats(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, later.MessagesSince)
}
