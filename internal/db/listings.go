package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/4xmen/wasteless/internal/models"
	"github.com/4xmen/wasteless/internal/store"
)

const listingColumns = `id, user_id, name, description, category, item_condition, expiry_date, location, quantity,
	image_url, image_public_id, image_width, image_height, image_format, image_size,
	is_available, latitude, longitude, created_at, updated_at`

var listingSortColumns = map[string]string{
	store.SortCreatedAt:  "created_at",
	store.SortUpdatedAt:  "updated_at",
	store.SortExpiryDate: "expiry_date",
	store.SortName:       "name",
	store.SortCategory:   "category",
	store.SortLocation:   "location",
}

func scanListing(s scanner) (*models.FoodPost, error) {
	p := &models.FoodPost{}
	var (
		publicID, format sql.NullString
		width, height    sql.NullInt64
		size             sql.NullInt64
		lat, lng         sql.NullFloat64
	)
	err := s.Scan(&p.ID, &p.UserID, &p.Name, &p.Description, &p.Category, &p.Condition, &p.ExpiryDate,
		&p.Location, &p.Quantity, &p.ImageURL, &publicID, &width, &height, &format, &size,
		&p.IsAvailable, &lat, &lng, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if publicID.Valid {
		p.ImageMetadata = &models.ImageMetadata{
			PublicID: publicID.String,
			Width:    int(width.Int64),
			Height:   int(height.Int64),
			Format:   format.String,
			Size:     size.Int64,
		}
	}
	if lat.Valid && lng.Valid {
		p.Coordinates = &models.Coordinates{Latitude: lat.Float64, Longitude: lng.Float64}
	}
	return p, nil
}

// listingArgs flattens the optional parts of a listing into nullable columns,
// in listingColumns order starting at image_url.
func listingArgs(p *models.FoodPost) []any {
	var publicID, format, width, height, size any
	if m := p.ImageMetadata; m != nil {
		publicID, format, width, height, size = m.PublicID, m.Format, m.Width, m.Height, m.Size
	}
	var lat, lng any
	if c := p.Coordinates; c != nil {
		lat, lng = c.Latitude, c.Longitude
	}
	return []any{p.ImageURL, publicID, width, height, format, size, p.IsAvailable, lat, lng}
}

func (db *DB) CreateListing(ctx context.Context, p *models.FoodPost) error {
	if p.ID == "" {
		p.ID = newID()
	}
	ts := now()
	p.CreatedAt, p.UpdatedAt = ts, ts
	p.ExpiryDate = p.ExpiryDate.UTC()

	args := []any{p.ID, p.UserID, p.Name, p.Description, p.Category, p.Condition, p.ExpiryDate, p.Location, p.Quantity}
	args = append(args, listingArgs(p)...)
	args = append(args, p.CreatedAt, p.UpdatedAt)

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO food_posts (`+listingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, args...)
	if err != nil {
		return translateError(err)
	}
	return nil
}

func (db *DB) UpdateListing(ctx context.Context, p *models.FoodPost) error {
	p.UpdatedAt = now()
	p.ExpiryDate = p.ExpiryDate.UTC()

	args := []any{p.Name, p.Description, p.Category, p.Condition, p.ExpiryDate, p.Location, p.Quantity}
	args = append(args, listingArgs(p)...)
	args = append(args, p.UpdatedAt, p.ID)

	result, err := db.conn.ExecContext(ctx, `
		UPDATE food_posts
		SET name = ?, description = ?, category = ?, item_condition = ?, expiry_date = ?, location = ?, quantity = ?,
			image_url = ?, image_public_id = ?, image_width = ?, image_height = ?, image_format = ?, image_size = ?,
			is_available = ?, latitude = ?, longitude = ?, updated_at = ?
		WHERE id = ?
	`, args...)
	if err != nil {
		return translateError(err)
	}
	return requireAffected(result)
}

func (db *DB) DeleteListing(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx, "DELETE FROM food_posts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete listing: %w", err)
	}
	return requireAffected(result)
}

func (db *DB) ListingByID(ctx context.Context, id string) (*models.FoodPost, error) {
	row := db.conn.QueryRowContext(ctx, "SELECT "+listingColumns+" FROM food_posts WHERE id = ?", id)
	p, err := scanListing(row)
	if err != nil {
		return nil, translateError(err)
	}
	return p, nil
}

func (db *DB) ListingExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := db.conn.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM food_posts WHERE id = ?)", id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to query listing: %w", err)
	}
	return exists, nil
}

// escapeLike makes s match literally inside a LIKE pattern using '\' as the
// escape character.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

func listingFilter(q store.ListingQuery) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if q.OwnerID != "" {
		clauses = append(clauses, "user_id = ?")
		args = append(args, q.OwnerID)
	}
	if q.Category != "" {
		clauses = append(clauses, "category = ?")
		args = append(args, q.Category)
	}
	if q.Location != "" {
		clauses = append(clauses, `casefold(location) LIKE casefold(?) ESCAPE '\'`)
		args = append(args, escapeLike(q.Location))
	}
	if q.Search != "" {
		clauses = append(clauses, `(casefold(name) LIKE casefold(?) ESCAPE '\' OR casefold(description) LIKE casefold(?) ESCAPE '\')`)
		pattern := escapeLike(q.Search)
		args = append(args, pattern, pattern)
	}
	if q.Available != nil {
		clauses = append(clauses, "is_available = ?")
		args = append(args, *q.Available)
	}
	if q.ExpiresAfter != nil {
		clauses = append(clauses, "expiry_date >= ?")
		args = append(args, q.ExpiresAfter.UTC())
	}
	if q.ExpiresBefore != nil {
		clauses = append(clauses, "expiry_date <= ?")
		args = append(args, q.ExpiresBefore.UTC())
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (db *DB) FindListings(ctx context.Context, q store.ListingQuery) ([]*models.FoodPost, int, error) {
	where, args := listingFilter(q)

	var total int
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM food_posts"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count listings: %w", err)
	}

	column, ok := listingSortColumns[q.SortBy]
	if !ok {
		column = "created_at"
	}
	dir := "ASC"
	if q.SortDesc {
		dir = "DESC"
	}

	query := "SELECT " + listingColumns + " FROM food_posts" + where +
		fmt.Sprintf(" ORDER BY %s %s, rowid %s", column, dir, dir)
	if q.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, q.Limit, q.Offset)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch listings: %w", err)
	}
	defer rows.Close()

	listings := []*models.FoodPost{}
	for rows.Next() {
		p, err := scanListing(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan listing: %w", err)
		}
		listings = append(listings, p)
	}
	return listings, total, rows.Err()
}

func (db *DB) ListingCategories(ctx context.Context) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, "SELECT DISTINCT category FROM food_posts ORDER BY category")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch categories: %w", err)
	}
	defer rows.Close()

	categories := []string{}
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (db *DB) ListingSummaries(ctx context.Context, ids []string) (map[string]models.ListingSummary, error) {
	summaries := make(map[string]models.ListingSummary, len(ids))
	if len(ids) == 0 {
		return summaries, nil
	}

	rows, err := db.conn.QueryContext(ctx,
		"SELECT id, name, image_url FROM food_posts WHERE id IN ("+placeholders(len(ids))+")",
		stringArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch listings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s models.ListingSummary
		if err := rows.Scan(&s.ID, &s.Name, &s.ImageURL); err != nil {
			return nil, err
		}
		summaries[s.ID] = s
	}
	return summaries, rows.Err()
}
