package db

import (
	"context"
	"fmt"

	"github.com/4xmen/wasteless/internal/models"
)

const userColumns = "id, username, email, password_hash, location, bio, profile_picture, created_at, updated_at"

func scanUser(s scanner) (*models.User, error) {
	u := &models.User{}
	err := s.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Location, &u.Bio, &u.ProfilePicture, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (db *DB) CreateUser(ctx context.Context, u *models.User) error {
	if u.ID == "" {
		u.ID = newID()
	}
	ts := now()
	u.CreatedAt, u.UpdatedAt = ts, ts

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, u.ID, u.Username, u.Email, u.PasswordHash, u.Location, u.Bio, u.ProfilePicture, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return translateError(err)
	}
	return nil
}

func (db *DB) UpdateUser(ctx context.Context, u *models.User) error {
	u.UpdatedAt = now()

	result, err := db.conn.ExecContext(ctx, `
		UPDATE users
		SET username = ?, email = ?, password_hash = ?, location = ?, bio = ?, profile_picture = ?, updated_at = ?
		WHERE id = ?
	`, u.Username, u.Email, u.PasswordHash, u.Location, u.Bio, u.ProfilePicture, u.UpdatedAt, u.ID)
	if err != nil {
		return translateError(err)
	}
	return requireAffected(result)
}

func (db *DB) UserByID(ctx context.Context, id string) (*models.User, error) {
	row := db.conn.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
	u, err := scanUser(row)
	if err != nil {
		return nil, translateError(err)
	}
	return u, nil
}

func (db *DB) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	row := db.conn.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE email = ?", email)
	u, err := scanUser(row)
	if err != nil {
		return nil, translateError(err)
	}
	return u, nil
}

func (db *DB) UserExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := db.conn.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM users WHERE id = ?)", id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to query user: %w", err)
	}
	return exists, nil
}

func (db *DB) ListUsers(ctx context.Context) ([]*models.User, error) {
	rows, err := db.conn.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch users: %w", err)
	}
	defer rows.Close()

	users := []*models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (db *DB) UserSummaries(ctx context.Context, ids []string) (map[string]models.UserSummary, error) {
	summaries := make(map[string]models.UserSummary, len(ids))
	if len(ids) == 0 {
		return summaries, nil
	}

	rows, err := db.conn.QueryContext(ctx,
		"SELECT id, username, profile_picture, location, bio FROM users WHERE id IN ("+placeholders(len(ids))+")",
		stringArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s models.UserSummary
		if err := rows.Scan(&s.ID, &s.Username, &s.ProfilePicture, &s.Location, &s.Bio); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		summaries[s.ID] = s
	}
	return summaries, rows.Err()
}
