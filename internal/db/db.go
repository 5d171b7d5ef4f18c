package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/4xmen/wasteless/internal/store"
)

// Connection settings applied to every pooled connection. WAL lets readers
// proceed while a writer holds the lock; busy_timeout makes writers wait
// instead of failing with SQLITE_BUSY.
const connParams = "_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_foreign_keys=on&_cache_size=-64000"

// driverName is go-sqlite3 with a casefold(text) function on every
// connection. LIKE only folds ASCII, so text filters compare casefolded
// values instead.
const driverName = "sqlite3_wasteless"

func init() {
	sql.Register(driverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(c *sqlite3.SQLiteConn) error {
			return c.RegisterFunc("casefold", strings.ToLower, true)
		},
	})
}

type DB struct {
	conn *sql.DB
}

var _ store.Store = (*DB)(nil)

func New(path string) (*DB, error) {
	dsn := path
	if strings.Contains(dsn, "?") {
		dsn += "&" + connParams
	} else {
		dsn += "?" + connParams
	}

	conn, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return db, nil
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT UNIQUE NOT NULL,
		email TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		location TEXT NOT NULL DEFAULT '',
		bio TEXT NOT NULL DEFAULT '',
		profile_picture TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS food_posts (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		description TEXT NOT NULL,
		category TEXT NOT NULL,
		item_condition TEXT NOT NULL,
		expiry_date TIMESTAMP NOT NULL,
		location TEXT NOT NULL,
		quantity TEXT NOT NULL,
		image_url TEXT NOT NULL DEFAULT '',
		image_public_id TEXT,
		image_width INTEGER,
		image_height INTEGER,
		image_format TEXT,
		image_size INTEGER,
		is_available INTEGER NOT NULL DEFAULT 1,
		latitude REAL,
		longitude REAL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		sender_id TEXT NOT NULL,
		receiver_id TEXT NOT NULL,
		food_post_id TEXT NOT NULL,
		message TEXT NOT NULL,
		message_type TEXT NOT NULL DEFAULT 'text',
		is_read INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		FOREIGN KEY (sender_id) REFERENCES users(id),
		FOREIGN KEY (receiver_id) REFERENCES users(id)
	);

	CREATE INDEX IF NOT EXISTS idx_food_posts_filter ON food_posts(category, location, expiry_date);
	CREATE INDEX IF NOT EXISTS idx_food_posts_user_id ON food_posts(user_id);
	CREATE INDEX IF NOT EXISTS idx_food_posts_available ON food_posts(is_available);
	CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages(sender_id, receiver_id, food_post_id);
	CREATE INDEX IF NOT EXISTS idx_messages_created_at ON messages(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_messages_unread ON messages(receiver_id, is_read);
	`

	_, err := db.conn.Exec(schema)
	return err
}

func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) GetConn() *sql.DB {
	return db.conn
}

// newID returns a time-ordered identifier, so id order follows creation order.
func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

func now() time.Time {
	return time.Now().UTC()
}

type scanner interface {
	Scan(dest ...any) error
}

// translateError maps driver errors onto the store contract.
func translateError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		// "UNIQUE constraint failed: users.email"
		msg := sqliteErr.Error()
		field := msg[strings.LastIndex(msg, ".")+1:]
		return &store.DuplicateError{Field: field}
	}

	return err
}

func placeholders(n int) string {
	if n == 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func stringArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func requireAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (db *DB) Stats(ctx context.Context, since time.Time) (store.Stats, error) {
	var st store.Stats
	counts := []struct {
		dest  *int64
		query string
		args  []any
	}{
		{&st.Users, "SELECT COUNT(*) FROM users", nil},
		{&st.Listings, "SELECT COUNT(*) FROM food_posts", nil},
		{&st.AvailableListings, "SELECT COUNT(*) FROM food_posts WHERE is_available = 1", nil},
		{&st.Messages, "SELECT COUNT(*) FROM messages", nil},
		{&st.UnreadMessages, "SELECT COUNT(*) FROM messages WHERE is_read = 0", nil},
		{&st.MessagesSince, "SELECT COUNT(*) FROM messages WHERE created_at >= ?", []any{since.UTC()}},
	}
	for _, c := range counts {
		if err := db.conn.QueryRowContext(ctx, c.query, c.args...).Scan(c.dest); err != nil {
			return st, fmt.Errorf("failed to read stats: %w", err)
		}
	}

	err := db.conn.QueryRowContext(ctx,
		"SELECT created_at FROM messages ORDER BY created_at DESC, rowid DESC LIMIT 1").Scan(&st.LatestMessageAt)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return st, fmt.Errorf("failed to read stats: %w", err)
	}
	return st, nil
}
