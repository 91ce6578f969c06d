package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/chatwire/internal/domain"
	"github.com/ashureev/chatwire/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		full_name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		bio TEXT NOT NULL DEFAULT '',
		profile_pic TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		message_id TEXT PRIMARY KEY,
		sender_id TEXT NOT NULL,
		receiver_id TEXT NOT NULL,
		text TEXT NOT NULL DEFAULT '',
		image TEXT NOT NULL DEFAULT '',
		seen INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_pair ON messages(sender_id, receiver_id);
	CREATE INDEX IF NOT EXISTS idx_messages_unseen ON messages(receiver_id, seen) WHERE seen = 0;
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const userColumns = `user_id, full_name, email, password_hash, bio, profile_pic, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*domain.User, error) {
	var user domain.User
	var createdAt, updatedAt int64

	err := row.Scan(
		&user.ID, &user.FullName, &user.Email, &user.PasswordHash,
		&user.Bio, &user.ProfilePic, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)
	return &user, nil
}

// CreateUser inserts a new user record.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (user_id, full_name, email, password_hash, bio, profile_pic, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		user.ID, user.FullName, user.Email, user.PasswordHash,
		user.Bio, user.ProfilePic,
		user.CreatedAt.Unix(), user.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by their user ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE user_id = ?`
	return scanUser(s.db.QueryRowContext(ctx, query, userID))
}

// GetUserByEmail retrieves a user by email.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = ?`
	return scanUser(s.db.QueryRowContext(ctx, query, email))
}

// ListUsersExcept returns all users other than the given one.
func (s *SQLiteStore) ListUsersExcept(ctx context.Context, userID string) ([]*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE user_id != ? ORDER BY created_at, user_id`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer closeRows(rows, "users")

	var users []*domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

// UpdateProfile updates the mutable profile fields of a user.
func (s *SQLiteStore) UpdateProfile(ctx context.Context, userID, fullName, bio, profilePic string) (*domain.User, error) {
	query := `UPDATE users SET full_name = ?, bio = ?, updated_at = ?`
	args := []any{fullName, bio, time.Now().Unix()}
	if profilePic != "" {
		query += `, profile_pic = ?`
		args = append(args, profilePic)
	}
	query += ` WHERE user_id = ?`
	args = append(args, userID)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return nil, nil
	}
	return s.GetUser(ctx, userID)
}

// InsertMessage persists a new message.
func (s *SQLiteStore) InsertMessage(ctx context.Context, msg *domain.Message) error {
	query := `
	INSERT INTO messages (message_id, sender_id, receiver_id, text, image, seen, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		msg.ID, msg.SenderID, msg.ReceiverID,
		msg.Text, msg.Image, msg.Seen,
		msg.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// GetMessage retrieves a message by ID.
func (s *SQLiteStore) GetMessage(ctx context.Context, messageID string) (*domain.Message, error) {
	query := `
		SELECT message_id, sender_id, receiver_id, text, image, seen, created_at
		FROM messages WHERE message_id = ?`

	row := s.db.QueryRowContext(ctx, query, messageID)

	msg, err := scanMessage(row)
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func scanMessage(row interface{ Scan(...any) error }) (*domain.Message, error) {
	var msg domain.Message
	var seen int
	var createdAt int64

	err := row.Scan(
		&msg.ID, &msg.SenderID, &msg.ReceiverID,
		&msg.Text, &msg.Image, &seen, &createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan message row: %w", err)
	}

	msg.Seen = seen != 0
	msg.CreatedAt = time.Unix(createdAt, 0)
	return &msg, nil
}

// ConversationMessages returns all messages between two users, oldest first.
// rowid breaks ties between messages created in the same second.
func (s *SQLiteStore) ConversationMessages(ctx context.Context, userA, userB string) ([]*domain.Message, error) {
	query := `
		SELECT message_id, sender_id, receiver_id, text, image, seen, created_at
		FROM messages
		WHERE (sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)
		ORDER BY created_at, rowid`

	rows, err := s.db.QueryContext(ctx, query, userA, userB, userB, userA)
	if err != nil {
		return nil, fmt.Errorf("query conversation: %w", err)
	}
	defer closeRows(rows, "conversation")

	var messages []*domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversation: %w", err)
	}
	return messages, nil
}

// MarkMessageSeen flips the seen flag on a single message.
func (s *SQLiteStore) MarkMessageSeen(ctx context.Context, messageID string) (bool, error) {
	query := `UPDATE messages SET seen = 1 WHERE message_id = ?`
	result, err := s.db.ExecContext(ctx, query, messageID)
	if err != nil {
		return false, fmt.Errorf("mark message seen: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		// Either the ID is unknown or the flag was already set; the
		// UPDATE matches both, so distinguish with a lookup.
		msg, err := s.GetMessage(ctx, messageID)
		if err != nil {
			return false, err
		}
		return msg != nil, nil
	}
	return true, nil
}

// MarkConversationSeen flips the seen flag on every unseen message from
// senderID to receiverID. Retries on SQLite concurrency errors since the
// bulk update races with concurrent sends.
func (s *SQLiteStore) MarkConversationSeen(ctx context.Context, senderID, receiverID string) (int64, error) {
	maxRetries := 3
	baseDelay := 100 * time.Millisecond

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		n, err := s.markConversationSeenOnce(ctx, senderID, receiverID)
		if err == nil {
			return n, nil
		}
		lastErr = err

		if shared.IsSQLiteConflictError(err) && i < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<i)
			slog.Debug("MarkConversationSeen hit SQLITE_BUSY, retrying",
				"sender_id", senderID,
				"receiver_id", receiverID,
				"attempt", i+1,
				"delay", delay)
			time.Sleep(delay)
			continue
		}
		break
	}
	return 0, fmt.Errorf("mark conversation seen: %w", lastErr)
}

func (s *SQLiteStore) markConversationSeenOnce(ctx context.Context, senderID, receiverID string) (int64, error) {
	query := `UPDATE messages SET seen = 1 WHERE sender_id = ? AND receiver_id = ? AND seen = 0`
	result, err := s.db.ExecContext(ctx, query, senderID, receiverID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// CountUnseen returns per-sender unseen message counts for a receiver.
func (s *SQLiteStore) CountUnseen(ctx context.Context, receiverID string) (map[string]int, error) {
	query := `
		SELECT sender_id, COUNT(*) FROM messages
		WHERE receiver_id = ? AND seen = 0
		GROUP BY sender_id`

	rows, err := s.db.QueryContext(ctx, query, receiverID)
	if err != nil {
		return nil, fmt.Errorf("query unseen counts: %w", err)
	}
	defer closeRows(rows, "unseen counts")

	counts := make(map[string]int)
	for rows.Next() {
		var senderID string
		var n int
		if err := rows.Scan(&senderID, &n); err != nil {
			return nil, fmt.Errorf("scan unseen count row: %w", err)
		}
		counts[senderID] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unseen counts: %w", err)
	}
	return counts, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

func closeRows(rows *sql.Rows, what string) {
	if err := rows.Close(); err != nil {
		slog.Warn("failed to close rows", "query", what, "error", err)
	}
}
