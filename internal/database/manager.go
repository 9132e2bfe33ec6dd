package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	dbconfig "skillhub/pkg/database"
	"skillhub/pkg/interfaces"
	"skillhub/pkg/types"
)

// Manager owns the SQLite connection. Reads go straight to the pool;
// writes are serialized through a single goroutine because SQLite allows
// one writer at a time.
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the database and starts the write loop.
func NewManager(config *dbconfig.Config) (*Manager, error) {
	db, err := sql.Open("sqlite3", config.DatabasePath+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := applySQLiteOptimizations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}

	manager := &Manager{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}

	manager.wg.Add(1)
	go manager.writeLoop()

	return manager, nil
}

// writeLoop processes all write operations in a single goroutine.
// A failed write is retried exactly once after 5 seconds.
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			err := op.operation(m.db)
			if err != nil {
				log.Printf("Database write failed, retrying in 5 seconds: %v", err)
				time.Sleep(5 * time.Second)
				err = op.operation(m.db)
				if err != nil {
					log.Printf("Database write failed after retry: %v", err)
				}
			}
			op.result <- err

		case <-m.shutdown:
			log.Println("Database write loop shutting down")
			return
		}
	}
}

// executeWrite queues a write operation and waits for completion.
func (m *Manager) executeWrite(operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("database manager is closed")
	}
	m.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
		return <-result
	case <-time.After(30 * time.Second):
		return fmt.Errorf("write operation timeout")
	case <-m.shutdown:
		return fmt.Errorf("database manager is shutting down")
	}
}

// StoreMessage persists a direct message.
func (m *Manager) StoreMessage(ctx context.Context, message *types.Message) error {
	return m.executeWrite(func(db *sql.DB) error {
		query := `
			INSERT INTO messages (id, sender_id, recipient_id, content, type, reply_to, read, read_at, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		_, err := db.ExecContext(ctx, query,
			message.ID,
			message.SenderID,
			message.RecipientID,
			message.Content,
			message.Type,
			message.ReplyTo,
			message.Read,
			message.ReadAt,
			message.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
		return nil
	})
}

// MarkConversationRead flips the read flag on every unread message from
// otherUserID to readerID. Returns the number of rows flipped; zero means
// there was nothing to mark.
func (m *Manager) MarkConversationRead(ctx context.Context, readerID, otherUserID string, readAt time.Time) (int64, error) {
	var flipped int64
	err := m.executeWrite(func(db *sql.DB) error {
		query := `
			UPDATE messages
			SET read = 1, read_at = ?
			WHERE recipient_id = ? AND sender_id = ? AND read = 0
		`
		result, err := db.ExecContext(ctx, query, readAt, readerID, otherUserID)
		if err != nil {
			return fmt.Errorf("failed to mark conversation read: %w", err)
		}
		flipped, err = result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to count marked rows: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return flipped, nil
}

// GetConversation returns both directions of a conversation in
// chronological order.
func (m *Manager) GetConversation(ctx context.Context, userA, userB string) ([]*types.Message, error) {
	query := `
		SELECT id, sender_id, recipient_id, content, type, reply_to, read, read_at, created_at
		FROM messages
		WHERE (sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)
		ORDER BY created_at ASC, id ASC
	`

	rows, err := m.db.QueryContext(ctx, query, userA, userB, userB, userA)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversation: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var messages []*types.Message
	for rows.Next() {
		var message types.Message
		var replyTo sql.NullString
		var readAt sql.NullTime

		err := rows.Scan(
			&message.ID,
			&message.SenderID,
			&message.RecipientID,
			&message.Content,
			&message.Type,
			&replyTo,
			&message.Read,
			&readAt,
			&message.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}

		if replyTo.Valid {
			message.ReplyTo = &replyTo.String
		}
		if readAt.Valid {
			message.ReadAt = &readAt.Time
		}

		messages = append(messages, &message)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}

	return messages, nil
}

// StoreNotification persists a notification record.
func (m *Manager) StoreNotification(ctx context.Context, n *types.Notification) error {
	return m.executeWrite(func(db *sql.DB) error {
		dataJSON, err := json.Marshal(n.Data)
		if err != nil {
			return fmt.Errorf("failed to marshal notification data: %w", err)
		}
		channelsJSON, err := json.Marshal(n.Channels)
		if err != nil {
			return fmt.Errorf("failed to marshal notification channels: %w", err)
		}

		query := `
			INSERT INTO notifications (id, recipient_id, sender_id, type, title, message, data, channels, priority, action_required, read, read_at, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		_, err = db.ExecContext(ctx, query,
			n.ID,
			n.RecipientID,
			n.SenderID,
			n.Type,
			n.Title,
			n.Message,
			string(dataJSON),
			string(channelsJSON),
			n.Priority,
			n.ActionRequired,
			n.Read,
			n.ReadAt,
			n.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert notification: %w", err)
		}
		return nil
	})
}

// MarkNotificationRead stamps the record read. The record stays in the
// table; acknowledgment never deletes. The recipient scope means another
// user's id looks identical to an unknown one.
func (m *Manager) MarkNotificationRead(ctx context.Context, recipientID, id string, readAt time.Time) error {
	return m.executeWrite(func(db *sql.DB) error {
		query := `UPDATE notifications SET read = 1, read_at = ? WHERE id = ? AND recipient_id = ?`
		result, err := db.ExecContext(ctx, query, readAt, id, recipientID)
		if err != nil {
			return fmt.Errorf("failed to mark notification read: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to count marked rows: %w", err)
		}
		if affected == 0 {
			return interfaces.ErrNotificationNotFound
		}
		return nil
	})
}

// ListNotifications returns a recipient's notifications, newest first.
func (m *Manager) ListNotifications(ctx context.Context, recipientID string) ([]*types.Notification, error) {
	query := `
		SELECT id, recipient_id, sender_id, type, title, message, data, channels, priority, action_required, read, read_at, created_at
		FROM notifications
		WHERE recipient_id = ?
		ORDER BY created_at DESC, id DESC
	`

	rows, err := m.db.QueryContext(ctx, query, recipientID)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var notifications []*types.Notification
	for rows.Next() {
		var n types.Notification
		var senderID sql.NullString
		var readAt sql.NullTime
		var dataJSON, channelsJSON string

		err := rows.Scan(
			&n.ID,
			&n.RecipientID,
			&senderID,
			&n.Type,
			&n.Title,
			&n.Message,
			&dataJSON,
			&channelsJSON,
			&n.Priority,
			&n.ActionRequired,
			&n.Read,
			&readAt,
			&n.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification row: %w", err)
		}

		if senderID.Valid {
			n.SenderID = &senderID.String
		}
		if readAt.Valid {
			n.ReadAt = &readAt.Time
		}
		if err := json.Unmarshal([]byte(dataJSON), &n.Data); err != nil {
			return nil, fmt.Errorf("failed to unmarshal notification data: %w", err)
		}
		if err := json.Unmarshal([]byte(channelsJSON), &n.Channels); err != nil {
			return nil, fmt.Errorf("failed to unmarshal notification channels: %w", err)
		}

		notifications = append(notifications, &n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notification rows: %w", err)
	}

	return notifications, nil
}

// LookupUser returns the user or ErrUserNotFound.
func (m *Manager) LookupUser(ctx context.Context, id string) (*types.User, error) {
	query := `SELECT id, name, email, active FROM users WHERE id = ?`

	var user types.User
	err := m.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.Active,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	return &user, nil
}

// UpsertUser writes a directory row. The platform owns these rows in
// production; the hub uses this for fixtures and tests.
func (m *Manager) UpsertUser(ctx context.Context, user *types.User) error {
	return m.executeWrite(func(db *sql.DB) error {
		query := `
			INSERT INTO users (id, name, email, active)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET name = excluded.name, email = excluded.email, active = excluded.active
		`
		_, err := db.ExecContext(ctx, query, user.ID, user.Name, user.Email, user.Active)
		if err != nil {
			return fmt.Errorf("failed to upsert user: %w", err)
		}
		return nil
	})
}

// GetSession returns the session or ErrSessionNotFound.
func (m *Manager) GetSession(ctx context.Context, id string) (*types.Session, error) {
	query := `SELECT id, mentor_id, student_id, scheduled_at, status FROM sessions WHERE id = ?`

	var session types.Session
	err := m.db.QueryRowContext(ctx, query, id).Scan(
		&session.ID,
		&session.MentorID,
		&session.StudentID,
		&session.ScheduledAt,
		&session.Status,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	return &session, nil
}

// IsSessionParticipant reports whether userID is one of the session's two
// participants.
func (m *Manager) IsSessionParticipant(ctx context.Context, sessionID, userID string) (bool, error) {
	session, err := m.GetSession(ctx, sessionID)
	if err != nil {
		return false, err
	}
	return session.IsParticipant(userID), nil
}

// CreateSession writes a session row. Like UpsertUser, this exists for
// fixtures; scheduling CRUD happens outside the hub.
func (m *Manager) CreateSession(ctx context.Context, session *types.Session) error {
	return m.executeWrite(func(db *sql.DB) error {
		query := `
			INSERT INTO sessions (id, mentor_id, student_id, scheduled_at, status)
			VALUES (?, ?, ?, ?, ?)
		`
		_, err := db.ExecContext(ctx, query,
			session.ID,
			session.MentorID,
			session.StudentID,
			session.ScheduledAt,
			session.Status,
		)
		if err != nil {
			return fmt.Errorf("failed to insert session: %w", err)
		}
		return nil
	})
}

// HealthCheck validates database connectivity.
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	rows, err := m.db.QueryContext(ctx, "SELECT COUNT(*) FROM messages LIMIT 1")
	if err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	_ = rows.Close()

	return nil
}

// GetDB returns the underlying database connection for migrations.
func (m *Manager) GetDB() *sql.DB {
	return m.db
}

// Close shuts down the database manager.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	return nil
}

func applySQLiteOptimizations(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -64000",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute pragma %s: %w", pragma, err)
		}
	}

	return nil
}
