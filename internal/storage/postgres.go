package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/xaenox/wa-assistant-bridge/internal/models"
)

//go:embed migrations.sql
var migrations embed.FS

// foreignKeyViolation is the Postgres SQLSTATE for a missing referenced row.
const foreignKeyViolation = "23503"

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresStorage(ctx context.Context, config DatabaseConfig, logger *zap.Logger) (*PostgresStorage, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// Test the connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	storage := &PostgresStorage{db: db, logger: logger.Named("postgres")}

	if err := storage.initializeSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}

	storage.logger.Info("Database ready", zap.String("host", config.Host), zap.String("db", config.DBName))
	return storage, nil
}

func (s *PostgresStorage) initializeSchema(ctx context.Context) error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}

	return nil
}

func (s *PostgresStorage) GetCustomerByPhone(ctx context.Context, phoneKey string) (*models.Customer, error) {
	// Stored phones may be formatted; compare on their digits only.
	query := `
		SELECT id, phone, email, name, active, profession, last_seen_at
		FROM customers
		WHERE regexp_replace(phone, '\D', '', 'g') = $1
		LIMIT 1`

	c := &models.Customer{}
	var lastSeen sql.NullTime
	err := s.db.QueryRowContext(ctx, query, phoneKey).Scan(
		&c.ID,
		&c.Phone,
		&c.Email,
		&c.Name,
		&c.Active,
		&c.Profession,
		&lastSeen,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying customer: %w", err)
	}
	if lastSeen.Valid {
		c.LastSeenAt = &lastSeen.Time
	}

	return c, nil
}

func (s *PostgresStorage) TouchCustomerLastSeen(ctx context.Context, customerID string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `UPDATE customers SET last_seen_at = $1 WHERE id = $2`, at, customerID)
	if err != nil {
		return fmt.Errorf("error updating customer last seen: %w", err)
	}
	return expectRow(result)
}

func (s *PostgresStorage) GetThread(ctx context.Context, customerID string) (*models.ConversationThread, error) {
	query := `
		SELECT customer_id, thread_id, created_at, last_used_at, message_count, reset_count
		FROM conversation_threads
		WHERE customer_id = $1`

	t := &models.ConversationThread{}
	err := s.db.QueryRowContext(ctx, query, customerID).Scan(
		&t.CustomerID,
		&t.ThreadID,
		&t.CreatedAt,
		&t.LastUsedAt,
		&t.MessageCount,
		&t.ResetCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying thread: %w", err)
	}

	return t, nil
}

// SaveThread is a single upsert so concurrent writers simply overwrite each other.
func (s *PostgresStorage) SaveThread(ctx context.Context, customerID, threadID string) error {
	query := `
		INSERT INTO conversation_threads (customer_id, thread_id, created_at, last_used_at, message_count, reset_count)
		VALUES ($1, $2, NOW(), NOW(), 0, 0)
		ON CONFLICT (customer_id) DO UPDATE
		SET thread_id = EXCLUDED.thread_id,
		    created_at = EXCLUDED.created_at,
		    last_used_at = EXCLUDED.last_used_at,
		    message_count = 0`

	if _, err := s.db.ExecContext(ctx, query, customerID, threadID); err != nil {
		return wrapWriteErr("error saving thread", err)
	}
	return nil
}

func (s *PostgresStorage) ResetThread(ctx context.Context, customerID, threadID string) error {
	query := `
		INSERT INTO conversation_threads (customer_id, thread_id, created_at, last_used_at, message_count, reset_count)
		VALUES ($1, $2, NOW(), NOW(), 0, 1)
		ON CONFLICT (customer_id) DO UPDATE
		SET thread_id = EXCLUDED.thread_id,
		    created_at = EXCLUDED.created_at,
		    last_used_at = EXCLUDED.last_used_at,
		    message_count = 0,
		    reset_count = conversation_threads.reset_count + 1`

	if _, err := s.db.ExecContext(ctx, query, customerID, threadID); err != nil {
		return wrapWriteErr("error resetting thread", err)
	}
	return nil
}

func (s *PostgresStorage) UpdateThreadLastUsed(ctx context.Context, customerID string) error {
	query := `
		UPDATE conversation_threads
		SET last_used_at = NOW(), message_count = message_count + 1
		WHERE customer_id = $1`

	result, err := s.db.ExecContext(ctx, query, customerID)
	if err != nil {
		return fmt.Errorf("error updating thread last used: %w", err)
	}
	return expectRow(result)
}

func (s *PostgresStorage) SaveInteraction(ctx context.Context, entry *models.InteractionLog) error {
	response, err := json.Marshal(entry.Response)
	if err != nil {
		return fmt.Errorf("error encoding interaction response: %w", err)
	}

	query := `
		INSERT INTO interaction_logs (
			id, customer_id, phone, message_id, instance_id, input_text, output_text,
			thread_id, run_outcome, fallback, delivered, delivery_error, provider_message_id,
			response, received_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err = s.db.ExecContext(ctx, query,
		entry.ID,
		entry.CustomerID,
		entry.Phone,
		entry.MessageID,
		entry.InstanceID,
		entry.InputText,
		entry.OutputText,
		entry.ThreadID,
		entry.RunOutcome,
		entry.Fallback,
		entry.Delivered,
		entry.DeliveryError,
		entry.ProviderMessageID,
		response,
		entry.ReceivedAt,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("error saving interaction: %w", err)
	}
	return nil
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}

func expectRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// wrapWriteErr maps a write against an unknown customer to ErrNotFound.
func wrapWriteErr(msg string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == foreignKeyViolation {
		return fmt.Errorf("%s: %w", msg, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
