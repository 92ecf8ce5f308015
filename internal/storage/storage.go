package storage

import (
	"context"
	"errors"
	"time"

	"github.com/xaenox/wa-assistant-bridge/internal/models"
)

// ErrNotFound is returned when a keyed record does not exist.
var ErrNotFound = errors.New("storage: not found")

type Storage interface {
	CustomerStorage
	ThreadStorage
	InteractionStorage
	Close() error
}

type CustomerStorage interface {
	// GetCustomerByPhone matches phoneKey against the digits of the stored phone.
	GetCustomerByPhone(ctx context.Context, phoneKey string) (*models.Customer, error)
	TouchCustomerLastSeen(ctx context.Context, customerID string, at time.Time) error
}

type ThreadStorage interface {
	// GetThread returns ErrNotFound when the customer has no thread yet.
	GetThread(ctx context.Context, customerID string) (*models.ConversationThread, error)
	// SaveThread replaces the stored thread id, keeping the reset counter.
	SaveThread(ctx context.Context, customerID, threadID string) error
	// ResetThread replaces the stored thread id and increments the reset counter.
	ResetThread(ctx context.Context, customerID, threadID string) error
	UpdateThreadLastUsed(ctx context.Context, customerID string) error
}

type InteractionStorage interface {
	SaveInteraction(ctx context.Context, entry *models.InteractionLog) error
}
