// Package threads keeps one live assistant thread per customer.
//
// A stored thread id is never trusted blindly: the provider may expire threads
// on its own, so every lookup checks the id upstream and replaces it when it no
// longer resolves. Two concurrent first contacts may both create a thread; the
// last write wins and the other thread is simply abandoned.
package threads

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xaenox/wa-assistant-bridge/internal/metrics"
	"github.com/xaenox/wa-assistant-bridge/internal/storage"
)

// Provider is the assistant side of the thread lifecycle.
type Provider interface {
	CreateThread(ctx context.Context) (string, error)
	ThreadExists(ctx context.Context, threadID string) (bool, error)
}

type Store struct {
	storage  storage.ThreadStorage
	provider Provider
	logger   *zap.Logger
}

func NewStore(s storage.ThreadStorage, provider Provider, logger *zap.Logger) *Store {
	return &Store{
		storage:  s,
		provider: provider,
		logger:   logger.Named("threads"),
	}
}

// GetOrCreate returns the customer's live thread id, creating and persisting a
// new one when none is stored or the stored one is stale.
func (s *Store) GetOrCreate(ctx context.Context, customerID string) (string, error) {
	current, err := s.storage.GetThread(ctx, customerID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return s.replace(ctx, customerID, "created")
	case err != nil:
		return "", fmt.Errorf("load thread for %s: %w", customerID, err)
	}

	ok, err := s.provider.ThreadExists(ctx, current.ThreadID)
	if err != nil {
		s.logger.Warn("Thread validation failed, recreating",
			zap.Error(err),
			zap.String("customer_id", customerID),
			zap.String("thread_id", current.ThreadID))
	}
	if !ok {
		s.logger.Info("Stored thread is stale",
			zap.String("customer_id", customerID),
			zap.String("thread_id", current.ThreadID))
		return s.replace(ctx, customerID, "recreated")
	}

	metrics.ThreadLifecycle.WithLabelValues("reused").Inc()
	return current.ThreadID, nil
}

// Reset unconditionally replaces the customer's thread and bumps its reset counter.
func (s *Store) Reset(ctx context.Context, customerID string) (string, error) {
	threadID, err := s.provider.CreateThread(ctx)
	if err != nil {
		return "", fmt.Errorf("create thread: %w", err)
	}
	if err := s.storage.ResetThread(ctx, customerID, threadID); err != nil {
		return "", fmt.Errorf("persist reset thread for %s: %w", customerID, err)
	}

	metrics.ThreadLifecycle.WithLabelValues("reset").Inc()
	s.logger.Info("Thread reset",
		zap.String("customer_id", customerID),
		zap.String("thread_id", threadID))
	return threadID, nil
}

// MarkUsed bumps usage counters after a completed run. Best-effort.
func (s *Store) MarkUsed(ctx context.Context, customerID string) {
	if err := s.storage.UpdateThreadLastUsed(ctx, customerID); err != nil {
		s.logger.Warn("Failed to update thread usage",
			zap.Error(err),
			zap.String("customer_id", customerID))
	}
}

func (s *Store) replace(ctx context.Context, customerID, event string) (string, error) {
	threadID, err := s.provider.CreateThread(ctx)
	if err != nil {
		return "", fmt.Errorf("create thread: %w", err)
	}
	if err := s.storage.SaveThread(ctx, customerID, threadID); err != nil {
		return "", fmt.Errorf("persist thread for %s: %w", customerID, err)
	}

	metrics.ThreadLifecycle.WithLabelValues(event).Inc()
	s.logger.Info("Thread stored",
		zap.String("customer_id", customerID),
		zap.String("thread_id", threadID),
		zap.String("event", event))
	return threadID, nil
}
