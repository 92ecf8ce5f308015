package storage

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xaenox/wa-assistant-bridge/internal/models"
	"github.com/xaenox/wa-assistant-bridge/internal/phone"
)

type MemoryStorage struct {
	mu           sync.RWMutex
	customers    map[string]*models.Customer
	byPhone      map[string]string
	threads      map[string]*models.ConversationThread
	interactions []models.InteractionLog
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		customers: make(map[string]*models.Customer),
		byPhone:   make(map[string]string),
		threads:   make(map[string]*models.ConversationThread),
	}
}

type seedFile struct {
	Customers []models.Customer `yaml:"customers"`
}

// LoadSeed reads customers from a YAML file of the form
//
//	customers:
//	  - id: c1
//	    phone: "+55 61 99999-0000"
//	    email: ana@example.com
//	    active: true
func (s *MemoryStorage) LoadSeed(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("error reading seed file: %w", err)
	}

	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return 0, fmt.Errorf("error parsing seed file: %w", err)
	}

	for i := range seed.Customers {
		c := seed.Customers[i]
		if c.ID == "" {
			return i, fmt.Errorf("seed customer #%d has no id", i)
		}
		s.PutCustomer(&c)
	}
	return len(seed.Customers), nil
}

// PutCustomer inserts or replaces a customer, indexing it by its canonical phone.
func (s *MemoryStorage) PutCustomer(c *models.Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.customers[c.ID]; ok {
		delete(s.byPhone, phone.Normalize(old.Phone))
	}
	cp := *c
	cp.Phone = phone.Normalize(c.Phone)
	s.customers[c.ID] = &cp
	if cp.Phone != "" {
		s.byPhone[cp.Phone] = cp.ID
	}
}

func (s *MemoryStorage) GetCustomerByPhone(ctx context.Context, phoneKey string) (*models.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byPhone[phoneKey]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s.customers[id]
	return &cp, nil
}

func (s *MemoryStorage) TouchCustomerLastSeen(ctx context.Context, customerID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.customers[customerID]
	if !ok {
		return ErrNotFound
	}
	c.LastSeenAt = &at
	return nil
}

func (s *MemoryStorage) GetThread(ctx context.Context, customerID string) (*models.ConversationThread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if thread, exists := s.threads[customerID]; exists {
		cp := *thread
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStorage) SaveThread(ctx context.Context, customerID, threadID string) error {
	return s.replaceThread(customerID, threadID, false)
}

func (s *MemoryStorage) ResetThread(ctx context.Context, customerID, threadID string) error {
	return s.replaceThread(customerID, threadID, true)
}

// replaceThread mirrors the Postgres foreign key: threads belong to a known customer.
func (s *MemoryStorage) replaceThread(customerID, threadID string, reset bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.customers[customerID]; !ok {
		return ErrNotFound
	}

	now := time.Now()
	next := &models.ConversationThread{
		CustomerID: customerID,
		ThreadID:   threadID,
		CreatedAt:  now,
		LastUsedAt: now,
	}
	if prev, exists := s.threads[customerID]; exists {
		next.ResetCount = prev.ResetCount
	}
	if reset {
		next.ResetCount++
	}
	s.threads[customerID] = next
	return nil
}

func (s *MemoryStorage) UpdateThreadLastUsed(ctx context.Context, customerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	thread, exists := s.threads[customerID]
	if !exists {
		return ErrNotFound
	}
	thread.LastUsedAt = time.Now()
	thread.MessageCount++
	return nil
}

func (s *MemoryStorage) SaveInteraction(ctx context.Context, entry *models.InteractionLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.interactions = append(s.interactions, *entry)
	return nil
}

// Interactions returns a copy of every recorded interaction, oldest first.
func (s *MemoryStorage) Interactions() []models.InteractionLog {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.InteractionLog, len(s.interactions))
	copy(out, s.interactions)
	return out
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}
