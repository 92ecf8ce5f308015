package directory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xaenox/wa-assistant-bridge/internal/models"
	"github.com/xaenox/wa-assistant-bridge/internal/storage"
)

type recordingStore struct {
	customers map[string]*models.Customer
	lookups   []string
	lookupErr error
	touchErr  error
	touched   []string
}

func (s *recordingStore) GetCustomerByPhone(_ context.Context, key string) (*models.Customer, error) {
	s.lookups = append(s.lookups, key)
	if s.lookupErr != nil {
		return nil, s.lookupErr
	}
	if c, ok := s.customers[key]; ok {
		return c, nil
	}
	return nil, storage.ErrNotFound
}

func (s *recordingStore) TouchCustomerLastSeen(_ context.Context, id string, _ time.Time) error {
	s.touched = append(s.touched, id)
	return s.touchErr
}

func TestFindByPhone_ExactKey(t *testing.T) {
	store := &recordingStore{customers: map[string]*models.Customer{
		"5561999990000": {ID: "c1"},
	}}
	d := New(store, "55", zap.NewNop())

	c, err := d.FindByPhone(context.Background(), "+55 (61) 99999-0000")
	require.NoError(t, err)
	assert.Equal(t, "c1", c.ID)
	assert.Equal(t, []string{"5561999990000"}, store.lookups)
}

func TestFindByPhone_StoredWithoutCountryCode(t *testing.T) {
	store := &recordingStore{customers: map[string]*models.Customer{
		"61999990000": {ID: "c1"},
	}}
	d := New(store, "55", zap.NewNop())

	c, err := d.FindByPhone(context.Background(), "5561999990000")
	require.NoError(t, err)
	assert.Equal(t, "c1", c.ID)
	assert.Equal(t, []string{"5561999990000", "61999990000"}, store.lookups)
}

func TestFindByPhone_StoredWithCountryCode(t *testing.T) {
	store := &recordingStore{customers: map[string]*models.Customer{
		"5561999990000": {ID: "c1"},
	}}
	d := New(store, "55", zap.NewNop())

	c, err := d.FindByPhone(context.Background(), "(61) 99999-0000")
	require.NoError(t, err)
	assert.Equal(t, "c1", c.ID)
}

func TestFindByPhone_NotFound(t *testing.T) {
	store := &recordingStore{}
	d := New(store, "55", zap.NewNop())

	_, err := d.FindByPhone(context.Background(), "5561999990000")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Len(t, store.lookups, 2)
}

func TestFindByPhone_EmptyInputNeverQueries(t *testing.T) {
	store := &recordingStore{}
	d := New(store, "55", zap.NewNop())

	_, err := d.FindByPhone(context.Background(), "no digits here")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, store.lookups)
}

func TestFindByPhone_StoreError(t *testing.T) {
	boom := errors.New("connection reset")
	store := &recordingStore{lookupErr: boom}
	d := New(store, "55", zap.NewNop())

	_, err := d.FindByPhone(context.Background(), "5561999990000")
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestIsAuthorized(t *testing.T) {
	valid := models.Customer{ID: "c1", Phone: "5561999990000", Email: "ana@example.com", Active: true}

	tests := []struct {
		name   string
		mutate func(c *models.Customer)
		want   bool
	}{
		{"valid", func(c *models.Customer) {}, true},
		{"inactive", func(c *models.Customer) { c.Active = false }, false},
		{"no phone", func(c *models.Customer) { c.Phone = "" }, false},
		{"short phone", func(c *models.Customer) { c.Phone = "99990000" }, false},
		{"long phone", func(c *models.Customer) { c.Phone = "5561999990000123" }, false},
		{"formatted phone", func(c *models.Customer) { c.Phone = "+55 (61) 99999-0000" }, true},
		{"no email", func(c *models.Customer) { c.Email = "" }, false},
		{"email without at", func(c *models.Customer) { c.Email = "ana.example.com" }, false},
	}

	d := New(&recordingStore{}, "55", zap.NewNop())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			assert.Equal(t, tt.want, d.IsAuthorized(&c))
		})
	}

	assert.False(t, IsAuthorized(nil))
}

func TestTouchLastSeen_SwallowsErrors(t *testing.T) {
	store := &recordingStore{touchErr: errors.New("db down")}
	d := New(store, "55", zap.NewNop())

	assert.NotPanics(t, func() { d.TouchLastSeen(context.Background(), "c1") })
	assert.Equal(t, []string{"c1"}, store.touched)
}
