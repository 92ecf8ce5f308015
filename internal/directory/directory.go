// Package directory resolves inbound phone numbers to registered customers.
package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xaenox/wa-assistant-bridge/internal/models"
	"github.com/xaenox/wa-assistant-bridge/internal/phone"
	"github.com/xaenox/wa-assistant-bridge/internal/storage"
)

// ErrNotFound means no candidate key matched a customer. It is an expected
// outcome, not a fault.
var ErrNotFound = errors.New("directory: customer not found")

const (
	minPhoneDigits = 10
	maxPhoneDigits = 15
)

type Directory struct {
	store       storage.CustomerStorage
	countryCode string
	logger      *zap.Logger
	now         func() time.Time
}

func New(store storage.CustomerStorage, countryCode string, logger *zap.Logger) *Directory {
	return &Directory{
		store:       store,
		countryCode: countryCode,
		logger:      logger.Named("directory"),
		now:         time.Now,
	}
}

// FindByPhone tries every candidate key of the normalized number in order and
// returns the first match.
func (d *Directory) FindByPhone(ctx context.Context, rawPhone string) (*models.Customer, error) {
	for _, key := range phone.CandidatesFor(phone.Normalize(rawPhone), d.countryCode) {
		c, err := d.store.GetCustomerByPhone(ctx, key)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("lookup customer by phone %s: %w", key, err)
		}
		return c, nil
	}
	return nil, ErrNotFound
}

// IsAuthorized reports whether a customer may use the assistant. Phone, email
// and the active flag are all required.
func (d *Directory) IsAuthorized(c *models.Customer) bool {
	return IsAuthorized(c)
}

func IsAuthorized(c *models.Customer) bool {
	if c == nil || !c.Active {
		return false
	}
	digits := phone.Normalize(c.Phone)
	if len(digits) < minPhoneDigits || len(digits) > maxPhoneDigits {
		return false
	}
	return strings.Contains(strings.TrimSpace(c.Email), "@")
}

// TouchLastSeen records the customer's last interaction. Failures are logged only.
func (d *Directory) TouchLastSeen(ctx context.Context, customerID string) {
	if err := d.store.TouchCustomerLastSeen(ctx, customerID, d.now()); err != nil {
		d.logger.Warn("Failed to update customer last seen",
			zap.Error(err),
			zap.String("customer_id", customerID))
	}
}
