// Package roster manages the recipient roster: CRUD over a load/save
// store, birthday date-matching, and CSV import/export.
//
// The dispatch engine never touches this package's state; it only
// consumes the resolved []Recipient a caller hands it.
package roster

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"smscast/internal/message"
)

var ErrNotFound = errors.New("roster: recipient not found")

const birthdayLayout = "2006-01-02"

// Recipient is one roster entry. Phone is kept normalized (digits only).
type Recipient struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Birthday string `json:"birthday"` // YYYY-MM-DD
}

// Validate checks the entry shape shared by CRUD and CSV import.
func (r Recipient) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("roster: name is required")
	}
	if !message.ValidPhone(r.Phone) {
		return fmt.Errorf("roster: %q: phone must normalize to 10-11 digits", r.Name)
	}
	if _, err := time.Parse(birthdayLayout, r.Birthday); err != nil {
		return fmt.Errorf("roster: %q: birthday must be YYYY-MM-DD: %w", r.Name, err)
	}
	return nil
}

// monthDay returns "MM-DD" of the birthday, or "" when unparseable.
func (r Recipient) monthDay() string {
	t, err := time.Parse(birthdayLayout, r.Birthday)
	if err != nil {
		return ""
	}
	return t.Format("01-02")
}

// Upcoming pairs a recipient with the days remaining until their next
// birthday (0 = today).
type Upcoming struct {
	Recipient
	DaysUntil int
}

// Store persists the full roster as one unit.
type Store interface {
	Load(ctx context.Context) ([]Recipient, error)
	Save(ctx context.Context, recipients []Recipient) error
}
