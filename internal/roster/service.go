package roster

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"smscast/internal/message"
	"smscast/pkg/logx"
)

// Service keeps the roster in memory and writes through to the Store
// on every mutation.
type Service struct {
	log   logx.Logger
	store Store

	mu   sync.RWMutex
	recs []Recipient
}

func New(ctx context.Context, store Store, log logx.Logger) (*Service, error) {
	recs, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	return &Service{log: log, store: store, recs: recs}, nil
}

func (s *Service) List() []Recipient {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Recipient(nil), s.recs...)
}

func (s *Service) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.recs)
}

func (s *Service) Get(id string) (Recipient, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.recs {
		if r.ID == id {
			return r, true
		}
	}
	return Recipient{}, false
}

// Add validates, normalizes the phone, assigns an id when absent, and
// persists.
func (s *Service) Add(ctx context.Context, r Recipient) (Recipient, error) {
	r.Phone = message.NormalizePhone(r.Phone)
	r.Name = strings.TrimSpace(r.Name)
	if err := r.Validate(); err != nil {
		return Recipient{}, err
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	next := append(append([]Recipient(nil), s.recs...), r)
	if err := s.store.Save(ctx, next); err != nil {
		return Recipient{}, err
	}
	s.recs = next
	return r, nil
}

func (s *Service) Update(ctx context.Context, r Recipient) error {
	r.Phone = message.NormalizePhone(r.Phone)
	r.Name = strings.TrimSpace(r.Name)
	if err := r.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	next := append([]Recipient(nil), s.recs...)
	for i := range next {
		if next[i].ID == r.ID {
			next[i] = r
			if err := s.store.Save(ctx, next); err != nil {
				return err
			}
			s.recs = next
			return nil
		}
	}
	return ErrNotFound
}

func (s *Service) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.recs {
		if r.ID == id {
			next := append(append([]Recipient(nil), s.recs[:i]...), s.recs[i+1:]...)
			if err := s.store.Save(ctx, next); err != nil {
				return err
			}
			s.recs = next
			return nil
		}
	}
	return ErrNotFound
}

// addAll appends pre-validated recipients in a single persisted write.
func (s *Service) addAll(ctx context.Context, recs []Recipient) error {
	if len(recs) == 0 {
		return nil
	}
	for i := range recs {
		if recs[i].ID == "" {
			recs[i].ID = uuid.NewString()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	next := append(append([]Recipient(nil), s.recs...), recs...)
	if err := s.store.Save(ctx, next); err != nil {
		return err
	}
	s.recs = next
	return nil
}

// Replace swaps the whole roster (bulk import). Entries are validated
// up front; nothing is persisted when any entry is invalid.
func (s *Service) Replace(ctx context.Context, recs []Recipient) error {
	next := make([]Recipient, 0, len(recs))
	for _, r := range recs {
		r.Phone = message.NormalizePhone(r.Phone)
		r.Name = strings.TrimSpace(r.Name)
		if err := r.Validate(); err != nil {
			return err
		}
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		next = append(next, r)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Save(ctx, next); err != nil {
		return err
	}
	s.recs = next
	return nil
}

// ---- Birthday matching ----

// DueOn returns recipients whose birthday month-day matches the given date.
func (s *Service) DueOn(date time.Time) []Recipient {
	want := date.Format("01-02")
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Recipient
	for _, r := range s.recs {
		if md := r.monthDay(); md != "" && md == want {
			out = append(out, r)
		}
	}
	return out
}

// DueToday resolves today's birthday recipients.
func (s *Service) DueToday(now time.Time) []Recipient { return s.DueOn(now) }

// DueInMonth returns recipients with a birthday in the given date's month.
func (s *Service) DueInMonth(date time.Time) []Recipient {
	want := date.Format("01")
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Recipient
	for _, r := range s.recs {
		if md := r.monthDay(); md != "" && strings.HasPrefix(md, want) {
			out = append(out, r)
		}
	}
	return out
}

// UpcomingBirthdays lists recipients whose next birthday falls within
// the next N days, soonest first.
func (s *Service) UpcomingBirthdays(now time.Time, days int) []Upcoming {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Upcoming
	for _, r := range s.recs {
		bd, err := time.Parse(birthdayLayout, r.Birthday)
		if err != nil {
			continue
		}
		next := time.Date(today.Year(), bd.Month(), bd.Day(), 0, 0, 0, 0, now.Location())
		if next.Before(today) {
			next = next.AddDate(1, 0, 0)
		}
		until := int(next.Sub(today).Hours() / 24)
		if until <= days {
			out = append(out, Upcoming{Recipient: r, DaysUntil: until})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DaysUntil < out[j].DaysUntil })
	return out
}
