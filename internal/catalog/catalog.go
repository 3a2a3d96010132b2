// Package catalog keeps the reservable events and their reservations in
// memory.
package catalog

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

var (
	ErrEventNotFound       = errors.New("catalog: event not found")
	ErrTemporaryHeld       = errors.New("catalog: event already has a temporary reservation")
	ErrSoldOut             = errors.New("catalog: no slots available")
	ErrReservationNotFound = errors.New("catalog: reservation not found or already expired")
	ErrReservationExpired  = errors.New("catalog: reservation expired")
	ErrInvalidContact      = errors.New("catalog: invalid name or phone")
	ErrInvalidEvent        = errors.New("catalog: invalid event")
)

type Status string

const (
	StatusTemporary Status = "temporary"
	StatusConfirmed Status = "confirmed"
)

type Event struct {
	ID             int64
	Name           string
	TotalSlots     int
	AvailableSlots int
	CreatedAt      time.Time
}

type Reservation struct {
	ID        string
	EventID   int64
	Status    Status
	UserName  string
	UserPhone string
	CreatedAt time.Time
	ExpiresAt time.Time
}

func (r Reservation) expired(now time.Time) bool {
	return r.Status == StatusTemporary && r.ExpiresAt.Before(now)
}

// Store is safe for concurrent use.
type Store struct {
	mu           sync.Mutex
	nextID       int64
	events       map[int64]*Event
	reservations map[string]*Reservation
	now          func() time.Time
}

func New() *Store {
	return &Store{
		nextID:       1,
		events:       make(map[int64]*Event),
		reservations: make(map[string]*Reservation),
		now:          time.Now,
	}
}

// SetNow replaces the time source. Used in tests only.
func (s *Store) SetNow(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = fn
}

// AddEvent creates an event with all of its slots available.
func (s *Store) AddEvent(name string, totalSlots int) (Event, error) {
	if n := utf8.RuneCountInString(name); n < 3 || n > 100 {
		return Event{}, fmt.Errorf("%w: name must be 3 to 100 characters", ErrInvalidEvent)
	}
	if totalSlots < 1 {
		return Event{}, fmt.Errorf("%w: total slots must be at least 1", ErrInvalidEvent)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e := &Event{
		ID:             s.nextID,
		Name:           name,
		TotalSlots:     totalSlots,
		AvailableSlots: totalSlots,
		CreatedAt:      s.now().UTC(),
	}
	s.events[e.ID] = e
	s.nextID++
	return *e, nil
}

// Events returns a copy of every event ordered by id.
func (s *Store) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) Event(id int64) (Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return Event{}, ErrEventNotFound
	}
	return *e, nil
}

func (s *Store) Reservation(id string) (Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reservations[id]
	if !ok {
		return Reservation{}, ErrReservationNotFound
	}
	return *r, nil
}

// Reserve holds one slot of eventID for ttl. An event carries at most one
// live temporary reservation at a time.
func (s *Store) Reserve(eventID int64, ttl time.Duration) (Reservation, Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[eventID]
	if !ok {
		return Reservation{}, Event{}, ErrEventNotFound
	}
	now := s.now()
	held := s.temporaryFor(eventID)
	if held != nil && !held.expired(now) {
		return Reservation{}, *e, ErrTemporaryHeld
	}
	if held != nil {
		s.release(held)
	}
	if e.AvailableSlots <= 0 {
		return Reservation{}, *e, ErrSoldOut
	}

	r := &Reservation{
		ID:        uuid.NewString(),
		EventID:   eventID,
		Status:    StatusTemporary,
		CreatedAt: now.UTC(),
		ExpiresAt: now.Add(ttl).UTC(),
	}
	s.reservations[r.ID] = r
	e.AvailableSlots--
	return *r, *e, nil
}

// Confirm turns a temporary reservation into a confirmed one.
func (s *Store) Confirm(id, name, phone string) (Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.reservations[id]
	if !ok || r.Status != StatusTemporary {
		return Reservation{}, ErrReservationNotFound
	}
	if r.expired(s.now()) {
		s.release(r)
		return Reservation{}, ErrReservationExpired
	}
	if n := utf8.RuneCountInString(name); n < 3 || n > 100 {
		return Reservation{}, fmt.Errorf("%w: name must be 3 to 100 characters", ErrInvalidContact)
	}
	if n := utf8.RuneCountInString(phone); n < 10 || n > 20 {
		return Reservation{}, fmt.Errorf("%w: phone must be 10 to 20 characters", ErrInvalidContact)
	}
	r.Status = StatusConfirmed
	r.UserName = name
	r.UserPhone = phone
	return *r, nil
}

// ExpireTemporary drops every temporary reservation past its deadline and
// returns the events that got a slot back.
func (s *Store) ExpireTemporary() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	affected := make(map[int64]struct{})
	for _, r := range s.reservations {
		if r.expired(now) {
			affected[r.EventID] = struct{}{}
			s.release(r)
		}
	}
	out := make([]Event, 0, len(affected))
	for id := range affected {
		if e, ok := s.events[id]; ok {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) temporaryFor(eventID int64) *Reservation {
	for _, r := range s.reservations {
		if r.EventID == eventID && r.Status == StatusTemporary {
			return r
		}
	}
	return nil
}

// release deletes r and gives its slot back. Caller holds s.mu.
func (s *Store) release(r *Reservation) {
	delete(s.reservations, r.ID)
	if e, ok := s.events[r.EventID]; ok && e.AvailableSlots < e.TotalSlots {
		e.AvailableSlots++
	}
}
