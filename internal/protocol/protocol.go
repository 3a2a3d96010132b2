// Package protocol defines the named messages exchanged over the real-time
// channel and their payload shapes.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// Message names. The server→client and client→server streams share the
// start_timer and time_expired names.
const (
	UpdateEvents         = "update_events"
	ReserveEvent         = "reserve_event"
	ConfirmReservation   = "confirm_reservation"
	TimeExpired          = "time_expired"
	StartTimer           = "start_timer"
	StopTimer            = "stop_timer"
	AccessGranted        = "access_granted"
	InQueue              = "in_queue"
	UpdateOnlineUsers    = "update_online_users"
	UpdateQueue          = "update_queue"
	UpdateActiveUsers    = "update_active_users"
	EventUpdated         = "event_updated"
	ReservationCreated   = "reservation_created"
	ReservationConfirmed = "reservation_confirmed"
	Error                = "error"
)

var (
	ErrMalformed      = errors.New("protocol: malformed message")
	ErrMissingEventID = errors.New("protocol: missing event id")
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// Envelope is the frame carried by every websocket text message.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope encodes payload as the data of a message named name. A nil
// payload produces a message without data.
func NewEnvelope(name string, payload any) (Envelope, error) {
	env := Envelope{Type: name}
	if payload == nil {
		return env, nil
	}
	data, err := codec.Marshal(payload)
	if err != nil {
		return env, fmt.Errorf("protocol: encode %s: %w", name, err)
	}
	env.Data = data
	return env, nil
}

// Encode returns the wire form of the envelope.
func (e Envelope) Encode() ([]byte, error) {
	return codec.Marshal(e)
}

// Decode parses a wire frame.
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := codec.Unmarshal(raw, &env); err != nil {
		return env, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return env, fmt.Errorf("%w: empty type", ErrMalformed)
	}
	return env, nil
}

// Bind decodes the envelope data into v.
func (e Envelope) Bind(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%w: %s has no data", ErrMalformed, e.Type)
	}
	if err := codec.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, e.Type, err)
	}
	return nil
}

// EventUpdate is the payload of update_events. Its shape belongs to the
// server; clients keep the bytes exactly as received.
type EventUpdate json.RawMessage

func (u EventUpdate) MarshalJSON() ([]byte, error) {
	if len(u) == 0 {
		return []byte("null"), nil
	}
	return u, nil
}

func (u *EventUpdate) UnmarshalJSON(b []byte) error {
	*u = append((*u)[:0], b...)
	return nil
}

// Fields decodes the update as a generic object.
func (u EventUpdate) Fields() (map[string]any, error) {
	var m map[string]any
	if err := codec.Unmarshal(u, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return m, nil
}

// ReserveRequest is the payload of reserve_event.
type ReserveRequest struct {
	EventID EventID `json:"eventId"`
}

// UnmarshalJSON accepts both eventId and the older event_id key.
func (r *ReserveRequest) UnmarshalJSON(b []byte) error {
	var aux struct {
		EventID *EventID `json:"eventId"`
		Legacy  *EventID `json:"event_id"`
	}
	if err := codec.Unmarshal(b, &aux); err != nil {
		return err
	}
	switch {
	case aux.EventID != nil && !aux.EventID.IsZero():
		r.EventID = *aux.EventID
	case aux.Legacy != nil && !aux.Legacy.IsZero():
		r.EventID = *aux.Legacy
	default:
		return ErrMissingEventID
	}
	return nil
}

type ConfirmRequest struct {
	ReservationID string `json:"reservation_id"`
	Name          string `json:"name"`
	Phone         string `json:"phone"`
}

type Timer struct {
	Time int `json:"time"`
}

type QueuePosition struct {
	Position int `json:"position"`
}

type OnlineUsers struct {
	Count int `json:"count"`
}

type Queue struct {
	Queue []string `json:"queue"`
}

type ActiveUser struct {
	ID       string `json:"id"`
	TimeLeft int    `json:"timeLeft"`
}

type ActiveUsers struct {
	ActiveUsers []ActiveUser `json:"active_users"`
}

type EventSlots struct {
	EventID        int64 `json:"event_id"`
	AvailableSlots int   `json:"available_slots"`
}

type ReservationCreatedPayload struct {
	ReservationID       string    `json:"reservation_id"`
	EventID             int64     `json:"event_id"`
	ExpiresAt           time.Time `json:"expires_at"`
	ConfirmationTimeout int       `json:"confirmation_timeout"`
}

type ReservationConfirmedPayload struct {
	Success bool `json:"success"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// EventState is one entry of the server's update_events snapshot.
type EventState struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	TotalSlots     int       `json:"total_slots"`
	AvailableSlots int       `json:"available_slots"`
	CreatedAt      time.Time `json:"created_at"`
}

type EventsSnapshot struct {
	Events []EventState `json:"events"`
}
