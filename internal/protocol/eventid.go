package protocol

import (
	"bytes"
	"errors"
	"strconv"
)

var ErrInvalidEventID = errors.New("protocol: event id must be a string or a number")

// EventID names one reservable event. It holds the JSON token it was built
// from so that it round-trips byte for byte.
type EventID struct {
	tok string
}

// StringID returns an id encoded as a JSON string.
func StringID(s string) EventID {
	b, _ := codec.Marshal(s)
	return EventID{tok: string(b)}
}

// NumberID returns an id encoded as a JSON number.
func NumberID(n int64) EventID {
	return EventID{tok: strconv.FormatInt(n, 10)}
}

// ParseEventID reads a command-line id. Canonical integers become numbers,
// anything else a string.
func ParseEventID(s string) EventID {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && strconv.FormatInt(n, 10) == s {
		return NumberID(n)
	}
	return StringID(s)
}

func (id EventID) IsZero() bool { return id.tok == "" }

// IsNumber reports whether the id was sent as a JSON number.
func (id EventID) IsNumber() bool {
	return id.tok != "" && id.tok[0] != '"'
}

// String returns the id without JSON quoting.
func (id EventID) String() string {
	if !id.IsNumber() && id.tok != "" {
		var s string
		if err := codec.UnmarshalFromString(id.tok, &s); err == nil {
			return s
		}
	}
	return id.tok
}

// Int64 interprets the id as an integer, accepting numeric strings.
func (id EventID) Int64() (int64, error) {
	n, err := strconv.ParseInt(id.String(), 10, 64)
	if err != nil {
		return 0, ErrInvalidEventID
	}
	return n, nil
}

func (id EventID) MarshalJSON() ([]byte, error) {
	if id.tok == "" {
		return []byte("null"), nil
	}
	return []byte(id.tok), nil
}

func (id *EventID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || !codec.Valid(b) {
		return ErrInvalidEventID
	}
	switch c := b[0]; {
	case c == 'n' && string(b) == "null":
		*id = EventID{}
		return nil
	case c == '"', c == '-', c >= '0' && c <= '9':
		*id = EventID{tok: string(b)}
		return nil
	default:
		return ErrInvalidEventID
	}
}
