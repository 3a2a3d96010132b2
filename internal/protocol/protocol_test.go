package protocol_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/zsprackett/event-reserve/internal/protocol"
)

func TestReserveEnvelopeWireForm(t *testing.T) {
	env, err := protocol.NewEnvelope(protocol.ReserveEvent, protocol.ReserveRequest{EventID: protocol.StringID("42")})
	if err != nil {
		t.Fatal(err)
	}
	raw, err := env.Encode()
	if err != nil {
		t.Fatal(err)
	}
	want := `{"type":"reserve_event","data":{"eventId":"42"}}`
	if string(raw) != want {
		t.Errorf("got %s want %s", raw, want)
	}
}

func TestEnvelopeWithoutPayload(t *testing.T) {
	env, _ := protocol.NewEnvelope(protocol.TimeExpired, nil)
	raw, _ := env.Encode()
	if string(raw) != `{"type":"time_expired"}` {
		t.Errorf("unexpected frame: %s", raw)
	}
}

func TestDecodeRejectsMissingType(t *testing.T) {
	for _, in := range []string{`{"data":{}}`, `not json`, `[]`} {
		if _, err := protocol.Decode([]byte(in)); !errors.Is(err, protocol.ErrMalformed) {
			t.Errorf("Decode(%q): expected ErrMalformed, got %v", in, err)
		}
	}
}

func TestEventUpdateKeepsBytes(t *testing.T) {
	frame := `{"type":"update_events","data":{"events":[{"id":"42","seats":3}]}}`
	env, err := protocol.Decode([]byte(frame))
	if err != nil {
		t.Fatal(err)
	}
	var u protocol.EventUpdate
	if err := env.Bind(&u); err != nil {
		t.Fatal(err)
	}
	if string(u) != `{"events":[{"id":"42","seats":3}]}` {
		t.Errorf("payload changed: %s", u)
	}
	fields, err := u.Fields()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := fields["events"]; !ok {
		t.Error("expected events field")
	}
}

func TestReserveRequestAcceptsLegacyKey(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`{"eventId":"42"}`, "42"},
		{`{"eventId":7}`, "7"},
		{`{"event_id":9}`, "9"},
		{`{"eventId":3,"event_id":4}`, "3"},
	}
	for _, tc := range cases {
		var r protocol.ReserveRequest
		if err := json.Unmarshal([]byte(tc.in), &r); err != nil {
			t.Fatalf("%s: %v", tc.in, err)
		}
		if r.EventID.String() != tc.want {
			t.Errorf("%s: got %q want %q", tc.in, r.EventID.String(), tc.want)
		}
	}
}

func TestReserveRequestMissingID(t *testing.T) {
	var r protocol.ReserveRequest
	err := json.Unmarshal([]byte(`{"other":1}`), &r)
	if !errors.Is(err, protocol.ErrMissingEventID) {
		t.Errorf("expected ErrMissingEventID, got %v", err)
	}
}

func TestEventIDRoundTrip(t *testing.T) {
	cases := []struct {
		raw    string
		number bool
	}{
		{`"42"`, false},
		{`42`, true},
		{`"evt-abc"`, false},
		{`-3`, true},
		{`1.5`, true},
	}
	for _, tc := range cases {
		var id protocol.EventID
		if err := json.Unmarshal([]byte(tc.raw), &id); err != nil {
			t.Fatalf("%s: %v", tc.raw, err)
		}
		if id.IsNumber() != tc.number {
			t.Errorf("%s: IsNumber got %v", tc.raw, id.IsNumber())
		}
		out, _ := json.Marshal(id)
		if string(out) != tc.raw {
			t.Errorf("%s: re-encoded as %s", tc.raw, out)
		}
	}
}

func TestEventIDRejectsOtherKinds(t *testing.T) {
	for _, raw := range []string{`{}`, `[1]`, `true`} {
		var id protocol.EventID
		if err := id.UnmarshalJSON([]byte(raw)); !errors.Is(err, protocol.ErrInvalidEventID) {
			t.Errorf("%s: expected ErrInvalidEventID, got %v", raw, err)
		}
	}
}

func TestParseEventID(t *testing.T) {
	if id := protocol.ParseEventID("42"); !id.IsNumber() {
		t.Error("expected 42 to parse as a number")
	}
	if id := protocol.ParseEventID("042"); id.IsNumber() {
		t.Error("expected 042 to stay a string")
	}
	if n, err := protocol.StringID("17").Int64(); err != nil || n != 17 {
		t.Errorf("Int64: got %d, %v", n, err)
	}
	if _, err := protocol.StringID("abc").Int64(); !errors.Is(err, protocol.ErrInvalidEventID) {
		t.Errorf("expected ErrInvalidEventID, got %v", err)
	}
}
