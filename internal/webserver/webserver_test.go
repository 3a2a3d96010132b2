package webserver_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/zsprackett/event-reserve/internal/admission"
	"github.com/zsprackett/event-reserve/internal/catalog"
	"github.com/zsprackett/event-reserve/internal/client"
	"github.com/zsprackett/event-reserve/internal/notify"
	"github.com/zsprackett/event-reserve/internal/protocol"
	"github.com/zsprackett/event-reserve/internal/transport"
	"github.com/zsprackett/event-reserve/internal/webserver"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	store *catalog.Store
	admit *admission.Manager
	srv   *webserver.Server
	hs    *httptest.Server
}

func newFixture(t *testing.T, maxActive int) *fixture {
	t.Helper()
	store := catalog.New()
	store.AddEvent("Concert", 2)
	store.AddEvent("Workshop", 1)
	admit := admission.New(maxActive, 120)
	srv := webserver.New(store, admit, webserver.Config{
		ConfirmationTimeout: time.Minute,
	}, discardLogger())
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(hs.Close)
	return &fixture{store: store, admit: admit, srv: srv, hs: hs}
}

func (f *fixture) wsURL() string {
	return "ws" + strings.TrimPrefix(f.hs.URL, "http") + "/ws"
}

func (f *fixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(f.wsURL(), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads frames until one named msgType arrives.
func readUntil(t *testing.T, conn *websocket.Conn, msgType string) protocol.Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", msgType, err)
		}
		env, err := protocol.Decode(raw)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if env.Type == msgType {
			return env
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, frame string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestConnectGrantsAccess(t *testing.T) {
	f := newFixture(t, 3)
	conn := f.dial(t)

	readUntil(t, conn, protocol.AccessGranted)
	var timer protocol.Timer
	readUntil(t, conn, protocol.StartTimer).Bind(&timer)
	if timer.Time != 120 {
		t.Errorf("expected 120s timer, got %d", timer.Time)
	}
	var snap protocol.EventsSnapshot
	if err := readUntil(t, conn, protocol.UpdateEvents).Bind(&snap); err != nil {
		t.Fatal(err)
	}
	if len(snap.Events) != 2 || snap.Events[0].Name != "Concert" {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
}

func TestQueuedClientPromotedOnDisconnect(t *testing.T) {
	f := newFixture(t, 1)
	first := f.dial(t)
	readUntil(t, first, protocol.AccessGranted)

	second := f.dial(t)
	var pos protocol.QueuePosition
	readUntil(t, second, protocol.InQueue).Bind(&pos)
	if pos.Position != 1 {
		t.Errorf("expected position 1, got %d", pos.Position)
	}

	send(t, second, `{"type":"reserve_event","data":{"eventId":1}}`)
	var e protocol.ErrorPayload
	readUntil(t, second, protocol.Error).Bind(&e)
	if e.Message != "user is not allowed to reserve" {
		t.Errorf("unexpected error: %q", e.Message)
	}

	first.Close()
	readUntil(t, second, protocol.AccessGranted)
}

func TestReserveAndConfirm(t *testing.T) {
	f := newFixture(t, 3)
	conn := f.dial(t)
	readUntil(t, conn, protocol.AccessGranted)

	send(t, conn, `{"type":"reserve_event","data":{"eventId":1}}`)

	var slots protocol.EventSlots
	readUntil(t, conn, protocol.EventUpdated).Bind(&slots)
	if slots.EventID != 1 || slots.AvailableSlots != 1 {
		t.Errorf("unexpected event_updated: %+v", slots)
	}
	var created protocol.ReservationCreatedPayload
	readUntil(t, conn, protocol.ReservationCreated).Bind(&created)
	if created.EventID != 1 || created.ConfirmationTimeout != 60 || created.ReservationID == "" {
		t.Errorf("unexpected reservation_created: %+v", created)
	}

	send(t, conn, `{"type":"confirm_reservation","data":{"reservation_id":"`+created.ReservationID+`","name":"Alice","phone":"5551234567"}}`)
	var ok protocol.ReservationConfirmedPayload
	readUntil(t, conn, protocol.ReservationConfirmed).Bind(&ok)
	if !ok.Success {
		t.Error("expected success")
	}
	r, err := f.store.Reservation(created.ReservationID)
	if err != nil {
		t.Fatal(err)
	}
	if r.Status != catalog.StatusConfirmed {
		t.Errorf("expected confirmed, got %s", r.Status)
	}
}

func TestReserveErrorsReported(t *testing.T) {
	f := newFixture(t, 3)
	conn := f.dial(t)
	readUntil(t, conn, protocol.AccessGranted)

	cases := []struct {
		frame string
		want  string
	}{
		{`{"type":"reserve_event","data":{"eventId":99}}`, "event not found"},
		{`{"type":"reserve_event","data":{"eventId":"abc"}}`, "event not found"},
		{`{"type":"reserve_event","data":{}}`, "invalid reservation request"},
		{`{"type":"reserve_event","data":{"event_id":2}}`, ""},
		{`{"type":"reserve_event","data":{"eventId":"2"}}`, "this event already has a temporary reservation"},
	}
	for _, tc := range cases {
		send(t, conn, tc.frame)
		if tc.want == "" {
			readUntil(t, conn, protocol.ReservationCreated)
			continue
		}
		var e protocol.ErrorPayload
		readUntil(t, conn, protocol.Error).Bind(&e)
		if e.Message != tc.want {
			t.Errorf("%s: got %q want %q", tc.frame, e.Message, tc.want)
		}
	}
}

func TestTimeExpiredStopsTimer(t *testing.T) {
	f := newFixture(t, 1)
	first := f.dial(t)
	readUntil(t, first, protocol.AccessGranted)
	second := f.dial(t)
	readUntil(t, second, protocol.InQueue)

	send(t, first, `{"type":"time_expired"}`)
	readUntil(t, first, protocol.StopTimer)
	readUntil(t, second, protocol.AccessGranted)
	if got := f.admit.ActiveUsers(); len(got) != 1 {
		t.Errorf("expected 1 active user, got %d", len(got))
	}
}

func TestStartTimerUpdatesActiveUser(t *testing.T) {
	f := newFixture(t, 1)
	active := f.dial(t)
	readUntil(t, active, protocol.AccessGranted)
	queued := f.dial(t)
	readUntil(t, queued, protocol.InQueue)

	send(t, active, `{"type":"start_timer","data":{"time":5}}`)
	for {
		var users protocol.ActiveUsers
		readUntil(t, active, protocol.UpdateActiveUsers).Bind(&users)
		if len(users.ActiveUsers) == 1 && users.ActiveUsers[0].TimeLeft == 5 {
			break
		}
	}

	// A queued connection has no timer to overwrite.
	send(t, queued, `{"type":"start_timer","data":{"time":1}}`)
	send(t, queued, `{"type":"start_timer","data":{"time":"soon"}}`)
	var e protocol.ErrorPayload
	readUntil(t, queued, protocol.Error).Bind(&e)
	if e.Message != "invalid timer" {
		t.Errorf("unexpected error: %q", e.Message)
	}
	got := f.admit.ActiveUsers()
	if len(got) != 1 || got[0].TimeLeft != 5 {
		t.Errorf("queued start_timer changed active users: %+v", got)
	}
	if len(f.admit.Queue()) != 1 {
		t.Errorf("expected 1 queued, got %v", f.admit.Queue())
	}

	send(t, active, `{"type":"start_timer"}`)
	readUntil(t, active, protocol.Error).Bind(&e)
	if e.Message != "invalid timer" {
		t.Errorf("unexpected error for missing data: %q", e.Message)
	}
}

// inboundSeries counts the reserve_messages_total series for received messages.
func inboundSeries(t *testing.T, f *fixture) (total int, unknown bool) {
	t.Helper()
	resp, err := http.Get(f.hs.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	for _, line := range strings.Split(string(body), "\n") {
		if strings.HasPrefix(line, `reserve_messages_total{direction="in"`) {
			total++
			if strings.Contains(line, `type="unknown"`) {
				unknown = true
			}
		}
	}
	return total, unknown
}

func TestUnknownMessageTypesShareOneSeries(t *testing.T) {
	f := newFixture(t, 3)
	conn := f.dial(t)
	readUntil(t, conn, protocol.AccessGranted)
	before, _ := inboundSeries(t, f)

	for i := 0; i < 50; i++ {
		send(t, conn, fmt.Sprintf(`{"type":"junk_%d"}`, i))
	}
	// Frames are handled in order, so this reply means the junk was seen.
	send(t, conn, `{"type":"start_timer"}`)
	readUntil(t, conn, protocol.Error)

	after, unknown := inboundSeries(t, f)
	if !unknown {
		t.Error("expected an unknown series")
	}
	if after-before > 2 {
		t.Errorf("expected at most 2 new inbound series, got %d", after-before)
	}
}

func TestListEventsEndpoint(t *testing.T) {
	f := newFixture(t, 3)
	req := httptest.NewRequest("GET", "/api/events", nil)
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var snap protocol.EventsSnapshot
	if err := json.NewDecoder(w.Body).Decode(&snap); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(snap.Events) != 2 {
		t.Errorf("expected 2 events, got %d", len(snap.Events))
	}
}

func TestCreateEventEndpoint(t *testing.T) {
	f := newFixture(t, 3)
	handler := f.srv.Handler()

	req := httptest.NewRequest("POST", "/api/events", strings.NewReader(`{"name":"Lecture","total_slots":5}`))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != 201 {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var e protocol.EventState
	json.NewDecoder(w.Body).Decode(&e)
	if e.ID != 3 || e.AvailableSlots != 5 {
		t.Errorf("unexpected event: %+v", e)
	}

	req = httptest.NewRequest("POST", "/api/events", strings.NewReader(`{"name":"x","total_slots":0}`))
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != 400 {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t, 3)
	for _, path := range []string{"/healthz", "/metrics"} {
		resp, err := http.Get(f.hs.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != 200 {
			t.Errorf("%s: expected 200, got %d", path, resp.StatusCode)
		}
	}
}

func TestClientEndToEnd(t *testing.T) {
	f := newFixture(t, 3)

	updates := make(chan protocol.EventUpdate, 8)
	n := notify.New(notify.Config{}, discardLogger(), func(u protocol.EventUpdate) { updates <- u })
	conn := transport.Connect(context.Background(), f.wsURL(),
		transport.WithLogger(discardLogger()),
		transport.WithBackOff(func() backoff.BackOff { return backoff.NewConstantBackOff(20 * time.Millisecond) }))
	defer conn.Close()

	c := client.New(conn, n, discardLogger())
	created := make(chan protocol.ReservationCreatedPayload, 1)
	c.OnReservationCreated(func(p protocol.ReservationCreatedPayload) { created <- p })
	c.OnAccessGranted(func() { c.RequestReservation(protocol.NumberID(2)) })

	select {
	case u := <-updates:
		fields, err := u.Fields()
		if err != nil {
			t.Fatal(err)
		}
		if _, ok := fields["events"]; !ok {
			t.Errorf("expected events in update: %s", u)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for update_events")
	}

	select {
	case p := <-created:
		if p.EventID != 2 {
			t.Errorf("expected event 2, got %d", p.EventID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reservation_created")
	}

	ev, _ := f.store.Event(2)
	if ev.AvailableSlots != 0 {
		t.Errorf("expected slot taken, got %d", ev.AvailableSlots)
	}
}
