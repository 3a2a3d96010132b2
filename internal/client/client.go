// Package client wires the Event Notifier and the Reservation Requester onto
// one transport and logs the server's other notices.
package client

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/zsprackett/event-reserve/internal/notify"
	"github.com/zsprackett/event-reserve/internal/protocol"
	"github.com/zsprackett/event-reserve/internal/transport"
)

// Client is the composition of the notifier and the requester. It never
// sends anything on its own; outbound messages come only from Requester
// calls.
type Client struct {
	*Requester

	logger *slog.Logger

	mu       sync.Mutex
	granted  bool
	onAccess []func()
	onCreate []func(protocol.ReservationCreatedPayload)
}

func New(t transport.Transport, n *notify.Notifier, logger *slog.Logger) *Client {
	c := &Client{
		Requester: NewRequester(t, logger),
		logger:    logger,
	}
	n.Subscribe(t)

	t.On(protocol.AccessGranted, c.handleAccessGranted)
	t.On(protocol.TimeExpired, c.handleRevoked)
	t.On(protocol.StopTimer, c.handleRevoked)
	t.On(protocol.ReservationCreated, c.handleReservationCreated)
	t.On(protocol.InQueue, c.logNotice(protocol.InQueue, &protocol.QueuePosition{}))
	t.On(protocol.StartTimer, c.logNotice(protocol.StartTimer, &protocol.Timer{}))
	t.On(protocol.UpdateOnlineUsers, c.logNotice(protocol.UpdateOnlineUsers, &protocol.OnlineUsers{}))
	t.On(protocol.UpdateQueue, c.logNotice(protocol.UpdateQueue, &protocol.Queue{}))
	t.On(protocol.UpdateActiveUsers, c.logNotice(protocol.UpdateActiveUsers, &protocol.ActiveUsers{}))
	t.On(protocol.EventUpdated, c.logNotice(protocol.EventUpdated, &protocol.EventSlots{}))
	t.On(protocol.ReservationConfirmed, c.logNotice(protocol.ReservationConfirmed, &protocol.ReservationConfirmedPayload{}))
	t.On(protocol.Error, c.handleError)
	return c
}

// OnAccessGranted registers fn to run each time the server grants access.
func (c *Client) OnAccessGranted(fn func()) {
	c.mu.Lock()
	c.onAccess = append(c.onAccess, fn)
	c.mu.Unlock()
}

// OnReservationCreated registers fn for every reservation_created notice.
func (c *Client) OnReservationCreated(fn func(protocol.ReservationCreatedPayload)) {
	c.mu.Lock()
	c.onCreate = append(c.onCreate, fn)
	c.mu.Unlock()
}

// Granted reports whether the server currently lets this client reserve.
func (c *Client) Granted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.granted
}

func (c *Client) handleAccessGranted(_ context.Context, _ json.RawMessage) {
	c.logger.Info("client: access granted")
	c.mu.Lock()
	c.granted = true
	fns := append([]func(){}, c.onAccess...)
	c.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (c *Client) handleRevoked(_ context.Context, _ json.RawMessage) {
	c.mu.Lock()
	was := c.granted
	c.granted = false
	c.mu.Unlock()
	if was {
		c.logger.Info("client: choice window closed")
	}
}

func (c *Client) handleReservationCreated(_ context.Context, data json.RawMessage) {
	var p protocol.ReservationCreatedPayload
	if err := bind(protocol.ReservationCreated, data, &p); err != nil {
		c.logger.Warn("client: bad notice", "type", protocol.ReservationCreated, "err", err)
		return
	}
	c.logger.Info("client: reservation held",
		"reservation", p.ReservationID,
		"event", p.EventID,
		"expires", humanize.Time(p.ExpiresAt),
	)
	c.mu.Lock()
	fns := append([]func(protocol.ReservationCreatedPayload){}, c.onCreate...)
	c.mu.Unlock()
	for _, fn := range fns {
		fn(p)
	}
}

func (c *Client) handleError(_ context.Context, data json.RawMessage) {
	var p protocol.ErrorPayload
	if err := bind(protocol.Error, data, &p); err != nil {
		c.logger.Warn("client: bad notice", "type", protocol.Error, "err", err)
		return
	}
	c.logger.Warn("client: server error", "message", p.Message)
}

// logNotice returns a handler that checks the payload shape and logs it.
// v is only used for validation and is overwritten on every call.
func (c *Client) logNotice(name string, v any) transport.Handler {
	return func(_ context.Context, data json.RawMessage) {
		if len(data) > 0 {
			if err := bind(name, data, v); err != nil {
				c.logger.Warn("client: bad notice", "type", name, "err", err)
				return
			}
		}
		c.logger.Debug("client: notice", "type", name, "data", string(data))
	}
}

func bind(name string, data json.RawMessage, v any) error {
	return protocol.Envelope{Type: name, Data: data}.Bind(v)
}
