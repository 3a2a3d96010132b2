package webserver

import (
	"errors"

	"github.com/zsprackett/event-reserve/internal/catalog"
	"github.com/zsprackett/event-reserve/internal/events"
	"github.com/zsprackett/event-reserve/internal/metrics"
	"github.com/zsprackett/event-reserve/internal/protocol"
)

// inboundTypes are the message names a client may send. Metrics count
// anything else under a single "unknown" type.
var inboundTypes = map[string]bool{
	protocol.ReserveEvent:       true,
	protocol.ConfirmReservation: true,
	protocol.TimeExpired:        true,
	protocol.StartTimer:         true,
}

func (s *Server) dispatch(id string, env protocol.Envelope) {
	if inboundTypes[env.Type] {
		metrics.Inbound(env.Type)
	} else {
		metrics.Inbound("unknown")
	}
	switch env.Type {
	case protocol.ReserveEvent:
		s.handleReserve(id, env)
	case protocol.ConfirmReservation:
		s.handleConfirm(id, env)
	case protocol.TimeExpired:
		s.handleTimeExpired(id)
	case protocol.StartTimer:
		s.handleStartTimer(id, env)
	default:
		s.logger.Debug("webserver: unhandled message", "conn", id, "type", env.Type)
	}
}

func (s *Server) onConnect(id string) {
	granted, position := s.admit.Add(id)
	if granted {
		s.grant(id)
	} else {
		s.logger.Info("webserver: client queued", "conn", id, "position", position)
		s.SendTo(id, events.Event{Type: protocol.InQueue, Data: protocol.QueuePosition{Position: position}})
	}
	s.SendTo(id, s.snapshotEvent())
	s.broadcastPresence()
}

func (s *Server) onDisconnect(id string) {
	_, promoted := s.admit.Remove(id)
	for _, p := range promoted {
		s.grant(p)
	}
	s.broadcastPresence()
}

func (s *Server) handleReserve(id string, env protocol.Envelope) {
	if !s.admit.IsActive(id) {
		metrics.ReservationsTotal.WithLabelValues("denied").Inc()
		s.sendError(id, "user is not allowed to reserve")
		return
	}
	var req protocol.ReserveRequest
	if err := env.Bind(&req); err != nil {
		s.sendError(id, "invalid reservation request")
		return
	}
	eventID, err := req.EventID.Int64()
	if err != nil {
		metrics.ReservationsTotal.WithLabelValues("not_found").Inc()
		s.sendError(id, "event not found")
		return
	}

	r, e, err := s.store.Reserve(eventID, s.cfg.ConfirmationTimeout)
	switch {
	case errors.Is(err, catalog.ErrEventNotFound):
		metrics.ReservationsTotal.WithLabelValues("not_found").Inc()
		s.sendError(id, "event not found")
		return
	case errors.Is(err, catalog.ErrTemporaryHeld):
		metrics.ReservationsTotal.WithLabelValues("held").Inc()
		s.sendError(id, "this event already has a temporary reservation")
		return
	case errors.Is(err, catalog.ErrSoldOut):
		metrics.ReservationsTotal.WithLabelValues("sold_out").Inc()
		s.sendError(id, "no slots available")
		return
	case err != nil:
		s.logger.Error("webserver: reserve", "conn", id, "event", eventID, "err", err)
		s.sendError(id, "reservation failed")
		return
	}

	metrics.ReservationsTotal.WithLabelValues("created").Inc()
	s.logger.Info("webserver: reservation created",
		"conn", id, "reservation", r.ID, "event", e.ID, "available", e.AvailableSlots)

	s.Broadcast(events.Event{
		Type: protocol.EventUpdated,
		Data: protocol.EventSlots{EventID: e.ID, AvailableSlots: e.AvailableSlots},
	})
	s.Broadcast(s.snapshotEvent())
	s.SendTo(id, events.Event{
		Type: protocol.ReservationCreated,
		Data: protocol.ReservationCreatedPayload{
			ReservationID:       r.ID,
			EventID:             e.ID,
			ExpiresAt:           r.ExpiresAt,
			ConfirmationTimeout: int(s.cfg.ConfirmationTimeout.Seconds()),
		},
	})
}

func (s *Server) handleConfirm(id string, env protocol.Envelope) {
	var req protocol.ConfirmRequest
	if err := env.Bind(&req); err != nil {
		s.sendError(id, "invalid confirmation request")
		return
	}
	r, err := s.store.Confirm(req.ReservationID, req.Name, req.Phone)
	switch {
	case errors.Is(err, catalog.ErrReservationNotFound):
		s.sendError(id, "reservation not found or already expired")
		return
	case errors.Is(err, catalog.ErrReservationExpired):
		s.sendError(id, "reservation expired")
		s.Broadcast(s.snapshotEvent())
		return
	case errors.Is(err, catalog.ErrInvalidContact):
		s.sendError(id, "name must be 3 to 100 characters and phone 10 to 20")
		return
	case err != nil:
		s.logger.Error("webserver: confirm", "conn", id, "reservation", req.ReservationID, "err", err)
		s.sendError(id, "confirmation failed")
		return
	}

	metrics.ReservationsTotal.WithLabelValues("confirmed").Inc()
	s.logger.Info("webserver: reservation confirmed", "conn", id, "reservation", r.ID, "event", r.EventID)
	s.SendTo(id, events.Event{Type: protocol.ReservationConfirmed, Data: protocol.ReservationConfirmedPayload{Success: true}})
	s.Broadcast(s.snapshotEvent())
}

func (s *Server) handleTimeExpired(id string) {
	_, promoted := s.admit.Remove(id)
	s.SendTo(id, events.Event{Type: protocol.StopTimer})
	for _, p := range promoted {
		s.grant(p)
	}
	s.Broadcast(events.Event{Type: protocol.UpdateQueue, Data: s.admit.QueueSnapshot()})
	s.Broadcast(events.Event{Type: protocol.UpdateActiveUsers, Data: s.admit.Snapshot()})
}

func (s *Server) handleStartTimer(id string, env protocol.Envelope) {
	var t protocol.Timer
	if err := env.Bind(&t); err != nil {
		s.sendError(id, "invalid timer")
		return
	}
	if s.admit.UpdateTimer(id, t.Time) {
		s.Broadcast(events.Event{Type: protocol.UpdateActiveUsers, Data: s.admit.Snapshot()})
	}
}

// grant tells id it may reserve and starts its choice timer.
func (s *Server) grant(id string) {
	s.logger.Info("webserver: access granted", "conn", id)
	s.SendTo(id, events.Event{Type: protocol.AccessGranted})
	s.SendTo(id, events.Event{Type: protocol.StartTimer, Data: protocol.Timer{Time: s.admit.ChoiceTimeout()}})
}

func (s *Server) broadcastPresence() {
	queue := s.admit.QueueSnapshot()
	metrics.QueueLength.Set(float64(len(queue.Queue)))
	s.Broadcast(events.Event{Type: protocol.UpdateOnlineUsers, Data: protocol.OnlineUsers{Count: s.OnlineCount()}})
	s.Broadcast(events.Event{Type: protocol.UpdateQueue, Data: queue})
	s.Broadcast(events.Event{Type: protocol.UpdateActiveUsers, Data: s.admit.Snapshot()})
}

func (s *Server) sendError(id, message string) {
	s.SendTo(id, events.Event{Type: protocol.Error, Data: protocol.ErrorPayload{Message: message}})
}

func (s *Server) snapshotEvent() events.Event {
	return events.Event{Type: protocol.UpdateEvents, Data: s.store.Snapshot()}
}
