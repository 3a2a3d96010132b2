package client

import (
	"log/slog"

	"github.com/zsprackett/event-reserve/internal/protocol"
	"github.com/zsprackett/event-reserve/internal/transport"
)

// Requester sends reservation intents to the server. Every method queues
// exactly one message and returns at once; nothing waits for a reply and
// nothing is retried.
type Requester struct {
	t      transport.Transport
	logger *slog.Logger
}

func NewRequester(t transport.Transport, logger *slog.Logger) *Requester {
	return &Requester{t: t, logger: logger}
}

// RequestReservation sends reserve_event with {"eventId": id}.
func (r *Requester) RequestReservation(id protocol.EventID) {
	r.emit(protocol.ReserveEvent, protocol.ReserveRequest{EventID: id})
}

// ConfirmReservation sends confirm_reservation for a temporary reservation
// the server created earlier.
func (r *Requester) ConfirmReservation(reservationID, name, phone string) {
	r.emit(protocol.ConfirmReservation, protocol.ConfirmRequest{
		ReservationID: reservationID,
		Name:          name,
		Phone:         phone,
	})
}

// ReportTimeExpired gives up the caller's choice window.
func (r *Requester) ReportTimeExpired() {
	r.emit(protocol.TimeExpired, nil)
}

// A message that cannot be queued is lost. The log line is the only trace.
func (r *Requester) emit(name string, payload any) {
	if err := r.t.Emit(name, payload); err != nil {
		r.logger.Warn("client: message dropped", "type", name, "err", err)
		return
	}
	r.logger.Debug("client: message queued", "type", name)
}
