package catalog

import "github.com/zsprackett/event-reserve/internal/protocol"

// Snapshot returns the update_events payload describing every event.
func (s *Store) Snapshot() protocol.EventsSnapshot {
	evts := s.Events()
	out := protocol.EventsSnapshot{Events: make([]protocol.EventState, 0, len(evts))}
	for _, e := range evts {
		out.Events = append(out.Events, protocol.EventState{
			ID:             e.ID,
			Name:           e.Name,
			TotalSlots:     e.TotalSlots,
			AvailableSlots: e.AvailableSlots,
			CreatedAt:      e.CreatedAt,
		})
	}
	return out
}
