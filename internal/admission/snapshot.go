package admission

import "github.com/zsprackett/event-reserve/internal/protocol"

// Snapshot returns the update_active_users payload.
func (m *Manager) Snapshot() protocol.ActiveUsers {
	users := m.ActiveUsers()
	out := protocol.ActiveUsers{ActiveUsers: make([]protocol.ActiveUser, 0, len(users))}
	for _, u := range users {
		out.ActiveUsers = append(out.ActiveUsers, protocol.ActiveUser{ID: u.ID, TimeLeft: u.TimeLeft})
	}
	return out
}

// QueueSnapshot returns the update_queue payload.
func (m *Manager) QueueSnapshot() protocol.Queue {
	q := m.Queue()
	if q == nil {
		q = []string{}
	}
	return protocol.Queue{Queue: q}
}
