// Package admission limits how many connections may reserve at once. The
// rest wait in arrival order.
package admission

import (
	"slices"
	"sync"
)

// ActiveUser is a connection holding the right to reserve.
type ActiveUser struct {
	ID       string
	TimeLeft int // seconds
}

// Manager is safe for concurrent use.
type Manager struct {
	mu            sync.Mutex
	maxActive     int
	choiceTimeout int
	active        []ActiveUser
	queue         []string
}

// New returns a Manager admitting up to maxActive users, each for
// choiceTimeout seconds.
func New(maxActive, choiceTimeout int) *Manager {
	if maxActive < 1 {
		maxActive = 1
	}
	return &Manager{maxActive: maxActive, choiceTimeout: choiceTimeout}
}

// ChoiceTimeout is the window, in seconds, given to newly admitted users.
func (m *Manager) ChoiceTimeout() int {
	return m.choiceTimeout
}

// Add admits id if there is room and queues it otherwise. It returns whether
// id was granted access and, when queued, its 1-based position. Known ids are
// left where they are.
func (m *Manager) Add(id string) (granted bool, position int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.activeIndex(id) >= 0 {
		return true, 0
	}
	if i := slices.Index(m.queue, id); i >= 0 {
		return false, i + 1
	}
	if len(m.active) < m.maxActive {
		m.active = append(m.active, ActiveUser{ID: id, TimeLeft: m.choiceTimeout})
		return true, 0
	}
	m.queue = append(m.queue, id)
	return false, len(m.queue)
}

// Remove forgets id. When id was active the head of the queue is admitted
// and returned as promoted.
func (m *Manager) Remove(id string) (removed bool, promoted []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i := m.activeIndex(id); i >= 0 {
		m.active = slices.Delete(m.active, i, i+1)
		return true, m.promote()
	}
	if i := slices.Index(m.queue, id); i >= 0 {
		m.queue = slices.Delete(m.queue, i, i+1)
		return true, nil
	}
	return false, nil
}

// UpdateTimer overwrites the time left for an active user.
func (m *Manager) UpdateTimer(id string, timeLeft int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.activeIndex(id)
	if i < 0 {
		return false
	}
	m.active[i].TimeLeft = timeLeft
	return true
}

// Tick advances every choice timer by one second. Users whose timer was
// already at zero are removed and reported as expired; queued users take
// their places.
func (m *Manager) Tick() (expired, promoted []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.active[:0]
	for _, u := range m.active {
		if u.TimeLeft > 0 {
			u.TimeLeft--
			kept = append(kept, u)
			continue
		}
		expired = append(expired, u.ID)
	}
	m.active = kept
	if len(expired) > 0 {
		promoted = m.promote()
	}
	return expired, promoted
}

// Retain drops every user for which alive returns false.
func (m *Manager) Retain(alive func(id string) bool) (promoted []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = slices.DeleteFunc(m.active, func(u ActiveUser) bool { return !alive(u.ID) })
	m.queue = slices.DeleteFunc(m.queue, func(id string) bool { return !alive(id) })
	return m.promote()
}

func (m *Manager) IsActive(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeIndex(id) >= 0
}

// ActiveUsers returns the active users in admission order.
func (m *Manager) ActiveUsers() []ActiveUser {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.active)
}

// Queue returns the waiting ids, head first.
func (m *Manager) Queue() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.queue)
}

// Position returns the 1-based queue position of id, or 0.
func (m *Manager) Position(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Index(m.queue, id) + 1
}

// promote fills free active slots from the queue. Caller holds m.mu.
func (m *Manager) promote() []string {
	var promoted []string
	for len(m.active) < m.maxActive && len(m.queue) > 0 {
		next := m.queue[0]
		m.queue = m.queue[1:]
		m.active = append(m.active, ActiveUser{ID: next, TimeLeft: m.choiceTimeout})
		promoted = append(promoted, next)
	}
	return promoted
}

func (m *Manager) activeIndex(id string) int {
	return slices.IndexFunc(m.active, func(u ActiveUser) bool { return u.ID == id })
}
