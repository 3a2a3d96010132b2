package monitor

import (
	"log/slog"
	"sync"
	"time"

	"github.com/zsprackett/event-reserve/internal/admission"
	"github.com/zsprackett/event-reserve/internal/catalog"
	"github.com/zsprackett/event-reserve/internal/events"
	"github.com/zsprackett/event-reserve/internal/metrics"
	"github.com/zsprackett/event-reserve/internal/protocol"
)

type Monitor struct {
	admit           *admission.Manager
	store           *catalog.Store
	broadcaster     events.Broadcaster
	interval        time.Duration
	cleanupInterval time.Duration
	stop            chan struct{}
	wg              sync.WaitGroup
	logger          *slog.Logger
}

func New(admit *admission.Manager, store *catalog.Store, broadcaster events.Broadcaster, cleanupInterval time.Duration, logger *slog.Logger) *Monitor {
	if cleanupInterval <= 0 {
		cleanupInterval = 30 * time.Second
	}
	return &Monitor{
		admit:           admit,
		store:           store,
		broadcaster:     broadcaster,
		interval:        time.Second,
		cleanupInterval: cleanupInterval,
		stop:            make(chan struct{}),
		logger:          logger,
	}
}

func (m *Monitor) Start() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		cleanup := time.NewTicker(m.cleanupInterval)
		defer cleanup.Stop()
		for {
			select {
			case <-m.stop:
				return
			case <-ticker.C:
				m.Tick()
			case <-cleanup.C:
				m.Sweep()
			}
		}
	}()
}

func (m *Monitor) Stop() {
	close(m.stop)
	m.wg.Wait()
}

// Tick advances every choice timer by one second.
func (m *Monitor) Tick() {
	expired, promoted := m.admit.Tick()
	for _, id := range expired {
		m.logger.Info("monitor: choice timer expired", "conn", id)
		events.PublishTo(m.broadcaster, id, events.Event{Type: protocol.TimeExpired})
	}
	for _, id := range promoted {
		m.grant(id)
	}
	if len(expired) > 0 || len(promoted) > 0 {
		m.publishQueue()
		return
	}
	if len(m.admit.ActiveUsers()) > 0 {
		events.Publish(m.broadcaster, events.Event{Type: protocol.UpdateActiveUsers, Data: m.admit.Snapshot()})
	}
}

func (m *Monitor) grant(id string) {
	m.logger.Info("monitor: access granted", "conn", id)
	events.PublishTo(m.broadcaster, id, events.Event{Type: protocol.AccessGranted})
	events.PublishTo(m.broadcaster, id, events.Event{
		Type: protocol.StartTimer,
		Data: protocol.Timer{Time: m.admit.ChoiceTimeout()},
	})
}

// publishQueue broadcasts the queue and the active users.
func (m *Monitor) publishQueue() {
	queue := m.admit.QueueSnapshot()
	metrics.QueueLength.Set(float64(len(queue.Queue)))
	events.Publish(m.broadcaster, events.Event{Type: protocol.UpdateQueue, Data: queue})
	events.Publish(m.broadcaster, events.Event{Type: protocol.UpdateActiveUsers, Data: m.admit.Snapshot()})
}

// presence is implemented by broadcasters that know which connections are
// still open.
type presence interface {
	Connected(id string) bool
}

// Sweep releases temporary reservations that were never confirmed and
// drops admission entries whose connection is gone.
func (m *Monitor) Sweep() {
	if p, ok := m.broadcaster.(presence); ok {
		promoted := m.admit.Retain(p.Connected)
		for _, id := range promoted {
			m.grant(id)
		}
		if len(promoted) > 0 {
			m.publishQueue()
		}
	}

	affected := m.store.ExpireTemporary()
	if len(affected) == 0 {
		return
	}
	for _, e := range affected {
		m.logger.Info("monitor: temporary reservation expired", "event", e.ID, "available", e.AvailableSlots)
		events.Publish(m.broadcaster, events.Event{
			Type: protocol.EventUpdated,
			Data: protocol.EventSlots{EventID: e.ID, AvailableSlots: e.AvailableSlots},
		})
	}
	events.Publish(m.broadcaster, events.Event{Type: protocol.UpdateEvents, Data: m.store.Snapshot()})
}
