package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/zsprackett/event-reserve/internal/protocol"
	"github.com/zsprackett/event-reserve/internal/transport"
)

// Config holds notification settings.
type Config struct {
	// Webhook, when set, receives every update_events payload as a POST body.
	Webhook string `json:"webhook"`
}

// Sink receives each update_events payload exactly as it arrived.
type Sink func(protocol.EventUpdate)

const webhookBacklog = 16

// Notifier surfaces update_events payloads to the rest of the client.
type Notifier struct {
	cfg    Config
	logger *slog.Logger
	sinks  []Sink
	client *http.Client
	once   sync.Once

	// Webhook posts run on their own goroutine so a slow endpoint never
	// holds up the transport's handlers.
	mu     sync.Mutex
	closed bool
	hooks  chan protocol.EventUpdate
	wg     sync.WaitGroup
}

// New returns a Notifier with the given config. Every payload is logged;
// sinks are called after the log line, in order.
func New(cfg Config, logger *slog.Logger, sinks ...Sink) *Notifier {
	n := &Notifier{
		cfg:    cfg,
		logger: logger,
		sinks:  sinks,
		client: &http.Client{Timeout: 5 * time.Second},
	}
	if cfg.Webhook != "" {
		n.hooks = make(chan protocol.EventUpdate, webhookBacklog)
		n.wg.Add(1)
		go n.forward()
	}
	return n
}

// Close stops webhook forwarding after the payloads already queued have
// been posted.
func (n *Notifier) Close() {
	n.mu.Lock()
	if n.closed || n.hooks == nil {
		n.closed = true
		n.mu.Unlock()
		return
	}
	n.closed = true
	close(n.hooks)
	n.mu.Unlock()
	n.wg.Wait()
}

// Subscribe registers the notifier on t. Only the first call has an effect;
// the subscription lasts as long as t does.
func (n *Notifier) Subscribe(t transport.Transport) {
	n.once.Do(func() {
		t.On(protocol.UpdateEvents, n.handle)
	})
}

func (n *Notifier) handle(_ context.Context, data json.RawMessage) {
	u := protocol.EventUpdate(data)
	n.logger.Info("notify: events updated", "payload", string(u))
	for _, sink := range n.sinks {
		sink(u)
	}
	n.queueWebhook(u)
}

func (n *Notifier) queueWebhook(u protocol.EventUpdate) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.hooks == nil || n.closed {
		return
	}
	select {
	case n.hooks <- u:
	default:
		n.logger.Warn("notify: webhook backlog full, payload not forwarded", "url", n.cfg.Webhook)
	}
}

func (n *Notifier) forward() {
	defer n.wg.Done()
	for u := range n.hooks {
		n.sendWebhook(context.Background(), u)
	}
}

func (n *Notifier) sendWebhook(ctx context.Context, u protocol.EventUpdate) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.Webhook, bytes.NewReader(u))
	if err != nil {
		n.logger.Warn("notify: webhook request", "err", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Warn("notify: webhook failed", "url", n.cfg.Webhook, "err", err)
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		n.logger.Warn("notify: webhook rejected", "url", n.cfg.Webhook, "status", resp.StatusCode)
	}
}
